// Package tui renders the live copilot session: transcript on the left,
// suggested answers on the right, connection state and input level on top.
package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/interviewmate/copilot/client"
	"github.com/interviewmate/copilot/wire"
)

// Controller is the slice of the session transport the keyboard drives.
type Controller interface {
	SendContext(wire.ContextPayload) error
	SendConfig(wire.ConfigPayload) error
	Finalize() error
	RequestAnswer(question, questionType string) error
	Clear() error
	Close() error
}

// Capture is the slice of the capture engine the keyboard drives.
type Capture interface {
	Pause()
	Resume()
	Level() float64
	Stop()
}

// TranscriptLine is one finalized transcript segment for display.
type TranscriptLine struct {
	Text string
	At   time.Time
}

// AnswerView is one generated answer for display. The list is kept newest
// first; regeneration adds a view rather than replacing one.
type AnswerView struct {
	Question     string
	QuestionType string
	Answer       string
	Grounded     bool
	GroundedOn   []string
	Regenerated  bool
	At           time.Time
}

// Options wires a model to a connected transport and a started capture
// engine. Context and Config are resent after every reconnect because server
// session state does not survive the connection.
type Options struct {
	Controller  Controller
	Capture     Capture
	Events      <-chan client.Event
	CaptureDone <-chan struct{}
	Context     wire.ContextPayload
	Config      wire.ConfigPayload
	ServerURL   string
}

// Model is the root bubbletea model for the copilot TUI.
type Model struct {
	ctrl        Controller
	capture     Capture
	events      <-chan client.Event
	captureDone <-chan struct{}
	states      *client.StateMachine

	sessionContext wire.ContextPayload
	sessionConfig  wire.ConfigPayload
	serverURL      string

	lines   []TranscriptLine
	segment string

	lastQuestion     string
	lastQuestionType string

	answers []AnswerView

	level      float64
	paused     bool
	audioEnded bool

	statusText     string
	errorMessage   string
	errorTransient bool

	width  int
	height int
}

// New creates a model for an already-connected session.
func New(opts Options) Model {
	return Model{
		ctrl:           opts.Controller,
		capture:        opts.Capture,
		events:         opts.Events,
		captureDone:    opts.CaptureDone,
		states:         client.NewStateMachine(),
		sessionContext: opts.Context,
		sessionConfig:  opts.Config,
		serverURL:      opts.ServerURL,
		statusText:     "Activating session...",
	}
}

// Init activates the session and starts the event and level pumps.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		activateCmd(m.ctrl, m.sessionConfig, m.sessionContext),
		waitEventCmd(m.events),
		waitCaptureDoneCmd(m.captureDone),
		levelTickCmd(),
	)
}

// activateCmd announces the audio format and sends the candidate context. A
// context carrying only a user id still goes out so the server can load the
// stored profile.
func activateCmd(ctrl Controller, cfg wire.ConfigPayload, ctx wire.ContextPayload) tea.Cmd {
	return func() tea.Msg {
		if cfg != (wire.ConfigPayload{}) {
			if err := ctrl.SendConfig(cfg); err != nil {
				return CommandErrorMsg{Op: "config", Err: err}
			}
		}
		if !ctx.Empty() || ctx.UserID != "" {
			if err := ctrl.SendContext(ctx); err != nil {
				return CommandErrorMsg{Op: "context", Err: err}
			}
		}
		return nil
	}
}

// waitEventCmd reads the next transport event.
func waitEventCmd(events <-chan client.Event) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-events
		if !ok {
			return TransportClosedMsg{}
		}
		return TransportEventMsg{Event: ev}
	}
}

// waitCaptureDoneCmd fires once when the audio source ends.
func waitCaptureDoneCmd(done <-chan struct{}) tea.Cmd {
	if done == nil {
		return nil
	}
	return func() tea.Msg {
		<-done
		return CaptureStoppedMsg{}
	}
}

func levelTickCmd() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(time.Time) tea.Msg {
		return LevelTickMsg{}
	})
}

func finalizeCmd(ctrl Controller) tea.Cmd {
	return func() tea.Msg {
		if err := ctrl.Finalize(); err != nil {
			return CommandErrorMsg{Op: "finalize", Err: err}
		}
		return nil
	}
}

func regenerateCmd(ctrl Controller, question, questionType string) tea.Cmd {
	return func() tea.Msg {
		if err := ctrl.RequestAnswer(question, questionType); err != nil {
			return CommandErrorMsg{Op: "regenerate", Err: err}
		}
		return nil
	}
}

func clearCmd(ctrl Controller) tea.Cmd {
	return func() tea.Msg {
		if err := ctrl.Clear(); err != nil {
			return CommandErrorMsg{Op: "clear", Err: err}
		}
		return nil
	}
}

// clearTransientErrorCmd fires after a delay to clear transient errors.
func clearTransientErrorCmd() tea.Cmd {
	return tea.Tick(5*time.Second, func(time.Time) tea.Msg {
		return ClearTransientErrorMsg{}
	})
}

// Update processes messages and returns the updated model and any commands.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case TransportEventMsg:
		cmd := m.handleEvent(msg.Event)
		// Keep reading transport events.
		return m, tea.Batch(cmd, waitEventCmd(m.events))

	case TransportClosedMsg:
		return m, tea.Quit

	case CaptureStoppedMsg:
		m.audioEnded = true
		m.statusText = "Audio input ended"
		return m, nil

	case LevelTickMsg:
		if m.capture != nil {
			m.level = m.capture.Level()
		}
		return m, levelTickCmd()

	case CommandErrorMsg:
		m.errorMessage = fmt.Sprintf("%s: %v", msg.Op, msg.Err)
		m.errorTransient = true
		return m, clearTransientErrorCmd()

	case ClearTransientErrorMsg:
		if m.errorTransient {
			m.errorMessage = ""
			m.errorTransient = false
		}
		return m, nil
	}

	return m, nil
}

// handleEvent folds one transport event into the display state and returns
// any resulting command.
func (m *Model) handleEvent(ev client.Event) tea.Cmd {
	m.states.Apply(ev)

	switch e := ev.(type) {
	case client.StatusEvent:
		switch e.State {
		case wire.StatusReady:
			m.statusText = "Listening"
		case wire.StatusContextAck:
			m.statusText = "Context loaded"
		case wire.StatusConfigAck:
			m.statusText = "Audio format " + e.Detail
		case wire.StatusDetecting:
			m.statusText = "Detecting question..."
		case wire.StatusNoQuestion:
			m.statusText = "No question at boundary"
			m.segment = ""
		case wire.StatusCleared:
			m.lines = nil
			m.segment = ""
			m.answers = nil
			m.lastQuestion = ""
			m.lastQuestionType = ""
			m.statusText = "Session cleared"
		}

	case client.TranscriptionEvent:
		if e.IsFinal {
			m.lines = append(m.lines, TranscriptLine{Text: e.Text, At: time.Now()})
			m.segment = ""
		} else {
			m.segment = e.Text
		}

	case client.QuestionEvent:
		m.lastQuestion = e.Question
		m.lastQuestionType = e.QuestionType
		m.statusText = fmt.Sprintf("Question (%s), generating answer", e.QuestionType)

	case client.AnswerEvent:
		view := AnswerView{
			Question:     e.Question,
			QuestionType: e.QuestionType,
			Answer:       e.Answer,
			Grounded:     e.Grounded,
			GroundedOn:   e.GroundedOn,
			Regenerated:  e.Regenerated,
			At:           e.CreatedAt,
		}
		m.answers = append([]AnswerView{view}, m.answers...)
		if e.Question != "" {
			m.lastQuestion = e.Question
			m.lastQuestionType = e.QuestionType
		}
		m.statusText = "Answer ready"

	case client.ErrorEvent:
		m.errorMessage = errorText(e.ErrorPayload)
		m.errorTransient = true
		return clearTransientErrorCmd()

	case client.DisconnectedEvent:
		m.statusText = "Connection lost, reconnecting..."

	case client.ReconnectedEvent:
		// Server session state did not survive; replay format and context.
		m.statusText = "Reconnected, restoring session..."
		return activateCmd(m.ctrl, m.sessionConfig, m.sessionContext)
	}

	return nil
}

// errorText keeps the failure surfaces distinct for the user.
func errorText(p wire.ErrorPayload) string {
	switch p.Code {
	case wire.ErrCodeGenerationTimeout:
		return "Answer generation timed out"
	case wire.ErrCodeGenerationFailure:
		return "Answer generation failed: " + p.Message
	case wire.ErrCodeRecognizerUnavailable:
		return "Transcription unavailable: " + p.Message
	default:
		return p.Message
	}
}

// handleKey processes key presses.
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "Q", "ctrl+c":
		if m.capture != nil {
			m.capture.Stop()
		}
		if m.ctrl != nil {
			_ = m.ctrl.Close()
		}
		return m, tea.Quit

	case "f":
		return m, finalizeCmd(m.ctrl)

	case "r":
		if m.lastQuestion == "" {
			m.errorMessage = "No question to regenerate yet"
			m.errorTransient = true
			return m, clearTransientErrorCmd()
		}
		return m, regenerateCmd(m.ctrl, m.lastQuestion, m.lastQuestionType)

	case "c":
		return m, clearCmd(m.ctrl)

	case "p":
		if m.capture == nil {
			return m, nil
		}
		if m.paused {
			m.capture.Resume()
		} else {
			m.capture.Pause()
		}
		m.paused = !m.paused
		return m, nil
	}

	return m, nil
}

// View renders the full TUI.
func (m Model) View() string {
	if m.width == 0 {
		return "Starting..."
	}

	var sections []string
	sections = append(sections, m.renderHeader())
	sections = append(sections, m.renderStatusBar())
	sections = append(sections, dividerStyle.Render(strings.Repeat("─", m.width)))
	sections = append(sections, m.renderMainContent())
	sections = append(sections, dividerStyle.Render(strings.Repeat("─", m.width)))
	if m.errorMessage != "" {
		sections = append(sections, errorStyle.Render("Error: ")+errorTextStyle.Render(m.errorMessage))
	}
	sections = append(sections, m.renderFooter())

	return strings.Join(sections, "\n")
}

func (m Model) renderHeader() string {
	title := titleStyle.Render("INTERVIEW COPILOT")

	var server string
	if m.serverURL != "" {
		server = dimStyle.Render(" " + m.serverURL)
	}

	var paused string
	if m.paused {
		paused = pausedBadgeStyle.Render(" [PAUSED]")
	}
	if m.audioEnded {
		paused += dimStyle.Render(" [NO AUDIO]")
	}

	return title + server + paused
}

func (m Model) renderStatusBar() string {
	var dot string
	switch m.states.State() {
	case client.StateStreaming:
		dot = liveDotStyle.Render("● LIVE")
	case client.StateConnecting:
		dot = connectingDotStyle.Render("◌ CONNECTING")
	default:
		dot = dimStyle.Render("○ IDLE")
	}

	var meter string
	if !m.paused && !m.audioEnded {
		meter = "  " + renderLevelMeter(m.level)
	}

	var activity string
	switch m.states.Sub() {
	case client.SubGenerating:
		activity = "  " + spinnerStyle.Render("⟳ generating")
	case client.SubDetecting:
		activity = "  " + spinnerStyle.Render("? detecting")
	}

	var status string
	if m.statusText != "" {
		status = "  " + dimStyle.Render(m.statusText)
	}

	return dot + meter + activity + status
}

// renderLevelMeter draws the RMS input level against a fixed full scale.
func renderLevelMeter(level float64) string {
	const (
		barLen    = 10
		fullScale = 6000.0
	)
	filled := int(level / fullScale * barLen)
	if filled > barLen {
		filled = barLen
	}

	var bar string
	for i := 0; i < barLen; i++ {
		if i < filled {
			if float64(i)/barLen > 0.7 {
				bar += levelHotStyle.Render("█")
			} else {
				bar += levelOnStyle.Render("█")
			}
		} else {
			bar += levelOffStyle.Render("░")
		}
	}
	return dimStyle.Render("MIC ") + bar
}

func (m Model) contentHeight() int {
	if m.height == 0 {
		return 16
	}
	// Reserve header, status, two dividers, error, footer.
	return max(6, m.height-7)
}

func (m Model) transcriptWidth() int {
	if m.width == 0 {
		return 40
	}
	return max(28, m.width*45/100)
}

func (m Model) answerWidth() int {
	if m.width == 0 {
		return 48
	}
	return max(30, m.width-m.transcriptWidth()-1)
}

func (m Model) renderMainContent() string {
	height := m.contentHeight()
	left := panelLines(m.renderTranscriptPanel(m.transcriptWidth()), m.transcriptWidth(), height)
	right := panelLines(m.renderAnswerPanel(m.answerWidth()), m.answerWidth(), height)

	divider := dividerStyle.Render("│")
	rows := make([]string, height)
	for i := 0; i < height; i++ {
		rows[i] = left[i] + divider + right[i]
	}
	return strings.Join(rows, "\n")
}

// panelLines pads or trims rendered panel content to exactly height lines of
// the given width.
func panelLines(content string, width, height int) []string {
	lines := strings.Split(content, "\n")
	if len(lines) > height {
		lines = lines[:height]
	}
	for len(lines) < height {
		lines = append(lines, "")
	}
	for i, l := range lines {
		lines[i] = padRight(l, width)
	}
	return lines
}

func (m Model) renderTranscriptPanel(width int) string {
	var lines []string
	lines = append(lines, panelTitleStyle.Render("TRANSCRIPT"))

	textWidth := max(12, width-13)
	var displayLines []string
	for _, entry := range m.lines {
		ts := timestampStyle.Render(entry.At.Format("[15:04:05]"))
		wrapped := wrapText(entry.Text, textWidth)
		displayLines = append(displayLines, ts+" "+wrapped[0])
		for _, wl := range wrapped[1:] {
			displayLines = append(displayLines, strings.Repeat(" ", 11)+wl)
		}
	}
	if m.segment != "" {
		for _, wl := range wrapText(m.segment+"▌", textWidth) {
			displayLines = append(displayLines, strings.Repeat(" ", 11)+interimStyle.Render(wl))
		}
	}

	if len(displayLines) == 0 {
		lines = append(lines, dimStyle.Render("  Waiting for speech..."))
		return strings.Join(lines, "\n")
	}

	// Tail-follow: keep the newest lines visible.
	visible := m.contentHeight() - 1
	if len(displayLines) > visible {
		displayLines = displayLines[len(displayLines)-visible:]
	}
	lines = append(lines, displayLines...)
	return strings.Join(lines, "\n")
}

func (m Model) renderAnswerPanel(width int) string {
	var lines []string
	lines = append(lines, panelTitleStyle.Render(fmt.Sprintf("ANSWERS (%d)", len(m.answers))))

	textWidth := max(12, width-4)

	if m.states.Sub() == client.SubGenerating && m.lastQuestion != "" {
		for _, wl := range wrapText("Q: "+m.lastQuestion, textWidth) {
			lines = append(lines, "  "+questionStyle.Render(wl))
		}
		lines = append(lines, "  "+spinnerStyle.Render("⟳ generating..."))
		lines = append(lines, "")
	}

	if len(m.answers) == 0 {
		if m.states.Sub() != client.SubGenerating {
			lines = append(lines, dimStyle.Render("  No answers yet"))
			lines = append(lines, dimStyle.Render("  Press f to force a question boundary"))
		}
		return strings.Join(lines, "\n")
	}

	for _, a := range m.answers {
		for _, wl := range wrapText("Q: "+a.Question, textWidth) {
			lines = append(lines, "  "+questionStyle.Render(wl))
		}

		badge := groundedStyle.Render("[" + strings.Join(a.GroundedOn, ", ") + "]")
		if !a.Grounded {
			badge = ungroundedStyle.Render("[ungrounded]")
		}
		meta := "  " + dimStyle.Render(a.QuestionType) + " " + badge
		if a.Regenerated {
			meta += dimStyle.Render(" (regenerated)")
		}
		lines = append(lines, meta)

		for _, wl := range wrapText(a.Answer, textWidth) {
			lines = append(lines, "  "+answerStyle.Render(wl))
		}
		lines = append(lines, "")
	}

	return strings.Join(lines, "\n")
}

func (m Model) renderFooter() string {
	pauseDesc := " Pause"
	if m.paused {
		pauseDesc = " Resume"
	}
	parts := []string{
		footerKeyStyle.Render("f") + footerDescStyle.Render(" Finalize"),
		footerKeyStyle.Render("r") + footerDescStyle.Render(" Regenerate"),
		footerKeyStyle.Render("c") + footerDescStyle.Render(" Clear"),
		footerKeyStyle.Render("p") + footerDescStyle.Render(pauseDesc),
		footerKeyStyle.Render("q") + footerDescStyle.Render(" Quit"),
	}
	return strings.Join(parts, "  ")
}

// Helpers

func padRight(s string, width int) string {
	visible := lipgloss.Width(s)
	if visible >= width {
		return s
	}
	return s + strings.Repeat(" ", width-visible)
}

func wrapText(text string, width int) []string {
	if width <= 0 {
		return []string{text}
	}
	var lines []string
	var current string
	for _, word := range strings.Fields(text) {
		switch {
		case current == "":
			current = word
		case len(current)+1+len(word) <= width:
			current += " " + word
		default:
			lines = append(lines, current)
			current = word
		}
	}
	if current != "" {
		lines = append(lines, current)
	}
	if len(lines) == 0 {
		return []string{""}
	}
	return lines
}

package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/url"
	"os"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"

	"github.com/interviewmate/copilot/client"
	"github.com/interviewmate/copilot/internal/tui"
	"github.com/interviewmate/copilot/wire"
)

type options struct {
	server      string
	token       string
	userID      string
	audioPath   string
	contextPath string
	sampleRate  int
	opus        bool
	logPath     string
}

func main() {
	os.Exit(runMain())
}

func runMain() int {
	_ = godotenv.Load()

	var opt options
	flag.StringVar(&opt.server, "server", "http://localhost:8080", "Server base URL (http(s)://host:port or ws(s)://...)")
	flag.StringVar(&opt.token, "token", strings.TrimSpace(os.Getenv("AUTH_TOKEN")), "Session auth token (also reads AUTH_TOKEN)")
	flag.StringVar(&opt.userID, "user", "", "User id; lets the server load a stored interview profile")
	flag.StringVar(&opt.audioPath, "audio", "", "PCM16LE mono audio source: file or FIFO fed by arecord/sox; required")
	flag.StringVar(&opt.contextPath, "context", "", "Path to a JSON context file (resume, stories, talking points)")
	flag.IntVar(&opt.sampleRate, "rate", client.DefaultSampleRate, "Audio sample rate in Hz")
	flag.BoolVar(&opt.opus, "opus", false, "Encode outgoing audio as Opus instead of raw PCM")
	flag.StringVar(&opt.logPath, "log", "", "Write debug logs to this file; silent otherwise")
	flag.Parse()

	// The TUI owns the terminal, so logs go to a file or nowhere.
	if opt.logPath != "" {
		f, err := os.OpenFile(opt.logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			fmt.Fprintln(os.Stderr, "open log file:", err)
			return 2
		}
		defer f.Close()
		log.SetOutput(f)
	} else {
		log.SetOutput(io.Discard)
	}

	if strings.TrimSpace(opt.audioPath) == "" {
		fmt.Fprintln(os.Stderr, "--audio is required (PCM16LE file or FIFO)")
		return 2
	}
	if opt.sampleRate <= 0 {
		fmt.Fprintln(os.Stderr, "--rate must be > 0")
		return 2
	}

	wsURL, err := sessionWSURL(opt.server, opt.token, opt.userID)
	if err != nil {
		fmt.Fprintln(os.Stderr, "invalid --server:", err)
		return 2
	}

	ctxPayload, err := loadContext(opt.contextPath, opt.userID)
	if err != nil {
		fmt.Fprintln(os.Stderr, "load context:", err)
		return 2
	}

	encoding := wire.EncodingPCM16
	encodingName := "pcm_s16le"
	if opt.opus {
		encoding = wire.EncodingOpus
		encodingName = "opus"
	}

	transport := client.NewTransport(client.TransportConfig{URL: wsURL})
	dialCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	err = transport.Connect(dialCtx)
	cancel()
	if err != nil {
		fmt.Fprintln(os.Stderr, "connect:", err)
		return 1
	}
	defer transport.Close()

	engine := client.NewCaptureEngine(client.NewFileDevice(opt.audioPath), client.CaptureConfig{
		SampleRate: opt.sampleRate,
		Encoding:   encoding,
		Realtime:   true,
	})
	if err := engine.Start(); err != nil {
		fmt.Fprintln(os.Stderr, "audio device unavailable:", err)
		return 1
	}
	defer engine.Stop()

	// Pump captured chunks into the transport; sends fail harmlessly while a
	// reconnect is in progress.
	captureDone := make(chan struct{})
	go func() {
		defer close(captureDone)
		for chunk := range engine.Chunks() {
			if err := transport.SendAudio(chunk); err != nil {
				log.Printf("send audio: %v", err)
			}
		}
	}()

	// Sustained silence forces a question boundary, same as pressing f.
	go func() {
		for {
			select {
			case <-engine.Silence():
				if err := transport.Finalize(); err != nil {
					log.Printf("finalize on silence: %v", err)
				}
			case <-captureDone:
				return
			}
		}
	}()

	model := tui.New(tui.Options{
		Controller:  transport,
		Capture:     engine,
		Events:      transport.Events(),
		CaptureDone: captureDone,
		Context:     ctxPayload,
		Config:      wire.ConfigPayload{SampleRate: opt.sampleRate, Encoding: encodingName},
		ServerURL:   wsURL,
	})
	if _, err := tea.NewProgram(model, tea.WithAltScreen()).Run(); err != nil {
		fmt.Fprintln(os.Stderr, "tui:", err)
		return 1
	}
	return 0
}

// loadContext reads the candidate context from a JSON file. Without a file
// the payload carries just the user id so the server can load a stored
// profile instead.
func loadContext(path, userID string) (wire.ContextPayload, error) {
	if strings.TrimSpace(path) == "" {
		return wire.ContextPayload{UserID: userID}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return wire.ContextPayload{}, err
	}
	var payload wire.ContextPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return wire.ContextPayload{}, fmt.Errorf("parse %s: %w", path, err)
	}
	if payload.UserID == "" {
		payload.UserID = userID
	}
	return payload, nil
}

// sessionWSURL normalizes the server URL to the websocket session endpoint,
// carrying auth and identity in the query so reconnect dials keep them.
func sessionWSURL(server, token, userID string) (string, error) {
	raw := strings.TrimSpace(server)
	if raw == "" {
		return "", fmt.Errorf("empty server")
	}
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	switch strings.ToLower(u.Scheme) {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}

	u.Path = strings.TrimSuffix(u.Path, "/") + "/ws/interview"
	q := u.Query()
	if token != "" {
		q.Set("password", token)
	}
	if userID != "" {
		q.Set("user_id", userID)
	}
	u.RawQuery = q.Encode()
	u.Fragment = ""
	return u.String(), nil
}

// Package answer turns a detected question plus the session's context into
// a suggested answer record.
package answer

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/interviewmate/copilot/internal/llm"
	"github.com/interviewmate/copilot/wire"
)

const (
	maxStories      = 3
	maxQAPairs      = 2
	answerMaxTokens = 1024

	// qaMatchThreshold is the word-overlap ratio above which a prepared
	// Q&A pair answers the question directly, skipping generation.
	qaMatchThreshold = 0.8
)

const systemPrompt = `You are an interview coaching assistant. Your job is to help the candidate answer interview questions effectively.

Based on the candidate's background information (resume, STAR stories, talking points), generate a concise, natural-sounding answer that:
1. Directly addresses the question
2. Uses specific examples from their experience when relevant
3. Follows the STAR format for behavioral questions
4. Is conversational and authentic, not robotic
5. Can be delivered in about 1-2 minutes

Keep the answer focused and avoid unnecessary filler. The candidate will use this as a guide, not read it verbatim.`

const ungroundedNote = `

No background was provided for this candidate. Produce a generic answer structured as Situation, Task, Action, Result that the candidate can adapt on the spot.`

// Record is one generated answer. History append and delivery are the
// session's job.
type Record struct {
	ID           string
	Question     string
	QuestionType string
	Answer       string
	Grounded     bool
	GroundedOn   []string
	CreatedAt    time.Time
}

type Generator struct {
	provider llm.Provider
}

func NewGenerator(provider llm.Provider) *Generator {
	return &Generator{provider: provider}
}

// Generate produces an answer for the question under the given context.
// Prepared Q&A pairs that closely match the question short-circuit the
// model call; otherwise relevant stories are selected and weighted into
// the prompt. With no context at all the answer is flagged ungrounded.
func (g *Generator) Generate(ctx context.Context, questionText, questionType string, profile wire.ContextPayload) (Record, error) {
	rec := Record{
		ID:           uuid.NewString(),
		Question:     questionText,
		QuestionType: questionType,
		CreatedAt:    time.Now().UTC(),
	}

	if pair, ok := matchQAPair(questionText, profile.QAPairs); ok {
		log.Printf("answer: matched prepared answer for %q", questionText)
		rec.Answer = pair.Answer
		rec.Grounded = true
		rec.GroundedOn = []string{"qa_pair"}
		return rec, nil
	}

	stories := selectStories(questionText, profile.StarStories)

	var parts []string
	var groundedOn []string

	if profile.ResumeText != "" {
		parts = append(parts, "RESUME:\n"+profile.ResumeText)
		groundedOn = append(groundedOn, "resume")
	}
	if len(stories) > 0 {
		texts := make([]string, 0, len(stories))
		for _, s := range stories {
			title := s.Title
			if title == "" {
				title = "Untitled"
			}
			texts = append(texts, fmt.Sprintf("Story: %s\nSituation: %s\nTask: %s\nAction: %s\nResult: %s",
				title, s.Situation, s.Task, s.Action, s.Result))
			if s.ID != "" {
				groundedOn = append(groundedOn, s.ID)
			} else {
				groundedOn = append(groundedOn, title)
			}
		}
		parts = append(parts, "STAR STORIES:\n"+strings.Join(texts, "\n\n"))
	}
	if len(profile.TalkingPoints) > 0 {
		lines := make([]string, 0, len(profile.TalkingPoints))
		for _, p := range profile.TalkingPoints {
			lines = append(lines, "- "+p)
		}
		parts = append(parts, "KEY TALKING POINTS:\n"+strings.Join(lines, "\n"))
		groundedOn = append(groundedOn, "talking_points")
	}
	if pairs := relatedQAPairs(questionText, profile.QAPairs); len(pairs) > 0 {
		texts := make([]string, 0, len(pairs))
		for _, p := range pairs {
			texts = append(texts, fmt.Sprintf("Q: %s\nA: %s", p.Question, p.Answer))
		}
		parts = append(parts, "PREPARED ANSWERS:\n"+strings.Join(texts, "\n\n"))
		groundedOn = append(groundedOn, "qa_pairs")
	}

	system := systemPrompt
	grounded := len(parts) > 0
	contextBlock := "No specific context provided."
	if grounded {
		contextBlock = strings.Join(parts, "\n\n---\n\n")
	} else {
		system += ungroundedNote
	}

	prompt := fmt.Sprintf("CANDIDATE BACKGROUND:\n%s\n\nINTERVIEW QUESTION:\n%s\n\nGenerate a suggested answer:", contextBlock, questionText)

	out, err := g.provider.Generate(ctx, llm.Request{
		System:    system,
		Prompt:    prompt,
		MaxTokens: answerMaxTokens,
	})
	if err != nil {
		return Record{}, fmt.Errorf("answer: generate: %w", err)
	}

	rec.Answer = out
	rec.Grounded = grounded
	rec.GroundedOn = groundedOn
	return rec, nil
}

// selectStories ranks stories against the question and keeps the best few.
// Tag hits weigh most, then title words, then narrative words. Order is
// stable so equally scored stories keep their profile order.
func selectStories(questionText string, stories []wire.StarStory) []wire.StarStory {
	if len(stories) == 0 {
		return nil
	}

	qTokens := tokenSet(questionText)

	type scored struct {
		story wire.StarStory
		score int
	}
	ranked := make([]scored, 0, len(stories))
	for _, s := range stories {
		ranked = append(ranked, scored{story: s, score: scoreStory(s, qTokens)})
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })

	n := len(ranked)
	if n > maxStories {
		n = maxStories
	}
	out := make([]wire.StarStory, 0, n)
	for _, r := range ranked[:n] {
		out = append(out, r.story)
	}
	return out
}

func scoreStory(s wire.StarStory, qTokens map[string]bool) int {
	score := 0
	for _, tag := range s.Tags {
		if overlapsToken(qTokens, strings.ToLower(tag)) {
			score += 3
		}
	}
	for tok := range tokenSet(s.Title) {
		if qTokens[tok] {
			score += 2
		}
	}
	narrative := s.Situation + " " + s.Task + " " + s.Action + " " + s.Result
	for tok := range tokenSet(narrative) {
		if qTokens[tok] {
			score++
		}
	}
	return score
}

// matchQAPair finds a prepared pair whose question is effectively the same
// one being asked.
func matchQAPair(questionText string, pairs []wire.QAPair) (wire.QAPair, bool) {
	if len(pairs) == 0 {
		return wire.QAPair{}, false
	}
	qNorm := normalize(questionText)
	qTokens := tokenSet(questionText)
	for _, p := range pairs {
		pNorm := normalize(p.Question)
		if pNorm == "" {
			continue
		}
		if pNorm == qNorm || strings.Contains(qNorm, pNorm) || strings.Contains(pNorm, qNorm) {
			return p, true
		}
		if overlapRatio(qTokens, tokenSet(p.Question)) >= qaMatchThreshold {
			return p, true
		}
	}
	return wire.QAPair{}, false
}

// relatedQAPairs picks prepared pairs with some word overlap, for prompt
// context rather than direct reuse.
func relatedQAPairs(questionText string, pairs []wire.QAPair) []wire.QAPair {
	if len(pairs) == 0 {
		return nil
	}
	qTokens := tokenSet(questionText)

	type scored struct {
		pair  wire.QAPair
		ratio float64
	}
	var ranked []scored
	for _, p := range pairs {
		r := overlapRatio(qTokens, tokenSet(p.Question))
		if r > 0 {
			ranked = append(ranked, scored{pair: p, ratio: r})
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].ratio > ranked[j].ratio })

	n := len(ranked)
	if n > maxQAPairs {
		n = maxQAPairs
	}
	out := make([]wire.QAPair, 0, n)
	for _, r := range ranked[:n] {
		out = append(out, r.pair)
	}
	return out
}

var stopwords = map[string]bool{
	"a": true, "an": true, "the": true, "and": true, "or": true, "of": true,
	"in": true, "on": true, "at": true, "to": true, "for": true, "with": true,
	"about": true, "your": true, "you": true, "me": true, "my": true,
	"i": true, "we": true, "our": true, "us": true, "is": true, "are": true,
	"was": true, "were": true, "be": true, "been": true, "do": true,
	"does": true, "did": true, "have": true, "has": true, "had": true,
	"that": true, "this": true, "it": true, "as": true, "by": true,
	"from": true, "what": true, "how": true, "why": true, "when": true,
	"where": true, "tell": true, "describe": true, "time": true,
}

func tokenSet(text string) map[string]bool {
	out := map[string]bool{}
	for _, f := range strings.Fields(strings.ToLower(text)) {
		f = strings.Trim(f, ".,!?;:'\"()-")
		if f == "" || stopwords[f] {
			continue
		}
		out[f] = true
	}
	return out
}

// overlapsToken reports whether the tag matches a question token, allowing
// a plural difference on either side.
func overlapsToken(tokens map[string]bool, tag string) bool {
	if tokens[tag] || tokens[tag+"s"] {
		return true
	}
	if strings.HasSuffix(tag, "s") && tokens[strings.TrimSuffix(tag, "s")] {
		return true
	}
	return false
}

func overlapRatio(a, b map[string]bool) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	small, large := a, b
	if len(b) < len(a) {
		small, large = b, a
	}
	shared := 0
	for tok := range small {
		if large[tok] {
			shared++
		}
	}
	return float64(shared) / float64(len(small))
}

func normalize(text string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(text)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ':
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// Package question decides when a frozen transcript snapshot contains an
// interviewer question worth answering, and classifies it.
package question

import "strings"

const (
	TypeBehavioral  = "behavioral"
	TypeTechnical   = "technical"
	TypeSituational = "situational"
	TypeGeneral     = "general"
)

// Event is one detected question. The session assigns the event id and
// fans the event out to the client.
type Event struct {
	Question   string
	Type       string
	Transcript string
}

// indicators mark text that is addressed to the candidate as a question.
var indicators = []string{
	"what", "how", "why", "when", "where", "who", "which", "whose",
	"can you", "could you", "would you", "will you", "should you",
	"do you", "did you", "does", "have you", "has",
	"describe", "tell me", "explain", "share", "talk about",
	"give me", "walk me through", "think of",
}

// fillers are acknowledgments and hesitations; a snapshot made only of
// these is not a question.
var fillers = map[string]bool{
	"um": true, "uh": true, "uhh": true, "umm": true, "hmm": true,
	"mm": true, "mhm": true, "huh": true, "oh": true, "ah": true, "er": true,
	"okay": true, "ok": true, "kay": true, "yeah": true, "yep": true,
	"yes": true, "no": true, "nope": true, "right": true, "sure": true,
	"alright": true, "fine": true, "cool": true, "great": true, "nice": true,
	"good": true, "so": true, "well": true, "like": true, "just": true,
	"you": true, "know": true, "i": true, "see": true, "got": true,
	"it": true, "thanks": true, "thank": true, "bye": true, "hello": true,
	"hi": true, "hey": true,
}

var behavioralPhrases = []string{
	"tell me about yourself", "tell me about a time", "describe a time",
	"describe a situation", "give me an example", "give an example",
	"have you ever", "a time when", "greatest strength", "greatest weakness",
	"your strengths", "your weaknesses", "biggest challenge",
	"most proud of", "led a team", "walk me through your",
}

var situationalPhrases = []string{
	"what would you do", "how would you handle", "how would you deal",
	"how would you respond", "how would you react", "what if", "imagine",
	"suppose", "if you were",
}

var technicalPhrases = []string{
	"design", "implement", "architecture", "algorithm", "complexity",
	"trade-off", "tradeoff", "scale", "database", "sql", "caching", "cache",
	"performance", "latency", "debug", "optimize", "explain how", "how does",
	"api", "concurrency", "data structure",
}

type Detector struct{}

func NewDetector() *Detector { return &Detector{} }

// Detect is a one-shot decision over a frozen snapshot: at most one event
// per call, and a snapshot that is empty or filler-only yields none.
func (d *Detector) Detect(transcript string) (Event, bool) {
	text := strings.TrimSpace(transcript)
	if text == "" || fillerOnly(text) || !likelyQuestion(text) {
		return Event{}, false
	}

	q := extractQuestion(text)
	return Event{
		Question:   q,
		Type:       classify(q),
		Transcript: text,
	}, true
}

// likelyQuestion is a cheap keyword pre-filter: a question mark, or an
// indicator at the start or on a word boundary.
func likelyQuestion(text string) bool {
	if len(text) < 5 {
		return false
	}
	if strings.Contains(text, "?") {
		return true
	}
	lower := strings.ToLower(text)
	padded := " " + lower + " "
	for _, ind := range indicators {
		if strings.HasPrefix(lower, ind) {
			return true
		}
		if strings.Contains(padded, " "+ind+" ") {
			return true
		}
	}
	return false
}

func fillerOnly(text string) bool {
	words := strings.Fields(strings.ToLower(text))
	if len(words) == 0 {
		return true
	}
	for _, w := range words {
		w = strings.Trim(w, ".,!?;:'\"-")
		if w == "" {
			continue
		}
		if !fillers[w] {
			return false
		}
	}
	return true
}

// extractQuestion pulls the question sentence out of a snapshot that may
// start with small talk. The last sentence that reads as a question wins;
// otherwise the whole snapshot is the question.
func extractQuestion(text string) string {
	sentences := splitSentences(text)
	for i := len(sentences) - 1; i >= 0; i-- {
		if likelyQuestion(sentences[i]) && !fillerOnly(sentences[i]) {
			return sentences[i]
		}
	}
	return text
}

func splitSentences(text string) []string {
	var out []string
	start := 0
	for i, r := range text {
		if r == '.' || r == '?' || r == '!' {
			s := strings.TrimSpace(text[start : i+1])
			if s != "" {
				out = append(out, s)
			}
			start = i + 1
		}
	}
	if tail := strings.TrimSpace(text[start:]); tail != "" {
		out = append(out, tail)
	}
	return out
}

func classify(question string) string {
	lower := strings.ToLower(question)
	tokens := tokenize(lower)

	switch {
	case matchesAny(lower, tokens, behavioralPhrases):
		return TypeBehavioral
	case matchesAny(lower, tokens, situationalPhrases):
		return TypeSituational
	case matchesAny(lower, tokens, technicalPhrases):
		return TypeTechnical
	default:
		return TypeGeneral
	}
}

// matchesAny does substring matching for multi-word phrases and whole-token
// matching for single words, so "api" does not light up inside "OpenAI".
func matchesAny(lower string, tokens []string, phrases []string) bool {
	for _, p := range phrases {
		if strings.Contains(p, " ") {
			if strings.Contains(lower, p) {
				return true
			}
			continue
		}
		for _, tok := range tokens {
			if tok == p || tok == p+"s" {
				return true
			}
		}
	}
	return false
}

func tokenize(lower string) []string {
	fields := strings.Fields(lower)
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.Trim(f, ".,!?;:'\"()")
		if f != "" {
			out = append(out, f)
		}
	}
	return out
}

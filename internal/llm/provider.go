// Package llm abstracts text generation across providers so the answer
// pipeline does not care which vendor serves a session.
package llm

import (
	"context"
	"fmt"
	"log"
)

// Strategy values accepted by LLM_STRATEGY.
const (
	StrategyAnthropic = "anthropic"
	StrategyGemini    = "gemini"
	StrategyHybrid    = "hybrid"
)

// Request is one completion call.
type Request struct {
	System    string
	Prompt    string
	MaxTokens int
}

// Provider produces a completion for a request.
type Provider interface {
	Name() string
	Generate(ctx context.Context, req Request) (string, error)
}

// ForStrategy wires providers for the configured strategy. Hybrid runs the
// cheap provider first and falls back to the strong one; unknown values
// default to anthropic.
func ForStrategy(strategy string, anthropic, gemini Provider) Provider {
	switch strategy {
	case StrategyAnthropic:
		return anthropic
	case StrategyGemini:
		return gemini
	case StrategyHybrid:
		return &Hybrid{Primary: gemini, Fallback: anthropic}
	default:
		log.Printf("llm: unknown strategy %q, defaulting to anthropic", strategy)
		return anthropic
	}
}

// Hybrid tries Primary and falls back to Fallback when Primary errors.
// A canceled context is not retried.
type Hybrid struct {
	Primary  Provider
	Fallback Provider
}

func (h *Hybrid) Name() string { return "hybrid" }

func (h *Hybrid) Generate(ctx context.Context, req Request) (string, error) {
	out, err := h.Primary.Generate(ctx, req)
	if err == nil {
		return out, nil
	}
	if ctx.Err() != nil {
		return "", err
	}
	log.Printf("llm: %s failed, falling back to %s: %v", h.Primary.Name(), h.Fallback.Name(), err)
	out, ferr := h.Fallback.Generate(ctx, req)
	if ferr != nil {
		return "", fmt.Errorf("llm: %s: %v; %s: %w", h.Primary.Name(), err, h.Fallback.Name(), ferr)
	}
	return out, nil
}

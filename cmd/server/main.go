package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/interviewmate/copilot/internal/answer"
	"github.com/interviewmate/copilot/internal/config"
	"github.com/interviewmate/copilot/internal/httpserver"
	"github.com/interviewmate/copilot/internal/llm"
	"github.com/interviewmate/copilot/internal/notify"
	"github.com/interviewmate/copilot/internal/profile"
	"github.com/interviewmate/copilot/internal/question"
	"github.com/interviewmate/copilot/internal/recognizer"
	"github.com/interviewmate/copilot/internal/session"
	"github.com/interviewmate/copilot/internal/store"
	"github.com/interviewmate/copilot/internal/ws"
)

func main() {
	// Include sub-second precision in all log timestamps
	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds)

	cfg := config.Load()

	rec := buildRecognizer(cfg)
	detector := question.NewDetector()
	generator := answer.NewGenerator(buildProvider(cfg))

	var sinks session.MultiSink

	if cfg.DatabaseURL != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		st, err := store.New(ctx, cfg.DatabaseURL)
		cancel()
		if err != nil {
			log.Printf("session store disabled: %v", err)
		} else {
			defer st.Close()
			sinks = append(sinks, store.NewRecorder(st))
		}
	}

	if cfg.NATSURL != "" {
		pub, err := notify.NewPublisher(cfg.NATSURL)
		if err != nil {
			log.Printf("lifecycle events disabled: %v", err)
		} else {
			defer pub.Close()
			sinks = append(sinks, pub)
		}
	}

	var profiles session.ProfileFetcher
	if cfg.SupabaseURL != "" && cfg.SupabaseServiceRoleKey != "" {
		profiles = profile.NewService(cfg.SupabaseURL, cfg.SupabaseServiceRoleKey)

		archive, err := profile.NewArchive(cfg.SupabaseURL, cfg.SupabaseServiceRoleKey, cfg.SupabaseBucket)
		if err != nil {
			log.Printf("transcript archive disabled: %v", err)
		} else {
			sinks = append(sinks, archive)
		}
	}

	var sink session.Sink
	if len(sinks) > 0 {
		sink = sinks
	}

	registry := session.NewRegistry()
	factory := func(userID string) *session.Session {
		return session.New(session.Options{
			UserID:     userID,
			Recognizer: rec,
			Detector:   detector,
			Generator:  generator,
			Profiles:   profiles,
			Sink:       sink,
			Config:     session.Config{SampleRate: cfg.SampleRate},
		})
	}

	srv := httpserver.NewServer(httpserver.Options{
		AuthToken: cfg.AuthToken,
		Detector:  detector,
		Generator: generator,
		WS:        ws.NewHandler(cfg.AuthToken, registry, factory),
	})

	server := &http.Server{
		Addr:              cfg.HTTPAddress,
		Handler:           srv.Router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// Start server in background
	serverErrors := make(chan error, 1)
	go func() {
		log.Printf("server listening on %s", cfg.HTTPAddress)
		serverErrors <- server.ListenAndServe()
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	case sig := <-sigChan:
		log.Printf("shutdown signal received: %v", sig)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
		_ = server.Close()
	}
}

// buildRecognizer prefers Deepgram and falls back to AssemblyAI when only
// that key is present.
func buildRecognizer(cfg config.Config) recognizer.Service {
	if cfg.DeepgramAPIKey == "" && cfg.AssemblyAIAPIKey != "" {
		log.Printf("recognizer: using assemblyai")
		return recognizer.NewAssemblyAIClient(cfg.AssemblyAIAPIKey)
	}
	return recognizer.NewDeepgramClient(cfg.DeepgramAPIKey, cfg.DeepgramModel)
}

// buildProvider assembles the LLM stack for the configured strategy. A
// missing Gemini key or a failed Gemini init degrades to Anthropic only.
func buildProvider(cfg config.Config) llm.Provider {
	anthropic := llm.NewAnthropicClient(cfg.AnthropicAPIKey, cfg.AnthropicModel)

	var gemini llm.Provider
	if cfg.GeminiAPIKey != "" {
		g, err := llm.NewGeminiClient(context.Background(), cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			log.Printf("gemini client unavailable: %v", err)
		} else {
			gemini = g
		}
	}

	strategy := cfg.LLMStrategy
	if gemini == nil && strategy != llm.StrategyAnthropic {
		log.Printf("llm: gemini not configured, using anthropic for strategy %q", strategy)
		strategy = llm.StrategyAnthropic
	}
	return llm.ForStrategy(strategy, anthropic, gemini)
}

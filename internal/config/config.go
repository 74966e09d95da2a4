package config

import (
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	HTTPAddress string
	AuthToken   string

	DeepgramAPIKey   string
	DeepgramModel    string
	AssemblyAIAPIKey string

	AnthropicAPIKey string
	AnthropicModel  string
	GeminiAPIKey    string
	GeminiModel     string
	LLMStrategy     string

	SampleRate int

	// Optional integrations; empty disables the component.
	DatabaseURL            string
	NATSURL                string
	SupabaseURL            string
	SupabaseServiceRoleKey string
	SupabaseBucket         string
}

// Load reads environment variables and returns Config with sane defaults.
func Load() Config {
	if err := godotenv.Load(); err != nil {
		log.Printf("No .env file found or error loading it: %v", err)
	}

	cfg := Config{
		HTTPAddress:            getEnv("HTTP_ADDRESS", ":8080"),
		AuthToken:              os.Getenv("AUTH_TOKEN"),
		DeepgramAPIKey:         os.Getenv("DEEPGRAM_API_KEY"),
		DeepgramModel:          getEnv("DEEPGRAM_MODEL", "nova-2"),
		AssemblyAIAPIKey:       os.Getenv("ASSEMBLYAI_API_KEY"),
		AnthropicAPIKey:        os.Getenv("ANTHROPIC_API_KEY"),
		AnthropicModel:         getEnv("ANTHROPIC_MODEL", "claude-sonnet-4-20250514"),
		GeminiAPIKey:           os.Getenv("GEMINI_API_KEY"),
		GeminiModel:            getEnv("GEMINI_MODEL", "gemini-1.5-flash-latest"),
		LLMStrategy:            getEnv("LLM_STRATEGY", "hybrid"),
		SampleRate:             getEnvInt("SAMPLE_RATE", 16000),
		DatabaseURL:            os.Getenv("DATABASE_URL"),
		NATSURL:                os.Getenv("NATS_URL"),
		SupabaseURL:            os.Getenv("SUPABASE_URL"),
		SupabaseServiceRoleKey: os.Getenv("SUPABASE_SERVICE_ROLE_KEY"),
		SupabaseBucket:         getEnv("SUPABASE_BUCKET", "interview-transcripts"),
	}

	if cfg.DeepgramAPIKey == "" && cfg.AssemblyAIAPIKey == "" {
		log.Println("Warning: neither DEEPGRAM_API_KEY nor ASSEMBLYAI_API_KEY set - transcription will not work")
	}
	if cfg.AnthropicAPIKey == "" {
		log.Println("Warning: ANTHROPIC_API_KEY not set - anthropic answers will not work")
	}
	if cfg.GeminiAPIKey == "" {
		log.Println("Warning: GEMINI_API_KEY not set - gemini answers will not work")
	}
	if cfg.AuthToken == "" {
		log.Println("Warning: AUTH_TOKEN not set - endpoints are unauthenticated")
	}

	log.Printf("config: HTTP_ADDRESS=%s LLM_STRATEGY=%s", cfg.HTTPAddress, cfg.LLMStrategy)
	return cfg
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil || n <= 0 {
		log.Printf("Warning: invalid %s=%q, using %d", key, value, defaultValue)
		return defaultValue
	}
	return n
}

package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Defaults for the generation and routing knobs. Every value can be
// overridden through the environment.
const (
	DefaultModel           = "google/gemini-2.5-flash-lite"
	DefaultModelFallbacks  = "z-ai/glm-4.7-flash,qwen/qwen3-next-80b-a3b-instruct,moonshotai/kimi-k2.5"
	DefaultMaxTokens       = 1100
	DefaultTemperature     = 0.85
	DefaultTranscriptTurns = 12
	DefaultTranscriptChars = 900
	DefaultMinThroughput   = 18
	DefaultMaxLatency      = 8
	DefaultUpstreamTimeout = 90 * time.Second
)

// Config is the immutable process configuration, read once at startup
// and passed by injection. Nothing reads the environment after Load.
type Config struct {
	Port        string
	Environment string
	LogLevel    slog.Level

	APIKey          string
	Model           string
	ModelFallbacks  []string
	RepairModel     string
	MaxTokens       int
	Temperature     float64
	TranscriptTurns int
	TranscriptChars int

	ProviderSort          string
	ProviderPartition     string
	ProviderMinThroughput float64
	ProviderMaxLatency    float64

	SiteURL  string
	SiteName string

	UpstreamTimeout time.Duration
}

// Load builds the configuration from the environment with documented
// defaults. It never fails; a missing API key is surfaced per-request so
// the health endpoint can still report it.
func Load() *Config {
	model := getEnv("OPENROUTER_MODEL", DefaultModel)
	return &Config{
		Port:        getEnv("PORT", "8787"),
		Environment: getEnv("ENVIRONMENT", "development"),
		LogLevel:    parseLogLevel(getEnv("LOG_LEVEL", "info")),

		APIKey:          getEnv("OPENROUTER_API_KEY", ""),
		Model:           model,
		ModelFallbacks:  splitList(getEnv("OPENROUTER_MODEL_FALLBACKS", DefaultModelFallbacks)),
		RepairModel:     getEnv("OPENROUTER_REPAIR_MODEL", model),
		MaxTokens:       getEnvInt("OPENROUTER_MAX_TOKENS", DefaultMaxTokens),
		Temperature:     getEnvFloat("OPENROUTER_TEMPERATURE", DefaultTemperature),
		TranscriptTurns: getEnvInt("OPENROUTER_TRANSCRIPT_TURNS", DefaultTranscriptTurns),
		TranscriptChars: getEnvInt("OPENROUTER_TRANSCRIPT_CHARS", DefaultTranscriptChars),

		ProviderSort:          getEnv("OPENROUTER_PROVIDER_SORT", "throughput"),
		ProviderPartition:     getEnv("OPENROUTER_PROVIDER_PARTITION", "none"),
		ProviderMinThroughput: getEnvFloat("OPENROUTER_PROVIDER_MIN_THROUGHPUT", DefaultMinThroughput),
		ProviderMaxLatency:    getEnvFloat("OPENROUTER_PROVIDER_MAX_LATENCY", DefaultMaxLatency),

		SiteURL:  getEnv("OPENROUTER_SITE_URL", "http://localhost:5173"),
		SiteName: getEnv("OPENROUTER_SITE_NAME", "Personal Website"),

		UpstreamTimeout: time.Duration(getEnvInt("OPENROUTER_TIMEOUT_SECONDS", int(DefaultUpstreamTimeout/time.Second))) * time.Second,
	}
}

// ModelCandidates returns the ordered, de-duplicated model list with the
// primary model first.
func (c *Config) ModelCandidates() []string {
	seen := make(map[string]bool)
	candidates := make([]string, 0, 1+len(c.ModelFallbacks))
	for _, model := range append([]string{c.Model}, c.ModelFallbacks...) {
		if model == "" || seen[model] {
			continue
		}
		seen[model] = true
		candidates = append(candidates, model)
	}
	return candidates
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func splitList(value string) []string {
	var items []string
	for _, item := range strings.Split(value, ",") {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			items = append(items, trimmed)
		}
	}
	return items
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

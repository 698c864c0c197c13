package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kDuration
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	secret  bool
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

// account is the secret store account name for a secret key.
func (s keySpec) account() string {
	return s.key[strings.LastIndex(s.key, ".")+1:]
}

var specs = []keySpec{
	{
		key: "server.port", typ: kInt, env: "PODIUM_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "storage.data_dir", typ: kString, env: "PODIUM_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "log.level", typ: kString, env: "PODIUM_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
	{
		key: "generation.provider", typ: kString, env: "PODIUM_GENERATION_PROVIDER",
		apply:   func(cfg *Config, v any) { cfg.Generation.Provider = strings.ToLower(v.(string)) },
		extract: func(cfg Config) any { return cfg.Generation.Provider },
	},
	{
		key: "generation.model", typ: kString, env: "PODIUM_GENERATION_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Generation.Model = v.(string) },
		extract: func(cfg Config) any { return cfg.Generation.Model },
	},
	{
		key: "generation.timeout", typ: kDuration, env: "PODIUM_GENERATION_TIMEOUT",
		apply:   func(cfg *Config, v any) { cfg.Generation.Timeout = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Generation.Timeout },
	},
	{
		key: "generation.max_tokens", typ: kInt, env: "PODIUM_GENERATION_MAX_TOKENS",
		apply:   func(cfg *Config, v any) { cfg.Generation.MaxTokens = v.(int) },
		extract: func(cfg Config) any { return cfg.Generation.MaxTokens },
	},
	{
		key: "generation.openrouter_api_key", typ: kString, env: "PODIUM_OPENROUTER_API_KEY",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Generation.OpenRouterAPIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.Generation.OpenRouterAPIKey },
	},
	{
		key: "generation.gemini_api_key", typ: kString, env: "PODIUM_GEMINI_API_KEY",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Generation.GeminiAPIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.Generation.GeminiAPIKey },
	},
	{
		key: "processing.slot_interval", typ: kDuration, env: "PODIUM_PROCESSING_SLOT_INTERVAL",
		apply:   func(cfg *Config, v any) { cfg.Processing.SlotInterval = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Processing.SlotInterval },
	},
	{
		key: "processing.poll_interval", typ: kDuration, env: "PODIUM_PROCESSING_POLL_INTERVAL",
		apply:   func(cfg *Config, v any) { cfg.Processing.PollInterval = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Processing.PollInterval },
	},
	{
		key: "processing.retry_backoff", typ: kDuration, env: "PODIUM_PROCESSING_RETRY_BACKOFF",
		apply:   func(cfg *Config, v any) { cfg.Processing.RetryBackoff = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Processing.RetryBackoff },
	},
	{
		key: "processing.workers", typ: kInt, env: "PODIUM_PROCESSING_WORKERS",
		apply:   func(cfg *Config, v any) { cfg.Processing.Workers = v.(int) },
		extract: func(cfg Config) any { return cfg.Processing.Workers },
	},
	{
		key: "processing.recovery_schedule", typ: kString, env: "PODIUM_PROCESSING_RECOVERY_SCHEDULE",
		apply:   func(cfg *Config, v any) { cfg.Processing.RecoverySchedule = v.(string) },
		extract: func(cfg Config) any { return cfg.Processing.RecoverySchedule },
	},
	{
		key: "ratelimit.max_calls", typ: kInt, env: "PODIUM_RATELIMIT_MAX_CALLS",
		apply:   func(cfg *Config, v any) { cfg.RateLimit.MaxCalls = v.(int) },
		extract: func(cfg Config) any { return cfg.RateLimit.MaxCalls },
	},
	{
		key: "ratelimit.window", typ: kDuration, env: "PODIUM_RATELIMIT_WINDOW",
		apply:   func(cfg *Config, v any) { cfg.RateLimit.Window = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.RateLimit.Window },
	},
	{
		key: "feedback.max_content", typ: kInt, env: "PODIUM_FEEDBACK_MAX_CONTENT",
		apply:   func(cfg *Config, v any) { cfg.Feedback.MaxContent = v.(int) },
		extract: func(cfg Config) any { return cfg.Feedback.MaxContent },
	},
	{
		key: "feedback.max_participant", typ: kInt, env: "PODIUM_FEEDBACK_MAX_PARTICIPANT",
		apply:   func(cfg *Config, v any) { cfg.Feedback.MaxParticipant = v.(int) },
		extract: func(cfg Config) any { return cfg.Feedback.MaxParticipant },
	},
}

// parse converts a raw string for a non-int key.
func (s keySpec) parse(raw string) (any, error) {
	switch s.typ {
	case kDuration:
		d, err := time.ParseDuration(raw)
		if err != nil {
			return nil, err
		}
		if d <= 0 {
			return nil, fmt.Errorf("duration must be positive")
		}
		return d, nil
	case kInt:
		return strconv.Atoi(raw)
	default:
		return raw, nil
	}
}

func applyBackend(cfg *Config, b Backend) error {
	for _, s := range specs {
		if s.secret {
			continue
		}
		v, ok, err := b.Lookup(s.key)
		if err != nil {
			return fmt.Errorf("reading %s: %w", s.key, err)
		}
		if !ok || v == "" {
			continue
		}
		parsed, err := s.parse(v)
		if err != nil {
			fmt.Fprintf(os.Stderr, "[WARN] could not parse config key %s=%q: %v. Using default value.\n", s.key, v, err)
			continue
		}
		s.apply(cfg, parsed)
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		if s.env == "" {
			continue
		}
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		v, err := s.parse(raw)
		if err != nil {
			fmt.Fprintf(os.Stderr, "[WARN] could not parse env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			continue
		}
		s.apply(cfg, v)
	}
}

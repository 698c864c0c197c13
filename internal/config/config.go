package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
)

const (
	secretService   = "podium"
	apiTokenAccount = "api_token"
)

type Config struct {
	Server     ServerConfig
	Storage    StorageConfig
	Log        LogConfig
	Generation GenerationConfig
	Processing ProcessingConfig
	RateLimit  RateLimitConfig
	Feedback   FeedbackConfig
}

type ServerConfig struct {
	Port int
}

type StorageConfig struct {
	DataDir string
}

type LogConfig struct {
	Level string
}

type GenerationConfig struct {
	Provider         string
	Model            string
	Timeout          time.Duration
	MaxTokens        int
	OpenRouterAPIKey string
	GeminiAPIKey     string
}

// APIKey returns the key of the selected provider.
func (g GenerationConfig) APIKey() string {
	if g.Provider == "gemini" {
		return g.GeminiAPIKey
	}
	return g.OpenRouterAPIKey
}

type ProcessingConfig struct {
	SlotInterval     time.Duration
	PollInterval     time.Duration
	RetryBackoff     time.Duration
	Workers          int
	RecoverySchedule string
}

type RateLimitConfig struct {
	MaxCalls int
	Window   time.Duration
}

type FeedbackConfig struct {
	MaxContent     int
	MaxParticipant int
}

func defaults() Config {
	return Config{
		Server:  ServerConfig{Port: 4000},
		Storage: StorageConfig{DataDir: defaultDataDir()},
		Log:     LogConfig{Level: "info"},
		Generation: GenerationConfig{
			Provider:  "openrouter",
			Timeout:   30 * time.Second,
			MaxTokens: 1500,
		},
		Processing: ProcessingConfig{
			SlotInterval:     10 * time.Second,
			PollInterval:     time.Second,
			RetryBackoff:     10 * time.Second,
			Workers:          1,
			RecoverySchedule: "@every 5m",
		},
		RateLimit: RateLimitConfig{MaxCalls: 60, Window: time.Hour},
		Feedback:  FeedbackConfig{MaxContent: 500, MaxParticipant: 100},
	}
}

// Load reads configuration from the platform-native backend, a .env file in
// the working directory, environment variables, and the platform secret store.
//
// On macOS the backend is UserDefaults (domain: com.podium.app) and secrets
// fall back to macOS Keychain.
// Elsewhere the backend is $XDG_CONFIG_HOME/podium/config.yaml and secrets
// fall back to $XDG_DATA_HOME/podium/secrets.yaml.
//
// Environment variables (PODIUM_*) override backend values on all platforms.
// Values from .env never override variables already set in the environment.
func Load() (Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return Config{}, err
	}
	return loadWith(newPlatformBackend(), secretStore{})
}

func loadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("loading %s: %w", path, err)
	}
	return nil
}

// keychain abstracts secret store access for testing.
type keychain interface {
	Get(service, account string) (string, error)
}

func loadWith(b Backend, kc keychain) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	// Secrets not given through the environment come from the secret store.
	for _, s := range specs {
		if !s.secret || s.extract(cfg).(string) != "" {
			continue
		}
		if v, err := kc.Get(secretService, s.account()); err == nil && v != "" {
			s.apply(&cfg, v)
		}
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch c.Generation.Provider {
	case "openrouter", "gemini":
	default:
		return fmt.Errorf("invalid config: generation.provider must be openrouter or gemini, got %q", c.Generation.Provider)
	}
	if c.Processing.SlotInterval <= 0 {
		return fmt.Errorf("invalid config: processing.slot_interval must be positive")
	}
	if c.Processing.Workers < 1 {
		return fmt.Errorf("invalid config: processing.workers must be at least 1")
	}
	if c.RateLimit.MaxCalls < 1 || c.RateLimit.Window <= 0 {
		return fmt.Errorf("invalid config: ratelimit.max_calls and ratelimit.window must be positive")
	}
	return nil
}

// RequireAPIKey returns an error naming every place the key of the selected
// provider can be set. Commands that do not generate content skip this check.
func (c Config) RequireAPIKey() error {
	if c.Generation.APIKey() != "" {
		return nil
	}
	env := "PODIUM_OPENROUTER_API_KEY"
	account := "openrouter_api_key"
	if c.Generation.Provider == "gemini" {
		env = "PODIUM_GEMINI_API_KEY"
		account = "gemini_api_key"
	}
	return fmt.Errorf("missing required config: %s API key. Set it via environment variable %s, a .env file%s",
		c.Generation.Provider, env, apiKeyHint(account))
}

// APIToken returns the bearer token guarding the management API, creating
// and storing one on first use.
func APIToken() (string, error) {
	return apiTokenWith(secretStore{})
}

type secretReadWriter interface {
	keychain
	Set(service, account, value string) error
}

func apiTokenWith(s secretReadWriter) (string, error) {
	tok, err := s.Get(secretService, apiTokenAccount)
	if err == nil && tok != "" {
		return tok, nil
	}
	if err != nil && !errors.Is(err, errSecretNotFound) {
		return "", fmt.Errorf("reading api token: %w", err)
	}
	tok = strings.ReplaceAll(uuid.New().String(), "-", "")
	if err := s.Set(secretService, apiTokenAccount, tok); err != nil {
		return "", fmt.Errorf("storing api token: %w", err)
	}
	return tok, nil
}

var errSecretNotFound = errors.New("secret not found")

// secretStore reads and writes the platform secret store.
type secretStore struct{}

func (secretStore) Get(service, account string) (string, error) {
	return keychainGet(service, account)
}

func (secretStore) Set(service, account, value string) error {
	return keychainSet(service, account, value)
}

//go:build !darwin

package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestYAMLBackend_RoundTrip(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "podium", "config.yaml")
	b := openYAMLBackend(path)

	if err := setKeyWith(b, "server.port", "4100"); err != nil {
		t.Fatal(err)
	}
	if err := setKeyWith(b, "processing.slot_interval", "5s"); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("config file not written: %v", err)
	}
	if !strings.Contains(string(data), "processing:\n    slot_interval: 5s") {
		t.Errorf("config file not nested:\n%s", data)
	}

	cfg, err := loadWith(openYAMLBackend(path), &mockKeychain{})
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Port != 4100 || cfg.Processing.SlotInterval.String() != "5s" {
		t.Errorf("reloaded cfg = %+v", cfg)
	}

	if err := unsetKeyWith(b, "server.port"); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := openYAMLBackend(path).Lookup("server.port"); ok {
		t.Error("server.port survived unset")
	}
}

func TestYAMLBackend_HandWritten(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	os.WriteFile(path, []byte("server:\n  port: 4200\nratelimit:\n  max_calls: 5\n  window: 10m\n"), 0o600)

	clearEnv(t)
	cfg, err := loadWith(openYAMLBackend(path), &mockKeychain{})
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Port != 4200 || cfg.RateLimit.MaxCalls != 5 || cfg.RateLimit.Window.String() != "10m0s" {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestYAMLBackend_Malformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	os.WriteFile(path, []byte("server: [unclosed"), 0o600)

	b := openYAMLBackend(path)
	if len(b.values) != 0 {
		t.Errorf("values = %v, want empty", b.values)
	}
}

func TestSecretsFile(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", t.TempDir())

	if _, err := keychainGet(secretService, "api_token"); !errors.Is(err, errSecretNotFound) {
		t.Fatalf("err = %v, want errSecretNotFound", err)
	}
	if err := keychainSet(secretService, "api_token", "abc"); err != nil {
		t.Fatal(err)
	}
	if err := keychainSet(secretService, "gemini_api_key", "g-key"); err != nil {
		t.Fatal(err)
	}

	v, err := keychainGet(secretService, "api_token")
	if err != nil || v != "abc" {
		t.Errorf("api_token = %q, %v", v, err)
	}

	info, err := os.Stat(secretsFilePath())
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("secrets file mode = %v, want 0600", info.Mode().Perm())
	}

	tok, err := APIToken()
	if err != nil || tok != "abc" {
		t.Errorf("APIToken = %q, %v", tok, err)
	}
}

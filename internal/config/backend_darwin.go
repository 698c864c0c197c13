//go:build darwin

package config

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

const defaultsDomain = "com.podium.app"

func defaultDataDir() string {
	if homeDir, err := os.UserHomeDir(); err == nil {
		return filepath.Join(homeDir, "Library", "Application Support", "podium")
	}
	return "podium-data"
}

func apiKeyHint(account string) string {
	return fmt.Sprintf(", or the macOS Keychain (service: %s, account: %s)", secretService, account)
}

// defaultsBackend stores settings in UserDefaults through the defaults tool.
// Every value is written as a string; the key table parses it on load.
type defaultsBackend struct {
	domain string
	run    func(args ...string) ([]byte, error)
}

func newPlatformBackend() Backend {
	return &defaultsBackend{
		domain: defaultsDomain,
		run: func(args ...string) ([]byte, error) {
			return exec.Command("defaults", args...).CombinedOutput()
		},
	}
}

func (b *defaultsBackend) Lookup(key string) (string, bool, error) {
	out, err := b.run("read", b.domain, key)
	val := strings.TrimSpace(string(out))
	if err != nil {
		// defaults exits 1 when the domain or key does not exist.
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() == 1 {
			return "", false, nil
		}
		return "", false, fmt.Errorf("reading default %s: %w, output: %s", key, err, val)
	}
	return val, true, nil
}

func (b *defaultsBackend) Store(key, val string) error {
	if out, err := b.run("write", b.domain, key, "-string", val); err != nil {
		return fmt.Errorf("writing default %s: %w, output: %s", key, err, strings.TrimSpace(string(out)))
	}
	return nil
}

func (b *defaultsBackend) Remove(key string) error {
	if _, ok, err := b.Lookup(key); err != nil || !ok {
		return err
	}
	if out, err := b.run("delete", b.domain, key); err != nil {
		return fmt.Errorf("deleting default %s: %w, output: %s", key, err, strings.TrimSpace(string(out)))
	}
	return nil
}

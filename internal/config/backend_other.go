//go:build !darwin

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

func defaultDataDir() string {
	return filepath.Join(xdgDir("XDG_DATA_HOME", ".local", "share"), "podium")
}

// xdgDir returns the XDG base directory named by env, falling back to the
// given path under the home directory.
func xdgDir(env string, fallback ...string) string {
	if dir := os.Getenv(env); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(append([]string{home}, fallback...)...)
}

func apiKeyHint(account string) string {
	return fmt.Sprintf(", or %s under %s.%s", secretsFilePath(), secretService, account)
}

// yamlBackend keeps settings in a nested YAML document:
//
//	server:
//	  port: 4000
//	processing:
//	  slot_interval: 10s
type yamlBackend struct {
	path   string
	values map[string]string
}

func newPlatformBackend() Backend {
	return openYAMLBackend(filepath.Join(xdgDir("XDG_CONFIG_HOME", ".config"), "podium", "config.yaml"))
}

func openYAMLBackend(path string) *yamlBackend {
	b := &yamlBackend{path: path, values: map[string]string{}}
	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "[WARN] could not read config file %s: %v. Using default values.\n", path, err)
		}
		return b
	}
	var doc map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		fmt.Fprintf(os.Stderr, "[WARN] could not parse config file %s: %v. Using default values.\n", path, err)
		return b
	}
	flatten("", doc, b.values)
	return b
}

func (b *yamlBackend) Lookup(key string) (string, bool, error) {
	v, ok := b.values[key]
	return v, ok, nil
}

func (b *yamlBackend) Store(key, val string) error {
	b.values[key] = val
	return b.save()
}

func (b *yamlBackend) Remove(key string) error {
	if _, ok := b.values[key]; !ok {
		return nil
	}
	delete(b.values, key)
	return b.save()
}

func (b *yamlBackend) save() error {
	if err := os.MkdirAll(filepath.Dir(b.path), 0o700); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}
	data, err := yaml.Marshal(unflatten(b.values))
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	return os.WriteFile(b.path, data, 0o600)
}

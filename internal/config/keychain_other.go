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

func secretsFilePath() string {
	return filepath.Join(xdgDir("XDG_DATA_HOME", ".local", "share"), "podium", "secrets.yaml")
}

// secretsFile is a user-only YAML file of service -> account -> value.
type secretsFile map[string]map[string]string

func readSecretsFile(path string) (secretsFile, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return secretsFile{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading secrets file: %w", err)
	}
	var s secretsFile
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parsing secrets file %s: %w", path, err)
	}
	if s == nil {
		s = secretsFile{}
	}
	return s, nil
}

func keychainGet(service, account string) (string, error) {
	s, err := readSecretsFile(secretsFilePath())
	if err != nil {
		return "", err
	}
	val, ok := s[service][account]
	if !ok {
		return "", errSecretNotFound
	}
	return val, nil
}

func keychainSet(service, account, value string) error {
	p := secretsFilePath()
	s, err := readSecretsFile(p)
	if err != nil {
		return err
	}
	if s[service] == nil {
		s[service] = map[string]string{}
	}
	s[service][account] = value

	if err := os.MkdirAll(filepath.Dir(p), 0o700); err != nil {
		return fmt.Errorf("creating secrets dir: %w", err)
	}
	out, err := yaml.Marshal(s)
	if err != nil {
		return err
	}
	return os.WriteFile(p, out, 0o600)
}

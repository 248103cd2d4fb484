// Copyright 2024-2026 Aiku AI

package relay

import (
	"errors"
	"fmt"
	iofs "io/fs"
	"os"
	"path/filepath"

	up "go.mau.fi/util/configupgrade"
	"gopkg.in/yaml.v3"
)

// Environment variables that override secrets from the config file.
const (
	EnvRemoteToken    = "GAMERELAY_REMOTE_TOKEN"
	EnvRemotePassword = "GAMERELAY_REMOTE_PASSWORD"
	EnvGameLinkSecret = "GAMERELAY_GAMELINK_SECRET"
)

// ConfigStore loads and persists the relay configuration.
type ConfigStore interface {
	Load() (*Config, error)
	Save(cfg *Config) error
}

// FileStore keeps the configuration in a single YAML file.
type FileStore struct {
	Path string
}

var _ ConfigStore = (*FileStore)(nil)

// envSecrets remembers the file values of fields replaced from the
// environment so that Save never writes an environment secret to disk.
type envSecrets struct {
	token, password, gamelinkSecret *string
}

// Load reads the file, merges it onto the embedded example and applies
// environment overrides. A missing file is created from the example.
func (fs *FileStore) Load() (*Config, error) {
	if _, err := os.Stat(fs.Path); errors.Is(err, iofs.ErrNotExist) {
		if err = writeFileAtomic(fs.Path, []byte(ExampleConfig)); err != nil {
			return nil, fmt.Errorf("failed to write example config: %w", err)
		}
	}
	merged, _, err := up.Do(fs.Path, false, Upgrader())
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	cfg, err := ParseConfig(merged)
	if err != nil {
		return nil, err
	}
	cfg.applyEnv(os.LookupEnv)
	if err = cfg.PostProcess(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the configuration back to the file.
func (fs *FileStore) Save(cfg *Config) error {
	out := *cfg
	if cfg.env.token != nil {
		out.Remote.Token = *cfg.env.token
	}
	if cfg.env.password != nil {
		out.Remote.Password = *cfg.env.password
	}
	if cfg.env.gamelinkSecret != nil {
		out.GameLink.Secret = *cfg.env.gamelinkSecret
	}
	data, err := yaml.Marshal(&out)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err = writeFileAtomic(fs.Path, data); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}
	return nil
}

// ParseConfig decodes YAML without merging defaults or post-processing.
func ParseConfig(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) {
	override := func(key string, field *string) *string {
		val, ok := lookup(key)
		if !ok || val == "" {
			return nil
		}
		orig := *field
		*field = val
		return &orig
	}
	c.env.token = override(EnvRemoteToken, &c.Remote.Token)
	c.env.password = override(EnvRemotePassword, &c.Remote.Password)
	c.env.gamelinkSecret = override(EnvGameLinkSecret, &c.GameLink.Secret)
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err = tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err = tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// Package config loads the runtime's configuration from a YAML file with
// environment variable overrides, the way Howard-nolan-llmrouter's
// internal/config does for its gateway.
package config

import (
	"fmt"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// envPrefix is the prefix env.Provider matches; AGENTKIT_STORAGE_PATH
// overrides storage.path. Every underscore after the prefix becomes a key
// separator, so keys whose own name contains an underscore (api_key,
// base_url, ...) cannot be overridden from the environment.
const envPrefix = "AGENTKIT_"

// Config is the top-level runtime configuration.
type Config struct {
	Storage    StorageConfig             `koanf:"storage"`
	Providers  map[string]ProviderConfig `koanf:"providers"`
	CloudDrive map[string]OAuth2Config   `koanf:"clouddrive"`
}

// StorageConfig holds the SQLite database location.
type StorageConfig struct {
	Path string `koanf:"path"`
}

// ProviderConfig holds one LLM provider's connection settings.
type ProviderConfig struct {
	APIKey  string `koanf:"api_key"`
	BaseURL string `koanf:"base_url"`
}

// OAuth2Config holds one cloud-drive backend's OAuth2 client settings.
type OAuth2Config struct {
	ClientID     string   `koanf:"client_id"`
	ClientSecret string   `koanf:"client_secret"`
	RedirectAddr string   `koanf:"redirect_addr"`
	AuthURL      string   `koanf:"auth_url"`
	TokenURL     string   `koanf:"token_url"`
	Scopes       []string `koanf:"scopes"`
}

// Load reads configuration from the YAML file at path, then layers
// AGENTKIT_-prefixed environment variables on top, and returns a fully
// populated Config.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("config: loading file: %w", err)
	}

	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		return strings.ReplaceAll(
			strings.ToLower(strings.TrimPrefix(s, envPrefix)),
			"_", ".",
		)
	}), nil); err != nil {
		return nil, fmt.Errorf("config: loading env vars: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshaling: %w", err)
	}

	if cfg.Storage.Path == "" {
		cfg.Storage.Path = "agentkit.db"
	}

	return &cfg, nil
}

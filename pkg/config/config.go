package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	Server  ServerConfig  `json:"server"`
	Data    DataConfig    `json:"data"`
	Backend BackendConfig `json:"backend"`
	Reply   ReplyConfig   `json:"reply"`
	Session SessionConfig `json:"session"`
}

type ServerConfig struct {
	Host string `env:"WABOT_SERVER_HOST" json:"host"`
	Port int    `env:"WABOT_SERVER_PORT" json:"port"`
}

type DataConfig struct {
	// Dir holds one credential database per tenant.
	Dir string `env:"WABOT_DATA_DIR" json:"dir"`
}

type BackendConfig struct {
	BaseURL              string `env:"WABOT_BACKEND_BASE_URL"               json:"base_url"`
	APIKey               string `env:"WABOT_BACKEND_API_KEY"                json:"api_key"`
	StoreTimeoutSeconds  int    `env:"WABOT_BACKEND_STORE_TIMEOUT_SECONDS"  json:"store_timeout_seconds"`
	PolicyTimeoutSeconds int    `env:"WABOT_BACKEND_POLICY_TIMEOUT_SECONDS" json:"policy_timeout_seconds"`
	ReplyTimeoutSeconds  int    `env:"WABOT_BACKEND_REPLY_TIMEOUT_SECONDS"  json:"reply_timeout_seconds"`
}

// ReplyConfig selects where generated replies come from: the business
// backend ("backend") or the Anthropic API directly ("anthropic").
type ReplyConfig struct {
	Provider  string          `env:"WABOT_REPLY_PROVIDER" json:"provider"`
	Anthropic AnthropicConfig `json:"anthropic,omitzero"`
}

type AnthropicConfig struct {
	APIKey       string `env:"WABOT_REPLY_ANTHROPIC_API_KEY"  json:"api_key"`
	APIBase      string `env:"WABOT_REPLY_ANTHROPIC_API_BASE" json:"api_base"`
	Model        string `env:"WABOT_REPLY_ANTHROPIC_MODEL"    json:"model"`
	SystemPrompt string `env:"WABOT_REPLY_ANTHROPIC_SYSTEM"   json:"system_prompt,omitempty"`
}

type SessionConfig struct {
	ReconnectDelaySeconds int `env:"WABOT_SESSION_RECONNECT_DELAY_SECONDS" json:"reconnect_delay_seconds"`
}

func DefaultConfig() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: 8090,
		},
		Data: DataConfig{
			Dir: filepath.Join(home, ".wabot", "sessions"),
		},
		Backend: BackendConfig{
			StoreTimeoutSeconds:  10,
			PolicyTimeoutSeconds: 10,
			ReplyTimeoutSeconds:  30,
		},
		Reply: ReplyConfig{
			Provider: "backend",
			Anthropic: AnthropicConfig{
				Model: "claude-haiku-4-5",
			},
		},
		Session: SessionConfig{
			ReconnectDelaySeconds: 3,
		},
	}
}

func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// Env vars alone are a valid configuration.
			if err := env.Parse(cfg); err != nil {
				return nil, err
			}
			return cfg, cfg.validate()
		}
		return nil, err
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	return cfg, cfg.validate()
}

func SaveConfig(path string, cfg *Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	return os.WriteFile(path, data, 0o600)
}

func (c *Config) validate() error {
	switch c.Reply.Provider {
	case "", "backend", "anthropic":
	default:
		return errors.New("reply.provider must be \"backend\" or \"anthropic\"")
	}
	if c.Session.ReconnectDelaySeconds <= 0 {
		c.Session.ReconnectDelaySeconds = 3
	}
	return nil
}

func (c *Config) ReconnectDelay() time.Duration {
	return time.Duration(c.Session.ReconnectDelaySeconds) * time.Second
}

func (c *Config) StoreTimeout() time.Duration {
	return secondsOr(c.Backend.StoreTimeoutSeconds, 10*time.Second)
}

func (c *Config) PolicyTimeout() time.Duration {
	return secondsOr(c.Backend.PolicyTimeoutSeconds, 10*time.Second)
}

func (c *Config) ReplyTimeout() time.Duration {
	return secondsOr(c.Backend.ReplyTimeoutSeconds, 30*time.Second)
}

func secondsOr(s int, fallback time.Duration) time.Duration {
	if s <= 0 {
		return fallback
	}
	return time.Duration(s) * time.Second
}

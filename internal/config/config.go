// Package config loads the console configuration. Defaults are applied
// first and a config file, when present, overrides them. The file
// format follows its extension: YAML (.yaml, .yml), TOML (.toml) or
// JSON with comments (.json, .jsonc).
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	json "github.com/goccy/go-json"
	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// DefaultPath is the config file read when none is given.
const DefaultPath = "phonemulator.yaml"

type Config struct {
	Backend BackendConfig `yaml:"backend" toml:"backend" json:"backend"`
	Push    PushConfig    `yaml:"push" toml:"push" json:"push"`
	Log     LogConfig     `yaml:"log" toml:"log" json:"log"`
	Mock    MockConfig    `yaml:"mock" toml:"mock" json:"mock"`
}

type BackendConfig struct {
	BaseURL string `yaml:"base_url" toml:"base_url" json:"base_url"`
	// WSURL defaults to BaseURL with a ws/wss scheme and /ws/logs path.
	WSURL          string   `yaml:"ws_url" toml:"ws_url" json:"ws_url"`
	RequestTimeout Duration `yaml:"request_timeout" toml:"request_timeout" json:"request_timeout"`
}

type PushConfig struct {
	ReconnectDelay Duration `yaml:"reconnect_delay" toml:"reconnect_delay" json:"reconnect_delay"`
	PingInterval   Duration `yaml:"ping_interval" toml:"ping_interval" json:"ping_interval"`
	PongTimeout    Duration `yaml:"pong_timeout" toml:"pong_timeout" json:"pong_timeout"`
}

type LogConfig struct {
	MaxLines int    `yaml:"max_lines" toml:"max_lines" json:"max_lines"`
	File     string `yaml:"file" toml:"file" json:"file"`
}

// MockConfig is read by phonemulator-mock only.
type MockConfig struct {
	Listen    string   `yaml:"listen" toml:"listen" json:"listen"`
	OllamaURL string   `yaml:"ollama_url" toml:"ollama_url" json:"ollama_url"`
	Model     string   `yaml:"model" toml:"model" json:"model"`
	Timeout   Duration `yaml:"timeout" toml:"timeout" json:"timeout"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Backend: BackendConfig{
			BaseURL:        "http://localhost:8000",
			RequestTimeout: Duration(60 * time.Second),
		},
		Push: PushConfig{
			ReconnectDelay: Duration(5 * time.Second),
			PingInterval:   Duration(30 * time.Second),
			PongTimeout:    Duration(60 * time.Second),
		},
		Log: LogConfig{
			MaxLines: 500,
			File:     "phonemulator.log",
		},
		Mock: MockConfig{
			Listen:  "127.0.0.1:8000",
			Model:   "llama2",
			Timeout: Duration(60 * time.Second),
		},
	}
}

// Load reads path over the defaults and validates the result. A missing
// file is reported with an error wrapping fs.ErrNotExist.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := Default()
	if err := decode(path, data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

func decode(path string, data []byte, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		_, err := toml.Decode(string(data), cfg)
		return err
	case ".json", ".jsonc":
		return json.Unmarshal(jsonc.ToJSON(data), cfg)
	default:
		return yaml.Unmarshal(data, cfg)
	}
}

// Normalize fills values derived from others. Call it after applying
// overrides.
func (c *Config) Normalize() {
	c.Backend.BaseURL = strings.TrimRight(c.Backend.BaseURL, "/")
	if c.Backend.WSURL == "" {
		c.Backend.WSURL = DeriveWSURL(c.Backend.BaseURL)
	}
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if err := checkURL("backend.base_url", c.Backend.BaseURL, "http", "https"); err != nil {
		return err
	}
	if err := checkURL("backend.ws_url", c.Backend.WSURL, "ws", "wss"); err != nil {
		return err
	}
	for name, d := range map[string]Duration{
		"backend.request_timeout": c.Backend.RequestTimeout,
		"push.reconnect_delay":    c.Push.ReconnectDelay,
		"push.ping_interval":      c.Push.PingInterval,
		"push.pong_timeout":       c.Push.PongTimeout,
	} {
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", name, d)
		}
	}
	if c.Log.MaxLines <= 0 {
		return fmt.Errorf("log.max_lines must be positive, got %d", c.Log.MaxLines)
	}
	return nil
}

// Validate reports the first invalid mock server setting.
func (m MockConfig) Validate() error {
	if m.Listen == "" {
		return fmt.Errorf("mock.listen is required")
	}
	if m.OllamaURL != "" {
		if err := checkURL("mock.ollama_url", m.OllamaURL, "http", "https"); err != nil {
			return err
		}
	}
	if m.Timeout <= 0 {
		return fmt.Errorf("mock.timeout must be positive, got %s", m.Timeout)
	}
	return nil
}

func checkURL(name, raw string, schemes ...string) error {
	if raw == "" {
		return fmt.Errorf("%s is required", name)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	for _, s := range schemes {
		if u.Scheme == s {
			if u.Host == "" {
				return fmt.Errorf("%s: missing host in %q", name, raw)
			}
			return nil
		}
	}
	return fmt.Errorf("%s: scheme must be one of %s, got %q", name, strings.Join(schemes, ", "), u.Scheme)
}

// DeriveWSURL converts http://host:port → ws://host:port/ws/logs.
func DeriveWSURL(baseURL string) string {
	u, err := url.Parse(baseURL)
	if err != nil || u.Host == "" {
		return "ws://localhost:8000/ws/logs"
	}
	scheme := "ws"
	if u.Scheme == "https" {
		scheme = "wss"
	}
	return fmt.Sprintf("%s://%s/ws/logs", scheme, u.Host)
}

// Duration is a time.Duration written as a Go duration string ("5s").
type Duration time.Duration

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(b)))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

func (d *Duration) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind != yaml.ScalarNode {
		return errors.New("duration must be a scalar")
	}
	return d.UnmarshalText([]byte(n.Value))
}

package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadYAML(t *testing.T) {
	path := writeFile(t, "phonemulator.yaml", `
backend:
  base_url: "http://10.0.0.5:9000/"
  request_timeout: 15s
push:
  reconnect_delay: 2s
log:
  max_lines: 50
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Backend.BaseURL != "http://10.0.0.5:9000" {
		t.Errorf("Backend.BaseURL = %q", cfg.Backend.BaseURL)
	}
	if cfg.Backend.WSURL != "ws://10.0.0.5:9000/ws/logs" {
		t.Errorf("Backend.WSURL = %q, want derived from base_url", cfg.Backend.WSURL)
	}
	if cfg.Backend.RequestTimeout.Std() != 15*time.Second {
		t.Errorf("RequestTimeout = %v", cfg.Backend.RequestTimeout)
	}
	if cfg.Push.ReconnectDelay.Std() != 2*time.Second {
		t.Errorf("ReconnectDelay = %v", cfg.Push.ReconnectDelay)
	}
	if cfg.Log.MaxLines != 50 {
		t.Errorf("Log.MaxLines = %d", cfg.Log.MaxLines)
	}

	// Unspecified fields keep their defaults.
	if cfg.Push.PongTimeout.Std() != 60*time.Second {
		t.Errorf("PongTimeout = %v, want default 60s", cfg.Push.PongTimeout)
	}
	if cfg.Log.File != "phonemulator.log" {
		t.Errorf("Log.File = %q, want default", cfg.Log.File)
	}
}

func TestLoadTOML(t *testing.T) {
	path := writeFile(t, "phonemulator.toml", `
[backend]
base_url = "https://emu.example.com"
ws_url = "wss://emu.example.com/stream"

[push]
reconnect_delay = "10s"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Backend.WSURL != "wss://emu.example.com/stream" {
		t.Errorf("Backend.WSURL = %q", cfg.Backend.WSURL)
	}
	if cfg.Push.ReconnectDelay.Std() != 10*time.Second {
		t.Errorf("ReconnectDelay = %v", cfg.Push.ReconnectDelay)
	}
}

func TestLoadJSONC(t *testing.T) {
	path := writeFile(t, "phonemulator.jsonc", `{
  // local backend
  "backend": {"base_url": "http://127.0.0.1:8001"},
  "push": {"ping_interval": "1m"}, /* trailing comma below */
  "log": {"max_lines": 10,},
}`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Backend.WSURL != "ws://127.0.0.1:8001/ws/logs" {
		t.Errorf("Backend.WSURL = %q", cfg.Backend.WSURL)
	}
	if cfg.Push.PingInterval.Std() != time.Minute {
		t.Errorf("PingInterval = %v", cfg.Push.PingInterval)
	}
	if cfg.Log.MaxLines != 10 {
		t.Errorf("Log.MaxLines = %d", cfg.Log.MaxLines)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("Load() error = %v, want fs.ErrNotExist", err)
	}
}

func TestLoadInvalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"bad duration", "push:\n  reconnect_delay: soon\n", "parse"},
		{"zero delay", "push:\n  reconnect_delay: 0s\n", "push.reconnect_delay"},
		{"bad scheme", "backend:\n  base_url: ftp://host\n", "backend.base_url"},
		{"ws scheme", "backend:\n  ws_url: http://host/ws\n", "backend.ws_url"},
		{"no host", "backend:\n  base_url: 'http://'\n", "missing host"},
		{"max lines", "log:\n  max_lines: 0\n", "log.max_lines"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeFile(t, "c.yaml", tt.content))
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Load() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() = %v", err)
	}
	if cfg.Push.ReconnectDelay.Std() != 5*time.Second {
		t.Errorf("default reconnect delay = %v, want 5s", cfg.Push.ReconnectDelay)
	}
}

func TestDeriveWSURL(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"http://localhost:8000", "ws://localhost:8000/ws/logs"},
		{"https://emu.example.com/api", "wss://emu.example.com/ws/logs"},
		{"::bad", "ws://localhost:8000/ws/logs"},
	}
	for _, tt := range tests {
		if got := DeriveWSURL(tt.in); got != tt.want {
			t.Errorf("DeriveWSURL(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestMockValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*MockConfig)
		wantErr string
	}{
		{"defaults", func(*MockConfig) {}, ""},
		{"with ollama", func(m *MockConfig) { m.OllamaURL = "http://localhost:11434" }, ""},
		{"empty listen", func(m *MockConfig) { m.Listen = "" }, "mock.listen is required"},
		{"bad ollama scheme", func(m *MockConfig) { m.OllamaURL = "ftp://x" }, "mock.ollama_url"},
		{"zero timeout", func(m *MockConfig) { m.Timeout = 0 }, "mock.timeout must be positive"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := Default().Mock
			tt.mutate(&m)
			err := m.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write %s: %v", name, err)
	}
	return path
}

func TestDefaultConfig_Valid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default config should validate: %v", err)
	}
	if cfg.Address() != "0.0.0.0:8080" {
		t.Errorf("Unexpected address %s", cfg.Address())
	}
	if got := cfg.Interview.Thresholds(); got != [5]int{3, 3, 3, 3, 2} {
		t.Errorf("Unexpected thresholds %v", got)
	}
	if cfg.Interview.Retention != 24*time.Hour {
		t.Errorf("Expected 24h retention, got %v", cfg.Interview.Retention)
	}
}

func TestValidate_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"empty database path", func(c *Config) { c.Database.Path = "" }},
		{"port out of range", func(c *Config) { c.HTTP.Port = 70000 }},
		{"empty host", func(c *Config) { c.HTTP.Host = "" }},
		{"read timeout below ping", func(c *Config) { c.WebSocket.ReadTimeout = c.WebSocket.PingInterval }},
		{"zero message limit", func(c *Config) { c.WebSocket.MaxMessageBytes = 0 }},
		{"four thresholds", func(c *Config) { c.Interview.PhaseThresholds = []int{1, 1, 1, 1} }},
		{"zero threshold", func(c *Config) { c.Interview.PhaseThresholds = []int{1, 0, 1, 1, 1} }},
		{"zero safety cap", func(c *Config) { c.Interview.SafetyCap = 0 }},
		{"probability above one", func(c *Config) { c.Interview.ReassuranceProbability = 1.5 }},
		{"zero retention", func(c *Config) { c.Interview.Retention = 0 }},
		{"zero rate limit", func(c *Config) { c.Interview.EventsPerMinute = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Expected validation error")
			}
		})
	}
}

func TestLoadFromFile_YAMLOverlay(t *testing.T) {
	path := writeFile(t, "config.yaml", `
http:
  port: 9090
websocket:
  ping_interval: 15s
interview:
  phase_thresholds: [2, 2, 2, 2, 1]
  safety_cap: 12
  retention: 48h
auth:
  invite_secret: s3cret
`)
	cfg := DefaultConfig()
	if err := LoadFromFile(cfg, path); err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}

	if cfg.HTTP.Port != 9090 || cfg.HTTP.Host != "0.0.0.0" {
		t.Errorf("Expected port override with default host, got %s", cfg.Address())
	}
	if cfg.WebSocket.PingInterval != 15*time.Second {
		t.Errorf("Expected 15s ping interval, got %v", cfg.WebSocket.PingInterval)
	}
	if cfg.Interview.Thresholds() != [5]int{2, 2, 2, 2, 1} || cfg.Interview.SafetyCap != 12 {
		t.Errorf("Unexpected interview section: %+v", cfg.Interview)
	}
	if cfg.Interview.Retention != 48*time.Hour || cfg.Auth.InviteSecret != "s3cret" {
		t.Errorf("Unexpected overlay: retention=%v secret=%q", cfg.Interview.Retention, cfg.Auth.InviteSecret)
	}
	if cfg.Interview.DefaultLanguage != "en" {
		t.Error("Keys absent from the file must keep their defaults")
	}
}

func TestLoadFromFile_JSON(t *testing.T) {
	path := writeFile(t, "config.json", `{"database": {"path": "/tmp/x.db", "timeout": "5s"}}`)
	cfg := DefaultConfig()
	if err := LoadFromFile(cfg, path); err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}
	if cfg.Database.Path != "/tmp/x.db" || cfg.Database.Timeout != 5*time.Second {
		t.Errorf("Unexpected database section: %+v", cfg.Database)
	}
}

func TestLoadFromFile_Errors(t *testing.T) {
	if err := LoadFromFile(DefaultConfig(), filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Expected error for missing file")
	}
	path := writeFile(t, "bad.yaml", "http: [unclosed")
	if err := LoadFromFile(DefaultConfig(), path); err == nil {
		t.Error("Expected error for malformed file")
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("INTERVIEWROOM_HTTP_PORT", "7070")
	t.Setenv("INTERVIEWROOM_HTTP_ALLOWED_ORIGINS", "https://a.example,https://b.example")
	t.Setenv("INTERVIEWROOM_INTERVIEW_PHASE_THRESHOLDS", "1,1,1,1,1")
	t.Setenv("INTERVIEWROOM_INTERVIEW_COLLABORATOR_TIMEOUT", "5s")
	t.Setenv("INTERVIEWROOM_INTERVIEW_REASSURANCE_PROBABILITY", "0.5")
	t.Setenv("OPENAI_API_KEY", "sk-test")

	cfg := DefaultConfig()
	if err := LoadFromEnv(cfg); err != nil {
		t.Fatalf("LoadFromEnv failed: %v", err)
	}
	if cfg.HTTP.Port != 7070 {
		t.Errorf("Expected port 7070, got %d", cfg.HTTP.Port)
	}
	if len(cfg.HTTP.AllowedOrigins) != 2 || cfg.HTTP.AllowedOrigins[1] != "https://b.example" {
		t.Errorf("Unexpected origins %v", cfg.HTTP.AllowedOrigins)
	}
	if cfg.Interview.Thresholds() != [5]int{1, 1, 1, 1, 1} {
		t.Errorf("Unexpected thresholds %v", cfg.Interview.PhaseThresholds)
	}
	if cfg.Interview.CollaboratorTimeout != 5*time.Second || cfg.Interview.ReassuranceProbability != 0.5 {
		t.Errorf("Unexpected interview section: %+v", cfg.Interview)
	}
	if cfg.OpenAI.APIKey != "sk-test" || cfg.OpenAI.ChatModel != "gpt-4o-mini" {
		t.Errorf("Unexpected openai section: %+v", cfg.OpenAI)
	}
}

func TestLoadFromEnv_BadValue(t *testing.T) {
	t.Setenv("INTERVIEWROOM_HTTP_PORT", "not-a-number")
	if err := LoadFromEnv(DefaultConfig()); err == nil {
		t.Error("Expected unparseable env value to fail")
	}
}

// TestLoad_Precedence tests functional validation - environment beats file beats defaults
func TestLoad_Precedence(t *testing.T) {
	path := writeFile(t, "config.yaml", "http:\n  port: 9090\n  host: 127.0.0.1\n")
	t.Setenv("INTERVIEWROOM_HTTP_PORT", "9191")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Address() != "127.0.0.1:9191" {
		t.Errorf("Expected file host with env port, got %s", cfg.Address())
	}
}

func TestLoad_InvalidResult(t *testing.T) {
	path := writeFile(t, "config.yaml", "interview:\n  safety_cap: -1\n")
	_, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "safety cap") {
		t.Errorf("Expected safety cap validation error, got %v", err)
	}
}

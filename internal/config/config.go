package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ARCHITECTURAL DISCOVERY: Configuration layer serves as system-wide settings coordinator
// Clean separation between configuration management and business logic
type Config struct {
	Database  DatabaseConfig  `yaml:"database"`
	HTTP      HTTPConfig      `yaml:"http"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	Interview InterviewConfig `yaml:"interview"`
	OpenAI    OpenAIConfig    `yaml:"openai"`
	Auth      AuthConfig      `yaml:"auth"`
}

type DatabaseConfig struct {
	Path           string        `yaml:"path" env:"INTERVIEWROOM_DATABASE_PATH"`
	Timeout        time.Duration `yaml:"timeout" env:"INTERVIEWROOM_DATABASE_TIMEOUT"`
	MaxConnections int           `yaml:"max_connections" env:"INTERVIEWROOM_DATABASE_MAX_CONNECTIONS"`
	MigrationsPath string        `yaml:"migrations_path" env:"INTERVIEWROOM_DATABASE_MIGRATIONS_PATH"`
}

type HTTPConfig struct {
	Host           string        `yaml:"host" env:"INTERVIEWROOM_HTTP_HOST"`
	Port           int           `yaml:"port" env:"INTERVIEWROOM_HTTP_PORT"`
	ReadTimeout    time.Duration `yaml:"read_timeout" env:"INTERVIEWROOM_HTTP_READ_TIMEOUT"`
	WriteTimeout   time.Duration `yaml:"write_timeout" env:"INTERVIEWROOM_HTTP_WRITE_TIMEOUT"`
	AllowedOrigins []string      `yaml:"allowed_origins" env:"INTERVIEWROOM_HTTP_ALLOWED_ORIGINS" envSeparator:","`
}

// FUNCTIONAL DISCOVERY: MaxMessageBytes bounds one inbound frame; audio chunks
// arrive base64 encoded so it must exceed the client's chunk size by a third
type WebSocketConfig struct {
	PingInterval    time.Duration `yaml:"ping_interval" env:"INTERVIEWROOM_WEBSOCKET_PING_INTERVAL"`
	ReadTimeout     time.Duration `yaml:"read_timeout" env:"INTERVIEWROOM_WEBSOCKET_READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" env:"INTERVIEWROOM_WEBSOCKET_WRITE_TIMEOUT"`
	BufferSize      int           `yaml:"buffer_size" env:"INTERVIEWROOM_WEBSOCKET_BUFFER_SIZE"`
	MaxMessageBytes int64         `yaml:"max_message_bytes" env:"INTERVIEWROOM_WEBSOCKET_MAX_MESSAGE_BYTES"`
}

type InterviewConfig struct {
	PhaseThresholds        []int         `yaml:"phase_thresholds" env:"INTERVIEWROOM_INTERVIEW_PHASE_THRESHOLDS" envSeparator:","`
	SafetyCap              int           `yaml:"safety_cap" env:"INTERVIEWROOM_INTERVIEW_SAFETY_CAP"`
	ReassuranceProbability float64       `yaml:"reassurance_probability" env:"INTERVIEWROOM_INTERVIEW_REASSURANCE_PROBABILITY"`
	ReassuranceSeed        int64         `yaml:"reassurance_seed" env:"INTERVIEWROOM_INTERVIEW_REASSURANCE_SEED"`
	CollaboratorTimeout    time.Duration `yaml:"collaborator_timeout" env:"INTERVIEWROOM_INTERVIEW_COLLABORATOR_TIMEOUT"`
	Retention              time.Duration `yaml:"retention" env:"INTERVIEWROOM_INTERVIEW_RETENTION"`
	SweepSchedule          string        `yaml:"sweep_schedule" env:"INTERVIEWROOM_INTERVIEW_SWEEP_SCHEDULE"`
	MailboxSize            int           `yaml:"mailbox_size" env:"INTERVIEWROOM_INTERVIEW_MAILBOX_SIZE"`
	MaxPendingAudioBytes   int           `yaml:"max_pending_audio_bytes" env:"INTERVIEWROOM_INTERVIEW_MAX_PENDING_AUDIO_BYTES"`
	DefaultLanguage        string        `yaml:"default_language" env:"INTERVIEWROOM_INTERVIEW_DEFAULT_LANGUAGE"`
	VoiceID                string        `yaml:"voice_id" env:"INTERVIEWROOM_INTERVIEW_VOICE_ID"`
	EventsPerMinute        int           `yaml:"events_per_minute" env:"INTERVIEWROOM_INTERVIEW_EVENTS_PER_MINUTE"`
}

// OpenAIConfig selects the speech and language collaborators; an empty APIKey
// runs the server on the offline agents
type OpenAIConfig struct {
	APIKey             string `yaml:"api_key" env:"OPENAI_API_KEY"`
	BaseURL            string `yaml:"base_url" env:"OPENAI_BASE_URL"`
	ChatModel          string `yaml:"chat_model" env:"INTERVIEWROOM_OPENAI_CHAT_MODEL"`
	TranscriptionModel string `yaml:"transcription_model" env:"INTERVIEWROOM_OPENAI_TRANSCRIPTION_MODEL"`
	SpeechModel        string `yaml:"speech_model" env:"INTERVIEWROOM_OPENAI_SPEECH_MODEL"`
}

// AuthConfig signs candidate invites; an empty secret disables invite checks
type AuthConfig struct {
	InviteSecret string `yaml:"invite_secret" env:"INTERVIEWROOM_AUTH_INVITE_SECRET"`
	Issuer       string `yaml:"issuer" env:"INTERVIEWROOM_AUTH_ISSUER"`
}

// DefaultConfig returns production defaults
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path:           "./data/interviewroom.db",
			Timeout:        30 * time.Second,
			MaxConnections: 10,
		},
		HTTP: HTTPConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		WebSocket: WebSocketConfig{
			PingInterval:    30 * time.Second,
			ReadTimeout:     60 * time.Second,
			WriteTimeout:    10 * time.Second,
			BufferSize:      100,
			MaxMessageBytes: 2 << 20,
		},
		Interview: InterviewConfig{
			PhaseThresholds:        []int{3, 3, 3, 3, 2},
			SafetyCap:              20,
			ReassuranceProbability: 0.3,
			CollaboratorTimeout:    30 * time.Second,
			Retention:              24 * time.Hour,
			SweepSchedule:          "*/10 * * * *",
			MailboxSize:            256,
			MaxPendingAudioBytes:   10 << 20,
			DefaultLanguage:        "en",
			VoiceID:                "alloy",
			EventsPerMinute:        100,
		},
		OpenAI: OpenAIConfig{
			ChatModel:          "gpt-4o-mini",
			TranscriptionModel: "whisper-1",
			SpeechModel:        "tts-1",
		},
		Auth: AuthConfig{
			Issuer: "interviewroom",
		},
	}
}

// Validate rejects configurations the server cannot start with
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return errors.New("database path cannot be empty")
	}
	if c.Database.Timeout <= 0 {
		return errors.New("database timeout must be positive")
	}
	if c.Database.MaxConnections <= 0 {
		return errors.New("database max connections must be positive")
	}

	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return errors.New("HTTP port must be between 1 and 65535")
	}
	if c.HTTP.ReadTimeout <= 0 || c.HTTP.WriteTimeout <= 0 {
		return errors.New("HTTP timeouts must be positive")
	}
	if c.HTTP.Host == "" {
		return errors.New("HTTP host cannot be empty")
	}

	if c.WebSocket.PingInterval <= 0 {
		return errors.New("WebSocket ping interval must be positive")
	}
	if c.WebSocket.ReadTimeout <= c.WebSocket.PingInterval {
		return errors.New("WebSocket read timeout must exceed the ping interval")
	}
	if c.WebSocket.WriteTimeout <= 0 {
		return errors.New("WebSocket write timeout must be positive")
	}
	if c.WebSocket.BufferSize <= 0 {
		return errors.New("WebSocket buffer size must be positive")
	}
	if c.WebSocket.MaxMessageBytes <= 0 {
		return errors.New("WebSocket max message bytes must be positive")
	}

	iv := c.Interview
	if len(iv.PhaseThresholds) != 5 {
		return fmt.Errorf("interview phase_thresholds needs 5 entries, got %d", len(iv.PhaseThresholds))
	}
	for i, n := range iv.PhaseThresholds {
		if n <= 0 {
			return fmt.Errorf("interview phase threshold %d must be positive", i)
		}
	}
	if iv.SafetyCap <= 0 {
		return errors.New("interview safety cap must be positive")
	}
	if iv.ReassuranceProbability < 0 || iv.ReassuranceProbability > 1 {
		return errors.New("interview reassurance probability must be within [0,1]")
	}
	if iv.CollaboratorTimeout <= 0 || iv.Retention <= 0 {
		return errors.New("interview timeouts must be positive")
	}
	if iv.MailboxSize <= 0 || iv.MaxPendingAudioBytes <= 0 || iv.EventsPerMinute <= 0 {
		return errors.New("interview limits must be positive")
	}
	return nil
}

// Address returns the host:port the HTTP server listens on
func (c *Config) Address() string {
	return net.JoinHostPort(c.HTTP.Host, strconv.Itoa(c.HTTP.Port))
}

// Thresholds returns the phase thresholds as a fixed array
func (c *InterviewConfig) Thresholds() [5]int {
	var t [5]int
	copy(t[:], c.PhaseThresholds)
	return t
}

// LoadFromEnv overlays environment variables onto cfg
func LoadFromEnv(cfg *Config) error {
	if err := env.Parse(cfg); err != nil {
		return fmt.Errorf("failed to parse environment: %w", err)
	}
	return nil
}

// LoadFromFile overlays a YAML (or JSON) file onto cfg; absent keys keep their value
func LoadFromFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// Load builds the runtime configuration
// FUNCTIONAL DISCOVERY: Precedence is defaults < file < environment, and a
// .env file in the working directory seeds the environment without overriding it
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := DefaultConfig()
	if path != "" {
		if err := LoadFromFile(cfg, path); err != nil {
			return nil, err
		}
	}
	if err := LoadFromEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

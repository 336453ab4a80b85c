package config

import "time"

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server   ServerConfig   `mapstructure:"server" validate:"required"`
	Database DatabaseConfig `mapstructure:"database" validate:"required"`
	Auth     AuthConfig     `mapstructure:"auth" validate:"required"`
	LLM      LLMConfig      `mapstructure:"llm" validate:"required"`
	Worker   WorkerConfig   `mapstructure:"worker" validate:"required"`
	Hub      HubConfig      `mapstructure:"hub" validate:"required"`
}

// ServerConfig contains all server-related configuration settings.
type ServerConfig struct {
	Port            int           `mapstructure:"port" validate:"required,gt=0,lt=65536"`
	LogLevel        string        `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig contains all database-related configuration settings.
type DatabaseConfig struct {
	URL string `mapstructure:"url" validate:"required,url"`
}

// AuthConfig contains all authentication and authorization settings.
// This service only verifies tokens issued elsewhere; it never mints them
// outside of tests.
type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret" validate:"required,min=32"`
}

// LLMConfig contains all LLM integration related settings.
type LLMConfig struct {
	GeminiAPIKey string `mapstructure:"gemini_api_key" validate:"required"`
	ModelName    string `mapstructure:"model_name" validate:"required"`
}

// WorkerConfig controls the background extraction worker pool and the
// stuck-work reclamation sweep.
type WorkerConfig struct {
	Concurrency    int           `mapstructure:"concurrency" validate:"required,gt=0,lte=32"`
	PollInterval   time.Duration `mapstructure:"poll_interval"`
	StuckThreshold time.Duration `mapstructure:"stuck_threshold"`
	SweepInterval  time.Duration `mapstructure:"sweep_interval"`
}

// HubConfig controls the notification hub's delivery timing.
type HubConfig struct {
	LongPollTimeout   time.Duration `mapstructure:"long_poll_timeout"`
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
	RecheckInterval   time.Duration `mapstructure:"recheck_interval"`
}

package model

import "time"

// ----------------------------------------------------
// ================ Environment ================

// LogConfig holds configuration for the global logger
type LogConfig struct {
	Level      string `envconfig:"LEVEL" default:"info" validate:"oneof=trace debug info warn error fatal"`
	Format     string `envconfig:"FORMAT" default:"console" validate:"oneof=console json"`
	Output     string `envconfig:"OUTPUT" default:"stdout" validate:"oneof=stdout stderr file"`
	FilePath   string `envconfig:"FILE_PATH" default:"logs/salesbot.log"`
	TimeFormat string `envconfig:"TIME_FORMAT" default:"rfc3339"`
}

// LLMConfig selects and configures the chat model provider
type LLMConfig struct {
	Provider    string        `envconfig:"PROVIDER" default:"openai" validate:"oneof=openai ollama deepseek ark"`
	APIKey      string        `envconfig:"API_KEY"`
	BaseURL     string        `envconfig:"BASE_URL"`
	Model       string        `envconfig:"MODEL" default:"gpt-4o"`
	MaxTokens   int           `envconfig:"MAX_TOKENS" default:"1500" validate:"gt=0"`
	Temperature float64       `envconfig:"TEMPERATURE" default:"0"`
	Timeout     time.Duration `envconfig:"TIMEOUT" default:"20s" validate:"gt=0"`
}

// DatabaseConfig points at the SQLite file backing conversation state and CRM records
type DatabaseConfig struct {
	Path     string `envconfig:"PATH" default:"data/salesbot.db" validate:"required"`
	SeedPath string `envconfig:"SEED_PATH"`
}

// SessionConfig chooses where session lifecycle records live
type SessionConfig struct {
	Backend string        `envconfig:"BACKEND" default:"sqlite" validate:"oneof=sqlite redis"`
	TTL     time.Duration `envconfig:"TTL" default:"60m"`
}

// RedisConfig is only read when the redis session backend is selected
type RedisConfig struct {
	URL string `envconfig:"URL"`
}

// SMTPConfig holds outbound mail settings
type SMTPConfig struct {
	Host     string        `envconfig:"HOST"`
	Port     int           `envconfig:"PORT" default:"587"`
	Username string        `envconfig:"USERNAME"`
	Password string        `envconfig:"PASSWORD"`
	FromName string        `envconfig:"FROM_NAME" default:"SalesBot"`
	Timeout  time.Duration `envconfig:"TIMEOUT" default:"15s"`
}

// ServerConfig holds the HTTP surface settings
type ServerConfig struct {
	Addr           string        `envconfig:"ADDR" default:":8080" validate:"required"`
	RequestTimeout time.Duration `envconfig:"REQUEST_TIMEOUT" default:"30s" validate:"gt=0"`
	AllowedOrigins []string      `envconfig:"ALLOWED_ORIGINS"`
}

// AgentConfig locates the optional YAML tuning file
type AgentConfig struct {
	ConfigPath string `envconfig:"CONFIG_PATH"`
}

// ----------------------------------------------------
// ================ Tuning (YAML) ================

// AgentTuning carries workflow knobs that rarely change between deployments
type AgentTuning struct {
	HistoryLimit int              `yaml:"history_limit"`
	StoreTimeout time.Duration    `yaml:"store_timeout"`
	CRM          CRMTuning        `yaml:"crm"`
	Followup     FollowupTuning   `yaml:"followup"`
	EmailDraft   EmailDraftTuning `yaml:"email_draft"`
}

// CRMTuning controls the generic CRM fetch
type CRMTuning struct {
	DefaultPageSize int `yaml:"default_page_size"`
	MaxPageSize     int `yaml:"max_page_size"`
	NewWindowDays   int `yaml:"new_window_days"`
}

// FollowupTuning controls follow-up lead discovery
type FollowupTuning struct {
	ExcludedStatuses []string `yaml:"excluded_statuses"`
}

// EmailDraftTuning controls template selection
type EmailDraftTuning struct {
	StaleAfterDays int `yaml:"stale_after_days"`
}

// DefaultAgentTuning returns the compiled defaults
func DefaultAgentTuning() AgentTuning {
	return AgentTuning{
		HistoryLimit: 5,
		StoreTimeout: 5 * time.Second,
		CRM: CRMTuning{
			DefaultPageSize: 20,
			MaxPageSize:     50,
			NewWindowDays:   7,
		},
		Followup: FollowupTuning{
			ExcludedStatuses: []string{"Closed", "Lost"},
		},
		EmailDraft: EmailDraftTuning{
			StaleAfterDays: 14,
		},
	}
}

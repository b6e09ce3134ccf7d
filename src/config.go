package src

import (
	"fmt"

	"salesbot/src/model"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	LogConfig      model.LogConfig      `envconfig:"LOG"`
	LLMConfig      model.LLMConfig      `envconfig:"LLM"`
	DatabaseConfig model.DatabaseConfig `envconfig:"DB"`
	SessionConfig  model.SessionConfig  `envconfig:"SESSION"`
	RedisConfig    model.RedisConfig    `envconfig:"REDIS"`
	SMTPConfig     model.SMTPConfig     `envconfig:"SMTP"`
	ServerConfig   model.ServerConfig   `envconfig:"HTTP"`
	AgentConfig    model.AgentConfig    `envconfig:"AGENT"`
}

func LoadConfig() (*Config, error) {
	var config Config
	err := envconfig.Process("", &config)
	if err != nil {
		return nil, fmt.Errorf("error processing environment configuration: %w", err)
	}

	if err := validator.New().Struct(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	if config.SessionConfig.Backend == "redis" && config.RedisConfig.URL == "" {
		return nil, fmt.Errorf("invalid configuration: REDIS_URL is required for the redis session backend")
	}

	return &config, nil
}

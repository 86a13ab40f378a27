package config

import (
	"time"

	"github.com/spf13/viper"
	"github.com/wb-go/wbf/retry"
	"github.com/wb-go/wbf/zlog"
)

// Config holds the main configuration for the application.
type Config struct {
	Server   Server         `mapstructure:"server"`
	Queue    Queue          `mapstructure:"queue"`
	Selfies  Selfies        `mapstructure:"selfies"`
	Dispatch Dispatch       `mapstructure:"dispatch"`
	Email    Email          `mapstructure:"email"`
	Telegram Telegram       `mapstructure:"telegram"`
	LLM      LLM            `mapstructure:"llm"`
	Retry    retry.Strategy `mapstructure:"retry"`
}

// Server holds HTTP server-related configuration.
type Server struct {
	HTTPPort string `mapstructure:"http_port"` // HTTP port to listen on
}

// Queue holds the location of the queue document.
type Queue struct {
	Path string `mapstructure:"path"`
}

// Selfies holds the selfie storage directory.
type Selfies struct {
	Dir string `mapstructure:"dir"`
}

// Dispatch controls the periodic dispatch pass and the intake behavior.
type Dispatch struct {
	Interval        time.Duration `mapstructure:"interval"`         // delay between dispatch passes
	SendImmediately bool          `mapstructure:"send_immediately"` // attempt a send right at intake
}

// Email holds SMTP configuration for sending emails.
type Email struct {
	SMTPHost string `mapstructure:"smtp_host"`
	SMTPPort int    `mapstructure:"smtp_port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
	Subject  string `mapstructure:"subject"`
}

// Telegram holds configuration for sending Telegram messages.
type Telegram struct {
	Token string `mapstructure:"token"`
}

// LLM holds the chat-completions endpoint used for selfie enrichment.
type LLM struct {
	BaseURL    string        `mapstructure:"base_url"`
	APIKey     string        `mapstructure:"api_key"`
	ImageModel string        `mapstructure:"image_model"`
	TextModel  string        `mapstructure:"text_model"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

// mustBindEnv binds critical environment variables to Viper keys.
//
// It panics if any environment variable cannot be bound.
func mustBindEnv() {
	bindings := map[string]string{
		"email.smtp_host": "SMTP_HOST",
		"email.smtp_port": "SMTP_PORT",
		"email.username":  "SMTP_USERNAME",
		"email.password":  "SMTP_PASSWORD",
		"email.from":      "SMTP_FROM",
		"email.subject":   "EMAIL_SUBJECT",

		"telegram.token": "TELEGRAM_TOKEN",

		"llm.base_url":    "LLM_BASE_URL",
		"llm.api_key":     "LLM_API_KEY",
		"llm.image_model": "LLM_IMAGE_MODEL",
		"llm.text_model":  "LLM_EMAIL_MODEL",
	}

	for key, env := range bindings {
		if err := viper.BindEnv(key, env); err != nil {
			zlog.Logger.Panic().Err(err).Msgf("failed to bind env %s", env)
		}
	}
}

// Must loads and validates the configuration from file and environment
// variables. It panics if configuration cannot be read or unmarshalled.
func Must() *Config {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./config")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		zlog.Logger.Panic().Err(err).Msg("failed to read config")
	}

	mustBindEnv()

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		zlog.Logger.Panic().Err(err).Msgf("failed to unmarshal config: %v", err)
	}

	return &cfg
}

// Package config loads the agent's static configuration from config.yaml and
// BWA_* environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/SadManFahIm/Birthday-Wishes-Agent/internal/automation/browser"
	"github.com/SadManFahIm/Birthday-Wishes-Agent/internal/logging"
	"github.com/SadManFahIm/Birthday-Wishes-Agent/internal/notify"
	"github.com/SadManFahIm/Birthday-Wishes-Agent/internal/reply"
)

var ErrConfiguration = errors.New("configuration error")

const EnvPrefix = "BWA"

type RetryConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts" validate:"gte=1,lte=10"`
	Delay       time.Duration `mapstructure:"delay" validate:"gte=0"`
}

type Config struct {
	Addr             string        `mapstructure:"addr" validate:"required"`
	DBPath           string        `mapstructure:"db_path" validate:"required"`
	SessionFile      string        `mapstructure:"session_file" validate:"required"`
	SettingsFile     string        `mapstructure:"settings_file" validate:"required"`
	Timezone         string        `mapstructure:"timezone"`
	SessionValidity  time.Duration `mapstructure:"session_validity" validate:"gt=0"`
	MaxRepliesPerRun int           `mapstructure:"max_replies_per_run" validate:"gte=1"`
	PhrasesFile      string        `mapstructure:"phrases_file"`
	RepliesFile      string        `mapstructure:"replies_file"`
	ScheduledTasks   []string      `mapstructure:"scheduled_tasks" validate:"dive,oneof=wish-birthdays reply-to-wishes follower-check"`
	GitHubURL        string        `mapstructure:"github_url" validate:"omitempty,url"`

	Log      logging.Options       `mapstructure:"log"`
	Retry    RetryConfig           `mapstructure:"retry"`
	Browser  browser.Options       `mapstructure:"browser"`
	Telegram notify.TelegramConfig `mapstructure:"telegram"`
	Email    notify.EmailConfig    `mapstructure:"email"`
	OpenAI   reply.OpenAIConfig    `mapstructure:"openai"`
}

// Location resolves Timezone, defaulting to the host's local zone.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("%w: timezone %q: %v", ErrConfiguration, c.Timezone, err)
	}
	return loc, nil
}

// Load reads defaults, then the config file (optional unless path is set),
// then environment variables.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := bindLegacyEnv(v); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("%w: read config file: %v", ErrConfiguration, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("%w: parse config: %v", ErrConfiguration, err)
	}
	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	if _, err := cfg.Location(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// bindLegacyEnv accepts the variable names used by earlier .env files next to
// the BWA_* names.
func bindLegacyEnv(v *viper.Viper) error {
	legacy := map[string]string{
		"telegram.token":   "TELEGRAM_BOT_TOKEN",
		"telegram.chat_id": "TELEGRAM_CHAT_ID",
		"email.sender":     "EMAIL_SENDER",
		"email.password":   "EMAIL_PASSWORD",
		"email.receiver":   "EMAIL_RECEIVER",
		"openai.api_key":   "OPENAI_API_KEY",
		"github_url":       "GITHUB_URL",
	}
	for key, env := range legacy {
		prefixed := EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, prefixed, env); err != nil {
			return fmt.Errorf("bind %s: %w", key, err)
		}
	}
	return nil
}

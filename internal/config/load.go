package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Metadata describes where the loaded configuration came from.
type Metadata struct {
	ConfigFile string
	EnvFile    string
	LoadedAt   time.Time
}

// Option customises the loader behaviour.
type Option func(*loadOptions)

type loadOptions struct {
	configPath  string
	envFile     string
	searchPaths []string
	homeDir     func() (string, error)
}

// WithConfigPath forces the loader to read configuration from a specific file.
// A missing file is an error in that case.
func WithConfigPath(path string) Option {
	return func(o *loadOptions) {
		o.configPath = path
	}
}

// WithEnvFile loads variables from path before reading the environment.
// Variables already set in the process win.
func WithEnvFile(path string) Option {
	return func(o *loadOptions) {
		o.envFile = path
	}
}

// WithSearchPaths replaces the directories searched for beanbot.yaml.
func WithSearchPaths(paths ...string) Option {
	return func(o *loadOptions) {
		o.searchPaths = paths
	}
}

// WithHomeDir overrides how the loader resolves the user's home directory.
func WithHomeDir(resolver func() (string, error)) Option {
	return func(o *loadOptions) {
		o.homeDir = resolver
	}
}

// Load reads .env, then beanbot.yaml, then BEANBOT_* environment variables,
// each layer overriding the previous one, and validates the result.
func Load(opts ...Option) (Config, Metadata, error) {
	options := loadOptions{
		envFile: DefaultEnvFile,
		homeDir: os.UserHomeDir,
	}
	for _, opt := range opts {
		opt(&options)
	}
	meta := Metadata{LoadedAt: time.Now()}

	if options.envFile != "" {
		if err := godotenv.Load(options.envFile); err == nil {
			meta.EnvFile = options.envFile
		} else if !errors.Is(err, os.ErrNotExist) {
			return Config{}, meta, fmt.Errorf("load env file %s: %w", options.envFile, err)
		}
	}

	v := newViper(options)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if options.configPath != "" || !errors.As(err, &notFound) {
			return Config{}, meta, fmt.Errorf("read config: %w", err)
		}
	} else {
		meta.ConfigFile = v.ConfigFileUsed()
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, meta, fmt.Errorf("decode config: %w", err)
	}
	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return cfg, meta, err
	}
	return cfg, meta, nil
}

func newViper(options loadOptions) *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	if options.configPath != "" {
		v.SetConfigFile(options.configPath)
	} else {
		v.SetConfigName(DefaultConfigName)
		paths := options.searchPaths
		if paths == nil {
			paths = []string{"."}
			if home, err := options.homeDir(); err == nil && home != "" {
				paths = append(paths, filepath.Join(home, "."+DefaultConfigName))
			}
		}
		for _, path := range paths {
			v.AddConfigPath(path)
		}
	}

	v.SetEnvPrefix(DefaultEnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v, Default())
	return v
}

// setDefaults registers every key so AutomaticEnv can override it.
func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("lark.app_id", d.Lark.AppID)
	v.SetDefault("lark.app_secret", d.Lark.AppSecret)
	v.SetDefault("lark.base_domain", d.Lark.BaseDomain)
	v.SetDefault("lark.verification_token", d.Lark.VerificationToken)
	v.SetDefault("lark.encrypt_key", d.Lark.EncryptKey)
	v.SetDefault("lark.cards_enabled", d.Lark.CardsEnabled)
	v.SetDefault("lark.websocket_enabled", d.Lark.WebsocketEnabled)

	v.SetDefault("reminder.recipient_id", d.Reminder.RecipientID)
	v.SetDefault("reminder.escalation_id", d.Reminder.EscalationID)
	v.SetDefault("reminder.owner_id", d.Reminder.OwnerID)
	v.SetDefault("reminder.timezone", d.Reminder.Timezone)
	v.SetDefault("reminder.morning", d.Reminder.Morning)
	v.SetDefault("reminder.noon", d.Reminder.Noon)
	v.SetDefault("reminder.evening", d.Reminder.Evening)
	v.SetDefault("reminder.timeout_minutes", d.Reminder.TimeoutMinutes)
	v.SetDefault("reminder.tick_schedule", d.Reminder.TickSchedule)
	v.SetDefault("reminder.duplicate_policy", d.Reminder.DuplicatePolicy)

	v.SetDefault("chatter.enabled", d.Chatter.Enabled)
	v.SetDefault("chatter.rate_per_minute", d.Chatter.RatePerMinute)
	v.SetDefault("chatter.burst", d.Chatter.Burst)
	v.SetDefault("chatter.what_am_i", d.Chatter.WhatAmI)
	v.SetDefault("chatter.default_what_am_i", d.Chatter.DefaultWhatAmI)

	v.SetDefault("jokes.api_url", d.Jokes.APIURL)
	v.SetDefault("jokes.timeout", d.Jokes.Timeout)
	v.SetDefault("jokes.user_agent", d.Jokes.UserAgent)
	v.SetDefault("jokes.fallback_enabled", d.Jokes.FallbackEnabled)
	v.SetDefault("jokes.max_body_bytes", d.Jokes.MaxBodyBytes)

	v.SetDefault("server.listen_addr", d.Server.ListenAddr)
	v.SetDefault("server.callback_path", d.Server.CallbackPath)
	v.SetDefault("server.public_api", d.Server.PublicAPI)

	obs := d.Observability
	v.SetDefault("observability.logging.level", obs.Logging.Level)
	v.SetDefault("observability.logging.format", obs.Logging.Format)
	v.SetDefault("observability.logging.file", obs.Logging.File)
	v.SetDefault("observability.metrics.enabled", obs.Metrics.Enabled)
	v.SetDefault("observability.tracing.enabled", obs.Tracing.Enabled)
	v.SetDefault("observability.tracing.exporter", obs.Tracing.Exporter)
	v.SetDefault("observability.tracing.otlp_endpoint", obs.Tracing.OTLPEndpoint)
	v.SetDefault("observability.tracing.zipkin_endpoint", obs.Tracing.ZipkinEndpoint)
	v.SetDefault("observability.tracing.sample_rate", obs.Tracing.SampleRate)
	v.SetDefault("observability.tracing.service_name", obs.Tracing.ServiceName)
	v.SetDefault("observability.tracing.service_version", obs.Tracing.ServiceVersion)
}

func (c *Config) normalize() {
	c.Lark.AppID = strings.TrimSpace(c.Lark.AppID)
	c.Lark.AppSecret = strings.TrimSpace(c.Lark.AppSecret)
	c.Lark.BaseDomain = strings.TrimRight(strings.TrimSpace(c.Lark.BaseDomain), "/")

	c.Reminder.RecipientID = strings.TrimSpace(c.Reminder.RecipientID)
	c.Reminder.EscalationID = strings.TrimSpace(c.Reminder.EscalationID)
	c.Reminder.OwnerID = strings.TrimSpace(c.Reminder.OwnerID)
	c.Reminder.Timezone = strings.TrimSpace(c.Reminder.Timezone)
	c.Reminder.DuplicatePolicy = strings.ToLower(strings.TrimSpace(c.Reminder.DuplicatePolicy))
	if c.Chatter.WhatAmI == nil {
		c.Chatter.WhatAmI = map[string]string{}
	}
	if c.Server.CallbackPath != "" && !strings.HasPrefix(c.Server.CallbackPath, "/") {
		c.Server.CallbackPath = "/" + c.Server.CallbackPath
	}
	c.Observability.Normalize()
}

package config

import (
	"time"

	"beanbot/internal/observability"
)

// Config is the complete bot configuration.
type Config struct {
	Lark          LarkConfig           `mapstructure:"lark" yaml:"lark"`
	Reminder      ReminderConfig       `mapstructure:"reminder" yaml:"reminder"`
	Chatter       ChatterConfig        `mapstructure:"chatter" yaml:"chatter"`
	Jokes         JokesConfig          `mapstructure:"jokes" yaml:"jokes"`
	Server        ServerConfig         `mapstructure:"server" yaml:"server"`
	Observability observability.Config `mapstructure:"observability" yaml:"observability"`
}

// LarkConfig holds app credentials and event settings.
type LarkConfig struct {
	AppID             string `mapstructure:"app_id" yaml:"app_id"`
	AppSecret         string `mapstructure:"app_secret" yaml:"app_secret"`
	BaseDomain        string `mapstructure:"base_domain" yaml:"base_domain"`
	VerificationToken string `mapstructure:"verification_token" yaml:"verification_token"`
	EncryptKey        string `mapstructure:"encrypt_key" yaml:"encrypt_key"`
	// CardsEnabled sends prompts as interactive cards; plain text otherwise.
	CardsEnabled bool `mapstructure:"cards_enabled" yaml:"cards_enabled"`
	// WebsocketEnabled receives message events over the long connection.
	WebsocketEnabled bool `mapstructure:"websocket_enabled" yaml:"websocket_enabled"`
}

// ReminderConfig seeds reminder.Settings at startup.
type ReminderConfig struct {
	RecipientID     string `mapstructure:"recipient_id" yaml:"recipient_id"`
	EscalationID    string `mapstructure:"escalation_id" yaml:"escalation_id"`
	OwnerID         string `mapstructure:"owner_id" yaml:"owner_id"`
	Timezone        string `mapstructure:"timezone" yaml:"timezone"`
	Morning         string `mapstructure:"morning" yaml:"morning"`
	Noon            string `mapstructure:"noon" yaml:"noon"`
	Evening         string `mapstructure:"evening" yaml:"evening"`
	TimeoutMinutes  int    `mapstructure:"timeout_minutes" yaml:"timeout_minutes"`
	TickSchedule    string `mapstructure:"tick_schedule" yaml:"tick_schedule"`
	DuplicatePolicy string `mapstructure:"duplicate_policy" yaml:"duplicate_policy"`
}

// ChatterConfig tunes the keyword responder.
type ChatterConfig struct {
	Enabled       bool    `mapstructure:"enabled" yaml:"enabled"`
	RatePerMinute float64 `mapstructure:"rate_per_minute" yaml:"rate_per_minute"`
	Burst         int     `mapstructure:"burst" yaml:"burst"`
	// WhatAmI maps user ids to their "what am i?" reply; {mention} is
	// replaced by the sender mention.
	WhatAmI        map[string]string `mapstructure:"what_am_i" yaml:"what_am_i"`
	DefaultWhatAmI string            `mapstructure:"default_what_am_i" yaml:"default_what_am_i"`
}

// JokesConfig configures the dad joke source.
type JokesConfig struct {
	APIURL          string        `mapstructure:"api_url" yaml:"api_url"`
	Timeout         time.Duration `mapstructure:"timeout" yaml:"timeout"`
	UserAgent       string        `mapstructure:"user_agent" yaml:"user_agent"`
	FallbackEnabled bool          `mapstructure:"fallback_enabled" yaml:"fallback_enabled"`
	MaxBodyBytes    int64         `mapstructure:"max_body_bytes" yaml:"max_body_bytes"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	ListenAddr   string `mapstructure:"listen_addr" yaml:"listen_addr"`
	CallbackPath string `mapstructure:"callback_path" yaml:"callback_path"`
	// PublicAPI serves /api to any client. Off by default, since the API
	// exposes recipient open ids and has no auth.
	PublicAPI bool `mapstructure:"public_api" yaml:"public_api"`
}

const (
	DefaultConfigName   = "beanbot"
	DefaultEnvPrefix    = "BEANBOT"
	DefaultEnvFile      = ".env"
	DefaultTickSchedule = "* * * * *"
	DefaultJokesURL     = "https://icanhazdadjoke.com/"
	DefaultUserAgent    = "BeanBot dog reminder bot"
)

// Default returns the configuration used when no file or env sets a key.
func Default() Config {
	return Config{
		Lark: LarkConfig{
			BaseDomain:       "https://open.feishu.cn",
			CardsEnabled:     true,
			WebsocketEnabled: true,
		},
		Reminder: ReminderConfig{
			Timezone:        "Local",
			Morning:         "08:00",
			Noon:            "13:00",
			Evening:         "20:00",
			TimeoutMinutes:  60,
			TickSchedule:    DefaultTickSchedule,
			DuplicatePolicy: "skip",
		},
		Chatter: ChatterConfig{
			Enabled:        true,
			RatePerMinute:  6,
			Burst:          3,
			WhatAmI:        map[string]string{},
			DefaultWhatAmI: "You are a bottom, {mention}!",
		},
		Jokes: JokesConfig{
			APIURL:          DefaultJokesURL,
			Timeout:         5 * time.Second,
			UserAgent:       DefaultUserAgent,
			FallbackEnabled: true,
			MaxBodyBytes:    64 << 10,
		},
		Server: ServerConfig{
			ListenAddr:   ":8080",
			CallbackPath: "/lark/card-callback",
		},
		Observability: observability.DefaultConfig(),
	}
}

// Redacted returns a copy with credentials masked for display.
func (c Config) Redacted() Config {
	out := c
	if out.Lark.AppSecret != "" {
		out.Lark.AppSecret = observability.SanitizeSecret(out.Lark.AppSecret)
	}
	if out.Lark.VerificationToken != "" {
		out.Lark.VerificationToken = observability.SanitizeSecret(out.Lark.VerificationToken)
	}
	if out.Lark.EncryptKey != "" {
		out.Lark.EncryptKey = observability.SanitizeSecret(out.Lark.EncryptKey)
	}
	return out
}

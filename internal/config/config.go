package config

import "time"

// Config holds client configuration values.
type Config struct {
	ServerURL      string        `mapstructure:"server_url" yaml:"server_url"`
	WSURL          string        `mapstructure:"ws_url" yaml:"ws_url"`
	Nickname       string        `mapstructure:"nickname" yaml:"nickname"`
	Token          string        `mapstructure:"token" yaml:"token"`
	Cooldown       time.Duration `mapstructure:"cooldown" yaml:"cooldown"`
	MaxPublicLen   int           `mapstructure:"max_public_len" yaml:"max_public_len"`
	RequestTimeout time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`
	CachePath      string        `mapstructure:"cache_path" yaml:"cache_path"`
	StatePath      string        `mapstructure:"state_path" yaml:"state_path"`
	LogLevel       string        `mapstructure:"log_level" yaml:"log_level"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		ServerURL:      "http://localhost:8080",
		WSURL:          "ws://localhost:8080/ws",
		Cooldown:       1500 * time.Millisecond,
		MaxPublicLen:   500,
		RequestTimeout: 10 * time.Second,
		CachePath:      "wirechat-cache.db",
		StatePath:      "wirechat-state.db",
		LogLevel:       "info",
	}
}

// UpdateFrom overwrites non-zero values from other config into receiver.
func (c *Config) UpdateFrom(other Config) {
	if other.ServerURL != "" {
		c.ServerURL = other.ServerURL
	}
	if other.WSURL != "" {
		c.WSURL = other.WSURL
	}
	if other.Nickname != "" {
		c.Nickname = other.Nickname
	}
	if other.Token != "" {
		c.Token = other.Token
	}
	if other.Cooldown != 0 {
		c.Cooldown = other.Cooldown
	}
	if other.MaxPublicLen != 0 {
		c.MaxPublicLen = other.MaxPublicLen
	}
	if other.RequestTimeout != 0 {
		c.RequestTimeout = other.RequestTimeout
	}
	if other.CachePath != "" {
		c.CachePath = other.CachePath
	}
	if other.StatePath != "" {
		c.StatePath = other.StatePath
	}
	if other.LogLevel != "" {
		c.LogLevel = other.LogLevel
	}
}

// Package config provides configuration loading for ptgbot.
package config

import (
	"errors"
	"fmt"
	"strings"
)

// Config is the full process configuration.
type Config struct {
	IRC  IRCConfig  `koanf:"irc"`
	HTTP HTTPConfig `koanf:"http"`
	DB   DBConfig   `koanf:"db"`
	Log  LogConfig  `koanf:"log"`
}

// IRCConfig holds chat transport settings.
type IRCConfig struct {
	Server       string `koanf:"server"`
	Port         int    `koanf:"port"`
	TLS          bool   `koanf:"tls"`
	Nick         string `koanf:"nick"`
	Ident        string `koanf:"ident"`
	RealName     string `koanf:"realname"`
	SASLLogin    string `koanf:"sasl_login"`
	SASLPassword string `koanf:"sasl_password"`
	Channel      string `koanf:"channel"`
}

// HTTPConfig holds the read-only web server settings.
type HTTPConfig struct {
	Host string `koanf:"host"`
	Port int    `koanf:"port"`
	// SourceDir holds the static dashboard files; empty disables them.
	SourceDir string `koanf:"source_dir"`
}

// DBConfig locates the event-state document.
type DBConfig struct {
	Filename string `koanf:"filename"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// applyDefaults fills in values for fields the file and environment
// left unset.
func applyDefaults(cfg *Config) {
	if cfg.IRC.Port == 0 {
		cfg.IRC.Port = 6697
		cfg.IRC.TLS = true
	}
	if cfg.HTTP.Host == "" {
		cfg.HTTP.Host = "localhost"
	}
	if cfg.HTTP.Port == 0 {
		cfg.HTTP.Port = 8000
	}
	if cfg.DB.Filename == "" {
		cfg.DB.Filename = "ptg.json"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
}

// Validate checks required fields and value shapes.
func (c *Config) Validate() error {
	var problems []string
	if c.IRC.Server == "" {
		problems = append(problems, "irc.server is required")
	}
	if c.IRC.Nick == "" {
		problems = append(problems, "irc.nick is required")
	}
	if c.IRC.Channel == "" {
		problems = append(problems, "irc.channel is required")
	} else if !strings.HasPrefix(c.IRC.Channel, "#") {
		problems = append(problems, "irc.channel must start with '#'")
	}
	if c.IRC.Port <= 0 || c.IRC.Port > 65535 {
		problems = append(problems, fmt.Sprintf("irc.port %d out of range", c.IRC.Port))
	}
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		problems = append(problems, fmt.Sprintf("http.port %d out of range", c.HTTP.Port))
	}
	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}

// Package config loads server settings from the environment and an
// optional .env file.
package config

import (
	"github.com/spf13/viper"
)

// Config holds all runtime configuration loaded from environment variables.
type Config struct {
	// Server
	Port         int    `mapstructure:"PORT"`
	StaticDir    string `mapstructure:"STATIC_DIR"`
	SecureCookie bool   `mapstructure:"SECURE_COOKIE"`

	// Storage
	DBPath string `mapstructure:"DB_PATH"`

	// Seed admin, used only when no users are stored yet
	AdminUser     string `mapstructure:"ADMIN_USER"`
	AdminPassword string `mapstructure:"ADMIN_PASSWORD"`

	// Policy
	HashPasswords     bool `mapstructure:"HASH_PASSWORDS"`
	AllowSelfApproval bool `mapstructure:"ALLOW_SELF_APPROVAL"`

	// Logging
	LogLevel  string `mapstructure:"LOG_LEVEL"`
	LogFormat string `mapstructure:"LOG_FORMAT"` // console | json
}

// Load reads configuration from environment variables and, when present, a
// .env file in dir.
func Load(dir string) (*Config, error) {
	v := viper.New()
	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(dir)
	v.AutomaticEnv()

	v.SetDefault("PORT", 8080)
	v.SetDefault("STATIC_DIR", "web/static")
	v.SetDefault("SECURE_COOKIE", false)
	v.SetDefault("DB_PATH", "expenses.db")
	v.SetDefault("ADMIN_USER", "admin")
	v.SetDefault("ADMIN_PASSWORD", "admin")
	v.SetDefault("HASH_PASSWORDS", false)
	v.SetDefault("ALLOW_SELF_APPROVAL", false)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "console")

	// Optional .env file for local development; a missing file is fine
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

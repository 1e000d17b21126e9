package config

import (
	"fmt"
	"log"

	"github.com/spf13/viper"
)

// global configuration structure
type Config struct {
	Bot       BotConfig       `mapstructure:"bot"`
	Admins    AdminsConfig    `mapstructure:"admins"`
	Logger    LoggerConfig    `mapstructure:"logger"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Broadcast BroadcastConfig `mapstructure:"broadcast"`
}

// Telegram bot configuration
type BotConfig struct {
	Token   string        `mapstructure:"token"`
	Webhook WebhookConfig `mapstructure:"webhook"`
}

// webhook server configuration
type WebhookConfig struct {
	Endpoint   string `mapstructure:"endpoint"`
	ListenPort string `mapstructure:"listen_port"`
	HealthPath string `mapstructure:"health_path"`
	CertFile   string `mapstructure:"cert_file"`
	KeyFile    string `mapstructure:"key_file"`
}

// administrative access control
type AdminsConfig struct {
	OwnerID  int64   `mapstructure:"owner_id"`
	AdminIDs []int64 `mapstructure:"admin_ids"`
}

// logging configuration
type LoggerConfig struct {
	Directory  string            `mapstructure:"directory"`
	Rotation   LogRotationConfig `mapstructure:"rotation"`
	TimeFormat string            `mapstructure:"time_format"`
	Level      string            `mapstructure:"level"`
}

// log rotation settings
type LogRotationConfig struct {
	MaxSize    int  `mapstructure:"max_size"`
	MaxBackups int  `mapstructure:"max_backups"`
	MaxAge     int  `mapstructure:"max_age"`
	Compress   bool `mapstructure:"compress"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	Charset  string `mapstructure:"charset"`
}

// broadcast delivery tuning
type BroadcastConfig struct {
	SendDelayMs          int `mapstructure:"send_delay_ms"`
	RateLimitCooldownSec int `mapstructure:"rate_limit_cooldown_sec"`
	ProgressBatchSize    int `mapstructure:"progress_batch_size"`
}

var cfg *Config

func Load(configPath string) (*Config, error) {
	if configPath == "" {
		return nil, fmt.Errorf("config file path is required")
	}

	v := viper.New()

	setDefaults(v)

	v.SetConfigFile(configPath)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	log.Printf("Using config file: %s", v.ConfigFileUsed())

	// Unmarshal configuration
	cfg = &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	return cfg, nil
}

func Get() *Config {
	if cfg == nil {
		log.Fatal("Configuration not initialized, call Load() first")
	}
	return cfg
}

// IsSudoUser reports whether the given id belongs to the configured
// owner or admin set.
func (c *Config) IsSudoUser(userID int64) bool {
	if userID != 0 && userID == c.Admins.OwnerID {
		return true
	}
	for _, id := range c.Admins.AdminIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// SudoUserIDs returns the owner id followed by the admin ids, deduplicated.
func (c *Config) SudoUserIDs() []int64 {
	ids := make([]int64, 0, len(c.Admins.AdminIDs)+1)
	seen := make(map[int64]bool)
	if c.Admins.OwnerID != 0 {
		ids = append(ids, c.Admins.OwnerID)
		seen[c.Admins.OwnerID] = true
	}
	for _, id := range c.Admins.AdminIDs {
		if id != 0 && !seen[id] {
			ids = append(ids, id)
			seen[id] = true
		}
	}
	return ids
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("bot.webhook.listen_port", "8443")
	v.SetDefault("bot.webhook.health_path", "/healthz")
	v.SetDefault("bot.webhook.cert_file", "")
	v.SetDefault("bot.webhook.key_file", "")

	v.SetDefault("logger.directory", "logs")
	v.SetDefault("logger.rotation.max_size", 10)
	v.SetDefault("logger.rotation.max_backups", 30)
	v.SetDefault("logger.rotation.max_age", 90)
	v.SetDefault("logger.rotation.compress", true)
	v.SetDefault("logger.time_format", "2006/01/02 15:04:05")
	v.SetDefault("logger.level", "INFO")

	v.SetDefault("database.port", 3306)
	v.SetDefault("database.charset", "utf8mb4")

	v.SetDefault("broadcast.send_delay_ms", 100)
	v.SetDefault("broadcast.rate_limit_cooldown_sec", 30)
	v.SetDefault("broadcast.progress_batch_size", 20)
}

package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Environment   string             `mapstructure:"environment"`
	LogLevel      string             `mapstructure:"log_level"`
	Database      DatabaseConfig     `mapstructure:"database"`
	Redis         RedisConfig        `mapstructure:"redis"`
	Telegram      TelegramConfig     `mapstructure:"telegram"`
	Feed          FeedConfig         `mapstructure:"feed"`
	Watcher       WatcherConfig      `mapstructure:"watcher"`
	Notifications NotificationConfig `mapstructure:"notifications"`
	Telemetry     TelemetryConfig    `mapstructure:"telemetry"`
}

type DatabaseConfig struct {
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	DBName          string `mapstructure:"dbname"`
	SSLMode         string `mapstructure:"sslmode"`
	DatabaseURL     string `mapstructure:"database_url"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetime string `mapstructure:"conn_max_lifetime"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type TelegramConfig struct {
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
}

type FeedConfig struct {
	WSURL   string `mapstructure:"ws_url"`
	ChainID int64  `mapstructure:"chain_id"`
}

type WatcherConfig struct {
	HistoryWindowHours int    `mapstructure:"history_window_hours"`
	EventBufferSize    int    `mapstructure:"event_buffer_size"`
	LockTimeout        string `mapstructure:"lock_timeout"`
	PersistTimeout     string `mapstructure:"persist_timeout"`
	DispatchTimeout    string `mapstructure:"dispatch_timeout"`
	MaxRetries         int    `mapstructure:"max_retries"`
	RetryBackoff       string `mapstructure:"retry_backoff"`
	PioneerHistoryCap  int    `mapstructure:"pioneer_history_cap"`
}

type NotificationConfig struct {
	MinConfidence float64 `mapstructure:"min_confidence"`
}

type TelemetryConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// HistoryWindow returns the matcher's rolling window as a duration.
func (w WatcherConfig) HistoryWindow() time.Duration {
	return time.Duration(w.HistoryWindowHours) * time.Hour
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath(".")

	// Set default values
	setDefaults()

	// Enable environment variable support
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.BindEnv("telegram.bot_token", "TELEGRAM_BOT_TOKEN"); err != nil {
		return nil, fmt.Errorf("failed to bind TELEGRAM_BOT_TOKEN environment variable: %w", err)
	}

	// Read config file
	if err := viper.ReadInConfig(); err != nil {
		// Config file not found, use defaults and environment variables
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	// Normalize environment to lowercase for consistent comparison
	config.Environment = strings.ToLower(config.Environment)

	if config.Watcher.HistoryWindowHours <= 0 {
		return nil, fmt.Errorf("watcher.history_window_hours must be positive, got %d", config.Watcher.HistoryWindowHours)
	}
	for name, raw := range map[string]string{
		"watcher.lock_timeout":     config.Watcher.LockTimeout,
		"watcher.persist_timeout":  config.Watcher.PersistTimeout,
		"watcher.dispatch_timeout": config.Watcher.DispatchTimeout,
		"watcher.retry_backoff":    config.Watcher.RetryBackoff,
	} {
		if raw == "" {
			continue
		}
		if _, err := time.ParseDuration(raw); err != nil {
			return nil, fmt.Errorf("invalid %s duration: %w", name, err)
		}
	}
	if config.Notifications.MinConfidence < 0 || config.Notifications.MinConfidence > 1 {
		return nil, fmt.Errorf("notifications.min_confidence must be in [0,1], got %f", config.Notifications.MinConfidence)
	}

	return &config, nil
}

func setDefaults() {
	// Environment
	viper.SetDefault("environment", "development")
	viper.SetDefault("log_level", "info")

	// Set database defaults
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.user", "postgres")
	viper.SetDefault("database.password", "postgres")
	viper.SetDefault("database.dbname", "pioneerwatch")
	viper.SetDefault("database.sslmode", "disable")
	viper.SetDefault("database.database_url", "")
	viper.SetDefault("database.max_open_conns", 25)
	viper.SetDefault("database.max_idle_conns", 5)
	viper.SetDefault("database.conn_max_lifetime", "300s")

	// Redis
	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)

	// Telegram
	viper.SetDefault("telegram.bot_token", "")
	viper.SetDefault("telegram.chat_id", "")

	// Feed
	viper.SetDefault("feed.ws_url", "ws://localhost:8546")
	viper.SetDefault("feed.chain_id", 1)

	// Watcher
	viper.SetDefault("watcher.history_window_hours", 24)
	viper.SetDefault("watcher.event_buffer_size", 256)
	viper.SetDefault("watcher.lock_timeout", "5s")
	viper.SetDefault("watcher.persist_timeout", "5s")
	viper.SetDefault("watcher.dispatch_timeout", "10s")
	viper.SetDefault("watcher.max_retries", 3)
	viper.SetDefault("watcher.retry_backoff", "200ms")
	viper.SetDefault("watcher.pioneer_history_cap", 500)

	// Notifications
	viper.SetDefault("notifications.min_confidence", 0.8)

	// Telemetry
	viper.SetDefault("telemetry.enabled", false)
}

// Package config loads service configuration from yaml and the environment.
package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the full service configuration.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Cache      CacheConfig      `mapstructure:"cache"`
	Queue      QueueConfig      `mapstructure:"queue"`
	Settlement SettlementConfig `mapstructure:"settlement"`
	Log        LogConfig        `mapstructure:"log"`
}

type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type DatabaseConfig struct {
	Driver string `mapstructure:"driver"` // postgres | sqlite
	DSN    string `mapstructure:"dsn"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type CacheConfig struct {
	Driver     string        `mapstructure:"driver"` // redis | memory
	Version    int           `mapstructure:"version"`
	DefaultTTL time.Duration `mapstructure:"default_ttl"`
	ListingTTL time.Duration `mapstructure:"listing_ttl"`
	HistoryTTL time.Duration `mapstructure:"history_ttl"`
}

type QueueConfig struct {
	Driver   string      `mapstructure:"driver"` // memory | kafka
	Capacity int         `mapstructure:"capacity"`
	Kafka    KafkaConfig `mapstructure:"kafka"`
}

type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
	GroupID string   `mapstructure:"group_id"`
}

type SettlementConfig struct {
	Workers      int           `mapstructure:"workers"`
	MaxRetries   int           `mapstructure:"max_retries"`
	RetryBackoff time.Duration `mapstructure:"retry_backoff"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

// Load reads configuration from the given yaml file, if present, with
// TRADELEDGER_* environment variables taking precedence.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("TRADELEDGER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.shutdown_timeout", 15*time.Second)

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "tradeledger.db")

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)

	v.SetDefault("cache.driver", "redis")
	v.SetDefault("cache.version", 1)
	v.SetDefault("cache.default_ttl", 5*time.Minute)
	v.SetDefault("cache.listing_ttl", time.Minute)
	v.SetDefault("cache.history_ttl", 5*time.Minute)

	v.SetDefault("queue.driver", "memory")
	v.SetDefault("queue.capacity", 1024)
	v.SetDefault("queue.kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("queue.kafka.topic", "settlement-tasks")
	v.SetDefault("queue.kafka.group_id", "tradeledger-settlement")

	v.SetDefault("settlement.workers", 4)
	v.SetDefault("settlement.max_retries", 3)
	v.SetDefault("settlement.retry_backoff", 50*time.Millisecond)

	v.SetDefault("log.level", "info")
}

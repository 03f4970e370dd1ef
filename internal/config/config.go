package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Auth      AuthConfig      `yaml:"auth"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	SMTP      SMTPConfig      `yaml:"smtp"`
	Reconcile ReconcileConfig `yaml:"reconcile"`
	Outbox    OutboxConfig    `yaml:"outbox"`
	Log       LogConfig       `yaml:"log"`
}

type ServerConfig struct {
	Addr           string   `yaml:"addr"`
	Mode           string   `yaml:"mode"` // debug / release / test
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// DatabaseConfig 四个独立的库：communities / users / threads / replies
type DatabaseConfig struct {
	Driver      string `yaml:"driver"` // sqlite / mysql
	Communities string `yaml:"communities"`
	Users       string `yaml:"users"`
	Threads     string `yaml:"threads"`
	Replies     string `yaml:"replies"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type AuthConfig struct {
	Secret       string        `yaml:"secret"`
	TokenTTL     time.Duration `yaml:"token_ttl"`
	CookieName   string        `yaml:"cookie_name"`
	CookieSecure bool          `yaml:"cookie_secure"`
}

type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
}

type ReconcileConfig struct {
	Interval  time.Duration `yaml:"interval"`
	BatchSize int           `yaml:"batch_size"`
}

type OutboxConfig struct {
	Interval  time.Duration `yaml:"interval"`
	BatchSize int           `yaml:"batch_size"`
	MaxRetry  int           `yaml:"max_retry"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

// Default 开发环境默认配置
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:           ":8080",
			Mode:           "debug",
			AllowedOrigins: []string{"*"},
		},
		Database: DatabaseConfig{
			Driver:      "sqlite",
			Communities: "data/communities.db",
			Users:       "data/users.db",
			Threads:     "data/threads.db",
			Replies:     "data/replies.db",
		},
		Redis: RedisConfig{Addr: "127.0.0.1:6379"},
		Auth: AuthConfig{
			Secret:     "change-me",
			TokenTTL:   7 * 24 * time.Hour,
			CookieName: "token",
		},
		Kafka: KafkaConfig{Topic: "community.membership"},
		SMTP:  SMTPConfig{Port: 587},
		Reconcile: ReconcileConfig{
			Interval:  10 * time.Minute,
			BatchSize: 200,
		},
		Outbox: OutboxConfig{
			Interval:  time.Second,
			BatchSize: 200,
			MaxRetry:  5,
		},
		Log: LogConfig{Level: "info"},
	}
}

// Load 读取顺序：默认值 -> yaml 文件 -> .env / 环境变量
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err = yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	// .env 不存在时忽略
	_ = godotenv.Load()
	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.Server.Mode {
	case "", "debug", "release", "test":
	default:
		return fmt.Errorf("unsupported server mode %q", c.Server.Mode)
	}
	switch c.Database.Driver {
	case "sqlite", "mysql":
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	if c.Database.Communities == "" || c.Database.Users == "" ||
		c.Database.Threads == "" || c.Database.Replies == "" {
		return fmt.Errorf("all four database DSNs are required")
	}
	if c.Auth.Secret == "" {
		return fmt.Errorf("auth secret is required")
	}
	if c.Auth.TokenTTL <= 0 {
		return fmt.Errorf("auth token_ttl must be positive")
	}
	return nil
}

func applyEnv(c *Config) {
	setString(&c.Server.Addr, "HOPE_ADDR")
	setString(&c.Server.Mode, "HOPE_MODE")
	if v := os.Getenv("HOPE_ALLOWED_ORIGINS"); v != "" {
		c.Server.AllowedOrigins = strings.Split(v, ",")
	}
	setString(&c.Database.Driver, "HOPE_DB_DRIVER")
	setString(&c.Database.Communities, "HOPE_DB_COMMUNITIES")
	setString(&c.Database.Users, "HOPE_DB_USERS")
	setString(&c.Database.Threads, "HOPE_DB_THREADS")
	setString(&c.Database.Replies, "HOPE_DB_REPLIES")
	setString(&c.Redis.Addr, "HOPE_REDIS_ADDR")
	setString(&c.Redis.Password, "HOPE_REDIS_PASSWORD")
	if v, err := strconv.Atoi(os.Getenv("HOPE_REDIS_DB")); err == nil {
		c.Redis.DB = v
	}
	setString(&c.Auth.Secret, "HOPE_AUTH_SECRET")
	if v, err := time.ParseDuration(os.Getenv("HOPE_TOKEN_TTL")); err == nil {
		c.Auth.TokenTTL = v
	}
	if v := os.Getenv("HOPE_KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
	}
	setString(&c.Kafka.Topic, "HOPE_KAFKA_TOPIC")
	setString(&c.SMTP.Host, "HOPE_SMTP_HOST")
	if v, err := strconv.Atoi(os.Getenv("HOPE_SMTP_PORT")); err == nil {
		c.SMTP.Port = v
	}
	setString(&c.SMTP.Username, "HOPE_SMTP_USERNAME")
	setString(&c.SMTP.Password, "HOPE_SMTP_PASSWORD")
	setString(&c.SMTP.From, "HOPE_SMTP_FROM")
	setString(&c.Log.Level, "HOPE_LOG_LEVEL")
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

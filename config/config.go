package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config 应用配置
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Log       LogConfig       `mapstructure:"log"`
	JWT       JWTConfig       `mapstructure:"jwt"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Messaging MessagingConfig `mapstructure:"messaging"`
	Sentry    SentryConfig    `mapstructure:"sentry"`
	Tracing   TracingConfig   `mapstructure:"tracing"`
}

type ServerConfig struct {
	Port         int           `mapstructure:"port"`
	Mode         string        `mapstructure:"mode"` // debug, release, test
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"` // postgres, sqlite
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

type JWTConfig struct {
	Secret string `mapstructure:"secret"`
	Issuer string `mapstructure:"issuer"`
}

// StorageConfig 对象存储；driver=local 时写本地目录，driver=cloudinary 时使用 CloudinaryURL
type StorageConfig struct {
	Driver        string `mapstructure:"driver"`
	Bucket        string `mapstructure:"bucket"`
	LocalDir      string `mapstructure:"local_dir"`
	PublicBaseURL string `mapstructure:"public_base_url"`
	CloudinaryURL string `mapstructure:"cloudinary_url"`
}

// MessagingConfig 消息子系统：存储超时、实时 feed、outbox relay
type MessagingConfig struct {
	StoreTimeout     time.Duration `mapstructure:"store_timeout"`
	Feed             string        `mapstructure:"feed"` // memory, redis
	FeedChannel      string        `mapstructure:"feed_channel"`
	FeedBuffer       int           `mapstructure:"feed_buffer"`
	SessionBuffer    int           `mapstructure:"session_buffer"`
	RelayWorkers     int           `mapstructure:"relay_workers"`
	RelayClaimLimit  int           `mapstructure:"relay_claim_limit"`
	RelayPoll        time.Duration `mapstructure:"relay_poll"`
	RelayMaxAttempts int           `mapstructure:"relay_max_attempts"`
	ReclaimSpec      string        `mapstructure:"reclaim_spec"`
	ReclaimAfter     time.Duration `mapstructure:"reclaim_after"`
	OutboxRetention  time.Duration `mapstructure:"outbox_retention"`
	ProfileCacheTTL  time.Duration `mapstructure:"profile_cache_ttl"`
	SendRate         float64       `mapstructure:"send_rate"` // messages per second per user
	SendBurst        int           `mapstructure:"send_burst"`
}

type SentryConfig struct {
	DSN         string `mapstructure:"dsn"`
	Environment string `mapstructure:"environment"`
}

type TracingConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Endpoint    string `mapstructure:"endpoint"`
	ServiceName string `mapstructure:"service_name"`
	Insecure    bool   `mapstructure:"insecure"`
}

// Load 读取配置：默认值 < config.yaml < 环境变量（UNYX_ 前缀）
func Load() (*Config, error) {
	return LoadFile("")
}

// LoadFile is Load with an explicit config file path. An empty path searches
// ./config.yaml and ./config/config.yaml; a missing file is not an error then.
func LoadFile(path string) (*Config, error) {
	// .env 可选
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("UNYX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.read_timeout", 15*time.Second)
	// 0 关闭写超时，SSE 长连接需要
	v.SetDefault("server.write_timeout", 0)

	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.dsn", "host=localhost user=postgres password=postgres dbname=unyx port=5432 sslmode=disable")
	v.SetDefault("database.max_open_conns", 50)
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.auto_migrate", true)

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)

	v.SetDefault("jwt.secret", "")
	v.SetDefault("jwt.issuer", "")

	v.SetDefault("storage.driver", "local")
	v.SetDefault("storage.bucket", "marketplace")
	v.SetDefault("storage.local_dir", "./data/storage")
	v.SetDefault("storage.public_base_url", "/storage")

	v.SetDefault("messaging.store_timeout", 5*time.Second)
	v.SetDefault("messaging.feed", "memory")
	v.SetDefault("messaging.feed_channel", "marketplace_messages:insert")
	v.SetDefault("messaging.feed_buffer", 256)
	v.SetDefault("messaging.session_buffer", 64)
	v.SetDefault("messaging.relay_workers", 2)
	v.SetDefault("messaging.relay_claim_limit", 128)
	v.SetDefault("messaging.relay_poll", 50*time.Millisecond)
	v.SetDefault("messaging.relay_max_attempts", 10)
	v.SetDefault("messaging.reclaim_spec", "@every 1m")
	v.SetDefault("messaging.reclaim_after", 2*time.Minute)
	v.SetDefault("messaging.outbox_retention", 24*time.Hour)
	v.SetDefault("messaging.profile_cache_ttl", 10*time.Minute)
	v.SetDefault("messaging.send_rate", 2.0)
	v.SetDefault("messaging.send_burst", 10)

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.endpoint", "localhost:4318")
	v.SetDefault("tracing.service_name", "unyx-social")
	v.SetDefault("tracing.insecure", true)
}

// Validate 校验配置取值
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("config: unsupported database driver %q", c.Database.Driver)
	}
	switch c.Messaging.Feed {
	case "memory":
	case "redis":
		if !c.Redis.Enabled {
			return errors.New("config: messaging.feed=redis requires redis.enabled")
		}
	default:
		return fmt.Errorf("config: unsupported messaging feed %q", c.Messaging.Feed)
	}
	switch c.Storage.Driver {
	case "local":
	case "cloudinary":
		if c.Storage.CloudinaryURL == "" {
			return errors.New("config: storage.cloudinary_url is required for the cloudinary driver")
		}
	default:
		return fmt.Errorf("config: unsupported storage driver %q", c.Storage.Driver)
	}
	if c.Messaging.StoreTimeout <= 0 {
		return errors.New("config: messaging.store_timeout must be positive")
	}
	return nil
}

// Addr 返回 gin 监听地址
func (c *ServerConfig) Addr() string { return fmt.Sprintf(":%d", c.Port) }

package config

import (
	"time"

	"github.com/emrgen/linkfeed/internal/store"
	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"gorm.io/gorm"
)

// Config is read from LINKFEED_* environment variables, a .env file in
// the working directory included.
type Config struct {
	Env      string
	LogLevel string

	HttpURL   string
	WsURL     string
	Protocol  string
	AuthToken string
	TokenDir  string

	RequestTimeout   time.Duration
	ReconnectTimeout time.Duration
	ReadTimeout      time.Duration

	// Cache selects the record store: memory or redis.
	Cache         string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisTTL      time.Duration
	Compression   string

	// DbDriver is sqlite, postgres or none, which disables snapshots.
	DbDriver         string
	DbDSN            string
	SnapshotSchedule string
	SnapshotRetain   time.Duration
	// RefreshSchedule refetches the feed on a cron schedule, empty disables it.
	RefreshSchedule string

	// ServerPort, ServerQueue and JwtSecret configure the development
	// server. ServerQueue is memory or redis.
	ServerPort  string
	ServerQueue string
	JwtSecret   string
}

func defaults(v *viper.Viper) {
	v.SetDefault("env", "dev")
	v.SetDefault("log_level", "info")
	v.SetDefault("http_url", "http://localhost:4000")
	v.SetDefault("ws_url", "ws://localhost:4000")
	v.SetDefault("protocol", "graphql-ws")
	v.SetDefault("token_dir", "")
	v.SetDefault("request_timeout", "30s")
	v.SetDefault("reconnect_timeout", "2s")
	v.SetDefault("read_timeout", "0s")
	v.SetDefault("cache", "memory")
	v.SetDefault("redis_addr", "localhost:6379")
	v.SetDefault("redis_db", 0)
	v.SetDefault("redis_ttl", "0s")
	v.SetDefault("compression", "none")
	v.SetDefault("db_driver", "none")
	v.SetDefault("db_dsn", ".linkfeed/snapshots.db")
	v.SetDefault("snapshot_schedule", "@every 1m")
	v.SetDefault("snapshot_retain", "24h")
	v.SetDefault("server_port", "4000")
	v.SetDefault("server_queue", "memory")
	v.SetDefault("jwt_secret", "linkfeed-dev-secret")
}

// LoadConfig reads the configuration and applies its log level.
func LoadConfig() *Config {
	v := viper.New()
	v.SetEnvPrefix("linkfeed")
	v.AutomaticEnv()
	defaults(v)

	cfg := &Config{
		Env:              v.GetString("env"),
		LogLevel:         v.GetString("log_level"),
		HttpURL:          v.GetString("http_url"),
		WsURL:            v.GetString("ws_url"),
		Protocol:         v.GetString("protocol"),
		AuthToken:        v.GetString("auth_token"),
		TokenDir:         v.GetString("token_dir"),
		RequestTimeout:   v.GetDuration("request_timeout"),
		ReconnectTimeout: v.GetDuration("reconnect_timeout"),
		ReadTimeout:      v.GetDuration("read_timeout"),
		Cache:            v.GetString("cache"),
		RedisAddr:        v.GetString("redis_addr"),
		RedisPassword:    v.GetString("redis_password"),
		RedisDB:          v.GetInt("redis_db"),
		RedisTTL:         v.GetDuration("redis_ttl"),
		Compression:      v.GetString("compression"),
		DbDriver:         v.GetString("db_driver"),
		DbDSN:            v.GetString("db_dsn"),
		SnapshotSchedule: v.GetString("snapshot_schedule"),
		SnapshotRetain:   v.GetDuration("snapshot_retain"),
		RefreshSchedule:  v.GetString("refresh_schedule"),
		ServerPort:       v.GetString("server_port"),
		ServerQueue:      v.GetString("server_queue"),
		JwtSecret:        v.GetString("jwt_secret"),
	}

	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		logrus.SetLevel(level)
	} else {
		logrus.Warnf("invalid log level %q, keeping %s", cfg.LogLevel, logrus.GetLevel())
	}

	return cfg
}

// SnapshotsEnabled reports whether a snapshot database is configured.
func (c *Config) SnapshotsEnabled() bool {
	return c.DbDriver != "" && c.DbDriver != "none"
}

// GetDb opens the snapshot database.
func GetDb(cfg *Config) (*gorm.DB, error) {
	db, err := store.Open(cfg.DbDriver, cfg.DbDSN)
	if err != nil {
		return nil, err
	}
	logrus.Debugf("connected to %s database", cfg.DbDriver)
	return db, nil
}

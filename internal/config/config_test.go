package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg := LoadConfig()

	assert.Equal(t, "http://localhost:4000", cfg.HttpURL)
	assert.Equal(t, "ws://localhost:4000", cfg.WsURL)
	assert.Equal(t, "graphql-ws", cfg.Protocol)
	assert.Equal(t, "memory", cfg.Cache)
	assert.Equal(t, 30*time.Second, cfg.RequestTimeout)
	assert.Equal(t, "memory", cfg.ServerQueue)
	assert.False(t, cfg.SnapshotsEnabled())
}

func TestLoadConfig_Env(t *testing.T) {
	t.Setenv("LINKFEED_HTTP_URL", "https://api.example.com/graphql")
	t.Setenv("LINKFEED_CACHE", "redis")
	t.Setenv("LINKFEED_REDIS_DB", "3")
	t.Setenv("LINKFEED_RECONNECT_TIMEOUT", "250ms")
	t.Setenv("LINKFEED_DB_DRIVER", "sqlite")

	cfg := LoadConfig()
	assert.Equal(t, "https://api.example.com/graphql", cfg.HttpURL)
	assert.Equal(t, "redis", cfg.Cache)
	assert.Equal(t, 3, cfg.RedisDB)
	assert.Equal(t, 250*time.Millisecond, cfg.ReconnectTimeout)
	assert.True(t, cfg.SnapshotsEnabled())
}

func TestGetDb(t *testing.T) {
	cfg := &Config{DbDriver: "sqlite", DbDSN: filepath.Join(t.TempDir(), "snapshots.db")}
	db, err := GetDb(cfg)
	require.NoError(t, err)
	assert.NotNil(t, db)

	_, err = GetDb(&Config{DbDriver: "oracle"})
	assert.Error(t, err)
}

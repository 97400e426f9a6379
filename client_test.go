package linkfeed

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/emrgen/linkfeed/internal/config"
	"github.com/emrgen/linkfeed/internal/model"
	"github.com/emrgen/linkfeed/internal/service"
	"github.com/emrgen/linkfeed/internal/store"
	"github.com/emrgen/linkfeed/internal/tester"
	"github.com/emrgen/linkfeed/internal/token"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T, server *tester.Server) *config.Config {
	return &config.Config{
		HttpURL:          server.HttpURL(),
		WsURL:            server.WsURL(),
		Protocol:         "graphql-ws",
		TokenDir:         filepath.Join(t.TempDir(), "context"),
		RequestTimeout:   5 * time.Second,
		ReconnectTimeout: 100 * time.Millisecond,
		Cache:            "memory",
		Compression:      "gzip",
		DbDriver:         store.DriverSqlite,
		DbDSN:            filepath.Join(t.TempDir(), "snapshots.db"),
		SnapshotSchedule: "@every 1m",
		SnapshotRetain:   time.Hour,
	}
}

func TestClient_SnapshotAcrossRuns(t *testing.T) {
	ctx := context.Background()
	server := tester.NewServer(t)
	cfg := testConfig(t, server)

	first, err := NewClient(ctx, cfg, nil)
	require.NoError(t, err)

	_, err = first.Auth().Signup(ctx, "alice@example.com", "secret", "alice")
	require.NoError(t, err)
	link, err := first.Links().Post(ctx, "https://go.dev", "The Go language")
	require.NoError(t, err)
	_, err = first.Links().Feed(ctx)
	require.NoError(t, err)
	require.NoError(t, first.Close())

	// the token was saved in the context file
	stored, err := token.NewFileStore(cfg.TokenDir).Token()
	require.NoError(t, err)
	assert.NotEmpty(t, stored)

	// the next run starts with the saved cache
	second, err := NewClient(ctx, cfg, nil)
	require.NoError(t, err)
	defer second.Close()

	feed, err := second.Cache().ReadQuery(ctx, service.FeedQuery, nil)
	require.NoError(t, err)
	links := feed["feed"].(map[string]any)["links"].([]any)
	require.Len(t, links, 1)
	assert.Equal(t, link.ID, links[0].(map[string]any)["id"])

	snapshots, err := second.Snapshots().List(ctx)
	require.NoError(t, err)
	assert.Len(t, snapshots, 1)

	claims, err := second.Auth().Whoami()
	require.NoError(t, err)
	assert.NotEmpty(t, claims.UserID)
}

func TestClient_RedisCache(t *testing.T) {
	ctx := context.Background()
	server := tester.NewServer(t)
	cfg := testConfig(t, server)
	cfg.DbDriver = "none"
	cfg.Cache = "redis"
	cfg.Compression = "lz4"
	cfg.RedisAddr = tester.Redis(t).Options().Addr

	c, err := NewClient(ctx, cfg, token.NewMemoryStore(""))
	require.NoError(t, err)
	defer c.Close()
	assert.Nil(t, c.Snapshots())
	require.NoError(t, c.StartSync())

	_, err = c.Auth().Signup(ctx, "alice@example.com", "secret", "alice")
	require.NoError(t, err)
	_, err = c.Links().Post(ctx, "https://go.dev", "The Go language")
	require.NoError(t, err)

	feed, err := c.Links().Feed(ctx)
	require.NoError(t, err)
	require.Len(t, feed.Links, 1)

	size, err := c.Cache().Size(ctx)
	require.NoError(t, err)
	assert.Positive(t, size)
}

func TestClient_RefreshSchedule(t *testing.T) {
	ctx := context.Background()
	server := tester.NewServer(t)
	cfg := testConfig(t, server)
	cfg.DbDriver = "none"
	cfg.RefreshSchedule = "@every 1s"

	c, err := NewClient(ctx, cfg, token.NewMemoryStore(""))
	require.NoError(t, err)
	defer c.Close()
	require.NoError(t, c.StartSync())

	// posted behind the client's back
	link := &model.Link{ID: uuid.New().String(), URL: "https://go.dev", Description: "The Go language"}
	require.NoError(t, server.Store.CreateLink(ctx, link))

	assert.Eventually(t, func() bool {
		data, err := c.Cache().ReadQuery(ctx, service.FeedQuery, nil)
		if err != nil {
			return false
		}
		links := data["feed"].(map[string]any)["links"].([]any)
		return len(links) == 1 && links[0].(map[string]any)["id"] == link.ID
	}, 5*time.Second, 100*time.Millisecond)
}

func TestClient_BadConfig(t *testing.T) {
	ctx := context.Background()
	server := tester.NewServer(t)

	cfg := testConfig(t, server)
	cfg.Protocol = "graphql-sse"
	_, err := NewClient(ctx, cfg, nil)
	assert.Error(t, err)

	cfg = testConfig(t, server)
	cfg.Cache = "memcached"
	_, err = NewClient(ctx, cfg, nil)
	assert.Error(t, err)
}

func TestTokenStore(t *testing.T) {
	cfg := &config.Config{AuthToken: "fixed"}
	value, err := TokenStore(cfg).Token()
	require.NoError(t, err)
	assert.Equal(t, "fixed", value)

	cfg = &config.Config{TokenDir: t.TempDir()}
	_, ok := TokenStore(cfg).(*token.FileStore)
	assert.True(t, ok)
}

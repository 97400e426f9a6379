package linkfeed

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/emrgen/linkfeed/internal/cache"
	"github.com/emrgen/linkfeed/internal/client"
	"github.com/emrgen/linkfeed/internal/compress"
	"github.com/emrgen/linkfeed/internal/config"
	"github.com/emrgen/linkfeed/internal/job"
	"github.com/emrgen/linkfeed/internal/jobs"
	"github.com/emrgen/linkfeed/internal/service"
	"github.com/emrgen/linkfeed/internal/store"
	"github.com/emrgen/linkfeed/internal/token"
	"github.com/emrgen/linkfeed/internal/transport"
	redis "github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// Client is the link feed client: the services the views use, over a
// shared cache and transports.
type Client interface {
	io.Closer
	Links() *service.LinkService
	Auth() *service.AuthService
	// Snapshots is nil when no snapshot database is configured.
	Snapshots() *service.SnapshotService
	Cache() *cache.Cache
	// StartSync saves cache snapshots on the configured schedule and prunes
	// old ones until Close.
	StartSync() error
}

type linkClient struct {
	client    *client.Client
	ws        *transport.WebSocket
	redis     *redis.Client
	links     *service.LinkService
	auth      *service.AuthService
	snapshots *service.SnapshotService
	pruner    *job.SnapshotPruner
	tasks     *jobs.TaskExecutor
	cfg       *config.Config
}

// NewClient builds a client from cfg. Tokens default to the file store in
// cfg.TokenDir, or a fixed token when cfg.AuthToken is set.
func NewClient(ctx context.Context, cfg *config.Config, tokens token.Store) (Client, error) {
	if tokens == nil {
		tokens = TokenStore(cfg)
	}

	protocol, err := transport.ParseProtocol(cfg.Protocol)
	if err != nil {
		return nil, err
	}

	httpClient := transport.DefaultHTTPClient()
	if cfg.RequestTimeout > 0 {
		httpClient.Timeout = cfg.RequestTimeout
	}
	request := transport.NewHTTP(cfg.HttpURL, httpClient,
		transport.RequestTimeInterceptor(),
		transport.AuthInterceptor(tokens),
	)

	settings := transport.DefaultWebSocketSettings()
	settings.Protocol = protocol
	if cfg.ReconnectTimeout > 0 {
		settings.ReconnectTimeout = cfg.ReconnectTimeout
	}
	settings.ReadTimeout = cfg.ReadTimeout
	ws := transport.NewWebSocket(ctx, cfg.WsURL, tokens, settings)

	c := &linkClient{ws: ws, cfg: cfg}

	records, err := c.recordStore(ctx)
	if err != nil {
		ws.Close()
		return nil, err
	}

	c.client = client.New(client.Options{
		Transport: transport.NewSplit(request, ws),
		Cache:     cache.New(cache.Options{Store: records}),
	})
	c.links = service.NewLinkService(c.client)
	c.auth = service.NewAuthService(c.client, tokens)

	if cfg.SnapshotsEnabled() {
		if err := c.openSnapshots(ctx); err != nil {
			c.Close()
			return nil, err
		}
	}

	return c, nil
}

// TokenStore is where the session token of cfg lives.
func TokenStore(cfg *config.Config) token.Store {
	if cfg.AuthToken != "" {
		return token.NewMemoryStore(cfg.AuthToken)
	}
	dir := cfg.TokenDir
	if dir == "" {
		dir = token.DefaultDir()
	}
	return token.NewFileStore(dir)
}

func (c *linkClient) recordStore(ctx context.Context) (cache.RecordStore, error) {
	switch c.cfg.Cache {
	case "", "memory":
		return cache.NewMemory(), nil
	case "redis":
		compressor, err := compress.ByName(c.cfg.Compression)
		if err != nil {
			return nil, err
		}
		c.redis = cache.NewRedisClient(c.cfg.RedisAddr, c.cfg.RedisPassword, c.cfg.RedisDB)
		if err := c.redis.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("connect to redis: %w", err)
		}
		return cache.NewRedis(c.redis, compressor, c.cfg.RedisTTL), nil
	}
	return nil, fmt.Errorf("unknown cache %q, expected memory or redis", c.cfg.Cache)
}

func (c *linkClient) openSnapshots(ctx context.Context) error {
	db, err := config.GetDb(c.cfg)
	if err != nil {
		return err
	}
	snapshotStore := store.NewGormStore(db)
	if err := snapshotStore.Migrate(); err != nil {
		return err
	}

	c.snapshots, err = service.NewSnapshotService(c.client.Cache(), snapshotStore, c.cfg.HttpURL, c.cfg.Compression)
	if err != nil {
		return err
	}
	c.pruner = job.NewSnapshotPruner(snapshotStore, c.cfg.HttpURL, c.cfg.SnapshotRetain)

	if _, err := c.snapshots.Restore(ctx); err != nil {
		logrus.Warnf("restore cache snapshot: %v", err)
	}
	return nil
}

func (c *linkClient) Links() *service.LinkService {
	return c.links
}

func (c *linkClient) Auth() *service.AuthService {
	return c.auth
}

func (c *linkClient) Snapshots() *service.SnapshotService {
	return c.snapshots
}

func (c *linkClient) Cache() *cache.Cache {
	return c.client.Cache()
}

func (c *linkClient) StartSync() error {
	if c.tasks != nil {
		return nil
	}

	var tasks []jobs.Job
	var cronTasks []jobs.CronJob
	if c.snapshots != nil {
		tasks = append(tasks, c.pruner)
		cronTasks = append(cronTasks, jobs.NewCacheSyncTask(c.cfg.SnapshotSchedule, c.snapshots))
	}
	if c.cfg.RefreshSchedule != "" {
		cronTasks = append(cronTasks, jobs.NewFeedRefreshTask(c.cfg.RefreshSchedule, c.links))
	}
	if len(tasks) == 0 && len(cronTasks) == 0 {
		return nil
	}

	c.tasks = jobs.NewTaskExecutor(tasks, cronTasks)
	return c.tasks.Run()
}

// Close saves a last snapshot when snapshots are enabled and releases the
// connections.
func (c *linkClient) Close() error {
	var errs []error

	if c.tasks != nil {
		c.tasks.Stop()
	}
	if c.pruner != nil {
		c.pruner.Stop()
	}
	if c.snapshots != nil {
		if _, err := c.snapshots.Save(context.Background()); err != nil {
			errs = append(errs, fmt.Errorf("save cache snapshot: %w", err))
		}
	}
	if err := c.ws.Close(); err != nil {
		errs = append(errs, err)
	}
	if c.redis != nil {
		if err := c.redis.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

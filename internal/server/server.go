package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"time"

	"github.com/emrgen/linkfeed/internal/cache"
	"github.com/emrgen/linkfeed/internal/config"
	"github.com/emrgen/linkfeed/internal/queue"
	"github.com/emrgen/linkfeed/internal/store"
	_ "github.com/joho/godotenv/autoload"
	"github.com/rs/cors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

const defaultServerDb = ".linkfeed/server.db"

// Options wires the development server to its dependencies.
type Options struct {
	Store  store.Store
	Queue  queue.LinkQueue
	Tokens TokenService
}

// Server is the development GraphQL server for the link feed.
type Server struct {
	handler *Handler
}

// New creates a server. A nil queue falls back to the in-process queue and
// nil tokens to NullTokenService.
func New(opts Options) *Server {
	if opts.Queue == nil {
		opts.Queue = queue.NewMemory()
	}
	if opts.Tokens == nil {
		opts.Tokens = NewNullTokenService()
	}

	return &Server{
		handler: NewHandler(NewResolver(opts.Store, opts.Queue, opts.Tokens), opts.Tokens),
	}
}

// Handler serves GraphQL on / and /graphql.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/", s.handler)
	mux.Handle("/graphql", s.handler)

	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
	})

	return RequestTimeMiddleware(c.Handler(mux))
}

// Start runs the development server on port until interrupted.
func Start(port string) error {
	cnf := config.LoadConfig()
	if port == "" {
		port = cnf.ServerPort
	}
	addr := ":" + port

	if !cnf.SnapshotsEnabled() {
		cnf.DbDriver = store.DriverSqlite
		cnf.DbDSN = defaultServerDb
	}
	db, err := config.GetDb(cnf)
	if err != nil {
		return err
	}

	linkStore := store.NewGormStore(db)
	if err = linkStore.Migrate(); err != nil {
		return err
	}

	var linkQueue queue.LinkQueue
	switch cnf.ServerQueue {
	case "redis":
		client := cache.NewRedisClient(cnf.RedisAddr, cnf.RedisPassword, cnf.RedisDB)
		defer client.Close()
		if err := client.Ping(context.Background()).Err(); err != nil {
			return fmt.Errorf("connect to redis: %w", err)
		}
		linkQueue = queue.NewRedis(client)
	case "", "memory":
		linkQueue = queue.NewMemory()
	default:
		return fmt.Errorf("unknown server queue %q", cnf.ServerQueue)
	}

	srv := New(Options{
		Store:  linkStore,
		Queue:  linkQueue,
		Tokens: NewJwtTokenService(cnf.JwtSecret, 0),
	})

	l, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// make sure to wait for the server to stop before exiting
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		logrus.Info("starting graphql server on: ", addr)
		logrus.Infof("queries: http://localhost%s/graphql, subscriptions: ws://localhost%s/graphql", addr, addr)
		if err := httpServer.Serve(l); err != nil {
			if !errors.Is(err, http.ErrServerClosed) {
				logrus.Errorf("error starting graphql server: %v", err)
			}
		}
		logrus.Infof("graphql server stopped")
	}()

	time.Sleep(100 * time.Millisecond)
	logrus.Infof("Press Ctrl+C to stop the server")

	// listen for interrupt signal to gracefully shut down the server
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, unix.SIGTERM, unix.SIGINT, unix.SIGTSTP)
	<-sigs
	// clean Ctrl+C output
	fmt.Println()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err = httpServer.Shutdown(ctx); err != nil {
		logrus.Errorf("error stopping graphql server: %v", err)
	}

	wg.Wait()

	return nil
}

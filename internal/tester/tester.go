package tester

import (
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/emrgen/linkfeed/internal/model"
	"github.com/emrgen/linkfeed/internal/queue"
	"github.com/emrgen/linkfeed/internal/server"
	"github.com/emrgen/linkfeed/internal/store"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

const (
	testPath = "../../.test/"

	// Secret signs the tokens of test servers.
	Secret = "linkfeed-test-secret"
)

var (
	db *gorm.DB
)

// Setup creates the shared test database.
func Setup() {
	RemoveDBFile()

	_ = os.Setenv("LINKFEED_ENV", "test")

	var err error
	db, err = store.Open(store.DriverSqlite, testPath+"db/linkfeed.db")
	if err != nil {
		panic(err)
	}

	err = model.Migrate(db)
	if err != nil {
		panic(err)
	}
}

func TestDB() *gorm.DB {
	return db
}

func RemoveDBFile() {
	err := os.RemoveAll(testPath)
	if err != nil {
		panic(err)
	}
}

// Redis starts an in-process redis that lives as long as the test.
func Redis(t testing.TB) *redis.Client {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

// Server is a development GraphQL server on a random local port with its
// own database.
type Server struct {
	*httptest.Server
	Store *store.GormStore
	Queue queue.LinkQueue
}

func NewServer(t testing.TB) *Server {
	gdb, err := store.Open(store.DriverSqlite, filepath.Join(t.TempDir(), "server.db"))
	if err != nil {
		t.Fatalf("open server db: %v", err)
	}
	s := store.NewGormStore(gdb)
	if err := s.Migrate(); err != nil {
		t.Fatalf("migrate server db: %v", err)
	}

	q := queue.NewMemory()
	srv := server.New(server.Options{
		Store:  s,
		Queue:  q,
		Tokens: server.NewJwtTokenService(Secret, time.Hour),
	})

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	return &Server{Server: ts, Store: s, Queue: q}
}

// HttpURL is the endpoint for queries and mutations.
func (s *Server) HttpURL() string {
	return s.URL + "/graphql"
}

// WsURL is the endpoint for subscriptions.
func (s *Server) WsURL() string {
	return "ws" + strings.TrimPrefix(s.URL, "http") + "/graphql"
}

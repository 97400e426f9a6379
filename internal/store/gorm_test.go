package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/emrgen/linkfeed/internal/model"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *GormStore {
	db, err := Open(DriverSqlite, filepath.Join(t.TempDir(), "db", "linkfeed.db"))
	require.NoError(t, err)

	s := NewGormStore(db)
	require.NoError(t, s.Migrate())
	return s
}

func TestGormStore_Links(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	alice := &model.User{ID: uuid.NewString(), Name: "alice", Email: "alice@example.com", Password: "x"}
	require.NoError(t, s.CreateUser(ctx, alice))

	base := time.Now().Add(-time.Hour)
	links := []*model.Link{
		{ID: uuid.NewString(), CreatedAt: base, URL: "https://go.dev", Description: "The Go language", PostedByID: &alice.ID},
		{ID: uuid.NewString(), CreatedAt: base.Add(time.Minute), URL: "https://graphql.org", Description: "GraphQL"},
		{ID: uuid.NewString(), CreatedAt: base.Add(2 * time.Minute), URL: "https://pkg.go.dev", Description: "Go packages"},
	}
	for _, l := range links {
		require.NoError(t, s.CreateLink(ctx, l))
	}

	all, count, err := s.ListLinks(ctx, ListLinksOptions{})
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)
	require.Len(t, all, 3)
	assert.Equal(t, links[2].ID, all[0].ID)
	assert.Equal(t, "alice", all[2].Poster())
	assert.Equal(t, "Unknown", all[1].Poster())

	matched, count, err := s.ListLinks(ctx, ListLinksOptions{Filter: "GO"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
	assert.Len(t, matched, 2)

	page, count, err := s.ListLinks(ctx, ListLinksOptions{Skip: 1, Take: 1, Oldest: true})
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)
	require.Len(t, page, 1)
	assert.Equal(t, links[1].ID, page[0].ID)

	_, err = s.GetLink(ctx, uuid.NewString())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGormStore_Votes(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	bob := &model.User{ID: uuid.NewString(), Name: "bob", Email: "bob@example.com", Password: "x"}
	require.NoError(t, s.CreateUser(ctx, bob))
	link := &model.Link{ID: uuid.NewString(), URL: "https://go.dev", Description: "Go"}
	require.NoError(t, s.CreateLink(ctx, link))

	vote := &model.Vote{ID: uuid.NewString(), LinkID: link.ID, UserID: bob.ID}
	require.NoError(t, s.CreateVote(ctx, vote))

	again := &model.Vote{ID: uuid.NewString(), LinkID: link.ID, UserID: bob.ID}
	assert.ErrorIs(t, s.CreateVote(ctx, again), ErrAlreadyExists)

	got, err := s.GetVote(ctx, vote.ID)
	require.NoError(t, err)
	assert.Equal(t, "bob", got.User.Name)
	require.NotNil(t, got.Link)
	require.Len(t, got.Link.Votes, 1)
	assert.Equal(t, vote.ID, got.Link.Votes[0].ID)

	byEmail, err := s.GetUserByEmail(ctx, "BOB@example.com")
	require.NoError(t, err)
	assert.Equal(t, bob.ID, byEmail.ID)
}

func TestGormStore_Snapshots(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.LatestSnapshot(ctx, "http://localhost:4000")
	assert.ErrorIs(t, err, ErrNotFound)

	old := &model.Snapshot{ID: uuid.NewString(), CreatedAt: time.Now().Add(-48 * time.Hour), Endpoint: "http://localhost:4000", Records: []byte("{}")}
	latest := &model.Snapshot{ID: uuid.NewString(), CreatedAt: time.Now(), Endpoint: "http://localhost:4000", Size: 2, Records: []byte(`{"a":{}}`)}
	require.NoError(t, s.SaveSnapshot(ctx, old))
	require.NoError(t, s.SaveSnapshot(ctx, latest))

	got, err := s.LatestSnapshot(ctx, "http://localhost:4000")
	require.NoError(t, err)
	assert.Equal(t, latest.ID, got.ID)
	assert.Equal(t, latest.Records, got.Records)

	list, err := s.ListSnapshots(ctx, "http://localhost:4000")
	require.NoError(t, err)
	assert.Len(t, list, 2)

	deleted, err := s.DeleteSnapshotsBefore(ctx, time.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	require.NoError(t, s.DeleteSnapshots(ctx, latest.ID))
	list, err = s.ListSnapshots(ctx, "http://localhost:4000")
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := Open("mysql", "")
	assert.ErrorIs(t, err, ErrUnknownDriver)
}

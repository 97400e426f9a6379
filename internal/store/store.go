package store

import (
	"context"
	"errors"
	"time"

	"github.com/emrgen/linkfeed/internal/model"
)

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists is returned when a unique constraint rejects a write.
	ErrAlreadyExists = errors.New("already exists")
)

type Store interface {
	UserStore
	LinkStore
	SnapshotStore
	Transaction(ctx context.Context, f func(tx Store) error) error
	Migrate() error
}

type UserStore interface {
	// CreateUser creates a new user.
	CreateUser(ctx context.Context, user *model.User) error
	// GetUser retrieves a user by ID.
	GetUser(ctx context.Context, id string) (*model.User, error)
	// GetUserByEmail retrieves a user by email.
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
}

// ListLinksOptions selects a page of the feed.
type ListLinksOptions struct {
	// Filter matches description or url, case-insensitively.
	Filter string
	Skip   int
	// Take limits the page, zero means no limit.
	Take int
	// Oldest orders by creation time ascending instead of newest first.
	Oldest bool
}

type LinkStore interface {
	// CreateLink creates a new link.
	CreateLink(ctx context.Context, link *model.Link) error
	// GetLink retrieves a link with its poster and votes.
	GetLink(ctx context.Context, id string) (*model.Link, error)
	// ListLinks retrieves a page of links and the number of links matching the filter.
	ListLinks(ctx context.Context, opts ListLinksOptions) ([]*model.Link, int64, error)
	// CreateVote records a vote, failing with ErrAlreadyExists on a repeated vote.
	CreateVote(ctx context.Context, vote *model.Vote) error
	// GetVote retrieves a vote with its user and link.
	GetVote(ctx context.Context, id string) (*model.Vote, error)
}

type SnapshotStore interface {
	// SaveSnapshot stores a cache snapshot.
	SaveSnapshot(ctx context.Context, snapshot *model.Snapshot) error
	// LatestSnapshot retrieves the newest snapshot taken for an endpoint.
	LatestSnapshot(ctx context.Context, endpoint string) (*model.Snapshot, error)
	// ListSnapshots retrieves the snapshots of an endpoint, newest first.
	ListSnapshots(ctx context.Context, endpoint string) ([]*model.Snapshot, error)
	// DeleteSnapshots deletes snapshots by ID.
	DeleteSnapshots(ctx context.Context, ids ...string) error
	// DeleteSnapshotsBefore deletes the snapshots of every endpoint taken before t.
	DeleteSnapshotsBefore(ctx context.Context, t time.Time) (int64, error)
}

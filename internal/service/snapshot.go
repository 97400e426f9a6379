package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/emrgen/linkfeed/internal/cache"
	"github.com/emrgen/linkfeed/internal/compress"
	"github.com/emrgen/linkfeed/internal/model"
	"github.com/emrgen/linkfeed/internal/store"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// SnapshotService persists the cache so a later run starts warm.
type SnapshotService struct {
	cache       *cache.Cache
	store       store.SnapshotStore
	endpoint    string
	compression string
	compressor  compress.Compress
}

func NewSnapshotService(c *cache.Cache, s store.SnapshotStore, endpoint, compression string) (*SnapshotService, error) {
	compressor, err := compress.ByName(compression)
	if err != nil {
		return nil, err
	}

	return &SnapshotService{
		cache:       c,
		store:       s,
		endpoint:    endpoint,
		compression: compression,
		compressor:  compressor,
	}, nil
}

// Save stores the current cache content.
func (s *SnapshotService) Save(ctx context.Context) (*model.Snapshot, error) {
	records, err := s.cache.Extract(ctx)
	if err != nil {
		return nil, err
	}

	data, err := json.Marshal(records)
	if err != nil {
		return nil, err
	}
	encoded, err := s.compressor.Encode(data)
	if err != nil {
		return nil, err
	}

	snapshot := &model.Snapshot{
		ID:          uuid.New().String(),
		CreatedAt:   time.Now(),
		Endpoint:    s.endpoint,
		Compression: s.compression,
		Size:        len(records),
		Records:     encoded,
	}
	if err := s.store.SaveSnapshot(ctx, snapshot); err != nil {
		return nil, err
	}

	return snapshot, nil
}

// Restore loads the newest snapshot into the cache and returns how many
// records it held. Without a snapshot the cache is left alone.
func (s *SnapshotService) Restore(ctx context.Context) (int, error) {
	snapshot, err := s.store.LatestSnapshot(ctx, s.endpoint)
	if errors.Is(err, store.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	compressor, err := compress.ByName(snapshot.Compression)
	if err != nil {
		return 0, err
	}
	data, err := compressor.Decode(snapshot.Records)
	if err != nil {
		return 0, err
	}

	var records map[string]cache.Record
	if err := json.Unmarshal(data, &records); err != nil {
		return 0, err
	}
	if err := s.cache.Restore(ctx, records); err != nil {
		return 0, err
	}

	logrus.Infof("restored %d cache records from snapshot of %s", len(records), snapshot.CreatedAt.Format(time.RFC3339))
	return len(records), nil
}

// List returns the endpoint's snapshots without their records.
func (s *SnapshotService) List(ctx context.Context) ([]*model.Snapshot, error) {
	return s.store.ListSnapshots(ctx, s.endpoint)
}

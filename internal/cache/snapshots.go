// Package cache keeps editing-session checkpoints in Redis so a session
// interrupted on one device can resume where it stopped.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"jobform/internal/engine"
	"jobform/internal/model"

	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix  = "jobform:session:"
	DefaultTTL = 24 * time.Hour
)

type SnapshotStore struct {
	client redis.UniversalClient
	ttl    time.Duration
}

var _ engine.SnapshotStore = (*SnapshotStore)(nil)

// NewSnapshotStore stores checkpoints for ttl; a zero ttl uses DefaultTTL.
func NewSnapshotStore(client redis.UniversalClient, ttl time.Duration) *SnapshotStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &SnapshotStore{client: client, ttl: ttl}
}

func (s *SnapshotStore) LoadSnapshot(ctx context.Context, key string) (*model.SessionSnapshot, error) {
	v, err := s.client.Get(ctx, keyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot %s: %w", key, err)
	}

	var snap model.SessionSnapshot
	if err := json.Unmarshal(v, &snap); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot %s: %w", key, err)
	}
	return &snap, nil
}

func (s *SnapshotStore) SaveSnapshot(ctx context.Context, key string, snap model.SessionSnapshot) error {
	b, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, keyPrefix+key, b, s.ttl).Err()
}

func (s *SnapshotStore) DeleteSnapshot(ctx context.Context, key string) error {
	return s.client.Del(ctx, keyPrefix+key).Err()
}

// Package redistore persists world entities in Redis. Each entity is one
// JSON record keyed entity:<id>; compare-and-set runs as an optimistic
// WATCH/MULTI/EXEC transaction against that single key, so every write is
// individually atomic without multi-key transaction support.
package redistore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	redis "github.com/redis/go-redis/v9"

	"github.com/textmoor/textmoor/pkg/world"
)

// watchRetries bounds re-runs of the WATCH transaction when an unrelated
// writer races between our read and EXEC even though the version matched.
const watchRetries = 5

// Store implements world.Store on a Redis connection pool.
type Store struct {
	client *redis.Client
}

// New creates a Redis-backed store.
func New(addr, password string, db, poolSize int) *Store {
	return &Store{client: redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
		PoolSize: poolSize,
	})}
}

// NewFromClient wraps an existing client (used by tests with miniredis).
func NewFromClient(client *redis.Client) *Store {
	return &Store{client: client}
}

// Close releases the connection pool.
func (s *Store) Close() error {
	return s.client.Close()
}

// Ping verifies the Redis connection.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redistore: ping: %w", world.ErrUnavailable)
	}
	return nil
}

func entityKey(id string) string { return "entity:" + id }

func userKey(name string) string { return "username:" + strings.ToLower(name) }

// Get returns the entity with the given id.
func (s *Store) Get(ctx context.Context, id string) (world.Entity, error) {
	data, err := s.client.Get(ctx, entityKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return world.Entity{}, fmt.Errorf("redistore: get %s: %w", id, world.ErrNotFound)
		}
		return world.Entity{}, fmt.Errorf("redistore: get %s: %v: %w", id, err, world.ErrUnavailable)
	}
	var e world.Entity
	if err := json.Unmarshal(data, &e); err != nil {
		return world.Entity{}, fmt.Errorf("redistore: decode %s: %w", id, err)
	}
	return e, nil
}

// CompareAndSet writes e if the stored version equals expected; on success
// the stored version becomes expected+1.
func (s *Store) CompareAndSet(ctx context.Context, e world.Entity, expected uint64) error {
	key := entityKey(e.ID)
	txf := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		switch {
		case errors.Is(err, redis.Nil):
			if expected != 0 {
				return world.ErrVersionConflict
			}
		case err != nil:
			return err
		default:
			var cur world.Entity
			if err := json.Unmarshal(data, &cur); err != nil {
				return fmt.Errorf("decode %s: %w", e.ID, err)
			}
			if cur.Version != expected {
				return world.ErrVersionConflict
			}
		}
		e.Version = expected + 1
		out, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("encode %s: %w", e.ID, err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, out, 0)
			if e.Kind == world.KindUser {
				pipe.Set(ctx, userKey(e.Name), e.ID, 0)
			}
			return nil
		})
		return err
	}

	for i := 0; i < watchRetries; i++ {
		err := s.client.Watch(ctx, txf, key)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, redis.TxFailedErr):
			continue
		case errors.Is(err, world.ErrVersionConflict):
			return fmt.Errorf("redistore: cas %s: %w", e.ID, world.ErrVersionConflict)
		default:
			return fmt.Errorf("redistore: cas %s: %v: %w", e.ID, err, world.ErrUnavailable)
		}
	}
	// The key kept changing under us; the version can no longer match.
	return fmt.Errorf("redistore: cas %s: %w", e.ID, world.ErrVersionConflict)
}

// Create stores a brand-new entity at version 1. An existing id fails with
// world.ErrVersionConflict.
func (s *Store) Create(ctx context.Context, e world.Entity) (world.Entity, error) {
	e.Version = 1
	out, err := json.Marshal(e)
	if err != nil {
		return world.Entity{}, fmt.Errorf("redistore: encode %s: %w", e.ID, err)
	}
	ok, err := s.client.SetNX(ctx, entityKey(e.ID), out, 0).Result()
	if err != nil {
		return world.Entity{}, fmt.Errorf("redistore: create %s: %v: %w", e.ID, err, world.ErrUnavailable)
	}
	if !ok {
		return world.Entity{}, fmt.Errorf("redistore: create %s: %w", e.ID, world.ErrVersionConflict)
	}
	if e.Kind == world.KindUser {
		if err := s.client.Set(ctx, userKey(e.Name), e.ID, 0).Err(); err != nil {
			return world.Entity{}, fmt.Errorf("redistore: index user %s: %v: %w", e.ID, err, world.ErrUnavailable)
		}
	}
	return e, nil
}

// ListContents returns the ids located in the given entity.
func (s *Store) ListContents(ctx context.Context, id string) ([]string, error) {
	e, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return append([]string(nil), e.Contents...), nil
}

// FindUserByName resolves a user id from the name index.
func (s *Store) FindUserByName(ctx context.Context, name string) (string, error) {
	id, err := s.client.Get(ctx, userKey(name)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", fmt.Errorf("redistore: find user %q: %w", name, world.ErrNotFound)
		}
		return "", fmt.Errorf("redistore: find user %q: %v: %w", name, err, world.ErrUnavailable)
	}
	return id, nil
}

var _ world.Store = (*Store)(nil)

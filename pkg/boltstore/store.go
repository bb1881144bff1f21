// Package boltstore persists world entities in a local bbolt file. Each
// entity is one gob-encoded record; compare-and-set runs as a read-compare-
// write inside a single bbolt update transaction, which makes every write
// individually atomic without multi-entity transaction support.
package boltstore

import (
	"context"
	"fmt"
	"strings"

	bbolt "go.etcd.io/bbolt"

	"github.com/textmoor/textmoor/pkg/world"
)

// Bucket name constants for bbolt storage.
var (
	bucketEntities = []byte("entities")
	bucketUsers    = []byte("users") // lowercase display name -> entity id
)

// Store implements world.Store on a bbolt database file.
type Store struct {
	bolt *bbolt.DB
}

// Open opens or creates a bbolt database file and ensures all buckets exist.
func Open(path string) (*Store, error) {
	db, err := bbolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("boltstore: open %s: %w", path, err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{bucketEntities, bucketUsers} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("boltstore: create buckets: %w", err)
	}

	return &Store{bolt: db}, nil
}

// Close closes the underlying bbolt database.
func (s *Store) Close() error {
	if s.bolt != nil {
		return s.bolt.Close()
	}
	return nil
}

// Path returns the filesystem path of the underlying bbolt database.
func (s *Store) Path() string {
	if s.bolt != nil {
		return s.bolt.Path()
	}
	return ""
}

// Get returns the entity with the given id.
func (s *Store) Get(ctx context.Context, id string) (world.Entity, error) {
	if err := ctx.Err(); err != nil {
		return world.Entity{}, fmt.Errorf("boltstore: get %s: %w", id, world.ErrUnavailable)
	}
	var e world.Entity
	err := s.bolt.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketEntities).Get([]byte(id))
		if data == nil {
			return world.ErrNotFound
		}
		dec, err := decodeEntity(data)
		if err != nil {
			return fmt.Errorf("decode %s: %w", id, err)
		}
		e = *dec
		return nil
	})
	if err != nil {
		return world.Entity{}, fmt.Errorf("boltstore: get %s: %w", id, err)
	}
	return e, nil
}

// CompareAndSet writes e if the stored version equals expected; on success
// the stored version becomes expected+1.
func (s *Store) CompareAndSet(ctx context.Context, e world.Entity, expected uint64) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("boltstore: cas %s: %w", e.ID, world.ErrUnavailable)
	}
	err := s.bolt.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketEntities)
		data := b.Get([]byte(e.ID))
		if data == nil {
			if expected != 0 {
				return world.ErrVersionConflict
			}
		} else {
			cur, err := decodeEntity(data)
			if err != nil {
				return fmt.Errorf("decode %s: %w", e.ID, err)
			}
			if cur.Version != expected {
				return world.ErrVersionConflict
			}
		}
		e.Version = expected + 1
		out, err := encodeEntity(&e)
		if err != nil {
			return fmt.Errorf("encode %s: %w", e.ID, err)
		}
		if err := b.Put([]byte(e.ID), out); err != nil {
			return err
		}
		return indexUser(tx, &e)
	})
	if err != nil {
		return fmt.Errorf("boltstore: cas %s: %w", e.ID, err)
	}
	return nil
}

// Create stores a brand-new entity at version 1. An existing id fails with
// world.ErrVersionConflict.
func (s *Store) Create(ctx context.Context, e world.Entity) (world.Entity, error) {
	if err := ctx.Err(); err != nil {
		return world.Entity{}, fmt.Errorf("boltstore: create %s: %w", e.ID, world.ErrUnavailable)
	}
	err := s.bolt.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketEntities)
		if b.Get([]byte(e.ID)) != nil {
			return world.ErrVersionConflict
		}
		e.Version = 1
		out, err := encodeEntity(&e)
		if err != nil {
			return fmt.Errorf("encode %s: %w", e.ID, err)
		}
		if err := b.Put([]byte(e.ID), out); err != nil {
			return err
		}
		return indexUser(tx, &e)
	})
	if err != nil {
		return world.Entity{}, fmt.Errorf("boltstore: create %s: %w", e.ID, err)
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
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("boltstore: find user %q: %w", name, world.ErrUnavailable)
	}
	var id string
	err := s.bolt.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketUsers).Get([]byte(strings.ToLower(name)))
		if data == nil {
			return world.ErrNotFound
		}
		id = string(data)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("boltstore: find user %q: %w", name, err)
	}
	return id, nil
}

// indexUser maintains the display name -> id secondary index for users.
func indexUser(tx *bbolt.Tx, e *world.Entity) error {
	if e.Kind != world.KindUser {
		return nil
	}
	return tx.Bucket(bucketUsers).Put([]byte(strings.ToLower(e.Name)), []byte(e.ID))
}

var _ world.Store = (*Store)(nil)

package world

import (
	"context"
	"errors"
)

// Store errors. Backends wrap their own failures with these sentinels so the
// dispatcher can classify outcomes with errors.Is.
var (
	// ErrNotFound is returned by Get when no entity has the given id.
	ErrNotFound = errors.New("world: entity not found")

	// ErrVersionConflict is returned by CompareAndSet when the stored
	// version no longer matches the version the caller read.
	ErrVersionConflict = errors.New("world: version conflict")

	// ErrUnavailable is returned when the persistence engine is unreachable
	// or a call exceeded its deadline. A timed-out call either did or did
	// not apply; callers must re-read to find out before reporting.
	ErrUnavailable = errors.New("world: store unavailable")
)

// Store is the versioned entity store the dispatcher runs against. There are
// no multi-entity transactions: each call is individually atomic, and all
// cross-entity consistency is the caller's responsibility via ordered
// compare-and-set.
type Store interface {
	// Get returns the entity with the given id, its Version field set to
	// the stored version. Missing ids fail with ErrNotFound.
	Get(ctx context.Context, id string) (Entity, error)

	// CompareAndSet writes e keyed by e.ID if and only if the stored
	// version equals expected; on success the stored version becomes
	// expected+1. A mismatch fails with ErrVersionConflict and writes
	// nothing. Writing an id that has no stored record succeeds only when
	// expected is zero.
	CompareAndSet(ctx context.Context, e Entity, expected uint64) error

	// Create stores a brand-new entity and returns it with Version set.
	// An existing id fails with ErrVersionConflict.
	Create(ctx context.Context, e Entity) (Entity, error)

	// ListContents returns the ids currently located in the given entity.
	ListContents(ctx context.Context, id string) ([]string, error)

	// FindUserByName resolves a user entity id by display name,
	// case-insensitively. Missing names fail with ErrNotFound.
	FindUserByName(ctx context.Context, name string) (string, error)

	// Close releases the backend connection.
	Close() error
}

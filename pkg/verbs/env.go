package verbs

import (
	"context"
	"fmt"

	"github.com/textmoor/textmoor/pkg/events"
	"github.com/textmoor/textmoor/pkg/parse"
	"github.com/textmoor/textmoor/pkg/session"
	"github.com/textmoor/textmoor/pkg/world"
)

// stagedWrite is one pending compare-and-set: the entity as read under the
// guard, plus the mutation to apply. The mutation must be idempotent so a
// later-position commit conflict can re-read and re-apply it (adding an
// already-present content id is a no-op, removing an absent one likewise).
type stagedWrite struct {
	base   world.Entity
	mutate func(*world.Entity)
}

// Env is one verb execution's environment. The actor and room are fresh
// reads taken under the location guard; Scratch persists across retry
// cycles of the same dispatch so non-repeatable work (id generation) happens
// once.
type Env struct {
	Ctx      context.Context
	Store    world.Store
	Sessions *session.Registry
	Sess     session.Session
	Actor    world.Entity
	Room     world.Entity
	Cmd      parse.ParsedCommand
	Scratch  map[string]string

	// Quit asks the orchestrator to close the session after delivery.
	Quit bool

	writes  []stagedWrite
	creates []world.Entity
	batch   []events.Event
	post    []func()
}

// Get reads an entity through the store with the dispatch deadline.
func (env *Env) Get(id string) (world.Entity, error) {
	return env.Store.Get(env.Ctx, id)
}

// Stage queues a compare-and-set against the entity as read. Writes commit
// in staging order: for cross-entity effects, stage the source container
// before the destination so a half-applied move can only lose visibility,
// never duplicate the moved entity.
func (env *Env) Stage(base world.Entity, mutate func(*world.Entity)) {
	env.writes = append(env.writes, stagedWrite{base: base, mutate: mutate})
}

// StageCreate queues a brand-new entity. Creates commit before writes; an
// id colliding with a previous attempt of the same dispatch is treated as
// already created.
func (env *Env) StageCreate(e world.Entity) {
	env.creates = append(env.creates, e)
}

// Emit appends an event to this cycle's batch in generation order.
func (env *Env) Emit(t events.Type, scope events.Scope, format string, args ...any) {
	env.batch = append(env.batch, events.Event{
		Type:  t,
		Actor: env.Sess.UserID,
		Scope: scope,
		Text:  fmt.Sprintf(format, args...),
	})
}

// After registers fn to run once all writes committed, while the location
// guards are still held. Session subscription moves belong here.
func (env *Env) After(fn func()) {
	env.post = append(env.post, fn)
}

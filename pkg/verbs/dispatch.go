package verbs

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/textmoor/textmoor/pkg/events"
	"github.com/textmoor/textmoor/pkg/parse"
	"github.com/textmoor/textmoor/pkg/session"
	"github.com/textmoor/textmoor/pkg/world"
)

// Stats receives dispatcher observations. The server wires a Prometheus
// implementation; tests use the no-op.
type Stats interface {
	CommandProcessed(verb string)
	CASConflict()
	DispatchError(kind string)
	EventsDelivered(n int)
}

// NopStats discards all observations.
type NopStats struct{}

func (NopStats) CommandProcessed(string) {}
func (NopStats) CASConflict()            {}
func (NopStats) DispatchError(string)    {}
func (NopStats) EventsDelivered(int)     {}

// errRetryCycle signals that the whole read-compute-commit cycle must rerun.
var errRetryCycle = errors.New("verbs: retry dispatch cycle")

// Dispatcher resolves parsed commands to verbs and executes them. One
// dispatch holds the serialization guards of every location it touches from
// first read to event delivery, giving linear per-room ordering.
type Dispatcher struct {
	Store        world.Store
	Verbs        *Registry
	Sessions     *session.Registry
	Bus          *events.Bus
	MaxRetries   int           // bound on commit retry cycles, default 3
	StoreTimeout time.Duration // deadline covering one dispatch's store calls
	Stats        Stats

	guards *guardTable
}

// NewDispatcher wires a dispatcher with the default retry bound and timeout.
func NewDispatcher(store world.Store, reg *Registry, sessions *session.Registry, bus *events.Bus) *Dispatcher {
	return &Dispatcher{
		Store:        store,
		Verbs:        reg,
		Sessions:     sessions,
		Bus:          bus,
		MaxRetries:   3,
		StoreTimeout: 5 * time.Second,
		Stats:        NopStats{},
		guards:       newGuardTable(),
	}
}

// Dispatch runs one parsed command for one session and broadcasts whatever
// it produced. All failures are converted to actor-scoped events here; no
// error escapes to block another session's commands. The returned flag asks
// the caller to close the session.
func (d *Dispatcher) Dispatch(sessionID string, pc parse.ParsedCommand) (quit bool) {
	sess, ok := d.Sessions.Get(sessionID)
	if !ok {
		return false
	}

	ctx, cancel := context.WithTimeout(context.Background(), d.StoreTimeout)
	defer cancel()

	d.Stats.CommandProcessed(pc.Verb)

	// Step 1: resolve the verb by scope precedence.
	verb, err := d.resolveVerb(ctx, sess, pc)
	if err != nil {
		d.failActor(sessionID, sess, err)
		return false
	}
	if verb == nil {
		d.Stats.DispatchError("unknown_verb")
		d.deliverActor(sessionID, sess, events.TypeError,
			fmt.Sprintf("I don't know how to %q. Try \"help\".", pc.Verb))
		return false
	}

	// Step 2: permission predicate against current, possibly stale state.
	if verb.Permission != nil {
		actor, err := d.Store.Get(ctx, sess.UserID)
		if err != nil {
			d.failActor(sessionID, sess, err)
			return false
		}
		var direct *world.Entity
		if pc.Direct.ID != "" {
			if obj, err := d.Store.Get(ctx, pc.Direct.ID); err == nil {
				direct = &obj
			}
		}
		if err := verb.Permission(sess, actor, direct); err != nil {
			d.Stats.DispatchError("permission_denied")
			d.deliverActor(sessionID, sess, events.TypeError, err.Error())
			return false
		}
	}

	// Step 3: acquire the serialization guards, sorted, deduplicated.
	locations := []string{sess.Location}
	if verb.Targets != nil {
		locations = append(locations, verb.Targets(ctx, d.Store, sess, pc)...)
	}
	release := d.guards.acquire(locations...)
	defer release()

	// Steps 4-6: read, compute, commit; rerun the cycle on a first-write
	// version conflict up to the retry bound.
	scratch := make(map[string]string)
	var env *Env
	for attempt := 0; ; attempt++ {
		if attempt > d.MaxRetries {
			d.Stats.DispatchError("concurrency_conflict")
			d.deliverActor(sessionID, sess, events.TypeError,
				"Someone got there first. Try that again.")
			return false
		}

		env = &Env{
			Ctx:      ctx,
			Store:    d.Store,
			Sessions: d.Sessions,
			Sess:     sess,
			Cmd:      pc,
			Scratch:  scratch,
		}
		env.Actor, err = d.Store.Get(ctx, sess.UserID)
		if err != nil {
			d.failActor(sessionID, sess, err)
			return false
		}
		env.Room, err = d.Store.Get(ctx, sess.Location)
		if err != nil {
			d.failActor(sessionID, sess, err)
			return false
		}

		if err := verb.Run(env); err != nil {
			d.failActor(sessionID, sess, err)
			return false
		}

		err = d.commit(ctx, env)
		if errors.Is(err, errRetryCycle) {
			d.Stats.CASConflict()
			continue
		}
		if err != nil {
			d.failActor(sessionID, sess, err)
			return false
		}
		break
	}

	// Step 7: post-commit hooks (subscription moves) and delivery happen
	// before the guards release, so every observer of a room sees one
	// consistent event order.
	for _, fn := range env.post {
		fn()
	}
	d.Bus.Deliver(sessionID, env.batch)
	d.Stats.EventsDelivered(len(env.batch))
	return env.Quit
}

// commit applies staged creates, then staged writes in order. A version
// conflict on the first write reruns the whole cycle; a conflict on a later
// write, after earlier entities already committed, re-reads and re-applies
// only that write so the moved entity is never resurrected at its source.
func (d *Dispatcher) commit(ctx context.Context, env *Env) error {
	for _, c := range env.creates {
		if _, err := d.Store.Create(ctx, c); err != nil {
			// A previous attempt of this same dispatch already created
			// it; ids are scratch-pinned across attempts.
			if errors.Is(err, world.ErrVersionConflict) {
				continue
			}
			return err
		}
	}

	for i, w := range env.writes {
		state := w.base.Clone()
		w.mutate(&state)
		err := d.Store.CompareAndSet(ctx, state, w.base.Version)
		if err == nil {
			continue
		}
		switch {
		case errors.Is(err, world.ErrVersionConflict):
			if i == 0 {
				return errRetryCycle
			}
			if err := d.reapply(ctx, w); err != nil {
				return err
			}
		case errors.Is(err, world.ErrUnavailable):
			// A timed-out call either did or did not apply; re-read to
			// discover which before reporting.
			cur, gerr := d.Store.Get(ctx, w.base.ID)
			if gerr == nil && cur.Version == w.base.Version+1 {
				continue
			}
			return err
		default:
			return err
		}
	}
	return nil
}

// reapply re-reads one entity and idempotently re-applies a staged mutation,
// bounded by the retry limit.
func (d *Dispatcher) reapply(ctx context.Context, w stagedWrite) error {
	for attempt := 0; attempt < d.MaxRetries; attempt++ {
		cur, err := d.Store.Get(ctx, w.base.ID)
		if err != nil {
			return err
		}
		state := cur.Clone()
		w.mutate(&state)
		err = d.Store.CompareAndSet(ctx, state, cur.Version)
		if err == nil {
			return nil
		}
		if !errors.Is(err, world.ErrVersionConflict) {
			return err
		}
	}
	return fmt.Errorf("verbs: reapply %s: %w", w.base.ID, world.ErrVersionConflict)
}

// resolveVerb walks the scope chain: local verb on the direct object, local
// verb on the actor's room, then the global table. Local verbs shadow
// globals of the same name.
func (d *Dispatcher) resolveVerb(ctx context.Context, sess session.Session, pc parse.ParsedCommand) (*Verb, error) {
	name := strings.ToLower(pc.Verb)

	if pc.Direct.ID != "" {
		obj, err := d.Store.Get(ctx, pc.Direct.ID)
		if err != nil && !errors.Is(err, world.ErrNotFound) {
			return nil, err
		}
		if err == nil && (obj.Location == sess.Location || obj.Location == sess.UserID) {
			if tmpl, ok := obj.LocalVerb(name); ok {
				return localVerb(name, tmpl, obj.ID), nil
			}
		}
	}

	room, err := d.Store.Get(ctx, sess.Location)
	if err != nil && !errors.Is(err, world.ErrNotFound) {
		return nil, err
	}
	if err == nil {
		if tmpl, ok := room.LocalVerb(name); ok {
			return localVerb(name, tmpl, room.ID), nil
		}
		// A bare local verb name can target an object in the room or in
		// hand without the parser having resolved anything: "ring" alone
		// rings the bell if exactly one carrier of that verb is present.
		if pc.Direct.ID == "" && pc.Direct.Raw == "" {
			if v := d.findLocalCarrier(ctx, sess, room, name); v != nil {
				return v, nil
			}
		}
	}

	if v, ok := d.Verbs.Lookup(name); ok {
		return v, nil
	}
	return nil, nil
}

// findLocalCarrier scans room contents and the actor's inventory for exactly
// one entity carrying a local verb of the given name.
func (d *Dispatcher) findLocalCarrier(ctx context.Context, sess session.Session, room world.Entity, name string) *Verb {
	actor, err := d.Store.Get(ctx, sess.UserID)
	if err != nil {
		return nil
	}
	ids := append(append([]string(nil), room.Contents...), actor.Contents...)
	var found *Verb
	for _, id := range ids {
		obj, err := d.Store.Get(ctx, id)
		if err != nil {
			continue
		}
		if tmpl, ok := obj.LocalVerb(name); ok {
			if found != nil {
				return nil // more than one carrier; let the global table decide
			}
			found = localVerb(name, tmpl, obj.ID)
		}
	}
	return found
}

// localVerb wraps a narration template stored on an entity as an executable
// verb: it renders the template for the actor and the room. Permission is
// co-location with the carrying entity.
func localVerb(name, tmpl, carrierID string) *Verb {
	return &Verb{
		Name: name,
		Run: func(env *Env) error {
			carrier, err := env.Get(carrierID)
			if err != nil {
				return err
			}
			if carrier.Location != env.Room.ID && carrier.Location != env.Actor.ID {
				return &UserError{Msg: "You no longer see that here."}
			}
			text := renderTemplate(tmpl, env.Actor.Name, carrier.Name)
			env.Emit(events.TypeText, events.ToActor(), "%s", text)
			env.Emit(events.TypeText, events.ToRoomExcept(env.Room.ID), "%s", text)
			return nil
		},
	}
}

// renderTemplate substitutes %a (actor name) and %o (carrier name).
func renderTemplate(tmpl, actor, object string) string {
	out := strings.ReplaceAll(tmpl, "%a", actor)
	return strings.ReplaceAll(out, "%o", object)
}

// failActor converts any dispatch error into a single actor-scoped event.
func (d *Dispatcher) failActor(sessionID string, sess session.Session, err error) {
	var ue *UserError
	var text string
	switch {
	case errors.As(err, &ue):
		d.Stats.DispatchError("user")
		text = ue.Msg
	case errors.Is(err, world.ErrNotFound):
		d.Stats.DispatchError("not_found")
		text = "You no longer see that here."
	case errors.Is(err, world.ErrVersionConflict):
		d.Stats.DispatchError("concurrency_conflict")
		text = "Someone got there first. Try that again."
	case errors.Is(err, world.ErrUnavailable):
		d.Stats.DispatchError("store_unavailable")
		log.Printf("dispatch: store unavailable for session %s: %v", sessionID, err)
		text = "The world is out of reach right now. Try again in a moment."
	default:
		d.Stats.DispatchError("internal")
		log.Printf("dispatch: session %s verb error: %v", sessionID, err)
		text = "Something went wrong. Try again."
	}
	d.deliverActor(sessionID, sess, events.TypeError, text)
}

// deliverActor sends a single actor-scoped event outside any verb batch.
func (d *Dispatcher) deliverActor(sessionID string, sess session.Session, t events.Type, text string) {
	d.Bus.Deliver(sessionID, []events.Event{{
		Type:  t,
		Actor: sess.UserID,
		Scope: events.ToActor(),
		Text:  text,
	}})
}

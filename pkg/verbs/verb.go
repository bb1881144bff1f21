// Package verbs resolves parsed commands to executable verbs and runs them
// against the world store under per-location serialization, with optimistic
// concurrency on every write.
package verbs

import (
	"context"
	"sort"
	"strings"

	"github.com/textmoor/textmoor/pkg/parse"
	"github.com/textmoor/textmoor/pkg/session"
	"github.com/textmoor/textmoor/pkg/world"
)

// PermFunc is a verb's permission predicate, evaluated against current
// (possibly stale) actor and direct-object state before any guard is taken.
// direct is nil when the command named no resolvable direct object. A
// non-nil return denies the command; the error text goes to the actor only.
type PermFunc func(sess session.Session, actor world.Entity, direct *world.Entity) error

// RunFunc executes a verb: it reads via env, stages writes and emits events,
// but commits nothing itself. It may run several times when commits conflict.
type RunFunc func(env *Env) error

// TargetsFunc names the location ids a verb's execution must serialize on,
// beyond the actor's current room. Used by verbs that span two locations.
type TargetsFunc func(ctx context.Context, store world.Store, sess session.Session, pc parse.ParsedCommand) []string

// Verb is a named, permission-gated procedure over world entities.
type Verb struct {
	Name       string
	Aliases    []string
	Help       string
	Permission PermFunc    // nil means always permitted
	Targets    TargetsFunc // nil means the actor's room only
	Run        RunFunc
}

// Registry is the global verb table. Lookup is case-insensitive over names
// and abbreviation aliases.
type Registry struct {
	byName map[string]*Verb
	order  []string
}

// NewRegistry creates an empty verb registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]*Verb)}
}

// Register adds a verb under its name and all its aliases.
func (r *Registry) Register(v *Verb) {
	key := strings.ToLower(v.Name)
	if _, dup := r.byName[key]; !dup {
		r.order = append(r.order, key)
	}
	r.byName[key] = v
	for _, a := range v.Aliases {
		r.byName[strings.ToLower(a)] = v
	}
}

// Lookup returns the verb registered under name or one of its aliases.
func (r *Registry) Lookup(name string) (*Verb, bool) {
	v, ok := r.byName[strings.ToLower(name)]
	return v, ok
}

// All returns the registered verbs sorted by primary name, for help listings.
func (r *Registry) All() []*Verb {
	names := append([]string(nil), r.order...)
	sort.Strings(names)
	out := make([]*Verb, 0, len(names))
	for _, n := range names {
		out = append(out, r.byName[n])
	}
	return out
}

// UserError is a gameplay-level failure rendered to the actor verbatim:
// permission denials, "there is no X here", and the like. It never reaches
// any other session.
type UserError struct {
	Msg string
}

func (e *UserError) Error() string { return e.Msg }

// Denied builds a permission-denied UserError.
func Denied(msg string) error { return &UserError{Msg: msg} }

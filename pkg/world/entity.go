package world

import "strings"

// Kind classifies an entity stored in the world.
type Kind string

const (
	KindUser  Kind = "user"  // A human player.
	KindRoom  Kind = "room"  // A container other entities can be located in.
	KindThing Kind = "thing" // Anything else: takeable items, scenery, props.
)

// Entity is a single persistent record in the world store. Every entity has
// exactly one location (rooms use the empty string), and the located-in
// relation forms a forest: no cycles, no orphan containment.
//
// Version is maintained by the store; every write must supply the version the
// caller last observed (see Store.CompareAndSet).
type Entity struct {
	ID          string            `json:"id"`
	Kind        Kind              `json:"kind"`
	Name        string            `json:"name"`
	Aliases     []string          `json:"aliases,omitempty"`
	Description string            `json:"description,omitempty"`
	Location    string            `json:"location,omitempty"`
	Exits       map[string]string `json:"exits,omitempty"`    // rooms: direction -> room id
	Contents    []string          `json:"contents,omitempty"` // rooms and users (inventory)
	Verbs       map[string]string `json:"verbs,omitempty"`    // local verb name -> narration template
	Owner       string            `json:"owner,omitempty"`
	Editors     []string          `json:"editors,omitempty"`

	// PasswordHash is the bcrypt hash for user entities. Never rendered.
	PasswordHash string `json:"password_hash,omitempty"`

	Version uint64 `json:"version"`
}

// HasAlias reports whether name matches one of the entity's aliases,
// case-insensitively.
func (e *Entity) HasAlias(name string) bool {
	for _, a := range e.Aliases {
		if strings.EqualFold(a, name) {
			return true
		}
	}
	return false
}

// LocalVerb returns the narration template for a local verb override, if the
// entity carries one. Lookup is case-insensitive.
func (e *Entity) LocalVerb(name string) (string, bool) {
	for k, v := range e.Verbs {
		if strings.EqualFold(k, name) {
			return v, true
		}
	}
	return "", false
}

// Contains reports whether id is in the entity's contents.
func (e *Entity) Contains(id string) bool {
	for _, c := range e.Contents {
		if c == id {
			return true
		}
	}
	return false
}

// AddContent adds id to the entity's contents. Adding an already-present id
// is a no-op, which keeps cross-entity moves idempotent on retry.
func (e *Entity) AddContent(id string) {
	if e.Contains(id) {
		return
	}
	e.Contents = append(e.Contents, id)
}

// RemoveContent removes id from the entity's contents if present.
func (e *Entity) RemoveContent(id string) {
	for i, c := range e.Contents {
		if c == id {
			e.Contents = append(e.Contents[:i], e.Contents[i+1:]...)
			return
		}
	}
}

// Clone returns a deep copy of the entity. Verb handlers mutate copies and
// commit them by CAS; the original read stays untouched for retry cycles.
func (e *Entity) Clone() Entity {
	cp := *e
	if e.Aliases != nil {
		cp.Aliases = append([]string(nil), e.Aliases...)
	}
	if e.Contents != nil {
		cp.Contents = append([]string(nil), e.Contents...)
	}
	if e.Editors != nil {
		cp.Editors = append([]string(nil), e.Editors...)
	}
	if e.Exits != nil {
		cp.Exits = make(map[string]string, len(e.Exits))
		for k, v := range e.Exits {
			cp.Exits[k] = v
		}
	}
	if e.Verbs != nil {
		cp.Verbs = make(map[string]string, len(e.Verbs))
		for k, v := range e.Verbs {
			cp.Verbs[k] = v
		}
	}
	return cp
}

// CanEdit reports whether the given user may edit this entity: owners and
// listed editors may, and users may always edit themselves.
func (e *Entity) CanEdit(userID string) bool {
	if e.ID == userID || e.Owner == userID {
		return true
	}
	for _, ed := range e.Editors {
		if ed == userID {
			return true
		}
	}
	return false
}

package events

// Subscriber receives events routed to one session. Receive must not block
// the caller: session transports buffer behind a single-consumer channel so
// per-recipient delivery order is preserved.
type Subscriber interface {
	Receive(ev Event)
	Closed() bool
}

// Roster is the bus's view of the session registry: who is where, right now.
// Snapshots are taken at routing time; a session that moves mid-broadcast
// does not retroactively gain or lose that batch.
type Roster interface {
	// Subscriber returns the transport for one session id.
	Subscriber(sessionID string) (Subscriber, bool)
	// InRoom returns the transports of every live session whose recorded
	// location is roomID, with the owning session ids.
	InRoom(roomID string) map[string]Subscriber
	// OfUser returns the transports of every live session of one user.
	OfUser(userID string) map[string]Subscriber
	// AllLive returns every live session's transport.
	AllLive() map[string]Subscriber
}

// Bus fans one dispatch cycle's events out to the correct sessions. Callers
// invoke Deliver while still holding the location guard for the cycle, which
// is what gives all observers of a room a single consistent event order
// across concurrent cycles.
type Bus struct {
	roster Roster
}

// NewBus creates a broadcaster over the given roster.
func NewBus(r Roster) *Bus {
	return &Bus{roster: r}
}

// Deliver routes each event in batch, in order, to its scope's recipients.
// originSession identifies the session whose command produced the batch; it
// is the sole recipient of actor-scoped events and is skipped by scopes with
// ExcludeActor set.
func (b *Bus) Deliver(originSession string, batch []Event) {
	for i := range batch {
		ev := batch[i]
		ev.Seq = i
		switch ev.Scope.Kind {
		case ScopeActor:
			if sub, ok := b.roster.Subscriber(originSession); ok && !sub.Closed() {
				sub.Receive(ev)
			}
		case ScopeRoom:
			for id, sub := range b.roster.InRoom(ev.Scope.Room) {
				if ev.Scope.ExcludeActor && id == originSession {
					continue
				}
				if !sub.Closed() {
					sub.Receive(ev)
				}
			}
		case ScopeUser:
			for _, sub := range b.roster.OfUser(ev.Scope.User) {
				if !sub.Closed() {
					sub.Receive(ev)
				}
			}
		case ScopeGlobal:
			for id, sub := range b.roster.AllLive() {
				if ev.Scope.ExcludeActor && id == originSession {
					continue
				}
				if !sub.Closed() {
					sub.Receive(ev)
				}
			}
		}
	}
}

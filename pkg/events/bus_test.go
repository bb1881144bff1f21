package events

import (
	"sync"
	"testing"
)

// mockSubscriber implements Subscriber for testing.
type mockSubscriber struct {
	mu       sync.Mutex
	events   []Event
	isClosed bool
}

func (m *mockSubscriber) Receive(ev Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
}

func (m *mockSubscriber) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.isClosed
}

func (m *mockSubscriber) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]Event, len(m.events))
	copy(cp, m.events)
	return cp
}

// fakeRoster is a fixed session table for routing tests.
type fakeRoster struct {
	subs  map[string]*mockSubscriber // session id -> transport
	rooms map[string]string          // session id -> room id
	users map[string]string          // session id -> user id
}

func (f *fakeRoster) Subscriber(sessionID string) (Subscriber, bool) {
	s, ok := f.subs[sessionID]
	return s, ok
}

func (f *fakeRoster) InRoom(roomID string) map[string]Subscriber {
	out := make(map[string]Subscriber)
	for id, room := range f.rooms {
		if room == roomID {
			out[id] = f.subs[id]
		}
	}
	return out
}

func (f *fakeRoster) OfUser(userID string) map[string]Subscriber {
	out := make(map[string]Subscriber)
	for id, user := range f.users {
		if user == userID {
			out[id] = f.subs[id]
		}
	}
	return out
}

func (f *fakeRoster) AllLive() map[string]Subscriber {
	out := make(map[string]Subscriber, len(f.subs))
	for id, s := range f.subs {
		out[id] = s
	}
	return out
}

func newFakeRoster() *fakeRoster {
	return &fakeRoster{
		subs:  make(map[string]*mockSubscriber),
		rooms: make(map[string]string),
		users: make(map[string]string),
	}
}

func (f *fakeRoster) add(sessionID, userID, roomID string) *mockSubscriber {
	sub := &mockSubscriber{}
	f.subs[sessionID] = sub
	f.rooms[sessionID] = roomID
	f.users[sessionID] = userID
	return sub
}

func TestDeliverActorScope(t *testing.T) {
	r := newFakeRoster()
	alice := r.add("s1", "user:alice", "room:hall")
	bob := r.add("s2", "user:bob", "room:hall")
	bus := NewBus(r)

	bus.Deliver("s1", []Event{
		{Type: TypeText, Actor: "user:alice", Scope: ToActor(), Text: "only you"},
	})

	if got := alice.Events(); len(got) != 1 || got[0].Text != "only you" {
		t.Fatalf("actor events = %v, want one %q", got, "only you")
	}
	if len(bob.Events()) != 0 {
		t.Errorf("actor-scoped event leaked to another session")
	}
}

func TestDeliverRoomScopeExcludesActor(t *testing.T) {
	r := newFakeRoster()
	alice := r.add("s1", "user:alice", "room:hall")
	bob := r.add("s2", "user:bob", "room:hall")
	carol := r.add("s3", "user:carol", "room:garden")
	bus := NewBus(r)

	bus.Deliver("s1", []Event{
		{Type: TypeSay, Actor: "user:alice", Scope: ToRoomExcept("room:hall"), Text: "alice says hi"},
	})

	if len(alice.Events()) != 0 {
		t.Errorf("ExcludeActor scope delivered to origin session")
	}
	if got := bob.Events(); len(got) != 1 {
		t.Fatalf("room peer got %d events, want 1", len(got))
	}
	if len(carol.Events()) != 0 {
		t.Errorf("event delivered outside its room")
	}
}

func TestDeliverUserScopeHitsAllSessions(t *testing.T) {
	r := newFakeRoster()
	tab1 := r.add("s1", "user:bob", "room:hall")
	tab2 := r.add("s2", "user:bob", "room:garden")
	other := r.add("s3", "user:carol", "room:hall")
	bus := NewBus(r)

	bus.Deliver("s3", []Event{
		{Type: TypeWhisper, Actor: "user:carol", Scope: ToUser("user:bob"), Text: "psst"},
	})

	if len(tab1.Events()) != 1 || len(tab2.Events()) != 1 {
		t.Errorf("user scope should reach every session of that user")
	}
	if len(other.Events()) != 0 {
		t.Errorf("user-scoped event leaked to the sender")
	}
}

func TestDeliverGlobalScope(t *testing.T) {
	r := newFakeRoster()
	a := r.add("s1", "user:alice", "room:hall")
	b := r.add("s2", "user:bob", "room:garden")
	bus := NewBus(r)

	bus.Deliver("s1", []Event{
		{Type: TypeText, Actor: "user:alice", Scope: ToGlobal(), Text: "server restarting"},
	})

	if len(a.Events()) != 1 || len(b.Events()) != 1 {
		t.Errorf("global scope should reach every live session")
	}
}

func TestDeliverAssignsBatchOrder(t *testing.T) {
	r := newFakeRoster()
	sub := r.add("s1", "user:alice", "room:hall")
	bus := NewBus(r)

	bus.Deliver("s1", []Event{
		{Type: TypeText, Scope: ToActor(), Text: "first"},
		{Type: TypeText, Scope: ToActor(), Text: "second"},
		{Type: TypeText, Scope: ToActor(), Text: "third"},
	})

	got := sub.Events()
	if len(got) != 3 {
		t.Fatalf("got %d events, want 3", len(got))
	}
	for i, ev := range got {
		if ev.Seq != i {
			t.Errorf("event %d has seq %d", i, ev.Seq)
		}
	}
	if got[0].Text != "first" || got[2].Text != "third" {
		t.Errorf("events delivered out of batch order: %v", got)
	}
}

func TestDeliverSkipsClosedSubscriber(t *testing.T) {
	r := newFakeRoster()
	sub := r.add("s1", "user:alice", "room:hall")
	sub.isClosed = true
	bus := NewBus(r)

	bus.Deliver("s1", []Event{
		{Type: TypeText, Scope: ToActor(), Text: "no delivery"},
	})

	if len(sub.Events()) != 0 {
		t.Error("closed subscriber should not receive events")
	}
}

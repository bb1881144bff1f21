package server

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/textmoor/textmoor/pkg/boltstore"
	"github.com/textmoor/textmoor/pkg/events"
	"github.com/textmoor/textmoor/pkg/world"
)

type recordingSub struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recordingSub) Receive(ev events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recordingSub) Closed() bool { return false }

func (r *recordingSub) hasText(substr string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ev := range r.events {
		if strings.Contains(ev.Text, substr) {
			return true
		}
	}
	return false
}

func newTestGame(t *testing.T) *Game {
	t.Helper()
	store, err := boltstore.Open(filepath.Join(t.TempDir(), "world.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	if err := world.Seed(context.Background(), store); err != nil {
		t.Fatalf("seed: %v", err)
	}
	return NewGame(store, DefaultConfig())
}

func TestCreateUserAndAuthenticate(t *testing.T) {
	g := newTestGame(t)

	id, err := g.CreateUser("Alice", "secret")
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}

	got, err := g.Authenticate("alice", "secret")
	if err != nil || got != id {
		t.Fatalf("Authenticate = %q, %v; want %q", got, err, id)
	}

	if _, err := g.Authenticate("alice", "wrong"); !errors.Is(err, ErrBadCredentials) {
		t.Errorf("wrong password err = %v, want ErrBadCredentials", err)
	}
	if _, err := g.Authenticate("nobody", "secret"); !errors.Is(err, ErrBadCredentials) {
		t.Errorf("unknown user err = %v, want ErrBadCredentials", err)
	}

	user, err := g.Store.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("Get user: %v", err)
	}
	if user.Location != world.RoomOrigin {
		t.Errorf("new user location = %q, want origin", user.Location)
	}
	if user.PasswordHash == "secret" || user.PasswordHash == "" {
		t.Error("password stored without hashing")
	}
	origin, _ := g.Store.Get(context.Background(), world.RoomOrigin)
	if !origin.Contains(id) {
		t.Errorf("origin does not list the new user")
	}
}

func TestCreateUserDuplicateName(t *testing.T) {
	g := newTestGame(t)
	if _, err := g.CreateUser("Alice", "secret"); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if _, err := g.CreateUser("alice", "other"); err == nil {
		t.Fatal("duplicate name (case folded) was accepted")
	}
}

func TestConnectUserShowsRoomAndAnnounces(t *testing.T) {
	g := newTestGame(t)
	aliceID, _ := g.CreateUser("Alice", "secret")
	bobID, _ := g.CreateUser("Bob", "secret")

	bobSub := &recordingSub{}
	if err := g.ConnectUser("s-bob", bobID, bobSub); err != nil {
		t.Fatalf("ConnectUser bob: %v", err)
	}

	aliceSub := &recordingSub{}
	if err := g.ConnectUser("s-alice", aliceID, aliceSub); err != nil {
		t.Fatalf("ConnectUser alice: %v", err)
	}

	if !aliceSub.hasText("The Welcome Hall") {
		t.Errorf("new arrival did not see the room")
	}
	if !bobSub.hasText("Alice wakes up.") {
		t.Errorf("room peer missed the connect announcement")
	}
}

func TestHandleLineParseErrorStaysLocal(t *testing.T) {
	g := newTestGame(t)
	id, _ := g.CreateUser("Alice", "secret")
	sub := &recordingSub{}
	g.ConnectUser("s1", id, sub)

	g.HandleLine("s1", "")
	if !sub.hasText("Say what?") {
		t.Errorf("empty input should prompt the actor")
	}

	g.HandleLine("s1", `take "unclosed`)
	if !sub.hasText("unclosed quote") {
		t.Errorf("malformed input should prompt the actor")
	}
}

func TestHandleLineDispatches(t *testing.T) {
	g := newTestGame(t)
	id, _ := g.CreateUser("Alice", "secret")
	sub := &recordingSub{}
	g.ConnectUser("s1", id, sub)

	g.HandleLine("s1", "take lantern")
	actor, _ := g.Store.Get(context.Background(), id)
	if !actor.Contains("thing:lantern") {
		t.Errorf("take via HandleLine did not move the lantern")
	}

	if quit := g.HandleLine("s1", "quit"); !quit {
		t.Error("quit should propagate from dispatch")
	}
}

func TestDisconnectSessionIdempotent(t *testing.T) {
	g := newTestGame(t)
	aliceID, _ := g.CreateUser("Alice", "secret")
	bobID, _ := g.CreateUser("Bob", "secret")

	bobSub := &recordingSub{}
	g.ConnectUser("s-bob", bobID, bobSub)
	g.ConnectUser("s-alice", aliceID, &recordingSub{})

	g.DisconnectSession("s-alice")
	if !bobSub.hasText("Alice falls asleep.") {
		t.Errorf("room peer missed the disconnect announcement")
	}

	// A second disconnect of the same session announces nothing.
	before := len(bobSub.events)
	g.DisconnectSession("s-alice")
	if len(bobSub.events) != before {
		t.Error("double disconnect produced extra events")
	}
}

package session

import (
	"testing"

	"github.com/textmoor/textmoor/pkg/events"
)

type stubSubscriber struct{}

func (stubSubscriber) Receive(events.Event) {}
func (stubSubscriber) Closed() bool         { return false }

func TestConnectAndGet(t *testing.T) {
	r := NewRegistry()
	r.Connect("s1", "user:alice", "room:hall", stubSubscriber{})

	sess, ok := r.Get("s1")
	if !ok {
		t.Fatal("session not found after Connect")
	}
	if sess.UserID != "user:alice" || sess.Location != "room:hall" || !sess.Alive {
		t.Errorf("unexpected session record: %+v", sess)
	}
	if r.Len() != 1 {
		t.Errorf("Len() = %d, want 1", r.Len())
	}
}

func TestMoveSubscription(t *testing.T) {
	r := NewRegistry()
	r.Connect("s1", "user:alice", "room:hall", stubSubscriber{})

	r.MoveSubscription("s1", "room:hall", "room:garden")
	if sess, _ := r.Get("s1"); sess.Location != "room:garden" {
		t.Errorf("location = %q after move, want room:garden", sess.Location)
	}

	// A move whose from-room no longer matches must not apply.
	r.MoveSubscription("s1", "room:hall", "room:attic")
	if sess, _ := r.Get("s1"); sess.Location != "room:garden" {
		t.Errorf("stale move applied: location = %q", sess.Location)
	}

	// Unknown session ids are ignored.
	r.MoveSubscription("nope", "room:garden", "room:attic")
}

func TestMoveSubscriptionCarriesAllUserSessions(t *testing.T) {
	r := NewRegistry()
	r.Connect("s1", "user:alice", "room:hall", stubSubscriber{})
	r.Connect("s2", "user:alice", "room:hall", stubSubscriber{})
	r.Connect("s3", "user:bob", "room:hall", stubSubscriber{})

	r.MoveSubscription("s1", "room:hall", "room:garden")

	for _, id := range []string{"s1", "s2"} {
		if sess, _ := r.Get(id); sess.Location != "room:garden" {
			t.Errorf("session %s location = %q, want room:garden", id, sess.Location)
		}
	}
	if sess, _ := r.Get("s3"); sess.Location != "room:hall" {
		t.Errorf("another user's session moved: %+v", sess)
	}
}

func TestMoveSubscriptionSingleRoomAtAllTimes(t *testing.T) {
	r := NewRegistry()
	r.Connect("s1", "user:alice", "room:hall", stubSubscriber{})
	r.MoveSubscription("s1", "room:hall", "room:garden")

	if subs := r.InRoom("room:hall"); len(subs) != 0 {
		t.Errorf("session still listed in old room after move")
	}
	if subs := r.InRoom("room:garden"); len(subs) != 1 {
		t.Errorf("session not listed in new room after move")
	}
}

func TestDisconnectIdempotent(t *testing.T) {
	r := NewRegistry()
	r.Connect("s1", "user:alice", "room:hall", stubSubscriber{})

	rec, ok := r.Disconnect("s1")
	if !ok {
		t.Fatal("first Disconnect returned ok=false")
	}
	if rec.UserID != "user:alice" || rec.Location != "room:hall" {
		t.Errorf("disconnect record = %+v", rec)
	}

	if _, ok := r.Disconnect("s1"); ok {
		t.Error("second Disconnect should be a no-op")
	}
	if _, ok := r.Get("s1"); ok {
		t.Error("session still retrievable after Disconnect")
	}
}

func TestOfUserSpansSessions(t *testing.T) {
	r := NewRegistry()
	r.Connect("s1", "user:bob", "room:hall", stubSubscriber{})
	r.Connect("s2", "user:bob", "room:garden", stubSubscriber{})
	r.Connect("s3", "user:carol", "room:hall", stubSubscriber{})

	if subs := r.OfUser("user:bob"); len(subs) != 2 {
		t.Errorf("OfUser(bob) = %d sessions, want 2", len(subs))
	}
	if got := len(r.Connected()); got != 3 {
		t.Errorf("Connected() = %d, want 3", got)
	}
}

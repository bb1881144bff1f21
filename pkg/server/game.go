package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/textmoor/textmoor/pkg/events"
	"github.com/textmoor/textmoor/pkg/parse"
	"github.com/textmoor/textmoor/pkg/session"
	"github.com/textmoor/textmoor/pkg/verbs"
	"github.com/textmoor/textmoor/pkg/world"
)

// ErrBadCredentials is returned for unknown names and wrong passwords alike.
var ErrBadCredentials = errors.New("server: invalid credentials")

// Game ties the command pipeline together: session registry, broadcaster,
// verb dispatcher and the world store. Transports feed it lines; it feeds
// them events back through their subscribers.
type Game struct {
	Store      world.Store
	Sessions   *session.Registry
	Bus        *events.Bus
	Dispatcher *verbs.Dispatcher
	Metrics    *Metrics
	Conf       Config
}

// NewGame wires a game over a store.
func NewGame(store world.Store, cfg Config) *Game {
	sessions := session.NewRegistry()
	bus := events.NewBus(sessions)
	d := verbs.NewDispatcher(store, verbs.DefaultRegistry(), sessions, bus)
	d.MaxRetries = cfg.CASRetries
	d.StoreTimeout = time.Duration(cfg.StoreTimeoutSeconds) * time.Second

	return &Game{
		Store:      store,
		Sessions:   sessions,
		Bus:        bus,
		Dispatcher: d,
		Conf:       cfg,
	}
}

// SetMetrics attaches the Prometheus collector to the dispatcher.
func (g *Game) SetMetrics(m *Metrics) {
	g.Metrics = m
	g.Dispatcher.Stats = m
}

// storeCtx returns a context bounding one round of store calls.
func (g *Game) storeCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), time.Duration(g.Conf.StoreTimeoutSeconds)*time.Second)
}

// HandleLine runs one inbound line through parse and dispatch. Parse
// failures become actor-scoped events; nothing here can affect another
// session's commands. The returned flag asks the transport to close.
func (g *Game) HandleLine(sessionID, line string) (quit bool) {
	sess, ok := g.Sessions.Get(sessionID)
	if !ok {
		return true
	}

	pctx, err := g.parseContext(sess)
	if err != nil {
		g.notifyActor(sessionID, "The world is out of reach right now. Try again in a moment.")
		return false
	}

	pc, err := parse.Parse(line, pctx)
	if err != nil {
		if g.Metrics != nil {
			g.Metrics.ParseError()
		}
		g.notifyActor(sessionID, err.Error())
		return false
	}

	return g.Dispatcher.Dispatch(sessionID, pc)
}

// parseContext snapshots what the actor can see: room contents and their
// own inventory, as named candidates for reference resolution.
func (g *Game) parseContext(sess session.Session) (parse.Context, error) {
	ctx, cancel := g.storeCtx()
	defer cancel()

	pctx := parse.Context{ActorID: sess.UserID, LocationID: sess.Location}

	roomIDs, err := g.Store.ListContents(ctx, sess.Location)
	if err != nil {
		return pctx, err
	}
	for _, id := range roomIDs {
		if id == sess.UserID {
			continue
		}
		e, err := g.Store.Get(ctx, id)
		if err != nil {
			continue // vanished mid-snapshot; dispatch re-reads anyway
		}
		pctx.Contents = append(pctx.Contents, parse.Candidate{ID: e.ID, Name: e.Name, Aliases: e.Aliases})
	}

	invIDs, err := g.Store.ListContents(ctx, sess.UserID)
	if err != nil {
		return pctx, err
	}
	for _, id := range invIDs {
		e, err := g.Store.Get(ctx, id)
		if err != nil {
			continue
		}
		pctx.Inventory = append(pctx.Inventory, parse.Candidate{ID: e.ID, Name: e.Name, Aliases: e.Aliases})
	}
	return pctx, nil
}

// Authenticate checks a name/password pair against the stored user.
func (g *Game) Authenticate(name, password string) (string, error) {
	ctx, cancel := g.storeCtx()
	defer cancel()

	id, err := g.Store.FindUserByName(ctx, name)
	if err != nil {
		if errors.Is(err, world.ErrNotFound) {
			return "", ErrBadCredentials
		}
		return "", err
	}
	user, err := g.Store.Get(ctx, id)
	if err != nil {
		return "", err
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return "", ErrBadCredentials
	}
	return id, nil
}

// CreateUser registers a new user, placing them in the origin room.
func (g *Game) CreateUser(name, password string) (string, error) {
	ctx, cancel := g.storeCtx()
	defer cancel()

	if _, err := g.Store.FindUserByName(ctx, name); err == nil {
		return "", fmt.Errorf("server: user %q already exists", name)
	} else if !errors.Is(err, world.ErrNotFound) {
		return "", err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("server: hash password: %w", err)
	}

	id := "user:" + uuid.NewString()
	user := world.Entity{
		ID:           id,
		Kind:         world.KindUser,
		Name:         name,
		Description:  fmt.Sprintf("%s looks like they are from out of town.", name),
		Location:     world.RoomOrigin,
		Owner:        id,
		PasswordHash: string(hash),
	}
	if _, err := g.Store.Create(ctx, user); err != nil {
		return "", err
	}
	if err := g.addToRoom(ctx, world.RoomOrigin, id); err != nil {
		return "", err
	}
	log.Printf("game: created user %q (%s)", name, id)
	return id, nil
}

// addToRoom adds an entity id to a room's contents with a bounded CAS loop.
func (g *Game) addToRoom(ctx context.Context, roomID, id string) error {
	for attempt := 0; attempt <= g.Conf.CASRetries; attempt++ {
		room, err := g.Store.Get(ctx, roomID)
		if err != nil {
			return err
		}
		if room.Contains(id) {
			return nil
		}
		next := room.Clone()
		next.AddContent(id)
		err = g.Store.CompareAndSet(ctx, next, room.Version)
		if err == nil {
			return nil
		}
		if !errors.Is(err, world.ErrVersionConflict) {
			return err
		}
	}
	return fmt.Errorf("server: add %s to %s: %w", id, roomID, world.ErrVersionConflict)
}

// ConnectUser attaches an authenticated user to a session: registers the
// subscription, announces the arrival to the room, and shows the room.
func (g *Game) ConnectUser(sessionID, userID string, sub events.Subscriber) error {
	ctx, cancel := g.storeCtx()
	defer cancel()

	user, err := g.Store.Get(ctx, userID)
	if err != nil {
		return err
	}
	loc := user.Location
	if loc == "" {
		loc = world.RoomOrigin
	}
	// Heal a user record that lost its room membership (e.g. an interrupted
	// move committed the source removal but not the destination add).
	if err := g.addToRoom(ctx, loc, userID); err != nil {
		return err
	}

	g.Sessions.Connect(sessionID, userID, loc, sub)
	g.Bus.Deliver(sessionID, []events.Event{{
		Type:  events.TypeConnect,
		Actor: userID,
		Scope: events.ToRoomExcept(loc),
		Text:  fmt.Sprintf("%s wakes up.", user.Name),
	}})
	g.HandleLine(sessionID, "look")
	return nil
}

// DisconnectSession removes a session and announces the departure. It is
// idempotent: a second call for the same session does nothing.
func (g *Game) DisconnectSession(sessionID string) {
	rec, ok := g.Sessions.Disconnect(sessionID)
	if !ok || rec.UserID == "" {
		return
	}

	ctx, cancel := g.storeCtx()
	defer cancel()
	name := rec.UserID
	if user, err := g.Store.Get(ctx, rec.UserID); err == nil {
		name = user.Name
	}
	g.Bus.Deliver(sessionID, []events.Event{{
		Type:  events.TypeDisconnect,
		Actor: rec.UserID,
		Scope: events.ToRoom(rec.Location),
		Text:  fmt.Sprintf("%s falls asleep.", name),
	}})
}

// notifyActor sends one actor-scoped line to a session outside dispatch.
func (g *Game) notifyActor(sessionID, text string) {
	sess, _ := g.Sessions.Get(sessionID)
	g.Bus.Deliver(sessionID, []events.Event{{
		Type:  events.TypeError,
		Actor: sess.UserID,
		Scope: events.ToActor(),
		Text:  text,
	}})
}

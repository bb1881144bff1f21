package events

import "fmt"

// Type classifies events for transport-specific encoding.
type Type int

const (
	TypeText       Type = iota // Raw text (universal fallback)
	TypeSay                    // Speech
	TypePose                   // Pose/emote
	TypeWhisper                // Private message
	TypeRoom                   // Room description
	TypeMove                   // Arrive/depart
	TypeConnect                // User connected
	TypeDisconnect             // User disconnected
	TypeWho                    // Connected-user listing
	TypeError                  // Parse/dispatch failure shown to the actor
)

// String returns a human-readable name for the event type.
func (t Type) String() string {
	switch t {
	case TypeText:
		return "text"
	case TypeSay:
		return "say"
	case TypePose:
		return "pose"
	case TypeWhisper:
		return "whisper"
	case TypeRoom:
		return "room"
	case TypeMove:
		return "move"
	case TypeConnect:
		return "connect"
	case TypeDisconnect:
		return "disconnect"
	case TypeWho:
		return "who"
	case TypeError:
		return "error"
	default:
		return "unknown"
	}
}

// ScopeKind selects which sessions an event is routed to.
type ScopeKind int

const (
	ScopeActor  ScopeKind = iota // Only the originating session.
	ScopeRoom                    // Every session located in Scope.Room.
	ScopeUser                    // Every session of the user in Scope.User.
	ScopeGlobal                  // All live sessions.
)

// Scope is an event's routing class.
type Scope struct {
	Kind ScopeKind
	Room string // room id for ScopeRoom
	User string // user id for ScopeUser

	// ExcludeActor drops the originating session from room and global
	// routing, so an actor can receive first-person narration on the
	// actor scope without also seeing their own third-person line.
	ExcludeActor bool
}

// ToActor scopes an event to the originating session only.
func ToActor() Scope { return Scope{Kind: ScopeActor} }

// ToRoom scopes an event to every session in the room.
func ToRoom(roomID string) Scope { return Scope{Kind: ScopeRoom, Room: roomID} }

// ToRoomExcept scopes an event to every session in the room except the
// originating one.
func ToRoomExcept(roomID string) Scope {
	return Scope{Kind: ScopeRoom, Room: roomID, ExcludeActor: true}
}

// ToUser scopes an event to all sessions of one user.
func ToUser(userID string) Scope { return Scope{Kind: ScopeUser, User: userID} }

// ToGlobal scopes an event to all live sessions.
func ToGlobal() Scope { return Scope{Kind: ScopeGlobal} }

// String renders the routing class in its wire form.
func (s Scope) String() string {
	switch s.Kind {
	case ScopeActor:
		return "actor"
	case ScopeRoom:
		return fmt.Sprintf("room:%s", s.Room)
	case ScopeUser:
		return fmt.Sprintf("user:%s", s.User)
	case ScopeGlobal:
		return "global"
	default:
		return "unknown"
	}
}

// Event is a single piece of narration produced by one verb execution and
// consumed by the broadcaster within the same dispatch cycle. Seq is the
// generation order within that cycle; recipients see events of one cycle in
// Seq order.
type Event struct {
	Type  Type   `json:"type"`
	Actor string `json:"actor,omitempty"` // originating user id
	Text  string `json:"text"`
	Scope Scope  `json:"-"`
	Seq   int    `json:"seq"`
}

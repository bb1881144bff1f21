package verbs

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/textmoor/textmoor/pkg/events"
	"github.com/textmoor/textmoor/pkg/parse"
	"github.com/textmoor/textmoor/pkg/session"
	"github.com/textmoor/textmoor/pkg/world"
)

// DefaultRegistry returns the global verb table with all built-in verbs.
func DefaultRegistry() *Registry {
	reg := NewRegistry()
	reg.Register(lookVerb())
	reg.Register(goVerb())
	reg.Register(takeVerb())
	reg.Register(dropVerb())
	reg.Register(giveVerb())
	reg.Register(sayVerb())
	reg.Register(emoteVerb())
	reg.Register(shoutVerb())
	reg.Register(tellVerb())
	reg.Register(whisperVerb())
	reg.Register(inventoryVerb())
	reg.Register(examineVerb())
	reg.Register(describeVerb())
	reg.Register(createVerb())
	reg.Register(whoVerb())
	reg.Register(quitVerb())
	reg.Register(helpVerb(reg))
	return reg
}

// permDirectCoLocated requires the direct object, when one resolved, to
// share the actor's location or be carried by the actor.
func permDirectCoLocated(sess session.Session, actor world.Entity, direct *world.Entity) error {
	if direct == nil {
		return nil // unresolved references fail inside Run with better text
	}
	if direct.Location == sess.Location || direct.Location == actor.ID || direct.ID == sess.Location {
		return nil
	}
	return Denied("You can't reach that from here.")
}

// permDirectEditable requires the actor to own or be an editor of the
// direct object.
func permDirectEditable(sess session.Session, actor world.Entity, direct *world.Entity) error {
	if err := permDirectCoLocated(sess, actor, direct); err != nil {
		return err
	}
	if direct != nil && !direct.CanEdit(actor.ID) {
		return Denied("You don't have permission to change that.")
	}
	return nil
}

func lookVerb() *Verb {
	return &Verb{
		Name:    "look",
		Aliases: []string{"l"},
		Help:    "look [object] - describe your surroundings or one thing in them.",
		Run: func(env *Env) error {
			if env.Cmd.Direct.ID == "" {
				if env.Cmd.Direct.Raw != "" {
					return &UserError{Msg: fmt.Sprintf("You see no %s here.", env.Cmd.Direct.Raw)}
				}
				env.Emit(events.TypeRoom, events.ToActor(), "%s", describeRoom(env, env.Room))
				return nil
			}
			obj, err := env.Get(env.Cmd.Direct.ID)
			if err != nil {
				if errors.Is(err, world.ErrNotFound) {
					return &UserError{Msg: fmt.Sprintf("You see no %s here.", env.Cmd.Direct.Raw)}
				}
				return err
			}
			desc := obj.Description
			if desc == "" {
				desc = "You see nothing special."
			}
			env.Emit(events.TypeText, events.ToActor(), "%s\n%s", obj.Name, desc)
			return nil
		},
	}
}

// direction extracts the travel direction from a parsed go command.
func direction(pc parse.ParsedCommand) string {
	if pc.Direct.Raw != "" {
		return strings.ToLower(pc.Direct.Raw)
	}
	fields := strings.Fields(pc.Remainder)
	if len(fields) == 0 {
		return ""
	}
	return strings.ToLower(fields[0])
}

// exitTarget resolves a direction name against a room's exits,
// case-insensitively.
func exitTarget(room world.Entity, dir string) (string, bool) {
	for name, dst := range room.Exits {
		if strings.EqualFold(name, dir) {
			return dst, true
		}
	}
	return "", false
}

func goVerb() *Verb {
	return &Verb{
		Name:    "go",
		Aliases: []string{"walk"},
		Help:    "go <direction> - leave through one of the room's exits.",
		Targets: func(ctx context.Context, store world.Store, sess session.Session, pc parse.ParsedCommand) []string {
			room, err := store.Get(ctx, sess.Location)
			if err != nil {
				return nil
			}
			if dst, ok := exitTarget(room, direction(pc)); ok {
				return []string{dst}
			}
			return nil
		},
		Run: func(env *Env) error {
			dir := direction(env.Cmd)
			if dir == "" {
				return &UserError{Msg: "Go where?"}
			}
			dst, ok := exitTarget(env.Room, dir)
			if !ok {
				return &UserError{Msg: "You can't go that way."}
			}
			dest, err := env.Get(dst)
			if err != nil {
				return err
			}

			actorID := env.Actor.ID
			env.Stage(env.Room, func(e *world.Entity) { e.RemoveContent(actorID) })
			env.Stage(dest, func(e *world.Entity) { e.AddContent(actorID) })
			env.Stage(env.Actor, func(e *world.Entity) { e.Location = dst })

			from, sessID := env.Room.ID, env.Sess.ID
			env.After(func() { env.Sessions.MoveSubscription(sessID, from, dst) })

			env.Emit(events.TypeMove, events.ToRoomExcept(env.Room.ID), "%s leaves %s.", env.Actor.Name, dir)
			env.Emit(events.TypeMove, events.ToRoomExcept(dst), "%s arrives.", env.Actor.Name)
			env.Emit(events.TypeRoom, events.ToActor(), "%s", describeRoomAs(env, dest, actorID))
			return nil
		},
	}
}

func takeVerb() *Verb {
	return &Verb{
		Name:       "take",
		Aliases:    []string{"get"},
		Help:       "take <object> - pick something up from the room.",
		Permission: permDirectCoLocated,
		Run: func(env *Env) error {
			raw := env.Cmd.Direct.Raw
			if raw == "" {
				raw = "that"
			}
			if env.Cmd.Direct.ID == "" {
				return &UserError{Msg: fmt.Sprintf("There is no %s here.", raw)}
			}
			obj, err := env.Get(env.Cmd.Direct.ID)
			if err != nil {
				if errors.Is(err, world.ErrNotFound) {
					return &UserError{Msg: fmt.Sprintf("There is no %s here.", raw)}
				}
				return err
			}
			if obj.Kind != world.KindThing {
				return &UserError{Msg: "You can't pick that up."}
			}
			if obj.Location == env.Actor.ID {
				return &UserError{Msg: "You already have that."}
			}
			if obj.Location != env.Room.ID || !env.Room.Contains(obj.ID) {
				return &UserError{Msg: fmt.Sprintf("There is no %s here.", raw)}
			}

			objID, actorID := obj.ID, env.Actor.ID
			// Source container first, destination second: a half-applied
			// take makes the item briefly invisible, never duplicated.
			env.Stage(env.Room, func(e *world.Entity) { e.RemoveContent(objID) })
			env.Stage(env.Actor, func(e *world.Entity) { e.AddContent(objID) })
			env.Stage(obj, func(e *world.Entity) { e.Location = actorID })

			env.Emit(events.TypeText, events.ToActor(), "You pick up the %s.", obj.Name)
			env.Emit(events.TypeText, events.ToRoomExcept(env.Room.ID), "%s picks up a %s.", env.Actor.Name, obj.Name)
			return nil
		},
	}
}

func dropVerb() *Verb {
	return &Verb{
		Name: "drop",
		Help: "drop <object> - put something you carry down in the room.",
		Run: func(env *Env) error {
			raw := env.Cmd.Direct.Raw
			if raw == "" {
				raw = "that"
			}
			if env.Cmd.Direct.ID == "" {
				return &UserError{Msg: fmt.Sprintf("You aren't carrying any %s.", raw)}
			}
			obj, err := env.Get(env.Cmd.Direct.ID)
			if err != nil {
				if errors.Is(err, world.ErrNotFound) {
					return &UserError{Msg: fmt.Sprintf("You aren't carrying any %s.", raw)}
				}
				return err
			}
			if obj.Location != env.Actor.ID || !env.Actor.Contains(obj.ID) {
				return &UserError{Msg: fmt.Sprintf("You aren't carrying any %s.", raw)}
			}

			objID, roomID := obj.ID, env.Room.ID
			env.Stage(env.Actor, func(e *world.Entity) { e.RemoveContent(objID) })
			env.Stage(env.Room, func(e *world.Entity) { e.AddContent(objID) })
			env.Stage(obj, func(e *world.Entity) { e.Location = roomID })

			env.Emit(events.TypeText, events.ToActor(), "You drop the %s.", obj.Name)
			env.Emit(events.TypeText, events.ToRoomExcept(env.Room.ID), "%s drops a %s.", env.Actor.Name, obj.Name)
			return nil
		},
	}
}

func giveVerb() *Verb {
	return &Verb{
		Name:       "give",
		Aliases:    []string{"hand"},
		Help:       "give <object> to <user> - hand something you carry to someone here.",
		Permission: permDirectCoLocated,
		Run: func(env *Env) error {
			if env.Cmd.Direct.ID == "" {
				return &UserError{Msg: "Give what?"}
			}
			if env.Cmd.Indirect.ID == "" {
				return &UserError{Msg: "Give it to whom?"}
			}
			obj, err := env.Get(env.Cmd.Direct.ID)
			if err != nil {
				return err
			}
			if obj.Location != env.Actor.ID {
				return &UserError{Msg: fmt.Sprintf("You aren't carrying any %s.", env.Cmd.Direct.Raw)}
			}
			target, err := env.Get(env.Cmd.Indirect.ID)
			if err != nil {
				return err
			}
			if target.Kind != world.KindUser || target.Location != env.Room.ID {
				return &UserError{Msg: "They aren't here."}
			}

			objID, targetID := obj.ID, target.ID
			env.Stage(env.Actor, func(e *world.Entity) { e.RemoveContent(objID) })
			env.Stage(target, func(e *world.Entity) { e.AddContent(objID) })
			env.Stage(obj, func(e *world.Entity) { e.Location = targetID })

			env.Emit(events.TypeText, events.ToActor(), "You give the %s to %s.", obj.Name, target.Name)
			env.Emit(events.TypeText, events.ToRoomExcept(env.Room.ID), "%s gives a %s to %s.", env.Actor.Name, obj.Name, target.Name)
			return nil
		},
	}
}

func sayVerb() *Verb {
	return &Verb{
		Name: "say",
		Help: `say <text> - speak to everyone in the room (shorthand: "text).`,
		Run: func(env *Env) error {
			msg := strings.TrimSpace(env.Cmd.Remainder)
			if msg == "" {
				return &UserError{Msg: "Say what?"}
			}
			env.Emit(events.TypeSay, events.ToActor(), "You say, %q", msg)
			env.Emit(events.TypeSay, events.ToRoomExcept(env.Room.ID), "%s says, %q", env.Actor.Name, msg)
			return nil
		},
	}
}

func emoteVerb() *Verb {
	return &Verb{
		Name:    "emote",
		Aliases: []string{"pose"},
		Help:    "emote <action> - narrate an action (shorthand: :action).",
		Run: func(env *Env) error {
			msg := strings.TrimSpace(env.Cmd.Remainder)
			if msg == "" {
				return &UserError{Msg: "Emote what?"}
			}
			env.Emit(events.TypePose, events.ToRoom(env.Room.ID), "%s %s", env.Actor.Name, msg)
			return nil
		},
	}
}

func shoutVerb() *Verb {
	return &Verb{
		Name:    "shout",
		Aliases: []string{"yell"},
		Help:    "shout <text> - raise your voice to the whole room (shorthand: !text).",
		Run: func(env *Env) error {
			msg := strings.TrimSpace(env.Cmd.Remainder)
			if msg == "" {
				return &UserError{Msg: "Shout what?"}
			}
			env.Emit(events.TypeSay, events.ToActor(), "You shout, %q", msg)
			env.Emit(events.TypeSay, events.ToRoomExcept(env.Room.ID), "%s shouts, %q", env.Actor.Name, msg)
			return nil
		},
	}
}

func tellVerb() *Verb {
	return &Verb{
		Name: "tell",
		Help: "tell <user> <text> - speak to one person while the room overhears (shorthand: @user text).",
		Run: func(env *Env) error {
			name, msg, _ := strings.Cut(strings.TrimSpace(env.Cmd.Remainder), " ")
			if name == "" {
				return &UserError{Msg: "Tell whom?"}
			}
			msg = strings.TrimSpace(msg)
			if msg == "" {
				return &UserError{Msg: fmt.Sprintf("Tell %s what?", name)}
			}

			var target *world.Entity
			for _, id := range env.Room.Contents {
				e, err := env.Get(id)
				if err != nil || e.Kind != world.KindUser || e.ID == env.Actor.ID {
					continue
				}
				if strings.EqualFold(e.Name, name) || e.HasAlias(name) {
					target = &e
					break
				}
			}
			if target == nil {
				return &UserError{Msg: fmt.Sprintf("You see no %s here.", name)}
			}

			env.Emit(events.TypeSay, events.ToActor(), "You say to %s, %q", target.Name, msg)
			env.Emit(events.TypeSay, events.ToRoomExcept(env.Room.ID), "%s says to %s, %q", env.Actor.Name, target.Name, msg)
			return nil
		},
	}
}

func whisperVerb() *Verb {
	return &Verb{
		Name: "whisper",
		Help: `whisper "<text>" to <user> - speak so only one person hears.`,
		Run: func(env *Env) error {
			msg := strings.TrimSpace(env.Cmd.Direct.Raw)
			if msg == "" {
				return &UserError{Msg: "Whisper what?"}
			}
			if env.Cmd.Preposition != "to" || env.Cmd.Indirect.ID == "" {
				return &UserError{Msg: "Whisper to whom?"}
			}
			target, err := env.Get(env.Cmd.Indirect.ID)
			if err != nil {
				return err
			}
			if target.Kind != world.KindUser || target.Location != env.Room.ID {
				return &UserError{Msg: "They aren't here."}
			}
			env.Emit(events.TypeWhisper, events.ToActor(), "You whisper to %s, %q", target.Name, msg)
			env.Emit(events.TypeWhisper, events.ToUser(target.ID), "%s whispers, %q", env.Actor.Name, msg)
			return nil
		},
	}
}

func inventoryVerb() *Verb {
	return &Verb{
		Name:    "inventory",
		Aliases: []string{"i", "inv"},
		Help:    "inventory - list what you are carrying.",
		Run: func(env *Env) error {
			if len(env.Actor.Contents) == 0 {
				env.Emit(events.TypeText, events.ToActor(), "You are carrying nothing.")
				return nil
			}
			names := make([]string, 0, len(env.Actor.Contents))
			for _, id := range env.Actor.Contents {
				obj, err := env.Get(id)
				if err != nil {
					continue
				}
				names = append(names, obj.Name)
			}
			env.Emit(events.TypeText, events.ToActor(), "You are carrying: %s.", strings.Join(names, ", "))
			return nil
		},
	}
}

func examineVerb() *Verb {
	return &Verb{
		Name:       "examine",
		Aliases:    []string{"ex"},
		Help:       "examine <object> - inspect something closely.",
		Permission: permDirectCoLocated,
		Run: func(env *Env) error {
			id := env.Cmd.Direct.ID
			if id == "" {
				if env.Cmd.Direct.Raw != "" {
					return &UserError{Msg: fmt.Sprintf("You see no %s here.", env.Cmd.Direct.Raw)}
				}
				id = env.Actor.ID
			}
			obj, err := env.Get(id)
			if err != nil {
				return err
			}
			var b strings.Builder
			fmt.Fprintf(&b, "%s (%s)\n", obj.Name, obj.Kind)
			if len(obj.Aliases) > 0 {
				fmt.Fprintf(&b, "Also known as: %s.\n", strings.Join(obj.Aliases, ", "))
			}
			if obj.Description != "" {
				b.WriteString(obj.Description)
			} else {
				b.WriteString("You see nothing special.")
			}
			env.Emit(events.TypeText, events.ToActor(), "%s", b.String())
			env.Emit(events.TypeText, events.ToRoomExcept(env.Room.ID), "%s looks closely at %s.", env.Actor.Name, obj.Name)
			return nil
		},
	}
}

func describeVerb() *Verb {
	return &Verb{
		Name:       "describe",
		Aliases:    []string{"desc"},
		Help:       "describe <object> as <text> - set the description of something you own.",
		Permission: permDirectEditable,
		Run: func(env *Env) error {
			if env.Cmd.Direct.ID == "" {
				return &UserError{Msg: "Describe what?"}
			}
			if env.Cmd.Preposition != "as" || env.Cmd.Indirect.Raw == "" {
				return &UserError{Msg: `Describe it as what? Try: describe lantern as "A dented brass lantern."`}
			}
			obj, err := env.Get(env.Cmd.Direct.ID)
			if err != nil {
				return err
			}
			if !obj.CanEdit(env.Actor.ID) {
				return Denied("You don't have permission to change that.")
			}
			text := env.Cmd.Indirect.Raw
			env.Stage(obj, func(e *world.Entity) { e.Description = text })
			env.Emit(events.TypeText, events.ToActor(), "You set the description of %s.", obj.Name)
			return nil
		},
	}
}

func createVerb() *Verb {
	return &Verb{
		Name:    "create",
		Aliases: []string{"make"},
		Help:    "create <name> - shape a new object into your hands.",
		Run: func(env *Env) error {
			name := strings.TrimSpace(env.Cmd.Remainder)
			if name == "" {
				return &UserError{Msg: "Create what?"}
			}
			name = strings.Trim(name, `"`)

			// Pin the id across retry cycles so a re-run cannot mint a
			// second entity.
			id := env.Scratch["created"]
			if id == "" {
				id = "thing:" + uuid.NewString()
				env.Scratch["created"] = id
			}
			env.StageCreate(world.Entity{
				ID:       id,
				Kind:     world.KindThing,
				Name:     name,
				Location: env.Actor.ID,
				Owner:    env.Actor.ID,
			})
			env.Stage(env.Actor, func(e *world.Entity) { e.AddContent(id) })

			env.Emit(events.TypeText, events.ToActor(), "You shape a %s out of nothing.", name)
			env.Emit(events.TypeText, events.ToRoomExcept(env.Room.ID), "%s shapes something new out of nothing.", env.Actor.Name)
			return nil
		},
	}
}

func whoVerb() *Verb {
	return &Verb{
		Name: "who",
		Help: "who - list everyone connected.",
		Run: func(env *Env) error {
			conns := env.Sessions.Connected()
			seen := make(map[string]bool, len(conns))
			var names []string
			for _, s := range conns {
				if seen[s.UserID] {
					continue
				}
				seen[s.UserID] = true
				u, err := env.Get(s.UserID)
				if err != nil {
					continue
				}
				names = append(names, u.Name)
			}
			sort.Strings(names)
			env.Emit(events.TypeWho, events.ToActor(), "Connected (%d): %s.", len(names), strings.Join(names, ", "))
			return nil
		},
	}
}

func quitVerb() *Verb {
	return &Verb{
		Name: "quit",
		Help: "quit - leave the world.",
		Run: func(env *Env) error {
			env.Quit = true
			env.Emit(events.TypeDisconnect, events.ToActor(), "Goodbye.")
			return nil
		},
	}
}

func helpVerb(reg *Registry) *Verb {
	return &Verb{
		Name: "help",
		Help: "help - this listing.",
		Run: func(env *Env) error {
			var b strings.Builder
			b.WriteString("Commands:\n")
			for _, v := range reg.All() {
				if v.Help != "" {
					fmt.Fprintf(&b, "  %s\n", v.Help)
				}
			}
			env.Emit(events.TypeText, events.ToActor(), "%s", strings.TrimRight(b.String(), "\n"))
			return nil
		},
	}
}

// describeRoom renders a room for an actor standing inside it.
func describeRoom(env *Env, room world.Entity) string {
	return describeRoomAs(env, room, env.Actor.ID)
}

// describeRoomAs renders a room, hiding the viewing actor from the contents
// listing.
func describeRoomAs(env *Env, room world.Entity, viewerID string) string {
	var b strings.Builder
	b.WriteString(room.Name)
	if room.Description != "" {
		b.WriteString("\n")
		b.WriteString(room.Description)
	}

	var here []string
	for _, id := range room.Contents {
		if id == viewerID {
			continue
		}
		obj, err := env.Get(id)
		if err != nil {
			continue
		}
		here = append(here, obj.Name)
	}
	if len(here) > 0 {
		fmt.Fprintf(&b, "\nYou see: %s.", strings.Join(here, ", "))
	}

	if len(room.Exits) > 0 {
		dirs := make([]string, 0, len(room.Exits))
		for d := range room.Exits {
			dirs = append(dirs, d)
		}
		sort.Strings(dirs)
		fmt.Fprintf(&b, "\nExits: %s.", strings.Join(dirs, ", "))
	}
	return b.String()
}

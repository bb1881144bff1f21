package server

import (
	"errors"
	"fmt"
	"strings"
)

// ParseConnect parses a login-screen command into (command, user, password).
// Handles: "connect name password", "create name password".
func ParseConnect(msg string) (command, user, password string) {
	msg = strings.TrimSpace(msg)
	if msg == "" {
		return "", "", ""
	}

	parts := strings.SplitN(msg, " ", 2)
	command = strings.ToLower(parts[0])
	if len(parts) < 2 {
		return command, "", ""
	}

	rest := strings.TrimSpace(parts[1])
	if rest == "" {
		return command, "", ""
	}

	// Handle quoted names (for names with spaces)
	if rest[0] == '"' {
		end := strings.Index(rest[1:], "\"")
		if end >= 0 {
			user = rest[1 : end+1]
			password = strings.TrimSpace(rest[end+2:])
			return
		}
	}

	parts = strings.SplitN(rest, " ", 2)
	user = parts[0]
	if len(parts) > 1 {
		password = strings.TrimSpace(parts[1])
	}
	return
}

// handleLoginLine processes one line from a connection that has not logged
// in yet. It returns the user id once a connect or create succeeds, and
// disconnect=true when the client asked to leave.
func (g *Game) handleLoginLine(d *Descriptor, line string) (userID string, disconnect bool) {
	command, name, password := ParseConnect(line)
	switch command {
	case "":
		return "", false
	case "quit":
		d.Send("Goodbye.")
		return "", true
	case "who":
		sessions := g.Sessions.Connected()
		d.Send(loginWhoLine(len(sessions)))
		return "", false
	case "connect", "con":
		if name == "" || password == "" {
			d.Send(`Usage: connect <name> <password>`)
			return "", false
		}
		id, err := g.Authenticate(name, password)
		if err != nil {
			if errors.Is(err, ErrBadCredentials) {
				d.Send("Either that user does not exist or the password is wrong.")
			} else {
				d.Send("The world is out of reach right now. Try again in a moment.")
			}
			return "", false
		}
		return id, false
	case "create":
		if name == "" || password == "" {
			d.Send(`Usage: create <name> <password>`)
			return "", false
		}
		id, err := g.CreateUser(name, password)
		if err != nil {
			d.Send("That name cannot be used. Pick another.")
			return "", false
		}
		return id, false
	default:
		d.Send(`Type "connect <name> <password>" or "create <name> <password>".`)
		return "", false
	}
}

func loginWhoLine(n int) string {
	if n == 1 {
		return "1 user is connected."
	}
	return fmt.Sprintf("%d users are connected.", n)
}

// WelcomeText is the welcome screen shown to new connections.
const WelcomeText = `
 _____         _
|_   _|____  _| |_ _ __ ___   ___   ___  _ __
  | |/ _ \ \/ / __| '_ ` + "`" + ` _ \ / _ \ / _ \| '__|
  | |  __/>  <| |_| | | | | | (_) | (_) | |
  |_|\___/_/\_\\__|_| |_| |_|\___/ \___/|_|

"connect <name> <password>" to connect to your existing character.
"create <name> <password>" to create a new character.
"WHO" to see who is connected.
"QUIT" to disconnect.

`

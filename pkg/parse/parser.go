// Package parse turns raw command text plus situational context into a
// structured command. Parsing is a pure function of its inputs: the context
// carries everything visible to the actor, so reference resolution needs no
// hidden state and is independently testable.
//
// Grammar: verb [directObject] [preposition indirectObject]. Multi-word
// names may be double-quoted. Verb existence is not validated here; that
// happens later against the scope-aware verb tables.
package parse

import (
	"fmt"
	"strings"
	"time"
	"unicode"
)

// Command is one raw inbound message, created per line received and
// consumed by Parse.
type Command struct {
	Raw       string
	SessionID string
	Received  time.Time
}

// Ref is a reference to a world entity extracted from the input. ID is
// empty when the token named nothing visible; verbs decide whether that is
// an error.
type Ref struct {
	ID  string
	Raw string
}

// ParsedCommand is the structured form handed to the dispatcher.
type ParsedCommand struct {
	Verb        string
	Direct      Ref
	Preposition string
	Indirect    Ref
	// Remainder is everything after the verb token, verbatim. Speech-like
	// verbs consume it instead of the resolved references.
	Remainder string
}

// ErrorKind classifies parse failures.
type ErrorKind int

const (
	Empty              ErrorKind = iota // no input at all
	UnknownVerbShape                    // first token cannot be a verb
	AmbiguousReference                  // several visible entities match equally well
	MalformedSyntax                     // e.g. unterminated quote
)

// Error is a parse failure. It is actor-only and non-fatal; the text invites
// the user to re-enter the command.
type Error struct {
	Kind       ErrorKind
	Token      string
	Candidates []string // names that tied, for AmbiguousReference
}

func (e *Error) Error() string {
	switch e.Kind {
	case Empty:
		return "Say what?"
	case UnknownVerbShape:
		return fmt.Sprintf("I don't understand %q.", e.Token)
	case AmbiguousReference:
		return fmt.Sprintf("Which %q do you mean: %s?", e.Token, strings.Join(e.Candidates, ", "))
	case MalformedSyntax:
		return "That command has an unclosed quote."
	default:
		return "I can't parse that."
	}
}

// Candidate is one visible entity offered for reference resolution.
type Candidate struct {
	ID      string
	Name    string
	Aliases []string
}

// Context supplies what the actor can currently see: the contents of their
// location and their own inventory.
type Context struct {
	ActorID    string
	LocationID string
	Contents   []Candidate
	Inventory  []Candidate
}

// prepositions recognized between the direct and indirect object.
var prepositions = map[string]bool{
	"with": true, "at": true, "to": true, "in": true, "on": true,
	"from": true, "into": true, "onto": true, "under": true,
	"behind": true, "as": true, "about": true,
}

// Parse evaluates one line of input against the actor's context.
func Parse(raw string, ctx Context) (ParsedCommand, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ParsedCommand{}, &Error{Kind: Empty}
	}

	// MUD shorthand: a leading quote speaks, a colon emotes, a bang shouts,
	// and an at-sign directs speech at someone in the room.
	switch trimmed[0] {
	case '"':
		return ParsedCommand{Verb: "say", Remainder: strings.TrimSpace(trimmed[1:])}, nil
	case ':':
		return ParsedCommand{Verb: "emote", Remainder: strings.TrimSpace(trimmed[1:])}, nil
	case '!':
		return ParsedCommand{Verb: "shout", Remainder: strings.TrimSpace(trimmed[1:])}, nil
	case '@':
		return ParsedCommand{Verb: "tell", Remainder: strings.TrimSpace(trimmed[1:])}, nil
	}

	tokens, err := tokenize(trimmed)
	if err != nil {
		return ParsedCommand{}, err
	}

	verb := tokens[0]
	if !verbShaped(verb) {
		return ParsedCommand{}, &Error{Kind: UnknownVerbShape, Token: verb}
	}

	pc := ParsedCommand{
		Verb:      strings.ToLower(verb),
		Remainder: strings.TrimSpace(trimmed[len(verb):]),
	}

	rest := tokens[1:]
	if len(rest) == 0 {
		return pc, nil
	}

	// Split on the first preposition: tokens before it name the direct
	// object, tokens after it the indirect object.
	prepIdx := -1
	for i, tok := range rest {
		if prepositions[strings.ToLower(tok)] {
			prepIdx = i
			break
		}
	}

	direct := rest
	var indirect []string
	if prepIdx >= 0 {
		direct = rest[:prepIdx]
		indirect = rest[prepIdx+1:]
		pc.Preposition = strings.ToLower(rest[prepIdx])
	}

	if len(direct) > 0 {
		pc.Direct, err = resolve(strings.Join(direct, " "), ctx)
		if err != nil {
			return ParsedCommand{}, err
		}
	}
	if len(indirect) > 0 {
		pc.Indirect, err = resolve(strings.Join(indirect, " "), ctx)
		if err != nil {
			return ParsedCommand{}, err
		}
	}
	return pc, nil
}

// tokenize splits input on whitespace, keeping double-quoted runs as single
// tokens. An unterminated quote is MalformedSyntax.
func tokenize(s string) ([]string, error) {
	var tokens []string
	var cur strings.Builder
	inQuote := false
	for _, r := range s {
		switch {
		case r == '"':
			inQuote = !inQuote
		case unicode.IsSpace(r) && !inQuote:
			if cur.Len() > 0 {
				tokens = append(tokens, cur.String())
				cur.Reset()
			}
		default:
			cur.WriteRune(r)
		}
	}
	if inQuote {
		return nil, &Error{Kind: MalformedSyntax}
	}
	if cur.Len() > 0 {
		tokens = append(tokens, cur.String())
	}
	return tokens, nil
}

// verbShaped reports whether a token could name a verb: it must start with
// a letter.
func verbShaped(tok string) bool {
	for _, r := range tok {
		return unicode.IsLetter(r)
	}
	return false
}

// resolve maps a phrase to a visible entity. Resolution tiers: exact
// full-name match, then alias match, then unique case-insensitive prefix.
// More than one survivor in a tier is AmbiguousReference, never an arbitrary
// pick. A phrase matching nothing is returned unresolved with the raw text.
func resolve(phrase string, ctx Context) (Ref, error) {
	switch strings.ToLower(phrase) {
	case "me":
		return Ref{ID: ctx.ActorID, Raw: phrase}, nil
	case "here":
		return Ref{ID: ctx.LocationID, Raw: phrase}, nil
	}

	visible := make([]Candidate, 0, len(ctx.Contents)+len(ctx.Inventory))
	visible = append(visible, ctx.Contents...)
	visible = append(visible, ctx.Inventory...)

	tiers := []func(Candidate) bool{
		func(c Candidate) bool { return strings.EqualFold(c.Name, phrase) },
		func(c Candidate) bool {
			for _, a := range c.Aliases {
				if strings.EqualFold(a, phrase) {
					return true
				}
			}
			return false
		},
		func(c Candidate) bool {
			return hasFoldPrefix(c.Name, phrase) || anyAliasFoldPrefix(c.Aliases, phrase)
		},
	}

	for _, match := range tiers {
		var hits []Candidate
		for _, c := range visible {
			if match(c) {
				hits = append(hits, c)
			}
		}
		switch len(hits) {
		case 0:
			continue
		case 1:
			return Ref{ID: hits[0].ID, Raw: phrase}, nil
		default:
			names := make([]string, len(hits))
			for i, h := range hits {
				names[i] = h.Name
			}
			return Ref{}, &Error{Kind: AmbiguousReference, Token: phrase, Candidates: names}
		}
	}
	return Ref{Raw: phrase}, nil
}

func hasFoldPrefix(s, prefix string) bool {
	if len(prefix) > len(s) {
		return false
	}
	return strings.EqualFold(s[:len(prefix)], prefix)
}

func anyAliasFoldPrefix(aliases []string, prefix string) bool {
	for _, a := range aliases {
		if hasFoldPrefix(a, prefix) {
			return true
		}
	}
	return false
}

package parse

import (
	"errors"
	"testing"
)

func testContext() Context {
	return Context{
		ActorID:    "user:alice",
		LocationID: "room:hall",
		Contents: []Candidate{
			{ID: "thing:lantern", Name: "brass lantern", Aliases: []string{"lantern", "lamp"}},
			{ID: "thing:bell", Name: "small bell", Aliases: []string{"bell"}},
			{ID: "user:bob", Name: "Bob"},
		},
		Inventory: []Candidate{
			{ID: "thing:key", Name: "iron key", Aliases: []string{"key"}},
		},
	}
}

func TestParseVerbOnly(t *testing.T) {
	pc, err := Parse("look", testContext())
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if pc.Verb != "look" || pc.Direct.ID != "" || pc.Preposition != "" {
		t.Errorf("unexpected parse: %+v", pc)
	}
}

func TestParseResolvesByAlias(t *testing.T) {
	pc, err := Parse("take lamp", testContext())
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if pc.Direct.ID != "thing:lantern" {
		t.Errorf("Direct.ID = %q, want thing:lantern", pc.Direct.ID)
	}
	if pc.Direct.Raw != "lamp" {
		t.Errorf("Direct.Raw = %q, want lamp", pc.Direct.Raw)
	}
}

func TestParseResolvesByUniquePrefix(t *testing.T) {
	pc, err := Parse("take bras", testContext())
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if pc.Direct.ID != "thing:lantern" {
		t.Errorf("prefix resolution gave %q, want thing:lantern", pc.Direct.ID)
	}
}

func TestParseExactNameBeatsPrefix(t *testing.T) {
	ctx := testContext()
	ctx.Contents = append(ctx.Contents, Candidate{ID: "thing:bellows", Name: "bellows"})

	// "bell" prefixes both "small bell" (alias) and "bellows", but the alias
	// match is an exact tier and must win without ambiguity.
	pc, err := Parse("take bell", ctx)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if pc.Direct.ID != "thing:bell" {
		t.Errorf("Direct.ID = %q, want thing:bell", pc.Direct.ID)
	}
}

func TestParseAmbiguousReference(t *testing.T) {
	ctx := testContext()
	ctx.Contents = append(ctx.Contents,
		Candidate{ID: "thing:red-book", Name: "red book", Aliases: []string{"book"}},
		Candidate{ID: "thing:blue-book", Name: "blue book", Aliases: []string{"book"}},
	)

	_, err := Parse("take book", ctx)
	var perr *Error
	if !errors.As(err, &perr) || perr.Kind != AmbiguousReference {
		t.Fatalf("err = %v, want AmbiguousReference", err)
	}
	if len(perr.Candidates) != 2 {
		t.Errorf("candidates = %v, want both books", perr.Candidates)
	}
}

func TestParseNeverPicksArbitrarily(t *testing.T) {
	ctx := Context{Contents: []Candidate{
		{ID: "a", Name: "silver coin"},
		{ID: "b", Name: "silver cup"},
	}}
	_, err := Parse("take silver", ctx)
	var perr *Error
	if !errors.As(err, &perr) || perr.Kind != AmbiguousReference {
		t.Fatalf("tied prefix must be ambiguous, got %v", err)
	}
}

func TestParseUnresolvedKeepsRaw(t *testing.T) {
	pc, err := Parse("take sandwich", testContext())
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if pc.Direct.ID != "" || pc.Direct.Raw != "sandwich" {
		t.Errorf("unresolved ref = %+v, want empty ID with raw text", pc.Direct)
	}
}

func TestParsePreposition(t *testing.T) {
	pc, err := Parse("give key to bob", testContext())
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if pc.Direct.ID != "thing:key" {
		t.Errorf("Direct.ID = %q, want thing:key", pc.Direct.ID)
	}
	if pc.Preposition != "to" {
		t.Errorf("Preposition = %q, want to", pc.Preposition)
	}
	if pc.Indirect.ID != "user:bob" {
		t.Errorf("Indirect.ID = %q, want user:bob", pc.Indirect.ID)
	}
}

func TestParseQuotedPhrase(t *testing.T) {
	pc, err := Parse(`whisper "meet me at dawn" to bob`, testContext())
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if pc.Direct.Raw != "meet me at dawn" {
		t.Errorf("Direct.Raw = %q", pc.Direct.Raw)
	}
	if pc.Indirect.ID != "user:bob" {
		t.Errorf("Indirect.ID = %q, want user:bob", pc.Indirect.ID)
	}
}

func TestParseUnterminatedQuote(t *testing.T) {
	_, err := Parse(`take "brass lan`, testContext())
	var perr *Error
	if !errors.As(err, &perr) || perr.Kind != MalformedSyntax {
		t.Fatalf("err = %v, want MalformedSyntax", err)
	}
}

func TestParseEmpty(t *testing.T) {
	for _, in := range []string{"", "   ", "\t"} {
		_, err := Parse(in, testContext())
		var perr *Error
		if !errors.As(err, &perr) || perr.Kind != Empty {
			t.Errorf("Parse(%q) = %v, want Empty", in, err)
		}
	}
}

func TestParseVerbShape(t *testing.T) {
	_, err := Parse("42 lantern", testContext())
	var perr *Error
	if !errors.As(err, &perr) || perr.Kind != UnknownVerbShape {
		t.Fatalf("err = %v, want UnknownVerbShape", err)
	}
}

func TestParseSayShorthand(t *testing.T) {
	pc, err := Parse(`"hello there`, testContext())
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if pc.Verb != "say" || pc.Remainder != "hello there" {
		t.Errorf("say shorthand parse = %+v", pc)
	}
}

func TestParseEmoteShorthand(t *testing.T) {
	pc, err := Parse(":waves", testContext())
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if pc.Verb != "emote" || pc.Remainder != "waves" {
		t.Errorf("emote shorthand parse = %+v", pc)
	}
}

func TestParseShoutShorthand(t *testing.T) {
	pc, err := Parse("!watch out", testContext())
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if pc.Verb != "shout" || pc.Remainder != "watch out" {
		t.Errorf("shout shorthand parse = %+v", pc)
	}
}

func TestParseTellShorthand(t *testing.T) {
	pc, err := Parse("@bob the key is under the mat", testContext())
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if pc.Verb != "tell" || pc.Remainder != "bob the key is under the mat" {
		t.Errorf("tell shorthand parse = %+v", pc)
	}
}

func TestParseMeAndHere(t *testing.T) {
	ctx := testContext()
	pc, err := Parse("examine me", ctx)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if pc.Direct.ID != ctx.ActorID {
		t.Errorf("me resolved to %q", pc.Direct.ID)
	}

	pc, err = Parse("look here", ctx)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if pc.Direct.ID != ctx.LocationID {
		t.Errorf("here resolved to %q", pc.Direct.ID)
	}
}

func TestParseRemainderIsVerbatim(t *testing.T) {
	pc, err := Parse("say  Hello,   World!", testContext())
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if pc.Remainder != "Hello,   World!" {
		t.Errorf("Remainder = %q, inner spacing must survive", pc.Remainder)
	}
}

func TestParseVerbIsLowercased(t *testing.T) {
	pc, err := Parse("LOOK Lantern", testContext())
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if pc.Verb != "look" {
		t.Errorf("Verb = %q, want look", pc.Verb)
	}
	if pc.Direct.ID != "thing:lantern" {
		t.Errorf("case-insensitive resolution failed: %+v", pc.Direct)
	}
}

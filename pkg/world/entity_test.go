package world

import "testing"

func TestContentsIdempotent(t *testing.T) {
	room := Entity{ID: "room:hall", Kind: KindRoom}

	room.AddContent("thing:lantern")
	room.AddContent("thing:lantern")
	if len(room.Contents) != 1 {
		t.Errorf("double AddContent produced %v", room.Contents)
	}

	room.RemoveContent("thing:lantern")
	room.RemoveContent("thing:lantern")
	if len(room.Contents) != 0 {
		t.Errorf("contents not empty after remove: %v", room.Contents)
	}
}

func TestCloneIsDeep(t *testing.T) {
	e := Entity{
		ID:       "room:hall",
		Kind:     KindRoom,
		Contents: []string{"a"},
		Aliases:  []string{"hall"},
		Exits:    map[string]string{"north": "room:garden"},
		Verbs:    map[string]string{"ring": "%a rings."},
	}

	cp := e.Clone()
	cp.AddContent("b")
	cp.Exits["south"] = "room:cellar"
	cp.Verbs["knock"] = "%a knocks."
	cp.Aliases[0] = "changed"

	if len(e.Contents) != 1 || len(e.Exits) != 1 || len(e.Verbs) != 1 {
		t.Errorf("clone mutation leaked into original: %+v", e)
	}
	if e.Aliases[0] != "hall" {
		t.Errorf("alias slice shared with clone")
	}
}

func TestHasAliasCaseInsensitive(t *testing.T) {
	e := Entity{Aliases: []string{"Lantern", "lamp"}}
	if !e.HasAlias("lantern") || !e.HasAlias("LAMP") {
		t.Error("alias lookup should fold case")
	}
	if e.HasAlias("torch") {
		t.Error("unexpected alias match")
	}
}

func TestLocalVerbCaseInsensitive(t *testing.T) {
	e := Entity{Verbs: map[string]string{"Ring": "%a rings %o."}}
	tmpl, ok := e.LocalVerb("ring")
	if !ok || tmpl != "%a rings %o." {
		t.Errorf("LocalVerb = %q, %v", tmpl, ok)
	}
	if _, ok := e.LocalVerb("knock"); ok {
		t.Error("unexpected local verb match")
	}
}

func TestCanEdit(t *testing.T) {
	e := Entity{ID: "thing:lantern", Owner: "user:alice", Editors: []string{"user:carol"}}
	if !e.CanEdit("user:alice") {
		t.Error("owner should edit")
	}
	if !e.CanEdit("user:carol") {
		t.Error("listed editor should edit")
	}
	if e.CanEdit("user:bob") {
		t.Error("stranger should not edit")
	}

	self := Entity{ID: "user:bob", Kind: KindUser}
	if !self.CanEdit("user:bob") {
		t.Error("users should always edit themselves")
	}
}

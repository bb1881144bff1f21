package server

import "testing"

func TestTokenRoundtrip(t *testing.T) {
	auth := NewAuthService("test-secret", 3600)

	token, err := auth.Token("user:alice", "Alice")
	if err != nil {
		t.Fatalf("Token: %v", err)
	}

	claims, err := auth.Verify(token)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if claims.UserID != "user:alice" || claims.UserName != "Alice" {
		t.Errorf("claims = %+v", claims)
	}
}

func TestVerifyRejectsGarbage(t *testing.T) {
	auth := NewAuthService("test-secret", 3600)
	for _, bad := range []string{"", "not-a-token", "a.b.c"} {
		if _, err := auth.Verify(bad); err == nil {
			t.Errorf("Verify(%q) accepted an invalid token", bad)
		}
	}
}

func TestVerifyRejectsForeignKey(t *testing.T) {
	a := NewAuthService("secret-one", 3600)
	b := NewAuthService("secret-two", 3600)

	token, err := a.Token("user:alice", "Alice")
	if err != nil {
		t.Fatalf("Token: %v", err)
	}
	if _, err := b.Verify(token); err == nil {
		t.Error("token signed with another key was accepted")
	}
}

package auth

import (
	"testing"
	"time"
)

func TestTokenRoundTrip(t *testing.T) {
	m := NewManager("test-secret", time.Hour)

	token, err := m.GenerateToken("u1", false)
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}

	claims, err := m.ValidateToken(token)
	if err != nil {
		t.Fatalf("validate failed: %v", err)
	}
	if claims.AccountID != "u1" {
		t.Errorf("accountId %q, want u1", claims.AccountID)
	}
	if claims.Admin {
		t.Error("player token carries admin claim")
	}
}

func TestAdminClaim(t *testing.T) {
	m := NewManager("test-secret", time.Hour)

	token, _ := m.GenerateToken("admin", true)
	claims, err := m.ValidateToken(token)
	if err != nil {
		t.Fatalf("validate failed: %v", err)
	}
	if !claims.Admin {
		t.Error("admin claim lost")
	}
}

func TestWrongSecretRejected(t *testing.T) {
	token, _ := NewManager("secret-a", time.Hour).GenerateToken("u1", false)

	if _, err := NewManager("secret-b", time.Hour).ValidateToken(token); err == nil {
		t.Error("token signed with another secret validated")
	}
}

func TestExpiredTokenRejected(t *testing.T) {
	token, _ := NewManager("test-secret", -time.Minute).GenerateToken("u1", false)

	if _, err := NewManager("test-secret", -time.Minute).ValidateToken(token); err == nil {
		t.Error("expired token validated")
	}
}

func TestGarbageRejected(t *testing.T) {
	m := NewManager("test-secret", time.Hour)
	if _, err := m.ValidateToken("not.a.token"); err == nil {
		t.Error("garbage token validated")
	}
}

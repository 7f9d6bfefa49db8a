package auth

import (
	"strings"
	"testing"
	"time"
)

func newTestIssuer(t *testing.T, clock func() time.Time) *TokenIssuer {
	t.Helper()
	issuer, err := NewTokenIssuer(TokenIssuerConfig{
		SigningSecret: []byte(strings.Repeat("s", 32)),
		Issuer:        "chesshall-auth",
		Audience:      "chesshall-api",
		TokenTTL:      time.Hour,
		Clock:         clock,
	})
	if err != nil {
		t.Fatalf("failed to create issuer: %v", err)
	}
	return issuer
}

func TestIssueAndValidateRoundTrip(t *testing.T) {
	issuer := newTestIssuer(t, func() time.Time { return time.Unix(1700000000, 0) })

	token, expiresIn, err := issuer.Issue(Identity{UserID: 42, Email: "a@example.com", DisplayName: "Alice"})
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}
	if expiresIn != int64(time.Hour.Seconds()) {
		t.Fatalf("unexpected expiry: %d", expiresIn)
	}

	identity, err := issuer.Validate(token)
	if err != nil {
		t.Fatalf("validate failed: %v", err)
	}
	if identity.UserID != 42 || identity.DisplayName != "Alice" {
		t.Fatalf("unexpected identity: %+v", identity)
	}
}

func TestValidateRejectsExpiredToken(t *testing.T) {
	current := time.Unix(1700000000, 0)
	issuer := newTestIssuer(t, func() time.Time { return current })

	token, _, err := issuer.Issue(Identity{UserID: 42})
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}

	current = current.Add(2 * time.Hour)
	if _, err := issuer.Validate(token); err == nil {
		t.Fatal("expected expired token to be rejected")
	}
}

func TestValidateRejectsForeignSignature(t *testing.T) {
	issuer := newTestIssuer(t, nil)
	other, err := NewTokenIssuer(TokenIssuerConfig{
		SigningSecret: []byte(strings.Repeat("x", 32)),
		Issuer:        "chesshall-auth",
		Audience:      "chesshall-api",
	})
	if err != nil {
		t.Fatalf("failed to create issuer: %v", err)
	}

	token, _, err := other.Issue(Identity{UserID: 42})
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}
	if _, err := issuer.Validate(token); err == nil {
		t.Fatal("expected foreign signature to be rejected")
	}
}

func TestNewTokenIssuerRejectsShortSecret(t *testing.T) {
	if _, err := NewTokenIssuer(TokenIssuerConfig{SigningSecret: []byte("short")}); err == nil {
		t.Fatal("expected short secret to be rejected")
	}
}

func TestIssueRequiresUserID(t *testing.T) {
	issuer := newTestIssuer(t, nil)
	if _, _, err := issuer.Issue(Identity{}); err == nil {
		t.Fatal("expected missing user id to be rejected")
	}
}

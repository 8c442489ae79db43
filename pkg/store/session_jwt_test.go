package store

import (
	"context"
	"errors"
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	"blogstore/pkg/domain"
)

func newTestSessions(t *testing.T, revoker TokenRevoker) *JWTSessionStore {
	t.Helper()
	s, err := NewJWTSessionStore("test-secret", revoker, JWTOptions{Issuer: "blog-test"})
	if err != nil {
		t.Fatalf("new session store: %v", err)
	}
	return s
}

func TestJWTSessionRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestSessions(t, NewMemoryTokenRevoker())
	token, err := s.NewSession(ctx, domain.User{ID: "u1", Username: "alice"})
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	uid, ok, err := s.GetUserIDByToken(ctx, token)
	if err != nil || !ok || uid != "u1" {
		t.Fatalf("resolve: uid=%q ok=%v err=%v", uid, ok, err)
	}

	claims, err := s.parseAndVerify(token)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.Username != "alice" || claims.ID == "" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
	if ttl := claims.ExpiresAt.Sub(claims.IssuedAt.Time); ttl != time.Hour {
		t.Fatalf("default ttl = %s, want 1h", ttl)
	}
}

func TestJWTSessionRevocation(t *testing.T) {
	ctx := context.Background()
	s := newTestSessions(t, NewMemoryTokenRevoker())
	token, err := s.NewSession(ctx, domain.User{ID: "u1"})
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	if err := s.DeleteSession(ctx, token); err != nil {
		t.Fatalf("delete session: %v", err)
	}
	if _, _, err := s.GetUserIDByToken(ctx, token); !errors.Is(err, ErrTokenRevoked) {
		t.Fatalf("expected ErrTokenRevoked, got %v", err)
	}
	if err := s.DeleteSession(ctx, "garbage"); err != nil {
		t.Fatalf("deleting an invalid token should be a no-op, got %v", err)
	}
}

func TestJWTSessionRejectsForeignTokens(t *testing.T) {
	ctx := context.Background()
	s := newTestSessions(t, nil)
	now := time.Now()
	base := jwt.RegisteredClaims{
		Subject:   "u1",
		Issuer:    "blog-test",
		ID:        "jti-1",
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
	}
	sign := func(method jwt.SigningMethod, secret string, claims jwt.RegisteredClaims) string {
		token, err := jwt.NewWithClaims(method, sessionClaims{RegisteredClaims: claims}).SignedString([]byte(secret))
		if err != nil {
			t.Fatalf("sign: %v", err)
		}
		return token
	}

	expired := base
	expired.IssuedAt = jwt.NewNumericDate(now.Add(-2 * time.Hour))
	expired.ExpiresAt = jwt.NewNumericDate(now.Add(-time.Hour))
	otherIssuer := base
	otherIssuer.Issuer = "someone-else"
	noSubject := base
	noSubject.Subject = ""

	tests := map[string]string{
		"wrong secret":    sign(jwt.SigningMethodHS256, "other-secret", base),
		"wrong algorithm": sign(jwt.SigningMethodHS512, "test-secret", base),
		"expired":         sign(jwt.SigningMethodHS256, "test-secret", expired),
		"other issuer":    sign(jwt.SigningMethodHS256, "test-secret", otherIssuer),
		"no subject":      sign(jwt.SigningMethodHS256, "test-secret", noSubject),
		"empty":           "",
	}
	for name, token := range tests {
		if _, _, err := s.GetUserIDByToken(ctx, token); !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("%s: expected ErrInvalidToken, got %v", name, err)
		}
	}
	if _, _, err := s.GetUserIDByToken(ctx, sign(jwt.SigningMethodHS256, "test-secret", base)); err != nil {
		t.Fatalf("control token should verify: %v", err)
	}
}

func TestNewJWTSessionStoreRequiresSecret(t *testing.T) {
	if _, err := NewJWTSessionStore(" ", nil, JWTOptions{}); err == nil {
		t.Fatalf("expected error for empty secret")
	}
}

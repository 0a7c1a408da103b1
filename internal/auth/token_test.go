package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func newTestVerifier(t *testing.T) *Verifier {
	t.Helper()
	v, err := NewVerifier(Config{Secret: []byte("test-secret"), Audience: "authenticated"})
	if err != nil {
		t.Fatalf("NewVerifier: %v", err)
	}
	return v
}

func TestIssueAndVerify(t *testing.T) {
	v := newTestVerifier(t)
	tok, err := v.Issue("user-1", "ana@example.com", time.Hour)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	id, err := v.Verify(tok)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if id.UserID != "user-1" || id.Email != "ana@example.com" {
		t.Errorf("unexpected identity %+v", id)
	}
}

func TestVerifyRejects(t *testing.T) {
	v := newTestVerifier(t)

	if _, err := v.Verify(""); !errors.Is(err, ErrNoToken) {
		t.Errorf("empty: expected ErrNoToken, got %v", err)
	}

	expired, _ := v.Issue("user-1", "", -time.Minute)
	if _, err := v.Verify(expired); !errors.Is(err, ErrTokenExpired) {
		t.Errorf("expired: expected ErrTokenExpired, got %v", err)
	}

	other, _ := NewVerifier(Config{Secret: []byte("other-secret"), Audience: "authenticated"})
	forged, _ := other.Issue("user-1", "", time.Hour)
	if _, err := v.Verify(forged); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("wrong secret: expected ErrInvalidToken, got %v", err)
	}

	noAud, _ := NewVerifier(Config{Secret: []byte("test-secret")})
	wrongAud, _ := noAud.Issue("user-1", "", time.Hour)
	if _, err := v.Verify(wrongAud); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("missing audience: expected ErrInvalidToken, got %v", err)
	}

	noSub, _ := v.Issue("", "", time.Hour)
	if _, err := v.Verify(noSub); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("no subject: expected ErrInvalidToken, got %v", err)
	}

	none := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{
		Subject:   "user-1",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	unsigned, _ := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	if _, err := v.Verify(unsigned); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("alg none: expected ErrInvalidToken, got %v", err)
	}
}

func TestNewVerifierRequiresSecret(t *testing.T) {
	if _, err := NewVerifier(Config{}); err == nil {
		t.Error("expected error for empty secret")
	}
}

func TestTokenFromRequest(t *testing.T) {
	r := httptest.NewRequest("POST", "/chat", nil)
	r.Header.Set("Authorization", "Bearer abc.def")
	if got := TokenFromRequest(r); got != "abc.def" {
		t.Errorf("header: got %q", got)
	}

	r = httptest.NewRequest("POST", "/chat", nil)
	r.Header.Set("Authorization", "Basic xyz")
	if got := TokenFromRequest(r); got != "" {
		t.Errorf("basic: got %q", got)
	}

	r = httptest.NewRequest("POST", "/chat", nil)
	r.AddCookie(&http.Cookie{Name: AccessTokenCookie, Value: "from-cookie"})
	if got := TokenFromRequest(r); got != "from-cookie" {
		t.Errorf("cookie: got %q", got)
	}
}

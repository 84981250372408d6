package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"cassa/internal/core"
	"cassa/internal/log"
)

const secret = "0123456789abcdef0123456789abcdef"

var alice = core.Actor{ID: "u-alice", Name: "Alice", Email: "alice@example.com"}

func fixedVerifier(issuer string, now time.Time) *Verifier {
	v := NewVerifier(secret, issuer)
	v.now = func() time.Time { return now }
	return v
}

func TestIssueAndVerify(t *testing.T) {
	now := time.Date(2025, 3, 15, 9, 0, 0, 0, time.UTC)
	v := fixedVerifier("cassa", now)

	token, err := v.Issue(alice, time.Hour)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	got, err := v.Verify(token)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if got != alice {
		t.Errorf("Verify() = %+v, want %+v", got, alice)
	}
}

func TestVerifyRejects(t *testing.T) {
	now := time.Date(2025, 3, 15, 9, 0, 0, 0, time.UTC)
	v := fixedVerifier("cassa", now)

	expired, _ := fixedVerifier("cassa", now.Add(-2*time.Hour)).Issue(alice, time.Hour)
	otherIssuer, _ := fixedVerifier("someone-else", now).Issue(alice, time.Hour)
	wrongKey, _ := (&Verifier{secret: []byte("another-secret-another-secret-xx"), issuer: "cassa", now: v.now}).Issue(alice, time.Hour)
	noSubject, _ := v.Issue(core.Actor{Name: "ghost"}, time.Hour)
	none, _ := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{
		Subject:   alice.ID,
		Issuer:    "cassa",
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)

	tests := []struct {
		name  string
		token string
	}{
		{"garbage", "not-a-token"},
		{"expired", expired},
		{"wrong issuer", otherIssuer},
		{"wrong key", wrongKey},
		{"missing subject", noSubject},
		{"alg none", none},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.Verify(tt.token)
			if !errors.Is(err, core.ErrNotAuthenticated) {
				t.Errorf("Verify() error = %v, want ErrNotAuthenticated", err)
			}
		})
	}
}

func TestMiddleware(t *testing.T) {
	v := NewVerifier(secret, "")
	token, err := v.Issue(alice, time.Hour)
	if err != nil {
		t.Fatal(err)
	}

	var seen core.Actor
	h := Middleware(v, log.Discard())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = ActorFrom(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	tests := []struct {
		name   string
		header string
		cookie string
		want   int
	}{
		{"no credentials", "", "", http.StatusUnauthorized},
		{"bad scheme", "Basic " + token, "", http.StatusUnauthorized},
		{"bad token", "Bearer nope", "", http.StatusUnauthorized},
		{"bearer", "Bearer " + token, "", http.StatusNoContent},
		{"lowercase scheme", "bearer " + token, "", http.StatusNoContent},
		{"cookie", "", token, http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen = core.Actor{}
			req := httptest.NewRequest(http.MethodGet, "/groups", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			if tt.cookie != "" {
				req.AddCookie(&http.Cookie{Name: "cassa_token", Value: tt.cookie})
			}
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, req)

			if rr.Code != tt.want {
				t.Fatalf("status = %d, want %d", rr.Code, tt.want)
			}
			if tt.want == http.StatusNoContent && seen.ID != alice.ID {
				t.Errorf("actor = %+v, want %s", seen, alice.ID)
			}
			if tt.want == http.StatusUnauthorized && rr.Header().Get("WWW-Authenticate") == "" {
				t.Error("missing WWW-Authenticate header")
			}
		})
	}
}

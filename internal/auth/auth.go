// Package auth verifies bearer tokens and carries the authenticated actor
// through request contexts.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"cassa/internal/core"
	"cassa/internal/log"
)

var ErrInvalidToken = fmt.Errorf("%w: invalid token", core.ErrNotAuthenticated)

// Claims is the token payload. The subject is the user id.
type Claims struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// Verifier checks HS256 tokens signed with a shared secret.
type Verifier struct {
	secret []byte
	issuer string
	now    func() time.Time
}

func NewVerifier(secret, issuer string) *Verifier {
	return &Verifier{secret: []byte(secret), issuer: issuer, now: time.Now}
}

// Issue signs a token for actor valid for ttl. Used by tooling and tests;
// the service itself never logs users in.
func (v *Verifier) Issue(actor core.Actor, ttl time.Duration) (string, error) {
	now := v.now()
	claims := Claims{
		Name:  actor.Name,
		Email: actor.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   actor.ID,
			Issuer:    v.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	s, err := token.SignedString(v.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return s, nil
}

// Verify parses token and returns the actor it names.
func (v *Verifier) Verify(token string) (core.Actor, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(v.now),
		jwt.WithExpirationRequired(),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	var claims Claims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		return core.Actor{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return core.Actor{}, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	return core.Actor{ID: claims.Subject, Name: claims.Name, Email: claims.Email}, nil
}

type contextKey struct{}

// WithActor returns a copy of ctx carrying actor.
func WithActor(ctx context.Context, actor core.Actor) context.Context {
	return context.WithValue(ctx, contextKey{}, actor)
}

// ActorFrom returns the actor stored by Middleware.
func ActorFrom(ctx context.Context) (core.Actor, bool) {
	a, ok := ctx.Value(contextKey{}).(core.Actor)
	return a, ok && a.ID != ""
}

// Middleware rejects requests without a valid bearer token with 401 and
// stores the actor in the request context otherwise.
func Middleware(v *Verifier, logger *log.Logger) func(http.Handler) http.Handler {
	logger = logger.WithComponent(log.ComponentAuth)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := bearerToken(r)
			if err == nil {
				var actor core.Actor
				if actor, err = v.Verify(token); err == nil {
					next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), actor)))
					return
				}
			}
			logger.WarnContext(r.Context(), "Rejected request",
				log.FieldPath, r.URL.Path,
				log.FieldError, err,
				log.FieldErrorType, log.ErrorTypeAuth)
			w.Header().Set("WWW-Authenticate", `Bearer realm="cassa"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
		})
	}
}

func bearerToken(r *http.Request) (string, error) {
	h := r.Header.Get("Authorization")
	if h == "" {
		if c, err := r.Cookie("cassa_token"); err == nil && c.Value != "" {
			return c.Value, nil
		}
		return "", errors.New("missing authorization header")
	}
	scheme, token, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return "", errors.New("malformed authorization header")
	}
	return strings.TrimSpace(token), nil
}

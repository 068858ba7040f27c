// Package auth resolves the operator identity stamped on authored questions
// and response reviews. The HTTP API reads it from an HS256 bearer token;
// the CLI uses a fixed identity.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type contextKey string

const operatorKey contextKey = "operator"

// ErrNoOperator is returned when an authoring or review action has no identity.
var ErrNoOperator = errors.New("no authenticated operator")

// Claims extends the registered JWT claims. Subject carries the operator ID.
type Claims struct {
	jwt.RegisteredClaims
	Name  string   `json:"name,omitempty"`
	Roles []string `json:"roles,omitempty"`
}

// Operator is the authenticated actor.
type Operator struct {
	ID    string
	Name  string
	Roles []string
}

// Authenticator issues and verifies operator tokens.
type Authenticator struct {
	secret []byte
	now    func() time.Time
}

// NewAuthenticator returns an authenticator using a shared HMAC secret.
func NewAuthenticator(secret string) *Authenticator {
	return &Authenticator{secret: []byte(secret), now: time.Now}
}

// Issue signs a token for operatorID valid for ttl.
func (a *Authenticator) Issue(operatorID, name string, ttl time.Duration) (string, error) {
	now := a.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   operatorID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			Issuer:    "triage",
		},
		Name: name,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

// Parse verifies a token and returns the operator it names.
func (a *Authenticator) Parse(token string) (*Operator, error) {
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return a.secret, nil
	}, jwt.WithTimeFunc(a.now))
	if err != nil {
		return nil, err
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, errors.New("invalid token claims")
	}
	if claims.Subject == "" {
		return nil, errors.New("token has no subject")
	}
	return &Operator{ID: claims.Subject, Name: claims.Name, Roles: claims.Roles}, nil
}

// Middleware attaches the operator of a valid bearer token to the request
// context. Requests without an Authorization header pass through anonymous;
// a malformed or invalid token is rejected with 401.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" {
			next.ServeHTTP(w, r)
			return
		}
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
			writeError(w, http.StatusUnauthorized, "invalid authorization header format")
			return
		}
		op, err := a.Parse(parts[1])
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		next.ServeHTTP(w, r.WithContext(WithOperator(r.Context(), op)))
	})
}

// RequireOperator rejects anonymous requests.
func RequireOperator(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if FromContext(r.Context()) == nil {
			writeError(w, http.StatusUnauthorized, "authentication required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// WithOperator stores op in ctx.
func WithOperator(ctx context.Context, op *Operator) context.Context {
	return context.WithValue(ctx, operatorKey, op)
}

// FromContext returns the operator in ctx or nil.
func FromContext(ctx context.Context) *Operator {
	op, _ := ctx.Value(operatorKey).(*Operator)
	return op
}

// ContextIdentity implements ports.IdentityProvider over the request context.
type ContextIdentity struct{}

func (ContextIdentity) CurrentOperatorID(ctx context.Context) (string, error) {
	if op := FromContext(ctx); op != nil {
		return op.ID, nil
	}
	return "", ErrNoOperator
}

// StaticIdentity implements ports.IdentityProvider with a fixed ID.
type StaticIdentity string

func (s StaticIdentity) CurrentOperatorID(context.Context) (string, error) {
	if s == "" {
		return "", ErrNoOperator
	}
	return string(s), nil
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"code": "UNAUTHORIZED", "message": message})
}

package auth_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Veolinan/triage/internal/auth"
	"github.com/Veolinan/triage/pkg/ports"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	_ ports.IdentityProvider = auth.ContextIdentity{}
	_ ports.IdentityProvider = auth.StaticIdentity("")
)

func TestIssueAndParse(t *testing.T) {
	a := auth.NewAuthenticator("secret")
	token, err := a.Issue("nurse-7", "Amina", time.Hour)
	require.NoError(t, err)

	op, err := a.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, "nurse-7", op.ID)
	assert.Equal(t, "Amina", op.Name)
}

func TestParse_Rejects(t *testing.T) {
	a := auth.NewAuthenticator("secret")

	other, err := auth.NewAuthenticator("other").Issue("x", "", time.Hour)
	require.NoError(t, err)
	_, err = a.Parse(other)
	assert.Error(t, err, "wrong secret")

	expired, err := a.Issue("x", "", -time.Minute)
	require.NoError(t, err)
	_, err = a.Parse(expired)
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)

	noSubject, err := jwt.NewWithClaims(jwt.SigningMethodHS256, auth.Claims{}).SignedString([]byte("secret"))
	require.NoError(t, err)
	_, err = a.Parse(noSubject)
	assert.Error(t, err)
}

func TestMiddleware(t *testing.T) {
	a := auth.NewAuthenticator("secret")
	var seen string
	h := a.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = auth.ContextIdentity{}.CurrentOperatorID(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	token, err := a.Issue("nurse-7", "", time.Hour)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "nurse-7", seen)

	seen = ""
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code, "anonymous passes through")
	assert.Empty(t, seen)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Token abc")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer not-a-jwt")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireOperator(t *testing.T) {
	h := auth.RequireOperator(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodPut, "/", nil)
	req = req.WithContext(auth.WithOperator(req.Context(), &auth.Operator{ID: "x"}))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestIdentities(t *testing.T) {
	_, err := auth.ContextIdentity{}.CurrentOperatorID(context.Background())
	assert.ErrorIs(t, err, auth.ErrNoOperator)

	id, err := auth.StaticIdentity("cli").CurrentOperatorID(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "cli", id)

	_, err = auth.StaticIdentity("").CurrentOperatorID(context.Background())
	assert.ErrorIs(t, err, auth.ErrNoOperator)
}

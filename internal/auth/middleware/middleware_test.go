package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mind-engage/mindengage-exams/internal/rbac"
)

func TestIssueAndParse(t *testing.T) {
	a := NewAuthService("secret", time.Hour)
	tok, err := a.IssueJWT("pat", rbac.RoleProctor)
	require.NoError(t, err)

	c, err := a.Parse(tok)
	require.NoError(t, err)
	assert.Equal(t, "pat", c.Sub)
	assert.Equal(t, rbac.RoleProctor, c.Role)
	assert.Equal(t, issuer, c.Issuer)
}

func TestParseRejects(t *testing.T) {
	a := NewAuthService("secret", time.Hour)

	t.Run("expired", func(t *testing.T) {
		old := NewAuthService("secret", time.Minute)
		old.now = func() time.Time { return time.Now().Add(-time.Hour) }
		tok, err := old.IssueJWT("pat", rbac.RoleAdmin)
		require.NoError(t, err)
		_, err = a.Parse(tok)
		assert.ErrorIs(t, err, jwt.ErrTokenExpired)
	})
	t.Run("wrong issuer", func(t *testing.T) {
		tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{
			Sub: "pat", Role: rbac.RoleAdmin,
			RegisteredClaims: jwt.RegisteredClaims{Issuer: "someone-else"},
		}).SignedString([]byte("secret"))
		require.NoError(t, err)
		_, err = a.Parse(tok)
		assert.Error(t, err)
	})
	t.Run("unsigned", func(t *testing.T) {
		tok, err := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{
			Sub: "pat", Role: rbac.RoleAdmin,
			RegisteredClaims: jwt.RegisteredClaims{Issuer: issuer},
		}).SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)
		_, err = a.Parse(tok)
		assert.Error(t, err)
	})
}

func TestActorFromEmptyContext(t *testing.T) {
	a := ActorFromContext(context.Background())
	assert.Equal(t, Actor{}, a)
	assert.Equal(t, "anonymous", a.String())
}

func TestJWTMiddlewarePutsIdentityOnContext(t *testing.T) {
	a := NewAuthService("secret", time.Hour)
	var actor Actor
	var role string
	h := JWTMiddleware(a)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor = ActorFromContext(r.Context())
		role = rbac.RoleFromContext(r.Context())
	}))

	tok, err := a.IssueJWT("admin", rbac.RoleAdmin)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, Actor{Subject: "admin", Role: rbac.RoleAdmin}, actor)
	assert.Equal(t, "admin (admin)", actor.String())
	assert.Equal(t, rbac.RoleAdmin, role)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

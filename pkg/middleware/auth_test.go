package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

type fakeVerifier struct{}

func (f *fakeVerifier) Verify(ctx context.Context, raw string) (map[string]interface{}, error) {
	if raw == "goodtoken" || raw == "revoked" {
		return map[string]interface{}{"sub": "user1"}, nil
	}
	return nil, fmt.Errorf("invalid token")
}

func serve(opts AuthOptions, setup func(r *http.Request)) *httptest.ResponseRecorder {
	gin.SetMode(gin.TestMode)
	g := gin.New()
	g.GET("/", AuthMiddleware(&fakeVerifier{}, opts), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"sub": Subject(c), "token": c.GetString(TokenKey)})
	})
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if setup != nil {
		setup(req)
	}
	rw := httptest.NewRecorder()
	g.ServeHTTP(rw, req)
	return rw
}

func TestAuthMiddleware_NoHeader(t *testing.T) {
	rw := serve(AuthOptions{}, nil)
	require.Equal(t, http.StatusUnauthorized, rw.Code)
	require.Contains(t, rw.Body.String(), "credentials were not provided")
}

func TestAuthMiddleware_InvalidHeader(t *testing.T) {
	for _, h := range []string{"BadHeader", "Basic goodtoken", "Bearer "} {
		rw := serve(AuthOptions{}, func(r *http.Request) { r.Header.Set("Authorization", h) })
		require.Equal(t, http.StatusUnauthorized, rw.Code, h)
	}
}

func TestAuthMiddleware_ValidToken(t *testing.T) {
	rw := serve(AuthOptions{}, func(r *http.Request) { r.Header.Set("Authorization", "Bearer goodtoken") })
	require.Equal(t, http.StatusOK, rw.Code)

	var got map[string]string
	require.NoError(t, json.Unmarshal(rw.Body.Bytes(), &got))
	require.Equal(t, "user1", got["sub"])
	require.Equal(t, "goodtoken", got["token"])
}

func TestAuthMiddleware_Schemes(t *testing.T) {
	opts := AuthOptions{Schemes: []string{"Token", "Bearer"}}
	for _, h := range []string{"Token goodtoken", "token goodtoken", "Bearer goodtoken"} {
		rw := serve(opts, func(r *http.Request) { r.Header.Set("Authorization", h) })
		require.Equal(t, http.StatusOK, rw.Code, h)
	}
	rw := serve(AuthOptions{}, func(r *http.Request) { r.Header.Set("Authorization", "Token goodtoken") })
	require.Equal(t, http.StatusUnauthorized, rw.Code, "Token scheme is opt-in")
}

func TestAuthMiddleware_Cookie(t *testing.T) {
	opts := AuthOptions{Cookie: "access_token"}
	rw := serve(opts, func(r *http.Request) { r.AddCookie(&http.Cookie{Name: "access_token", Value: "goodtoken"}) })
	require.Equal(t, http.StatusOK, rw.Code)

	rw = serve(opts, func(r *http.Request) { r.AddCookie(&http.Cookie{Name: "access_token", Value: "nope"}) })
	require.Equal(t, http.StatusUnauthorized, rw.Code)
}

func TestAuthMiddleware_RejectsRevokedToken(t *testing.T) {
	opts := AuthOptions{Revoked: func(ctx context.Context, raw string) (bool, error) {
		return raw == "revoked", nil
	}}
	rw := serve(opts, func(r *http.Request) { r.Header.Set("Authorization", "Bearer revoked") })
	require.Equal(t, http.StatusUnauthorized, rw.Code)

	rw = serve(opts, func(r *http.Request) { r.Header.Set("Authorization", "Bearer goodtoken") })
	require.Equal(t, http.StatusOK, rw.Code)
}

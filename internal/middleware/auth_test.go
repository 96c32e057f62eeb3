package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
)

func signToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	assert.NoError(t, err)
	return token
}

func authFixture() http.Handler {
	auth := NewServiceAuth("shared-secret", "jwt-secret")
	return auth.Authenticate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
}

func doAuth(handler http.Handler, authorization string) int {
	req := httptest.NewRequest("POST", "/core/payments", nil)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return w.Code
}

func TestServiceAuth_MissingHeader(t *testing.T) {
	handler := authFixture()
	assert.Equal(t, http.StatusUnauthorized, doAuth(handler, ""))
}

func TestServiceAuth_BadFormat(t *testing.T) {
	handler := authFixture()
	assert.Equal(t, http.StatusUnauthorized, doAuth(handler, "Basic dXNlcg=="))
	assert.Equal(t, http.StatusUnauthorized, doAuth(handler, "Bearer"))
}

func TestServiceAuth_SharedSecret(t *testing.T) {
	handler := authFixture()
	assert.Equal(t, http.StatusOK, doAuth(handler, "Bearer shared-secret"))
}

func TestServiceAuth_ValidJWT(t *testing.T) {
	handler := authFixture()
	token := signToken(t, "jwt-secret", jwt.MapClaims{
		"sub": "payment-process",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	assert.Equal(t, http.StatusOK, doAuth(handler, "Bearer "+token))
}

func TestServiceAuth_ExpiredJWT(t *testing.T) {
	handler := authFixture()
	token := signToken(t, "jwt-secret", jwt.MapClaims{
		"sub": "payment-process",
		"exp": time.Now().Add(-time.Hour).Unix(),
	})
	assert.Equal(t, http.StatusUnauthorized, doAuth(handler, "Bearer "+token))
}

func TestServiceAuth_WrongSigningSecret(t *testing.T) {
	handler := authFixture()
	token := signToken(t, "other-secret", jwt.MapClaims{
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	assert.Equal(t, http.StatusUnauthorized, doAuth(handler, "Bearer "+token))
}

func TestServiceAuth_GarbageToken(t *testing.T) {
	handler := authFixture()
	assert.Equal(t, http.StatusUnauthorized, doAuth(handler, "Bearer not.a.token"))
}

package http

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"classifier-api/internal/auth"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func authTestRouter(tokens *auth.TokenIssuer) *gin.Engine {
	router := gin.New()
	router.GET("/protected", AuthRequired(tokens), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"userId": c.GetString(ContextUserID),
			"email":  c.GetString(ContextEmail),
		})
	})
	return router
}

func TestAuthRequiredMissingHeader(t *testing.T) {
	tokens := auth.NewTokenIssuer("test-secret", time.Hour)
	router := authTestRouter(tokens)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "authentication required")
}

func TestAuthRequiredBadScheme(t *testing.T) {
	tokens := auth.NewTokenIssuer("test-secret", time.Hour)
	router := authTestRouter(tokens)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "invalid token format")
}

func TestAuthRequiredEmptyToken(t *testing.T) {
	tokens := auth.NewTokenIssuer("test-secret", time.Hour)
	router := authTestRouter(tokens)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer ")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "token not provided")
}

func TestAuthRequiredExpiredToken(t *testing.T) {
	tokens := auth.NewTokenIssuer("test-secret", time.Hour)
	router := authTestRouter(tokens)

	expired := jwt.NewWithClaims(jwt.SigningMethodHS256, auth.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		},
		UserID: "u1",
	})
	tokenString, err := expired.SignedString([]byte("test-secret"))
	require.NoError(t, err)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+tokenString)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "token expired")
}

func TestAuthRequiredInvalidToken(t *testing.T) {
	tokens := auth.NewTokenIssuer("test-secret", time.Hour)
	router := authTestRouter(tokens)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "invalid token")
}

func TestAuthRequiredSetsClaims(t *testing.T) {
	tokens := auth.NewTokenIssuer("test-secret", time.Hour)
	router := authTestRouter(tokens)

	token, err := tokens.Issue("u1", "ann@example.com")
	require.NoError(t, err)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"userId":"u1"`)
	assert.Contains(t, w.Body.String(), `"email":"ann@example.com"`)
}

package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func authRouter(secret string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(TokenAuth(secret))
	router.GET("/test", func(c *gin.Context) {
		client, _ := GetClient(c)
		c.String(http.StatusOK, client)
	})
	return router
}

func TestTokenAuthDisabled(t *testing.T) {
	w := httptest.NewRecorder()
	authRouter("").ServeHTTP(w, httptest.NewRequest("GET", "/test", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestTokenAuth(t *testing.T) {
	secret := "s3cret"
	token, err := GenerateToken(secret, "desktop", time.Hour)
	require.NoError(t, err)

	other, err := GenerateToken("other", "desktop", time.Hour)
	require.NoError(t, err)

	noExpiry, err := GenerateToken(secret, "desktop", -time.Hour)
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
		query  string
		want   int
	}{
		{name: "missing", want: http.StatusUnauthorized},
		{name: "bad format", header: "Token " + token, want: http.StatusUnauthorized},
		{name: "wrong secret", header: "Bearer " + other, want: http.StatusUnauthorized},
		{name: "valid header", header: "Bearer " + token, want: http.StatusOK},
		{name: "valid query", query: "?token=" + token, want: http.StatusOK},
		{name: "no expiry when non-positive", header: "Bearer " + noExpiry, want: http.StatusOK},
	}

	router := authRouter(secret)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/test"+tt.query, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)
			assert.Equal(t, tt.want, w.Code)
			if tt.want == http.StatusOK {
				assert.Equal(t, "desktop", w.Body.String())
			}
		})
	}
}

func TestGenerateTokenRequiresSecret(t *testing.T) {
	_, err := GenerateToken("", "desktop", time.Hour)
	assert.Error(t, err)
}

func TestParseTokenClaims(t *testing.T) {
	token, err := GenerateToken("k", "cli", 0)
	require.NoError(t, err)

	claims, err := ParseToken("k", token)
	require.NoError(t, err)
	assert.Equal(t, "cli", claims.Client)
	assert.Equal(t, "hdmsp", claims.Issuer)
	assert.Nil(t, claims.ExpiresAt)
}

package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const (
	// ClientContextKey holds the authenticated client name.
	ClientContextKey = "client"

	tokenIssuer     = "hdmsp"
	tokenQueryParam = "token"
)

// Claims identifies the desktop shell or script calling the API.
type Claims struct {
	Client string `json:"client"`
	jwt.RegisteredClaims
}

// TokenAuth validates HS256 bearer tokens signed with secret. An empty
// secret disables the check. EventSource clients cannot set headers, so
// the token is also accepted as ?token=.
func TokenAuth(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if secret == "" {
			c.Next()
			return
		}

		tokenString, err := extractToken(c)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error(), "code": "unauthorized"})
			c.Abort()
			return
		}

		claims, err := ParseToken(secret, tokenString)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token", "code": "unauthorized"})
			c.Abort()
			return
		}

		c.Set(ClientContextKey, claims.Client)
		c.Next()
	}
}

func extractToken(c *gin.Context) (string, error) {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		if q := c.Query(tokenQueryParam); q != "" {
			return q, nil
		}
		return "", errors.New("Authorization header required")
	}

	// Extract token from "Bearer <token>"
	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		return "", errors.New("Invalid authorization format")
	}
	return parts[1], nil
}

// ParseToken verifies tokenString and returns its claims.
func ParseToken(secret, tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithIssuer(tokenIssuer))
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token claims")
	}
	return claims, nil
}

// GenerateToken mints a token for client. expiresIn <= 0 means no expiry.
func GenerateToken(secret, client string, expiresIn time.Duration) (string, error) {
	if secret == "" {
		return "", errors.New("no auth secret configured")
	}

	now := time.Now()
	claims := Claims{
		Client: client,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:   tokenIssuer,
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	if expiresIn > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(expiresIn))
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// GetClient returns the authenticated client name, if any.
func GetClient(c *gin.Context) (string, bool) {
	v, ok := c.Get(ClientContextKey)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

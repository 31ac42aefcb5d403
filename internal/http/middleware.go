package http

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"classifier-api/internal/auth"
)

const (
	// ContextUserID is the gin context key for the authenticated identity id.
	ContextUserID = "userID"
	// ContextEmail is the gin context key for the authenticated email claim.
	ContextEmail = "email"

	bearerPrefix = "Bearer "
)

// AuthRequired verifies the bearer token on inbound requests and attaches
// the identity claims to the request context. It never consults the user
// store: claims are trusted for the lifetime of the token.
func AuthRequired(tokens *auth.TokenIssuer) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "authentication required",
				"message": "please provide a valid Bearer token",
			})
			return
		}

		if !strings.HasPrefix(header, bearerPrefix) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "invalid token format",
				"message": `token must be provided as "Bearer <token>"`,
			})
			return
		}

		tokenString := strings.TrimSpace(header[len(bearerPrefix):])
		if tokenString == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "token not provided",
				"message": "please provide a valid Bearer token",
			})
			return
		}

		claims, err := tokens.Verify(tokenString)
		if err != nil {
			if errors.Is(err, auth.ErrTokenExpired) {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
					"error":   "token expired",
					"message": "please login again to get a new token",
				})
				return
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "invalid token",
				"message": "please provide a valid token",
			})
			return
		}

		c.Set(ContextUserID, claims.UserID)
		c.Set(ContextEmail, claims.Email)
		c.Next()
	}
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// currentUserID extracts the authenticated identity id set by AuthRequired.
func currentUserID(c *gin.Context) string {
	return c.GetString(ContextUserID)
}

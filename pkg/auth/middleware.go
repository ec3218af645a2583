package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	tokenHeader = "Authorization"
	tokenPrefix = "Bearer "

	claimsKey = "user_claims"
	userIDKey = "user_id"
	roleKey   = "user_role"
)

// RequireAuth validates the bearer token and injects the actor identity into
// the gin context.
func RequireAuth(signer *Signer) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader(tokenHeader)
		if authHeader == "" {
			abortUnauthorized(c, "missing authorization header")
			return
		}

		if !strings.HasPrefix(authHeader, tokenPrefix) {
			abortUnauthorized(c, "invalid authorization header format")
			return
		}

		token := strings.TrimPrefix(authHeader, tokenPrefix)
		claims, err := signer.ValidateToken(token)
		if err != nil {
			abortUnauthorized(c, "invalid or expired token")
			return
		}

		userID, err := uuid.Parse(claims.Subject)
		if err != nil {
			abortUnauthorized(c, "invalid subject in token")
			return
		}

		c.Set(claimsKey, claims)
		c.Set(userIDKey, userID)
		c.Set(roleKey, claims.Role)
		c.Next()
	}
}

// RequireRole gates a route group to the given roles. Must run after RequireAuth.
func RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		role := c.GetString(roleKey)
		for _, allowed := range roles {
			if role == allowed {
				c.Next()
				return
			}
		}
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
			"success": false,
			"message": "insufficient role for this action",
		})
	}
}

func abortUnauthorized(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"success": false,
		"message": msg,
	})
}

// MustGetUserID returns the authenticated user's ID. Panics when called on a
// route not protected by RequireAuth.
func MustGetUserID(c *gin.Context) uuid.UUID {
	v, ok := c.Get(userIDKey)
	if !ok {
		panic("auth: user_id missing from context")
	}
	return v.(uuid.UUID)
}

// GetRole returns the authenticated user's role, or "" when unauthenticated.
func GetRole(c *gin.Context) string {
	return c.GetString(roleKey)
}

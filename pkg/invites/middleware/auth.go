package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/cardpost/invite-host/pkg/invites/helpers/grant"
	"github.com/gin-gonic/gin"
)

// GrantClaimsKey is the context key under which verified upload claims are stored.
const GrantClaimsKey = "upload_grant"

// GrantVerifier checks an upload token against the request it is presented with.
type GrantVerifier interface {
	Verify(token, key, contentType string) (*grant.Claims, error)
}

// RequireUploadGrant admits a blob write only with a token that covers exactly this key
// and content type. The token comes from ?token= or an Authorization: Bearer header.
func RequireUploadGrant(verifier GrantVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenStr := c.Query("token")
		if tokenStr == "" {
			authHeader := c.GetHeader("Authorization")
			if !strings.HasPrefix(authHeader, "Bearer ") {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Missing upload token"})
				return
			}
			tokenStr = strings.TrimPrefix(authHeader, "Bearer ")
		}

		key := strings.TrimPrefix(c.Param("key"), "/")
		claims, err := verifier.Verify(tokenStr, key, c.ContentType())
		if errors.Is(err, grant.ErrScope) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Upload token does not cover this key or content type"})
			return
		}
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired upload token"})
			return
		}

		c.Set(GrantClaimsKey, claims)
		c.Next()
	}
}

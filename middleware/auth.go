package middleware

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/tilewalk/cache"
	"github.com/kasuganosora/tilewalk/config"
)

const (
	SubjectKey = "subject"
	TokenKey   = "token"
)

// SessionKey is the cache key that keeps a minted token alive until revoked or expired.
func SessionKey(token string) string { return "session:" + token }

// Auth validates the JWT and checks the session cache. The token comes from the
// "Authorization: Bearer" header or, for EventSource clients that cannot set headers,
// the "token" query parameter.
func Auth(sec config.SecurityConfig, c cache.Cache) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		tokenStr := bearerToken(ctx)
		if tokenStr == "" {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
			return
		}

		claims, err := ParseToken(tokenStr, sec.JWTSecret)
		if err != nil {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		cacheCtx, cancel := context.WithTimeout(ctx.Request.Context(), 2*time.Second)
		defer cancel()
		exists, err := c.Exists(cacheCtx, SessionKey(tokenStr))
		if err != nil || !exists {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "session expired"})
			return
		}

		ctx.Set(SubjectKey, claims.Subject)
		ctx.Set(TokenKey, tokenStr)
		ctx.Next()
	}
}

func bearerToken(ctx *gin.Context) string {
	if header := ctx.GetHeader("Authorization"); header != "" {
		if strings.HasPrefix(header, "Bearer ") {
			return strings.TrimPrefix(header, "Bearer ")
		}
		return ""
	}
	return ctx.Query("token")
}

// GetSubject returns the authenticated subject, or "" on unauthenticated routes.
func GetSubject(c *gin.Context) string {
	return c.GetString(SubjectKey)
}

// GetToken returns the raw token the request was authenticated with.
func GetToken(c *gin.Context) string {
	return c.GetString(TokenKey)
}

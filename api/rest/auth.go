// Package rest exposes the world over JSON HTTP endpoints.
package rest

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/tilewalk/cache"
	"github.com/kasuganosora/tilewalk/config"
	mw "github.com/kasuganosora/tilewalk/middleware"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// AdminKeyHeader carries the operator key when minting tokens.
const AdminKeyHeader = "X-Admin-Key"

// AuthHandler mints and revokes API tokens.
type AuthHandler struct {
	cache  cache.Cache
	sec    config.SecurityConfig
	logger *zap.Logger
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(c cache.Cache, sec config.SecurityConfig, logger *zap.Logger) *AuthHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthHandler{cache: c, sec: sec, logger: logger}
}

type tokenRequest struct {
	Subject string `json:"subject" binding:"omitempty,min=2,max=64"`
}

// Token handles POST /api/auth/token. The route must sit behind AdminAuth.
func (h *AuthHandler) Token(c *gin.Context) {
	var req tokenRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	if req.Subject == "" {
		req.Subject = "admin"
	}

	token, err := mw.GenerateToken(req.Subject, h.sec.JWTSecret, h.sec.JWTTTLH)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token error"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	if err := h.cache.Set(ctx, mw.SessionKey(token), req.Subject, h.sec.JWTTTLH); err != nil {
		h.logger.Error("session store failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "session error"})
		return
	}

	h.logger.Info("token issued", zap.String("subject", req.Subject), zap.String("ip", c.ClientIP()))
	c.JSON(http.StatusOK, gin.H{
		"token":      token,
		"subject":    req.Subject,
		"expires_at": time.Now().Add(h.sec.JWTTTLH).UTC(),
	})
}

// Revoke handles POST /api/auth/revoke. The route must sit behind mw.Auth.
func (h *AuthHandler) Revoke(c *gin.Context) {
	token := mw.GetToken(c)
	if token == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing token"})
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	_ = h.cache.Del(ctx, mw.SessionKey(token))
	c.JSON(http.StatusOK, gin.H{"message": "revoked"})
}

// AdminAuth returns a middleware that checks the X-Admin-Key header against a bcrypt
// hash. If keyHash is empty the guarded routes are disabled (503) so the server cannot
// be deployed without protection by accident.
func AdminAuth(keyHash string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if keyHash == "" {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable,
				gin.H{"error": "token minting disabled: set server.admin_key_hash in config"})
			return
		}
		key := c.GetHeader(AdminKeyHeader)
		if key == "" || bcrypt.CompareHashAndPassword([]byte(keyHash), []byte(key)) != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Next()
	}
}

package api

import (
	"strings"

	"escrow-service/internal/apperr"
	"escrow-service/internal/auth"
	"escrow-service/internal/service"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	ctxUserID = "user_id"
	ctxRole   = "role"
)

// authMiddleware validates the bearer token and stores the caller in the gin context
func (h *Handler) authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := strings.TrimSpace(c.GetHeader("Authorization"))
		token := raw
		if strings.HasPrefix(strings.ToLower(token), "bearer ") {
			token = strings.TrimSpace(token[7:])
		}
		if token == "" {
			abortWith(c, apperr.New(apperr.CodeUnauthorized, "missing credentials"))
			return
		}

		claims, err := auth.ParseToken(h.auth, token)
		if err != nil {
			h.logger.Debug("Rejected bearer token", zap.Error(err))
			abortWith(c, apperr.Wrap(apperr.CodeUnauthorized, err, "invalid token"))
			return
		}

		c.Set(ctxUserID, claims.UserID)
		c.Set(ctxRole, claims.Role)
		c.Request = c.Request.WithContext(service.WithActor(c.Request.Context(), claims.UserID))
		c.Next()
	}
}

// requireRole lets the request through only for the listed roles
func requireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		role := c.GetString(ctxRole)
		for _, r := range roles {
			if r == role {
				c.Next()
				return
			}
		}
		abortWith(c, apperr.Forbidden("role %s may not access this resource", role))
	}
}

func callerID(c *gin.Context) int64 {
	return c.GetInt64(ctxUserID)
}

func callerIsAdmin(c *gin.Context) bool {
	return c.GetString(ctxRole) == auth.RoleAdmin
}

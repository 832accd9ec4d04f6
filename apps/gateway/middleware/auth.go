package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"go-storefront/pkg/jwt"
	"go-storefront/pkg/response"
)

// Context keys set by Auth.
const (
	KeyUserID = "userId"
	KeyRole   = "role"
	KeyClaims = "claims"
)

// Revocations answers whether a token id was signed out.
type Revocations interface {
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

// Auth requires a valid, unrevoked bearer token.
func Auth(tokens *jwt.Manager, revoked Revocations) gin.HandlerFunc {
	return authenticate(tokens, revoked, true)
}

// OptionalAuth reads a bearer token when one is sent. Requests without an
// Authorization header pass through anonymously.
func OptionalAuth(tokens *jwt.Manager, revoked Revocations) gin.HandlerFunc {
	return authenticate(tokens, revoked, false)
}

func authenticate(tokens *jwt.Manager, revoked Revocations, required bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		// 1. 获取 Header 里的 Authorization
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			if required {
				response.Error(c, http.StatusUnauthorized, "Authorization header required")
				return
			}
			c.Next()
			return
		}

		// 2. 格式通常是 "Bearer <token>"
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			response.Error(c, http.StatusUnauthorized, "Authorization header format must be Bearer {token}")
			return
		}

		// 3. 解析 Token
		claims, err := tokens.ParseToken(parts[1])
		if err != nil {
			response.Error(c, http.StatusUnauthorized, err.Error())
			return
		}
		if revoked != nil {
			gone, err := revoked.IsRevoked(c.Request.Context(), claims.ID)
			if err != nil {
				log.Error().Err(err).Msg("token revocation check")
				response.Error(c, http.StatusInternalServerError, "internal error")
				return
			}
			if gone {
				response.Error(c, http.StatusUnauthorized, "token has been revoked")
				return
			}
		}

		// 4. 将解析出来的 user_id 存入 Context，供后续 Handler 使用
		c.Set(KeyUserID, claims.UserId)
		c.Set(KeyRole, claims.Role)
		c.Set(KeyClaims, claims)
		c.Next()
	}
}

// RequireRole rejects authenticated callers without role.
func RequireRole(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetString(KeyRole) != role {
			response.Error(c, http.StatusForbidden, "permission denied")
			return
		}
		c.Next()
	}
}

// UserID returns the authenticated user, if any.
func UserID(c *gin.Context) (uint, bool) {
	v, ok := c.Get(KeyUserID)
	if !ok {
		return 0, false
	}
	id, ok := v.(uint)
	return id, ok
}

// Claims returns the parsed token of an authenticated request.
func Claims(c *gin.Context) *jwt.Claims {
	v, ok := c.Get(KeyClaims)
	if !ok {
		return nil
	}
	claims, _ := v.(*jwt.Claims)
	return claims
}

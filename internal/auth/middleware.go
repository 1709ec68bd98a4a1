package auth

import (
	"context"
	"strings"

	pkgerrors "codearena/pkg/errors"
	"codearena/pkg/utils/contextkey"
	"codearena/pkg/utils/response"

	"github.com/gin-gonic/gin"
)

const (
	ModeRequired = "required"
	ModeOptional = "optional"
	ModePublic   = "public"
)

// Middleware authenticates the calling team. The team id and raw token land in the request context
// so downstream calls to the platform API can forward them.
//
// "public" skips authentication, "optional" authenticates only when a token is sent,
// anything else requires a valid token.
func Middleware(authService *Service, mode string) gin.HandlerFunc {
	mode = strings.ToLower(strings.TrimSpace(mode))
	return func(c *gin.Context) {
		if mode == ModePublic {
			c.Next()
			return
		}
		token := extractBearerToken(c.GetHeader("Authorization"))
		if token == "" && mode == ModeOptional {
			c.Next()
			return
		}
		if authService == nil {
			response.AbortWithErrorCode(c, pkgerrors.ServiceUnavailable, "auth service unavailable")
			return
		}

		info, err := authService.Authenticate(c.Request.Context(), token)
		if err != nil {
			response.AbortWithError(c, err)
			return
		}

		ctx := context.WithValue(c.Request.Context(), contextkey.TeamID, info.TeamID)
		ctx = context.WithValue(ctx, contextkey.TeamToken, token)
		c.Request = c.Request.WithContext(ctx)
		c.Set(string(contextkey.TeamID), info.TeamID)
		c.Next()
	}
}

func extractBearerToken(authHeader string) string {
	if authHeader == "" {
		return ""
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 {
		return ""
	}
	if !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

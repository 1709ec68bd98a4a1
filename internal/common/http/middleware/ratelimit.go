package middleware

import (
	"fmt"
	"time"

	"codearena/internal/common/ratelimit"
	"codearena/pkg/utils/response"

	"github.com/gin-gonic/gin"
)

// RateLimitPolicy bounds hits per window for one route group.
type RateLimitPolicy struct {
	Window  time.Duration `yaml:"window"`
	TeamMax int           `yaml:"teamMax"`
	IPMax   int           `yaml:"ipMax"`
}

// RateLimit enforces policy for routeKey. Team limits apply only to authenticated requests.
// A nil limiter disables limiting.
func RateLimit(limiter *ratelimit.Limiter, routeKey string, policy RateLimitPolicy) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limiter == nil {
			c.Next()
			return
		}
		ctx := c.Request.Context()
		if policy.IPMax > 0 {
			key := fmt.Sprintf("arena:rate:ip:%s:%s", c.ClientIP(), routeKey)
			if err := limiter.Allow(ctx, key, policy.IPMax, policy.Window); err != nil {
				response.AbortWithError(c, err)
				return
			}
		}
		if policy.TeamMax > 0 {
			if teamID := c.GetString("team_id"); teamID != "" {
				key := fmt.Sprintf("arena:rate:team:%s:%s", teamID, routeKey)
				if err := limiter.Allow(ctx, key, policy.TeamMax, policy.Window); err != nil {
					response.AbortWithError(c, err)
					return
				}
			}
		}
		c.Next()
	}
}

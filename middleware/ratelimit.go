package middleware

import (
	"context"
	"log"

	"postboard/apperr"

	"github.com/gin-gonic/gin"
)

// Throttler counts requests per client.
type Throttler interface {
	Throttle(ctx context.Context, ip string) error
}

// RateLimit applies the general request throttle per client IP. When the
// counter store is unreachable the request is let through.
func RateLimit(t Throttler) gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()
		err := t.Throttle(c.Request.Context(), ip)
		switch {
		case err == nil:
		case apperr.Is(err, apperr.KindRateLimit):
			Abort(c, err)
			return
		default:
			log.Printf("[RateLimit] Throttle failed for %s, allowing request: %v", ip, err)
		}
		c.Next()
	}
}

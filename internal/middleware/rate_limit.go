package middleware

import (
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"github.com/noah-isme/gema-course-api/internal/utils"
)

// RateLimit limits callers per scope. The bucket key is the scope, the values of the named
// route params, and the authenticated user, falling back to the client IP. Passing "id" on the
// enroll route gives each student a separate budget per course instance.
func RateLimit(scope string, max int, window time.Duration, params ...string) fiber.Handler {
	if max <= 0 {
		max = 10
	}
	if window <= 0 {
		window = time.Second
	}

	return limiter.New(limiter.Config{
		Max:        max,
		Expiration: window,
		KeyGenerator: func(c *fiber.Ctx) string {
			parts := make([]string, 0, len(params)+2)
			parts = append(parts, scope)
			for _, param := range params {
				parts = append(parts, param+"="+c.Params(param))
			}
			parts = append(parts, callerKey(c))
			return strings.Join(parts, ":")
		},
		LimitReached: func(c *fiber.Ctx) error {
			return utils.SendError(c, fiber.StatusTooManyRequests, "too many requests, retry later")
		},
	})
}

func callerKey(c *fiber.Ctx) string {
	if value := c.Locals("user_id"); value != nil {
		if id := strings.TrimSpace(fmt.Sprint(value)); id != "" && id != "0" {
			return "user=" + id
		}
	}
	return "ip=" + c.IP()
}

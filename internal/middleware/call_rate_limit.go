package middleware

import (
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

// CallRateLimit throttles a caller's state-changing calls per minute using
// Redis if available. It protects the settlement path from a single caller
// hammering transfer_call; without Redis it is a no-op.
func CallRateLimit(cache *redis.Client, maxPerMin int) fiber.Handler {
	if maxPerMin <= 0 {
		maxPerMin = 30
	}
	return func(c *fiber.Ctx) error {
		if cache == nil {
			return c.Next() // no-op without Redis
		}
		caller := Caller(c)
		if caller == "" {
			caller = c.IP()
		}
		key := "rl:call:" + caller
		cnt, err := cache.Incr(c.UserContext(), key).Result()
		if err == nil && cnt == 1 {
			cache.Expire(c.UserContext(), key, time.Minute)
		}
		if err != nil {
			return c.Next() // fail-open on cache errors
		}
		if cnt > int64(maxPerMin) {
			return fiber.NewError(http.StatusTooManyRequests, "too many calls, try again later")
		}
		return c.Next()
	}
}

package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// fixedWindow counts a hit and makes sure the key carries a TTL in one atomic
// step. Keys found without a TTL get one, so a counter can never outlive its
// window. Returns {count, ttl in ms}.
var fixedWindow = redis.NewScript(`
local count = redis.call('INCR', KEYS[1])
local ttl = redis.call('PTTL', KEYS[1])
if ttl < 0 then
	redis.call('PEXPIRE', KEYS[1], ARGV[1])
	ttl = tonumber(ARGV[1])
end
return {count, ttl}
`)

// RateLimit allows max requests per client IP per window, counted in redis
// with a fixed window. Requests pass when redis is nil or unreachable.
func RateLimit(client *redis.Client, name string, max int, window time.Duration, log zerolog.Logger) gin.HandlerFunc {
	if client == nil || max <= 0 || window <= 0 {
		return func(c *gin.Context) { c.Next() }
	}

	return func(c *gin.Context) {
		key := "ratelimit:" + name + ":" + c.ClientIP()

		res, err := fixedWindow.Run(c.Request.Context(), client, []string{key}, window.Milliseconds()).Int64Slice()
		if err == nil && len(res) != 2 {
			err = redis.Nil
		}
		if err != nil {
			log.Warn().Err(err).Str("limiter", name).Msg("rate limiter unavailable, allowing request")
			c.Next()
			return
		}
		count, ttl := res[0], time.Duration(res[1])*time.Millisecond

		remaining := int64(max) - count
		if remaining < 0 {
			remaining = 0
		}
		c.Header("X-RateLimit-Limit", strconv.Itoa(max))
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))

		if count > int64(max) {
			if ttl > 0 {
				c.Header("Retry-After", strconv.Itoa(int(ttl.Round(time.Second).Seconds())))
			}
			abort(c, http.StatusTooManyRequests, "Too many requests, please try again later")
			return
		}

		c.Next()
	}
}

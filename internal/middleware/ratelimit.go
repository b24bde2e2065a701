package middleware

import (
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/zhejian/glasslink/internal/config"
	"github.com/zhejian/glasslink/internal/model"
)

// tokenBucket refills whole intervals and takes one token per call.
// Returns {allowed, remaining, retry_after_ms}.
var tokenBucket = redis.NewScript(`
	local key = KEYS[1]
	local now_ms = tonumber(ARGV[1])
	local capacity = tonumber(ARGV[2])
	local refill_tokens = tonumber(ARGV[3])
	local interval_ms = tonumber(ARGV[4])
	local ttl_seconds = tonumber(ARGV[5])

	local state = redis.call('HMGET', key, 'tokens', 'last_refill_ms')
	local tokens = tonumber(state[1])
	local last_refill = tonumber(state[2])

	if tokens == nil or last_refill == nil then
		tokens = capacity
		last_refill = now_ms
	end

	if interval_ms > 0 and refill_tokens > 0 then
		local elapsed = math.max(0, now_ms - last_refill)
		local intervals = math.floor(elapsed / interval_ms)
		if intervals > 0 then
			tokens = math.min(capacity, tokens + (intervals * refill_tokens))
			last_refill = last_refill + (intervals * interval_ms)
		end
	end

	local allowed = 0
	local retry_after_ms = 0
	if tokens > 0 then
		allowed = 1
		tokens = tokens - 1
	else
		retry_after_ms = math.max(0, interval_ms - (now_ms - last_refill))
	end

	redis.call('HSET', key, 'tokens', tokens, 'last_refill_ms', last_refill)
	redis.call('EXPIRE', key, ttl_seconds)

	return { allowed, tokens, retry_after_ms }
`)

// RateLimiter is a Redis token bucket keyed by scope and client ip.
type RateLimiter struct {
	rdb    *redis.Client
	cfg    config.RateLimitConfig
	logger *slog.Logger
	now    func() time.Time
}

// NewRateLimiter returns a limiter. A nil client or disabled config yields a pass-through.
func NewRateLimiter(rdb *redis.Client, cfg config.RateLimitConfig, logger *slog.Logger) *RateLimiter {
	if logger == nil {
		logger = slog.Default()
	}
	return &RateLimiter{rdb: rdb, cfg: cfg, logger: logger, now: time.Now}
}

// Limit returns a middleware drawing from the bucket named scope.
func (l *RateLimiter) Limit(scope string) gin.HandlerFunc {
	if l == nil || l.rdb == nil || !l.cfg.Enabled {
		return func(c *gin.Context) { c.Next() }
	}

	return func(c *gin.Context) {
		key := l.key(scope, c.ClientIP())
		ttl := int64(l.cfg.TTL / time.Second)
		if ttl < 1 {
			ttl = 1
		}

		vals, err := tokenBucket.Run(c.Request.Context(), l.rdb, []string{key},
			l.now().UnixMilli(),
			l.cfg.Capacity,
			l.cfg.RefillTokens,
			l.cfg.RefillInterval.Milliseconds(),
			ttl,
		).Int64Slice()
		if err != nil || len(vals) != 3 {
			// fail open
			l.logger.WarnContext(c.Request.Context(), "rate limiter unavailable",
				slog.String("key", key), slog.Any("error", err))
			c.Next()
			return
		}

		allowed, remaining, retryMs := vals[0] == 1, vals[1], vals[2]
		c.Header("X-RateLimit-Limit", strconv.Itoa(l.cfg.Capacity))
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))

		if !allowed {
			secs := int(math.Ceil(float64(retryMs) / 1000.0))
			if secs < 1 {
				secs = 1
			}
			c.Header("Retry-After", strconv.Itoa(secs))
			rateLimitedTotal.WithLabelValues(scope).Inc()
			AbortWithProblem(c, NewProblem(c, http.StatusTooManyRequests,
				model.CodeTooManyRequests, "Too many requests. Try again later."))
			return
		}

		c.Next()
	}
}

func (l *RateLimiter) key(scope, ip string) string {
	if ip == "" {
		ip = "unknown"
	}
	return strings.Join([]string{l.cfg.Prefix, scope, "ip", ip}, ":")
}

package ratelimit

import (
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
	"k8s.io/utils/clock"

	"github.com/telekom/nekomail/pkg/apiresponses"
	"github.com/telekom/nekomail/pkg/metrics"
)

// FloodMessage is returned when a client exhausts its token bucket.
const FloodMessage = "Rate limit exceeded, please try again later"

// BucketConfig configures the server-wide token bucket.
type BucketConfig struct {
	// Rate is the sustained number of requests per second per client.
	Rate float64
	// Burst is the bucket size.
	Burst int
	// IdleTTL drops buckets of clients that were not seen for this long.
	IdleTTL time.Duration
	Clock   clock.WithTicker
}

// DefaultBucketConfig allows 20 req/s per client with a burst of 50.
func DefaultBucketConfig() BucketConfig {
	return BucketConfig{
		Rate:    20,
		Burst:   50,
		IdleTTL: 5 * time.Minute,
	}
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// BucketLimiter keeps one token bucket per client IP. The buckets are
// evaluated against the configured clock, not wall time.
type BucketLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	config  BucketConfig

	done     chan struct{}
	stopOnce sync.Once
}

// NewBucketLimiter creates the limiter and starts the idle-bucket janitor.
func NewBucketLimiter(cfg BucketConfig) *BucketLimiter {
	def := DefaultBucketConfig()
	if cfg.Rate <= 0 {
		cfg.Rate = def.Rate
	}
	if cfg.Burst <= 0 {
		cfg.Burst = def.Burst
	}
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = def.IdleTTL
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.RealClock{}
	}

	bl := &BucketLimiter{
		buckets: make(map[string]*bucket),
		config:  cfg,
		done:    make(chan struct{}),
	}
	go bl.janitor()
	return bl
}

// Take consumes a token for key. When the bucket is empty it returns false
// and the time until the next token is available.
func (bl *BucketLimiter) Take(key string) (bool, time.Duration) {
	now := bl.config.Clock.Now()

	bl.mu.Lock()
	defer bl.mu.Unlock()

	b, ok := bl.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(rate.Limit(bl.config.Rate), bl.config.Burst)}
		bl.buckets[key] = b
	}
	b.lastSeen = now

	r := b.limiter.ReserveN(now, 1)
	if delay := r.DelayFrom(now); delay > 0 {
		r.CancelAt(now)
		return false, delay
	}
	return true, 0
}

// Middleware rejects flooding clients with 429. Requests whose path starts
// with one of skipPrefixes bypass the bucket.
func (bl *BucketLimiter) Middleware(skipPrefixes ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.Request.URL.Path
		for _, p := range skipPrefixes {
			if strings.HasPrefix(path, p) {
				c.Next()
				return
			}
		}

		if ok, wait := bl.Take(c.ClientIP()); !ok {
			c.Header("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
			metrics.AdmissionRejected.WithLabelValues("ip_rate_limit").Inc()
			apiresponses.RespondTooManyRequests(c, FloodMessage)
			c.Abort()
			return
		}
		c.Next()
	}
}

// Len returns the number of tracked clients.
func (bl *BucketLimiter) Len() int {
	bl.mu.Lock()
	defer bl.mu.Unlock()
	return len(bl.buckets)
}

// Stop ends the janitor goroutine. It is safe to call more than once.
func (bl *BucketLimiter) Stop() {
	bl.stopOnce.Do(func() { close(bl.done) })
}

func (bl *BucketLimiter) janitor() {
	ticker := bl.config.Clock.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-bl.done:
			return
		case <-ticker.C():
			bl.evictIdle()
		}
	}
}

// evictIdle drops buckets not touched within IdleTTL and returns how many.
func (bl *BucketLimiter) evictIdle() int {
	now := bl.config.Clock.Now()

	bl.mu.Lock()
	defer bl.mu.Unlock()

	n := 0
	for key, b := range bl.buckets {
		if now.Sub(b.lastSeen) > bl.config.IdleTTL {
			delete(bl.buckets, key)
			n++
		}
	}
	return n
}

// Package ratelimit throttles validation requests per client so one
// noisy integration cannot starve the rest of the API.
package ratelimit

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// Config controls the per-client token bucket.
type Config struct {
	// RequestsPerMinute is the sustained refill rate per client.
	RequestsPerMinute int
	// BurstSize is the bucket capacity, so short bursts pass.
	BurstSize int
	// CleanupInterval is how often idle buckets are dropped.
	CleanupInterval time.Duration
}

// DefaultConfig allows one request per second sustained with bursts of
// ten, which covers a wallet validating a batch of pending transactions.
func DefaultConfig() Config {
	return Config{
		RequestsPerMinute: 60,
		BurstSize:         10,
		CleanupInterval:   time.Minute,
	}
}

// Limiter holds one token bucket per client key.
type Limiter struct {
	cfg     Config
	mu      sync.Mutex
	buckets map[string]*bucket
	stop    chan struct{}
}

type bucket struct {
	tokens float64
	seen   time.Time
}

// refill credits tokens for the time elapsed since the bucket was last
// touched, capped at the burst capacity.
func (b *bucket) refill(now time.Time, cfg Config) {
	perSecond := float64(cfg.RequestsPerMinute) / 60.0
	b.tokens += now.Sub(b.seen).Seconds() * perSecond
	if capacity := float64(cfg.BurstSize); b.tokens > capacity {
		b.tokens = capacity
	}
	b.seen = now
}

// New starts a limiter and its background cleanup goroutine. Call Stop
// when the server shuts down.
func New(cfg Config) *Limiter {
	l := &Limiter{
		cfg:     cfg,
		buckets: make(map[string]*bucket),
		stop:    make(chan struct{}),
	}
	go l.reapIdle()
	return l
}

func (l *Limiter) reapIdle() {
	ticker := time.NewTicker(l.cfg.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			cutoff := time.Now().Add(-2 * time.Minute)
			l.mu.Lock()
			for key, b := range l.buckets {
				if b.seen.Before(cutoff) {
					delete(l.buckets, key)
				}
			}
			l.mu.Unlock()
		case <-l.stop:
			return
		}
	}
}

// Stop terminates the cleanup goroutine.
func (l *Limiter) Stop() {
	close(l.stop)
}

// Allow spends one token from the client's bucket, creating a full
// bucket on first sight. It reports false when the bucket is empty.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	b, ok := l.buckets[key]
	if !ok {
		l.buckets[key] = &bucket{tokens: float64(l.cfg.BurstSize - 1), seen: now}
		return true
	}

	b.refill(now, l.cfg)
	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

// Middleware limits by client IP, or by API key for authenticated
// callers so clients behind a shared NAT get separate buckets.
func (l *Limiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.ClientIP()
		if auth := c.GetHeader("Authorization"); auth != "" {
			key = "auth:" + auth[:min(20, len(auth))]
		}

		if !l.Allow(key) {
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":       "rate_limit_exceeded",
				"message":     "Too many requests. Please slow down.",
				"retry_after": 1,
			})
			c.Abort()
			return
		}

		c.Next()
	}
}

// SPDX-FileCopyrightText: 2025 Deutsche Telekom AG
//
// SPDX-License-Identifier: Apache-2.0

package dedup

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"k8s.io/utils/clock"

	"github.com/telekom/nekomail/pkg/metrics"
)

// TTL is how long a fingerprint blocks identical submissions.
const TTL = 5 * time.Minute

// ErrDuplicate is returned by CheckAndMark when the fingerprint was seen
// less than TTL ago.
var ErrDuplicate = errors.New("duplicate request")

// Cache remembers when each fingerprint was first accepted. A fingerprint
// younger than TTL blocks new submissions; older entries are treated as
// absent on read and removed by the reaper.
type Cache struct {
	mu      sync.Mutex
	entries map[string]time.Time

	clock clock.WithTicker
	ttl   time.Duration
	log   *zap.SugaredLogger

	stopOnce sync.Once
	done     chan struct{}
	wg       sync.WaitGroup
}

// Option configures a Cache.
type Option func(*Cache)

// WithClock replaces the wall clock, mainly for tests.
func WithClock(c clock.WithTicker) Option {
	return func(cache *Cache) { cache.clock = c }
}

// WithLogger sets the logger used by the reaper.
func WithLogger(log *zap.SugaredLogger) Option {
	return func(cache *Cache) { cache.log = log }
}

// New creates an empty cache. Call Start to run the reaper.
func New(opts ...Option) *Cache {
	c := &Cache{
		entries: make(map[string]time.Time),
		clock:   clock.RealClock{},
		ttl:     TTL,
		log:     zap.NewNop().Sugar(),
		done:    make(chan struct{}),
	}
	for _, o := range opts {
		o(c)
	}
	c.log = c.log.Named("dedup")
	return c
}

// CheckAndMark atomically checks and records fingerprint. If a live entry
// exists it returns ErrDuplicate and leaves the entry untouched; otherwise
// it stores the current time and returns nil.
func (c *Cache) CheckAndMark(fingerprint string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	if seen, ok := c.entries[fingerprint]; ok && now.Sub(seen) <= c.ttl {
		return ErrDuplicate
	}
	c.entries[fingerprint] = now
	metrics.DedupEntries.Set(float64(len(c.entries)))
	return nil
}

// Reap removes every entry older than TTL and returns how many were removed.
func (c *Cache) Reap() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	removed := 0
	for fp, seen := range c.entries {
		if now.Sub(seen) > c.ttl {
			delete(c.entries, fp)
			removed++
		}
	}
	metrics.DedupEntries.Set(float64(len(c.entries)))
	metrics.DedupReaped.Add(float64(removed))
	return removed
}

// Len returns the number of stored fingerprints, live or expired.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Start runs the reaper every TTL until ctx is done or Stop is called.
func (c *Cache) Start(ctx context.Context) {
	c.wg.Add(1)
	go c.reaper(ctx)
	c.log.Debugw("Dedup reaper started", "interval", c.ttl.String())
}

// Stop ends the reaper and waits for it to exit. It is safe to call more
// than once and without a prior Start.
func (c *Cache) Stop() {
	c.stopOnce.Do(func() { close(c.done) })
	c.wg.Wait()
}

func (c *Cache) reaper(ctx context.Context) {
	defer c.wg.Done()

	ticker := c.clock.NewTicker(c.ttl)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		case <-ticker.C():
			if n := c.Reap(); n > 0 {
				c.log.Debugw("Reaped expired fingerprints", "removed", n)
			}
		}
	}
}

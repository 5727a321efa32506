// SPDX-FileCopyrightText: 2025 Deutsche Telekom AG
//
// SPDX-License-Identifier: Apache-2.0

package ratelimit

import (
	"sync"
	"time"

	"k8s.io/utils/clock"
)

// hitLog records hit timestamps per client key and answers "how many hits
// did this key make in the last window". Timestamps older than the window
// are discarded on every access, so nothing survives past the window.
type hitLog struct {
	mu     sync.Mutex
	hits   map[string][]time.Time
	window time.Duration
	clock  clock.WithTicker

	done     chan struct{}
	stopOnce sync.Once
}

func newHitLog(window time.Duration, clk clock.WithTicker) *hitLog {
	return &hitLog{
		hits:   make(map[string][]time.Time),
		window: window,
		clock:  clk,
		done:   make(chan struct{}),
	}
}

// record adds a hit for key unless limit > 0 and the key already holds
// limit live hits. It returns the number of live hits after the call, whether
// the hit was recorded, and for refused hits the time until the oldest live
// hit leaves the window.
func (l *hitLog) record(key string, limit int) (count int, recorded bool, retryAfter time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	live := l.prune(key, now)

	if limit > 0 && len(live) >= limit {
		return len(live), false, live[0].Add(l.window).Sub(now)
	}

	live = append(live, now)
	l.hits[key] = live
	return len(live), true, 0
}

// count returns the number of live hits for key without recording one.
func (l *hitLog) count(key string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.prune(key, l.clock.Now()))
}

// prune drops expired hits for key. Callers hold l.mu.
func (l *hitLog) prune(key string, now time.Time) []time.Time {
	ts := l.hits[key]
	i := 0
	for i < len(ts) && now.Sub(ts[i]) >= l.window {
		i++
	}
	if i == len(ts) {
		delete(l.hits, key)
		return nil
	}
	if i > 0 {
		ts = append(ts[:0], ts[i:]...)
		l.hits[key] = ts
	}
	return ts
}

// sweep prunes every key and returns the number of keys still tracked.
func (l *hitLog) sweep() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	for key := range l.hits {
		l.prune(key, now)
	}
	return len(l.hits)
}

func (l *hitLog) keys() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.hits)
}

// janitor sweeps the log once per interval until stop is called.
func (l *hitLog) janitor(interval time.Duration) {
	ticker := l.clock.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-l.done:
			return
		case <-ticker.C():
			l.sweep()
		}
	}
}

func (l *hitLog) stop() {
	l.stopOnce.Do(func() { close(l.done) })
}

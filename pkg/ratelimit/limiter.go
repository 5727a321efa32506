// SPDX-FileCopyrightText: 2025 Deutsche Telekom AG
//
// SPDX-License-Identifier: Apache-2.0

package ratelimit

import (
	"math"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"k8s.io/utils/clock"

	"github.com/telekom/nekomail/pkg/apiresponses"
	"github.com/telekom/nekomail/pkg/metrics"
	"github.com/telekom/nekomail/pkg/system"
)

const (
	// DefaultWindow is the rolling window shared by the hard limiter and the slowdown.
	DefaultWindow = 15 * time.Minute
	// DefaultMaxRequests is the number of submissions a client may make per window.
	DefaultMaxRequests = 15
	// DefaultDelayAfter is the number of submissions per window served without delay.
	DefaultDelayAfter = 5
	// DefaultDelayStep is multiplied by the hit count once DefaultDelayAfter is exceeded.
	DefaultDelayStep = 200 * time.Millisecond

	// LimitMessage is returned to clients rejected by the hard limiter.
	LimitMessage = "Too many requests, please try again in 15 minutes"
)

// WindowConfig configures a WindowLimiter.
type WindowConfig struct {
	Window      time.Duration
	MaxRequests int
	Message     string
	Clock       clock.WithTicker
}

// DefaultWindowConfig returns 15 requests per 15 minutes.
func DefaultWindowConfig() WindowConfig {
	return WindowConfig{
		Window:      DefaultWindow,
		MaxRequests: DefaultMaxRequests,
		Message:     LimitMessage,
	}
}

// WindowLimiter accepts at most MaxRequests per client in any span of
// Window. Rejected requests are not counted.
type WindowLimiter struct {
	log    *hitLog
	config WindowConfig
}

// NewWindowLimiter creates a hard limiter and starts its janitor.
func NewWindowLimiter(cfg WindowConfig) *WindowLimiter {
	if cfg.Window <= 0 {
		cfg.Window = DefaultWindow
	}
	if cfg.MaxRequests <= 0 {
		cfg.MaxRequests = DefaultMaxRequests
	}
	if cfg.Message == "" {
		cfg.Message = LimitMessage
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.RealClock{}
	}

	wl := &WindowLimiter{log: newHitLog(cfg.Window, cfg.Clock), config: cfg}
	go wl.log.janitor(cfg.Window)
	return wl
}

// Take counts a request for key. It returns the number of accepted requests
// in the current window, whether this one was accepted, and how long the
// client should wait when it was not.
func (wl *WindowLimiter) Take(key string) (count int, allowed bool, retryAfter time.Duration) {
	return wl.log.record(key, wl.config.MaxRequests)
}

// Middleware rejects clients over the cap with 429 and sets the
// RateLimit-Limit, RateLimit-Remaining and Retry-After headers.
func (wl *WindowLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		count, allowed, retryAfter := wl.Take(c.ClientIP())

		c.Header("RateLimit-Limit", strconv.Itoa(wl.config.MaxRequests))
		c.Header("RateLimit-Remaining", strconv.Itoa(max(wl.config.MaxRequests-count, 0)))

		if !allowed {
			c.Header("Retry-After", strconv.Itoa(int(math.Ceil(retryAfter.Seconds()))))
			metrics.AdmissionRejected.WithLabelValues("rate_limit").Inc()
			metrics.SendRequests.WithLabelValues("rate_limited").Inc()
			apiresponses.RespondTooManyRequests(c, wl.config.Message)
			c.Abort()
			return
		}
		c.Next()
	}
}

// Len returns the number of tracked clients.
func (wl *WindowLimiter) Len() int {
	return wl.log.keys()
}

// Stop ends the janitor goroutine.
func (wl *WindowLimiter) Stop() {
	wl.log.stop()
}

// SlowdownConfig configures a Slowdown.
type SlowdownConfig struct {
	Window     time.Duration
	DelayAfter int
	DelayStep  time.Duration
	Clock      clock.WithTicker
	Logger     *zap.SugaredLogger
}

// DefaultSlowdownConfig delays the 6th and later requests per 15 minutes by
// 200ms times the request's position in the window.
func DefaultSlowdownConfig() SlowdownConfig {
	return SlowdownConfig{
		Window:     DefaultWindow,
		DelayAfter: DefaultDelayAfter,
		DelayStep:  DefaultDelayStep,
	}
}

// Slowdown adds latency to clients that exceed DelayAfter requests in the
// window. It never rejects.
type Slowdown struct {
	log    *hitLog
	config SlowdownConfig
	logger *zap.SugaredLogger
}

// NewSlowdown creates a slowdown stage and starts its janitor.
func NewSlowdown(cfg SlowdownConfig) *Slowdown {
	if cfg.Window <= 0 {
		cfg.Window = DefaultWindow
	}
	if cfg.DelayAfter < 0 {
		cfg.DelayAfter = DefaultDelayAfter
	}
	if cfg.DelayStep <= 0 {
		cfg.DelayStep = DefaultDelayStep
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.RealClock{}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop().Sugar()
	}

	s := &Slowdown{log: newHitLog(cfg.Window, cfg.Clock), config: cfg, logger: cfg.Logger.Named("slowdown")}
	go s.log.janitor(cfg.Window)
	return s
}

// Delay counts a request for key and returns how long it must wait.
func (s *Slowdown) Delay(key string) time.Duration {
	hits, _, _ := s.log.record(key, 0)
	if hits <= s.config.DelayAfter {
		return 0
	}
	return time.Duration(hits) * s.config.DelayStep
}

// Middleware sleeps for the computed delay before passing the request on.
// The wait is not interrupted when the client goes away.
func (s *Slowdown) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		d := s.Delay(c.ClientIP())
		if d > 0 {
			system.GetReqLogger(c, s.logger).Debugw("Delaying request", "delay", d.String())
			metrics.SlowdownDelay.Observe(d.Seconds())
			s.config.Clock.Sleep(d)
		}
		c.Next()
	}
}

// Len returns the number of tracked clients.
func (s *Slowdown) Len() int {
	return s.log.keys()
}

// Stop ends the janitor goroutine.
func (s *Slowdown) Stop() {
	s.log.stop()
}

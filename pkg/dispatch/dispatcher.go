// SPDX-FileCopyrightText: 2025 Deutsche Telekom AG
//
// SPDX-License-Identifier: Apache-2.0

package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"k8s.io/utils/clock"

	"github.com/telekom/nekomail/pkg/mail"
	"github.com/telekom/nekomail/pkg/metrics"
)

// DefaultTimeout bounds how long a request waits for the relay.
const DefaultTimeout = 10 * time.Second

// ErrRelayUnavailable wraps relay errors that mean no connection could be used.
var ErrRelayUnavailable = errors.New("mail relay unavailable")

// Outcome classifies a dispatch attempt.
type Outcome int

const (
	Sent Outcome = iota
	TimedOut
	ConnectionUnavailable
	OtherFailure
)

func (o Outcome) String() string {
	switch o {
	case Sent:
		return "sent"
	case TimedOut:
		return "timed_out"
	case ConnectionUnavailable:
		return "unavailable"
	default:
		return "failed"
	}
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithClock sets the clock that drives the deadline.
func WithClock(clk clock.Clock) Option {
	return func(d *Dispatcher) { d.clock = clk }
}

// WithTimeout overrides DefaultTimeout.
func WithTimeout(timeout time.Duration) Option {
	return func(d *Dispatcher) {
		if timeout > 0 {
			d.timeout = timeout
		}
	}
}

// WithLogger sets the logger used for abandoned deliveries.
func WithLogger(log *zap.SugaredLogger) Option {
	return func(d *Dispatcher) { d.log = log }
}

// Dispatcher sends messages through a relay with a deadline.
type Dispatcher struct {
	relay   mail.Relay
	clock   clock.Clock
	timeout time.Duration
	log     *zap.SugaredLogger
}

// New creates a Dispatcher for relay.
func New(relay mail.Relay, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		relay:   relay,
		clock:   clock.RealClock{},
		timeout: DefaultTimeout,
		log:     zap.NewNop().Sugar(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Timeout returns the configured deadline.
func (d *Dispatcher) Timeout() time.Duration {
	return d.timeout
}

// Dispatch delivers msg and classifies the result. A delivery that misses
// the deadline keeps running in the background; the caller is answered
// with TimedOut and ErrTimeout. ctx only supplies request-scoped values, it
// never aborts a delivery.
func (d *Dispatcher) Dispatch(ctx context.Context, msg *mail.Message) (Outcome, error) {
	start := d.clock.Now()
	log := d.log
	if v, ok := ctx.Value(loggerKey{}).(*zap.SugaredLogger); ok {
		log = v
	}

	err := Race(d.clock, d.timeout, func() error {
		sendErr := d.relay.Send(msg)
		if sendErr != nil && d.clock.Since(start) >= d.timeout {
			log.Warnw("Abandoned delivery finished with error", "host", d.relay.Host(), "error", sendErr)
		}
		return sendErr
	})

	outcome := classify(err)
	metrics.DispatchDuration.WithLabelValues(outcome.String()).Observe(d.clock.Since(start).Seconds())

	switch outcome {
	case Sent:
		return Sent, nil
	case ConnectionUnavailable:
		return outcome, fmt.Errorf("%w: %w", ErrRelayUnavailable, err)
	default:
		return outcome, err
	}
}

func classify(err error) Outcome {
	switch {
	case err == nil:
		return Sent
	case errors.Is(err, ErrTimeout):
		return TimedOut
	case mail.IsUnavailable(err):
		return ConnectionUnavailable
	default:
		return OtherFailure
	}
}

type loggerKey struct{}

// ContextWithLogger attaches a request logger that Dispatch uses instead of
// its own.
func ContextWithLogger(ctx context.Context, log *zap.SugaredLogger) context.Context {
	return context.WithValue(ctx, loggerKey{}, log)
}

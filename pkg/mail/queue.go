/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package mail

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gopkg.in/gomail.v2"
	"k8s.io/utils/clock"

	"github.com/telekom/nekomail/pkg/metrics"
)

// QueueConfig tunes the relay worker.
type QueueConfig struct {
	// Size is the number of messages that may wait for the worker.
	Size int
	// MaxMessagesPerConn forces a reconnect after this many deliveries.
	MaxMessagesPerConn int
	// IdleTimeout closes the connection when no message arrived for this long.
	IdleTimeout time.Duration
	Clock       clock.Clock
}

type job struct {
	msg    *Message
	result chan error
}

// Queue is a Relay backed by one worker goroutine that owns at most one SMTP
// connection and delivers messages serially over it.
type Queue struct {
	dialer Dialer
	host   string
	log    *zap.SugaredLogger
	cfg    QueueConfig

	jobs    chan *job
	ctx     context.Context
	cancel  context.CancelFunc
	stopped chan struct{}

	// owned by the worker
	conn gomail.SendCloser
	sent int
}

// NewQueue creates a relay queue. Call Start before sending.
func NewQueue(dialer Dialer, host string, log *zap.SugaredLogger, cfg QueueConfig) *Queue {
	if cfg.Size <= 0 {
		cfg.Size = 100
	}
	if cfg.MaxMessagesPerConn <= 0 {
		cfg.MaxMessagesPerConn = 10
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = 30 * time.Second
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.RealClock{}
	}

	log = log.Named("relay")
	log.Infow("Initializing mail relay",
		"host", host,
		"queueSize", cfg.Size,
		"maxMessagesPerConnection", cfg.MaxMessagesPerConn,
		"idleTimeout", cfg.IdleTimeout.String())

	ctx, cancel := context.WithCancel(context.Background())
	return &Queue{
		dialer:  dialer,
		host:    host,
		log:     log,
		cfg:     cfg,
		jobs:    make(chan *job, cfg.Size),
		ctx:     ctx,
		cancel:  cancel,
		stopped: make(chan struct{}),
	}
}

// Start begins the background worker.
func (q *Queue) Start() {
	go q.run()
	q.log.Info("Mail relay worker started")
}

// Host returns the SMTP server name.
func (q *Queue) Host() string {
	return q.host
}

// Send enqueues msg and waits for the worker's verdict. It returns
// ErrQueueFull without waiting when the backlog is full.
func (q *Queue) Send(msg *Message) error {
	select {
	case <-q.ctx.Done():
		metrics.MailQueueDropped.WithLabelValues(q.host).Inc()
		return ErrQueueClosed
	default:
	}

	j := &job{msg: msg, result: make(chan error, 1)}
	select {
	case q.jobs <- j:
		metrics.MailQueued.WithLabelValues(q.host).Inc()
	default:
		metrics.MailQueueDropped.WithLabelValues(q.host).Inc()
		q.log.Errorw("Mail queue is full, dropping message", "queueSize", q.cfg.Size)
		return ErrQueueFull
	}

	select {
	case err := <-j.result:
		return err
	case <-q.stopped:
		select {
		case err := <-j.result:
			return err
		default:
			return ErrQueueClosed
		}
	}
}

// run restarts the worker loop after a panic until the queue is stopped.
func (q *Queue) run() {
	defer close(q.stopped)
	defer q.closeConn("shutdown")
	for !q.work() {
	}
}

// work processes jobs until shutdown and reports whether it returned normally.
func (q *Queue) work() (done bool) {
	var current *job
	defer func() {
		if r := recover(); r != nil {
			q.log.Errorw("panic in mail relay worker recovered", "panic", r)
			metrics.MailSendFailure.WithLabelValues(q.host).Inc()
			q.abandonConn()
			if current != nil {
				current.result <- fmt.Errorf("mail relay worker panicked: %v", r)
			}
			done = false
		}
	}()

	for {
		var idle <-chan time.Time
		if q.conn != nil {
			idle = q.cfg.Clock.After(q.cfg.IdleTimeout)
		}

		select {
		case <-q.ctx.Done():
			q.drain()
			return true
		case current = <-q.jobs:
			current.result <- q.deliver(current.msg)
			current = nil
		case <-idle:
			q.closeConn("idle")
		}
	}
}

// deliver sends one message, dialing first if there is no open connection.
func (q *Queue) deliver(msg *Message) error {
	if q.conn != nil && q.sent >= q.cfg.MaxMessagesPerConn {
		q.closeConn("message limit reached")
	}
	if q.conn == nil {
		conn, err := q.dialer.Dial()
		if err != nil {
			metrics.MailSendFailure.WithLabelValues(q.host).Inc()
			q.log.Warnw("Failed to connect to mail relay", "error", err)
			return &ConnectionError{Host: q.host, Err: err}
		}
		q.conn = conn
		q.sent = 0
		metrics.MailConnectionsOpened.WithLabelValues(q.host).Inc()
		q.log.Debug("Opened mail relay connection")
	}

	if err := q.conn.Send(msg.FromAddress, []string{msg.To}, msg.toGomail()); err != nil {
		metrics.MailSendFailure.WithLabelValues(q.host).Inc()
		// the session state is unknown after a failed transaction
		q.closeConn("send failed")
		if isConnectionFailure(err) {
			return &ConnectionError{Host: q.host, Err: err}
		}
		return err
	}

	q.sent++
	metrics.MailSendSuccess.WithLabelValues(q.host).Inc()
	return nil
}

func (q *Queue) closeConn(reason string) {
	if q.conn == nil {
		return
	}
	if err := q.conn.Close(); err != nil {
		q.log.Debugw("Error closing mail relay connection", "reason", reason, "error", err)
	} else {
		q.log.Debugw("Closed mail relay connection", "reason", reason, "messages", q.sent)
	}
	q.conn = nil
	q.sent = 0
}

// abandonConn closes the connection after a worker panic. The session may
// be in any state, so a panic from Close is swallowed.
func (q *Queue) abandonConn() {
	defer func() {
		if r := recover(); r != nil {
			q.log.Warnw("Panic while closing mail relay connection", "panic", r)
		}
		q.conn = nil
		q.sent = 0
	}()
	q.closeConn("worker panic")
}

// drain fails everything still waiting once shutdown started.
func (q *Queue) drain() {
	for {
		select {
		case j := <-q.jobs:
			metrics.MailQueueDropped.WithLabelValues(q.host).Inc()
			j.result <- ErrQueueClosed
		default:
			return
		}
	}
}

// Stop shuts the worker down and closes the connection. Messages still in
// the backlog fail with ErrQueueClosed.
func (q *Queue) Stop(ctx context.Context) error {
	q.log.Info("Stopping mail relay")
	q.cancel()

	select {
	case <-q.stopped:
		q.log.Info("Mail relay stopped gracefully")
		return nil
	case <-ctx.Done():
		q.log.Warnw("Mail relay shutdown timeout, a delivery may still be in flight")
		return ctx.Err()
	}
}

// Length returns the current number of messages waiting for the worker.
func (q *Queue) Length() int {
	return len(q.jobs)
}

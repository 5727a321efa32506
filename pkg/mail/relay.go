// SPDX-FileCopyrightText: 2025 Deutsche Telekom AG
//
// SPDX-License-Identifier: Apache-2.0

package mail

import (
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/textproto"

	"go.uber.org/zap"
	"gopkg.in/gomail.v2"
	"k8s.io/utils/clock"

	"github.com/telekom/nekomail/pkg/config"
)

var (
	// ErrQueueFull is returned when the relay backlog has no room left.
	ErrQueueFull = errors.New("mail queue is full")
	// ErrQueueClosed is returned for messages submitted during or after shutdown.
	ErrQueueClosed = errors.New("mail queue is shutting down")
)

// Relay delivers a message and blocks until the SMTP server accepted or
// refused it.
type Relay interface {
	Send(msg *Message) error
	Host() string
}

// Dialer opens an authenticated SMTP session. *gomail.Dialer satisfies it.
type Dialer interface {
	Dial() (gomail.SendCloser, error)
}

// ConnectionError reports that the relay could not be reached or dropped
// the session, as opposed to refusing a particular message.
type ConnectionError struct {
	Host string
	Err  error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("smtp relay %s unavailable: %v", e.Host, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// IsUnavailable reports whether err means the relay cannot take mail right
// now (unreachable, dropped connection, or a full or closed backlog).
func IsUnavailable(err error) bool {
	var ce *ConnectionError
	return errors.As(err, &ce) || errors.Is(err, ErrQueueFull) || errors.Is(err, ErrQueueClosed)
}

// isConnectionFailure classifies errors from an established session.
// 421 is the SMTP "service not available, closing channel" reply.
func isConnectionFailure(err error) bool {
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var tpErr *textproto.Error
	if errors.As(err, &tpErr) {
		return tpErr.Code == 421
	}
	return errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, net.ErrClosed)
}

// NewSMTPRelay returns a started Queue talking to the configured server.
// Port 465 uses implicit TLS, other ports upgrade with STARTTLS.
func NewSMTPRelay(cfg config.Mail, log *zap.SugaredLogger) *Queue {
	d := gomail.NewDialer(cfg.Host, cfg.Port, cfg.User, cfg.Password)
	if cfg.InsecureSkipVerify {
		log.Warnw("InsecureSkipVerify is enabled for mail TLS connection", "host", cfg.Host)
		d.TLSConfig = &tls.Config{InsecureSkipVerify: true}
	}

	q := NewQueue(d, cfg.Host, log, QueueConfig{
		Size:               cfg.QueueSize,
		MaxMessagesPerConn: cfg.MaxMessagesPerConn,
		IdleTimeout:        cfg.IdleTimeout,
		Clock:              clock.RealClock{},
	})
	q.Start()
	return q
}

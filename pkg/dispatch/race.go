// SPDX-FileCopyrightText: 2025 Deutsche Telekom AG
//
// SPDX-License-Identifier: Apache-2.0

package dispatch

import (
	"errors"
	"time"

	"k8s.io/utils/clock"
)

// ErrTimeout is returned by Race when op did not finish in time.
var ErrTimeout = errors.New("operation timed out")

// Race runs op in its own goroutine and returns its error, or ErrTimeout if
// timeout elapses first. Losing the race does not stop op; its eventual
// result is discarded.
func Race(clk clock.Clock, timeout time.Duration, op func() error) error {
	done := make(chan error, 1)
	go func() {
		done <- op()
	}()

	timer := clk.NewTimer(timeout)
	defer timer.Stop()

	select {
	case err := <-done:
		return err
	case <-timer.C():
		return ErrTimeout
	}
}

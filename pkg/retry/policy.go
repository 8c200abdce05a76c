// Package retry polls a condition under a bounded, fixed-delay policy.
//
// The firewall accepts an imported certificate before it shows up in the
// candidate configuration, so the orchestrator waits for it to become
// visible before pointing profiles at it.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// ErrNotVisible is reported to OnAttempt when the predicate answered false.
var ErrNotVisible = errors.New("not visible yet")

// Predicate reports whether the awaited object is visible. An error counts
// as a failed attempt, not as a reason to stop.
type Predicate func(ctx context.Context) (bool, error)

// Waiter waits for a predicate to hold. Policy is the default
// implementation; call sites depend on this interface only.
type Waiter interface {
	WaitUntilVisible(ctx context.Context, predicate Predicate) bool
}

// Default policy used after a certificate upload.
const (
	DefaultMaxAttempts = 3
	DefaultDelay       = 2 * time.Second
)

// Policy retries a predicate a fixed number of times with a constant delay
// between attempts.
type Policy struct {
	MaxAttempts int
	Delay       time.Duration

	// OnAttempt, if set, is called after every failed attempt with its
	// 1-based number and the reason it failed.
	OnAttempt func(attempt int, err error)
}

// DefaultPolicy returns 3 attempts with a 2 second delay.
func DefaultPolicy() Policy {
	return Policy{MaxAttempts: DefaultMaxAttempts, Delay: DefaultDelay}
}

// WithObserver returns a copy of p that reports failed attempts to fn.
func (p Policy) WithObserver(fn func(attempt int, err error)) Policy {
	p.OnAttempt = fn
	return p
}

// WaitUntilVisible calls predicate up to MaxAttempts times, sleeping Delay
// between attempts, and returns true on the first success. It returns false
// once attempts are exhausted or ctx is done.
func (p Policy) WaitUntilVisible(ctx context.Context, predicate Predicate) bool {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	delay := p.Delay
	if delay < 0 {
		delay = 0
	}

	attempt := 0
	operation := func() (bool, error) {
		attempt++
		visible, err := call(ctx, predicate)
		if err == nil && visible {
			return true, nil
		}
		if err == nil {
			err = ErrNotVisible
		}
		if p.OnAttempt != nil {
			p.OnAttempt(attempt, err)
		}
		return false, err
	}

	visible, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(backoff.NewConstantBackOff(delay)),
		backoff.WithMaxTries(uint(attempts)),
	)
	return err == nil && visible
}

// call runs predicate, turning a panic into an error for this attempt.
func call(ctx context.Context, predicate Predicate) (visible bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			visible = false
			err = fmt.Errorf("predicate panicked: %v", r)
		}
	}()
	if err := ctx.Err(); err != nil {
		return false, backoff.Permanent(err)
	}
	return predicate(ctx)
}

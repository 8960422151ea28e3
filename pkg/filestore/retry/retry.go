// Package retry repeats remote file store calls that failed.
package retry

import (
	"context"
	"errors"
	"log"
	"time"
)

// Policy tells how many times a call is attempted and how long to wait
// between attempts.
type Policy struct {
	Attempts int
	Backoff  []time.Duration
	Debug    bool
}

// Default returns the policy used by the remote file stores.
func Default(debug bool) *Policy {
	return &Policy{
		Attempts: 3,
		Backoff: []time.Duration{
			15 * time.Second,
			30 * time.Second,
			1 * time.Minute,
		},
		Debug: debug,
	}
}

type permanent struct {
	err error
}

func (p *permanent) Error() string { return p.err.Error() }
func (p *permanent) Unwrap() error { return p.err }

// Permanent marks an error that another attempt won't fix.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanent{err: err}
}

// Do calls fn until it succeeds, returns a permanent error, the attempts run
// out or the context is done.
func (p *Policy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}
	for attempt := 1; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		var perm *permanent
		if errors.As(err, &perm) {
			return perm.err
		}
		if attempt >= attempts {
			return err
		}
		wait := p.wait(attempt)
		if p.Debug {
			log.Printf("%v (retrying in %s)\n", err, wait)
		}
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
}

func (p *Policy) wait(attempt int) time.Duration {
	if len(p.Backoff) == 0 {
		return 0
	}
	idx := attempt - 1
	if idx >= len(p.Backoff) {
		idx = len(p.Backoff) - 1
	}
	return p.Backoff[idx]
}

package transport

import (
	"context"
	"errors"
	"sync"
	"time"
)

var (
	// ErrCancelled is reported by futures abandoned because their transport closed
	ErrCancelled = errors.New("request cancelled")

	// ErrExpired is reported by futures whose response never arrived
	ErrExpired = errors.New("request expired without a response")
)

// Future is the pending outcome of Execute. It resolves exactly once, either
// with a Result or with an error.
type Future struct {
	done   chan struct{}
	once   sync.Once
	result Result
	err    error
}

func newFuture() *Future {
	return &Future{done: make(chan struct{})}
}

// Completed returns a future already resolved with r
func Completed(r Result) *Future {
	f := newFuture()
	f.complete(r)
	return f
}

// Failed returns a future already resolved with err
func Failed(err error) *Future {
	f := newFuture()
	f.fail(err)
	return f
}

func (f *Future) complete(r Result) bool {
	resolved := false
	f.once.Do(func() {
		f.result = r
		close(f.done)
		resolved = true
	})
	return resolved
}

func (f *Future) fail(err error) bool {
	resolved := false
	f.once.Do(func() {
		f.err = err
		close(f.done)
		resolved = true
	})
	return resolved
}

// Done is closed once the future resolves
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Get blocks until the future resolves or ctx ends. Giving up on ctx leaves
// the future itself untouched.
func (f *Future) Get(ctx context.Context) (Result, error) {
	select {
	case <-f.done:
		return f.result, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Wait is Get with a timeout instead of a context
func (f *Future) Wait(timeout time.Duration) (Result, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return f.Get(ctx)
}

// Package async runs blocking work off the caller's goroutine and hands the
// result back over a completion channel.
package async

import (
	"context"
	"fmt"
)

type result[T any] struct {
	val T
	err error
}

// Do runs fn on its own goroutine and waits for either its completion or the
// context. When the context ends first, fn keeps running to completion in the
// background and its result is discarded.
func Do[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	done := make(chan result[T], 1)

	go func() {
		var r result[T]
		defer func() {
			if p := recover(); p != nil {
				r.err = fmt.Errorf("offloaded task panicked: %v", p)
			}
			done <- r
		}()
		r.val, r.err = fn()
	}()

	select {
	case r := <-done:
		return r.val, r.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Run is Do for work that only reports an error.
func Run(ctx context.Context, fn func() error) error {
	_, err := Do(ctx, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

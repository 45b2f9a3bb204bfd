// Package safego provides panic-recovering goroutine launchers for background work.
package safego

import (
	"fmt"
	"log/slog"
	"runtime/debug"
)

// Go launches fn in a new goroutine. If fn panics, the panic is recovered and
// logged with name rather than crashing the process.
func Go(name string, fn func()) {
	go func() {
		_ = Run(name, func() error {
			fn()
			return nil
		})
	}()
}

// Run calls fn on the current goroutine and converts a panic into an error. It is used
// for goroutines that report their result, such as errgroup members.
func Run(name string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("recovered panic in background goroutine", "name", name, "panic", r, "stack", string(debug.Stack()))
			err = fmt.Errorf("%s: panic: %v", name, r)
		}
	}()
	return fn()
}

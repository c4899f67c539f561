package concurrency

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
)

// SafeGo runs fn on its own goroutine. A panic is logged with its stack and
// passed to onPanic, so one bad job cannot take the process down with it.
func SafeGo(ctx context.Context, name string, fn func(), onPanic func(error)) {
	go func() {
		defer func() {
			r := recover()
			if r == nil {
				return
			}
			err, ok := r.(error)
			if !ok {
				err = fmt.Errorf("%v", r)
			}
			slog.ErrorContext(ctx, "Panic recovered", "routine", name, "error", err, "stack", string(debug.Stack()))
			if onPanic != nil {
				onPanic(fmt.Errorf("%s panicked: %w", name, err))
			}
		}()
		fn()
	}()
}

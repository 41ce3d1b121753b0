package loop

import (
	"context"
	"fmt"
	"time"
)

// Next tells Start what to do after a task returns.
type Next struct {
	// if not nil, breaks with error
	err error

	// if quit == true and err == nil, breaks without error
	quit bool

	// otherwise, continue loop with interval.
	interval time.Duration
}

func (n Next) String() string {
	if n.err != nil {
		return fmt.Sprintf("[break] with error: %v", n.err)
	}
	if n.quit {
		return "[break] without error"
	}

	return fmt.Sprintf("[continue] interval: %s", n.interval)
}

// Err returns the error the loop breaks with, if any.
func (n Next) Err() error {
	return n.err
}

// Quit reports whether the loop breaks.
func (n Next) Quit() bool {
	return n.quit || n.err != nil
}

// Interval returns the sleep before the next run. It is meaningless when Quit() is true.
func (n Next) Interval() time.Duration {
	return n.interval
}

// continue loop.
//
// args:
//
// - interval: sleep before starting next task.
func Continue(interval time.Duration) Next {
	return Next{interval: interval}
}

// break loop.
//
// args:
//
// - err: If you break loop with error, set non nil value.
func Break(err error) Next {
	return Next{quit: true, err: err}
}

// Task is one iteration of a loop.
//
// It receives the value returned by the previous iteration (or init at first),
// and returns a new value and what to do next.
type Task[T any] func(context.Context, T) (T, Next)

// Start runs task repeatedly until it breaks or ctx is done.
//
// Zero value of Next equals Continue(0), that is, "go next ASAP!".
//
// # Example
//
// Sweep a table every 30 seconds, and stop at the first inconsistency:
//
//	Start(ctx, 0, func(ctx context.Context, swept int) (int, Next) {
//		n, err := sweep(ctx)
//		if errors.Is(err, domain.ErrInconsistent) {
//			return swept, Break(err)
//		}
//		return swept + n, Continue(30 * time.Second)
//	})
//
// # Args
//
// - ctx : context. When this context get be Done, loop will be break with ctx.Err().
//
// - init : your task will be called as task(ctx, init) at the first time.
//
// - task : task receiving (context, last value), then return (new value, Continue() or Break()).
//
// - options: options for loop.
//
// # Returns
//
// - T: T task returns at last.
// This value is always returned wheather or not it returns non-nil error together.
//
// - error: error in Break(error). It is nil when loop breaks with Break(nil).
func Start[T any](ctx context.Context, init T, task Task[T], options ...LoopOption) (T, error) {
	select {
	case <-ctx.Done():
		return init, ctx.Err()
	default:
	}

	value := init
	for {
		lc := &loopConfig{ctx: ctx}
		for _, opt := range options {
			lc = opt(lc)
		}

		v, n := func() (T, Next) {
			if lc.deferred != nil {
				defer lc.deferred()
			}
			return task(lc.ctx, value)
		}()
		value = v

		if n.err != nil {
			return value, n.err
		} else if n.quit {
			return value, nil
		}

		timer := time.NewTimer(n.interval)
		select {
		case <-ctx.Done():
			// shutting down comes first. check timer later.
			if !timer.Stop() {
				<-timer.C
			}
			return value, ctx.Err()
		case <-timer.C:
		}
	}
}

type loopConfig struct {
	ctx      context.Context
	deferred func()
}

type LoopOption func(*loopConfig) *loopConfig

// set timeout per iteration.
//
// this timeout is set on context.Context passed to task.
func WithTimeout(d time.Duration) LoopOption {
	return func(lc *loopConfig) *loopConfig {
		ctx, cancel := context.WithTimeout(lc.ctx, d)
		return &loopConfig{
			ctx: ctx,
			deferred: func() {
				if lc.deferred != nil {
					defer lc.deferred()
				}
				cancel()
			},
		}
	}
}

package recurring

import (
	"context"

	"github.com/loculus-project/ena-deposition/pkg/loop"
)

// Task is a sweep.
//
// Return:
//
// - T : same as return value T of loop.Task[T]
//
// - bool : true when this sweep moved some rows, so more backlog can be.
// otherwise false.
//
// - error : error of this sweep. Policy decides whether it breaks the loop.
type Task[T any] func(context.Context, T) (T, bool, error)

// a loop.Task which runs rt and consults p with the result.
func (rt Task[T]) Applied(p Policy) loop.Task[T] {
	return func(ctx context.Context, t T) (T, loop.Next) {
		new, ok, err := rt(ctx, t)
		return new, p.Next(ok, err)
	}
}

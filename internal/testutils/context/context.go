package context

import (
	"context"
	"testing"
	"time"
)

// WithTest wraps ctx with the deadline of t.
//
// The deadline is 1 second before the test's deadline, to leave time for clean-up.
// The context is canceled on t's cleanup.
func WithTest(ctx context.Context, t *testing.T) context.Context {
	t.Helper()
	if deadline, ok := t.Deadline(); ok {
		dctx, cancel := context.WithDeadline(ctx, deadline.Add(-time.Second))
		t.Cleanup(cancel)
		return dctx
	}
	cctx, cancel := context.WithCancel(ctx)
	t.Cleanup(cancel)
	return cctx
}

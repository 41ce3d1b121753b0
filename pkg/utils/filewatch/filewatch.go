package filewatch

import (
	"context"
	"errors"
	"fmt"

	"github.com/fsnotify/fsnotify"
)

// ErrModified is the cause of contexts canceled by a file modification.
var ErrModified = errors.New("watched file is modified")

// Modified tells which file is modified, and how.
type Modified struct {
	Path string
	Op   fsnotify.Op
}

func (m Modified) Error() string {
	return fmt.Sprintf("%s: %s (%s)", ErrModified, m.Path, m.Op)
}

func (m Modified) Unwrap() error {
	return ErrModified
}

// UntilModified returns a context that is canceled when one of paths is written, created, removed or renamed.
// Changes of permissions are ignored. Empty paths are skipped.
//
// context.Cause of the returned context is a Modified when a file triggers the cancellation.
//
// If error is not nil, both of the the context and the cancel function are nil.
func UntilModified(ctx context.Context, paths ...string) (context.Context, context.CancelFunc, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, nil, err
	}
	for _, p := range paths {
		if p == "" {
			continue
		}
		if err := w.Add(p); err != nil {
			w.Close()
			return nil, nil, fmt.Errorf("watch %s: %w", p, err)
		}
	}

	cctx, cancel := context.WithCancelCause(ctx)
	go func() {
		defer w.Close()
		for {
			select {
			case <-cctx.Done():
				return
			case event, ok := <-w.Events:
				if !ok {
					return
				}
				if event.Op == fsnotify.Chmod {
					continue
				}
				cancel(Modified{Path: event.Name, Op: event.Op})
				return
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				cancel(fmt.Errorf("watching files: %w", err))
				return
			}
		}
	}()

	return cctx, func() { cancel(context.Canceled) }, nil
}

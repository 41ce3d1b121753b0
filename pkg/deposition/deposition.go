// Package deposition holds what coordinators of project, sample and assembly
// submissions share: compare-and-update transitions and bounded-retry writes.
package deposition

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/labstack/gommon/log"
	"github.com/loculus-project/ena-deposition/pkg/db"
	"github.com/loculus-project/ena-deposition/pkg/domain"
	"github.com/loculus-project/ena-deposition/pkg/metrics"
	"github.com/loculus-project/ena-deposition/pkg/payloads"
	"github.com/loculus-project/ena-deposition/pkg/utils/retry"
)

// Env is what every coordinator needs.
type Env struct {
	Store    db.Store
	Logger   *log.Logger
	Metrics  *metrics.Metrics
	Payloads payloads.Store

	// how many times a write after an archive call is tried.
	WriteAttempts int

	Clock func() time.Time
}

func (e Env) Now() time.Time {
	if e.Clock == nil {
		return time.Now().UTC()
	}
	return e.Clock().UTC()
}

// Log returns the logger of e, or a default one.
func (e Env) Log() *log.Logger {
	if e.Logger == nil {
		return log.New("-")
	}
	return e.Logger
}

// Update is a conditional update of a row. It returns the number of affected rows.
type Update func(ctx context.Context) (int64, error)

// Transition names a compare-and-update for logs and metrics.
type Transition struct {
	Table    string
	Identity string
	From     string
	To       string

	// Kind is set for a child entity. Moves which Kind cannot take are refused.
	Kind domain.Kind

	// Settled reports whether the row has reached To already.
	//
	// Persist asks it when a retried write affects no rows, after a failed attempt.
	// The failed attempt may have been committed.
	Settled func(ctx context.Context) (bool, error)
}

func (t Transition) String() string {
	return fmt.Sprintf("%s %s: %s -> %s", t.Table, t.Identity, t.From, t.To)
}

// allowed returns an Inconsistency when t is a move its Kind cannot take.
func (t Transition) allowed() error {
	if t.Kind == "" {
		return nil
	}
	if t.Kind.CanTransit(domain.Status(t.From), domain.Status(t.To)) {
		return nil
	}
	return domain.Inconsistency{
		Table: t.Table, Identity: t.Identity,
		Reason: fmt.Sprintf("%s cannot move from %s to %s", t.Kind, t.From, t.To),
	}
}

func (e Env) check(t Transition, affected int64) error {
	if 1 < affected {
		return domain.Inconsistency{
			Table: t.Table, Identity: t.Identity,
			Reason: fmt.Sprintf("%d rows are updated by a keyed update", affected),
		}
	}
	return nil
}

// Claim tries a compare-and-update once.
//
// It returns true when the update is applied to exactly one row.
// When no rows are affected, someone else has moved the row (or it has gone).
// That is not an error, and Claim returns false.
func (e Env) Claim(ctx context.Context, t Transition, u Update) (bool, error) {
	if err := t.allowed(); err != nil {
		return false, err
	}
	affected, err := u(ctx)
	if err != nil {
		return false, fmt.Errorf("%s: %w", t, err)
	}
	if err := e.check(t, affected); err != nil {
		return false, err
	}
	if affected == 0 {
		e.Log().Debugf("skip (lost the race): %s", t)
		return false, nil
	}
	e.Metrics.Transition(t.Table, t.From, t.To)
	return true, nil
}

// Persist writes the outcome of an archive call, retrying up to WriteAttempts times.
//
// The archive has already accepted (or refused) something, so losing this write would
// leave a real submission untracked.
// Failures are logged louder for each attempt.
//
// When an attempt fails and a later one affects no rows, the row is read again
// with t.Settled. If it has reached t.To, the write is done.
func (e Env) Persist(ctx context.Context, t Transition, u Update) error {
	if err := t.allowed(); err != nil {
		return err
	}
	logger := e.Log()
	failed := false
	_, err := retry.Bounded(
		ctx, e.WriteAttempts, retry.Immediately,
		func(nth int) (int64, error) {
			affected, err := u(ctx)
			if err == nil && affected == 1 {
				return affected, nil
			}
			if err != nil {
				failed = true
			} else if affected == 0 && failed && t.Settled != nil {
				settled, serr := t.Settled(ctx)
				if serr == nil && settled {
					logger.Infof("written by an earlier attempt: %s", t)
					return 1, nil
				}
				if serr != nil {
					err = fmt.Errorf("no rows affected, and the row is not read: %w", serr)
				}
			}
			if err == nil {
				if ierr := e.check(t, affected); ierr != nil {
					return affected, retry.Permanent(ierr)
				}
				err = fmt.Errorf("%d rows affected", affected)
			}
			if nth == 1 {
				logger.Warnf("write failed (attempt #%d): %s: %s", nth, t, err)
			} else {
				logger.Errorf("write failed (attempt #%d): %s: %s", nth, t, err)
			}
			return affected, err
		},
		func(affected int64) bool { return affected == 1 },
	)
	if errors.Is(err, domain.ErrInconsistent) {
		return err
	}
	if err != nil {
		logger.Errorf("giving up: %s: %s", t, err)
		return fmt.Errorf("%s: %w", t, err)
	}
	e.Metrics.Transition(t.Table, t.From, t.To)
	return nil
}

// SavePayload keeps an audit copy of a document before it is sent.
//
// Failures are logged, and do not stop the submission.
func (e Env) SavePayload(ctx context.Context, table, identity, name string, body []byte, contentType string) {
	if e.Payloads == nil {
		return
	}
	key := payloads.Key(table, identity, e.Now(), name)
	if err := e.Payloads.Put(ctx, key, body, contentType); err != nil {
		e.Log().Errorf("payload %s is not saved: %s", key, err)
	}
}

// Tally counts what loops did. It is the value passed around sweeps.
type Tally struct {
	Sweeps      uint64
	Rows        uint64
	Transitions uint64
}

func (t Tally) Add(rows, transitions int) Tally {
	t.Sweeps += 1
	t.Rows += uint64(rows)
	t.Transitions += uint64(transitions)
	return t
}

// IsFatal tells errors which should stop loops.
func IsFatal(err error) bool {
	return errors.Is(err, domain.ErrInconsistent)
}

// Tolerable tells errors which are expected on shutdown or on a slow sweep.
func Tolerable(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// At returns a check whether a row identified by key has the status.
//
// It is to be Transition.Settled.
func At[R any, S ~string](t db.Table[R], key []db.Cond, status db.Column, to S) func(context.Context) (bool, error) {
	return func(ctx context.Context) (bool, error) {
		rows, err := t.Find(ctx, append(slices.Clone(key), db.Eq(status, to))...)
		if err != nil {
			return false, err
		}
		return len(rows) == 1, nil
	}
}

// Move returns a compare-and-update moving a row identified by key from a status to another.
func Move[R any, S ~string](t db.Table[R], key []db.Cond, status db.Column, from, to S, set ...db.Assign) Update {
	return func(ctx context.Context) (int64, error) {
		where := append(slices.Clone(key), db.Eq(status, from))
		return t.Update(ctx, where, append([]db.Assign{db.Set(status, to)}, set...)...)
	}
}

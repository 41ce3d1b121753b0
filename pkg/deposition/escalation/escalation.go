// Package escalation alerts operators about rows which need a human.
package escalation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/loculus-project/ena-deposition/pkg/db"
	"github.com/loculus-project/ena-deposition/pkg/deposition"
	"github.com/loculus-project/ena-deposition/pkg/domain"
	"github.com/loculus-project/ena-deposition/pkg/loop/recurring"
	"github.com/loculus-project/ena-deposition/pkg/notify"
)

// lines listed in one alert at most.
const maxLines = 20

type Thresholds struct {
	// age of SUBMITTING rows to be escalated, measured from started_at.
	Submitting time.Duration

	// age of WAITING assemblies to be escalated, measured from started_at.
	Waiting time.Duration

	// alerts of the same condition are not sent again within this window.
	Cooldown time.Duration
}

// Escalator finds rows with errors or stuck in a transient status.
//
// An Escalator remembers alerts it has sent, so keep one instance per process.
type Escalator struct {
	env        deposition.Env
	notifier   notify.Notifier
	thresholds Thresholds

	mu   sync.Mutex
	sent map[string]time.Time
}

func New(env deposition.Env, notifier notify.Notifier, thresholds Thresholds) *Escalator {
	if notifier == nil {
		notifier = notify.None{}
	}
	return &Escalator{
		env: env, notifier: notifier, thresholds: thresholds,
		sent: map[string]time.Time{},
	}
}

// initial value for task
func Seed() deposition.Tally {
	return deposition.Tally{}
}

// Task for escalation loop.
//
// Sending an alert is not a progress: the loop always waits for its interval.
func Task(e *Escalator) recurring.Task[deposition.Tally] {
	return func(ctx context.Context, t deposition.Tally) (deposition.Tally, bool, error) {
		rows, sent, err := e.Sweep(ctx)
		return t.Add(rows, sent), false, err
	}
}

// condition is a query for rows needing attention.
type condition struct {
	name  string
	title string
	find  func(ctx context.Context) ([]string, error)
}

// rows returns identities of rows matching where, after Table.Find.
func rows[R any](table db.Table[R], identity func(R) string, where ...db.Cond) func(context.Context) ([]string, error) {
	return func(ctx context.Context) ([]string, error) {
		rs, err := table.Find(ctx, where...)
		if err != nil {
			return nil, err
		}
		ids := make([]string, 0, len(rs))
		for _, r := range rs {
			ids = append(ids, identity(r))
		}
		return ids, nil
	}
}

func (e *Escalator) conditions(now time.Time) []condition {
	s := e.env.Store
	project := func(p domain.ProjectEntity) string {
		return p.ProjectKey.String() + described(p.Errors)
	}
	sample := func(r domain.SampleEntity) string {
		return r.SequenceKey.String() + described(r.Errors)
	}
	assembly := func(r domain.AssemblyEntity) string {
		return r.SequenceKey.String() + described(r.Errors)
	}
	submitting := now.Add(-e.thresholds.Submitting)
	waiting := now.Add(-e.thresholds.Waiting)

	return []condition{
		{
			name:  "project/has_errors",
			title: "Projects have errors",
			find:  rows(s.Projects(), project, db.Eq(db.Project.Status, domain.HasErrors)),
		},
		{
			name:  "project/stuck_submitting",
			title: fmt.Sprintf("Projects are SUBMITTING for more than %s", e.thresholds.Submitting),
			find: rows(
				s.Projects(), project,
				db.Eq(db.Project.Status, domain.Submitting), db.Before(db.Project.StartedAt, submitting),
			),
		},
		{
			name:  "sample/has_errors",
			title: "Samples have errors",
			find:  rows(s.Samples(), sample, db.Eq(db.Sample.Status, domain.HasErrors)),
		},
		{
			name:  "sample/stuck_submitting",
			title: fmt.Sprintf("Samples are SUBMITTING for more than %s", e.thresholds.Submitting),
			find: rows(
				s.Samples(), sample,
				db.Eq(db.Sample.Status, domain.Submitting), db.Before(db.Sample.StartedAt, submitting),
			),
		},
		{
			name:  "assembly/has_errors",
			title: "Assemblies have errors",
			find:  rows(s.Assemblies(), assembly, db.Eq(db.Assembly.Status, domain.HasErrors)),
		},
		{
			name:  "assembly/stuck_submitting",
			title: fmt.Sprintf("Assemblies are SUBMITTING for more than %s", e.thresholds.Submitting),
			find: rows(
				s.Assemblies(), assembly,
				db.Eq(db.Assembly.Status, domain.Submitting), db.Before(db.Assembly.StartedAt, submitting),
			),
		},
		{
			name:  "assembly/stuck_waiting",
			title: fmt.Sprintf("Assemblies are WAITING for more than %s", e.thresholds.Waiting),
			find: rows(
				s.Assemblies(), assembly,
				db.Eq(db.Assembly.Status, domain.Waiting), db.Before(db.Assembly.StartedAt, waiting),
			),
		},
		{
			name:  "submission/ext_metadata_upload",
			title: "External metadata could not be sent back to Loculus",
			find: rows(
				s.Intake(),
				func(e domain.IntakeEntry) string { return e.SequenceKey.String() + described(e.Errors) },
				db.Eq(db.Intake.Status, domain.HasErrorsExtMetadataUpload),
			),
		},
	}
}

func described(errs []string) string {
	if len(errs) == 0 {
		return ""
	}
	return ": " + errs[0]
}

// Sweep evaluates every condition, and sends an alert for each condition with matching rows.
//
// It returns how many rows need attention and how many alerts are sent.
func (e *Escalator) Sweep(ctx context.Context) (int, int, error) {
	now := e.env.Now()
	total, sent := 0, 0
	errs := []error{}
	for _, c := range e.conditions(now) {
		ids, err := c.find(ctx)
		if err != nil {
			return total, sent, err
		}
		if len(ids) == 0 {
			continue
		}
		total += len(ids)

		ok, err := e.alert(ctx, c, ids, now)
		if err != nil {
			e.env.Log().Errorf("alert %s: %s", c.name, err)
			errs = append(errs, err)
			continue
		}
		if ok {
			sent += 1
		}
	}
	return total, sent, errors.Join(errs...)
}

// alert sends an alert of c unless it is in the cooldown window.
func (e *Escalator) alert(ctx context.Context, c condition, ids []string, now time.Time) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if last, ok := e.sent[c.name]; ok && now.Sub(last) < e.thresholds.Cooldown {
		e.env.Metrics.Alert(c.name, false)
		e.env.Log().Debugf("alert %s is suppressed (last sent at %s)", c.name, last.Format(time.RFC3339))
		return false, nil
	}

	lines := ids
	if maxLines < len(ids) {
		lines = append(ids[:maxLines:maxLines], fmt.Sprintf("... and %d more", len(ids)-maxLines))
	}
	a := notify.Alert{
		Condition: c.name,
		Title:     fmt.Sprintf("%s (%d)", c.title, len(ids)),
		Lines:     lines,
		At:        now,
	}
	if err := e.notifier.Notify(ctx, a); err != nil {
		return false, err
	}
	e.sent[c.name] = now
	e.env.Metrics.Alert(c.name, true)
	e.env.Log().Warnf("%s: %d row(s)", a.Title, len(ids))
	return true, nil
}

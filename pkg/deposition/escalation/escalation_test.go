package escalation_test

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/loculus-project/ena-deposition/internal/testutils/store"
	"github.com/loculus-project/ena-deposition/pkg/db"
	"github.com/loculus-project/ena-deposition/pkg/db/sqlite"
	"github.com/loculus-project/ena-deposition/pkg/deposition/escalation"
	"github.com/loculus-project/ena-deposition/pkg/domain"
	"github.com/loculus-project/ena-deposition/pkg/notify"
	notifymocks "github.com/loculus-project/ena-deposition/pkg/notify/mocks"
)

var now = time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)

var thresholds = escalation.Thresholds{
	Submitting: time.Hour,
	Waiting:    24 * time.Hour,
	Cooldown:   30 * time.Minute,
}

func ago(d time.Duration) *time.Time {
	t := now.Add(-d)
	return &t
}

func key(n int) domain.SequenceKey {
	return domain.SequenceKey{Accession: fmt.Sprintf("LOC_%04d", n), Version: 1}
}

func insert[R any](ctx context.Context, t *testing.T, table db.Table[R], rows ...R) {
	t.Helper()
	for _, r := range rows {
		if err := table.Insert(ctx, r); err != nil {
			t.Fatal(err)
		}
	}
}

func conditionsOf(alerts []notify.Alert) []string {
	cs := []string{}
	for _, a := range alerts {
		cs = append(cs, a.Condition)
	}
	slices.Sort(cs)
	return cs
}

func accepting() *notifymocks.Notifier {
	n := notifymocks.NewNotifier()
	n.Impl.Notify = func(context.Context, notify.Alert) error { return nil }
	return n
}

func TestSweep(t *testing.T) {
	type When struct {
		given func(ctx context.Context, t *testing.T, s *sqlite.Store)
	}
	type Then struct {
		conditions []string
		rows       int
	}

	theory := func(when When, then Then) func(*testing.T) {
		return func(t *testing.T) {
			ctx := context.Background()
			s := store.SQLite(ctx, t)
			when.given(ctx, t, s)

			notifier := accepting()
			testee := escalation.New(store.Env(t, s, now), notifier, thresholds)
			rows, sent, err := testee.Sweep(ctx)
			if err != nil {
				t.Fatal(err)
			}
			if rows != then.rows {
				t.Errorf("rows: actual=%d, expect=%d", rows, then.rows)
			}
			if sent != len(then.conditions) {
				t.Errorf("sent: actual=%d, expect=%d", sent, len(then.conditions))
			}
			if actual := conditionsOf(notifier.Calls.Notify); !slices.Equal(actual, then.conditions) {
				t.Errorf("conditions: actual=%v, expect=%v", actual, then.conditions)
			}
		}
	}

	t.Run("nothing to escalate", theory(
		When{
			given: func(ctx context.Context, t *testing.T, s *sqlite.Store) {
				insert(ctx, t, s.Samples(),
					domain.SampleEntity{SequenceKey: key(1), Status: domain.Submitted},
					// young enough
					domain.SampleEntity{SequenceKey: key(2), Status: domain.Submitting, StartedAt: ago(59 * time.Minute)},
				)
				insert(ctx, t, s.Assemblies(),
					domain.AssemblyEntity{SequenceKey: key(1), Status: domain.Waiting, StartedAt: ago(23 * time.Hour)},
				)
			},
		},
		Then{conditions: []string{}, rows: 0},
	))

	t.Run("errors and stuck rows", theory(
		When{
			given: func(ctx context.Context, t *testing.T, s *sqlite.Store) {
				insert(ctx, t, s.Projects(),
					domain.ProjectEntity{
						ProjectKey: domain.ProjectKey{GroupID: 7, Organism: "ebola-zaire"},
						Status:     domain.HasErrors, Errors: []string{"rejected"},
					},
				)
				insert(ctx, t, s.Samples(),
					domain.SampleEntity{SequenceKey: key(1), Status: domain.Submitting, StartedAt: ago(2 * time.Hour)},
					domain.SampleEntity{SequenceKey: key(2), Status: domain.Submitting, StartedAt: ago(3 * time.Hour)},
				)
				insert(ctx, t, s.Assemblies(),
					domain.AssemblyEntity{SequenceKey: key(1), Status: domain.Waiting, StartedAt: ago(25 * time.Hour)},
					// stuck for a SUBMITTING row, but not for a WAITING one.
					domain.AssemblyEntity{SequenceKey: key(2), Status: domain.Waiting, StartedAt: ago(2 * time.Hour)},
				)
				insert(ctx, t, s.Intake(),
					domain.IntakeEntry{
						SequenceKey: key(3), Organism: "ebola-zaire", GroupID: 7,
						Status:    domain.HasErrorsExtMetadataUpload,
						StartedAt: now.Add(-time.Hour),
					},
				)
			},
		},
		Then{
			conditions: []string{
				"assembly/stuck_waiting",
				"project/has_errors",
				"sample/stuck_submitting",
				"submission/ext_metadata_upload",
			},
			rows: 5,
		},
	))
}

func TestSweep_Debounce(t *testing.T) {
	ctx := context.Background()
	s := store.SQLite(ctx, t)
	insert(ctx, t, s.Samples(),
		domain.SampleEntity{SequenceKey: key(1), Status: domain.HasErrors, Errors: []string{"invalid"}},
	)

	notifier := accepting()
	clock := now
	env := store.Env(t, s, now)
	env.Clock = func() time.Time { return clock }
	testee := escalation.New(env, notifier, thresholds)

	for _, step := range []struct {
		after time.Duration
		sent  int
	}{
		{after: 0, sent: 1},
		{after: time.Minute, sent: 0},
		{after: 28 * time.Minute, sent: 0},
		{after: 1 * time.Minute, sent: 1}, // 30 minutes since the first alert
		{after: 10 * time.Minute, sent: 0},
	} {
		clock = clock.Add(step.after)
		_, sent, err := testee.Sweep(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if sent != step.sent {
			t.Errorf("at %s: sent=%d, expect=%d", clock.Sub(now), sent, step.sent)
		}
	}
	if len(notifier.Calls.Notify) != 2 {
		t.Errorf("alerts: %d", len(notifier.Calls.Notify))
	}

	a := notifier.Calls.Notify[0]
	if a.Condition != "sample/has_errors" || !a.At.Equal(now) {
		t.Errorf("alert: %+v", a)
	}
	if !slices.Equal(a.Lines, []string{"LOC_0001.1: invalid"}) {
		t.Errorf("lines: %v", a.Lines)
	}
}

func TestSweep_FailedAlertIsRetried(t *testing.T) {
	ctx := context.Background()
	s := store.SQLite(ctx, t)
	insert(ctx, t, s.Projects(),
		domain.ProjectEntity{
			ProjectKey: domain.ProjectKey{GroupID: 7, Organism: "ebola-zaire"},
			Status:     domain.HasErrors,
		},
	)

	cause := errors.New("webhook is down")
	notifier := notifymocks.NewNotifier()
	notifier.Impl.Notify = func(context.Context, notify.Alert) error { return cause }

	testee := escalation.New(store.Env(t, s, now), notifier, thresholds)
	if _, sent, err := testee.Sweep(ctx); !errors.Is(err, cause) || sent != 0 {
		t.Fatalf("unexpected result: sent=%d, err=%v", sent, err)
	}

	// undelivered alerts are not debounced.
	notifier.Impl.Notify = func(context.Context, notify.Alert) error { return nil }
	if _, sent, err := testee.Sweep(ctx); err != nil || sent != 1 {
		t.Errorf("unexpected result: sent=%d, err=%v", sent, err)
	}
}

func TestSweep_ManyRowsAreTruncated(t *testing.T) {
	ctx := context.Background()
	s := store.SQLite(ctx, t)
	for n := range 25 {
		insert(ctx, t, s.Assemblies(),
			domain.AssemblyEntity{SequenceKey: key(n), Status: domain.HasErrors},
		)
	}

	notifier := accepting()
	rows, _, err := escalation.New(store.Env(t, s, now), notifier, thresholds).Sweep(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if rows != 25 {
		t.Errorf("rows: %d", rows)
	}
	a := notifier.Calls.Notify[0]
	if len(a.Lines) != 21 || a.Lines[20] != "... and 5 more" {
		t.Errorf("lines: %v", a.Lines)
	}
	if !strings.HasSuffix(a.Title, "(25)") {
		t.Errorf("title: %s", a.Title)
	}
}

package recurring_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/loculus-project/ena-deposition/pkg/domain"
	"github.com/loculus-project/ena-deposition/pkg/loop"
	"github.com/loculus-project/ena-deposition/pkg/loop/recurring"
)

func TestParsePolicy(t *testing.T) {
	for name, testcase := range map[string]struct {
		when        string
		then        recurring.Policy
		expectError bool
	}{
		"forever means forever": {
			when: "forever",
			then: recurring.Forever(0),
		},
		"forever:30s means forever with cooldown 30 seconds": {
			when: "forever:30s",
			then: recurring.Forever(30 * time.Second),
		},
		"forever:someday can not be parsed (someday is not time.Duration)": {
			when:        "forever:someday",
			expectError: true,
		},
		"forever:-1s can not be parsed (negative cooldown)": {
			when:        "forever:-1s",
			expectError: true,
		},
		"backlog means backlog": {
			when: "backlog",
			then: recurring.Backlog(),
		},
		"backlog:param can not be parsed (it should not take any parameters)": {
			when:        "backlog:param",
			expectError: true,
		},
		"empty string can not be parsed (it is not policy)": {
			when:        "",
			expectError: true,
		},
	} {
		t.Run(name, func(t *testing.T) {
			actual, err := recurring.ParsePolicy(testcase.when)

			if testcase.expectError {
				if err == nil {
					t.Fatal("expected error does not occured")
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if actual != testcase.then {
				t.Errorf("unexpected policy: (actual, expected) = (%s, %s)", actual, testcase.then)
			}
		})
	}
}

func TestPolicy_Next(t *testing.T) {
	fatal := recurring.UntilFatal(recurring.Forever(time.Minute), func(err error) bool {
		return errors.Is(err, domain.ErrInconsistent)
	})

	for name, testcase := range map[string]struct {
		policy       recurring.Policy
		updated      bool
		err          error
		thenQuit     bool
		thenErr      error
		thenInterval time.Duration
	}{
		"forever restarts immediately when updated": {
			policy: recurring.Forever(time.Minute), updated: true,
		},
		"forever waits cooldown when nothing updated": {
			policy: recurring.Forever(time.Minute), thenInterval: time.Minute,
		},
		"forever waits cooldown on error": {
			policy: recurring.Forever(time.Minute), updated: true, err: errors.New("fake"),
			thenInterval: time.Minute,
		},
		"backlog breaks when nothing updated": {
			policy: recurring.Backlog(), thenQuit: true,
		},
		"until error breaks with error": {
			policy: recurring.UntilError(recurring.Backlog()), updated: true, err: context.DeadlineExceeded,
			thenQuit: true, thenErr: context.DeadlineExceeded,
		},
		"until fatal breaks with fatal error": {
			policy: fatal, err: domain.ErrInconsistent,
			thenQuit: true, thenErr: domain.ErrInconsistent,
		},
		"until fatal continues with non-fatal error": {
			policy: fatal, err: errors.New("transient"),
			thenInterval: time.Minute,
		},
	} {
		t.Run(name, func(t *testing.T) {
			next := testcase.policy.Next(testcase.updated, testcase.err)
			if next.Quit() != testcase.thenQuit {
				t.Fatalf("unexpected next: %s", next)
			}
			if !errors.Is(next.Err(), testcase.thenErr) {
				t.Errorf("unexpected error: %v", next.Err())
			}
			if !testcase.thenQuit && next.Interval() != testcase.thenInterval {
				t.Errorf("unexpected interval: %s", next)
			}
		})
	}
}

func TestTask_Applied(t *testing.T) {
	ctx := context.Background()
	calls := 0
	task := recurring.Task[int](func(_ context.Context, v int) (int, bool, error) {
		calls += 1
		return v + 1, v+1 < 3, nil
	})

	actual, err := loop.Start(ctx, 0, task.Applied(recurring.Backlog()))
	if err != nil {
		t.Fatal(err)
	}
	if actual != 3 || calls != 3 {
		t.Errorf("unexpected result: (value, calls) = (%d, %d)", actual, calls)
	}
}

package recurring

import (
	"fmt"
	"strings"
	"time"

	"github.com/loculus-project/ena-deposition/pkg/loop"
)

// ParsePolicy parses policy notations.
//
//   - "forever" or "forever:COOLDOWN": keep sweeping, sleeping COOLDOWN when nothing happened.
//   - "backlog": keep sweeping while something happens, then stop.
func ParsePolicy(s string) (Policy, error) {
	typ, param, ok := strings.Cut(s, ":")
	switch typ {
	case "forever":
		if !ok || param == "" {
			return Forever(0), nil
		}

		period, err := time.ParseDuration(param)
		if err != nil {
			return nil, fmt.Errorf(`failed to parse: %s as "forever:COOLDOWN": %w`, s, err)
		}
		if period < 0 {
			return nil, fmt.Errorf("cooldown should not be negative: %s", s)
		}
		return Forever(period), nil
	case "backlog":
		if ok {
			return nil, fmt.Errorf("backlog policy does not take paramters: %s", s)
		}
		return Backlog(), nil
	}
	return nil, fmt.Errorf("unknown policy name: %s (should be one of -- forever|backlog)", typ)
}

// Policy decides how a sweep loop goes on.
type Policy interface {
	Next(updated bool, err error) loop.Next
	String() string
}

// Restart immediately while there are things to do.
// Otherwise, restart after interval.
//
// Errors do not stop the loop. They are treated as "nothing done".
func Forever(intervalWaitingBacklog time.Duration) Policy {
	return forever(intervalWaitingBacklog)
}

type forever time.Duration

func (f forever) String() string {
	return fmt.Sprintf("forever:%s", time.Duration(f).String())
}

func (f forever) Next(updated bool, err error) loop.Next {
	if updated && err == nil {
		return loop.Continue(0)
	}
	return loop.Continue(time.Duration(f))
}

// Restart immediately while there are things to do.
// Otherwise, Break(nil).
func Backlog() Policy {
	return backlog
}

type backlogPolicy struct{}

func (backlogPolicy) String() string {
	return "backlog"
}

func (backlogPolicy) Next(updated bool, err error) loop.Next {
	if updated && err == nil {
		return loop.Continue(0)
	}
	return loop.Break(nil)
}

var backlog = backlogPolicy{}

// add a provisory clause: In case of error, Break with that error.
func UntilError(p Policy) Policy {
	return UntilFatal(p, func(error) bool { return true })
}

// add a provisory clause: In case of error which isFatal, Break with that error.
//
// Other errors are passed to the base policy.
func UntilFatal(p Policy, isFatal func(error) bool) Policy {
	return untilFatal{base: p, isFatal: isFatal}
}

type untilFatal struct {
	base    Policy
	isFatal func(error) bool
}

func (u untilFatal) String() string {
	return fmt.Sprintf("%s (until fatal error)", u.base.String())
}

func (u untilFatal) Next(updated bool, err error) loop.Next {
	if err != nil && u.isFatal(err) {
		return loop.Break(err)
	}
	return u.base.Next(updated, err)
}

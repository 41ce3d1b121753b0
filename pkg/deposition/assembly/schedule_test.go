package assembly_test

import (
	"testing"
	"time"

	"github.com/loculus-project/ena-deposition/pkg/deposition/assembly"
)

func TestSchedule(t *testing.T) {
	t.Run("non-positive interval is always due", func(t *testing.T) {
		testee := assembly.NewSchedule(0, func() time.Time { return now })
		for range 3 {
			if !testee.Due() {
				t.Error("not due")
			}
		}
	})

	t.Run("the first check is due, and the next is after the interval", func(t *testing.T) {
		clock := now
		testee := assembly.NewSchedule(time.Minute, func() time.Time { return clock })
		if !testee.Due() {
			t.Error("first: not due")
		}
		if testee.Due() {
			t.Error("second (at the same time): due")
		}
		clock = clock.Add(61 * time.Second)
		if !testee.Due() {
			t.Error("after the interval: not due")
		}
	})
}

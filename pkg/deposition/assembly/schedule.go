package assembly

import (
	"time"

	"golang.org/x/time/rate"
)

// Schedule limits how often WAITING assemblies are polled.
//
// It is shared by the whole batch: once due, every WAITING row is polled, and
// the next batch waits for the interval.
type Schedule struct {
	limiter *rate.Limiter
	clock   func() time.Time
}

// NewSchedule returns a schedule which is due at most once per interval.
//
// The first check is due immediately. A non-positive interval is always due.
func NewSchedule(interval time.Duration, clock func() time.Time) *Schedule {
	if clock == nil {
		clock = time.Now
	}
	limit := rate.Inf
	if 0 < interval {
		limit = rate.Every(interval)
	}
	return &Schedule{limiter: rate.NewLimiter(limit, 1), clock: clock}
}

// Due reports that polling can happen now. When it returns true, the next one is scheduled.
func (s *Schedule) Due() bool {
	return s.limiter.AllowN(s.clock(), 1)
}

package anchor

import (
	"sync"
	"time"
)

const (
	refreshFloor        = time.Hour
	retryCeiling        = 24 * time.Hour
	refreshSuccessFloor = 15 * 24 * time.Hour
)

// Scheduler owns the single pending refresh timer. Exactly one refresh is
// armed at any time; arming again replaces the previous plan and Cancel
// drops it entirely, so configuration changes can never leave two refresh
// cycles racing each other.
type Scheduler struct {
	mutex sync.Mutex
	timer *time.Timer
}

func NewScheduler() *Scheduler {
	return &Scheduler{}
}

// Arm schedules fn after delay, replacing any pending schedule.
func (s *Scheduler) Arm(delay time.Duration, fn func()) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(delay, fn)
}

// Cancel drops the pending schedule, if any.
func (s *Scheduler) Cancel() {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

// nextInterval computes when the root keys should be queried again. After
// a failed query the retry comes sooner: within a day or a tenth of the
// shortest key TTL. After a success the next check waits at least fifteen
// days or half the shortest TTL. Either way the interval never drops
// under an hour.
func nextInterval(minTTL time.Duration, failed bool) time.Duration {
	var interval time.Duration
	if failed {
		interval = retryCeiling
		if candidate := minTTL / 10; candidate < interval {
			interval = candidate
		}
	} else {
		interval = refreshSuccessFloor
		if candidate := minTTL / 2; candidate > interval {
			interval = candidate
		}
	}
	if interval < refreshFloor {
		interval = refreshFloor
	}
	return interval
}

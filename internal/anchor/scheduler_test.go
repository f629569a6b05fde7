package anchor

import (
	"testing"
	"time"
)

func TestNextInterval(t *testing.T) {
	day := 24 * time.Hour
	tests := []struct {
		name   string
		minTTL time.Duration
		failed bool
		want   time.Duration
	}{
		{"failure with no keys", 0, true, time.Hour},
		{"failure with short ttl", 5 * time.Hour, true, time.Hour},
		{"failure with medium ttl", 100 * time.Hour, true, 10 * time.Hour},
		{"failure capped at a day", 30 * day, true, day},
		{"success with no keys", 0, false, 15 * day},
		{"success with typical root ttl", 48 * time.Hour, false, 15 * day},
		{"success with very long ttl", 40 * day, false, 20 * day},
	}
	for _, test := range tests {
		if got := nextInterval(test.minTTL, test.failed); got != test.want {
			t.Errorf("%s: nextInterval(%v, %v) = %v, want %v",
				test.name, test.minTTL, test.failed, got, test.want)
		}
	}
}

func TestSchedulerArmReplacesPending(t *testing.T) {
	s := NewScheduler()
	defer s.Cancel()

	fired := make(chan int, 2)
	s.Arm(time.Hour, func() { fired <- 1 })
	s.Arm(10*time.Millisecond, func() { fired <- 2 })

	select {
	case got := <-fired:
		if got != 2 {
			t.Fatalf("expected the replacement schedule to fire, got %d", got)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("armed schedule never fired")
	}
	select {
	case got := <-fired:
		t.Fatalf("replaced schedule must not fire, got %d", got)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSchedulerCancel(t *testing.T) {
	s := NewScheduler()

	fired := make(chan struct{}, 1)
	s.Arm(10*time.Millisecond, func() { fired <- struct{}{} })
	s.Cancel()

	select {
	case <-fired:
		t.Fatalf("cancelled schedule must not fire")
	case <-time.After(100 * time.Millisecond):
	}

	// Cancel of an idle scheduler is a no-op.
	s.Cancel()
}

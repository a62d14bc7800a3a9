package session

import "time"

// Clock provides time operations that can be mocked for testing.
type Clock interface {
	Now() time.Time
	Since(t time.Time) time.Duration
}

// RealClock uses the standard time package.
type RealClock struct{}

func (RealClock) Now() time.Time                  { return time.Now() }
func (RealClock) Since(t time.Time) time.Duration { return time.Since(t) }

// FakeClock is a test clock that can be manually advanced.
type FakeClock struct {
	current time.Time
}

func NewFakeClock(start time.Time) *FakeClock {
	return &FakeClock{current: start}
}

func (f *FakeClock) Now() time.Time                  { return f.current }
func (f *FakeClock) Since(t time.Time) time.Duration { return f.current.Sub(t) }
func (f *FakeClock) Advance(d time.Duration)         { f.current = f.current.Add(d) }

// Schedule derives elapsed time, remaining time and tick deadlines from the
// session's start instant. Deadlines are anchored to the start
// (start + k×interval), so polling latency never accumulates into drift.
// time.Now carries a monotonic reading, which Sub and Since use for the
// arithmetic here; the wall-clock component is only for sample timestamps.
type Schedule struct {
	clock    Clock
	start    time.Time
	interval time.Duration
	duration time.Duration
}

func NewSchedule(clock Clock, interval, duration time.Duration) *Schedule {
	return &Schedule{
		clock:    clock,
		start:    clock.Now(),
		interval: interval,
		duration: duration,
	}
}

func (s *Schedule) Start() time.Time {
	return s.start
}

func (s *Schedule) Elapsed() time.Duration {
	return s.clock.Since(s.start)
}

// Remaining returns the time left in the session, floored at zero.
func (s *Schedule) Remaining() time.Duration {
	remaining := s.duration - s.Elapsed()
	if remaining < 0 {
		return 0
	}

	return remaining
}

// Percent returns elapsed/duration as a percentage clamped to [0,100].
func (s *Schedule) Percent() float64 {
	percent := float64(s.Elapsed()) / float64(s.duration) * 100
	if percent < 0 {
		return 0
	}
	if percent > 100 {
		return 100
	}

	return percent
}

// Deadline returns the scheduled instant of the given tick.
func (s *Schedule) Deadline(tick int) time.Time {
	return s.start.Add(time.Duration(tick) * s.interval)
}

// TickDue reports whether the given tick falls inside the session window.
// Tick k is taken iff (k+1)×interval ≤ duration, so a session records
// floor(duration/interval) samples and a duration shorter than one interval
// records none (the output file then carries only the header row).
func (s *Schedule) TickDue(tick int) bool {
	return time.Duration(tick+1)*s.interval <= s.duration
}

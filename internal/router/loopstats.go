package router

import "time"

// LoopStats tracks the main loop's iteration-duration bookkeeping from
// spec §4.8 phase 8: global min/avg/max plus the same statistics over a
// rolling 20s window, and the consecutive-overflow counter that gates
// the CPU_LOOP_OVERLOAD alarm. Grounded on the teacher's audio_stats.go
// rolling sample-rate/error-count reporting shape (accumulate into a
// window, summarize and reset once the window elapses).
type LoopStats struct {
	MaxLoopTimeMS float64

	globalMin, globalMax, globalSum float64
	globalCount                     uint64

	windowStart              time.Time
	windowMin, windowMax, windowSum float64
	windowCount              uint64
	WindowDuration           time.Duration

	consecutiveOverflows int
	lastFlagsChange      time.Time
	now                  func() time.Time
}

// NewLoopStats creates a tracker with the given overflow threshold
// (spec's MAX_LOOP_TIME_MS) and reporting window (spec: "sliding 20 s
// window").
func NewLoopStats(maxLoopTimeMS float64, window time.Duration) *LoopStats {
	return &LoopStats{
		MaxLoopTimeMS:  maxLoopTimeMS,
		WindowDuration: window,
		globalMin:      -1,
		windowMin:      -1,
		now:            time.Now,
	}
}

// SetClock overrides the time source for deterministic tests.
func (s *LoopStats) SetClock(now func() time.Time) { s.now = now }

// NoteRadioFlagsChanged records that radio flags just changed, so a
// transient overrun in the next few seconds doesn't trigger an alarm
// (spec §4.8 phase 8: "provided at least 5s have passed since the last
// radio-flags change").
func (s *LoopStats) NoteRadioFlagsChanged() {
	s.lastFlagsChange = s.now()
}

// Observe records one iteration's duration and reports whether this
// iteration crossed the overload-alarm threshold: either a single
// iteration of at least 500ms (spec §7/§8, unconditional), or 5
// consecutive overflows with at least 5s since the last radio-flags
// change.
func (s *LoopStats) Observe(d time.Duration) (shouldAlarm bool) {
	ms := float64(d.Microseconds()) / 1000.0
	now := s.now()

	s.accumulate(ms, now)

	if d >= 500*time.Millisecond {
		s.consecutiveOverflows = 0
		return true
	}

	if ms > s.MaxLoopTimeMS {
		s.consecutiveOverflows++
	} else {
		s.consecutiveOverflows = 0
	}

	if s.consecutiveOverflows >= 5 {
		quietEnough := s.lastFlagsChange.IsZero() || now.Sub(s.lastFlagsChange) >= 5*time.Second
		if quietEnough {
			s.consecutiveOverflows = 0
			return true
		}
	}
	return false
}

func (s *LoopStats) accumulate(ms float64, now time.Time) {
	if s.globalMin < 0 || ms < s.globalMin {
		s.globalMin = ms
	}
	if ms > s.globalMax {
		s.globalMax = ms
	}
	s.globalSum += ms
	s.globalCount++

	if s.windowStart.IsZero() {
		s.windowStart = now
	}
	if now.Sub(s.windowStart) >= s.WindowDuration {
		s.windowStart = now
		s.windowMin = -1
		s.windowMax = 0
		s.windowSum = 0
		s.windowCount = 0
	}
	if s.windowMin < 0 || ms < s.windowMin {
		s.windowMin = ms
	}
	if ms > s.windowMax {
		s.windowMax = ms
	}
	s.windowSum += ms
	s.windowCount++
}

// Global returns the all-time min/avg/max iteration duration in ms.
func (s *LoopStats) Global() (min, avg, max float64) {
	if s.globalCount == 0 {
		return 0, 0, 0
	}
	return s.globalMin, s.globalSum / float64(s.globalCount), s.globalMax
}

// Window returns the current rolling-window min/avg/max iteration
// duration in ms.
func (s *LoopStats) Window() (min, avg, max float64) {
	if s.windowCount == 0 {
		return 0, 0, 0
	}
	return s.windowMin, s.windowSum / float64(s.windowCount), s.windowMax
}

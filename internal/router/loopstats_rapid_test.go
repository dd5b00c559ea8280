package router

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

// TestLoopStatsMinAvgMaxOrderingProperty checks the invariant that must
// hold after any sequence of Observe calls: min <= avg <= max, for both
// the all-time and rolling-window summaries (spec §4.8 phase 8). Modeled
// on the teacher's fx25_send_test.go use of rapid.Check over arbitrary
// input slices.
func TestLoopStatsMinAvgMaxOrderingProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		s := NewLoopStats(1.0, time.Hour)
		clock := time.Unix(0, 0)
		s.SetClock(func() time.Time { return clock })

		durationsMS := rapid.SliceOfN(rapid.Float64Range(0, 5000), 1, 50).Draw(t, "durationsMS")
		for _, ms := range durationsMS {
			s.Observe(time.Duration(ms * float64(time.Millisecond)))
		}

		gmin, gavg, gmax := s.Global()
		assert.LessOrEqual(t, gmin, gavg)
		assert.LessOrEqual(t, gavg, gmax)

		wmin, wavg, wmax := s.Window()
		assert.LessOrEqual(t, wmin, wavg)
		assert.LessOrEqual(t, wavg, wmax)
	})
}

// TestLoopStatsOverloadAlarmRequiresFiveConsecutiveOverflowsProperty
// checks the overload-alarm threshold invariant (spec §4.8 phase 8):
// Observe can only report shouldAlarm=true on the 5th overflow of an
// unbroken run, and every alarm resets the run so the next one needs
// another 5 consecutive overflows from scratch.
func TestLoopStatsOverloadAlarmRequiresFiveConsecutiveOverflowsProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		const maxMS = 1.0
		s := NewLoopStats(maxMS, time.Hour)
		clock := time.Unix(0, 0)
		s.SetClock(func() time.Time { return clock })

		overflowRun := rapid.IntRange(0, 12).Draw(t, "overflowRun")
		sawAlarm := false
		for i := 0; i < overflowRun; i++ {
			alarmed := s.Observe(10 * time.Millisecond) // always above maxMS
			if alarmed {
				sawAlarm = true
				assert.Equal(t, 4, i%5, "alarm must only fire on the 5th overflow of a run, got run position %d", i)
			}
		}
		if overflowRun >= 5 {
			assert.True(t, sawAlarm, "5+ consecutive overflows with no quiet-period restriction must eventually alarm")
		} else {
			assert.False(t, sawAlarm, "fewer than 5 consecutive overflows must never alarm")
		}

		// A single in-threshold observation must reset the run so a
		// subsequent overflow run must again accumulate 5 before alarming.
		alarmed := s.Observe(time.Duration(maxMS*0.5 * float64(time.Millisecond)))
		assert.False(t, alarmed)
		for i := 0; i < 4; i++ {
			assert.False(t, s.Observe(10*time.Millisecond), "must not re-alarm before another 5 consecutive overflows")
		}
	})
}

// TestLoopStatsSingleLongStallAlarmsImmediatelyProperty checks the other
// half of the overload-alarm threshold invariant (spec §7/§8): a single
// iteration of at least 500ms alarms on the spot, with no 5-consecutive
// or quiet-period requirement, and resets the overflow run.
func TestLoopStatsSingleLongStallAlarmsImmediatelyProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		const maxMS = 1.0
		s := NewLoopStats(maxMS, time.Hour)
		clock := time.Unix(0, 0)
		s.SetClock(func() time.Time { return clock })
		s.NoteRadioFlagsChanged() // quiet-period gate must not matter here

		leadingOverflows := rapid.IntRange(0, 3).Draw(t, "leadingOverflows")
		for i := 0; i < leadingOverflows; i++ {
			assert.False(t, s.Observe(10*time.Millisecond), "fewer than 5 overflows must never alarm on their own")
		}

		stallMS := rapid.Float64Range(500, 5000).Draw(t, "stallMS")
		alarmed := s.Observe(time.Duration(stallMS * float64(time.Millisecond)))
		assert.True(t, alarmed, "a single >=500ms iteration must alarm immediately regardless of quiet period or run length")

		for i := 0; i < 4; i++ {
			assert.False(t, s.Observe(10*time.Millisecond), "the stall must reset the overflow run")
		}
	})
}

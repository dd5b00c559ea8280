// Package siklifecycle implements the SiK radio lifecycle state machine
// from spec §4.5: idle -> reconfigureOne(i) / reinitAll -> idle, serializing
// "close -> reconfigure-or-probe -> reopen" for SiK radios without
// disturbing WiFi interfaces. Driven by the main loop's periodic tick,
// the way the teacher's xmit_thread is driven by repeated polling rather
// than pure interrupts.
package siklifecycle

import "time"

// State names the phase of the lifecycle machine.
type State int

const (
	StateIdle State = iota
	StateReconfigureOne
	StateReinitAll
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateReconfigureOne:
		return "reconfigure_one"
	case StateReinitAll:
		return "reinit_all"
	default:
		return "unknown"
	}
}

// EscalateFunc is called when two consecutive SiK operations fail on an
// interface while in StateReinitAll; the caller is expected to trigger a
// full radio reinitializer (spec §4.6).
type EscalateFunc func(brokenInterface int)

// Machine holds the SiKState variables from spec §3 and drives the
// transitions from spec §4.5. It is owned by the main thread; the Rx
// thread never touches it. The router reads the Rx thread's broken flags
// in its housekeeping health check and calls FlagReinitSik (spec §5).
type Machine struct {
	mustReinitAll     bool
	reconfigureIndex  int // -1 = none
	reopenPending     map[int]bool
	brokenInterface   int
	retryCount        map[int]int
	nextCheck         time.Time

	escalate EscalateFunc
}

// New creates an idle machine. escalate is invoked when reinitAll itself
// fails twice on the same interface (escalation to full radio reinit).
func New(escalate EscalateFunc) *Machine {
	return &Machine{
		reconfigureIndex: -1,
		reopenPending:    make(map[int]bool),
		retryCount:       make(map[int]int),
		escalate:         escalate,
	}
}

// State reports the current machine state.
func (m *Machine) State() State {
	switch {
	case m.mustReinitAll:
		return StateReinitAll
	case m.reconfigureIndex >= 0 || len(m.reopenPending) > 0:
		return StateReconfigureOne
	default:
		return StateIdle
	}
}

// ReconfigureIndex returns the single interface targeted by
// StateReconfigureOne, or -1 when not in that state or when every SiK
// interface is being reconfigured.
func (m *Machine) ReconfigureIndex() int { return m.reconfigureIndex }

// BrokenInterface returns the interface index that triggered StateReinitAll.
func (m *Machine) BrokenInterface() int { return m.brokenInterface }

// ReopenPending reports whether interface i is still awaiting reopen.
func (m *Machine) ReopenPending(i int) bool { return m.reopenPending[i] }

// FlagUpdateSik transitions idle -> reconfigureOne(i) (spec §4.5). If
// reinitAll is already in flight, it supersedes and this call is ignored
// (testable property: "reinit_all" wins within one tick, spec §8).
func (m *Machine) FlagUpdateSik(i int, sikInterfaces []int) {
	if m.mustReinitAll {
		return
	}
	m.reconfigureIndex = i
	m.reopenPending = make(map[int]bool)
	if i >= 0 {
		m.reopenPending[i] = true
	} else {
		for _, idx := range sikInterfaces {
			m.reopenPending[idx] = true
		}
	}
	m.nextCheck = time.Now().Add(500 * time.Millisecond)
}

// FlagReinitSik transitions any state to reinitAll (spec §4.5); it
// supersedes a pending reconfigureOne.
func (m *Machine) FlagReinitSik(brokenIndex int, sikInterfaces []int) {
	m.brokenInterface = brokenIndex
	m.reconfigureIndex = -1
	m.mustReinitAll = true
	m.reopenPending = make(map[int]bool)
	for _, idx := range sikInterfaces {
		m.reopenPending[idx] = true
	}
}

// MarkReopened clears interface i's reopen-pending bit after it has been
// reopened and reconfigured with the current model params. When all
// pending interfaces clear, the machine returns to idle.
func (m *Machine) MarkReopened(i int) {
	delete(m.reopenPending, i)
	delete(m.retryCount, i)
	if len(m.reopenPending) == 0 {
		m.reconfigureIndex = -1
		m.mustReinitAll = false
	}
}

// Reset returns the machine to idle unconditionally, used once the full
// radio reinitializer (spec §4.6) completes: a full reinit reopens every
// interface, SiK or not, so there is nothing left pending regardless of
// how many SiK interfaces reopen_pending was tracking.
func (m *Machine) Reset() {
	m.mustReinitAll = false
	m.reconfigureIndex = -1
	m.reopenPending = make(map[int]bool)
	m.retryCount = make(map[int]int)
}

// MarkOperationFailed records a failed close/reopen/reconfigure attempt on
// interface i. On the second consecutive failure it escalates:
// reconfigureOne -> reinitAll, or reinitAll -> the supplied EscalateFunc
// (full radio reinit).
func (m *Machine) MarkOperationFailed(i int, sikInterfaces []int) {
	m.retryCount[i]++
	if m.retryCount[i] < 2 {
		return
	}

	switch m.State() {
	case StateReconfigureOne:
		m.FlagReinitSik(i, sikInterfaces)
	case StateReinitAll:
		if m.escalate != nil {
			m.escalate(i)
		}
	}
}

// ReadyToCheck reports whether the periodic tick should re-evaluate
// pending reopen work (spec §4.5's 500ms next_check_ms deadline).
func (m *Machine) ReadyToCheck(now time.Time) bool {
	return !now.Before(m.nextCheck)
}

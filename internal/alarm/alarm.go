// Package alarm implements the rate-limited alarm emission described in
// spec §7: every alarm kind is rate-limited to a 3s-10s window and sent as
// an ordinary radio-out packet, coexisting with application traffic.
// Grounded on the per-packet-type rolling counters in the teacher's
// audio_stats.go.
package alarm

import (
	"time"

	"github.com/doismellburning/skyrouter/internal/packet"
)

// Kind identifies an alarm condition.
type Kind string

const (
	KindInvalidRadioPacket Kind = "RECEIVED_INVALID_RADIO_PACKET"
	KindRxTimeout          Kind = "VEHICLE_RX_TIMEOUT"
	KindCPULoopOverload    Kind = "VEHICLE_CPU_LOOP_OVERLOAD"
	KindLinkToControllerLost Kind = "LINK_TO_CONTROLLER_LOST"
)

// defaultWindow is the rate-limit window applied per Kind when none is
// registered explicitly via SetWindow.
const defaultWindow = 5 * time.Second

// Emitter rate-limits alarms per kind and hands the resulting packets to
// a sink (ordinarily the radio-out queue).
type Emitter struct {
	windows map[Kind]time.Duration
	lastFired map[Kind]time.Time
	sink    func(packet.Packet)
	now     func() time.Time
}

// New creates an Emitter that calls sink for every alarm that clears its
// rate limit. now defaults to time.Now; tests may override it.
func New(sink func(packet.Packet)) *Emitter {
	return &Emitter{
		windows:   make(map[Kind]time.Duration),
		lastFired: make(map[Kind]time.Time),
		sink:      sink,
		now:       time.Now,
	}
}

// SetWindow overrides the default rate-limit window for a kind (spec §7:
// "3 s to 10 s windows").
func (e *Emitter) SetWindow(k Kind, d time.Duration) {
	e.windows[k] = d
}

// SetClock overrides the time source, for deterministic tests.
func (e *Emitter) SetClock(now func() time.Time) {
	e.now = now
}

func (e *Emitter) windowFor(k Kind) time.Duration {
	if d, ok := e.windows[k]; ok {
		return d
	}
	return defaultWindow
}

// Fire attempts to emit an alarm of kind k with the given human-readable
// detail. Returns false if the alarm was suppressed by its rate limit.
func (e *Emitter) Fire(k Kind, detail string) bool {
	now := e.now()
	if last, ok := e.lastFired[k]; ok && now.Sub(last) < e.windowFor(k) {
		return false
	}
	e.lastFired[k] = now

	p := packet.Packet{
		Header: packet.Header{
			PacketFlags: packet.Flag(packet.ComponentLocalControl),
			PacketType:  packet.TypeDebugInfo,
		},
		Payload: packet.DebugInfo{Text: []byte(string(k) + ": " + detail)}.Text,
	}
	if e.sink != nil {
		e.sink(p)
	}
	return true
}

// Reset clears the rate-limit memory for a kind, used for edge-triggered
// alarms like LINK_TO_CONTROLLER_LOST once the condition clears (spec §7).
func (e *Emitter) Reset(k Kind) {
	delete(e.lastFired, k)
}

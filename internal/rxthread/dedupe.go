package rxthread

import "time"

// dupKey identifies a stream for duplicate suppression: source vehicle and
// stream id. The monotonic sequence number is compared separately so we
// can tell "same packet again" from "new packet in the same stream."
type dupKey struct {
	sourceVehicleID uint32
	streamID        uint8
}

type seqRecord struct {
	seq       uint32
	timestamp time.Time
}

// historyDepth bounds how many recent sequence numbers are retained per
// (source, stream), mirroring the teacher's dedupe.go HISTORY_MAX ring
// (there a single global ring across all traffic; here one small ring per
// key, since a key already narrows the collision domain).
const historyDepth = 8

// DupFilter suppresses retransmitted duplicates within a sliding window
// per (source, stream), grounded directly on the teacher's dedupe.go
// circular-history-plus-checksum algorithm, generalized from an
// AX.25-source+digipeater-path checksum to an explicit
// (source-vehicle, stream, sequence) key.
type DupFilter struct {
	window  time.Duration
	history map[dupKey][]seqRecord // ring buffer, oldest overwritten first
	next    map[dupKey]int
	now     func() time.Time
}

// NewDupFilter creates a filter with the given sliding window.
func NewDupFilter(window time.Duration) *DupFilter {
	return &DupFilter{
		window:  window,
		history: make(map[dupKey][]seqRecord),
		next:    make(map[dupKey]int),
		now:     time.Now,
	}
}

// SetClock overrides the time source for deterministic tests.
func (f *DupFilter) SetClock(now func() time.Time) { f.now = now }

// Accept reports whether a packet with this (source, stream, seq) should
// be dispatched (true) or suppressed as a duplicate (false). Only accepted
// packets are recorded; a duplicate is not re-recorded, so every later
// arrival with the same seq is suppressed while the first sighting is
// still within the window (spec §8 dup-filter idempotence: feeding the
// same packet twice yields exactly one dispatch).
func (f *DupFilter) Accept(sourceVehicleID uint32, streamID uint8, seq uint32) bool {
	key := dupKey{sourceVehicleID, streamID}
	now := f.now()

	ring := f.history[key]
	for _, rec := range ring {
		if rec.seq == seq && now.Sub(rec.timestamp) <= f.window {
			return false
		}
	}

	if len(ring) < historyDepth {
		ring = append(ring, seqRecord{seq: seq, timestamp: now})
	} else {
		ring[f.next[key]] = seqRecord{seq: seq, timestamp: now}
		f.next[key] = (f.next[key] + 1) % historyDepth
	}
	f.history[key] = ring
	return true
}

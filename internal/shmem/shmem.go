// Package shmem models the shared-memory surfaces named in spec §3/§6:
// per-interface radio stats, historical rx stats, loop counters, and the
// process watchdog. Per the §9 design note these are plain layout types
// with explicit serialization at the boundary rather than pointer-aliased
// regions; Store wraps a named, fixed-size, single-writer/multi-reader
// region (an mmap'd file on Linux, or an in-memory buffer on other
// platforms, see store_fake.go).
package shmem

import (
	"encoding/binary"
	"math"
	"time"

	"github.com/doismellburning/skyrouter/internal/packet"
)

// RadioStats mirrors spec §3's RadioStats entity, updated on every Rx/Tx
// and mirrored to its shared-memory region before the main loop yields
// (spec §3 invariant on current-frequency-kHz).
type RadioStats struct {
	PerInterface [packet.MaxRadioInterfaces]InterfaceStats
}

type InterfaceStats struct {
	CurrentFrequencyKhz uint32
	RxQualityPct        uint8
	LastRxDBm           int16
	LastRxDatarate      int32
	TxPackets           uint64
	TxBytes             uint64
	// LocalRadioLinkID is the "local-radio-link matching table" entry:
	// which configured link this interface currently believes it serves.
	LocalRadioLinkID int8
}

const radioStatsRecordLen = 4 + 1 + 2 + 4 + 8 + 8 + 1

// Encode writes RadioStats into a fixed-size buffer.
func (s RadioStats) Encode() []byte {
	buf := make([]byte, packet.MaxRadioInterfaces*radioStatsRecordLen)
	o := 0
	for _, is := range s.PerInterface {
		binary.LittleEndian.PutUint32(buf[o:], is.CurrentFrequencyKhz)
		o += 4
		buf[o] = is.RxQualityPct
		o++
		binary.LittleEndian.PutUint16(buf[o:], uint16(is.LastRxDBm))
		o += 2
		binary.LittleEndian.PutUint32(buf[o:], uint32(is.LastRxDatarate))
		o += 4
		binary.LittleEndian.PutUint64(buf[o:], is.TxPackets)
		o += 8
		binary.LittleEndian.PutUint64(buf[o:], is.TxBytes)
		o += 8
		buf[o] = byte(is.LocalRadioLinkID)
		o++
	}
	return buf
}

// Decode populates RadioStats from a buffer previously produced by Encode.
// Callers tolerate torn reads across concurrent Encode updates (spec §5):
// a torn read yields stale-but-plausible values, never a panic, since every
// field read is in-bounds regardless of where the writer currently is.
func (s *RadioStats) Decode(buf []byte) {
	o := 0
	for i := range s.PerInterface {
		if o+radioStatsRecordLen > len(buf) {
			return
		}
		is := &s.PerInterface[i]
		is.CurrentFrequencyKhz = binary.LittleEndian.Uint32(buf[o:])
		o += 4
		is.RxQualityPct = buf[o]
		o++
		is.LastRxDBm = int16(binary.LittleEndian.Uint16(buf[o:]))
		o += 2
		is.LastRxDatarate = int32(binary.LittleEndian.Uint32(buf[o:]))
		o += 4
		is.TxPackets = binary.LittleEndian.Uint64(buf[o:])
		o += 8
		is.TxBytes = binary.LittleEndian.Uint64(buf[o:])
		o += 8
		is.LocalRadioLinkID = int8(buf[o])
		o++
	}
}

// LoopCounters mirrors spec §3's LoopCounters entity.
type LoopCounters struct {
	Iterations    uint64
	LastTickUnix  float64
	MinRateGlobal float64
	AvgRateGlobal float64
	MaxRateGlobal float64
	MinRateWindow float64
	AvgRateWindow float64
	MaxRateWindow float64
	MaxLoopDurMs  float64
}

func (c LoopCounters) Encode() []byte {
	buf := make([]byte, 8+8*8)
	binary.LittleEndian.PutUint64(buf[0:8], c.Iterations)
	vals := []float64{c.LastTickUnix, c.MinRateGlobal, c.AvgRateGlobal, c.MaxRateGlobal, c.MinRateWindow, c.AvgRateWindow, c.MaxRateWindow, c.MaxLoopDurMs}
	for i, v := range vals {
		binary.LittleEndian.PutUint64(buf[8+i*8:], math.Float64bits(v))
	}
	return buf
}

func (c *LoopCounters) Decode(buf []byte) {
	if len(buf) < 8+8*8 {
		return
	}
	c.Iterations = binary.LittleEndian.Uint64(buf[0:8])
	vals := []*float64{&c.LastTickUnix, &c.MinRateGlobal, &c.AvgRateGlobal, &c.MaxRateGlobal, &c.MinRateWindow, &c.AvgRateWindow, &c.MaxRateWindow, &c.MaxLoopDurMs}
	for i, p := range vals {
		*p = math.Float64frombits(binary.LittleEndian.Uint64(buf[8+i*8:]))
	}
}

// ProcessWatchdog is the heartbeat surface an external supervisor polls
// (spec §4.6: "the router's watchdog heartbeat MUST continue to advance").
type ProcessWatchdog struct {
	HeartbeatUnixNano int64
	Incarnation       uint32
	LastPhase         [32]byte
}

func (w ProcessWatchdog) Encode() []byte {
	buf := make([]byte, 8+4+32)
	binary.LittleEndian.PutUint64(buf[0:8], uint64(w.HeartbeatUnixNano))
	binary.LittleEndian.PutUint32(buf[8:12], w.Incarnation)
	copy(buf[12:44], w.LastPhase[:])
	return buf
}

func (w *ProcessWatchdog) Decode(buf []byte) {
	if len(buf) < 44 {
		return
	}
	w.HeartbeatUnixNano = int64(binary.LittleEndian.Uint64(buf[0:8]))
	w.Incarnation = binary.LittleEndian.Uint32(buf[8:12])
	copy(w.LastPhase[:], buf[12:44])
}

// SetPhase records a short phase name, truncating to fit.
func (w *ProcessWatchdog) SetPhase(name string) {
	var b [32]byte
	copy(b[:], name)
	w.LastPhase = b
}

// WatchdogWriter bridges a ProcessWatchdog to its backing Store, giving
// the router's injected ProcessWatchdogWriter seam (spec §4.6) a
// production implementation: every SetPhase bumps the heartbeat and
// mirrors the struct into shared memory immediately, so an external
// supervisor polling the region always sees forward progress.
type WatchdogWriter struct {
	Store *Store
	Now   func() time.Time

	state ProcessWatchdog
}

// NewWatchdogWriter creates a writer with the given incarnation number,
// matching the teacher's process-restart-count convention.
func NewWatchdogWriter(store *Store, incarnation uint32) *WatchdogWriter {
	return &WatchdogWriter{Store: store, state: ProcessWatchdog{Incarnation: incarnation}}
}

func (w *WatchdogWriter) now() time.Time {
	if w.Now != nil {
		return w.Now()
	}
	return time.Now()
}

// SetPhase advances the heartbeat and persists it to the Store.
func (w *WatchdogWriter) SetPhase(name string) {
	w.state.HeartbeatUnixNano = w.now().UnixNano()
	w.state.SetPhase(name)
	w.Store.Write(w.state.Encode())
}

// Package txgateway implements the synchronous Tx fan-out described in
// spec §4.3, grounded on the teacher's xmit.go send_one_frame/
// xmit_ax25_frames shape: for every transmit-open interface matching a
// link restriction, prepend framing, write, and update per-interface tx
// counters. The teacher's CSMA persistence algorithm
// (wait_for_clear_channel) does not apply to point-to-point radio links
// and is dropped; the per-interface write loop and counter bookkeeping
// are kept.
package txgateway

import (
	"errors"
	"sync"

	"github.com/doismellburning/skyrouter/internal/packet"
)

// ErrConflictingCapacityFlags is returned (and the packet dropped) when a
// packet's header sets both SEND_ON_LOW_CAPACITY_LINK_ONLY and
// SEND_ON_HIGH_CAPACITY_LINK_ONLY, which must not coexist (spec §4.3).
var ErrConflictingCapacityFlags = errors.New("txgateway: packet sets both low- and high-capacity-only flags")

// Writer is a transmit-open interface's write side.
type Writer interface {
	WriteFrame(frame []byte) error
}

// Interface describes one transmit-capable interface as seen by the
// gateway: its assigned link and whether it is SiK- or WiFi-class.
type Interface struct {
	Index        int
	AssignedLink int // -1 if unassigned
	SikClass     bool
	Writer       Writer
}

// Gateway fans packets out to the interfaces matching a link restriction.
type Gateway struct {
	// Concatenate enables the optional small-packet concatenation
	// feature named in spec §9 Open Question (a); default false.
	Concatenate bool

	mu         sync.Mutex
	interfaces map[int]Interface
	txCounts   map[int]uint64
	dropped    uint64

	// pending holds, per capacity-class/link-restriction bucket, the
	// frames queued for concatenation into a single air frame (spec
	// §4.3's MAX_PACKET_PAYLOAD-bounded concatenation optimization).
	// Only used when Concatenate is true.
	pending map[concatKey]*pendingFrame
}

// concatKey groups packets eligible to share a single air frame: same
// link restriction, same capacity-class flags.
type concatKey struct {
	linkRestriction int
	low             bool
	high            bool
}

type pendingFrame struct {
	frames [][]byte
	size   int
}

// New creates an empty Gateway.
func New() *Gateway {
	return &Gateway{
		interfaces: make(map[int]Interface),
		txCounts:   make(map[int]uint64),
		pending:    make(map[concatKey]*pendingFrame),
	}
}

// SetInterface registers or updates interface i's transmit configuration.
func (g *Gateway) SetInterface(iface Interface) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.interfaces[iface.Index] = iface
}

// RemoveInterface drops interface i, e.g. while it is closed for reinit.
func (g *Gateway) RemoveInterface(i int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.interfaces, i)
}

// TxCount returns the number of frames sent on interface i.
func (g *Gateway) TxCount(i int) uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.txCounts[i]
}

// Dropped returns the number of packets dropped for conflicting
// capacity-class flags.
func (g *Gateway) Dropped() uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.dropped
}

// Send writes p to every open interface matching linkRestriction
// (send_to_radio_interfaces in spec §4.3). linkRestriction < 0 means
// "all links." With Concatenate enabled, packets eligible for
// concatenation (spec §4.3: neither PingReply, RubyModelSettings, nor
// CommandResponse, nor flagged ExtFlagNoConcatenate) are buffered per
// capacity-class/link bucket and flushed as a single air frame once
// MaxPacketPayload would be exceeded or a non-concatenable packet is
// sent on the same bucket; call Flush/FlushAll to force a flush (e.g.
// from the housekeeping phase) so a lone buffered packet isn't stuck
// waiting for a sibling that never arrives.
func (g *Gateway) Send(p packet.Packet, linkRestriction int) error {
	low := p.Header.PacketFlags&packet.FlagSendOnLowCapacityOnly != 0
	high := p.Header.PacketFlags&packet.FlagSendOnHighCapacityOnly != 0

	if low && high {
		g.mu.Lock()
		g.dropped++
		g.mu.Unlock()
		return ErrConflictingCapacityFlags
	}

	frame, err := p.MarshalBinary()
	if err != nil {
		return err
	}

	key := concatKey{linkRestriction: linkRestriction, low: low, high: high}

	if !g.Concatenate || p.Header.PacketType.NoConcatenateTypes() || p.Header.PacketFlagsExtended&packet.ExtFlagNoConcatenate != 0 {
		if flushErr := g.Flush(key); flushErr != nil && err == nil {
			err = flushErr
		}
		if writeErr := g.writeToMatching(key, frame); writeErr != nil {
			return writeErr
		}
		return err
	}

	g.mu.Lock()
	pf, ok := g.pending[key]
	if !ok {
		pf = &pendingFrame{}
		g.pending[key] = pf
	}
	if pf.size+len(frame) > packet.MaxPacketPayload {
		g.mu.Unlock()
		if flushErr := g.Flush(key); flushErr != nil {
			return flushErr
		}
		g.mu.Lock()
		pf = &pendingFrame{}
		g.pending[key] = pf
	}
	pf.frames = append(pf.frames, frame)
	pf.size += len(frame)
	g.mu.Unlock()
	return nil
}

// Flush writes out and clears any frames buffered for key as a single
// concatenated air frame.
func (g *Gateway) Flush(key concatKey) error {
	g.mu.Lock()
	pf, ok := g.pending[key]
	if !ok || len(pf.frames) == 0 {
		g.mu.Unlock()
		return nil
	}
	delete(g.pending, key)
	g.mu.Unlock()

	combined := make([]byte, 0, pf.size)
	for _, f := range pf.frames {
		combined = append(combined, f...)
	}
	return g.writeToMatching(key, combined)
}

// FlushAll flushes every bucket with buffered frames, e.g. so a single
// concatenation-eligible packet doesn't wait indefinitely for a sibling
// (called from the router's periodic housekeeping phase).
func (g *Gateway) FlushAll() error {
	g.mu.Lock()
	keys := make([]concatKey, 0, len(g.pending))
	for k := range g.pending {
		keys = append(keys, k)
	}
	g.mu.Unlock()

	var firstErr error
	for _, k := range keys {
		if err := g.Flush(k); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (g *Gateway) writeToMatching(key concatKey, frame []byte) error {
	g.mu.Lock()
	var targets []Interface
	for _, iface := range g.interfaces {
		if key.linkRestriction >= 0 && iface.AssignedLink != key.linkRestriction {
			continue
		}
		if key.low && !iface.SikClass {
			continue
		}
		if key.high && iface.SikClass {
			continue
		}
		targets = append(targets, iface)
	}
	g.mu.Unlock()

	var firstErr error
	for _, iface := range targets {
		if err := iface.Writer.WriteFrame(frame); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		g.mu.Lock()
		g.txCounts[iface.Index]++
		g.mu.Unlock()
	}
	return firstErr
}

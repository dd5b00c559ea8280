// Package rxthread implements the single background Rx thread described
// in spec §4.2: it polls every Rx-open interface, timestamps accepted
// frames, tags them with the interface index, applies duplicate
// detection, and pushes them into a bounded ring the main loop drains.
// The goroutine-per-listener shape the teacher uses in kissnet.go,
// kissserial.go and kiss.go is collapsed here into a single multiplexing
// goroutine per spec §2.2 ("single background thread"), round-robin
// polling each source with a short per-call deadline.
package rxthread

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/doismellburning/skyrouter/internal/packet"
)

// ErrCRCFailed signals a frame that failed link-layer CRC (spec §4.2):
// the out-of-scope radio driver is expected to detect this at a lower
// layer than this router's own packet framing.
var ErrCRCFailed = errors.New("rxthread: link-layer CRC failed")

// ErrFatal signals that an interface's source can no longer be read from
// at all; the caller escalates to SiK reinit or full radio reinit.
var ErrFatal = errors.New("rxthread: fatal read error")

// Source is one Rx-open interface's read side. ReadFrame blocks until a
// frame is available, the deadline passes (returning nil, nil), or an
// error occurs.
type Source interface {
	ReadFrame(deadline time.Time) ([]byte, error)
}

// Tagged is a frame that has cleared CRC and dup-detection, ready for the
// main loop to dispatch.
type Tagged struct {
	Packet         packet.Packet
	InterfaceIndex int
	Timestamp      time.Time
}

// Thread is the single Rx goroutine.
type Thread struct {
	sources   map[int]Source
	out       chan Tagged
	dup       *DupFilter
	pollEvery time.Duration

	quit chan struct{}
	wg   sync.WaitGroup

	mu               sync.Mutex
	badPacketCounts  map[int]int
	brokenInterfaces map[int]bool

	maxLoopTime  atomicDuration
	maxReadTime  atomicDuration
	maxQueueTime atomicDuration

	// OnBroken is called (outside any lock) the first time an interface
	// is observed broken, so the main loop can react on its next health
	// check (spec §4.2 failure semantics).
	OnBroken func(interfaceIndex int)
}

type atomicDuration struct{ v atomic.Int64 }

func (a *atomicDuration) observe(d time.Duration) {
	for {
		cur := time.Duration(a.v.Load())
		if d <= cur {
			return
		}
		if a.v.CompareAndSwap(int64(cur), int64(d)) {
			return
		}
	}
}

func (a *atomicDuration) resetAndGet() time.Duration {
	return time.Duration(a.v.Swap(0))
}

// New creates a Thread. ringSize bounds the output channel (the "bounded
// shared ring" of spec §2.2).
func New(dup *DupFilter, ringSize int, pollEvery time.Duration) *Thread {
	return &Thread{
		sources:          make(map[int]Source),
		out:              make(chan Tagged, ringSize),
		dup:              dup,
		pollEvery:        pollEvery,
		quit:             make(chan struct{}),
		badPacketCounts:  make(map[int]int),
		brokenInterfaces: make(map[int]bool),
	}
}

// AddSource registers interface i's read side. Not safe to call
// concurrently with Run.
func (t *Thread) AddSource(i int, s Source) { t.sources[i] = s }

// RemoveSource unregisters interface i, e.g. after it is closed for a SiK
// reconfigure.
func (t *Thread) RemoveSource(i int) { delete(t.sources, i) }

// Out is the bounded ring the main loop drains frames from.
func (t *Thread) Out() <-chan Tagged { return t.out }

// BadPacketCount returns the CRC-failure counter for interface i.
func (t *Thread) BadPacketCount(i int) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.badPacketCounts[i]
}

// IsBroken reports whether interface i has been marked broken.
func (t *Thread) IsBroken(i int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.brokenInterfaces[i]
}

// ClearBroken clears the broken flag once a reinit has reopened the
// interface.
func (t *Thread) ClearBroken(i int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.brokenInterfaces, i)
}

// ResetCounters returns and clears max_loop_time/max_read_time/
// max_queue_time since the last call (spec §4.2).
func (t *Thread) ResetCounters() (loop, read, queue time.Duration) {
	return t.maxLoopTime.resetAndGet(), t.maxReadTime.resetAndGet(), t.maxQueueTime.resetAndGet()
}

// Start runs the poll loop in a new goroutine. The thread exits within
// one poll interval of Stop being called (spec §5 cancellation).
func (t *Thread) Start() {
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		t.run()
	}()
}

// Stop signals the poll loop to exit and waits for it to do so.
func (t *Thread) Stop() {
	close(t.quit)
	t.wg.Wait()
}

func (t *Thread) run() {
	for {
		select {
		case <-t.quit:
			return
		default:
		}

		loopStart := time.Now()
		for i, src := range t.sources {
			select {
			case <-t.quit:
				return
			default:
			}
			t.pollOne(i, src)
		}
		t.maxLoopTime.observe(time.Since(loopStart))
	}
}

func (t *Thread) pollOne(i int, src Source) {
	readStart := time.Now()
	deadline := readStart.Add(t.pollEvery)
	frame, err := src.ReadFrame(deadline)
	t.maxReadTime.observe(time.Since(readStart))

	switch {
	case errors.Is(err, ErrFatal):
		t.markBroken(i)
		return
	case errors.Is(err, ErrCRCFailed):
		t.mu.Lock()
		t.badPacketCounts[i]++
		t.mu.Unlock()
		return
	case err != nil:
		t.mu.Lock()
		t.badPacketCounts[i]++
		t.mu.Unlock()
		return
	case frame == nil:
		return // no data within the deadline
	}

	var p packet.Packet
	if err := p.UnmarshalBinary(frame); err != nil {
		t.mu.Lock()
		t.badPacketCounts[i]++
		t.mu.Unlock()
		return
	}

	if !t.dup.Accept(p.Header.VehicleIDSrc, p.Header.StreamID, p.Header.SequenceNum) {
		return
	}

	queueStart := time.Now()
	tagged := Tagged{Packet: p, InterfaceIndex: i, Timestamp: queueStart}
	select {
	case t.out <- tagged:
	default:
		// Ring full: drop rather than block the single Rx thread.
	}
	t.maxQueueTime.observe(time.Since(queueStart))
}

func (t *Thread) markBroken(i int) {
	t.mu.Lock()
	alreadyBroken := t.brokenInterfaces[i]
	t.brokenInterfaces[i] = true
	t.mu.Unlock()

	if !alreadyBroken && t.OnBroken != nil {
		t.OnBroken(i)
	}
}

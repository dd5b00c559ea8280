// Package pktqueue implements the two process-local packet FIFOs named in
// spec §4.4: radio-out (packets destined for the air) and control (local
// control-plane packets destined for the router itself). The shape mirrors
// the teacher's tq.go transmit queue: a singly linked list guarded by a
// mutex, with a condition variable that pushes signal (no pop blocks on
// it), generalized
// from tq.go's two priority classes per radio channel to one queue with a
// head-insert operation used for both priority traffic and dev-stats
// injection.
package pktqueue

import (
	"sync"

	"github.com/doismellburning/skyrouter/internal/packet"
)

type node struct {
	pkt  packet.Packet
	next *node
}

// Queue is a bounded FIFO of packets with an inject-at-head operation.
// Touched only from the main thread per spec §4.4; the mutex exists to
// let a producer goroutine (e.g. the Rx thread's staging handoff) push
// without the main loop's involvement, not to make pops concurrent with
// each other.
type Queue struct {
	mu       sync.Mutex
	cond     *sync.Cond
	head     *node
	tail     *node
	len      int
	capacity int

	Dropped int // count of oldest-non-video packets discarded on overflow.
}

// New creates a queue bounded to capacity entries.
func New(capacity int) *Queue {
	q := &Queue{capacity: capacity}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Push appends a packet at the tail. If the queue is full, the oldest
// non-video packet is discarded and Dropped is incremented (spec §4.4).
func (q *Queue) Push(p packet.Packet) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.len >= q.capacity {
		q.dropOldestNonVideoLocked()
	}
	q.appendLocked(p)
	q.cond.Signal()
}

// InjectFirst pushes a packet at the head of the queue, so it is the next
// one popped. Used for dev-stats/dev-graphs injection immediately after
// the telemetry packet that triggered them (spec §5 ordering guarantee).
func (q *Queue) InjectFirst(p packet.Packet) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.len >= q.capacity {
		q.dropOldestNonVideoLocked()
	}
	n := &node{pkt: p, next: q.head}
	q.head = n
	if q.tail == nil {
		q.tail = n
	}
	q.len++
	q.cond.Signal()
}

// Pop removes and returns the packet at the head. ok is false if the queue
// was empty.
func (q *Queue) Pop() (packet.Packet, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.popLocked()
}

// HasPackets reports whether the queue is non-empty.
func (q *Queue) HasPackets() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.len > 0
}

// Len reports the current queue length.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.len
}

func (q *Queue) appendLocked(p packet.Packet) {
	n := &node{pkt: p}
	if q.tail == nil {
		q.head, q.tail = n, n
	} else {
		q.tail.next = n
		q.tail = n
	}
	q.len++
}

func (q *Queue) popLocked() (packet.Packet, bool) {
	if q.head == nil {
		return packet.Packet{}, false
	}
	n := q.head
	q.head = n.next
	if q.head == nil {
		q.tail = nil
	}
	q.len--
	return n.pkt, true
}

// dropOldestNonVideoLocked walks from the head and removes the first
// non-video packet it finds, preferring to preserve video frames since
// they are latency-sensitive and irreplaceable once missed.
func (q *Queue) dropOldestNonVideoLocked() {
	var prev *node
	for n := q.head; n != nil; n = n.next {
		if n.pkt.Header.Component() != packet.ComponentVideo {
			if prev == nil {
				q.head = n.next
			} else {
				prev.next = n.next
			}
			if n == q.tail {
				q.tail = prev
			}
			q.len--
			q.Dropped++
			return
		}
		prev = n
	}
	// All queued packets are video; drop the oldest anyway to bound memory.
	if q.head != nil {
		q.head = q.head.next
		if q.head == nil {
			q.tail = nil
		}
		q.len--
		q.Dropped++
	}
}

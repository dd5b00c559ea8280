// Package ipcmux implements the IPC channel framing and multiplexing of
// spec §4.7/§6: six named byte-stream peers (one reader, one writer each,
// for commands/telemetry/RC), framed by the packet header's total_length
// field. The incremental reassembly state machine is grounded directly on
// the teacher's kiss_frame.go kiss_rec_byte byte-at-a-time state machine,
// generalized from KISS's FEND-delimited framing to this protocol's
// length-prefixed framing (no escape bytes are needed since frames are
// never interrupted by out-of-band markers).
package ipcmux

import (
	"encoding/binary"
	"errors"
	"io"

	"github.com/doismellburning/skyrouter/internal/packet"
)

// ErrFrameTooLarge guards against a corrupt total_length field driving
// unbounded buffer growth.
var ErrFrameTooLarge = errors.New("ipcmux: frame exceeds maximum size")

// MaxFrameLen bounds a single reassembled frame (header + payload).
const MaxFrameLen = 64 * 1024

type assemblerState int

const (
	stateAwaitingHeader assemblerState = iota
	stateAwaitingPayload
)

// Assembler incrementally reassembles length-prefixed frames from a
// byte stream, mirroring kiss_frame.go's per-peer kiss_frame_t staging
// buffer (one Assembler per named peer).
type Assembler struct {
	state   assemblerState
	staging []byte
	want    int
}

// NewAssembler creates an empty frame assembler.
func NewAssembler() *Assembler {
	return &Assembler{state: stateAwaitingHeader, want: packet.HeaderLen}
}

// Feed appends newly read bytes and returns every complete frame they
// produced, in order. Frames are returned as raw header+payload buffers
// ready for packet.Packet.UnmarshalBinary.
func (a *Assembler) Feed(chunk []byte) ([][]byte, error) {
	a.staging = append(a.staging, chunk...)

	var frames [][]byte
	for {
		switch a.state {
		case stateAwaitingHeader:
			if len(a.staging) < packet.HeaderLen {
				return frames, nil
			}
			totalLen := binary.LittleEndian.Uint32(a.staging[10:14])
			if totalLen > MaxFrameLen {
				a.reset()
				return frames, ErrFrameTooLarge
			}
			if totalLen < packet.HeaderLen {
				// Malformed length; drop the leading byte and resync,
				// matching kiss_frame.go's behaviour of scanning forward
				// on a corrupt frame rather than giving up entirely.
				a.staging = a.staging[1:]
				continue
			}
			a.want = int(totalLen)
			a.state = stateAwaitingPayload

		case stateAwaitingPayload:
			if len(a.staging) < a.want {
				return frames, nil
			}
			frame := append([]byte(nil), a.staging[:a.want]...)
			a.staging = a.staging[a.want:]
			a.state = stateAwaitingHeader
			frames = append(frames, frame)
		}
	}
}

func (a *Assembler) reset() {
	a.staging = nil
	a.state = stateAwaitingHeader
}

// Peer is one named IPC connection: commands, telemetry, or RC.
type Peer struct {
	Name string
	Conn io.ReadWriteCloser
	asm  *Assembler
}

// NewPeer wraps a connection with its own frame assembler. kissnet.go's
// one-goroutine-per-client shape is collapsed further here: no goroutine
// reads a peer; the main loop's IPC drain calls ReadFrames on each fixed
// named peer in turn, since these peers are well-known, not dynamically
// accepted clients.
func NewPeer(name string, conn io.ReadWriteCloser) *Peer {
	return &Peer{Name: name, Conn: conn, asm: NewAssembler()}
}

// ReadFrames performs one non-blocking-ish read (bounded by whatever
// deadline the caller set on Conn, if it supports net.Conn's deadline
// API) and returns any complete frames it produced.
func (p *Peer) ReadFrames(buf []byte) ([][]byte, error) {
	n, err := p.Conn.Read(buf)
	if n > 0 {
		frames, asmErr := p.asm.Feed(buf[:n])
		if asmErr != nil {
			return frames, asmErr
		}
		return frames, err
	}
	return nil, err
}

// WriteFrame writes a complete frame to the peer.
func (p *Peer) WriteFrame(frame []byte) error {
	_, err := p.Conn.Write(frame)
	return err
}

// Close closes the underlying connection.
func (p *Peer) Close() error { return p.Conn.Close() }

// Mux owns the fixed set of named IPC peers.
type Mux struct {
	peers map[string]*Peer
}

// NewMux creates an empty multiplexer.
func NewMux() *Mux { return &Mux{peers: make(map[string]*Peer)} }

// AddPeer registers a named peer.
func (m *Mux) AddPeer(p *Peer) { m.peers[p.Name] = p }

// Peer returns the named peer, if registered.
func (m *Mux) Peer(name string) (*Peer, bool) {
	p, ok := m.peers[name]
	return p, ok
}

// Names returns the registered peer names.
func (m *Mux) Names() []string {
	names := make([]string, 0, len(m.peers))
	for n := range m.peers {
		names = append(names, n)
	}
	return names
}

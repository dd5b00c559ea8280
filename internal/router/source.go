package router

import (
	"io"
	"time"

	"github.com/doismellburning/skyrouter/internal/ipcmux"
	"github.com/doismellburning/skyrouter/internal/rxthread"
)

// deadlineReader is implemented by transports that can bound a single
// Read call (e.g. a net.Conn). Sources without it fall back to whatever
// their Read call does natively. The readers radiohal's HAL.OpenRx
// returns today do not implement it: the SiK reader is wrapped in
// io.NopCloser and the raw WiFi socket handle has no deadline method.
type deadlineReader interface {
	SetReadDeadline(time.Time) error
}

// radioSource adapts a HAL-opened Rx reader into rxthread.Source by
// framing its byte stream with the same length-prefixed reassembly
// ipcmux uses for IPC peers (grounded on the same kiss_frame.go shape;
// the wire framing is identical whether the bytes arrive over a radio
// link or a local socket).
type radioSource struct {
	r   io.ReadCloser
	asm *ipcmux.Assembler
	buf []byte

	pending [][]byte
}

// newRadioSource wraps r for use as an rxthread.Source.
func newRadioSource(r io.ReadCloser) *radioSource {
	return &radioSource{r: r, asm: ipcmux.NewAssembler(), buf: make([]byte, 2048)}
}

// ReadFrame implements rxthread.Source. It returns the next complete
// frame already reassembled from prior reads, if any, before attempting
// a new bounded read.
func (s *radioSource) ReadFrame(deadline time.Time) ([]byte, error) {
	if len(s.pending) > 0 {
		frame := s.pending[0]
		s.pending = s.pending[1:]
		return frame, nil
	}

	if dl, ok := s.r.(deadlineReader); ok {
		_ = dl.SetReadDeadline(deadline)
	}

	n, err := s.r.Read(s.buf)
	if n > 0 {
		frames, asmErr := s.asm.Feed(s.buf[:n])
		if asmErr != nil {
			return nil, rxthread.ErrCRCFailed
		}
		if len(frames) > 0 {
			s.pending = frames[1:]
			return frames[0], nil
		}
	}
	if err != nil {
		if isTimeout(err) {
			return nil, nil
		}
		return nil, rxthread.ErrFatal
	}
	return nil, nil
}

func isTimeout(err error) bool {
	type timeout interface{ Timeout() bool }
	te, ok := err.(timeout)
	return ok && te.Timeout()
}

package ipcmux

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/doismellburning/skyrouter/internal/packet"
)

func frameBytes(t *testing.T, streamID uint8) []byte {
	t.Helper()
	p := packet.Packet{Header: packet.Header{StreamID: streamID}, Payload: []byte("hi")}
	buf, err := p.MarshalBinary()
	require.NoError(t, err)
	return buf
}

func TestAssemblerReassemblesSplitFrame(t *testing.T) {
	a := NewAssembler()
	full := frameBytes(t, 5)

	frames, err := a.Feed(full[:10])
	require.NoError(t, err)
	assert.Empty(t, frames)

	frames, err = a.Feed(full[10:])
	require.NoError(t, err)
	require.Len(t, frames, 1)
	assert.Equal(t, full, frames[0])
}

func TestAssemblerHandlesMultipleFramesInOneChunk(t *testing.T) {
	a := NewAssembler()
	chunk := append(append([]byte{}, frameBytes(t, 1)...), frameBytes(t, 2)...)

	frames, err := a.Feed(chunk)
	require.NoError(t, err)
	require.Len(t, frames, 2)

	var p1, p2 packet.Packet
	require.NoError(t, p1.UnmarshalBinary(frames[0]))
	require.NoError(t, p2.UnmarshalBinary(frames[1]))
	assert.Equal(t, uint8(1), p1.Header.StreamID)
	assert.Equal(t, uint8(2), p2.Header.StreamID)
}

func TestAssemblerRejectsOversizedFrame(t *testing.T) {
	a := NewAssembler()
	header := frameBytes(t, 0)
	header[10] = 0xFF
	header[11] = 0xFF
	header[12] = 0xFF
	header[13] = 0x7F // totalLength huge

	_, err := a.Feed(header)
	require.ErrorIs(t, err, ErrFrameTooLarge)
}

type pipeConn struct {
	r io.Reader
	w io.Writer
}

func (c pipeConn) Read(p []byte) (int, error)  { return c.r.Read(p) }
func (c pipeConn) Write(p []byte) (int, error) { return c.w.Write(p) }
func (c pipeConn) Close() error                { return nil }

func TestPeerReadFramesAndWriteFrame(t *testing.T) {
	pr, pw := io.Pipe()
	peer := NewPeer("commands", pipeConn{r: pr, w: io.Discard})

	full := frameBytes(t, 9)
	go func() {
		_, _ = pw.Write(full)
		_ = pw.Close()
	}()

	buf := make([]byte, 256)
	frames, err := peer.ReadFrames(buf)
	require.NoError(t, err)
	require.Len(t, frames, 1)
	assert.Equal(t, full, frames[0])
}

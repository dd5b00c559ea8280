package packet

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPacketRoundTrip(t *testing.T) {
	p := Packet{
		Header: Header{
			PacketFlags:  Flag(ComponentTelemetry) | FlagCRCValid,
			PacketType:   TypeTelemetryAll,
			StreamID:     3,
			VehicleIDSrc: 42,
			VehicleIDDst: 1,
		},
		Payload: []byte("hello"),
	}

	buf, err := p.MarshalBinary()
	require.NoError(t, err)

	var got Packet
	require.NoError(t, got.UnmarshalBinary(buf))

	assert.Equal(t, p.Header.Component(), got.Header.Component())
	assert.Equal(t, p.Header.PacketType, got.Header.PacketType)
	assert.Equal(t, p.Header.VehicleIDSrc, got.Header.VehicleIDSrc)
	assert.Equal(t, p.Payload, got.Payload)
}

func TestUnmarshalRejectsTotalLengthMismatch(t *testing.T) {
	p := Packet{Header: Header{PacketType: TypePingReply}, Payload: []byte("x")}
	buf, err := p.MarshalBinary()
	require.NoError(t, err)

	var got Packet
	err = got.UnmarshalBinary(buf[:len(buf)-1])
	assert.ErrorIs(t, err, ErrTotalLengthMismatch)
}

func TestLocalControlSourceKindOverload(t *testing.T) {
	h := Header{VehicleIDSrc: uint32(ComponentRuby)}
	buf, err := h.MarshalBinary()
	require.NoError(t, err)

	var got Header
	require.NoError(t, got.UnmarshalBinary(buf))
	assert.Equal(t, ComponentRuby, got.SourceKind)
}

func TestNoConcatenateTypes(t *testing.T) {
	assert.True(t, TypePingReply.NoConcatenateTypes())
	assert.True(t, TypeRubyModelSettings.NoConcatenateTypes())
	assert.True(t, TypeCommandResponse.NoConcatenateTypes())
	assert.False(t, TypeTelemetryAll.NoConcatenateTypes())
}

func TestHighPriorityTypes(t *testing.T) {
	assert.True(t, TypePingRequest.HighPriority())
	assert.True(t, TypeRetransmissionRequest.HighPriority())
	assert.True(t, TypeRadioConfigUpdated.HighPriority())
	assert.False(t, TypeTelemetryAll.HighPriority())
}

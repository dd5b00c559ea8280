package packet

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTelemetryExtendedV3RoundTrip(t *testing.T) {
	tel := TelemetryExtendedV3{
		VehicleID:          7,
		VideoBitrateBps:    1_000_000,
		AudioBitrateBps:    32_000,
		TxTimePerSecondPct: 55,
	}
	tel.LastSentDatarate[0] = 64000
	tel.UplinkRSSIdBm[1] = -80
	tel.UplinkQualityPct[2] = 90

	buf, err := tel.MarshalBinary()
	require.NoError(t, err)

	var got TelemetryExtendedV3
	require.NoError(t, got.UnmarshalBinary(buf))
	assert.Equal(t, tel, got)
}

func TestTelemetryAllRoundTrip(t *testing.T) {
	all := TelemetryAll{VehicleID: 3, FlightMode: 2, BatteryMv: 14800, LatE7: 515074219, LonE7: -1274617, AltCm: 12345}
	buf, err := all.MarshalBinary()
	require.NoError(t, err)

	var got TelemetryAll
	require.NoError(t, got.UnmarshalBinary(buf))
	assert.Equal(t, all, got)
}

func TestCommandResponseRoundTrip(t *testing.T) {
	resp := CommandResponse{CommandID: 99, OK: true, Detail: []byte("applied")}
	buf, err := resp.MarshalBinary()
	require.NoError(t, err)

	var got CommandResponse
	require.NoError(t, got.UnmarshalBinary(buf))
	assert.Equal(t, resp, got)
}

func TestRubyModelSettingsRoundTrip(t *testing.T) {
	rms := RubyModelSettings{VehicleID: 11, ModelYAML: []byte("vehicle_id: 11\n")}
	buf, err := rms.MarshalBinary()
	require.NoError(t, err)

	var got RubyModelSettings
	require.NoError(t, got.UnmarshalBinary(buf))
	assert.Equal(t, rms, got)
}

func TestPingReplyRoundTrip(t *testing.T) {
	reply := PingReply{PingID: 5, LocalTime: 123456}
	buf, err := reply.MarshalBinary()
	require.NoError(t, err)

	var got PingReply
	require.NoError(t, got.UnmarshalBinary(buf))
	assert.Equal(t, reply, got)
}

func TestDebugInfoRoundTrip(t *testing.T) {
	d := DebugInfo{Text: []byte("hello debug")}
	buf, err := d.MarshalBinary()
	require.NoError(t, err)

	var got DebugInfo
	require.NoError(t, got.UnmarshalBinary(buf))
	assert.Equal(t, d, got)
}

func TestRadioConfigUpdatedRoundTrip(t *testing.T) {
	cfg := RadioConfigUpdated{
		Relay: RelayParams{IsRelayEnabledOnRadioLinkID: -1, CurrentRelayMode: RelayModeMain},
		Interfaces: []RadioInterfaceParams{
			{Index: 0, AssignedLinkID: 0, CurrentFrequencyKhz: 915000, CurrentDatarate: 64000},
			{Index: 1, AssignedLinkID: -1},
		},
		Links: []RadioLinkParams{
			{LinkID: 0, FrequencyKhz: 915000, VideoDatarate: 4000000, DataDatarate: 64000, ECC: true, LBT: true},
		},
	}

	buf, err := cfg.MarshalBinary()
	require.NoError(t, err)

	var got RadioConfigUpdated
	require.NoError(t, got.UnmarshalBinary(buf))
	assert.Equal(t, cfg, got)
}

func TestRadioConfigUpdatedRejectsShortBuffer(t *testing.T) {
	cfg := RadioConfigUpdated{Interfaces: []RadioInterfaceParams{{Index: 0}}}
	buf, err := cfg.MarshalBinary()
	require.NoError(t, err)

	var got RadioConfigUpdated
	err = got.UnmarshalBinary(buf[:len(buf)-1])
	assert.ErrorIs(t, err, ErrShortBuffer)
}

func TestLocalControlSikReconfigRoundTrip(t *testing.T) {
	for _, idx := range []int8{-1, 0, 3} {
		c := LocalControlSikReconfig{InterfaceIndex: idx}
		buf, err := c.MarshalBinary()
		require.NoError(t, err)

		var got LocalControlSikReconfig
		require.NoError(t, got.UnmarshalBinary(buf))
		assert.Equal(t, c, got)
	}
}

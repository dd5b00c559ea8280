package shmem

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRadioStatsEncodeDecodeRoundTrip(t *testing.T) {
	var s RadioStats
	s.PerInterface[0] = InterfaceStats{
		CurrentFrequencyKhz: 915000,
		RxQualityPct:        87,
		LastRxDBm:           -72,
		LastRxDatarate:      64000,
		TxPackets:           1234,
		TxBytes:             567890,
		LocalRadioLinkID:    2,
	}
	s.PerInterface[1] = InterfaceStats{LocalRadioLinkID: -1}

	buf := s.Encode()

	var decoded RadioStats
	decoded.Decode(buf)

	assert.Equal(t, s.PerInterface[0], decoded.PerInterface[0])
	assert.Equal(t, int8(-1), decoded.PerInterface[1].LocalRadioLinkID)
}

func TestRadioStatsDecodeTolerantOfTornBuffer(t *testing.T) {
	s := RadioStats{}
	s.PerInterface[0] = InterfaceStats{CurrentFrequencyKhz: 433000, RxQualityPct: 50}
	buf := s.Encode()

	truncated := buf[:len(buf)/2]

	var decoded RadioStats
	require.NotPanics(t, func() { decoded.Decode(truncated) })
}

func TestLoopCountersEncodeDecodeRoundTrip(t *testing.T) {
	c := LoopCounters{
		Iterations:    42,
		LastTickUnix:  1700000000.5,
		MinRateGlobal: 950.1,
		AvgRateGlobal: 1000.2,
		MaxRateGlobal: 1050.3,
		MinRateWindow: 980.4,
		AvgRateWindow: 1001.5,
		MaxRateWindow: 1020.6,
		MaxLoopDurMs:  3.75,
	}

	buf := c.Encode()

	var decoded LoopCounters
	decoded.Decode(buf)

	assert.Equal(t, c, decoded)
}

func TestLoopCountersDecodeIgnoresShortBuffer(t *testing.T) {
	var decoded LoopCounters
	require.NotPanics(t, func() { decoded.Decode([]byte{1, 2, 3}) })
	assert.Equal(t, LoopCounters{}, decoded)
}

func TestProcessWatchdogEncodeDecodeRoundTrip(t *testing.T) {
	w := ProcessWatchdog{HeartbeatUnixNano: 123456789, Incarnation: 3}
	w.SetPhase("housekeeping")

	buf := w.Encode()

	var decoded ProcessWatchdog
	decoded.Decode(buf)

	assert.Equal(t, w.HeartbeatUnixNano, decoded.HeartbeatUnixNano)
	assert.Equal(t, w.Incarnation, decoded.Incarnation)
	assert.Equal(t, w.LastPhase, decoded.LastPhase)
}

func TestProcessWatchdogSetPhaseTruncatesLongNames(t *testing.T) {
	var w ProcessWatchdog
	w.SetPhase("this phase name is definitely longer than thirty two bytes")

	buf := w.Encode()
	var decoded ProcessWatchdog
	decoded.Decode(buf)

	assert.Len(t, decoded.LastPhase, 32)
}

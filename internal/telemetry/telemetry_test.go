package telemetry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/doismellburning/skyrouter/internal/packet"
)

func TestBackAnnotateFillsExactValues(t *testing.T) {
	var tel packet.TelemetryExtendedV3
	samples := []InterfaceSample{
		{LastSentDatarate: 100, LastReceivedDatarate: 200, UplinkRSSIdBm: -42, UplinkQualityPct: 91},
		{LastSentDatarate: 50, LastReceivedDatarate: 60, UplinkRSSIdBm: -55, UplinkQualityPct: 80},
	}

	BackAnnotate(&tel, 1_000_000, 64_000, 37, samples)

	assert.Equal(t, uint32(1_000_000), tel.VideoBitrateBps)
	assert.Equal(t, uint32(64_000), tel.AudioBitrateBps)
	assert.Equal(t, uint8(37), tel.TxTimePerSecondPct)
	assert.Equal(t, int32(100), tel.LastSentDatarate[0])
	assert.Equal(t, int32(200), tel.LastReceivedDatarate[0])
	assert.Equal(t, int16(-42), tel.UplinkRSSIdBm[0])
	assert.Equal(t, uint8(91), tel.UplinkQualityPct[0])
	assert.Equal(t, int32(50), tel.LastSentDatarate[1])
}

func TestRelayTrackerRollsBackToMainOnLinkLost(t *testing.T) {
	r := NewRelayTracker(packet.RelayModeRemote | packet.RelayModeIsRelayNode)
	assert.True(t, r.IsRelaying())

	fired := r.OnLinkLost()
	assert.True(t, fired)
	assert.Equal(t, packet.RelayModeMain|packet.RelayModeIsRelayNode, r.Mode())

	// Edge-triggered: a second call before restoration must not re-fire.
	fired = r.OnLinkLost()
	assert.False(t, fired)
}

func TestRelayTrackerAlarmFiresAgainAfterRestoration(t *testing.T) {
	r := NewRelayTracker(packet.RelayModeMain)
	require := assert.New(t)

	require.True(r.OnLinkLost())
	r.OnLinkRestored()
	require.True(r.LinkUp())
	require.True(r.OnLinkLost())
}

func TestLivenessMonitorDetectsTimeout(t *testing.T) {
	now := time.Now()
	clock := func() time.Time { return now }

	m := NewLivenessMonitor(5 * time.Second)
	m.SetClock(clock)
	m.NotePacketReceived()

	assert.False(t, m.LinkLost())

	now = now.Add(6 * time.Second)
	assert.True(t, m.LinkLost())

	m.NotePacketReceived()
	assert.False(t, m.LinkLost())
}

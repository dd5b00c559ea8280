// Package telemetry back-annotates live per-interface state into
// outbound extended-telemetry packets (spec §4.8 phase 7) and tracks
// relay-mode bookkeeping, including the link-lost rollback supplemented
// from original_source's ruby_rt_vehicle.cpp relay-mode-reset-on-link-lost
// logic (spec §4.8 phase 4, §7).
package telemetry

import (
	"time"

	"github.com/doismellburning/skyrouter/internal/packet"
)

// InterfaceSample is one interface's live counters as of the current
// tick, fed in by the router from the HAL/Tx gateway.
type InterfaceSample struct {
	LastSentDatarate     int32
	LastReceivedDatarate int32
	UplinkRSSIdBm        int16
	UplinkQualityPct     uint8
}

// BackAnnotate fills in t's live fields (video/audio bitrate, per-interface
// datarate/RSSI/quality, tx-time-per-second) from samples gathered this
// tick, matching spec §4.8 phase 7's back-annotation list exactly.
func BackAnnotate(t *packet.TelemetryExtendedV3, videoBitrateBps, audioBitrateBps uint32, txTimePct uint8, samples []InterfaceSample) {
	t.VideoBitrateBps = videoBitrateBps
	t.AudioBitrateBps = audioBitrateBps
	t.TxTimePerSecondPct = txTimePct

	for i := 0; i < len(samples) && i < packet.MaxRadioInterfaces; i++ {
		t.LastSentDatarate[i] = samples[i].LastSentDatarate
		t.LastReceivedDatarate[i] = samples[i].LastReceivedDatarate
		t.UplinkRSSIdBm[i] = samples[i].UplinkRSSIdBm
		t.UplinkQualityPct[i] = samples[i].UplinkQualityPct
	}
}

// RelayTracker owns the vehicle's current relay mode and the link-lost
// rollback behaviour named in spec §4.8 phase 4 / §7.
type RelayTracker struct {
	mode   packet.RelayMode
	linkUp bool
}

// NewRelayTracker starts in the given initial mode with the link
// considered up (no rollback applied yet).
func NewRelayTracker(initial packet.RelayMode) *RelayTracker {
	return &RelayTracker{mode: initial, linkUp: true}
}

// Mode returns the current relay mode.
func (r *RelayTracker) Mode() packet.RelayMode { return r.mode }

// SetMode sets the relay mode directly, e.g. from a command handler.
func (r *RelayTracker) SetMode(m packet.RelayMode) { r.mode = m }

// IsRelaying reports whether relaying is currently configured at all
// (any of the relay bits beyond plain MAIN set).
func (r *RelayTracker) IsRelaying() bool {
	return r.mode&(packet.RelayModeRemote|packet.RelayModePipMain|packet.RelayModePipRemote) != 0
}

// OnLinkLost applies the link-lost rollback exactly once per edge
// (spec: "single alarm LINK_TO_CONTROLLER_LOST alarm, edge-triggered;
// relay mode automatically rolls back to MAIN"). It returns true the
// first time it fires for this loss so the caller can emit the alarm
// exactly once.
func (r *RelayTracker) OnLinkLost() (fired bool) {
	wasUp := r.linkUp
	r.linkUp = false
	if !wasUp {
		return false
	}
	if r.IsRelaying() {
		r.mode = packet.RelayModeMain | packet.RelayModeIsRelayNode
	}
	return true
}

// OnLinkRestored clears the link-lost state so a future loss can alarm
// again.
func (r *RelayTracker) OnLinkRestored() {
	r.linkUp = true
}

// LinkUp reports the last-known controller-link liveness.
func (r *RelayTracker) LinkUp() bool { return r.linkUp }

// LivenessMonitor implements spec §4.8 phase 4's Rx liveness check: if no
// packet has arrived from the controller within the timeout, the link is
// considered lost.
type LivenessMonitor struct {
	timeout      time.Duration
	lastRx       time.Time
	now          func() time.Time
}

// NewLivenessMonitor creates a monitor with the given link-lost timeout,
// seeded as if a packet had just been received.
func NewLivenessMonitor(timeout time.Duration) *LivenessMonitor {
	return &LivenessMonitor{timeout: timeout, lastRx: time.Now(), now: time.Now}
}

// SetClock overrides the time source for deterministic tests.
func (m *LivenessMonitor) SetClock(now func() time.Time) { m.now = now }

// NotePacketReceived records that a packet arrived from the controller.
func (m *LivenessMonitor) NotePacketReceived() { m.lastRx = m.now() }

// LinkLost reports whether the controller has been silent longer than
// the configured timeout.
func (m *LivenessMonitor) LinkLost() bool {
	return m.now().Sub(m.lastRx) > m.timeout
}

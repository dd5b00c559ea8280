package router

import (
	"context"

	"github.com/doismellburning/skyrouter/internal/alarm"
	"github.com/doismellburning/skyrouter/internal/diag"
	"github.com/doismellburning/skyrouter/internal/packet"
	"github.com/doismellburning/skyrouter/internal/rxthread"
	"github.com/doismellburning/skyrouter/internal/shmem"
	"github.com/doismellburning/skyrouter/internal/telemetry"
)

// phase1HighPriorityRx drains the Rx ring, dispatching every
// high-priority packet immediately and buffering the rest for phase 3
// (spec §4.8 phase 1, testable priority invariant in §8).
func (r *Router) phase1HighPriorityRx() {
	for {
		select {
		case tagged, ok := <-r.Rx.Out():
			if !ok {
				return
			}
			if r.Liveness != nil {
				r.Liveness.NotePacketReceived()
			}
			if tagged.Packet.Header.PacketType.HighPriority() {
				r.dispatch(tagged)
			} else {
				r.pendingRx = append(r.pendingRx, tagged)
			}
		default:
			return
		}
	}
}

// phase2VideoTx pulls one chunk from the active camera source and hands
// it to the video-tx processor, emitting any newly packetized frames
// (spec §4.8 phase 2).
func (r *Router) phase2VideoTx() {
	if r.Camera == nil || r.VideoTx == nil {
		return
	}
	chunk, err := r.Camera.ReadChunk()
	if err != nil || chunk == nil {
		return
	}
	r.VideoTx.Feed(chunk)
	for _, p := range r.VideoTx.PacketizedFrames() {
		r.RadioOut.Push(p)
	}
}

// phase3RemainingRx dispatches every packet buffered by phase 1 that
// was not high-priority (spec §4.8 phase 3).
func (r *Router) phase3RemainingRx() {
	for _, tagged := range r.pendingRx {
		r.dispatch(tagged)
	}
	r.pendingRx = r.pendingRx[:0]
}

func (r *Router) dispatch(tagged rxthread.Tagged) {
	h, ok := r.handlers[tagged.Packet.Header.Component()]
	if !ok {
		return
	}
	h(tagged.Packet, tagged.InterfaceIndex)
}

// phase4LivenessCheck implements spec §4.8 phase 4: fire the link-lost
// alarm exactly once per edge and roll relay mode back to MAIN.
func (r *Router) phase4LivenessCheck() {
	if r.Liveness == nil {
		return
	}
	if r.Liveness.LinkLost() {
		if r.Relay.OnLinkLost() {
			r.Alarms.Fire(alarm.KindLinkToControllerLost, "no packet from controller within timeout")
		}
	} else {
		r.Relay.OnLinkRestored()
		r.Alarms.Reset(alarm.KindLinkToControllerLost)
	}
}

// phase5IPCDrain reads up to 20 messages from each inbound IPC channel
// (spec §4.8 phase 5, §4.7 drain policy) and routes each by component
// tag: LOCAL_CONTROL to the control queue, everything else to radio-out.
func (r *Router) phase5IPCDrain(ctx context.Context) {
	const maxPerPeer = 20
	buf := make([]byte, 4096)

	for _, name := range r.IPC.Names() {
		peer, ok := r.IPC.Peer(name)
		if !ok {
			continue
		}
		read := 0
		for read < maxPerPeer {
			frames, err := peer.ReadFrames(buf)
			for _, frame := range frames {
				var p packet.Packet
				if p.UnmarshalBinary(frame) != nil {
					continue
				}
				if p.Header.Component() == packet.ComponentLocalControl {
					r.Control.Push(p)
				} else {
					r.RadioOut.Push(p)
				}
				read++
			}
			if len(frames) == 0 || err != nil {
				break
			}
		}
		if read > 6 && r.Logger != nil {
			r.Logger.Debug("ipc drain read more than 6 messages", "channel", name, "read", read)
		}
	}

	for r.Control.HasPackets() {
		p, ok := r.Control.Pop()
		if !ok {
			break
		}
		r.dispatch(rxthread.Tagged{Packet: p, InterfaceIndex: -1})
	}
	_ = ctx
}

// phase6Housekeeping runs the periodic work named in spec §4.8 phase 6.
func (r *Router) phase6Housekeeping(ctx context.Context) {
	if r.VideoTx != nil {
		r.VideoTx.PeriodicWork()
	}
	if r.Camera != nil {
		r.Camera.PeriodicCheck()
	}
	r.checkRxHealth()
	r.stepSikLifecycle(ctx)
	r.syncSharedMemoryMirror()
	_, _ = r.pullAudio()
	if r.Tx != nil {
		_ = r.Tx.FlushAll()
	}
}

// checkRxHealth implements the Rx-loop health check named in spec §4.8
// phase 6 and §4.2: any interface the Rx thread marked broken gets
// flagged for reinit. FlagReinitSik escalates straight to the full
// radio reinitializer regardless of whether the broken interface is
// SiK or WiFi (spec §4.5's "it doesn't matter which interface broke"),
// so this is the single entry point for both.
func (r *Router) checkRxHealth() {
	if r.Rx == nil || r.HAL == nil || r.Sik == nil {
		return
	}
	for i := 0; i < r.HAL.Count(); i++ {
		if r.Rx.IsBroken(i) {
			r.FlagReinitSik(i)
		}
	}
}

func (r *Router) pullAudio() ([]byte, error) {
	if r.Audio == nil {
		return nil, nil
	}
	return r.Audio.ReadChunk()
}

// syncSharedMemoryMirror mirrors the router's live state into the
// shared-memory regions named in spec §3/§6 (RadioStats, LoopCounters,
// the process watchdog), so an external observer never needs to reach
// into the process itself.
func (r *Router) syncSharedMemoryMirror() {
	if r.Watchdog != nil {
		r.Watchdog.SetPhase("housekeeping")
	}
	if r.RadioStatsStore != nil && r.HAL != nil {
		r.RadioStatsStore.Write(r.radioStatsSnapshot().Encode())
	}
	if r.LoopCountersStore != nil {
		r.LoopCountersStore.Write(r.loopCountersSnapshot().Encode())
	}
}

func (r *Router) radioStatsSnapshot() shmem.RadioStats {
	var stats shmem.RadioStats
	for i := 0; i < r.HAL.Count() && i < len(stats.PerInterface); i++ {
		info, err := r.HAL.Info(i)
		if err != nil {
			continue
		}
		stats.PerInterface[i] = shmem.InterfaceStats{
			CurrentFrequencyKhz: info.CurrentFrequencyKhz,
			LastRxDatarate:      info.CurrentDatarate,
			LocalRadioLinkID:    info.AssignedLinkID,
		}
	}
	return stats
}

func (r *Router) loopCountersSnapshot() shmem.LoopCounters {
	globalMin, globalAvg, globalMax := r.LoopStats.Global()
	windowMin, windowAvg, windowMax := r.LoopStats.Window()
	return shmem.LoopCounters{
		Iterations:    r.iteration,
		MinRateGlobal: globalMin,
		AvgRateGlobal: globalAvg,
		MaxRateGlobal: globalMax,
		MinRateWindow: windowMin,
		AvgRateWindow: windowAvg,
		MaxRateWindow: windowMax,
	}
}

// phase7RadioOutDrain implements spec §4.8 phase 7: drain the radio-out
// queue, back-annotate extended telemetry, send via the Tx gateway, and
// optionally inject dev-stats/dev-graphs packets. Only the packets queued
// when the phase starts are drained; packets injected at the head during
// the drain go out on the next iteration, and injected packets do not
// trigger further injection.
func (r *Router) phase7RadioOutDrain() {
	for n := r.RadioOut.Len(); n > 0; n-- {
		p, ok := r.RadioOut.Pop()
		if !ok {
			break
		}

		if p.Header.PacketType == packet.TypeTelemetryExtendedV3 {
			r.backAnnotate(&p)
		}

		if err := r.Tx.Send(p, -1); err != nil {
			r.Alarms.Fire(alarm.KindInvalidRadioPacket, err.Error())
		}

		injected := p.Header.PacketType == packet.TypeVideoLinkDevStats || p.Header.PacketType == packet.TypeVideoLinkDevGraphs
		if r.Model != nil && !injected {
			if r.Model.DeveloperFlags.InjectDevStats {
				_ = diag.InjectDevStats(r.RadioOut, r.devStatsSnapshot(), r.Config.VehicleIDSrc)
			}
			if r.Model.DeveloperFlags.InjectDevGraphs {
				_ = diag.InjectDevGraphs(r.RadioOut, packet.VideoLinkDevGraphs{VehicleID: r.Config.VehicleIDSrc}, r.Config.VehicleIDSrc)
			}
		}
	}
}

// LastSamples holds the most recent back-annotation inputs, updated by
// NoteTelemetrySamples from whatever gathers live HAL/Tx counters each
// tick.
type LastSamples struct {
	VideoBitrateBps uint32
	AudioBitrateBps uint32
	TxTimePct       uint8
	Interfaces      []telemetry.InterfaceSample
}

// NoteTelemetrySamples records the live values phase7 back-annotates
// into the next outbound extended-telemetry packet (spec §4.8 phase 7).
func (r *Router) NoteTelemetrySamples(s LastSamples) {
	r.lastSamples = s
}

func (r *Router) backAnnotate(p *packet.Packet) {
	var tel packet.TelemetryExtendedV3
	if err := tel.UnmarshalBinary(p.Payload); err != nil {
		return
	}
	telemetry.BackAnnotate(&tel, r.lastSamples.VideoBitrateBps, r.lastSamples.AudioBitrateBps, r.lastSamples.TxTimePct, r.lastSamples.Interfaces)
	payload, err := tel.MarshalBinary()
	if err != nil {
		return
	}
	p.Payload = payload
}

func (r *Router) devStatsSnapshot() packet.VideoLinkDevStats {
	return packet.VideoLinkDevStats{VehicleID: r.Config.VehicleIDSrc}
}

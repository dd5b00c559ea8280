// Package router implements the main dispatch loop of spec §4.8 as a
// single `Router` context (the §9 design note's replacement for
// Direwolf's free-floating globals), composing every other internal
// package. Each numbered phase of §4.8 is a method on *Router invoked in
// strict order from Run, mirroring how xmit_thread in the teacher
// repeatedly polls rather than being driven by interrupts.
package router

import (
	"context"
	"time"

	"github.com/doismellburning/skyrouter/internal/alarm"
	"github.com/doismellburning/skyrouter/internal/ipcmux"
	"github.com/doismellburning/skyrouter/internal/model"
	"github.com/doismellburning/skyrouter/internal/osctl"
	"github.com/doismellburning/skyrouter/internal/packet"
	"github.com/doismellburning/skyrouter/internal/pktqueue"
	"github.com/doismellburning/skyrouter/internal/radiohal"
	"github.com/doismellburning/skyrouter/internal/reinit"
	"github.com/doismellburning/skyrouter/internal/rig"
	"github.com/doismellburning/skyrouter/internal/rxthread"
	"github.com/doismellburning/skyrouter/internal/shmem"
	"github.com/doismellburning/skyrouter/internal/siklifecycle"
	"github.com/doismellburning/skyrouter/internal/telemetry"
	"github.com/doismellburning/skyrouter/internal/txgateway"
)

// AudioSource is the out-of-scope audio-capture collaborator's contract
// (spec §4.8 phase 6, "audio input pull"). This repository ships no
// implementation; Router.Audio stays nil unless the caller sets one.
type AudioSource interface {
	ReadChunk() ([]byte, error)
}

// VideoTxProcessor packetizes captured video into post-FEC frames ready
// for transmission (spec §4.8 phase 2); out of scope for this router's
// own logic, injected so Router can drive it.
type VideoTxProcessor interface {
	Feed(chunk []byte)
	PacketizedFrames() []packet.Packet
	PeriodicWork()
}

// CameraSource supplies raw video chunks to the Tx pipeline.
type CameraSource interface {
	ReadChunk() ([]byte, error)
	PeriodicCheck()
}

// Logger is the structured log sink for diagnostics that don't warrant a
// radio-out alarm (spec §4.7's "when more than 6 messages were read in a
// single drain, emit a debug log"). Satisfied directly by
// *github.com/charmbracelet/log.Logger. Nil disables logging.
type Logger interface {
	Debug(msg interface{}, keyvals ...interface{})
}

// Handler processes one dispatched packet; registered per component tag.
type Handler func(p packet.Packet, sourceInterface int)

// Config bundles the loop's tunables, separated from the wiring fields in
// Router itself.
type Config struct {
	VehicleIDSrc     uint32
	LinkLostTimeout  time.Duration
	MaxLoopTimeMS    float64
	LoopStatsWindow  time.Duration
	IPCDrainEveryN   int
	HousekeepEveryN  int
	Concatenate      bool
}

// Router is the single context object every phase method borrows from,
// replacing the teacher's pervasive package-level globals (spec §9).
type Router struct {
	Config Config

	HAL       *radiohal.HAL
	Rx        *rxthread.Thread
	Tx        *txgateway.Gateway
	RadioOut  *pktqueue.Queue
	Control   *pktqueue.Queue
	IPC       *ipcmux.Mux
	Sik       *siklifecycle.Machine
	Model     *model.VehicleModel
	Alarms    *alarm.Emitter
	Liveness  *telemetry.LivenessMonitor
	Relay     *telemetry.RelayTracker
	LoopStats *LoopStats
	Logger    Logger

	RadioStatsStore   *shmem.Store
	LoopCountersStore *shmem.Store
	Watchdog          ProcessWatchdogWriter

	Exec      osctl.Executor
	Reinit    *reinit.Reinitializer

	// Rigs holds an open Hamlib session per interface index that was
	// assigned a RigHamlibModelID (spec §4.1's rig-control alternative to
	// the AT-command SiK path), opened lazily by OpenInterface.
	Rigs map[int]*rig.Controller

	Audio  AudioSource
	VideoTx VideoTxProcessor
	Camera CameraSource

	handlers map[packet.Component]Handler

	pendingRx   []rxthread.Tagged
	lastSamples LastSamples

	iteration uint64
	quit      chan struct{}
}

// ProcessWatchdogWriter is the seam Router uses to advance the
// shared-memory heartbeat (spec §4.6's "writing heartbeat timestamps ...
// before and after each blocking OS call").
type ProcessWatchdogWriter interface {
	SetPhase(name string)
}

// New constructs a Router. Callers finish wiring optional collaborators
// (Audio, VideoTx, Camera, handlers) before calling Run.
func New(cfg Config) *Router {
	r := &Router{
		Config:   cfg,
		RadioOut: pktqueue.New(256),
		Control:  pktqueue.New(64),
		handlers: make(map[packet.Component]Handler),
		Rigs:     make(map[int]*rig.Controller),
		quit:     make(chan struct{}),
	}
	r.Liveness = telemetry.NewLivenessMonitor(cfg.LinkLostTimeout)
	r.Relay = telemetry.NewRelayTracker(packet.RelayModeMain)
	r.LoopStats = NewLoopStats(cfg.MaxLoopTimeMS, cfg.LoopStatsWindow)
	r.Alarms = alarm.New(func(p packet.Packet) { r.RadioOut.Push(p) })
	return r
}

// RegisterHandler installs the dispatch handler for a component tag
// (spec §4.8 phase 3: "dispatch each to the component handler").
func (r *Router) RegisterHandler(c packet.Component, h Handler) {
	r.handlers[c] = h
}

// Stop signals Run to exit after the current iteration.
func (r *Router) Stop() { close(r.quit) }

// Run executes the main dispatch loop until Stop is called or ctx is
// cancelled, at the ≥1kHz cadence named in spec §4.8. Each call to
// RunOnce performs phases 1-7 in strict order; Run itself then does the
// phase 8 loop-duration accounting and overload alarm.
func (r *Router) Run(ctx context.Context) error {
	for {
		select {
		case <-r.quit:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		start := time.Now()
		r.RunOnce(ctx)
		if overload := r.LoopStats.Observe(time.Since(start)); overload {
			r.Alarms.Fire(alarm.KindCPULoopOverload, "loop overload threshold exceeded")
		}
		r.iteration++
	}
}

// RunOnce runs one iteration: phases 1-7 of spec §4.8 in strict order.
// Phase 8 (loop-duration accounting) is done by Run around each call.
func (r *Router) RunOnce(ctx context.Context) {
	r.phase1HighPriorityRx()
	r.phase2VideoTx()
	r.phase3RemainingRx()
	r.phase4LivenessCheck()
	if r.Config.IPCDrainEveryN > 0 && r.iteration%uint64(r.Config.IPCDrainEveryN) == 0 {
		r.phase5IPCDrain(ctx)
	}
	if r.Config.HousekeepEveryN > 0 && r.iteration%uint64(r.Config.HousekeepEveryN) == 0 {
		r.phase6Housekeeping(ctx)
	}
	r.phase7RadioOutDrain()
}

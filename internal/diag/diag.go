// Package diag implements the router's diagnostics surface: dev-stats
// and dev-graphs head-of-queue injection (spec §4.8 phase 7) and an mDNS
// advertisement of the diagnostics endpoint, explicitly NOT used for
// peer/controller discovery (the router's controller peers are fixed
// named IPC channels, not discovered — spec's non-goal on discovery is
// respected; only the human-facing diagnostics port is advertised).
package diag

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/brutella/dnssd"

	"github.com/doismellburning/skyrouter/internal/packet"
	"github.com/doismellburning/skyrouter/internal/pktqueue"
)

// InjectDevStats places a dev-video-link-stats packet at the head of the
// radio-out queue immediately after the telemetry packet that triggered
// it, per spec §4.8 phase 7 ("optionally inject dev-stats/dev-graphs
// packets at the head of the queue") — grounded on internal/pktqueue's
// InjectFirst, itself grounded on the teacher's tq.go head-of-line
// insertion used there for digipeated traffic.
func InjectDevStats(q *pktqueue.Queue, stats packet.VideoLinkDevStats, vehicleIDSrc uint32) error {
	payload, err := stats.MarshalBinary()
	if err != nil {
		return err
	}
	p := packet.Packet{
		Header: packet.Header{
			PacketFlags:  packet.Flag(packet.ComponentTelemetry),
			PacketType:   packet.TypeVideoLinkDevStats,
			VehicleIDSrc: vehicleIDSrc,
		},
		Payload: payload,
	}
	q.InjectFirst(p)
	return nil
}

// InjectDevGraphs places a dev-video-link-graphs packet at the head of
// the radio-out queue, following the same placement rule as
// InjectDevStats.
func InjectDevGraphs(q *pktqueue.Queue, graphs packet.VideoLinkDevGraphs, vehicleIDSrc uint32) error {
	payload, err := graphs.MarshalBinary()
	if err != nil {
		return err
	}
	p := packet.Packet{
		Header: packet.Header{
			PacketFlags:  packet.Flag(packet.ComponentTelemetry),
			PacketType:   packet.TypeVideoLinkDevGraphs,
			VehicleIDSrc: vehicleIDSrc,
		},
		Payload: payload,
	}
	q.InjectFirst(p)
	return nil
}

// DefaultServiceName mirrors the teacher's dns_sd_default_service_name
// convention ("<product> on <hostname>"), renamed to this router's
// diagnostics service.
func DefaultServiceName() string {
	hostname, err := os.Hostname()
	if err != nil {
		return "skyrouter diagnostics"
	}
	hostname, _, _ = strings.Cut(hostname, ".")
	return fmt.Sprintf("skyrouter diagnostics on %s", hostname)
}

// Advertiser advertises the router's diagnostics endpoint over mDNS so a
// technician's laptop can find it on the local network without typing an
// IP, matching the teacher's dns_sd.go motivation but scoped to the
// diagnostics port only.
type Advertiser struct {
	responder dnssd.Responder
	cancel    context.CancelFunc
}

// Advertise registers the diagnostics service and starts responding to
// mDNS queries until the returned Advertiser is stopped.
func Advertise(ctx context.Context, name string, port int) (*Advertiser, error) {
	cfg := dnssd.Config{
		Name: name,
		Type: "_skyrouter-diag._tcp",
		Port: port,
	}
	service, err := dnssd.NewService(cfg)
	if err != nil {
		return nil, fmt.Errorf("diag: build mdns service: %w", err)
	}

	responder, err := dnssd.NewResponder()
	if err != nil {
		return nil, fmt.Errorf("diag: create mdns responder: %w", err)
	}
	if _, err := responder.Add(service); err != nil {
		return nil, fmt.Errorf("diag: register mdns service: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	go func() {
		_ = responder.Respond(runCtx)
	}()

	return &Advertiser{responder: responder, cancel: cancel}, nil
}

// Stop withdraws the advertisement.
func (a *Advertiser) Stop() {
	if a.cancel != nil {
		a.cancel()
	}
}

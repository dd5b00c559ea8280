package router

import (
	"errors"

	"github.com/doismellburning/skyrouter/internal/packet"
)

var errModelNotLoaded = errors.New("router: no vehicle model loaded")

// RegisterDefaultHandlers wires the component handlers named in spec §4.8
// phase 3/phase 5: LOCAL_CONTROL packets reconfigure the SiK lifecycle
// machine or replace the on-disk vehicle model, the way the teacher's
// `cmd/direwolf` wires its KISS command handlers before starting the
// main loop.
func RegisterDefaultHandlers(r *Router) {
	r.RegisterHandler(packet.ComponentLocalControl, r.handleLocalControl)
}

func (r *Router) handleLocalControl(p packet.Packet, _ int) {
	switch p.Header.PacketType {
	case packet.TypeLocalControlSikReconfig:
		r.handleSikReconfig(p)
	case packet.TypeRubyModelSettings:
		r.handleModelSettings(p)
	}
}

func (r *Router) handleSikReconfig(p packet.Packet) {
	var req packet.LocalControlSikReconfig
	if req.UnmarshalBinary(p.Payload) != nil {
		return
	}
	r.FlagUpdateSik(int(req.InterfaceIndex))
}

// handleModelSettings applies a controller-pushed model replacement
// (spec §6 "RubyModelSettings carries the full vehicle model on request
// or change"), saving it to disk and answering with a CommandResponse,
// matching the teacher's config-reload-then-ack shape.
func (r *Router) handleModelSettings(p packet.Packet) {
	var settings packet.RubyModelSettings
	if settings.UnmarshalBinary(p.Payload) != nil {
		return
	}

	var err error
	if r.Model == nil {
		err = errModelNotLoaded
	} else {
		err = r.Model.ReplaceContents(settings.ModelYAML)
	}

	resp := packet.Packet{
		Header: packet.Header{
			PacketFlags: packet.Flag(packet.ComponentLocalControl),
			PacketType:  packet.TypeCommandResponse,
		},
	}
	cr := packet.CommandResponse{CommandID: uint32(packet.TypeRubyModelSettings), OK: err == nil}
	if err != nil {
		cr.Detail = []byte(err.Error())
	}
	payload, marshalErr := cr.MarshalBinary()
	if marshalErr != nil {
		return
	}
	resp.Payload = payload
	r.RadioOut.Push(resp)
}

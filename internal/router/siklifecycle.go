package router

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/doismellburning/skyrouter/internal/packet"
	"github.com/doismellburning/skyrouter/internal/radiohal"
	"github.com/doismellburning/skyrouter/internal/reinit"
	"github.com/doismellburning/skyrouter/internal/siklifecycle"
	"github.com/doismellburning/skyrouter/internal/txgateway"
)

// sikInterfaceIndexes lists every enumerated SiK-class interface.
func (r *Router) sikInterfaceIndexes() []int {
	if r.HAL == nil {
		return nil
	}
	var out []int
	for i := 0; i < r.HAL.Count(); i++ {
		if r.HAL.IsSik(i) {
			out = append(out, i)
		}
	}
	return out
}

// FlagUpdateSik requests a reconfigure of the given SiK interface (or
// all SiK interfaces, if i < 0) with the current model parameters,
// matching spec §4.5's flag_update_sik(i) transition.
func (r *Router) FlagUpdateSik(i int) {
	r.Sik.FlagUpdateSik(i, r.sikInterfaceIndexes())
}

// FlagReinitSik requests a full SiK reinit after brokenIndex was
// observed broken by the Rx thread, matching spec §4.5's
// flag_reinit_sik(i_broke) transition.
func (r *Router) FlagReinitSik(brokenIndex int) {
	r.Sik.FlagReinitSik(brokenIndex, r.sikInterfaceIndexes())
}

// stepSikLifecycle drives the SiK lifecycle machine's periodic tick
// (spec §4.8 phase 6, §4.5): close pending interfaces, reconfigure them
// with the model's frequency for the interface, and reopen them,
// escalating on repeated failure. Only the frequency is passed to
// SikSetParams; the link's datarate, power and ECC/LBT/MCSTR flags are
// not applied here.
func (r *Router) stepSikLifecycle(ctx context.Context) {
	if r.Sik == nil || r.HAL == nil {
		return
	}
	if !r.Sik.ReadyToCheck(time.Now()) {
		return
	}

	sikIfaces := r.sikInterfaceIndexes()

	// StateReinitAll escalates past per-interface close/reopen (that is
	// what got it into this state in the first place) straight to the
	// full radio reinitializer (spec §4.6).
	if r.Sik.State() == siklifecycle.StateReinitAll {
		r.runFullReinit(ctx)
		return
	}

	for _, i := range sikIfaces {
		if !r.Sik.ReopenPending(i) {
			continue
		}
		if err := r.reconfigureOneSikInterface(i); err != nil {
			r.Sik.MarkOperationFailed(i, sikIfaces)
			continue
		}
		r.Sik.MarkReopened(i)
	}
}

func (r *Router) reconfigureOneSikInterface(i int) error {
	r.Rx.RemoveSource(i)
	r.Tx.RemoveInterface(i)
	if err := r.HAL.SikClose(i); err != nil {
		return err
	}

	if freqKhz, ok := r.Model.FrequencyForInterface(i); ok {
		params := radiohal.SikParams{FrequencyKhz: freqKhz}
		if err := r.HAL.SikSetParams(i, params); err != nil {
			return err
		}
	}
	if err := r.HAL.SikOpenRW(i); err != nil {
		return err
	}

	rx, err := r.HAL.OpenRx(i)
	if err != nil {
		return err
	}
	r.Rx.AddSource(i, newRadioSource(rx))
	r.Rx.ClearBroken(i)

	tx, err := r.HAL.OpenTx(i)
	if err != nil {
		return err
	}
	link := -1
	if info, err := r.HAL.Info(i); err == nil {
		link = int(info.AssignedLinkID)
	}
	r.Tx.SetInterface(txgateway.Interface{
		Index:        i,
		AssignedLink: link,
		SikClass:     true,
		Writer:       frameWriter{tx},
	})
	return nil
}

// frameWriter adapts an io.WriteCloser opened by the HAL into
// txgateway.Writer.
type frameWriter struct {
	w io.WriteCloser
}

func (f frameWriter) WriteFrame(frame []byte) error {
	_, err := f.w.Write(frame)
	return err
}

// runFullReinit invokes the full radio reinitializer and, on success,
// broadcasts RADIO_REINITIALIZED, resets the lifecycle machine to idle
// and clears the Rx thread's broken flags (spec §4.6 step 7). When the
// recovery budget runs out it requests a hardware reboot instead.
func (r *Router) runFullReinit(ctx context.Context) {
	if r.Reinit == nil {
		return
	}
	if err := r.Reinit.Run(ctx); err != nil {
		if errors.Is(err, reinit.ErrRecoveryBudgetExhausted) && r.Reinit.Exec != nil {
			_ = r.Reinit.Exec.RequestHardwareReboot(ctx)
		}
		return
	}

	r.Sik.Reset()
	if r.Rx != nil {
		for i := 0; i < r.HAL.Count(); i++ {
			r.Rx.ClearBroken(i)
		}
	}

	p := packet.Packet{
		Header: packet.Header{
			PacketFlags: packet.Flag(packet.ComponentLocalControl),
			PacketType:  packet.TypeRadioReinitialized,
		},
	}
	payload, err := packet.RadioReinitialized{
		VehicleID:      r.Config.VehicleIDSrc,
		InterfacesOpen: uint8(r.HAL.Count()),
	}.MarshalBinary()
	if err == nil {
		p.Payload = payload
		r.RadioOut.Push(p)
	}
}

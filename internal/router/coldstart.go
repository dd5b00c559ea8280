package router

import (
	"fmt"

	"github.com/doismellburning/skyrouter/internal/radiohal"
	"github.com/doismellburning/skyrouter/internal/rig"
	"github.com/doismellburning/skyrouter/internal/txgateway"
)

// OpenInterface opens interface i for Rx/Tx and wires it into the Rx
// thread and Tx gateway, applying the model's configured frequency first
// if the interface is configurable and assigned to a link. It is used
// both at cold start (spec §8 scenario 1) and by the full radio
// reinitializer's ReopenAll step (spec §4.6 step 6), so every interface
// -- SiK or WiFi -- goes through the same open sequence regardless of
// why it is being opened.
func (r *Router) OpenInterface(i int) error {
	info, err := r.HAL.Info(i)
	if err != nil {
		return fmt.Errorf("router: open interface %d: %w", i, err)
	}

	linkID := int8(-1)
	if r.Model != nil {
		if freqKhz, ok := r.Model.FrequencyForInterface(i); ok {
			for _, ic := range r.Model.Interfaces {
				if ic.Index == i {
					linkID = ic.AssignedLinkID
					break
				}
			}
			if rigModelID, ok := r.Model.RigModelForInterface(i); ok {
				if err := r.openRigController(i, rigModelID, info.DriverName); err != nil {
					return fmt.Errorf("router: rig open on interface %d: %w", i, err)
				}
				if err := r.Rigs[i].SetFrequency(float64(freqKhz) * 1000); err != nil {
					return fmt.Errorf("router: rig set frequency on interface %d: %w", i, err)
				}
			} else if info.Kind == radiohal.KindSiK {
				if err := r.HAL.SikSetParams(i, radiohal.SikParams{FrequencyKhz: freqKhz}); err != nil {
					return fmt.Errorf("router: sik set params on interface %d: %w", i, err)
				}
			} else if info.Configurable {
				if err := r.HAL.SetFrequency(i, linkID, freqKhz); err != nil {
					return fmt.Errorf("router: set frequency on interface %d: %w", i, err)
				}
			}
		}
	}

	if info.Kind == radiohal.KindSiK {
		if err := r.HAL.SikOpenRW(i); err != nil {
			return fmt.Errorf("router: sik open interface %d: %w", i, err)
		}
	}

	rx, err := r.HAL.OpenRx(i)
	if err != nil {
		return fmt.Errorf("router: open rx on interface %d: %w", i, err)
	}
	r.Rx.AddSource(i, newRadioSource(rx))
	r.Rx.ClearBroken(i)

	tx, err := r.HAL.OpenTx(i)
	if err != nil {
		return fmt.Errorf("router: open tx on interface %d: %w", i, err)
	}
	r.Tx.SetInterface(txgateway.Interface{
		Index:        i,
		AssignedLink: int(linkID),
		SikClass:     info.Kind == radiohal.KindSiK,
		Writer:       frameWriter{tx},
	})
	return nil
}

// openRigController lazily opens and caches a Hamlib session for
// interface i, reusing an already-open session across reconfigures.
func (r *Router) openRigController(i, modelID int, device string) error {
	if _, ok := r.Rigs[i]; ok {
		return nil
	}
	c, err := rig.Open(modelID, device)
	if err != nil {
		return err
	}
	r.Rigs[i] = c
	return nil
}

// OpenAllInterfaces opens every interface the HAL currently enumerates,
// used at cold start and as the reinitializer's ReopenAll step.
func (r *Router) OpenAllInterfaces() error {
	for i := 0; i < r.HAL.Count(); i++ {
		if err := r.OpenInterface(i); err != nil {
			return err
		}
	}
	return nil
}

// CloseAllInterfaces unwires every interface from the Rx thread and the
// Tx gateway, closes SiK transports and cached rig sessions, and is used
// as the reinitializer's CloseAll step (spec §4.6 step 2). WiFi
// interfaces are not closed through the HAL here.
func (r *Router) CloseAllInterfaces() error {
	for i := 0; i < r.HAL.Count(); i++ {
		r.Rx.RemoveSource(i)
		r.Tx.RemoveInterface(i)
		info, err := r.HAL.Info(i)
		if err != nil {
			continue
		}
		if info.Kind == radiohal.KindSiK {
			_ = r.HAL.SikClose(i)
		}
		if c, ok := r.Rigs[i]; ok {
			_ = c.Close()
			delete(r.Rigs, i)
		}
	}
	return nil
}

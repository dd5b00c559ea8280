// Package reinit implements the full radio reinitializer of spec §4.6:
// the escalation path taken when the WiFi subsystem is unusable. It
// drives internal/osctl through a 20s-bounded recovery loop, advancing a
// shared-memory watchdog heartbeat around every blocking OS call so an
// external supervisor does not kill the process mid-recovery, matching
// how the teacher's xmit_thread loop is driven by repeated short polls
// (wait_for_clear_channel) rather than a single blocking call.
package reinit

import (
	"context"
	"errors"
	"time"

	"github.com/doismellburning/skyrouter/internal/osctl"
)

// ErrRecoveryBudgetExhausted is returned when no wlanN interface
// reappears within the recovery budget; the caller is expected to
// request a hardware reboot.
var ErrRecoveryBudgetExhausted = errors.New("reinit: recovery budget exhausted with no wlan interface")

// Heartbeat is the seam for advancing the shared-memory process watchdog
// around blocking OS calls (spec §4.6: "writing heartbeat timestamps
// into a shared-memory region before and after each blocking OS call").
type Heartbeat func()

// Reinitializer runs the full radio reinit sequence.
type Reinitializer struct {
	Exec      osctl.Executor
	Heartbeat Heartbeat
	Budget    time.Duration // default 20s
	RetryWait time.Duration // default 1s between recovery attempts

	// CloseAll closes every open Rx/Tx interface (step 2); EnumerateHAL,
	// ReapplyConfig, and ReopenAll implement steps 4-6. Broadcast implements
	// step 7. All are injected so the sequence is testable without a
	// real HAL.
	CloseAll      func(ctx context.Context) error
	EnumerateHAL  func(ctx context.Context) error
	ReapplyConfig func(ctx context.Context) error
	ReopenAll     func(ctx context.Context) error
	Broadcast     func(ctx context.Context) error

	// InProgress is set true for the duration of the sequence and
	// false once it completes, matching the external-watchdog-visible
	// in-progress flag of step 1/7.
	InProgress bool
}

func (r *Reinitializer) heartbeat() {
	if r.Heartbeat != nil {
		r.Heartbeat()
	}
}

func (r *Reinitializer) budget() time.Duration {
	if r.Budget <= 0 {
		return 20 * time.Second
	}
	return r.Budget
}

func (r *Reinitializer) retryWait() time.Duration {
	if r.RetryWait <= 0 {
		return time.Second
	}
	return r.RetryWait
}

// Run executes the full sequence. On ErrRecoveryBudgetExhausted the
// caller must request a hardware reboot via r.Exec.RequestHardwareReboot
// (kept as a caller-driven step so tests can observe the boundary
// explicitly rather than Run silently rebooting the board).
func (r *Reinitializer) Run(ctx context.Context) error {
	r.InProgress = true
	defer func() { r.InProgress = false }()

	r.heartbeat()
	if r.CloseAll != nil {
		if err := r.CloseAll(ctx); err != nil {
			return err
		}
	}
	r.heartbeat()

	if err := r.recoverNetworking(ctx); err != nil {
		return err
	}

	if r.EnumerateHAL != nil {
		if err := r.EnumerateHAL(ctx); err != nil {
			return err
		}
	}
	r.heartbeat()

	if r.ReapplyConfig != nil {
		if err := r.ReapplyConfig(ctx); err != nil {
			return err
		}
	}
	r.heartbeat()

	if r.ReopenAll != nil {
		if err := r.ReopenAll(ctx); err != nil {
			return err
		}
	}
	r.heartbeat()

	if r.Broadcast != nil {
		if err := r.Broadcast(ctx); err != nil {
			return err
		}
	}
	r.heartbeat()
	return nil
}

// recoverNetworking implements step 3: restart networking, toggle
// wlanN links down then up, re-enumerate the USB bus, retrying until a
// wlanN interface appears or the recovery budget expires.
func (r *Reinitializer) recoverNetworking(ctx context.Context) error {
	deadline := time.Now().Add(r.budget())

	for {
		r.heartbeat()
		if err := r.Exec.RestartNetworking(ctx); err != nil {
			return err
		}
		r.heartbeat()

		ifaces, err := r.Exec.ListWlanInterfaces(ctx)
		if err != nil {
			return err
		}
		for _, name := range ifaces {
			_ = r.Exec.SetLinkUp(ctx, name, false)
			_ = r.Exec.SetLinkUp(ctx, name, true)
		}
		r.heartbeat()

		ifaces, err = r.Exec.ListWlanInterfaces(ctx)
		if err != nil {
			return err
		}
		if len(ifaces) > 0 {
			return nil
		}

		if time.Now().After(deadline) {
			return ErrRecoveryBudgetExhausted
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(r.retryWait()):
		}
	}
}

// Package osctl provides the injectable OS command executor named in
// spec §9's design note ("shell-out for OS configuration ... model it as
// an injectable command executor for testability"), covering the full
// radio reinitializer's bring-up sequence (spec §4.6): restarting the OS
// networking subsystem, toggling wlanN links, re-enumerating the USB bus,
// and requesting a hardware reboot.
package osctl

import "context"

// Executor is the seam the reinitializer (internal/reinit) calls through,
// matching the teacher's pattern of small interfaces behind test shims
// (e.g. *_test_shim.go).
type Executor interface {
	// RestartNetworking restarts the OS networking subsystem.
	RestartNetworking(ctx context.Context) error
	// SetLinkUp brings a wlanN-style link up or down.
	SetLinkUp(ctx context.Context, ifName string, up bool) error
	// ListWlanInterfaces re-enumerates the USB bus and returns the names
	// of any wlanN interfaces currently present.
	ListWlanInterfaces(ctx context.Context) ([]string, error)
	// RequestHardwareReboot drives whatever mechanism reboots the board
	// (spec §4.6 step 3: "if the 20s budget expires, request a hardware
	// reboot").
	RequestHardwareReboot(ctx context.Context) error
}

// Fake is a scriptable Executor for tests: each method returns the queued
// error/value, defaulting to success/empty.
type Fake struct {
	RestartErr      error
	SetLinkUpErr    error
	WlanInterfaces  []string
	ListErr         error
	RebootCalled    bool
	RebootErr       error
	LinkUpCalls     []struct {
		IfName string
		Up     bool
	}
}

func (f *Fake) RestartNetworking(context.Context) error { return f.RestartErr }

func (f *Fake) SetLinkUp(_ context.Context, ifName string, up bool) error {
	f.LinkUpCalls = append(f.LinkUpCalls, struct {
		IfName string
		Up     bool
	}{ifName, up})
	return f.SetLinkUpErr
}

func (f *Fake) ListWlanInterfaces(context.Context) ([]string, error) {
	return f.WlanInterfaces, f.ListErr
}

func (f *Fake) RequestHardwareReboot(context.Context) error {
	f.RebootCalled = true
	return f.RebootErr
}

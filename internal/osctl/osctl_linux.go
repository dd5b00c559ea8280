//go:build linux

package osctl

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/jochenvg/go-udev"
	"github.com/vishvananda/netlink"
	"github.com/warthog618/go-gpiocdev"
)

// Linux is the production Executor: netlink for link up/down, go-udev for
// USB re-enumeration, and a GPIO output line for the hardware reboot
// request when the reinitializer's 20s recovery budget expires.
type Linux struct {
	RebootChip   string
	RebootOffset int
}

func (l *Linux) RestartNetworking(ctx context.Context) error {
	cmd := exec.CommandContext(ctx, "systemctl", "restart", "networking")
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("osctl: restart networking: %w: %s", err, out)
	}
	return nil
}

func (l *Linux) SetLinkUp(_ context.Context, ifName string, up bool) error {
	link, err := netlink.LinkByName(ifName)
	if err != nil {
		return fmt.Errorf("osctl: link %s: %w", ifName, err)
	}
	if up {
		return netlink.LinkSetUp(link)
	}
	return netlink.LinkSetDown(link)
}

func (l *Linux) ListWlanInterfaces(context.Context) ([]string, error) {
	u := udev.Udev{}
	e := u.NewEnumerate()
	if err := e.AddMatchSubsystem("net"); err != nil {
		return nil, fmt.Errorf("osctl: enumerate net subsystem: %w", err)
	}
	devices, err := e.Devices()
	if err != nil {
		return nil, fmt.Errorf("osctl: enumerate devices: %w", err)
	}

	var names []string
	for _, d := range devices {
		name := d.Sysname()
		if strings.HasPrefix(name, "wlan") {
			names = append(names, name)
		}
	}
	return names, nil
}

func (l *Linux) RequestHardwareReboot(context.Context) error {
	line, err := gpiocdev.RequestLine(l.RebootChip, l.RebootOffset, gpiocdev.AsOutput(0))
	if err != nil {
		return fmt.Errorf("osctl: request reboot line: %w", err)
	}
	defer line.Close()

	if err := line.SetValue(1); err != nil {
		return fmt.Errorf("osctl: assert reboot line: %w", err)
	}
	return nil
}

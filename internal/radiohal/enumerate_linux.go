//go:build linux

package radiohal

import (
	"fmt"
	"strings"

	"github.com/jochenvg/go-udev"
)

// UdevEnumerate walks the USB/tty subsystems for SiK serial radios and the
// net subsystem for WiFi monitor-mode adapters, grounded on go-udev usage
// elsewhere in the reference corpus (internal/osctl's USB re-enumeration).
func UdevEnumerate() ([]Interface, error) {
	u := udev.Udev{}

	var ifaces []Interface
	idx := 0

	ttyEnum := u.NewEnumerate()
	if err := ttyEnum.AddMatchSubsystem("tty"); err != nil {
		return nil, fmt.Errorf("radiohal: enumerate tty subsystem: %w", err)
	}
	ttyDevices, err := ttyEnum.Devices()
	if err != nil {
		return nil, fmt.Errorf("radiohal: list tty devices: %w", err)
	}
	for _, d := range ttyDevices {
		if d.PropertyValue("ID_VENDOR_ID") == "" {
			continue // skip non-USB serial nodes (e.g. the system console).
		}
		ifaces = append(ifaces, Interface{
			Index:        idx,
			Kind:         KindSiK,
			DriverName:   d.Devnode(),
			Configurable: true,
		})
		idx++
	}

	netEnum := u.NewEnumerate()
	if err := netEnum.AddMatchSubsystem("net"); err != nil {
		return nil, fmt.Errorf("radiohal: enumerate net subsystem: %w", err)
	}
	netDevices, err := netEnum.Devices()
	if err != nil {
		return nil, fmt.Errorf("radiohal: list net devices: %w", err)
	}
	for _, d := range netDevices {
		name := d.Sysname()
		if !strings.HasPrefix(name, "wlan") {
			continue
		}
		ifaces = append(ifaces, Interface{
			Index:        idx,
			Kind:         KindWiFiMonitor,
			DriverName:   name,
			Configurable: true,
		})
		idx++
	}

	return ifaces, nil
}

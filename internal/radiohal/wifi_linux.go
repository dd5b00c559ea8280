//go:build linux

package radiohal

import (
	"fmt"
	"io"
	"os/exec"

	"golang.org/x/sys/unix"
)

// RawWifi is the production WifiTransport: a PF_PACKET raw socket bound to
// the monitor-mode interface for frame I/O, grounded on the pack's raw
// AF_PACKET listener pattern. Constructing and maintaining actual 802.11
// monitor-mode/radiotap framing is the injection library named out of
// scope in spec §1; this only moves already-framed bytes in and out of
// the kernel's raw socket for whatever monitor-mode driver is bound to
// the interface.
type RawWifi struct{}

func htons(v uint16) uint16 { return (v << 8) | (v >> 8) }

func rawSocket(ifName string) (int, error) {
	fd, err := unix.Socket(unix.AF_PACKET, unix.SOCK_RAW, int(htons(unix.ETH_P_ALL)))
	if err != nil {
		return -1, fmt.Errorf("radiohal: open raw socket for %s: %w (requires CAP_NET_RAW)", ifName, err)
	}

	idx, err := unix.IfNameIndex()
	if err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("radiohal: list interfaces: %w", err)
	}
	ifIndex := -1
	for _, n := range idx {
		if n.Name == ifName {
			ifIndex = int(n.Index)
			break
		}
	}
	if ifIndex < 0 {
		unix.Close(fd)
		return -1, fmt.Errorf("radiohal: interface %s not found", ifName)
	}

	addr := &unix.SockaddrLinklayer{Protocol: htons(unix.ETH_P_ALL), Ifindex: ifIndex}
	if err := unix.Bind(fd, addr); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("radiohal: bind raw socket to %s: %w", ifName, err)
	}
	return fd, nil
}

type rawSocketHandle struct {
	fd int
}

func (h *rawSocketHandle) Read(p []byte) (int, error) {
	n, _, err := unix.Recvfrom(h.fd, p, 0)
	if err != nil {
		return 0, fmt.Errorf("radiohal: recvfrom: %w", err)
	}
	return n, nil
}

func (h *rawSocketHandle) Write(p []byte) (int, error) {
	if err := unix.Send(h.fd, p, 0); err != nil {
		return 0, fmt.Errorf("radiohal: send: %w", err)
	}
	return len(p), nil
}

func (h *rawSocketHandle) Close() error { return unix.Close(h.fd) }

func (RawWifi) OpenRx(ifName string) (io.ReadCloser, error) {
	fd, err := rawSocket(ifName)
	if err != nil {
		return nil, err
	}
	return &rawSocketHandle{fd: fd}, nil
}

func (RawWifi) OpenTx(ifName string) (io.WriteCloser, error) {
	fd, err := rawSocket(ifName)
	if err != nil {
		return nil, err
	}
	return &rawSocketHandle{fd: fd}, nil
}

// SetFrequency shells out to `iw`, the same way internal/osctl.Linux shells
// out to systemctl; nl80211 channel-set is out of the raw socket's reach.
func (RawWifi) SetFrequency(ifName string, khz uint32) error {
	mhz := khz / 1000
	cmd := exec.Command("iw", "dev", ifName, "set", "freq", fmt.Sprintf("%d", mhz))
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("radiohal: set frequency on %s: %w: %s", ifName, err, out)
	}
	return nil
}

func (RawWifi) Close(ifName string) error { return nil }

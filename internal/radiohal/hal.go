// Package radiohal implements the Radio HAL (spec §4.1): a uniform,
// synchronous, blocking view over N physical radio interfaces (WiFi
// monitor-mode adapters and SiK serial radios). The SiK transport is
// grounded directly on the teacher's serial_port.go (open/write/read/close
// over github.com/pkg/term in raw mode); enumeration is grounded on
// go-udev walking the USB subsystem. The 802.11 monitor-mode injection
// library and the SiK AT-command protocol bytes are explicitly out of
// scope (spec §1), so both are reached through small injected interfaces.
package radiohal

import (
	"errors"
	"fmt"
	"io"
	"sync"
)

// Kind classifies a physical radio interface (spec §3 RadioInterface).
type Kind int

const (
	KindWiFiMonitor Kind = iota
	KindSiK
	KindOther
)

// Interface is the HAL's view of one physical radio interface (spec §3).
type Interface struct {
	Index               int
	Kind                Kind
	DriverName          string
	Configurable        bool
	OpenedForRead       bool
	OpenedForWrite      bool
	CurrentFrequencyKhz uint32
	CurrentDatarate     int32
	AssignedLinkID      int8
}

// SikParams is the set of AT-style parameters applied by sik_set_params
// (spec §4.1).
type SikParams struct {
	FrequencyKhz uint32
	SpreadCode   int
	NumChannels  int
	NetID        int
	Datarate     int
	TxPowerDbm   int
	ECC          bool
	LBT          bool
	MCSTR        bool
}

// SikCodec applies AT-style parameters over an already-open serial
// transport. The wire protocol bytes themselves are out of scope (spec
// §1); this is the seam a concrete SiK driver plugs into.
type SikCodec interface {
	Apply(rw io.ReadWriter, p SikParams) error
}

// SerialTransport abstracts github.com/pkg/term's *term.Term so the HAL
// can be tested without a real serial device.
type SerialTransport interface {
	io.ReadWriteCloser
	SetSpeed(baud int) error
}

// SerialOpener opens a serial transport by device name, matching the
// teacher's serial_port_open signature and raw-mode behavior.
type SerialOpener func(device string, baud int) (SerialTransport, error)

// WifiTransport abstracts the out-of-scope 802.11 monitor-mode injection
// library (spec §1).
type WifiTransport interface {
	OpenRx(ifName string) (io.ReadCloser, error)
	OpenTx(ifName string) (io.WriteCloser, error)
	SetFrequency(ifName string, khz uint32) error
	Close(ifName string) error
}

// Enumerator discovers the interfaces currently present (spec §4.1
// enumerate()), grounded on go-udev in production (UdevEnumerate in
// internal/radiohal's enumerate_linux.go) or a fake in tests.
type Enumerator func() ([]Interface, error)

var ErrUnknownInterface = errors.New("radiohal: unknown interface index")
var ErrNotSik = errors.New("radiohal: interface is not a SiK radio")
var ErrNotConfigurable = errors.New("radiohal: interface is not configurable")

// HAL is the synchronous, blocking Radio HAL described in spec §4.1.
type HAL struct {
	mu sync.Mutex

	interfaces []Interface
	serialFds  map[int]SerialTransport
	enumerated bool

	enumerate Enumerator
	openSerial SerialOpener
	sikCodec   SikCodec
	wifi       WifiTransport

	devicePath func(i int) string // maps interface index to a serial device path
}

// New builds a HAL from its collaborators. enumerate, openSerial, sikCodec
// and wifi may be fakes in tests.
func New(enumerate Enumerator, openSerial SerialOpener, sikCodec SikCodec, wifi WifiTransport, devicePath func(int) string) *HAL {
	return &HAL{
		serialFds:  make(map[int]SerialTransport),
		enumerate:  enumerate,
		openSerial: openSerial,
		sikCodec:   sikCodec,
		wifi:       wifi,
		devicePath: devicePath,
	}
}

// Enumerate refreshes the interface list (spec §4.1 enumerate()).
func (h *HAL) Enumerate() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	ifaces, err := h.enumerate()
	if err != nil {
		return fmt.Errorf("radiohal: enumerate: %w", err)
	}
	h.interfaces = ifaces
	h.enumerated = true
	return nil
}

// ResetEnumeratedFlag clears the "has been enumerated" flag, forcing the
// next reinitializer pass to Enumerate() again (spec §4.1).
func (h *HAL) ResetEnumeratedFlag() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.enumerated = false
}

// Count returns the number of known interfaces.
func (h *HAL) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.interfaces)
}

// Info returns a copy of interface i's current state.
func (h *HAL) Info(i int) (Interface, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if i < 0 || i >= len(h.interfaces) {
		return Interface{}, ErrUnknownInterface
	}
	return h.interfaces[i], nil
}

// IsSik reports whether interface i is a SiK radio.
func (h *HAL) IsSik(i int) bool {
	iface, err := h.Info(i)
	return err == nil && iface.Kind == KindSiK
}

// SupportsFrequency reports whether interface i can be driven to kHz.
// Non-configurable interfaces never support an explicit frequency (spec
// §4.1: "left at whatever frequency the HAL reports").
func (h *HAL) SupportsFrequency(i int, _ uint32) bool {
	iface, err := h.Info(i)
	return err == nil && iface.Configurable
}

// OpenRx opens interface i for reading.
func (h *HAL) OpenRx(i int) (io.ReadCloser, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	iface, err := h.indexLocked(i)
	if err != nil {
		return nil, err
	}

	switch iface.Kind {
	case KindSiK:
		rc, err := h.openSerialLocked(i)
		if err != nil {
			return nil, err
		}
		h.interfaces[i].OpenedForRead = true
		return io.NopCloser(rc), nil
	default:
		rc, err := h.wifi.OpenRx(h.ifName(i))
		if err != nil {
			return nil, err
		}
		h.interfaces[i].OpenedForRead = true
		return rc, nil
	}
}

// OpenTx opens interface i for writing.
func (h *HAL) OpenTx(i int) (io.WriteCloser, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	iface, err := h.indexLocked(i)
	if err != nil {
		return nil, err
	}

	switch iface.Kind {
	case KindSiK:
		wc, err := h.openSerialLocked(i)
		if err != nil {
			return nil, err
		}
		h.interfaces[i].OpenedForWrite = true
		return wc, nil
	default:
		wc, err := h.wifi.OpenTx(h.ifName(i))
		if err != nil {
			return nil, err
		}
		h.interfaces[i].OpenedForWrite = true
		return wc, nil
	}
}

// SetFrequency applies a new frequency to interface i for link linkID
// (spec §4.1, §3 invariant: current-frequency-kHz equals the last value
// accepted by the HAL).
func (h *HAL) SetFrequency(i int, linkID int8, khz uint32) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	iface, err := h.indexLocked(i)
	if err != nil {
		return err
	}
	if !iface.Configurable {
		return ErrNotConfigurable
	}

	switch iface.Kind {
	case KindSiK:
		fd, err := h.openSerialLocked(i)
		if err != nil {
			return err
		}
		if err := h.sikCodec.Apply(fd, SikParams{FrequencyKhz: khz}); err != nil {
			return fmt.Errorf("radiohal: sik set frequency: %w", err)
		}
	default:
		if err := h.wifi.SetFrequency(h.ifName(i), khz); err != nil {
			return fmt.Errorf("radiohal: wifi set frequency: %w", err)
		}
	}

	h.interfaces[i].CurrentFrequencyKhz = khz
	h.interfaces[i].AssignedLinkID = linkID
	return nil
}

// SikSetParams applies full AT-style parameters, retrying up to two times
// on transient failure before reporting failure (spec §4.1): the caller
// must then escalate to SiK reinit.
func (h *HAL) SikSetParams(i int, p SikParams) error {
	h.mu.Lock()
	iface, err := h.indexLocked(i)
	h.mu.Unlock()
	if err != nil {
		return err
	}
	if iface.Kind != KindSiK {
		return ErrNotSik
	}

	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		h.mu.Lock()
		fd, ferr := h.openSerialLocked(i)
		h.mu.Unlock()
		if ferr != nil {
			lastErr = ferr
			continue
		}
		if err := h.sikCodec.Apply(fd, p); err != nil {
			lastErr = err
			continue
		}
		h.mu.Lock()
		h.interfaces[i].CurrentFrequencyKhz = p.FrequencyKhz
		h.interfaces[i].CurrentDatarate = int32(p.Datarate)
		h.mu.Unlock()
		return nil
	}
	return fmt.Errorf("radiohal: sik_set_params failed after retries: %w", lastErr)
}

// SikClose closes the SiK serial transport for interface i without
// affecting its enumerated state.
func (h *HAL) SikClose(i int) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if fd, ok := h.serialFds[i]; ok {
		delete(h.serialFds, i)
		h.interfaces[i].OpenedForRead = false
		h.interfaces[i].OpenedForWrite = false
		return fd.Close()
	}
	return nil
}

// SikOpenRW (re)opens the SiK serial transport for both read and write.
func (h *HAL) SikOpenRW(i int) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, err := h.openSerialLocked(i); err != nil {
		return err
	}
	h.interfaces[i].OpenedForRead = true
	h.interfaces[i].OpenedForWrite = true
	return nil
}

// Close closes interface i entirely, regardless of kind.
func (h *HAL) Close(i int) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	iface, err := h.indexLocked(i)
	if err != nil {
		return err
	}

	var closeErr error
	switch iface.Kind {
	case KindSiK:
		if fd, ok := h.serialFds[i]; ok {
			delete(h.serialFds, i)
			closeErr = fd.Close()
		}
	default:
		closeErr = h.wifi.Close(h.ifName(i))
	}
	h.interfaces[i].OpenedForRead = false
	h.interfaces[i].OpenedForWrite = false
	return closeErr
}

// SaveCurrentConfig persists the HAL's view of frequencies/datarates
// applied to each interface; the caller (internal/model) owns the actual
// on-disk format.
func (h *HAL) SaveCurrentConfig() []Interface {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]Interface, len(h.interfaces))
	copy(out, h.interfaces)
	return out
}

func (h *HAL) indexLocked(i int) (Interface, error) {
	if i < 0 || i >= len(h.interfaces) {
		return Interface{}, ErrUnknownInterface
	}
	return h.interfaces[i], nil
}

func (h *HAL) openSerialLocked(i int) (SerialTransport, error) {
	if fd, ok := h.serialFds[i]; ok {
		return fd, nil
	}
	fd, err := h.openSerial(h.devicePath(i), 0)
	if err != nil {
		return nil, fmt.Errorf("radiohal: open serial for interface %d: %w", i, err)
	}
	h.serialFds[i] = fd
	return fd, nil
}

func (h *HAL) ifName(i int) string {
	return h.interfaces[i].DriverName
}

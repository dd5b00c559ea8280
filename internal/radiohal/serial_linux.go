//go:build linux

package radiohal

import (
	"fmt"

	"github.com/pkg/term"
)

// termTransport adapts *term.Term to SerialTransport.
type termTransport struct {
	*term.Term
}

func (t termTransport) SetSpeed(baud int) error { return t.Term.SetSpeed(baud) }

// OpenSerial opens a serial device in raw mode, grounded directly on the
// teacher's serial_port_open (src/serial_port.go): open in raw mode, apply
// the baud rate if it is one of the standard rates, fall back to 4800 for
// any other nonzero rate, and leave the speed alone when baud is 0.
func OpenSerial(device string, baud int) (SerialTransport, error) {
	t, err := term.Open(device, term.RawMode)
	if err != nil {
		return nil, fmt.Errorf("radiohal: open serial port %s: %w", device, err)
	}

	switch baud {
	case 0:
		// Leave it alone.
	case 1200, 2400, 4800, 9600, 19200, 38400, 57600, 115200:
		if err := t.SetSpeed(baud); err != nil {
			t.Close()
			return nil, fmt.Errorf("radiohal: set speed %d on %s: %w", baud, device, err)
		}
	default:
		if err := t.SetSpeed(4800); err != nil {
			t.Close()
			return nil, fmt.Errorf("radiohal: set fallback speed on %s: %w", device, err)
		}
	}

	return termTransport{t}, nil
}

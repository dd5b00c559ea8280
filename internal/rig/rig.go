// Package rig provides the Hamlib-backed frequency/power control path for
// radio interfaces that expose a rig-control backend alongside their
// AT-command SiK path (spec §4.1's set_frequency/sik_set_params contract).
// Grounded on the teacher's declared but otherwise-unused goHamlib
// dependency; this is its home in the router.
package rig

import (
	"fmt"

	hamlib "github.com/xylo04/goHamlib"
)

// Controller is a single Hamlib rig session.
type Controller struct {
	rig *hamlib.Rig
}

// Open starts a Hamlib session for the given model over the given serial
// device, matching the teacher's serial_port_open error-propagation style.
func Open(modelID int, device string) (*Controller, error) {
	r := hamlib.RigInit(modelID)
	if r == nil {
		return nil, fmt.Errorf("rig: unknown hamlib model %d", modelID)
	}
	r.SetConf("rig_pathname", device)
	if err := r.Open(); err != nil {
		return nil, fmt.Errorf("rig: open %s: %w", device, err)
	}
	return &Controller{rig: r}, nil
}

// SetFrequency applies a frequency in Hz to the rig's current VFO.
func (c *Controller) SetFrequency(hz float64) error {
	if err := c.rig.SetFreq(hamlib.VFOCurrent, hz); err != nil {
		return fmt.Errorf("rig: set frequency %.0f: %w", hz, err)
	}
	return nil
}

// SetPowerLevel applies a 0.0-1.0 normalized power level.
func (c *Controller) SetPowerLevel(level float64) error {
	if err := c.rig.SetLevel(hamlib.LevelRFPower, level); err != nil {
		return fmt.Errorf("rig: set power %.2f: %w", level, err)
	}
	return nil
}

// Close ends the Hamlib session.
func (c *Controller) Close() error {
	return c.rig.Close()
}

// Package model implements the on-disk VehicleModel described in spec §3:
// loaded at startup, mutated by command handlers running on the main
// thread, and saved back to disk on change. The teacher's config.go reads
// a free-text grammar; this router's model is already structured data, so
// it is stored as YAML instead, using the same gopkg.in/yaml.v3 dependency
// the teacher uses for its tocalls.yaml device-id table (deviceid.go).
package model

import (
	"fmt"
	"os"
	"time"

	"github.com/lestrrat-go/strftime"
	"gopkg.in/yaml.v3"

	"github.com/doismellburning/skyrouter/internal/packet"
)

// RadioLinkConfig is the persisted form of a RadioLink (spec §3).
type RadioLinkConfig struct {
	LinkID        uint8  `yaml:"link_id"`
	FrequencyKhz  uint32 `yaml:"frequency_khz"`
	ECC           bool   `yaml:"ecc"`
	LBT           bool   `yaml:"lbt"`
	MCSTR         bool   `yaml:"mcstr"`
	VideoDatarate int32  `yaml:"video_datarate"`
	DataDatarate  int32  `yaml:"data_datarate"`
}

// RadioInterfaceConfig is the persisted per-interface assignment.
type RadioInterfaceConfig struct {
	Index          int  `yaml:"index"`
	AssignedLinkID int8 `yaml:"assigned_link_id"`

	// RigHamlibModelID selects a Hamlib rig-control backend for this
	// interface instead of the AT-command SiK path (spec §4.1's
	// "alternative configurable path alongside the AT-command path").
	// Zero means this interface has no rig backend.
	RigHamlibModelID int `yaml:"rig_hamlib_model_id"`
}

// RelayConfig is the persisted relay configuration (supplemented from
// original_source; see DESIGN.md).
type RelayConfig struct {
	IsRelayEnabledOnRadioLinkID int8   `yaml:"relay_link_id"`
	RelayedVehicleID            uint32 `yaml:"relayed_vehicle_id"`
	RelayFrequencyKhz           uint32 `yaml:"relay_frequency_khz"`
}

// VehicleModel is the root persisted configuration object (spec §3). It is
// read from many sites but mutated only by command-handler callbacks on
// the main thread (spec §5): producers-of-reads all run on that thread, so
// no lock is needed, matching the §9 design note.
type VehicleModel struct {
	VehicleID       uint32                 `yaml:"vehicle_id"`
	CameraKind      string                 `yaml:"camera_kind"`
	DeveloperFlags  DeveloperFlags         `yaml:"developer_flags"`
	OSDFlags        uint32                 `yaml:"osd_flags"`
	Links           []RadioLinkConfig      `yaml:"links"`
	Interfaces      []RadioInterfaceConfig `yaml:"interfaces"`
	Relay           RelayConfig            `yaml:"relay"`

	path string
}

type DeveloperFlags struct {
	InjectDevStats  bool `yaml:"inject_dev_stats"`
	InjectDevGraphs bool `yaml:"inject_dev_graphs"`
}

// Load reads a VehicleModel from path.
func Load(path string) (*VehicleModel, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("model: read %s: %w", path, err)
	}
	var m VehicleModel
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("model: parse %s: %w", path, err)
	}
	m.path = path
	return &m, nil
}

// ReplaceContents re-parses data over m's fields, keeping the path m was
// loaded from, and saves the result (spec §6: a controller-pushed
// RubyModelSettings replaces the on-disk model "on request or change").
func (m *VehicleModel) ReplaceContents(data []byte) error {
	path := m.path
	var replacement VehicleModel
	if err := yaml.Unmarshal(data, &replacement); err != nil {
		return fmt.Errorf("model: parse pushed model: %w", err)
	}
	replacement.path = path
	*m = replacement
	return m.Save()
}

// Save re-writes the model to the path it was loaded from (spec §6,
// "current model file (re-read on command)").
func (m *VehicleModel) Save() error {
	data, err := yaml.Marshal(m)
	if err != nil {
		return fmt.Errorf("model: marshal: %w", err)
	}
	return os.WriteFile(m.path, data, 0o644)
}

// LinkByID finds the configured link, if any.
func (m *VehicleModel) LinkByID(id uint8) (RadioLinkConfig, bool) {
	for _, l := range m.Links {
		if l.LinkID == id {
			return l, true
		}
	}
	return RadioLinkConfig{}, false
}

// FrequencyForInterface resolves the frequency that interface i should be
// running at, applying the relay-override exception named in spec §3's
// invariant: "with the exception of a relay link using its own override
// frequency."
func (m *VehicleModel) FrequencyForInterface(i int) (uint32, bool) {
	var linkID int8 = -1
	for _, ic := range m.Interfaces {
		if ic.Index == i {
			linkID = ic.AssignedLinkID
			break
		}
	}
	if linkID < 0 {
		return 0, false
	}

	if m.Relay.IsRelayEnabledOnRadioLinkID == linkID && m.Relay.RelayFrequencyKhz != 0 {
		return m.Relay.RelayFrequencyKhz, true
	}

	link, ok := m.LinkByID(uint8(linkID))
	if !ok {
		return 0, false
	}
	return link.FrequencyKhz, true
}

// RigModelForInterface reports the Hamlib rig-control model ID assigned
// to interface i, if any (spec §4.1's rig-control alternative path).
func (m *VehicleModel) RigModelForInterface(i int) (int, bool) {
	for _, ic := range m.Interfaces {
		if ic.Index == i {
			return ic.RigHamlibModelID, ic.RigHamlibModelID != 0
		}
	}
	return 0, false
}

// ToRelayParams projects the model's relay config into the wire type,
// with CurrentRelayMode set to the caller-supplied currentMode.
func (m *VehicleModel) ToRelayParams(currentMode packet.RelayMode) packet.RelayParams {
	return packet.RelayParams{
		IsRelayEnabledOnRadioLinkID: m.Relay.IsRelayEnabledOnRadioLinkID,
		RelayedVehicleID:            m.Relay.RelayedVehicleID,
		RelayFrequencyKhz:           m.Relay.RelayFrequencyKhz,
		CurrentRelayMode:            currentMode,
	}
}

// RouterConfig is the ambient, router-wide settings file (spec §3/§6):
// IPC channel paths, shared-memory region names, loop-rate targets, the
// concatenation feature flag, and log level/destination, loaded once at
// startup the way the teacher's config.go reads direwolf.conf, but in
// structured YAML since none of this router's settings need a free-text
// grammar.
type RouterConfig struct {
	VehicleModelPath string `yaml:"vehicle_model_path"`

	IPCChannelPaths  []string `yaml:"ipc_channel_paths"`
	RadioStatsPath   string   `yaml:"radio_stats_path"`
	LoopCountersPath string   `yaml:"loop_counters_path"`
	WatchdogPath     string   `yaml:"watchdog_path"`

	LinkLostTimeoutMS int     `yaml:"link_lost_timeout_ms"`
	MaxLoopTimeMS     float64 `yaml:"max_loop_time_ms"`
	LoopStatsWindowS  int     `yaml:"loop_stats_window_s"`
	IPCDrainEveryN    int     `yaml:"ipc_drain_every_n"`
	HousekeepEveryN   int     `yaml:"housekeep_every_n"`
	Concatenate       bool    `yaml:"concatenate"`

	VehicleIDSrc uint32 `yaml:"vehicle_id_src"`

	LogLevel string `yaml:"log_level"`
	LogFile  string `yaml:"log_file"`

	RebootGPIOChip   string `yaml:"reboot_gpio_chip"`
	RebootGPIOOffset int    `yaml:"reboot_gpio_offset"`

	HardwareConfigDir string `yaml:"hardware_config_dir"`

	// DiagPort, when nonzero, is the TCP port the diagnostics endpoint
	// listens on and advertises over mDNS (internal/diag). Zero disables
	// both.
	DiagPort int `yaml:"diag_port"`
}

// LoadRouterConfig reads a RouterConfig from path, applying the defaults
// the teacher's config parser falls back to when a setting is omitted.
func LoadRouterConfig(path string) (*RouterConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("model: read %s: %w", path, err)
	}
	cfg := RouterConfig{
		LinkLostTimeoutMS: 3000,
		MaxLoopTimeMS:     1.0,
		LoopStatsWindowS:  20,
		IPCDrainEveryN:    1,
		HousekeepEveryN:   100,
		LogLevel:          "info",
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("model: parse %s: %w", path, err)
	}
	return &cfg, nil
}

// HardwareConfigFilename returns the daily-rotated on-disk hardware config
// filename recreated on reinit (spec §6), grounded on the teacher's log.go
// use of strftime for daily log filenames.
func HardwareConfigFilename(dir string, t time.Time) (string, error) {
	pattern, err := strftime.New(dir + "/hwconfig-%Y%m%d.cfg")
	if err != nil {
		return "", err
	}
	return pattern.FormatString(t), nil
}

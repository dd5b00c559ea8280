package packet

import "encoding/binary"

// TelemetryExtendedV3 carries live link/vehicle state to the controller.
// Fields back-annotated by the router at send time (§4.8 phase 7) are
// marked below; everything else is supplied by the telemetry producer.
type TelemetryExtendedV3 struct {
	VehicleID uint32

	// Back-annotated live fields.
	VideoBitrateBps    uint32
	AudioBitrateBps    uint32
	TxTimePerSecondPct uint8

	// Per-interface mirrors, indexed 0..MaxRadioInterfaces-1.
	LastSentDatarate     [MaxRadioInterfaces]int32
	LastReceivedDatarate [MaxRadioInterfaces]int32
	UplinkRSSIdBm        [MaxRadioInterfaces]int16
	UplinkQualityPct     [MaxRadioInterfaces]uint8
}

const MaxRadioInterfaces = 8

const telemetryExtendedV3Len = 4 + 4 + 4 + 1 + MaxRadioInterfaces*(4+4+2+1)

func (t TelemetryExtendedV3) MarshalBinary() ([]byte, error) {
	buf := make([]byte, telemetryExtendedV3Len)
	o := 0
	binary.LittleEndian.PutUint32(buf[o:], t.VehicleID)
	o += 4
	binary.LittleEndian.PutUint32(buf[o:], t.VideoBitrateBps)
	o += 4
	binary.LittleEndian.PutUint32(buf[o:], t.AudioBitrateBps)
	o += 4
	buf[o] = t.TxTimePerSecondPct
	o++
	for i := 0; i < MaxRadioInterfaces; i++ {
		binary.LittleEndian.PutUint32(buf[o:], uint32(t.LastSentDatarate[i]))
		o += 4
	}
	for i := 0; i < MaxRadioInterfaces; i++ {
		binary.LittleEndian.PutUint32(buf[o:], uint32(t.LastReceivedDatarate[i]))
		o += 4
	}
	for i := 0; i < MaxRadioInterfaces; i++ {
		binary.LittleEndian.PutUint16(buf[o:], uint16(t.UplinkRSSIdBm[i]))
		o += 2
	}
	for i := 0; i < MaxRadioInterfaces; i++ {
		buf[o] = t.UplinkQualityPct[i]
		o++
	}
	return buf, nil
}

func (t *TelemetryExtendedV3) UnmarshalBinary(buf []byte) error {
	if len(buf) < telemetryExtendedV3Len {
		return ErrShortBuffer
	}
	o := 0
	t.VehicleID = binary.LittleEndian.Uint32(buf[o:])
	o += 4
	t.VideoBitrateBps = binary.LittleEndian.Uint32(buf[o:])
	o += 4
	t.AudioBitrateBps = binary.LittleEndian.Uint32(buf[o:])
	o += 4
	t.TxTimePerSecondPct = buf[o]
	o++
	for i := 0; i < MaxRadioInterfaces; i++ {
		t.LastSentDatarate[i] = int32(binary.LittleEndian.Uint32(buf[o:]))
		o += 4
	}
	for i := 0; i < MaxRadioInterfaces; i++ {
		t.LastReceivedDatarate[i] = int32(binary.LittleEndian.Uint32(buf[o:]))
		o += 4
	}
	for i := 0; i < MaxRadioInterfaces; i++ {
		t.UplinkRSSIdBm[i] = int16(binary.LittleEndian.Uint16(buf[o:]))
		o += 2
	}
	for i := 0; i < MaxRadioInterfaces; i++ {
		t.UplinkQualityPct[i] = buf[o]
		o++
	}
	return nil
}

// RelayParams mirrors the original implementation's relay-mode bitmask and
// configuration (supplemented from original_source; see DESIGN.md).
type RelayMode uint8

const (
	RelayModeMain       RelayMode = 1 << 0
	RelayModeRemote     RelayMode = 1 << 1
	RelayModePipMain    RelayMode = 1 << 2
	RelayModePipRemote  RelayMode = 1 << 3
	RelayModeIsRelayNode RelayMode = 1 << 4
)

type RelayParams struct {
	IsRelayEnabledOnRadioLinkID int8
	RelayedVehicleID            uint32
	RelayFrequencyKhz           uint32 // override frequency; 0 = use link default.
	CurrentRelayMode            RelayMode
}

// RadioInterfaceParams/RadioLinkParams are the per-interface/per-link
// config slices embedded in RadioConfigUpdated.
type RadioInterfaceParams struct {
	Index             uint8
	AssignedLinkID    int8
	CurrentFrequencyKhz uint32
	CurrentDatarate   int32
}

type RadioLinkParams struct {
	LinkID           uint8
	FrequencyKhz     uint32
	VideoDatarate    int32
	DataDatarate     int32
	ECC              bool
	LBT              bool
	MCSTR            bool
}

// RadioConfigUpdated is broadcast whenever the router applies a new radio
// configuration. Its layout concatenates relay params + per-interface
// params + per-link params, mirroring the original implementation's
// PH.total_length = sizeof(header)+sizeof(relay)+sizeof(ifaces)+sizeof(links).
type RadioConfigUpdated struct {
	Relay      RelayParams
	Interfaces []RadioInterfaceParams
	Links      []RadioLinkParams
}

const relayParamsLen = 1 + 4 + 4 + 1
const radioInterfaceParamsLen = 1 + 1 + 4 + 4
const radioLinkParamsLen = 1 + 4 + 4 + 4 + 1 + 1 + 1

func (r RelayParams) marshalInto(buf []byte) {
	buf[0] = byte(r.IsRelayEnabledOnRadioLinkID)
	binary.LittleEndian.PutUint32(buf[1:5], r.RelayedVehicleID)
	binary.LittleEndian.PutUint32(buf[5:9], r.RelayFrequencyKhz)
	buf[9] = byte(r.CurrentRelayMode)
}

func (r *RelayParams) unmarshalFrom(buf []byte) {
	r.IsRelayEnabledOnRadioLinkID = int8(buf[0])
	r.RelayedVehicleID = binary.LittleEndian.Uint32(buf[1:5])
	r.RelayFrequencyKhz = binary.LittleEndian.Uint32(buf[5:9])
	r.CurrentRelayMode = RelayMode(buf[9])
}

func (p RadioInterfaceParams) marshalInto(buf []byte) {
	buf[0] = p.Index
	buf[1] = byte(p.AssignedLinkID)
	binary.LittleEndian.PutUint32(buf[2:6], p.CurrentFrequencyKhz)
	binary.LittleEndian.PutUint32(buf[6:10], uint32(p.CurrentDatarate))
}

func (p *RadioInterfaceParams) unmarshalFrom(buf []byte) {
	p.Index = buf[0]
	p.AssignedLinkID = int8(buf[1])
	p.CurrentFrequencyKhz = binary.LittleEndian.Uint32(buf[2:6])
	p.CurrentDatarate = int32(binary.LittleEndian.Uint32(buf[6:10]))
}

func (l RadioLinkParams) marshalInto(buf []byte) {
	buf[0] = l.LinkID
	binary.LittleEndian.PutUint32(buf[1:5], l.FrequencyKhz)
	binary.LittleEndian.PutUint32(buf[5:9], uint32(l.VideoDatarate))
	binary.LittleEndian.PutUint32(buf[9:13], uint32(l.DataDatarate))
	buf[13] = boolByte(l.ECC)
	buf[14] = boolByte(l.LBT)
	buf[15] = boolByte(l.MCSTR)
}

func (l *RadioLinkParams) unmarshalFrom(buf []byte) {
	l.LinkID = buf[0]
	l.FrequencyKhz = binary.LittleEndian.Uint32(buf[1:5])
	l.VideoDatarate = int32(binary.LittleEndian.Uint32(buf[5:9]))
	l.DataDatarate = int32(binary.LittleEndian.Uint32(buf[9:13]))
	l.ECC = buf[13] != 0
	l.LBT = buf[14] != 0
	l.MCSTR = buf[15] != 0
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}

func (r RadioConfigUpdated) MarshalBinary() ([]byte, error) {
	size := relayParamsLen + 2 + len(r.Interfaces)*radioInterfaceParamsLen + len(r.Links)*radioLinkParamsLen
	buf := make([]byte, size)
	o := 0
	r.Relay.marshalInto(buf[o:])
	o += relayParamsLen
	buf[o] = uint8(len(r.Interfaces))
	buf[o+1] = uint8(len(r.Links))
	o += 2
	for _, iface := range r.Interfaces {
		iface.marshalInto(buf[o:])
		o += radioInterfaceParamsLen
	}
	for _, link := range r.Links {
		link.marshalInto(buf[o:])
		o += radioLinkParamsLen
	}
	return buf, nil
}

func (r *RadioConfigUpdated) UnmarshalBinary(buf []byte) error {
	if len(buf) < relayParamsLen+2 {
		return ErrShortBuffer
	}
	r.Relay.unmarshalFrom(buf)
	o := relayParamsLen
	numIfaces := int(buf[o])
	numLinks := int(buf[o+1])
	o += 2

	if len(buf) < o+numIfaces*radioInterfaceParamsLen+numLinks*radioLinkParamsLen {
		return ErrShortBuffer
	}
	r.Interfaces = make([]RadioInterfaceParams, numIfaces)
	for i := range r.Interfaces {
		r.Interfaces[i].unmarshalFrom(buf[o:])
		o += radioInterfaceParamsLen
	}
	r.Links = make([]RadioLinkParams, numLinks)
	for i := range r.Links {
		r.Links[i].unmarshalFrom(buf[o:])
		o += radioLinkParamsLen
	}
	return nil
}

// RadioReinitialized is broadcast after the reinitializer (§4.6 step 7)
// completes and interfaces are reopened.
type RadioReinitialized struct {
	VehicleID       uint32
	InterfacesOpen  uint8
	BrokenInterface int8
}

func (r RadioReinitialized) MarshalBinary() ([]byte, error) {
	buf := make([]byte, 6)
	binary.LittleEndian.PutUint32(buf[0:4], r.VehicleID)
	buf[4] = r.InterfacesOpen
	buf[5] = byte(r.BrokenInterface)
	return buf, nil
}

func (r *RadioReinitialized) UnmarshalBinary(buf []byte) error {
	if len(buf) < 6 {
		return ErrShortBuffer
	}
	r.VehicleID = binary.LittleEndian.Uint32(buf[0:4])
	r.InterfacesOpen = buf[4]
	r.BrokenInterface = int8(buf[5])
	return nil
}

// TelemetryAll is the full (non-extended) periodic telemetry payload.
type TelemetryAll struct {
	VehicleID  uint32
	FlightMode uint8
	BatteryMv  uint16
	LatE7      int32
	LonE7      int32
	AltCm      int32
}

const telemetryAllLen = 4 + 1 + 2 + 4 + 4 + 4

func (t TelemetryAll) MarshalBinary() ([]byte, error) {
	buf := make([]byte, telemetryAllLen)
	binary.LittleEndian.PutUint32(buf[0:4], t.VehicleID)
	buf[4] = t.FlightMode
	binary.LittleEndian.PutUint16(buf[5:7], t.BatteryMv)
	binary.LittleEndian.PutUint32(buf[7:11], uint32(t.LatE7))
	binary.LittleEndian.PutUint32(buf[11:15], uint32(t.LonE7))
	binary.LittleEndian.PutUint32(buf[15:19], uint32(t.AltCm))
	return buf, nil
}

func (t *TelemetryAll) UnmarshalBinary(buf []byte) error {
	if len(buf) < telemetryAllLen {
		return ErrShortBuffer
	}
	t.VehicleID = binary.LittleEndian.Uint32(buf[0:4])
	t.FlightMode = buf[4]
	t.BatteryMv = binary.LittleEndian.Uint16(buf[5:7])
	t.LatE7 = int32(binary.LittleEndian.Uint32(buf[7:11]))
	t.LonE7 = int32(binary.LittleEndian.Uint32(buf[11:15]))
	t.AltCm = int32(binary.LittleEndian.Uint32(buf[15:19]))
	return nil
}

// CommandResponse answers a controller command. MUST NOT be concatenated
// with other outbound packets (§4.8 concatenation rule).
type CommandResponse struct {
	CommandID uint32
	OK        bool
	Detail    []byte
}

func (c CommandResponse) MarshalBinary() ([]byte, error) {
	buf := make([]byte, 9+len(c.Detail))
	binary.LittleEndian.PutUint32(buf[0:4], c.CommandID)
	buf[4] = boolByte(c.OK)
	binary.LittleEndian.PutUint32(buf[5:9], uint32(len(c.Detail)))
	copy(buf[9:], c.Detail)
	return buf, nil
}

func (c *CommandResponse) UnmarshalBinary(buf []byte) error {
	if len(buf) < 9 {
		return ErrShortBuffer
	}
	c.CommandID = binary.LittleEndian.Uint32(buf[0:4])
	c.OK = buf[4] != 0
	n := int(binary.LittleEndian.Uint32(buf[5:9]))
	if len(buf) < 9+n {
		return ErrShortBuffer
	}
	c.Detail = append([]byte(nil), buf[9:9+n]...)
	return nil
}

// RubyModelSettings carries the full vehicle model on request or change.
// MUST NOT be concatenated with other outbound packets.
type RubyModelSettings struct {
	VehicleID uint32
	ModelYAML []byte
}

func (r RubyModelSettings) MarshalBinary() ([]byte, error) {
	buf := make([]byte, 4+len(r.ModelYAML))
	binary.LittleEndian.PutUint32(buf[0:4], r.VehicleID)
	copy(buf[4:], r.ModelYAML)
	return buf, nil
}

func (r *RubyModelSettings) UnmarshalBinary(buf []byte) error {
	if len(buf) < 4 {
		return ErrShortBuffer
	}
	r.VehicleID = binary.LittleEndian.Uint32(buf[0:4])
	r.ModelYAML = append([]byte(nil), buf[4:]...)
	return nil
}

// PingReply answers a high-priority ping request. MUST NOT be concatenated
// with other outbound packets.
type PingReply struct {
	PingID    uint32
	LocalTime uint32
}

const pingReplyLen = 8

func (p PingReply) MarshalBinary() ([]byte, error) {
	buf := make([]byte, pingReplyLen)
	binary.LittleEndian.PutUint32(buf[0:4], p.PingID)
	binary.LittleEndian.PutUint32(buf[4:8], p.LocalTime)
	return buf, nil
}

func (p *PingReply) UnmarshalBinary(buf []byte) error {
	if len(buf) < pingReplyLen {
		return ErrShortBuffer
	}
	p.PingID = binary.LittleEndian.Uint32(buf[0:4])
	p.LocalTime = binary.LittleEndian.Uint32(buf[4:8])
	return nil
}

// DebugInfo is a free-form diagnostic payload.
type DebugInfo struct {
	Text []byte
}

func (d DebugInfo) MarshalBinary() ([]byte, error) {
	return append([]byte(nil), d.Text...), nil
}

func (d *DebugInfo) UnmarshalBinary(buf []byte) error {
	d.Text = append([]byte(nil), buf...)
	return nil
}

// VideoLinkDevStats and VideoLinkDevGraphs are diagnostic packets injected
// at the head of the outbound queue (§4.8 phase 7, §4.4 inject_first) when
// developer flags are set.
type VideoLinkDevStats struct {
	VehicleID     uint32
	TxKeyframes   uint32
	TxRetransmits uint32
}

type VideoLinkDevGraphs struct {
	VehicleID uint32
	Samples   []int16
}

func (s VideoLinkDevStats) MarshalBinary() ([]byte, error) {
	buf := make([]byte, 12)
	binary.LittleEndian.PutUint32(buf[0:4], s.VehicleID)
	binary.LittleEndian.PutUint32(buf[4:8], s.TxKeyframes)
	binary.LittleEndian.PutUint32(buf[8:12], s.TxRetransmits)
	return buf, nil
}

func (s *VideoLinkDevStats) UnmarshalBinary(buf []byte) error {
	if len(buf) < 12 {
		return ErrShortBuffer
	}
	s.VehicleID = binary.LittleEndian.Uint32(buf[0:4])
	s.TxKeyframes = binary.LittleEndian.Uint32(buf[4:8])
	s.TxRetransmits = binary.LittleEndian.Uint32(buf[8:12])
	return nil
}

func (g VideoLinkDevGraphs) MarshalBinary() ([]byte, error) {
	buf := make([]byte, 4+2+2*len(g.Samples))
	binary.LittleEndian.PutUint32(buf[0:4], g.VehicleID)
	binary.LittleEndian.PutUint16(buf[4:6], uint16(len(g.Samples)))
	for i, s := range g.Samples {
		binary.LittleEndian.PutUint16(buf[6+2*i:], uint16(s))
	}
	return buf, nil
}

// LocalControlSikReconfig requests the SiK lifecycle machine reconfigure
// one interface, or every SiK interface when InterfaceIndex is negative
// (spec §4.5 flag_update_sik(i), §8 scenario 2).
type LocalControlSikReconfig struct {
	InterfaceIndex int8
}

func (c LocalControlSikReconfig) MarshalBinary() ([]byte, error) {
	return []byte{byte(c.InterfaceIndex)}, nil
}

func (c *LocalControlSikReconfig) UnmarshalBinary(buf []byte) error {
	if len(buf) < 1 {
		return ErrShortBuffer
	}
	c.InterfaceIndex = int8(buf[0])
	return nil
}

func (g *VideoLinkDevGraphs) UnmarshalBinary(buf []byte) error {
	if len(buf) < 6 {
		return ErrShortBuffer
	}
	g.VehicleID = binary.LittleEndian.Uint32(buf[0:4])
	n := int(binary.LittleEndian.Uint16(buf[4:6]))
	if len(buf) < 6+2*n {
		return ErrShortBuffer
	}
	g.Samples = make([]int16, n)
	for i := 0; i < n; i++ {
		g.Samples[i] = int16(binary.LittleEndian.Uint16(buf[6+2*i:]))
	}
	return nil
}

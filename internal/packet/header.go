// Package packet defines the on-the-wire radio packet header and payload
// layouts shared by every component of the router. Layouts are fixed,
// little-endian, and encoded/decoded explicitly field by field so that the
// wire format stays bit-for-bit compatible with the existing controller,
// independent of how Go happens to lay out a struct in memory.
package packet

import (
	"encoding/binary"
	"errors"
)

// Component identifies which subsystem on the vehicle or controller a
// packet's payload belongs to. It is carried in the low bits of
// PacketFlags.
type Component uint8

const (
	ComponentInvalid Component = iota
	ComponentRuby              // also overloaded as a vehicle-id in local-control packets; see SourceKind.
	ComponentRC
	ComponentTelemetry
	ComponentVideo
	ComponentCommands
	ComponentLocalControl
)

// Type enumerates the packet payload formats this router must preserve
// bit-for-bit for wire compatibility.
type Type uint8

const (
	TypeInvalid Type = iota
	TypeTelemetryExtendedV3
	TypeRadioConfigUpdated
	TypeRadioReinitialized
	TypeTelemetryAll
	TypeCommandResponse
	TypeRubyModelSettings
	TypePingReply
	TypeDebugInfo
	TypeVideoLinkDevStats
	TypeVideoLinkDevGraphs
	TypePingRequest
	TypeRetransmissionRequest
	TypeLocalControlSikReconfig
)

// HighPriority reports whether a packet type must be processed ahead of
// bulk traffic in the main dispatch loop's first phase.
func (t Type) HighPriority() bool {
	switch t {
	case TypePingRequest, TypeRetransmissionRequest, TypeRadioConfigUpdated, TypeLocalControlSikReconfig:
		return true
	default:
		return false
	}
}

// Flag bits live in the high bits of PacketFlags/PacketFlagsExtended
// alongside the Component tag in the low bits.
type Flag uint32

const (
	FlagComponentMask         Flag = 0x0000_00FF
	FlagCRCValid              Flag = 1 << 8
	FlagEncrypted             Flag = 1 << 9
	FlagSendOnLowCapacityOnly Flag = 1 << 10 // SiK-class links only.
	FlagSendOnHighCapacityOnly Flag = 1 << 11 // WiFi-class links only.
)

// ExtFlag bits live in PacketFlagsExtended. The only one defined marks a
// packet that MUST NOT be concatenated with other packets; the
// capacity-class bits are Flag values in PacketFlags.
type ExtFlag uint32

const (
	ExtFlagNoConcatenate ExtFlag = 1 << 0
)

// NoConcatenateTypes returns whether a packet type must never be
// concatenated with another into a single air frame.
func (t Type) NoConcatenateTypes() bool {
	switch t {
	case TypePingReply, TypeRubyModelSettings, TypeCommandResponse:
		return true
	default:
		return false
	}
}

const HeaderLen = 24

// MaxPacketPayload bounds a single air frame, including any packets
// concatenated into it by txgateway (spec §4.3's concatenation
// optimization).
const MaxPacketPayload = 1024

// Header is the fixed-layout packet header preceding every payload.
type Header struct {
	PacketFlags         Flag
	PacketFlagsExtended ExtFlag
	PacketType          Type
	StreamID            uint8
	TotalLength         uint32
	VehicleIDSrc        uint32
	VehicleIDDst        uint32
	// SequenceNum is the monotonic per-(source, stream) sequence number
	// the Rx duplicate-detection filter keys on (spec §4.2).
	SequenceNum uint32
	// SourceKind disambiguates the legacy overload of VehicleIDSrc ==
	// ComponentRuby inside local-control packets (see spec §9 Open
	// Question (b)). Zero value means "legacy wire encoding, infer
	// from VehicleIDSrc"; callers constructing new packets should set
	// it explicitly.
	SourceKind Component
}

// Component extracts the low-bits component tag from PacketFlags.
func (h Header) Component() Component {
	return Component(h.PacketFlags & FlagComponentMask)
}

var ErrShortBuffer = errors.New("packet: buffer shorter than header length")
var ErrTotalLengthMismatch = errors.New("packet: total_length does not match buffer length")

// MarshalBinary encodes the header in its fixed little-endian layout.
func (h Header) MarshalBinary() ([]byte, error) {
	buf := make([]byte, HeaderLen)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(h.PacketFlags))
	binary.LittleEndian.PutUint32(buf[4:8], uint32(h.PacketFlagsExtended))
	buf[8] = byte(h.PacketType)
	buf[9] = h.StreamID
	binary.LittleEndian.PutUint32(buf[10:14], h.TotalLength)
	binary.LittleEndian.PutUint32(buf[14:18], h.VehicleIDSrc)
	binary.LittleEndian.PutUint16(buf[18:20], uint16(h.VehicleIDDst))
	binary.LittleEndian.PutUint32(buf[20:24], h.SequenceNum)
	return buf, nil
}

// UnmarshalBinary decodes a header from its fixed little-endian layout.
func (h *Header) UnmarshalBinary(buf []byte) error {
	if len(buf) < HeaderLen {
		return ErrShortBuffer
	}
	h.PacketFlags = Flag(binary.LittleEndian.Uint32(buf[0:4]))
	h.PacketFlagsExtended = ExtFlag(binary.LittleEndian.Uint32(buf[4:8]))
	h.PacketType = Type(buf[8])
	h.StreamID = buf[9]
	h.TotalLength = binary.LittleEndian.Uint32(buf[10:14])
	h.VehicleIDSrc = binary.LittleEndian.Uint32(buf[14:18])
	h.VehicleIDDst = uint32(binary.LittleEndian.Uint16(buf[18:20]))
	h.SequenceNum = binary.LittleEndian.Uint32(buf[20:24])

	if h.VehicleIDSrc == uint32(ComponentRuby) {
		h.SourceKind = ComponentRuby
	}
	return nil
}

// Packet is a header paired with its raw payload bytes. It lives inside a
// queue entry and is owned exclusively by whichever queue currently holds
// it; ownership transfers on push/pop (spec §3 invariant).
type Packet struct {
	Header  Header
	Payload []byte
}

// MarshalBinary encodes the full packet (header + payload) for transmission.
func (p Packet) MarshalBinary() ([]byte, error) {
	p.Header.TotalLength = uint32(HeaderLen + len(p.Payload))
	hb, err := p.Header.MarshalBinary()
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(hb)+len(p.Payload))
	out = append(out, hb...)
	out = append(out, p.Payload...)
	return out, nil
}

// UnmarshalBinary decodes a full packet, validating that TotalLength
// matches the supplied buffer.
func (p *Packet) UnmarshalBinary(buf []byte) error {
	if err := p.Header.UnmarshalBinary(buf); err != nil {
		return err
	}
	if int(p.Header.TotalLength) != len(buf) {
		return ErrTotalLengthMismatch
	}
	p.Payload = append([]byte(nil), buf[HeaderLen:]...)
	return nil
}

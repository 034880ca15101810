// Package mpa decodes MPEG-1 Part 3 audio frame headers (Layers I-III)
// into typed stream parameters and computes frame sizes from them.
// It covers MPEG-1 and the MPEG-2 lower-sampling-frequency extension;
// MPEG-2.5, free-format bitrates, and CRC verification are out of scope.
package mpa

import "errors"

// HeaderSize is the fixed byte length of an MPEG audio frame header.
const HeaderSize = 4

// ErrInvalidHeader is returned when the sync word is absent or a header
// field decodes to a reserved, invalid, or free-format code.
var ErrInvalidHeader = errors.New("mpa: invalid frame header")

// ErrShortHeader is returned when fewer than HeaderSize bytes are available.
var ErrShortHeader = errors.New("mpa: short frame header")

// Version is the MPEG audio version ID (2-bit header code).
type Version uint8

// Version codes. VersionReserved covers both the reserved code 0b01 and
// the MPEG-2.5 code 0b00, which this implementation does not support.
const (
	VersionReserved Version = iota
	VersionMPEG2
	VersionMPEG1
)

func (v Version) String() string {
	switch v {
	case VersionMPEG1:
		return "MPEG1"
	case VersionMPEG2:
		return "MPEG2"
	}
	return "reserved"
}

// Layer is the MPEG audio layer (2-bit header code).
type Layer uint8

// Layer codes.
const (
	LayerReserved Layer = iota
	LayerIII
	LayerII
	LayerI
)

func (l Layer) String() string {
	switch l {
	case LayerI:
		return "I"
	case LayerII:
		return "II"
	case LayerIII:
		return "III"
	}
	return "reserved"
}

// ChannelMode is the channel configuration (2-bit header code).
type ChannelMode uint8

// Channel mode codes.
const (
	Stereo ChannelMode = iota
	JointStereo
	DualChannel
	Mono
)

func (m ChannelMode) String() string {
	switch m {
	case Stereo:
		return "stereo"
	case JointStereo:
		return "joint_stereo"
	case DualChannel:
		return "dual_channel"
	}
	return "mono"
}

// Emphasis is the de-emphasis indication (2-bit header code).
type Emphasis uint8

// Emphasis codes. The reserved code 0b10 is rejected during decoding.
const (
	EmphasisNone Emphasis = iota
	Emphasis5015
	emphasisReserved
	EmphasisCCITTJ17
)

// FormatDescriptor holds the decoded stream parameters of one frame header.
// It is a comparable value type; two descriptors are equal exactly when
// every field matches.
type FormatDescriptor struct {
	Version       Version
	Layer         Layer
	CRCEnabled    bool
	BitrateKbps   int
	SampleRate    int
	Padding       bool
	Private       bool
	ChannelMode   ChannelMode
	Channels      int
	ModeExtension uint8 // raw 2-bit code, meaningful only for JointStereo
	Copyright     bool
	Original      bool
	Emphasis      Emphasis
}

// Bitrate tables in kbit/s, indexed by 4-bit header code. Index 0 is the
// free-format condition and index 15 is forbidden; both decode to 0 here
// and are rejected by DecodeHeader.
var (
	bitratesV1L1 = [16]int{0, 32, 64, 96, 128, 160, 192, 224, 256, 288, 320, 352, 384, 416, 448, 0}
	bitratesV1L2 = [16]int{0, 32, 48, 56, 64, 80, 96, 112, 128, 160, 192, 224, 256, 320, 384, 0}
	bitratesV1L3 = [16]int{0, 32, 40, 48, 56, 64, 80, 96, 112, 128, 160, 192, 224, 256, 320, 0}
	bitratesV2L1 = [16]int{0, 32, 48, 56, 64, 80, 96, 112, 128, 144, 160, 176, 192, 224, 256, 0}
	bitratesV2L2 = [16]int{0, 8, 16, 24, 32, 40, 48, 56, 64, 80, 96, 112, 128, 144, 160, 0}
)

// Sample rate tables in Hz, indexed by 2-bit header code. Code 3 is
// reserved and decodes to 0.
var (
	sampleRatesV1 = [4]int{44100, 48000, 32000, 0}
	sampleRatesV2 = [4]int{22050, 24000, 16000, 0}
)

func bitrate(v Version, l Layer, code uint8) int {
	switch v {
	case VersionMPEG1:
		switch l {
		case LayerI:
			return bitratesV1L1[code]
		case LayerII:
			return bitratesV1L2[code]
		case LayerIII:
			return bitratesV1L3[code]
		}
	case VersionMPEG2:
		switch l {
		case LayerI:
			return bitratesV2L1[code]
		case LayerII, LayerIII:
			return bitratesV2L2[code]
		}
	}
	return 0
}

// HasSync reports whether the 11-bit sync pattern plausibly starts at
// offset i of b. A trailing lone 0xFF counts as plausible because the
// second sync byte has not arrived yet.
func HasSync(b []byte, i int) bool {
	if i >= len(b) || b[i] != 0xFF {
		return false
	}
	return i+1 >= len(b) || b[i+1]&0xE0 == 0xE0
}

// DecodeHeader decodes the first HeaderSize bytes of b into a
// FormatDescriptor. It is a pure function: no state is read or written.
// ErrShortHeader is returned when b is too short, ErrInvalidHeader when
// the sync word is absent or any field resolves to a reserved, invalid,
// or free-format code.
func DecodeHeader(b []byte) (FormatDescriptor, error) {
	var d FormatDescriptor
	if len(b) < HeaderSize {
		return d, ErrShortHeader
	}
	if b[0] != 0xFF || b[1]&0xE0 != 0xE0 {
		return d, ErrInvalidHeader
	}

	versionCode := b[1] >> 3 & 0x03
	layerCode := b[1] >> 1 & 0x03
	crcBit := b[1] & 0x01
	bitrateCode := b[2] >> 4
	sampleRateCode := b[2] >> 2 & 0x03
	paddingBit := b[2] >> 1 & 0x01
	privateBit := b[2] & 0x01
	modeCode := b[3] >> 6
	modeExt := b[3] >> 4 & 0x03
	copyrightBit := b[3] >> 3 & 0x01
	originalBit := b[3] >> 2 & 0x01
	emphasisCode := b[3] & 0x03

	switch versionCode {
	case 0b11:
		d.Version = VersionMPEG1
	case 0b10:
		d.Version = VersionMPEG2
	default:
		return d, ErrInvalidHeader
	}

	switch layerCode {
	case 0b11:
		d.Layer = LayerI
	case 0b10:
		d.Layer = LayerII
	case 0b01:
		d.Layer = LayerIII
	default:
		return d, ErrInvalidHeader
	}

	// Free format (code 0) and the forbidden code 15 are both rejected.
	d.BitrateKbps = bitrate(d.Version, d.Layer, bitrateCode)
	if d.BitrateKbps == 0 {
		return d, ErrInvalidHeader
	}

	if d.Version == VersionMPEG1 {
		d.SampleRate = sampleRatesV1[sampleRateCode]
	} else {
		d.SampleRate = sampleRatesV2[sampleRateCode]
	}
	if d.SampleRate == 0 {
		return d, ErrInvalidHeader
	}

	if Emphasis(emphasisCode) == emphasisReserved {
		return d, ErrInvalidHeader
	}
	d.Emphasis = Emphasis(emphasisCode)

	d.CRCEnabled = crcBit == 1
	d.Padding = paddingBit == 1
	d.Private = privateBit == 1
	d.ChannelMode = ChannelMode(modeCode)
	d.Channels = 2
	if d.ChannelMode == Mono {
		d.Channels = 1
	}
	d.ModeExtension = modeExt
	d.Copyright = copyrightBit == 1
	d.Original = originalBit == 1

	return d, nil
}

// Samples returns the number of PCM samples per channel one frame carries.
func (d FormatDescriptor) Samples() int {
	if d.Layer == LayerI {
		return 384
	}
	if d.Layer == LayerIII && d.Version == VersionMPEG2 {
		return 576
	}
	return 1152
}

// FrameSize returns the total frame byte length, header included, per the
// standard slot formula. Layer I slots are 4 bytes wide, Layers II and III
// use 1-byte slots.
func (d FormatDescriptor) FrameSize() int {
	bps := d.BitrateKbps * 1000
	if d.Layer == LayerI {
		size := 12 * bps / d.SampleRate
		if d.Padding {
			size++
		}
		return size * 4
	}
	size := d.Samples() / 8 * bps / d.SampleRate
	if d.Padding {
		size++
	}
	return size
}

// Package media defines the frame type that flows through the Cadence
// processing pipeline, from parsing through distribution.
package media

import (
	"time"

	"github.com/zsiec/cadence/mpa"
)

// FrameBufferSize is the channel buffer used between the pipeline
// (producer) and subscriber sessions (consumer) to decouple frame
// production from consumption. ~6.5 seconds of MPEG-1 Layer III at
// 26ms per frame.
const FrameBufferSize = 256

// Frame is one complete MPEG audio frame, header included, ready for
// relay to subscribers.
type Frame struct {
	// PTS is the presentation timestamp on the 90 kHz MPEG clock,
	// accumulated from frame durations since the start of the stream.
	PTS int64

	// Data is the raw frame bytes exactly as they appeared on the wire.
	Data []byte

	// Descriptor holds the stream parameters decoded from this frame's
	// header run (shared by all frames until the next parameter change).
	Descriptor mpa.FormatDescriptor
}

// Duration returns the playback time this frame covers.
func (f *Frame) Duration() time.Duration {
	return time.Duration(f.Descriptor.Samples()) * time.Second / time.Duration(f.Descriptor.SampleRate)
}

// PTSTicks returns the number of 90 kHz clock ticks this frame covers.
func (f *Frame) PTSTicks() int64 {
	return int64(f.Descriptor.Samples()) * 90000 / int64(f.Descriptor.SampleRate)
}

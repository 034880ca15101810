// Package demux implements a streaming MPEG audio frame parser. It consumes
// an unbounded byte stream of concatenated frames in arbitrary chunk sizes
// and emits validated frames plus stream-parameter changes, with optional
// resynchronization after corrupt or misaligned data.
package demux

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/zsiec/cadence/mpa"
)

// Sentinel errors classifying fatal parse failures. Callers distinguish
// them with errors.Is on the error returned by Deliver.
var (
	// ErrInvalidHeader: sync was present but the header fields decoded to
	// reserved, invalid, or free-format codes.
	ErrInvalidHeader = errors.New("demux: invalid frame header")

	// ErrInvalidBoundary: the byte following a sliced frame does not start
	// a new sync pattern, so the frame boundary cannot be trusted.
	ErrInvalidBoundary = errors.New("demux: invalid frame boundary")

	// ErrMisaligned: the buffer does not begin with a sync pattern at all.
	// Classification follows the sync check, not header validation: bytes
	// with no sync pattern never reach field decoding, so they can never
	// be an invalid header.
	ErrMisaligned = errors.New("demux: no sync at buffer head")
)

// StreamError is the fatal error returned by Deliver. It wraps one of the
// sentinel errors above and carries the offending bytes so the host can log
// or dump them before terminating or restarting the stream.
type StreamError struct {
	Kind  error
	Bytes []byte
}

func (e *StreamError) Error() string {
	return fmt.Sprintf("%v (%d offending bytes)", e.Kind, len(e.Bytes))
}

func (e *StreamError) Unwrap() error {
	return e.Kind
}

// Output is one parser output unit, in stream order. Exactly one of
// Descriptor, Frame, or Dropped is set. A Descriptor output always
// immediately precedes the first Frame it describes.
type Output struct {
	// Descriptor reports that the stream parameters changed. Emitted once
	// per maximal run of frames sharing identical parameters.
	Descriptor *mpa.FormatDescriptor

	// Frame is one complete frame, header included.
	Frame []byte

	// Dropped is a span of bytes discarded while resynchronizing.
	// Diagnostic only; delivery continues.
	Dropped []byte
}

// Parser extracts MPEG audio frames from a chunked byte stream. It owns a
// single internal buffer and is driven synchronously: one Deliver call is
// processed to completion before the next begins, with no internal
// goroutines. The zero value is not usable; construct with NewParser.
type Parser struct {
	log       *slog.Logger
	buf       []byte
	last      *mpa.FormatDescriptor
	frameSize int // last known frame size, sizes the next demand
	resync    bool
}

// NewParser creates a Parser. With resync enabled, corrupt or misaligned
// data is skipped byte-by-byte until the next sync pattern and reported as
// Dropped outputs; with it disabled, such data is a fatal StreamError.
// If log is nil, slog.Default() is used.
func NewParser(resync bool, log *slog.Logger) *Parser {
	if log == nil {
		log = slog.Default()
	}
	return &Parser{
		log:       log.With("component", "mpa-parser"),
		frameSize: mpa.HeaderSize,
		resync:    resync,
	}
}

// Buffered returns the number of bytes held back as a partial frame.
func (p *Parser) Buffered() int {
	return len(p.buf)
}

// Descriptor returns the most recently decoded stream parameters, or nil
// before the first frame.
func (p *Parser) Descriptor() *mpa.FormatDescriptor {
	return p.last
}

// RequestSize returns how many bytes the host should fetch next so that at
// least frames complete frames can be extracted, given what is already
// buffered. Before any frame has been decoded the estimate is the header
// size; afterwards it is the last computed frame size. The result is never
// below the header size, so the sync lookahead after a slice can always be
// evaluated.
func (p *Parser) RequestSize(frames int) int {
	need := p.frameSize*frames - len(p.buf)
	if need < mpa.HeaderSize {
		return mpa.HeaderSize
	}
	return need
}

// Deliver appends chunk to the internal buffer and extracts as many
// complete frames as the buffer now holds. Outputs are returned in exact
// stream order. A non-nil error is fatal for this delivery: it is always a
// *StreamError, outputs produced before the failure are still returned,
// and the buffer is left untouched so the host can inspect it.
func (p *Parser) Deliver(chunk []byte) ([]Output, error) {
	p.buf = append(p.buf, chunk...)

	var out []Output

	// A stream that begins mid-frame self-aligns here instead of failing
	// with ErrMisaligned below.
	if p.resync && len(p.buf) > 0 && !mpa.HasSync(p.buf, 0) {
		out = p.resynchronize(out, 0)
	}

	for {
		if len(p.buf) < mpa.HeaderSize {
			// Empty buffer or partial header: wait for the next delivery.
			return out, nil
		}
		if !mpa.HasSync(p.buf, 0) {
			// Non-MPEG data at the head is a protocol violation even with
			// resync enabled: ingest-time alignment already ran above.
			return out, p.fatal(ErrMisaligned)
		}

		desc, err := mpa.DecodeHeader(p.buf)
		if err != nil {
			if !p.resync {
				return out, p.fatal(ErrInvalidHeader)
			}
			out = p.resynchronize(out, 1)
			continue
		}

		size := desc.FrameSize()
		p.frameSize = size
		if len(p.buf) < size {
			// Partial frame body. The computed size feeds the next demand.
			return out, nil
		}

		// The byte after the slice must itself start a sync pattern,
		// otherwise the header was a false positive. Nothing is consumed
		// on failure: the whole buffer is re-fed to resync.
		if !boundaryOK(p.buf, size) {
			if !p.resync {
				return out, p.fatal(ErrInvalidBoundary)
			}
			out = p.resynchronize(out, 1)
			continue
		}

		if p.last == nil || *p.last != desc {
			d := desc
			p.last = &d
			out = append(out, Output{Descriptor: &d})
		}

		frame := make([]byte, size)
		copy(frame, p.buf[:size])
		out = append(out, Output{Frame: frame})
		p.buf = p.buf[size:]
	}
}

// boundaryOK checks the sync lookahead guard after slicing size bytes.
// Trailing bytes that have not arrived yet are not held against the frame.
func boundaryOK(buf []byte, size int) bool {
	if size >= len(buf) {
		return true
	}
	return mpa.HasSync(buf, size)
}

// resynchronize drops bytes from the front of the buffer until the next
// plausible sync pattern, starting the scan at index skip. The dropped
// span is reported as an Output. Each call strictly shortens the buffer
// (skip >= 1 on validation failures), so the extraction loop terminates.
func (p *Parser) resynchronize(out []Output, skip int) []Output {
	i := skip
	for i < len(p.buf) && !mpa.HasSync(p.buf, i) {
		i++
	}

	if i == 0 {
		return out
	}

	dropped := make([]byte, i)
	copy(dropped, p.buf[:i])
	p.buf = p.buf[i:]

	p.log.Debug("resynchronized", "dropped_bytes", len(dropped), "remaining", len(p.buf))
	return append(out, Output{Dropped: dropped})
}

func (p *Parser) fatal(kind error) error {
	offending := make([]byte, len(p.buf))
	copy(offending, p.buf)
	p.log.Error("stream parse failure", "error", kind, "buffered", len(p.buf))
	return &StreamError{Kind: kind, Bytes: offending}
}

// Package pipeline drives the frame parser from a byte source, realizing
// the parser's pull-based demand over an io.Reader and forwarding parsed
// frames to a buffered channel for distribution.
package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"

	"github.com/zsiec/cadence/demux"
	"github.com/zsiec/cadence/media"
	"github.com/zsiec/cadence/mpa"
)

// framesPerRead is the number of complete frames each read demand asks the
// parser to size for. 1 keeps end-to-end latency at a single frame.
const framesPerRead = 1

// Stats is a point-in-time snapshot of pipeline counters, suitable for
// JSON serialization in diagnostics endpoints.
type Stats struct {
	FramesForwarded   int64 `json:"framesForwarded"`
	BytesDropped      int64 `json:"bytesDropped"`
	DescriptorChanges int64 `json:"descriptorChanges"`
	LastPTS           int64 `json:"lastPts"`
}

// Pipeline bridges a byte source and the frame parser for a single stream.
// It sizes each read from the parser's demand calculation, delivers the
// bytes, and forwards extracted frames on the Frames channel while
// accumulating telemetry.
type Pipeline struct {
	log    *slog.Logger
	parser *demux.Parser
	reader io.Reader
	key    string

	frameCh chan *media.Frame
	pts     int64
	desc    mpa.FormatDescriptor

	framesForwarded   atomic.Int64
	bytesDropped      atomic.Int64
	descriptorChanges atomic.Int64
	lastPTS           atomic.Int64
}

// New creates a Pipeline reading the stream identified by key from input.
// With resync enabled, corrupt spans in the input are skipped and counted
// instead of terminating the stream. If log is nil, slog.Default() is used.
func New(key string, input io.Reader, resync bool, log *slog.Logger) *Pipeline {
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "pipeline", "stream", key)
	return &Pipeline{
		log:     log,
		parser:  demux.NewParser(resync, log),
		reader:  input,
		key:     key,
		frameCh: make(chan *media.Frame, media.FrameBufferSize),
	}
}

// Frames returns the channel on which parsed frames are delivered. It is
// closed when Run returns.
func (p *Pipeline) Frames() <-chan *media.Frame {
	return p.frameCh
}

// Stats returns a snapshot of the pipeline counters.
func (p *Pipeline) Stats() Stats {
	return Stats{
		FramesForwarded:   p.framesForwarded.Load(),
		BytesDropped:      p.bytesDropped.Load(),
		DescriptorChanges: p.descriptorChanges.Load(),
		LastPTS:           p.lastPTS.Load(),
	}
}

// Run reads from the source until EOF, context cancellation, or a fatal
// parse error, extracting frames as data arrives. Each read requests only
// as many bytes as the parser needs to complete the next frame.
func (p *Pipeline) Run(ctx context.Context) error {
	defer close(p.frameCh)

	var readBuf []byte
	for {
		if ctx.Err() != nil {
			return nil
		}

		want := p.parser.RequestSize(framesPerRead)
		if cap(readBuf) < want {
			readBuf = make([]byte, want)
		}

		n, err := p.reader.Read(readBuf[:want])
		if n > 0 {
			if derr := p.deliver(ctx, readBuf[:n]); derr != nil {
				return derr
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				p.log.Info("source drained",
					"frames", p.framesForwarded.Load(),
					"dropped_bytes", p.bytesDropped.Load(),
					"buffered", p.parser.Buffered())
				return nil
			}
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
	}
}

func (p *Pipeline) deliver(ctx context.Context, chunk []byte) error {
	outputs, err := p.parser.Deliver(chunk)

	for _, out := range outputs {
		switch {
		case out.Descriptor != nil:
			p.desc = *out.Descriptor
			p.descriptorChanges.Add(1)
			p.log.Info("stream parameters changed",
				"version", p.desc.Version.String(),
				"layer", p.desc.Layer.String(),
				"bitrate_kbps", p.desc.BitrateKbps,
				"sample_rate", p.desc.SampleRate,
				"channel_mode", p.desc.ChannelMode.String())

		case out.Frame != nil:
			frame := &media.Frame{
				PTS:        p.pts,
				Data:       out.Frame,
				Descriptor: p.desc,
			}
			p.pts += frame.PTSTicks()
			p.lastPTS.Store(frame.PTS)

			select {
			case p.frameCh <- frame:
				p.framesForwarded.Add(1)
			case <-ctx.Done():
				return nil
			}

		case out.Dropped != nil:
			p.bytesDropped.Add(int64(len(out.Dropped)))
			p.log.Warn("dropped bytes while resynchronizing", "count", len(out.Dropped))
		}
	}

	if err != nil {
		p.log.Error("fatal stream error", "error", err)
		return err
	}
	return nil
}

package distribution

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/quic-go/quic-go"
	"github.com/quic-go/quic-go/quicvarint"

	"github.com/zsiec/cadence/media"
)

// Compile-time interface check.
var _ Subscriber = (*session)(nil)

// session is a single QUIC subscriber. Frames broadcast by the relay are
// buffered on a channel and written to the QUIC stream by a dedicated
// goroutine, so one slow subscriber never blocks the others.
type session struct {
	id     string
	log    *slog.Logger
	stream quic.Stream
	ch     chan *media.Frame
	done   chan struct{}
	once   sync.Once

	framesSent    atomic.Int64
	framesDropped atomic.Int64
	bytesSent     atomic.Int64
}

func newSession(id string, stream quic.Stream, log *slog.Logger) *session {
	return &session{
		id:     id,
		log:    log.With("component", "session", "subscriber", id),
		stream: stream,
		ch:     make(chan *media.Frame, media.FrameBufferSize),
		done:   make(chan struct{}),
	}
}

func (s *session) ID() string {
	return s.id
}

// Send queues a frame for delivery. When the buffer is full the frame is
// dropped and counted instead of blocking the broadcaster.
func (s *session) Send(frame *media.Frame) {
	select {
	case <-s.done:
	case s.ch <- frame:
	default:
		s.framesDropped.Add(1)
	}
}

func (s *session) Stats() SubscriberStats {
	return SubscriberStats{
		ID:            s.id,
		FramesSent:    s.framesSent.Load(),
		FramesDropped: s.framesDropped.Load(),
		BytesSent:     s.bytesSent.Load(),
	}
}

// run writes queued frames to the QUIC stream until the session is closed
// or a write fails. Each frame is a varint length prefix followed by the
// raw frame bytes.
func (s *session) run() error {
	for {
		select {
		case <-s.done:
			return nil
		case frame := <-s.ch:
			buf := quicvarint.Append(nil, uint64(len(frame.Data)))
			buf = append(buf, frame.Data...)
			if _, err := s.stream.Write(buf); err != nil {
				return err
			}
			s.framesSent.Add(1)
			s.bytesSent.Add(int64(len(buf)))
		}
	}
}

// close stops the delivery goroutine. Safe to call more than once.
func (s *session) close() {
	s.once.Do(func() { close(s.done) })
}

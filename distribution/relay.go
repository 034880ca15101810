// Package distribution fans parsed audio frames out to subscribers over
// QUIC. Each stream has a Relay hub; subscribers attach with a stream key
// and receive varint-length-prefixed frames on a unidirectional stream.
package distribution

import (
	"log/slog"
	"sync"

	"github.com/zsiec/cadence/media"
	"github.com/zsiec/cadence/mpa"
)

// Subscriber is the interface a subscriber session must implement to
// receive frames from a Relay. Accepting an interface here decouples the
// relay from the QUIC session type, making it testable with stubs.
type Subscriber interface {
	ID() string
	Send(frame *media.Frame)
	Stats() SubscriberStats
}

// SubscriberStats captures per-subscriber delivery counters.
type SubscriberStats struct {
	ID            string `json:"id"`
	FramesSent    int64  `json:"framesSent"`
	FramesDropped int64  `json:"framesDropped"`
	BytesSent     int64  `json:"bytesSent"`
}

// Relay is the fan-out hub for a single stream. It distributes frames from
// the pipeline to all attached subscribers and remembers the current
// stream parameters so late joiners can be reported accurately in
// diagnostics.
type Relay struct {
	log *slog.Logger

	mu       sync.RWMutex
	sessions map[string]Subscriber
	desc     *mpa.FormatDescriptor
}

// NewRelay creates a Relay with no subscribers. If log is nil,
// slog.Default() is used.
func NewRelay(key string, log *slog.Logger) *Relay {
	if log == nil {
		log = slog.Default()
	}
	return &Relay{
		log:      log.With("component", "relay", "stream", key),
		sessions: make(map[string]Subscriber),
	}
}

// SetDescriptor records the current stream parameters. Called by the
// pipeline consumer whenever the parser reports a change.
func (r *Relay) SetDescriptor(desc mpa.FormatDescriptor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.desc = &desc
	r.log.Debug("descriptor updated",
		"layer", desc.Layer.String(),
		"bitrate_kbps", desc.BitrateKbps,
		"sample_rate", desc.SampleRate)
}

// Descriptor returns the current stream parameters, or nil before the
// first frame has been parsed.
func (r *Relay) Descriptor() *mpa.FormatDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.desc
}

// Attach registers a subscriber to receive broadcast frames.
func (r *Relay) Attach(sub Subscriber) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[sub.ID()] = sub
	r.log.Info("subscriber attached", "id", sub.ID(), "total", len(r.sessions))
}

// Detach removes a subscriber.
func (r *Relay) Detach(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[id]; ok {
		delete(r.sessions, id)
		r.log.Info("subscriber detached", "id", id, "total", len(r.sessions))
	}
}

// SubscriberCount returns the number of attached subscribers.
func (r *Relay) SubscriberCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// SubscriberStatsAll returns delivery counters for every subscriber.
func (r *Relay) SubscriberStatsAll() []SubscriberStats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]SubscriberStats, 0, len(r.sessions))
	for _, sub := range r.sessions {
		out = append(out, sub.Stats())
	}
	return out
}

// Broadcast delivers a frame to every attached subscriber. Sends are
// non-blocking inside each subscriber; slow subscribers drop frames
// rather than stalling the pipeline.
func (r *Relay) Broadcast(frame *media.Frame) {
	if frame.Descriptor != (mpa.FormatDescriptor{}) {
		r.mu.RLock()
		known := r.desc != nil && *r.desc == frame.Descriptor
		r.mu.RUnlock()
		if !known {
			r.SetDescriptor(frame.Descriptor)
		}
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, sub := range r.sessions {
		sub.Send(frame)
	}
}

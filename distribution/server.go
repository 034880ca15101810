package distribution

import (
	"bufio"
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/quic-go/quic-go"

	"github.com/zsiec/cadence/certs"
)

// alpnProtocol is the ALPN token subscribers must offer.
const alpnProtocol = "cadence"

// subscribeTimeout bounds how long a new connection may take to send its
// subscribe request before being dropped.
const subscribeTimeout = 5 * time.Second

// Server accepts QUIC subscriber connections. A subscriber opens a single
// bidirectional stream, sends the stream key it wants terminated by a
// newline, and then receives varint-length-prefixed frames on the same
// stream until it disconnects or the stream ends.
type Server struct {
	log  *slog.Logger
	addr string
	cert *certs.CertInfo

	mu     sync.RWMutex
	relays map[string]*Relay
	nextID int
}

// NewServer creates a QUIC distribution server listening on addr with the
// given certificate. If log is nil, slog.Default() is used.
func NewServer(addr string, cert *certs.CertInfo, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		log:    log.With("component", "quic-server"),
		addr:   addr,
		cert:   cert,
		relays: make(map[string]*Relay),
	}
}

// RegisterStream creates and returns the Relay for a stream key. Called by
// the host when a new ingest stream starts.
func (s *Server) RegisterStream(key string) *Relay {
	s.mu.Lock()
	defer s.mu.Unlock()
	relay := NewRelay(key, s.log)
	s.relays[key] = relay
	return relay
}

// UnregisterStream removes the Relay for a stream key.
func (s *Server) UnregisterStream(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.relays, key)
}

// Relay returns the relay for a stream key, or false if none is active.
func (s *Server) Relay(key string) (*Relay, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.relays[key]
	return r, ok
}

// Start listens for subscriber connections. It blocks until the context
// is cancelled.
func (s *Server) Start(ctx context.Context) error {
	tlsConf := &tls.Config{
		Certificates: []tls.Certificate{s.cert.TLSCert},
		NextProtos:   []string{alpnProtocol},
	}
	quicConf := &quic.Config{
		MaxIdleTimeout:  30 * time.Second,
		KeepAlivePeriod: 10 * time.Second,
	}

	l, err := quic.ListenAddr(s.addr, tlsConf, quicConf)
	if err != nil {
		return fmt.Errorf("QUIC listen on %s: %w", s.addr, err)
	}
	defer l.Close()
	s.log.Info("listening", "addr", s.addr)

	go func() {
		<-ctx.Done()
		l.Close()
	}()

	for {
		conn, err := l.Accept(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			s.log.Warn("accept error", "error", err)
			continue
		}
		go s.handleConnection(ctx, conn)
	}
}

func (s *Server) handleConnection(ctx context.Context, conn quic.Connection) {
	acceptCtx, cancel := context.WithTimeout(ctx, subscribeTimeout)
	stream, err := conn.AcceptStream(acceptCtx)
	cancel()
	if err != nil {
		conn.CloseWithError(1, "no subscribe stream")
		return
	}

	key, err := readSubscribeRequest(stream)
	if err != nil {
		s.log.Debug("bad subscribe request", "remote", conn.RemoteAddr(), "error", err)
		conn.CloseWithError(2, "bad subscribe request")
		return
	}

	relay, ok := s.Relay(key)
	if !ok {
		s.log.Debug("subscribe for unknown stream", "stream_key", key, "remote", conn.RemoteAddr())
		conn.CloseWithError(3, "unknown stream")
		return
	}

	s.mu.Lock()
	s.nextID++
	id := fmt.Sprintf("sub-%d", s.nextID)
	s.mu.Unlock()

	sess := newSession(id, stream, s.log)
	relay.Attach(sess)
	s.log.Info("subscriber connected", "id", id, "stream_key", key, "remote", conn.RemoteAddr())

	go func() {
		<-ctx.Done()
		sess.close()
	}()

	err = sess.run()
	relay.Detach(id)
	sess.close()
	conn.CloseWithError(0, "")

	stats := sess.Stats()
	s.log.Info("subscriber disconnected", "id", id, "stream_key", key,
		"frames", stats.FramesSent, "dropped", stats.FramesDropped,
		"bytes", stats.BytesSent, "error", err)
}

// readSubscribeRequest reads the newline-terminated stream key from the
// subscriber's stream. A leading "live/" prefix is accepted and stripped,
// mirroring the SRT ingest keying convention.
func readSubscribeRequest(stream quic.Stream) (string, error) {
	line, err := bufio.NewReaderSize(stream, 256).ReadString('\n')
	if err != nil {
		return "", err
	}
	key := strings.TrimSpace(line)
	key = strings.TrimPrefix(key, "live/")
	if key == "" {
		return "", fmt.Errorf("empty stream key")
	}
	return key, nil
}

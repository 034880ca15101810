// Cadence: SRT ingest → MPEG audio frame parsing → QUIC fan-out.
//
// Publishers push raw MPEG audio (e.g. MP3) elementary streams over SRT;
// each stream is parsed into validated frames which are relayed to QUIC
// subscribers as they arrive.
//
// Usage:
//
//	cadence [-config cadence.toml]
//	ffmpeg -re -i input.mp3 -c copy -f mp3 srt://localhost:6000?streamid=live/demo
package main

import (
	"context"
	"flag"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/zsiec/cadence/certs"
	"github.com/zsiec/cadence/distribution"
	"github.com/zsiec/cadence/ingest"
	srtingest "github.com/zsiec/cadence/ingest/srt"
	"github.com/zsiec/cadence/media"
	"github.com/zsiec/cadence/pipeline"
	"github.com/zsiec/cadence/stream"
)

var version = "dev"

func main() {
	configPath := flag.String("config", "", "path to TOML config file")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel})))

	slog.Info("generating self-signed certificate")
	cert, err := certs.Generate(30 * 24 * time.Hour)
	if err != nil {
		slog.Error("failed to generate cert", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("received signal, shutting down", "signal", sig)
		cancel()
	}()

	slog.Info("cadence starting",
		"version", version,
		"srt", cfg.SRTAddr,
		"quic", cfg.QUICAddr,
		"resync", cfg.Resync,
		"cert_hash", cert.FingerprintBase64(),
	)

	g, ctx := errgroup.WithContext(ctx)

	mgr := stream.NewManager(nil)
	distSrv := distribution.NewServer(cfg.QUICAddr, cert, nil)

	// The registry callback captures the errgroup-derived context so every
	// pipeline shuts down when any component fails.
	registry := ingest.NewRegistry(func(key string, input io.Reader) {
		handleNewStream(ctx, cfg, mgr, distSrv, key, input)
	})

	srtSrv := srtingest.NewServer(cfg.SRTAddr, registry, nil)

	g.Go(func() error {
		return srtSrv.Start(ctx)
	})

	if len(cfg.Pulls) > 0 {
		caller := srtingest.NewCaller(registry, nil)
		go startPulls(ctx, caller, cfg.Pulls)
	}

	g.Go(func() error {
		return distSrv.Start(ctx)
	})

	if err := g.Wait(); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}

func handleNewStream(ctx context.Context, cfg Config, mgr *stream.Manager, distSrv *distribution.Server, key string, input io.Reader) {
	slog.Info("new stream from ingest", "key", key)

	if _, created := mgr.Create(key); !created {
		return
	}
	defer func() {
		distSrv.UnregisterStream(key)
		mgr.Remove(key)
	}()

	relay := distSrv.RegisterStream(key)
	p := pipeline.New(key, input, cfg.Resync, nil)

	done := make(chan struct{})
	go func() {
		defer close(done)
		forwardFrames(p.Frames(), relay)
	}()

	if err := p.Run(ctx); err != nil {
		slog.Error("pipeline error", "stream", key, "error", err)
	}
	<-done

	stats := p.Stats()
	slog.Info("stream ended", "key", key,
		"frames", stats.FramesForwarded,
		"dropped_bytes", stats.BytesDropped,
		"descriptor_changes", stats.DescriptorChanges)
}

// startPulls dials each configured pull target. A failed dial is logged
// and skipped rather than taking the server down: push publishers are
// unaffected by an unreachable pull source.
func startPulls(ctx context.Context, caller *srtingest.Caller, targets []PullTarget) {
	for _, target := range targets {
		err := caller.Pull(ctx, srtingest.PullRequest{
			Address:   target.Address,
			StreamKey: target.StreamKey,
			StreamID:  target.StreamID,
		})
		if err != nil {
			slog.Error("pull failed", "address", target.Address,
				"stream_key", target.StreamKey, "error", err)
		}
	}
}

func forwardFrames(frames <-chan *media.Frame, relay *distribution.Relay) {
	for frame := range frames {
		relay.Broadcast(frame)
	}
}

package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
)

// Config holds the server configuration. Values come from a TOML file when
// -config is given, with environment variables overriding file values and
// built-in defaults filling the rest.
type Config struct {
	SRTAddr  string
	QUICAddr string
	Resync   bool
	LogLevel slog.Level
	Pulls    []PullTarget
}

// PullTarget is a remote SRT listener to pull a stream from at startup,
// for sources that cannot push. Configured as [[pull]] blocks.
type PullTarget struct {
	Address   string
	StreamKey string
	StreamID  string
}

type fileConfig struct {
	SRTAddr  string     `toml:"srt_addr"`
	QUICAddr string     `toml:"quic_addr"`
	Resync   bool       `toml:"resync"`
	LogLevel string     `toml:"log_level"`
	Pulls    []filePull `toml:"pull"`
}

type filePull struct {
	Address   string `toml:"address"`
	StreamKey string `toml:"stream_key"`
	StreamID  string `toml:"stream_id"`
}

func defaultConfig() Config {
	return Config{
		SRTAddr:  ":6000",
		QUICAddr: ":4443",
		Resync:   true,
		LogLevel: slog.LevelInfo,
	}
}

func loadConfig(path string) (Config, error) {
	cfg := defaultConfig()

	if path != "" {
		var raw fileConfig
		meta, err := toml.DecodeFile(path, &raw)
		if err != nil {
			return Config{}, fmt.Errorf("load config: %w", err)
		}
		if meta.IsDefined("srt_addr") {
			cfg.SRTAddr = strings.TrimSpace(raw.SRTAddr)
		}
		if meta.IsDefined("quic_addr") {
			cfg.QUICAddr = strings.TrimSpace(raw.QUICAddr)
		}
		if meta.IsDefined("resync") {
			cfg.Resync = raw.Resync
		}
		if meta.IsDefined("log_level") {
			level, err := parseLogLevel(raw.LogLevel)
			if err != nil {
				return Config{}, err
			}
			cfg.LogLevel = level
		}
		for i, p := range raw.Pulls {
			if p.Address == "" || p.StreamKey == "" {
				return Config{}, fmt.Errorf("pull %d: address and stream_key are required", i)
			}
			cfg.Pulls = append(cfg.Pulls, PullTarget{
				Address:   strings.TrimSpace(p.Address),
				StreamKey: strings.TrimSpace(p.StreamKey),
				StreamID:  strings.TrimSpace(p.StreamID),
			})
		}
	}

	cfg.SRTAddr = envOr("SRT_ADDR", cfg.SRTAddr)
	cfg.QUICAddr = envOr("QUIC_ADDR", cfg.QUICAddr)
	if v := os.Getenv("RESYNC"); v != "" {
		cfg.Resync = v != "0" && !strings.EqualFold(v, "false")
	}
	if os.Getenv("DEBUG") != "" {
		cfg.LogLevel = slog.LevelDebug
	}

	return cfg, nil
}

func parseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("unknown log level %q", s)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

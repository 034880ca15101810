// Package srt implements SRT ingest for Cadence, accepting publish
// connections and dialing remote sources, both feeding raw MPEG audio
// bytes into the ingest registry.
package srt

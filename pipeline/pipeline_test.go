package pipeline

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/zsiec/cadence/demux"
	"github.com/zsiec/cadence/media"
	"github.com/zsiec/cadence/mpa"
)

// MPEG1 Layer III, 128 kbps, 44100 Hz, stereo: 417-byte frames,
// 1152 samples each.
var testHeader = []byte{0xFF, 0xFB, 0x90, 0x00}

func makeFrame(t *testing.T) []byte {
	t.Helper()
	d, err := mpa.DecodeHeader(testHeader)
	if err != nil {
		t.Fatal(err)
	}
	frame := make([]byte, d.FrameSize())
	copy(frame, testHeader)
	for i := len(testHeader); i < len(frame); i++ {
		frame[i] = 0x11
	}
	return frame
}

func collect(t *testing.T, p *Pipeline) ([]*media.Frame, error) {
	t.Helper()

	done := make(chan error, 1)
	go func() {
		done <- p.Run(context.Background())
	}()

	var got []*media.Frame
	for frame := range p.Frames() {
		got = append(got, frame)
	}

	select {
	case err := <-done:
		return got, err
	case <-time.After(5 * time.Second):
		t.Fatal("pipeline did not finish")
		return nil, nil
	}
}

func TestRunToEOF(t *testing.T) {
	t.Parallel()

	f := makeFrame(t)
	stream := bytes.Join([][]byte{f, f, f}, nil)

	p := New("test", bytes.NewReader(stream), false, nil)
	got, err := collect(t, p)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if len(got) != 3 {
		t.Fatalf("got %d frames, want 3", len(got))
	}
	for i, frame := range got {
		if !bytes.Equal(frame.Data, f) {
			t.Errorf("frame %d payload mismatch", i)
		}
		if frame.Descriptor.BitrateKbps != 128 {
			t.Errorf("frame %d bitrate = %d, want 128", i, frame.Descriptor.BitrateKbps)
		}
	}

	// PTS advances by 1152 samples at 44100 Hz on the 90 kHz clock.
	ticks := int64(1152) * 90000 / 44100
	for i, frame := range got {
		if want := int64(i) * ticks; frame.PTS != want {
			t.Errorf("frame %d PTS = %d, want %d", i, frame.PTS, want)
		}
	}

	stats := p.Stats()
	if stats.FramesForwarded != 3 {
		t.Errorf("FramesForwarded = %d, want 3", stats.FramesForwarded)
	}
	if stats.DescriptorChanges != 1 {
		t.Errorf("DescriptorChanges = %d, want 1", stats.DescriptorChanges)
	}
	if stats.BytesDropped != 0 {
		t.Errorf("BytesDropped = %d, want 0", stats.BytesDropped)
	}
}

func TestRunCountsResyncDrops(t *testing.T) {
	t.Parallel()

	f := makeFrame(t)
	garbage := bytes.Repeat([]byte{0x42}, 25)
	stream := append(append([]byte{}, garbage...), bytes.Join([][]byte{f, f}, nil)...)

	p := New("test", bytes.NewReader(stream), true, nil)
	got, err := collect(t, p)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if len(got) != 2 {
		t.Fatalf("got %d frames, want 2", len(got))
	}
	if stats := p.Stats(); stats.BytesDropped != int64(len(garbage)) {
		t.Errorf("BytesDropped = %d, want %d", stats.BytesDropped, len(garbage))
	}
}

func TestRunFatalOnMisalignedInput(t *testing.T) {
	t.Parallel()

	stream := bytes.Repeat([]byte{0x42}, 100)

	p := New("test", bytes.NewReader(stream), false, nil)
	got, err := collect(t, p)

	if !errors.Is(err, demux.ErrMisaligned) {
		t.Fatalf("Run error = %v, want ErrMisaligned", err)
	}
	if len(got) != 0 {
		t.Errorf("got %d frames, want 0", len(got))
	}
}

func TestRunHonorsContextCancel(t *testing.T) {
	t.Parallel()

	// A pipe-like reader that never returns data would block forever; a
	// cancelled context must stop the loop before the first read.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	f := makeFrame(t)
	p := New("test", bytes.NewReader(f), false, nil)
	if err := p.Run(ctx); err != nil {
		t.Fatalf("Run with cancelled context = %v, want nil", err)
	}
}

func TestRunTruncatedTailIsNotAnError(t *testing.T) {
	t.Parallel()

	f := makeFrame(t)
	stream := append(append([]byte{}, f...), f[:50]...) // EOF mid-frame

	p := New("test", bytes.NewReader(stream), false, nil)
	got, err := collect(t, p)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d frames, want 1", len(got))
	}
}

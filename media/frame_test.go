package media

import (
	"testing"
	"time"

	"github.com/zsiec/cadence/mpa"
)

func TestFrameTiming(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		header    []byte
		wantTicks int64
		wantDur   time.Duration
	}{
		{
			// MPEG-1 Layer III at 44.1 kHz: 1152 samples per frame.
			name:      "layer3 44.1kHz",
			header:    []byte{0xFF, 0xFB, 0x90, 0x00},
			wantTicks: 1152 * 90000 / 44100,
			wantDur:   1152 * time.Second / 44100,
		},
		{
			// MPEG-1 Layer I at 32 kHz: 384 samples per frame.
			name:      "layer1 32kHz",
			header:    []byte{0xFF, 0xFE, 0x18, 0xC0},
			wantTicks: 384 * 90000 / 32000,
			wantDur:   384 * time.Second / 32000,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			desc, err := mpa.DecodeHeader(tt.header)
			if err != nil {
				t.Fatalf("DecodeHeader: %v", err)
			}
			f := &Frame{Data: tt.header, Descriptor: desc}
			if got := f.PTSTicks(); got != tt.wantTicks {
				t.Errorf("PTSTicks = %d, want %d", got, tt.wantTicks)
			}
			if got := f.Duration(); got != tt.wantDur {
				t.Errorf("Duration = %v, want %v", got, tt.wantDur)
			}
		})
	}
}

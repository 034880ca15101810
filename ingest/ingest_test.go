package ingest

import (
	"errors"
	"io"
	"sync"
	"testing"
	"time"
)

func TestRegisterAndGet(t *testing.T) {
	t.Parallel()

	r := NewRegistry(nil)
	s, w, err := r.Register("cam1")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if s == nil || w == nil {
		t.Fatal("Register returned nil stream or writer")
	}
	if s.Key != "cam1" {
		t.Errorf("Key = %q, want %q", s.Key, "cam1")
	}

	got, ok := r.Get("cam1")
	if !ok || got != s {
		t.Error("Get did not return the registered stream")
	}
	if _, ok := r.Get("missing"); ok {
		t.Error("Get returned a stream for an unknown key")
	}
}

func TestRegisterDuplicateRejected(t *testing.T) {
	t.Parallel()

	r := NewRegistry(nil)
	first, _, err := r.Register("cam1")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	if _, _, err := r.Register("cam1"); !errors.Is(err, ErrDuplicateStream) {
		t.Fatalf("second Register error = %v, want ErrDuplicateStream", err)
	}

	// The original stream is untouched and its teardown still works.
	got, ok := r.Get("cam1")
	if !ok || got != first {
		t.Fatal("original stream displaced by rejected duplicate")
	}
	r.Unregister("cam1")
	select {
	case <-first.Done():
	default:
		t.Error("original stream not signaled done after unregister")
	}
}

func TestUnregisterClosesPipe(t *testing.T) {
	t.Parallel()

	r := NewRegistry(nil)
	s, w, err := r.Register("cam1")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	var readErr error
	go func() {
		defer wg.Done()
		buf := make([]byte, 16)
		for {
			if _, readErr = s.input.Read(buf); readErr != nil {
				return
			}
		}
	}()

	if _, err := w.Write([]byte("abcd")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	r.Unregister("cam1")
	wg.Wait()

	if readErr != io.EOF {
		t.Errorf("reader got %v after unregister, want io.EOF", readErr)
	}
	select {
	case <-s.Done():
	default:
		t.Error("Done channel not closed after unregister")
	}
	if _, ok := r.Get("cam1"); ok {
		t.Error("stream still registered after Unregister")
	}
}

func TestOnStreamCallback(t *testing.T) {
	t.Parallel()

	keyCh := make(chan string, 1)
	dataCh := make(chan []byte, 1)
	r := NewRegistry(func(key string, input io.Reader) {
		keyCh <- key
		buf := make([]byte, 16)
		n, _ := input.Read(buf)
		dataCh <- buf[:n]
	})

	_, w, err := r.Register("cam1")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if _, err := w.Write([]byte{0xFF, 0xFB}); err != nil {
		t.Fatalf("Write: %v", err)
	}

	select {
	case key := <-keyCh:
		if key != "cam1" {
			t.Errorf("callback key = %q, want %q", key, "cam1")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("onStream callback not invoked")
	}
	select {
	case data := <-dataCh:
		if len(data) != 2 || data[0] != 0xFF {
			t.Errorf("callback read %v, want the written bytes", data)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("callback never received written bytes")
	}
}

func TestStreamStats(t *testing.T) {
	t.Parallel()

	r := NewRegistry(nil)
	s, _, err := r.Register("cam1")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	s.SetRemoteAddr("198.51.100.7:39000")
	s.RecordRead(1316)
	s.RecordRead(1316)

	stats := s.Stats()
	if stats.BytesReceived != 2632 {
		t.Errorf("BytesReceived = %d, want 2632", stats.BytesReceived)
	}
	if stats.ReadCount != 2 {
		t.Errorf("ReadCount = %d, want 2", stats.ReadCount)
	}
	if stats.RemoteAddr != "198.51.100.7:39000" {
		t.Errorf("RemoteAddr = %q", stats.RemoteAddr)
	}
	if stats.ConnectedAt == 0 {
		t.Error("ConnectedAt not set")
	}
}

func TestConcurrentRegistryAccess(t *testing.T) {
	t.Parallel()

	r := NewRegistry(nil)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			key := string(rune('a' + n))
			r.Register(key)
			r.Get(key)
			r.Unregister(key)
		}(i)
	}
	wg.Wait()

	for i := 0; i < 8; i++ {
		if _, ok := r.Get(string(rune('a' + i))); ok {
			t.Errorf("stream %c still registered", 'a'+i)
		}
	}
}

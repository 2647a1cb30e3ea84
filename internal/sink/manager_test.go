package sink

import (
	"bytes"
	"testing"

	"github.com/aerodrop/aerodrop/internal/protocol"
)

func TestManagerDrivesBufferedSinkThroughHooks(t *testing.T) {
	var blob []byte
	factory := func(i int, path string, size int64, offset int64) (Sink, error) {
		return NewBufferedSink("text/plain", func(b []byte, mime string) error {
			blob = b
			return nil
		}), nil
	}
	m := NewManager(factory)
	hooks := m.Hooks()

	if err := hooks.FileStart(0, "a.txt", 11); err != nil {
		t.Fatalf("FileStart: %v", err)
	}
	if err := hooks.Binary([]byte("hello ")); err != nil {
		t.Fatalf("Binary: %v", err)
	}
	if err := hooks.Binary([]byte("world")); err != nil {
		t.Fatalf("Binary: %v", err)
	}
	if err := hooks.FileComplete(0); err != nil {
		t.Fatalf("FileComplete: %v", err)
	}
	if err := hooks.AllComplete(); err != nil {
		t.Fatalf("AllComplete: %v", err)
	}

	if !bytes.Equal(blob, []byte("hello world")) {
		t.Fatalf("blob = %q, want %q", blob, "hello world")
	}
}

func TestManagerSeedResumeOffsetsOnlyTargetFile(t *testing.T) {
	var offsets []int64
	factory := func(i int, path string, size int64, offset int64) (Sink, error) {
		offsets = append(offsets, offset)
		return NewBufferedSink("", nil), nil
	}
	m := NewManager(factory)
	m.SeedResume(1, 500)
	hooks := m.Hooks()

	if err := hooks.FileStart(0, "a.txt", 10); err != nil {
		t.Fatalf("FileStart(0): %v", err)
	}
	if err := hooks.FileComplete(0); err != nil {
		t.Fatalf("FileComplete(0): %v", err)
	}
	if err := hooks.FileStart(1, "b.txt", 1000); err != nil {
		t.Fatalf("FileStart(1): %v", err)
	}

	if len(offsets) != 2 || offsets[0] != 0 || offsets[1] != 500 {
		t.Fatalf("offsets = %v, want [0 500]", offsets)
	}
}

func TestManagerAbortClearsActiveSink(t *testing.T) {
	aborted := false
	factory := func(i int, path string, size int64, offset int64) (Sink, error) {
		return &trackingSink{onAbort: func() { aborted = true }}, nil
	}
	m := NewManager(factory)
	hooks := m.Hooks()
	if err := hooks.FileStart(0, "a.txt", 10); err != nil {
		t.Fatalf("FileStart: %v", err)
	}
	hooks.Abort()
	if !aborted {
		t.Fatal("expected sink Abort invoked")
	}

	// a stray binary frame after abort should not panic; there is no
	// active sink, so Binary returns an error which the receiver state
	// machine itself never reaches in practice because it drops frames
	// outside Streaming.
	if err := hooks.Binary([]byte("x")); err == nil {
		t.Fatal("expected error writing with no active sink")
	}
}

func TestManagerUsesProtocolSinkHooksType(t *testing.T) {
	var _ protocol.SinkHooks = NewManager(func(int, string, int64, int64) (Sink, error) {
		return nil, nil
	}).Hooks()
}

func TestManagerRepeatFileStartBeforeBytesIsIdempotent(t *testing.T) {
	opens := 0
	var aborted bool
	factory := func(i int, path string, size int64, offset int64) (Sink, error) {
		opens++
		return &trackingSink{onAbort: func() { aborted = true }}, nil
	}
	m := NewManager(factory)
	hooks := m.Hooks()

	if err := hooks.FileStart(0, "a.txt", 10); err != nil {
		t.Fatalf("FileStart: %v", err)
	}
	first := m.current
	if err := hooks.FileStart(0, "a.txt", 10); err != nil {
		t.Fatalf("FileStart (repeat): %v", err)
	}

	if opens != 1 {
		t.Fatalf("opens = %d, want 1 (no bytes yet, should stay idempotent)", opens)
	}
	if aborted {
		t.Fatal("sink should not be aborted when no bytes have arrived")
	}
	if m.current != first {
		t.Fatal("expected the same sink instance to remain active")
	}
}

func TestManagerFileStartAfterBytesAbortsAndReopens(t *testing.T) {
	opens := 0
	var aborted bool
	factory := func(i int, path string, size int64, offset int64) (Sink, error) {
		opens++
		return &trackingSink{onAbort: func() { aborted = true }}, nil
	}
	m := NewManager(factory)
	hooks := m.Hooks()

	if err := hooks.FileStart(0, "a.txt", 10); err != nil {
		t.Fatalf("FileStart: %v", err)
	}
	if err := hooks.Binary([]byte("x")); err != nil {
		t.Fatalf("Binary: %v", err)
	}
	first := m.current
	if err := hooks.FileStart(0, "a.txt", 10); err != nil {
		t.Fatalf("FileStart (restart): %v", err)
	}

	if opens != 2 {
		t.Fatalf("opens = %d, want 2 (restart should re-open)", opens)
	}
	if !aborted {
		t.Fatal("expected prior sink to be aborted before reopening")
	}
	if m.current == first {
		t.Fatal("expected a new sink instance after restart")
	}
}

func TestManagerFileStartForNewIndexAbortsPriorOpenSink(t *testing.T) {
	var aborted bool
	factory := func(i int, path string, size int64, offset int64) (Sink, error) {
		return &trackingSink{onAbort: func() { aborted = true }}, nil
	}
	m := NewManager(factory)
	hooks := m.Hooks()

	if err := hooks.FileStart(0, "a.txt", 10); err != nil {
		t.Fatalf("FileStart(0): %v", err)
	}
	if err := hooks.FileStart(1, "b.txt", 10); err != nil {
		t.Fatalf("FileStart(1): %v", err)
	}

	if !aborted {
		t.Fatal("expected sink for file 0 to be aborted when file 1 starts early")
	}
	if m.currentIndex != 1 {
		t.Fatalf("currentIndex = %d, want 1", m.currentIndex)
	}
}

type trackingSink struct {
	onAbort func()
}

func (s *trackingSink) Write(data []byte) error { return nil }
func (s *trackingSink) Close() error            { return nil }
func (s *trackingSink) Abort()                  { s.onAbort() }

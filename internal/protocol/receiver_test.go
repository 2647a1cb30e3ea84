package protocol

import (
	"testing"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/aerodrop/aerodrop/internal/manifest"
	"github.com/aerodrop/aerodrop/internal/transport"
)

func manifestFrame(t *testing.T, m manifest.Manifest) Frame {
	t.Helper()
	data, err := Encode(TypeManifest, m)
	if err != nil {
		t.Fatalf("encode manifest: %v", err)
	}
	f, err := Decode(data)
	if err != nil {
		t.Fatalf("decode manifest: %v", err)
	}
	return f
}

func TestReceiverManifestEntersNegotiating(t *testing.T) {
	_, guest := transport.NewPipe()
	r := NewReceiver(guest, SinkHooks{}, nil)

	if err := r.HandleFrame(manifestFrame(t, testManifest())); err != nil {
		t.Fatalf("HandleFrame(MANIFEST): %v", err)
	}
	if r.Session.Phase != PhaseNegotiating {
		t.Fatalf("phase = %v, want Negotiating", r.Session.Phase)
	}
}

func TestReceiverAcceptEntersStreaming(t *testing.T) {
	_, guest := transport.NewPipe()
	r := NewReceiver(guest, SinkHooks{}, nil)
	if err := r.HandleFrame(manifestFrame(t, testManifest())); err != nil {
		t.Fatalf("HandleFrame(MANIFEST): %v", err)
	}

	if err := r.Accept(); err != nil {
		t.Fatalf("Accept: %v", err)
	}
	if r.Session.Phase != PhaseStreaming {
		t.Fatalf("phase = %v, want Streaming", r.Session.Phase)
	}
}

func TestReceiverResumeEligibleMatchingManifest(t *testing.T) {
	prior := testManifest()
	_, guest := transport.NewPipe()
	r := NewReceiver(guest, SinkHooks{}, &prior)
	if err := r.HandleFrame(manifestFrame(t, testManifest())); err != nil {
		t.Fatalf("HandleFrame(MANIFEST): %v", err)
	}
	r.Session.MarkComplete(0)

	idx, ok := r.ResumeEligible()
	if !ok {
		t.Fatal("expected resume eligible")
	}
	if idx != 1 {
		t.Fatalf("lowest incomplete = %d, want 1", idx)
	}
}

func TestReceiverResumeIneligibleOnMismatch(t *testing.T) {
	prior := manifest.New([]manifest.FileEntry{{Path: "only.txt", Size: 1}}, manifest.Constraints{})
	_, guest := transport.NewPipe()
	r := NewReceiver(guest, SinkHooks{}, &prior)
	if err := r.HandleFrame(manifestFrame(t, testManifest())); err != nil {
		t.Fatalf("HandleFrame(MANIFEST): %v", err)
	}

	if _, ok := r.ResumeEligible(); ok {
		t.Fatal("expected resume ineligible on manifest mismatch")
	}
}

func TestReceiverFileLifecycle(t *testing.T) {
	_, guest := transport.NewPipe()

	var started []int
	var written [][]byte
	var completed []int
	allCompleteCalled := false

	hooks := SinkHooks{
		FileStart:    func(i int, path string, size int64) error { started = append(started, i); return nil },
		Binary:       func(data []byte) error { written = append(written, data); return nil },
		FileComplete: func(i int) error { completed = append(completed, i); return nil },
		AllComplete:  func() error { allCompleteCalled = true; return nil },
	}
	r := NewReceiver(guest, hooks, nil)
	if err := r.HandleFrame(manifestFrame(t, testManifest())); err != nil {
		t.Fatalf("HandleFrame(MANIFEST): %v", err)
	}
	if err := r.Accept(); err != nil {
		t.Fatalf("Accept: %v", err)
	}

	if err := r.HandleFrame(Frame{Type: TypeFileStart, Payload: mustEncodePayload(t, FileStartPayload{FileIndex: 0, Path: "a.txt", Size: 10})}); err != nil {
		t.Fatalf("HandleFrame(FILE_START): %v", err)
	}
	if err := r.HandleBinary([]byte("0123456789")); err != nil {
		t.Fatalf("HandleBinary: %v", err)
	}
	if r.Session.BytesDelivered != 10 {
		t.Fatalf("BytesDelivered = %d, want 10", r.Session.BytesDelivered)
	}
	if err := r.HandleFrame(Frame{Type: TypeFileComplete, Payload: mustEncodePayload(t, FileCompletePayload{FileIndex: 0})}); err != nil {
		t.Fatalf("HandleFrame(FILE_COMPLETE): %v", err)
	}
	if err := r.HandleFrame(Frame{Type: TypeFileStart, Payload: mustEncodePayload(t, FileStartPayload{FileIndex: 1, Path: "b.txt", Size: 20})}); err != nil {
		t.Fatalf("HandleFrame(FILE_START): %v", err)
	}
	if err := r.HandleFrame(Frame{Type: TypeFileComplete, Payload: mustEncodePayload(t, FileCompletePayload{FileIndex: 1})}); err != nil {
		t.Fatalf("HandleFrame(FILE_COMPLETE): %v", err)
	}
	if err := r.HandleFrame(Frame{Type: TypeAllComplete}); err != nil {
		t.Fatalf("HandleFrame(ALL_COMPLETE): %v", err)
	}

	if r.Session.Phase != PhaseCompleted {
		t.Fatalf("phase = %v, want Completed", r.Session.Phase)
	}
	if len(started) != 2 || started[0] != 0 || started[1] != 1 {
		t.Fatalf("started = %v, want [0 1]", started)
	}
	if len(completed) != 2 {
		t.Fatalf("completed = %v, want 2 entries", completed)
	}
	if !allCompleteCalled {
		t.Fatal("AllComplete hook not called")
	}
	if !r.Session.Completed[0] || !r.Session.Completed[1] {
		t.Fatal("both files should be marked complete")
	}
}

func TestReceiverDropsBinaryOutsideStreaming(t *testing.T) {
	_, guest := transport.NewPipe()
	called := false
	hooks := SinkHooks{Binary: func(data []byte) error { called = true; return nil }}
	r := NewReceiver(guest, hooks, nil)

	if err := r.HandleBinary([]byte("stray")); err != nil {
		t.Fatalf("HandleBinary: %v", err)
	}
	if called {
		t.Fatal("binary hook should not fire outside Streaming")
	}
}

func TestReceiverCancelAbortsSink(t *testing.T) {
	_, guest := transport.NewPipe()
	aborted := false
	hooks := SinkHooks{Abort: func() { aborted = true }}
	r := NewReceiver(guest, hooks, nil)
	if err := r.HandleFrame(manifestFrame(t, testManifest())); err != nil {
		t.Fatalf("HandleFrame(MANIFEST): %v", err)
	}
	if err := r.Accept(); err != nil {
		t.Fatalf("Accept: %v", err)
	}

	r.Cancel("user stopped")

	if !aborted {
		t.Fatal("expected sink abort on cancel")
	}
	if r.Session.Phase != PhaseCancelled {
		t.Fatalf("phase = %v, want Cancelled", r.Session.Phase)
	}
	if r.Session.Epoch() != 1 {
		t.Fatalf("epoch = %d, want 1", r.Session.Epoch())
	}
}

func TestReceiverRejectExpiredEntersFailedExpired(t *testing.T) {
	_, guest := transport.NewPipe()
	r := NewReceiver(guest, SinkHooks{}, nil)

	err := r.HandleFrame(Frame{Type: TypeReject, Payload: mustEncodePayload(t, RejectPayload{Reason: "expired"})})
	if err == nil {
		t.Fatal("expected HandleFrame(REJECT) to return an error")
	}
	if r.Session.Phase != PhaseFailed {
		t.Fatalf("phase = %v, want Failed", r.Session.Phase)
	}
	if r.Session.FailReason != ReasonExpired {
		t.Fatalf("FailReason = %v, want %v", r.Session.FailReason, ReasonExpired)
	}
}

func TestReceiverRejectOtherReasonFails(t *testing.T) {
	_, guest := transport.NewPipe()
	r := NewReceiver(guest, SinkHooks{}, nil)

	err := r.HandleFrame(Frame{Type: TypeReject, Payload: mustEncodePayload(t, RejectPayload{Reason: "manifest too large"})})
	if err == nil {
		t.Fatal("expected HandleFrame(REJECT) to return an error")
	}
	if r.Session.Phase != PhaseFailed {
		t.Fatalf("phase = %v, want Failed", r.Session.Phase)
	}
	if r.Session.FailReason != FailReason("manifest too large") {
		t.Fatalf("FailReason = %v, want %v", r.Session.FailReason, "manifest too large")
	}
}

func mustEncodePayload(t *testing.T, v any) []byte {
	t.Helper()
	b, err := msgpack.Marshal(v)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return b
}

package session

import (
	"bytes"
	"context"
	"io"
	"testing"
	"time"

	"github.com/aerodrop/aerodrop/internal/manifest"
	"github.com/aerodrop/aerodrop/internal/protocol"
	"github.com/aerodrop/aerodrop/internal/pump"
	"github.com/aerodrop/aerodrop/internal/transport"
)

type nopCloser struct{ io.Reader }

func (nopCloser) Close() error { return nil }

func opener(content map[string][]byte) pump.FileOpener {
	return func(entry manifest.FileEntry, offset int64) (io.ReadCloser, error) {
		data := content[entry.Path][offset:]
		return nopCloser{bytes.NewReader(data)}, nil
	}
}

func singleFileManifest(path string, data []byte) manifest.Manifest {
	return manifest.New([]manifest.FileEntry{
		{Path: path, Size: int64(len(data)), Mime: "text/plain"},
	}, manifest.Constraints{})
}

func TestSenderNegotiateStreamsOnAccept(t *testing.T) {
	host, guest := transport.NewPipe()
	defer host.Close("test done")
	defer guest.Close("test done")

	content := map[string][]byte{"hello.txt": []byte("hello world")}
	m := singleFileManifest("hello.txt", content["hello.txt"])

	s := NewSender(SenderConfig{
		Code:     "1234",
		Manifest: m,
		Open:     opener(content),
	})

	errCh := make(chan error, 1)
	go func() { errCh <- s.negotiate(context.Background(), host) }()

	// guest: MANIFEST -> ACCEPT
	mustReadControl(t, guest, protocol.TypeManifest)
	sendControl(t, guest, protocol.TypeAccept, nil)

	mustReadControl(t, guest, protocol.TypeFileStart)
	bin := mustReadFrame(t, guest)
	if bin.Kind != transport.KindBinary || string(bin.Data) != "hello world" {
		t.Fatalf("binary frame = %+v, want %q", bin, "hello world")
	}
	mustReadControl(t, guest, protocol.TypeFileComplete)
	mustReadControl(t, guest, protocol.TypeAllComplete)

	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("negotiate: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("negotiate did not return after ALL_COMPLETE")
	}

	if s.Session.Phase != protocol.PhaseCompleted {
		t.Fatalf("phase = %v, want Completed", s.Session.Phase)
	}
}

func TestSenderNegotiateCancelStopsProducer(t *testing.T) {
	host, guest := transport.NewPipe()
	defer host.Close("test done")
	defer guest.Close("test done")

	content := map[string][]byte{"big.bin": bytes.Repeat([]byte("x"), 4<<20)}
	m := singleFileManifest("big.bin", content["big.bin"])

	s := NewSender(SenderConfig{Code: "1234", Manifest: m, Open: opener(content)})

	errCh := make(chan error, 1)
	go func() { errCh <- s.negotiate(context.Background(), host) }()

	mustReadControl(t, guest, protocol.TypeManifest)
	sendControl(t, guest, protocol.TypeAccept, nil)
	mustReadControl(t, guest, protocol.TypeFileStart)

	sendControl(t, guest, protocol.TypeCancel, protocol.CancelPayload{Reason: "user cancelled"})

	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("negotiate: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("negotiate did not return after CANCEL")
	}

	if s.Session.Phase != protocol.PhaseCancelled {
		t.Fatalf("phase = %v, want Cancelled", s.Session.Phase)
	}
}

func mustReadFrame(t *testing.T, ch transport.Channel) transport.Message {
	t.Helper()
	select {
	case msg, ok := <-ch.Frames():
		if !ok {
			t.Fatal("channel closed waiting for frame")
		}
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for frame")
		return transport.Message{}
	}
}

func mustReadControl(t *testing.T, ch transport.Channel, want protocol.FrameType) protocol.Frame {
	t.Helper()
	msg := mustReadFrame(t, ch)
	if msg.Kind != transport.KindControl {
		t.Fatalf("frame kind = %v, want control", msg.Kind)
	}
	frame, err := protocol.Decode(msg.Data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if frame.Type != want {
		t.Fatalf("frame type = %v, want %v", frame.Type, want)
	}
	return frame
}

func sendControl(t *testing.T, ch transport.Channel, typ protocol.FrameType, payload any) {
	t.Helper()
	data, err := protocol.Encode(typ, payload)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if err := ch.SendControl(data); err != nil {
		t.Fatalf("SendControl: %v", err)
	}
}

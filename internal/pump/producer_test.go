package pump

import (
	"bytes"
	"io"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aerodrop/aerodrop/internal/manifest"
	"github.com/aerodrop/aerodrop/internal/protocol"
	"github.com/aerodrop/aerodrop/internal/transport"
)

func nopCloser(r io.Reader) io.ReadCloser { return io.NopCloser(r) }

func testTunables() transport.Tunables {
	return transport.Tunables{
		ChunkSize:     4,
		HighWatermark: 1 << 30, // effectively disabled unless a test overrides it
		LowWatermark:  0,
	}
}

func TestProducerStreamsAllFilesInOrder(t *testing.T) {
	files := map[string][]byte{
		"a.txt": []byte("hello world"),
		"b.txt": []byte("bye"),
	}
	m := manifest.New([]manifest.FileEntry{
		{Path: "a.txt", Size: int64(len(files["a.txt"]))},
		{Path: "b.txt", Size: int64(len(files["b.txt"]))},
	}, manifest.Constraints{})

	host, guest := transport.NewPipe()
	open := func(entry manifest.FileEntry, offset int64) (io.ReadCloser, error) {
		return nopCloser(bytes.NewReader(files[entry.Path][offset:])), nil
	}
	p := New(m, host, testTunables(), open, func() uint64 { return 0 })

	done := make(chan struct{})
	var completed bool
	var runErr error
	go func() {
		completed, runErr = p.Run(0, 0, 0)
		close(done)
	}()

	var gotBinary [2][]byte
	fileIdx := -1
	for {
		select {
		case msg := <-guest.Frames():
			if msg.Kind == transport.KindBinary {
				gotBinary[fileIdx] = append(gotBinary[fileIdx], msg.Data...)
				continue
			}
			f, err := protocol.Decode(msg.Data)
			if err != nil {
				t.Fatalf("decode control frame: %v", err)
			}
			switch f.Type {
			case protocol.TypeFileStart:
				var start protocol.FileStartPayload
				if err := f.DecodePayload(&start); err != nil {
					t.Fatalf("decode file_start: %v", err)
				}
				fileIdx = start.FileIndex
			case protocol.TypeFileComplete:
				var fc protocol.FileCompletePayload
				if err := f.DecodePayload(&fc); err != nil {
					t.Fatalf("decode file_complete: %v", err)
				}
				if !bytes.Equal(gotBinary[fc.FileIndex], files[m.Files[fc.FileIndex].Path]) {
					t.Fatalf("file %d contents = %q, want %q", fc.FileIndex, gotBinary[fc.FileIndex], files[m.Files[fc.FileIndex].Path])
				}
				if fc.FileIndex == len(m.Files)-1 {
					goto finished
				}
			}
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for frames")
		}
	}
finished:
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("producer did not finish after last FILE_COMPLETE")
	}
	if runErr != nil {
		t.Fatalf("Run error: %v", runErr)
	}
	if !completed {
		t.Fatal("expected completed=true")
	}
}

func TestProducerAbandonsOnEpochChange(t *testing.T) {
	content := bytes.Repeat([]byte("x"), 100)
	m := manifest.New([]manifest.FileEntry{{Path: "a.bin", Size: int64(len(content))}}, manifest.Constraints{})

	host, guest := transport.NewPipe()
	open := func(entry manifest.FileEntry, offset int64) (io.ReadCloser, error) {
		return nopCloser(bytes.NewReader(content[offset:])), nil
	}

	tun := testTunables()
	tun.ChunkSize = 1 // force many iterations so the epoch check is exercised repeatedly

	// Deterministically flip the observed epoch after a few checks rather
	// than racing a sleep against however fast the in-memory pipe drains.
	var checks atomic.Int64
	currentEpoch := func() uint64 {
		if checks.Add(1) > 3 {
			return 1
		}
		return 0
	}
	p := New(m, host, tun, open, currentEpoch)

	go func() {
		// drain frames so SendControl/SendBinary never blocks on a full pipe
		for range guest.Frames() {
		}
	}()

	done := make(chan struct {
		completed bool
		err       error
	}, 1)
	go func() {
		completed, err := p.Run(0, 0, 0)
		done <- struct {
			completed bool
			err       error
		}{completed, err}
	}()

	select {
	case result := <-done:
		if result.err != nil {
			t.Fatalf("Run error: %v", result.err)
		}
		if result.completed {
			t.Fatal("expected completed=false after epoch change")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("producer did not abandon after epoch change")
	}
}

func TestProducerWaitForWindowBlocksAboveHighWatermark(t *testing.T) {
	ch := newStubChannel()
	ch.bufAmt.Store(100)

	tun := transport.Tunables{HighWatermark: 50, LowWatermark: 10}
	p := &Producer{Channel: ch, Tunables: tun, CurrentEpoch: func() uint64 { return 0 }}

	releaseAt := time.Now().Add(20 * time.Millisecond)
	go func() {
		time.Sleep(20 * time.Millisecond)
		ch.bufAmt.Store(5)
	}()

	if err := p.waitForWindow(0); err != nil {
		t.Fatalf("waitForWindow: %v", err)
	}
	if time.Now().Before(releaseAt) {
		t.Fatal("waitForWindow returned before buffered amount drained")
	}
}

func TestProducerWaitForWindowReturnsImmediatelyBelowHigh(t *testing.T) {
	ch := newStubChannel()
	ch.bufAmt.Store(10)
	tun := transport.Tunables{HighWatermark: 50, LowWatermark: 10}
	p := &Producer{Channel: ch, Tunables: tun, CurrentEpoch: func() uint64 { return 0 }}

	start := time.Now()
	if err := p.waitForWindow(0); err != nil {
		t.Fatalf("waitForWindow: %v", err)
	}
	if time.Since(start) > 2*time.Millisecond {
		t.Fatal("waitForWindow should not have blocked below the high watermark")
	}
}

type stubChannel struct {
	bufAmt atomic.Int64
}

func newStubChannel() *stubChannel { return &stubChannel{} }

func (c *stubChannel) SendControl(data []byte) error { return nil }
func (c *stubChannel) SendBinary(data []byte) error  { return nil }
func (c *stubChannel) Frames() <-chan transport.Message {
	ch := make(chan transport.Message)
	close(ch)
	return ch
}
func (c *stubChannel) BufferedAmount() int64     { return c.bufAmt.Load() }
func (c *stubChannel) Close(reason string) error { return nil }
func (c *stubChannel) LocalAddr() net.Addr       { return stubAddrT{} }
func (c *stubChannel) RemoteAddr() net.Addr      { return stubAddrT{} }

type stubAddrT struct{}

func (stubAddrT) Network() string { return "stub" }
func (stubAddrT) String() string  { return "stub" }

// Package pump implements the sender-side data pump: the per-file
// chunked reader that turns a manifest and a transport channel into a
// stream of FILE_START/binary-frame/FILE_COMPLETE traffic, governed by
// watermark flow control and a cooperative epoch check.
package pump

import (
	"io"
	"sync/atomic"
	"time"

	"github.com/aerodrop/aerodrop/internal/manifest"
	"github.com/aerodrop/aerodrop/internal/protocol"
	"github.com/aerodrop/aerodrop/internal/transport"
)

// YieldEvery is how many chunks the producer sends before yielding to
// the runtime so control frames and UI updates can interleave.
const YieldEvery = 32

// pollInterval is how often the producer rechecks buffered_amount while
// suspended above the high watermark. The channel has no "drained"
// signal to block on, so this is a short poll rather than a wakeup.
const pollInterval = 5 * time.Millisecond

// FileOpener opens entry for reading, seeked to offset.
type FileOpener func(entry manifest.FileEntry, offset int64) (io.ReadCloser, error)

// Producer drives one sender-side streaming pass over a manifest.
type Producer struct {
	Manifest  manifest.Manifest
	Channel   transport.Channel
	Tunables  transport.Tunables
	Open      FileOpener
	CurrentEpoch func() uint64

	OnFileStart    func(i int, path string, size int64) error
	OnFileComplete func(i int) error

	sent atomic.Int64
}

// BytesSent returns the running count of bytes handed to SendBinary so
// far, across every Run call on this Producer. Safe to call from any
// goroutine: a caller polling for UI progress reads this instead of
// touching the session record the producer's own goroutine doesn't own.
func (p *Producer) BytesSent() int64 {
	return p.sent.Load()
}

// New builds a Producer. tunables should come from transport.TunablesFor
// applied to the channel's negotiated network class.
func New(m manifest.Manifest, ch transport.Channel, tunables transport.Tunables, open FileOpener, currentEpoch func() uint64) *Producer {
	return &Producer{Manifest: m, Channel: ch, Tunables: tunables, Open: open, CurrentEpoch: currentEpoch}
}

// Run streams files from startIndex/startOffset through the end of the
// manifest, under epoch. It returns (completed=true, nil) if every file
// was sent, (false, nil) if abandoned because the epoch advanced out
// from under it, or (false, err) on a transport failure.
func (p *Producer) Run(epoch uint64, startIndex int, startOffset int64) (completed bool, err error) {
	chunksSinceYield := 0

	for i := startIndex; i < len(p.Manifest.Files); i++ {
		entry := p.Manifest.Files[i]
		off := int64(0)
		if i == startIndex {
			off = startOffset
		}

		if err := p.emitFileStart(i, entry, entry.Size-off); err != nil {
			return false, err
		}

		r, err := p.Open(entry, off)
		if err != nil {
			return false, err
		}

		for off < entry.Size {
			if p.stale(epoch) {
				r.Close()
				return false, nil
			}

			if err := p.waitForWindow(epoch); err != nil {
				r.Close()
				return false, nil
			}

			chunkSize := p.Tunables.ChunkSize
			if remaining := entry.Size - off; remaining < chunkSize {
				chunkSize = remaining
			}
			buf := make([]byte, chunkSize)
			n, readErr := io.ReadFull(r, buf)
			if readErr != nil && readErr != io.EOF && readErr != io.ErrUnexpectedEOF {
				r.Close()
				return false, readErr
			}
			if n > 0 {
				if err := p.Channel.SendBinary(buf[:n]); err != nil {
					r.Close()
					return false, err
				}
				off += int64(n)
				p.sent.Add(int64(n))
			}

			chunksSinceYield++
			if chunksSinceYield >= YieldEvery {
				chunksSinceYield = 0
				runtimeYield()
			}
		}
		r.Close()

		if p.stale(epoch) {
			return false, nil
		}
		if err := p.emitFileComplete(i); err != nil {
			return false, err
		}
	}

	return true, nil
}

func (p *Producer) stale(epoch uint64) bool {
	return p.CurrentEpoch() != epoch
}

// waitForWindow suspends while buffered_amount is at or above the high
// watermark, resuming once it has drained to the low watermark. Returns
// early (without error) if the epoch advances while waiting.
func (p *Producer) waitForWindow(epoch uint64) error {
	if p.Channel.BufferedAmount() < p.Tunables.HighWatermark {
		return nil
	}
	for p.Channel.BufferedAmount() > p.Tunables.LowWatermark {
		if p.stale(epoch) {
			return nil
		}
		time.Sleep(pollInterval)
	}
	return nil
}

func (p *Producer) emitFileStart(i int, entry manifest.FileEntry, remaining int64) error {
	if p.OnFileStart != nil {
		if err := p.OnFileStart(i, entry.Path, remaining); err != nil {
			return err
		}
	}
	data, err := protocol.Encode(protocol.TypeFileStart, protocol.FileStartPayload{
		FileIndex: i, Path: entry.Path, Size: remaining,
	})
	if err != nil {
		return err
	}
	return p.Channel.SendControl(data)
}

func (p *Producer) emitFileComplete(i int) error {
	data, err := protocol.Encode(protocol.TypeFileComplete, protocol.FileCompletePayload{FileIndex: i})
	if err != nil {
		return err
	}
	if err := p.Channel.SendControl(data); err != nil {
		return err
	}
	if p.OnFileComplete != nil {
		return p.OnFileComplete(i)
	}
	return nil
}

// runtimeYield hands control back to the Go scheduler so other
// goroutines (control-frame handling, UI updates) get a turn.
func runtimeYield() {
	time.Sleep(0)
}

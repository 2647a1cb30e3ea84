package sink

import "io"

// WriteBatchThreshold is the coalescing-buffer size at which a streaming
// sink chains a batched write onto its write queue (16 MiB).
const WriteBatchThreshold = 16 << 20

// StreamingSink writes to a non-seekable output stream (a download
// surface with no random access). Incoming frames accumulate in a
// coalescing buffer; once the buffer reaches the threshold it is
// swapped for an empty one and the captured batch is handed to a serial
// write queue, turning many small frames into few large writes while
// preserving order.
type StreamingSink struct {
	w         io.WriteCloser
	threshold int
	buf       []byte
	queue     *WriteQueue
}

// NewStreamingSink wires a StreamingSink over w. threshold overrides
// WriteBatchThreshold when non-zero, for tests that want a small batch
// size rather than waiting on 16 MiB of data.
func NewStreamingSink(w io.WriteCloser, threshold int) *StreamingSink {
	if threshold <= 0 {
		threshold = WriteBatchThreshold
	}
	return &StreamingSink{
		w:         w,
		threshold: threshold,
		queue:     NewWriteQueue(func(batch []byte) error { _, err := w.Write(batch); return err }),
	}
}

func (s *StreamingSink) Write(data []byte) error {
	s.buf = append(s.buf, data...)
	if len(s.buf) >= s.threshold {
		s.flush()
	}
	return nil
}

func (s *StreamingSink) flush() {
	if len(s.buf) == 0 {
		return
	}
	batch := s.buf
	s.buf = nil
	s.queue.Enqueue(batch)
}

// Close flushes any residual buffered bytes, waits for the write queue
// to drain, and closes the underlying stream.
func (s *StreamingSink) Close() error {
	s.flush()
	if err := s.queue.Drain(); err != nil {
		s.w.Close()
		return err
	}
	return s.w.Close()
}

// Abort discards the coalescing buffer and any queued-but-unwritten
// batches, then closes the stream without flushing.
func (s *StreamingSink) Abort() {
	s.buf = nil
	s.queue.Abort()
	_ = s.w.Close()
}

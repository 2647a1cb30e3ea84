// Package sink implements the receiver-side data sink: the per-file
// destination a stream of binary frames is written to, under one of
// three capability-driven policies, plus the serial write queue that
// keeps writes in receive order regardless of how coalescing batches
// are scheduled.
package sink

// Policy names the three strategies a receiver can use to materialise a
// file. Nothing in this module selects among them: the Factory passed to
// NewManager alone decides which Sink is built for each file.
type Policy int

const (
	// DirectSeekable writes straight to a platform-provided writable
	// file handle. Seeking for resume is supported.
	DirectSeekable Policy = iota
	// StreamingDownload writes to a non-seekable stream with O(1)
	// memory via a coalescing buffer and batched writes.
	StreamingDownload
	// BufferedBlob collects every chunk in memory and materialises a
	// blob on file completion.
	BufferedBlob
)

func (p Policy) String() string {
	switch p {
	case DirectSeekable:
		return "direct_seekable"
	case StreamingDownload:
		return "streaming_download"
	case BufferedBlob:
		return "buffered_blob"
	default:
		return "unknown"
	}
}

// Sink is the per-file write destination the protocol's receiver-side
// hooks drive. Write is called once per inbound binary frame, in
// receive order. Close flushes and finalises on FILE_COMPLETE. Abort
// discards whatever has been written so far for this file instead of
// finalising it.
type Sink interface {
	Write(data []byte) error
	Close() error
	Abort()
}

package sink

// DownloadTrigger materialises a completed in-memory blob, e.g. handing
// it to a host-provided download surface.
type DownloadTrigger func(blob []byte, mime string) error

// BufferedSink collects every chunk of a file in memory and materialises
// a single blob on Close. Used when neither a seekable handle nor a
// writable stream is available.
type BufferedSink struct {
	mime    string
	trigger DownloadTrigger
	chunks  [][]byte
	size    int
}

// NewBufferedSink builds a BufferedSink that hands the assembled blob to
// trigger on Close.
func NewBufferedSink(mime string, trigger DownloadTrigger) *BufferedSink {
	return &BufferedSink{mime: mime, trigger: trigger}
}

func (s *BufferedSink) Write(data []byte) error {
	cp := append([]byte(nil), data...)
	s.chunks = append(s.chunks, cp)
	s.size += len(cp)
	return nil
}

// Close concatenates every chunk into one blob, in receive order, and
// invokes trigger with it.
func (s *BufferedSink) Close() error {
	blob := make([]byte, 0, s.size)
	for _, c := range s.chunks {
		blob = append(blob, c...)
	}
	s.chunks = nil
	if s.trigger == nil {
		return nil
	}
	return s.trigger(blob, s.mime)
}

// Abort discards every chunk collected so far without materialising a
// blob.
func (s *BufferedSink) Abort() {
	s.chunks = nil
	s.size = 0
}

package sink

import "io"

// SeekWriteCloser is the capability a direct_seekable sink needs from a
// platform file handle: write, seek for resume, and close.
type SeekWriteCloser interface {
	io.Writer
	io.Seeker
	io.Closer
}

// Truncater is implemented by handles that can discard bytes past a
// point, used by Abort to roll back a partially-written file. Handles
// that can't truncate (e.g. append-only) simply skip the rollback.
type Truncater interface {
	Truncate(size int64) error
}

// DirectSeekableSink writes straight to a platform-provided file handle,
// seeked to startOffset on resume. It is the preferred sink whenever a
// single-file manifest and a writable handle are both available.
type DirectSeekableSink struct {
	f           SeekWriteCloser
	startOffset int64
}

// NewDirectSeekableSink seeks f to startOffset and returns a sink ready
// to receive the remaining bytes of the file.
func NewDirectSeekableSink(f SeekWriteCloser, startOffset int64) (*DirectSeekableSink, error) {
	if startOffset > 0 {
		if _, err := f.Seek(startOffset, io.SeekStart); err != nil {
			return nil, err
		}
	}
	return &DirectSeekableSink{f: f, startOffset: startOffset}, nil
}

func (s *DirectSeekableSink) Write(data []byte) error {
	_, err := s.f.Write(data)
	return err
}

func (s *DirectSeekableSink) Close() error {
	return s.f.Close()
}

// Abort truncates the file back to the offset it had when this sink was
// opened, discarding whatever partial bytes arrived for the current
// file, then closes the handle.
func (s *DirectSeekableSink) Abort() {
	if t, ok := s.f.(Truncater); ok {
		_ = t.Truncate(s.startOffset)
	}
	_ = s.f.Close()
}

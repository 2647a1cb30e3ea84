package main

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/aerodrop/aerodrop/internal/sink"
)

// fileSinkFactory builds a sink.Factory that writes each incoming file
// to outDir, creating parent directories as needed and seeking to the
// resume offset on the one file a RESUME restarts mid-stream. A manifest
// path is always slash-separated and relative; it is joined under outDir
// with filepath.Join so it lands on the local OS's separator.
func fileSinkFactory(outDir string) sink.Factory {
	return func(fileIndex int, path string, size int64, offset int64) (sink.Sink, error) {
		full := filepath.Join(outDir, filepath.FromSlash(path))
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			return nil, errors.Wrapf(err, "create directory for %s", path)
		}

		flags := os.O_WRONLY | os.O_CREATE
		if offset == 0 {
			flags |= os.O_TRUNC
		}
		f, err := os.OpenFile(full, flags, 0o644)
		if err != nil {
			return nil, errors.Wrapf(err, "open %s", full)
		}

		s, err := sink.NewDirectSeekableSink(f, offset)
		if err != nil {
			f.Close()
			return nil, errors.Wrapf(err, "seek %s to resume offset", full)
		}
		return s, nil
	}
}

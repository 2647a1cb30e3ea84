package main

import (
	"io"
	"mime"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/aerodrop/aerodrop/internal/manifest"
	"github.com/aerodrop/aerodrop/internal/pump"
)

// buildManifest walks paths (files and/or directories) into an ordered
// manifest.Manifest plus a pump.FileOpener that reads the matching entry
// back off disk. Directory entries contribute every regular file under
// them, recursively, with the path relative to the walked root and
// prefixed by the root directory's own name (photos/sub/b.jpg for a
// walked root photos), so the receiving side never sees an absolute
// local path.
func buildManifest(paths []string, expiresAt int64) (manifest.Manifest, pump.FileOpener, error) {
	var entries []manifest.FileEntry
	absByPath := make(map[string]string)

	for _, root := range paths {
		info, err := os.Stat(root)
		if err != nil {
			return manifest.Manifest{}, nil, errors.Wrapf(err, "stat %s", root)
		}
		if !info.IsDir() {
			e, abs, err := describeFile(root, filepath.Base(root))
			if err != nil {
				return manifest.Manifest{}, nil, err
			}
			entries = append(entries, e)
			absByPath[e.Path] = abs
			continue
		}

		base := filepath.Base(root)
		walkErr := filepath.Walk(root, func(p string, fi os.FileInfo, err error) error {
			if err != nil {
				return err
			}
			if fi.IsDir() {
				return nil
			}
			rel, err := filepath.Rel(root, p)
			if err != nil {
				return err
			}
			logical := filepath.ToSlash(filepath.Join(base, rel))
			e, abs, err := describeFile(p, logical)
			if err != nil {
				return err
			}
			entries = append(entries, e)
			absByPath[e.Path] = abs
			return nil
		})
		if walkErr != nil {
			return manifest.Manifest{}, nil, errors.Wrapf(walkErr, "walk %s", root)
		}
	}

	if len(entries) == 0 {
		return manifest.Manifest{}, nil, errors.New("no files to send")
	}

	m := manifest.New(entries, manifest.Constraints{ExpiresAt: expiresAt})

	open := func(entry manifest.FileEntry, offset int64) (io.ReadCloser, error) {
		abs, ok := absByPath[entry.Path]
		if !ok {
			return nil, errors.Errorf("no local file recorded for %s", entry.Path)
		}
		f, err := os.Open(abs)
		if err != nil {
			return nil, errors.Wrapf(err, "open %s", abs)
		}
		if offset > 0 {
			if _, err := f.Seek(offset, io.SeekStart); err != nil {
				f.Close()
				return nil, errors.Wrapf(err, "seek %s", abs)
			}
		}
		return f, nil
	}

	return m, open, nil
}

func describeFile(abs, logicalPath string) (manifest.FileEntry, string, error) {
	info, err := os.Stat(abs)
	if err != nil {
		return manifest.FileEntry{}, "", errors.Wrapf(err, "stat %s", abs)
	}
	modMs := info.ModTime().UnixMilli()
	mimeType := mime.TypeByExtension(filepath.Ext(abs))
	entry := manifest.FileEntry{
		Path:        logicalPath,
		Size:        info.Size(),
		Mime:        mimeType,
		ModifiedAt:  modMs,
		Fingerprint: manifest.Fingerprint(logicalPath, info.Size(), modMs, mimeType),
	}
	return entry, abs, nil
}

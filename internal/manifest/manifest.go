// Package manifest defines the file-list data model exchanged once per
// session, before any bytes flow.
package manifest

// FileEntry is an immutable per-file descriptor sent at session start.
type FileEntry struct {
	Path        string `msgpack:"path"`
	Size        int64  `msgpack:"size"`
	Mime        string `msgpack:"mime"`
	ModifiedAt  int64  `msgpack:"modified_at"` // epoch-ms
	Fingerprint string `msgpack:"fingerprint"`
}

// Constraints holds session-wide limits attached to a manifest.
type Constraints struct {
	ExpiresAt int64 `msgpack:"expires_at,omitempty"` // epoch-ms, 0 = no expiry
}

// Manifest is the ordered file list exchanged exactly once per session.
type Manifest struct {
	Files       []FileEntry `msgpack:"files"`
	TotalSize   int64       `msgpack:"total_size"`
	Constraints Constraints `msgpack:"constraints"`
}

// New builds a Manifest from entries, computing TotalSize.
func New(entries []FileEntry, constraints Constraints) Manifest {
	var total int64
	for _, e := range entries {
		total += e.Size
	}
	return Manifest{Files: entries, TotalSize: total, Constraints: constraints}
}

// Matches reports whether m is resume-compatible with prior: same file
// count and same total size.
func (m Manifest) Matches(prior Manifest) bool {
	return m.TotalSize == prior.TotalSize && len(m.Files) == len(prior.Files)
}

// SameFile decides whether two entries at the same index refer to the same
// logical file across a reconnect: fingerprint match, falling back to
// (path, size) when either fingerprint is empty.
func SameFile(a, b FileEntry) bool {
	if a.Fingerprint != "" && b.Fingerprint != "" {
		return a.Fingerprint == b.Fingerprint
	}
	return a.Path == b.Path && a.Size == b.Size
}

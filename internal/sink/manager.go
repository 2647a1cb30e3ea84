package sink

import (
	"github.com/pkg/errors"

	"github.com/aerodrop/aerodrop/internal/protocol"
)

// Factory opens the sink for one file. offset is nonzero only for the
// file a resume is seeded on; every other file starts at zero.
type Factory func(fileIndex int, path string, size int64, offset int64) (Sink, error)

// Manager tracks the single sink active at any moment and exposes it as
// protocol.SinkHooks, so the protocol package never touches a concrete
// Sink directly.
type Manager struct {
	factory Factory

	current      Sink
	currentIndex int
	bytesWritten int64

	resumeArmed  bool
	resumeIndex  int
	resumeOffset int64
}

// NewManager builds a Manager that opens sinks via factory.
func NewManager(factory Factory) *Manager {
	return &Manager{factory: factory}
}

// SeedResume arms the manager to open the sink for fileIndex at offset
// instead of zero, for the one file a RESUME restarts mid-stream.
func (m *Manager) SeedResume(fileIndex int, offset int64) {
	m.resumeArmed = true
	m.resumeIndex = fileIndex
	m.resumeOffset = offset
}

// Hooks returns the protocol.SinkHooks bound to this manager.
func (m *Manager) Hooks() protocol.SinkHooks {
	return protocol.SinkHooks{
		FileStart:    m.onFileStart,
		Binary:       m.onBinary,
		FileComplete: m.onFileComplete,
		AllComplete:  m.onAllComplete,
		Abort:        m.onAbort,
	}
}

func (m *Manager) onFileStart(i int, path string, size int64) error {
	if m.current != nil {
		if m.currentIndex == i && m.bytesWritten == 0 {
			// duplicate FILE_START before any bytes arrived: idempotent,
			// keep the sink already open for this file.
			return nil
		}
		// either a new index while one is still open, or a restart of the
		// in-progress file: drop whatever was written and re-open.
		m.current.Abort()
		m.current = nil
	}

	offset := int64(0)
	if m.resumeArmed && i == m.resumeIndex {
		offset = m.resumeOffset
		m.resumeArmed = false
	}
	s, err := m.factory(i, path, size, offset)
	if err != nil {
		return errors.Wrapf(err, "open sink for file %d", i)
	}
	m.current = s
	m.currentIndex = i
	m.bytesWritten = 0
	return nil
}

func (m *Manager) onBinary(data []byte) error {
	if m.current == nil {
		return errors.New("binary frame with no active sink")
	}
	if err := m.current.Write(data); err != nil {
		return err
	}
	m.bytesWritten += int64(len(data))
	return nil
}

func (m *Manager) onFileComplete(i int) error {
	if m.current == nil || m.currentIndex != i {
		return errors.Errorf("FILE_COMPLETE for %d with no matching active sink", i)
	}
	err := m.current.Close()
	m.current = nil
	m.bytesWritten = 0
	return err
}

func (m *Manager) onAllComplete() error {
	return nil
}

func (m *Manager) onAbort() {
	if m.current != nil {
		m.current.Abort()
		m.current = nil
		m.bytesWritten = 0
	}
}

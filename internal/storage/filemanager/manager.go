// Package filemanager bounds the number of concurrently open table files and
// deduplicates opens by path. It is the one component in the engine built
// for concurrent callers: a single mutex guards the maps and a condition
// variable parks callers that want a path another goroutine is already
// opening.
package filemanager

import (
	"os"
	"sync"

	"go.uber.org/zap"

	qerrors "github.com/quarrydb/quarry/internal/errors"
	"github.com/quarrydb/quarry/internal/metrics"
)

// Manager hands out reference-counted handles to open files. The manager
// itself holds one implicit reference to every open file, so a file closes
// when only that implicit reference remains, not when the count reaches
// zero.
type Manager struct {
	mu      sync.Mutex
	cond    *sync.Cond
	opening map[string]struct{}
	open    map[string]*Handle
	maxOpen int
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// New creates a manager with the given open-file budget.
func New(maxOpen int, logger *zap.Logger, m *metrics.Metrics) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	if m == nil {
		m = metrics.Nop()
	}
	mgr := &Manager{
		opening: make(map[string]struct{}),
		open:    make(map[string]*Handle),
		maxOpen: maxOpen,
		logger:  logger,
		metrics: m,
	}
	mgr.cond = sync.NewCond(&mgr.mu)
	return mgr
}

// Handle is a shared reference to an open file. Callers must Release it;
// the last external release closes the file. Reads go through ReadAt so
// handles can be shared without a seek position.
type Handle struct {
	mgr  *Manager
	path string
	file *os.File
	refs int // guarded by mgr.mu; includes the manager's implicit reference
}

// Path returns the file's path.
func (h *Handle) Path() string {
	return h.path
}

// ReadAt reads len(p) bytes at offset off.
func (h *Handle) ReadAt(p []byte, off int64) (int, error) {
	return h.file.ReadAt(p, off)
}

// Size returns the file's current size in bytes.
func (h *Handle) Size() (int64, error) {
	st, err := h.file.Stat()
	if err != nil {
		return 0, qerrors.IO("failed to stat file", err).WithDetail("path", h.path)
	}
	return st.Size(), nil
}

// Release drops the caller's reference. When only the manager's implicit
// reference remains the file is closed and forgotten.
func (h *Handle) Release() {
	m := h.mgr
	m.mu.Lock()
	h.refs--
	if h.refs < 1 {
		m.mu.Unlock()
		m.logger.Error("file handle reference count underflow",
			zap.String("path", h.path), zap.Int("refs", h.refs))
		return
	}
	if h.refs > 1 {
		m.mu.Unlock()
		return
	}
	// Only the manager knows about the file now.
	delete(m.open, h.path)
	m.mu.Unlock()

	if err := h.file.Close(); err != nil {
		m.logger.Warn("failed to close file", zap.String("path", h.path), zap.Error(err))
	}
	m.metrics.FileClosesTotal.Inc()
	m.metrics.FilesOpen.Dec()
	m.logger.Debug("file closed", zap.String("path", h.path))
}

// Open returns a handle for path, sharing the descriptor with any other
// holder of the same path. If another goroutine is opening the path, Open
// blocks until that attempt settles and then retries the lookup. When the
// combined count of open and in-flight files has reached the budget, Open
// fails synchronously with a too-many-open-files error; the caller may retry
// after releasing handles.
func (m *Manager) Open(path string) (*Handle, error) {
	m.mu.Lock()
	for {
		if h, ok := m.open[path]; ok {
			h.refs++
			m.mu.Unlock()
			return h, nil
		}
		if _, ok := m.opening[path]; ok {
			m.metrics.FileOpenWaits.Inc()
			m.cond.Wait()
			continue
		}
		break
	}

	if len(m.open)+len(m.opening) >= m.maxOpen {
		current := len(m.open) + len(m.opening)
		m.mu.Unlock()
		m.metrics.FileOpenRejections.Inc()
		return nil, qerrors.TooManyOpenFiles(current, m.maxOpen).WithDetail("path", path)
	}

	// Reserve the slot, then open without holding the lock.
	m.opening[path] = struct{}{}
	m.mu.Unlock()

	file, err := os.Open(path)

	m.mu.Lock()
	delete(m.opening, path)
	m.cond.Broadcast()
	if err != nil {
		m.mu.Unlock()
		return nil, qerrors.IO("failed to open file", err).WithDetail("path", path)
	}
	h := &Handle{mgr: m, path: path, file: file, refs: 2}
	m.open[path] = h
	m.mu.Unlock()

	m.metrics.FileOpensTotal.Inc()
	m.metrics.FilesOpen.Inc()
	m.logger.Debug("file opened", zap.String("path", path))
	return h, nil
}

// NumOpen returns the number of currently open files.
func (m *Manager) NumOpen() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.open)
}

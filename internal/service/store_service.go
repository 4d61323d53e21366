package service

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/quarrydb/quarry/internal/config"
	qerrors "github.com/quarrydb/quarry/internal/errors"
	"github.com/quarrydb/quarry/internal/metrics"
	"github.com/quarrydb/quarry/internal/model"
	"github.com/quarrydb/quarry/internal/storage/bloom"
	"github.com/quarrydb/quarry/internal/storage/cursor"
	"github.com/quarrydb/quarry/internal/storage/filemanager"
	"github.com/quarrydb/quarry/internal/storage/recovery"
	"github.com/quarrydb/quarry/internal/storage/sstable"
	"github.com/quarrydb/quarry/internal/util/workerpool"
)

// TableSuffix is the file name suffix of sorted tables in the table dir.
const TableSuffix = ".sst"

// StoreService wires the storage primitives together: it scans the table
// directory, recovers the leveled version, and builds read cursors over it.
type StoreService struct {
	cfg     *config.StorageConfig
	bloom   *config.BloomConfig
	files   *filemanager.Manager
	recover *recovery.Recoverer
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// NewStoreService creates a store service.
func NewStoreService(cfg *config.Config, logger *zap.Logger, m *metrics.Metrics) *StoreService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if m == nil {
		m = metrics.Nop()
	}
	return &StoreService{
		cfg:     &cfg.Storage,
		bloom:   &cfg.Bloom,
		files:   filemanager.New(cfg.Storage.MaxOpenFiles, logger, m),
		recover: recovery.New(cfg.Storage.NumLevels, logger, m),
		logger:  logger,
		metrics: m,
	}
}

// FileManager exposes the underlying file manager.
func (s *StoreService) FileManager() *filemanager.Manager {
	return s.files
}

// RecoverVersion scans the table directory, loads every table's footer
// metadata on the worker pool, and reconstructs the leveled version.
func (s *StoreService) RecoverVersion(ctx context.Context) (*model.Version, error) {
	names, err := s.listTables()
	if err != nil {
		return nil, err
	}

	pool := workerpool.New("footer-scan", s.cfg.ScanWorkers, len(names)+1, s.logger)
	defer pool.Stop(30 * time.Second)

	var (
		mu      sync.Mutex
		tables  []*model.TableMetadata
		loadErr error
		wg      sync.WaitGroup
	)
	for _, name := range names {
		path := name
		wg.Add(1)
		task := workerpool.Task{
			ID: filepath.Base(path),
			Fn: func(context.Context) error {
				defer wg.Done()
				meta, err := s.loadMetadata(path)
				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					if loadErr == nil {
						loadErr = err
					}
					return err
				}
				tables = append(tables, meta)
				return nil
			},
		}
		if err := pool.Submit(ctx, task); err != nil {
			wg.Done()
			return nil, qerrors.IO("failed to schedule footer scan", err).WithDetail("path", path)
		}
	}
	wg.Wait()
	if loadErr != nil {
		return nil, loadErr
	}

	// Deterministic input order regardless of scan scheduling.
	sort.Slice(tables, func(i, j int) bool { return tables[i].FilePath < tables[j].FilePath })
	return s.recover.Recover(tables)
}

func (s *StoreService) listTables() ([]string, error) {
	entries, err := os.ReadDir(s.cfg.TableDir)
	if err != nil {
		return nil, qerrors.IO("failed to read table directory", err).
			WithDetail("dir", s.cfg.TableDir)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != TableSuffix {
			continue
		}
		names = append(names, filepath.Join(s.cfg.TableDir, e.Name()))
	}
	return names, nil
}

func (s *StoreService) loadMetadata(path string) (*model.TableMetadata, error) {
	handle, err := s.files.Open(path)
	if err != nil {
		return nil, err
	}
	defer handle.Release()
	reader, err := sstable.OpenReader(handle)
	if err != nil {
		return nil, err
	}
	s.metrics.TableReadsTotal.Inc()
	return reader.Metadata(), nil
}

// WriteTable builds one sorted table from entries, which are sorted in
// place. It returns the new table's metadata.
func (s *StoreService) WriteTable(name string, entries []model.Entry) (*model.TableMetadata, error) {
	cursor.SortEntries(entries)
	path := filepath.Join(s.cfg.TableDir, name+TableSuffix)
	w, err := sstable.NewWriter(path, s.bloom.BitsPerKey)
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		if err := w.Add(e); err != nil {
			w.Abort()
			return nil, err
		}
	}
	meta, err := w.Finish()
	if err != nil {
		return nil, err
	}
	s.metrics.TableWritesTotal.Inc()
	s.metrics.BloomAddsTotal.Add(float64(len(entries)))
	s.logger.Info("table written",
		zap.String("path", path),
		zap.String("digest", meta.Digest),
		zap.Int("entries", len(entries)))
	return meta, nil
}

// Scanner is a composed read cursor plus the file handles backing it. Close
// releases the handles; the cursor must not be used afterward.
type Scanner struct {
	cursor.Cursor
	handles []*filemanager.Handle
}

// Close releases the scanner's file handles.
func (sc *Scanner) Close() {
	for _, h := range sc.handles {
		h.Release()
	}
	sc.handles = nil
}

// NewScanner builds a pruned, bounded, merged cursor over every table in
// the version overlapping the bounds, at the given visibility timestamp.
func (s *StoreService) NewScanner(version *model.Version, lo, hi cursor.Bound, visible uint64) (*Scanner, error) {
	tables := s.tablesInRange(version, lo, hi)
	sc := &Scanner{}
	children := make([]cursor.Cursor, 0, len(tables))
	for _, t := range tables {
		handle, err := s.files.Open(t.FilePath)
		if err != nil {
			sc.Close()
			return nil, err
		}
		sc.handles = append(sc.handles, handle)
		reader, err := sstable.OpenReader(handle)
		if err != nil {
			sc.Close()
			return nil, err
		}
		s.metrics.TableReadsTotal.Inc()
		s.metrics.CursorsCreated.WithLabelValues("table").Inc()
		children = append(children, reader.NewCursor())
	}

	merged := cursor.NewMergingCursor(children)
	s.metrics.CursorsCreated.WithLabelValues("merging").Inc()
	bounded := cursor.NewBoundsCursor(merged, lo, hi)
	s.metrics.CursorsCreated.WithLabelValues("bounds").Inc()
	pruned := cursor.NewPruningCursor(bounded, visible)
	s.metrics.CursorsCreated.WithLabelValues("pruning").Inc()
	if err := pruned.SeekToFirst(); err != nil {
		s.metrics.CursorErrors.Inc()
		sc.Close()
		return nil, err
	}
	sc.Cursor = pruned
	return sc, nil
}

func (s *StoreService) tablesInRange(version *model.Version, lo, hi cursor.Bound) []*model.TableMetadata {
	first := lo.Key
	if lo.Kind == cursor.Unbounded {
		first = nil
	}
	var last []byte
	if hi.Kind == cursor.Unbounded {
		// No upper bound: take everything from first on.
		var out []*model.TableMetadata
		for _, l := range version.Levels {
			for _, t := range l.Tables() {
				if first == nil || bytes.Compare(t.LastKey, first) >= 0 {
					out = append(out, t)
				}
			}
		}
		return out
	}
	last = hi.Key
	if first == nil {
		var out []*model.TableMetadata
		for _, l := range version.Levels {
			for _, t := range l.Tables() {
				if bytes.Compare(t.FirstKey, last) <= 0 {
					out = append(out, t)
				}
			}
		}
		return out
	}
	return version.Overlapping(first, last)
}

// Get returns the visible value of userKey at the visibility timestamp. The
// bloom filter hash is computed once and checked against every candidate
// table; tables the filter rules out are never opened.
func (s *StoreService) Get(version *model.Version, userKey []byte, visible uint64) (*model.Entry, error) {
	h := bloom.Sum(userKey)
	candidates := version.Overlapping(userKey, userKey)

	var children []cursor.Cursor
	sc := &Scanner{}
	defer sc.Close()
	for _, t := range candidates {
		handle, err := s.files.Open(t.FilePath)
		if err != nil {
			return nil, err
		}
		reader, rerr := sstable.OpenReader(handle)
		if rerr != nil {
			handle.Release()
			return nil, rerr
		}
		s.metrics.BloomChecksTotal.Inc()
		if !reader.MayContainHash(h) {
			s.metrics.BloomNegatives.Inc()
			handle.Release()
			continue
		}
		sc.handles = append(sc.handles, handle)
		s.metrics.CursorsCreated.WithLabelValues("table").Inc()
		children = append(children, reader.NewCursor())
	}
	if len(children) == 0 {
		return nil, qerrors.KeyNotFound(userKey)
	}

	merged := cursor.NewMergingCursor(children)
	pruned := cursor.NewPruningCursor(merged, visible)
	if err := pruned.Seek(model.InternalKey{UserKey: userKey, Timestamp: model.MaxTimestamp}); err != nil {
		s.metrics.CursorErrors.Inc()
		return nil, err
	}
	if err := pruned.Next(); err != nil {
		s.metrics.CursorErrors.Inc()
		return nil, err
	}
	e := pruned.Entry()
	if e == nil || !bytes.Equal(e.Key.UserKey, userKey) {
		return nil, qerrors.KeyNotFound(userKey)
	}
	clone := e.Clone()
	return &clone, nil
}

// DescribeVersion renders a one-line summary per level for logs and the
// command line.
func DescribeVersion(v *model.Version) []string {
	var out []string
	for _, l := range v.Levels {
		if l.Len() == 0 {
			continue
		}
		var size int64
		for _, t := range l.Tables() {
			size += t.Size
		}
		out = append(out, fmt.Sprintf("L%d: %d tables, %d bytes", l.Number, l.Len(), size))
	}
	return out
}

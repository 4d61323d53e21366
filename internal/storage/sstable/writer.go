// Package sstable reads and writes immutable sorted tables: a flat stream
// of checksummed records, an offset index, an embedded split-block bloom
// filter, and a metadata footer. Block encoding and compression are
// deliberately absent; the format exists to carry the cursor and recovery
// layers.
package sstable

import (
	"fmt"
	"os"

	qerrors "github.com/quarrydb/quarry/internal/errors"
	"github.com/quarrydb/quarry/internal/model"
	"github.com/quarrydb/quarry/internal/storage/bloom"
	"github.com/quarrydb/quarry/internal/util"
)

const (
	magic       = uint32(0x5152_4d31)
	trailerSize = 8 + 8 + 8 + 4

	flagTombstone = uint8(1)
)

// Writer builds a sorted table. Entries must be added in strictly
// increasing internal-key order.
type Writer struct {
	file       *os.File
	path       string
	offset     int64
	offsets    []int64
	digest     util.Digest
	hashes     []bloom.Hash
	bitsPerKey int

	firstKey   []byte
	lastKey    []byte
	prevKey    model.InternalKey
	smallestTS uint64
	biggestTS  uint64
	count      uint64
	finished   bool
}

// NewWriter creates a table file at path.
func NewWriter(path string, bitsPerKey int) (*Writer, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, qerrors.IO("failed to create table file", err).WithDetail("path", path)
	}
	return &Writer{
		file:       file,
		path:       path,
		bitsPerKey: bitsPerKey,
		smallestTS: model.MaxTimestamp,
	}, nil
}

// Add appends an entry. The bloom hash is computed now and applied when the
// filter is sized at Finish, so hashing is paid once per entry.
func (w *Writer) Add(e model.Entry) error {
	if w.finished {
		return qerrors.LogicError("add to finished table writer")
	}
	if w.count > 0 && model.Compare(e.Key, w.prevKey) <= 0 {
		return qerrors.InvalidArgument(
			fmt.Sprintf("entry %q@%d out of order", e.Key.UserKey, e.Key.Timestamp), nil).
			WithDetail("path", w.path)
	}

	body := make([]byte, 0, 4+len(e.Key.UserKey)+8+1+4+len(e.Value))
	body = util.PutUint32(body, uint32(len(e.Key.UserKey)))
	body = append(body, e.Key.UserKey...)
	body = util.PutUint64(body, e.Key.Timestamp)
	var flags uint8
	if e.Tombstone {
		flags = flagTombstone
	}
	body = append(body, flags)
	body = util.PutUint32(body, uint32(len(e.Value)))
	body = append(body, e.Value...)
	record := util.PutUint32(body, util.Checksum(body))

	if _, err := w.file.Write(record); err != nil {
		return qerrors.IO("failed to write record", err).WithDetail("path", w.path)
	}
	w.digest.Write(record)
	w.offsets = append(w.offsets, w.offset)
	w.offset += int64(len(record))

	w.hashes = append(w.hashes, bloom.Sum(e.Key.UserKey))
	if w.count == 0 {
		w.firstKey = append([]byte(nil), e.Key.UserKey...)
	}
	w.lastKey = append(w.lastKey[:0], e.Key.UserKey...)
	w.prevKey = model.InternalKey{
		UserKey:   append([]byte(nil), e.Key.UserKey...),
		Timestamp: e.Key.Timestamp,
	}
	if e.Key.Timestamp < w.smallestTS {
		w.smallestTS = e.Key.Timestamp
	}
	if e.Key.Timestamp > w.biggestTS {
		w.biggestTS = e.Key.Timestamp
	}
	w.count++
	return nil
}

// Finish writes the index, bloom filter, metadata footer, and trailer, then
// syncs and closes the file. It returns the table's metadata.
func (w *Writer) Finish() (*model.TableMetadata, error) {
	if w.finished {
		return nil, qerrors.LogicError("finish called twice on table writer")
	}
	if w.count == 0 {
		return nil, qerrors.InvalidArgument("cannot finish an empty table", nil).
			WithDetail("path", w.path)
	}
	w.finished = true

	indexOff := w.offset
	index := make([]byte, 0, 4+len(w.offsets)*8)
	index = util.PutUint32(index, uint32(len(w.offsets)))
	for _, off := range w.offsets {
		index = util.PutUint64(index, uint64(off))
	}

	filter := bloom.New(len(w.hashes), w.bitsPerKey)
	for _, h := range w.hashes {
		filter.AddHash(h)
	}
	bloomBytes := filter.Marshal()
	bloomOff := indexOff + int64(len(index))

	digest := w.digest.String()
	metaOff := bloomOff + int64(len(bloomBytes))
	meta := make([]byte, 0, 32+len(w.firstKey)+len(w.lastKey))
	meta = util.PutUint32(meta, uint32(len(w.firstKey)))
	meta = append(meta, w.firstKey...)
	meta = util.PutUint32(meta, uint32(len(w.lastKey)))
	meta = append(meta, w.lastKey...)
	meta = util.PutUint64(meta, w.smallestTS)
	meta = util.PutUint64(meta, w.biggestTS)
	meta = util.PutUint64(meta, w.count)
	meta = util.PutUint32(meta, w.digest.Sum())

	trailer := make([]byte, 0, trailerSize)
	trailer = util.PutUint64(trailer, uint64(indexOff))
	trailer = util.PutUint64(trailer, uint64(bloomOff))
	trailer = util.PutUint64(trailer, uint64(metaOff))
	trailer = util.PutUint32(trailer, magic)

	for _, section := range [][]byte{index, bloomBytes, meta, trailer} {
		if _, err := w.file.Write(section); err != nil {
			return nil, qerrors.IO("failed to write table footer", err).WithDetail("path", w.path)
		}
	}
	if err := w.file.Sync(); err != nil {
		return nil, qerrors.IO("failed to sync table file", err).WithDetail("path", w.path)
	}
	size := metaOff + int64(len(meta)) + trailerSize
	if err := w.file.Close(); err != nil {
		return nil, qerrors.IO("failed to close table file", err).WithDetail("path", w.path)
	}

	return &model.TableMetadata{
		FirstKey:          w.firstKey,
		LastKey:           append([]byte(nil), w.lastKey...),
		SmallestTimestamp: w.smallestTS,
		BiggestTimestamp:  w.biggestTS,
		Digest:            digest,
		Size:              size,
		FilePath:          w.path,
	}, nil
}

// Abort discards a partially written table.
func (w *Writer) Abort() error {
	w.finished = true
	if err := w.file.Close(); err != nil {
		return qerrors.IO("failed to close aborted table file", err).WithDetail("path", w.path)
	}
	if err := os.Remove(w.path); err != nil {
		return qerrors.IO("failed to remove aborted table file", err).WithDetail("path", w.path)
	}
	return nil
}

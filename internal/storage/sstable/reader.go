package sstable

import (
	"encoding/binary"
	"fmt"
	"sort"

	qerrors "github.com/quarrydb/quarry/internal/errors"
	"github.com/quarrydb/quarry/internal/model"
	"github.com/quarrydb/quarry/internal/storage/bloom"
	"github.com/quarrydb/quarry/internal/storage/filemanager"
	"github.com/quarrydb/quarry/internal/util"
)

// Reader provides random access to a finished table through a managed file
// handle. The offset index and bloom filter are held in memory; records are
// read on demand, so one reader can back many cursors.
type Reader struct {
	handle  *filemanager.Handle
	offsets []int64
	dataEnd int64
	filter  *bloom.Filter
	meta    *model.TableMetadata
}

// OpenReader parses the table footer behind handle. The handle stays owned
// by the caller; releasing it invalidates the reader.
func OpenReader(handle *filemanager.Handle) (*Reader, error) {
	size, err := handle.Size()
	if err != nil {
		return nil, err
	}
	if size < trailerSize {
		return nil, qerrors.CorruptedData(
			fmt.Sprintf("table file too small: %d bytes", size), nil).
			WithDetail("path", handle.Path())
	}

	trailer := make([]byte, trailerSize)
	if _, err := handle.ReadAt(trailer, size-trailerSize); err != nil {
		return nil, qerrors.IO("failed to read table trailer", err).WithDetail("path", handle.Path())
	}
	if got := binary.LittleEndian.Uint32(trailer[24:]); got != magic {
		return nil, qerrors.CorruptedData(
			fmt.Sprintf("bad table magic %#x", got), nil).
			WithDetail("path", handle.Path())
	}
	indexOff := int64(binary.LittleEndian.Uint64(trailer[0:]))
	bloomOff := int64(binary.LittleEndian.Uint64(trailer[8:]))
	metaOff := int64(binary.LittleEndian.Uint64(trailer[16:]))
	if indexOff < 0 || bloomOff < indexOff || metaOff < bloomOff || metaOff > size-trailerSize {
		return nil, qerrors.CorruptedData("table trailer offsets out of range", nil).
			WithDetail("path", handle.Path())
	}

	footer := make([]byte, size-trailerSize-indexOff)
	if _, err := handle.ReadAt(footer, indexOff); err != nil {
		return nil, qerrors.IO("failed to read table footer", err).WithDetail("path", handle.Path())
	}
	index := footer[:bloomOff-indexOff]
	bloomBytes := footer[bloomOff-indexOff : metaOff-indexOff]
	meta := footer[metaOff-indexOff:]

	r := &Reader{handle: handle, dataEnd: indexOff}
	if err := r.parseIndex(index); err != nil {
		return nil, err
	}
	filter, err := bloom.Unmarshal(bloomBytes)
	if err != nil {
		return nil, qerrors.CorruptedData("failed to parse bloom filter", err).
			WithDetail("path", handle.Path())
	}
	r.filter = filter
	if err := r.parseMeta(meta, size); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Reader) parseIndex(index []byte) error {
	if len(index) < 4 {
		return qerrors.CorruptedData("table index truncated", nil).WithDetail("path", r.handle.Path())
	}
	count := binary.LittleEndian.Uint32(index)
	if len(index) != 4+int(count)*8 {
		return qerrors.CorruptedData("table index size mismatch", nil).WithDetail("path", r.handle.Path())
	}
	r.offsets = make([]int64, count)
	prev := int64(-1)
	for i := range r.offsets {
		off := int64(binary.LittleEndian.Uint64(index[4+i*8:]))
		if off <= prev || off >= r.dataEnd {
			return qerrors.CorruptedData("table index offsets not ascending", nil).
				WithDetail("path", r.handle.Path())
		}
		r.offsets[i] = off
		prev = off
	}
	return nil
}

func (r *Reader) parseMeta(meta []byte, size int64) error {
	corrupt := func() error {
		return qerrors.CorruptedData("table metadata truncated", nil).WithDetail("path", r.handle.Path())
	}
	if len(meta) < 4 {
		return corrupt()
	}
	fkLen := binary.LittleEndian.Uint32(meta)
	meta = meta[4:]
	if len(meta) < int(fkLen)+4 {
		return corrupt()
	}
	firstKey := append([]byte(nil), meta[:fkLen]...)
	meta = meta[fkLen:]
	lkLen := binary.LittleEndian.Uint32(meta)
	meta = meta[4:]
	if len(meta) != int(lkLen)+8+8+8+4 {
		return corrupt()
	}
	lastKey := append([]byte(nil), meta[:lkLen]...)
	meta = meta[lkLen:]

	r.meta = &model.TableMetadata{
		FirstKey:          firstKey,
		LastKey:           lastKey,
		SmallestTimestamp: binary.LittleEndian.Uint64(meta[0:]),
		BiggestTimestamp:  binary.LittleEndian.Uint64(meta[8:]),
		Digest:            fmt.Sprintf("%08x", binary.LittleEndian.Uint32(meta[24:])),
		Size:              size,
		FilePath:          r.handle.Path(),
	}
	if uint64(len(r.offsets)) != binary.LittleEndian.Uint64(meta[16:]) {
		return qerrors.CorruptedData("table entry count disagrees with index", nil).
			WithDetail("path", r.handle.Path())
	}
	return r.meta.Validate()
}

// Metadata returns the table's metadata.
func (r *Reader) Metadata() *model.TableMetadata {
	return r.meta
}

// NumEntries returns the number of records in the table.
func (r *Reader) NumEntries() int {
	return len(r.offsets)
}

// MayContain consults the embedded bloom filter for a user key. False means
// the key is definitely not in this table.
func (r *Reader) MayContain(userKey []byte) bool {
	return r.filter.MayContain(userKey)
}

// MayContainHash is the deferred-hash form of MayContain.
func (r *Reader) MayContainHash(h bloom.Hash) bool {
	return r.filter.MayContainHash(h)
}

// readEntry reads and verifies the record at index i.
func (r *Reader) readEntry(i int) (*model.Entry, error) {
	off := r.offsets[i]
	end := r.dataEnd
	if i+1 < len(r.offsets) {
		end = r.offsets[i+1]
	}
	record := make([]byte, end-off)
	if _, err := r.handle.ReadAt(record, off); err != nil {
		return nil, qerrors.IO("failed to read record", err).
			WithDetail("path", r.handle.Path()).
			WithDetail("record", i)
	}
	if len(record) < 4+8+1+4+4 {
		return nil, qerrors.CorruptedData("record truncated", nil).
			WithDetail("path", r.handle.Path()).
			WithDetail("record", i)
	}
	body := record[:len(record)-4]
	want := binary.LittleEndian.Uint32(record[len(record)-4:])
	if got := util.Checksum(body); got != want {
		return nil, qerrors.ChecksumFailed(want, got).
			WithDetail("path", r.handle.Path()).
			WithDetail("record", i)
	}

	keyLen := binary.LittleEndian.Uint32(body)
	body = body[4:]
	if len(body) < int(keyLen)+8+1+4 {
		return nil, qerrors.CorruptedData("record key overruns body", nil).
			WithDetail("path", r.handle.Path()).
			WithDetail("record", i)
	}
	key := append([]byte(nil), body[:keyLen]...)
	body = body[keyLen:]
	ts := binary.LittleEndian.Uint64(body)
	flags := body[8]
	valLen := binary.LittleEndian.Uint32(body[9:])
	body = body[13:]
	if len(body) != int(valLen) {
		return nil, qerrors.CorruptedData("record value length mismatch", nil).
			WithDetail("path", r.handle.Path()).
			WithDetail("record", i)
	}

	e := &model.Entry{
		Key:       model.InternalKey{UserKey: key, Timestamp: ts},
		Tombstone: flags&flagTombstone != 0,
	}
	if !e.Tombstone || valLen > 0 {
		e.Value = append([]byte(nil), body...)
	}
	return e, nil
}

// TableCursor walks the record index bidirectionally. It caches the
// current entry and follows the same on-entry/in-gap position protocol as
// the rest of the cursor layer.
type TableCursor struct {
	r   *Reader
	on  bool
	idx int
	gap int
	cur *model.Entry
}

// NewCursor returns a cursor over the table's entries.
func (r *Reader) NewCursor() *TableCursor {
	return &TableCursor{r: r}
}

func (c *TableCursor) SeekToFirst() error {
	c.on = false
	c.cur = nil
	c.gap = 0
	return nil
}

func (c *TableCursor) SeekToLast() error {
	c.on = false
	c.cur = nil
	c.gap = len(c.r.offsets)
	return nil
}

// Seek binary-searches the record index, reading only the probed keys.
func (c *TableCursor) Seek(key model.InternalKey) error {
	c.on = false
	c.cur = nil
	var searchErr error
	c.gap = sort.Search(len(c.r.offsets), func(i int) bool {
		if searchErr != nil {
			return false
		}
		e, err := c.r.readEntry(i)
		if err != nil {
			searchErr = err
			return false
		}
		return model.Compare(e.Key, key) >= 0
	})
	return searchErr
}

func (c *TableCursor) Next() error {
	target := -1
	if c.on {
		if c.idx+1 < len(c.r.offsets) {
			target = c.idx + 1
		} else {
			c.on = false
			c.cur = nil
			c.gap = len(c.r.offsets)
			return nil
		}
	} else if c.gap < len(c.r.offsets) {
		target = c.gap
	} else {
		return nil
	}
	return c.load(target)
}

func (c *TableCursor) Prev() error {
	target := -1
	if c.on {
		if c.idx > 0 {
			target = c.idx - 1
		} else {
			c.on = false
			c.cur = nil
			c.gap = 0
			return nil
		}
	} else if c.gap > 0 {
		target = c.gap - 1
	} else {
		return nil
	}
	return c.load(target)
}

func (c *TableCursor) load(i int) error {
	e, err := c.r.readEntry(i)
	if err != nil {
		c.on = false
		c.cur = nil
		return err
	}
	c.on = true
	c.idx = i
	c.cur = e
	return nil
}

func (c *TableCursor) Key() *model.InternalKey {
	if !c.on {
		return nil
	}
	return &c.cur.Key
}

func (c *TableCursor) Entry() *model.Entry {
	if !c.on {
		return nil
	}
	return c.cur
}

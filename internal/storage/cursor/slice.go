package cursor

import (
	"sort"

	"github.com/quarrydb/quarry/internal/model"
)

// SliceCursor iterates over a sorted in-memory entry slice. It backs
// memtable-style sources and tests, and never fails.
//
// The position is either on an entry or in the gap before one; seeks land in
// a gap so that the adjacent Next and Prev both behave per the Cursor
// contract.
type SliceCursor struct {
	entries []model.Entry
	on      bool
	idx     int
	gap     int
}

// NewSliceCursor wraps entries, which must already be in internal-key order.
func NewSliceCursor(entries []model.Entry) *SliceCursor {
	return &SliceCursor{entries: entries, gap: 0}
}

// SortEntries orders entries by internal key, for callers assembling inputs.
func SortEntries(entries []model.Entry) {
	sort.Slice(entries, func(i, j int) bool {
		return model.Compare(entries[i].Key, entries[j].Key) < 0
	})
}

func (c *SliceCursor) SeekToFirst() error {
	c.on = false
	c.gap = 0
	return nil
}

func (c *SliceCursor) SeekToLast() error {
	c.on = false
	c.gap = len(c.entries)
	return nil
}

func (c *SliceCursor) Seek(key model.InternalKey) error {
	c.on = false
	c.gap = sort.Search(len(c.entries), func(i int) bool {
		return model.Compare(c.entries[i].Key, key) >= 0
	})
	return nil
}

func (c *SliceCursor) Next() error {
	if c.on {
		if c.idx+1 < len(c.entries) {
			c.idx++
		} else {
			c.on = false
			c.gap = len(c.entries)
		}
		return nil
	}
	if c.gap < len(c.entries) {
		c.on = true
		c.idx = c.gap
	}
	return nil
}

func (c *SliceCursor) Prev() error {
	if c.on {
		if c.idx > 0 {
			c.idx--
		} else {
			c.on = false
			c.gap = 0
		}
		return nil
	}
	if c.gap > 0 {
		c.on = true
		c.idx = c.gap - 1
	}
	return nil
}

func (c *SliceCursor) Key() *model.InternalKey {
	if e := c.Entry(); e != nil {
		return &e.Key
	}
	return nil
}

func (c *SliceCursor) Entry() *model.Entry {
	if !c.on {
		return nil
	}
	return &c.entries[c.idx]
}

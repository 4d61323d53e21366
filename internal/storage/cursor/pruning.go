package cursor

import (
	"bytes"

	"github.com/quarrydb/quarry/internal/model"
)

// PruningCursor exposes exactly one entry per user key: the newest version
// at or below a fixed visibility timestamp. Keys whose newest visible
// version is a tombstone are suppressed entirely.
type PruningCursor struct {
	inner   Cursor
	visible uint64
	// skipKey is the user key most recently emitted or rejected; repeated
	// versions of it are skipped without re-deciding.
	skipKey []byte
	valid   bool
}

// NewPruningCursor wraps inner with a visibility ceiling. Entries with a
// timestamp above visible do not exist for this cursor.
func NewPruningCursor(inner Cursor, visible uint64) *PruningCursor {
	return &PruningCursor{inner: inner, visible: visible}
}

func (c *PruningCursor) SeekToFirst() error {
	c.reset()
	return c.inner.SeekToFirst()
}

func (c *PruningCursor) SeekToLast() error {
	c.reset()
	return c.inner.SeekToLast()
}

func (c *PruningCursor) Seek(key model.InternalKey) error {
	c.reset()
	return c.inner.Seek(key)
}

func (c *PruningCursor) reset() {
	c.skipKey = nil
	c.valid = false
}

func (c *PruningCursor) setSkip(userKey []byte) {
	c.skipKey = append(c.skipKey[:0], userKey...)
	if c.skipKey == nil {
		c.skipKey = []byte{}
	}
}

// Next advances to the next visible user key. The underlying order puts the
// newest version of a key first, so the first version at or below the
// ceiling that is not skipped is that key's winner.
func (c *PruningCursor) Next() error {
	c.valid = false
	for {
		if err := c.inner.Next(); err != nil {
			return err
		}
		e := c.inner.Entry()
		if e == nil {
			c.skipKey = nil
			return nil
		}
		if c.skipKey != nil && bytes.Equal(e.Key.UserKey, c.skipKey) {
			continue
		}
		if e.Key.Timestamp > c.visible {
			// Too new to see; an older version of the same key may still
			// follow, so the key is not written off yet.
			continue
		}
		c.setSkip(e.Key.UserKey)
		if e.Tombstone {
			continue
		}
		c.valid = true
		return nil
	}
}

// Prev moves to the previous visible user key. This is not the mirror of
// Next: walking backward reaches the oldest version of a key first, so the
// cursor keeps walking back through that key while versions stay visible and
// then takes one forward step onto the newest visible version before
// deciding.
func (c *PruningCursor) Prev() error {
	c.valid = false
	for {
		if err := c.inner.Prev(); err != nil {
			return err
		}
		e := c.inner.Entry()
		if e == nil {
			c.skipKey = nil
			return nil
		}
		if c.skipKey != nil && bytes.Equal(e.Key.UserKey, c.skipKey) {
			continue
		}
		if e.Key.Timestamp > c.visible {
			// The oldest version of this key is already above the ceiling, so
			// every version is.
			c.setSkip(e.Key.UserKey)
			continue
		}
		candidate := append([]byte(nil), e.Key.UserKey...)
		for {
			if err := c.inner.Prev(); err != nil {
				return err
			}
			pe := c.inner.Entry()
			if pe == nil || !bytes.Equal(pe.Key.UserKey, candidate) || pe.Key.Timestamp > c.visible {
				// Overshot: forward correction onto the winner.
				if err := c.inner.Next(); err != nil {
					return err
				}
				break
			}
		}
		e = c.inner.Entry()
		if e == nil {
			return nil
		}
		c.setSkip(e.Key.UserKey)
		if e.Tombstone {
			continue
		}
		c.valid = true
		return nil
	}
}

func (c *PruningCursor) Key() *model.InternalKey {
	if e := c.Entry(); e != nil {
		return &e.Key
	}
	return nil
}

func (c *PruningCursor) Entry() *model.Entry {
	if !c.valid {
		return nil
	}
	return c.inner.Entry()
}

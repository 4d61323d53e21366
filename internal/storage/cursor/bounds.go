package cursor

import (
	"bytes"

	"github.com/quarrydb/quarry/internal/model"
)

// BoundKind classifies a range endpoint.
type BoundKind int

const (
	Unbounded BoundKind = iota
	Inclusive
	Exclusive
)

// Bound is one endpoint of a user-key range.
type Bound struct {
	Kind BoundKind
	Key  []byte
}

type boundsState int

const (
	beforeStart boundsState = iota
	positioned
	afterEnd
)

// BoundsCursor restricts an inner cursor to a user-key range. Crossing a
// bound clamps Key and Entry to nil after the single underlying move that
// detects the crossing; the inner cursor is never walked past that point.
type BoundsCursor struct {
	inner Cursor
	lo    Bound
	hi    Bound
	state boundsState
}

// NewBoundsCursor wraps inner with lower and upper bounds, either of which
// may be Unbounded.
func NewBoundsCursor(inner Cursor, lo, hi Bound) *BoundsCursor {
	return &BoundsCursor{inner: inner, lo: lo, hi: hi, state: beforeStart}
}

// lowerTarget is the seek position whose following Next is the first
// in-range entry. Exclusive bounds seek the successor key, so detection
// never needs more than one move.
func (c *BoundsCursor) lowerTarget() model.InternalKey {
	key := c.lo.Key
	if c.lo.Kind == Exclusive {
		key = model.SuccessorUserKey(key)
	}
	return model.InternalKey{UserKey: key, Timestamp: model.MaxTimestamp}
}

// upperTarget is the seek position whose preceding Prev is the last in-range
// entry.
func (c *BoundsCursor) upperTarget() model.InternalKey {
	key := c.hi.Key
	if c.hi.Kind == Inclusive {
		key = model.SuccessorUserKey(key)
	}
	return model.InternalKey{UserKey: key, Timestamp: model.MaxTimestamp}
}

func (c *BoundsCursor) belowLower(userKey []byte) bool {
	switch c.lo.Kind {
	case Inclusive:
		return bytes.Compare(userKey, c.lo.Key) < 0
	case Exclusive:
		return bytes.Compare(userKey, c.lo.Key) <= 0
	}
	return false
}

func (c *BoundsCursor) aboveUpper(userKey []byte) bool {
	switch c.hi.Kind {
	case Inclusive:
		return bytes.Compare(userKey, c.hi.Key) > 0
	case Exclusive:
		return bytes.Compare(userKey, c.hi.Key) >= 0
	}
	return false
}

func (c *BoundsCursor) SeekToFirst() error {
	c.state = beforeStart
	if c.lo.Kind == Unbounded {
		return c.inner.SeekToFirst()
	}
	return c.inner.Seek(c.lowerTarget())
}

func (c *BoundsCursor) SeekToLast() error {
	c.state = afterEnd
	if c.hi.Kind == Unbounded {
		return c.inner.SeekToLast()
	}
	return c.inner.Seek(c.upperTarget())
}

// Seek clamps targets outside the range to the nearer boundary state rather
// than exposing an out-of-range entry.
func (c *BoundsCursor) Seek(key model.InternalKey) error {
	if c.belowLower(key.UserKey) {
		return c.SeekToFirst()
	}
	if c.aboveUpper(key.UserKey) {
		return c.SeekToLast()
	}
	c.state = positioned
	return c.inner.Seek(key)
}

func (c *BoundsCursor) Next() error {
	if c.state == afterEnd {
		return nil
	}
	for {
		if err := c.inner.Next(); err != nil {
			return err
		}
		e := c.inner.Entry()
		if e == nil {
			c.state = afterEnd
			return nil
		}
		if c.belowLower(e.Key.UserKey) {
			// Only reachable when resuming after a crossing left the inner
			// cursor just below the lower bound.
			continue
		}
		if c.aboveUpper(e.Key.UserKey) {
			c.state = afterEnd
			return nil
		}
		c.state = positioned
		return nil
	}
}

func (c *BoundsCursor) Prev() error {
	if c.state == beforeStart {
		return nil
	}
	for {
		if err := c.inner.Prev(); err != nil {
			return err
		}
		e := c.inner.Entry()
		if e == nil {
			c.state = beforeStart
			return nil
		}
		if c.aboveUpper(e.Key.UserKey) {
			continue
		}
		if c.belowLower(e.Key.UserKey) {
			c.state = beforeStart
			return nil
		}
		c.state = positioned
		return nil
	}
}

func (c *BoundsCursor) Key() *model.InternalKey {
	if e := c.Entry(); e != nil {
		return &e.Key
	}
	return nil
}

func (c *BoundsCursor) Entry() *model.Entry {
	if c.state != positioned {
		return nil
	}
	return c.inner.Entry()
}

package cursor

import (
	"github.com/quarrydb/quarry/internal/model"
)

// mergeOrder is the heap comparator direction. In either direction an
// exhausted child sorts after every positioned one, so spent cursors sink to
// the end of the heap.
type mergeOrder int

const (
	orderForward mergeOrder = iota
	orderReverse
)

func (o mergeOrder) less(a, b Cursor) bool {
	ae, be := a.Entry(), b.Entry()
	if ae == nil {
		return false
	}
	if be == nil {
		return true
	}
	c := model.Compare(ae.Key, be.Key)
	if o == orderForward {
		return c < 0
	}
	return c > 0
}

type mergeState int

const (
	msStart mergeState = iota // before the first entry, unvisited
	msEnd                     // after the last entry, unvisited
	msSeek                    // sought, unvisited
	msOn                      // mid-stream; the heap root is current
)

// MergingCursor composes child cursors into one sorted view. The heap root
// is always the least (or, in reverse, greatest) positioned child; advancing
// moves only the root child and percolates it down. A full child re-seek and
// heap rebuild happens only when the scan direction changes. Ties between
// equal keys across children resolve by heap structure, so callers must not
// depend on child precedence.
type MergingCursor struct {
	children []Cursor
	heap     []Cursor
	order    mergeOrder
	state    mergeState
	seekKey  model.InternalKey
}

// NewMergingCursor merges children, each of which must be individually
// ordered.
func NewMergingCursor(children []Cursor) *MergingCursor {
	return &MergingCursor{
		children: children,
		heap:     make([]Cursor, len(children)),
		state:    msStart,
	}
}

func (c *MergingCursor) SeekToFirst() error {
	if err := c.primeForward(nil); err != nil {
		return err
	}
	c.state = msStart
	return nil
}

func (c *MergingCursor) SeekToLast() error {
	if err := c.primeReverse(nil); err != nil {
		return err
	}
	c.state = msEnd
	return nil
}

func (c *MergingCursor) Seek(key model.InternalKey) error {
	target := model.InternalKey{
		UserKey:   append([]byte(nil), key.UserKey...),
		Timestamp: key.Timestamp,
	}
	if err := c.primeForward(&target); err != nil {
		return err
	}
	c.seekKey = target
	c.state = msSeek
	return nil
}

// primeForward positions every child on its first entry at or past target
// (or its first entry overall) and builds the forward heap.
func (c *MergingCursor) primeForward(target *model.InternalKey) error {
	for _, child := range c.children {
		if target == nil {
			if err := child.SeekToFirst(); err != nil {
				return err
			}
		} else {
			if err := child.Seek(*target); err != nil {
				return err
			}
		}
		if err := child.Next(); err != nil {
			return err
		}
	}
	c.order = orderForward
	c.buildHeap()
	return nil
}

// primeReverse positions every child on its last entry strictly before
// target (or its last entry overall) and builds the reverse heap.
func (c *MergingCursor) primeReverse(target *model.InternalKey) error {
	for _, child := range c.children {
		if target == nil {
			if err := child.SeekToLast(); err != nil {
				return err
			}
		} else {
			if err := child.Seek(*target); err != nil {
				return err
			}
		}
		if err := child.Prev(); err != nil {
			return err
		}
	}
	c.order = orderReverse
	c.buildHeap()
	return nil
}

func (c *MergingCursor) Next() error {
	switch c.state {
	case msEnd:
		// After the last entry; there is nothing further forward.
		return nil
	case msStart, msSeek:
		// Children were primed forward at seek time; the root is the first
		// entry to return.
		c.state = msOn
		return nil
	}

	if len(c.heap) == 0 {
		return nil
	}
	if c.order == orderReverse {
		return c.switchForward()
	}
	root := c.heap[0]
	if root.Entry() == nil {
		return nil
	}
	if err := root.Next(); err != nil {
		return err
	}
	c.siftDown(0)
	return nil
}

func (c *MergingCursor) Prev() error {
	switch c.state {
	case msStart:
		return nil
	case msEnd:
		c.state = msOn
		return nil
	case msSeek:
		// Sought forward but walking backward: reposition strictly before
		// the seek target.
		target := c.seekKey
		if err := c.primeReverse(&target); err != nil {
			return err
		}
		c.state = msOn
		return nil
	}

	if len(c.heap) == 0 {
		return nil
	}
	if c.order == orderForward {
		return c.switchReverse()
	}
	root := c.heap[0]
	if root.Entry() == nil {
		return nil
	}
	if err := root.Prev(); err != nil {
		return err
	}
	c.siftDown(0)
	return nil
}

// switchForward re-seeks every child symmetrically past the current key and
// rebuilds the heap, turning a reverse scan forward.
func (c *MergingCursor) switchForward() error {
	cur := c.heap[0].Entry()
	if cur == nil {
		// Reverse-exhausted means before the first entry; forward resumes at
		// the start.
		if err := c.primeForward(nil); err != nil {
			return err
		}
		c.state = msOn
		return nil
	}
	pivot := model.InternalKey{
		UserKey:   append([]byte(nil), cur.Key.UserKey...),
		Timestamp: cur.Key.Timestamp,
	}
	if err := c.primeForward(&pivot); err != nil {
		return err
	}
	// Entries equal to the pivot were already returned; consume them.
	for _, child := range c.children {
		for {
			e := child.Entry()
			if e == nil || model.Compare(e.Key, pivot) > 0 {
				break
			}
			if err := child.Next(); err != nil {
				return err
			}
		}
	}
	c.buildHeap()
	c.state = msOn
	return nil
}

// switchReverse mirrors switchForward. Seeking to the pivot leaves each
// child's gap before any entry equal to it, so one Prev per child is already
// strictly before the pivot.
func (c *MergingCursor) switchReverse() error {
	cur := c.heap[0].Entry()
	if cur == nil {
		if err := c.primeReverse(nil); err != nil {
			return err
		}
		c.state = msOn
		return nil
	}
	pivot := model.InternalKey{
		UserKey:   append([]byte(nil), cur.Key.UserKey...),
		Timestamp: cur.Key.Timestamp,
	}
	if err := c.primeReverse(&pivot); err != nil {
		return err
	}
	c.state = msOn
	return nil
}

func (c *MergingCursor) Key() *model.InternalKey {
	if e := c.Entry(); e != nil {
		return &e.Key
	}
	return nil
}

func (c *MergingCursor) Entry() *model.Entry {
	if c.state != msOn || len(c.heap) == 0 {
		return nil
	}
	return c.heap[0].Entry()
}

// buildHeap re-heapifies all children, used on priming and direction change.
func (c *MergingCursor) buildHeap() {
	copy(c.heap, c.children)
	for i := len(c.heap)/2 - 1; i >= 0; i-- {
		c.siftDown(i)
	}
}

// siftDown restores the heap property below i after the root advanced.
func (c *MergingCursor) siftDown(i int) {
	n := len(c.heap)
	for {
		left, right := 2*i+1, 2*i+2
		least := i
		if left < n && c.order.less(c.heap[left], c.heap[least]) {
			least = left
		}
		if right < n && c.order.less(c.heap[right], c.heap[least]) {
			least = right
		}
		if least == i {
			return
		}
		c.heap[i], c.heap[least] = c.heap[least], c.heap[i]
		i = least
	}
}

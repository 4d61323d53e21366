// Package cursor implements the iteration protocol over ordered key-value
// entries: a bidirectional, re-seekable cursor interface, an in-memory
// implementation, and three composable decorators (pruning, bounds,
// merging).
package cursor

import "github.com/quarrydb/quarry/internal/model"

// Cursor is a stateful, bidirectional, re-seekable iterator over ordered
// entries. Seek operations leave the cursor in an unvisited state between
// entries: after SeekToFirst the cursor sits before the first entry until
// the first Next, after SeekToLast it sits after the last entry until the
// first Prev, and after Seek(key) the next Next lands on the first entry at
// or past key while the next Prev lands on the last entry before it.
//
// Key and Entry return nil whenever the cursor is unpositioned. If any
// operation returns an error the position is undefined and the cursor must
// be re-seeked before reuse. Cursors are single-threaded objects; sharing
// one instance across goroutines is a contract violation, not a guarded
// condition.
type Cursor interface {
	SeekToFirst() error
	SeekToLast() error
	Seek(key model.InternalKey) error
	Next() error
	Prev() error

	// Key returns the current entry's key, or nil when unpositioned.
	Key() *model.InternalKey
	// Entry returns the current entry, or nil when unpositioned.
	Entry() *model.Entry
}

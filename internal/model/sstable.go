package model

import (
	"bytes"
	"fmt"

	"github.com/google/btree"
)

// TableMetadata describes one immutable sorted table. It is everything the
// recovery pass knows about a table: key range, timestamp range, a
// content-addressed digest, and the file size.
type TableMetadata struct {
	FirstKey          []byte
	LastKey           []byte
	SmallestTimestamp uint64
	BiggestTimestamp  uint64
	Digest            string
	Size              int64
	FilePath          string
}

// Validate rejects corrupt metadata before it reaches graph construction.
func (t *TableMetadata) Validate() error {
	if t.SmallestTimestamp > t.BiggestTimestamp {
		return fmt.Errorf("table %s: smallest timestamp %d exceeds biggest %d",
			t.Digest, t.SmallestTimestamp, t.BiggestTimestamp)
	}
	if bytes.Compare(t.FirstKey, t.LastKey) > 0 {
		return fmt.Errorf("table %s: first key sorts after last key", t.Digest)
	}
	return nil
}

// OverlapsKeys reports whether the key ranges of two tables intersect.
func (t *TableMetadata) OverlapsKeys(o *TableMetadata) bool {
	return bytes.Compare(t.FirstKey, o.LastKey) <= 0 &&
		bytes.Compare(o.FirstKey, t.LastKey) <= 0
}

// OverlapsTimestamps reports whether the timestamp ranges of two tables
// intersect.
func (t *TableMetadata) OverlapsTimestamps(o *TableMetadata) bool {
	return t.SmallestTimestamp <= o.BiggestTimestamp &&
		o.SmallestTimestamp <= t.BiggestTimestamp
}

// keyOrder sorts tables by (first key, smallest timestamp), the order used
// for levels one and above.
func keyOrder(a, b *TableMetadata) bool {
	if c := bytes.Compare(a.FirstKey, b.FirstKey); c != 0 {
		return c < 0
	}
	if a.SmallestTimestamp != b.SmallestTimestamp {
		return a.SmallestTimestamp < b.SmallestTimestamp
	}
	return a.Digest < b.Digest
}

// recencyOrder sorts tables by smallest timestamp, the insertion-recency
// order used for level zero.
func recencyOrder(a, b *TableMetadata) bool {
	if a.SmallestTimestamp != b.SmallestTimestamp {
		return a.SmallestTimestamp < b.SmallestTimestamp
	}
	return a.Digest < b.Digest
}

// Level holds the tables assigned to one tier of the tree. Level zero is
// recency-ordered; higher levels are key-ordered and assumed mutually
// disjoint, which is not re-verified after recovery.
type Level struct {
	Number int
	tree   *btree.BTreeG[*TableMetadata]
}

// NewLevel returns an empty level.
func NewLevel(number int) *Level {
	less := keyOrder
	if number == 0 {
		less = recencyOrder
	}
	return &Level{Number: number, tree: btree.NewG(8, less)}
}

// Add inserts a table into the level.
func (l *Level) Add(t *TableMetadata) {
	l.tree.ReplaceOrInsert(t)
}

// Len returns the number of tables in the level.
func (l *Level) Len() int {
	return l.tree.Len()
}

// Tables returns the level's tables in level order.
func (l *Level) Tables() []*TableMetadata {
	out := make([]*TableMetadata, 0, l.tree.Len())
	l.tree.Ascend(func(t *TableMetadata) bool {
		out = append(out, t)
		return true
	})
	return out
}

// Overlapping returns the tables whose key range intersects [first, last].
func (l *Level) Overlapping(first, last []byte) []*TableMetadata {
	var out []*TableMetadata
	l.tree.Ascend(func(t *TableMetadata) bool {
		if bytes.Compare(t.FirstKey, last) > 0 && l.Number > 0 {
			return false
		}
		if bytes.Compare(t.FirstKey, last) <= 0 && bytes.Compare(first, t.LastKey) <= 0 {
			out = append(out, t)
		}
		return true
	})
	return out
}

// Version is an immutable snapshot of all live tables partitioned into
// levels. Recovery rebuilds it wholesale at startup; compaction replaces it
// atomically at a layer above this one.
type Version struct {
	Levels []*Level
}

// NewVersion returns a version with numLevels empty levels.
func NewVersion(numLevels int) *Version {
	v := &Version{Levels: make([]*Level, numLevels)}
	for i := range v.Levels {
		v.Levels[i] = NewLevel(i)
	}
	return v
}

// NumTables returns the total table count across all levels.
func (v *Version) NumTables() int {
	n := 0
	for _, l := range v.Levels {
		n += l.Len()
	}
	return n
}

// Overlapping returns every table in the version whose key range intersects
// [first, last], level zero first.
func (v *Version) Overlapping(first, last []byte) []*TableMetadata {
	var out []*TableMetadata
	for _, l := range v.Levels {
		out = append(out, l.Overlapping(first, last)...)
	}
	return out
}

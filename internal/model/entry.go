package model

import "bytes"

// MaxTimestamp is the highest representable write timestamp. Seeking with it
// positions before every version of a user key, because versions of one key
// sort newest-first.
const MaxTimestamp = ^uint64(0)

// InternalKey identifies one version of one user key.
type InternalKey struct {
	UserKey   []byte
	Timestamp uint64
}

// Compare orders internal keys: user key bytes ascending, timestamp
// descending on equal bytes. A forward scan therefore sees the newest
// version of a key first.
func Compare(a, b InternalKey) int {
	if c := bytes.Compare(a.UserKey, b.UserKey); c != 0 {
		return c
	}
	switch {
	case a.Timestamp > b.Timestamp:
		return -1
	case a.Timestamp < b.Timestamp:
		return 1
	}
	return 0
}

// Equal reports whether two internal keys are identical.
func Equal(a, b InternalKey) bool {
	return a.Timestamp == b.Timestamp && bytes.Equal(a.UserKey, b.UserKey)
}

// SuccessorUserKey returns the smallest user key strictly greater than k in
// lexicographic order.
func SuccessorUserKey(k []byte) []byte {
	s := make([]byte, len(k)+1)
	copy(s, k)
	return s
}

// Entry is an immutable key-value record. A tombstone marks the key deleted
// as of its timestamp and is stored and iterated like any other entry until
// compaction drops it. A logical update is always a new entry with a newer
// timestamp, never an in-place mutation.
type Entry struct {
	Key       InternalKey
	Value     []byte
	Tombstone bool
}

// Clone returns a deep copy of the entry.
func (e Entry) Clone() Entry {
	c := Entry{
		Key: InternalKey{
			UserKey:   append([]byte(nil), e.Key.UserKey...),
			Timestamp: e.Key.Timestamp,
		},
		Tombstone: e.Tombstone,
	}
	if e.Value != nil {
		c.Value = append([]byte(nil), e.Value...)
	}
	return c
}

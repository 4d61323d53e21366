package recovery_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	qerrors "github.com/quarrydb/quarry/internal/errors"
	"github.com/quarrydb/quarry/internal/model"
	"github.com/quarrydb/quarry/internal/storage/recovery"
)

func table(digest, first, last string, smallest, biggest uint64) *model.TableMetadata {
	return &model.TableMetadata{
		FirstKey:          []byte(first),
		LastKey:           []byte(last),
		SmallestTimestamp: smallest,
		BiggestTimestamp:  biggest,
		Digest:            digest,
	}
}

// levelOf returns the level a table landed in, by digest.
func levelOf(t *testing.T, v *model.Version, digest string) int {
	t.Helper()
	for _, l := range v.Levels {
		for _, tm := range l.Tables() {
			if tm.Digest == digest {
				return l.Number
			}
		}
	}
	t.Fatalf("table %s not placed in any level", digest)
	return -1
}

func recoverTables(t *testing.T, numLevels int, tables ...*model.TableMetadata) *model.Version {
	t.Helper()
	r := recovery.New(numLevels, zaptest.NewLogger(t), nil)
	v, err := r.Recover(tables)
	require.NoError(t, err)
	require.Equal(t, len(tables), v.NumTables())
	return v
}

func TestRecover_KeyOverlapDisjointTimestamps(t *testing.T) {
	// A and B overlap in keys but not timestamps: a single directed edge
	// from the earlier table puts the later one a level below it.
	v := recoverTables(t, 7,
		table("A", "a", "m", 1, 5),
		table("B", "h", "z", 6, 10),
	)
	assert.Equal(t, 0, levelOf(t, v, "A"))
	assert.Equal(t, 1, levelOf(t, v, "B"))
}

func TestRecover_CyclicOverlapSharesLevel(t *testing.T) {
	// C and D overlap in both keys and timestamps: no consistent order
	// exists, so they collapse into one component and share a level.
	v := recoverTables(t, 7,
		table("C", "a", "z", 1, 5),
		table("D", "b", "c", 3, 8),
	)
	assert.Equal(t, levelOf(t, v, "C"), levelOf(t, v, "D"))
}

func TestRecover_DisjointKeysAllLevelZero(t *testing.T) {
	v := recoverTables(t, 7,
		table("A", "a", "c", 1, 5),
		table("B", "d", "f", 3, 9),
		table("C", "g", "k", 2, 4),
	)
	for _, d := range []string{"A", "B", "C"} {
		assert.Equal(t, 0, levelOf(t, v, d))
	}
}

func TestRecover_ChainAssignsIncreasingLevels(t *testing.T) {
	v := recoverTables(t, 7,
		table("A", "a", "z", 1, 2),
		table("B", "a", "z", 3, 4),
		table("C", "a", "z", 5, 6),
		table("D", "a", "z", 7, 8),
	)
	assert.Equal(t, 0, levelOf(t, v, "A"))
	assert.Equal(t, 1, levelOf(t, v, "B"))
	assert.Equal(t, 2, levelOf(t, v, "C"))
	assert.Equal(t, 3, levelOf(t, v, "D"))
}

func TestRecover_LongestPathWins(t *testing.T) {
	// E overlaps both A (directly) and C (the end of a two-hop chain); the
	// longest path decides its level, not the shortest.
	v := recoverTables(t, 7,
		table("A", "a", "m", 1, 2),
		table("B", "a", "m", 3, 4),
		table("C", "a", "z", 5, 6),
		table("E", "n", "z", 7, 8),
	)
	assert.Equal(t, 0, levelOf(t, v, "A"))
	assert.Equal(t, 1, levelOf(t, v, "B"))
	assert.Equal(t, 2, levelOf(t, v, "C"))
	assert.Equal(t, 3, levelOf(t, v, "E"))
}

func TestRecover_CycleMergesChains(t *testing.T) {
	// B and C form a cycle; the component sits one level below A, and D one
	// below the whole component.
	v := recoverTables(t, 7,
		table("A", "a", "z", 1, 2),
		table("B", "a", "m", 3, 6),
		table("C", "h", "z", 5, 8),
		table("D", "a", "z", 9, 10),
	)
	assert.Equal(t, 0, levelOf(t, v, "A"))
	assert.Equal(t, levelOf(t, v, "B"), levelOf(t, v, "C"))
	assert.Equal(t, 1, levelOf(t, v, "B"))
	assert.Equal(t, 2, levelOf(t, v, "D"))
}

func TestRecover_NormalizationShiftsDown(t *testing.T) {
	// A five-deep chain into a three-level tree: the assignment shifts down
	// by two and clamps at zero instead of failing.
	var tables []*model.TableMetadata
	for i := 0; i < 5; i++ {
		ts := uint64(i*2 + 1)
		tables = append(tables, table(fmt.Sprintf("T%d", i), "a", "z", ts, ts+1))
	}
	v := recoverTables(t, 3, tables...)

	assert.Equal(t, 0, levelOf(t, v, "T0"))
	assert.Equal(t, 0, levelOf(t, v, "T1"))
	assert.Equal(t, 0, levelOf(t, v, "T2"))
	assert.Equal(t, 1, levelOf(t, v, "T3"))
	assert.Equal(t, 2, levelOf(t, v, "T4"))
}

func TestRecover_EdgeValidity(t *testing.T) {
	// After recovery, every key-overlap edge between timestamp-disjoint
	// tables points from a lower or equal level to a higher one.
	tables := []*model.TableMetadata{
		table("A", "a", "f", 1, 3),
		table("B", "d", "k", 4, 6),
		table("C", "j", "p", 2, 5),
		table("D", "a", "p", 7, 9),
		table("E", "q", "z", 1, 9),
		table("F", "r", "t", 10, 12),
	}
	v := recoverTables(t, 7, tables...)

	for i, a := range tables {
		for j, b := range tables {
			if i == j || !a.OverlapsKeys(b) || a.OverlapsTimestamps(b) {
				continue
			}
			if a.BiggestTimestamp < b.SmallestTimestamp {
				assert.LessOrEqual(t, levelOf(t, v, a.Digest), levelOf(t, v, b.Digest),
					"%s -> %s", a.Digest, b.Digest)
			}
		}
	}
}

func TestRecover_Deterministic(t *testing.T) {
	tables := func() []*model.TableMetadata {
		return []*model.TableMetadata{
			table("A", "a", "f", 1, 3),
			table("B", "d", "k", 4, 6),
			table("C", "b", "e", 2, 5),
			table("D", "a", "z", 7, 9),
		}
	}
	v1 := recoverTables(t, 7, tables()...)
	v2 := recoverTables(t, 7, tables()...)
	for _, d := range []string{"A", "B", "C", "D"} {
		assert.Equal(t, levelOf(t, v1, d), levelOf(t, v2, d), "table %s", d)
	}
}

func TestRecover_RejectsCorruptMetadata(t *testing.T) {
	r := recovery.New(7, zaptest.NewLogger(t), nil)
	_, err := r.Recover([]*model.TableMetadata{
		table("OK", "a", "m", 1, 5),
		table("BAD", "a", "m", 9, 5),
	})
	require.Error(t, err)
	assert.Equal(t, qerrors.ErrCodeCorruptedData, qerrors.GetCode(err))
}

func TestRecover_Empty(t *testing.T) {
	v := recoverTables(t, 7)
	assert.Equal(t, 0, v.NumTables())
	assert.Len(t, v.Levels, 7)
}

func TestRecover_SingleTable(t *testing.T) {
	v := recoverTables(t, 7, table("A", "a", "z", 1, 100))
	assert.Equal(t, 0, levelOf(t, v, "A"))
}

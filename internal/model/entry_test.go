package model_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quarrydb/quarry/internal/model"
)

func TestCompare_Ordering(t *testing.T) {
	tests := []struct {
		name string
		a    model.InternalKey
		b    model.InternalKey
		want int
	}{
		{
			name: "distinct user keys order by bytes",
			a:    model.InternalKey{UserKey: []byte("alpha"), Timestamp: 1},
			b:    model.InternalKey{UserKey: []byte("beta"), Timestamp: 99},
			want: -1,
		},
		{
			name: "equal bytes order newest first",
			a:    model.InternalKey{UserKey: []byte("k"), Timestamp: 10},
			b:    model.InternalKey{UserKey: []byte("k"), Timestamp: 5},
			want: -1,
		},
		{
			name: "older version sorts after",
			a:    model.InternalKey{UserKey: []byte("k"), Timestamp: 5},
			b:    model.InternalKey{UserKey: []byte("k"), Timestamp: 10},
			want: 1,
		},
		{
			name: "identical keys compare equal",
			a:    model.InternalKey{UserKey: []byte("k"), Timestamp: 5},
			b:    model.InternalKey{UserKey: []byte("k"), Timestamp: 5},
			want: 0,
		},
		{
			name: "prefix sorts before extension",
			a:    model.InternalKey{UserKey: []byte("k"), Timestamp: 0},
			b:    model.InternalKey{UserKey: []byte("k\x00"), Timestamp: model.MaxTimestamp},
			want: -1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, model.Compare(tt.a, tt.b))
			assert.Equal(t, -tt.want, model.Compare(tt.b, tt.a))
		})
	}
}

func TestCompare_TotalOrder(t *testing.T) {
	keys := []model.InternalKey{
		{UserKey: []byte("a"), Timestamp: 3},
		{UserKey: []byte("a"), Timestamp: 1},
		{UserKey: []byte("ab"), Timestamp: 2},
		{UserKey: []byte("b"), Timestamp: model.MaxTimestamp},
		{UserKey: []byte("b"), Timestamp: 0},
	}
	for i, a := range keys {
		for j, b := range keys {
			c := model.Compare(a, b)
			if i == j {
				assert.Zero(t, c)
				continue
			}
			assert.NotZero(t, c, "distinct keys %d and %d must not compare equal", i, j)
			assert.Equal(t, -c, model.Compare(b, a), "antisymmetry for %d and %d", i, j)
		}
	}
}

func TestSuccessorUserKey(t *testing.T) {
	s := model.SuccessorUserKey([]byte("abc"))
	assert.Equal(t, []byte("abc\x00"), s)
	assert.Equal(t, []byte{0}, model.SuccessorUserKey(nil))
}

func TestTableMetadata_Validate(t *testing.T) {
	ok := &model.TableMetadata{
		FirstKey: []byte("a"), LastKey: []byte("m"),
		SmallestTimestamp: 1, BiggestTimestamp: 5,
	}
	require.NoError(t, ok.Validate())

	corrupt := &model.TableMetadata{
		FirstKey: []byte("a"), LastKey: []byte("m"),
		SmallestTimestamp: 6, BiggestTimestamp: 5,
	}
	assert.Error(t, corrupt.Validate())

	inverted := &model.TableMetadata{
		FirstKey: []byte("z"), LastKey: []byte("a"),
		SmallestTimestamp: 1, BiggestTimestamp: 5,
	}
	assert.Error(t, inverted.Validate())
}

func TestTableMetadata_Overlaps(t *testing.T) {
	a := &model.TableMetadata{FirstKey: []byte("a"), LastKey: []byte("m"), SmallestTimestamp: 1, BiggestTimestamp: 5}
	b := &model.TableMetadata{FirstKey: []byte("h"), LastKey: []byte("z"), SmallestTimestamp: 6, BiggestTimestamp: 10}
	c := &model.TableMetadata{FirstKey: []byte("n"), LastKey: []byte("p"), SmallestTimestamp: 3, BiggestTimestamp: 8}

	assert.True(t, a.OverlapsKeys(b))
	assert.False(t, a.OverlapsKeys(c))
	assert.False(t, a.OverlapsTimestamps(b))
	assert.True(t, a.OverlapsTimestamps(c))
}

func TestLevel_Ordering(t *testing.T) {
	t1 := &model.TableMetadata{FirstKey: []byte("m"), LastKey: []byte("p"), SmallestTimestamp: 5, BiggestTimestamp: 9, Digest: "t1"}
	t2 := &model.TableMetadata{FirstKey: []byte("a"), LastKey: []byte("c"), SmallestTimestamp: 7, BiggestTimestamp: 8, Digest: "t2"}
	t3 := &model.TableMetadata{FirstKey: []byte("d"), LastKey: []byte("f"), SmallestTimestamp: 2, BiggestTimestamp: 3, Digest: "t3"}

	l0 := model.NewLevel(0)
	for _, tm := range []*model.TableMetadata{t1, t2, t3} {
		l0.Add(tm)
	}
	got := l0.Tables()
	require.Len(t, got, 3)
	// Level zero orders by smallest timestamp.
	assert.Equal(t, "t3", got[0].Digest)
	assert.Equal(t, "t1", got[1].Digest)
	assert.Equal(t, "t2", got[2].Digest)

	l1 := model.NewLevel(1)
	for _, tm := range []*model.TableMetadata{t1, t2, t3} {
		l1.Add(tm)
	}
	got = l1.Tables()
	require.Len(t, got, 3)
	// Higher levels order by first key.
	assert.Equal(t, "t2", got[0].Digest)
	assert.Equal(t, "t3", got[1].Digest)
	assert.Equal(t, "t1", got[2].Digest)
}

func TestLevel_Overlapping(t *testing.T) {
	l := model.NewLevel(1)
	l.Add(&model.TableMetadata{FirstKey: []byte("a"), LastKey: []byte("c"), Digest: "ac"})
	l.Add(&model.TableMetadata{FirstKey: []byte("d"), LastKey: []byte("f"), Digest: "df"})
	l.Add(&model.TableMetadata{FirstKey: []byte("g"), LastKey: []byte("k"), Digest: "gk"})

	got := l.Overlapping([]byte("e"), []byte("h"))
	require.Len(t, got, 2)
	assert.Equal(t, "df", got[0].Digest)
	assert.Equal(t, "gk", got[1].Digest)

	assert.Empty(t, l.Overlapping([]byte("x"), []byte("z")))
}

func TestEntry_Clone(t *testing.T) {
	e := model.Entry{
		Key:   model.InternalKey{UserKey: []byte("k"), Timestamp: 7},
		Value: []byte("v"),
	}
	c := e.Clone()
	c.Key.UserKey[0] = 'x'
	c.Value[0] = 'y'
	assert.Equal(t, []byte("k"), e.Key.UserKey)
	assert.Equal(t, []byte("v"), e.Value)
}

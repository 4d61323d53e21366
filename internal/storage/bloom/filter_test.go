package bloom_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quarrydb/quarry/internal/storage/bloom"
)

func TestFilter_NoFalseNegatives(t *testing.T) {
	f := bloom.New(1000, 10)
	for i := 0; i < 1000; i++ {
		f.Add([]byte(fmt.Sprintf("key-%04d", i)))
	}
	for i := 0; i < 1000; i++ {
		assert.True(t, f.MayContain([]byte(fmt.Sprintf("key-%04d", i))), "key-%04d", i)
	}
}

func TestFilter_FalsePositiveRate(t *testing.T) {
	f := bloom.New(1000, 10)
	for i := 0; i < 1000; i++ {
		f.Add([]byte(fmt.Sprintf("key-%04d", i)))
	}
	falsePositives := 0
	const probes = 10000
	for i := 0; i < probes; i++ {
		if f.MayContain([]byte(fmt.Sprintf("absent-%05d", i))) {
			falsePositives++
		}
	}
	// At 10 bits per key the rate should be around 1%; 5% leaves generous
	// slack without letting a broken filter pass.
	assert.Less(t, float64(falsePositives)/probes, 0.05)
}

func TestFilter_DeferredHashEquivalence(t *testing.T) {
	direct := bloom.New(100, 10)
	deferred := bloom.New(100, 10)
	var hashes []bloom.Hash
	for i := 0; i < 100; i++ {
		item := []byte(fmt.Sprintf("item-%d", i))
		direct.Add(item)
		hashes = append(hashes, bloom.Sum(item))
	}
	for _, h := range hashes {
		deferred.AddHash(h)
	}
	assert.Equal(t, direct.Marshal(), deferred.Marshal())

	for i := 0; i < 100; i++ {
		item := []byte(fmt.Sprintf("item-%d", i))
		assert.Equal(t, direct.MayContain(item), deferred.MayContainHash(bloom.Sum(item)))
	}
}

func TestFilter_MarshalRoundtrip(t *testing.T) {
	f := bloom.New(500, 10)
	for i := 0; i < 500; i++ {
		f.Add([]byte(fmt.Sprintf("rt-%d", i)))
	}
	data := f.Marshal()

	g, err := bloom.Unmarshal(data)
	require.NoError(t, err)
	assert.Equal(t, f.NumBlocks(), g.NumBlocks())
	for i := 0; i < 500; i++ {
		assert.True(t, g.MayContain([]byte(fmt.Sprintf("rt-%d", i))))
	}
	assert.Equal(t, data, g.Marshal())
}

func TestFilter_UnmarshalRejectsBadInput(t *testing.T) {
	_, err := bloom.Unmarshal(nil)
	assert.Error(t, err)

	_, err = bloom.Unmarshal([]byte{1, 2})
	assert.Error(t, err)

	data := bloom.New(10, 10).Marshal()
	_, err = bloom.Unmarshal(data[:len(data)-1])
	assert.Error(t, err)

	_, err = bloom.Unmarshal(append(data, 0))
	assert.Error(t, err)
}

func TestFilter_TinySizing(t *testing.T) {
	// Degenerate sizes still allocate at least one block and stay correct.
	f := bloom.New(0, 0)
	assert.Equal(t, 1, f.NumBlocks())
	f.Add([]byte("only"))
	assert.True(t, f.MayContain([]byte("only")))
}

func TestFilter_EmptyFilterRejectsEverything(t *testing.T) {
	f := bloom.New(100, 10)
	for i := 0; i < 100; i++ {
		assert.False(t, f.MayContain([]byte(fmt.Sprintf("probe-%d", i))))
	}
}

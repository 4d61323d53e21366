package bloom

import (
	"encoding/binary"
	"fmt"

	"github.com/cespare/xxhash/v2"
)

// Split-block bloom filter: membership state lives in 256-bit blocks of
// eight 32-bit words, so a check touches a single cache line. A 64-bit
// xxhash of the item picks the block with its high bits and derives eight
// bit positions from its low bits, one per word.

const (
	blockWords = 8
	blockBytes = blockWords * 4
)

// salts are odd multiplicative constants; each one maps the low 32 hash
// bits to a bit index within one word of the block.
var salts = [blockWords]uint32{
	0x47b6137b, 0x44974d91, 0x8824ad5b, 0xa2b7289d,
	0x705495c7, 0x2df1424b, 0x9efc4947, 0x5c6bfb31,
}

// Hash is a precomputed item hash. Computing it once and applying it to many
// filters amortizes hashing when the same item stream builds several tables.
type Hash uint64

// Sum hashes an item for deferred insertion or checking.
func Sum(item []byte) Hash {
	return Hash(xxhash.Sum64(item))
}

// Filter is a fixed-size split-block bloom filter. It has no false
// negatives; the false-positive rate is calibrated by bits per key.
type Filter struct {
	blocks []uint32 // numBlocks * blockWords words
}

// New sizes a filter for the expected number of items at the given bits per
// key.
func New(expectedItems, bitsPerKey int) *Filter {
	if expectedItems < 1 {
		expectedItems = 1
	}
	if bitsPerKey < 1 {
		bitsPerKey = 1
	}
	bits := uint64(expectedItems) * uint64(bitsPerKey)
	numBlocks := (bits + blockBytes*8 - 1) / (blockBytes * 8)
	if numBlocks == 0 {
		numBlocks = 1
	}
	return &Filter{blocks: make([]uint32, numBlocks*blockWords)}
}

// NumBlocks returns the number of 256-bit blocks.
func (f *Filter) NumBlocks() int {
	return len(f.blocks) / blockWords
}

// blockIndex scales the high hash bits onto the block range with a
// multiply-high, which avoids the bias a modulo would introduce.
func (f *Filter) blockIndex(h Hash) int {
	numBlocks := uint64(len(f.blocks) / blockWords)
	return int(((uint64(h) >> 32) * numBlocks) >> 32)
}

// Add inserts an item.
func (f *Filter) Add(item []byte) {
	f.AddHash(Sum(item))
}

// AddHash applies a precomputed hash.
func (f *Filter) AddHash(h Hash) {
	base := f.blockIndex(h) * blockWords
	lo := uint32(h)
	for i, salt := range salts {
		bit := (lo * salt) >> 27
		f.blocks[base+i] |= 1 << bit
	}
}

// MayContain reports whether the item may have been added. False means
// definitely absent.
func (f *Filter) MayContain(item []byte) bool {
	return f.MayContainHash(Sum(item))
}

// MayContainHash checks a precomputed hash.
func (f *Filter) MayContainHash(h Hash) bool {
	base := f.blockIndex(h) * blockWords
	lo := uint32(h)
	for i, salt := range salts {
		bit := (lo * salt) >> 27
		if f.blocks[base+i]&(1<<bit) == 0 {
			return false
		}
	}
	return true
}

// Marshal serializes the filter: a block count followed by the raw words.
func (f *Filter) Marshal() []byte {
	out := make([]byte, 4+len(f.blocks)*4)
	binary.LittleEndian.PutUint32(out, uint32(len(f.blocks)/blockWords))
	for i, w := range f.blocks {
		binary.LittleEndian.PutUint32(out[4+i*4:], w)
	}
	return out
}

// Unmarshal reconstructs a filter serialized by Marshal.
func Unmarshal(data []byte) (*Filter, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("bloom filter truncated: %d bytes", len(data))
	}
	numBlocks := binary.LittleEndian.Uint32(data)
	want := 4 + int(numBlocks)*blockBytes
	if len(data) != want {
		return nil, fmt.Errorf("bloom filter size mismatch: have %d bytes, want %d", len(data), want)
	}
	f := &Filter{blocks: make([]uint32, int(numBlocks)*blockWords)}
	for i := range f.blocks {
		f.blocks[i] = binary.LittleEndian.Uint32(data[4+i*4:])
	}
	return f, nil
}

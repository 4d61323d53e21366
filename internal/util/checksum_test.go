package util_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/quarrydb/quarry/internal/util"
)

func TestChecksum_KnownAnswer(t *testing.T) {
	// CRC32C check value from RFC 3720.
	assert.Equal(t, uint32(0xe3069283), util.Checksum([]byte("123456789")))
}

func TestValidateChecksum(t *testing.T) {
	data := []byte("payload")
	sum := util.Checksum(data)
	assert.True(t, util.ValidateChecksum(data, sum))
	assert.False(t, util.ValidateChecksum(data, sum+1))
	assert.False(t, util.ValidateChecksum([]byte("Payload"), sum))
}

func TestDigest_IncrementalMatchesOneShot(t *testing.T) {
	var d util.Digest
	for _, chunk := range []string{"abc", "", "defg", "h"} {
		n, err := d.Write([]byte(chunk))
		assert.NoError(t, err)
		assert.Equal(t, len(chunk), n)
	}
	assert.Equal(t, util.Checksum([]byte("abcdefgh")), d.Sum())
}

func TestDigest_StringIsFixedWidth(t *testing.T) {
	var d util.Digest
	assert.Equal(t, "00000000", d.String())
	d.Write([]byte("x"))
	assert.Len(t, d.String(), 8)
}

func TestPutAppendsLittleEndian(t *testing.T) {
	b := util.PutUint32(nil, 0x01020304)
	assert.Equal(t, []byte{4, 3, 2, 1}, b)
	b = util.PutUint64(b, 0x0102030405060708)
	assert.Equal(t, []byte{4, 3, 2, 1, 8, 7, 6, 5, 4, 3, 2, 1}, b)
}

package util

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
)

// CRC32C (Castagnoli) checksums guard record payloads and provide the
// content-addressed table digest.

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

// Checksum computes the CRC32C checksum of data.
func Checksum(data []byte) uint32 {
	return crc32.Checksum(data, castagnoli)
}

// ValidateChecksum reports whether data matches the expected checksum.
func ValidateChecksum(data []byte, expected uint32) bool {
	return Checksum(data) == expected
}

// Digest is an incremental content digest over a table's byte stream.
type Digest struct {
	crc uint32
}

// Write folds data into the digest.
func (d *Digest) Write(data []byte) (int, error) {
	d.crc = crc32.Update(d.crc, castagnoli, data)
	return len(data), nil
}

// Sum returns the digest value accumulated so far.
func (d *Digest) Sum() uint32 {
	return d.crc
}

// String renders the digest in the fixed-width hex form used as a table
// identifier.
func (d *Digest) String() string {
	return fmt.Sprintf("%08x", d.crc)
}

// PutUint32 appends v to b in little-endian order.
func PutUint32(b []byte, v uint32) []byte {
	return binary.LittleEndian.AppendUint32(b, v)
}

// PutUint64 appends v to b in little-endian order.
func PutUint64(b []byte, v uint64) []byte {
	return binary.LittleEndian.AppendUint64(b, v)
}

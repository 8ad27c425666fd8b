package core

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"math"
)

// Hash represents a cryptographic hash
type Hash string

// NewHash creates a new hash from data
func NewHash(data []byte) Hash {
	sum := sha256.Sum256(data)
	return Hash(hex.EncodeToString(sum[:]))
}

// String returns the string representation
func (h Hash) String() string {
	return string(h)
}

// Short returns the first 12 hex characters, enough to tell inputs apart in logs.
func (h Hash) Short() string {
	if len(h) < 12 {
		return string(h)
	}
	return string(h[:12])
}

// FingerprintInputs hashes a row-major matrix together with its labeling so
// repeated runs on identical inputs can be matched up.
func FingerprintInputs(rows, cols int, values []float64, labels []int) Hash {
	buf := make([]byte, 0, 16+8*len(values)+8*len(labels))
	buf = binary.LittleEndian.AppendUint64(buf, uint64(rows))
	buf = binary.LittleEndian.AppendUint64(buf, uint64(cols))
	for _, v := range values {
		buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(v))
	}
	for _, l := range labels {
		buf = binary.LittleEndian.AppendUint64(buf, uint64(int64(l)))
	}
	return NewHash(buf)
}

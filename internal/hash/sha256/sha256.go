// Package sha256 provides stable SHA-256 digests over record fields.
package sha256

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"hash"
)

// Digest hashes a sequence of fields. Each field is length-prefixed, so
// ("ab", "c") and ("a", "bc") produce different sums.
type Digest struct {
	h   hash.Hash
	buf [binary.MaxVarintLen64]byte
}

// New returns an empty Digest.
func New() *Digest {
	return &Digest{h: sha256.New()}
}

// Field adds a string field.
func (d *Digest) Field(s string) *Digest {
	n := binary.PutUvarint(d.buf[:], uint64(len(s)))
	d.h.Write(d.buf[:n])
	d.h.Write([]byte(s))
	return d
}

// Int adds an integer field.
func (d *Digest) Int(v int) *Digest {
	n := binary.PutVarint(d.buf[:], int64(v))
	d.h.Write(d.buf[:n])
	return d
}

// Sum returns the hex digest of the fields added so far.
func (d *Digest) Sum() string {
	return hex.EncodeToString(d.h.Sum(nil))
}

// Bytes returns the hex SHA-256 of data.
func Bytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

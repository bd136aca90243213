package types

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// ItemHash is the content address of a fetchable consensus artifact: a
// transaction set or a quorum set. It is the deduplication key for the
// fetcher — identical hashes referenced by different envelopes share one
// retrieval.
type ItemHash [sha256.Size]byte

// ItemHashFromBytes converts a raw byte slice into an ItemHash. It errors if
// the slice is not exactly sha256.Size bytes.
func ItemHashFromBytes(bz []byte) (ItemHash, error) {
	var h ItemHash
	if len(bz) != sha256.Size {
		return h, fmt.Errorf("invalid item hash length: %d, want %d", len(bz), sha256.Size)
	}
	copy(h[:], bz)
	return h, nil
}

// Bytes returns a copy of the hash as a byte slice.
func (h ItemHash) Bytes() []byte {
	return h[:]
}

// IsZero reports whether the hash is all zeroes.
func (h ItemHash) IsZero() bool {
	return h == ItemHash{}
}

func (h ItemHash) String() string {
	return hex.EncodeToString(h[:])
}

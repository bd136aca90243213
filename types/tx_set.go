package types

import (
	"crypto/sha256"
	"encoding/binary"
)

// TxSet is the set of transactions a consensus value commits to for one slot.
// Its identity is the content hash over the previous ledger hash and every
// transaction in order, so any reordering or substitution yields a different
// ItemHash.
type TxSet struct {
	PreviousLedgerHash ItemHash
	Txs                [][]byte
}

// Hash returns the content address of the set.
func (ts *TxSet) Hash() ItemHash {
	hasher := sha256.New()
	hasher.Write(ts.PreviousLedgerHash[:])

	var lenBuf [8]byte
	for _, tx := range ts.Txs {
		binary.BigEndian.PutUint64(lenBuf[:], uint64(len(tx)))
		hasher.Write(lenBuf[:])
		hasher.Write(tx)
	}

	var h ItemHash
	copy(h[:], hasher.Sum(nil))
	return h
}

// Size returns the number of transactions in the set.
func (ts *TxSet) Size() int {
	return len(ts.Txs)
}

package types

import (
	"crypto/sha256"
	"encoding/binary"

	"github.com/pkg/errors"
)

// QuorumSet describes a validator's trust choices: agreement from Threshold
// out of its Validators and InnerSets is sufficient. Quorum sets are shared
// by content address, so nodes referencing the same configuration fetch it
// once.
type QuorumSet struct {
	Threshold  uint32
	Validators []string
	InnerSets  []QuorumSet
}

// Hash returns the content address of the quorum set. The encoding is
// deterministic: threshold, then validators in listed order, then inner set
// hashes in listed order.
func (qs *QuorumSet) Hash() ItemHash {
	hasher := sha256.New()

	var buf [8]byte
	binary.BigEndian.PutUint32(buf[:4], qs.Threshold)
	hasher.Write(buf[:4])

	for _, v := range qs.Validators {
		binary.BigEndian.PutUint64(buf[:], uint64(len(v)))
		hasher.Write(buf[:])
		hasher.Write([]byte(v))
	}
	for i := range qs.InnerSets {
		inner := qs.InnerSets[i].Hash()
		hasher.Write(inner[:])
	}

	var h ItemHash
	copy(h[:], hasher.Sum(nil))
	return h
}

// ValidateBasic checks well-formedness: a positive threshold no larger than
// the number of members, recursively for inner sets.
func (qs *QuorumSet) ValidateBasic() error {
	members := len(qs.Validators) + len(qs.InnerSets)
	if qs.Threshold == 0 {
		return errors.New("quorum set threshold cannot be zero")
	}
	if int(qs.Threshold) > members {
		return errors.Errorf("quorum set threshold %d exceeds member count %d", qs.Threshold, members)
	}
	for i := range qs.InnerSets {
		if err := qs.InnerSets[i].ValidateBasic(); err != nil {
			return errors.Wrapf(err, "inner set %d", i)
		}
	}
	return nil
}

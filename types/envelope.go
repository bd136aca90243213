package types

import "fmt"

// Statement is the body of a consensus message: what a validator claims about
// one slot. TxSetHash and QuorumSetHash reference content-addressed artifacts
// the statement cannot be evaluated without; a node that lacks either must
// fetch it from the overlay before processing the envelope.
type Statement struct {
	NodeID        string
	SlotIndex     uint64
	TxSetHash     ItemHash
	QuorumSetHash ItemHash

	// Pledges carries the phase-specific ballot payload. The fetcher never
	// looks inside it.
	Pledges []byte
}

// Envelope is a signed consensus statement. The consensus engine owns
// envelopes; the fetcher only holds references, tagged with the slot they
// were produced for, until the data they depend on arrives.
type Envelope struct {
	Statement Statement
	Signature []byte
}

func (e Envelope) String() string {
	return fmt.Sprintf("Envelope{node=%s slot=%d txset=%s qset=%s}",
		e.Statement.NodeID, e.Statement.SlotIndex,
		e.Statement.TxSetHash, e.Statement.QuorumSetHash)
}

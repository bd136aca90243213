package p2p

// ID is a peer's stable connection identifier (hex-encoded address of the
// peer's network key). Two handles refer to the same peer iff their IDs are
// equal; nothing in this package compares connection state.
type ID string

// Peer is an opaque handle to a connected peer. The overlay owns the real
// implementation (handshake, send queues, disconnects); consumers in this
// module only ever route by identity and hand the handle back to an injected
// delegate.
type Peer interface {
	ID() ID
	String() string
}

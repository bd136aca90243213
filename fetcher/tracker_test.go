package fetcher

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrackerAsksFirstPeer(t *testing.T) {
	h := newHarness(t, "p1", "p2")

	hash := itemHash("txset-1")
	h.f.Fetch(hash, envelope("alice", 5), 5)

	asks := h.asks.all()
	require.Len(t, asks, 1)
	assert.EqualValues(t, "p1", asks[0].peer)
	assert.Equal(t, hash, asks[0].itemHash)

	// one retry timer armed, one rebuild to seed the empty candidate list
	assert.Equal(t, 1, h.sched.numPending())
	assert.Equal(t, 1.0, peerListRebuilds(h.metrics))
	assert.Equal(t, 1.0, requestsSent(h.metrics))
}

func TestTrackerDoesntHaveAdvances(t *testing.T) {
	h := newHarness(t, "p1", "p2")

	hash := itemHash("txset-2")
	h.f.Fetch(hash, envelope("alice", 5), 5)
	h.f.DoesntHave(hash, testPeer{id: "p1"})

	asks := h.asks.all()
	require.Len(t, asks, 2)
	assert.EqualValues(t, "p2", asks[1].peer)
	assert.Equal(t, 1, h.sched.numPending())
}

func TestTrackerIgnoresStaleDoesntHave(t *testing.T) {
	h := newHarness(t, "p1", "p2")

	hash := itemHash("txset-3")
	h.f.Fetch(hash, envelope("alice", 5), 5)
	h.f.DoesntHave(hash, testPeer{id: "p1"}) // now asking p2

	// a late response from p1 must not rewind progress
	h.f.DoesntHave(hash, testPeer{id: "p1"})

	asks := h.asks.all()
	require.Len(t, asks, 2)
	assert.EqualValues(t, "p2", asks[1].peer)

	h.f.mtx.Lock()
	tr := h.f.trackers[hash]
	require.NotNil(t, tr)
	assert.EqualValues(t, "p2", tr.lastAskedPeer.ID())
	h.f.mtx.Unlock()
}

func TestTrackerTimeoutAdvances(t *testing.T) {
	h := newHarness(t, "p1", "p2")

	hash := itemHash("txset-4")
	h.f.Fetch(hash, envelope("alice", 5), 5)

	// expiry is handled exactly like a doesntHave from the asked peer
	require.True(t, h.sched.fire())

	asks := h.asks.all()
	require.Len(t, asks, 2)
	assert.EqualValues(t, "p2", asks[1].peer)
	assert.Equal(t, 1, h.sched.numPending())
}

func TestTrackerExhaustionRebuildsList(t *testing.T) {
	h := newHarness(t, "p1", "p2")

	hash := itemHash("txset-5")
	h.f.Fetch(hash, envelope("alice", 5), 5)
	assert.Equal(t, 1.0, peerListRebuilds(h.metrics))

	h.f.DoesntHave(hash, testPeer{id: "p1"})
	assert.Equal(t, 1.0, peerListRebuilds(h.metrics))

	// p2 was the last candidate; the next advance refills from the
	// population and starts over at p1
	h.f.DoesntHave(hash, testPeer{id: "p2"})
	assert.Equal(t, 2.0, peerListRebuilds(h.metrics))

	asks := h.asks.all()
	require.Len(t, asks, 3)
	assert.EqualValues(t, "p1", asks[2].peer)
}

func TestTrackerEmptyPeerPopulation(t *testing.T) {
	h := newHarness(t) // no peers

	hash := itemHash("txset-6")
	h.f.Fetch(hash, envelope("alice", 5), 5)

	assert.Equal(t, 0, h.asks.count())
	assert.Equal(t, 1.0, peerListRebuilds(h.metrics))
	assert.Equal(t, 1, h.sched.numPending())

	// repeated exhaustion with no peers keeps rebuilding without asking
	require.True(t, h.sched.fire())
	assert.Equal(t, 0, h.asks.count())
	assert.Equal(t, 2.0, peerListRebuilds(h.metrics))

	// once a peer shows up, the next re-check asks it
	h.peers.set("p9")
	require.True(t, h.sched.fire())
	require.Equal(t, 1, h.asks.count())
	assert.EqualValues(t, "p9", h.asks.last().peer)
	assert.Equal(t, 1.0, requestsSent(h.metrics))
}

func TestTrackerSingleOutstandingTimer(t *testing.T) {
	h := newHarness(t, "p1", "p2", "p3")

	hash := itemHash("txset-7")
	h.f.Fetch(hash, envelope("alice", 5), 5)

	for i := 0; i < 5; i++ {
		require.True(t, h.sched.fire())
		assert.Equal(t, 1, h.sched.numPending())
	}
}

func TestTrackerClearEnvelopesBelow(t *testing.T) {
	h := newHarness(t, "p1")

	hash := itemHash("txset-8")
	h.f.Fetch(hash, envelope("alice", 4), 4)
	h.f.Fetch(hash, envelope("bob", 7), 7)
	h.f.Fetch(hash, envelope("carol", 6), 6)

	h.f.mtx.Lock()
	tr := h.f.trackers[hash]
	require.NotNil(t, tr)
	remaining := tr.clearEnvelopesBelow(6)
	require.True(t, remaining)
	require.Len(t, tr.waiting, 2)
	assert.EqualValues(t, 7, tr.waiting[0].slotIndex)
	assert.EqualValues(t, 6, tr.waiting[1].slotIndex)

	remaining = tr.clearEnvelopesBelow(100)
	assert.False(t, remaining)
	assert.False(t, tr.hasWaitingEnvelopes())
	h.f.mtx.Unlock()
}

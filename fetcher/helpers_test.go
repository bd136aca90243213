package fetcher

import (
	"crypto/sha256"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/go-kit/kit/metrics/generic"
	"github.com/stretchr/testify/require"

	"github.com/lumenlabs/lumen-core/libs/log"
	"github.com/lumenlabs/lumen-core/p2p"
	"github.com/lumenlabs/lumen-core/types"
)

type testPeer struct {
	id p2p.ID
}

func (p testPeer) ID() p2p.ID     { return p.id }
func (p testPeer) String() string { return string(p.id) }

// testPeerSet is a mutable PeerProvider returning peers in insertion order.
type testPeerSet struct {
	mtx   sync.Mutex
	peers []p2p.Peer
}

func newTestPeerSet(ids ...p2p.ID) *testPeerSet {
	s := &testPeerSet{}
	s.set(ids...)
	return s
}

func (s *testPeerSet) set(ids ...p2p.ID) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	s.peers = s.peers[:0]
	for _, id := range ids {
		s.peers = append(s.peers, testPeer{id: id})
	}
}

func (s *testPeerSet) List() []p2p.Peer {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	return append([]p2p.Peer(nil), s.peers...)
}

type ask struct {
	peer     p2p.ID
	itemHash types.ItemHash
}

// askRecorder records every invocation of the ask delegate.
type askRecorder struct {
	mtx  sync.Mutex
	asks []ask
}

func (r *askRecorder) askPeer(peer p2p.Peer, itemHash types.ItemHash) {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	r.asks = append(r.asks, ask{peer: peer.ID(), itemHash: itemHash})
}

func (r *askRecorder) all() []ask {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	return append([]ask(nil), r.asks...)
}

func (r *askRecorder) count() int {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	return len(r.asks)
}

func (r *askRecorder) last() ask {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	if len(r.asks) == 0 {
		return ask{}
	}
	return r.asks[len(r.asks)-1]
}

// envCollector collects envelopes handed back for processing.
type envCollector struct {
	mtx  sync.Mutex
	envs []types.Envelope
}

func (c *envCollector) ReadyForProcessing(env types.Envelope) {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	c.envs = append(c.envs, env)
}

func (c *envCollector) all() []types.Envelope {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	return append([]types.Envelope(nil), c.envs...)
}

// manualScheduler is a Scheduler whose timers only fire when the test says
// so, making timeout paths deterministic.
type manualScheduler struct {
	mtx    sync.Mutex
	timers []*manualTimer
}

type manualTimer struct {
	sched   *manualScheduler
	d       time.Duration
	cb      func()
	stopped bool
	fired   bool
}

func (t *manualTimer) Stop() bool {
	t.sched.mtx.Lock()
	defer t.sched.mtx.Unlock()
	if t.fired || t.stopped {
		return false
	}
	t.stopped = true
	return true
}

func (s *manualScheduler) AfterFunc(d time.Duration, cb func()) Timer {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	t := &manualTimer{sched: s, d: d, cb: cb}
	s.timers = append(s.timers, t)
	return t
}

// fire runs the oldest pending timer callback. Returns false if no timer is
// pending.
func (s *manualScheduler) fire() bool {
	s.mtx.Lock()
	var pending *manualTimer
	for _, t := range s.timers {
		if !t.fired && !t.stopped {
			pending = t
			break
		}
	}
	if pending == nil {
		s.mtx.Unlock()
		return false
	}
	pending.fired = true
	cb := pending.cb
	s.mtx.Unlock()

	cb()
	return true
}

func (s *manualScheduler) numPending() int {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	n := 0
	for _, t := range s.timers {
		if !t.fired && !t.stopped {
			n++
		}
	}
	return n
}

func testMetrics() *Metrics {
	return &Metrics{
		RequestsSent:     generic.NewCounter("requests_sent"),
		PeerListRebuilds: generic.NewCounter("peer_list_rebuilds"),
		ItemsFetching:    generic.NewGauge("items_fetching"),
	}
}

func requestsSent(m *Metrics) float64 {
	return m.RequestsSent.(*generic.Counter).Value()
}

func peerListRebuilds(m *Metrics) float64 {
	return m.PeerListRebuilds.(*generic.Counter).Value()
}

func itemsFetching(m *Metrics) float64 {
	return m.ItemsFetching.(*generic.Gauge).Value()
}

func itemHash(s string) types.ItemHash {
	return sha256.Sum256([]byte(s))
}

func envelope(node string, slotIndex uint64) types.Envelope {
	return types.Envelope{
		Statement: types.Statement{
			NodeID:    node,
			SlotIndex: slotIndex,
		},
		Signature: []byte(fmt.Sprintf("sig-%s-%d", node, slotIndex)),
	}
}

// harness bundles a started ItemFetcher with all of its test collaborators.
type harness struct {
	f       *ItemFetcher
	peers   *testPeerSet
	asks    *askRecorder
	done    *envCollector
	sched   *manualScheduler
	metrics *Metrics
}

func newHarness(t *testing.T, peerIDs ...p2p.ID) *harness {
	t.Helper()

	h := &harness{
		peers:   newTestPeerSet(peerIDs...),
		asks:    &askRecorder{},
		done:    &envCollector{},
		sched:   &manualScheduler{},
		metrics: testMetrics(),
	}
	h.f = NewItemFetcher(DefaultParams(), h.peers, h.asks.askPeer, h.done,
		WithScheduler(h.sched), WithMetrics(h.metrics))
	h.f.SetLogger(log.TestingLogger())
	require.NoError(t, h.f.Start())
	t.Cleanup(func() {
		_ = h.f.Stop()
	})
	return h
}

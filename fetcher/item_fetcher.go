package fetcher

import (
	"fmt"

	"github.com/lumenlabs/lumen-core/libs/service"
	lmnsync "github.com/lumenlabs/lumen-core/libs/sync"
	"github.com/lumenlabs/lumen-core/p2p"
	"github.com/lumenlabs/lumen-core/types"
)

// AskPeer sends a request for an item to a peer. Fire and forget: the
// fetcher never waits on this call, answers come back later through
// DoesntHave and Recv.
type AskPeer func(peer p2p.Peer, itemHash types.ItemHash)

// PeerProvider returns a snapshot of the currently connected peers, in the
// order the overlay enumerates them. The fetcher tries peers in exactly that
// order and applies no weighting of its own.
type PeerProvider interface {
	List() []p2p.Peer
}

// EnvelopeProcessor receives envelopes whose referenced item has arrived, one
// at a time, from inside Recv. Implementations must tolerate being re-entered
// synchronously with an envelope they handed to Fetch earlier.
type EnvelopeProcessor interface {
	ReadyForProcessing(env types.Envelope)
}

// ItemFetcher manages asking peers for transaction sets and quorum sets.
//
// It keeps instances of the Tracker type, exactly one per item hash no matter
// how many envelopes need the item, so there is at most one in-flight request
// stream per hash system-wide. Network responses and slot-based garbage
// collection are routed down to the matching tracker.
type ItemFetcher struct {
	service.BaseService

	mtx      lmnsync.Mutex
	trackers map[types.ItemHash]*Tracker

	params    Params
	peers     PeerProvider
	askPeer   AskPeer
	processor EnvelopeProcessor
	scheduler Scheduler
	metrics   *Metrics
}

// Option sets an optional parameter on the ItemFetcher.
type Option func(*ItemFetcher)

// WithMetrics sets the metrics. Pass the same Metrics value to every fetcher
// instance in the process so they share the items-fetching gauge.
func WithMetrics(metrics *Metrics) Option {
	return func(f *ItemFetcher) { f.metrics = metrics }
}

// WithScheduler sets the timer scheduler. Used by tests to drive retry
// timeouts deterministically.
func WithScheduler(scheduler Scheduler) Option {
	return func(f *ItemFetcher) { f.scheduler = scheduler }
}

// NewItemFetcher returns an ItemFetcher that locates items via askPeer,
// drawing retry candidates from peers and handing resolved envelopes to
// processor.
func NewItemFetcher(
	params Params,
	peers PeerProvider,
	askPeer AskPeer,
	processor EnvelopeProcessor,
	options ...Option,
) *ItemFetcher {
	f := &ItemFetcher{
		trackers:  make(map[types.ItemHash]*Tracker),
		params:    params,
		peers:     peers,
		askPeer:   askPeer,
		processor: processor,
		scheduler: realScheduler{},
		metrics:   NopMetrics(),
	}
	f.BaseService = *service.NewBaseService(nil, "ItemFetcher", f)
	for _, option := range options {
		option(f)
	}
	return f
}

// OnStart implements service.Service. Trackers created by a Fetch that
// arrived before Start sit idle with no request and no timer; kick their
// retry loops now that requests may be sent.
func (f *ItemFetcher) OnStart() error {
	if err := f.params.ValidateBasic(); err != nil {
		return err
	}

	f.mtx.Lock()
	defer f.mtx.Unlock()
	for _, t := range f.trackers {
		if t.lastAskedPeer == nil && t.timer == nil {
			t.tryNextPeer()
		}
	}
	return nil
}

// OnStop implements service.Service by canceling all outstanding retry
// timers. Trackers and their waiting envelopes are left in place.
func (f *ItemFetcher) OnStop() {
	f.mtx.Lock()
	defer f.mtx.Unlock()

	for _, t := range f.trackers {
		t.cancelTimer()
	}
}

// Fetch asks the overlay for the item identified by itemHash, needed by env
// which was produced at slotIndex. Envelopes referencing the same hash share
// one tracker; the first Fetch for a hash starts its retry loop immediately.
func (f *ItemFetcher) Fetch(itemHash types.ItemHash, env types.Envelope, slotIndex uint64) {
	f.mtx.Lock()
	defer f.mtx.Unlock()

	t, ok := f.trackers[itemHash]
	if !ok {
		t = newTracker(f, itemHash)
		f.trackers[itemHash] = t
		f.metrics.ItemsFetching.Add(1)
		t.tryNextPeer()
	}
	t.listen(env, slotIndex)
}

// IsFetching reports whether the item identified by itemHash is currently
// being fetched.
func (f *ItemFetcher) IsFetching(itemHash types.ItemHash) bool {
	f.mtx.Lock()
	defer f.mtx.Unlock()

	_, ok := f.trackers[itemHash]
	return ok
}

// NumItems returns the number of items currently being fetched by this
// instance.
func (f *ItemFetcher) NumItems() int {
	f.mtx.Lock()
	defer f.mtx.Unlock()

	return len(f.trackers)
}

// DoesntHave handles peer informing us that it does not have the item
// identified by itemHash. Unknown hashes are ignored: the response answers a
// request this node no longer cares about.
func (f *ItemFetcher) DoesntHave(itemHash types.ItemHash, peer p2p.Peer) {
	f.mtx.Lock()
	defer f.mtx.Unlock()

	if t, ok := f.trackers[itemHash]; ok {
		t.doesntHave(peer)
	}
}

// Recv handles the arrival of the item identified by itemHash. Every
// envelope waiting on it is handed to the processor in the order it was
// registered, and the tracker is retired. Unknown hashes are ignored
// (unsolicited or duplicate data, or a benign race with slot GC).
func (f *ItemFetcher) Recv(itemHash types.ItemHash) {
	f.mtx.Lock()
	t, ok := f.trackers[itemHash]
	if !ok {
		f.mtx.Unlock()
		return
	}

	envs := make([]types.Envelope, len(t.waiting))
	for i, we := range t.waiting {
		envs[i] = we.env
	}
	t.waiting = nil
	f.removeTracker(itemHash)
	f.mtx.Unlock()

	// Deliver outside the lock: the processor may synchronously call Fetch
	// again, e.g. for another missing dependency of the same envelope.
	for _, env := range envs {
		f.processor.ReadyForProcessing(env)
	}
}

// StopFetchingBelow prunes every waiting envelope produced for a slot below
// slotIndex and retires trackers left with nothing to wait for. This is the
// only way a tracker is discarded without its item ever arriving: consensus
// has moved past every slot that needed it.
func (f *ItemFetcher) StopFetchingBelow(slotIndex uint64) {
	f.mtx.Lock()
	defer f.mtx.Unlock()

	for itemHash, t := range f.trackers {
		if !t.clearEnvelopesBelow(slotIndex) {
			f.removeTracker(itemHash)
		}
	}
}

// removeTracker retires the tracker for itemHash.
//
// CONTRACT: f.mtx must be locked, and the tracker must have no waiting
// envelopes. Removing a tracker that still has envelopes would strand them
// forever, so that is an invariant violation rather than an error.
func (f *ItemFetcher) removeTracker(itemHash types.ItemHash) {
	t, ok := f.trackers[itemHash]
	if !ok {
		return
	}
	if t.hasWaitingEnvelopes() {
		panic(fmt.Sprintf("removing tracker for %v with %d envelopes still waiting",
			itemHash, len(t.waiting)))
	}
	t.cancelTimer()
	delete(f.trackers, itemHash)
	f.metrics.ItemsFetching.Add(-1)
}

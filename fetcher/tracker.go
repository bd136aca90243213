package fetcher

import (
	"time"

	"github.com/lumenlabs/lumen-core/libs/log"
	"github.com/lumenlabs/lumen-core/p2p"
	"github.com/lumenlabs/lumen-core/types"
)

type waitingEnvelope struct {
	slotIndex uint64
	env       types.Envelope
}

// Tracker drives the retrieval of one item: ask a peer, wait for an answer,
// move to the next candidate on a negative response or timeout, and rebuild
// the candidate list from the current peer population when it runs dry. It
// also keeps every envelope blocked on the item so the owning ItemFetcher can
// release them once the data arrives.
//
// A tracker never gives up on its own. It keeps retrying for as long as it
// exists; only the owner retires it, either because the item arrived or
// because consensus moved past every slot that needed it.
//
// All methods must be called with the owning ItemFetcher's lock held; timer
// callbacks take the lock themselves.
type Tracker struct {
	logger   log.Logger
	fetcher  *ItemFetcher
	itemHash types.ItemHash

	lastAskedPeer  p2p.Peer
	peersToAsk     []p2p.Peer
	numListRebuild int
	waiting        []waitingEnvelope

	// At most one timer is armed at any time. timerGen is bumped on every
	// arm and cancel so that a callback from a superseded timer can detect
	// it is stale and do nothing.
	timer    Timer
	timerGen uint64
}

func newTracker(f *ItemFetcher, itemHash types.ItemHash) *Tracker {
	return &Tracker{
		logger:   f.Logger.With("item", itemHash),
		fetcher:  f,
		itemHash: itemHash,
	}
}

// listen registers env, produced at slotIndex, to be handed back to the
// consensus processor once the item arrives. It never triggers a request;
// asking is driven by tracker creation and the retry loop.
func (t *Tracker) listen(env types.Envelope, slotIndex uint64) {
	t.waiting = append(t.waiting, waitingEnvelope{slotIndex: slotIndex, env: env})
}

// hasWaitingEnvelopes reports whether any envelope still depends on the item.
func (t *Tracker) hasWaitingEnvelopes() bool {
	return len(t.waiting) > 0
}

// clearEnvelopesBelow drops every waiting envelope produced for a slot below
// slotIndex and reports whether any envelope remains. An outstanding request
// is left alone: the item may still resolve envelopes registered later for
// the same hash, and the owner tears the tracker down if nothing remains.
func (t *Tracker) clearEnvelopesBelow(slotIndex uint64) bool {
	kept := t.waiting[:0]
	for _, we := range t.waiting {
		if we.slotIndex >= slotIndex {
			kept = append(kept, we)
		}
	}
	// release pruned envelope references
	for i := len(kept); i < len(t.waiting); i++ {
		t.waiting[i] = waitingEnvelope{}
	}
	t.waiting = kept
	return len(t.waiting) > 0
}

// doesntHave handles a negative response. Only the currently asked peer can
// advance the state machine; a response from anyone else is stale (e.g. it
// arrived after a timeout already moved on) and ignoring it prevents a slow
// peer from rewinding progress.
func (t *Tracker) doesntHave(peer p2p.Peer) {
	if t.lastAskedPeer == nil || t.lastAskedPeer.ID() != peer.ID() {
		t.logger.Trace("Ignoring stale negative response", "peer", peer.ID())
		return
	}
	t.cancelTimer()
	t.tryNextPeer()
}

// tryNextPeer advances the retry state machine. It runs when the tracker is
// created, when the asked peer answers that it does not have the item, and
// when the retry timer fires.
func (t *Tracker) tryNextPeer() {
	if !t.fetcher.IsRunning() {
		return
	}

	t.lastAskedPeer = nil

	if len(t.peersToAsk) == 0 {
		t.peersToAsk = t.fetcher.peers.List()
		t.numListRebuild++
		t.fetcher.metrics.PeerListRebuilds.Add(1)

		if len(t.peersToAsk) == 0 {
			t.logger.Debug("No peers connected, backing off",
				"rebuilds", t.numListRebuild)
			t.armTimer(t.fetcher.params.RebuildBackoff)
			return
		}
	}

	peer := t.peersToAsk[0]
	t.peersToAsk = t.peersToAsk[1:]
	t.lastAskedPeer = peer

	t.logger.Trace("Asking peer for item", "peer", peer.ID())
	t.fetcher.askPeer(peer, t.itemHash)
	t.fetcher.metrics.RequestsSent.Add(1)
	t.armTimer(t.fetcher.params.RequestTimeout)
}

func (t *Tracker) armTimer(d time.Duration) {
	if t.timer != nil {
		panic("tracker: arming a timer while one is already outstanding")
	}
	t.timerGen++
	gen := t.timerGen
	t.timer = t.fetcher.scheduler.AfterFunc(d, func() {
		t.onTimeout(gen)
	})
}

func (t *Tracker) cancelTimer() {
	if t.timer == nil {
		return
	}
	t.timer.Stop()
	t.timer = nil
	t.timerGen++
}

// onTimeout runs on timer expiry. No response within the timeout is treated
// exactly like a doesntHave from the asked peer, so an unresponsive peer
// self-heals without an explicit negative acknowledgment.
func (t *Tracker) onTimeout(gen uint64) {
	t.fetcher.mtx.Lock()
	defer t.fetcher.mtx.Unlock()

	if gen != t.timerGen {
		// canceled or re-armed after this callback was already scheduled
		return
	}
	t.timer = nil
	t.tryNextPeer()
}

package herder

import (
	"crypto/sha256"
	"encoding/binary"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/pkg/errors"

	"github.com/lumenlabs/lumen-core/fetcher"
	"github.com/lumenlabs/lumen-core/libs/service"
	lmnsync "github.com/lumenlabs/lumen-core/libs/sync"
	"github.com/lumenlabs/lumen-core/p2p"
	"github.com/lumenlabs/lumen-core/types"
)

const (
	defaultTxSetCacheSize = 5000
	defaultQSetCacheSize  = 1000
)

// ItemKind distinguishes the two content-addressed artifact kinds an envelope
// can reference.
type ItemKind uint8

const (
	ItemTxSet ItemKind = iota
	ItemQuorumSet
)

func (k ItemKind) String() string {
	switch k {
	case ItemTxSet:
		return "txset"
	case ItemQuorumSet:
		return "qset"
	default:
		return "unknown"
	}
}

// PendingEnvelopes sits between the overlay and the consensus engine. It
// owns one ItemFetcher per artifact kind plus caches of everything already
// received, and it decides when an envelope has all of its dependencies and
// can go downstream.
//
// Both fetchers share one metrics value, so the items-fetching gauge counts
// trackers across the two instances.
type PendingEnvelopes struct {
	service.BaseService

	txSetFetcher *fetcher.ItemFetcher
	qSetFetcher  *fetcher.ItemFetcher

	txSetCache *lru.Cache[types.ItemHash, *types.TxSet]
	qSetCache  *lru.Cache[types.ItemHash, *types.QuorumSet]

	// mtx guards fetching only. It is never held across calls into the
	// fetchers or the processor.
	mtx lmnsync.Mutex
	// fetching holds the registration state of every envelope currently
	// blocked on at least one artifact. It exists so the re-entry from Recv
	// does not register the same envelope with a live tracker twice, while
	// an artifact that went missing again (cache eviction before the
	// envelope completed) still gets re-fetched.
	fetching map[envelopeKey]*fetchState

	processor fetcher.EnvelopeProcessor
}

// fetchState tracks, per artifact kind, whether the envelope is currently
// registered with that kind's tracker.
type fetchState struct {
	slotIndex       uint64
	txSetRegistered bool
	qSetRegistered  bool
}

var _ fetcher.EnvelopeProcessor = (*PendingEnvelopes)(nil)

// envelopeKey is a fingerprint of a concrete signed envelope.
type envelopeKey [sha256.Size]byte

func keyFor(env types.Envelope) envelopeKey {
	hasher := sha256.New()
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], env.Statement.SlotIndex)
	hasher.Write(buf[:])
	hasher.Write([]byte(env.Statement.NodeID))
	hasher.Write(env.Statement.TxSetHash[:])
	hasher.Write(env.Statement.QuorumSetHash[:])
	hasher.Write(env.Statement.Pledges)
	hasher.Write(env.Signature)

	var k envelopeKey
	copy(k[:], hasher.Sum(nil))
	return k
}

// Option sets an optional parameter on PendingEnvelopes.
type Option func(*options)

type options struct {
	metrics        *fetcher.Metrics
	scheduler      fetcher.Scheduler
	txSetCacheSize int
	qSetCacheSize  int
}

// WithMetrics sets the metrics value handed to both fetchers.
func WithMetrics(metrics *fetcher.Metrics) Option {
	return func(o *options) { o.metrics = metrics }
}

// WithScheduler sets the timer scheduler handed to both fetchers.
func WithScheduler(scheduler fetcher.Scheduler) Option {
	return func(o *options) { o.scheduler = scheduler }
}

// WithCacheSizes sets how many received tx sets and quorum sets are retained.
func WithCacheSizes(txSets, qSets int) Option {
	return func(o *options) {
		o.txSetCacheSize = txSets
		o.qSetCacheSize = qSets
	}
}

// NewPendingEnvelopes wires up the two fetchers. askTxSet and askQuorumSet
// are the per-kind request delegates; peers supplies retry candidates;
// processor receives envelopes once every referenced artifact is on hand.
func NewPendingEnvelopes(
	params fetcher.Params,
	peers fetcher.PeerProvider,
	askTxSet fetcher.AskPeer,
	askQuorumSet fetcher.AskPeer,
	processor fetcher.EnvelopeProcessor,
	opts ...Option,
) (*PendingEnvelopes, error) {
	o := &options{
		metrics:        fetcher.NopMetrics(),
		txSetCacheSize: defaultTxSetCacheSize,
		qSetCacheSize:  defaultQSetCacheSize,
	}
	for _, opt := range opts {
		opt(o)
	}

	txSetCache, err := lru.New[types.ItemHash, *types.TxSet](o.txSetCacheSize)
	if err != nil {
		return nil, errors.Wrap(err, "creating tx set cache")
	}
	qSetCache, err := lru.New[types.ItemHash, *types.QuorumSet](o.qSetCacheSize)
	if err != nil {
		return nil, errors.Wrap(err, "creating quorum set cache")
	}

	pe := &PendingEnvelopes{
		txSetCache: txSetCache,
		qSetCache:  qSetCache,
		fetching:   make(map[envelopeKey]*fetchState),
		processor:  processor,
	}
	pe.BaseService = *service.NewBaseService(nil, "PendingEnvelopes", pe)

	fetcherOpts := []fetcher.Option{fetcher.WithMetrics(o.metrics)}
	if o.scheduler != nil {
		fetcherOpts = append(fetcherOpts, fetcher.WithScheduler(o.scheduler))
	}
	pe.txSetFetcher = fetcher.NewItemFetcher(params, peers, askTxSet, pe, fetcherOpts...)
	pe.qSetFetcher = fetcher.NewItemFetcher(params, peers, askQuorumSet, pe, fetcherOpts...)

	return pe, nil
}

// OnStart implements service.Service by starting both fetchers.
func (pe *PendingEnvelopes) OnStart() error {
	pe.txSetFetcher.SetLogger(pe.Logger.With("kind", ItemTxSet.String()))
	pe.qSetFetcher.SetLogger(pe.Logger.With("kind", ItemQuorumSet.String()))

	if err := pe.txSetFetcher.Start(); err != nil {
		return errors.Wrap(err, "starting tx set fetcher")
	}
	if err := pe.qSetFetcher.Start(); err != nil {
		return errors.Wrap(err, "starting quorum set fetcher")
	}
	return nil
}

// OnStop implements service.Service by stopping both fetchers.
func (pe *PendingEnvelopes) OnStop() {
	if err := pe.txSetFetcher.Stop(); err != nil {
		pe.Logger.Error("Error stopping tx set fetcher", "err", err)
	}
	if err := pe.qSetFetcher.Stop(); err != nil {
		pe.Logger.Error("Error stopping quorum set fetcher", "err", err)
	}
}

// RecvEnvelope takes in an envelope from the overlay and starts fetching
// whichever referenced artifacts are missing. An envelope with everything on
// hand goes straight to the downstream processor.
func (pe *PendingEnvelopes) RecvEnvelope(env types.Envelope) {
	st := env.Statement
	missingTxSet := !st.TxSetHash.IsZero() && !pe.txSetCache.Contains(st.TxSetHash)
	missingQSet := !st.QuorumSetHash.IsZero() && !pe.qSetCache.Contains(st.QuorumSetHash)

	key := keyFor(env)

	if !missingTxSet && !missingQSet {
		pe.clearFetching(key)
		pe.processor.ReadyForProcessing(env)
		return
	}

	fetchTxSet, fetchQSet := pe.updateFetching(key, st.SlotIndex, missingTxSet, missingQSet)
	if fetchTxSet {
		pe.txSetFetcher.Fetch(st.TxSetHash, env, st.SlotIndex)
	}
	if fetchQSet {
		pe.qSetFetcher.Fetch(st.QuorumSetHash, env, st.SlotIndex)
	}
}

// ReadyForProcessing implements fetcher.EnvelopeProcessor. An envelope
// released by one fetcher re-enters RecvEnvelope to check whether its other
// dependency is satisfied too.
func (pe *PendingEnvelopes) ReadyForProcessing(env types.Envelope) {
	pe.RecvEnvelope(env)
}

// RecvTxSet records a transaction set received from the overlay and releases
// every envelope waiting on it. Returns false if the payload does not match
// the hash it was delivered under.
func (pe *PendingEnvelopes) RecvTxSet(itemHash types.ItemHash, txSet *types.TxSet) bool {
	if txSet.Hash() != itemHash {
		pe.Logger.Debug("Received tx set with mismatched hash",
			"claimed", itemHash, "actual", txSet.Hash())
		return false
	}
	pe.txSetCache.Add(itemHash, txSet)
	pe.txSetFetcher.Recv(itemHash)
	return true
}

// RecvQuorumSet records a quorum set received from the overlay and releases
// every envelope waiting on it. Malformed or hash-mismatched sets are
// rejected and the search continues.
func (pe *PendingEnvelopes) RecvQuorumSet(itemHash types.ItemHash, qSet *types.QuorumSet) bool {
	if qSet.Hash() != itemHash {
		pe.Logger.Debug("Received quorum set with mismatched hash",
			"claimed", itemHash, "actual", qSet.Hash())
		return false
	}
	if err := qSet.ValidateBasic(); err != nil {
		pe.Logger.Debug("Received invalid quorum set", "hash", itemHash, "err", err)
		return false
	}
	pe.qSetCache.Add(itemHash, qSet)
	pe.qSetFetcher.Recv(itemHash)
	return true
}

// DoesntHave routes a peer's negative response to the fetcher for the named
// artifact kind.
func (pe *PendingEnvelopes) DoesntHave(kind ItemKind, itemHash types.ItemHash, peer p2p.Peer) {
	switch kind {
	case ItemTxSet:
		pe.txSetFetcher.DoesntHave(itemHash, peer)
	case ItemQuorumSet:
		pe.qSetFetcher.DoesntHave(itemHash, peer)
	default:
		pe.Logger.Error("Negative response for unknown item kind", "kind", kind)
	}
}

// IsFetching reports whether the artifact of the given kind is currently
// being fetched.
func (pe *PendingEnvelopes) IsFetching(kind ItemKind, itemHash types.ItemHash) bool {
	switch kind {
	case ItemTxSet:
		return pe.txSetFetcher.IsFetching(itemHash)
	case ItemQuorumSet:
		return pe.qSetFetcher.IsFetching(itemHash)
	default:
		return false
	}
}

// EraseBelow discards fetch state for every envelope produced below
// slotIndex. Called when consensus externalizes a slot and older envelopes
// stop mattering.
func (pe *PendingEnvelopes) EraseBelow(slotIndex uint64) {
	pe.txSetFetcher.StopFetchingBelow(slotIndex)
	pe.qSetFetcher.StopFetchingBelow(slotIndex)

	pe.mtx.Lock()
	defer pe.mtx.Unlock()
	for key, state := range pe.fetching {
		if state.slotIndex < slotIndex {
			delete(pe.fetching, key)
		}
	}
}

// GetTxSet returns a previously received transaction set.
func (pe *PendingEnvelopes) GetTxSet(itemHash types.ItemHash) (*types.TxSet, bool) {
	return pe.txSetCache.Get(itemHash)
}

// GetQuorumSet returns a previously received quorum set.
func (pe *PendingEnvelopes) GetQuorumSet(itemHash types.ItemHash) (*types.QuorumSet, bool) {
	return pe.qSetCache.Get(itemHash)
}

// updateFetching reconciles the envelope's registration state with what is
// currently missing and returns which artifacts need a Fetch. A kind that is
// no longer missing has had its tracker retired by Recv, so its registration
// is cleared; if the cache later evicts that artifact before the envelope
// completes, the next pass through here re-fetches it instead of assuming
// the old registration still stands.
func (pe *PendingEnvelopes) updateFetching(
	key envelopeKey,
	slotIndex uint64,
	missingTxSet, missingQSet bool,
) (fetchTxSet, fetchQSet bool) {
	pe.mtx.Lock()
	defer pe.mtx.Unlock()

	state, ok := pe.fetching[key]
	if !ok {
		state = &fetchState{slotIndex: slotIndex}
		pe.fetching[key] = state
	}

	if !missingTxSet {
		state.txSetRegistered = false
	}
	if !missingQSet {
		state.qSetRegistered = false
	}

	if missingTxSet && !state.txSetRegistered {
		state.txSetRegistered = true
		fetchTxSet = true
	}
	if missingQSet && !state.qSetRegistered {
		state.qSetRegistered = true
		fetchQSet = true
	}
	return fetchTxSet, fetchQSet
}

func (pe *PendingEnvelopes) clearFetching(key envelopeKey) {
	pe.mtx.Lock()
	defer pe.mtx.Unlock()
	delete(pe.fetching, key)
}

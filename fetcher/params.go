package fetcher

import (
	"time"

	"github.com/pkg/errors"
)

const (
	// defaultRequestTimeout is how long a single peer gets to answer an item
	// request before the tracker moves on to the next candidate.
	defaultRequestTimeout = 1500 * time.Millisecond

	// defaultRebuildBackoff is the pause before re-checking the peer
	// population after a refill came back empty.
	defaultRebuildBackoff = 2 * time.Second
)

// Params holds the retry policy knobs for the fetcher. Both values are
// policy, not protocol: changing them affects only how aggressively peers are
// re-asked, never correctness.
type Params struct {
	// RequestTimeout bounds how long one outstanding request may go
	// unanswered. Expiry is treated exactly like a negative response from the
	// asked peer.
	RequestTimeout time.Duration

	// RebuildBackoff is how long a tracker waits before re-checking for
	// connected peers when the last refill of its candidate list returned
	// nothing.
	RebuildBackoff time.Duration
}

// DefaultParams returns the default retry policy.
func DefaultParams() Params {
	return Params{
		RequestTimeout: defaultRequestTimeout,
		RebuildBackoff: defaultRebuildBackoff,
	}
}

// ValidateBasic performs basic validation, returning an error if any
// parameter is unusable.
func (p Params) ValidateBasic() error {
	if p.RequestTimeout <= 0 {
		return errors.Errorf("request timeout must be positive, got %v", p.RequestTimeout)
	}
	if p.RebuildBackoff <= 0 {
		return errors.Errorf("rebuild backoff must be positive, got %v", p.RebuildBackoff)
	}
	return nil
}

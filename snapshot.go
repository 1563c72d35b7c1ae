package blockwatch

import "time"

// Snapshot is one observed block status for a single poll tick.
//
// Snapshot is immutable after creation. It is either decoded from the
// hosting backend's status endpoint or, when the fetch fails and fallback
// is enabled, synthesized locally. Synthetic snapshots are marked via the
// Synthetic field so consumers can distinguish fabricated data from real
// backend state.
type Snapshot struct {
	// BlockID is the opaque identifier of the block the deployment is
	// currently anchored to. A change in BlockID is what defines a
	// status change event.
	BlockID string `json:"block_id"`

	// Height is the numeric ordinal of the block in the chain.
	Height int64 `json:"height"`

	// Hash is the content hash reported for the block.
	Hash string `json:"hash"`

	// CreatedAt is the timestamp the backend recorded for the block.
	CreatedAt time.Time `json:"created_at"`

	// Active reports whether the deployment is currently being served.
	Active bool `json:"active"`

	// Category is the hosting category label (e.g. "static", "dapp").
	Category string `json:"category"`

	// Synthetic is true when the snapshot was fabricated locally after
	// a failed fetch rather than returned by the backend.
	Synthetic bool `json:"synthetic,omitempty"`
}

// Observer is a callback notified with the new [Snapshot] each time the
// tracked block identifier changes.
//
// Observers are invoked synchronously, in subscription order, on the poll
// cycle that detected the change. Panics within observers are recovered
// and logged with a correlation ID; they do not abort the fan-out or the
// poll cycle.
type Observer func(Snapshot)

// Synthesizer produces a fallback [Snapshot] when a poll fails.
//
// prev is the last snapshot the poller saw; seen is false before the
// first completed poll, in which case prev is the zero value. The
// returned snapshot is always marked Synthetic by the poller regardless
// of what the synthesizer sets.
type Synthesizer func(prev Snapshot, seen bool) Snapshot

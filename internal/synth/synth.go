package synth

import (
	"encoding/hex"
	"math/rand"
	"sync"
	"time"
)

const (
	blockIDPrefix = "block_"
	hashPrefix    = "0x"
	cidPrefix     = "Qm"

	blockIDBytes = 8
	hashBytes    = 32
	cidLength    = 44
)

// base58Alphabet matches the character set of CIDv0 identifiers.
const base58Alphabet = "123456789ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz"

// Categories are the hosting category labels assigned to synthesized
// block statuses and deployment records.
var Categories = []string{"static", "dapp", "archive"}

// Block is a synthesized block status.
//
// Block is the synth-internal representation, decoupled from the public
// blockwatch.Snapshot type to avoid a circular dependency.
type Block struct {
	BlockID   string
	Height    int64
	Hash      string
	CreatedAt time.Time
	Active    bool
	Category  string
}

// Generator produces plausible-looking random block hosting data.
//
// A single Generator backs both the poller's fallback path and the mock
// backend, so fabricated identifiers look the same everywhere. All
// methods are safe for concurrent use.
type Generator struct {
	mu  sync.Mutex
	rnd *rand.Rand
	now func() time.Time
}

// New creates a [Generator] seeded from the current time.
func New() *Generator {
	return NewSource(rand.NewSource(time.Now().UnixNano()), time.Now)
}

// NewSource creates a [Generator] with an explicit random source and
// clock. Tests use this for deterministic output.
func NewSource(src rand.Source, now func() time.Time) *Generator {
	return &Generator{
		rnd: rand.New(src),
		now: now,
	}
}

// Block synthesizes a fresh block status.
//
// prevHeight is the height of the last observed block, or zero when none
// has been seen; the returned height is always strictly greater so
// synthesized chains still look monotonic. The returned BlockID is
// freshly randomized and therefore differs from any previous identifier
// with overwhelming likelihood (not a guarantee).
func (g *Generator) Block(prevHeight int64) Block {
	g.mu.Lock()
	defer g.mu.Unlock()

	return Block{
		BlockID:   blockIDPrefix + g.hexLocked(blockIDBytes),
		Height:    prevHeight + 1 + int64(g.rnd.Intn(3)),
		Hash:      hashPrefix + g.hexLocked(hashBytes),
		CreatedAt: g.now(),
		Active:    true,
		Category:  Categories[g.rnd.Intn(len(Categories))],
	}
}

// BlockID returns a fresh random block identifier.
func (g *Generator) BlockID() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return blockIDPrefix + g.hexLocked(blockIDBytes)
}

// Hash returns a fresh random content hash string.
func (g *Generator) Hash() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return hashPrefix + g.hexLocked(hashBytes)
}

// CID returns a fresh random CIDv0-shaped identifier ("Qm" + base58).
func (g *Generator) CID() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	buf := make([]byte, 0, cidLength+len(cidPrefix))
	buf = append(buf, cidPrefix...)
	for i := 0; i < cidLength; i++ {
		buf = append(buf, base58Alphabet[g.rnd.Intn(len(base58Alphabet))])
	}
	return string(buf)
}

// Category returns a random hosting category label.
func (g *Generator) Category() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return Categories[g.rnd.Intn(len(Categories))]
}

// hexLocked returns n random bytes hex-encoded. Caller must hold g.mu.
func (g *Generator) hexLocked(n int) string {
	buf := make([]byte, n)
	// Read on math/rand never returns an error
	g.rnd.Read(buf)
	return hex.EncodeToString(buf)
}

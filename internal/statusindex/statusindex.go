// Package statusindex holds the Block Listener's shared view of chain state:
// a signature-keyed confirmation index and a monotonic slot counter.
package statusindex

import (
	"sync"
	"sync/atomic"

	"github.com/gagliardetto/solana-go"
)

// ConfirmationStatus mirrors the upstream chain's durability tiers.
type ConfirmationStatus int

const (
	Processed ConfirmationStatus = iota
	Confirmed
	Finalized
)

// strength orders ConfirmationStatus so a stronger status never loses to a
// weaker, later observation of the same signature.
func (c ConfirmationStatus) strength() int {
	switch c {
	case Finalized:
		return 2
	case Confirmed:
		return 1
	default:
		return 0
	}
}

// TransactionStatus is the value stored per signature.
type TransactionStatus struct {
	Slot               uint64
	Confirmations      uint64
	ConfirmationStatus ConfirmationStatus
	Err                *string
}

const shardCount = 64

type shard struct {
	mu      sync.RWMutex
	entries map[solana.Signature]TransactionStatus
}

// Index is a concurrent Signature -> TransactionStatus map sharded by the
// low bits of the signature so readers and writers on different keys never
// contend on the same lock.
type Index struct {
	shards [shardCount]*shard
}

// New returns an empty Index.
func New() *Index {
	idx := &Index{}
	for i := range idx.shards {
		idx.shards[i] = &shard{entries: make(map[solana.Signature]TransactionStatus)}
	}
	return idx
}

func (idx *Index) shardFor(sig solana.Signature) *shard {
	return idx.shards[sig[0]%shardCount]
}

// Upsert inserts or overwrites the entry for sig. An existing entry is
// overwritten only if the new status is at least as strong as the stored
// one ("strongest status wins" — see the status-monotonicity redesign).
func (idx *Index) Upsert(sig solana.Signature, status TransactionStatus) {
	s := idx.shardFor(sig)
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.entries[sig]; ok && existing.ConfirmationStatus.strength() > status.ConfirmationStatus.strength() {
		return
	}
	s.entries[sig] = status
}

// Get returns the stored status for sig, if any.
func (idx *Index) Get(sig solana.Signature) (TransactionStatus, bool) {
	s := idx.shardFor(sig)
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.entries[sig]
	return st, ok
}

// Has reports whether sig has been observed at all. The Sender uses this to
// decide whether a pending transaction is terminal.
func (idx *Index) Has(sig solana.Signature) bool {
	_, ok := idx.Get(sig)
	return ok
}

// Statuses returns the stored status for each signature, in the same order,
// with nil for signatures never observed. It mirrors the original bridge's
// batched get_signature_statuses lookup; nothing in this core calls it over
// RPC, but it is a real operation of the source system worth keeping intact.
func (idx *Index) Statuses(sigs []solana.Signature) []*TransactionStatus {
	out := make([]*TransactionStatus, len(sigs))
	for i, sig := range sigs {
		if st, ok := idx.Get(sig); ok {
			st := st
			out[i] = &st
		}
	}
	return out
}

// Prune removes entries whose slot is older than minSlot. It is the clean
// loop's bounded-eviction policy: a time- (here, slot-) bounded horizon tied
// to the current SlotCounter value.
func (idx *Index) Prune(minSlot uint64) (removed int) {
	for _, s := range idx.shards {
		s.mu.Lock()
		for sig, st := range s.entries {
			if st.Slot < minSlot {
				delete(s.entries, sig)
				removed++
			}
		}
		s.mu.Unlock()
	}
	return removed
}

// Len reports the total number of tracked signatures, for metrics/tests.
func (idx *Index) Len() int {
	n := 0
	for _, s := range idx.shards {
		s.mu.RLock()
		n += len(s.entries)
		s.mu.RUnlock()
	}
	return n
}

// SlotCounter is a monotonically increasing view of the latest observed
// slot. Writes use a compare-and-swap loop so a late or reordered
// notification can never regress it; reads are relaxed and may lag.
type SlotCounter struct {
	value atomic.Uint64
}

// Advance stores slot if it is greater than the current value. It returns
// true if the value was updated.
func (c *SlotCounter) Advance(slot uint64) bool {
	for {
		cur := c.value.Load()
		if slot <= cur {
			return false
		}
		if c.value.CompareAndSwap(cur, slot) {
			return true
		}
	}
}

// Load returns the current slot.
func (c *SlotCounter) Load() uint64 {
	return c.value.Load()
}

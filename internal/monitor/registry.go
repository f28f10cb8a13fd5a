package monitor

import (
	"bytes"
	"fmt"
	"iter"
	"sort"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	lru "github.com/hashicorp/golang-lru"
	"github.com/puzpuzpuz/xsync/v4"

	"poolMonitor/internal/model"
)

// Observation is one sighting of a pool account.
type Observation struct {
	Address    solana.PublicKey
	Owner      solana.PublicKey
	Slot       uint64
	DataLength int
	// Decoded is nil when the payload did not decode; the previous decode
	// is then kept.
	Decoded *model.DecodedPool
	// DecodeErr is set when the payload failed to decode.
	DecodeErr error
	SeenAt    time.Time
}

// Registry is the in-memory set of known pools keyed by address.
// Writes are serialized; reads never wait for writers. Updates are ordered
// by slot: an observation older than the stored one is rejected.
type Registry struct {
	mu      sync.Mutex
	pools   *xsync.Map[solana.PublicKey, model.PoolRecord]
	recency *lru.Cache
}

// NewRegistry builds a registry. maxPools > 0 bounds it, evicting the pool
// that was updated least recently.
func NewRegistry(maxPools int) (*Registry, error) {
	r := &Registry{pools: xsync.NewMap[solana.PublicKey, model.PoolRecord]()}
	if maxPools > 0 {
		cache, err := lru.NewWithEvict(maxPools, func(key interface{}, _ interface{}) {
			r.pools.Delete(key.(solana.PublicKey))
		})
		if err != nil {
			return nil, fmt.Errorf("create registry bound: %w", err)
		}
		r.recency = cache
	}
	return r, nil
}

// Upsert inserts or updates the record for obs.Address. It reports false,
// leaving the stored record untouched, when obs.Slot is lower than the
// stored slot.
func (r *Registry) Upsert(obs Observation) (model.PoolRecord, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	applied := false
	record, _ := r.pools.Compute(obs.Address, func(old model.PoolRecord, loaded bool) (model.PoolRecord, xsync.ComputeOp) {
		if loaded && obs.Slot < old.Slot {
			return old, xsync.CancelOp
		}

		next := old
		if !loaded {
			next = model.PoolRecord{Address: obs.Address, FirstSeenAt: obs.SeenAt}
		}
		next.Owner = obs.Owner
		next.Slot = obs.Slot
		next.LastSeenAt = obs.SeenAt
		next.DataLength = obs.DataLength
		next.Updates++
		if obs.Decoded != nil {
			next.Decoded = obs.Decoded
		}
		next.DecodeError = ""
		if obs.DecodeErr != nil {
			next.DecodeError = obs.DecodeErr.Error()
		}

		applied = true
		return next, xsync.UpdateOp
	})

	if applied && r.recency != nil {
		r.recency.Add(obs.Address, struct{}{})
	}
	return record, applied
}

func (r *Registry) Get(address solana.PublicKey) (model.PoolRecord, bool) {
	return r.pools.Load(address)
}

func (r *Registry) Size() int {
	return r.pools.Size()
}

// Snapshot copies the current records ordered by slot, then address.
// Decoded pools are shared; they are never mutated once stored.
func (r *Registry) Snapshot() []model.PoolRecord {
	out := make([]model.PoolRecord, 0, r.pools.Size())
	r.pools.Range(func(_ solana.PublicKey, record model.PoolRecord) bool {
		out = append(out, record)
		return true
	})
	sort.Slice(out, func(i, j int) bool {
		if out[i].Slot != out[j].Slot {
			return out[i].Slot < out[j].Slot
		}
		return bytes.Compare(out[i].Address[:], out[j].Address[:]) < 0
	})
	return out
}

// All returns a sequence over a snapshot taken now. The sequence can be
// ranged over any number of times and never reflects later writes.
func (r *Registry) All() iter.Seq[model.PoolRecord] {
	snapshot := r.Snapshot()
	return func(yield func(model.PoolRecord) bool) {
		for _, record := range snapshot {
			if !yield(record) {
				return
			}
		}
	}
}

// Recent returns up to limit records with the highest slots, newest first.
// A non-positive limit returns every record.
func (r *Registry) Recent(limit int) []model.PoolRecord {
	snapshot := r.Snapshot()
	out := make([]model.PoolRecord, 0, len(snapshot))
	for i := len(snapshot) - 1; i >= 0; i-- {
		if limit > 0 && len(out) == limit {
			break
		}
		out = append(out, snapshot[i])
	}
	return out
}

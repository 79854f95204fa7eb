package engine

import "github.com/puzpuzpuz/xsync/v3"

// DedupIndex maps a normalized query's hash to the slot_id currently
// serving it, so identical subscriptions share one evaluator slot
// (spec.md §4.6 dedup). Backed by xsync.MapOf the same way the teacher's
// shared registries are, grounded on db/memory_stores_xsync.go.
type DedupIndex struct {
	byHash *xsync.MapOf[uint64, string]
}

// NewDedupIndex creates an empty dedup index.
func NewDedupIndex() *DedupIndex {
	return &DedupIndex{byHash: xsync.NewMapOf[uint64, string]()}
}

// Lookup returns the slot_id currently serving queryHash, if any.
func (d *DedupIndex) Lookup(queryHash uint64) (string, bool) {
	return d.byHash.Load(queryHash)
}

// Register records that slotID now serves queryHash.
func (d *DedupIndex) Register(queryHash uint64, slotID string) {
	d.byHash.Store(queryHash, slotID)
}

// Unregister removes the entry for queryHash, but only if it still points
// at slotID — prevents a slow Unregister racing a faster
// Register-for-a-new-slot from deleting the wrong entry.
func (d *DedupIndex) Unregister(queryHash uint64, slotID string) {
	d.byHash.Compute(queryHash, func(cur string, loaded bool) (string, bool) {
		if !loaded || cur != slotID {
			return cur, !loaded
		}
		return "", true
	})
}

// Len reports the number of distinct queries currently tracked.
func (d *DedupIndex) Len() int {
	return d.byHash.Size()
}

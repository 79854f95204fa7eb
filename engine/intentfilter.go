package engine

import (
	"encoding/binary"
	"sync"

	"github.com/cespare/xxhash/v2"
	cuckoo "github.com/linvon/cuckoo-filter"
)

// Cuckoo filter sizing for the dispatch fast path: far fewer distinct base
// tables are ever tracked than IntentFilter's row-key cardinality, so this
// is sized for MaxTrackedTables rather than adapted/db/intent_filter.go's
// million-entry row-key filter.
const (
	tableFilterBucketSize      = 4
	tableFilterFingerprintSize = 16
)

// tableInterestFilter is a probabilistic "does any slot watch this table"
// pre-check gating TriggerDispatch's full per-slot scan, adapted from
// db/intent_filter.go's IntentFilter fast-path-miss design: a filter MISS
// means definitely no slot cares, skipping the TrackedTable lookup and
// per-slot iteration entirely.
type tableInterestFilter struct {
	mu     sync.RWMutex
	filter *cuckoo.Filter
	counts map[uint64]int // refcount per table hash, since the cuckoo filter itself has no refcounting
}

func newTableInterestFilter(numBuckets uint) *tableInterestFilter {
	if numBuckets == 0 {
		numBuckets = 1024
	}
	return &tableInterestFilter{
		filter: cuckoo.NewFilter(tableFilterBucketSize, tableFilterFingerprintSize, numBuckets, cuckoo.TableTypePacked),
		counts: make(map[uint64]int),
	}
}

func tableHash(table string) uint64 {
	return xxhash.Sum64String(table)
}

// MightWatch returns false only when no slot could possibly be interested
// in table; true means "check the real TrackedTable".
func (f *tableInterestFilter) MightWatch(table string) bool {
	h := tableHash(table)
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, h)

	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.filter.Contain(buf)
}

// Add marks table as watched; safe to call repeatedly (refcounted).
func (f *tableInterestFilter) Add(table string) {
	h := tableHash(table)
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, h)

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.counts[h] == 0 {
		f.filter.Add(buf)
	}
	f.counts[h]++
}

// Remove unmarks one reference to table, removing it from the filter once
// its refcount drops to zero.
func (f *tableInterestFilter) Remove(table string) {
	h := tableHash(table)
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, h)

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.counts[h] <= 1 {
		delete(f.counts, h)
		f.filter.Delete(buf)
		return
	}
	f.counts[h]--
}

// Package id derives this engine instance's stable identity and mints
// slot_id strings from it, grounded on cfg's generateNodeID pattern
// (machineid.ProtectedID hashed through fnv) so slots stay distinguishable
// across engine instances sharing a log stream.
package id

import (
	"fmt"
	"hash/fnv"
	"sync/atomic"

	"github.com/denisbrodbeck/machineid"
)

// EngineID is this process's stable identity, computed once at package init.
var EngineID = generateEngineID()

func generateEngineID() string {
	mid, err := machineid.ProtectedID("pg_subscribe")
	if err != nil {
		mid = "unidentified"
	}

	h := fnv.New64a()
	_, _ = h.Write([]byte(mid))
	return fmt.Sprintf("%08x", uint32(h.Sum64()))
}

// Generator mints slot identifiers that are stable for a slot's lifetime
// (spec.md §3) and carry the EngineID as a prefix.
type Generator struct {
	counter atomic.Uint64
}

// NewGenerator creates a slot_id generator for one engine instance.
func NewGenerator() *Generator {
	return &Generator{}
}

// NextSlotID returns a new, process-unique slot_id string.
func (g *Generator) NextSlotID() string {
	n := g.counter.Add(1)
	return fmt.Sprintf("%s-%d", EngineID, n)
}

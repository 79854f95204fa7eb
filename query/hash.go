package query

import "github.com/cespare/xxhash/v2"

// Hash fingerprints a normalized query for the dedup index. Two
// subscriptions with the same hash are considered the same live query and
// join the same slot (spec.md §4.1).
func Hash(normalized string) uint64 {
	return xxhash.Sum64String(normalized)
}

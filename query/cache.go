package query

import lru "github.com/hashicorp/golang-lru/v2"

// Analyzer caches QueryFacts by query hash so repeat subscriptions to the
// same normalized query (the common case once a slot is warm) skip
// re-parsing, grounded on protocol/determinism/schema.go's LRU-cached
// schema lookups.
type Analyzer struct {
	cache *lru.Cache[uint64, *QueryFacts]
}

// NewAnalyzer builds an Analyzer with room for size distinct query shapes.
func NewAnalyzer(size int) *Analyzer {
	if size <= 0 {
		size = 1
	}
	c, _ := lru.New[uint64, *QueryFacts](size)
	return &Analyzer{cache: c}
}

// Analyze normalizes sqlText, hashes it, and returns cached QueryFacts if
// this exact normalized form was analyzed before. Returns the facts and the
// hash the caller should use for dedup lookups.
func (a *Analyzer) Analyze(sqlText string) (*QueryFacts, uint64) {
	normalized := Normalize(sqlText)
	h := Hash(normalized)

	if f, ok := a.cache.Get(h); ok {
		return f, h
	}

	f := Analyze(sqlText)
	a.cache.Add(h, f)
	return f, h
}

// Len reports the number of distinct query shapes currently cached.
func (a *Analyzer) Len() int {
	return a.cache.Len()
}

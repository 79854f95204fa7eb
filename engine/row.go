package engine

import (
	"fmt"
	"sort"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// rowKey builds a stable string key for a row: either the identity tuple
// (when identity columns were supplied to Subscribe) or a content
// fingerprint over every column, sorted by column name so key order in the
// source map never changes the key.
func rowKey(row map[string]any, identityColumns []string) string {
	if len(identityColumns) > 0 {
		var b strings.Builder
		for i, col := range identityColumns {
			if i > 0 {
				b.WriteByte('\x1f')
			}
			fmt.Fprintf(&b, "%v", row[col])
		}
		return b.String()
	}
	return rowFingerprint(row)
}

// rowFingerprint hashes a row's full content, independent of map iteration
// order, so two occurrences of the same row data collide on purpose: the
// caller is responsible for the multiset occurrence-ordinal suffix that
// keeps physically distinct identical rows from merging into one (spec.md
// §9, second open question; SPEC_FULL.md §6 picks the multiset reading).
func rowFingerprint(row map[string]any) string {
	cols := make([]string, 0, len(row))
	for c := range row {
		cols = append(cols, c)
	}
	sort.Strings(cols)

	h := xxhash.New()
	for _, c := range cols {
		_, _ = h.WriteString(c)
		_, _ = h.Write([]byte{0})
		fmt.Fprintf(h, "%v", row[c])
		_, _ = h.Write([]byte{0})
	}
	return fmt.Sprintf("%016x", h.Sum64())
}

// occurrenceKeyer assigns a distinct key to each physical occurrence of a
// row sharing the same fingerprint, realizing the multiset interpretation:
// two content-identical rows are two distinct occurrences, not one.
type occurrenceKeyer struct {
	seen map[string]int
}

func newOccurrenceKeyer() *occurrenceKeyer {
	return &occurrenceKeyer{seen: make(map[string]int)}
}

func (k *occurrenceKeyer) next(fingerprint string) string {
	n := k.seen[fingerprint]
	k.seen[fingerprint] = n + 1
	return fmt.Sprintf("%s#%d", fingerprint, n)
}

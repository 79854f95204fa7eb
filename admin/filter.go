package admin

import (
	"fmt"

	"github.com/gobwas/glob"
)

// TableFilter restricts pg_subscribe_list_active() results to subscriptions
// referencing at least one table matching one of a set of glob patterns,
// adapted from publisher/filter.go's GlobFilter (empty pattern set matches
// everything).
type TableFilter struct {
	globs []glob.Glob
}

// NewTableFilter compiles patterns into a TableFilter.
func NewTableFilter(patterns []string) (*TableFilter, error) {
	f := &TableFilter{globs: make([]glob.Glob, 0, len(patterns))}
	for _, p := range patterns {
		g, err := glob.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid table pattern %q: %w", p, err)
		}
		f.globs = append(f.globs, g)
	}
	return f, nil
}

// MatchAny reports whether any of tables matches the filter; an empty
// filter matches everything.
func (f *TableFilter) MatchAny(tables []string) bool {
	if len(f.globs) == 0 {
		return true
	}
	for _, t := range tables {
		for _, g := range f.globs {
			if g.Match(t) {
				return true
			}
		}
	}
	return false
}

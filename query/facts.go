package query

import (
	"strings"

	rqlitesql "github.com/rqlite/sql"
)

// Strategy selects how a slot's evaluator re-derives the subscribed result
// after a dispatch wakes it (spec.md §4.2).
type Strategy int

const (
	// StrategySnapshotDiff re-executes the full SELECT and diffs the new
	// result set against the previous one. Always correct, always safe.
	StrategySnapshotDiff Strategy = iota
	// StrategyLivePredicate evaluates the query's WHERE clause directly
	// against the row a trigger reported, skipping re-execution entirely.
	// Only chosen for single-table, filter-only SELECTs; a SELECT with no
	// WHERE clause is served by StrategySnapshotDiff.
	StrategyLivePredicate
)

func (s Strategy) String() string {
	if s == StrategyLivePredicate {
		return "live_predicate"
	}
	return "snapshot_diff"
}

// QueryFacts is the analyzer's verdict on a subscribed query: whether it is
// supported at all, which base tables it touches, and which evaluation
// strategy the engine should assign to it.
type QueryFacts struct {
	Valid            bool
	InvalidReason    string
	ReferencedTables []string
	HasJoin          bool
	HasOuterJoin     bool
	HasAggregation   bool
	HasGroupBy       bool
	HasWindow        bool
	HasSubquery      bool
	HasCTE           bool
	HasDistinct      bool
	Complexity       int
	Strategy         Strategy
	WherePredicate   *WhereFilter
}

// NeedsIdentityColumns reports the Open Question decision recorded in
// SPEC_FULL.md §6: NULL-introducing outer joins, CTEs and windows are only
// servable when the caller supplies identity_columns to key the diff by;
// without them Subscribe must reject as UnsupportedQuery rather than
// silently fall back to row-fingerprint diffing.
func (f *QueryFacts) NeedsIdentityColumns() bool {
	return f.HasOuterJoin || f.HasCTE || f.HasWindow
}

// aggregateFunctions mirrors the set of SQL aggregates that make a query's
// result row count collapse relative to its source rows, grounded on the
// aggregate subset of protocol/determinism/detector.go's deterministic
// function whitelist.
var aggregateFunctions = map[string]bool{
	"count": true, "sum": true, "avg": true, "min": true, "max": true,
	"total": true, "group_concat": true,
}

// Analyze parses sqlText and derives QueryFacts. It never rejects a query
// for containing an outer join, CTE or window on its own — NeedsIdentityColumns
// flags those for the caller, which decides whether identity_columns were
// supplied and whether to reject as UnsupportedQuery.
func Analyze(sqlText string) *QueryFacts {
	f := &QueryFacts{}

	parser := rqlitesql.NewParser(strings.NewReader(sqlText))
	stmt, err := parser.ParseStatement()
	if err != nil {
		f.InvalidReason = "parse error: " + err.Error()
		return f
	}

	sel, ok := stmt.(*rqlitesql.SelectStatement)
	if !ok {
		f.InvalidReason = "not a single SELECT statement"
		return f
	}

	normalized := Normalize(sqlText)
	toks := significantTokens(normalized)

	f.HasCTE = len(toks) > 0 && toks[0].Kind == KindWord && toks[0].Lower == "with"
	f.HasDistinct = containsWord(toks, "distinct")
	f.HasGroupBy = containsPhrase(toks, "group", "by")
	f.HasWindow = containsWord(toks, "window") || containsOverClause(toks)
	extractTables(toks, f)

	walkFactsVisitor(sel, f)

	if len(f.ReferencedTables) == 0 {
		f.InvalidReason = "no FROM clause"
		return f
	}

	f.Valid = true
	f.Complexity = complexityScore(f)

	if sel.WhereExpr != nil && !f.HasJoin && !f.HasAggregation && !f.HasGroupBy &&
		!f.HasWindow && !f.HasSubquery && !f.HasCTE && !f.HasDistinct && len(f.ReferencedTables) == 1 {
		whereText := extractWhereClauseText(normalized)
		pred := ParseWhereFilter(whereText)
		if !pred.HasUnknown() {
			f.WherePredicate = pred
			f.Strategy = StrategyLivePredicate
			return f
		}
	}

	f.Strategy = StrategySnapshotDiff
	return f
}

// walkFactsVisitor reuses the Visit/VisitEnd pattern protocol/determinism's
// deterministicChecker established for this library: type-switch on the
// concrete AST node and track entry depth so the statement's own root
// SelectStatement node isn't mistaken for a nested subquery. It only ever
// sets HasSubquery and HasAggregation — every other fact comes from the
// token scan above. rqlite/sql exposes join/group-by/window/CTE structure
// through SelectStatement's own fields (Source, GroupByExprs, WithClause,
// and friends), but nothing in this codebase's corpus — including the
// protocol/determinism checker this visitor is grounded on — ever reads
// them, so there's no precedent here for the exact shapes those fields
// take. Re-scanning the normalized token stream, the same representation
// Normalize/significantTokens already produce for extractWhereClauseText,
// keeps every structural fact (including CTE resolution) on one code path
// instead of splitting it between two derivations that could disagree.
type factsVisitor struct {
	depth int
	facts *QueryFacts
}

func (v *factsVisitor) Visit(node rqlitesql.Node) (rqlitesql.Visitor, rqlitesql.Node, error) {
	v.depth++
	switch n := node.(type) {
	case *rqlitesql.SelectStatement:
		if v.depth > 1 {
			v.facts.HasSubquery = true
		}
	case *rqlitesql.ParenExpr:
		if _, ok := n.X.(rqlitesql.SelectExpr); ok {
			v.facts.HasSubquery = true
		}
	case *rqlitesql.ExprList:
		for _, expr := range n.Exprs {
			if _, ok := expr.(rqlitesql.SelectExpr); ok {
				v.facts.HasSubquery = true
				break
			}
		}
	case *rqlitesql.Call:
		name := strings.ToLower(n.Name.Name)
		if aggregateFunctions[name] {
			v.facts.HasAggregation = true
		}
	}
	return v, node, nil
}

func (v *factsVisitor) VisitEnd(node rqlitesql.Node) (rqlitesql.Node, error) {
	v.depth--
	return node, nil
}

func walkFactsVisitor(stmt rqlitesql.Statement, f *QueryFacts) {
	rqlitesql.Walk(&factsVisitor{facts: f}, stmt)
}

// complexityScore implements the cost heuristic supplemented from
// original_source/src/core/complexity.rs: base 10, +10 per referenced
// table, bonuses for each structural feature, capped at 100.
func complexityScore(f *QueryFacts) int {
	score := 10 + 10*len(f.ReferencedTables)
	if f.HasJoin {
		score += 15
	}
	if f.HasAggregation {
		score += 10
	}
	if f.HasGroupBy {
		score += 10
	}
	if f.HasWindow {
		score += 20
	}
	if f.HasSubquery {
		score += 20
	}
	if f.HasCTE {
		score += 15
	}
	if score > 100 {
		score = 100
	}
	return score
}

func containsWord(toks []Token, word string) bool {
	for _, t := range toks {
		if t.Kind == KindWord && t.Lower == word {
			return true
		}
	}
	return false
}

func containsPhrase(toks []Token, first, second string) bool {
	for i := 0; i+1 < len(toks); i++ {
		if toks[i].Kind == KindWord && toks[i].Lower == first &&
			toks[i+1].Kind == KindWord && toks[i+1].Lower == second {
			return true
		}
	}
	return false
}

func containsOverClause(toks []Token) bool {
	for i := 0; i+1 < len(toks); i++ {
		if toks[i].Kind == KindWord && toks[i].Lower == "over" &&
			toks[i+1].Kind == KindPunct && toks[i+1].Text == "(" {
			return true
		}
	}
	return false
}

// clauseBoundaries are the keywords that end a FROM/JOIN source list.
var clauseBoundaries = map[string]bool{
	"where": true, "group": true, "having": true, "order": true,
	"limit": true, "offset": true, "union": true, "intersect": true,
	"except": true, "window": true,
}

// extractTables walks the token stream for FROM/JOIN source lists, then,
// for CTE queries, resolves every CTE name reported by that walk to the
// base tables its WITH-clause body itself references (transitively, since
// one CTE may select from another) — spec.md §4.2's "referenced_tables is
// the transitive closure over CTEs: only base tables".
func extractTables(toks []Token, f *QueryFacts) {
	seen := map[string]bool{}
	depth := 0
	sawOuterModifier := false

	for i := 0; i < len(toks); i++ {
		t := toks[i]
		if t.Kind == KindPunct && t.Text == "(" {
			depth++
			continue
		}
		if t.Kind == KindPunct && t.Text == ")" {
			depth--
			continue
		}
		if depth > 0 {
			continue
		}
		if t.Kind != KindWord {
			sawOuterModifier = false
			continue
		}
		if t.Lower == "left" || t.Lower == "right" || t.Lower == "full" || t.Lower == "outer" {
			sawOuterModifier = true
			continue
		}
		if t.Lower == "inner" || t.Lower == "cross" {
			sawOuterModifier = false
			continue
		}
		isFrom := t.Lower == "from"
		isJoin := t.Lower == "join"
		if !isFrom && !isJoin {
			sawOuterModifier = false
			continue
		}
		if isJoin {
			f.HasJoin = true
			if sawOuterModifier {
				f.HasOuterJoin = true
			}
		}
		sawOuterModifier = false

		j := i + 1
		sawOuterMid := false
		for j < len(toks) {
			// skip a source list: name [AS alias] (, name [AS alias])*
			for j < len(toks) && (toks[j].Kind == KindSpace) {
				j++
			}
			if j >= len(toks) {
				break
			}
			nameTok := toks[j]
			if nameTok.Kind == KindWord && nameTok.Lower == "join" {
				f.HasJoin = true
				if sawOuterMid {
					f.HasOuterJoin = true
					sawOuterMid = false
				}
				j++
				continue
			}
			if nameTok.Kind == KindWord && (nameTok.Lower == "left" || nameTok.Lower == "right" || nameTok.Lower == "full" || nameTok.Lower == "outer") {
				sawOuterMid = true
				j++
				continue
			}
			if nameTok.Kind == KindWord && (nameTok.Lower == "inner" ||
				nameTok.Lower == "cross") {
				sawOuterMid = false
				j++
				continue
			}
			if nameTok.Kind == KindPunct && nameTok.Text == "(" {
				// derived table/subquery source: skip the parenthesized group
				d := 1
				j++
				for j < len(toks) && d > 0 {
					if toks[j].Kind == KindPunct && toks[j].Text == "(" {
						d++
					} else if toks[j].Kind == KindPunct && toks[j].Text == ")" {
						d--
					}
					j++
				}
			} else if nameTok.Kind == KindWord || nameTok.Kind == KindQuotedIdent {
				name := identName(nameTok)
				j++
				// qualified name schema.table
				if j < len(toks) && toks[j].Kind == KindPunct && toks[j].Text == "." {
					j++
					if j < len(toks) && (toks[j].Kind == KindWord || toks[j].Kind == KindQuotedIdent) {
						name = identName(toks[j])
						j++
					}
				}
				if !clauseBoundaries[strings.ToLower(name)] {
					seen[name] = true
				}
				// optional alias (bare identifier or AS ident), and an ON
				// clause for explicit JOINs; stop this source at the next
				// comma, JOIN, clause boundary, or end.
				for j < len(toks) {
					nt := toks[j]
					if nt.Kind == KindWord && nt.Lower == "as" {
						j++
						continue
					}
					if nt.Kind == KindWord && clauseBoundaries[nt.Lower] {
						break
					}
					if nt.Kind == KindWord && nt.Lower == "join" {
						break
					}
					if nt.Kind == KindWord && (nt.Lower == "left" || nt.Lower == "right" || nt.Lower == "full" ||
						nt.Lower == "outer" || nt.Lower == "inner" || nt.Lower == "cross") {
						break // join modifier: leave it for the source loop above
					}
					if nt.Kind == KindWord && (nt.Lower == "on" || nt.Lower == "using") {
						// consume the join condition up to the next comma/JOIN/boundary
						j++
						d := 0
						for j < len(toks) {
							if toks[j].Kind == KindPunct && toks[j].Text == "(" {
								d++
							} else if toks[j].Kind == KindPunct && toks[j].Text == ")" {
								if d == 0 {
									break
								}
								d--
							} else if d == 0 && toks[j].Kind == KindPunct && toks[j].Text == "," {
								break
							} else if d == 0 && toks[j].Kind == KindWord && (toks[j].Lower == "join" || clauseBoundaries[toks[j].Lower]) {
								break
							}
							j++
						}
						continue
					}
					if nt.Kind == KindPunct && nt.Text == "," {
						j++
						break
					}
					if nt.Kind == KindWord || nt.Kind == KindQuotedIdent {
						// alias token, consume and keep scanning this source
						j++
						continue
					}
					j++
				}
				continue
			} else {
				break
			}
			if j < len(toks) && toks[j].Kind == KindWord && clauseBoundaries[toks[j].Lower] {
				break
			}
		}
		i = j - 1
	}

	if !f.HasCTE {
		for name := range seen {
			f.ReferencedTables = append(f.ReferencedTables, name)
		}
		return
	}

	defs := cteBodyTables(toks)
	resolved := map[string]bool{}
	for name := range seen {
		resolveCTEName(name, defs, map[string]bool{}, resolved)
	}
	for name := range resolved {
		f.ReferencedTables = append(f.ReferencedTables, name)
	}
}

// cteBodyTables parses a WITH clause's CTE definitions ("name [(cols)] AS
// ( body )", comma-separated, optional RECURSIVE) and returns, for each CTE
// name, the table/CTE names its own body's FROM/JOIN list references. This
// is one resolution level: a body naming another CTE is resolved later by
// resolveCTEName.
func cteBodyTables(toks []Token) map[string][]string {
	defs := map[string][]string{}
	if len(toks) == 0 || toks[0].Kind != KindWord || toks[0].Lower != "with" {
		return defs
	}

	i := 1
	if i < len(toks) && toks[i].Kind == KindWord && toks[i].Lower == "recursive" {
		i++
	}

	for i < len(toks) {
		if toks[i].Kind != KindWord && toks[i].Kind != KindQuotedIdent {
			break
		}
		name := identName(toks[i])
		i++

		// optional column list: (col1, col2, ...)
		if i < len(toks) && toks[i].Kind == KindPunct && toks[i].Text == "(" {
			d := 1
			i++
			for i < len(toks) && d > 0 {
				if toks[i].Kind == KindPunct && toks[i].Text == "(" {
					d++
				} else if toks[i].Kind == KindPunct && toks[i].Text == ")" {
					d--
				}
				i++
			}
		}

		if !(i < len(toks) && toks[i].Kind == KindWord && toks[i].Lower == "as") {
			break
		}
		i++
		if !(i < len(toks) && toks[i].Kind == KindPunct && toks[i].Text == "(") {
			break
		}
		i++ // consume the CTE body's opening paren

		start := i
		d := 1
		for i < len(toks) && d > 0 {
			if toks[i].Kind == KindPunct && toks[i].Text == "(" {
				d++
			} else if toks[i].Kind == KindPunct && toks[i].Text == ")" {
				d--
				if d == 0 {
					break
				}
			}
			i++
		}
		body := toks[start:i]
		if i < len(toks) {
			i++ // consume the CTE body's closing paren
		}

		bodyFacts := &QueryFacts{}
		extractTables(body, bodyFacts)
		defs[name] = bodyFacts.ReferencedTables

		if i < len(toks) && toks[i].Kind == KindPunct && toks[i].Text == "," {
			i++
			continue
		}
		break
	}

	return defs
}

// resolveCTEName expands name into the set of real base tables it
// transitively resolves to: if name isn't a CTE, it is itself a base
// table; otherwise every name its body references is resolved in turn.
// visited guards against a self-referencing RECURSIVE CTE cycling forever.
func resolveCTEName(name string, defs map[string][]string, visited map[string]bool, out map[string]bool) {
	if visited[name] {
		return
	}
	visited[name] = true

	refs, isCTE := defs[name]
	if !isCTE {
		out[name] = true
		return
	}
	for _, ref := range refs {
		resolveCTEName(ref, defs, visited, out)
	}
}

// extractWhereClauseText returns the substring of a normalized query
// between WHERE and the next top-level clause boundary.
func extractWhereClauseText(normalized string) string {
	toks := significantTokens(normalized)
	start := -1
	depth := 0
	for i, t := range toks {
		if t.Kind == KindPunct && t.Text == "(" {
			depth++
		} else if t.Kind == KindPunct && t.Text == ")" {
			depth--
		}
		if depth == 0 && t.Kind == KindWord && t.Lower == "where" {
			start = i + 1
			break
		}
	}
	if start < 0 {
		return ""
	}
	depth = 0
	end := len(toks)
	for i := start; i < len(toks); i++ {
		t := toks[i]
		if t.Kind == KindPunct && t.Text == "(" {
			depth++
		} else if t.Kind == KindPunct && t.Text == ")" {
			depth--
		}
		if depth == 0 && t.Kind == KindWord && clauseBoundaries[t.Lower] {
			end = i
			break
		}
	}
	var b strings.Builder
	for i := start; i < end; i++ {
		if i > start {
			b.WriteByte(' ')
		}
		b.WriteString(toks[i].Text)
	}
	return b.String()
}

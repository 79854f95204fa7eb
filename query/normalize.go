package query

import "strings"

// keywords are case-folded by Normalize; every other word token (table
// names, column names, aliases) keeps the caller's original casing so
// identifiers stay comparable to the host database's catalog.
var keywords = map[string]bool{
	"select": true, "from": true, "where": true, "join": true, "inner": true,
	"left": true, "right": true, "full": true, "outer": true, "cross": true,
	"on": true, "group": true, "by": true, "having": true, "order": true,
	"asc": true, "desc": true, "limit": true, "offset": true, "as": true,
	"and": true, "or": true, "not": true, "in": true, "is": true, "null": true,
	"like": true, "glob": true, "between": true, "distinct": true, "all": true,
	"case": true, "when": true, "then": true, "else": true, "end": true,
	"union": true, "intersect": true, "except": true, "with": true,
	"recursive": true, "exists": true, "over": true, "partition": true,
	"window": true, "values": true, "default": true, "true": true, "false": true,
}

// Normalize produces the canonical text used for hashing and dedup
// matching: keywords lowercased, runs of whitespace and comments collapsed
// to single spaces, trailing semicolons stripped. String and quoted
// identifier literals are copied verbatim, including case, since they are
// data rather than syntax.
func Normalize(sql string) string {
	toks := Tokenize(sql)
	var b strings.Builder
	lastWasSpace := true // suppresses a leading space in the output

	for _, t := range toks {
		switch t.Kind {
		case KindComment:
			// Comments contribute no syntax; treat as a separating space.
			if !lastWasSpace {
				b.WriteByte(' ')
				lastWasSpace = true
			}
		case KindSpace:
			if !lastWasSpace {
				b.WriteByte(' ')
				lastWasSpace = true
			}
		case KindWord:
			if keywords[t.Lower] {
				b.WriteString(t.Lower)
			} else {
				b.WriteString(t.Text)
			}
			lastWasSpace = false
		case KindEOF:
			// nothing to emit
		default:
			b.WriteString(t.Text)
			lastWasSpace = false
		}
	}

	out := strings.TrimSpace(b.String())
	out = strings.TrimRight(out, "; ")
	return out
}

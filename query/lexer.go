// Package query implements the change-propagation engine's query analyzer
// and dedup layer: normalization/hashing (C2) and the SQL-shape analyzer
// that decides a subscription's evaluation strategy (C3).
package query

import "strings"

// Kind classifies a lexical token produced by Tokenize.
type Kind int

const (
	KindWord Kind = iota
	KindNumber
	KindString      // 'single quoted literal'
	KindQuotedIdent // "double quoted", `backtick`, [bracket] identifiers
	KindPunct
	KindSpace
	KindComment
	KindEOF
)

// Token is one lexical unit of a SQL statement. Normalize and the analyzer
// both work off the same token stream so keyword/identifier/literal
// classification never drifts between the two.
type Token struct {
	Kind  Kind
	Text  string // exact source text, including delimiters for quoted kinds
	Lower string // lowercased Text, only populated for KindWord
}

// Tokenize performs a single forgiving pass over SQL text. It never errors:
// anything it cannot classify becomes a single-byte KindPunct token, which
// keeps Normalize and the analyzer's heuristics total functions over
// arbitrary caller input (spec.md §4.2's analyzer still returns valid=false
// for genuinely malformed SQL, but that decision is made by the real parser,
// not the lexer).
func Tokenize(s string) []Token {
	var toks []Token
	n := len(s)
	i := 0

	isWordStart := func(b byte) bool {
		return b == '_' || (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
	}
	isWordPart := func(b byte) bool {
		return isWordStart(b) || (b >= '0' && b <= '9')
	}
	isDigit := func(b byte) bool { return b >= '0' && b <= '9' }
	isSpace := func(b byte) bool {
		return b == ' ' || b == '\t' || b == '\n' || b == '\r' || b == '\f' || b == '\v'
	}

	for i < n {
		c := s[i]

		switch {
		case isSpace(c):
			j := i
			for j < n && isSpace(s[j]) {
				j++
			}
			toks = append(toks, Token{Kind: KindSpace, Text: s[i:j]})
			i = j

		case c == '-' && i+1 < n && s[i+1] == '-':
			j := i + 2
			for j < n && s[j] != '\n' {
				j++
			}
			toks = append(toks, Token{Kind: KindComment, Text: s[i:j]})
			i = j

		case c == '/' && i+1 < n && s[i+1] == '*':
			j := i + 2
			for j+1 < n && !(s[j] == '*' && s[j+1] == '/') {
				j++
			}
			if j+1 < n {
				j += 2
			} else {
				j = n
			}
			toks = append(toks, Token{Kind: KindComment, Text: s[i:j]})
			i = j

		case c == '\'':
			j := scanQuoted(s, i, '\'')
			toks = append(toks, Token{Kind: KindString, Text: s[i:j]})
			i = j

		case c == '"':
			j := scanQuoted(s, i, '"')
			toks = append(toks, Token{Kind: KindQuotedIdent, Text: s[i:j]})
			i = j

		case c == '`':
			j := scanQuoted(s, i, '`')
			toks = append(toks, Token{Kind: KindQuotedIdent, Text: s[i:j]})
			i = j

		case c == '[':
			j := i + 1
			for j < n && s[j] != ']' {
				j++
			}
			if j < n {
				j++
			}
			toks = append(toks, Token{Kind: KindQuotedIdent, Text: s[i:j]})
			i = j

		case isWordStart(c):
			j := i + 1
			for j < n && isWordPart(s[j]) {
				j++
			}
			word := s[i:j]
			toks = append(toks, Token{Kind: KindWord, Text: word, Lower: strings.ToLower(word)})
			i = j

		case isDigit(c):
			j := i + 1
			for j < n && (isDigit(s[j]) || s[j] == '.' || s[j] == 'e' || s[j] == 'E') {
				j++
			}
			toks = append(toks, Token{Kind: KindNumber, Text: s[i:j]})
			i = j

		default:
			j := scanPunct(s, i)
			toks = append(toks, Token{Kind: KindPunct, Text: s[i:j]})
			i = j
		}
	}

	toks = append(toks, Token{Kind: KindEOF})
	return toks
}

// scanQuoted scans a quoted span starting at i (s[i] == quote), treating a
// doubled quote as an escaped quote character, and returns the index just
// past the closing quote (or n if unterminated).
func scanQuoted(s string, i int, quote byte) int {
	n := len(s)
	j := i + 1
	for j < n {
		if s[j] == quote {
			if j+1 < n && s[j+1] == quote {
				j += 2
				continue
			}
			return j + 1
		}
		j++
	}
	return n
}

// multiCharPuncts lists operator lexemes longer than one byte, longest first
// so greedy matching picks the right one.
var multiCharPuncts = []string{"<=", ">=", "<>", "!=", "||", "=="}

func scanPunct(s string, i int) int {
	for _, p := range multiCharPuncts {
		if strings.HasPrefix(s[i:], p) {
			return i + len(p)
		}
	}
	return i + 1
}

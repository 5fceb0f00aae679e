package selector

import "unicode"

type tokenKind int

const (
	tokWord tokenKind = iota
	tokDescendant
	tokChild
)

type token struct {
	kind tokenKind
	text string
}

// lex splits a selector into words and combinators. A bracketed clause is
// consumed as part of its word so quoted values may hold spaces or '>'.
func lex(s string) []token {
	rs := []rune(s)
	var toks []token

	for i := 0; i < len(rs); {
		r := rs[i]
		switch {
		case unicode.IsSpace(r) || r == '>':
			child := false
			for i < len(rs) && (unicode.IsSpace(rs[i]) || rs[i] == '>') {
				if rs[i] == '>' {
					child = true
				}
				i++
			}
			if child {
				toks = append(toks, token{kind: tokChild, text: ">"})
			} else {
				toks = append(toks, token{kind: tokDescendant, text: " "})
			}
		default:
			start := i
			i = scanWord(rs, i)
			toks = append(toks, token{kind: tokWord, text: string(rs[start:i])})
		}
	}
	return toks
}

func scanWord(rs []rune, i int) int {
	depth := 0
	var quote rune
	for ; i < len(rs); i++ {
		r := rs[i]
		if quote != 0 {
			if r == quote {
				quote = 0
			}
			continue
		}
		switch {
		case depth > 0 && (r == '"' || r == '\''):
			quote = r
		case r == '[':
			depth++
		case r == ']' && depth > 0:
			depth--
		case depth == 0 && (unicode.IsSpace(r) || r == '>'):
			return i
		}
	}
	return i
}

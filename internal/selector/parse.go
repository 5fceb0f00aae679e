// Package selector evaluates CSS-like structural selectors against a
// snapshot tree. Roles stand in for tag names and refs for ids:
//
//	button
//	#ref-12
//	[name*="Search"]
//	generic > link[name^='Help']
//
// Malformed input never fails; it simply matches nothing.
package selector

import (
	"regexp"
	"strings"
)

// Combinator relates a fragment to the one after it.
type Combinator int

const (
	CombinatorNone Combinator = iota
	CombinatorDescendant
	CombinatorChild
)

func (c Combinator) String() string {
	switch c {
	case CombinatorDescendant:
		return " "
	case CombinatorChild:
		return " > "
	default:
		return ""
	}
}

// Operator is an attribute comparison.
type Operator int

const (
	OpEquals Operator = iota
	OpContains
	OpPrefix
	OpSuffix
)

func (o Operator) String() string {
	switch o {
	case OpContains:
		return "*="
	case OpPrefix:
		return "^="
	case OpSuffix:
		return "$="
	default:
		return "="
	}
}

// AttrClause is one [attr op value] test. Clauses on attributes other
// than name, role and ref always pass.
type AttrClause struct {
	Attr  string
	Op    Operator
	Value string
}

func (a AttrClause) String() string {
	return "[" + a.Attr + a.Op.String() + `"` + a.Value + `"]`
}

// Fragment is one simple selector. Empty Role and Ref mean "any".
type Fragment struct {
	Role       string
	Ref        string
	Attrs      []AttrClause
	Combinator Combinator
}

func (f Fragment) String() string {
	var b strings.Builder
	b.WriteString(f.Role)
	if f.Ref != "" {
		b.WriteString("#" + f.Ref)
	}
	for _, a := range f.Attrs {
		b.WriteString(a.String())
	}
	return b.String()
}

// Format renders fragments back to selector syntax.
func Format(frags []Fragment) string {
	var b strings.Builder
	for _, f := range frags {
		b.WriteString(f.String())
		b.WriteString(f.Combinator.String())
	}
	return b.String()
}

var (
	roleRe     = regexp.MustCompile(`(?i)^[a-z][a-z0-9]*$`)
	combinedRe = regexp.MustCompile(`(?i)^([a-z][a-z0-9]*)(\[.+\])$`)
	clauseRe   = regexp.MustCompile(`^(\w+)([*^$]?)=["']?([^"']*)["']?$`)
)

// Parse turns a selector string into fragments. Words that are not a
// role, #ref or bracket form are dropped; a combinator attaches to the
// fragment before it and the last fragment never carries one.
func Parse(s string) []Fragment {
	frags := make([]Fragment, 0, 4)
	for _, tok := range lex(strings.TrimSpace(s)) {
		switch tok.kind {
		case tokDescendant, tokChild:
			if len(frags) == 0 {
				continue
			}
			if tok.kind == tokChild {
				frags[len(frags)-1].Combinator = CombinatorChild
			} else {
				frags[len(frags)-1].Combinator = CombinatorDescendant
			}
		case tokWord:
			if f, ok := parseFragment(tok.text); ok {
				frags = append(frags, f)
			}
		}
	}
	if n := len(frags); n > 0 {
		frags[n-1].Combinator = CombinatorNone
	}
	return frags
}

func parseFragment(word string) (Fragment, bool) {
	switch {
	case combinedRe.MatchString(word):
		m := combinedRe.FindStringSubmatch(word)
		return Fragment{Role: m[1], Attrs: parseClauses(m[2])}, true
	case strings.HasPrefix(word, "#"):
		ref := word[1:]
		return Fragment{Ref: ref}, ref != ""
	case strings.HasPrefix(word, "[") && strings.HasSuffix(word, "]"):
		attrs := parseClauses(word)
		return Fragment{Attrs: attrs}, len(attrs) > 0
	case roleRe.MatchString(word):
		return Fragment{Role: word}, true
	}
	return Fragment{}, false
}

// parseClauses reads every top-level [...] group of s.
func parseClauses(s string) []AttrClause {
	var out []AttrClause
	for _, body := range bracketBodies(s) {
		m := clauseRe.FindStringSubmatch(body)
		if m == nil {
			continue
		}
		c := AttrClause{Attr: m[1], Value: m[3]}
		switch m[2] {
		case "*":
			c.Op = OpContains
		case "^":
			c.Op = OpPrefix
		case "$":
			c.Op = OpSuffix
		}
		out = append(out, c)
	}
	return out
}

func bracketBodies(s string) []string {
	var out []string
	start := -1
	var quote rune
	for i, r := range s {
		if quote != 0 {
			if r == quote {
				quote = 0
			}
			continue
		}
		switch {
		case start >= 0 && (r == '"' || r == '\''):
			quote = r
		case r == '[' && start < 0:
			start = i + 1
		case r == ']' && start >= 0:
			out = append(out, s[start:i])
			start = -1
		}
	}
	return out
}

package selector

import (
	"strings"

	"snapshot-query/internal/snapshot"
)

func (a AttrClause) matches(el *snapshot.Element) bool {
	field, err := snapshot.ParseField(a.Attr)
	if err != nil {
		return true
	}
	v := field.Value(el)
	switch a.Op {
	case OpContains:
		return strings.Contains(v, a.Value)
	case OpPrefix:
		return strings.HasPrefix(v, a.Value)
	case OpSuffix:
		return strings.HasSuffix(v, a.Value)
	default:
		return v == a.Value
	}
}

// Matches reports whether el satisfies the fragment's own constraints,
// ignoring its combinator.
func (f Fragment) Matches(el *snapshot.Element) bool {
	if f.Role != "" && el.Role != f.Role {
		return false
	}
	if f.Ref != "" && el.Ref != f.Ref {
		return false
	}
	for _, a := range f.Attrs {
		if !a.matches(el) {
			return false
		}
	}
	return true
}

// matchChain reports whether el matches frags[0] and the rest of the chain
// is satisfied below it.
func matchChain(el *snapshot.Element, frags []Fragment) bool {
	if len(frags) == 0 {
		return true
	}
	if !frags[0].Matches(el) {
		return false
	}
	if len(frags) == 1 {
		return true
	}

	rest := frags[1:]
	switch frags[0].Combinator {
	case CombinatorDescendant:
		found := false
		snapshot.Descendants(el, func(d *snapshot.Element, _ []*snapshot.Element) bool {
			found = matchChain(d, rest)
			return !found
		})
		return found
	case CombinatorChild:
		for _, c := range el.Children {
			if c != nil && matchChain(c, rest) {
				return true
			}
		}
	}
	return false
}

// Match evaluates frags over the tree in pre-order. Normally the element
// matching the first fragment is reported; when the first fragment uses a
// child combinator the matching children are reported instead.
func Match(roots []*snapshot.Element, frags []Fragment) []*snapshot.Element {
	out := make([]*snapshot.Element, 0)
	if len(frags) == 0 {
		return out
	}

	// a lone #ref names one element; duplicates resolve like FindByRef
	if len(frags) == 1 && frags[0].Ref != "" {
		if el, ok := snapshot.First(roots, frags[0].Matches); ok {
			out = append(out, el)
		}
		return out
	}

	reportChild := len(frags) > 1 && frags[0].Combinator == CombinatorChild
	snapshot.Walk(roots, func(el *snapshot.Element, _ []*snapshot.Element) bool {
		if !reportChild {
			if matchChain(el, frags) {
				out = append(out, el)
			}
			return true
		}
		if frags[0].Matches(el) {
			for _, c := range el.Children {
				if c != nil && matchChain(c, frags[1:]) {
					out = append(out, c)
				}
			}
		}
		return true
	})
	return out
}

// Select parses s and matches it against roots.
func Select(roots []*snapshot.Element, s string) []*snapshot.Element {
	return Match(roots, Parse(s))
}

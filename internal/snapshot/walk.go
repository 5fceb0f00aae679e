package snapshot

// VisitFunc is called for every element in pre-order. path holds the
// ancestors of el followed by el itself and is only valid during the call.
// Returning false stops the walk.
type VisitFunc func(el *Element, path []*Element) bool

// Predicate selects elements.
type Predicate func(el *Element) bool

// Walk visits roots depth-first, parent before children, preserving
// sibling order. It reports whether the walk ran to completion.
func Walk(roots []*Element, fn VisitFunc) bool {
	path := make([]*Element, 0, 16)
	return walk(roots, path, fn)
}

func walk(items []*Element, path []*Element, fn VisitFunc) bool {
	for _, el := range items {
		if el == nil {
			continue
		}
		next := append(path, el)
		if !fn(el, next) {
			return false
		}
		if el.HasChildren() && !walk(el.Children, next, fn) {
			return false
		}
	}
	return true
}

// Collect returns every element satisfying pred in pre-order.
func Collect(roots []*Element, pred Predicate) []*Element {
	var out []*Element
	Walk(roots, func(el *Element, _ []*Element) bool {
		if pred(el) {
			out = append(out, el)
		}
		return true
	})
	return out
}

// First returns the first element in pre-order satisfying pred.
func First(roots []*Element, pred Predicate) (*Element, bool) {
	var found *Element
	Walk(roots, func(el *Element, _ []*Element) bool {
		if pred(el) {
			found = el
			return false
		}
		return true
	})
	return found, found != nil
}

// FirstPath returns the ancestry (root first, match last) of the first
// element in pre-order satisfying pred, or nil.
func FirstPath(roots []*Element, pred Predicate) []*Element {
	var found []*Element
	Walk(roots, func(el *Element, path []*Element) bool {
		if pred(el) {
			found = make([]*Element, len(path))
			copy(found, path)
			return false
		}
		return true
	})
	return found
}

// Descendants walks the strict descendants of el in pre-order.
func Descendants(el *Element, fn VisitFunc) bool {
	if el == nil {
		return true
	}
	return Walk(el.Children, fn)
}

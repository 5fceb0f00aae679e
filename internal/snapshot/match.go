package snapshot

import (
	"fmt"
	"regexp"
	"strings"
)

// InteractiveRoles lists the roles reported by the interactive view, in
// display order.
var InteractiveRoles = []string{"button", "link", "textbox", "checkbox", "radio", "combobox", "slider"}

// FindByName returns named elements whose name contains text, or equals it
// when exact is set. Comparison is case-sensitive.
func (t *Tree) FindByName(text string, exact bool) []*Element {
	return Collect(t.Roots, func(el *Element) bool {
		if !el.HasName() {
			return false
		}
		if exact {
			return *el.Name == text
		}
		return strings.Contains(*el.Name, text)
	})
}

// FindByRole returns every element whose role equals role.
func (t *Tree) FindByRole(role string) []*Element {
	return Collect(t.Roots, func(el *Element) bool {
		return el.Role == role
	})
}

// FindByRef returns the first element in pre-order with the given ref.
// Duplicate refs are not an error; later occurrences are unreachable here.
func (t *Tree) FindByRef(ref string) (*Element, bool) {
	return First(t.Roots, func(el *Element) bool {
		return el.Ref == ref
	})
}

// PathTo returns the elements from a top-level root down to and including
// the first element with the given ref. It returns an empty slice when no
// element matches.
func (t *Tree) PathTo(ref string) []*Element {
	path := FirstPath(t.Roots, func(el *Element) bool {
		return el.Ref == ref
	})
	if path == nil {
		return []*Element{}
	}
	return path
}

// FindByText returns named elements whose name contains text. Unless
// caseSensitive is set both sides are lower-cased before comparing.
func (t *Tree) FindByText(text string, caseSensitive bool) []*Element {
	needle := text
	if !caseSensitive {
		needle = strings.ToLower(text)
	}
	return Collect(t.Roots, func(el *Element) bool {
		if !el.HasName() {
			return false
		}
		hay := *el.Name
		if !caseSensitive {
			hay = strings.ToLower(hay)
		}
		return strings.Contains(hay, needle)
	})
}

// CompilePattern compiles a search pattern, case-insensitive unless
// caseSensitive is set.
func CompilePattern(pattern string, caseSensitive bool) (*regexp.Regexp, error) {
	expr := pattern
	if !caseSensitive {
		expr = "(?i)" + pattern
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPattern, err)
	}
	return re, nil
}

// FindByRegex returns elements whose field matches pattern anywhere in its
// value. The field and the pattern are both validated before the tree is
// walked.
func (t *Tree) FindByRegex(pattern, field string, caseSensitive bool) ([]*Element, error) {
	f, err := ParseField(field)
	if err != nil {
		return nil, err
	}
	re, err := CompilePattern(pattern, caseSensitive)
	if err != nil {
		return nil, err
	}
	return t.FindByFieldRegexp(re, f), nil
}

// FindByFieldRegexp applies an already compiled expression to field.
func (t *Tree) FindByFieldRegexp(re *regexp.Regexp, field Field) []*Element {
	return Collect(t.Roots, func(el *Element) bool {
		return re.MatchString(field.Value(el))
	})
}

// CountByRole returns the number of elements per role.
func (t *Tree) CountByRole() map[string]int {
	counts := make(map[string]int)
	Walk(t.Roots, func(el *Element, _ []*Element) bool {
		counts[el.Role]++
		return true
	})
	return counts
}

// AllRefs returns every ref in pre-order, duplicates included.
func (t *Tree) AllRefs() []string {
	refs := make([]string, 0)
	Walk(t.Roots, func(el *Element, _ []*Element) bool {
		refs = append(refs, el.Ref)
		return true
	})
	return refs
}

// Named returns every element with a non-empty name in pre-order.
func (t *Tree) Named() []*Element {
	return Collect(t.Roots, (*Element).HasName)
}

// Roles returns the distinct roles in first-seen order.
func (t *Tree) Roles() []string {
	seen := make(map[string]bool)
	var roles []string
	Walk(t.Roots, func(el *Element, _ []*Element) bool {
		if !seen[el.Role] {
			seen[el.Role] = true
			roles = append(roles, el.Role)
		}
		return true
	})
	return roles
}

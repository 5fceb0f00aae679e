package snapshot

// Element is one node of an accessibility snapshot.
// Name is nil when the source record has no name; an explicit empty
// string in the source is kept as a non-nil empty name.
type Element struct {
	Role     string     `json:"role" yaml:"role"`
	Ref      string     `json:"ref" yaml:"ref"`
	Name     *string    `json:"name,omitempty" yaml:"name,omitempty"`
	Children []*Element `json:"children,omitempty" yaml:"children,omitempty"`
}

// HasName reports whether the element carries a non-empty name.
func (e *Element) HasName() bool {
	return e.Name != nil && *e.Name != ""
}

// DisplayName returns the name or "" when absent.
func (e *Element) DisplayName() string {
	if e.Name == nil {
		return ""
	}
	return *e.Name
}

// HasChildren reports whether the element has at least one child.
// A nil and an empty child list are equivalent.
func (e *Element) HasChildren() bool {
	return len(e.Children) > 0
}

// NewElement builds an element with the given name and children.
func NewElement(role, ref, name string, children ...*Element) *Element {
	return &Element{Role: role, Ref: ref, Name: StringPtr(name), Children: children}
}

// NewUnnamed builds an element without a name.
func NewUnnamed(role, ref string, children ...*Element) *Element {
	return &Element{Role: role, Ref: ref, Children: children}
}

// StringPtr returns a pointer to s.
func StringPtr(s string) *string {
	return &s
}

// Tree is the parsed forest of a snapshot document. The top-level records
// act as virtual roots. A Tree is never mutated after construction.
type Tree struct {
	Roots []*Element
}

// NewTree wraps roots in a Tree.
func NewTree(roots ...*Element) *Tree {
	return &Tree{Roots: roots}
}

// Len returns the total number of elements in the tree.
func (t *Tree) Len() int {
	n := 0
	Walk(t.Roots, func(*Element, []*Element) bool {
		n++
		return true
	})
	return n
}

// Empty reports whether the tree has no elements at all.
func (t *Tree) Empty() bool {
	return len(t.Roots) == 0
}

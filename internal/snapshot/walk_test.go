package snapshot

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWalkPreOrder(t *testing.T) {
	tree := NewTree(
		NewUnnamed("a", "1",
			NewUnnamed("b", "2",
				NewUnnamed("c", "3"),
			),
			NewUnnamed("d", "4"),
		),
		NewUnnamed("e", "5"),
	)

	var order []string
	var depths []int
	completed := Walk(tree.Roots, func(el *Element, path []*Element) bool {
		order = append(order, el.Ref)
		depths = append(depths, len(path)-1)
		return true
	})

	assert.True(t, completed)
	assert.Equal(t, []string{"1", "2", "3", "4", "5"}, order)
	assert.Equal(t, []int{0, 1, 2, 1, 0}, depths)
}

func TestWalkStops(t *testing.T) {
	tree := NewTree(NewUnnamed("a", "1", NewUnnamed("b", "2")), NewUnnamed("c", "3"))

	var seen []string
	completed := Walk(tree.Roots, func(el *Element, _ []*Element) bool {
		seen = append(seen, el.Ref)
		return el.Ref != "2"
	})

	assert.False(t, completed)
	assert.Equal(t, []string{"1", "2"}, seen)
}

func TestWalkSkipsNilChildren(t *testing.T) {
	root := &Element{Role: "a", Ref: "1", Children: []*Element{nil, NewUnnamed("b", "2")}}
	assert.Equal(t, 2, NewTree(root).Len())
}

func TestFirstPathCopiesPath(t *testing.T) {
	tree := NewTree(
		NewUnnamed("a", "1", NewUnnamed("b", "2")),
		NewUnnamed("c", "3", NewUnnamed("d", "4")),
	)

	path := FirstPath(tree.Roots, func(el *Element) bool { return el.Ref == "2" })
	assert.Equal(t, []string{"1", "2"}, refsOf(path))

	// a later walk must not clobber the returned path
	Walk(tree.Roots, func(*Element, []*Element) bool { return true })
	assert.Equal(t, []string{"1", "2"}, refsOf(path))
}

func TestDescendants(t *testing.T) {
	root := NewUnnamed("a", "1", NewUnnamed("b", "2", NewUnnamed("c", "3")))
	var seen []string
	Descendants(root, func(el *Element, _ []*Element) bool {
		seen = append(seen, el.Ref)
		return true
	})
	assert.Equal(t, []string{"2", "3"}, seen)
	assert.True(t, Descendants(nil, nil))
}

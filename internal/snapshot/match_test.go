package snapshot

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sampleTree mirrors testdata/sample.yaml.
func sampleTree() *Tree {
	return NewTree(
		NewUnnamed("generic", "ref-root",
			NewElement("button", "ref-btn-1", "搜索按钮"),
			NewElement("link", "ref-link-1", "Google 首页"),
			NewElement("textbox", "ref-input-1", "搜索框"),
			NewUnnamed("generic", "ref-container",
				NewElement("button", "ref-btn-2", "登录"),
				NewElement("link", "ref-link-2", "帮助"),
			),
		),
	)
}

func refsOf(els []*Element) []string {
	out := make([]string, 0, len(els))
	for _, el := range els {
		out = append(out, el.Ref)
	}
	return out
}

func TestFindByName(t *testing.T) {
	tree := sampleTree()

	assert.Equal(t, []string{"ref-btn-1", "ref-input-1"}, refsOf(tree.FindByName("搜索", false)))
	assert.Equal(t, []string{"ref-btn-1"}, refsOf(tree.FindByName("搜索按钮", true)))
	assert.Empty(t, tree.FindByName("搜索", true))
	assert.Empty(t, tree.FindByName("google", false), "name search is case-sensitive")
}

func TestFindByNameExactIsSubsetOfSubstring(t *testing.T) {
	tree := sampleTree()
	for _, q := range []string{"搜索按钮", "登录", "Google 首页", "", "x"} {
		exact := refsOf(tree.FindByName(q, true))
		fuzzy := refsOf(tree.FindByName(q, false))
		for _, ref := range exact {
			assert.Contains(t, fuzzy, ref, "query %q", q)
		}
	}
}

func TestFindByNameSkipsUnnamed(t *testing.T) {
	tree := NewTree(
		NewUnnamed("link", "r1"),
		&Element{Role: "link", Ref: "r2", Name: StringPtr("")},
		NewElement("link", "r3", "x"),
	)
	assert.Equal(t, []string{"r3"}, refsOf(tree.FindByName("", false)))
	assert.Empty(t, tree.FindByName("", true))
}

func TestFindByRole(t *testing.T) {
	tree := sampleTree()
	assert.Equal(t, []string{"ref-btn-1", "ref-btn-2"}, refsOf(tree.FindByRole("button")))
	assert.Equal(t, []string{"ref-root", "ref-container"}, refsOf(tree.FindByRole("generic")))
	assert.Empty(t, tree.FindByRole("slider"))
	assert.Empty(t, tree.FindByRole("Button"))
}

func TestFindByRef(t *testing.T) {
	tree := sampleTree()

	el, ok := tree.FindByRef("ref-btn-2")
	require.True(t, ok)
	assert.Equal(t, "登录", el.DisplayName())

	el, ok = tree.FindByRef("ref-missing")
	assert.False(t, ok)
	assert.Nil(t, el)
}

func TestDuplicateRefsFirstHitWins(t *testing.T) {
	tree := NewTree(
		NewUnnamed("generic", "root",
			NewUnnamed("list", "dup",
				NewElement("button", "dup", "inner"),
			),
		),
		NewElement("button", "dup", "later root"),
	)

	el, ok := tree.FindByRef("dup")
	require.True(t, ok)
	assert.Equal(t, "list", el.Role)

	path := tree.PathTo("dup")
	assert.Equal(t, []string{"root", "dup"}, refsOf(path))
	assert.Equal(t, []string{"root", "dup", "dup", "dup"}, tree.AllRefs())
}

func TestPathTo(t *testing.T) {
	tree := sampleTree()

	path := tree.PathTo("ref-btn-2")
	assert.Equal(t, []string{"ref-root", "ref-container", "ref-btn-2"}, refsOf(path))

	path = tree.PathTo("ref-root")
	assert.Equal(t, []string{"ref-root"}, refsOf(path))

	path = tree.PathTo("ref-missing")
	require.NotNil(t, path)
	assert.Empty(t, path)
}

func TestPathToEndsAtFindByRef(t *testing.T) {
	tree := sampleTree()
	depth := map[string]int{}
	Walk(tree.Roots, func(el *Element, path []*Element) bool {
		if _, ok := depth[el.Ref]; !ok {
			depth[el.Ref] = len(path) - 1
		}
		return true
	})

	for _, ref := range tree.AllRefs() {
		el, ok := tree.FindByRef(ref)
		require.True(t, ok)
		path := tree.PathTo(ref)
		require.NotEmpty(t, path)
		assert.Same(t, el, path[len(path)-1])
		assert.Equal(t, depth[ref]+1, len(path))
	}
}

func TestFindByText(t *testing.T) {
	tree := NewTree(
		NewElement("textbox", "r1", "Case Test"),
		NewElement("button", "r2", "case closed"),
		NewUnnamed("link", "r3"),
	)

	assert.Equal(t, []string{"r1", "r2"}, refsOf(tree.FindByText("CASE", false)))
	assert.Equal(t, []string{"r1"}, refsOf(tree.FindByText("Case", true)))
	assert.Empty(t, tree.FindByText("CASE", true))
}

func TestFindByRegex(t *testing.T) {
	tree := sampleTree()

	tests := []struct {
		name          string
		pattern       string
		field         string
		caseSensitive bool
		want          []string
	}{
		{"name prefix", "^搜索", "name", false, []string{"ref-btn-1", "ref-input-1"}},
		{"role alternation", "^(button|link)$", "role", false, []string{"ref-btn-1", "ref-link-1", "ref-btn-2", "ref-link-2"}},
		{"ref prefix", "^ref-btn-", "ref", false, []string{"ref-btn-1", "ref-btn-2"}},
		{"case insensitive", "google", "name", false, []string{"ref-link-1"}},
		{"case sensitive", "google", "name", true, nil},
		{"missing name reads empty", "^$", "name", false, []string{"ref-root", "ref-container"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tree.FindByRegex(tt.pattern, tt.field, tt.caseSensitive)
			require.NoError(t, err)
			if tt.want == nil {
				assert.Empty(t, got)
				return
			}
			assert.Equal(t, tt.want, refsOf(got))
		})
	}
}

func TestFindByRegexErrors(t *testing.T) {
	tree := sampleTree()

	_, err := tree.FindByRegex("[invalid", "name", false)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidPattern))

	_, err = tree.FindByRegex("x", "invalid_field", false)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidField))
	assert.Contains(t, err.Error(), "invalid_field")

	_, err = tree.FindByRegex("x", "", false)
	assert.True(t, errors.Is(err, ErrInvalidField), "an empty field is not a default")

	_, err = NewTree().FindByRegex("x", "label", false)
	assert.True(t, errors.Is(err, ErrInvalidField), "field is validated even on an empty tree")
}

func TestCountByRole(t *testing.T) {
	tree := sampleTree()
	counts := tree.CountByRole()
	assert.Equal(t, map[string]int{"generic": 2, "button": 2, "link": 2, "textbox": 1}, counts)

	total := 0
	for _, n := range counts {
		total += n
	}
	assert.Equal(t, tree.Len(), total)
	assert.Empty(t, NewTree().CountByRole())
}

func TestAllRefs(t *testing.T) {
	tree := sampleTree()
	assert.Equal(t, []string{
		"ref-root", "ref-btn-1", "ref-link-1", "ref-input-1",
		"ref-container", "ref-btn-2", "ref-link-2",
	}, tree.AllRefs())
	assert.NotNil(t, NewTree().AllRefs())
}

func TestNamedAndRoles(t *testing.T) {
	tree := sampleTree()
	assert.Len(t, tree.Named(), 5)
	assert.Equal(t, []string{"generic", "button", "link", "textbox"}, tree.Roles())
}

func TestParseField(t *testing.T) {
	for _, s := range []string{"name", "role", "ref"} {
		f, err := ParseField(s)
		require.NoError(t, err)
		assert.Equal(t, s, f.String())
	}

	for _, s := range []string{"", "Name", "label"} {
		_, err := ParseField(s)
		assert.True(t, errors.Is(err, ErrInvalidField), "field %q", s)
	}

	el := NewUnnamed("button", "r1")
	assert.Equal(t, "", FieldName.Value(el))
	assert.Equal(t, "button", FieldRole.Value(el))
	assert.Equal(t, "r1", FieldRef.Value(el))
}

package selector

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLex(t *testing.T) {
	tests := []struct {
		in   string
		want []token
	}{
		{"button", []token{{tokWord, "button"}}},
		{"a b", []token{{tokWord, "a"}, {tokDescendant, " "}, {tokWord, "b"}}},
		{"a>b", []token{{tokWord, "a"}, {tokChild, ">"}, {tokWord, "b"}}},
		{"a  >  b", []token{{tokWord, "a"}, {tokChild, ">"}, {tokWord, "b"}}},
		{`[name="Google 首页"]`, []token{{tokWord, `[name="Google 首页"]`}}},
		{`link[name='a > b'] x`, []token{{tokWord, `link[name='a > b']`}, {tokDescendant, " "}, {tokWord, "x"}}},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, lex(tt.in))
		})
	}
}

func TestParse(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []Fragment
	}{
		{"role", "button", []Fragment{{Role: "button"}}},
		{"ref", "#ref-btn-1", []Fragment{{Ref: "ref-btn-1"}}},
		{"exact attr", `[name="搜索按钮"]`, []Fragment{{Attrs: []AttrClause{{Attr: "name", Op: OpEquals, Value: "搜索按钮"}}}}},
		{"single quotes", `[name='x']`, []Fragment{{Attrs: []AttrClause{{Attr: "name", Value: "x"}}}}},
		{"unquoted", `[role=link]`, []Fragment{{Attrs: []AttrClause{{Attr: "role", Value: "link"}}}}},
		{"contains", `[name*="搜索"]`, []Fragment{{Attrs: []AttrClause{{Attr: "name", Op: OpContains, Value: "搜索"}}}}},
		{"prefix", `[ref^="ref-btn"]`, []Fragment{{Attrs: []AttrClause{{Attr: "ref", Op: OpPrefix, Value: "ref-btn"}}}}},
		{"suffix", `[name$="钮"]`, []Fragment{{Attrs: []AttrClause{{Attr: "name", Op: OpSuffix, Value: "钮"}}}}},
		{"combined", `button[name="搜索按钮"]`, []Fragment{{Role: "button", Attrs: []AttrClause{{Attr: "name", Value: "搜索按钮"}}}}},
		{"multiple clauses", `link[name^="Go"][ref$="-1"]`, []Fragment{{Role: "link", Attrs: []AttrClause{
			{Attr: "name", Op: OpPrefix, Value: "Go"},
			{Attr: "ref", Op: OpSuffix, Value: "-1"},
		}}}},
		{"descendant", "generic button", []Fragment{
			{Role: "generic", Combinator: CombinatorDescendant},
			{Role: "button"},
		}},
		{"child", "generic > link", []Fragment{
			{Role: "generic", Combinator: CombinatorChild},
			{Role: "link"},
		}},
		{"trailing combinator dropped", "button >", []Fragment{{Role: "button"}}},
		{"leading combinator ignored", "> button", []Fragment{{Role: "button"}}},
		{"unknown word dropped", "generic ::x button", []Fragment{
			{Role: "generic", Combinator: CombinatorDescendant},
			{Role: "button"},
		}},
		{"malformed clause keeps role", `button[name]`, []Fragment{{Role: "button"}}},
		{"malformed bracket dropped", `[name]`, []Fragment{}},
		{"bare hash dropped", "#", []Fragment{}},
		{"empty", "", []Fragment{}},
		{"blank", "   ", []Fragment{}},
		{"role must start with a letter", "1button", []Fragment{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Parse(tt.in))
		})
	}
}

func TestFormat(t *testing.T) {
	frags := Parse(`generic > button[name*='搜索'] #ref-x`)
	assert.Equal(t, `generic > button[name*="搜索"] #ref-x`, Format(frags))
}

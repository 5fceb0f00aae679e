// Package render turns query results into text for people: plain element
// listings and a Markdown document describing a whole snapshot.
package render

import (
	"fmt"
	"io"
	"strings"

	"snapshot-query/internal/snapshot"
)

// ElementSummary is the flat, serialisable view of an element.
type ElementSummary struct {
	Role     string `json:"role"`
	Ref      string `json:"ref"`
	Name     string `json:"name,omitempty"`
	Children int    `json:"children,omitempty"`
}

// Summarize flattens el.
func Summarize(el *snapshot.Element) ElementSummary {
	return ElementSummary{
		Role:     el.Role,
		Ref:      el.Ref,
		Name:     el.DisplayName(),
		Children: len(el.Children),
	}
}

// SummarizeAll flattens els, keeping at most limit entries when limit > 0.
func SummarizeAll(els []*snapshot.Element, limit int) []ElementSummary {
	if limit > 0 && len(els) > limit {
		els = els[:limit]
	}
	out := make([]ElementSummary, 0, len(els))
	for _, el := range els {
		out = append(out, Summarize(el))
	}
	return out
}

// FormatElement renders el as "key: value" lines indented two spaces per
// level. Name and child count are omitted when empty.
func FormatElement(el *snapshot.Element, indent int) string {
	var b strings.Builder
	WriteElement(&b, el, indent)
	return b.String()
}

// WriteElement writes FormatElement's output to w.
func WriteElement(w io.Writer, el *snapshot.Element, indent int) {
	prefix := strings.Repeat("  ", indent)
	fmt.Fprintf(w, "%srole: %s\n", prefix, el.Role)
	fmt.Fprintf(w, "%sref: %s\n", prefix, el.Ref)
	if el.HasName() {
		fmt.Fprintf(w, "%sname: %s\n", prefix, *el.Name)
	}
	if el.HasChildren() {
		fmt.Fprintf(w, "%schildren: %d items\n", prefix, len(el.Children))
	}
}

// WriteList prints up to limit elements separated by blank lines and a
// trailer when the list was cut short. limit <= 0 prints everything.
func WriteList(w io.Writer, els []*snapshot.Element, limit int) {
	shown := els
	if limit > 0 && len(els) > limit {
		shown = els[:limit]
	}
	for _, el := range shown {
		WriteElement(w, el, 0)
		fmt.Fprintln(w)
	}
	if len(shown) < len(els) {
		fmt.Fprintf(w, "... %d more\n", len(els)-len(shown))
	}
}

package render

import (
	"bytes"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"snapshot-query/internal/query"
	"snapshot-query/internal/snapshot"
)

const referenceRowLimit = 50

// MarkdownOptions controls Markdown output.
type MarkdownOptions struct {
	IncludeRefs bool
	// MaxDepth limits the tree section; negative means unlimited.
	MaxDepth int
	Now      func() time.Time
}

// DefaultMarkdownOptions includes refs and renders the whole tree.
func DefaultMarkdownOptions() MarkdownOptions {
	return MarkdownOptions{IncludeRefs: true, MaxDepth: -1, Now: time.Now}
}

type placed struct {
	el    *snapshot.Element
	depth int
}

type mdWriter struct {
	lines []string
}

func (m *mdWriter) add(lines ...string) {
	m.lines = append(m.lines, lines...)
}

func (m *mdWriter) addf(format string, args ...interface{}) {
	m.lines = append(m.lines, fmt.Sprintf(format, args...))
}

// Markdown renders the engine's snapshot as a standalone document:
// statistics, the named elements of the tree and a reference table of
// interactive elements.
func Markdown(e *query.Engine, opts MarkdownOptions) string {
	if opts.Now == nil {
		opts.Now = time.Now
	}

	source := "(in-memory)"
	if e.Source() != "" {
		source = filepath.Base(e.Source())
	}

	var m mdWriter
	m.add("# Accessibility Snapshot Documentation", "")
	m.addf("**Source File:** `%s`", source)
	m.add("")
	m.addf("**Generated:** %s", opts.Now().Format("2006-01-02 15:04:05"))
	m.add("", "---", "")

	stats := e.CountByRole()
	total := 0
	for _, n := range stats {
		total += n
	}

	m.add("## Overview", "")
	m.add("This document contains the accessibility tree structure from the snapshot file. ")
	m.addf("The snapshot contains **%d** accessibility elements organized in a hierarchical tree structure.", total)
	m.add("")

	m.add("## Statistics", "", "### Element Count by Role", "")
	m.add("| Role | Count | Percentage |", "|------|-------|------------|")
	for _, role := range rolesByCount(stats) {
		pct := 0.0
		if total > 0 {
			pct = float64(stats[role]) / float64(total) * 100
		}
		m.addf("| `%s` | %d | %.1f%% |", role, stats[role], pct)
	}
	m.add("")
	m.addf("**Total Elements:** %d", total)
	m.add("")

	interactive := e.InteractiveElements()
	order := interactiveByCount(interactive)
	interactiveTotal := 0
	for _, els := range interactive {
		interactiveTotal += len(els)
	}

	if interactiveTotal > 0 {
		m.add("### Interactive Elements", "")
		m.addf("The snapshot contains **%d** interactive elements:", interactiveTotal)
		m.add("")
		for _, role := range order {
			if n := len(interactive[role]); n > 0 {
				m.addf("- **%s**: %d elements", role, n)
			}
		}
		m.add("")
	}
	m.add("---", "")

	m.add("## Accessibility Tree Structure", "")
	m.add("The following section lists all elements with names from the accessibility tree. ")
	m.add("Links are formatted using Markdown link syntax.")
	m.add("")
	writeTree(&m, e.Tree(), opts)

	if interactiveTotal > 0 {
		m.add("", "---", "")
		m.add("## Interactive Elements Reference", "")
		m.add("This section lists all interactive elements for quick reference. ")
		m.add("These elements can be interacted with using browser automation tools.")
		m.add("")
		for _, role := range order {
			writeReferenceTable(&m, role, interactive[role], opts.IncludeRefs)
		}
	}

	m.add("", "---", "")
	m.add("## Notes", "")
	m.add("- This document was automatically generated from an accessibility snapshot.")
	m.add("- Reference identifiers (`ref-*`) are unique identifiers for each element.")
	m.add("- Interactive elements can be targeted using their reference identifiers in browser automation.")
	if opts.MaxDepth >= 0 {
		m.addf("- Tree depth is limited to %d levels for readability.", opts.MaxDepth)
	}
	if !opts.IncludeRefs {
		m.add("- Reference identifiers are excluded from this document.")
	}
	m.add("")

	return strings.Join(m.lines, "\n")
}

func rolesByCount(stats map[string]int) []string {
	roles := make([]string, 0, len(stats))
	for role := range stats {
		roles = append(roles, role)
	}
	sort.Slice(roles, func(i, j int) bool {
		if stats[roles[i]] != stats[roles[j]] {
			return stats[roles[i]] > stats[roles[j]]
		}
		return roles[i] < roles[j]
	})
	return roles
}

func interactiveByCount(groups map[string][]*snapshot.Element) []string {
	order := query.InteractiveOrder()
	sort.SliceStable(order, func(i, j int) bool {
		return len(groups[order[i]]) > len(groups[order[j]])
	})
	return order
}

func isItemRole(role string) bool {
	return role == "listitem" || role == "tab"
}

func isLabelRole(role string) bool {
	return role == "link" || role == "button" || role == "heading"
}

// derivedName returns el's name, or for list items and tabs the name of the
// first labelled link, button or heading within two levels.
func derivedName(el *snapshot.Element) string {
	if el.HasName() {
		return *el.Name
	}
	if !isItemRole(el.Role) {
		return ""
	}
	for _, c := range el.Children {
		if c == nil {
			continue
		}
		if c.HasName() && isLabelRole(c.Role) {
			return *c.Name
		}
		for _, n := range c.Children {
			if n != nil && n.HasName() && isLabelRole(n.Role) {
				return *n.Name
			}
		}
	}
	return ""
}

// itemLink finds the first named link within two levels of a list item or
// tab.
func itemLink(el *snapshot.Element) (*snapshot.Element, bool) {
	if !isItemRole(el.Role) {
		return nil, false
	}
	for _, c := range el.Children {
		if c == nil {
			continue
		}
		if c.Role == "link" && c.HasName() {
			return c, true
		}
		for _, n := range c.Children {
			if n != nil && n.Role == "link" && n.HasName() {
				return n, true
			}
		}
	}
	return nil, false
}

// collectNamed gathers the elements shown in the tree section. List items
// and tabs absorb their first two levels so labels are not repeated.
func collectNamed(tree *snapshot.Tree, maxDepth int) ([]placed, map[string]bool) {
	var out []placed
	absorbed := make(map[string]bool)
	limited := maxDepth >= 0

	var visit func(el *snapshot.Element, depth int)
	descend := func(el *snapshot.Element, depth int) {
		if limited && depth >= maxDepth {
			return
		}
		for _, c := range el.Children {
			if c != nil {
				visit(c, depth+1)
			}
		}
	}
	visit = func(el *snapshot.Element, depth int) {
		if limited && depth > maxDepth {
			return
		}
		switch {
		case isItemRole(el.Role):
			if derivedName(el) != "" {
				out = append(out, placed{el, depth})
				for _, c := range el.Children {
					if c == nil {
						continue
					}
					absorbed[c.Ref] = true
					for _, n := range c.Children {
						if n != nil {
							absorbed[n.Ref] = true
						}
					}
				}
			}
			return
		case el.Role == "list":
			if el.HasName() {
				out = append(out, placed{el, depth})
			}
		case absorbed[el.Ref]:
		case el.HasName():
			out = append(out, placed{el, depth})
		}
		descend(el, depth)
	}

	for _, root := range tree.Roots {
		if root != nil {
			visit(root, 0)
		}
	}
	return out, absorbed
}

func writeTree(m *mdWriter, tree *snapshot.Tree, opts MarkdownOptions) {
	named, absorbed := collectNamed(tree, opts.MaxDepth)
	if len(named) == 0 {
		m.add("*No elements with names found in the accessibility tree.*", "")
		return
	}

	withRef := func(text, ref string) string {
		if opts.IncludeRefs {
			return fmt.Sprintf("%s (`%s`)", text, ref)
		}
		return text
	}

	for _, p := range named {
		el := p.el
		if absorbed[el.Ref] {
			continue
		}
		switch {
		case isItemRole(el.Role):
			if link, ok := itemLink(el); ok {
				m.addf("- [%s](%s)", *link.Name, link.Ref)
			} else if name := derivedName(el); name != "" {
				m.add("- " + withRef(name, el.Ref))
			}
		case el.Role == "link":
			if opts.IncludeRefs {
				m.addf("[%s](%s)", *el.Name, el.Ref)
			} else {
				m.add(*el.Name)
			}
		case el.Role == "heading":
			level := p.depth + 3
			if level > 6 {
				level = 6
			}
			m.add(strings.Repeat("#", level) + " " + *el.Name)
		case el.Role == "button":
			if opts.IncludeRefs {
				m.addf("**%s** `%s`", *el.Name, el.Ref)
			} else {
				m.addf("**%s**", *el.Name)
			}
		default:
			m.add(withRef(*el.Name, el.Ref))
		}
		m.add("")
	}
}

func writeReferenceTable(m *mdWriter, role string, els []*snapshot.Element, includeRefs bool) {
	if len(els) == 0 {
		return
	}
	plural := strings.ReplaceAll(Pluralize(role), "_", " ")
	m.addf("### %s (%d)", titleWords(plural), len(els))
	m.add("", "| Name | Reference |", "|------|-----------|")

	shown := els
	if len(shown) > referenceRowLimit {
		shown = shown[:referenceRowLimit]
	}
	for _, el := range shown {
		name := "*No name*"
		if el.HasName() {
			name = strings.ReplaceAll(*el.Name, "|", `\|`)
		}
		ref := "*N/A*"
		if includeRefs {
			ref = el.Ref
		}
		m.addf("| %s | `%s` |", name, ref)
	}
	if n := len(els) - len(shown); n > 0 {
		m.addf("| ... %d more %s | |", n, plural)
	}
	m.add("")
}

// Pluralize returns the English plural of a role name.
func Pluralize(role string) string {
	switch {
	case strings.HasSuffix(role, "box"),
		strings.HasSuffix(role, "x"),
		strings.HasSuffix(role, "ch"),
		strings.HasSuffix(role, "sh"):
		return role + "es"
	case len(role) >= 2 && strings.HasSuffix(role, "y") && !strings.ContainsRune("aeiou", rune(role[len(role)-2])):
		return role[:len(role)-1] + "ies"
	case strings.HasSuffix(role, "f"):
		return role[:len(role)-1] + "ves"
	case strings.HasSuffix(role, "fe"):
		return role[:len(role)-2] + "ves"
	default:
		return role + "s"
	}
}

func titleWords(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		r, size := utf8.DecodeRuneInString(w)
		words[i] = string(unicode.ToUpper(r)) + strings.ToLower(w[size:])
	}
	return strings.Join(words, " ")
}

// MarkdownToHTML converts rendered Markdown to HTML, tables included.
func MarkdownToHTML(md string) (string, error) {
	conv := goldmark.New(goldmark.WithExtensions(extension.Table))
	var buf bytes.Buffer
	if err := conv.Convert([]byte(md), &buf); err != nil {
		return "", fmt.Errorf("render html: %w", err)
	}
	return buf.String(), nil
}

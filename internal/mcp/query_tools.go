package mcp

import (
	"context"

	"snapshot-query/internal/config"
	"snapshot-query/internal/query"
	"snapshot-query/internal/render"
)

// snapshotTool carries what every snapshot query tool needs.
type snapshotTool struct {
	sessions *SessionCache
	out      config.OutputConfig
}

func (t snapshotTool) open(args map[string]interface{}) (*query.Engine, Session, error) {
	return t.sessions.Resolve(args)
}

var fileProps = map[string]interface{}{
	"file_path": map[string]interface{}{
		"type":        "string",
		"description": "Path to the snapshot YAML file",
	},
	"session_id": map[string]interface{}{
		"type":        "string",
		"description": "Session id from capture_snapshot or list_sessions; used instead of file_path",
	},
}

// schema builds an object schema with the snapshot properties plus props.
func schema(props map[string]interface{}, required ...string) map[string]interface{} {
	all := make(map[string]interface{}, len(props)+len(fileProps))
	for k, v := range fileProps {
		all[k] = v
	}
	for k, v := range props {
		all[k] = v
	}
	s := map[string]interface{}{
		"type":       "object",
		"properties": all,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

func prop(typ, desc string) map[string]interface{} {
	return map[string]interface{}{"type": typ, "description": desc}
}

func withSession(meta Session, payload map[string]interface{}) map[string]interface{} {
	payload["session_id"] = meta.ID
	return payload
}

type FindByNameTool struct{ snapshotTool }

func (t *FindByNameTool) Name() string { return "find_by_name" }
func (t *FindByNameTool) Description() string {
	return `Find elements whose name contains the given text (case-sensitive substring).

Set exact=true to require the whole name to match.

Returns: {count, elements: [{role, ref, name, children}], truncated}.`
}
func (t *FindByNameTool) InputSchema() map[string]interface{} {
	return schema(map[string]interface{}{
		"name":  prop("string", "Text to look for in element names"),
		"exact": prop("boolean", "Require an exact name match (default false)"),
	}, "name")
}
func (t *FindByNameTool) Execute(_ context.Context, args map[string]interface{}) (interface{}, error) {
	name, err := requireStringArg(args, "name")
	if err != nil {
		return nil, err
	}
	engine, meta, err := t.open(args)
	if err != nil {
		return nil, err
	}
	els := engine.FindByName(name, getBoolArg(args, "exact", false))
	return withSession(meta, elementList(els, t.out.GetListLimit())), nil
}

type FindByNameBM25Tool struct{ snapshotTool }

func (t *FindByNameBM25Tool) Name() string { return "find_by_name_bm25" }
func (t *FindByNameBM25Tool) Description() string {
	return `Rank named elements by BM25 relevance to a free-text query.

Handles partial and multi-word queries better than find_by_name. CJK text is
matched per character.

Returns: {count, elements: [{role, ref, name, children, score}], truncated} best
first. count is the number of ranked hits; elements is cut to the list limit.`
}
func (t *FindByNameBM25Tool) InputSchema() map[string]interface{} {
	return schema(map[string]interface{}{
		"name":  prop("string", "Query text"),
		"top_k": prop("integer", "Maximum ranked hits (default all)"),
	}, "name")
}

type rankedSummary struct {
	render.ElementSummary
	Score float64 `json:"score"`
}

func (t *FindByNameBM25Tool) Execute(_ context.Context, args map[string]interface{}) (interface{}, error) {
	name, err := requireStringArg(args, "name")
	if err != nil {
		return nil, err
	}
	engine, meta, err := t.open(args)
	if err != nil {
		return nil, err
	}
	hits := engine.RankedHits(name, getIntArg(args, "top_k", query.AllHits))
	shown := hits
	if limit := t.out.GetListLimit(); len(shown) > limit {
		shown = shown[:limit]
	}
	out := make([]rankedSummary, 0, len(shown))
	for _, h := range shown {
		out = append(out, rankedSummary{ElementSummary: render.Summarize(h.Element), Score: h.Score})
	}
	return withSession(meta, map[string]interface{}{
		"count":     len(hits),
		"elements":  out,
		"truncated": len(shown) < len(hits),
	}), nil
}

type FindByRoleTool struct{ snapshotTool }

func (t *FindByRoleTool) Name() string { return "find_by_role" }
func (t *FindByRoleTool) Description() string {
	return `Find elements with an exact role such as button, link or textbox.

When nothing matches, "suggestions" lists similar roles present in the snapshot.

Returns: {count, elements, truncated, suggestions?}.`
}
func (t *FindByRoleTool) InputSchema() map[string]interface{} {
	return schema(map[string]interface{}{
		"role": prop("string", "Role to match exactly"),
	}, "role")
}
func (t *FindByRoleTool) Execute(_ context.Context, args map[string]interface{}) (interface{}, error) {
	role, err := requireStringArg(args, "role")
	if err != nil {
		return nil, err
	}
	engine, meta, err := t.open(args)
	if err != nil {
		return nil, err
	}
	els := engine.FindByRole(role)
	payload := withSession(meta, elementList(els, t.out.GetListLimit()))
	if len(els) == 0 {
		payload["suggestions"] = engine.SuggestRoles(role, 3)
	}
	return payload, nil
}

type FindByRefTool struct{ snapshotTool }

func (t *FindByRefTool) Name() string { return "find_by_ref" }
func (t *FindByRefTool) Description() string {
	return `Look up the element with a ref. The first element in document order wins
when refs repeat.

Returns: {found, element?, children?}.`
}
func (t *FindByRefTool) InputSchema() map[string]interface{} {
	return schema(map[string]interface{}{
		"ref": prop("string", "Element ref, e.g. ref-btn-1"),
	}, "ref")
}
func (t *FindByRefTool) Execute(_ context.Context, args map[string]interface{}) (interface{}, error) {
	ref, err := requireStringArg(args, "ref")
	if err != nil {
		return nil, err
	}
	engine, meta, err := t.open(args)
	if err != nil {
		return nil, err
	}
	el, ok := engine.FindByRef(ref)
	payload := withSession(meta, map[string]interface{}{"found": ok})
	if ok {
		payload["element"] = render.Summarize(el)
		payload["children"] = render.SummarizeAll(el.Children, t.out.GetListLimit())
	}
	return payload, nil
}

type FindByTextTool struct{ snapshotTool }

func (t *FindByTextTool) Name() string { return "find_by_text" }
func (t *FindByTextTool) Description() string {
	return `Find elements whose name contains text, ignoring case unless case_sensitive is set.

Returns: {count, elements, truncated}.`
}
func (t *FindByTextTool) InputSchema() map[string]interface{} {
	return schema(map[string]interface{}{
		"text":           prop("string", "Text to search for"),
		"case_sensitive": prop("boolean", "Match case (default false)"),
	}, "text")
}
func (t *FindByTextTool) Execute(_ context.Context, args map[string]interface{}) (interface{}, error) {
	text, err := requireStringArg(args, "text")
	if err != nil {
		return nil, err
	}
	engine, meta, err := t.open(args)
	if err != nil {
		return nil, err
	}
	els := engine.FindByText(text, getBoolArg(args, "case_sensitive", false))
	return withSession(meta, elementList(els, t.out.GetListLimit())), nil
}

type FindByRegexTool struct{ snapshotTool }

func (t *FindByRegexTool) Name() string { return "find_by_regex" }
func (t *FindByRegexTool) Description() string {
	return `Find elements whose name, role or ref matches a regular expression (RE2 syntax).

field defaults to "name". Invalid patterns or fields return an error.

Returns: {count, elements, truncated}.`
}
func (t *FindByRegexTool) InputSchema() map[string]interface{} {
	return schema(map[string]interface{}{
		"pattern":        prop("string", "Regular expression"),
		"field":          prop("string", "name, role or ref (default name)"),
		"case_sensitive": prop("boolean", "Match case (default false)"),
	}, "pattern")
}
func (t *FindByRegexTool) Execute(_ context.Context, args map[string]interface{}) (interface{}, error) {
	pattern, err := requireStringArg(args, "pattern")
	if err != nil {
		return nil, err
	}
	engine, meta, err := t.open(args)
	if err != nil {
		return nil, err
	}
	field := getStringArg(args, "field")
	if field == "" {
		field = "name"
	}
	els, err := engine.FindByRegex(pattern, field, getBoolArg(args, "case_sensitive", false))
	if err != nil {
		return nil, err
	}
	return withSession(meta, elementList(els, t.out.GetListLimit())), nil
}

type FindBySelectorTool struct{ snapshotTool }

func (t *FindBySelectorTool) Name() string { return "find_by_selector" }
func (t *FindBySelectorTool) Description() string {
	return `Find elements with a CSS-like selector over roles, refs and attributes.

EXAMPLES:
- button
- #ref-btn-1
- button[name="Search"]
- [name*="login"]
- navigation link
- list > listitem

Malformed selectors match nothing rather than failing.

Returns: {count, elements, truncated}.`
}
func (t *FindBySelectorTool) InputSchema() map[string]interface{} {
	return schema(map[string]interface{}{
		"selector": prop("string", "Selector expression"),
	}, "selector")
}
func (t *FindBySelectorTool) Execute(_ context.Context, args map[string]interface{}) (interface{}, error) {
	sel, err := requireStringArg(args, "selector")
	if err != nil {
		return nil, err
	}
	engine, meta, err := t.open(args)
	if err != nil {
		return nil, err
	}
	els, err := engine.FindBySelector(sel)
	if err != nil {
		return nil, err
	}
	return withSession(meta, elementList(els, t.out.GetListLimit())), nil
}

type InteractiveElementsTool struct{ snapshotTool }

func (t *InteractiveElementsTool) Name() string { return "find_interactive_elements" }
func (t *InteractiveElementsTool) Description() string {
	return `List interactive elements grouped by role (button, link, textbox, checkbox,
radio, combobox, tab). Every role appears, possibly with zero elements.

Returns: {count, roles: {role: {count, elements, truncated}}}.`
}
func (t *InteractiveElementsTool) InputSchema() map[string]interface{} {
	return schema(nil)
}
func (t *InteractiveElementsTool) Execute(_ context.Context, args map[string]interface{}) (interface{}, error) {
	engine, meta, err := t.open(args)
	if err != nil {
		return nil, err
	}
	groups := engine.InteractiveElements()
	roles := make(map[string]interface{}, len(groups))
	total := 0
	for _, role := range query.InteractiveOrder() {
		roles[role] = elementList(groups[role], t.out.GetInteractiveLimit())
		total += len(groups[role])
	}
	return withSession(meta, map[string]interface{}{
		"count": total,
		"roles": roles,
	}), nil
}

type CountElementsTool struct{ snapshotTool }

func (t *CountElementsTool) Name() string { return "count_elements" }
func (t *CountElementsTool) Description() string {
	return `Count elements per role.

Returns: {count, roles: {role: n}}.`
}
func (t *CountElementsTool) InputSchema() map[string]interface{} {
	return schema(nil)
}
func (t *CountElementsTool) Execute(_ context.Context, args map[string]interface{}) (interface{}, error) {
	engine, meta, err := t.open(args)
	if err != nil {
		return nil, err
	}
	counts := engine.CountByRole()
	total := 0
	for _, n := range counts {
		total += n
	}
	return withSession(meta, map[string]interface{}{
		"count": total,
		"roles": counts,
	}), nil
}

type ElementPathTool struct{ snapshotTool }

func (t *ElementPathTool) Name() string { return "get_element_path" }
func (t *ElementPathTool) Description() string {
	return `Return the chain of elements from a root down to the element with ref.

Returns: {found, count, path: [{role, ref, name}]}.`
}
func (t *ElementPathTool) InputSchema() map[string]interface{} {
	return schema(map[string]interface{}{
		"ref": prop("string", "Element ref"),
	}, "ref")
}
func (t *ElementPathTool) Execute(_ context.Context, args map[string]interface{}) (interface{}, error) {
	ref, err := requireStringArg(args, "ref")
	if err != nil {
		return nil, err
	}
	engine, meta, err := t.open(args)
	if err != nil {
		return nil, err
	}
	path := engine.PathTo(ref)
	return withSession(meta, map[string]interface{}{
		"found": len(path) > 0,
		"count": len(path),
		"path":  render.SummarizeAll(path, 0),
	}), nil
}

type AllRefsTool struct{ snapshotTool }

func (t *AllRefsTool) Name() string { return "extract_all_refs" }
func (t *AllRefsTool) Description() string {
	return `List every ref in document order, duplicates included.

Returns: {count, refs, truncated}.`
}
func (t *AllRefsTool) InputSchema() map[string]interface{} {
	return schema(nil)
}
func (t *AllRefsTool) Execute(_ context.Context, args map[string]interface{}) (interface{}, error) {
	engine, meta, err := t.open(args)
	if err != nil {
		return nil, err
	}
	refs := engine.AllRefs()
	shown := refs
	if limit := t.out.GetRefsLimit(); len(shown) > limit {
		shown = shown[:limit]
	}
	return withSession(meta, map[string]interface{}{
		"count":     len(refs),
		"refs":      shown,
		"truncated": len(shown) < len(refs),
	}), nil
}

type ToMarkdownTool struct{ snapshotTool }

func (t *ToMarkdownTool) Name() string { return "to_markdown" }
func (t *ToMarkdownTool) Description() string {
	return `Render the snapshot as a Markdown document: role statistics, an outline of the
tree and reference tables of interactive elements.

Returns: {markdown}.`
}
func (t *ToMarkdownTool) InputSchema() map[string]interface{} {
	return schema(map[string]interface{}{
		"include_refs": prop("boolean", "Include refs in the outline and tables (default true)"),
		"max_depth":    prop("integer", "Deepest tree level to render; negative for no limit"),
	})
}
func (t *ToMarkdownTool) Execute(_ context.Context, args map[string]interface{}) (interface{}, error) {
	engine, meta, err := t.open(args)
	if err != nil {
		return nil, err
	}
	opts := render.DefaultMarkdownOptions()
	opts.IncludeRefs = getBoolArg(args, "include_refs", true)
	opts.MaxDepth = getIntArg(args, "max_depth", -1)
	md := render.Markdown(engine, opts)
	return withSession(meta, map[string]interface{}{
		"count":    engine.Tree().Len(),
		"markdown": md,
	}), nil
}

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"snapshot-query/internal/config"
	"snapshot-query/internal/query"
	"snapshot-query/internal/render"
	"snapshot-query/internal/snapshot"
)

// env is one loaded snapshot plus output settings.
type env struct {
	engine *query.Engine
	cfg    config.Config
	out    io.Writer
	json   bool
}

func openEnv(cfg config.Config, path string, out io.Writer, asJSON bool) (*env, error) {
	engine, err := query.Open(path,
		query.WithBM25Params(cfg.Search.K1, cfg.Search.B),
		query.WithStemming(cfg.Search.Stemming),
	)
	if err != nil {
		return nil, err
	}
	return &env{engine: engine, cfg: cfg, out: out, json: asJSON}, nil
}

func (e *env) writeJSON(v interface{}) error {
	enc := json.NewEncoder(e.out)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

func (e *env) list(header string, els []*snapshot.Element, limit int) error {
	if e.json {
		return e.writeJSON(map[string]interface{}{
			"count":    len(els),
			"elements": render.SummarizeAll(els, 0),
		})
	}
	fmt.Fprintln(e.out, header)
	render.WriteList(e.out, els, limit)
	return nil
}

func (e *env) findName(text string, exact bool) error {
	els := e.engine.FindByName(text, exact)
	header := fmt.Sprintf("Found %d matching elements:", len(els))
	if exact {
		header = fmt.Sprintf("Found %d exact matches:", len(els))
	}
	return e.list(header, els, 0)
}

func (e *env) findNameBM25(text string, topK int) error {
	hits := e.engine.RankedHits(text, topK)
	if e.json {
		type hit struct {
			render.ElementSummary
			Score float64 `json:"score"`
		}
		out := make([]hit, 0, len(hits))
		for _, h := range hits {
			out = append(out, hit{ElementSummary: render.Summarize(h.Element), Score: h.Score})
		}
		return e.writeJSON(map[string]interface{}{"count": len(out), "elements": out})
	}
	fmt.Fprintf(e.out, "Found %d relevant elements (by relevance):\n", len(hits))
	for _, h := range hits {
		render.WriteElement(e.out, h.Element, 0)
		fmt.Fprintf(e.out, "score: %.4f\n\n", h.Score)
	}
	return nil
}

func (e *env) findRole(role string) error {
	els := e.engine.FindByRole(role)
	if err := e.list(fmt.Sprintf("Found %d %s elements:", len(els), role), els, roleLimit); err != nil {
		return err
	}
	if len(els) == 0 && !e.json {
		if s := e.engine.SuggestRoles(role, suggestionLimit); len(s) > 0 {
			fmt.Fprintf(e.out, "did you mean: %s?\n", strings.Join(s, ", "))
		}
	}
	return nil
}

func (e *env) findRef(ref string) error {
	el, ok := e.engine.FindByRef(ref)
	if e.json {
		payload := map[string]interface{}{"found": ok}
		if ok {
			payload["element"] = render.Summarize(el)
		}
		return e.writeJSON(payload)
	}
	if !ok {
		fmt.Fprintln(e.out, "No matching element")
		return nil
	}
	fmt.Fprintln(e.out, "Found element:")
	render.WriteElement(e.out, el, 0)
	return nil
}

func (e *env) findText(text string, caseSensitive bool) error {
	els := e.engine.FindByText(text, caseSensitive)
	return e.list(fmt.Sprintf("Found %d elements containing the text:", len(els)), els, textLimit)
}

func (e *env) findGrep(pattern, field string, caseSensitive bool) error {
	if field == "" {
		field = "name"
	}
	els, err := e.engine.FindByRegex(pattern, field, caseSensitive)
	if err != nil {
		return err
	}
	header := fmt.Sprintf("Found %d elements matching '%s' (field: %s):", len(els), pattern, field)
	return e.list(header, els, grepLimit)
}

func (e *env) findSelector(sel string) error {
	els, err := e.engine.FindBySelector(sel)
	if err != nil {
		return err
	}
	return e.list(fmt.Sprintf("Found %d elements matching selector '%s':", len(els), sel), els, selectorLimit)
}

func (e *env) interactive() error {
	groups := e.engine.InteractiveElements()
	if e.json {
		out := make(map[string][]render.ElementSummary, len(groups))
		for role, els := range groups {
			out[role] = render.SummarizeAll(els, 0)
		}
		return e.writeJSON(out)
	}

	total := 0
	for _, els := range groups {
		total += len(els)
	}
	fmt.Fprintf(e.out, "Found %d interactive elements:\n\n", total)
	for _, role := range query.InteractiveOrder() {
		els := groups[role]
		if len(els) == 0 {
			continue
		}
		fmt.Fprintf(e.out, "%s: %d\n", role, len(els))
		shown := els
		if len(shown) > interactiveLimit {
			shown = shown[:interactiveLimit]
		}
		for _, el := range shown {
			render.WriteElement(e.out, el, 1)
			fmt.Fprintln(e.out)
		}
		if len(els) > len(shown) {
			fmt.Fprintf(e.out, "  ... %d more %s elements\n\n", len(els)-len(shown), role)
		}
	}
	return nil
}

func (e *env) count() error {
	counts := e.engine.CountByRole()
	if e.json {
		return e.writeJSON(counts)
	}
	roles := make([]string, 0, len(counts))
	for role := range counts {
		roles = append(roles, role)
	}
	sort.Slice(roles, func(i, j int) bool {
		if counts[roles[i]] != counts[roles[j]] {
			return counts[roles[i]] > counts[roles[j]]
		}
		return roles[i] < roles[j]
	})
	fmt.Fprintln(e.out, "Element counts:")
	for _, role := range roles {
		fmt.Fprintf(e.out, "  %s: %d\n", role, counts[role])
	}
	return nil
}

func (e *env) path(ref string) error {
	path := e.engine.PathTo(ref)
	if e.json {
		return e.writeJSON(map[string]interface{}{
			"found": len(path) > 0,
			"path":  render.SummarizeAll(path, 0),
		})
	}
	if len(path) == 0 {
		fmt.Fprintln(e.out, "No matching element")
		return nil
	}
	fmt.Fprintln(e.out, "Element path:")
	for i, el := range path {
		fmt.Fprintf(e.out, "\nLevel %d:\n", i)
		render.WriteElement(e.out, el, 1)
	}
	return nil
}

func (e *env) allRefs() error {
	refs := e.engine.AllRefs()
	if e.json {
		return e.writeJSON(map[string]interface{}{"count": len(refs), "refs": refs})
	}
	fmt.Fprintf(e.out, "%d refs:\n", len(refs))
	shown := refs
	if len(shown) > refsLimit {
		shown = shown[:refsLimit]
	}
	for _, ref := range shown {
		fmt.Fprintf(e.out, "  %s\n", ref)
	}
	if len(refs) > len(shown) {
		fmt.Fprintf(e.out, "... %d more refs\n", len(refs)-len(shown))
	}
	return nil
}

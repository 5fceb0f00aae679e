package mcp

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"snapshot-query/internal/browser"
	"snapshot-query/internal/mangle"
	"snapshot-query/internal/query"
	"snapshot-query/internal/snapshot"

	"github.com/bmatcuk/doublestar/v4"
)

const defaultSnapshotPattern = "**/*.{yaml,yml}"

type ListSnapshotsTool struct {
	root string
}

func (t *ListSnapshotsTool) Name() string { return "list_snapshots" }
func (t *ListSnapshotsTool) Description() string {
	return `List snapshot files under a directory.

USE THIS FIRST when you do not know the file_path of a snapshot.

Returns: {root, count, files}.`
}
func (t *ListSnapshotsTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"root":    prop("string", "Directory to search (defaults to the configured snapshot root)"),
			"pattern": prop("string", "Glob pattern relative to root, ** allowed (default **/*.{yaml,yml})"),
		},
	}
}
func (t *ListSnapshotsTool) Execute(_ context.Context, args map[string]interface{}) (interface{}, error) {
	root := getStringArg(args, "root")
	if root == "" {
		root = t.root
	}
	if root == "" {
		root = "."
	}
	pattern := getStringArg(args, "pattern")
	if pattern == "" {
		pattern = defaultSnapshotPattern
	}
	files, err := findSnapshots(root, pattern)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"root":  root,
		"count": len(files),
		"files": files,
	}, nil
}

// findSnapshots globs pattern under root and returns paths joined to root.
func findSnapshots(root, pattern string) ([]string, error) {
	if !doublestar.ValidatePattern(pattern) {
		return nil, fmt.Errorf("invalid pattern %q", pattern)
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("snapshot root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("snapshot root %s is not a directory", root)
	}

	matches, err := doublestar.Glob(os.DirFS(root), pattern, doublestar.WithFilesOnly())
	if err != nil {
		return nil, fmt.Errorf("glob %s: %w", pattern, err)
	}
	files := make([]string, 0, len(matches))
	for _, m := range matches {
		files = append(files, filepath.Join(root, filepath.FromSlash(m)))
	}
	return files, nil
}

type ListSessionsTool struct {
	sessions *SessionCache
}

func (t *ListSessionsTool) Name() string { return "list_sessions" }
func (t *ListSessionsTool) Description() string {
	return `List loaded snapshots and their session ids.

Returns: {count, sessions: [{id, source, elements, loaded_at, last_active}]}.`
}
func (t *ListSessionsTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type":       "object",
		"properties": map[string]interface{}{},
	}
}
func (t *ListSessionsTool) Execute(_ context.Context, _ map[string]interface{}) (interface{}, error) {
	sessions := t.sessions.List()
	return map[string]interface{}{"count": len(sessions), "sessions": sessions}, nil
}

type CloseSessionTool struct {
	sessions *SessionCache
}

func (t *CloseSessionTool) Name() string { return "close_session" }
func (t *CloseSessionTool) Description() string {
	return `Forget a loaded snapshot. The next call naming its file loads it again.

Returns: {closed}.`
}
func (t *CloseSessionTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"session_id": prop("string", "Session to close"),
		},
		"required": []string{"session_id"},
	}
}
func (t *CloseSessionTool) Execute(_ context.Context, args map[string]interface{}) (interface{}, error) {
	id, err := requireStringArg(args, "session_id")
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"closed": t.sessions.Drop(id)}, nil
}

// datalogView loads at most one session's tree into the shared Mangle
// engine at a time.
type datalogView struct {
	mu        sync.Mutex
	engine    *mangle.Engine
	loadedID  string
	loadedKey string
}

func (v *datalogView) ensure(ctx context.Context, engine *query.Engine, meta Session) error {
	key := meta.Hash + "@" + meta.LoadedAt.String()
	if v.loadedID == meta.ID && v.loadedKey == key {
		return nil
	}
	if err := v.engine.LoadTree(ctx, engine.Tree()); err != nil {
		return err
	}
	v.loadedID = meta.ID
	v.loadedKey = key
	return nil
}

type QueryDatalogTool struct {
	snapshotTool
	view *datalogView
}

func (t *QueryDatalogTool) Name() string { return "query_datalog" }
func (t *QueryDatalogTool) Description() string {
	return `Run a Datalog query over the snapshot.

BASE FACTS:
- element(Ref, Role, Name)   Name is "" when absent
- child(Parent, Child), root(Ref), position(Ref, Index)

DERIVED:
- descendant(Ancestor, Ref), interactive(Ref, Role)
- labelled_interactive(Ref, Role, Name), unlabelled_interactive(Ref, Role)
- leaf(Ref), interactive_within(Container, Ref, Role)

EXAMPLES:
- unlabelled_interactive(R, Role).
- interactive_within("ref-nav", R, "link").

Pass rule to add a rule (with its Decl) before querying.

Returns: {count, results: [{Var: value}]}.`
}
func (t *QueryDatalogTool) InputSchema() map[string]interface{} {
	return schema(map[string]interface{}{
		"query": prop("string", "Single atom query, e.g. interactive(R, Role)."),
		"rule":  prop("string", "Optional rule source to add before querying"),
	}, "query")
}
func (t *QueryDatalogTool) Execute(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	q, err := requireStringArg(args, "query")
	if err != nil {
		return nil, err
	}
	if !t.view.engine.Enabled() {
		return nil, mangle.ErrDisabled
	}
	engine, meta, err := t.open(args)
	if err != nil {
		return nil, err
	}

	t.view.mu.Lock()
	defer t.view.mu.Unlock()

	if err := t.view.ensure(ctx, engine, meta); err != nil {
		return nil, err
	}
	if rule := getStringArg(args, "rule"); rule != "" {
		if err := t.view.engine.AddRule(ctx, rule); err != nil {
			return nil, err
		}
	}
	results, err := t.view.engine.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	limit := t.out.GetRefsLimit()
	shown := results
	if len(shown) > limit {
		shown = shown[:limit]
	}
	return withSession(meta, map[string]interface{}{
		"count":     len(results),
		"results":   shown,
		"truncated": len(shown) < len(results),
	}), nil
}

type CaptureSnapshotTool struct {
	sessions *SessionCache
	capturer *browser.Capturer
}

func (t *CaptureSnapshotTool) Name() string { return "capture_snapshot" }
func (t *CaptureSnapshotTool) Description() string {
	return `Open a URL in Chrome and capture its accessibility tree as a new session.

PREREQUISITE: browser.debugger_url or browser.launch must be configured.

Pass output to also write the snapshot as YAML; the session then tracks that file.

Returns: {session_id, url, title, count, file_path?}.`
}
func (t *CaptureSnapshotTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"url":    prop("string", "Page to capture"),
			"output": prop("string", "Optional path to write the snapshot YAML"),
		},
		"required": []string{"url"},
	}
}
func (t *CaptureSnapshotTool) Execute(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	url, err := requireStringArg(args, "url")
	if err != nil {
		return nil, err
	}
	if t.capturer == nil {
		return nil, errors.New("browser capture is not configured")
	}

	capture, err := t.capturer.Capture(ctx, url)
	if err != nil {
		return nil, err
	}

	payload := map[string]interface{}{
		"url":   capture.URL,
		"title": capture.Title,
		"count": capture.Tree.Len(),
	}

	if output := getStringArg(args, "output"); output != "" {
		if err := writeSnapshot(output, capture.Tree); err != nil {
			return nil, err
		}
		_, meta, err := t.sessions.Open(output)
		if err != nil {
			return nil, err
		}
		payload["session_id"] = meta.ID
		payload["file_path"] = meta.Source
		return payload, nil
	}

	_, meta := t.sessions.Add(capture.URL, capture.Tree)
	payload["session_id"] = meta.ID
	return payload, nil
}

func writeSnapshot(path string, tree *snapshot.Tree) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create snapshot: %w", err)
	}
	if err := snapshot.Encode(f, tree); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

package mangle

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"snapshot-query/internal/config"
	"snapshot-query/internal/snapshot"
)

func testTree() *snapshot.Tree {
	return snapshot.NewTree(
		snapshot.NewUnnamed("generic", "ref-root",
			snapshot.NewElement("button", "ref-btn-1", "Search"),
			snapshot.NewUnnamed("button", "ref-btn-icon"),
			snapshot.NewUnnamed("navigation", "ref-nav",
				snapshot.NewElement("link", "ref-link-1", "Home"),
				snapshot.NewElement("heading", "ref-h1", "Welcome"),
			),
		),
	)
}

func newLoadedEngine(t *testing.T) *Engine {
	t.Helper()
	engine, err := NewEngine(config.MangleConfig{Enable: true})
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}
	if err := engine.LoadTree(context.Background(), testTree()); err != nil {
		t.Fatalf("LoadTree failed: %v", err)
	}
	return engine
}

func TestEngineLoadTree(t *testing.T) {
	engine, err := NewEngine(config.MangleConfig{Enable: true})
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}
	if engine.Ready() {
		t.Fatal("engine should not be ready before a tree is loaded")
	}
	if err := engine.LoadTree(context.Background(), testTree()); err != nil {
		t.Fatalf("LoadTree failed: %v", err)
	}
	if !engine.Ready() {
		t.Fatal("engine not ready after LoadTree")
	}

	if got := len(engine.FactsByPredicate("element")); got != 6 {
		t.Errorf("expected 6 element facts, got %d", got)
	}
	if got := len(engine.FactsByPredicate("child")); got != 5 {
		t.Errorf("expected 5 child facts, got %d", got)
	}
	roots := engine.FactsByPredicate("root")
	if len(roots) != 1 || roots[0].Args[0] != "ref-root" {
		t.Errorf("unexpected root facts: %+v", roots)
	}
}

func TestTreeFactsPositions(t *testing.T) {
	facts := TreeFacts(testTree())
	var refs []interface{}
	for _, f := range facts {
		if f.Predicate == "position" {
			refs = append(refs, f.Args[0])
			if f.Args[1] != int64(len(refs)-1) {
				t.Errorf("position of %v = %v, want %d", f.Args[0], f.Args[1], len(refs)-1)
			}
		}
	}
	want := []interface{}{"ref-root", "ref-btn-1", "ref-btn-icon", "ref-nav", "ref-link-1", "ref-h1"}
	if len(refs) != len(want) {
		t.Fatalf("expected %d positions, got %d", len(want), len(refs))
	}
	for i := range want {
		if refs[i] != want[i] {
			t.Errorf("position %d: got %v, want %v", i, refs[i], want[i])
		}
	}
}

func TestEngineQueryDerived(t *testing.T) {
	engine := newLoadedEngine(t)
	ctx := context.Background()

	results, err := engine.Query(ctx, "interactive(Ref, Role).")
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(results) != 3 {
		t.Errorf("expected 3 interactive elements, got %d: %+v", len(results), results)
	}

	results, err = engine.Query(ctx, "unlabelled_interactive(Ref, Role)")
	if err != nil {
		t.Fatalf("Query without trailing dot failed: %v", err)
	}
	if len(results) != 1 || results[0]["Ref"] != "ref-btn-icon" {
		t.Errorf("unexpected unlabelled results: %+v", results)
	}

	results, err = engine.Query(ctx, "labelled_interactive(Ref, _, Name).")
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(results) != 2 {
		t.Errorf("expected 2 labelled interactive elements, got %d", len(results))
	}
	for _, r := range results {
		if _, ok := r["_"]; ok {
			t.Error("wildcard should not be bound")
		}
	}
}

func TestEngineQueryConstantMatching(t *testing.T) {
	engine := newLoadedEngine(t)

	results, err := engine.Query(context.Background(), `descendant("ref-nav", D).`)
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(results) != 2 {
		t.Errorf("expected 2 descendants of ref-nav, got %d: %+v", len(results), results)
	}

	results, err = engine.Query(context.Background(), `interactive_within("ref-nav", R, Role).`)
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(results) != 1 || results[0]["R"] != "ref-link-1" {
		t.Errorf("unexpected interactive_within results: %+v", results)
	}
}

func TestEngineEvaluate(t *testing.T) {
	engine := newLoadedEngine(t)

	facts, err := engine.Evaluate(context.Background(), "descendant")
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	// root has 5 descendants, nav has 2
	if len(facts) != 7 {
		t.Errorf("expected 7 descendant facts, got %d", len(facts))
	}

	leaves, err := engine.Evaluate(context.Background(), "leaf")
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if len(leaves) != 4 {
		t.Errorf("expected 4 leaves, got %d", len(leaves))
	}

	if _, err := engine.Evaluate(context.Background(), "no_such_predicate"); err == nil {
		t.Error("expected error for unknown predicate")
	}
}

func TestEngineAddRule(t *testing.T) {
	engine := newLoadedEngine(t)
	ctx := context.Background()

	rule := `
Decl named_link(Ref, Name).
named_link(R, N) :- element(R, "link", N), N != "".
`
	if err := engine.AddRule(ctx, rule); err != nil {
		t.Fatalf("AddRule failed: %v", err)
	}

	results, err := engine.Query(ctx, "named_link(R, N).")
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(results) != 1 || results[0]["N"] != "Home" {
		t.Errorf("unexpected named_link results: %+v", results)
	}

	found := false
	for _, p := range engine.Predicates() {
		if p == "named_link/2" {
			found = true
		}
	}
	if !found {
		t.Error("named_link/2 missing from Predicates")
	}
}

func TestEngineAddRuleParseError(t *testing.T) {
	engine := newLoadedEngine(t)
	before := len(engine.Predicates())

	if err := engine.AddRule(context.Background(), "this is not valid mangle"); err == nil {
		t.Fatal("expected parse error")
	}
	if got := len(engine.Predicates()); got != before {
		t.Errorf("failed rule changed predicates: %d -> %d", before, got)
	}
}

func TestEngineReloadReplacesFacts(t *testing.T) {
	engine := newLoadedEngine(t)
	ctx := context.Background()

	small := snapshot.NewTree(snapshot.NewElement("button", "only", "Go"))
	if err := engine.LoadTree(ctx, small); err != nil {
		t.Fatalf("LoadTree failed: %v", err)
	}

	results, err := engine.Query(ctx, "element(R, Role, Name).")
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(results) != 1 || results[0]["R"] != "only" {
		t.Errorf("expected only the new tree's element, got %+v", results)
	}
}

func TestEngineQueryErrors(t *testing.T) {
	engine := newLoadedEngine(t)
	ctx := context.Background()

	if _, err := engine.Query(ctx, ""); err == nil {
		t.Error("expected error for empty query")
	}
	if _, err := engine.Query(ctx, "interactive(R, ."); err == nil {
		t.Error("expected error for invalid syntax")
	}

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	if _, err := engine.Query(cancelled, "root(R)."); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestEngineDisabled(t *testing.T) {
	engine, err := NewEngine(config.MangleConfig{Enable: false})
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}
	ctx := context.Background()

	if !engine.Ready() {
		t.Error("disabled engine should report ready")
	}
	if err := engine.LoadTree(ctx, testTree()); !errors.Is(err, ErrDisabled) {
		t.Errorf("LoadTree: expected ErrDisabled, got %v", err)
	}
	if _, err := engine.Query(ctx, "root(R)."); !errors.Is(err, ErrDisabled) {
		t.Errorf("Query: expected ErrDisabled, got %v", err)
	}
	if _, err := engine.Evaluate(ctx, "root"); !errors.Is(err, ErrDisabled) {
		t.Errorf("Evaluate: expected ErrDisabled, got %v", err)
	}
	if err := engine.AddRule(ctx, "Decl x(A)."); !errors.Is(err, ErrDisabled) {
		t.Errorf("AddRule: expected ErrDisabled, got %v", err)
	}
	if engine.Predicates() != nil {
		t.Error("disabled engine should list no predicates")
	}
}

func TestEngineSchemaPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "extra.mg")
	src := "Decl heading_text(Ref, Name).\nheading_text(R, N) :- element(R, \"heading\", N).\n"
	if err := os.WriteFile(path, []byte(src), 0644); err != nil {
		t.Fatalf("write schema: %v", err)
	}

	engine, err := NewEngine(config.MangleConfig{Enable: true, SchemaPath: path})
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}
	if err := engine.LoadTree(context.Background(), testTree()); err != nil {
		t.Fatalf("LoadTree failed: %v", err)
	}
	results, err := engine.Query(context.Background(), "heading_text(R, N).")
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(results) != 1 || results[0]["N"] != "Welcome" {
		t.Errorf("unexpected heading_text results: %+v", results)
	}
}

func TestEngineSchemaPathErrors(t *testing.T) {
	if _, err := NewEngine(config.MangleConfig{Enable: true, SchemaPath: "/nonexistent/schema.mg"}); err == nil {
		t.Error("expected error for missing schema file")
	}

	path := filepath.Join(t.TempDir(), "bad.mg")
	if err := os.WriteFile(path, []byte("not ( valid"), 0644); err != nil {
		t.Fatalf("write schema: %v", err)
	}
	if _, err := NewEngine(config.MangleConfig{Enable: true, SchemaPath: path}); err == nil {
		t.Error("expected error for invalid schema")
	}
}

func TestToConstantTypes(t *testing.T) {
	cases := []interface{}{"s", 3, int64(4), 2.5, true}
	want := []interface{}{"s", int64(3), int64(4), 2.5, "true"}
	for i, v := range cases {
		if got := convertConstant(toConstant(v)); got != want[i] {
			t.Errorf("round trip of %v = %v (%T), want %v", v, got, got, want[i])
		}
	}
}

func TestQueryPositionBindsIntegers(t *testing.T) {
	engine := newLoadedEngine(t)

	results, err := engine.Query(context.Background(), `position("ref-nav", I)`)
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	if got, ok := results[0]["I"].(int64); !ok || got != 3 {
		t.Errorf("I = %v (%T), want int64 3", results[0]["I"], results[0]["I"])
	}

	all, err := engine.Query(context.Background(), "position(R, I)")
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if _, err := json.Marshal(all); err != nil {
		t.Errorf("position results are not serialisable: %v", err)
	}
}

package mangle

import (
	"bytes"
	"context"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"snapshot-query/internal/config"
	"snapshot-query/internal/snapshot"

	"github.com/google/mangle/analysis"
	"github.com/google/mangle/ast"
	"github.com/google/mangle/engine"
	"github.com/google/mangle/factstore"
	"github.com/google/mangle/parse"
)

//go:embed schema.mg
var snapshotSchema string

// ErrDisabled is returned by query methods when the engine is turned off.
var ErrDisabled = errors.New("mangle engine disabled")

// Fact is one ground atom, either loaded from a tree or derived.
type Fact struct {
	Predicate string        `json:"predicate"`
	Args      []interface{} `json:"args"`
}

// QueryResult binds query variables to values.
type QueryResult map[string]interface{}

// Engine evaluates the snapshot schema, plus any user rules, over the
// facts of one tree.
type Engine struct {
	cfg config.MangleConfig
	mu  sync.RWMutex

	sources     []string
	programInfo *analysis.ProgramInfo
	store       factstore.FactStore

	facts  []Fact
	index  map[string][]int
	loaded bool
}

// NewEngine compiles the built-in schema and, when configured, the extra
// rules at cfg.SchemaPath.
func NewEngine(cfg config.MangleConfig) (*Engine, error) {
	e := &Engine{
		cfg:     cfg,
		sources: []string{snapshotSchema},
		store:   factstore.NewSimpleInMemoryStore(),
		index:   make(map[string][]int),
	}
	if !cfg.Enable {
		return e, nil
	}

	if cfg.SchemaPath != "" {
		data, err := os.ReadFile(cfg.SchemaPath)
		if err != nil {
			return nil, fmt.Errorf("read schema: %w", err)
		}
		e.sources = append(e.sources, string(data))
	}

	info, err := compile(e.sources)
	if err != nil {
		return nil, err
	}
	e.programInfo = info
	return e, nil
}

func compile(sources []string) (*analysis.ProgramInfo, error) {
	unit, err := parse.Unit(strings.NewReader(strings.Join(sources, "\n")))
	if err != nil {
		return nil, fmt.Errorf("parse schema: %w", err)
	}
	info, err := analysis.AnalyzeOneUnit(unit, make(map[ast.PredicateSym]ast.Decl))
	if err != nil {
		return nil, fmt.Errorf("analyze schema: %w", err)
	}
	return info, nil
}

// Enabled reports whether the engine evaluates anything.
func (e *Engine) Enabled() bool {
	return e.cfg.Enable
}

// TreeFacts converts a tree to base facts in pre-order.
func TreeFacts(tree *snapshot.Tree) []Fact {
	facts := make([]Fact, 0, tree.Len()*3+len(snapshot.InteractiveRoles))
	for _, role := range snapshot.InteractiveRoles {
		facts = append(facts, Fact{Predicate: "interactive_role", Args: []interface{}{role}})
	}

	pos := 0
	snapshot.Walk(tree.Roots, func(el *snapshot.Element, path []*snapshot.Element) bool {
		facts = append(facts,
			Fact{Predicate: "element", Args: []interface{}{el.Ref, el.Role, el.DisplayName()}},
			Fact{Predicate: "position", Args: []interface{}{el.Ref, int64(pos)}},
		)
		if len(path) == 1 {
			facts = append(facts, Fact{Predicate: "root", Args: []interface{}{el.Ref}})
		} else {
			parent := path[len(path)-2]
			facts = append(facts, Fact{Predicate: "child", Args: []interface{}{parent.Ref, el.Ref}})
		}
		pos++
		return true
	})
	return facts
}

// LoadTree replaces the engine's facts with those of tree and evaluates
// the program.
func (e *Engine) LoadTree(ctx context.Context, tree *snapshot.Tree) error {
	if !e.cfg.Enable {
		return ErrDisabled
	}
	facts := TreeFacts(tree)

	e.mu.Lock()
	defer e.mu.Unlock()

	e.store = factstore.NewSimpleInMemoryStore()
	e.facts = facts
	e.rebuildIndex()
	for _, f := range facts {
		e.store.Add(e.factToAtom(f))
	}
	e.loaded = true
	return e.evalLocked(ctx)
}

func (e *Engine) evalLocked(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := engine.EvalProgram(e.programInfo, e.store); err != nil {
		return fmt.Errorf("eval program: %w", err)
	}
	return nil
}

// AddRule extends the program with ruleSource and re-evaluates the
// loaded tree. A rule that fails analysis leaves the program unchanged.
func (e *Engine) AddRule(ctx context.Context, ruleSource string) error {
	if !e.cfg.Enable {
		return ErrDisabled
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	sources := append(append([]string(nil), e.sources...), ruleSource)
	info, err := compile(sources)
	if err != nil {
		return fmt.Errorf("add rule: %w", err)
	}
	e.sources = sources
	e.programInfo = info

	if !e.loaded {
		return nil
	}
	return e.evalLocked(ctx)
}

// Query runs a single atom query such as `interactive(R, "button").` and
// returns one binding per matching fact.
func (e *Engine) Query(ctx context.Context, queryStr string) ([]QueryResult, error) {
	if !e.cfg.Enable {
		return nil, ErrDisabled
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	q := strings.TrimSpace(queryStr)
	if q == "" {
		return nil, fmt.Errorf("no query found")
	}
	if !strings.HasSuffix(q, ".") {
		q += "."
	}

	unit, err := parse.Unit(bytes.NewReader([]byte(q)))
	if err != nil {
		return nil, fmt.Errorf("parse query: %w", err)
	}
	if len(unit.Clauses) == 0 {
		return nil, fmt.Errorf("no query found")
	}
	queryAtom := unit.Clauses[0].Head

	e.mu.RLock()
	defer e.mu.RUnlock()

	results := make([]QueryResult, 0)
	err = e.store.GetFacts(queryAtom, func(atom ast.Atom) error {
		result := make(QueryResult)
		for i, arg := range queryAtom.Args {
			if i >= len(atom.Args) {
				break
			}
			if v, ok := arg.(ast.Variable); ok && v.Symbol != "_" {
				result[v.Symbol] = convertConstant(atom.Args[i])
			}
		}
		results = append(results, result)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("query execution: %w", err)
	}
	return results, nil
}

// Evaluate returns every fact of predicate, derived or loaded.
func (e *Engine) Evaluate(ctx context.Context, predicate string) ([]Fact, error) {
	if !e.cfg.Enable {
		return nil, ErrDisabled
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	arity := -1
	for sym := range e.programInfo.Decls {
		if sym.Symbol == predicate {
			arity = sym.Arity
			break
		}
	}
	if arity < 0 {
		return nil, fmt.Errorf("unknown predicate %q", predicate)
	}

	args := make([]ast.BaseTerm, arity)
	for i := range args {
		args[i] = ast.Variable{Symbol: fmt.Sprintf("V%d", i)}
	}
	queryAtom := ast.Atom{Predicate: ast.PredicateSym{Symbol: predicate, Arity: arity}, Args: args}

	facts := make([]Fact, 0)
	err := e.store.GetFacts(queryAtom, func(atom ast.Atom) error {
		facts = append(facts, atomToFact(atom))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("get facts: %w", err)
	}
	sortFacts(facts)
	return facts, nil
}

// Predicates lists declared predicates as name/arity, sorted.
func (e *Engine) Predicates() []string {
	if !e.cfg.Enable {
		return nil
	}
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]string, 0, len(e.programInfo.Decls))
	for sym := range e.programInfo.Decls {
		out = append(out, fmt.Sprintf("%s/%d", sym.Symbol, sym.Arity))
	}
	sort.Strings(out)
	return out
}

// FactsByPredicate returns loaded (not derived) facts of predicate in
// tree order.
func (e *Engine) FactsByPredicate(predicate string) []Fact {
	e.mu.RLock()
	defer e.mu.RUnlock()

	indices := e.index[predicate]
	out := make([]Fact, 0, len(indices))
	for _, idx := range indices {
		out = append(out, e.facts[idx])
	}
	return out
}

// Ready reports whether a tree has been loaded, or the engine is off.
func (e *Engine) Ready() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.loaded || !e.cfg.Enable
}

func (e *Engine) rebuildIndex() {
	e.index = make(map[string][]int)
	for i, f := range e.facts {
		e.index[f.Predicate] = append(e.index[f.Predicate], i)
	}
}

func (e *Engine) factToAtom(f Fact) ast.Atom {
	args := make([]ast.BaseTerm, len(f.Args))
	for i, arg := range f.Args {
		args[i] = toConstant(arg)
	}
	return ast.Atom{
		Predicate: ast.PredicateSym{Symbol: f.Predicate, Arity: len(f.Args)},
		Args:      args,
	}
}

func atomToFact(atom ast.Atom) Fact {
	args := make([]interface{}, len(atom.Args))
	for i, arg := range atom.Args {
		args[i] = convertConstant(arg)
	}
	return Fact{Predicate: atom.Predicate.Symbol, Args: args}
}

func toConstant(v interface{}) ast.Constant {
	switch val := v.(type) {
	case string:
		return ast.String(val)
	case int:
		return ast.Number(int64(val))
	case int64:
		return ast.Number(val)
	case float64:
		return ast.Float64(val)
	default:
		return ast.String(fmt.Sprintf("%v", v))
	}
}

func convertConstant(c ast.BaseTerm) interface{} {
	switch term := c.(type) {
	case ast.Constant:
		switch term.Type {
		case ast.StringType:
			val, _ := term.StringValue()
			return val
		case ast.NumberType:
			if val, err := term.NumberValue(); err == nil {
				return val
			}
		case ast.Float64Type:
			if val, err := term.Float64Value(); err == nil {
				return val
			}
		}
		return term.String()
	case ast.Variable:
		return term.Symbol
	case nil:
		return nil
	default:
		return fmt.Sprintf("%v", c)
	}
}

// sortFacts orders facts by their formatted arguments so results are
// stable across evaluations.
func sortFacts(facts []Fact) {
	sort.SliceStable(facts, func(i, j int) bool {
		return fmt.Sprint(facts[i].Args...) < fmt.Sprint(facts[j].Args...)
	})
}

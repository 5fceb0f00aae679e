// Package query is the session facade over a loaded snapshot: structural
// matchers, selector evaluation and lazily built BM25 ranking behind one
// handle that is safe for concurrent use.
package query

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/hbollon/go-edlib"
	"golang.org/x/sync/errgroup"

	"snapshot-query/internal/rank"
	"snapshot-query/internal/selector"
	"snapshot-query/internal/snapshot"
)

// ErrInternal marks a fault raised while evaluating a query against a
// well-formed tree.
var ErrInternal = errors.New("internal query fault")

// Engine answers queries over one immutable tree.
type Engine struct {
	tree   *snapshot.Tree
	source string

	k1   float64
	b    float64
	stem bool

	once  sync.Once
	built atomic.Bool
	index *rank.Index
	named []*snapshot.Element
}

// Option configures an Engine.
type Option func(*Engine)

// WithBM25Params overrides the ranking parameters.
func WithBM25Params(k1, b float64) Option {
	return func(e *Engine) {
		e.k1 = k1
		e.b = b
	}
}

// WithStemming enables Porter2 stemming of ASCII terms in the ranked index.
func WithStemming(enabled bool) Option {
	return func(e *Engine) {
		e.stem = enabled
	}
}

// WithSource records where the tree was loaded from.
func WithSource(path string) Option {
	return func(e *Engine) {
		e.source = path
	}
}

// New wraps an already loaded tree. A nil tree is treated as empty.
func New(tree *snapshot.Tree, opts ...Option) *Engine {
	if tree == nil {
		tree = snapshot.NewTree()
	}
	e := &Engine{
		tree: tree,
		k1:   rank.DefaultK1,
		b:    rank.DefaultB,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Open loads the snapshot at path and returns an engine over it.
func Open(path string, opts ...Option) (*Engine, error) {
	tree, err := snapshot.Load(path)
	if err != nil {
		return nil, err
	}
	return New(tree, append([]Option{WithSource(path)}, opts...)...), nil
}

// Tree returns the underlying tree.
func (e *Engine) Tree() *snapshot.Tree { return e.tree }

// Source returns the path the tree was loaded from, if any.
func (e *Engine) Source() string { return e.source }

// FindByName returns named elements whose name contains text, or equals it
// when exact is set.
func (e *Engine) FindByName(text string, exact bool) []*snapshot.Element {
	return nonNil(e.tree.FindByName(text, exact))
}

// RankedElement pairs an element with its BM25 score.
type RankedElement struct {
	Element *snapshot.Element
	Score   float64
}

// AllHits asks RankedHits and FindByNameRanked for every positive hit.
const AllHits = rank.All

// RankedHits ranks named elements against text, keeping at most topK.
// Zero returns nothing and AllHits every element with a positive score.
func (e *Engine) RankedHits(text string, topK int) []RankedElement {
	ix, named := e.rankIndex()
	hits := ix.Search(text, topK)
	out := make([]RankedElement, 0, len(hits))
	for _, h := range hits {
		out = append(out, RankedElement{Element: named[h.Doc], Score: h.Score})
	}
	return out
}

// FindByNameRanked returns named elements ordered by BM25 relevance.
func (e *Engine) FindByNameRanked(text string, topK int) []*snapshot.Element {
	hits := e.RankedHits(text, topK)
	out := make([]*snapshot.Element, 0, len(hits))
	for _, h := range hits {
		out = append(out, h.Element)
	}
	return out
}

// IndexBuilt reports whether the ranking index has been built.
func (e *Engine) IndexBuilt() bool {
	return e.built.Load()
}

func (e *Engine) rankIndex() (*rank.Index, []*snapshot.Element) {
	e.once.Do(func() {
		tok := rank.NewTokenizer(rank.WithStemming(e.stem))
		ix := rank.NewIndex(rank.WithParams(e.k1, e.b), rank.WithTokenizer(tok))
		named := e.tree.Named()
		for _, el := range named {
			ix.Add(*el.Name)
		}
		ix.Build()
		e.index, e.named = ix, named
		e.built.Store(true)
	})
	return e.index, e.named
}

// FindByRole returns every element with the given role.
func (e *Engine) FindByRole(role string) []*snapshot.Element {
	return nonNil(e.tree.FindByRole(role))
}

// FindByRef returns the first element with the given ref.
func (e *Engine) FindByRef(ref string) (*snapshot.Element, bool) {
	return e.tree.FindByRef(ref)
}

// FindByText is a substring search over names, optionally case-sensitive.
func (e *Engine) FindByText(text string, caseSensitive bool) []*snapshot.Element {
	return nonNil(e.tree.FindByText(text, caseSensitive))
}

// FindByRegex matches pattern against field ("name", "role" or "ref").
func (e *Engine) FindByRegex(pattern, field string, caseSensitive bool) ([]*snapshot.Element, error) {
	els, err := e.tree.FindByRegex(pattern, field, caseSensitive)
	if err != nil {
		return nil, err
	}
	return nonNil(els), nil
}

// FindBySelector evaluates a structural selector. Unparseable selectors
// match nothing; an error is only returned for an internal fault.
func (e *Engine) FindBySelector(sel string) (els []*snapshot.Element, err error) {
	defer func() {
		if r := recover(); r != nil {
			els = nil
			err = fmt.Errorf("%w: selector %q: %v", ErrInternal, sel, r)
		}
	}()
	return selector.Select(e.tree.Roots, sel), nil
}

// InteractiveElements groups interactive elements by role. Every role in
// snapshot.InteractiveRoles is present, possibly with an empty list.
func (e *Engine) InteractiveElements() map[string][]*snapshot.Element {
	roles := snapshot.InteractiveRoles
	found := make([][]*snapshot.Element, len(roles))

	var g errgroup.Group
	for i, role := range roles {
		g.Go(func() error {
			found[i] = e.FindByRole(role)
			return nil
		})
	}
	_ = g.Wait()

	out := make(map[string][]*snapshot.Element, len(roles))
	for i, role := range roles {
		out[role] = found[i]
	}
	return out
}

// InteractiveOrder returns the display order of InteractiveElements keys.
func InteractiveOrder() []string {
	return append([]string(nil), snapshot.InteractiveRoles...)
}

// CountByRole returns the number of elements per role.
func (e *Engine) CountByRole() map[string]int {
	return e.tree.CountByRole()
}

// PathTo returns the root-to-element path for ref, empty when absent.
func (e *Engine) PathTo(ref string) []*snapshot.Element {
	return e.tree.PathTo(ref)
}

// AllRefs returns every ref in pre-order.
func (e *Engine) AllRefs() []string {
	return e.tree.AllRefs()
}

// SuggestRoles returns up to max roles present in the tree that look like
// role, most similar first.
func (e *Engine) SuggestRoles(role string, max int) []string {
	type candidate struct {
		role string
		sim  float32
	}

	want := strings.ToLower(role)
	var cands []candidate
	for _, r := range e.tree.Roles() {
		if r == role {
			continue
		}
		sim, err := edlib.StringsSimilarity(want, strings.ToLower(r), edlib.Levenshtein)
		if err != nil || sim < suggestThreshold {
			continue
		}
		cands = append(cands, candidate{role: r, sim: sim})
	}

	sort.SliceStable(cands, func(i, j int) bool {
		if cands[i].sim != cands[j].sim {
			return cands[i].sim > cands[j].sim
		}
		return cands[i].role < cands[j].role
	})

	out := make([]string, 0, len(cands))
	for _, c := range cands {
		if max > 0 && len(out) == max {
			break
		}
		out = append(out, c.role)
	}
	return out
}

const suggestThreshold = 0.4

func nonNil(els []*snapshot.Element) []*snapshot.Element {
	if els == nil {
		return []*snapshot.Element{}
	}
	return els
}

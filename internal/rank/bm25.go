package rank

import (
	"math"
	"sort"
)

const (
	// DefaultK1 controls term frequency saturation.
	DefaultK1 = 1.5
	// DefaultB controls document length normalisation.
	DefaultB = 0.75

	// All asks Search for every positive hit.
	All = -1
)

// Hit is one ranked document.
type Hit struct {
	Doc   int     `json:"doc"`
	Score float64 `json:"score"`
}

// Index holds BM25 term statistics for an ordered set of documents.
// Document numbers are insertion positions and break score ties.
//
// An Index is not safe for concurrent mutation; once built it may be read
// from multiple goroutines.
type Index struct {
	k1        float64
	b         float64
	tokenizer *Tokenizer

	docs    []map[string]int
	docLens []int
	idf     map[string]float64
	avgLen  float64
	built   bool
}

// IndexOption configures an Index.
type IndexOption func(*Index)

// WithParams overrides k1 and b.
func WithParams(k1, b float64) IndexOption {
	return func(ix *Index) {
		ix.k1 = k1
		ix.b = b
	}
}

// WithTokenizer sets the tokenizer used for documents and queries.
func WithTokenizer(t *Tokenizer) IndexOption {
	return func(ix *Index) {
		if t != nil {
			ix.tokenizer = t
		}
	}
}

// NewIndex returns an empty, unbuilt index.
func NewIndex(opts ...IndexOption) *Index {
	ix := &Index{
		k1:        DefaultK1,
		b:         DefaultB,
		tokenizer: defaultTokenizer,
		idf:       map[string]float64{},
	}
	for _, opt := range opts {
		opt(ix)
	}
	return ix
}

// Add appends a document and returns its number. Adding invalidates a
// previous build.
func (ix *Index) Add(text string) int {
	freqs := make(map[string]int)
	terms := ix.tokenizer.Tokenize(text)
	for _, term := range terms {
		freqs[term]++
	}
	ix.docs = append(ix.docs, freqs)
	ix.docLens = append(ix.docLens, len(terms))
	ix.built = false
	return len(ix.docs) - 1
}

// Build computes average document length and IDF. Building an already
// built index does nothing.
func (ix *Index) Build() {
	if ix.built {
		return
	}
	ix.built = true

	n := len(ix.docs)
	ix.idf = make(map[string]float64)
	if n == 0 {
		ix.avgLen = 0
		return
	}

	total := 0
	docFreq := make(map[string]int)
	for i, freqs := range ix.docs {
		total += ix.docLens[i]
		for term := range freqs {
			docFreq[term]++
		}
	}
	ix.avgLen = float64(total) / float64(n)

	for term, nt := range docFreq {
		ix.idf[term] = math.Log((float64(n)-float64(nt)+0.5)/(float64(nt)+0.5) + 1.0)
	}
}

// Score returns the BM25 score of query against document doc. Unknown
// documents and unseen terms score zero.
func (ix *Index) Score(query string, doc int) float64 {
	ix.Build()
	return ix.score(ix.tokenizer.Tokenize(query), doc)
}

func (ix *Index) score(terms []string, doc int) float64 {
	if doc < 0 || doc >= len(ix.docs) || ix.avgLen == 0 {
		return 0
	}

	freqs := ix.docs[doc]
	norm := 1 - ix.b + ix.b*(float64(ix.docLens[doc])/ix.avgLen)

	score := 0.0
	for _, term := range terms {
		idf, ok := ix.idf[term]
		if !ok {
			continue
		}
		tf := float64(freqs[term])
		if tf == 0 {
			continue
		}
		score += idf * tf * (ix.k1 + 1) / (tf + ix.k1*norm)
	}
	return score
}

// Search ranks every document against query, drops zero scores and
// returns the best topK hits. A negative topK (All) keeps every hit and
// zero keeps none. Equal scores keep document order.
func (ix *Index) Search(query string, topK int) []Hit {
	ix.Build()

	terms := ix.tokenizer.Tokenize(query)
	hits := make([]Hit, 0)
	for doc := range ix.docs {
		if s := ix.score(terms, doc); s > 0 {
			hits = append(hits, Hit{Doc: doc, Score: s})
		}
	}

	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].Score > hits[j].Score
	})

	if topK >= 0 && len(hits) > topK {
		hits = hits[:topK]
	}
	return hits
}

// Len returns the number of documents.
func (ix *Index) Len() int {
	return len(ix.docs)
}

// Built reports whether statistics are current.
func (ix *Index) Built() bool {
	return ix.built
}

// AvgDocLen returns the average document length in terms.
func (ix *Index) AvgDocLen() float64 {
	return ix.avgLen
}

// IDF returns the inverse document frequency of term and whether the term
// was seen while building.
func (ix *Index) IDF(term string) (float64, bool) {
	v, ok := ix.idf[term]
	return v, ok
}

// Params returns k1 and b.
func (ix *Index) Params() (k1, b float64) {
	return ix.k1, ix.b
}

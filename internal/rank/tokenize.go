// Package rank implements term extraction and BM25 relevance ranking over
// element names.
package rank

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/surgebase/porter2"
)

// Tokenizer splits text into index terms. CJK ideographs are indexed one
// character per term since there is no dictionary to segment them; any
// other run of word characters is a single term.
type Tokenizer struct {
	stem bool
}

// TokenizerOption configures a Tokenizer.
type TokenizerOption func(*Tokenizer)

// WithStemming reduces ASCII terms to their Porter2 stem.
func WithStemming(enabled bool) TokenizerOption {
	return func(t *Tokenizer) {
		t.stem = enabled
	}
}

// NewTokenizer returns a tokenizer; with no options it produces exactly the
// terms of Tokenize.
func NewTokenizer(opts ...TokenizerOption) *Tokenizer {
	t := &Tokenizer{}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Stemming reports whether stemming is enabled.
func (t *Tokenizer) Stemming() bool {
	return t.stem
}

// Tokenize splits v into terms. Non-string values are formatted with
// fmt.Sprint first; nil yields no terms.
func (t *Tokenizer) Tokenize(v interface{}) []string {
	text, ok := textOf(v)
	if !ok {
		return []string{}
	}

	cleaned := strings.Map(func(r rune) rune {
		if isHan(r) || isWord(r) || unicode.IsSpace(r) {
			return r
		}
		return ' '
	}, strings.ToLower(text))

	terms := make([]string, 0, 8)
	for _, chunk := range strings.Fields(cleaned) {
		if allHan(chunk) {
			for _, r := range chunk {
				terms = append(terms, string(r))
			}
			continue
		}
		if t.stem && isASCII(chunk) {
			chunk = porter2.Stem(chunk)
		}
		if strings.TrimSpace(chunk) != "" {
			terms = append(terms, chunk)
		}
	}
	return terms
}

var defaultTokenizer = NewTokenizer()

// Tokenize splits v into terms with the default tokenizer.
func Tokenize(v interface{}) []string {
	return defaultTokenizer.Tokenize(v)
}

func textOf(v interface{}) (string, bool) {
	switch x := v.(type) {
	case nil:
		return "", false
	case string:
		return x, true
	case *string:
		if x == nil {
			return "", false
		}
		return *x, true
	case fmt.Stringer:
		return x.String(), true
	default:
		return fmt.Sprint(x), true
	}
}

func isHan(r rune) bool {
	return unicode.Is(unicode.Han, r)
}

func isWord(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsNumber(r)
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return false
		}
	}
	return true
}

func allHan(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !isHan(r) {
			return false
		}
	}
	return true
}

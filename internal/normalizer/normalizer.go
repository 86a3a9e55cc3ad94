// Package normalizer turns raw bibliographic text into index terms.
// It decodes named character entities, composes to NFC, lower-cases,
// folds Latin diacritics to ASCII, splits on anything outside [a-z0-9],
// removes stop-words and returns the surviving terms sorted and unique.
//
// A Normalizer is immutable once built. Build one at startup and share it.
package normalizer

import (
	"bufio"
	_ "embed"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"golang.org/x/text/unicode/norm"
)

//go:embed stopwords.txt
var defaultStopwords string

// Normalizer holds the sorted stop-word list used for binary search.
type Normalizer struct {
	stopwords []string
}

// Option configures a Normalizer.
type Option func(*Normalizer) error

// WithStopwords replaces the embedded list.
func WithStopwords(words []string) Option {
	return func(n *Normalizer) error {
		n.stopwords = prepareStopwords(words)
		return nil
	}
}

// WithStopwordFile replaces the embedded list with the contents of path,
// one word per line.
func WithStopwordFile(path string) Option {
	return func(n *Normalizer) error {
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("opening stopword file: %w", err)
		}
		defer f.Close()
		words, err := readStopwords(f)
		if err != nil {
			return fmt.Errorf("reading stopword file %s: %w", path, err)
		}
		n.stopwords = prepareStopwords(words)
		return nil
	}
}

// New builds a Normalizer using the embedded English stop-word list unless
// an option overrides it.
func New(opts ...Option) (*Normalizer, error) {
	words, err := readStopwords(strings.NewReader(defaultStopwords))
	if err != nil {
		return nil, fmt.Errorf("reading embedded stopwords: %w", err)
	}
	n := &Normalizer{stopwords: prepareStopwords(words)}
	for _, opt := range opts {
		if err := opt(n); err != nil {
			return nil, err
		}
	}
	return n, nil
}

// Must is New for package initialisation in tests and tools.
func Must(opts ...Option) *Normalizer {
	n, err := New(opts...)
	if err != nil {
		panic(err)
	}
	return n
}

// Normalize returns the sorted, duplicate-free terms of text. The empty
// string yields an empty, non-nil slice.
func (n *Normalizer) Normalize(text string) []string {
	folded := fold(text)
	parts := strings.FieldsFunc(folded, func(r rune) bool {
		return !isTermRune(r)
	})
	terms := make([]string, 0, len(parts))
	for _, p := range parts {
		if n.IsStopword(p) {
			continue
		}
		terms = append(terms, p)
	}
	sort.Strings(terms)
	return dedupSorted(terms)
}

// NormalizeEntities decodes entities before normalizing.
func (n *Normalizer) NormalizeEntities(text string) []string {
	return n.Normalize(DecodeEntities(text))
}

// IsStopword reports whether word is in the stop-word list.
func (n *Normalizer) IsStopword(word string) bool {
	i := sort.SearchStrings(n.stopwords, word)
	return i < len(n.stopwords) && n.stopwords[i] == word
}

// Stopwords returns a copy of the sorted list.
func (n *Normalizer) Stopwords() []string {
	out := make([]string, len(n.stopwords))
	copy(out, n.stopwords)
	return out
}

// fold composes text, lower-cases it and maps every rune into [a-z0-9] or a
// space. Diacritics fold through the foldTable; anything else separates.
func fold(text string) string {
	text = strings.ToLower(norm.NFC.String(text))
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		switch {
		case isTermRune(r):
			b.WriteRune(r)
		default:
			if base, ok := foldTable[r]; ok {
				b.WriteString(base)
			} else {
				b.WriteByte(' ')
			}
		}
	}
	return b.String()
}

func isTermRune(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9')
}

func readStopwords(r io.Reader) ([]string, error) {
	var words []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		words = append(words, line)
	}
	return words, sc.Err()
}

// prepareStopwords lower-cases, sorts and dedups so lookups can binary search.
func prepareStopwords(words []string) []string {
	out := make([]string, 0, len(words))
	for _, w := range words {
		w = strings.ToLower(strings.TrimSpace(w))
		if w != "" {
			out = append(out, w)
		}
	}
	sort.Strings(out)
	return dedupSorted(out)
}

func dedupSorted(s []string) []string {
	if len(s) < 2 {
		return s
	}
	out := s[:1]
	for _, v := range s[1:] {
		if v != out[len(out)-1] {
			out = append(out, v)
		}
	}
	return out
}

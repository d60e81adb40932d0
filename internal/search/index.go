// Package search is an in-memory word-prefix index over short texts such as
// names and usernames.
package search

import (
	"sort"
	"strings"
	"unicode"

	"github.com/sahilm/fuzzy"
	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Normalize folds case and strips diacritics so "Zoë" matches "zoe".
func Normalize(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return cases.Fold().String(out)
}

// Words splits a text into normalized words.
func Words(s string) []string {
	return strings.FieldsFunc(Normalize(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

type posting struct {
	word string
	key  int64
}

// Index maps keys to the words of their texts. A query matches a key when
// every query word is a prefix of one of the key's words.
// It is not safe for concurrent use.
type Index struct {
	texts    map[int64]string
	words    map[int64][]string
	postings []posting
	dirty    bool
}

func NewIndex() *Index {
	return &Index{
		texts: make(map[int64]string),
		words: make(map[int64][]string),
	}
}

// Add indexes key under the given texts, replacing what was indexed before.
func (ix *Index) Add(key int64, texts ...string) {
	joined := strings.Join(texts, " ")
	if cur, ok := ix.texts[key]; ok && cur == joined {
		return
	}
	ix.texts[key] = joined
	seen := make(map[string]bool)
	var ws []string
	for _, t := range texts {
		for _, w := range Words(t) {
			if !seen[w] {
				seen[w] = true
				ws = append(ws, w)
			}
		}
	}
	ix.words[key] = ws
	ix.dirty = true
}

// Remove drops key from the index.
func (ix *Index) Remove(key int64) {
	if _, ok := ix.texts[key]; !ok {
		return
	}
	delete(ix.texts, key)
	delete(ix.words, key)
	ix.dirty = true
}

// Len returns the number of indexed keys.
func (ix *Index) Len() int {
	return len(ix.texts)
}

func (ix *Index) rebuild() {
	if !ix.dirty {
		return
	}
	ix.postings = ix.postings[:0]
	for key, ws := range ix.words {
		for _, w := range ws {
			ix.postings = append(ix.postings, posting{word: w, key: key})
		}
	}
	sort.Slice(ix.postings, func(i, j int) bool {
		if ix.postings[i].word != ix.postings[j].word {
			return ix.postings[i].word < ix.postings[j].word
		}
		return ix.postings[i].key < ix.postings[j].key
	})
	ix.dirty = false
}

func (ix *Index) withPrefix(prefix string) map[int64]bool {
	ix.rebuild()
	i := sort.Search(len(ix.postings), func(i int) bool { return ix.postings[i].word >= prefix })
	out := make(map[int64]bool)
	for ; i < len(ix.postings) && strings.HasPrefix(ix.postings[i].word, prefix); i++ {
		out[ix.postings[i].key] = true
	}
	return out
}

// Search returns up to limit keys matching query, and the total number of
// matches. An empty query matches every key. Results are ordered by text,
// then key.
func (ix *Index) Search(query string, limit int) ([]int64, int) {
	qs := Words(query)
	var matched map[int64]bool
	if len(qs) == 0 {
		matched = make(map[int64]bool, len(ix.texts))
		for k := range ix.texts {
			matched[k] = true
		}
	}
	for _, q := range qs {
		hits := ix.withPrefix(q)
		if matched == nil {
			matched = hits
			continue
		}
		for k := range matched {
			if !hits[k] {
				delete(matched, k)
			}
		}
	}

	keys := make([]int64, 0, len(matched))
	for k := range matched {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		ti, tj := Normalize(ix.texts[keys[i]]), Normalize(ix.texts[keys[j]])
		if ti != tj {
			return ti < tj
		}
		return keys[i] < keys[j]
	})
	total := len(keys)
	if limit > 0 && len(keys) > limit {
		keys = keys[:limit]
	}
	return keys, total
}

type fuzzySource struct {
	keys  []int64
	texts []string
}

func (s fuzzySource) String(i int) string { return s.texts[i] }
func (s fuzzySource) Len() int            { return len(s.texts) }

// Fuzzy ranks every key by subsequence match of query against its text,
// best first. It is the fallback when a prefix search finds nothing.
func (ix *Index) Fuzzy(query string, limit int) []int64 {
	src := fuzzySource{}
	for k, t := range ix.texts {
		src.keys = append(src.keys, k)
		src.texts = append(src.texts, Normalize(t))
	}
	matches := fuzzy.FindFrom(Normalize(query), src)
	var out []int64
	for _, m := range matches {
		out = append(out, src.keys[m.Index])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

package search_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/danhigham/tgcache/internal/search"
)

func TestNormalize(t *testing.T) {
	assert.Equal(t, "zoe", search.Normalize("Zoë"))
	assert.Equal(t, "strasse", search.Normalize("STRASSE"))
	assert.Equal(t, []string{"jean", "luc", "picard"}, search.Words("Jean-Luc  Picard"))
}

func TestIndex_PrefixAllWords(t *testing.T) {
	ix := search.NewIndex()
	ix.Add(1, "Ada Lovelace", "ada")
	ix.Add(2, "Alan Turing", "aturing")
	ix.Add(3, "Grace Hopper", "")

	keys, total := ix.Search("a", 0)
	assert.Equal(t, []int64{1, 2}, keys)
	assert.Equal(t, 2, total)

	keys, _ = ix.Search("lov ad", 0)
	assert.Equal(t, []int64{1}, keys)

	keys, _ = ix.Search("hopper x", 0)
	assert.Empty(t, keys)
}

func TestIndex_EmptyQueryAndLimit(t *testing.T) {
	ix := search.NewIndex()
	ix.Add(3, "Carol")
	ix.Add(1, "Alice")
	ix.Add(2, "Bob")

	keys, total := ix.Search("", 2)
	assert.Equal(t, []int64{1, 2}, keys)
	assert.Equal(t, 3, total)
}

func TestIndex_ReplaceAndRemove(t *testing.T) {
	ix := search.NewIndex()
	ix.Add(1, "Old Name")
	ix.Add(1, "New Name")

	keys, _ := ix.Search("old", 0)
	assert.Empty(t, keys)
	keys, _ = ix.Search("new", 0)
	assert.Equal(t, []int64{1}, keys)

	ix.Remove(1)
	assert.Zero(t, ix.Len())
	keys, _ = ix.Search("new", 0)
	assert.Empty(t, keys)
}

func TestIndex_Fuzzy(t *testing.T) {
	ix := search.NewIndex()
	ix.Add(1, "Margaret Hamilton")
	ix.Add(2, "Barbara Liskov")

	assert.Equal(t, []int64{1}, ix.Fuzzy("mhmltn", 0))
}

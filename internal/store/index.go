package store

import "saleharvest/internal/item"

// Index is the in-memory set of identity keys already accepted into the
// corpus. It is owned by the single control goroutine and is not locked.
type Index struct {
	keys map[item.Key]struct{}
}

// NewIndex returns an empty index.
func NewIndex() *Index {
	return &Index{keys: make(map[item.Key]struct{})}
}

// Contains reports whether key has been accepted.
func (x *Index) Contains(key item.Key) bool {
	_, ok := x.keys[key]
	return ok
}

// Add inserts key and reports whether it was newly added.
func (x *Index) Add(key item.Key) bool {
	if _, ok := x.keys[key]; ok {
		return false
	}
	x.keys[key] = struct{}{}
	return true
}

// Len returns the number of known keys.
func (x *Index) Len() int {
	return len(x.keys)
}

// Rehydrate adds every key of a persisted corpus.
func (x *Index) Rehydrate(c item.Corpus) {
	for _, k := range c.Keys() {
		x.keys[k] = struct{}{}
	}
}

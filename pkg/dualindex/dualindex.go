// Package dualindex provides a bidirectional, path-aware map: values can be
// looked up by key (a path) or reverse-looked-up by value (e.g. a content
// hash), and whole path subtrees can be deleted or renamed atomically. It
// keeps one map keyed by path and one keyed by value holding the set of
// paths that currently carry it, so a copy probe can answer "what else has
// this hash" as cheaply as LocalState answers "what's the hash of this path".
//
// DualIndex is not safe for concurrent use on its own; callers (LocalState)
// are expected to serialize access.
package dualindex

import (
	"github.com/warniiiz/lazydog-go/pkg/pathutil"
)

// DualIndex is a bidirectional map from path to V, with reverse lookup of all
// paths currently holding a given value.
type DualIndex[V comparable] struct {
	forward map[pathutil.RelativePath]V
	reverse map[V]map[pathutil.RelativePath]struct{}
}

// New creates an empty DualIndex.
func New[V comparable]() *DualIndex[V] {
	return &DualIndex[V]{
		forward: make(map[pathutil.RelativePath]V),
		reverse: make(map[V]map[pathutil.RelativePath]struct{}),
	}
}

// Get returns the value stored for key, if any.
func (d *DualIndex[V]) Get(key pathutil.RelativePath) (V, bool) {
	v, ok := d.forward[key]
	return v, ok
}

// Contains returns true if key has a stored value.
func (d *DualIndex[V]) Contains(key pathutil.RelativePath) bool {
	_, ok := d.forward[key]
	return ok
}

// GetByValue returns every key currently associated with value. The returned
// slice is a snapshot and safe to range over while mutating the index.
func (d *DualIndex[V]) GetByValue(value V) []pathutil.RelativePath {
	keys := d.reverse[value]
	if len(keys) == 0 {
		return nil
	}
	result := make([]pathutil.RelativePath, 0, len(keys))
	for k := range keys {
		result = append(result, k)
	}
	return result
}

// Save registers key with value, reassigning it from any prior value first.
func (d *DualIndex[V]) Save(key pathutil.RelativePath, value V) {
	if old, ok := d.forward[key]; ok {
		d.discardReverse(old, key)
	}
	d.forward[key] = value
	d.addReverse(value, key)
}

func (d *DualIndex[V]) addReverse(value V, key pathutil.RelativePath) {
	keys, ok := d.reverse[value]
	if !ok {
		keys = make(map[pathutil.RelativePath]struct{})
		d.reverse[value] = keys
	}
	keys[key] = struct{}{}
}

func (d *DualIndex[V]) discardReverse(value V, key pathutil.RelativePath) {
	if keys, ok := d.reverse[value]; ok {
		delete(keys, key)
		if len(keys) == 0 {
			delete(d.reverse, value)
		}
	}
}

// DeleteKey removes a single key and its reverse-index membership, without
// touching any other key that happens to share its prefix. Used when pruning
// one ghost entry rather than an entire subtree.
func (d *DualIndex[V]) DeleteKey(key pathutil.RelativePath) {
	if value, ok := d.forward[key]; ok {
		d.discardReverse(value, key)
	}
	delete(d.forward, key)
}

// subtreeKeys snapshots every key equal to root or strictly descending from
// it. The snapshot is taken up front because the subtree operations mutate
// the forward map while iterating the logical key set.
func (d *DualIndex[V]) subtreeKeys(root pathutil.RelativePath) []pathutil.RelativePath {
	var keys []pathutil.RelativePath
	for k := range d.forward {
		if k == root || k.ComesAfter(root) {
			keys = append(keys, k)
		}
	}
	return keys
}

// DeleteSubtree removes root and every key strictly descending from it, along
// with their reverse-index membership.
func (d *DualIndex[V]) DeleteSubtree(root pathutil.RelativePath) {
	for _, key := range d.subtreeKeys(root) {
		if value, ok := d.forward[key]; ok {
			d.discardReverse(value, key)
		}
		delete(d.forward, key)
	}
}

// MoveSubtree renames root (and every key strictly descending from it) to
// dst, substituting the src prefix for the dst prefix in each key string. If
// a computed destination key already exists, its prior reverse membership is
// discarded before the move overwrites it.
func (d *DualIndex[V]) MoveSubtree(src, dst pathutil.RelativePath) {
	srcStr := src.String()
	for _, oldKey := range d.subtreeKeys(src) {
		newKey := pathutil.Normalize(dst.String() + oldKey.String()[len(srcStr):])

		if existingValue, ok := d.forward[newKey]; ok {
			d.discardReverse(existingValue, newKey)
		}

		value, ok := d.forward[oldKey]
		if !ok {
			continue
		}
		d.discardReverse(value, oldKey)
		delete(d.forward, oldKey)

		d.forward[newKey] = value
		d.addReverse(value, newKey)
	}
}

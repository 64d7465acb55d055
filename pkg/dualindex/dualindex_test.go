package dualindex

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warniiiz/lazydog-go/pkg/pathutil"
)

func rp(s string) pathutil.RelativePath {
	return pathutil.Normalize(s)
}

// assertConsistent checks part of invariant 1 from the spec: every key in
// allKeys that has a stored value v appears in reverse[v]. It does not check
// that no other reverse set contains the key.
func assertConsistent[V comparable](t *testing.T, d *DualIndex[V], allKeys []pathutil.RelativePath) {
	t.Helper()
	for _, k := range allKeys {
		v, ok := d.Get(k)
		if !ok {
			continue
		}
		found := false
		for _, other := range d.GetByValue(v) {
			if other == k {
				found = true
			}
		}
		assert.True(t, found, "key %s must appear in reverse[value]", k)
	}
}

func TestSaveAndGet(t *testing.T) {
	d := New[string]()
	d.Save(rp("/file1.txt"), "hash-a")

	v, ok := d.Get(rp("/file1.txt"))
	require.True(t, ok)
	assert.Equal(t, "hash-a", v)
}

func TestSaveReassignsReverseIndex(t *testing.T) {
	d := New[string]()
	d.Save(rp("/file1.txt"), "hash-a")
	d.Save(rp("/file1.txt"), "hash-b")

	assert.Empty(t, d.GetByValue("hash-a"))
	assert.ElementsMatch(t, []pathutil.RelativePath{rp("/file1.txt")}, d.GetByValue("hash-b"))
}

func TestGetByValueGroupsMultipleKeys(t *testing.T) {
	d := New[string]()
	d.Save(rp("/a.txt"), "hash-a")
	d.Save(rp("/b.txt"), "hash-a")

	assert.ElementsMatch(t, []pathutil.RelativePath{rp("/a.txt"), rp("/b.txt")}, d.GetByValue("hash-a"))
}

func TestDeleteSubtreeRemovesDescendants(t *testing.T) {
	d := New[string]()
	d.Save(rp("/dir1"), "DIR")
	d.Save(rp("/dir1/a.txt"), "hash-a")
	d.Save(rp("/dir1/sub/b.txt"), "hash-b")
	d.Save(rp("/dir2/c.txt"), "hash-c")

	d.DeleteSubtree(rp("/dir1"))

	assert.False(t, d.Contains(rp("/dir1")))
	assert.False(t, d.Contains(rp("/dir1/a.txt")))
	assert.False(t, d.Contains(rp("/dir1/sub/b.txt")))
	assert.True(t, d.Contains(rp("/dir2/c.txt")))
	assert.Empty(t, d.GetByValue("hash-a"))
}

func TestMoveSubtreeRewritesDescendantKeys(t *testing.T) {
	d := New[string]()
	d.Save(rp("/dir1"), "DIR")
	d.Save(rp("/dir1/a.txt"), "hash-a")
	d.Save(rp("/dir1/sub/b.txt"), "hash-b")

	d.MoveSubtree(rp("/dir1"), rp("/dir2"))

	assert.False(t, d.Contains(rp("/dir1")))
	v, ok := d.Get(rp("/dir2/a.txt"))
	require.True(t, ok)
	assert.Equal(t, "hash-a", v)
	v, ok = d.Get(rp("/dir2/sub/b.txt"))
	require.True(t, ok)
	assert.Equal(t, "hash-b", v)
	assert.ElementsMatch(t, []pathutil.RelativePath{rp("/dir2/a.txt")}, d.GetByValue("hash-a"))
}

func TestMoveSubtreeOverwritesExistingDestination(t *testing.T) {
	d := New[string]()
	d.Save(rp("/src.txt"), "hash-a")
	d.Save(rp("/dst.txt"), "hash-b")

	d.MoveSubtree(rp("/src.txt"), rp("/dst.txt"))

	v, ok := d.Get(rp("/dst.txt"))
	require.True(t, ok)
	assert.Equal(t, "hash-a", v)
	assert.Empty(t, d.GetByValue("hash-b"), "overwritten destination value must lose reverse membership")
}

// TestMoveRoundTrip exercises the round-trip property from the spec: moving
// src to dst and then back again must leave the index bit-identical.
func TestMoveRoundTrip(t *testing.T) {
	d := New[string]()
	d.Save(rp("/dir1"), "DIR")
	d.Save(rp("/dir1/a.txt"), "hash-a")
	d.Save(rp("/dir1/sub/b.txt"), "hash-b")
	d.Save(rp("/other.txt"), "hash-c")

	before := snapshot(d)

	d.MoveSubtree(rp("/dir1"), rp("/dir3"))
	d.MoveSubtree(rp("/dir3"), rp("/dir1"))

	after := snapshot(d)
	assert.Equal(t, before, after)
}

func snapshot(d *DualIndex[string]) map[pathutil.RelativePath]string {
	out := make(map[pathutil.RelativePath]string, len(d.forward))
	for k, v := range d.forward {
		out[k] = v
	}
	return out
}

// Package localstate keeps track of the current state of a watched
// directory tree, so that the aggregator can cheaply answer "is there
// already a file somewhere with this size and modification time" or "with
// this content hash" without re-walking or re-hashing the tree on every
// incoming filesystem event.
//
// It keeps two indexes, one keyed by (size, mtime) and one keyed by content
// hash, each backed by a dualindex.DualIndex so that both forward lookups
// (path -> value) and reverse lookups (value -> candidate paths) are cheap.
package localstate

import (
	"os"
	"path/filepath"
	"time"

	"github.com/warniiiz/lazydog-go/pkg/dualindex"
	"github.com/warniiiz/lazydog-go/pkg/pathutil"
)

// HashFunc computes the content hash of the file at absolutePath. It is
// called only when the owning LocalState has no hash cached for the path;
// the result is then cached there.
type HashFunc func(absolutePath string) (string, error)

// SizeTime is the cached (size, modification time) pair for a path.
// Directories carry the IsDir sentinel rather than a real size and time,
// since they are never meaningfully comparable by size.
type SizeTime struct {
	IsDir   bool
	Size    int64
	ModTime float64 // seconds since epoch, millisecond precision
}

// dirSizeTime is the sentinel value saved for directories.
var dirSizeTime = SizeTime{IsDir: true}

// SeedEntry is a pre-computed (hash, size, mtime) triple supplied to
// NewFromSeed, so that a previously persisted state can be restored without
// re-hashing every file in a large tree.
type SeedEntry struct {
	Hash    string
	Size    int64
	ModTime float64
}

// LocalState tracks the known files and directories under a single watched
// root. It is not safe for concurrent use; callers are expected to
// serialize access (pkg/lazydog.Core holds one coarse lock around every
// fold, poll and sweep).
type LocalState struct {
	root     string
	hashFunc HashFunc

	hashes    *dualindex.DualIndex[string]
	sizetimes *dualindex.DualIndex[SizeTime]
}

// New creates a LocalState for root, walking the tree eagerly and computing
// the hash and size/time of every entry found. For a large tree this can
// take a while; use NewFromSeed to skip the walk when prior values are
// already known.
func New(root string, hashFunc HashFunc) (*LocalState, error) {
	if hashFunc == nil {
		hashFunc = DropboxContentHash
	}
	s := &LocalState{
		root:      root,
		hashFunc:  hashFunc,
		hashes:    dualindex.New[string](),
		sizetimes: dualindex.New[SizeTime](),
	}

	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if path == root {
			return nil
		}
		rel := s.ToRel(path)
		s.GetHash(rel, true)
		s.GetSizeTime(rel, true)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s, nil
}

// NewFromSeed creates a LocalState for root from a pre-computed map of
// relative path to SeedEntry, skipping the tree walk and hash computation.
// Entries whose absolute path no longer exists are silently dropped.
func NewFromSeed(root string, hashFunc HashFunc, seed map[pathutil.RelativePath]SeedEntry) *LocalState {
	if hashFunc == nil {
		hashFunc = DropboxContentHash
	}
	s := &LocalState{
		root:      root,
		hashFunc:  hashFunc,
		hashes:    dualindex.New[string](),
		sizetimes: dualindex.New[SizeTime](),
	}
	for rel, entry := range seed {
		if _, err := os.Stat(s.ToAbs(rel)); err != nil {
			continue
		}
		s.Save(rel, entry.Hash, entry.Size, entry.ModTime)
	}
	return s
}

// ToAbs resolves a path relative to the watched root into an absolute path.
func (s *LocalState) ToAbs(rel pathutil.RelativePath) string {
	return filepath.Join(s.root, filepath.FromSlash(rel.String()))
}

// ToRel converts an absolute path back into its watched-root-relative form.
func (s *LocalState) ToRel(absolutePath string) pathutil.RelativePath {
	relativeToRoot, err := filepath.Rel(s.root, absolutePath)
	if err != nil {
		relativeToRoot = absolutePath
	}
	return pathutil.Normalize(filepath.ToSlash(relativeToRoot))
}

// GetHash returns the cached content hash for rel. If it isn't yet cached
// and computeIfAbsent is true, it is computed (and the result, including a
// failure, is cached) before returning. The second return value reports
// whether a value is now known, not whether hashing succeeded: a failed or
// missing path is cached as the empty string, which is itself a known,
// stable value distinct from "never looked up".
func (s *LocalState) GetHash(rel pathutil.RelativePath, computeIfAbsent bool) (string, bool) {
	if hash, ok := s.hashes.Get(rel); ok {
		return hash, true
	}
	if !computeIfAbsent {
		return "", false
	}

	abs := s.ToAbs(rel)
	var hash string
	if info, err := os.Stat(abs); err == nil {
		if info.IsDir() {
			hash = DirHash
		} else if computed, hashErr := s.hashFunc(abs); hashErr == nil {
			hash = computed
		}
	}
	s.hashes.Save(rel, hash)
	return hash, true
}

// GetSizeTime returns the cached (size, mtime) pair for rel, computing and
// caching it first if absent and computeIfAbsent is true. As with GetHash, a
// missing path is cached as the zero SizeTime rather than left unresolved.
func (s *LocalState) GetSizeTime(rel pathutil.RelativePath, computeIfAbsent bool) (SizeTime, bool) {
	if st, ok := s.sizetimes.Get(rel); ok {
		return st, true
	}
	if !computeIfAbsent {
		return SizeTime{}, false
	}

	abs := s.ToAbs(rel)
	var st SizeTime
	if info, err := os.Stat(abs); err == nil {
		if info.IsDir() {
			st = dirSizeTime
		} else {
			st = SizeTime{Size: info.Size(), ModTime: RoundModTime(info.ModTime())}
		}
	}
	s.sizetimes.Save(rel, st)
	return st, true
}

// LookupByHash returns every known path currently sharing hash, after
// pruning any that no longer exist on disk.
func (s *LocalState) LookupByHash(hash string) []pathutil.RelativePath {
	return s.pruneGhosts(s.hashes.GetByValue(hash))
}

// LookupBySizeTime returns every known path currently sharing the given
// (size, mtime) pair, after pruning any that no longer exist on disk.
func (s *LocalState) LookupBySizeTime(st SizeTime) []pathutil.RelativePath {
	return s.pruneGhosts(s.sizetimes.GetByValue(st))
}

// pruneGhosts drops, from both indexes, any candidate whose absolute path no
// longer exists, then returns the survivors. This self-heals the indexes
// against paths that were deleted without LocalState ever being told.
func (s *LocalState) pruneGhosts(candidates []pathutil.RelativePath) []pathutil.RelativePath {
	survivors := candidates[:0:0]
	for _, rel := range candidates {
		if _, err := os.Stat(s.ToAbs(rel)); err != nil {
			s.hashes.DeleteKey(rel)
			s.sizetimes.DeleteKey(rel)
			continue
		}
		survivors = append(survivors, rel)
	}
	return survivors
}

// Save registers already-known hash, size and mtime values for rel, without
// recomputing or verifying them. If rel resolves to a directory, all three
// are forced to their directory sentinels regardless of what was passed in.
func (s *LocalState) Save(rel pathutil.RelativePath, hash string, size int64, modTime float64) {
	st := SizeTime{Size: size, ModTime: modTime}
	if info, err := os.Stat(s.ToAbs(rel)); err == nil && info.IsDir() {
		hash = DirHash
		st = dirSizeTime
	}
	s.hashes.Save(rel, hash)
	s.sizetimes.Save(rel, st)
}

// Delete removes rel, and every path strictly descending from it, from both
// indexes.
func (s *LocalState) Delete(rel pathutil.RelativePath) {
	s.hashes.DeleteSubtree(rel)
	s.sizetimes.DeleteSubtree(rel)
}

// Move renames rel (and every path strictly descending from it) from src to
// dst in both indexes, preserving whatever hash and size/time values were
// already known so they don't need to be recomputed.
func (s *LocalState) Move(src, dst pathutil.RelativePath) {
	s.hashes.MoveSubtree(src, dst)
	s.sizetimes.MoveSubtree(src, dst)
}

// RoundModTime converts a modification time into the millisecond-precision
// seconds-since-epoch representation LocalState stores and compares
// (size, mtime) pairs with. Anything that wants its own mtime snapshot to be
// comparable against LocalState's cache — notably event.Envelope's copy
// probe — must round through this same function, since raw os.FileInfo
// timestamps carry nanosecond precision that would otherwise never compare
// equal to a cached value.
func RoundModTime(t time.Time) float64 {
	const nanosPerMilli = 1_000_000
	millis := t.UnixNano() / nanosPerMilli
	return float64(millis) / 1000.0
}

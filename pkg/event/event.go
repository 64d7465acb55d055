// Package event defines the envelope the aggregator folds low-level
// filesystem notifications into, and the high-level user-facing events it
// eventually releases. An envelope's identity (Kind, Path, ToPath) can
// change in place as more notifications arrive and reshape what the burst
// of activity actually means: a Created immediately followed by a Deleted
// is nothing, and a Created that matches an existing file's size and hash
// is a Copied.
package event

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/warniiiz/lazydog-go/pkg/localstate"
	"github.com/warniiiz/lazydog-go/pkg/pathutil"
)

// Envelope is one tracked event, possibly folded from several raw filesystem
// notifications. It is not safe for concurrent use; the aggregator that owns
// it is expected to serialize access.
type Envelope struct {
	ID    string
	Kind  Kind
	IsDir bool

	Path    pathutil.RelativePath
	ToPath  pathutil.RelativePath // only meaningful when HasDest is true
	hasDest bool

	FirstSeen      time.Time
	LastSeen       time.Time
	LastReworkedAt time.Time

	// Related collects every raw notification (starting with this one) that
	// was folded into this envelope, in the order the folds happened.
	Related []*Envelope

	// PossibleSources maps a candidate source path to its parent directory,
	// for Copied events promoted from a directory-level copy: each file
	// inside the copied tree contributes its own source, and the parent
	// directories of those sources are later checked for copy promotion too.
	PossibleSources map[pathutil.RelativePath]pathutil.RelativePath

	IsRelated    bool
	IsIrrelevant bool

	state *localstate.LocalState

	hash       *string
	size       *int64
	mtime      *float64
	dirFileQty *int
}

// New creates a fresh Envelope for a single raw notification of the given
// kind, seeding its snapshot fields from the filesystem immediately so that folding
// decisions later can compare against the value captured at observation
// time rather than whatever the filesystem looks like afterward.
func New(kind Kind, path pathutil.RelativePath, isDir bool, state *localstate.LocalState) *Envelope {
	now := time.Now()
	e := &Envelope{
		ID:              uuid.NewString(),
		Kind:            kind,
		IsDir:           isDir,
		Path:            path,
		FirstSeen:       now,
		LastSeen:        now,
		LastReworkedAt:  now,
		PossibleSources: make(map[pathutil.RelativePath]pathutil.RelativePath),
		state:           state,
	}
	e.Related = []*Envelope{e}
	e.captureSnapshot()
	return e
}

// NewMove creates a fresh Envelope for a raw move/rename notification, which
// carries both a source and destination path.
func NewMove(path, toPath pathutil.RelativePath, isDir bool, state *localstate.LocalState) *Envelope {
	e := New(Moved, path, isDir, state)
	e.ToPath = toPath
	e.hasDest = true
	// New snapshotted Path, which the move has already vacated; take the
	// snapshot again from the destination.
	e.size, e.mtime, e.dirFileQty = nil, nil, nil
	e.captureSnapshot()
	return e
}

// HasDest reports whether this envelope carries a destination path distinct
// from Path, true for Moved and Copied events.
func (e *Envelope) HasDest() bool {
	return e.hasDest || e.Kind == Copied
}

// RefPath returns the path that matters for correlating this event against
// others: ToPath when one exists, Path otherwise.
func (e *Envelope) RefPath() pathutil.RelativePath {
	if e.HasDest() {
		return e.ToPath
	}
	return e.Path
}

// SetRefPath reassigns the path that matters for correlation: ToPath when
// one exists, Path otherwise. Used when a Moved notification reveals that an
// already-pending event's current location has changed again.
func (e *Envelope) SetRefPath(p pathutil.RelativePath) {
	if e.HasDest() {
		e.ToPath = p
	} else {
		e.Path = p
	}
}

// ParentPath returns the parent directory of RefPath, or the root itself if
// RefPath has no parent.
func (e *Envelope) ParentPath() pathutil.RelativePath {
	if parent, ok := e.RefPath().Parent(); ok {
		return parent
	}
	return pathutil.Root
}

// Basename returns the final path component of RefPath.
func (e *Envelope) Basename() string {
	return e.RefPath().Base()
}

func (e *Envelope) IsSameKindAs(other *Envelope) bool { return e.Kind == other.Kind }
func (e *Envelope) IsCreated() bool                   { return e.Kind == Created }
func (e *Envelope) IsDirCreated() bool                { return e.IsCreated() && e.IsDir }
func (e *Envelope) IsFileCreated() bool               { return e.IsCreated() && !e.IsDir }
func (e *Envelope) IsDeleted() bool                   { return e.Kind == Deleted }
func (e *Envelope) IsDirDeleted() bool                { return e.IsDeleted() && e.IsDir }
func (e *Envelope) IsMoved() bool                     { return e.Kind == Moved }
func (e *Envelope) IsDirMoved() bool                  { return e.IsMoved() && e.IsDir }
func (e *Envelope) IsCopied() bool                    { return e.Kind == Copied }
func (e *Envelope) IsModifiedContent() bool           { return e.Kind == ModifiedContent }
func (e *Envelope) IsModifiedMetadata() bool          { return e.Kind == ModifiedMetadata }
func (e *Envelope) IsModified() bool                  { return e.IsModifiedContent() || e.IsModifiedMetadata() }
func (e *Envelope) IsDirModified() bool               { return e.IsModified() && e.IsDir }

// HasSamePath reports whether e and other describe the same path(s): both
// Path and ToPath for move/copy-like events, or just RefPath otherwise.
func (e *Envelope) HasSamePath(other *Envelope) bool {
	if e.HasDest() && other.HasDest() {
		return e.Path == other.Path && e.ToPath == other.ToPath
	}
	return e.RefPath() == other.RefPath()
}

// HasSameSrcPath reports whether e's source path equals other's reference
// path, used to detect e.g. a Moved event whose source is the destination of
// an earlier Copied event in the same burst.
func (e *Envelope) HasSameSrcPath(other *Envelope) bool {
	return e.Path == other.RefPath()
}

// ComesAfter reports whether e's path(s) are strictly nested underneath
// other's. For move/copy-like events on both sides, both the source and
// destination must be nested for the relation to hold.
func (e *Envelope) ComesAfter(other *Envelope) bool {
	if e.HasDest() && other.HasDest() {
		return e.Path.ComesAfter(other.Path) && e.ToPath.ComesAfter(other.ToPath)
	}
	return e.RefPath().ComesAfter(other.RefPath())
}

func (e *Envelope) ComesBefore(other *Envelope) bool { return other.ComesAfter(e) }

func (e *Envelope) SameOrComesAfter(other *Envelope) bool {
	return e.ComesAfter(other) || e.HasSamePath(other)
}

func (e *Envelope) SameOrComesBefore(other *Envelope) bool {
	return e.ComesBefore(other) || e.HasSamePath(other)
}

// AbsoluteRefPath resolves RefPath against the watched root.
func (e *Envelope) AbsoluteRefPath() string {
	return e.state.ToAbs(e.RefPath())
}

// Hash lazily computes and caches the content hash of the event's reference
// path. A missing or unreadable path yields an empty hash, same as
// localstate.LocalState.GetHash.
func (e *Envelope) Hash() string {
	if e.hash == nil {
		h := ""
		if e.IsDir {
			h = localstate.DirHash
		} else if computed, ok := e.state.GetHash(e.RefPath(), true); ok {
			h = computed
		}
		e.hash = &h
	}
	return *e.hash
}

// Size lazily computes and caches the byte size of the event's reference
// path. Zero for directories or missing paths.
func (e *Envelope) Size() int64 {
	if e.size == nil {
		var s int64
		if !e.IsDir {
			if info, err := os.Stat(e.AbsoluteRefPath()); err == nil {
				s = info.Size()
			}
		}
		e.size = &s
	}
	return *e.size
}

// MTime lazily computes and caches the modification time of the event's
// reference path, at the same millisecond precision LocalState's (size,
// mtime) cache uses, so a copy probe's lookup can compare equal against it.
func (e *Envelope) MTime() float64 {
	if e.mtime == nil {
		var m float64
		if info, err := os.Stat(e.AbsoluteRefPath()); err == nil {
			m = localstate.RoundModTime(info.ModTime())
		}
		e.mtime = &m
	}
	return *e.mtime
}

// DirFilesQty lazily counts and caches the number of entries directly or
// indirectly contained in the event's reference path, when it is a
// directory.
func (e *Envelope) DirFilesQty() int {
	if e.dirFileQty == nil {
		q := 0
		if e.IsDir {
			q = countFilesIn(e.AbsoluteRefPath())
		}
		e.dirFileQty = &q
	}
	return *e.dirFileQty
}

func countFilesIn(absoluteDirPath string) int {
	count := 0
	_ = filepath.Walk(absoluteDirPath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if path != absoluteDirPath {
			count++
		}
		return nil
	})
	return count
}

// IsEmpty reports whether the event's reference path is an empty directory
// or a zero-byte file.
func (e *Envelope) IsEmpty() bool {
	if e.IsDir {
		return e.DirFilesQty() == 0
	}
	return e.Size() == 0
}

// IdleTime reports how long it has been since this envelope was last
// reworked by a fold, used by the release gate's quiet-period check.
func (e *Envelope) IdleTime() time.Duration {
	return time.Since(e.LastReworkedAt)
}

// captureSnapshot forces the lazy size/mtime fields to be computed
// immediately: by the time a fold decision needs to compare "did this
// file's mtime change", both sides must already hold the value observed at
// their own notification time, not whatever the filesystem looks like right
// now.
func (e *Envelope) captureSnapshot() {
	e.MTime()
	e.Size()
	e.DirFilesQty()
}

// FoldInto merges e into primary, the envelope that survives the fold
// (usually the pending one; for an arriving Deleted, the arriving one). It
// mutates primary in place and returns it; e itself is left untouched
// except for being marked related and appended to primary's history.
func FoldInto(primary, e *Envelope) *Envelope {
	primary.Related = append(primary.Related, e.Related...)

	if e.IsModified() && !e.IsDir && !primary.IsDir {
		if primary.MTime() != e.MTime() || primary.Size() != e.Size() {
			primary.mtime = e.mtime
			primary.size = e.size
			primary.hash = e.hash
		}
	}
	if primary.IsDir {
		primary.dirFileQty = nil
	}

	if primary.LastSeen.Before(e.LastSeen) {
		primary.LastSeen = e.LastSeen
	}
	if primary.FirstSeen.After(e.FirstSeen) {
		primary.FirstSeen = e.FirstSeen
	}
	primary.LastReworkedAt = time.Now()

	e.IsRelated = true
	primary.IsRelated = true
	return primary
}

// mostPotentialSource picks the likeliest source path among several
// candidates sharing size/mtime/hash with destPath, preferring the one
// whose basename (stripped of extension) is a substring of the destination
// basename: a file "foo.txt" copied by the OS usually becomes "Copy of
// foo.txt" or "foo (copy).txt", and the original basename survives inside
// the new one.
func mostPotentialSource(sources []pathutil.RelativePath, destPath pathutil.RelativePath) pathutil.RelativePath {
	destStem := stemOf(destPath.Base())
	var best pathutil.RelativePath
	bestLen := -1
	for _, src := range sources {
		srcStem := stemOf(src.Base())
		if srcStem == "" || !strings.Contains(destStem, srcStem) {
			continue
		}
		if len(srcStem) > bestLen {
			best = src
			bestLen = len(srcStem)
		}
	}
	if bestLen >= 0 {
		return best
	}
	return sources[0]
}

func stemOf(name string) string {
	return strings.TrimSuffix(name, filepath.Ext(name))
}

// PromoteToCopied transforms a Created event in place into a Copied one,
// picking the most plausible of sources as Path and moving the original
// Created path into ToPath. It also records every candidate whose basename
// matches the destination's in PossibleSources, keyed by source path and
// valued by that source's parent directory, so that a later directory-level
// correlation can check whether every file under a candidate parent was
// itself copied.
func (e *Envelope) PromoteToCopied(sources []pathutil.RelativePath) {
	if len(sources) == 0 {
		return
	}
	if !e.IsCopied() {
		e.Kind = Copied
		e.ToPath = e.Path
		e.hasDest = true
		e.Path = mostPotentialSource(sources, e.ToPath)
	}
	destBase := e.ToPath.Base()
	for _, src := range sources {
		if src.Base() != destBase {
			continue
		}
		parent, ok := src.Parent()
		if !ok {
			parent = pathutil.Root
		}
		e.PossibleSources[src] = parent
	}
}

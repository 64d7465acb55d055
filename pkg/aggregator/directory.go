package aggregator

import (
	"os"
	"path/filepath"
	"time"

	"github.com/warniiiz/lazydog-go/pkg/event"
	"github.com/warniiiz/lazydog-go/pkg/pathutil"
)

// promoteDirectories drains the copied-directory watch set, attempting to
// collapse groups of sibling Copied events (plus their parent Created) into
// a single directory-level Copied event.
//
// Promoting one directory can make its own parent newly promotable, so this
// runs as a bounded worklist loop: each pass is one "recursion level", and
// the loop stops the first pass that promotes nothing.
func (a *Aggregator) promoteDirectories() {
	a.pruneCopyWatchSet()
	for a.promoteDirectoriesOnce() {
		a.pruneCopyWatchSet()
	}
}

func (a *Aggregator) pruneCopyWatchSet() {
	now := time.Now()
	for tp, touched := range a.copyWatchSet {
		if now.Sub(touched) > a.copyGroupExpiry {
			delete(a.copyWatchSet, tp)
		}
	}
}

// promoteDirectoriesOnce performs one grouping-and-promotion pass over the
// current watch set, returning true if anything was promoted (in which case
// a further pass may find newly-eligible grandparents).
func (a *Aggregator) promoteDirectoriesOnce() bool {
	if len(a.copyWatchSet) == 0 {
		return false
	}

	// tp -> sp -> children claiming sp as their source's parent.
	groups := make(map[pathutil.RelativePath]map[pathutil.RelativePath][]*event.Envelope)
	for _, e := range a.snapshot() {
		if !e.IsCopied() {
			continue
		}
		tp := e.ParentPath()
		if _, watched := a.copyWatchSet[tp]; !watched {
			continue
		}
		if groups[tp] == nil {
			groups[tp] = make(map[pathutil.RelativePath][]*event.Envelope)
		}
		for _, parentSp := range e.PossibleSources {
			groups[tp][parentSp] = append(groups[tp][parentSp], e)
		}
	}

	// Empty-copy companions: a pending Created whose source counterpart is
	// itself empty (recursively), so the OS never generated a Modified
	// event distinguishing it from a true creation.
	for _, e := range a.snapshot() {
		if !e.IsCreated() || !e.IsEmpty() {
			continue
		}
		tp := e.ParentPath()
		group, ok := groups[tp]
		if !ok {
			continue
		}
		for parentSp := range group {
			srcPath := parentSp.Join(e.Basename())
			srcAbs := a.state.ToAbs(srcPath)
			if e.IsDir {
				if n, ok := countFilesRecursive(srcAbs); ok && n == 0 && emptyTreesMatch(srcAbs, a.state.ToAbs(e.RefPath())) {
					group[parentSp] = append(group[parentSp], e)
				}
			} else if size, ok := fileSize(srcAbs); ok && size == 0 {
				group[parentSp] = append(group[parentSp], e)
			}
		}
	}

	recurse := false
	for tp, group := range groups {
		dirCreated := a.pendingDirCreatedAt(tp)

		var survivors []pathutil.RelativePath
		for sp, children := range group {
			childCount := len(children)
			spCount, spOK := listDirCount(a.state.ToAbs(sp))
			tpCount, tpOK := listDirCount(a.state.ToAbs(tp))
			if spOK && tpOK && childCount == spCount && childCount == tpCount {
				survivors = append(survivors, sp)
			}
		}

		if dirCreated == nil || len(survivors) == 0 {
			continue
		}

		for _, sp := range survivors {
			if dirCreated.IsCreated() {
				recurse = true
				if parent, ok := tp.Parent(); ok {
					a.copyWatchSet[parent] = time.Now()
				}
				for _, child := range group[sp] {
					if child.IsCreated() {
						a.absorbDescendantEmptyCreates(child)
						child.PromoteToCopied([]pathutil.RelativePath{sp.Join(child.Basename())})
					}
					event.FoldInto(dirCreated, child)
					a.updateLocalState(child)
					a.remove(child)
				}
				delete(a.copyWatchSet, tp)
				a.updateLocalState(dirCreated)
			}
			// Attach only the current candidate inside this loop; the full
			// survivor set (if more than one source still matches) is
			// attached once below, after the loop finishes.
			dirCreated.PromoteToCopied([]pathutil.RelativePath{sp})
		}

		// Attach the full survivor set once, after the loop, so a later
		// grandparent-level pass can disambiguate between them if needed.
		if len(survivors) > 1 {
			dirCreated.PromoteToCopied(survivors)
		}
	}

	return recurse
}

// absorbDescendantEmptyCreates folds every pending empty Created event
// strictly under e into e, updating LocalState for each before removing it:
// they are byproducts of a recursive directory copy whose own parent is
// about to be promoted.
func (a *Aggregator) absorbDescendantEmptyCreates(e *event.Envelope) {
	for _, ee := range a.snapshot() {
		if ee.IsCreated() && ee.IsEmpty() && ee.ComesAfter(e) {
			event.FoldInto(e, ee)
			a.updateLocalState(ee)
			a.remove(ee)
		}
	}
}

func (a *Aggregator) pendingDirCreatedAt(tp pathutil.RelativePath) *event.Envelope {
	for _, e := range a.pending {
		if e.IsDirCreated() && e.RefPath() == tp {
			return e
		}
	}
	return nil
}

// countFilesRecursive counts non-empty files under absDir, recursively. The
// second return value is false if absDir does not exist or is not a
// directory.
func countFilesRecursive(absDir string) (int, bool) {
	info, err := os.Stat(absDir)
	if err != nil || !info.IsDir() {
		return 0, false
	}
	count := 0
	walkErr := filepath.Walk(absDir, func(p string, fi os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if !fi.IsDir() && fi.Size() > 0 {
			count++
		}
		return nil
	})
	if walkErr != nil {
		return 0, false
	}
	return count, true
}

// fileSize returns the size of the regular file at absPath, or false if it
// doesn't exist or is a directory.
func fileSize(absPath string) (int64, bool) {
	info, err := os.Stat(absPath)
	if err != nil || info.IsDir() {
		return 0, false
	}
	return info.Size(), true
}

// listDirCount returns the number of entries directly inside absPath, or
// false if it can't be listed.
func listDirCount(absPath string) (int, bool) {
	entries, err := os.ReadDir(absPath)
	if err != nil {
		return 0, false
	}
	return len(entries), true
}

// emptyTreesMatch reports whether absSrc and absDest contain exactly the
// same set of relative entries, used to recognize a recursively-empty
// directory tree that was copied without generating per-file events.
func emptyTreesMatch(absSrc, absDest string) bool {
	return treeIsSubsetOf(absSrc, absDest) && treeIsSubsetOf(absDest, absSrc)
}

func treeIsSubsetOf(absA, absB string) bool {
	match := true
	_ = filepath.Walk(absA, func(p string, fi os.FileInfo, err error) error {
		if err != nil || !match || p == absA {
			return nil
		}
		rel, relErr := filepath.Rel(absA, p)
		if relErr != nil {
			match = false
			return nil
		}
		if _, statErr := os.Stat(filepath.Join(absB, rel)); statErr != nil {
			match = false
		}
		return nil
	})
	return match
}

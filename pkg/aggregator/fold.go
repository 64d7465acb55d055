package aggregator

import (
	"github.com/warniiiz/lazydog-go/pkg/event"
)

// foldDeleted applies the Deleted folding rules against the incoming
// envelope L, returning whether L itself should still be appended to the
// pending list afterward.
//
// inotify reports deletes of a removed tree bottom-up, so an ancestor
// Deleted arriving later must absorb any already-pending descendant Deletes
// under the same root.
func (a *Aggregator) foldDeleted(L *event.Envelope) bool {
	for _, e := range a.pendingOfKind(event.Deleted) {
		if e.RefPath().ComesAfter(L.RefPath()) {
			event.FoldInto(L, e)
			a.remove(e)
		}
	}

	for _, e := range a.snapshot() {
		if !e.HasSamePath(L) {
			continue
		}
		switch {
		case e.IsCreated() || e.IsCopied() || e.IsModified():
			// A create-then-delete (or copy/modify-then-delete) within the
			// same burst cancels out entirely.
			event.FoldInto(L, e)
			a.remove(e)
			L.IsIrrelevant = true
		case e.IsMoved():
			// Deleting a path that was just moved surfaces as a delete of
			// the move's original source, not its destination.
			event.FoldInto(L, e)
			L.Path = e.Path
			a.remove(e)
		}
	}

	return true
}

// foldMoved applies the Moved folding rules, updating LocalState immediately
// (a move is never ambiguous the way a create is) and folding L into any
// pending event it extends, returning whether L itself should still be
// appended.
func (a *Aggregator) foldMoved(L *event.Envelope) bool {
	a.state.Move(L.Path, L.ToPath)

	appended := true
	for _, e := range a.snapshot() {
		switch {
		case (e.IsCreated() || e.IsCopied() || e.IsMoved()) && L.Path == e.RefPath():
			// L's source is where e currently lives: e survives,
			// relocated to L's destination.
			event.FoldInto(e, L)
			e.SetRefPath(L.ToPath)
			appended = false
		case e.IsMoved() && L.Path.ComesAfter(e.Path):
			// A sub-move of something already being moved by e is noise;
			// e's single move already covers it.
			event.FoldInto(e, L)
			appended = false
		}
	}
	return appended
}

// foldModified applies the Modified folding rules. Directory modifications
// are pure noise and always dropped. File modifications fold
// into whatever pending event already covers the same (or an ancestor)
// path; if none does, L is appended as its own Modified event. A metadata
// modification landing on a still-pending Created re-arms the copy probe,
// since many filesystems only settle a new file's final size/mtime after
// the metadata event.
func (a *Aggregator) foldModified(L *event.Envelope) (appended bool, probe *event.Envelope) {
	if L.IsDir {
		return false, nil
	}

	folded := false
	for _, e := range a.snapshotReversed() {
		switch {
		case e.IsDeleted() || e.IsMoved() || e.IsCopied():
			if L.RefPath().SameOrComesAfter(e.RefPath()) {
				event.FoldInto(e, L)
				folded = true
			}
		case e.IsCreated() || e.IsModified():
			if L.HasSamePath(e) {
				event.FoldInto(e, L)
				folded = true
				if e.IsCreated() && L.IsModifiedMetadata() {
					probe = e
				}
			}
		}
	}
	return !folded, probe
}

func (a *Aggregator) pendingOfKind(k event.Kind) []*event.Envelope {
	var out []*event.Envelope
	for _, e := range a.snapshot() {
		if e.Kind == k {
			out = append(out, e)
		}
	}
	return out
}

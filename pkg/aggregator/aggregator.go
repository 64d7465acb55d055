// Package aggregator implements the correlation engine's core state
// machine: it folds a stream of low-level filesystem notifications into a
// pending list of high-level events, promoting Created events into Copied
// or Moved ones as evidence accumulates and collapsing directory-level
// copies into a single event.
//
// Directory-copy promotion needs to re-examine the whole copy-watch set
// every time a promotion succeeds, since promoting one directory can make
// its own parent newly promotable; that re-examination is a bounded
// worklist loop rather than recursion, and a fold updates whichever
// envelope survives it in place (see event.FoldInto).
//
// Aggregator is not safe for concurrent use; the caller (pkg/lazydog.Core)
// serializes every call behind a single lock.
package aggregator

import (
	"time"

	"github.com/warniiiz/lazydog-go/pkg/event"
	"github.com/warniiiz/lazydog-go/pkg/localstate"
	"github.com/warniiiz/lazydog-go/pkg/logging"
	"github.com/warniiiz/lazydog-go/pkg/pathutil"
)

// CopyGroupExpiry bounds how long a parent destination directory is
// considered for directory-copy promotion after its last touch. This only
// bounds memory; the release quiet period is the only externally
// observable timing knob.
const CopyGroupExpiry = 20 * time.Minute

// Aggregator owns the pending list of in-flight high-level events and the
// LocalState it updates as those events are accepted or released.
type Aggregator struct {
	state  *localstate.LocalState
	logger *logging.Logger

	pending []*event.Envelope

	// copyWatchSet maps a parent destination directory to the time it was
	// last touched by a file-level copy promotion, so promoteDirectories
	// knows which destinations are still worth re-examining for a
	// directory-level collapse.
	copyWatchSet map[pathutil.RelativePath]time.Time

	// blockRelease is true while a copy probe is hashing a candidate file,
	// so a concurrent ReleaseGate.Poll sees half-classified state as
	// not-yet-ready rather than releasing a stale Created event.
	blockRelease bool

	lastMutation time.Time

	copyGroupExpiry time.Duration
}

// New creates an Aggregator bound to state, which it will mutate as events
// are accepted and released. copyGroupExpiry bounds directory-copy-promotion
// memory; zero falls back to CopyGroupExpiry.
func New(state *localstate.LocalState, logger *logging.Logger, copyGroupExpiry time.Duration) *Aggregator {
	if logger == nil {
		logger = logging.RootLogger
	}
	if copyGroupExpiry <= 0 {
		copyGroupExpiry = CopyGroupExpiry
	}
	return &Aggregator{
		state:           state,
		logger:          logger,
		copyWatchSet:    make(map[pathutil.RelativePath]time.Time),
		lastMutation:    time.Now(),
		copyGroupExpiry: copyGroupExpiry,
	}
}

// Pending returns the current pending list. The returned slice is owned by
// the Aggregator and must not be mutated by the caller; ReleaseGate uses it
// to build its own snapshot under the shared lock.
func (a *Aggregator) Pending() []*event.Envelope {
	return a.pending
}

// BlockRelease reports whether a copy probe is currently hashing a
// candidate, which should suspend emission until it completes.
func (a *Aggregator) BlockRelease() bool {
	return a.blockRelease
}

// LastMutation returns the time of the most recent fold, used by
// ReleaseGate's quiet-period check.
func (a *Aggregator) LastMutation() time.Time {
	return a.lastMutation
}

// RemoveReleased drops e from the pending list. ReleaseGate calls this for
// every envelope it removes during a poll.
func (a *Aggregator) RemoveReleased(e *event.Envelope) {
	a.remove(e)
}

// Fold accepts one raw notification, wraps it into an envelope, applies the
// per-kind folding rules (foldDeleted, foldMoved, foldModified), then runs
// the copy- and directory-promotion passes (probeCopy, promoteDirectories).
func (a *Aggregator) Fold(n Notification) {
	L := a.wrap(n)

	var appended bool
	var probeCandidate *event.Envelope

	switch n.Kind {
	case event.Deleted:
		appended = a.foldDeleted(L)
	case event.Moved:
		appended = a.foldMoved(L)
	case event.ModifiedContent, event.ModifiedMetadata:
		appended, probeCandidate = a.foldModified(L)
	case event.Created:
		appended = true
		probeCandidate = L
	default:
		appended = true
	}

	if appended {
		a.pending = append(a.pending, L)
	}

	if probeCandidate != nil {
		a.probeCopy(probeCandidate)
	}

	a.promoteDirectories()
	a.lastMutation = time.Now()
}

func (a *Aggregator) wrap(n Notification) *event.Envelope {
	if n.Kind == event.Moved {
		return event.NewMove(n.Path, n.ToPath, n.IsDir, a.state)
	}
	return event.New(n.Kind, n.Path, n.IsDir, a.state)
}

// snapshot returns a copy of the pending list, safe to range over while the
// caller mutates the real pending list.
func (a *Aggregator) snapshot() []*event.Envelope {
	out := make([]*event.Envelope, len(a.pending))
	copy(out, a.pending)
	return out
}

// snapshotReversed returns a newest-first copy of the pending list, used
// when folding Modified notifications: the most recently touched candidate
// is the most plausible match.
func (a *Aggregator) snapshotReversed() []*event.Envelope {
	out := a.snapshot()
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

func (a *Aggregator) remove(target *event.Envelope) {
	for i, e := range a.pending {
		if e == target {
			a.pending = append(a.pending[:i], a.pending[i+1:]...)
			return
		}
	}
}

// Sweep runs periodic maintenance independent of any incoming notification:
// it prunes copy-watch-set entries that have aged past copyGroupExpiry.
// pkg/lazydog's Core drives this off a schedule so memory doesn't grow
// unbounded during long idle stretches between notifications.
func (a *Aggregator) Sweep() {
	a.pruneCopyWatchSet()
}

func (a *Aggregator) updateLocalState(e *event.Envelope) {
	switch {
	case e.IsDeleted():
		a.state.Delete(e.RefPath())
	case e.IsMoved():
		a.state.Move(e.Path, e.ToPath)
	default:
		a.state.Save(e.RefPath(), e.Hash(), e.Size(), e.MTime())
	}
}

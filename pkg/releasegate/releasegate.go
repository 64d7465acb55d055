// Package releasegate implements the temporal quiet-period gate that
// decides when the aggregator's pending list has settled enough that its
// events can be safely handed to a consumer, holding back empty-file
// creates and scrubbing modifications that turn out not to have changed
// anything once compared against LocalState.
package releasegate

import (
	"time"

	"github.com/warniiiz/lazydog-go/pkg/aggregator"
	"github.com/warniiiz/lazydog-go/pkg/event"
	"github.com/warniiiz/lazydog-go/pkg/localstate"
)

// Config holds the release gate's tunable timings: the only knobs exposed
// as externally observable.
type Config struct {
	// QuietPeriod is how long the pending list must go untouched before any
	// of it is considered ready to release.
	QuietPeriod time.Duration
	// EmptyFileGrace is how long an empty file Created event is held back,
	// since empty-file creation often immediately precedes a write. This is
	// 2 seconds here, chosen to cover a typical editor's create-then-write
	// gap without holding back a genuinely empty file for long.
	EmptyFileGrace time.Duration
}

// DefaultConfig holds the package's default timings.
var DefaultConfig = Config{
	QuietPeriod:    2 * time.Second,
	EmptyFileGrace: 2 * time.Second,
}

// Gate decides when pending events are quiescent and extracts the ready
// subset from an Aggregator's pending list.
type Gate struct {
	config Config
	agg    *aggregator.Aggregator
	state  *localstate.LocalState
}

// New creates a Gate that polls agg, updating state (the same LocalState agg
// itself mutates) when it scrubs or releases events.
func New(agg *aggregator.Aggregator, state *localstate.LocalState, config Config) *Gate {
	return &Gate{config: config, agg: agg, state: state}
}

// Poll returns the events ready for release, or nil if the pending list
// hasn't been quiet for at least QuietPeriod, or a copy probe is currently
// hashing. The caller is expected to hold whatever lock also guards the
// Aggregator (pkg/lazydog.Core), since Poll both reads and removes entries
// from its pending list.
func (g *Gate) Poll() []Event {
	if g.agg.BlockRelease() {
		return nil
	}
	if time.Since(g.agg.LastMutation()) <= g.config.QuietPeriod {
		return nil
	}

	pending := g.agg.Pending()
	for _, e := range pending {
		if e.IdleTime() <= g.config.QuietPeriod {
			return nil
		}
	}

	var released []*event.Envelope
	for _, e := range append([]*event.Envelope(nil), pending...) {
		if e.IsFileCreated() && e.IsEmpty() && e.IdleTime() <= g.config.EmptyFileGrace {
			continue
		}
		if e.IsIrrelevant {
			g.agg.RemoveReleased(e)
			continue
		}
		g.agg.RemoveReleased(e)
		released = append(released, e)
	}

	out := make([]Event, 0, len(released))
	for _, e := range released {
		if e.IsModified() {
			if g.isSpuriousModification(e) {
				continue
			}
			g.updateLocalState(e)
		} else if e.IsCreated() || e.IsDeleted() {
			g.updateLocalState(e)
		}
		out = append(out, fromEnvelope(e))
	}
	return out
}

// isSpuriousModification reports whether a released Modified event's
// snapshot exactly matches what LocalState already has cached for its path,
// meaning the underlying notification carried no real change (a touch, a
// metadata no-op, or a write that restored identical content).
func (g *Gate) isSpuriousModification(e *event.Envelope) bool {
	cachedHash, hashKnown := g.state.GetHash(e.RefPath(), false)
	cachedSizeTime, stKnown := g.state.GetSizeTime(e.RefPath(), false)
	if !hashKnown || !stKnown {
		return false
	}
	return cachedHash == e.Hash() &&
		cachedSizeTime.Size == e.Size() &&
		cachedSizeTime.ModTime == e.MTime()
}

func (g *Gate) updateLocalState(e *event.Envelope) {
	switch {
	case e.IsDeleted():
		g.state.Delete(e.RefPath())
	case e.IsMoved():
		g.state.Move(e.Path, e.ToPath)
	default:
		g.state.Save(e.RefPath(), e.Hash(), e.Size(), e.MTime())
	}
}

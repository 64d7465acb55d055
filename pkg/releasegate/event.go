package releasegate

import (
	"github.com/warniiiz/lazydog-go/pkg/event"
	"github.com/warniiiz/lazydog-go/pkg/pathutil"
)

// Event is a released, high-level, user-intent event: everything the
// aggregator's folding and promotion rules could establish about one
// logical action in the watched tree. This is the only externally visible
// shape the engine produces; everything upstream of it (Envelope, pending
// list, watch set) is internal bookkeeping.
type Event struct {
	ID    string
	Kind  event.Kind
	IsDir bool

	Path pathutil.RelativePath
	// ToPath is only set for Moved and Copied events.
	ToPath pathutil.RelativePath

	Size  int64
	MTime float64
	Hash  string

	FirstSeen int64 // unix nanoseconds
	LastSeen  int64 // unix nanoseconds
}

func fromEnvelope(e *event.Envelope) Event {
	out := Event{
		ID:        e.ID,
		Kind:      e.Kind,
		IsDir:     e.IsDir,
		Path:      e.Path,
		Size:      e.Size(),
		MTime:     e.MTime(),
		Hash:      e.Hash(),
		FirstSeen: e.FirstSeen.UnixNano(),
		LastSeen:  e.LastSeen.UnixNano(),
	}
	if e.HasDest() {
		out.ToPath = e.ToPath
	}
	return out
}

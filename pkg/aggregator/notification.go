package aggregator

import (
	"github.com/warniiiz/lazydog-go/pkg/event"
	"github.com/warniiiz/lazydog-go/pkg/pathutil"
)

// Notification is one raw, low-level filesystem notification handed to the
// aggregator by a RawEventSource adapter (pkg/watching). It carries no
// aggregation state of its own; the aggregator wraps it into an
// event.Envelope on arrival.
type Notification struct {
	Kind  event.Kind
	IsDir bool
	Path  pathutil.RelativePath
	// ToPath is only meaningful when Kind is event.Moved.
	ToPath pathutil.RelativePath
}

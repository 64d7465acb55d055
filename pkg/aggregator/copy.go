package aggregator

import (
	"time"

	"github.com/warniiiz/lazydog-go/pkg/event"
	"github.com/warniiiz/lazydog-go/pkg/localstate"
	"github.com/warniiiz/lazydog-go/pkg/pathutil"
)

// probeCopy takes a Created envelope that just arrived (or was re-armed by
// a metadata-modify fold) and checks whether it actually matches an
// existing file elsewhere in the tree, first by size and modification
// time, then by content hash. A match promotes it in place into a Copied
// event.
func (a *Aggregator) probeCopy(c *event.Envelope) {
	if c.IsDir || c.Size() <= 0 {
		return
	}

	matches := a.state.LookupBySizeTime(localstate.SizeTime{Size: c.Size(), ModTime: c.MTime()})
	if len(matches) == 0 {
		return
	}

	// Hashing can be slow; block releases around it so a concurrent poll
	// doesn't emit this envelope while it's still mid-reclassification.
	a.blockRelease = true
	hash := c.Hash()
	a.blockRelease = false

	destPath := c.Path
	var sources []pathutil.RelativePath
	for _, src := range a.state.LookupByHash(hash) {
		// c.Hash() has just cached the destination's own hash in
		// LocalState; a file is never a copy of itself.
		if src != destPath {
			sources = append(sources, src)
		}
	}
	if len(sources) == 0 {
		return
	}

	c.PromoteToCopied(sources)

	a.copyWatchSet[c.ParentPath()] = time.Now()
	a.promoteDirectories()

	a.state.Save(destPath, hash, c.Size(), c.MTime())
}

// Package lazydog wires pkg/watching, pkg/aggregator and pkg/releasegate
// into the single engine a caller drives against one watched root: a
// RawEventSource feeds notifications to an Aggregator, and a ReleaseGate
// periodically extracts whatever has settled.
//
// A lifecycleLock guards start/stop state and the run loop's
// context.CancelFunc; a coarser stateLock serializes every touch of the
// mutable correlation state (folding a notification, polling the release
// gate, running the periodic sweep) so only one goroutine ever mutates the
// aggregator or LocalState at a time.
package lazydog

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"

	"github.com/warniiiz/lazydog-go/pkg/aggregator"
	"github.com/warniiiz/lazydog-go/pkg/config"
	"github.com/warniiiz/lazydog-go/pkg/localstate"
	"github.com/warniiiz/lazydog-go/pkg/logging"
	"github.com/warniiiz/lazydog-go/pkg/pathutil"
	"github.com/warniiiz/lazydog-go/pkg/releasegate"
	"github.com/warniiiz/lazydog-go/pkg/watching"
)

// ErrAlreadyStarted is returned by Start if the Core is already running.
var ErrAlreadyStarted = errors.New("lazydog: core already started")

// sweepSchedule runs the copy-watch-set pruning sweep independently of
// notification traffic, so memory bounded by aggregator.CopyGroupExpiry
// actually gets reclaimed during long idle stretches.
const sweepSchedule = "@every 1m"

// Core is the top-level handle a long-running process (cmd/lazydog, or any
// embedder) holds onto: one watched root, one LocalState, one pending list.
type Core struct {
	root   string
	logger *logging.Logger

	lifecycleLock sync.Mutex
	cancel        context.CancelFunc
	done          chan struct{}
	cron          *cron.Cron

	// stateLock serializes every operation that touches the aggregator's
	// pending list or LocalState: folding an incoming notification,
	// polling the release gate, and the cron-driven sweep all take it.
	stateLock sync.Mutex
	state     *localstate.LocalState
	agg       *aggregator.Aggregator
	gate      *releasegate.Gate
	source    *watching.Source
}

// New creates a Core rooted at root but does not start watching yet. If
// seed is non-nil, LocalState is rehydrated from a prior run's cache
// instead of rehashing the tree from scratch; pass nil to always rehash.
func New(root string, cfg config.Config, seed map[pathutil.RelativePath]localstate.SeedEntry, logger *logging.Logger) (*Core, error) {
	if logger == nil {
		logger = logging.RootLogger
	}

	var state *localstate.LocalState
	if seed != nil {
		state = localstate.NewFromSeed(root, localstate.DropboxContentHash, seed)
	} else {
		built, err := localstate.New(root, localstate.DropboxContentHash)
		if err != nil {
			return nil, fmt.Errorf("build local state: %w", err)
		}
		state = built
	}

	agg := aggregator.New(state, logger, cfg.CopyGroupExpiry())
	gate := releasegate.New(agg, state, cfg.ReleaseGateConfig())

	return &Core{
		root:   root,
		logger: logger,
		state:  state,
		agg:    agg,
		gate:   gate,
	}, nil
}

// Start registers the filesystem watch and begins folding its notifications
// on a background goroutine. It returns once the initial watch tree is
// registered; folding continues until ctx is cancelled or Stop is called.
func (c *Core) Start(ctx context.Context) error {
	c.lifecycleLock.Lock()
	defer c.lifecycleLock.Unlock()

	if c.cancel != nil {
		return ErrAlreadyStarted
	}

	source, err := watching.New(c.root, c.state, c.logger)
	if err != nil {
		return fmt.Errorf("start watcher: %w", err)
	}
	c.source = source

	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.done = make(chan struct{})

	c.cron = cron.New()
	if _, err := c.cron.AddFunc(sweepSchedule, c.sweep); err != nil {
		cancel()
		source.Close()
		c.cancel = nil
		return fmt.Errorf("schedule sweep: %w", err)
	}
	c.cron.Start()

	go c.run(runCtx)

	return nil
}

// Stop cancels the background run loop, closes the watcher, and stops the
// sweep schedule, waiting for both to finish. Safe to call if Start was
// never called or already stopped.
func (c *Core) Stop() {
	c.lifecycleLock.Lock()
	defer c.lifecycleLock.Unlock()

	if c.cancel == nil {
		return
	}

	c.cancel()
	<-c.done
	c.cancel = nil

	stopCtx := c.cron.Stop()
	<-stopCtx.Done()
}

// Poll returns the events that have become ready for release since the
// last call, or nil if nothing has settled yet.
func (c *Core) Poll() []releasegate.Event {
	c.stateLock.Lock()
	defer c.stateLock.Unlock()
	return c.gate.Poll()
}

func (c *Core) run(ctx context.Context) {
	defer close(c.done)
	defer c.source.Close()

	notifications := c.source.Notifications()
	errs := c.source.Errors()

	for {
		select {
		case <-ctx.Done():
			return
		case n, ok := <-notifications:
			if !ok {
				return
			}
			c.stateLock.Lock()
			c.agg.Fold(n)
			c.stateLock.Unlock()
		case err, ok := <-errs:
			if ok {
				c.logger.Error(err)
			}
			return
		}
	}
}

func (c *Core) sweep() {
	c.stateLock.Lock()
	defer c.stateLock.Unlock()
	c.agg.Sweep()
}

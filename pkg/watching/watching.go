// Package watching adapts github.com/fsnotify/fsnotify into the raw
// notification stream pkg/aggregator consumes. fsnotify only watches the
// directories it is explicitly told about and never pairs a move's source
// and destination for you, so this package carries two responsibilities the
// aggregator assumes are already handled: recursive watch registration, and
// a best-effort Remove/Create pairing heuristic that turns the inotify
// "delete old path, create new path" shape into a single Moved notification.
package watching

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/warniiiz/lazydog-go/pkg/aggregator"
	"github.com/warniiiz/lazydog-go/pkg/event"
	"github.com/warniiiz/lazydog-go/pkg/localstate"
	"github.com/warniiiz/lazydog-go/pkg/logging"
	"github.com/warniiiz/lazydog-go/pkg/pathutil"
)

// ErrSourceClosed is sent on Errors when the underlying fsnotify watcher's
// channels close on their own. Nothing is sent on Errors after Close.
var ErrSourceClosed = errors.New("watching: source closed")

// MoveCorrelationWindow bounds how long a Remove notification waits for a
// same-(size,mtime) Create before it's surfaced as a plain Deleted. This is
// a heuristic, not a guarantee: a slow copy landing just outside the window
// surfaces as an unrelated Deleted plus Created pair, which the aggregator
// still handles correctly (it just won't promote them to Moved).
const MoveCorrelationWindow = 300 * time.Millisecond

// sweepInterval is how often the pending-remove buffer is checked for
// entries that have aged out of MoveCorrelationWindow.
const sweepInterval = 50 * time.Millisecond

// Source watches a root directory tree and emits aggregator.Notification
// values on Notifications(). It is not reusable after Close.
type Source struct {
	root    string
	state   *localstate.LocalState
	logger  *logging.Logger
	watcher *fsnotify.Watcher

	out  chan aggregator.Notification
	errs chan error
	done chan struct{}
	once sync.Once

	mu      sync.Mutex
	pending map[pathutil.RelativePath]pendingRemove
}

// pendingRemove is a Remove (or Rename-away) notification held back briefly
// in case a matching Create arrives and the pair can be reported as a Move.
type pendingRemove struct {
	isDir bool
	size  int64
	mtime float64
	seen  time.Time
}

// New creates a Source rooted at root, registers watches on every directory
// already present in the tree, and starts delivering notifications. state is
// used only to resolve absolute/relative paths and to read cached
// (size, mtime) pairs for move pairing; Source never mutates it.
func New(root string, state *localstate.LocalState, logger *logging.Logger) (*Source, error) {
	if logger == nil {
		logger = logging.RootLogger
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}

	s := &Source{
		root:    root,
		state:   state,
		logger:  logger,
		watcher: watcher,
		out:     make(chan aggregator.Notification, 64),
		errs:    make(chan error, 1),
		done:    make(chan struct{}),
		pending: make(map[pathutil.RelativePath]pendingRemove),
	}

	if err := s.addRecursive(root); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("register initial watches: %w", err)
	}

	go s.run()

	return s, nil
}

// Notifications returns the channel of raw notifications. It is closed when
// the source shuts down; if the shutdown came from the fsnotify watcher
// rather than Close, Errors carries ErrSourceClosed.
func (s *Source) Notifications() <-chan aggregator.Notification {
	return s.out
}

// Errors returns the channel carrying the terminal error, if any, that
// caused Notifications to close. It receives at most one value.
func (s *Source) Errors() <-chan error {
	return s.errs
}

// Close stops the watcher and its delivery loop. Safe to call more than
// once.
func (s *Source) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		err = s.watcher.Close()
	})
	return err
}

func (s *Source) addRecursive(absRoot string) error {
	return filepath.Walk(absRoot, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			// A directory can vanish between Walk listing it and visiting
			// it; that's just a race with the tree being watched, not a
			// reason to abort the whole registration.
			return nil
		}
		if info.IsDir() {
			return s.watcher.Add(p)
		}
		return nil
	})
}

func (s *Source) run() {
	defer close(s.out)

	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case ev, ok := <-s.watcher.Events:
			if !ok {
				s.fail(ErrSourceClosed)
				return
			}
			s.handle(ev)
		case err, ok := <-s.watcher.Errors:
			if !ok {
				s.fail(ErrSourceClosed)
				return
			}
			s.logger.Warn(err)
		case <-ticker.C:
			s.flushExpired()
		}
	}
}

func (s *Source) fail(err error) {
	select {
	case s.errs <- err:
	default:
	}
}

func (s *Source) handle(ev fsnotify.Event) {
	rel := s.state.ToRel(ev.Name)

	switch {
	case ev.HasCreate():
		s.handleCreate(rel, ev.Name)
	case ev.HasRemove(), ev.HasRename():
		s.handleRemove(rel)
	case ev.HasWrite():
		s.emit(aggregator.Notification{Kind: event.ModifiedContent, Path: rel, IsDir: false})
	case ev.HasChmod():
		s.emit(aggregator.Notification{Kind: event.ModifiedMetadata, Path: rel, IsDir: false})
	}
}

func (s *Source) handleCreate(rel pathutil.RelativePath, absPath string) {
	info, err := os.Stat(absPath)
	isDir := err == nil && info.IsDir()

	if isDir {
		// Children may already exist by the time the watch is registered
		// (a recursive copy can populate a new directory faster than we
		// can call Add on it), so walk and surface them as Created too.
		if walkErr := s.addRecursive(absPath); walkErr != nil {
			s.logger.Warn(fmt.Errorf("watch new subtree %s: %w", absPath, walkErr))
		}
		s.emitCatchUp(absPath)
	}

	if matched, ok := s.consumeMatchingRemove(rel, isDir); ok {
		s.emit(aggregator.Notification{Kind: event.Moved, IsDir: isDir, Path: matched, ToPath: rel})
		return
	}

	s.emit(aggregator.Notification{Kind: event.Created, Path: rel, IsDir: isDir})
}

// emitCatchUp surfaces Created notifications for anything already inside a
// just-registered directory, covering the race window between the
// directory's own Create event and the watch.Add call above.
func (s *Source) emitCatchUp(absDir string) {
	_ = filepath.Walk(absDir, func(p string, info os.FileInfo, err error) error {
		if err != nil || p == absDir {
			return nil
		}
		rel := s.state.ToRel(p)
		if info.IsDir() {
			s.emit(aggregator.Notification{Kind: event.Created, Path: rel, IsDir: true})
			return nil
		}
		s.emit(aggregator.Notification{Kind: event.Created, Path: rel, IsDir: false})
		return nil
	})
}

func (s *Source) handleRemove(rel pathutil.RelativePath) {
	st, ok := s.state.GetSizeTime(rel, false)
	if !ok {
		s.emit(aggregator.Notification{Kind: event.Deleted, Path: rel})
		return
	}

	s.mu.Lock()
	s.pending[rel] = pendingRemove{isDir: false, size: st.Size, mtime: st.ModTime, seen: time.Now()}
	s.mu.Unlock()
}

// consumeMatchingRemove looks for a pending Remove with the same (size,
// mtime) as the path that was just created, still within
// MoveCorrelationWindow. On a match it removes the entry and returns its
// path; size/mtime for directories aren't tracked, so directory moves never
// pair here and surface as a plain Deleted plus Created instead.
func (s *Source) consumeMatchingRemove(createdRel pathutil.RelativePath, isDir bool) (pathutil.RelativePath, bool) {
	if isDir {
		return "", false
	}

	info, err := os.Stat(s.state.ToAbs(createdRel))
	if err != nil {
		return "", false
	}
	st := localstate.SizeTime{Size: info.Size(), ModTime: localstate.RoundModTime(info.ModTime())}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	for rel, pr := range s.pending {
		if pr.isDir || now.Sub(pr.seen) > MoveCorrelationWindow {
			continue
		}
		if pr.size == st.Size && pr.mtime == st.ModTime {
			delete(s.pending, rel)
			return rel, true
		}
	}
	return "", false
}

func (s *Source) flushExpired() {
	s.mu.Lock()
	now := time.Now()
	var expired []pathutil.RelativePath
	for rel, pr := range s.pending {
		if now.Sub(pr.seen) > MoveCorrelationWindow {
			expired = append(expired, rel)
			delete(s.pending, rel)
		}
	}
	s.mu.Unlock()

	for _, rel := range expired {
		s.emit(aggregator.Notification{Kind: event.Deleted, Path: rel})
	}
}

func (s *Source) emit(n aggregator.Notification) {
	select {
	case s.out <- n:
	case <-s.done:
	}
}

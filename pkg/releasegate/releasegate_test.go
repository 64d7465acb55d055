package releasegate_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warniiiz/lazydog-go/pkg/aggregator"
	"github.com/warniiiz/lazydog-go/pkg/event"
	"github.com/warniiiz/lazydog-go/pkg/localstate"
	"github.com/warniiiz/lazydog-go/pkg/pathutil"
	"github.com/warniiiz/lazydog-go/pkg/releasegate"
)

func rp(s string) pathutil.RelativePath {
	return pathutil.Normalize(s)
}

func writeFile(t *testing.T, root, rel, content string) string {
	t.Helper()
	full := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
	return full
}

const testQuiet = 30 * time.Millisecond

func setup(t *testing.T) (string, *localstate.LocalState, *aggregator.Aggregator, *releasegate.Gate) {
	t.Helper()
	root := t.TempDir()
	state, err := localstate.New(root, localstate.DropboxContentHash)
	require.NoError(t, err)

	agg := aggregator.New(state, nil, 0)
	gate := releasegate.New(agg, state, releasegate.Config{
		QuietPeriod:    testQuiet,
		EmptyFileGrace: testQuiet,
	})
	return root, state, agg, gate
}

func settle() {
	time.Sleep(testQuiet + 20*time.Millisecond)
}

func TestPollWithholdsUntilQuietPeriodElapses(t *testing.T) {
	root, _, agg, gate := setup(t)
	writeFile(t, root, "a.txt", "hello")

	agg.Fold(aggregator.Notification{Kind: event.Created, Path: rp("/a.txt")})
	assert.Empty(t, gate.Poll(), "should not release before the quiet period elapses")

	settle()
	assert.Len(t, gate.Poll(), 1)
}

func TestPollUpdatesLocalStateForReleasedCreate(t *testing.T) {
	root, state, agg, gate := setup(t)
	writeFile(t, root, "a.txt", "hello")

	agg.Fold(aggregator.Notification{Kind: event.Created, Path: rp("/a.txt")})
	settle()
	require.Len(t, gate.Poll(), 1)

	_, ok := state.GetHash(rp("/a.txt"), false)
	assert.True(t, ok, "a released Created event must leave LocalState populated without recomputation")
}

func TestEmptyFileCreateIsHeldBackDuringGrace(t *testing.T) {
	root, state, agg, _ := setup(t)
	// The grace period must outlast the quiet period: Poll only looks at an
	// envelope once it has been idle longer than QuietPeriod.
	gate := releasegate.New(agg, state, releasegate.Config{
		QuietPeriod:    testQuiet,
		EmptyFileGrace: 10 * testQuiet,
	})
	writeFile(t, root, "empty.txt", "")

	agg.Fold(aggregator.Notification{Kind: event.Created, Path: rp("/empty.txt")})
	// After the base quiet period, the longer grace period still keeps the
	// empty file pending.
	time.Sleep(testQuiet + 5*time.Millisecond)
	assert.Empty(t, gate.Poll(), "an empty file create must be held back for EmptyFileGrace")
}

func TestSpuriousModificationIsDroppedOnScrub(t *testing.T) {
	root, _, agg, gate := setup(t)
	full := writeFile(t, root, "a.txt", "hello")

	agg.Fold(aggregator.Notification{Kind: event.Created, Path: rp("/a.txt")})
	settle()
	require.Len(t, gate.Poll(), 1, "create settles and LocalState is populated from it")

	// Touch the file with identical content and timestamp: the filesystem
	// still reports a Write, but nothing actually changed.
	info, err := os.Stat(full)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(full, []byte("hello"), 0o644))
	require.NoError(t, os.Chtimes(full, info.ModTime(), info.ModTime()))

	agg.Fold(aggregator.Notification{Kind: event.ModifiedContent, Path: rp("/a.txt")})
	settle()

	assert.Empty(t, gate.Poll(), "a modification that matches the cached snapshot exactly must be scrubbed")
}

func TestRealModificationSurvivesScrub(t *testing.T) {
	root, _, agg, gate := setup(t)
	full := writeFile(t, root, "a.txt", "hello")

	agg.Fold(aggregator.Notification{Kind: event.Created, Path: rp("/a.txt")})
	settle()
	require.Len(t, gate.Poll(), 1)

	require.NoError(t, os.WriteFile(full, []byte("hello world"), 0o644))
	agg.Fold(aggregator.Notification{Kind: event.ModifiedContent, Path: rp("/a.txt")})
	settle()

	got := gate.Poll()
	require.Len(t, got, 1)
	assert.EqualValues(t, len("hello world"), got[0].Size)
}

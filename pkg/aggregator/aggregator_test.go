package aggregator_test

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

// matchMTime forces path's modification time to equal that of like, so a
// test can simulate a copy tool (or filesystem) that preserves timestamps,
// which the copy probe's (size, mtime) lookup depends on.
func matchMTime(t *testing.T, path, like string) {
	t.Helper()
	info, err := os.Stat(like)
	require.NoError(t, err)
	require.NoError(t, os.Chtimes(path, info.ModTime(), info.ModTime()))
}

const testQuiet = 30 * time.Millisecond

func setup(t *testing.T) (string, *aggregator.Aggregator, *releasegate.Gate) {
	t.Helper()
	root := t.TempDir()
	state, err := localstate.New(root, localstate.DropboxContentHash)
	require.NoError(t, err)

	agg := aggregator.New(state, nil, 0)
	gate := releasegate.New(agg, state, releasegate.Config{
		QuietPeriod:    testQuiet,
		EmptyFileGrace: testQuiet,
	})
	return root, agg, gate
}

func settle() {
	time.Sleep(testQuiet + 20*time.Millisecond)
}

// Scenario 1: mkdir one dir.
func TestScenarioMkdirOneDirectory(t *testing.T) {
	root, agg, gate := setup(t)
	require.NoError(t, os.Mkdir(filepath.Join(root, "dir1"), 0o755))

	agg.Fold(aggregator.Notification{Kind: event.Created, IsDir: true, Path: rp("/dir1")})
	settle()

	got := gate.Poll()
	require.Len(t, got, 1)
	assert.Equal(t, event.Created, got[0].Kind)
	assert.True(t, got[0].IsDir)
	assert.Equal(t, rp("/dir1"), got[0].Path)
}

// Scenario 2: create a small file.
func TestScenarioCreateSmallFile(t *testing.T) {
	root, agg, gate := setup(t)
	writeFile(t, root, "file1.txt", "not_empty") // 9 bytes

	agg.Fold(aggregator.Notification{Kind: event.Created, Path: rp("/file1.txt")})
	settle()

	got := gate.Poll()
	require.Len(t, got, 1)
	assert.Equal(t, event.Created, got[0].Kind)
	assert.Equal(t, rp("/file1.txt"), got[0].Path)
	assert.EqualValues(t, 9, got[0].Size)
}

// Scenario 3: rename a file, preceded by scenario 2 settling first so
// LocalState already has a baseline for /file1.txt.
func TestScenarioRenameFile(t *testing.T) {
	root, agg, gate := setup(t)
	writeFile(t, root, "file1.txt", "not_empty")
	agg.Fold(aggregator.Notification{Kind: event.Created, Path: rp("/file1.txt")})
	settle()
	require.Len(t, gate.Poll(), 1)

	require.NoError(t, os.Rename(filepath.Join(root, "file1.txt"), filepath.Join(root, "file1_moved.txt")))
	agg.Fold(aggregator.Notification{Kind: event.Moved, Path: rp("/file1.txt"), ToPath: rp("/file1_moved.txt")})
	settle()

	got := gate.Poll()
	require.Len(t, got, 1)
	assert.Equal(t, event.Moved, got[0].Kind)
	assert.Equal(t, rp("/file1.txt"), got[0].Path)
	assert.Equal(t, rp("/file1_moved.txt"), got[0].ToPath)
	assert.EqualValues(t, 9, got[0].Size)
}

// Scenario 3b: a second move landing on a pending move's destination before
// release must collapse into a single Moved event from the original source
// to the final destination, not surface as two separate moves.
func TestScenarioDoubleMoveCollapses(t *testing.T) {
	root, agg, gate := setup(t)
	writeFile(t, root, "file1.txt", "not_empty")
	agg.Fold(aggregator.Notification{Kind: event.Created, Path: rp("/file1.txt")})
	settle()
	require.Len(t, gate.Poll(), 1)

	require.NoError(t, os.Rename(filepath.Join(root, "file1.txt"), filepath.Join(root, "file1_mid.txt")))
	agg.Fold(aggregator.Notification{Kind: event.Moved, Path: rp("/file1.txt"), ToPath: rp("/file1_mid.txt")})

	require.NoError(t, os.Rename(filepath.Join(root, "file1_mid.txt"), filepath.Join(root, "file1_final.txt")))
	agg.Fold(aggregator.Notification{Kind: event.Moved, Path: rp("/file1_mid.txt"), ToPath: rp("/file1_final.txt")})
	settle()

	got := gate.Poll()
	require.Len(t, got, 1, "a second move landing on a pending move's destination must collapse into one event")
	assert.Equal(t, event.Moved, got[0].Kind)
	assert.Equal(t, rp("/file1.txt"), got[0].Path)
	assert.Equal(t, rp("/file1_final.txt"), got[0].ToPath)
}

// Scenario 4: copy a file, with the destination's mtime made to match the
// source's (as a timestamp-preserving copy tool would produce), so the
// probe's (size, mtime) lookup succeeds.
func TestScenarioCopyFile(t *testing.T) {
	root, agg, gate := setup(t)
	src := writeFile(t, root, "file1.txt", "sixteen_byte_str") // 16 bytes
	agg.Fold(aggregator.Notification{Kind: event.Created, Path: rp("/file1.txt")})
	settle()
	require.Len(t, gate.Poll(), 1)

	dst := writeFile(t, root, "copied.txt", "sixteen_byte_str")
	matchMTime(t, dst, src)

	agg.Fold(aggregator.Notification{Kind: event.Created, Path: rp("/copied.txt")})
	settle()

	got := gate.Poll()
	require.Len(t, got, 1)
	assert.Equal(t, event.Copied, got[0].Kind)
	assert.Equal(t, rp("/file1.txt"), got[0].Path)
	assert.Equal(t, rp("/copied.txt"), got[0].ToPath)
	assert.EqualValues(t, 16, got[0].Size)
}

// Scenario 5: copy a non-empty directory. Exactly one directory-level
// Copied event should surface; the per-file copies must be absorbed.
func TestScenarioCopyNonEmptyDirectory(t *testing.T) {
	root, agg, gate := setup(t)
	srcA := writeFile(t, root, "dir1/a.txt", "fourteen_bytes")
	srcB := writeFile(t, root, "dir1/b.txt", "fourteen_bytes")
	// Let the source tree settle first so LocalState knows it, as scenario 4
	// does for its source file.
	agg.Fold(aggregator.Notification{Kind: event.Created, IsDir: true, Path: rp("/dir1")})
	agg.Fold(aggregator.Notification{Kind: event.Created, Path: rp("/dir1/a.txt")})
	agg.Fold(aggregator.Notification{Kind: event.Created, Path: rp("/dir1/b.txt")})
	settle()
	require.Len(t, gate.Poll(), 3)

	require.NoError(t, os.Mkdir(filepath.Join(root, "dir2"), 0o755))
	dstA := writeFile(t, root, "dir2/a.txt", "fourteen_bytes")
	dstB := writeFile(t, root, "dir2/b.txt", "fourteen_bytes")
	matchMTime(t, dstA, srcA)
	matchMTime(t, dstB, srcB)

	agg.Fold(aggregator.Notification{Kind: event.Created, IsDir: true, Path: rp("/dir2")})
	agg.Fold(aggregator.Notification{Kind: event.Created, Path: rp("/dir2/a.txt")})
	agg.Fold(aggregator.Notification{Kind: event.Created, Path: rp("/dir2/b.txt")})
	settle()

	got := gate.Poll()
	require.Len(t, got, 1, "expected exactly one directory-level Copied event, no per-file events")
	assert.Equal(t, event.Copied, got[0].Kind)
	assert.True(t, got[0].IsDir)
	assert.Equal(t, rp("/dir1"), got[0].Path)
	assert.Equal(t, rp("/dir2"), got[0].ToPath)
}

// Scenario 5b: copy a directory containing an empty subdirectory and a
// zero-byte file alongside a regular file. Neither the empty subdirectory
// nor the zero-byte file ever generates a Modified event distinguishing it
// from a true creation, so they can only be recognized as copy companions
// by comparing directory entry counts and recursive emptiness against the
// matched source; the whole tree must still collapse into a single
// directory-level Copied event at the root.
func TestScenarioCopyDirectoryWithEmptySubdirAndZeroByteFile(t *testing.T) {
	root, agg, gate := setup(t)
	srcA := writeFile(t, root, "dir1/a.txt", "fourteen_bytes")
	require.NoError(t, os.MkdirAll(filepath.Join(root, "dir1/emptysub"), 0o755))
	srcZero := writeFile(t, root, "dir1/zero.txt", "")
	// Let the source tree settle first so LocalState knows it.
	agg.Fold(aggregator.Notification{Kind: event.Created, IsDir: true, Path: rp("/dir1")})
	agg.Fold(aggregator.Notification{Kind: event.Created, Path: rp("/dir1/a.txt")})
	agg.Fold(aggregator.Notification{Kind: event.Created, IsDir: true, Path: rp("/dir1/emptysub")})
	agg.Fold(aggregator.Notification{Kind: event.Created, Path: rp("/dir1/zero.txt")})
	settle()
	require.Len(t, gate.Poll(), 4)

	require.NoError(t, os.Mkdir(filepath.Join(root, "dir2"), 0o755))
	dstA := writeFile(t, root, "dir2/a.txt", "fourteen_bytes")
	matchMTime(t, dstA, srcA)
	require.NoError(t, os.MkdirAll(filepath.Join(root, "dir2/emptysub"), 0o755))
	dstZero := writeFile(t, root, "dir2/zero.txt", "")
	matchMTime(t, dstZero, srcZero)

	agg.Fold(aggregator.Notification{Kind: event.Created, IsDir: true, Path: rp("/dir2")})
	agg.Fold(aggregator.Notification{Kind: event.Created, Path: rp("/dir2/a.txt")})
	agg.Fold(aggregator.Notification{Kind: event.Created, IsDir: true, Path: rp("/dir2/emptysub")})
	agg.Fold(aggregator.Notification{Kind: event.Created, Path: rp("/dir2/zero.txt")})
	settle()

	got := gate.Poll()
	require.Len(t, got, 1, "expected exactly one directory-level Copied event, no per-entry events")
	assert.Equal(t, event.Copied, got[0].Kind)
	assert.True(t, got[0].IsDir)
	assert.Equal(t, rp("/dir1"), got[0].Path)
	assert.Equal(t, rp("/dir2"), got[0].ToPath)
}

// Scenario 6: a create immediately followed by a delete within the same
// burst must produce zero events.
func TestScenarioCreateDeleteBurst(t *testing.T) {
	root, agg, gate := setup(t)
	full := writeFile(t, root, "tmp.txt", "x")

	agg.Fold(aggregator.Notification{Kind: event.Created, Path: rp("/tmp.txt")})
	require.NoError(t, os.Remove(full))
	agg.Fold(aggregator.Notification{Kind: event.Deleted, Path: rp("/tmp.txt")})
	settle()

	assert.Empty(t, gate.Poll())
}

// Boundary case: create an empty file, move it, then write content; exactly
// one Created event should surface, at the final path, with the final size.
func TestBoundaryEmptyCreateMoveThenWrite(t *testing.T) {
	root, agg, gate := setup(t)
	full := writeFile(t, root, "a.txt", "")

	agg.Fold(aggregator.Notification{Kind: event.Created, Path: rp("/a.txt")})

	moved := filepath.Join(root, "b.txt")
	require.NoError(t, os.Rename(full, moved))
	agg.Fold(aggregator.Notification{Kind: event.Moved, Path: rp("/a.txt"), ToPath: rp("/b.txt")})

	require.NoError(t, os.WriteFile(moved, []byte("now has content"), 0o644))
	agg.Fold(aggregator.Notification{Kind: event.ModifiedContent, Path: rp("/b.txt")})
	settle()

	got := gate.Poll()
	require.Len(t, got, 1)
	assert.Equal(t, event.Created, got[0].Kind)
	assert.Equal(t, rp("/b.txt"), got[0].Path)
	assert.EqualValues(t, len("now has content"), got[0].Size)
}

// No phantom emissions: an envelope folded into irrelevance must never be
// released, even once the quiet period elapses.
func TestNoPhantomEmissionForIrrelevantEvent(t *testing.T) {
	root, agg, gate := setup(t)
	full := writeFile(t, root, "ghost.txt", "x")

	agg.Fold(aggregator.Notification{Kind: event.Created, Path: rp("/ghost.txt")})
	require.NoError(t, os.Remove(full))
	agg.Fold(aggregator.Notification{Kind: event.Deleted, Path: rp("/ghost.txt")})

	// Give the aggregator a second, unrelated mutation so LastMutation keeps
	// advancing the way a busy watched tree would, then let it go quiet.
	writeFile(t, root, "other.txt", "y")
	agg.Fold(aggregator.Notification{Kind: event.Created, Path: rp("/other.txt")})
	settle()

	got := gate.Poll()
	for _, e := range got {
		assert.NotEqual(t, rp("/ghost.txt"), e.Path, "an irrelevant create-delete burst must never be released")
	}
}

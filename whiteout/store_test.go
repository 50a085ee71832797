// store_test.go -- whiteout/hiding protocol invariants
//
// (c) 2024- Sudhi Herle <sudhi@herle.net>
//
// Licensing Terms: GPLv2
//
// If you need a commercial license for this work, please contact
// the author.
//
// This software does not come with any express or implied
// warranty; it is provided "as is". No claim  is made to its
// suitability for any purpose.

package whiteout

import (
	"os"
	"path/filepath"
	"testing"
)

// TestHideFileCreatesMarker: hiding a file plants a regular-file
// marker under the metadata directory.
func TestHideFileCreatesMarker(t *testing.T) {
	assert := newAsserter(t)
	rw, s := newTestStore(t, false)

	err := s.HideFile("/tmp", 0)
	assert(err == nil, "hide-file: %s", err)

	markerPath := filepath.Join(rw, DefaultMetaDir, "tmp", DefaultHideTag)
	st, err := os.Stat(markerPath)
	assert(err == nil, "stat marker: %s", err)
	assert(st.Mode().IsRegular(), "file whiteout marker should be a regular file")

	hidden, err := s.PathHidden("/tmp", 0)
	assert(err == nil, "path-hidden: %s", err)
	assert(hidden, "expected /tmp to be hidden")
}

// TestHideDirHidesChildren: hiding a directory hides every descendant
// without a marker at each one.
func TestHideDirHidesChildren(t *testing.T) {
	assert := newAsserter(t)
	_, s := newTestStore(t, false)

	err := s.HideDir("/logs", 0)
	assert(err == nil, "hide-dir: %s", err)

	hidden, err := s.PathHidden("/logs/2024/jan.txt", 0)
	assert(err == nil, "path-hidden: %s", err)
	assert(hidden, "hiding a directory should hide its descendants")
}

func TestPathHiddenRequiresSomePrefixHit(t *testing.T) {
	assert := newAsserter(t)
	_, s := newTestStore(t, false)

	hidden, err := s.PathHidden("/a/b/c", 0)
	assert(err == nil, "path-hidden: %s", err)
	assert(!hidden, "nothing hidden yet")

	err = s.HideDir("/a/b", 0)
	assert(err == nil, "hide-dir: %s", err)

	hidden, err = s.PathHidden("/a/b/c", 0)
	assert(err == nil, "path-hidden: %s", err)
	assert(hidden, "expected /a/b/c hidden via prefix /a/b")

	hidden, err = s.PathHidden("/a", 0)
	assert(err == nil, "path-hidden: %s", err)
	assert(!hidden, "/a itself was never hidden")
}

func TestRemoveHiddenUnhidesPath(t *testing.T) {
	assert := newAsserter(t)
	_, s := newTestStore(t, false)

	assert(s.HideFile("/gone", 0) == nil, "hide-file")

	hidden, err := s.IsHidden("/gone", 0)
	assert(err == nil, "is-hidden: %s", err)
	assert(hidden, "expected hidden before removal")

	err = s.RemoveHidden("/gone", -1)
	assert(err == nil, "remove-hidden: %s", err)

	hidden, err = s.IsHidden("/gone", 0)
	assert(err == nil, "is-hidden after removal: %s", err)
	assert(!hidden, "expected unhidden after RemoveHidden")
}

func TestMaybeWhiteoutSkipsWhenNotFoundAnywhere(t *testing.T) {
	assert := newAsserter(t)
	_, s := newTestStore(t, false)

	notFound := func(path string) int { return -1 }
	err := s.MaybeWhiteout("/nope", 0, KindFile, notFound)
	assert(err == nil, "maybe-whiteout: %s", err)

	hidden, err := s.IsHidden("/nope", 0)
	assert(err == nil, "is-hidden: %s", err)
	assert(!hidden, "should not create a whiteout when nothing resolves elsewhere")
}

func TestMaybeWhiteoutCreatesWhenStillResolvable(t *testing.T) {
	assert := newAsserter(t)
	_, s := newTestStore(t, false)

	stillThere := func(path string) int { return 2 }
	err := s.MaybeWhiteout("/still", 0, KindFile, stillThere)
	assert(err == nil, "maybe-whiteout: %s", err)

	hidden, err := s.IsHidden("/still", 0)
	assert(err == nil, "is-hidden: %s", err)
	assert(hidden, "should create a whiteout when the path still resolves elsewhere")
}

// TestCowDisabledShortCircuits: with COW globally disabled, hides are
// successful no-ops and queries answer false without touching disk.
func TestCowDisabledShortCircuits(t *testing.T) {
	assert := newAsserter(t)
	rw, s := newTestStore(t, true)

	err := s.HideFile("/anything", 0)
	assert(err == nil, "hide-file should no-op successfully when COW disabled: %s", err)

	_, err = os.Stat(filepath.Join(rw, DefaultMetaDir))
	assert(os.IsNotExist(err), "no metadata dir should be created when COW disabled")

	hidden, err := s.PathHidden("/anything", 0)
	assert(err == nil, "path-hidden: %s", err)
	assert(!hidden, "path-hidden must answer false when COW disabled")
}

func TestIndexSaveLoadRoundTrip(t *testing.T) {
	assert := newAsserter(t)
	_, s := newTestStore(t, false)

	assert(s.HideFile("/a", 0) == nil, "hide /a")
	assert(s.HideDir("/b", 0) == nil, "hide /b")

	// populate the cache: hide() only invalidates, a query warms it
	hidden, err := s.IsHidden("/a", 0)
	assert(err == nil && hidden, "is-hidden /a: %v %s", hidden, err)
	hidden, err = s.IsHidden("/b", 0)
	assert(err == nil && hidden, "is-hidden /b: %v %s", hidden, err)

	snap := filepath.Join(t.TempDir(), "index.snap")
	assert(s.SaveIndex(snap) == nil, "save index")

	_, s2 := newTestStore(t, false)
	assert(s2.LoadIndex(snap) == nil, "load index")

	hidden, ok := s2.idx.get(0, "/a")
	assert(ok && hidden, "expected /a warmed from snapshot")
}

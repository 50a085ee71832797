// utils_test.go -- test harness utilities for cow
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

package cow

import (
	"fmt"
	"runtime"
	"testing"

	"github.com/opencoff/go-unionfs/branchio"
)

func newAsserter(t *testing.T) func(cond bool, msg string, args ...interface{}) {
	return func(cond bool, msg string, args ...interface{}) {
		if cond {
			return
		}

		_, file, line, ok := runtime.Caller(1)
		if !ok {
			file = "???"
			line = 0
		}

		s := fmt.Sprintf(msg, args...)
		t.Fatalf("\n%s: %d: Assertion failed: %s\n", file, line, s)
	}
}

// newTestBio builds a two-branch BranchIO (ordinal 0 = RO, ordinal 1
// = RW) rooted at fresh temp dirs, and returns both root paths
// alongside the engine under test.
func newTestBio(t *testing.T) (bio *branchio.BranchIO, ro, rw string, eng *Engine) {
	ro = t.TempDir()
	rw = t.TempDir()

	robe, err := branchio.NewPrefixBackend(ro)
	if err != nil {
		t.Fatalf("ro backend: %s", err)
	}
	rwbe, err := branchio.NewPrefixBackend(rw)
	if err != nil {
		t.Fatalf("rw backend: %s", err)
	}

	bio = branchio.New(map[int]branchio.Backend{0: robe, 1: rwbe})
	eng = New(bio, nil)
	return
}

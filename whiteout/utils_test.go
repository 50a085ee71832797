// utils_test.go -- test harness utilities for whiteout
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
	"fmt"
	"runtime"
	"testing"

	"github.com/opencoff/go-unionfs/branchio"
	"github.com/opencoff/go-unionfs/cow"
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

// newTestStore builds a single-RW-branch Store (ordinal 0) rooted at
// a fresh temp dir, with COW enabled unless disabled is true.
func newTestStore(t *testing.T, disabled bool) (rw string, s *Store) {
	rw = t.TempDir()
	rwbe, err := branchio.NewPrefixBackend(rw)
	if err != nil {
		t.Fatalf("rw backend: %s", err)
	}
	bio := branchio.New(map[int]branchio.Backend{0: rwbe})
	eng := cow.New(bio, nil)
	s = New(bio, eng, nil, "", "", disabled)
	return
}

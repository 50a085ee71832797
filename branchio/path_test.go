// path_test.go -- bounded path construction boundary tests
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

package branchio

import (
	"errors"
	"strings"
	"testing"

	"golang.org/x/sys/unix"
)

func TestBuildPathBoundary(t *testing.T) {
	assert := newAsserter(t)

	ok := strings.Repeat("a", PathLenMax-1)
	_, err := BuildPath(ok)
	assert(err == nil, "path of length PATHLEN_MAX-1 should succeed: %s", err)

	tooLong := strings.Repeat("a", PathLenMax)
	_, err = BuildPath(tooLong)
	assert(err != nil, "path of length PATHLEN_MAX should fail")
	assert(errors.Is(err, unix.ENAMETOOLONG), "expected ENAMETOOLONG, got %s", err)
}

func TestBuildPathConcatenation(t *testing.T) {
	assert := newAsserter(t)

	p, err := BuildPath("a", "/", "b", "/", "c")
	assert(err == nil, "unexpected error: %s", err)
	assert(p == "a/b/c", "expected a/b/c, got %q", p)
}

func TestRelativize(t *testing.T) {
	assert := newAsserter(t)

	assert(relativize("/a/b") == "a/b", "want a/b")
	assert(relativize("a/b") == "a/b", "want a/b")
	assert(relativize("/") == ".", "want .")
	assert(relativize("") == ".", "want .")
}

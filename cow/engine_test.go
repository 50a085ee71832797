// engine_test.go -- promotion end-to-end scenarios
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
	"bytes"
	"crypto/rand"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/opencoff/go-unionfs"
	"github.com/opencoff/go-unionfs/cmp"
)

// TestPromoteRegularFile promotes a file two levels deep and checks
// content and parent-dir materialization.
func TestPromoteRegularFile(t *testing.T) {
	assert := newAsserter(t)
	bio, ro, rw, eng := newTestBio(t)

	assert(os.MkdirAll(filepath.Join(ro, "docs"), 0755) == nil, "mkdir docs")
	assert(os.WriteFile(filepath.Join(ro, "docs", "readme.txt"), []byte("hello\n"), 0644) == nil, "write readme")

	err := eng.Promote("/docs/readme.txt", 0, 1)
	assert(err == nil, "promote: %s", err)

	got, err := os.ReadFile(filepath.Join(rw, "docs", "readme.txt"))
	assert(err == nil, "read dst: %s", err)
	assert(string(got) == "hello\n", "content mismatch: %q", got)

	dst, err := bio.Stat(1, "docs")
	assert(err == nil, "stat dst dir: %s", err)
	assert(dst.IsDir(), "docs should be a dir")
}

// TestPromoteSymlinkPreservesTarget checks the link target survives
// byte for byte.
func TestPromoteSymlinkPreservesTarget(t *testing.T) {
	assert := newAsserter(t)
	_, ro, rw, eng := newTestBio(t)

	assert(os.Symlink("../elsewhere", filepath.Join(ro, "link")) == nil, "symlink")

	err := eng.Promote("/link", 0, 1)
	assert(err == nil, "promote: %s", err)

	target, err := os.Readlink(filepath.Join(rw, "link"))
	assert(err == nil, "readlink: %s", err)
	assert(target == "../elsewhere", "expected ../elsewhere, got %s", target)
}

// TestSocketRefusal: a socket source is refused outright and nothing
// appears on the RW branch.
func TestSocketRefusal(t *testing.T) {
	assert := newAsserter(t)
	_, ro, rw, eng := newTestBio(t)

	sockPath := filepath.Join(ro, "sock")
	l, err := net.Listen("unix", sockPath)
	assert(err == nil, "listen unix: %s", err)
	defer l.Close()

	err = eng.Promote("/sock", 0, 1)
	assert(err != nil, "promote should refuse a socket")

	_, statErr := os.Lstat(filepath.Join(rw, "sock"))
	assert(os.IsNotExist(statErr), "rw/sock must not exist")
}

// TestPromoteFifo exercises copy_fifo.
func TestPromoteFifo(t *testing.T) {
	assert := newAsserter(t)
	bio, _, _, eng := newTestBio(t)

	err := bio.Mkfifo(0, 0600, "fifo")
	assert(err == nil, "mkfifo: %s", err)

	err = eng.Promote("/fifo", 0, 1)
	assert(err == nil, "promote: %s", err)

	st, err := bio.Lstat(1, "fifo")
	assert(err == nil, "lstat dst: %s", err)
	assert(st.Mode()&os.ModeNamedPipe != 0, "expected FIFO mode bit")
}

// TestCopyDirectoryRecursion promotes a small tree one level deep and
// checks structure survives.
func TestCopyDirectoryRecursion(t *testing.T) {
	assert := newAsserter(t)
	bio, ro, rw, eng := newTestBio(t)

	assert(os.MkdirAll(filepath.Join(ro, "a", "b"), 0755) == nil, "mkdir a/b")
	assert(os.WriteFile(filepath.Join(ro, "a", "f1"), []byte("one"), 0644) == nil, "write f1")
	assert(os.WriteFile(filepath.Join(ro, "a", "b", "f2"), []byte("two"), 0644) == nil, "write f2")

	err := eng.CopyDirectory("/a", 0, 1)
	assert(err == nil, "copy directory: %s", err)

	got1, err := os.ReadFile(filepath.Join(rw, "a", "f1"))
	assert(err == nil, "read f1: %s", err)
	assert(string(got1) == "one", "f1 content mismatch")

	got2, err := os.ReadFile(filepath.Join(rw, "a", "b", "f2"))
	assert(err == nil, "read f2: %s", err)
	assert(string(got2) == "two", "f2 content mismatch")

	dst, err := bio.Stat(1, "a", "/", "b")
	assert(err == nil, "stat a/b: %s", err)
	assert(dst.IsDir(), "a/b should be a dir")
}

// TestPromoteRoundTripMatchesSource: after CopyDirectory, the
// destination subtree must be indistinguishable from the source
// subtree except for the attributes a promotion is explicitly allowed
// to lose (hardlink identity is never preserved; xattr support is
// best-effort and may be absent on the filesystem backing the test's
// tempdir).
func TestPromoteRoundTripMatchesSource(t *testing.T) {
	assert := newAsserter(t)
	_, ro, rw, eng := newTestBio(t)

	assert(os.MkdirAll(filepath.Join(ro, "tree", "sub"), 0755) == nil, "mkdir tree/sub")
	assert(os.WriteFile(filepath.Join(ro, "tree", "top.txt"), []byte("top"), 0644) == nil, "write top.txt")
	assert(os.WriteFile(filepath.Join(ro, "tree", "sub", "leaf.txt"), []byte("leaf"), 0640) == nil, "write leaf.txt")
	assert(os.Symlink("top.txt", filepath.Join(ro, "tree", "sub", "link")) == nil, "symlink")

	// promotion carries timestamps at second resolution only; pin the
	// source tree to whole seconds so the comparison below is exact.
	// Files first, dirs last - touching a file bumps its parent dir.
	when := time.Unix(time.Now().Unix()-10, 0)
	for _, p := range []string{
		filepath.Join(ro, "tree", "top.txt"),
		filepath.Join(ro, "tree", "sub", "leaf.txt"),
		filepath.Join(ro, "tree", "sub"),
		filepath.Join(ro, "tree"),
	} {
		assert(os.Chtimes(p, when, when) == nil, "chtimes %s", p)
	}

	err := eng.CopyDirectory("/tree", 0, 1)
	assert(err == nil, "copy directory: %s", err)

	diff, err := cmp.DirTree(
		filepath.Join(ro, "tree"),
		filepath.Join(rw, "tree"),
		cmp.WithIgnoreAttr(cmp.IGN_HARDLINK|cmp.IGN_XATTR),
	)
	assert(err == nil, "dirtree: %s", err)

	n := 0
	diff.LeftDirs.Range(func(string, *unionfs.Info) bool { n++; return true })
	diff.LeftFiles.Range(func(string, *unionfs.Info) bool { n++; return true })
	diff.RightDirs.Range(func(string, *unionfs.Info) bool { n++; return true })
	diff.RightFiles.Range(func(string, *unionfs.Info) bool { n++; return true })
	diff.Funny.Range(func(string, unionfs.Pair) bool { n++; return true })
	diff.Diff.Range(func(string, unionfs.Pair) bool { n++; return true })
	assert(n == 0, "round trip diverged from source: %s", diff)
}

// TestPromoteLargeFile pushes a 16 MiB blob through the bounce-buffer
// path and checks byte identity and mode.
func TestPromoteLargeFile(t *testing.T) {
	assert := newAsserter(t)
	_, ro, rw, eng := newTestBio(t)

	blob := make([]byte, 16<<20)
	_, err := rand.Read(blob)
	assert(err == nil, "rand.Read: %s", err)
	assert(os.WriteFile(filepath.Join(ro, "blob"), blob, 0640) == nil, "write blob")

	err = eng.Promote("/blob", 0, 1)
	assert(err == nil, "promote: %s", err)

	got, err := os.ReadFile(filepath.Join(rw, "blob"))
	assert(err == nil, "read dst: %s", err)
	assert(bytes.Equal(got, blob), "large blob content mismatch")

	st, err := os.Stat(filepath.Join(rw, "blob"))
	assert(err == nil, "stat dst: %s", err)
	assert(st.Mode().Perm() == 0640, "expected 0640, got %o", st.Mode().Perm())
}

// TestCreatePathChainIdempotent: a second invocation with the same
// arguments succeeds and performs no mkdir.
func TestCreatePathChainIdempotent(t *testing.T) {
	assert := newAsserter(t)
	_, ro, rw, eng := newTestBio(t)

	assert(os.MkdirAll(filepath.Join(ro, "x", "y"), 0755) == nil, "mkdir x/y")

	err := eng.CreatePathChain("/x/y", 0, 1)
	assert(err == nil, "first create_path_chain: %s", err)

	st1, err := os.Stat(filepath.Join(rw, "x", "y"))
	assert(err == nil, "stat after first: %s", err)

	err = eng.CreatePathChain("/x/y", 0, 1)
	assert(err == nil, "second create_path_chain: %s", err)

	st2, err := os.Stat(filepath.Join(rw, "x", "y"))
	assert(err == nil, "stat after second: %s", err)
	assert(st1.ModTime().Equal(st2.ModTime()), "second call should not recreate the directory")
}

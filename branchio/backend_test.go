// backend_test.go -- handle backend and prefix backend equivalence
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
	"os"
	"path/filepath"
	"testing"
)

func eachBackend(t *testing.T, fn func(t *testing.T, newBackend func(root string) (Backend, error))) {
	t.Run("handle", func(t *testing.T) {
		fn(t, func(root string) (Backend, error) { return NewHandleBackend(root) })
	})
	t.Run("prefix", func(t *testing.T) {
		fn(t, func(root string) (Backend, error) { return NewPrefixBackend(root) })
	})
}

// TestBackendEquivalence exercises every backend against the same
// sequence of directory-entry operations and checks they agree: the
// two backends must produce identical results for every operation as
// long as the branch root is not renamed mid-run.
func TestBackendEquivalence(t *testing.T) {
	eachBackend(t, func(t *testing.T, newBackend func(string) (Backend, error)) {
		assert := newAsserter(t)
		root := t.TempDir()

		be, err := newBackend(root)
		assert(err == nil, "new backend: %s", err)
		defer be.Close()

		assert(be.Root() == root, "root mismatch: %s != %s", be.Root(), root)

		err = be.Mkdir("dir", 0755)
		assert(err == nil, "mkdir: %s", err)

		fd, err := be.Creat("dir/file.txt", 0644)
		assert(err == nil, "creat: %s", err)
		_, err = fd.WriteString("hello\n")
		assert(err == nil, "write: %s", err)
		assert(fd.Close() == nil, "close")

		st, err := be.Stat("dir/file.txt")
		assert(err == nil, "stat: %s", err)
		assert(st.Size() == 6, "expected size 6, got %d", st.Size())
		assert(!st.IsDir(), "file should not be a dir")

		dst, err := be.Stat("dir")
		assert(err == nil, "stat dir: %s", err)
		assert(dst.IsDir(), "dir should be a dir")

		err = be.Symlink("file.txt", "dir/link")
		assert(err == nil, "symlink: %s", err)

		target, err := be.Readlink("dir/link")
		assert(err == nil, "readlink: %s", err)
		assert(target == "file.txt", "expected file.txt, got %s", target)

		lst, err := be.Lstat("dir/link")
		assert(err == nil, "lstat: %s", err)
		assert(lst.Mode()&os.ModeSymlink != 0, "expected symlink mode bit")

		err = be.Chmod("dir/file.txt", 0600)
		assert(err == nil, "chmod: %s", err)
		st, err = be.Stat("dir/file.txt")
		assert(err == nil, "stat after chmod: %s", err)
		assert(st.Mode().Perm() == 0600, "expected 0600, got %o", st.Mode().Perm())

		err = be.Unlink("dir/link")
		assert(err == nil, "unlink: %s", err)
		_, err = be.Lstat("dir/link")
		assert(os.IsNotExist(err), "expected ENOENT after unlink, got %s", err)

		err = be.Rename("dir/file.txt", "dir/renamed.txt")
		assert(err == nil, "rename: %s", err)
		_, err = be.Stat("dir/renamed.txt")
		assert(err == nil, "stat renamed: %s", err)

		err = be.Rmdir("dir")
		assert(err != nil, "rmdir on non-empty dir should fail")

		err = be.Unlink("dir/renamed.txt")
		assert(err == nil, "unlink renamed: %s", err)
		err = be.Rmdir("dir")
		assert(err == nil, "rmdir: %s", err)

		// verify the on-disk layout matches what a direct os.Stat sees,
		// independent of which backend constructed it.
		_, err = os.Stat(filepath.Join(root, "dir"))
		assert(os.IsNotExist(err), "branch root should reflect the rmdir")
	})
}

// TestHandleBackendRenameTolerance renames the branch root underneath
// an open HandleBackend and checks that operations keep addressing
// the original directory - including the ones that have no *at(2)
// form and go through /proc/self/fd (Truncate, Statfs).
func TestHandleBackendRenameTolerance(t *testing.T) {
	assert := newAsserter(t)

	base := t.TempDir()
	root := filepath.Join(base, "root-a")
	assert(os.Mkdir(root, 0755) == nil, "mkdir root")

	be, err := NewHandleBackend(root)
	assert(err == nil, "new backend: %s", err)
	defer be.Close()

	fd, err := be.Creat("f.txt", 0644)
	assert(err == nil, "creat: %s", err)
	_, err = fd.WriteString("hello\n")
	assert(err == nil, "write: %s", err)
	assert(fd.Close() == nil, "close")

	moved := filepath.Join(base, "root-b")
	assert(os.Rename(root, moved) == nil, "rename root")

	st, err := be.Stat("f.txt")
	assert(err == nil, "stat after rename: %s", err)
	assert(st.Size() == 6, "expected size 6, got %d", st.Size())

	err = be.Truncate("f.txt", 2)
	assert(err == nil, "truncate after rename: %s", err)

	st, err = be.Stat("f.txt")
	assert(err == nil, "stat after truncate: %s", err)
	assert(st.Size() == 2, "expected size 2, got %d", st.Size())

	_, err = be.Statfs("f.txt")
	assert(err == nil, "statfs after rename: %s", err)

	// the writes landed under the renamed root, not a recreated one
	got, err := os.ReadFile(filepath.Join(moved, "f.txt"))
	assert(err == nil, "read via moved root: %s", err)
	assert(string(got) == "he", "content mismatch: %q", got)
	_, err = os.Stat(root)
	assert(os.IsNotExist(err), "old root name must not reappear")
}

func TestBackendMkfifo(t *testing.T) {
	eachBackend(t, func(t *testing.T, newBackend func(string) (Backend, error)) {
		assert := newAsserter(t)
		root := t.TempDir()

		be, err := newBackend(root)
		assert(err == nil, "new backend: %s", err)
		defer be.Close()

		err = be.Mkfifo("fifo", 0600)
		assert(err == nil, "mkfifo: %s", err)

		st, err := be.Lstat("fifo")
		assert(err == nil, "lstat fifo: %s", err)
		assert(st.Mode()&os.ModeNamedPipe != 0, "expected FIFO mode bit")
	})
}

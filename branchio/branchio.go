// branchio.go - branch-relative dispatch over the selected backend
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
	"fmt"
	"os"
	"time"

	"github.com/opencoff/go-unionfs"
	"golang.org/x/sys/unix"
)

// BranchIO dispatches every directory-entry operation to the backend
// registered for the target branch ordinal. One BranchIO is built
// once at startup (OpenBranches) and shared by whiteout.Store and
// cow.Engine.
type BranchIO struct {
	backends map[int]Backend
}

// New builds a BranchIO over an already-opened ordinal -> Backend
// registry. Each backend was opened via NewHandleBackend or
// NewPrefixBackend depending on the process-wide backend selection,
// fixed once at startup and global to the process.
func New(backends map[int]Backend) *BranchIO {
	return &BranchIO{backends: backends}
}

func (b *BranchIO) backend(ordinal int) (Backend, error) {
	be, ok := b.backends[ordinal]
	if !ok {
		return nil, fmt.Errorf("branchio: unknown branch ordinal %d", ordinal)
	}
	return be, nil
}

// Close releases every backend's held resources (the handle
// backend's root_handle).
func (b *BranchIO) Close() error {
	var first error
	for _, be := range b.backends {
		if err := be.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// path builds and bounds-checks the branch-local path from frags,
// the shared step both backends rely on.
func path(frags ...string) (string, error) {
	return BuildPath(frags...)
}

func (b *BranchIO) Stat(branch int, frags ...string) (*unionfs.Info, error) {
	be, err := b.backend(branch)
	if err != nil {
		return nil, err
	}
	p, err := path(frags...)
	if err != nil {
		return nil, err
	}
	return be.Stat(p)
}

func (b *BranchIO) Lstat(branch int, frags ...string) (*unionfs.Info, error) {
	be, err := b.backend(branch)
	if err != nil {
		return nil, err
	}
	p, err := path(frags...)
	if err != nil {
		return nil, err
	}
	return be.Lstat(p)
}

func (b *BranchIO) Open(branch int, flag int, mode os.FileMode, frags ...string) (*os.File, error) {
	be, err := b.backend(branch)
	if err != nil {
		return nil, err
	}
	p, err := path(frags...)
	if err != nil {
		return nil, err
	}
	return be.Open(p, flag, mode)
}

func (b *BranchIO) OpenDir(branch int, frags ...string) (*os.File, error) {
	be, err := b.backend(branch)
	if err != nil {
		return nil, err
	}
	p, err := path(frags...)
	if err != nil {
		return nil, err
	}
	return be.OpenDir(p)
}

func (b *BranchIO) Creat(branch int, mode os.FileMode, frags ...string) (*os.File, error) {
	be, err := b.backend(branch)
	if err != nil {
		return nil, err
	}
	p, err := path(frags...)
	if err != nil {
		return nil, err
	}
	return be.Creat(p, mode)
}

func (b *BranchIO) Mkdir(branch int, mode os.FileMode, frags ...string) error {
	be, err := b.backend(branch)
	if err != nil {
		return err
	}
	p, err := path(frags...)
	if err != nil {
		return err
	}
	return be.Mkdir(p, mode)
}

func (b *BranchIO) Rmdir(branch int, frags ...string) error {
	be, err := b.backend(branch)
	if err != nil {
		return err
	}
	p, err := path(frags...)
	if err != nil {
		return err
	}
	return be.Rmdir(p)
}

func (b *BranchIO) Unlink(branch int, frags ...string) error {
	be, err := b.backend(branch)
	if err != nil {
		return err
	}
	p, err := path(frags...)
	if err != nil {
		return err
	}
	return be.Unlink(p)
}

func (b *BranchIO) Symlink(branch int, target string, frags ...string) error {
	be, err := b.backend(branch)
	if err != nil {
		return err
	}
	p, err := path(frags...)
	if err != nil {
		return err
	}
	return be.Symlink(target, p)
}

func (b *BranchIO) Readlink(branch int, frags ...string) (string, error) {
	be, err := b.backend(branch)
	if err != nil {
		return "", err
	}
	p, err := path(frags...)
	if err != nil {
		return "", err
	}
	return be.Readlink(p)
}

func (b *BranchIO) Chmod(branch int, mode os.FileMode, frags ...string) error {
	be, err := b.backend(branch)
	if err != nil {
		return err
	}
	p, err := path(frags...)
	if err != nil {
		return err
	}
	return be.Chmod(p, mode)
}

func (b *BranchIO) Lchown(branch int, uid, gid int, frags ...string) error {
	be, err := b.backend(branch)
	if err != nil {
		return err
	}
	p, err := path(frags...)
	if err != nil {
		return err
	}
	return be.Lchown(p, uid, gid)
}

func (b *BranchIO) Chown(branch int, uid, gid int, frags ...string) error {
	be, err := b.backend(branch)
	if err != nil {
		return err
	}
	p, err := path(frags...)
	if err != nil {
		return err
	}
	return be.Chown(p, uid, gid)
}

func (b *BranchIO) Mknod(branch int, mode os.FileMode, dev uint64, frags ...string) error {
	be, err := b.backend(branch)
	if err != nil {
		return err
	}
	p, err := path(frags...)
	if err != nil {
		return err
	}
	return be.Mknod(p, mode, dev)
}

func (b *BranchIO) Mkfifo(branch int, mode os.FileMode, frags ...string) error {
	be, err := b.backend(branch)
	if err != nil {
		return err
	}
	p, err := path(frags...)
	if err != nil {
		return err
	}
	return be.Mkfifo(p, mode)
}

func (b *BranchIO) Rename(branch int, oldfrags, newfrags []string) error {
	be, err := b.backend(branch)
	if err != nil {
		return err
	}
	o, err := path(oldfrags...)
	if err != nil {
		return err
	}
	n, err := path(newfrags...)
	if err != nil {
		return err
	}
	return be.Rename(o, n)
}

func (b *BranchIO) Truncate(branch int, size int64, frags ...string) error {
	be, err := b.backend(branch)
	if err != nil {
		return err
	}
	p, err := path(frags...)
	if err != nil {
		return err
	}
	return be.Truncate(p, size)
}

func (b *BranchIO) Utimens(branch int, atim, mtim time.Time, frags ...string) error {
	be, err := b.backend(branch)
	if err != nil {
		return err
	}
	p, err := path(frags...)
	if err != nil {
		return err
	}
	return be.Utimens(p, atim, mtim)
}

func (b *BranchIO) Statfs(branch int, frags ...string) (*unix.Statfs_t, error) {
	be, err := b.backend(branch)
	if err != nil {
		return nil, err
	}
	p, err := path(frags...)
	if err != nil {
		return nil, err
	}
	return be.Statfs(p)
}

// Link constructs both paths; when oldbranch != newbranch the
// operation is permitted only if the kernel supports cross-mount
// linking - this package does not emulate it, the kernel's verdict is
// surfaced unchanged.
func (b *BranchIO) Link(oldbranch int, oldfrags []string, newbranch int, newfrags []string) error {
	obe, err := b.backend(oldbranch)
	if err != nil {
		return err
	}
	o, err := path(oldfrags...)
	if err != nil {
		return err
	}
	n, err := path(newfrags...)
	if err != nil {
		return err
	}
	if oldbranch == newbranch {
		return obe.Link(o, n)
	}

	// cross-branch: the two branches may not share a single
	// dirfd-capable linkat(2), so fall back to absolute paths and let
	// the kernel return its verdict unchanged (typically EXDEV).
	nbe, err := b.backend(newbranch)
	if err != nil {
		return err
	}
	oldabs := obe.Root() + "/" + o
	newabs := nbe.Root() + "/" + n
	if err := os.Link(oldabs, newabs); err != nil {
		return &os.PathError{Op: "link", Path: oldabs, Err: err}
	}
	return nil
}

func (b *BranchIO) GetXattr(branch int, frags ...string) (unionfs.Xattr, error) {
	be, err := b.backend(branch)
	if err != nil {
		return nil, err
	}
	p, err := path(frags...)
	if err != nil {
		return nil, err
	}
	return be.GetXattr(p)
}

// LGetXattr returns the extended attributes of the branch-relative
// path without following a terminal symlink. A symlink target that
// cannot carry xattrs reports ENOTSUP (the kernel's ELOOP substituted
// by unionfs.LgetXattr) wrapped as ErrUnsupported so callers can
// match it via errors.Is.
func (b *BranchIO) LGetXattr(branch int, frags ...string) (unionfs.Xattr, error) {
	be, err := b.backend(branch)
	if err != nil {
		return nil, err
	}
	p, err := path(frags...)
	if err != nil {
		return nil, err
	}
	x, err := be.LGetXattr(p)
	if err != nil {
		return nil, wrapUnsupported("lgetxattr", branch, p, err)
	}
	return x, nil
}

func (b *BranchIO) SetXattr(branch int, x unionfs.Xattr, frags ...string) error {
	be, err := b.backend(branch)
	if err != nil {
		return err
	}
	p, err := path(frags...)
	if err != nil {
		return err
	}
	return be.SetXattr(p, x)
}

// LSetXattr sets the extended attributes of the branch-relative path
// without following a terminal symlink; see LGetXattr for the
// ENOTSUP/ErrUnsupported contract.
func (b *BranchIO) LSetXattr(branch int, x unionfs.Xattr, frags ...string) error {
	be, err := b.backend(branch)
	if err != nil {
		return err
	}
	p, err := path(frags...)
	if err != nil {
		return err
	}
	if err := be.LSetXattr(p, x); err != nil {
		return wrapUnsupported("lsetxattr", branch, p, err)
	}
	return nil
}

func (b *BranchIO) RemoveXattr(branch int, keys []string, frags ...string) error {
	be, err := b.backend(branch)
	if err != nil {
		return err
	}
	p, err := path(frags...)
	if err != nil {
		return err
	}
	return be.RemoveXattr(p, keys...)
}

// LRemoveXattr removes the named extended attributes of the
// branch-relative path without following a terminal symlink; see
// LGetXattr for the ENOTSUP/ErrUnsupported contract.
func (b *BranchIO) LRemoveXattr(branch int, keys []string, frags ...string) error {
	be, err := b.backend(branch)
	if err != nil {
		return err
	}
	p, err := path(frags...)
	if err != nil {
		return err
	}
	if err := be.LRemoveXattr(p, keys...); err != nil {
		return wrapUnsupported("lremovexattr", branch, p, err)
	}
	return nil
}

// wrapUnsupported tags an ENOTSUP verdict (substituted from ELOOP by
// unionfs.LgetXattr/LsetXattr/LdelXattr for symlink targets) as a
// branchio.Error of KindUnsupported, so callers can match it with
// errors.Is(err, ErrUnsupported) instead of reaching into the errno.
func wrapUnsupported(op string, branch int, path string, err error) error {
	if errors.Is(err, unix.ENOTSUP) {
		return &Error{Op: op, Branch: branch, Path: path, Kind: KindUnsupported, Err: ErrUnsupported}
	}
	return err
}

// PathIsDir reports whether the branch-relative path exists and, if
// so, whether it is a directory.
func (b *BranchIO) PathIsDir(branch int, frags ...string) (EntryKind, error) {
	ii, err := b.Lstat(branch, frags...)
	if err != nil {
		if os.IsNotExist(err) {
			return NotExisting, nil
		}
		return NotExisting, err
	}
	if ii.IsDir() {
		return IsDir, nil
	}
	return IsFile, nil
}

// Root returns the branch's root_path, for callers that need to
// report absolute paths.
func (b *BranchIO) Root(branch int) (string, error) {
	be, err := b.backend(branch)
	if err != nil {
		return "", err
	}
	return be.Root(), nil
}

// MaxOrdinal returns the highest registered branch ordinal, used by
// whiteout.Store.RemoveHidden when called with maxBranch == -1 to
// mean "the full stack".
func (b *BranchIO) MaxOrdinal() int {
	max := -1
	for ord := range b.backends {
		if ord > max {
			max = ord
		}
	}
	return max
}

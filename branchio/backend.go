// backend.go - the capability set shared by the handle and prefix backends
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
	"time"

	"github.com/opencoff/go-unionfs"
	"golang.org/x/sys/unix"
)

// EntryKind is the result of PathIsDir: whether a branch-relative
// path exists, and if so, whether it is a directory.
type EntryKind int

const (
	NotExisting EntryKind = iota
	IsFile
	IsDir
)

// Backend is the single capability set that both the handle
// (openat-family) and prefix (path-concatenation) implementations
// satisfy. BranchIO holds one Backend per branch and routes every
// operation through it; the two backends are observationally
// equivalent except when the branch root is renamed underneath a
// running process (the handle backend tolerates that, the prefix
// backend does not).
//
// Every method takes an already-built branch-relative path (the
// output of BuildPath) - path construction is shared, only the
// syscall strategy differs between backends.
type Backend interface {
	// Root returns the branch's root_path, used for diagnostics
	// and by the prefix backend for path joining.
	Root() string

	Stat(path string) (*unionfs.Info, error)
	Lstat(path string) (*unionfs.Info, error)
	Open(path string, flag int, mode os.FileMode) (*os.File, error)
	OpenDir(path string) (*os.File, error)
	Mkdir(path string, mode os.FileMode) error
	Rmdir(path string) error
	Unlink(path string) error
	Symlink(target, path string) error
	Readlink(path string) (string, error)
	Chmod(path string, mode os.FileMode) error
	Lchown(path string, uid, gid int) error
	Chown(path string, uid, gid int) error
	Creat(path string, mode os.FileMode) (*os.File, error)
	Mknod(path string, mode os.FileMode, dev uint64) error
	Mkfifo(path string, mode os.FileMode) error
	Rename(oldpath, newpath string) error
	Truncate(path string, size int64) error
	Utimens(path string, atim, mtim time.Time) error
	Statfs(path string) (*unix.Statfs_t, error)

	GetXattr(path string) (unionfs.Xattr, error)
	LGetXattr(path string) (unionfs.Xattr, error)
	SetXattr(path string, x unionfs.Xattr) error
	LSetXattr(path string, x unionfs.Xattr) error
	RemoveXattr(path string, keys ...string) error
	LRemoveXattr(path string, keys ...string) error

	// Link creates newpath as a hard link to oldpath, both
	// resolved against this same backend's branch.
	Link(oldpath, newpath string) error

	// Close releases any resource held for the lifetime of the
	// branch (the handle backend's root_handle).
	Close() error
}

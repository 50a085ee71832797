// prefix_unix.go - absolute-path-concatenation backend
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

//go:build unix

package branchio

import (
	"os"
	"path/filepath"
	"time"

	"github.com/opencoff/go-unionfs"
	"golang.org/x/sys/unix"
)

// PrefixBackend issues every operation against an absolute path
// formed by prepending the branch root to the constructed
// branch-relative path. Portable to platforms lacking the *at family,
// at the cost of tolerance to a rename of the branch root underneath
// a running mount.
type PrefixBackend struct {
	root string
}

var _ Backend = &PrefixBackend{}

func NewPrefixBackend(root string) (*PrefixBackend, error) {
	if _, err := os.Stat(root); err != nil {
		return nil, err
	}
	return &PrefixBackend{root: root}, nil
}

func (p *PrefixBackend) Root() string { return p.root }

func (p *PrefixBackend) Close() error { return nil }

func (p *PrefixBackend) abs(path string) string {
	return filepath.Join(p.root, relativize(path))
}

func (p *PrefixBackend) Stat(path string) (*unionfs.Info, error) {
	return unionfs.Stat(p.abs(path))
}

func (p *PrefixBackend) Lstat(path string) (*unionfs.Info, error) {
	return unionfs.Lstat(p.abs(path))
}

func (p *PrefixBackend) Open(path string, flag int, mode os.FileMode) (*os.File, error) {
	return os.OpenFile(p.abs(path), flag, mode)
}

func (p *PrefixBackend) OpenDir(path string) (*os.File, error) {
	return os.Open(p.abs(path))
}

func (p *PrefixBackend) Creat(path string, mode os.FileMode) (*os.File, error) {
	return os.OpenFile(p.abs(path), os.O_CREATE|os.O_TRUNC|os.O_RDWR, mode)
}

func (p *PrefixBackend) Mkdir(path string, mode os.FileMode) error {
	return os.Mkdir(p.abs(path), mode)
}

func (p *PrefixBackend) Rmdir(path string) error {
	return os.Remove(p.abs(path))
}

func (p *PrefixBackend) Unlink(path string) error {
	return os.Remove(p.abs(path))
}

func (p *PrefixBackend) Symlink(target, path string) error {
	return os.Symlink(target, p.abs(path))
}

func (p *PrefixBackend) Readlink(path string) (string, error) {
	return os.Readlink(p.abs(path))
}

func (p *PrefixBackend) Chmod(path string, mode os.FileMode) error {
	return os.Chmod(p.abs(path), mode)
}

func (p *PrefixBackend) Lchown(path string, uid, gid int) error {
	return os.Lchown(p.abs(path), uid, gid)
}

func (p *PrefixBackend) Chown(path string, uid, gid int) error {
	return os.Chown(p.abs(path), uid, gid)
}

func (p *PrefixBackend) Mknod(path string, mode os.FileMode, dev uint64) error {
	if err := unix.Mknod(p.abs(path), unixMode(mode), int(dev)); err != nil {
		return &os.PathError{Op: "mknod", Path: p.abs(path), Err: err}
	}
	return nil
}

func (p *PrefixBackend) Mkfifo(path string, mode os.FileMode) error {
	if err := unix.Mkfifo(p.abs(path), unixMode(mode)); err != nil {
		return &os.PathError{Op: "mkfifo", Path: p.abs(path), Err: err}
	}
	return nil
}

func (p *PrefixBackend) Rename(oldpath, newpath string) error {
	return os.Rename(p.abs(oldpath), p.abs(newpath))
}

func (p *PrefixBackend) Truncate(path string, size int64) error {
	return os.Truncate(p.abs(path), size)
}

// Utimens uses utimensat(2) against the absolute path. Platforms
// without utimensat would need a utimes(2) fallback that swallows
// ENOENT on symlink targets; the unix build tag always has utimensat,
// so no such fallback exists here.
func (p *PrefixBackend) Utimens(path string, atim, mtim time.Time) error {
	abs := p.abs(path)
	ts := []unix.Timespec{
		unix.NsecToTimespec(atim.UnixNano()),
		unix.NsecToTimespec(mtim.UnixNano()),
	}
	if err := unix.UtimesNanoAt(unix.AT_FDCWD, abs, ts, unix.AT_SYMLINK_NOFOLLOW); err != nil {
		return &os.PathError{Op: "utimensat", Path: abs, Err: err}
	}
	return nil
}

func (p *PrefixBackend) Statfs(path string) (*unix.Statfs_t, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(p.abs(path), &st); err != nil {
		return nil, &os.PathError{Op: "statfs", Path: p.abs(path), Err: err}
	}
	return &st, nil
}

func (p *PrefixBackend) GetXattr(path string) (unionfs.Xattr, error) {
	return unionfs.GetXattr(p.abs(path))
}

func (p *PrefixBackend) LGetXattr(path string) (unionfs.Xattr, error) {
	return unionfs.LgetXattr(p.abs(path))
}

func (p *PrefixBackend) SetXattr(path string, x unionfs.Xattr) error {
	return unionfs.SetXattr(p.abs(path), x)
}

func (p *PrefixBackend) LSetXattr(path string, x unionfs.Xattr) error {
	return unionfs.LsetXattr(p.abs(path), x)
}

func (p *PrefixBackend) RemoveXattr(path string, keys ...string) error {
	return unionfs.DelXattr(p.abs(path), keys...)
}

func (p *PrefixBackend) LRemoveXattr(path string, keys ...string) error {
	return unionfs.LdelXattr(p.abs(path), keys...)
}

func (p *PrefixBackend) Link(oldpath, newpath string) error {
	return os.Link(p.abs(oldpath), p.abs(newpath))
}

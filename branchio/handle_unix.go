// handle_unix.go - openat-family backend rooted at a long-lived directory handle
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
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/opencoff/go-unionfs"
	"golang.org/x/sys/unix"
)

// HandleBackend issues every operation against a branch's long-lived
// root directory handle using the *at family of syscalls. The
// constructed path is passed in relative form: immune to a rename of
// the branch root underneath a running mount.
type HandleBackend struct {
	root  string
	dirfd *os.File
}

var _ Backend = &HandleBackend{}

// NewHandleBackend opens root once and holds it for the backend's
// lifetime; the handle is never rotated.
func NewHandleBackend(root string) (*HandleBackend, error) {
	fd, err := os.Open(root)
	if err != nil {
		return nil, err
	}
	return &HandleBackend{root: root, dirfd: fd}, nil
}

// unixMode maps an fs.FileMode to the mode_t representation the
// kernel expects: permission bits, setuid/setgid/sticky, and the S_IF*
// type bits mknod(2) needs. fs.FileMode keeps all of these in high
// bits that mean nothing to a syscall.
func unixMode(m os.FileMode) uint32 {
	mode := uint32(m.Perm())
	if m&os.ModeSetuid != 0 {
		mode |= unix.S_ISUID
	}
	if m&os.ModeSetgid != 0 {
		mode |= unix.S_ISGID
	}
	if m&os.ModeSticky != 0 {
		mode |= unix.S_ISVTX
	}
	switch {
	case m&os.ModeCharDevice != 0:
		mode |= unix.S_IFCHR
	case m&os.ModeDevice != 0:
		mode |= unix.S_IFBLK
	case m&os.ModeNamedPipe != 0:
		mode |= unix.S_IFIFO
	case m&os.ModeSocket != 0:
		mode |= unix.S_IFSOCK
	}
	return mode
}

func (h *HandleBackend) Root() string { return h.root }

func (h *HandleBackend) Close() error {
	return h.dirfd.Close()
}

// informational joins the configured root and path for use in error
// messages only - it names the branch as the operator knows it, even
// if the root has since been renamed.
func (h *HandleBackend) informational(path string) string {
	return filepath.Join(h.root, path)
}

// viaDirfd addresses path relative to the held root handle through
// /proc/self/fd, for the operations github.com/pkg/xattr and the
// standard library expose no *at(2) form for (Truncate, Statfs, the
// xattr calls). The kernel resolves the magic link to the open dirfd,
// not to the pathname it was opened by, so these operations stay
// immune to a rename of the branch root like every *at-based method.
func (h *HandleBackend) viaDirfd(path string) string {
	return fmt.Sprintf("/proc/self/fd/%d/%s", int(h.dirfd.Fd()), relativize(path))
}

func (h *HandleBackend) Stat(path string) (*unionfs.Info, error) {
	return h.statat(path, 0)
}

func (h *HandleBackend) Lstat(path string) (*unionfs.Info, error) {
	return h.statat(path, unix.AT_SYMLINK_NOFOLLOW)
}

func (h *HandleBackend) statat(path string, flags int) (*unionfs.Info, error) {
	rel := relativize(path)
	var st unix.Stat_t
	if err := unix.Fstatat(int(h.dirfd.Fd()), rel, &st, flags); err != nil {
		return nil, &os.PathError{Op: "fstatat", Path: h.informational(path), Err: err}
	}

	x, xerr := h.xattrFor(path, flags == unix.AT_SYMLINK_NOFOLLOW)
	if xerr != nil {
		x = nil
	}
	return statToInfo(&st, path, x), nil
}

// statToInfo converts a unix.Stat_t (as returned by fstatat) into a
// *unionfs.Info. The field layout mirrors unionfs's own
// platform-specific makeInfo (info_linux.go) but operates on
// x/sys/unix's Stat_t rather than syscall.Stat_t since the handle
// backend only ever calls the *at family.
func statToInfo(st *unix.Stat_t, path string, x unionfs.Xattr) *unionfs.Info {
	ii := &unionfs.Info{
		Ino:   st.Ino,
		Siz:   st.Size,
		Dev:   uint64(st.Dev),
		Rdev:  uint64(st.Rdev),
		Mod:   fs.FileMode(st.Mode & 0777),
		Uid:   st.Uid,
		Gid:   st.Gid,
		Nlink: uint32(st.Nlink),
		Atim:  time.Unix(int64(st.Atim.Sec), int64(st.Atim.Nsec)),
		Mtim:  time.Unix(int64(st.Mtim.Sec), int64(st.Mtim.Nsec)),
		Ctim:  time.Unix(int64(st.Ctim.Sec), int64(st.Ctim.Nsec)),
		Xattr: x,
	}

	switch st.Mode & unix.S_IFMT {
	case unix.S_IFBLK:
		ii.Mod |= fs.ModeDevice
	case unix.S_IFCHR:
		ii.Mod |= fs.ModeDevice | fs.ModeCharDevice
	case unix.S_IFDIR:
		ii.Mod |= fs.ModeDir
	case unix.S_IFIFO:
		ii.Mod |= fs.ModeNamedPipe
	case unix.S_IFLNK:
		ii.Mod |= fs.ModeSymlink
	case unix.S_IFSOCK:
		ii.Mod |= fs.ModeSocket
	}
	if st.Mode&unix.S_ISGID != 0 {
		ii.Mod |= fs.ModeSetgid
	}
	if st.Mode&unix.S_ISUID != 0 {
		ii.Mod |= fs.ModeSetuid
	}
	if st.Mode&unix.S_ISVTX != 0 {
		ii.Mod |= fs.ModeSticky
	}

	ii.SetPath(path)
	return ii
}

func (h *HandleBackend) xattrFor(path string, symlink bool) (unionfs.Xattr, error) {
	p := h.viaDirfd(path)
	if symlink {
		return unionfs.LgetXattr(p)
	}
	return unionfs.GetXattr(p)
}

func (h *HandleBackend) Open(path string, flag int, mode os.FileMode) (*os.File, error) {
	rel := relativize(path)
	fd, err := unix.Openat(int(h.dirfd.Fd()), rel, flag|unix.O_CLOEXEC, unixMode(mode))
	if err != nil {
		return nil, &os.PathError{Op: "openat", Path: h.informational(path), Err: err}
	}
	return os.NewFile(uintptr(fd), h.informational(path)), nil
}

func (h *HandleBackend) OpenDir(path string) (*os.File, error) {
	return h.Open(path, os.O_RDONLY, 0)
}

func (h *HandleBackend) Creat(path string, mode os.FileMode) (*os.File, error) {
	return h.Open(path, os.O_CREATE|os.O_TRUNC|os.O_RDWR, mode)
}

func (h *HandleBackend) Mkdir(path string, mode os.FileMode) error {
	rel := relativize(path)
	if err := unix.Mkdirat(int(h.dirfd.Fd()), rel, unixMode(mode)); err != nil {
		return &os.PathError{Op: "mkdirat", Path: h.informational(path), Err: err}
	}
	return nil
}

func (h *HandleBackend) Rmdir(path string) error {
	rel := relativize(path)
	if err := unix.Unlinkat(int(h.dirfd.Fd()), rel, unix.AT_REMOVEDIR); err != nil {
		return &os.PathError{Op: "unlinkat", Path: h.informational(path), Err: err}
	}
	return nil
}

func (h *HandleBackend) Unlink(path string) error {
	rel := relativize(path)
	if err := unix.Unlinkat(int(h.dirfd.Fd()), rel, 0); err != nil {
		return &os.PathError{Op: "unlinkat", Path: h.informational(path), Err: err}
	}
	return nil
}

func (h *HandleBackend) Symlink(target, path string) error {
	rel := relativize(path)
	if err := unix.Symlinkat(target, int(h.dirfd.Fd()), rel); err != nil {
		return &os.PathError{Op: "symlinkat", Path: h.informational(path), Err: err}
	}
	return nil
}

func (h *HandleBackend) Readlink(path string) (string, error) {
	rel := relativize(path)
	size := 256
	for {
		buf := make([]byte, size)
		n, err := unix.Readlinkat(int(h.dirfd.Fd()), rel, buf)
		if err != nil {
			return "", &os.PathError{Op: "readlinkat", Path: h.informational(path), Err: err}
		}
		if n < size {
			return string(buf[:n]), nil
		}
		size *= 2
		if size > PathLenMax {
			return "", ErrPathTooLong
		}
	}
}

func (h *HandleBackend) Chmod(path string, mode os.FileMode) error {
	rel := relativize(path)
	if err := unix.Fchmodat(int(h.dirfd.Fd()), rel, unixMode(mode), 0); err != nil {
		return &os.PathError{Op: "fchmodat", Path: h.informational(path), Err: err}
	}
	return nil
}

func (h *HandleBackend) Lchown(path string, uid, gid int) error {
	rel := relativize(path)
	if err := unix.Fchownat(int(h.dirfd.Fd()), rel, uid, gid, unix.AT_SYMLINK_NOFOLLOW); err != nil {
		return &os.PathError{Op: "fchownat", Path: h.informational(path), Err: err}
	}
	return nil
}

func (h *HandleBackend) Chown(path string, uid, gid int) error {
	rel := relativize(path)
	if err := unix.Fchownat(int(h.dirfd.Fd()), rel, uid, gid, 0); err != nil {
		return &os.PathError{Op: "fchownat", Path: h.informational(path), Err: err}
	}
	return nil
}

func (h *HandleBackend) Mknod(path string, mode os.FileMode, dev uint64) error {
	rel := relativize(path)
	if err := unix.Mknodat(int(h.dirfd.Fd()), rel, unixMode(mode), int(dev)); err != nil {
		return &os.PathError{Op: "mknodat", Path: h.informational(path), Err: err}
	}
	return nil
}

func (h *HandleBackend) Mkfifo(path string, mode os.FileMode) error {
	rel := relativize(path)
	if err := unix.Mkfifoat(int(h.dirfd.Fd()), rel, unixMode(mode)); err != nil {
		return &os.PathError{Op: "mkfifoat", Path: h.informational(path), Err: err}
	}
	return nil
}

func (h *HandleBackend) Rename(oldpath, newpath string) error {
	oldrel, newrel := relativize(oldpath), relativize(newpath)
	dfd := int(h.dirfd.Fd())
	if err := unix.Renameat(dfd, oldrel, dfd, newrel); err != nil {
		return &os.PathError{Op: "renameat", Path: h.informational(oldpath), Err: err}
	}
	return nil
}

func (h *HandleBackend) Truncate(path string, size int64) error {
	if err := unix.Truncate(h.viaDirfd(path), size); err != nil {
		return &os.PathError{Op: "truncate", Path: h.informational(path), Err: err}
	}
	return nil
}

func (h *HandleBackend) Utimens(path string, atim, mtim time.Time) error {
	rel := relativize(path)
	ts := []unix.Timespec{
		unix.NsecToTimespec(atim.UnixNano()),
		unix.NsecToTimespec(mtim.UnixNano()),
	}
	if err := unix.UtimesNanoAt(int(h.dirfd.Fd()), rel, ts, unix.AT_SYMLINK_NOFOLLOW); err != nil {
		return &os.PathError{Op: "utimensat", Path: h.informational(path), Err: err}
	}
	return nil
}

func (h *HandleBackend) Statfs(path string) (*unix.Statfs_t, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(h.viaDirfd(path), &st); err != nil {
		return nil, &os.PathError{Op: "statfs", Path: h.informational(path), Err: err}
	}
	return &st, nil
}

func (h *HandleBackend) GetXattr(path string) (unionfs.Xattr, error) {
	return unionfs.GetXattr(h.viaDirfd(path))
}

func (h *HandleBackend) LGetXattr(path string) (unionfs.Xattr, error) {
	return unionfs.LgetXattr(h.viaDirfd(path))
}

func (h *HandleBackend) SetXattr(path string, x unionfs.Xattr) error {
	return unionfs.SetXattr(h.viaDirfd(path), x)
}

func (h *HandleBackend) LSetXattr(path string, x unionfs.Xattr) error {
	return unionfs.LsetXattr(h.viaDirfd(path), x)
}

func (h *HandleBackend) RemoveXattr(path string, keys ...string) error {
	return unionfs.DelXattr(h.viaDirfd(path), keys...)
}

func (h *HandleBackend) LRemoveXattr(path string, keys ...string) error {
	return unionfs.LdelXattr(h.viaDirfd(path), keys...)
}

func (h *HandleBackend) Link(oldpath, newpath string) error {
	oldrel, newrel := relativize(oldpath), relativize(newpath)
	dfd := int(h.dirfd.Fd())
	if err := unix.Linkat(dfd, oldrel, dfd, newrel, 0); err != nil {
		return &os.PathError{Op: "linkat", Path: h.informational(oldpath), Err: err}
	}
	return nil
}


// setfile.go - metadata transfer after an object is materialized
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
	"errors"
	"io/fs"
	"os"
	"time"

	"github.com/opencoff/go-unionfs"
	"golang.org/x/sys/unix"
)

// setFile applies timestamps, ownership, mode and xattrs from
// fromBranch/fromPath to toBranch/toPath:
//  1. utimens (atime, mtime; nanoseconds zeroed - the source record
//     carries only second resolution)
//  2. chown(uid, gid) - if it fails with EPERM, drop
//     setuid|setgid|sticky but continue
//  3. chmod(mode & rwxrwxrwx|setuid|setgid)
//  4. clone xattrs
//
// File-flags (chflags(2)) are not a Linux concept, so there is no
// flags-transfer step here.
func (e *Engine) setFile(fromBranch int, fromPath string, toBranch int, toPath string, src *unionfs.Info) error {
	atim := time.Unix(src.Atim.Unix(), 0)
	mtim := time.Unix(src.Mtim.Unix(), 0)
	if err := e.bio.Utimens(toBranch, atim, mtim, toPath); err != nil {
		return &Error{"utimens", toPath, toPath, KindDestinationWriteFailed, err}
	}

	mode := src.Mode()
	if err := e.bio.Chown(toBranch, int(src.Uid), int(src.Gid), toPath); err != nil {
		if os.IsPermission(err) {
			e.warn("setfile: %s: chown denied, dropping setuid/setgid/sticky", toPath)
			mode &^= fs.ModeSetuid | fs.ModeSetgid | fs.ModeSticky
		} else {
			return &Error{"chown", toPath, toPath, KindPermissionLost, err}
		}
	}

	if err := e.bio.Chmod(toBranch, mode&(fs.ModePerm|fs.ModeSetuid|fs.ModeSetgid), toPath); err != nil {
		return &Error{"chmod", toPath, toPath, KindDestinationWriteFailed, err}
	}

	return e.cloneXattr(fromBranch, fromPath, toBranch, toPath)
}

// cloneXattr copies every extended attribute of fromPath onto toPath.
// A source that cannot carry xattrs at all (ENOTSUP - the common case
// on filesystems without xattr support) is not an error: there is
// simply nothing to clone. A destination that rejects the xattrs the
// source actually had is an asymmetric transfer the caller needs to
// know about, so it is surfaced rather than swallowed.
func (e *Engine) cloneXattr(fromBranch int, fromPath string, toBranch int, toPath string) error {
	x, err := e.bio.GetXattr(fromBranch, fromPath)
	if err != nil {
		if errors.Is(err, unix.ENOTSUP) || os.IsNotExist(err) {
			return nil
		}
		return &Error{"get-xattr", fromPath, toPath, KindXattrNotSupported, err}
	}
	if len(x) == 0 {
		return nil
	}

	if err := e.bio.SetXattr(toBranch, x, toPath); err != nil {
		if errors.Is(err, unix.ENOTSUP) {
			e.warn("setfile: %s: destination does not support xattrs, %d attribute(s) dropped", toPath, len(x))
			return &Error{"set-xattr", fromPath, toPath, KindXattrNotSupported, err}
		}
		return &Error{"set-xattr", fromPath, toPath, KindDestinationWriteFailed, err}
	}
	return nil
}

// setLink applies only ownership to a symlink destination - no mode,
// no timestamps, because symlinks do not carry mode reliably across
// platforms.
func (e *Engine) setLink(branch int, path string, src *unionfs.Info) error {
	if err := e.bio.Lchown(branch, int(src.Uid), int(src.Gid), path); err != nil {
		if !os.IsPermission(err) {
			return &Error{"lchown", path, path, KindPermissionLost, err}
		}
		e.warn("setlink: %s: lchown denied", path)
	}
	return nil
}

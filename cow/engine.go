// engine.go - the copy-on-write promotion engine
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

// Package cow implements copy-on-write promotion: recursive
// parent-path creation on the RW branch, type-dispatched object copy,
// metadata transfer, and directory recursion. Every filesystem
// operation is routed through branchio.BranchIO, so the same engine
// works against either the handle or the prefix backend.
package cow

import (
	"os"

	"github.com/opencoff/go-logger"
	"github.com/opencoff/go-unionfs"
	"github.com/opencoff/go-unionfs/branchio"
	"golang.org/x/sys/unix"
)

// Engine is the promotion API: Promote, CopyDirectory, and the
// parent-path materializer shared with whiteout.Store.
type Engine struct {
	bio *branchio.BranchIO
	log logger.Logger

	hl *hardlinker
}

// New builds an Engine over an already-open BranchIO. log may be
// nil, in which case warnings are dropped.
func New(bio *branchio.BranchIO, log logger.Logger) *Engine {
	return &Engine{bio: bio, log: log, hl: newHardlinker()}
}

func (e *Engine) warn(format string, args ...interface{}) {
	if e.log != nil {
		e.log.Warn(format, args...)
	}
}

// Promote materializes path from roBranch onto rwBranch: parent
// creation, source type probe, type-dispatched copy, metadata
// transfer.
func (e *Engine) Promote(path string, roBranch, rwBranch int) error {
	job := newJob(roBranch, path, rwBranch, path)

	dir, _ := splitDir(path)
	if err := e.CreatePathChain(dir, roBranch, rwBranch); err != nil {
		return err
	}
	job.State = StateParentsOK

	job.ActingUID = os.Getuid()
	prevUmask := unix.Umask(0)
	unix.Umask(prevUmask)
	job.EffectiveUmask = prevUmask

	src, err := e.bio.Lstat(roBranch, path)
	if err != nil {
		job.State = StateFailed
		return &Error{"lstat-src", path, path, KindSourceVanished, err}
	}
	job.SourceStat = src
	job.State = StateSourceStatted

	job.State = StateTypeDispatched
	switch src.Kind() {
	case unionfs.KindRegular:
		err = e.copyFile(job)
	case unionfs.KindDirectory:
		return e.CopyDirectory(path, roBranch, rwBranch)
	case unionfs.KindSymlink:
		err = e.copyLink(job)
	case unionfs.KindFIFO:
		err = e.copyFifo(job)
	case unionfs.KindBlockDevice, unionfs.KindCharDevice:
		err = e.copySpecial(job)
	case unionfs.KindSocket:
		e.warn("promote: refusing socket %s", path)
		return &Error{"promote", path, path, KindUnsupportedType, unionfs.ErrNotSupported}
	default:
		return &Error{"promote", path, path, KindUnsupportedType, unionfs.ErrNotSupported}
	}

	if err != nil {
		job.State = StateFailed
		return err
	}
	job.State = StateDone
	return nil
}

// CopyDirectory ensures the directory itself exists at the
// destination with proper metadata, then recursively promotes every
// entry except "." and "..". No ordering requirement on entries; the
// first failure terminates the recursion.
func (e *Engine) CopyDirectory(path string, roBranch, rwBranch int) error {
	if err := e.CreatePathChain(path, roBranch, rwBranch); err != nil {
		return err
	}

	fd, err := e.bio.OpenDir(roBranch, path)
	if err != nil {
		return &Error{"opendir", path, path, KindSourceVanished, err}
	}
	defer fd.Close()

	names, err := fd.Readdirnames(-1)
	if err != nil {
		return &Error{"readdir", path, path, KindSourceVanished, err}
	}

	for _, nm := range names {
		child, cerr := branchio.BuildPath(path, "/", nm)
		if cerr != nil {
			return &Error{"path", child, child, KindPathTooLong, cerr}
		}

		src, serr := e.bio.Lstat(roBranch, child)
		if serr == nil && src.Nlink > 1 && src.IsRegular() {
			if e.hl.track(src, child) {
				e.warn("promote: %s: hardlink relationship not preserved across promotion", child)
			}
		}

		if err := e.Promote(child, roBranch, rwBranch); err != nil {
			return err
		}
	}

	// creating the children bumped the destination directory's own
	// timestamps; re-apply the source metadata now that the subtree
	// below it is complete
	src, err := e.bio.Lstat(roBranch, path)
	if err != nil {
		return &Error{"lstat-src", path, path, KindSourceVanished, err}
	}
	return e.setFile(roBranch, path, rwBranch, path, src)
}

func splitDir(path string) (dir, base string) {
	i := len(path) - 1
	for i >= 0 && path[i] != '/' {
		i--
	}
	if i < 0 {
		return "", path
	}
	return path[:i], path[i+1:]
}

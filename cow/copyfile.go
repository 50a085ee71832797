// copyfile.go - regular-file promotion
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
	"io/fs"
	"os"

	"github.com/opencoff/go-unionfs"
)

func (e *Engine) copyFile(job *Job) error {
	src := job.SourceStat
	path := job.FromPath

	sfd, err := e.bio.Open(job.FromBranch, os.O_RDONLY, 0, path)
	if err != nil {
		return &Error{"open-src", path, path, KindSourceVanished, err}
	}
	defer sfd.Close()

	destMode := src.Mode() &^ (fs.ModeSetuid | fs.ModeSetgid | fs.ModeSticky)
	dfd, err := e.bio.Open(job.ToBranch, os.O_CREATE|os.O_TRUNC|os.O_RDWR, destMode&fs.ModePerm, job.ToPath)
	if err != nil {
		return &Error{"open-dst", path, job.ToPath, KindDestinationWriteFailed, err}
	}

	if err := unionfs.CopyData(dfd, sfd, src.Size()); err != nil {
		dfd.Close()
		return &Error{"copy-data", path, job.ToPath, KindDestinationWriteFailed, err}
	}
	job.State = StateDataCopied

	if err := e.setFile(job.FromBranch, job.FromPath, job.ToBranch, job.ToPath, src); err != nil {
		dfd.Close()
		return err
	}
	job.State = StateMetadataApplied

	if err := e.applySetuidRule(job); err != nil {
		dfd.Close()
		return err
	}

	if err := dfd.Close(); err != nil {
		return &Error{"close-dst", path, job.ToPath, KindDestinationWriteFailed, err}
	}
	return nil
}

// applySetuidRule: if the source had setuid|setgid and the source uid
// equals the acting uid AND, after the destination open, the
// destination gid equals the source gid, reapply
// mode & (setuid|setgid|sticky|rwxrwxrwx) & ~umask. Otherwise the
// bits stay dropped (historical BSD cp semantics).
func (e *Engine) applySetuidRule(job *Job) error {
	src := job.SourceStat
	if src.Mode()&(fs.ModeSetuid|fs.ModeSetgid) == 0 {
		return nil
	}
	if int(src.Uid) != job.ActingUID {
		return nil
	}

	dst, err := e.bio.Lstat(job.ToBranch, job.ToPath)
	if err != nil {
		return &Error{"lstat-dst", job.ToPath, job.ToPath, KindDestinationWriteFailed, err}
	}
	if dst.Gid != src.Gid {
		return nil
	}

	want := src.Mode() & (fs.ModeSetuid | fs.ModeSetgid | fs.ModeSticky | fs.ModePerm)
	want &^= fs.FileMode(job.EffectiveUmask) & fs.ModePerm

	if err := e.bio.Chmod(job.ToBranch, want, job.ToPath); err != nil {
		return &Error{"chmod-setuid", job.ToPath, job.ToPath, KindDestinationWriteFailed, err}
	}
	return nil
}

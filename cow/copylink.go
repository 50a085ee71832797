// copylink.go - symlink promotion
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

import "github.com/opencoff/go-unionfs/branchio"

func (e *Engine) copyLink(job *Job) error {
	path := job.FromPath

	target, err := e.bio.Readlink(job.FromBranch, path)
	if err != nil {
		return &Error{"readlink", path, path, KindSourceVanished, err}
	}
	if len(target) >= branchio.PathLenMax {
		return &Error{"readlink", path, path, KindPathTooLong, errSymlinkTargetTooLong}
	}

	if err := e.bio.Symlink(job.ToBranch, target, job.ToPath); err != nil {
		return &Error{"symlink", path, job.ToPath, KindDestinationWriteFailed, err}
	}
	job.State = StateDataCopied

	if err := e.setLink(job.ToBranch, job.ToPath, job.SourceStat); err != nil {
		return err
	}
	job.State = StateMetadataApplied
	return nil
}

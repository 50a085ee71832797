// copyspecial.go - device-node promotion
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

// copySpecial creates a block or character device node of the same
// type, mode and rdev as the source, then applies metadata.
func (e *Engine) copySpecial(job *Job) error {
	src := job.SourceStat
	if err := e.bio.Mknod(job.ToBranch, src.Mode(), src.Rdev, job.ToPath); err != nil {
		return &Error{"mknod", job.FromPath, job.ToPath, KindDestinationWriteFailed, err}
	}
	job.State = StateDataCopied

	if err := e.setFile(job.FromBranch, job.FromPath, job.ToBranch, job.ToPath, src); err != nil {
		return err
	}
	job.State = StateMetadataApplied
	return nil
}

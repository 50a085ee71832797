// copyfifo.go - FIFO promotion
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

func (e *Engine) copyFifo(job *Job) error {
	src := job.SourceStat
	if err := e.bio.Mkfifo(job.ToBranch, src.Mode()&0777, job.ToPath); err != nil {
		return &Error{"mkfifo", job.FromPath, job.ToPath, KindDestinationWriteFailed, err}
	}
	job.State = StateDataCopied

	if err := e.setFile(job.FromBranch, job.FromPath, job.ToBranch, job.ToPath, src); err != nil {
		return err
	}
	job.State = StateMetadataApplied
	return nil
}

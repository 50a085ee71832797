// job.go - the ephemeral per-promotion record
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

import "github.com/opencoff/go-unionfs"

// Job is the ephemeral record for a single promotion: created when a
// promotion starts, lives only for its duration, never persisted. It
// is a per-call stack object - never shared across goroutines.
type Job struct {
	FromBranch int
	FromPath   string
	ToBranch   int
	ToPath     string

	// SourceStat is a snapshot of the source metadata taken at job
	// creation time (step 3, type probe).
	SourceStat *unionfs.Info

	// EffectiveUmask is captured once from the process at job setup;
	// the process umask is restored immediately after the read, so
	// the window where other threads observe umask(0) is as small as
	// it can be made.
	EffectiveUmask int

	// ActingUID is captured once from the process at job setup.
	ActingUID int

	State State
}

func newJob(fromBranch int, fromPath string, toBranch int, toPath string) *Job {
	return &Job{
		FromBranch: fromBranch,
		FromPath:   fromPath,
		ToBranch:   toBranch,
		ToPath:     toPath,
		State:      StateInit,
	}
}

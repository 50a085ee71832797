// config.go - opening a BranchIO from a validated configuration
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
	"fmt"

	"github.com/opencoff/go-unionfs"
)

// OpenBranches opens every branch's backend (handle or prefix, per
// cfg.Backend) and returns a ready-to-use BranchIO. Each handle
// backend's root handle is opened once here and is never rotated for
// the registry's lifetime; close it via bio.Close() or CloseBranches
// at teardown.
func OpenBranches(cfg *unionfs.Config) (*BranchIO, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	backends := make(map[int]Backend, len(cfg.Branches))
	for _, b := range cfg.Branches {
		var (
			be  Backend
			err error
		)
		switch cfg.Backend {
		case unionfs.BackendHandle:
			be, err = NewHandleBackend(b.RootPath)
		default:
			be, err = NewPrefixBackend(b.RootPath)
		}
		if err != nil {
			// best-effort unwind of what we already opened
			for _, opened := range backends {
				opened.Close()
			}
			return nil, fmt.Errorf("branchio: open branch %d (%s): %w", b.Ordinal, b.RootPath, err)
		}
		backends[b.Ordinal] = be
	}

	return New(backends), nil
}

// CloseBranches releases every backend held by bio. Idiomatic pairing
// with OpenBranches at unmount-time.
func CloseBranches(bio *BranchIO) error {
	return bio.Close()
}

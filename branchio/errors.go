// errors.go - descriptive errors for branchio
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
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

// Kind classifies a branchio failure. Most branchio errors are plain
// syscall errno passed through unchanged - Kind only tags the handful
// the package itself synthesizes.
type Kind int

const (
	KindErrno      Kind = iota // verbatim kernel errno, unwrap it
	KindPathTooLong             // constructed path exceeds PathLenMax
	KindUnsupported             // e.g. xattr on a backend without support
)

// Error wraps a branchio failure: operation name, the path(s)
// involved, and the underlying cause.
type Error struct {
	Op     string
	Branch int
	Path   string
	Kind   Kind
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("branchio: %s branch=%d path=%q: %s", e.Op, e.Branch, e.Path, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

var _ error = &Error{}

// ErrPathTooLong is returned by the path builder when a constructed
// path would exceed PathLenMax (a synthesized ENAMETOOLONG).
// It wraps unix.ENAMETOOLONG so callers that switch on errno via
// errors.Is(err, unix.ENAMETOOLONG) see the same verdict a real
// syscall would have returned.
var ErrPathTooLong = fmt.Errorf("branchio: path exceeds PATHLEN_MAX: %w", unix.ENAMETOOLONG)

// ErrUnsupported is returned for operations a backend cannot perform
// (e.g. xattr calls against a symlink on a platform without
// lxattr support - mapped from the kernel's ELOOP).
var ErrUnsupported = errors.New("branchio: operation not supported")

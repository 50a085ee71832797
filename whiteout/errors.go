// errors.go - descriptive errors for whiteout
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

package whiteout

import "fmt"

// Error wraps a whiteout-store failure: operation, the union-visible
// path involved, and the underlying cause.
type Error struct {
	Op   string
	Path string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("whiteout: %s '%s': %s", e.Op, e.Path, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

var _ error = &Error{}

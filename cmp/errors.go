// errors.go - descriptive errors for cmp
//
// (c) 2024 Sudhi Herle <sudhi@herle.net>
//
// Licensing Terms: GPLv2
//
// If you need a commercial license for this work, please contact
// the author.
//
// This software does not come with any express or implied
// warranty; it is provided "as is". No claim  is made to its
// suitability for any purpose.

package cmp

import (
	"errors"
	"fmt"
)

// errNotDir is the cause recorded when one side of a DirTree
// invocation is not a directory.
var errNotDir = errors.New("not a directory")

// Error represents a failure encountered while walking or comparing
// one side of a DirTree invocation.
type Error struct {
	Op  string
	Src string
	Dst string
	Err error
}

// Error returns a string representation of Error
func (e *Error) Error() string {
	return fmt.Sprintf("cmp-tree: %s '%s' '%s': %s",
		e.Op, e.Src, e.Dst, e.Err.Error())
}

// Unwrap returns the underlying wrapped error
func (e *Error) Unwrap() error {
	return e.Err
}

var _ error = &Error{}

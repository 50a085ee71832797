// path.go - bounded branch-relative path construction
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

// Package branchio implements the branch-relative filesystem
// abstraction: every directory-entry syscall, addressed by branch
// ordinal plus a variable number of path fragments, routed through
// one of two interchangeable backends (handle-based or
// path-prefix-based).
package branchio

import "strings"

// PathLenMax bounds every branch-local path constructed by this
// package, including the terminating NUL a C implementation would
// need. Go strings aren't NUL-terminated, but the budget is kept
// identical to the source so PathTooLong triggers at the same
// boundary a prefix-backend syscall would hit.
const PathLenMax = 4096

// BuildPath concatenates frags in order with no implicit separator -
// callers supply literal "/" where they want one, matching the
// variadic path builder the source C uses. Returns ErrPathTooLong if
// the result (plus the terminator accounted for by PathLenMax) would
// not fit.
func BuildPath(frags ...string) (string, error) {
	var b strings.Builder
	total := 0
	for _, f := range frags {
		total += len(f)
		if total >= PathLenMax {
			return "", ErrPathTooLong
		}
		b.WriteString(f)
	}
	return b.String(), nil
}

// relativize strips any leading slashes from p, turning an absolute
// union path into the form the handle backend passes to the *at
// family. An empty result becomes ".".
func relativize(p string) string {
	for len(p) > 0 && p[0] == '/' {
		p = p[1:]
	}
	if p == "" {
		return "."
	}
	return p
}

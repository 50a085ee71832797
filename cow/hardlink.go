// hardlink.go - hardlink-loss detector
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
	"fmt"

	"github.com/opencoff/go-unionfs"
)

// hardlinker notices when a source inode is seen more than once
// during a directory recursion. Promotion never recreates a hardlink
// relationship at the destination - this type exists only to make
// the loss observable in the log, never to undo it.
//
// seen maps an inode key to the *Info of its first sighting, using
// the root package's concurrency-safe InfoMap. One hardlinker lives
// as long as its Engine and is not reset between CopyDirectory calls.
type hardlinker struct {
	seen *unionfs.InfoMap
}

func newHardlinker() *hardlinker {
	return &hardlinker{seen: unionfs.NewInfoMap()}
}

func inodeKey(fi *unionfs.Info) string {
	return fmt.Sprintf("%d:%d:%d", fi.Dev, fi.Rdev, fi.Ino)
}

// track records src against its inode key and reports whether this is
// a repeat sighting of an inode this Engine has already tracked -
// i.e. whether the hardlink relationship to path is about
// to be lost. path is folded into the tracked Info via SetPath so a
// caller can still identify the first-seen sibling from the stored
// value if needed.
func (h *hardlinker) track(src *unionfs.Info, path string) bool {
	if src.Nlink <= 1 {
		return false
	}

	src.SetPath(path)
	k := inodeKey(src)
	_, seen := h.seen.LoadOrStore(k, src)
	return seen
}

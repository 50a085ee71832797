// infomap.go -- concurrency-safe maps of names to Info
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

package unionfs

import (
	"github.com/puzpuzpuz/xsync/v3"
)

// Pair represents the Stat/Lstat info of a pair of related file
// system entries - typically the RO source and the RW destination of
// a promotion.
type Pair struct {
	Src, Dst *Info
}

// InfoMap is a concurrency safe map of relative path name to the
// corresponding Stat/Lstat info. Used by cmp's stat cache and result
// maps, and by the hardlink-loss detector (keyed by inode there).
type InfoMap = xsync.MapOf[string, *Info]

// InfoPairMap is a concurrency safe map of relative path name to the
// corresponding Stat/Lstat info of both branches involved in a
// promotion.
type InfoPairMap = xsync.MapOf[string, Pair]

func NewInfoMap() *InfoMap {
	return xsync.NewMapOf[string, *Info]()
}

func NewInfoPairMap() *InfoPairMap {
	return xsync.NewMapOf[string, Pair]()
}

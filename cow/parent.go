// parent.go - recursive parent-path materialization
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
	"os"
	"strings"

	"github.com/opencoff/go-unionfs/branchio"
)

// plainMkdirMode is the mode used when CreatePathChain is invoked in
// its special "ro == rw" case: a plain mkdir -p with no metadata
// transfer, used only by whiteout.Store to build out the metadata
// directory tree.
const plainMkdirMode = 0770

// CreatePathChain walks path component-by-component from the root;
// for each prefix P not already present on rwBranch, it lstats P on
// roBranch (aborting with KindSourceVanished if a concurrent removal
// raced it away), creates it on rwBranch with the source's mode, and
// transfers metadata via setFile.
//
// When roBranch == rwBranch the routine degenerates to a plain
// mkdir -p using plainMkdirMode and skips the metadata transfer -
// the mode whiteout.Store uses to build its metadata directory tree.
func (e *Engine) CreatePathChain(path string, roBranch, rwBranch int) error {
	if path == "" || path == "/" {
		return nil
	}

	special := roBranch == rwBranch

	comps := strings.Split(strings.Trim(path, "/"), "/")
	var prefix string
	for _, c := range comps {
		if c == "" {
			continue
		}
		var err error
		prefix, err = branchio.BuildPath(prefix, "/", c)
		if err != nil {
			return &Error{"path", path, path, KindPathTooLong, err}
		}

		kind, err := e.bio.PathIsDir(rwBranch, prefix)
		if err != nil {
			return &Error{"stat-rw", prefix, prefix, KindSourceVanished, err}
		}
		if kind == branchio.IsDir {
			continue
		}

		if special {
			if err := e.bio.Mkdir(rwBranch, plainMkdirMode, prefix); err != nil && !os.IsExist(err) {
				return &Error{"mkdir", prefix, prefix, KindDestinationWriteFailed, err}
			}
			continue
		}

		roStat, err := e.bio.Lstat(roBranch, prefix)
		if err != nil {
			return &Error{"lstat-ro", prefix, prefix, KindSourceVanished, err}
		}

		if err := e.bio.Mkdir(rwBranch, roStat.Mode(), prefix); err != nil && !os.IsExist(err) {
			return &Error{"mkdir", prefix, prefix, KindDestinationWriteFailed, err}
		}

		if err := e.setFile(roBranch, prefix, rwBranch, prefix, roStat); err != nil {
			if os.IsNotExist(err) {
				return &Error{"setfile", prefix, prefix, KindSourceVanished, err}
			}
			return err
		}
	}
	return nil
}

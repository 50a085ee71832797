// index.go - in-memory hint cache over is_hidden/path_hidden results
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

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/opencoff/go-unionfs"
	"github.com/puzpuzpuz/xsync/v3"
)

// Index is a best-effort positive/negative cache over IsHidden
// results, keyed by (branch, union-visible path) - a whiteout marker
// on one branch says nothing about another branch's, so the key must
// carry both (a path-only key would let a hit on one branch answer a
// query against a different one). It is never the source of truth: a
// miss always falls back to the filesystem check in Store.IsHidden,
// so the cache can only change latency, never observable semantics.
//
// The cache's value type (bool) is unrelated to the root package's
// InfoMap (*Info), so it holds its own xsync.MapOf[indexKey,bool]
// directly. The persisted snapshot (Load/Save below) goes through
// SafeFile's temp+rename so a reader never observes a torn write -
// the snapshot is a cache artifact, so the atomicity is cheap to
// provide and costs promotion nothing.
type Index struct {
	m *xsync.MapOf[indexKey, bool]
}

type indexKey struct {
	branch int
	path   string
}

func newIndex() *Index {
	return &Index{m: xsync.NewMapOf[indexKey, bool]()}
}

func (idx *Index) get(branch int, path string) (bool, bool) {
	return idx.m.Load(indexKey{branch, path})
}

func (idx *Index) put(branch int, path string, hidden bool) {
	idx.m.Store(indexKey{branch, path}, hidden)
}

// invalidate drops any cached verdict for path on branch. Called on
// every hide_*/remove_hidden mutation so a stale positive or negative
// never outlives the state it described.
func (idx *Index) invalidate(branch int, path string) {
	idx.m.Delete(indexKey{branch, path})
}

// Warm seeds the cache with a positive entry for every path in paths
// on branch. It cannot fail. Store does not call it: a Store's cache
// is filled by IsHidden queries and by LoadIndex.
func (idx *Index) Warm(branch int, paths []string) {
	for _, p := range paths {
		idx.put(branch, p, true)
	}
}

// Save writes the cache's current positive entries to nm, one
// "branch\tpath" pair per line, via SafeFile's temp+rename so a
// concurrent reader never observes a half-written snapshot. Negative
// entries are not worth persisting - a miss is cheap and always
// re-verified against the filesystem.
func (idx *Index) Save(nm string) error {
	sf, err := unionfs.NewSafeFile(nm, unionfs.OPT_OVERWRITE, os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("whiteout: index save %s: %w", nm, err)
	}
	defer sf.Abort()

	w := bufio.NewWriter(sf)
	idx.m.Range(func(k indexKey, hidden bool) bool {
		if hidden {
			fmt.Fprintf(w, "%d\t%s\n", k.branch, k.path)
		}
		return true
	})
	if err := w.Flush(); err != nil {
		return fmt.Errorf("whiteout: index save %s: %w", nm, err)
	}
	return sf.Close()
}

// Load reads a snapshot written by Save and warms the cache from it.
// A missing file is not an error - the cache simply starts cold and
// every query falls back to the filesystem, per the "never the
// source of truth" contract above.
func (idx *Index) Load(nm string) error {
	f, err := os.Open(nm)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("whiteout: index load %s: %w", nm, err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		branch, path, ok := strings.Cut(line, "\t")
		if !ok {
			continue
		}
		var b int
		if _, err := fmt.Sscanf(branch, "%d", &b); err != nil {
			continue
		}
		idx.put(b, path, true)
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("whiteout: index load %s: %w", nm, err)
	}
	return nil
}

// store.go - whiteout marker creation, detection and removal
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
	"os"
	"strings"

	"github.com/opencoff/go-logger"
	"github.com/opencoff/go-unionfs/branchio"
	"github.com/opencoff/go-unionfs/cow"
)

// Kind identifies what sort of object a whiteout stands in for.
type Kind int

const (
	KindFile Kind = iota
	KindDir
)

const (
	// DefaultMetaDir is the top-level reserved directory name under
	// each RW branch root that holds the whiteout tree.
	DefaultMetaDir = ".unionfs"

	// DefaultHideTag is the reserved terminal component marking a
	// hidden path.
	DefaultHideTag = "__HIDDEN__"

	fileWhiteoutMode os.FileMode = 0600
	dirWhiteoutMode  os.FileMode = 0700
)

// Store manages the whiteout markers of a branch stack on top of a
// branchio.BranchIO and a cow.Engine (reused only for its
// CreatePathChain special-case ro == rw, the plain mkdir -p chain).
type Store struct {
	bio     *branchio.BranchIO
	cow     *cow.Engine
	log     logger.Logger
	metaDir string
	hideTag string
	cowOff  bool
	idx     *Index
}

// New builds a Store. metaDir/hideTag default to DefaultMetaDir/
// DefaultHideTag when empty. cowDisabled short-circuits every query
// to false and every hide operation to a no-op success, without any
// I/O.
func New(bio *branchio.BranchIO, ce *cow.Engine, log logger.Logger, metaDir, hideTag string, cowDisabled bool) *Store {
	if metaDir == "" {
		metaDir = DefaultMetaDir
	}
	if hideTag == "" {
		hideTag = DefaultHideTag
	}
	return &Store{
		bio:     bio,
		cow:     ce,
		log:     log,
		metaDir: metaDir,
		hideTag: hideTag,
		cowOff:  cowDisabled,
		idx:     newIndex(),
	}
}

func (s *Store) warn(format string, args ...interface{}) {
	if s.log != nil {
		s.log.Warn(format, args...)
	}
}

// metaPath composes <METADIR>/<path>: the whiteout tree mirrors the
// branch tree under the reserved metadata directory.
func (s *Store) metaPath(path string) (string, error) {
	return branchio.BuildPath(s.metaDir, "/", strings.TrimPrefix(path, "/"))
}

// ensureParents materializes every parent directory of the metadata
// path on rwBranch, via the CowEngine parent-creation routine called
// with ro==rw so it degrades to a plain mkdir -p.
func (s *Store) ensureParents(metaPath string, rwBranch int) error {
	dir, _ := splitDir(metaPath)
	if dir == "" || dir == "." {
		return nil
	}
	return s.cow.CreatePathChain(dir, rwBranch, rwBranch)
}

func splitDir(path string) (string, string) {
	i := strings.LastIndexByte(path, '/')
	if i < 0 {
		return "", path
	}
	return path[:i], path[i+1:]
}

// SaveIndex persists the Store's in-memory hint cache to nm (see
// Index.Save). Intended for graceful-shutdown callers that want to
// warm the cache quickly on the next startup.
func (s *Store) SaveIndex(nm string) error {
	return s.idx.Save(nm)
}

// LoadIndex warms the Store's in-memory hint cache from a snapshot
// previously written by SaveIndex (see Index.Load).
func (s *Store) LoadIndex(nm string) error {
	return s.idx.Load(nm)
}

// HideFile creates an empty-file whiteout for path on rwBranch.
func (s *Store) HideFile(path string, rwBranch int) error {
	return s.hide(path, rwBranch, KindFile)
}

// HideDir creates an empty-directory whiteout for path on rwBranch.
func (s *Store) HideDir(path string, rwBranch int) error {
	return s.hide(path, rwBranch, KindDir)
}

func (s *Store) hide(path string, rwBranch int, kind Kind) error {
	if s.cowOff {
		return nil
	}

	mp, err := s.metaPath(path)
	if err != nil {
		return &Error{"hide", path, err}
	}
	tag, err := branchio.BuildPath(mp, "/", s.hideTag)
	if err != nil {
		return &Error{"hide", path, err}
	}

	// the tag's parent is <METADIR>/<path> itself - the whole mirrored
	// chain has to exist before the marker can be planted
	if err := s.ensureParents(tag, rwBranch); err != nil {
		s.warn("whiteout: hide %s: parent chain: %s", path, err)
		return &Error{"hide", path, err}
	}

	switch kind {
	case KindFile:
		f, err := s.bio.Creat(rwBranch, fileWhiteoutMode, tag)
		if err != nil {
			s.warn("whiteout: hide-file %s: %s", path, err)
			return &Error{"hide-file", path, err}
		}
		f.Close()
	case KindDir:
		if err := s.bio.Mkdir(rwBranch, dirWhiteoutMode, tag); err != nil {
			s.warn("whiteout: hide-dir %s: %s", path, err)
			return &Error{"hide-dir", path, err}
		}
	}

	s.idx.invalidate(rwBranch, path)
	return nil
}

// BranchFinder resolves the current owning branch of path, or -1 when
// path no longer resolves anywhere in the stack. Branch discovery
// belongs to the caller (the union front-end); this package never
// implements it.
type BranchFinder func(path string) int

// MaybeWhiteout is invoked after a successful unlink/rmdir on
// rwBranch. If path still resolves to some branch in the stack, the
// matching whiteout is created; otherwise nothing happens. Either way
// the union view no longer exposes path.
func (s *Store) MaybeWhiteout(path string, rwBranch int, kind Kind, find BranchFinder) error {
	if s.cowOff {
		return nil
	}
	if find(path) == -1 {
		return nil
	}
	return s.hide(path, rwBranch, kind)
}

// IsHidden reports whether path is shadowed by a whiteout on branch
// itself (no prefix-walk; see PathHidden for that).
func (s *Store) IsHidden(path string, branch int) (bool, error) {
	if s.cowOff {
		return false, nil
	}
	if v, ok := s.idx.get(branch, path); ok {
		return v, nil
	}

	mp, err := s.metaPath(path)
	if err != nil {
		return false, &Error{"is-hidden", path, err}
	}
	tag, err := branchio.BuildPath(mp, "/", s.hideTag)
	if err != nil {
		return false, &Error{"is-hidden", path, err}
	}

	_, err = s.bio.Lstat(branch, tag)
	hidden := err == nil
	if err != nil && !os.IsNotExist(err) {
		return false, &Error{"is-hidden", path, err}
	}

	s.idx.put(branch, path, hidden)
	return hidden, nil
}

// PathHidden returns true iff IsHidden holds for any prefix of path,
// including path itself: hiding a directory implicitly hides
// everything below it, with no marker planted at every descendant.
func (s *Store) PathHidden(path string, branch int) (bool, error) {
	if s.cowOff {
		return false, nil
	}

	buf := []byte(path)
	i := 0
	for i < len(buf) && buf[i] == '/' {
		i++
	}

	for i <= len(buf) {
		j := i
		for j < len(buf) && buf[j] != '/' {
			j++
		}

		prefix := string(buf[:j])
		if prefix != "" {
			hidden, err := s.IsHidden(prefix, branch)
			if err != nil {
				return false, err
			}
			if hidden {
				return true, nil
			}
		}

		if j >= len(buf) {
			break
		}
		i = j
		for i < len(buf) && buf[i] == '/' {
			i++
		}
	}
	return false, nil
}

// RemoveHidden removes any whiteout for path on every branch ordinal
// 0..=maxBranch (or the full stack when maxBranch == -1). Failures
// are best-effort: logged, never aggregated into the return value.
func (s *Store) RemoveHidden(path string, maxBranch int) error {
	if s.cowOff {
		return nil
	}

	mp, err := s.metaPath(path)
	if err != nil {
		return &Error{"remove-hidden", path, err}
	}
	tag, err := branchio.BuildPath(mp, "/", s.hideTag)
	if err != nil {
		return &Error{"remove-hidden", path, err}
	}

	last := maxBranch
	if last == -1 {
		last = s.bio.MaxOrdinal()
	}

	for b := 0; b <= last; b++ {
		kind, err := s.bio.PathIsDir(b, tag)
		if err != nil {
			continue
		}
		switch kind {
		case branchio.IsDir:
			if err := s.bio.Rmdir(b, tag); err != nil {
				s.warn("whiteout: remove-hidden %s (branch %d): %s", path, b, err)
			}
		case branchio.IsFile:
			if err := s.bio.Unlink(b, tag); err != nil {
				s.warn("whiteout: remove-hidden %s (branch %d): %s", path, b, err)
			}
		}
	}

	for b := 0; b <= last; b++ {
		s.idx.invalidate(b, path)
	}
	return nil
}

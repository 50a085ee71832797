// cmp_test.go -- test harness for dircmp
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

package cmp

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/opencoff/go-unionfs/walk"
)

func tmpDirs(t *testing.T) (lhs, rhs string) {
	base := t.TempDir()
	lhs = filepath.Join(base, "lhs")
	rhs = filepath.Join(base, "rhs")

	assert := newAsserter(t)
	assert(os.MkdirAll(lhs, 0700) == nil, "mkdir %s", lhs)
	assert(os.MkdirAll(rhs, 0700) == nil, "mkdir %s", rhs)
	return lhs, rhs
}

func TestEmptyDir(t *testing.T) {
	assert := newAsserter(t)
	lhs, rhs := tmpDirs(t)

	d, err := DirTree(lhs, rhs)
	assert(err == nil, "%s", err)
	assert(d != nil, "diff is nil")

	// everything should be empty
	assert(d.LeftDirs.Size() == 0, "leftdirs %d", d.LeftDirs.Size())
	assert(d.LeftFiles.Size() == 0, "leftfiles %d", d.LeftFiles.Size())
	assert(d.RightDirs.Size() == 0, "rightdirs %d", d.RightDirs.Size())
	assert(d.RightFiles.Size() == 0, "rightfiles %d", d.RightFiles.Size())
	assert(d.Diff.Size() == 0, "diff %d", d.Diff.Size())
	assert(d.Funny.Size() == 0, "funny %d", d.Funny.Size())
}

func TestEmptyRhs(t *testing.T) {
	assert := newAsserter(t)
	lhs, rhs := tmpDirs(t)

	// make the files needed on lhs
	files := "a/b/0 a/b/1 a/b/3 a/b/c/0 a/b/c/1"
	root := rootdir(lhs)
	fv := strings.Split(files, " ")
	for i := range fv {
		nm := fv[i]
		err := root.mkfile(nm)
		assert(err == nil, "%s", err)
	}

	wo := walk.Options{
		Concurrency: 4,
		Type:        walk.FILE,
	}

	d, err := DirTree(lhs, rhs, WithWalkOptions(wo))
	assert(err == nil, "%s", err)
	assert(d != nil, "diff is nil")

	assert(d.LeftFiles.Size() == len(fv), "leftfiles: exp %d, saw %d", len(fv), d.LeftFiles.Size())

	// rest should be empty
	assert(d.RightFiles.Size() == 0, "rightfiles %d", d.RightFiles.Size())
	assert(d.Diff.Size() == 0, "diff %d", d.Diff.Size())
	assert(d.Funny.Size() == 0, "funny %d", d.Funny.Size())
}

func TestCommonFile(t *testing.T) {
	assert := newAsserter(t)
	lhs, rhs := tmpDirs(t)

	assert(rootdir(lhs).mkfile("same.txt") == nil, "mkfile lhs")
	assert(rootdir(rhs).mkfile("same.txt") == nil, "mkfile rhs")

	when := time.Unix(time.Now().Unix()-10, 0)
	assert(os.Chtimes(filepath.Join(lhs, "same.txt"), when, when) == nil, "chtimes lhs")
	assert(os.Chtimes(filepath.Join(rhs, "same.txt"), when, when) == nil, "chtimes rhs")

	d, err := DirTree(lhs, rhs, WithIgnoreAttr(IGN_HARDLINK|IGN_XATTR))
	assert(err == nil, "%s", err)

	assert(d.CommonFiles.Size() == 1, "commonfiles: exp 1, saw %d", d.CommonFiles.Size())
	assert(d.Diff.Size() == 0, "diff %d", d.Diff.Size())
	assert(d.LeftFiles.Size() == 0, "leftfiles %d", d.LeftFiles.Size())
	assert(d.RightFiles.Size() == 0, "rightfiles %d", d.RightFiles.Size())
}

func TestDiffBySize(t *testing.T) {
	assert := newAsserter(t)
	lhs, rhs := tmpDirs(t)

	assert(os.WriteFile(filepath.Join(lhs, "f"), []byte("short"), 0600) == nil, "write lhs")
	assert(os.WriteFile(filepath.Join(rhs, "f"), []byte("a bit longer"), 0600) == nil, "write rhs")

	d, err := DirTree(lhs, rhs)
	assert(err == nil, "%s", err)

	assert(d.Diff.Size() == 1, "diff: exp 1, saw %d", d.Diff.Size())
	assert(d.CommonFiles.Size() == 0, "commonfiles %d", d.CommonFiles.Size())
}

func TestFunnyEntries(t *testing.T) {
	assert := newAsserter(t)
	lhs, rhs := tmpDirs(t)

	// same name, different types on the two sides
	assert(os.WriteFile(filepath.Join(lhs, "x"), []byte("file"), 0600) == nil, "write lhs")
	assert(os.MkdirAll(filepath.Join(rhs, "x"), 0700) == nil, "mkdir rhs")

	d, err := DirTree(lhs, rhs)
	assert(err == nil, "%s", err)

	assert(d.Funny.Size() == 1, "funny: exp 1, saw %d", d.Funny.Size())
	assert(d.Diff.Size() == 0, "diff %d", d.Diff.Size())
}

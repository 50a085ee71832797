// main.go - bulk-promotion CLI
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

// unionfs-promote walks every entry under a RO branch and promotes
// it onto a RW branch using a unionfs.WorkPool of cow.Engine.Promote
// calls - an external caller driving the engine end to end, the same
// shape a union-fs front-end would take.
package main

import (
	"fmt"
	"os"
	"path"
	"strings"

	"github.com/opencoff/go-logger"
	"github.com/opencoff/go-unionfs"
	"github.com/opencoff/go-unionfs/branchio"
	"github.com/opencoff/go-unionfs/cow"
	"github.com/opencoff/go-unionfs/walk"
	"github.com/opencoff/go-unionfs/whiteout"
	flag "github.com/opencoff/pflag"
)

var Z = path.Base(os.Args[0])

func main() {
	var help bool
	var concurrency int
	var logfile string

	fs := flag.NewFlagSet(Z, flag.ExitOnError)
	fs.BoolVarP(&help, "help", "h", false, "Show help and exit [False]")
	fs.IntVarP(&concurrency, "concurrency", "j", 0, "Use `N` concurrent workers [NumCPU]")
	fs.StringVarP(&logfile, "log", "l", "", "Write log output to `F` [STDOUT]")
	fs.SetOutput(os.Stdout)

	if err := fs.Parse(os.Args[1:]); err != nil {
		die("%s", err)
	}

	if help || fs.NArg() != 2 {
		usage(fs)
	}

	roRoot := fs.Arg(0)
	rwRoot := fs.Arg(1)

	if logfile == "" {
		logfile = "STDOUT"
	}

	log, err := logger.NewLogger(logfile, logger.LOG_DEBUG, Z, logger.Ldate|logger.Ltime|logger.Lfileloc)
	if err != nil {
		die("logger: %s", err)
	}
	defer log.Close()

	robe, err := branchio.NewPrefixBackend(roRoot)
	if err != nil {
		die("ro branch %s: %s", roRoot, err)
	}
	rwbe, err := branchio.NewPrefixBackend(rwRoot)
	if err != nil {
		die("rw branch %s: %s", rwRoot, err)
	}

	bio := branchio.New(map[int]branchio.Backend{0: robe, 1: rwbe})
	defer bio.Close()

	eng := cow.New(bio, log)
	store := whiteout.New(bio, eng, log, "", "", false)

	type job struct{ path string }

	pool := unionfs.NewWorkPool[job](concurrency, func(_ int, w job) error {
		if err := eng.Promote(w.path, 0, 1); err != nil {
			log.Warn("promote %s: %s", w.path, err)
			return err
		}
		log.Info("promoted %s", w.path)
		return nil
	})

	// Never descend into the RO branch's own whiteout metadata dir, and
	// never promote an entry that the RW branch has already hidden -
	// the walk would otherwise fight with the whiteout protocol it
	// exists alongside.
	wo := walk.Options{
		Concurrency: concurrency,
		Type:        walk.ALL &^ walk.DIR,
		Excludes:    []string{whiteout.DefaultMetaDir},
		Filter:      walk.SkipHidden(store, roRoot, 1),
	}

	ch, errch := walk.Walk([]string{roRoot}, wo)
	done := make(chan struct{})
	go func() {
		for fi := range ch {
			rel := strings.TrimPrefix(fi.Path(), roRoot)
			pool.Submit(job{path: rel})
		}
		close(done)
	}()

	<-done
	pool.Close()

	var walkErr error
	for e := range errch {
		if walkErr == nil {
			walkErr = e
		}
		log.Warn("walk: %s", e)
	}

	if err := pool.Wait(); err != nil {
		die("promotion errors: %s", err)
	}
	if walkErr != nil {
		die("walk error: %s", walkErr)
	}
}

func usage(fs *flag.FlagSet) {
	fmt.Printf("%s - bulk-promote every entry on a RO branch onto a RW branch\n\n", Z)
	fmt.Printf("Usage: %s [options] RO-branch RW-branch\n\n", Z)
	fs.PrintDefaults()
	os.Exit(0)
}

func die(f string, v ...interface{}) {
	fmt.Fprintf(os.Stderr, "%s: %s\n", Z, fmt.Sprintf(f, v...))
	os.Exit(1)
}

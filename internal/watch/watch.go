// Copyright (C) 2020 Markus L. Noga
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.


// Package watch registers image files against a fixed reference as they appear in a directory.
package watch

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/mlnoga/coreg/internal/coreg"
	"github.com/mlnoga/coreg/internal/ops"
	"github.com/mlnoga/coreg/internal/raster"
)

// Default quiet period after the last event on a file before it is processed
const DefaultSettle = 500 * time.Millisecond

// Suffixes of the files written per registered image
const (
	AlignedSuffix = "_aligned.png"
	MatchesSuffix = "_matches.jpg"
)

// Returns the default configuration of a watcher. New images are warped into the frame of the reference
func NewConfigDefault() *coreg.Config {
	cfg:=coreg.NewConfigDefault()
	cfg.Direction=coreg.TargetToRef
	return cfg
}

// Called after each processed file, with the result or the error of its registration
type OnResult func(fileName string, res *coreg.Result, err error)

// Watches a directory and aligns every new image file in it with the reference
type Watcher struct {
	Ref       *raster.Image
	Dir       string
	OutDir    string          // Where outputs go. Defaults to Dir
	Config    *coreg.Config
	Settle    time.Duration   // Quiet period before a changed file is read
	OnResult  OnResult        // Optional
	ctx       *ops.Context
}

// Creates a watcher for dir, loading the reference image from refFile.
// A nil configuration selects NewConfigDefault()
func NewWatcher(c *ops.Context, refFile, dir string, cfg *coreg.Config) (*Watcher, error) {
	ref, err:=raster.ReadFile(refFile, 0)
	if err!=nil { return nil, err }
	if cfg==nil { cfg=NewConfigDefault() }
	if err:=cfg.Validate(); err!=nil { return nil, err }
	return &Watcher{
		Ref    : ref,
		Dir    : dir,
		OutDir : dir,
		Config : cfg,
		Settle : DefaultSettle,
		ctx    : c,
	}, nil
}

// Watches the directory until ctx is cancelled. Per-file failures are logged and reported
// through OnResult, they do not stop the watcher
func (w *Watcher) Run(ctx context.Context) error {
	log:=w.ctx.Writer()
	fw, err:=fsnotify.NewWatcher()
	if err!=nil { return err }
	defer fw.Close()
	if err:=fw.Add(w.Dir); err!=nil { return fmt.Errorf("error watching %s: %w", w.Dir, err) }
	fmt.Fprintf(log, "Watching directory %s for images to align with %s\n", w.Dir, w.Ref.FileName)

	settle:=w.Settle
	if settle<=0 { settle=DefaultSettle }
	ticker:=time.NewTicker(settle/2)
	defer ticker.Stop()
	pending:=map[string]time.Time{}

	for {
		select {
		case <-ctx.Done():
			fmt.Fprintf(log, "Stopped watching %s\n", w.Dir)
			return nil

		case event, ok:=<-fw.Events:
			if !ok { return nil }
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) { continue }
			if !w.wanted(event.Name) { continue }
			pending[event.Name]=time.Now().Add(settle)

		case err, ok:=<-fw.Errors:
			if !ok { return nil }
			fmt.Fprintf(log, "Filesystem watcher error: %s\n", err)

		case now:=<-ticker.C:
			for _, name:=range due(pending, now) {
				delete(pending, name)
				w.process(ctx, name)
				if ctx.Err()!=nil { break }
			}
		}
	}
}

// Returns the pending files whose quiet period has expired, in name order
func due(pending map[string]time.Time, now time.Time) []string {
	var names []string
	for name, deadline:=range pending {
		if !now.Before(deadline) { names=append(names, name) }
	}
	sort.Strings(names)
	return names
}

// True for readable images which are neither the reference nor outputs of the watcher
func (w *Watcher) wanted(fileName string) bool {
	if !raster.IsReadable(fileName) { return false }
	if strings.HasSuffix(fileName, AlignedSuffix) || strings.HasSuffix(fileName, MatchesSuffix) { return false }
	if abs, err:=filepath.Abs(fileName); err==nil {
		if refAbs, err:=filepath.Abs(w.Ref.FileName); err==nil && abs==refAbs { return false }
	}
	return true
}

// Returns the output paths for the given input file
func (w *Watcher) paths(fileName string) coreg.Paths {
	outDir:=w.OutDir
	if outDir=="" { outDir=w.Dir }
	base:=filepath.Base(fileName)
	base=strings.TrimSuffix(base, filepath.Ext(base))
	return coreg.Paths{
		Ref     : w.Ref.FileName,
		Target  : fileName,
		Aligned : filepath.Join(outDir, base+AlignedSuffix),
		Matches : filepath.Join(outDir, base+MatchesSuffix),
	}
}

func (w *Watcher) process(ctx context.Context, fileName string) {
	log:=w.ctx.Writer()
	res, err:=w.align(ctx, fileName)
	if err!=nil {
		fmt.Fprintf(log, "Error aligning %s (%s): %s\n", fileName, coreg.ErrorKind(err), err)
	}
	if w.OnResult!=nil { w.OnResult(fileName, res, err) }
}

func (w *Watcher) align(ctx context.Context, fileName string) (*coreg.Result, error) {
	target, err:=raster.ReadFile(fileName, 1)
	if err!=nil { return nil, err }
	res, err:=coreg.Register(ctx, w.ctx, w.Ref, target, w.Config)
	if err!=nil { return nil, err }
	return res, res.WriteFiles(w.ctx.Writer(), w.Ref, target, w.paths(fileName))
}

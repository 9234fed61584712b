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


package coreg

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/mlnoga/coreg/internal/ops"
	"github.com/mlnoga/coreg/internal/raster"
	"github.com/mlnoga/coreg/internal/viz"
)

// File locations of a registration run
type Paths struct {
	Ref      string  `json:"ref"`
	Target   string  `json:"target"`
	Aligned  string  `json:"aligned"`            // Output for the warped image
	Matches  string  `json:"matches"`            // Output for the match composite
	Plot     string  `json:"plot,omitempty"`     // Optional output for the distance histogram
}

// Returns default output paths next to the target, named after it
func DefaultPaths(ref, target string) Paths {
	base:=strings.TrimSuffix(target, filepath.Ext(target))
	return Paths{
		Ref     : ref,
		Target  : target,
		Aligned : base+"_aligned.png",
		Matches : base+"_matches.jpg",
	}
}

// Loads reference and target from files, registers them and writes the aligned image and
// the match composite. If writing fails, the result is still returned along with the WriteError
func RegisterFiles(ctx context.Context, c *ops.Context, cfg *Config, p Paths) (*Result, error) {
	log:=c.Writer()
	promises:=[]ops.Promise[*raster.Image]{
		func() (*raster.Image, error) { return raster.ReadFile(p.Ref, 0) },
		func() (*raster.Image, error) { return raster.ReadFile(p.Target, 1) },
	}
	imgs, err:=ops.MaterializeAll(promises, 2)
	if err!=nil { return nil, err }
	ref, target:=imgs[0], imgs[1]
	fmt.Fprintf(log, "Loaded reference %s %s and target %s %s\n", p.Ref, ref.DimensionsToString(), p.Target, target.DimensionsToString())

	res, err:=Register(ctx, c, ref, target, cfg)
	if err!=nil { return nil, err }
	return res, res.WriteFiles(log, ref, target, p)
}

// Writes the aligned image, the match composite of ref and target and the distance histogram
// to the output paths. Empty paths are skipped
func (res *Result) WriteFiles(log io.Writer, ref, target *raster.Image, p Paths) error {
	if p.Aligned!="" {
		if err:=res.Aligned.WriteFile(p.Aligned); err!=nil { return err }
		fmt.Fprintf(log, "Wrote aligned image to %s\n", p.Aligned)
	}
	if p.Matches!="" {
		composite:=viz.DrawMatches(ref, target, res.KeypointsRef, res.KeypointsTarget, res.Matches)
		if err:=raster.WriteImageFile(composite, p.Matches); err!=nil { return err }
		fmt.Fprintf(log, "Wrote match composite to %s\n", p.Matches)
	}
	if p.Plot!="" {
		if err:=viz.PlotDistances(res.Matches, p.Plot); err!=nil {
			return &raster.WriteError{FileName: p.Plot, Err: err}
		}
		fmt.Fprintf(log, "Wrote distance histogram to %s\n", p.Plot)
	}
	return nil
}

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


// Package coreg aligns a reference and a target image of the same scene: it extracts and matches
// binary features, robustly fits a homography to the best matches and warps one image onto the other.
package coreg

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mlnoga/coreg/internal/feature"
	"github.com/mlnoga/coreg/internal/homography"
	"github.com/mlnoga/coreg/internal/match"
	"github.com/mlnoga/coreg/internal/ops"
	"github.com/mlnoga/coreg/internal/raster"
)

// Returned when an image yields no keypoints, so no matching is possible
var ErrEmptyFeatureSet = errors.New("empty feature set")

// Outcome of a registration
type Result struct {
	KeypointsRef     []feature.Keypoint
	KeypointsTarget  []feature.Keypoint
	Matches          []match.Match      // Retained matches, best first. QueryIdx refers to the reference keypoints
	NumMatches       int                // Number of cross-checked matches before filtering
	H                homography.H       // Estimated homography in the configured direction
	Inliers          []bool             // Parallel to Matches
	NumInliers       int
	RMSE             float64            // Reprojection error over the inliers
	Aligned          *raster.Image      // The warped image
	Direction        Direction
}

// Registers target and reference with the given configuration. Stages run in order, with
// internal parallelism bounded by the context. Checks ctx for cancellation between stages
func Register(ctx context.Context, c *ops.Context, ref, target *raster.Image, cfg *Config) (*Result, error) {
	if cfg==nil { cfg=NewConfigDefault() }
	if err:=cfg.Validate(); err!=nil { return nil, err }
	log:=c.Writer()
	threads:=c.Threads()
	start:=time.Now()

	c.CheckMemory("registration", estimateBytes(ref, target))

	// grayscale conversion, optional denoising and feature extraction, both images concurrently
	fc:=cfg.Feature
	fc.Threads=threads
	orb, err:=feature.NewORB(fc)
	if err!=nil { return nil, err }
	type features struct {
		kps   []feature.Keypoint
		descs []feature.Descriptor
	}
	extract:=func(img *raster.Image) ops.Promise[features] {
		return func() (features, error) {
			gray:=img.Gray()
			if cfg.Denoise { gray=gray.Median3x3(threads) }
			kps, descs, err:=orb.Extract(gray, cfg.MaxFeatures)
			return features{kps, descs}, err
		}
	}
	fs, err:=ops.MaterializeAll([]ops.Promise[features]{extract(ref), extract(target)}, 2)
	if err!=nil { return nil, err }
	fRef, fTarget:=fs[0], fs[1]
	fmt.Fprintf(log, "Found %d keypoints in reference %s and %d in target %s\n", len(fRef.kps), name(ref), len(fTarget.kps), name(target))
	if len(fRef.kps)==0 {
		return nil, fmt.Errorf("%w: no keypoints in reference %s", ErrEmptyFeatureSet, name(ref))
	}
	if len(fTarget.kps)==0 {
		return nil, fmt.Errorf("%w: no keypoints in target %s", ErrEmptyFeatureSet, name(target))
	}
	if err:=ctx.Err(); err!=nil { return nil, err }

	// matching and filtering
	matcher:=&match.Matcher{CrossCheck: cfg.CrossCheck, MaxDistance: cfg.MaxDistance, Threads: threads}
	all:=matcher.Match(fRef.descs, fTarget.descs)
	matches, err:=match.FilterTopFraction(all, cfg.MatchRate)
	if err!=nil { return nil, err }
	fmt.Fprintf(log, "Kept %d of %d matches at rate %g\n", len(matches), len(all), cfg.MatchRate)
	if err:=ctx.Err(); err!=nil { return nil, err }

	// correspondences in the configured direction
	refPts, targetPts:=correspondences(fRef.kps, fTarget.kps, matches)
	src, dst:=refPts, targetPts
	if cfg.Direction==TargetToRef { src, dst=targetPts, refPts }

	params:=cfg.Ransac
	params.Threads=threads
	est, err:=params.Estimate(src, dst, homography.NewRNG(cfg.Seed))
	if err!=nil { return nil, err }
	fmt.Fprintf(log, "Computed homography matrix %v with %d of %d inliers after %d trials, RMSE %.3g\n",
	            est.H, est.NumInliers, len(src), est.Trials, est.RMSE)
	if err:=ctx.Err(); err!=nil { return nil, err }

	// warp the source image into the frame of the destination image
	inv, err:=est.H.Invert()
	if err!=nil { return nil, err }
	from, to:=ref, target
	if cfg.Direction==TargetToRef { from, to=target, ref }
	aligned:=from.Warp(inv, to.Width, to.Height, raster.WarpOptions{
		Interpolation : cfg.Interpolation,
		Background    : cfg.Background,
		Threads       : threads,
	})
	fmt.Fprintf(log, "Warped %s into %dx%d frame in %s\n", name(from), to.Width, to.Height, time.Since(start))

	return &Result{
		KeypointsRef    : fRef.kps,
		KeypointsTarget : fTarget.kps,
		Matches         : matches,
		NumMatches      : len(all),
		H               : est.H,
		Inliers         : est.Inliers,
		NumInliers      : est.NumInliers,
		RMSE            : est.RMSE,
		Aligned         : aligned,
		Direction       : cfg.Direction,
	}, nil
}

// Returns the keypoint locations of the matches, reference first
func correspondences(kpsRef, kpsTarget []feature.Keypoint, matches []match.Match) (ref, target []homography.Point) {
	ref   =make([]homography.Point, len(matches))
	target=make([]homography.Point, len(matches))
	for i, m:=range matches {
		r, t:=kpsRef[m.QueryIdx], kpsTarget[m.TrainIdx]
		ref[i]   =homography.Point{X: float64(r.X), Y: float64(r.Y)}
		target[i]=homography.Point{X: float64(t.X), Y: float64(t.Y)}
	}
	return ref, target
}

// Rough working set of a registration: inputs, gray copies, pyramids with blur buffers, and the output
func estimateBytes(ref, target *raster.Image) int64 {
	var sum int64
	for _, img:=range []*raster.Image{ref, target} {
		px:=int64(img.Pixels())
		sum+=px*int64(img.Channels)*4*2  // input and warp output
		sum+=px*4*4                      // gray, 8 bit levels and blur buffers
	}
	return sum
}

func name(img *raster.Image) string {
	if img.FileName!="" { return img.FileName }
	return fmt.Sprintf("#%d", img.ID)
}

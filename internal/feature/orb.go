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


package feature

import (
	"fmt"
	"image"
	"math"

	"github.com/mlnoga/coreg/internal/ops"
	"github.com/mlnoga/coreg/internal/raster"
)

// ORB-like extractor: FAST-9 corners ranked by Harris response on a scale pyramid,
// oriented by intensity centroid and described by steered binary tests
type ORB struct {
	Config
	umax    []int
	pattern []pairTest
	border  int
}

// Creates an extractor with the given configuration
func NewORB(c Config) (*ORB, error) {
	if err:=c.Validate(); err!=nil { return nil, err }
	half:=c.PatchSize/2
	border:=c.EdgeThreshold
	if b:=int(math.Ceil(float64(half-2)*math.Sqrt2))+1; border<b { border=b }
	if border<half+1 { border=half+1 }
	if border<harrisBlockSize/2+2 { border=harrisBlockSize/2+2 }
	return &ORB{
		Config  : c,
		umax    : computeUmax(half),
		pattern : newPattern(DescriptorBits, c.PatchSize),
		border  : border,
	}, nil
}

// Keypoints and descriptors of one level
type levelResult struct {
	kps   []Keypoint
	descs []Descriptor
}

// Extracts up to maxFeatures keypoints with descriptors from a single channel image.
// Keypoints are returned strongest first. Deterministic for a given image and configuration
func (o *ORB) Extract(img *raster.Image, maxFeatures int) ([]Keypoint, []Descriptor, error) {
	if maxFeatures<=0 { return nil, nil, fmt.Errorf("maxFeatures %d must be positive", maxFeatures) }
	if img==nil || img.Empty() { return []Keypoint{}, []Descriptor{}, nil }
	if img.Channels!=1 { return nil, nil, ErrNotGray }

	base:=image.NewGray(image.Rect(0, 0, img.Width, img.Height))
	copy(base.Pix, img.ToUint8(0))
	levels:=buildPyramid(base, o.Levels, o.ScaleFactor, o.border)
	quotas:=featuresPerLevel(maxFeatures, o.Levels, o.ScaleFactor)

	promises:=make([]ops.Promise[levelResult], len(levels))
	for i, l:=range levels {
		l, quota:=l, quotas[i]
		promises[i]=func() (levelResult, error) { return o.extractLevel(l, quota), nil }
	}
	results, err:=ops.MaterializeAll(promises, o.Threads)
	if err!=nil { return nil, nil, err }

	// merge levels, rank globally and keep the strongest
	type pair struct {
		kp   Keypoint
		desc Descriptor
	}
	var all []pair
	for _, r:=range results {
		for i:=range r.kps {
			all=append(all, pair{r.kps[i], r.descs[i]})
		}
	}
	qsort(all, func(a, b *pair) bool { return keypointBefore(&a.kp, &b.kp) })
	if len(all)>maxFeatures { all=all[:maxFeatures] }

	kps:=make([]Keypoint, len(all))
	descs:=make([]Descriptor, len(all))
	for i, p:=range all {
		kps[i], descs[i] = p.kp, p.desc
	}
	return kps, descs, nil
}

// Detects, scores, orients and describes the keypoints of one pyramid level
func (o *ORB) extractLevel(l *level, quota int) (res levelResult) {
	if quota<=0 { return res }
	width, height:=l.width(), l.height()
	pix:=l.img.Pix

	cands:=detectFAST(pix, width, height, o.border, o.FastThreshold)
	if len(cands)==0 { return res }

	// pre-select by FAST score, then rank by Harris response
	qsort(cands, candidateScoreBefore)
	if len(cands)>2*quota { cands=cands[:2*quota] }
	kept:=cands[:0]
	for _, c:=range cands {
		c.response=harrisResponse(pix, width, c.x, c.y, o.HarrisK)
		if c.response>o.MinResponse {
			kept=append(kept, c)
		}
	}
	if len(kept)==0 { return res }
	qsort(kept, candidateResponseBefore)
	if len(kept)>quota { kept=kept[:quota] }

	blurred:=GaussFilter2D(pix, width, o.BlurSigma)
	res.kps  =make([]Keypoint,   len(kept))
	res.descs=make([]Descriptor, len(kept))
	for i, c:=range kept {
		angle:=orientation(pix, width, c.x, c.y, o.umax)
		res.kps[i]=Keypoint{
			X        : float32(c.x)*l.scale,
			Y        : float32(c.y)*l.scale,
			Response : c.response,
			Angle    : angle,
			Octave   : l.index,
			Size     : float32(o.PatchSize)*l.scale,
		}
		res.descs[i]=describe(blurred, width, c.x, c.y, angle, o.pattern)
	}
	return res
}

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


package homography

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/mlnoga/coreg/internal/ops"
	"github.com/valyala/fastrand"
)

// A seedable source of uniformly distributed random integers in [0,n).
// *fastrand.RNG satisfies it. Not used concurrently
type Source interface {
	Uint32n(n uint32) uint32
}

// Seed used in place of 0, which would make fastrand pick a random seed
const DefaultSeed = 0x5eed

// Returns a random source with the given seed. The same seed yields the same sequence
func NewRNG(seed uint32) *fastrand.RNG {
	if seed==0 { seed=DefaultSeed }
	rng:=&fastrand.RNG{}
	rng.Seed(seed)
	return rng
}

// Parameters of the robust estimation
type Params struct {
	Threshold   float64  `json:"threshold"`   // Maximum reprojection error of an inlier in pixels
	MaxIters    int      `json:"maxIters"`    // Upper bound on the number of random trials
	Confidence  float64  `json:"confidence"`  // Desired probability of drawing at least one outlier-free sample
	MinInliers  int      `json:"minInliers"`  // Minimum support of an acceptable model
	Refine      bool     `json:"refine"`      // Polish the least squares fit by minimizing the reprojection error
	Threads     int      `json:"-"`
}

// Returns the default parameters
func NewParamsDefault() *Params {
	return &Params{
		Threshold  : 3.0,
		MaxIters   : 2000,
		Confidence : 0.995,
		MinInliers : 4,
		Refine     : true,
	}
}

// Unmarshals from JSON, filling in defaults for missing keys
func (p *Params) UnmarshalJSON(data []byte) error {
	type defaults Params
	def:=defaults(*NewParamsDefault())
	err:=json.Unmarshal(data, &def)
	if err!=nil { return err }
	*p=Params(def)
	return nil
}

// Checks the parameters for consistency
func (p *Params) Validate() error {
	if !(p.Threshold>0)                        { return fmt.Errorf("threshold %g must be positive", p.Threshold) }
	if p.MaxIters<1                            { return fmt.Errorf("max iterations %d must be positive", p.MaxIters) }
	if !(p.Confidence>0 && p.Confidence<1)     { return fmt.Errorf("confidence %g must be in (0,1)", p.Confidence) }
	if p.MinInliers<4                          { return fmt.Errorf("minimum inliers %d must be at least 4", p.MinInliers) }
	return nil
}

// Outcome of a robust estimation
type Result struct {
	H          H        // Mapping from source to destination points
	Inliers    []bool   // Parallel to the input, true where the final model reprojects within the threshold
	NumInliers int
	Trials     int      // Number of random samples evaluated
	RMSE       float64  // Root mean square reprojection error over the inliers
}

// Samples per batch. Batches are drawn sequentially and evaluated in parallel
const batchSize = 64

// Maximum draws for finding a non-degenerate sample, per trial
const maxSampleAttempts = 1000

// Score of one trial
type trial struct {
	valid bool
	h     H
	count int
	sse   float64   // summed squared error of the inliers
}

// True if a is strictly better than b: more inliers, then lower inlier error.
// Evaluated in trial order, so among equals the earliest trial wins
func (a *trial) betterThan(b *trial) bool {
	if !a.valid { return false }
	if !b.valid { return true }
	if a.count!=b.count { return a.count>b.count }
	return a.sse<b.sse
}

// Estimates the homography mapping src to dst with random sample consensus.
// The result depends only on the inputs, the parameters and the sequence of rnd, not on the thread count
func (p *Params) Estimate(src, dst []Point, rnd Source) (*Result, error) {
	if len(src)!=len(dst) { return nil, fmt.Errorf("%w: point count mismatch %d vs %d", ErrInsufficientCorrespondences, len(src), len(dst)) }
	if len(src)<4 { return nil, fmt.Errorf("%w: got %d", ErrInsufficientCorrespondences, len(src)) }
	if err:=p.Validate(); err!=nil { return nil, err }
	if rnd==nil { rnd=NewRNG(DefaultSeed) }

	n:=len(src)
	thresh2:=p.Threshold*p.Threshold
	best:=trial{}
	niters:=p.MaxIters
	trials:=0
	samples:=make([][4]int, 0, batchSize)
	scores:=make([]trial, batchSize)

	for trials<niters {
		// draw the batch sequentially from the random source
		samples=samples[:0]
		exhausted:=false
		for len(samples)<batchSize && trials+len(samples)<niters {
			s, ok:=drawSample(src, dst, rnd)
			if !ok {
				exhausted=true
				break
			}
			samples=append(samples, s)
		}

		// evaluate the batch in parallel, each trial writing its own slot
		ops.ParallelFor(len(samples), 1, p.Threads, func(lo, hi int) {
			for i:=lo; i<hi; i++ {
				scores[i]=evaluateSample(src, dst, samples[i], thresh2)
			}
		})

		// reduce in trial order
		improved:=false
		for i:=range samples {
			if scores[i].betterThan(&best) {
				best=scores[i]
				improved=true
			}
		}
		trials+=len(samples)
		if improved {
			niters=updateNumIters(p.Confidence, float64(n-best.count)/float64(n), p.MaxIters)
		}
		if exhausted || len(samples)==0 { break }
	}

	if !best.valid || best.count<p.MinInliers {
		return nil, fmt.Errorf("%w: best support %d of %d after %d trials", ErrDegenerateModel, best.count, n, trials)
	}

	// least squares refit over all inliers of the best trial
	h, err:=refit(src, dst, best.h, thresh2)
	if err!=nil { return nil, err }
	if p.Refine {
		h=polish(src, dst, h, thresh2)
	}

	res:=&Result{H: h, Inliers: make([]bool, n), Trials: trials}
	sse:=0.0
	for i:=range src {
		if e:=h.errSquared(src[i], dst[i]); e<thresh2 {
			res.Inliers[i]=true
			res.NumInliers++
			sse+=e
		}
	}
	if res.NumInliers<p.MinInliers {
		return nil, fmt.Errorf("%w: refined model supports only %d of %d", ErrDegenerateModel, res.NumInliers, n)
	}
	res.RMSE=math.Sqrt(sse/float64(res.NumInliers))
	return res, nil
}

// Draws four distinct indices whose points are in general position in both images
func drawSample(src, dst []Point, rnd Source) (s [4]int, ok bool) {
	n:=uint32(len(src))
	var ps, pd [4]Point
	for attempt:=0; attempt<maxSampleAttempts; attempt++ {
		for i:=0; i<4; i++ {
			for {
				s[i]=int(rnd.Uint32n(n))
				dup:=false
				for j:=0; j<i; j++ {
					if s[j]==s[i] { dup=true; break }
				}
				if !dup { break }
			}
			ps[i], pd[i] = src[s[i]], dst[s[i]]
		}
		if !hasCollinearTriple(&ps) && !hasCollinearTriple(&pd) {
			return s, true
		}
	}
	return s, false
}

// Fits the minimal sample and scores it on the full set
func evaluateSample(src, dst []Point, s [4]int, thresh2 float64) (t trial) {
	var ss, sd [4]Point
	for i, idx:=range s {
		ss[i], sd[i] = src[idx], dst[idx]
	}
	h, err:=FitDLT(ss[:], sd[:])
	if err!=nil { return t }
	t.valid, t.h = true, h
	for i:=range src {
		if e:=h.errSquared(src[i], dst[i]); e<thresh2 {
			t.count++
			t.sse+=e
		}
	}
	return t
}

// Refits with least squares over the inliers of h
func refit(src, dst []Point, h H, thresh2 float64) (H, error) {
	var is, id []Point
	for i:=range src {
		if h.errSquared(src[i], dst[i])<thresh2 {
			is=append(is, src[i])
			id=append(id, dst[i])
		}
	}
	if len(is)<4 { return H{}, fmt.Errorf("%w: %d inliers for refit", ErrDegenerateModel, len(is)) }
	res, err:=FitDLT(is, id)
	if err!=nil { return H{}, err }
	return res, nil
}

// Returns the number of trials needed to draw an outlier-free sample of 4 with the given confidence,
// for the given outlier ratio, capped at maxIters
func updateNumIters(confidence, outlierRatio float64, maxIters int) int {
	num:=math.Max(1-confidence, math.SmallestNonzeroFloat64)
	denom:=1-math.Pow(1-outlierRatio, 4)
	if denom<math.SmallestNonzeroFloat64 { return 0 }
	num, denom=math.Log(num), math.Log(denom)
	if denom>=0 || -num>=float64(maxIters)*(-denom) { return maxIters }
	return int(math.Round(num/denom))
}

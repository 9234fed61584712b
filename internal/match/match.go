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


// Package match pairs binary descriptors of two images by Hamming distance
// and ranks the resulting matches.
package match

import (
	"fmt"
	"math/bits"
	"sort"

	"github.com/mlnoga/coreg/internal/feature"
	"github.com/mlnoga/coreg/internal/ops"
)

// A correspondence between descriptor QueryIdx of the first set and TrainIdx of the second.
// Lower distance is better
type Match struct {
	QueryIdx int
	TrainIdx int
	Distance int
}

// Returns the number of differing bits between two descriptors
func Hamming(a, b *feature.Descriptor) int {
	d:=0
	for i:=range a {
		d+=bits.OnesCount64(a[i]^b[i])
	}
	return d
}

// Brute force descriptor matcher
type Matcher struct {
	CrossCheck  bool  `json:"crossCheck"`   // Keep only mutual nearest neighbors
	MaxDistance int   `json:"maxDistance"`  // Drop matches at or above this distance, 0=off
	Threads     int   `json:"-"`
}

// Returns a matcher with cross-check enabled and no distance limit
func NewMatcherDefault() *Matcher {
	return &Matcher{CrossCheck: true}
}

// Rows per parallel work unit
const matchChunk = 64

// For each descriptor in from, returns the index of its nearest neighbor in to,
// resolving equal distances in favor of the lowest index, and the distance
func nearest(from, to []feature.Descriptor, threads int) (idx, dist []int) {
	idx =make([]int, len(from))
	dist=make([]int, len(from))
	ops.ParallelFor(len(from), matchChunk, threads, func(lo, hi int) {
		for i:=lo; i<hi; i++ {
			best, bestD:=-1, feature.DescriptorBits+1
			for j:=range to {
				if d:=Hamming(&from[i], &to[j]); d<bestD {
					best, bestD = j, d
				}
			}
			idx[i], dist[i] = best, bestD
		}
	})
	return idx, dist
}

// Matches each descriptor of a with its nearest neighbor in b. With cross-check, a pair (i,j) is kept
// only if i is also the nearest neighbor of b[j] in a. Results are ordered by query index and
// are the same for any thread count. Returns an empty slice if either input is empty
func (m *Matcher) Match(a, b []feature.Descriptor) []Match {
	if len(a)==0 || len(b)==0 { return []Match{} }
	fwd, dist:=nearest(a, b, m.Threads)
	var bwd []int
	if m.CrossCheck {
		bwd, _=nearest(b, a, m.Threads)
	}

	res:=make([]Match, 0, len(a))
	for i, j:=range fwd {
		if m.CrossCheck && bwd[j]!=i { continue }
		if m.MaxDistance>0 && dist[i]>=m.MaxDistance { continue }
		res=append(res, Match{QueryIdx: i, TrainIdx: j, Distance: dist[i]})
	}
	return res
}

// Returns the best fraction of the matches: a stable ascending sort by distance, truncated to
// floor(len*rate) entries. The input is not modified. rate must be in (0,1]
func FilterTopFraction(matches []Match, rate float64) ([]Match, error) {
	if !(rate>0 && rate<=1) { return nil, fmt.Errorf("match rate %g must be in (0,1]", rate) }
	sorted:=append([]Match(nil), matches...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Distance<sorted[j].Distance })
	keep:=int(float64(len(sorted))*rate)
	return sorted[:keep], nil
}

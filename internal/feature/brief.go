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
	"math"

	"github.com/valyala/fastrand"
)

// Computes the half-widths of the rows of a circular patch of the given radius,
// symmetric under transposition so the patch looks the same at any rotation
func computeUmax(half int) []int {
	umax:=make([]int, half+2)
	vmax:=int(math.Floor(float64(half)*math.Sqrt2/2+1))
	vmin:=int(math.Ceil(float64(half)*math.Sqrt2/2))
	hp2:=float64(half*half)
	for v:=0; v<=vmax && v<=half; v++ {
		umax[v]=int(math.Round(math.Sqrt(hp2-float64(v*v))))
	}
	// make sure we are symmetric
	for v, v0:=half, 0; v>=vmin; v-- {
		for umax[v0]==umax[v0+1] { v0++ }
		umax[v]=v0
		v0++
	}
	return umax[:half+1]
}

// Returns the intensity centroid angle of the circular patch around x, y in radians
func orientation(pix []uint8, width, x, y int, umax []int) float32 {
	half:=len(umax)-1
	center:=y*width+x
	m01, m10:=0, 0

	// center line
	for u:=-half; u<=half; u++ {
		m10+=u*int(pix[center+u])
	}
	// symmetric pairs of lines above and below
	for v:=1; v<=half; v++ {
		vsum:=0
		d:=umax[v]
		for u:=-d; u<=d; u++ {
			plus, minus:=int(pix[center+u+v*width]), int(pix[center+u-v*width])
			vsum+=plus-minus
			m10+=u*(plus+minus)
		}
		m01+=v*vsum
	}
	return float32(math.Atan2(float64(m01), float64(m10)))
}


// A binary test comparing the intensities at two patch offsets
type pairTest struct {
	x1, y1, x2, y2 float32
}

// Seed for the sampling pattern. Fixed so descriptors are comparable across runs and images
const patternSeed = 0x6f7262

// Generates the steered BRIEF sampling pattern: n pairs of offsets drawn from an isotropic
// gaussian with sigma patchSize/5, clipped to the patch and rounded to whole pixels
func newPattern(n, patchSize int) []pairTest {
	rng:=fastrand.RNG{}
	rng.Seed(patternSeed)
	half:=patchSize/2
	bound:=float64(half-2)
	sigma:=float64(patchSize)/5

	// Box-Muller on two uniforms in (0,1]
	uniform:=func() float64 { return (float64(rng.Uint32())+1)/(float64(math.MaxUint32)+1) }
	sample:=func() float32 {
		g:=math.Sqrt(-2*math.Log(uniform()))*math.Cos(2*math.Pi*uniform())*sigma
		if g< -bound { g=-bound }
		if g>  bound { g= bound }
		return float32(math.Round(g))
	}

	res:=make([]pairTest, 0, n)
	for len(res)<n {
		p:=pairTest{sample(), sample(), sample(), sample()}
		if p.x1==p.x2 && p.y1==p.y2 { continue }
		res=append(res, p)
	}
	return res
}

// Computes the rotated binary descriptor of the keypoint at x, y with the given angle
// from the blurred level image
func describe(blurred []float32, width, x, y int, angle float32, pattern []pairTest) (d Descriptor) {
	sin, cos:=math.Sincos(float64(angle))
	a, b:=float32(cos), float32(sin)
	center:=y*width+x
	at:=func(px, py float32) float32 {
		rx:=int(math.Round(float64(a*px - b*py)))
		ry:=int(math.Round(float64(b*px + a*py)))
		return blurred[center+ry*width+rx]
	}
	for i, p:=range pattern {
		if at(p.x1, p.y1)<at(p.x2, p.y2) {
			d.Set(i)
		}
	}
	return d
}

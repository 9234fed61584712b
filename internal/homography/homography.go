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
	"errors"
	"fmt"
	"math"
)

// A 2D point in pixel coordinates
type Point struct {
	X, Y float64
}

// A planar projective transformation as row-major 3x3 matrix.
// Maps (x,y) to ((h0*x+h1*y+h2)/w, (h3*x+h4*y+h5)/w) with w=h6*x+h7*y+h8
type H [9]float64

var ErrInsufficientCorrespondences = errors.New("insufficient correspondences, need at least 4")
var ErrDegenerateModel             = errors.New("no consistent model found")

// Tolerance below which a homogeneous weight or determinant counts as zero
const degenerateEpsilon = 1e-12

// Returns the identity transformation
func Identity() H { return H{1, 0, 0, 0, 1, 0, 0, 0, 1} }

// Returns a translation by dx, dy
func Translation(dx, dy float64) H { return H{1, 0, dx, 0, 1, dy, 0, 0, 1} }

// Applies the transformation to a point. Returns false if the point maps to infinity
func (h *H) Apply(p Point) (Point, bool) {
	w:=h[6]*p.X + h[7]*p.Y + h[8]
	if math.Abs(w)<degenerateEpsilon { return Point{}, false }
	return Point{
		X: (h[0]*p.X + h[1]*p.Y + h[2])/w,
		Y: (h[3]*p.X + h[4]*p.Y + h[5])/w,
	}, true
}

// Mapping for resampling. Points behind the camera, with non-positive weight, have no preimage
func (h H) Map(x, y float64) (float64, float64, bool) {
	w:=h[6]*x + h[7]*y + h[8]
	if !(w>degenerateEpsilon) { return 0, 0, false }
	return (h[0]*x + h[1]*y + h[2])/w, (h[3]*x + h[4]*y + h[5])/w, true
}

// Returns the determinant
func (h *H) Det() float64 {
	return h[0]*(h[4]*h[8]-h[5]*h[7]) - h[1]*(h[3]*h[8]-h[5]*h[6]) + h[2]*(h[3]*h[7]-h[4]*h[6])
}

// Returns the matrix product h*o, which applies o first
func (h *H) Mul(o H) (res H) {
	for r:=0; r<3; r++ {
		for c:=0; c<3; c++ {
			res[r*3+c]=h[r*3]*o[c] + h[r*3+1]*o[3+c] + h[r*3+2]*o[6+c]
		}
	}
	return res
}

// Scales the matrix so the bottom right entry is 1. Fails if that entry or the determinant is near zero
func (h *H) Normalize() (H, error) {
	scale:=math.Max(math.Abs(h[0]), math.Max(math.Abs(h[4]), 1))
	if math.Abs(h[8])<1e-10*scale || math.IsNaN(h[8]) {
		return H{}, fmt.Errorf("%w: bottom right entry %g is near zero", ErrDegenerateModel, h[8])
	}
	var res H
	for i:=range h { res[i]=h[i]/h[8] }
	if det:=res.Det(); math.Abs(det)<degenerateEpsilon || math.IsNaN(det) || math.IsInf(det, 0) {
		return H{}, fmt.Errorf("%w: determinant %g", ErrDegenerateModel, det)
	}
	return res, nil
}

// Returns the inverse transformation, normalized. Fails for singular matrices
func (h *H) Invert() (H, error) {
	det:=h.Det()
	if math.Abs(det)<degenerateEpsilon { return H{}, fmt.Errorf("%w: singular matrix", ErrDegenerateModel) }
	adj:=H{
		h[4]*h[8]-h[5]*h[7], h[2]*h[7]-h[1]*h[8], h[1]*h[5]-h[2]*h[4],
		h[5]*h[6]-h[3]*h[8], h[0]*h[8]-h[2]*h[6], h[2]*h[3]-h[0]*h[5],
		h[3]*h[7]-h[4]*h[6], h[1]*h[6]-h[0]*h[7], h[0]*h[4]-h[1]*h[3],
	}
	for i:=range adj { adj[i]/=det }
	return adj.Normalize()
}

// Returns the maximum absolute elementwise difference
func (h *H) MaxDiff(o H) float64 {
	m:=0.0
	for i:=range h {
		if d:=math.Abs(h[i]-o[i]); d>m || math.IsNaN(d) { m=d }
	}
	return m
}

func (h H) String() string {
	return fmt.Sprintf("[[%.6g %.6g %.6g] [%.6g %.6g %.6g] [%.6g %.6g %.6g]]",
		h[0], h[1], h[2], h[3], h[4], h[5], h[6], h[7], h[8])
}

// Squared reprojection error of a correspondence. Infinite if src maps to infinity
func (h *H) errSquared(src, dst Point) float64 {
	p, ok:=h.Apply(src)
	if !ok { return math.Inf(1) }
	dx, dy:=p.X-dst.X, p.Y-dst.Y
	return dx*dx + dy*dy
}

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
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Similarity transform moving the centroid of the points to the origin
// and their mean distance from it to sqrt(2)
type conditioner struct {
	scale, mx, my float64
}

func newConditioner(pts []Point) (c conditioner, ok bool) {
	n:=float64(len(pts))
	for _, p:=range pts {
		c.mx+=p.X
		c.my+=p.Y
	}
	c.mx/=n
	c.my/=n
	d:=0.0
	for _, p:=range pts {
		d+=math.Hypot(p.X-c.mx, p.Y-c.my)
	}
	d/=n
	if !(d>degenerateEpsilon) { return c, false }
	c.scale=math.Sqrt2/d
	return c, true
}

func (c conditioner) apply(p Point) Point {
	return Point{c.scale*(p.X-c.mx), c.scale*(p.Y-c.my)}
}

// The conditioning as matrix
func (c conditioner) matrix() H {
	return H{c.scale, 0, -c.scale*c.mx, 0, c.scale, -c.scale*c.my, 0, 0, 1}
}

// The inverse conditioning as matrix
func (c conditioner) inverse() H {
	return H{1/c.scale, 0, c.mx, 0, 1/c.scale, c.my, 0, 0, 1}
}

// Fits a homography mapping src to dst with the normalized direct linear transform.
// Exact for 4 pairs in general position, least squares in the algebraic error for more.
// The result is normalized so its bottom right entry is 1
func FitDLT(src, dst []Point) (H, error) {
	if len(src)!=len(dst) { return H{}, fmt.Errorf("point count mismatch %d vs %d", len(src), len(dst)) }
	if len(src)<4 { return H{}, ErrInsufficientCorrespondences }

	cs, ok1:=newConditioner(src)
	cd, ok2:=newConditioner(dst)
	if !ok1 || !ok2 { return H{}, fmt.Errorf("%w: coincident points", ErrDegenerateModel) }

	// two rows per correspondence in the homogeneous system A*h=0
	n:=len(src)
	a:=mat.NewDense(2*n, 9, nil)
	for i:=range src {
		s, d:=cs.apply(src[i]), cd.apply(dst[i])
		a.SetRow(2*i,   []float64{-s.X, -s.Y, -1, 0, 0, 0, d.X*s.X, d.X*s.Y, d.X})
		a.SetRow(2*i+1, []float64{0, 0, 0, -s.X, -s.Y, -1, d.Y*s.X, d.Y*s.Y, d.Y})
	}

	// solution is the right singular vector of the smallest singular value
	var svd mat.SVD
	if ok:=svd.Factorize(a, mat.SVDFullV); !ok {
		return H{}, fmt.Errorf("%w: SVD did not converge", ErrDegenerateModel)
	}
	var v mat.Dense
	svd.VTo(&v)
	var hn H
	for i:=0; i<9; i++ {
		hn[i]=v.At(i, 8)
	}

	// undo the conditioning
	inv:=cd.inverse()
	h:=inv.Mul(hn)
	h=h.Mul(cs.matrix())
	return h.Normalize()
}

// Minimum sine of the angle between two sides of a sample triangle
const collinearEpsilon = 1e-3

// True if any three of the four points are collinear, or two coincide
func hasCollinearTriple(p *[4]Point) bool {
	for i:=0; i<4; i++ {
		for j:=i+1; j<4; j++ {
			for k:=j+1; k<4; k++ {
				dx1, dy1:=p[j].X-p[i].X, p[j].Y-p[i].Y
				dx2, dy2:=p[k].X-p[i].X, p[k].Y-p[i].Y
				cross:=math.Abs(dx1*dy2 - dy1*dx2)
				if cross<=collinearEpsilon*math.Hypot(dx1, dy1)*math.Hypot(dx2, dy2) {
					return true
				}
			}
		}
	}
	return false
}

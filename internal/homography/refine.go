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
	"math"

	"gonum.org/v1/gonum/optimize"
)

// Residual below which polishing is skipped
const polishMinRMSE = 1e-9

// Polishes h by minimizing the geometric reprojection error over its inliers with Nelder-Mead.
// Works in conditioned coordinates so all eight parameters have similar scale.
// Returns h unchanged if the optimizer fails or does not improve the error
func polish(src, dst []Point, h H, thresh2 float64) H {
	var is, id []Point
	for i:=range src {
		if h.errSquared(src[i], dst[i])<thresh2 {
			is=append(is, src[i])
			id=append(id, dst[i])
		}
	}
	if len(is)<5 { return h }   // 4 points are fit exactly already

	cost:=func(m H) float64 {
		sum:=0.0
		for i:=range is {
			sum+=m.errSquared(is[i], id[i])
		}
		return sum/float64(len(is))
	}
	f0:=cost(h)
	if math.Sqrt(f0)<polishMinRMSE { return h }

	cs, ok1:=newConditioner(is)
	cd, ok2:=newConditioner(id)
	if !ok1 || !ok2 { return h }

	// hn = Td * h * Ts^-1, scaled to unit bottom right entry
	inv:=cs.inverse()
	td:=cd.matrix()
	hn:=td.Mul(h)
	hn=hn.Mul(inv)
	hn, err:=hn.Normalize()
	if err!=nil { return h }

	denorm:=func(x []float64) H {
		m:=H{x[0], x[1], x[2], x[3], x[4], x[5], x[6], x[7], 1}
		back:=cd.inverse()
		m=back.Mul(m)
		return m.Mul(cs.matrix())
	}
	problem:=optimize.Problem{
		Func: func(x []float64) float64 {
			return cost(denorm(x))
		},
	}
	result, err:=optimize.Minimize(problem, hn[:8], nil, &optimize.NelderMead{})
	if err!=nil || result==nil || !(result.F<f0) { return h }

	polished:=denorm(result.X)
	res, err:=polished.Normalize()
	if err!=nil { return h }
	return res
}

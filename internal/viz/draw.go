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


// Package viz renders diagnostic artifacts of a registration run.
package viz

import (
	"image"
	"image/color"
	"math"

	colorful "github.com/lucasb-eyer/go-colorful"
	"golang.org/x/image/draw"
	"golang.org/x/image/vector"

	"github.com/mlnoga/coreg/internal/feature"
	"github.com/mlnoga/coreg/internal/match"
	"github.com/mlnoga/coreg/internal/raster"
)

// Appearance of the match composite
const (
	CircleRadius  = 4
	LineWidth     = 1.5
	circleSegments= 24
)

// Hue step between consecutive matches, the golden angle, so neighboring colors differ strongly
const goldenRatioConjugate = 0.618033988749895

// Returns the color of the i-th match
func MatchColor(i int) color.RGBA {
	_, hue:=math.Modf(float64(i)*goldenRatioConjugate)
	c:=colorful.Hsv(hue*360, 0.85, 1).Clamped()
	r, g, b:=c.RGB255()
	return color.RGBA{r, g, b, 255}
}

// Renders both images side by side, A left and B right, with a circle around every matched
// keypoint and a line connecting each pair
func DrawMatches(a, b *raster.Image, kpsA, kpsB []feature.Keypoint, matches []match.Match) *image.RGBA {
	height:=a.Height
	if b.Height>height { height=b.Height }
	res:=image.NewRGBA(image.Rect(0, 0, a.Width+b.Width, height))
	draw.Draw(res, res.Rect, image.Black, image.Point{}, draw.Src)
	draw.Draw(res, image.Rect(0, 0, a.Width, a.Height), a.ToImage8(), image.Point{}, draw.Src)
	draw.Draw(res, image.Rect(a.Width, 0, a.Width+b.Width, b.Height), b.ToImage8(), image.Point{}, draw.Src)

	offset:=float32(a.Width)
	for i, m:=range matches {
		if m.QueryIdx<0 || m.QueryIdx>=len(kpsA) || m.TrainIdx<0 || m.TrainIdx>=len(kpsB) { continue }
		src:=image.NewUniform(MatchColor(i))
		pa, pb:=kpsA[m.QueryIdx], kpsB[m.TrainIdx]
		ax, ay:=pa.X, pa.Y
		bx, by:=pb.X+offset, pb.Y
		drawRing(res, src, ax, ay, CircleRadius)
		drawRing(res, src, bx, by, CircleRadius)
		drawLine(res, src, ax, ay, bx, by, LineWidth)
	}
	return res
}

// A polygon path in image coordinates
type polygon [][2]float32

// Rasterizes the polygons with anti-aliasing into dst. Only the bounding box is rasterized.
// Overlapping polygons of opposite orientation cancel, which makes holes
func fill(dst *image.RGBA, src image.Image, polys ...polygon) {
	minX, minY:=float32(math.Inf(1)), float32(math.Inf(1))
	maxX, maxY:=float32(math.Inf(-1)), float32(math.Inf(-1))
	for _, p:=range polys {
		for _, v:=range p {
			minX, minY=min32(minX, v[0]), min32(minY, v[1])
			maxX, maxY=max32(maxX, v[0]), max32(maxY, v[1])
		}
	}
	box:=image.Rect(int(math.Floor(float64(minX))), int(math.Floor(float64(minY))),
	                int(math.Ceil(float64(maxX)))+1, int(math.Ceil(float64(maxY)))+1).Intersect(dst.Rect)
	if box.Empty() { return }

	w, h:=float32(box.Dx()), float32(box.Dy())
	z:=vector.NewRasterizer(box.Dx(), box.Dy())
	for _, p:=range polys {
		for i, v:=range p {
			x:=clamp32(v[0]-float32(box.Min.X), 0, w)
			y:=clamp32(v[1]-float32(box.Min.Y), 0, h)
			if i==0 { z.MoveTo(x, y) } else { z.LineTo(x, y) }
		}
		z.ClosePath()
	}
	z.Draw(dst, box, src, image.Point{})
}

// Draws a line of the given width
func drawLine(dst *image.RGBA, src image.Image, x0, y0, x1, y1, width float32) {
	dx, dy:=x1-x0, y1-y0
	l:=float32(math.Hypot(float64(dx), float64(dy)))
	if l==0 { return }
	nx, ny:=-dy/l*width/2, dx/l*width/2
	fill(dst, src, polygon{{x0+nx, y0+ny}, {x1+nx, y1+ny}, {x1-nx, y1-ny}, {x0-nx, y0-ny}})
}

// Draws a circle outline of the given radius and the line width
func drawRing(dst *image.RGBA, src image.Image, cx, cy, r float32) {
	outer:=make(polygon, circleSegments)
	inner:=make(polygon, circleSegments)
	for i:=0; i<circleSegments; i++ {
		sin, cos:=math.Sincos(2*math.Pi*float64(i)/circleSegments)
		s, c:=float32(sin), float32(cos)
		outer[i]=[2]float32{cx+c*(r+LineWidth/2), cy+s*(r+LineWidth/2)}
		// reverse orientation for the hole
		inner[circleSegments-1-i]=[2]float32{cx+c*(r-LineWidth/2), cy+s*(r-LineWidth/2)}
	}
	fill(dst, src, outer, inner)
}

func min32(a, b float32) float32 { if a<b { return a }; return b }
func max32(a, b float32) float32 { if a>b { return a }; return b }

func clamp32(v, lo, hi float32) float32 {
	if v<lo { return lo }
	if v>hi { return hi }
	return v
}

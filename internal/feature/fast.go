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


// A corner candidate on one pyramid level
type candidate struct {
	x, y     int
	score    int32     // FAST score
	response float32   // Harris response
}

// Radius of the FAST circle
const fastRadius = 3

// Bresenham circle of radius 3, clockwise starting at the top
var fastCircle=[16][2]int{
	{ 0,-3}, { 1,-3}, { 2,-2}, { 3,-1}, { 3, 0}, { 3, 1}, { 2, 2}, { 1, 3},
	{ 0, 3}, {-1, 3}, {-2, 2}, {-3, 1}, {-3, 0}, {-3,-1}, {-2,-2}, {-1,-3},
}

// Minimum number of contiguous circle pixels
const fastArc = 9

// True if the 16 bit circular mask contains fastArc contiguous set bits
func hasArc(mask uint32) bool {
	if mask==0 { return false }
	m:=mask | mask<<16
	run:=uint32(1)<<fastArc - 1
	for i:=0; i<16; i++ {
		if (m>>uint(i))&run==run { return true }
	}
	return false
}

// Returns the FAST-9 score of the pixel at x, y, or 0 if it is not a corner.
// The score is the larger of the summed excess brightness or darkness of the circle pixels
func fastScore(pix []uint8, width, x, y, threshold int, offsets *[16]int) int32 {
	center:=y*width+x
	c:=int(pix[center])
	hi, lo:=c+threshold, c-threshold

	// quick rejection on the four compass points. Any arc of 9 covers at least two of them
	nb, nd:=0, 0
	for i:=0; i<16; i+=4 {
		v:=int(pix[center+offsets[i]])
		if v>hi { nb++ } else if v<lo { nd++ }
	}
	if nb<2 && nd<2 { return 0 }

	var bright, dark uint32
	sb, sd:=0, 0
	for i, o:=range offsets {
		v:=int(pix[center+o])
		if v>hi {
			bright|=1<<uint(i)
			sb+=v-hi
		} else if v<lo {
			dark|=1<<uint(i)
			sd+=lo-v
		}
	}
	if !hasArc(bright) { sb=0 }
	if !hasArc(dark)   { sd=0 }
	if sb>sd { return int32(sb) }
	return int32(sd)
}

// Detects FAST-9 corners at least border pixels away from the image edges, with 3x3 non-maximum suppression.
// Equal scores are resolved in favor of the first pixel in raster order. Returns candidates in raster order
func detectFAST(pix []uint8, width, height, border, threshold int) (res []candidate) {
	if border<fastRadius+1 { border=fastRadius+1 }
	if width<=2*border || height<=2*border { return nil }

	var offsets [16]int
	for i, p:=range fastCircle {
		offsets[i]=p[0]+p[1]*width
	}

	// score map with one pixel margin for the suppression
	scores:=make([]int32, width*height)
	for y:=border-1; y<height-border+1; y++ {
		for x:=border-1; x<width-border+1; x++ {
			scores[y*width+x]=fastScore(pix, width, x, y, threshold, &offsets)
		}
	}

	for y:=border; y<height-border; y++ {
		for x:=border; x<width-border; x++ {
			i:=y*width+x
			s:=scores[i]
			if s==0 { continue }
			if isLocalMax(scores, width, i, s) {
				res=append(res, candidate{x: x, y: y, score: s})
			}
		}
	}
	return res
}

func isLocalMax(scores []int32, width, i int, s int32) bool {
	for dy:=-1; dy<=1; dy++ {
		for dx:=-1; dx<=1; dx++ {
			if dx==0 && dy==0 { continue }
			j:=i+dy*width+dx
			if scores[j]>s || (scores[j]==s && j<i) { return false }
		}
	}
	return true
}

// Block size for the Harris response
const harrisBlockSize = 7

// Returns the Harris corner response det(M)-k*trace(M)^2 over a square block around x, y,
// with Sobel gradients normalized to unit intensity range
func harrisResponse(pix []uint8, width, x, y int, k float32) float32 {
	r:=harrisBlockSize/2
	scale:=1/(4*float32(harrisBlockSize)*255)
	var a, b, c float32
	for dy:=-r; dy<=r; dy++ {
		for dx:=-r; dx<=r; dx++ {
			i:=(y+dy)*width+x+dx
			ix:=(int(pix[i-width+1])+2*int(pix[i+1])+int(pix[i+width+1])) -
			    (int(pix[i-width-1])+2*int(pix[i-1])+int(pix[i+width-1]))
			iy:=(int(pix[i+width-1])+2*int(pix[i+width])+int(pix[i+width+1])) -
			    (int(pix[i-width-1])+2*int(pix[i-width])+int(pix[i-width+1]))
			fx, fy:=float32(ix)*scale, float32(iy)*scale
			a+=fx*fx
			b+=fy*fy
			c+=fx*fy
		}
	}
	return a*b - c*c - k*(a+b)*(a+b)
}

// Strongest FAST score first, then raster order
func candidateScoreBefore(a, b *candidate) bool {
	if a.score!=b.score { return a.score>b.score }
	if a.y!=b.y { return a.y<b.y }
	return a.x<b.x
}

// Strongest Harris response first, then raster order
func candidateResponseBefore(a, b *candidate) bool {
	if a.response!=b.response { return a.response>b.response }
	if a.y!=b.y { return a.y<b.y }
	return a.x<b.x
}

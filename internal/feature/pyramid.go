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
	"image"
	"math"

	"golang.org/x/image/draw"
)

// One level of the scale pyramid, as 8 bit grayscale
type level struct {
	index  int
	scale  float32      // Factor from level coordinates to full resolution coordinates
	img    *image.Gray
}

func (l *level) width()  int { return l.img.Rect.Dx() }
func (l *level) height() int { return l.img.Rect.Dy() }

// Builds the scale pyramid. Level 0 is the input, each further level is downscaled from the previous
// one by the scale factor with bilinear interpolation. Stops early once a level is no larger than 2*minSize
func buildPyramid(base *image.Gray, levels int, scaleFactor float32, minSize int) (res []*level) {
	res=append(res, &level{index: 0, scale: 1, img: base})
	for i:=1; i<levels; i++ {
		scale:=float32(math.Pow(float64(scaleFactor), float64(i)))
		w:=int(math.Round(float64(float32(base.Rect.Dx())/scale)))
		h:=int(math.Round(float64(float32(base.Rect.Dy())/scale)))
		if w<=2*minSize || h<=2*minSize { break }

		prev:=res[len(res)-1].img
		dst:=image.NewGray(image.Rect(0, 0, w, h))
		draw.BiLinear.Scale(dst, dst.Rect, prev, prev.Rect, draw.Src, nil)
		res=append(res, &level{index: i, scale: scale, img: dst})
	}
	return res
}

// Number of features to retain per level, proportional to the level area
func featuresPerLevel(maxFeatures, levels int, scaleFactor float32) []int {
	res:=make([]int, levels)
	factor:=1/float64(scaleFactor)
	desired:=float64(maxFeatures)*(1-factor)/(1-math.Pow(factor, float64(levels)))
	sum:=0
	for l:=0; l<levels-1; l++ {
		res[l]=int(math.Round(desired))
		sum+=res[l]
		desired*=factor
	}
	res[levels-1]=maxFeatures-sum
	if res[levels-1]<0 { res[levels-1]=0 }
	return res
}

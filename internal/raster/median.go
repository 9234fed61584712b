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


package raster

import (
	"github.com/mlnoga/coreg/internal/ops"
)

// Rows per parallel work item of the median filter
const medianChunk = 32

// Applies a 3x3 median filter to every channel. Border rows and columns are copied unchanged.
// The result does not depend on the thread count
func (img *Image) Median3x3(threads int) *Image {
	res:=NewImage(img.Width, img.Height, img.Channels, nil)
	res.ID, res.FileName = img.ID, img.FileName
	for c:=0; c<img.Channels; c++ {
		medianFilter3x3(res.Channel(c), img.Channel(c), img.Width, threads)
	}
	return res
}

func medianFilter3x3(output, data []float32, width, threads int) {
	if width<3 || len(data)<3*width {
		copy(output, data)
		return
	}
	height:=len(data)/width
	copy(output[:width], data[:width])
	copy(output[(height-1)*width:], data[(height-1)*width:])
	ops.ParallelFor(height-2, medianChunk, threads, func(lo, hi int) {
		var gathered [9]float32
		for y:=lo+1; y<hi+1; y++ {
			row:=y*width
			output[row]=data[row]
			for x:=1; x<width-1; x++ {
				i:=row+x
				copy(gathered[0:3], data[i-width-1:i-width+2])
				copy(gathered[3:6], data[i-1:i+2])
				copy(gathered[6:9], data[i+width-1:i+width+2])
				output[i]=median9(&gathered)
			}
			output[row+width-1]=data[row+width-1]
		}
	})
}

// Returns the median of nine values with an optimal selection network, permuting the input.
// Values must not be NaN
func median9(a *[9]float32) float32 {
	if a[0]>a[1] { a[0], a[1] = a[1], a[0] }
	if a[3]>a[4] { a[3], a[4] = a[4], a[3] }
	if a[6]>a[7] { a[6], a[7] = a[7], a[6] }
	if a[1]>a[2] { a[1], a[2] = a[2], a[1] }
	if a[4]>a[5] { a[4], a[5] = a[5], a[4] }
	if a[7]>a[8] { a[7], a[8] = a[8], a[7] }
	if a[0]>a[1] { a[0], a[1] = a[1], a[0] }
	if a[3]>a[4] { a[3], a[4] = a[4], a[3] }
	if a[6]>a[7] { a[6], a[7] = a[7], a[6] }
	if a[0]>a[3] { a[3]       = a[0]       }  // max
	if a[3]>a[6] { a[6]       = a[3]       }  // max
	if a[1]>a[4] { a[1], a[4] = a[4], a[1] }
	if a[4]>a[7] { a[4]       = a[7]       }  // min
	if a[1]>a[4] { a[4]       = a[1]       }  // max
	if a[5]>a[8] { a[5]       = a[8]       }  // min
	if a[2]>a[5] { a[2]       = a[5]       }  // min
	if a[2]>a[4] { a[2], a[4] = a[4], a[2] }
	if a[4]>a[6] { a[4]       = a[6]       }  // min
	if a[2]>a[4] { a[4]       = a[2]       }  // max
	return a[4]
}

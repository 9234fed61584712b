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
	"fmt"
)

// A raster image with planar float32 data. Values are nominally in [0,1].
// Stages never modify an image in place, they return a new one.
type Image struct {
	ID       int         // Sequential ID number, for log output. By convention, reference is 0 and target is 1
	FileName string      // Original file name, if any, for log output

	Width    int
	Height   int
	Channels int         // 1 for grayscale, 3 for RGB

	Data     []float32   // Channel-major, then row-major: Data[c*Width*Height + y*Width + x]
}

// Creates an image of the given dimensions. Data is not copied, allocated if nil
func NewImage(width, height, channels int, data []float32) *Image {
	if width<0 { width=0 }
	if height<0 { height=0 }
	if data==nil {
		data=make([]float32, width*height*channels)
	}
	return &Image{
		Width    : width,
		Height   : height,
		Channels : channels,
		Data     : data,
	}
}

// Number of pixels per channel
func (img *Image) Pixels() int { return img.Width*img.Height }

// True if the image has no pixels
func (img *Image) Empty() bool { return img.Width<=0 || img.Height<=0 }

// Returns the data of channel c
func (img *Image) Channel(c int) []float32 {
	size:=img.Pixels()
	return img.Data[c*size:(c+1)*size]
}

// Returns the value of the given channel at the given pixel
func (img *Image) At(x, y, c int) float32 {
	return img.Data[c*img.Pixels() + y*img.Width + x]
}

// Returns a string with the image dimensions, e.g. 640x480x3
func (img *Image) DimensionsToString() string {
	return fmt.Sprintf("%dx%dx%d", img.Width, img.Height, img.Channels)
}

// BT.601 luma weights
const (
	LumaR = 0.299
	LumaG = 0.587
	LumaB = 0.114
)

// Converts to a single-channel luminance image. Returns a copy for grayscale inputs
func (img *Image) Gray() *Image {
	res:=NewImage(img.Width, img.Height, 1, nil)
	res.ID, res.FileName = img.ID, img.FileName
	size:=img.Pixels()
	if img.Channels<3 {
		copy(res.Data, img.Data[:size])
		return res
	}
	r, g, b:=img.Channel(0), img.Channel(1), img.Channel(2)
	for i:=range res.Data {
		res.Data[i]=LumaR*r[i] + LumaG*g[i] + LumaB*b[i]
	}
	return res
}

// Returns the minimum and maximum value over all channels
func (img *Image) MinMax() (min, max float32) {
	if len(img.Data)==0 { return 0, 0 }
	min, max=img.Data[0], img.Data[0]
	for _,d:=range img.Data {
		if d<min { min=d }
		if d>max { max=d }
	}
	return min, max
}

// Converts the given channel to 8 bit, clamping to [0,1]. Returns a new slice
func (img *Image) ToUint8(c int) []uint8 {
	src:=img.Channel(c)
	res:=make([]uint8, len(src))
	for i, d:=range src {
		res[i]=toUint8(d)
	}
	return res
}

func toUint8(d float32) uint8 {
	if !(d>0) { return 0 }  // also catches NaN
	if d>=1 { return 255 }
	return uint8(d*255+0.5)
}

func toUint16(d float32) uint16 {
	if !(d>0) { return 0 }
	if d>=1 { return 65535 }
	return uint16(d*65535+0.5)
}

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
	"bufio"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// Failure to read or decode an input image
type LoadError struct {
	FileName string
	Err      error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("error loading %s: %s", e.FileName, e.Err.Error())
}

func (e *LoadError) Unwrap() error { return e.Err }

// File name extensions of the supported input formats
var readableExts=map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true,
	".tif": true, ".tiff": true, ".bmp": true, ".webp": true,
}

// Returns true if the file name has an extension of a supported input format
func IsReadable(fileName string) bool {
	return readableExts[strings.ToLower(filepath.Ext(fileName))]
}

// Reads an image from the given file. Grayscale sources produce one channel, all others three
func ReadFile(fileName string, id int) (img *Image, err error) {
	f, err:=os.Open(fileName)
	if err!=nil { return nil, &LoadError{fileName, err} }
	defer f.Close()

	img, err=Read(bufio.NewReader(f))
	if err!=nil { return nil, &LoadError{fileName, err} }
	img.ID, img.FileName = id, fileName
	return img, nil
}

// Decodes an image from the given reader in any registered format
func Read(r io.Reader) (*Image, error) {
	src, _, err:=image.Decode(r)
	if err!=nil { return nil, err }
	img:=FromImage(src)
	if img.Empty() { return nil, fmt.Errorf("image has zero area") }
	return img, nil
}

// Converts a Go image into a planar float32 image
func FromImage(src image.Image) *Image {
	b:=src.Bounds()
	width, height:=b.Dx(), b.Dy()

	switch src.ColorModel() {
	case color.GrayModel, color.Gray16Model:
		img:=NewImage(width, height, 1, nil)
		for y:=0; y<height; y++ {
			for x:=0; x<width; x++ {
				g:=color.Gray16Model.Convert(src.At(b.Min.X+x, b.Min.Y+y)).(color.Gray16)
				img.Data[y*width+x]=float32(g.Y)/65535
			}
		}
		return img
	}

	img:=NewImage(width, height, 3, nil)
	size:=width*height
	for y:=0; y<height; y++ {
		for x:=0; x<width; x++ {
			r, g, bl, _:=src.At(b.Min.X+x, b.Min.Y+y).RGBA()
			i:=y*width+x
			img.Data[i       ]=float32(r )/65535
			img.Data[i+size  ]=float32(g )/65535
			img.Data[i+size*2]=float32(bl)/65535
		}
	}
	return img
}

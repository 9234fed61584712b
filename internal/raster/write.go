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
	"image/jpeg"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
)

// Failure to encode or write an output image
type WriteError struct {
	FileName string
	Err      error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("error writing %s: %s", e.FileName, e.Err.Error())
}

func (e *WriteError) Unwrap() error { return e.Err }

// JPEG quality for all JPEG output
const JPGQuality = 95

// Writes the image to the given file, selecting the format from the file name extension
func (img *Image) WriteFile(fileName string) error {
	if isTIFF(fileName) {
		return WriteImageFile(img.ToImage16(), fileName)
	}
	return WriteImageFile(img.ToImage8(), fileName)
}

func isTIFF(fileName string) bool {
	ext:=strings.ToLower(filepath.Ext(fileName))
	return ext==".tif" || ext==".tiff"
}

// Writes the given Go image to a file, selecting the format from the file name extension
func WriteImageFile(img image.Image, fileName string) error {
	ext:=strings.ToLower(filepath.Ext(fileName))
	var enc func(w io.Writer) error
	switch ext {
	case ".png":
		enc=func(w io.Writer) error { return png.Encode(w, img) }
	case ".jpg", ".jpeg":
		enc=func(w io.Writer) error { return jpeg.Encode(w, img, &jpeg.Options{Quality: JPGQuality}) }
	case ".tif", ".tiff":
		enc=func(w io.Writer) error { return tiff.Encode(w, img, &tiff.Options{Compression: tiff.Deflate, Predictor: true}) }
	case ".bmp":
		enc=func(w io.Writer) error { return bmp.Encode(w, img) }
	default:
		return &WriteError{fileName, fmt.Errorf("unknown suffix '%s'", ext)}
	}

	file, err:=os.Create(fileName)
	if err!=nil { return &WriteError{fileName, err} }
	writer:=bufio.NewWriter(file)
	if err=enc(writer); err!=nil {
		file.Close()
		return &WriteError{fileName, err}
	}
	if err=writer.Flush(); err!=nil {
		file.Close()
		return &WriteError{fileName, err}
	}
	if err=file.Close(); err!=nil { return &WriteError{fileName, err} }
	return nil
}

// Converts to an 8 bit Go image, grayscale or RGBA depending on the channel count.
// Values are clamped to [0,1], NaNs become 0
func (img *Image) ToImage8() image.Image {
	rect:=image.Rect(0, 0, img.Width, img.Height)
	size:=img.Pixels()
	if img.Channels<3 {
		res:=image.NewGray(rect)
		for y:=0; y<img.Height; y++ {
			for x:=0; x<img.Width; x++ {
				res.SetGray(x, y, color.Gray{toUint8(img.Data[y*img.Width+x])})
			}
		}
		return res
	}
	res:=image.NewRGBA(rect)
	for y:=0; y<img.Height; y++ {
		yoffset:=y*img.Width
		for x:=0; x<img.Width; x++ {
			i:=yoffset+x
			c:=color.RGBA{toUint8(img.Data[i]), toUint8(img.Data[i+size]), toUint8(img.Data[i+size*2]), 255}
			res.SetRGBA(x, y, c)
		}
	}
	return res
}

// Converts to a 16 bit Go image, grayscale or RGBA depending on the channel count
func (img *Image) ToImage16() image.Image {
	rect:=image.Rect(0, 0, img.Width, img.Height)
	size:=img.Pixels()
	if img.Channels<3 {
		res:=image.NewGray16(rect)
		for y:=0; y<img.Height; y++ {
			for x:=0; x<img.Width; x++ {
				res.SetGray16(x, y, color.Gray16{toUint16(img.Data[y*img.Width+x])})
			}
		}
		return res
	}
	res:=image.NewRGBA64(rect)
	for y:=0; y<img.Height; y++ {
		yoffset:=y*img.Width
		for x:=0; x<img.Width; x++ {
			i:=yoffset+x
			c:=color.RGBA64{toUint16(img.Data[i]), toUint16(img.Data[i+size]), toUint16(img.Data[i+size*2]), 65535}
			res.SetRGBA64(x, y, c)
		}
	}
	return res
}

// Encodes the image as 8 bit PNG to the given writer
func (img *Image) EncodePNG(w io.Writer) error {
	return png.Encode(w, img.ToImage8())
}

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
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/mlnoga/coreg/internal/ops"
)

// Maps output pixel coordinates to source pixel coordinates.
// Returns false if the point has no valid preimage, e.g. it lies on the line at infinity
type Mapping interface {
	Map(x, y float64) (sx, sy float64, ok bool)
}

// Interpolation mode for resampling
type Interpolation int

const (
	Bilinear Interpolation = iota
	Nearest
)

var interpolationNames=[]string{"bilinear", "nearest"}

func (i Interpolation) String() string {
	if i<0 || int(i)>=len(interpolationNames) { return fmt.Sprintf("Interpolation(%d)", int(i)) }
	return interpolationNames[i]
}

// Parses an interpolation mode from its name, case insensitive
func ParseInterpolation(s string) (Interpolation, error) {
	for i, n:=range interpolationNames {
		if strings.EqualFold(s, n) { return Interpolation(i), nil }
	}
	return Bilinear, fmt.Errorf("unknown interpolation '%s', want one of %v", s, interpolationNames)
}

func (i Interpolation) MarshalJSON() ([]byte, error) {
	return json.Marshal(i.String())
}

func (i *Interpolation) UnmarshalJSON(data []byte) error {
	var s string
	if err:=json.Unmarshal(data, &s); err!=nil { return err }
	v, err:=ParseInterpolation(s)
	if err!=nil { return err }
	*i=v
	return nil
}

// Options for warping
type WarpOptions struct {
	Interpolation Interpolation `json:"interpolation"`
	Background    float32       `json:"background"`  // fill value for pixels without a source
	Threads       int           `json:"-"`
}

// Tolerance for sampling positions on the last row or column
const edgeEpsilon = 1e-6

// Resamples the image into a new coordinate frame of the given size. inv maps each output
// pixel to its source position. Pixels mapping outside the source are set to the background value.
// Rows are processed in parallel, the result does not depend on the thread count
func (img *Image) Warp(inv Mapping, width, height int, opts WarpOptions) *Image {
	res:=NewImage(width, height, img.Channels, nil)
	res.ID, res.FileName = img.ID, img.FileName
	if res.Empty() { return res }

	srcSize, dstSize:=img.Pixels(), res.Pixels()
	maxX, maxY:=float64(img.Width-1), float64(img.Height-1)

	ops.ParallelFor(height, 16, opts.Threads, func(lo, hi int) {
		for row:=lo; row<hi; row++ {
			for col:=0; col<width; col++ {
				dst:=col+row*width
				sx, sy, ok:=inv.Map(float64(col), float64(row))
				if !ok || img.Empty() || !(sx>=-edgeEpsilon && sx<=maxX+edgeEpsilon && sy>=-edgeEpsilon && sy<=maxY+edgeEpsilon) {
					for c:=0; c<img.Channels; c++ {
						res.Data[dst+c*dstSize]=opts.Background
					}
					continue
				}

				if opts.Interpolation==Nearest {
					xi, yi:=int(math.Round(sx)), int(math.Round(sy))
					xi, yi=clampInt(xi, 0, img.Width-1), clampInt(yi, 0, img.Height-1)
					for c:=0; c<img.Channels; c++ {
						res.Data[dst+c*dstSize]=img.Data[xi+yi*img.Width+c*srcSize]
					}
					continue
				}

				// perform bilinear interpolation
				xl, yl:=clampInt(int(math.Floor(sx)), 0, img.Width-1), clampInt(int(math.Floor(sy)), 0, img.Height-1)
				xh, yh:=clampInt(xl+1, 0, img.Width-1), clampInt(yl+1, 0, img.Height-1)
				xr, yr:=float32(clampFloat(sx-float64(xl), 0, 1)), float32(clampFloat(sy-float64(yl), 0, 1))

				for c:=0; c<img.Channels; c++ {
					d:=img.Data[c*srcSize:(c+1)*srcSize]
					vyl:=d[xl+yl*img.Width]*(1-xr) + d[xh+yl*img.Width]*xr
					vyh:=d[xl+yh*img.Width]*(1-xr) + d[xh+yh*img.Width]*xr
					res.Data[dst+c*dstSize]=vyl*(1-yr) + vyh*yr
				}
			}
		}
	})
	return res
}

func clampInt(v, lo, hi int) int {
	if v<lo { return lo }
	if v>hi { return hi }
	return v
}

func clampFloat(v, lo, hi float64) float64 {
	if v<lo { return lo }
	if v>hi { return hi }
	return v
}

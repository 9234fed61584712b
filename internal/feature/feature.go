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
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mlnoga/coreg/internal/raster"
)

// A detected keypoint. Coordinates are in pixels of the full resolution image
type Keypoint struct {
	X         float32   // Horizontal position
	Y         float32   // Vertical position
	Response  float32   // Harris corner response, higher is stronger
	Angle     float32   // Dominant orientation in radians, counterclockwise from the x axis
	Octave    int       // Pyramid level the keypoint was detected on
	Size      float32   // Diameter of the described patch at full resolution
}

// Number of bits in a descriptor
const DescriptorBits = 256

// A binary descriptor. Bit i is stored in word i/64 at position i%64
type Descriptor [DescriptorBits/64]uint64

// Sets bit i of the descriptor
func (d *Descriptor) Set(i int) { d[i>>6]|=1<<uint(i&63) }

// Returns bit i of the descriptor
func (d *Descriptor) Bit(i int) bool { return d[i>>6]&(1<<uint(i&63))!=0 }

// Extracts keypoints and parallel descriptors from a single channel image.
// Returns empty slices and no error if nothing is found
type Extractor interface {
	Extract(img *raster.Image, maxFeatures int) ([]Keypoint, []Descriptor, error)
}

var ErrNotGray = errors.New("feature extraction needs a single channel image")


// Parameters of the ORB-like extractor
type Config struct {
	ScaleFactor   float32  `json:"scaleFactor"`    // Pyramid decimation ratio, greater than 1
	Levels        int      `json:"levels"`         // Number of pyramid levels
	EdgeThreshold int      `json:"edgeThreshold"`  // Border in pixels where no keypoints are detected. Lower it for images below about 200 pixels
	FastThreshold int      `json:"fastThreshold"`  // Intensity difference for the FAST segment test, in 8 bit units
	PatchSize     int      `json:"patchSize"`      // Diameter of the orientation and descriptor patch
	HarrisK       float32  `json:"harrisK"`        // Harris detector free parameter
	MinResponse   float32  `json:"minResponse"`    // Keypoints with a Harris response at or below this are dropped
	BlurSigma     float32  `json:"blurSigma"`      // Gaussian smoothing before the binary tests
	Threads       int      `json:"-"`
}

// Returns the default extractor configuration
func NewConfigDefault() *Config {
	return &Config{
		ScaleFactor   : 1.2,
		Levels        : 8,
		EdgeThreshold : 31,
		FastThreshold : 20,
		PatchSize     : 31,
		HarrisK       : 0.04,
		MinResponse   : 0,
		BlurSigma     : 2,
	}
}

// Unmarshals from JSON, filling in defaults for missing keys
func (c *Config) UnmarshalJSON(data []byte) error {
	type defaults Config
	def:=defaults(*NewConfigDefault())
	err:=json.Unmarshal(data, &def)
	if err!=nil { return err }
	*c=Config(def)
	return nil
}

// Checks the configuration for consistency
func (c *Config) Validate() error {
	if !(c.ScaleFactor>1)  { return fmt.Errorf("scale factor %g must be greater than 1", c.ScaleFactor) }
	if c.Levels<1          { return fmt.Errorf("number of levels %d must be positive", c.Levels) }
	if c.PatchSize<7       { return fmt.Errorf("patch size %d must be at least 7", c.PatchSize) }
	if c.EdgeThreshold<0   { return fmt.Errorf("edge threshold %d must not be negative", c.EdgeThreshold) }
	if c.FastThreshold<1 || c.FastThreshold>255 { return fmt.Errorf("FAST threshold %d must be in 1..255", c.FastThreshold) }
	if !(c.BlurSigma>0)    { return fmt.Errorf("blur sigma %g must be positive", c.BlurSigma) }
	return nil
}

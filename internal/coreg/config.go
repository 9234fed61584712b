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


package coreg

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/mlnoga/coreg/internal/feature"
	"github.com/mlnoga/coreg/internal/homography"
	"github.com/mlnoga/coreg/internal/raster"
)

// Which image is warped onto which
type Direction int

const (
	RefToTarget Direction = iota  // Homography maps reference to target, the reference is warped into the target frame
	TargetToRef                   // Homography maps target to reference, the target is warped into the reference frame
)

var directionNames=[]string{"refToTarget", "targetToRef"}

func (d Direction) String() string {
	if d<0 || int(d)>=len(directionNames) { return fmt.Sprintf("Direction(%d)", int(d)) }
	return directionNames[d]
}

// Parses a direction from its name, case insensitive
func ParseDirection(s string) (Direction, error) {
	for i, n:=range directionNames {
		if strings.EqualFold(s, n) { return Direction(i), nil }
	}
	return RefToTarget, fmt.Errorf("unknown direction '%s', want one of %v", s, directionNames)
}

func (d Direction) MarshalJSON() ([]byte, error) { return json.Marshal(d.String()) }

func (d *Direction) UnmarshalJSON(data []byte) error {
	var s string
	if err:=json.Unmarshal(data, &s); err!=nil { return err }
	v, err:=ParseDirection(s)
	if err!=nil { return err }
	*d=v
	return nil
}


// Settings of a registration run
type Config struct {
	MaxFeatures    int                   `json:"maxFeatures"`    // Maximum keypoints per image
	MatchRate      float64               `json:"matchRate"`      // Fraction of best matches kept, in (0,1]
	Denoise        bool                  `json:"denoise"`        // Apply a 3x3 median filter before extraction
	Feature        feature.Config        `json:"feature"`
	CrossCheck     bool                  `json:"crossCheck"`
	MaxDistance    int                   `json:"maxDistance"`    // Hamming distance limit for matches, 0=off
	Ransac         homography.Params     `json:"ransac"`
	Seed           uint32                `json:"seed"`           // Seed of the random sampling. 0 selects a fixed default
	Direction      Direction             `json:"direction"`
	Interpolation  raster.Interpolation  `json:"interpolation"`
	Background     float32               `json:"background"`     // Fill value for aligned pixels without a source
}

// Returns the default configuration
func NewConfigDefault() *Config {
	return &Config{
		MaxFeatures   : 6000,
		MatchRate     : 0.15,
		Denoise       : false,
		Feature       : *feature.NewConfigDefault(),
		CrossCheck    : true,
		MaxDistance   : 0,
		Ransac        : *homography.NewParamsDefault(),
		Seed          : 1,
		Direction     : RefToTarget,
		Interpolation : raster.Bilinear,
		Background    : 0,
	}
}

// Unmarshals from JSON, filling in defaults for missing keys
func (c *Config) UnmarshalJSON(data []byte) error {
	return c.unmarshalOnto(*NewConfigDefault(), data)
}

// Unmarshals from JSON, keeping the values of base for missing keys
func (c *Config) unmarshalOnto(base Config, data []byte) error {
	type defaults Config
	def:=defaults(base)
	err:=json.Unmarshal(data, &def)
	if err!=nil { return err }
	*c=Config(def)
	return nil
}

// Checks the configuration for consistency
func (c *Config) Validate() error {
	if c.MaxFeatures<=0 { return fmt.Errorf("maxFeatures %d must be positive", c.MaxFeatures) }
	if !(c.MatchRate>0 && c.MatchRate<=1) { return fmt.Errorf("matchRate %g must be in (0,1]", c.MatchRate) }
	if c.MaxDistance<0 { return fmt.Errorf("maxDistance %d must not be negative", c.MaxDistance) }
	if c.Direction!=RefToTarget && c.Direction!=TargetToRef { return fmt.Errorf("invalid direction %v", c.Direction) }
	if c.Interpolation!=raster.Bilinear && c.Interpolation!=raster.Nearest { return fmt.Errorf("invalid interpolation %v", c.Interpolation) }
	if err:=c.Feature.Validate(); err!=nil { return fmt.Errorf("feature: %w", err) }
	if err:=c.Ransac.Validate();  err!=nil { return fmt.Errorf("ransac: %w", err) }
	return nil
}

// Loads a configuration from a JSON file. Missing keys keep their defaults
func LoadConfig(fileName string) (*Config, error) {
	return LoadConfigOnto(fileName, NewConfigDefault())
}

// Loads a configuration from a JSON file. Missing keys keep the values of base, which is not modified
func LoadConfigOnto(fileName string, base *Config) (*Config, error) {
	data, err:=os.ReadFile(fileName)
	if err!=nil { return nil, err }
	c:=&Config{}
	if err:=c.unmarshalOnto(*base, data); err!=nil {
		return nil, fmt.Errorf("error parsing config %s: %w", fileName, err)
	}
	return c, nil
}

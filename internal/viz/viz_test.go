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


package viz

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/mlnoga/coreg/internal/feature"
	"github.com/mlnoga/coreg/internal/match"
	"github.com/mlnoga/coreg/internal/raster"
)

func TestMatchColorDistinct(t *testing.T) {
	seen:=map[[3]uint8]bool{}
	for i:=0; i<16; i++ {
		c:=MatchColor(i)
		if c.A!=255 { t.Errorf("color %d alpha=%d; want 255", i, c.A) }
		seen[[3]uint8{c.R, c.G, c.B}]=true
	}
	if len(seen)<16 { t.Errorf("%d distinct colors; want 16", len(seen)) }
	if MatchColor(3)!=MatchColor(3) { t.Errorf("colors not reproducible") }
}

func TestDrawMatches(t *testing.T) {
	a:=raster.NewImage(60, 40, 1, nil)
	b:=raster.NewImage(50, 70, 3, nil)
	kpsA:=[]feature.Keypoint{{X: 20, Y: 20}}
	kpsB:=[]feature.Keypoint{{X: 30, Y: 50}}
	matches:=[]match.Match{{QueryIdx: 0, TrainIdx: 0}, {QueryIdx: 5, TrainIdx: 0}}
	res:=DrawMatches(a, b, kpsA, kpsB, matches)
	if res.Rect.Dx()!=110 || res.Rect.Dy()!=70 {
		t.Fatalf("size %v; want 110x70", res.Rect)
	}
	// the ring passes through the point right of the keypoint at the radius
	c:=res.RGBAAt(20+CircleRadius, 20)
	if c.R==0 && c.G==0 && c.B==0 {
		t.Errorf("no ring drawn around keypoint A")
	}
	// so does the one around B, shifted by the width of A
	if c:=res.RGBAAt(60+30, 50+CircleRadius); c.R==0 && c.G==0 && c.B==0 {
		t.Errorf("no ring drawn around keypoint B")
	}
	if c:=res.RGBAAt(5, 5); c.R!=0 || c.G!=0 || c.B!=0 {
		t.Errorf("background pixel %v; want black", c)
	}
}

func TestPlotDistances(t *testing.T) {
	fileName:=filepath.Join(t.TempDir(), "dist.png")
	matches:=[]match.Match{{Distance: 3}, {Distance: 10}, {Distance: 10}, {Distance: 42}}
	if err:=PlotDistances(matches, fileName); err!=nil {
		t.Fatalf("PlotDistances: %s", err)
	}
	if st, err:=os.Stat(fileName); err!=nil || st.Size()==0 {
		t.Errorf("plot file missing or empty: %v", err)
	}
	if err:=PlotDistances(nil, fileName); err!=ErrNothingToPlot {
		t.Errorf("err=%v; want ErrNothingToPlot", err)
	}
}

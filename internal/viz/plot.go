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
	"errors"
	"fmt"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/mlnoga/coreg/internal/match"
)

// Maximum number of histogram bins
const maxBins = 32

var ErrNothingToPlot = errors.New("no matches to plot")

// Saves a histogram of the Hamming distances of the given matches to a file.
// The image format follows the file name extension
func PlotDistances(matches []match.Match, fileName string) error {
	if len(matches)==0 { return ErrNothingToPlot }
	values:=make(plotter.Values, len(matches))
	lo, hi:=matches[0].Distance, matches[0].Distance
	for i, m:=range matches {
		values[i]=float64(m.Distance)
		if m.Distance<lo { lo=m.Distance }
		if m.Distance>hi { hi=m.Distance }
	}
	bins:=hi-lo+1
	if bins>maxBins { bins=maxBins }

	p:=plot.New()
	p.Title.Text =fmt.Sprintf("Distances of %d matches", len(matches))
	p.X.Label.Text="Hamming distance"
	p.Y.Label.Text="Matches"
	h, err:=plotter.NewHist(values, bins)
	if err!=nil { return fmt.Errorf("could not draw histogram: %w", err) }
	p.Add(h)
	if err:=p.Save(15*vg.Centimeter, 10*vg.Centimeter, fileName); err!=nil {
		return fmt.Errorf("could not save plot: %w", err)
	}
	return nil
}

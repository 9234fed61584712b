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


// Sorts an array so that a comes before b whenever before(a,b) holds.
// before must be a strict total order, which makes the result independent of the input order
func qsort[T any](a []T, before func(a, b *T) bool) {
	for len(a)>1 {
		index:=qpartition(a, before)
		// recurse into the smaller half, loop on the larger one
		if index+1 < len(a)-index-1 {
			qsort(a[:index+1], before)
			a=a[index+1:]
		} else {
			qsort(a[index+1:], before)
			a=a[:index+1]
		}
	}
}

// Partitions an array with the middle pivot element, and returns the pivot index.
// Elements before the pivot are moved left of it, those after it are moved right
func qpartition[T any](a []T, before func(a, b *T) bool) int {
	left, right:=0, len(a)-1
	mid  :=(left+right)>>1
	pivot:=a[mid]
	l:=left -1
	r:=right+1
	for {
		for {
			l++
			if !before(&a[l], &pivot) { break }
		}
		for {
			r--
			if !before(&pivot, &a[r]) { break }
		}
		if l>=r { return r }
		a[l], a[r] = a[r], a[l]
	}
}

// Strongest response first, then lower octave, then raster order
func keypointBefore(a, b *Keypoint) bool {
	if a.Response!=b.Response { return a.Response>b.Response }
	if a.Octave  !=b.Octave   { return a.Octave<b.Octave }
	if a.Y       !=b.Y        { return a.Y<b.Y }
	return a.X<b.X
}

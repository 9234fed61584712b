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
	"errors"

	"github.com/mlnoga/coreg/internal/homography"
	"github.com/mlnoga/coreg/internal/raster"
)

// Failure class of a registration, for exit codes and HTTP status mapping
type Kind int

const (
	KindNone Kind = iota
	KindLoad
	KindEmptyFeatureSet
	KindInsufficientCorrespondences
	KindDegenerateModel
	KindWrite
	KindOther
)

var kindNames=[]string{"none", "load", "emptyFeatureSet", "insufficientCorrespondences", "degenerateModel", "write", "other"}

func (k Kind) String() string {
	if k<0 || int(k)>=len(kindNames) { return kindNames[KindOther] }
	return kindNames[k]
}

// Classifies an error returned by Register or RegisterFiles
func ErrorKind(err error) Kind {
	var le *raster.LoadError
	var we *raster.WriteError
	switch {
	case err==nil                                                   : return KindNone
	case errors.As(err, &le)                                        : return KindLoad
	case errors.As(err, &we)                                        : return KindWrite
	case errors.Is(err, ErrEmptyFeatureSet)                         : return KindEmptyFeatureSet
	case errors.Is(err, homography.ErrInsufficientCorrespondences) : return KindInsufficientCorrespondences
	case errors.Is(err, homography.ErrDegenerateModel)              : return KindDegenerateModel
	default                                                         : return KindOther
	}
}

// frame-recorder - record camera frames to image files, raw files or data cubes
//  Copyright (C) 2026, The Cacophony Project
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
// along with this program. If not, see <http://www.gnu.org/licenses/>.

package frame

import (
	"fmt"
	"strings"
)

// Axis selects a plane dimension.
type Axis int

const (
	// Rows bins vertically, reducing the number of rows.
	Rows Axis = iota
	// Cols bins horizontally, reducing the number of columns.
	Cols
)

func (a Axis) String() string {
	if a == Rows {
		return "rows"
	}
	return "cols"
}

// Mode is how the pixels of a bin are combined.
type Mode int

const (
	// Average takes the integer mean of a bin, keeping the native range.
	Average Mode = iota
	// Sum adds a bin together.
	Sum
)

func (m Mode) String() string {
	if m == Sum {
		return "sum"
	}
	return "average"
}

// UnmarshalText lets a Mode be given as "sum" or "average" in config
// files and on the command line.
func (m *Mode) UnmarshalText(text []byte) error {
	switch strings.ToLower(string(text)) {
	case "sum":
		*m = Sum
	case "average", "avg", "mean", "":
		*m = Average
	default:
		return fmt.Errorf("unknown binning mode %q", text)
	}
	return nil
}

func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// Bin reduces axis of p by factor, combining each run of factor
// neighbouring pixels into one. The factor must divide the axis extent
// exactly; there is no remainder handling.
func Bin(p *Plane, factor int, axis Axis, mode Mode) (*Plane, error) {
	extent := p.Rows
	if axis == Cols {
		extent = p.Cols
	}
	if err := checkFactor(factor, extent, axis); err != nil {
		return nil, err
	}
	if factor == 1 {
		return p, nil
	}

	var out *Plane
	if axis == Rows {
		out = NewPlane(p.Rows/factor, p.Cols)
		for y := 0; y < out.Rows; y++ {
			dst := out.Row(y)
			for k := 0; k < factor; k++ {
				for x, v := range p.Row(y*factor + k) {
					dst[x] += v
				}
			}
		}
	} else {
		out = NewPlane(p.Rows, p.Cols/factor)
		for y := 0; y < p.Rows; y++ {
			src, dst := p.Row(y), out.Row(y)
			for x := range dst {
				var s uint32
				for _, v := range src[x*factor : (x+1)*factor] {
					s += v
				}
				dst[x] = s
			}
		}
	}

	if mode == Average {
		for i := range out.Pix {
			out.Pix[i] /= uint32(factor)
		}
	}
	return out, nil
}

func checkFactor(factor, extent int, axis Axis) error {
	if factor < 1 {
		return fmt.Errorf("binning factor %d for %s must be positive", factor, axis)
	}
	if extent%factor != 0 {
		return fmt.Errorf("binning factor %d does not divide %d %s", factor, extent, axis)
	}
	return nil
}

// Binning holds a factor for each spatial axis.
type Binning struct {
	// H is the horizontal factor, applied along columns.
	H int `yaml:"h"`
	// V is the vertical factor, applied along rows.
	V    int  `yaml:"v"`
	Mode Mode `yaml:"mode"`
}

// IsIdentity reports whether applying b changes nothing.
func (b Binning) IsIdentity() bool {
	return b.H == 1 && b.V == 1
}

// Validate checks b against a frame of rows x cols.
func (b Binning) Validate(rows, cols int) error {
	if err := checkFactor(b.V, rows, Rows); err != nil {
		return err
	}
	return checkFactor(b.H, cols, Cols)
}

// Shape is the size of a rows x cols frame after binning.
func (b Binning) Shape(rows, cols int) (int, int) {
	return rows / b.V, cols / b.H
}

// Apply bins p along both axes. Averages are taken over the whole
// H by V block, so the result is floored once.
func (b Binning) Apply(p *Plane) (*Plane, error) {
	out, err := Bin(p, b.V, Rows, Sum)
	if err != nil {
		return nil, err
	}
	if out, err = Bin(out, b.H, Cols, Sum); err != nil {
		return nil, err
	}
	if n := uint32(b.H * b.V); b.Mode == Average && n > 1 {
		for i := range out.Pix {
			out.Pix[i] /= n
		}
	}
	return out, nil
}

func (b Binning) String() string {
	return fmt.Sprintf("%dx%d %s", b.H, b.V, b.Mode)
}

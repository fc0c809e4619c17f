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

// Package frame gives read access to a captured frame and the pixel
// operations applied before it is stored.
package frame

import (
	"encoding/binary"
	"errors"
	"image"
	"time"

	"github.com/TheCacophonyProject/frame-recorder/camera"
)

// ErrReleased is returned when reading a view whose buffer has gone back
// to the driver.
var ErrReleased = errors.New("frame buffer has been released")

// Timestamp converts t to milliseconds since the epoch: whole seconds
// plus the microsecond part of the second, truncated to milliseconds.
func Timestamp(t time.Time) int64 {
	micros := int64(t.Nanosecond() / 1000)
	return t.Unix()*1000 + micros/1000
}

// View is a read-only view of one captured frame. It is only valid until
// Release is called; nothing may keep it past the cycle that made it
// unless the pixels are copied out with Plane.
type View struct {
	Pix           []byte
	Width         int
	Height        int
	BytesPerPixel int
	Stride        int

	// Timestamp is the arrival time in milliseconds since the epoch.
	Timestamp int64
	Time      time.Time

	lease *camera.Lease
}

// NewView wraps the buffer held by lease, stamped with arrival time t.
func NewView(lease *camera.Lease, t time.Time) (*View, error) {
	buf := lease.Buffer()
	if buf == nil {
		return nil, ErrReleased
	}
	if err := buf.Validate(); err != nil {
		return nil, err
	}
	return &View{
		Pix:           buf.Mem,
		Width:         buf.Width,
		Height:        buf.Height,
		BytesPerPixel: buf.BytesPerPixel,
		Stride:        buf.Stride,
		Timestamp:     Timestamp(t),
		Time:          t,
		lease:         lease,
	}, nil
}

// Released reports whether the underlying buffer is back with the driver.
func (v *View) Released() bool {
	return v.lease != nil && v.lease.Released()
}

// Release returns the buffer to the driver. The view must not be read
// afterwards.
func (v *View) Release() error {
	v.Pix = nil
	if v.lease == nil {
		return nil
	}
	return v.lease.Release()
}

// At returns the pixel value at column x, row y.
func (v *View) At(x, y int) uint32 {
	i := y*v.Stride + x*v.BytesPerPixel
	if v.BytesPerPixel == 2 {
		return uint32(binary.LittleEndian.Uint16(v.Pix[i:]))
	}
	return uint32(v.Pix[i])
}

// Plane copies the pixels out of the buffer, dropping row padding.
func (v *View) Plane() (*Plane, error) {
	if v.Pix == nil {
		return nil, ErrReleased
	}
	p := NewPlane(v.Height, v.Width)
	for y := 0; y < v.Height; y++ {
		row := p.Row(y)
		for x := range row {
			row[x] = v.At(x, y)
		}
	}
	return p, nil
}

// Image copies the frame into a grey image at its native depth.
func (v *View) Image() (image.Image, error) {
	p, err := v.Plane()
	if err != nil {
		return nil, err
	}
	return p.Image(v.BytesPerPixel), nil
}

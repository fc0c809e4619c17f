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

// Package camera describes the driver side of frame acquisition: a
// streaming session that hands out ready buffers and takes them back.
package camera

import (
	"errors"
	"fmt"
	"time"
)

// DefaultTimeout is how long a wait for the next buffer blocks.
const DefaultTimeout = time.Second

var (
	// ErrTimeout is returned (possibly wrapped) by WaitForNextBuffer when
	// no frame arrived within the timeout.
	ErrTimeout = errors.New("timed out waiting for frame")

	// ErrReleased is returned when a buffer is released a second time.
	ErrReleased = errors.New("buffer already released")

	// ErrNotCapturing is returned when waiting on a session which has
	// not started video capture.
	ErrNotCapturing = errors.New("video capture not started")
)

// Driver is a camera session which streams frames into driver owned
// buffers.
type Driver interface {
	// CaptureVideo starts hardware streaming.
	CaptureVideo() error

	// StopVideo stops hardware streaming.
	StopVideo() error

	// WaitForNextBuffer blocks until a buffer is ready or timeout
	// elapses. Every buffer returned must be released exactly once.
	WaitForNextBuffer(timeout time.Duration) (*ImageBuffer, error)

	// Release returns a buffer to the driver's pool.
	Release(buf *ImageBuffer) error

	// Handle identifies the session.
	Handle() int
}

// ImageBuffer is one physical frame slot. Mem belongs to the driver and
// must not be read after the buffer is released.
type ImageBuffer struct {
	ID            int
	Mem           []byte
	Width         int
	Height        int
	BytesPerPixel int

	// Stride is the length of a row in bytes, including any padding.
	Stride int
}

// Validate checks that the buffer is large enough for its dimensions.
func (b *ImageBuffer) Validate() error {
	if b.Width <= 0 || b.Height <= 0 {
		return fmt.Errorf("buffer %d has invalid size %dx%d", b.ID, b.Width, b.Height)
	}
	if b.BytesPerPixel < 1 || b.BytesPerPixel > 2 {
		return fmt.Errorf("buffer %d has unsupported pixel size %d", b.ID, b.BytesPerPixel)
	}
	if b.Stride < b.Width*b.BytesPerPixel {
		return fmt.Errorf("buffer %d stride %d shorter than row", b.ID, b.Stride)
	}
	if need := b.Stride*(b.Height-1) + b.Width*b.BytesPerPixel; len(b.Mem) < need {
		return fmt.Errorf("buffer %d holds %d bytes, need %d", b.ID, len(b.Mem), need)
	}
	return nil
}

// AOI is the area of interest on the sensor, (ymin, xmin) inclusive and
// (ymax, xmax) exclusive.
type AOI struct {
	YMin int `yaml:"ymin"`
	XMin int `yaml:"xmin"`
	YMax int `yaml:"ymax"`
	XMax int `yaml:"xmax"`
}

// Height is the number of rows in the area.
func (a AOI) Height() int {
	return a.YMax - a.YMin
}

// Width is the number of columns in the area.
func (a AOI) Width() int {
	return a.XMax - a.XMin
}

// IsZero reports whether no area was set.
func (a AOI) IsZero() bool {
	return a == AOI{}
}

// Validate checks the area is non-empty and starts inside the sensor.
func (a AOI) Validate() error {
	if a.YMin < 0 || a.XMin < 0 {
		return fmt.Errorf("aoi origin (%d, %d) is negative", a.YMin, a.XMin)
	}
	if a.Height() <= 0 || a.Width() <= 0 {
		return fmt.Errorf("aoi (%d, %d, %d, %d) is empty", a.YMin, a.XMin, a.YMax, a.XMax)
	}
	return nil
}

func (a AOI) String() string {
	return fmt.Sprintf("(%d, %d, %d, %d)", a.YMin, a.XMin, a.YMax, a.XMax)
}

// Settings holds the device parameters negotiated before capture.
type Settings struct {
	PixelClock int
	FPS        float64
	Exposure   time.Duration
	AOI        AOI
	BitDepth   int
}

// BytesPerPixel is the storage size of one pixel at the bit depth.
func (s Settings) BytesPerPixel() int {
	return (s.BitDepth + 7) / 8
}

// Configurable is implemented by drivers which accept device settings.
// The returned Settings are the values the device actually applied.
type Configurable interface {
	Configure(Settings) (Settings, error)
}

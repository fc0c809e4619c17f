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

// Package sim is a camera driver which synthesises frames at a fixed
// rate. It stands in for hardware on the bench and in tests.
package sim

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/juju/ratelimit"

	"github.com/TheCacophonyProject/frame-recorder/camera"
	"github.com/TheCacophonyProject/frame-recorder/throttle"
)

const (
	Name = "sim"

	defaultBuffers    = 4
	defaultPixelClock = 160
	maxPixelClock     = 474
)

var errNoFreeBuffer = errors.New("sim: all buffers are held")

func init() {
	camera.Register(Name, func(s camera.Settings) (camera.Driver, error) {
		return Open(s, Options{})
	})
}

// Options script the simulated session.
type Options struct {
	// Buffers is the size of the buffer pool.
	Buffers int

	// DropEvery makes every Nth wait time out as if the frame was lost
	// on the bus.
	DropEvery int

	// Limit is the number of frames produced before every wait times out.
	Limit int

	// Clock paces frames; the real clock when nil.
	Clock ratelimit.Clock
}

// Driver is a simulated camera session. It is safe for use from
// multiple goroutines.
type Driver struct {
	opts Options

	mu        sync.Mutex
	settings  camera.Settings
	pacer     *throttle.Pacer
	pool      []*camera.ImageBuffer
	held      map[*camera.ImageBuffer]bool
	capturing bool
	waits     int
	frames    int
	releases  int
}

func Open(s camera.Settings, opts Options) (*Driver, error) {
	if opts.Buffers <= 0 {
		opts.Buffers = defaultBuffers
	}
	if opts.Clock == nil {
		opts.Clock = throttle.RealClock{}
	}
	d := &Driver{
		opts: opts,
		held: make(map[*camera.ImageBuffer]bool),
	}
	if _, err := d.Configure(s); err != nil {
		return nil, err
	}
	return d, nil
}

// Configure applies s and returns the values actually in effect. The
// pixel clock and exposure are clamped to what the frame rate allows.
func (d *Driver) Configure(s camera.Settings) (camera.Settings, error) {
	if err := s.AOI.Validate(); err != nil {
		return s, err
	}
	if s.FPS < 0 {
		return s, fmt.Errorf("frame rate %v is negative", s.FPS)
	}
	switch {
	case s.BitDepth <= 0:
		s.BitDepth = 8
	case s.BitDepth > 16:
		return s, fmt.Errorf("bit depth %d is more than 16", s.BitDepth)
	}
	if s.PixelClock <= 0 {
		s.PixelClock = defaultPixelClock
	}
	if s.PixelClock > maxPixelClock {
		s.PixelClock = maxPixelClock
	}
	if s.FPS > 0 {
		frameTime := time.Duration(float64(time.Second) / s.FPS)
		if s.Exposure <= 0 || s.Exposure > frameTime {
			s.Exposure = frameTime
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.capturing {
		return d.settings, errors.New("cannot configure while capturing")
	}
	d.settings = s
	d.pacer = throttle.NewPacerWithClock(s.FPS, d.opts.Clock)
	d.pool = d.pool[:0]
	width, height, bpp := s.AOI.Width(), s.AOI.Height(), s.BytesPerPixel()
	for i := 0; i < d.opts.Buffers; i++ {
		d.pool = append(d.pool, &camera.ImageBuffer{
			ID:            i,
			Mem:           make([]byte, width*height*bpp),
			Width:         width,
			Height:        height,
			BytesPerPixel: bpp,
			Stride:        width * bpp,
		})
	}
	return s, nil
}

func (d *Driver) Settings() camera.Settings {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.settings
}

func (d *Driver) CaptureVideo() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.capturing = true
	return nil
}

func (d *Driver) StopVideo() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.capturing = false
	return nil
}

func (d *Driver) Handle() int {
	return 1
}

func (d *Driver) WaitForNextBuffer(timeout time.Duration) (*camera.ImageBuffer, error) {
	d.mu.Lock()
	if !d.capturing {
		d.mu.Unlock()
		return nil, camera.ErrNotCapturing
	}
	d.waits++
	wait := d.waits
	exhausted := d.opts.Limit > 0 && d.frames >= d.opts.Limit
	pacer := d.pacer
	d.mu.Unlock()

	if exhausted {
		d.opts.Clock.Sleep(timeout)
		return nil, camera.ErrTimeout
	}
	if !pacer.WaitMax(timeout) {
		return nil, camera.ErrTimeout
	}
	if d.opts.DropEvery > 0 && wait%d.opts.DropEvery == 0 {
		return nil, camera.ErrTimeout
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	buf := d.freeBuffer()
	if buf == nil {
		return nil, errNoFreeBuffer
	}
	d.held[buf] = true
	fill(buf, d.frames, d.settings.BitDepth)
	d.frames++
	return buf, nil
}

func (d *Driver) freeBuffer() *camera.ImageBuffer {
	for _, buf := range d.pool {
		if !d.held[buf] {
			return buf
		}
	}
	return nil
}

func (d *Driver) Release(buf *camera.ImageBuffer) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.held[buf] {
		return fmt.Errorf("sim: buffer %d is not held", buf.ID)
	}
	delete(d.held, buf)
	d.releases++
	return nil
}

// Stats reports the number of waits, frames produced and buffers
// released so far, and how many buffers are still held.
func (d *Driver) Stats() (waits, frames, releases, held int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.waits, d.frames, d.releases, len(d.held)
}

// fill draws a diagonal gradient offset by the frame number, so
// consecutive frames differ.
func fill(buf *camera.ImageBuffer, n, bitDepth int) {
	mask := uint32(1)<<uint(bitDepth) - 1
	for y := 0; y < buf.Height; y++ {
		row := buf.Mem[y*buf.Stride:]
		for x := 0; x < buf.Width; x++ {
			v := uint32(x+y+n) & mask
			if buf.BytesPerPixel == 1 {
				row[x] = uint8(v)
				continue
			}
			row[2*x] = uint8(v)
			row[2*x+1] = uint8(v >> 8)
		}
	}
}

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

package throttle

import (
	"time"

	"github.com/juju/ratelimit"
)

// NewPacer returns a Pacer releasing fps frames per second. A
// non-positive fps means frames are never held back.
func NewPacer(fps float64) *Pacer {
	return NewPacerWithClock(fps, new(RealClock))
}

func NewPacerWithClock(fps float64, clock ratelimit.Clock) *Pacer {
	p := &Pacer{
		fps:   fps,
		clock: clock,
	}
	if fps > 0 {
		// A single token bucket keeps frames evenly spaced with no bursts.
		p.bucket = ratelimit.NewBucketWithRateAndClock(fps, 1, clock)
	}
	return p
}

// Pacer holds frames back so they are released no faster than a
// configured frame rate, the way a camera's frame timer would.
type Pacer struct {
	fps    float64
	clock  ratelimit.Clock
	bucket *ratelimit.Bucket
}

func (p *Pacer) FPS() float64 {
	return p.fps
}

// Interval is the time between frames, zero when unpaced.
func (p *Pacer) Interval() time.Duration {
	if p.fps <= 0 {
		return 0
	}
	return time.Duration(float64(time.Second) / p.fps)
}

// Wait blocks until the next frame is due.
func (p *Pacer) Wait() {
	if p.bucket == nil {
		return
	}
	p.bucket.Wait(1)
}

// WaitMax waits for the next frame if it is due within max. It returns
// false, after sleeping for max, if the frame would be later than that.
func (p *Pacer) WaitMax(max time.Duration) bool {
	if p.bucket == nil {
		return true
	}
	if p.bucket.WaitMaxDuration(1, max) {
		return true
	}
	p.clock.Sleep(max)
	return false
}

// RealClock implements ratelimit.Clock in terms of standard time functions.
// Drivers which pace themselves share it with the Pacer.
type RealClock struct{}

// Now implements Clock.Now by calling time.Now.
func (RealClock) Now() time.Time {
	return time.Now()
}

// Sleep implements Clock.Sleep by calling time.Sleep.
func (RealClock) Sleep(d time.Duration) {
	time.Sleep(d)
}

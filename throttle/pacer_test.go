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
	"testing"
	"time"

	"github.com/juju/ratelimit"
	"github.com/stretchr/testify/assert"
)

var _ ratelimit.Clock = new(RealClock)
var _ ratelimit.Clock = new(testClock)

func TestFramesAreEvenlySpaced(t *testing.T) {
	clock := newTestClock()
	pacer := NewPacerWithClock(20, clock)
	start := clock.now

	for i := 0; i < 11; i++ {
		pacer.Wait()
	}

	// The first frame is released immediately, the next ten are 50ms apart.
	assert.Equal(t, 500*time.Millisecond, clock.now.Sub(start))
	assert.Equal(t, 50*time.Millisecond, pacer.Interval())
}

func TestWaitMaxGivesUpAfterMax(t *testing.T) {
	clock := newTestClock()
	pacer := NewPacerWithClock(1, clock)
	start := clock.now

	assert.True(t, pacer.WaitMax(100*time.Millisecond))
	assert.False(t, pacer.WaitMax(100*time.Millisecond))
	assert.Equal(t, 100*time.Millisecond, clock.now.Sub(start))

	// Enough time has now passed for the next frame.
	clock.Sleep(time.Second)
	assert.True(t, pacer.WaitMax(100*time.Millisecond))
}

func TestUnpacedNeverWaits(t *testing.T) {
	clock := newTestClock()
	pacer := NewPacerWithClock(0, clock)
	start := clock.now

	for i := 0; i < 100; i++ {
		pacer.Wait()
		assert.True(t, pacer.WaitMax(time.Millisecond))
	}
	assert.Equal(t, start, clock.now)
	assert.Equal(t, time.Duration(0), pacer.Interval())
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

// testClock implements a fake ratelimit.Clock for testing.
type testClock struct {
	now time.Time
}

func (c *testClock) Now() time.Time {
	return c.now
}

func (c *testClock) Sleep(d time.Duration) {
	c.now = c.now.Add(d)
}

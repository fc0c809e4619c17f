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

package camera

// Lease is a borrowed buffer. Only the first Release reaches the driver.
type Lease struct {
	driver   Driver
	buf      *ImageBuffer
	released bool
}

// Borrow wraps a buffer returned by WaitForNextBuffer.
func Borrow(d Driver, buf *ImageBuffer) *Lease {
	return &Lease{driver: d, buf: buf}
}

// Buffer returns the borrowed buffer, or nil once released.
func (l *Lease) Buffer() *ImageBuffer {
	if l.released {
		return nil
	}
	return l.buf
}

// Released reports whether the buffer has gone back to the driver.
func (l *Lease) Released() bool {
	return l.released
}

// Release hands the buffer back to the driver. Later calls return
// ErrReleased. A failed release still counts; the driver owns the slot
// either way and retrying could return it twice.
func (l *Lease) Release() error {
	if l.released {
		return ErrReleased
	}
	l.released = true
	return l.driver.Release(l.buf)
}

// WithBuffer calls fn with the buffer borrowed and releases it on every
// way out of fn, panics included. fn's error takes precedence over the
// release error; the release error is passed to onRelease if set.
func WithBuffer(d Driver, buf *ImageBuffer, fn func(*Lease) error, onRelease func(error)) (err error) {
	lease := Borrow(d, buf)
	defer func() {
		if lease.released {
			return
		}
		if rerr := lease.Release(); rerr != nil {
			if onRelease != nil {
				onRelease(rerr)
			}
		}
	}()
	return fn(lease)
}

// frame-recorder - record camera frames to image files, raw files or data cubes
// Copyright (C) 2019, The Cacophony Project
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

package loglimiter

import (
	"fmt"
	"log"
	"time"
)

// New returns a new LogLimiter with the configured minimum log interval.
func New(interval time.Duration) *LogLimiter {
	return &LogLimiter{
		interval: interval,
		nowFunc:  time.Now,
	}
}

// LogLimiter suppresses log messages of the same kind seen within some
// time interval. Printf messages are of the same kind when they share a
// format string, so a message carrying a frame number is still limited.
// The number of suppressed messages is reported with the next message of
// that kind which gets through.
type LogLimiter struct {
	interval    time.Duration
	nowFunc     func() time.Time
	previousKey string
	previousAt  time.Time
	suppressed  int
}

func (limiter *LogLimiter) Printf(format string, v ...interface{}) {
	limiter.print(format, fmt.Sprintf(format, v...))
}

func (limiter *LogLimiter) Print(s string) {
	limiter.print(s, s)
}

// Suppressed returns how many messages have been held back since the
// last one was logged.
func (limiter *LogLimiter) Suppressed() int {
	return limiter.suppressed
}

func (limiter *LogLimiter) print(key, s string) {
	now := limiter.nowFunc()
	if key == limiter.previousKey && now.Sub(limiter.previousAt) < limiter.interval {
		limiter.suppressed++
		return
	}

	if limiter.suppressed > 0 {
		if key == limiter.previousKey {
			s = fmt.Sprintf("%s (%d similar suppressed)", s, limiter.suppressed)
		} else {
			log.Printf("%d similar messages suppressed", limiter.suppressed)
		}
	}
	log.Print(s)
	limiter.previousAt = now
	limiter.previousKey = key
	limiter.suppressed = 0
}

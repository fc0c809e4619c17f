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

// Package acquire runs the capture loop which moves frames from a camera
// driver into a sink.
package acquire

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff"

	"github.com/TheCacophonyProject/frame-recorder/camera"
	"github.com/TheCacophonyProject/frame-recorder/frame"
	"github.com/TheCacophonyProject/frame-recorder/loglimiter"
	"github.com/TheCacophonyProject/frame-recorder/sink"
)

const (
	minLogInterval = time.Minute

	// failureLogEvery is how often a run of driver errors is reported.
	failureLogEvery = 10

	defaultRetryInterval = 10 * time.Millisecond
)

// ErrNotIdle is returned when starting a loop which has already been
// started or stopped.
var ErrNotIdle = errors.New("acquisition loop is not idle")

// Options tune a Loop. The zero value is usable.
type Options struct {
	// Timeout bounds each wait for a frame. It is also how long a stop
	// request can take to be noticed.
	Timeout time.Duration

	// RetryInterval is the first pause after a driver error. Pauses
	// double up to Timeout while errors continue.
	RetryInterval time.Duration

	// Verbose logs every written frame.
	Verbose bool

	Listener Listener

	// Now stamps frames on arrival.
	Now func() time.Time
}

// Loop moves frames from a driver to a sink until the sink has had
// enough, a write fails, or Stop is called. A Loop runs once.
type Loop struct {
	driver camera.Driver
	sink   sink.Sink
	opts   Options

	state      int32
	stop       chan struct{}
	stopOnce   sync.Once
	finishOnce sync.Once
	done       chan struct{}
	err        error

	mu    sync.Mutex
	stats Stats

	lastTimestamp int64
	lossLog       *loglimiter.LogLimiter
	retry         *backoff.ExponentialBackOff
}

func New(driver camera.Driver, s sink.Sink, opts Options) *Loop {
	if opts.Timeout <= 0 {
		opts.Timeout = camera.DefaultTimeout
	}
	if opts.RetryInterval <= 0 {
		opts.RetryInterval = defaultRetryInterval
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	retry := &backoff.ExponentialBackOff{
		InitialInterval:     opts.RetryInterval,
		RandomizationFactor: 0.,
		Multiplier:          2.,
		MaxInterval:         opts.Timeout,
		MaxElapsedTime:      0,
		Clock:               backoff.SystemClock,
	}
	retry.Reset()
	return &Loop{
		driver:  driver,
		sink:    s,
		opts:    opts,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
		lossLog: loglimiter.New(minLogInterval),
		retry:   retry,
	}
}

func (l *Loop) State() State {
	return State(atomic.LoadInt32(&l.state))
}

// Stats returns a snapshot of the loop's counters.
func (l *Loop) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stats
}

// Start starts video capture and runs the loop on a new goroutine.
func (l *Loop) Start() error {
	if err := l.begin(); err != nil {
		return err
	}
	go l.run()
	return nil
}

// Run starts video capture and runs the loop until it finishes.
func (l *Loop) Run() error {
	if err := l.begin(); err != nil {
		return err
	}
	l.run()
	return l.Wait()
}

// Wait blocks until the loop has finished and returns the error which
// ended it, if any.
func (l *Loop) Wait() error {
	<-l.done
	return l.err
}

// Done is closed once the loop has finished.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

// Stop asks the loop to finish. It may be called any number of times
// from any goroutine. The loop notices the request before its next wait
// for a frame; a frame already being written is written in full. A loop
// which never started is finished straight away.
func (l *Loop) Stop() {
	l.stopOnce.Do(func() { close(l.stop) })
	if atomic.CompareAndSwapInt32(&l.state, int32(Idle), int32(Stopping)) {
		l.finish()
		return
	}
	atomic.CompareAndSwapInt32(&l.state, int32(Running), int32(Stopping))
}

func (l *Loop) begin() error {
	if !atomic.CompareAndSwapInt32(&l.state, int32(Idle), int32(Running)) {
		return ErrNotIdle
	}
	if err := l.driver.CaptureVideo(); err != nil {
		l.err = fmt.Errorf("starting video capture: %w", err)
		l.finish()
		return l.err
	}
	return nil
}

func (l *Loop) run() {
	defer l.finish()
	for {
		select {
		case <-l.stop:
			return
		default:
		}

		buf, err := l.driver.WaitForNextBuffer(l.opts.Timeout)
		if err != nil {
			l.missed(err)
			if l.exhausted() {
				log.Printf("no frame slots left after frame %d was missed", l.Stats().Ordinal-1)
				return
			}
			continue
		}

		stop, err := l.process(buf)
		if err != nil {
			l.err = err
			return
		}
		if stop {
			return
		}
	}
}

// process hands one frame to the sink. The buffer goes back to the
// driver before process returns, whatever the outcome.
func (l *Loop) process(buf *camera.ImageBuffer) (bool, error) {
	now := l.opts.Now()
	ordinal := l.Stats().Ordinal

	var stop bool
	err := camera.WithBuffer(l.driver, buf, func(lease *camera.Lease) error {
		v, err := frame.NewView(lease, now)
		if err != nil {
			return err
		}
		l.checkClock(v.Timestamp)
		stop, err = l.sink.Write(v, ordinal)
		return err
	}, l.releaseFailed)
	if err != nil {
		return false, fmt.Errorf("writing frame %d: %w", ordinal, err)
	}

	if l.opts.Verbose {
		log.Printf("frame %d written, timestamp %d", ordinal, frame.Timestamp(now))
	}
	l.retry.Reset()
	l.mu.Lock()
	l.stats.Ordinal++
	l.stats.Processed++
	l.stats.ConsecutiveFailures = 0
	stats := l.stats
	l.mu.Unlock()
	if l.opts.Listener != nil {
		l.opts.Listener.FrameProcessed(stats)
	}
	return stop, nil
}

// missed accounts for a frame which never arrived. Its ordinal is used
// up so later frames keep their place in the sequence.
func (l *Loop) missed(err error) {
	l.mu.Lock()
	ordinal := l.stats.Ordinal
	l.stats.Ordinal++
	l.stats.Lost++
	l.stats.ConsecutiveFailures++
	stats := l.stats
	l.mu.Unlock()

	if errors.Is(err, camera.ErrTimeout) {
		l.lossLog.Printf("frame %d lost: %v", ordinal, err)
	} else {
		if n := stats.ConsecutiveFailures; n == 1 || n%failureLogEvery == 0 {
			log.Printf("waiting for frame %d failed (%d in a row): %v", ordinal, n, err)
		}
		l.pause()
	}
	if l.opts.Listener != nil {
		l.opts.Listener.FrameLost(stats)
	}
}

// pause backs off after a driver error. A stop request cuts it short.
func (l *Loop) pause() {
	d := l.retry.NextBackOff()
	if d == backoff.Stop || d > l.opts.Timeout {
		d = l.opts.Timeout
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-l.stop:
	case <-t.C:
	}
}

func (l *Loop) exhausted() bool {
	limited, ok := l.sink.(sink.Limited)
	return ok && limited.Exhausted(l.Stats().Ordinal)
}

func (l *Loop) checkClock(ts int64) {
	if ts < l.lastTimestamp {
		l.lossLog.Printf("clock went backwards: frame timestamp %d is before %d", ts, l.lastTimestamp)
	}
	l.lastTimestamp = ts
}

func (l *Loop) releaseFailed(err error) {
	l.mu.Lock()
	l.stats.ReleaseErrors++
	l.mu.Unlock()
	l.lossLog.Printf("releasing frame buffer: %v", err)
}

// finish stops capture and closes the sink, exactly once. The loop is
// Stopping while that happens, however the run ended.
func (l *Loop) finish() {
	l.finishOnce.Do(func() {
		atomic.CompareAndSwapInt32(&l.state, int32(Running), int32(Stopping))
		if err := l.driver.StopVideo(); err != nil {
			log.Printf("stopping video capture: %v", err)
		}
		if err := l.sink.Close(); err != nil {
			if l.err == nil {
				l.err = fmt.Errorf("closing sink: %w", err)
			} else {
				log.Printf("closing sink: %v", err)
			}
		}
		atomic.StoreInt32(&l.state, int32(Stopped))
		close(l.done)
	})
}

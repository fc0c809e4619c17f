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

package sink

import (
	"encoding/binary"
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sys/unix"

	"github.com/TheCacophonyProject/frame-recorder/frame"
	"github.com/TheCacophonyProject/frame-recorder/headers"
)

// ErrCubeFull is returned when a frame's ordinal has no slot in the cube.
var ErrCubeFull = errors.New("cube is full")

// CubePaths are the files making up one cube.
type CubePaths struct {
	Data   string
	Header string
	Timing string
}

func cubePaths(folder, base string, start time.Time) CubePaths {
	stem := folder + base + strconv.FormatInt(frame.Timestamp(start), 10)
	return CubePaths{
		Data:   stem + ".bip",
		Header: stem + ".hdr",
		Timing: stem + "_timing.csv",
	}
}

// CubeSink stores a whole run in a single memory mapped file, band
// interleaved by pixel. Each frame becomes one sample column: line y of
// the cube holds row y of every frame, and a row's pixels are the bands.
// The cube is sized for MaxFrames up front.
type CubeSink struct {
	paths   CubePaths
	header  *headers.ENVI
	binning frame.Binning

	file   *os.File
	data   []byte
	timing *timingLog

	bpp        int
	flushEvery int
	sinceFlush int
	flushes    int
	closed     bool
	frameLimit

	// created lists the files made so far, removed again if setup fails.
	created []string
}

func NewCubeSink(conf Config) (*CubeSink, error) {
	conf = conf.withDefaults()
	if err := conf.validateCommon(); err != nil {
		return nil, err
	}
	if conf.MaxFrames <= 0 {
		return nil, configErrorf("max frames", "a cube needs a positive frame count")
	}
	if conf.AOI.IsZero() {
		return nil, configErrorf("aoi", "a cube needs an area of interest")
	}
	dataType, err := headers.DataTypeFor(conf.BytesPerPixel)
	if err != nil {
		return nil, &ConfigError{Field: "bytes per pixel", Err: err}
	}
	if conf.FlushEvery < 0 {
		return nil, configErrorf("flush every", "%d is negative", conf.FlushEvery)
	}
	folder, err := prepareFolder(conf.Folder)
	if err != nil {
		return nil, err
	}
	if conf.RunID == "" {
		conf.RunID = uuid.NewString()
	}

	start := conf.Now()
	lines, bands := conf.Binning.Shape(conf.AOI.Height(), conf.AOI.Width())
	h := &headers.ENVI{
		Description: fmt.Sprintf("frame-recorder run %s started %s", conf.RunID, start.UTC().Format(time.RFC3339Nano)),
		Samples:     conf.MaxFrames,
		Lines:       lines,
		Bands:       bands,
		FileType:    headers.FileTypeStandard,
		DataType:    dataType,
		Interleave:  headers.InterleaveBIP,
	}
	if err := h.Validate(); err != nil {
		return nil, &ConfigError{Field: "cube", Err: err}
	}

	s := &CubeSink{
		paths:      cubePaths(folder, conf.BaseName, start),
		header:     h,
		binning:    conf.Binning,
		bpp:        conf.BytesPerPixel,
		flushEvery: conf.FlushEvery,
		frameLimit: frameLimit(conf.MaxFrames),
	}
	if err := s.create(); err != nil {
		s.release()
		for _, name := range s.created {
			os.Remove(name)
		}
		return nil, err
	}
	return s, nil
}

func (s *CubeSink) create() error {
	hf, err := os.Create(s.paths.Header)
	if err != nil {
		return err
	}
	s.created = append(s.created, s.paths.Header)
	if _, err := s.header.WriteTo(hf); err != nil {
		hf.Close()
		return err
	}
	if err := hf.Close(); err != nil {
		return err
	}

	size := s.header.DataSize()
	s.file, err = os.OpenFile(s.paths.Data, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	s.created = append(s.created, s.paths.Data)
	if err := s.file.Truncate(size); err != nil {
		return err
	}
	s.data, err = unix.Mmap(int(s.file.Fd()), 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return fmt.Errorf("mapping %s: %w", s.paths.Data, err)
	}

	s.timing, err = createTimingLog(s.paths.Timing)
	return err
}

func (s *CubeSink) Paths() CubePaths {
	return s.paths
}

func (s *CubeSink) Header() headers.ENVI {
	return *s.header
}

// Flushes is the number of times the mapping has been synced to disk.
func (s *CubeSink) Flushes() int {
	return s.flushes
}

func (s *CubeSink) Write(v *frame.View, ordinal int) (bool, error) {
	if s.closed {
		return false, errors.New("cube is closed")
	}
	if ordinal < 0 || ordinal >= s.header.Samples {
		return false, ErrCubeFull
	}
	p, err := binned(v, s.binning)
	if err != nil {
		return false, err
	}
	if p.Rows != s.header.Lines || p.Cols != s.header.Bands {
		return false, fmt.Errorf("frame is %dx%d after binning, cube expects %dx%d",
			p.Rows, p.Cols, s.header.Lines, s.header.Bands)
	}
	s.place(p, ordinal)
	if err := s.timing.append(ordinal, v.Timestamp); err != nil {
		return false, err
	}
	s.sinceFlush++

	stop := s.reached(ordinal)
	if stop || (s.flushEvery > 0 && s.sinceFlush >= s.flushEvery) {
		if err := s.Flush(); err != nil {
			return false, err
		}
	}
	return stop, nil
}

// place copies p into the sample column for ordinal.
func (s *CubeSink) place(p *frame.Plane, ordinal int) {
	bands := s.header.Bands
	samples := s.header.Samples
	for y := 0; y < p.Rows; y++ {
		off := (y*samples + ordinal) * bands * s.bpp
		dst := s.data[off : off+bands*s.bpp]
		for x, v := range p.Row(y) {
			v = frame.Clamp(v, s.bpp)
			switch s.bpp {
			case 1:
				dst[x] = uint8(v)
			case 2:
				binary.LittleEndian.PutUint16(dst[2*x:], uint16(v))
			case 4:
				binary.LittleEndian.PutUint32(dst[4*x:], v)
			}
		}
	}
}

// Flush syncs the mapped cube and the timing log to disk.
func (s *CubeSink) Flush() error {
	if s.closed {
		return nil
	}
	if err := unix.Msync(s.data, unix.MS_SYNC); err != nil {
		return fmt.Errorf("syncing %s: %w", s.paths.Data, err)
	}
	if err := s.timing.sync(); err != nil {
		return err
	}
	s.sinceFlush = 0
	s.flushes++
	return nil
}

func (s *CubeSink) Close() error {
	if s.closed {
		return nil
	}
	var err error
	if s.sinceFlush > 0 {
		err = s.Flush()
	}
	if rerr := s.release(); err == nil {
		err = rerr
	}
	s.closed = true
	return err
}

// release unmaps and closes whatever has been opened so far.
func (s *CubeSink) release() error {
	var errs []error
	if s.data != nil {
		if err := unix.Munmap(s.data); err != nil {
			errs = append(errs, err)
		}
		s.data = nil
	}
	if s.file != nil {
		if err := s.file.Close(); err != nil {
			errs = append(errs, err)
		}
		s.file = nil
	}
	if s.timing != nil {
		if err := s.timing.close(); err != nil {
			errs = append(errs, err)
		}
		s.timing = nil
	}
	for _, err := range errs[min(1, len(errs)):] {
		log.Printf("closing cube %s: %v", s.paths.Data, err)
	}
	if len(errs) > 0 {
		return errs[0]
	}
	return nil
}

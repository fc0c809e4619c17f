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

// Package sink persists captured frames. Each Sink is one storage format
// chosen once, before acquisition starts.
package sink

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/TheCacophonyProject/frame-recorder/camera"
	"github.com/TheCacophonyProject/frame-recorder/frame"
)

// Sink stores frames. Write is only ever called from the acquisition
// goroutine, with ordinals in delivery order. The view is only valid
// for the duration of the call.
type Sink interface {
	// Write stores v under ordinal and reports whether the run should
	// stop. A sink never asks to stop before v is durably stored.
	Write(v *frame.View, ordinal int) (stop bool, err error)

	// Close flushes and releases everything the sink holds. It is safe to
	// call more than once.
	Close() error
}

// Limited is implemented by sinks with a fixed number of frame slots, so
// a run can end when missed frames use up the last ordinals.
type Limited interface {
	// Exhausted reports whether there is no slot left for ordinal.
	Exhausted(ordinal int) bool
}

type Format string

const (
	FormatImage Format = "image"
	FormatRaw   Format = "raw"
	FormatCube  Format = "cube"
)

// NameBy selects the varying part of per-frame file names.
type NameBy string

const (
	NameByTimestamp NameBy = "timestamp"
	NameByOrdinal   NameBy = "ordinal"
)

const (
	DefaultFlushEvery   = 100
	DefaultRawPixelBits = 16
	DefaultRawExt       = ".raw"
)

// Config holds everything needed to build any of the sinks. Zero binning
// factors are taken as 1.
type Config struct {
	Format    Format
	Folder    string
	BaseName  string
	FileType  string
	MaxFrames int
	Binning   frame.Binning
	NameBy    NameBy

	// AOI is required for cubes. When set for the other formats it lets
	// binning be checked before the first frame.
	AOI camera.AOI

	// BytesPerPixel is the native pixel size; it sets the cube data type.
	BytesPerPixel int

	RawPixelBits int
	FlushEvery   int

	// RunID and Now label a cube. Both are filled in when empty.
	RunID string
	Now   func() time.Time
}

// ConfigError is a sink configuration problem found before capture
// starts.
type ConfigError struct {
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid %s: %v", e.Field, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

func configErrorf(field, format string, v ...interface{}) error {
	return &ConfigError{Field: field, Err: fmt.Errorf(format, v...)}
}

// New builds the sink for conf.Format.
func New(conf Config) (Sink, error) {
	var (
		s   Sink
		err error
	)
	switch conf.Format {
	case FormatImage, "":
		s, err = NewImageSink(conf)
	case FormatRaw:
		s, err = NewRawSink(conf)
	case FormatCube:
		s, err = NewCubeSink(conf)
	default:
		return nil, configErrorf("format", "unknown format %q", conf.Format)
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (conf Config) withDefaults() Config {
	if conf.Binning.H == 0 {
		conf.Binning.H = 1
	}
	if conf.Binning.V == 0 {
		conf.Binning.V = 1
	}
	if conf.NameBy == "" {
		conf.NameBy = NameByTimestamp
	}
	if conf.RawPixelBits == 0 {
		conf.RawPixelBits = DefaultRawPixelBits
	}
	if conf.FlushEvery == 0 {
		conf.FlushEvery = DefaultFlushEvery
	}
	if conf.BytesPerPixel == 0 {
		conf.BytesPerPixel = 1
	}
	if conf.Now == nil {
		conf.Now = time.Now
	}
	return conf
}

func (conf Config) validateCommon() error {
	if conf.MaxFrames < 0 {
		return configErrorf("max frames", "%d is negative", conf.MaxFrames)
	}
	if conf.Binning.H < 1 || conf.Binning.V < 1 {
		return configErrorf("binning", "factors %dx%d must be positive", conf.Binning.H, conf.Binning.V)
	}
	if !conf.AOI.IsZero() {
		if err := conf.AOI.Validate(); err != nil {
			return &ConfigError{Field: "aoi", Err: err}
		}
		if err := conf.Binning.Validate(conf.AOI.Height(), conf.AOI.Width()); err != nil {
			return &ConfigError{Field: "binning", Err: err}
		}
	}
	switch conf.NameBy {
	case NameByTimestamp, NameByOrdinal:
	default:
		return configErrorf("name-by", "unknown naming %q", conf.NameBy)
	}
	return nil
}

// NormalizeFolder expands a leading ~ and makes sure the folder ends with
// a path separator.
func NormalizeFolder(folder string) (string, error) {
	if folder == "" {
		folder = "."
	}
	if folder == "~" || strings.HasPrefix(folder, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		folder = filepath.Join(home, folder[1:])
	}
	if !strings.HasSuffix(folder, string(filepath.Separator)) {
		folder += string(filepath.Separator)
	}
	return folder, nil
}

func prepareFolder(folder string) (string, error) {
	folder, err := NormalizeFolder(folder)
	if err != nil {
		return "", &ConfigError{Field: "folder", Err: err}
	}
	if err := os.MkdirAll(folder, 0755); err != nil {
		return "", &ConfigError{Field: "folder", Err: err}
	}
	return folder, nil
}

// frameLimit is a maximum frame count; zero means unlimited.
type frameLimit int

// reached reports whether the frame just written under ordinal is the
// last one allowed.
func (max frameLimit) reached(ordinal int) bool {
	return max > 0 && ordinal+1 >= int(max)
}

func (max frameLimit) Exhausted(ordinal int) bool {
	return max > 0 && ordinal >= int(max)
}

// binned copies the pixels out of v and applies b.
func binned(v *frame.View, b frame.Binning) (*frame.Plane, error) {
	p, err := v.Plane()
	if err != nil {
		return nil, err
	}
	if b.IsIdentity() {
		return p, nil
	}
	return b.Apply(p)
}

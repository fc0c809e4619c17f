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

package main

import (
	"errors"
	"fmt"
	"io/ioutil"
	"os"
	"strconv"
	"strings"
	"time"

	yaml "gopkg.in/yaml.v2"

	"github.com/TheCacophonyProject/frame-recorder/camera"
	"github.com/TheCacophonyProject/frame-recorder/frame"
	"github.com/TheCacophonyProject/frame-recorder/sink"
)

type Config struct {
	OutputDir      string        `yaml:"output-dir"`
	BaseName       string        `yaml:"base-name"`
	Camera         string        `yaml:"camera"`
	FPS            float64       `yaml:"fps"`
	MaxFrames      int           `yaml:"max-frames"`
	Format         sink.Format   `yaml:"format"`
	FileType       string        `yaml:"file-type"`
	NameBy         sink.NameBy   `yaml:"name-by"`
	Binning        frame.Binning `yaml:"binning"`
	AOI            camera.AOI    `yaml:"aoi"`
	PixelClock     int           `yaml:"pixel-clock"`
	BitDepth       int           `yaml:"bit-depth"`
	RawPixelBits   int           `yaml:"raw-pixel-bits"`
	CaptureTimeout time.Duration `yaml:"capture-timeout"`
	FlushEvery     int           `yaml:"flush-every"`
	WatchdogFrames int           `yaml:"watchdog-frames"`
	Verbose        bool          `yaml:"verbose"`
}

var defaultConfig = Config{
	OutputDir:      ".",
	BaseName:       "frame_",
	Camera:         "sim",
	FPS:            20,
	MaxFrames:      100,
	Format:         sink.FormatImage,
	FileType:       "jpg",
	NameBy:         sink.NameByTimestamp,
	Binning:        frame.Binning{H: 1, V: 1, Mode: frame.Average},
	AOI:            camera.AOI{YMin: 0, XMin: 0, YMax: 1088, XMax: 2048},
	PixelClock:     160,
	BitDepth:       8,
	RawPixelBits:   sink.DefaultRawPixelBits,
	CaptureTimeout: camera.DefaultTimeout,
	FlushEvery:     sink.DefaultFlushEvery,
	WatchdogFrames: 100,
}

func (conf *Config) Validate() error {
	if conf.FPS <= 0 {
		return fmt.Errorf("fps must be positive, got %v", conf.FPS)
	}
	if conf.MaxFrames < 0 {
		return fmt.Errorf("max-frames must not be negative, got %d", conf.MaxFrames)
	}
	if conf.BitDepth != 8 && conf.BitDepth != 16 {
		return fmt.Errorf("bit-depth must be 8 or 16, got %d", conf.BitDepth)
	}
	if conf.CaptureTimeout <= 0 {
		return errors.New("capture-timeout must be positive")
	}
	if conf.WatchdogFrames <= 0 {
		return errors.New("watchdog-frames must be positive")
	}
	if err := conf.AOI.Validate(); err != nil {
		return err
	}
	if err := conf.Binning.Validate(conf.AOI.Height(), conf.AOI.Width()); err != nil {
		return err
	}
	switch conf.Format {
	case sink.FormatImage, sink.FormatRaw, sink.FormatCube:
	default:
		return fmt.Errorf("unknown format %q", conf.Format)
	}
	if conf.Format == sink.FormatCube && conf.MaxFrames == 0 {
		return errors.New("a cube needs max-frames")
	}
	return nil
}

// settings is what is asked of the camera. Exposure fills the frame
// period.
func (conf *Config) settings() camera.Settings {
	return camera.Settings{
		PixelClock: conf.PixelClock,
		FPS:        conf.FPS,
		Exposure:   time.Duration(float64(time.Second) / conf.FPS),
		AOI:        conf.AOI,
		BitDepth:   conf.BitDepth,
	}
}

// sinkConfig sizes the sink from the settings the camera applied, which
// may differ from those asked for.
func (conf *Config) sinkConfig(runID string, applied camera.Settings) sink.Config {
	return sink.Config{
		Format:        conf.Format,
		Folder:        conf.OutputDir,
		BaseName:      conf.BaseName,
		FileType:      conf.FileType,
		MaxFrames:     conf.MaxFrames,
		Binning:       conf.Binning,
		NameBy:        conf.NameBy,
		AOI:           applied.AOI,
		BytesPerPixel: applied.BytesPerPixel(),
		RawPixelBits:  conf.RawPixelBits,
		FlushEvery:    conf.FlushEvery,
		RunID:         runID,
	}
}

// ParseConfigFile reads the config at filename. A missing file leaves
// the defaults in place. The result is not validated; applyArgs does
// that once the command line has been applied.
func ParseConfigFile(filename string) (*Config, error) {
	buf, err := ioutil.ReadFile(filename)
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	return ParseConfig(buf)
}

// ParseConfig reads buf over the defaults without validating it.
func ParseConfig(buf []byte) (*Config, error) {
	conf := defaultConfig
	if err := yaml.Unmarshal(buf, &conf); err != nil {
		return nil, err
	}
	return &conf, nil
}

// applyArgs overrides the config with whatever was given on the command
// line, then validates the result.
func applyArgs(conf *Config, args Args) error {
	if args.Path != "" {
		conf.OutputDir = args.Path
	}
	if args.Base != "" {
		conf.BaseName = args.Base
	}
	if args.FPS != 0 {
		conf.FPS = args.FPS
	}
	if args.Frames >= 0 {
		conf.MaxFrames = args.Frames
	}
	if args.FileType != "" {
		conf.FileType = args.FileType
	}
	if args.Format != "" {
		conf.Format = sink.Format(args.Format)
	}
	if args.NameBy != "" {
		conf.NameBy = sink.NameBy(args.NameBy)
	}
	if args.BinH != 0 {
		conf.Binning.H = args.BinH
	}
	if args.BinV != 0 {
		conf.Binning.V = args.BinV
	}
	if args.BinningMode != "" {
		if err := conf.Binning.Mode.UnmarshalText([]byte(args.BinningMode)); err != nil {
			return err
		}
	}
	if args.AOI != "" {
		aoi, err := parseAOI(args.AOI)
		if err != nil {
			return err
		}
		conf.AOI = aoi
	}
	if args.Camera != "" {
		conf.Camera = args.Camera
	}
	if args.Verbose {
		conf.Verbose = true
	}
	return conf.Validate()
}

// parseAOI reads an area given as "ymin,xmin,ymax,xmax".
func parseAOI(s string) (camera.AOI, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return camera.AOI{}, fmt.Errorf("aoi %q should be ymin,xmin,ymax,xmax", s)
	}
	var vals [4]int
	for i, part := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return camera.AOI{}, fmt.Errorf("aoi %q: %v", s, err)
		}
		vals[i] = v
	}
	return camera.AOI{YMin: vals[0], XMin: vals[1], YMax: vals[2], XMax: vals[3]}, nil
}

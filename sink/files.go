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
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/TheCacophonyProject/frame-recorder/frame"
)

// fileSeries names and creates one file per frame as
// <folder><base><timestamp or ordinal><ext>.
type fileSeries struct {
	folder string
	base   string
	ext    string
	nameBy NameBy
}

func (fs *fileSeries) name(v *frame.View, ordinal int) string {
	if fs.nameBy == NameByTimestamp {
		return fs.folder + fs.base + strconv.FormatInt(v.Timestamp, 10) + fs.ext
	}
	return fs.folder + fs.base + strconv.Itoa(ordinal) + fs.ext
}

// create opens the file for the frame. Timestamp names may repeat when
// frames arrive within the same millisecond; the later frame then gets
// the ordinal appended rather than replacing the earlier file.
func (fs *fileSeries) create(v *frame.View, ordinal int) (*os.File, error) {
	name := fs.name(v, ordinal)
	if fs.nameBy == NameByOrdinal {
		return os.Create(name)
	}
	f, err := os.OpenFile(name, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if os.IsExist(err) {
		name = fmt.Sprintf("%s%s%d-%d%s", fs.folder, fs.base, v.Timestamp, ordinal, fs.ext)
		f, err = os.OpenFile(name, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	}
	return f, err
}

// write stores one frame through enc. A file left incomplete by a
// failure is removed.
func (fs *fileSeries) write(v *frame.View, ordinal int, p *frame.Plane, info frameInfo, enc encoder) (err error) {
	f, err := fs.create(v, ordinal)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			f.Close()
			os.Remove(f.Name())
		}
	}()

	bw := bufio.NewWriterSize(f, 1024*1024)
	if err = enc(bw, p, info); err != nil {
		return fmt.Errorf("encoding %s: %w", f.Name(), err)
	}
	if err = bw.Flush(); err != nil {
		return err
	}
	return f.Close()
}

func newFileSeries(conf Config, ext string) (*fileSeries, error) {
	folder, err := prepareFolder(conf.Folder)
	if err != nil {
		return nil, err
	}
	return &fileSeries{
		folder: folder,
		base:   conf.BaseName,
		ext:    ext,
		nameBy: conf.NameBy,
	}, nil
}

// ImageSink writes each frame to its own file, encoded by the codec for
// the file type.
type ImageSink struct {
	files   *fileSeries
	encode  encoder
	binning frame.Binning
	frameLimit
}

func NewImageSink(conf Config) (*ImageSink, error) {
	conf = conf.withDefaults()
	if err := conf.validateCommon(); err != nil {
		return nil, err
	}
	ext := normalizeExt(conf.FileType)
	enc, err := encoderFor(ext)
	if err != nil {
		return nil, &ConfigError{Field: "file type", Err: err}
	}
	files, err := newFileSeries(conf, ext)
	if err != nil {
		return nil, err
	}
	return &ImageSink{
		files:      files,
		encode:     enc,
		binning:    conf.Binning,
		frameLimit: frameLimit(conf.MaxFrames),
	}, nil
}

func (s *ImageSink) Write(v *frame.View, ordinal int) (bool, error) {
	p, err := binned(v, s.binning)
	if err != nil {
		return false, err
	}
	info := frameInfo{
		BytesPerPixel: v.BytesPerPixel,
		Timestamp:     v.Timestamp,
		Ordinal:       ordinal,
	}
	if err := s.files.write(v, ordinal, p, info, s.encode); err != nil {
		return false, err
	}
	return s.reached(ordinal), nil
}

func (s *ImageSink) Close() error {
	return nil
}

// RawSink writes each frame's pixels straight to its own file as fixed
// width little endian integers, with no header.
type RawSink struct {
	files   *fileSeries
	bits    int
	binning frame.Binning
	frameLimit
}

func NewRawSink(conf Config) (*RawSink, error) {
	conf = conf.withDefaults()
	if err := conf.validateCommon(); err != nil {
		return nil, err
	}
	if !validRawBits(conf.RawPixelBits) {
		return nil, configErrorf("raw pixel bits", "%d is not 8, 16 or 32", conf.RawPixelBits)
	}
	ext := normalizeExt(conf.FileType)
	if ext == "" {
		ext = DefaultRawExt
	}
	files, err := newFileSeries(conf, ext)
	if err != nil {
		return nil, err
	}
	return &RawSink{
		files:      files,
		bits:       conf.RawPixelBits,
		binning:    conf.Binning,
		frameLimit: frameLimit(conf.MaxFrames),
	}, nil
}

func (s *RawSink) Write(v *frame.View, ordinal int) (bool, error) {
	p, err := binned(v, s.binning)
	if err != nil {
		return false, err
	}
	raw := func(w io.Writer, p *frame.Plane, _ frameInfo) error {
		return writeRaw(w, p, s.bits)
	}
	if err := s.files.write(v, ordinal, p, frameInfo{}, raw); err != nil {
		return false, err
	}
	return s.reached(ordinal), nil
}

func (s *RawSink) Close() error {
	return nil
}

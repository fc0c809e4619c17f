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

// Package headers reads and writes the ENVI header that describes the
// shape and pixel type of a data cube.
package headers

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/ioutil"
	"strconv"
	"strings"
)

const (
	magic = "ENVI"

	// InterleaveBIP is band interleaved by pixel.
	InterleaveBIP = "bip"

	FileTypeStandard = "ENVI Standard"
)

// ENVI data type codes.
const (
	DataTypeByte   = 1
	DataTypeUint16 = 12
	DataTypeUint32 = 13
)

// DataTypeFor returns the data type code for unsigned pixels of the
// given size.
func DataTypeFor(bytesPerPixel int) (int, error) {
	switch bytesPerPixel {
	case 1:
		return DataTypeByte, nil
	case 2:
		return DataTypeUint16, nil
	case 4:
		return DataTypeUint32, nil
	}
	return 0, fmt.Errorf("no data type for %d byte pixels", bytesPerPixel)
}

// ENVI describes a cube. Samples, Lines and Bands are fixed when the
// cube is created; the format has no way to grow them.
type ENVI struct {
	Description  string
	Samples      int
	Lines        int
	Bands        int
	HeaderOffset int
	FileType     string
	DataType     int
	Interleave   string

	// ByteOrder is 0 for little endian.
	ByteOrder int
}

// BytesPerPixel returns the size of one value of the data type.
func (h *ENVI) BytesPerPixel() int {
	switch h.DataType {
	case DataTypeByte:
		return 1
	case DataTypeUint16:
		return 2
	case DataTypeUint32:
		return 4
	}
	return 0
}

// DataSize is the size in bytes of the cube the header describes.
func (h *ENVI) DataSize() int64 {
	return int64(h.Samples) * int64(h.Lines) * int64(h.Bands) * int64(h.BytesPerPixel())
}

func (h *ENVI) Validate() error {
	if h.Samples <= 0 || h.Lines <= 0 || h.Bands <= 0 {
		return fmt.Errorf("cube shape %dx%dx%d is empty", h.Lines, h.Samples, h.Bands)
	}
	if h.BytesPerPixel() == 0 {
		return fmt.Errorf("unsupported data type %d", h.DataType)
	}
	return nil
}

// WriteTo writes the header in ENVI text form.
func (h *ENVI) WriteTo(w io.Writer) (int64, error) {
	var buf bytes.Buffer
	buf.WriteString(magic + "\n")
	if h.Description != "" {
		fmt.Fprintf(&buf, "description = {%s}\n", h.Description)
	}
	fmt.Fprintf(&buf, "samples = %d\n", h.Samples)
	fmt.Fprintf(&buf, "lines = %d\n", h.Lines)
	fmt.Fprintf(&buf, "bands = %d\n", h.Bands)
	fmt.Fprintf(&buf, "header offset = %d\n", h.HeaderOffset)
	fmt.Fprintf(&buf, "file type = %s\n", h.FileType)
	fmt.Fprintf(&buf, "data type = %d\n", h.DataType)
	fmt.Fprintf(&buf, "interleave = %s\n", h.Interleave)
	fmt.Fprintf(&buf, "byte order = %d\n", h.ByteOrder)
	return buf.WriteTo(w)
}

// ReadENVI parses a header. Unknown keys are ignored.
func ReadENVI(r io.Reader) (*ENVI, error) {
	reader := bufio.NewReader(r)
	first, err := reader.ReadString('\n')
	if err != nil && err != io.EOF {
		return nil, err
	}
	if strings.TrimSpace(first) != magic {
		return nil, errors.New("not an ENVI header")
	}

	h := new(ENVI)
	scanner := bufio.NewScanner(reader)
	for scanner.Scan() {
		key, value, ok := splitField(scanner.Text())
		if !ok {
			continue
		}
		switch key {
		case "description":
			h.Description = strings.TrimSuffix(strings.TrimPrefix(value, "{"), "}")
		case "file type":
			h.FileType = value
		case "interleave":
			h.Interleave = value
		case "samples", "lines", "bands", "header offset", "data type", "byte order":
			n, err := strconv.Atoi(value)
			if err != nil {
				return nil, fmt.Errorf("bad %s: %v", key, err)
			}
			*h.intField(key) = n
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return h, nil
}

// ReadENVIFile parses the header stored at filename.
func ReadENVIFile(filename string) (*ENVI, error) {
	buf, err := ioutil.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	return ReadENVI(bytes.NewReader(buf))
}

func (h *ENVI) intField(key string) *int {
	switch key {
	case "samples":
		return &h.Samples
	case "lines":
		return &h.Lines
	case "bands":
		return &h.Bands
	case "header offset":
		return &h.HeaderOffset
	case "data type":
		return &h.DataType
	}
	return &h.ByteOrder
}

func splitField(line string) (string, string, bool) {
	i := strings.Index(line, "=")
	if i < 0 {
		return "", "", false
	}
	key := strings.ToLower(strings.TrimSpace(line[:i]))
	return key, strings.TrimSpace(line[i+1:]), true
}

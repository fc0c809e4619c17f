package sink

import (
	"encoding/binary"
	"fmt"
	"image/jpeg"
	"image/png"
	"io"
	"strings"

	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"

	"github.com/TheCacophonyProject/frame-recorder/frame"
)

const jpegQuality = 95

// frameInfo is what an encoder needs to know about a frame besides its
// pixels.
type frameInfo struct {
	BytesPerPixel int
	Timestamp     int64
	Ordinal       int
}

type encoder func(w io.Writer, p *frame.Plane, info frameInfo) error

// normalizeExt returns ext lower-cased with a leading dot.
func normalizeExt(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}

// encoderFor picks the codec for a file extension. Raw extensions store
// pixels at their native size.
func encoderFor(ext string) (encoder, error) {
	switch normalizeExt(ext) {
	case ".png":
		return encodePNG, nil
	case ".jpg", ".jpeg":
		return encodeJPEG, nil
	case ".tif", ".tiff":
		return encodeTIFF, nil
	case ".bmp":
		return encodeBMP, nil
	case ".fits", ".fit":
		return encodeFITS, nil
	case ".raw", ".bin":
		return func(w io.Writer, p *frame.Plane, info frameInfo) error {
			return writeRaw(w, p, info.BytesPerPixel*8)
		}, nil
	}
	return nil, fmt.Errorf("no codec for file type %q", ext)
}

func encodePNG(w io.Writer, p *frame.Plane, info frameInfo) error {
	return png.Encode(w, p.Image(info.BytesPerPixel))
}

func encodeJPEG(w io.Writer, p *frame.Plane, info frameInfo) error {
	return jpeg.Encode(w, p.Image(info.BytesPerPixel), &jpeg.Options{Quality: jpegQuality})
}

func encodeTIFF(w io.Writer, p *frame.Plane, info frameInfo) error {
	return tiff.Encode(w, p.Image(info.BytesPerPixel), nil)
}

func encodeBMP(w io.Writer, p *frame.Plane, info frameInfo) error {
	return bmp.Encode(w, p.Image(info.BytesPerPixel))
}

// writeRaw writes the plane as little endian unsigned integers of the
// given bit width, saturating values which do not fit.
func writeRaw(w io.Writer, p *frame.Plane, bits int) error {
	size := bits / 8
	buf := make([]byte, len(p.Pix)*size)
	for i, v := range p.Pix {
		v = frame.Clamp(v, size)
		switch size {
		case 1:
			buf[i] = uint8(v)
		case 2:
			binary.LittleEndian.PutUint16(buf[2*i:], uint16(v))
		case 4:
			binary.LittleEndian.PutUint32(buf[4*i:], v)
		default:
			return fmt.Errorf("unsupported raw pixel width %d bits", bits)
		}
	}
	_, err := w.Write(buf)
	return err
}

func validRawBits(bits int) bool {
	return bits == 8 || bits == 16 || bits == 32
}

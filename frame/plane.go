package frame

import (
	"image"
	"math"
)

// Plane is a row-major 2D pixel array. Values are held as uint32 so
// summed bins do not overflow.
type Plane struct {
	Rows int
	Cols int
	Pix  []uint32
}

func NewPlane(rows, cols int) *Plane {
	return &Plane{
		Rows: rows,
		Cols: cols,
		Pix:  make([]uint32, rows*cols),
	}
}

func (p *Plane) At(y, x int) uint32 {
	return p.Pix[y*p.Cols+x]
}

func (p *Plane) Set(y, x int, v uint32) {
	p.Pix[y*p.Cols+x] = v
}

// Row returns row y, sharing storage with the plane.
func (p *Plane) Row(y int) []uint32 {
	return p.Pix[y*p.Cols : (y+1)*p.Cols]
}

func (p *Plane) Sum() uint64 {
	var s uint64
	for _, v := range p.Pix {
		s += uint64(v)
	}
	return s
}

// MaxValue is the largest value storable in the given number of bytes.
func MaxValue(bytesPerPixel int) uint32 {
	switch bytesPerPixel {
	case 1:
		return math.MaxUint8
	case 2:
		return math.MaxUint16
	}
	return math.MaxUint32
}

// Clamp saturates v to the range of bytesPerPixel.
func Clamp(v uint32, bytesPerPixel int) uint32 {
	if max := MaxValue(bytesPerPixel); v > max {
		return max
	}
	return v
}

// Image converts the plane to *image.Gray for 1 byte pixels and
// *image.Gray16 otherwise. Values beyond the depth saturate.
func (p *Plane) Image(bytesPerPixel int) image.Image {
	rect := image.Rect(0, 0, p.Cols, p.Rows)
	if bytesPerPixel == 1 {
		img := image.NewGray(rect)
		for y := 0; y < p.Rows; y++ {
			for x, v := range p.Row(y) {
				img.Pix[y*img.Stride+x] = uint8(Clamp(v, 1))
			}
		}
		return img
	}
	img := image.NewGray16(rect)
	for y := 0; y < p.Rows; y++ {
		for x, v := range p.Row(y) {
			v = Clamp(v, 2)
			i := y*img.Stride + 2*x
			img.Pix[i] = uint8(v >> 8)
			img.Pix[i+1] = uint8(v)
		}
	}
	return img
}

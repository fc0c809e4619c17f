package sink

import (
	"io"

	"github.com/astrogo/fitsio"

	"github.com/TheCacophonyProject/frame-recorder/frame"
)

// encodeFITS writes a single 16 bit FITS image. 16 bit frames are
// offset by BZERO so unsigned values survive the signed storage.
func encodeFITS(w io.Writer, p *frame.Plane, info frameInfo) error {
	f, err := fitsio.Create(w)
	if err != nil {
		return err
	}
	defer f.Close()

	im := fitsio.NewImage(16, []int{p.Cols, p.Rows})
	defer im.Close()

	cards := []fitsio.Card{
		{Name: "TSTAMP", Value: int(info.Timestamp), Comment: "arrival time, ms since epoch"},
		{Name: "FRAMENUM", Value: info.Ordinal, Comment: "frame ordinal"},
	}
	unsigned16 := info.BytesPerPixel == 2
	if unsigned16 {
		cards = append(cards, fitsio.Card{Name: "BZERO", Value: 32768}, fitsio.Card{Name: "BSCALE", Value: 1.0})
	}
	if err := im.Header().Append(cards...); err != nil {
		return err
	}

	data := make([]int16, len(p.Pix))
	for i, v := range p.Pix {
		if unsigned16 {
			data[i] = int16(int32(frame.Clamp(v, 2)) - 32768)
		} else {
			data[i] = int16(frame.Clamp(v, 1))
		}
	}
	if err := im.Write(data); err != nil {
		return err
	}
	return f.Write(im)
}

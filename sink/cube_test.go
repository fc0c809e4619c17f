package sink

import (
	"encoding/binary"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheCacophonyProject/frame-recorder/camera"
	"github.com/TheCacophonyProject/frame-recorder/frame"
	"github.com/TheCacophonyProject/frame-recorder/headers"
)

func fixedNow(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestCubeRun(t *testing.T) {
	dir := tempDir(t)
	start := time.Unix(1600000000, 0)
	s, err := NewCubeSink(Config{
		Format:    FormatCube,
		Folder:    dir,
		BaseName:  "cube_",
		MaxFrames: 20,
		AOI:       camera.AOI{YMax: 100, XMax: 50},
		RunID:     "run-1",
		Now:       fixedNow(start),
	})
	require.NoError(t, err)

	paths := s.Paths()
	assert.Equal(t, dir+"/cube_1600000000000.bip", paths.Data)
	assert.Equal(t, dir+"/cube_1600000000000.hdr", paths.Header)
	assert.Equal(t, dir+"/cube_1600000000000_timing.csv", paths.Timing)

	for i := 0; i < 20; i++ {
		v := makeView(t, 50, 100, 1, start.Add(time.Duration(i)*time.Millisecond), constant(uint32(i)))
		stop, err := s.Write(v, i)
		require.NoError(t, err)
		assert.Equal(t, i == 19, stop, "ordinal %d", i)
	}
	require.NoError(t, s.Close())

	info, err := os.Stat(paths.Data)
	require.NoError(t, err)
	assert.Equal(t, int64(100*50*20), info.Size())

	h, err := headers.ReadENVIFile(paths.Header)
	require.NoError(t, err)
	assert.Equal(t, 100, h.Lines)
	assert.Equal(t, 50, h.Bands)
	assert.Equal(t, 20, h.Samples)
	assert.Equal(t, headers.DataTypeByte, h.DataType)
	assert.Equal(t, headers.InterleaveBIP, h.Interleave)
	assert.Contains(t, h.Description, "run-1")

	timing := readAll(t, paths.Timing)
	assert.Equal(t, 20, countLines(timing))
	assert.True(t, strings.HasPrefix(string(timing), "0,1600000000000\n1,1600000000001\n"))
}

func TestCubePlacesFrameInItsSample(t *testing.T) {
	dir := tempDir(t)
	s, err := NewCubeSink(Config{
		Folder:        dir,
		MaxFrames:     4,
		AOI:           camera.AOI{YMax: 2, XMax: 3},
		BytesPerPixel: 2,
	})
	require.NoError(t, err)
	assert.Equal(t, headers.DataTypeUint16, s.Header().DataType)

	v := makeView(t, 3, 2, 2, time.Unix(1, 0), func(x, y int) uint32 { return uint32(1000 + 10*y + x) })
	stop, err := s.Write(v, 2)
	require.NoError(t, err)
	assert.False(t, stop)
	require.NoError(t, s.Close())

	data := readAll(t, s.Paths().Data)
	require.Len(t, data, 2*3*4*2)
	const bands, samples, bpp = 3, 4, 2
	for y := 0; y < 2; y++ {
		for x := 0; x < 3; x++ {
			off := ((y*samples+2)*bands + x) * bpp
			assert.Equal(t, uint16(1000+10*y+x), binary.LittleEndian.Uint16(data[off:]), "(%d, %d)", x, y)
		}
	}
	// Other samples stay zero.
	assert.Equal(t, uint16(0), binary.LittleEndian.Uint16(data[0:]))
}

func TestCubeWithBinning(t *testing.T) {
	s, err := NewCubeSink(Config{
		Folder:    tempDir(t),
		MaxFrames: 2,
		AOI:       camera.AOI{YMax: 4, XMax: 6},
		Binning:   frame.Binning{H: 3, V: 2, Mode: frame.Sum},
	})
	require.NoError(t, err)
	h := s.Header()
	assert.Equal(t, 2, h.Lines)
	assert.Equal(t, 2, h.Bands)

	// A 6 pixel block of 50 sums past the byte range and saturates.
	_, err = s.Write(makeView(t, 6, 4, 1, time.Unix(1, 0), constant(50)), 0)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	data := readAll(t, s.Paths().Data)
	assert.Equal(t, byte(255), data[0])
}

func TestCubeRejectsWrongShape(t *testing.T) {
	s, err := NewCubeSink(Config{Folder: tempDir(t), MaxFrames: 2, AOI: camera.AOI{YMax: 4, XMax: 4}})
	require.NoError(t, err)
	defer s.Close()
	_, err = s.Write(makeView(t, 4, 3, 1, time.Unix(1, 0), constant(1)), 0)
	assert.Error(t, err)
}

func TestCubeFull(t *testing.T) {
	s, err := NewCubeSink(Config{Folder: tempDir(t), MaxFrames: 2, AOI: camera.AOI{YMax: 2, XMax: 2}})
	require.NoError(t, err)
	defer s.Close()

	_, err = s.Write(makeView(t, 2, 2, 1, time.Unix(1, 0), constant(1)), 2)
	assert.Equal(t, ErrCubeFull, err)
	assert.False(t, s.Exhausted(1))
	assert.True(t, s.Exhausted(2))
}

func TestCubeFlushCadence(t *testing.T) {
	s, err := NewCubeSink(Config{
		Folder:     tempDir(t),
		MaxFrames:  10,
		AOI:        camera.AOI{YMax: 2, XMax: 2},
		FlushEvery: 3,
	})
	require.NoError(t, err)

	for i := 0; i < 4; i++ {
		_, err := s.Write(makeView(t, 2, 2, 1, time.Unix(int64(i), 0), constant(1)), i)
		require.NoError(t, err)
	}
	assert.Equal(t, 1, s.Flushes())

	require.NoError(t, s.Close())
	assert.Equal(t, 2, s.Flushes())

	require.NoError(t, s.Close())
	assert.Equal(t, 2, s.Flushes())
}

func TestCubeFlushesOnLastFrame(t *testing.T) {
	s, err := NewCubeSink(Config{
		Folder:     tempDir(t),
		MaxFrames:  3,
		AOI:        camera.AOI{YMax: 2, XMax: 2},
		FlushEvery: 100,
	})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := s.Write(makeView(t, 2, 2, 1, time.Unix(int64(i), 0), constant(1)), i)
		require.NoError(t, err)
	}
	assert.Equal(t, 1, s.Flushes())

	// Nothing left to flush.
	require.NoError(t, s.Close())
	assert.Equal(t, 1, s.Flushes())

	_, err = s.Write(makeView(t, 2, 2, 1, time.Unix(9, 0), constant(1)), 0)
	assert.Error(t, err)
}

func TestCubeSetupFailureLeavesNoFiles(t *testing.T) {
	dir := tempDir(t)
	start := time.Unix(1600000000, 0)
	conf := Config{
		Folder:    dir,
		BaseName:  "cube_",
		MaxFrames: 4,
		AOI:       camera.AOI{YMax: 2, XMax: 2},
		Now:       fixedNow(start),
	}
	// A directory where the timing log should go makes the last step fail.
	require.NoError(t, os.Mkdir(dir+"/cube_1600000000000_timing.csv", 0755))

	_, err := NewCubeSink(conf)
	require.Error(t, err)
	assert.Equal(t, []string{"cube_1600000000000_timing.csv"}, listDir(t, dir))
}

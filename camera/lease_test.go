package camera

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type releaseDriver struct {
	released   []int
	releaseErr error
}

func (d *releaseDriver) CaptureVideo() error { return nil }
func (d *releaseDriver) StopVideo() error    { return nil }
func (d *releaseDriver) Handle() int         { return 1 }
func (d *releaseDriver) WaitForNextBuffer(time.Duration) (*ImageBuffer, error) {
	return nil, ErrTimeout
}
func (d *releaseDriver) Release(buf *ImageBuffer) error {
	d.released = append(d.released, buf.ID)
	return d.releaseErr
}

func TestLeaseReleasesOnce(t *testing.T) {
	d := new(releaseDriver)
	lease := Borrow(d, &ImageBuffer{ID: 7})

	require.NotNil(t, lease.Buffer())
	require.NoError(t, lease.Release())
	assert.True(t, lease.Released())
	assert.Nil(t, lease.Buffer())

	assert.Equal(t, ErrReleased, lease.Release())
	assert.Equal(t, []int{7}, d.released)
}

func TestFailedReleaseIsNotRetried(t *testing.T) {
	d := &releaseDriver{releaseErr: errors.New("bad slot")}
	lease := Borrow(d, &ImageBuffer{ID: 3})

	assert.EqualError(t, lease.Release(), "bad slot")
	assert.Equal(t, ErrReleased, lease.Release())
	assert.Equal(t, []int{3}, d.released)
}

func TestWithBufferReleasesOnError(t *testing.T) {
	d := new(releaseDriver)
	err := WithBuffer(d, &ImageBuffer{ID: 1}, func(*Lease) error {
		return errors.New("disk full")
	}, nil)

	assert.EqualError(t, err, "disk full")
	assert.Equal(t, []int{1}, d.released)
}

func TestWithBufferReleasesOnPanic(t *testing.T) {
	d := new(releaseDriver)
	assert.Panics(t, func() {
		WithBuffer(d, &ImageBuffer{ID: 2}, func(*Lease) error {
			panic("boom")
		}, nil)
	})
	assert.Equal(t, []int{2}, d.released)
}

func TestWithBufferDoesNotReleaseTwice(t *testing.T) {
	d := new(releaseDriver)
	err := WithBuffer(d, &ImageBuffer{ID: 4}, func(l *Lease) error {
		return l.Release()
	}, nil)

	require.NoError(t, err)
	assert.Equal(t, []int{4}, d.released)
}

func TestWithBufferReportsReleaseError(t *testing.T) {
	d := &releaseDriver{releaseErr: errors.New("gone")}
	var reported error
	err := WithBuffer(d, &ImageBuffer{ID: 5}, func(*Lease) error {
		return nil
	}, func(err error) { reported = err })

	require.NoError(t, err)
	assert.EqualError(t, reported, "gone")
}

func TestValidateBuffer(t *testing.T) {
	buf := &ImageBuffer{Mem: make([]byte, 10*4), Width: 3, Height: 4, BytesPerPixel: 1, Stride: 10}
	assert.NoError(t, buf.Validate())

	buf.Stride = 2
	assert.Error(t, buf.Validate())

	buf.Stride = 10
	buf.Mem = buf.Mem[:32]
	assert.Error(t, buf.Validate())

	buf.Mem = make([]byte, 80)
	buf.BytesPerPixel = 3
	assert.Error(t, buf.Validate())
}

func TestAOI(t *testing.T) {
	aoi := AOI{YMin: 0, XMin: 0, YMax: 100, XMax: 50}
	assert.Equal(t, 100, aoi.Height())
	assert.Equal(t, 50, aoi.Width())
	assert.NoError(t, aoi.Validate())
	assert.False(t, aoi.IsZero())

	assert.True(t, AOI{}.IsZero())
	assert.Error(t, AOI{}.Validate())
	assert.Error(t, AOI{YMin: -1, YMax: 5, XMax: 5}.Validate())
}

func TestRegistry(t *testing.T) {
	Register("test-registry", func(s Settings) (Driver, error) {
		return new(releaseDriver), nil
	})
	assert.Contains(t, Drivers(), "test-registry")

	d, err := Open("test-registry", Settings{})
	require.NoError(t, err)
	assert.Equal(t, 1, d.Handle())

	_, err = Open("missing", Settings{})
	assert.Error(t, err)

	assert.Panics(t, func() {
		Register("test-registry", nil)
	})
}

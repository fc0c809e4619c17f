package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheCacophonyProject/frame-recorder/acquire"
	"github.com/TheCacophonyProject/frame-recorder/camera"
	"github.com/TheCacophonyProject/frame-recorder/frame"
	"github.com/TheCacophonyProject/frame-recorder/sink"
)

func TestAllDefaults(t *testing.T) {
	conf, err := ParseConfig([]byte(""))
	require.NoError(t, err)

	assert.Equal(t, Config{
		OutputDir:      ".",
		BaseName:       "frame_",
		Camera:         "sim",
		FPS:            20,
		MaxFrames:      100,
		Format:         sink.FormatImage,
		FileType:       "jpg",
		NameBy:         sink.NameByTimestamp,
		Binning:        frame.Binning{H: 1, V: 1, Mode: frame.Average},
		AOI:            camera.AOI{YMax: 1088, XMax: 2048},
		PixelClock:     160,
		BitDepth:       8,
		RawPixelBits:   16,
		CaptureTimeout: time.Second,
		FlushEvery:     100,
		WatchdogFrames: 100,
	}, *conf)
	assert.Equal(t, 50*time.Millisecond, conf.settings().Exposure)
}

func TestAllSet(t *testing.T) {
	config := []byte(`
output-dir: /data/cubes
base-name: run_
camera: sim
fps: 50
max-frames: 20
format: cube
file-type: bip
name-by: ordinal
binning:
    h: 2
    v: 4
    mode: sum
aoi:
    ymin: 0
    xmin: 0
    ymax: 100
    xmax: 50
pixel-clock: 200
bit-depth: 16
raw-pixel-bits: 32
capture-timeout: 250ms
flush-every: 5
watchdog-frames: 10
verbose: true
`)
	conf, err := ParseConfig(config)
	require.NoError(t, err)

	assert.Equal(t, Config{
		OutputDir:      "/data/cubes",
		BaseName:       "run_",
		Camera:         "sim",
		FPS:            50,
		MaxFrames:      20,
		Format:         sink.FormatCube,
		FileType:       "bip",
		NameBy:         sink.NameByOrdinal,
		Binning:        frame.Binning{H: 2, V: 4, Mode: frame.Sum},
		AOI:            camera.AOI{YMax: 100, XMax: 50},
		PixelClock:     200,
		BitDepth:       16,
		RawPixelBits:   32,
		CaptureTimeout: 250 * time.Millisecond,
		FlushEvery:     5,
		WatchdogFrames: 10,
		Verbose:        true,
	}, *conf)

	applied := conf.settings()
	applied.AOI.XMax = 48
	sc := conf.sinkConfig("abc", applied)
	assert.Equal(t, "abc", sc.RunID)
	assert.Equal(t, 2, sc.BytesPerPixel)
	assert.Equal(t, camera.AOI{YMax: 100, XMax: 48}, sc.AOI)
}

func TestInvalidConfig(t *testing.T) {
	for _, config := range []string{
		"fps: 0",
		"max-frames: -1",
		"bit-depth: 12",
		"format: video",
		"format: cube\nmax-frames: 0",
		"aoi: {ymin: 10, xmin: 0, ymax: 5, xmax: 10}",
		"binning: {h: 3}",
		"binning: {mode: median}",
	} {
		conf, err := ParseConfig([]byte(config))
		if err == nil {
			err = applyArgs(conf, Args{Frames: -1})
		}
		assert.Error(t, err, config)
	}
}

func TestArgsOverrideConfig(t *testing.T) {
	conf, err := ParseConfig([]byte("fps: 10\nmax-frames: 5"))
	require.NoError(t, err)

	args := Args{
		Path:        "/tmp/out",
		Base:        "x_",
		FPS:         25,
		Frames:      0,
		FileType:    "png",
		BinH:        2,
		BinV:        2,
		BinningMode: "sum",
		AOI:         "0, 0, 64, 32",
		Verbose:     true,
	}
	require.NoError(t, applyArgs(conf, args))
	assert.Equal(t, "/tmp/out", conf.OutputDir)
	assert.Equal(t, "x_", conf.BaseName)
	assert.Equal(t, 25.0, conf.FPS)
	assert.Equal(t, 0, conf.MaxFrames)
	assert.Equal(t, "png", conf.FileType)
	assert.Equal(t, frame.Binning{H: 2, V: 2, Mode: frame.Sum}, conf.Binning)
	assert.Equal(t, camera.AOI{YMax: 64, XMax: 32}, conf.AOI)
	assert.True(t, conf.Verbose)
}

func TestUnsetArgsKeepConfig(t *testing.T) {
	conf, err := ParseConfig([]byte("max-frames: 5"))
	require.NoError(t, err)
	require.NoError(t, applyArgs(conf, Args{Frames: -1}))
	assert.Equal(t, 5, conf.MaxFrames)
	assert.Equal(t, 20.0, conf.FPS)
}

func TestArgsFixConfig(t *testing.T) {
	conf, err := ParseConfig([]byte("format: cube\nmax-frames: 0\nbinning: {h: 3}"))
	require.NoError(t, err)
	require.NoError(t, applyArgs(conf, Args{Frames: 10, AOI: "0,0,30,60"}))
	assert.Equal(t, 10, conf.MaxFrames)
	assert.Equal(t, camera.AOI{YMax: 30, XMax: 60}, conf.AOI)
}

func TestBadArgs(t *testing.T) {
	conf, err := ParseConfig(nil)
	require.NoError(t, err)
	assert.Error(t, applyArgs(conf, Args{Frames: -1, AOI: "1,2,3"}))
	assert.Error(t, applyArgs(conf, Args{Frames: -1, BinningMode: "max"}))
	assert.Error(t, applyArgs(conf, Args{Frames: -1, BinH: 3}))
}

func TestMissingConfigFileGivesDefaults(t *testing.T) {
	conf, err := ParseConfigFile("/nonexistent/frame-recorder.yaml")
	require.NoError(t, err)
	assert.Equal(t, defaultConfig, *conf)
}

func TestProgressFeedsWatchdog(t *testing.T) {
	p := newProgress(3, 20)
	var notes []string
	p.notify = func(state string) { notes = append(notes, state) }

	for i := 1; i <= 4; i++ {
		p.FrameProcessed(acquire.Stats{Processed: i})
	}
	p.FrameLost(acquire.Stats{})
	p.FrameLost(acquire.Stats{})
	assert.Equal(t, []string{"WATCHDOG=1", "WATCHDOG=1"}, notes)
}

type fakeLoop struct {
	state acquire.State
	stops int
}

func (l *fakeLoop) Stop()                { l.stops++ }
func (l *fakeLoop) State() acquire.State { return l.state }
func (l *fakeLoop) Stats() acquire.Stats { return acquire.Stats{Processed: 7, Lost: 2} }

func TestServiceMethods(t *testing.T) {
	loop := &fakeLoop{state: acquire.Running}
	s := &service{loop: loop}

	assert.Nil(t, s.Stop())
	assert.Equal(t, 1, loop.stops)

	frames, lost, dbusErr := s.Status()
	assert.Nil(t, dbusErr)
	assert.Equal(t, int32(7), frames)
	assert.Equal(t, int32(2), lost)

	loop.state = acquire.Stopped
	dbusErr = s.Stop()
	require.NotNil(t, dbusErr)
	assert.Equal(t, dbusName+".Stop", dbusErr.Name)
}

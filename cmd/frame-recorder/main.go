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
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	arg "github.com/alexflint/go-arg"
	"github.com/coreos/go-systemd/daemon"
	"github.com/google/uuid"

	"github.com/TheCacophonyProject/frame-recorder/acquire"
	"github.com/TheCacophonyProject/frame-recorder/camera"
	_ "github.com/TheCacophonyProject/frame-recorder/camera/sim"
	"github.com/TheCacophonyProject/frame-recorder/sink"
)

// frameLogSecs is roughly how often the frame count is logged.
const frameLogSecs = 60

var version = "<not set>"

type Args struct {
	Path        string  `arg:"positional" help:"folder to save frames in"`
	Base        string  `arg:"positional" help:"base name for saved files"`
	FPS         float64 `arg:"-f,--fps" help:"frames per second"`
	Frames      int     `arg:"-n,--frames" help:"number of frames to record, 0 for no limit"`
	FileType    string  `arg:"-t,--file-type" help:"file type for saved frames (png, jpg, tiff, bmp, fits, raw)"`
	Format      string  `arg:"--format" help:"image, raw or cube"`
	NameBy      string  `arg:"--name-by" help:"name frame files by timestamp or ordinal"`
	BinH        int     `arg:"--bin-h" help:"horizontal binning factor"`
	BinV        int     `arg:"--bin-v" help:"vertical binning factor"`
	BinningMode string  `arg:"--binning-mode" help:"sum or average"`
	AOI         string  `arg:"--aoi" help:"area of interest as ymin,xmin,ymax,xmax"`
	Camera      string  `arg:"--camera" help:"camera driver to use"`
	ConfigFile  string  `arg:"-c,--config" help:"path to configuration file"`
	Verbose     bool    `arg:"-v,--verbose" help:"log every frame"`
	Timestamps  bool    `arg:"--timestamps" help:"include timestamps in log output"`
}

func (Args) Version() string {
	return version
}

func procArgs() Args {
	var args Args
	args.ConfigFile = "/etc/frame-recorder.yaml"
	args.Frames = -1
	arg.MustParse(&args)
	return args
}

func main() {
	err := runMain()
	if err != nil {
		log.Fatal(err)
	}
}

func runMain() error {
	args := procArgs()
	if !args.Timestamps {
		log.SetFlags(0) // Removes default timestamp flag
	}

	log.Printf("running version: %s", version)
	conf, err := ParseConfigFile(args.ConfigFile)
	if err != nil {
		return err
	}
	if err := applyArgs(conf, args); err != nil {
		return err
	}
	runID := uuid.NewString()
	log.Printf("run id: %s", runID)
	logConfig(conf)

	log.Printf("opening %s camera", conf.Camera)
	driver, err := camera.Open(conf.Camera, conf.settings())
	if err != nil {
		return err
	}
	settings, err := configureCamera(driver, conf.settings())
	if err != nil {
		return err
	}

	s, err := sink.New(conf.sinkConfig(runID, settings))
	if err != nil {
		return err
	}
	if cube, ok := s.(*sink.CubeSink); ok {
		log.Printf("writing cube to %s", cube.Paths().Data)
	}

	loop := acquire.New(driver, s, acquire.Options{
		Timeout:  conf.CaptureTimeout,
		Verbose:  conf.Verbose,
		Listener: newProgress(conf.WatchdogFrames, settings.FPS),
	})

	log.Println("starting d-bus service")
	if err := startService(loop); err != nil {
		log.Printf("d-bus service unavailable, stop with a signal instead: %v", err)
	}
	go stopOnSignal(loop)

	log.Println("capturing")
	if err := loop.Start(); err != nil {
		return err
	}
	sdNotify(daemon.SdNotifyReady)
	err = loop.Wait()
	sdNotify(daemon.SdNotifyStopping)

	stats := loop.Stats()
	log.Printf("%d frames written, %d lost", stats.Processed, stats.Lost)
	if stats.ReleaseErrors > 0 {
		log.Printf("%d buffers failed to release", stats.ReleaseErrors)
	}
	return err
}

// configureCamera applies s to drivers which take settings and logs what
// the device actually accepted. When the device settles on another frame
// rate the exposure is fitted to that rate.
func configureCamera(driver camera.Driver, s camera.Settings) (camera.Settings, error) {
	c, ok := driver.(camera.Configurable)
	if !ok {
		return s, nil
	}
	applied, err := c.Configure(s)
	if err != nil {
		return s, fmt.Errorf("configuring camera: %w", err)
	}
	if applied.FPS > 0 && applied.FPS != s.FPS {
		s.FPS = applied.FPS
		s.Exposure = time.Duration(float64(time.Second) / applied.FPS)
		if applied, err = c.Configure(s); err != nil {
			return s, fmt.Errorf("configuring camera: %w", err)
		}
	}
	log.Printf("camera pixel clock: %d MHz", applied.PixelClock)
	log.Printf("camera frame rate: %.2f fps", applied.FPS)
	log.Printf("camera exposure: %v", applied.Exposure)
	log.Printf("camera bit depth: %d", applied.BitDepth)
	log.Printf("camera aoi: %s", applied.AOI)
	return applied, nil
}

func stopOnSignal(loop *acquire.Loop) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigs)
	select {
	case sig := <-sigs:
		log.Printf("%v received, stopping", sig)
		loop.Stop()
	case <-loop.Done():
	}
}

func logConfig(conf *Config) {
	log.Printf("output: %s%s (%s, %s)", conf.OutputDir, conf.BaseName, conf.Format, conf.FileType)
	log.Printf("camera: %s", conf.Camera)
	log.Printf("frame rate: %v fps", conf.FPS)
	if conf.MaxFrames > 0 {
		log.Printf("frames: %d", conf.MaxFrames)
	} else {
		log.Print("frames: no limit")
	}
	log.Printf("aoi: %s", conf.AOI)
	log.Printf("binning: %s", conf.Binning)
	log.Printf("capture timeout: %v", conf.CaptureTimeout)
	if conf.Format == sink.FormatCube {
		log.Printf("flush every: %d frames", conf.FlushEvery)
	}
}

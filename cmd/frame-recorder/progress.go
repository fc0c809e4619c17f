package main

import (
	"log"

	"github.com/coreos/go-systemd/daemon"

	"github.com/TheCacophonyProject/frame-recorder/acquire"
)

// progress keeps the systemd watchdog fed while frames keep coming, and
// logs the frame count now and then.
type progress struct {
	watchdogEvery int
	logEvery      int
	sinceNotify   int
	notify        func(state string)
}

func newProgress(watchdogEvery int, fps float64) *progress {
	logEvery := int(fps * frameLogSecs)
	if logEvery < 1 {
		logEvery = 1
	}
	return &progress{
		watchdogEvery: watchdogEvery,
		logEvery:      logEvery,
		notify:        sdNotify,
	}
}

func (p *progress) FrameProcessed(stats acquire.Stats) {
	p.tick()
	if stats.Processed%p.logEvery == 0 {
		log.Printf("%d frames written, %d lost", stats.Processed, stats.Lost)
	}
}

// FrameLost still feeds the watchdog; the loop is alive, the camera is
// just not delivering.
func (p *progress) FrameLost(acquire.Stats) {
	p.tick()
}

func (p *progress) tick() {
	if p.sinceNotify++; p.sinceNotify >= p.watchdogEvery {
		p.notify(daemon.SdNotifyWatchdog)
		p.sinceNotify = 0
	}
}

func sdNotify(state string) {
	if _, err := daemon.SdNotify(false, state); err != nil {
		log.Printf("systemd notify %q failed: %v", state, err)
	}
}

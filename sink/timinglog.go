package sink

import (
	"encoding/csv"
	"os"
	"strconv"
)

// timingLog records when each cube frame arrived, one
// "ordinal,timestamp_ms" row per written frame.
type timingLog struct {
	f *os.File
	w *csv.Writer
}

func createTimingLog(filename string) (*timingLog, error) {
	f, err := os.Create(filename)
	if err != nil {
		return nil, err
	}
	return &timingLog{f: f, w: csv.NewWriter(f)}, nil
}

func (l *timingLog) append(ordinal int, timestamp int64) error {
	return l.w.Write([]string{strconv.Itoa(ordinal), strconv.FormatInt(timestamp, 10)})
}

// sync pushes buffered rows through to the disk.
func (l *timingLog) sync() error {
	l.w.Flush()
	if err := l.w.Error(); err != nil {
		return err
	}
	return l.f.Sync()
}

func (l *timingLog) close() error {
	err := l.sync()
	if cerr := l.f.Close(); err == nil {
		err = cerr
	}
	return err
}

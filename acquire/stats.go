package acquire

// State is where a Loop is in its life.
type State int32

const (
	Idle State = iota
	Running
	Stopping
	Stopped
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Stopping:
		return "stopping"
	case Stopped:
		return "stopped"
	}
	return "unknown"
}

// Stats counts what a Loop has done so far.
type Stats struct {
	// Ordinal is the ordinal the next frame will get. It counts missed
	// frames as well as written ones.
	Ordinal int

	Processed           int
	Lost                int
	ReleaseErrors       int
	ConsecutiveFailures int
}

// Listener is told about each frame as the loop deals with it. It is
// called on the loop goroutine and must not block.
type Listener interface {
	FrameProcessed(Stats)
	FrameLost(Stats)
}

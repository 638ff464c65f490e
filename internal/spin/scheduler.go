package spin

import "time"

// Timer is a cancellable pending callback. *time.Timer satisfies it.
type Timer interface {
	Stop() bool
}

// Scheduler is the controller's view of the event loop: delayed callbacks
// and "next rendering frame" callbacks.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
	NextFrame(f func()) Timer
}

// DefaultFrameInterval approximates one 60 Hz frame.
const DefaultFrameInterval = 16 * time.Millisecond

// RealScheduler runs callbacks on runtime timers.
type RealScheduler struct {
	FrameInterval time.Duration
}

func (s RealScheduler) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

func (s RealScheduler) NextFrame(f func()) Timer {
	d := s.FrameInterval
	if d <= 0 {
		d = DefaultFrameInterval
	}
	return time.AfterFunc(d, f)
}

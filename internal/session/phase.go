package session

import "sync/atomic"

// Phase is the session's one-way latch.
type Phase int32

const (
	PhaseWaiting Phase = iota
	PhasePlaying
	PhaseFinishing
	PhaseFinished
)

func (p Phase) String() string {
	switch p {
	case PhaseWaiting:
		return "waiting"
	case PhasePlaying:
		return "playing"
	case PhaseFinishing:
		return "finishing"
	case PhaseFinished:
		return "finished"
	}
	return "unknown"
}

// latch only moves forward; there is no way out of PhaseFinished.
type latch struct{ v atomic.Int32 }

func (l *latch) get() Phase { return Phase(l.v.Load()) }

// advance moves to p and reports whether it did.
func (l *latch) advance(p Phase) bool {
	for {
		cur := l.v.Load()
		if int32(p) <= cur {
			return false
		}
		if l.v.CompareAndSwap(cur, int32(p)) {
			return true
		}
	}
}

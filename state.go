package dualstream

import "github.com/gocapture/dualstream/platform"

// State is a stream's variant, per spec §3.
type State int

const (
	StreamOff State = iota
	StreamOn
	StreamDMA
)

func (s State) String() string {
	switch s {
	case StreamOff:
		return "STREAMOFF"
	case StreamOn:
		return "STREAMON"
	case StreamDMA:
		return "DMA"
	default:
		return "unknown"
	}
}

// RemainingInfinity is the sentinel meaning "continuous video, or
// still prior to take_picture_start" (spec §3).
const RemainingInfinity int32 = -1

// WaitCause identifies why a blocked rendezvous was posted.
type WaitCause int

const (
	CauseNone WaitCause = iota
	CauseDMADone
	CauseDQCancel
	WaitCauseStillStop
)

// rendezvous is the single-slot synchronous handoff between
// NotifyPath and a blocked Dequeue call (spec §3, glossary).
type rendezvous struct {
	flag     platform.BinarySemaphore
	doneSlot *Buffer
	cause    WaitCause
	waiting  bool
}

// StreamState is the per-stream state variable plus its rendezvous
// (spec §3).
type StreamState struct {
	Stream    Stream
	State     State
	Remaining int32
	wait      rendezvous
}

// NewStreamState returns a stream state in STREAMOFF with an
// infinite remaining-captures count, as required on first open
// (spec §3 lifecycle).
func NewStreamState(stream Stream, p platform.Platform) *StreamState {
	return &StreamState{
		Stream:    stream,
		State:     StreamOff,
		Remaining: RemainingInfinity,
		wait:      rendezvous{flag: p.NewBinarySemaphore()},
	}
}

// IsCapturing reports whether the stream currently owns or is
// waiting for DMA (used by the Arbiter's "still is capturing" test).
func (s *StreamState) IsCapturing() bool {
	return s.State == StreamOn || s.State == StreamDMA
}

// Reset returns the state to STREAMOFF with an infinite remaining
// count, used on last close (spec §3 lifecycle).
func (s *StreamState) Reset() {
	s.State = StreamOff
	s.Remaining = RemainingInfinity
}

package dualstream

import "golang.org/x/sys/unix"

// Stream identifies which of the two multiplexed streams a buffer,
// queue, or state belongs to.
type Stream int

const (
	StreamVideo Stream = iota
	StreamStill
)

func (s Stream) String() string {
	switch s {
	case StreamVideo:
		return "video"
	case StreamStill:
		return "still"
	default:
		return "unknown"
	}
}

func (s Stream) valid() bool {
	return s == StreamVideo || s == StreamStill
}

// BufferFlag carries out-of-band status for a completed buffer.
type BufferFlag uint32

const (
	// FlagError marks a completion delivered with a downstream error;
	// BytesUsed is not meaningful when set.
	FlagError BufferFlag = 1 << 0
)

// Buffer is the buffer descriptor described in spec §3: a value-type
// record identifying a piece of caller-owned memory plus bookkeeping
// filled in once a DMA completes. Two Buffers are never considered
// equal by value; callers track identity through Index.
type Buffer struct {
	Stream    Stream
	Ptr       uintptr
	Length    uint32
	BytesUsed uint32
	Flags     BufferFlag
	Index     uint32
	Timestamp unix.Timeval
}

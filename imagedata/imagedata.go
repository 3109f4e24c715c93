// Package imagedata declares the ImageData collaborator interface —
// the DMA-capable image pipeline the dualstream core drives — plus
// an in-memory reference implementation for tests and the demo
// daemon.
package imagedata

import (
	"fmt"

	"github.com/gocapture/dualstream/sensorctl"
)

// ImageData is the capability set the core uses to pre-check formats
// and to actually issue DMA start/cancel against the image pipeline.
// start_dma/set_dmabuf/cancel_dma are invoked from the same
// goroutine as the rest of StreamManager; the image pipeline itself
// is expected to deliver completions asynchronously to NotifyPath,
// outside this interface.
type ImageData interface {
	Open() error
	Close() error

	// ChkPixelFormat reports whether the pipeline accepts the given
	// main/sub pixel format pair at all (format-level filter used by
	// FormatCatalog construction).
	ChkPixelFormat(main, sub uint32) bool

	GetRangeOfFrameSize(pf sensorctl.PixFormat) (sensorctl.FrameSizeRange, error)

	// TryFormat reports whether width/height is acceptable for pf,
	// used both by FormatCatalog discrete-size enumeration and by the
	// S_FMT/TRY_FMT ioctl pre-check.
	TryFormat(pf sensorctl.PixFormat, width, height uint32) error

	StartDMA(pf sensorctl.PixFormat, width, height uint32, ptr uintptr, length uint32) error
	SetDMABuf(ptr uintptr, length uint32) error
	CancelDMA() error
}

// Mock is an in-memory ImageData. It accepts a configurable set of
// pixel formats and records Start/Cancel calls so tests can assert
// on them.
type Mock struct {
	Accepted map[uint32]bool
	Sizes    map[uint32]sensorctl.FrameSizeRange

	DMAActive  bool
	StartCalls int
	CancelCalls int
	LastFormat sensorctl.PixFormat
	LastWidth  uint32
	LastHeight uint32
	LastPtr    uintptr
	LastLength uint32
}

func NewMock(accepted map[uint32]bool, sizes map[uint32]sensorctl.FrameSizeRange) *Mock {
	return &Mock{Accepted: accepted, Sizes: sizes}
}

func (m *Mock) Open() error  { return nil }
func (m *Mock) Close() error { return nil }

func (m *Mock) ChkPixelFormat(main, sub uint32) bool {
	return m.Accepted[main]
}

func (m *Mock) GetRangeOfFrameSize(pf sensorctl.PixFormat) (sensorctl.FrameSizeRange, error) {
	r, ok := m.Sizes[pf.Main]
	if !ok {
		return sensorctl.FrameSizeRange{}, fmt.Errorf("imagedata: no size range for format %#x", pf.Main)
	}
	return r, nil
}

func (m *Mock) TryFormat(pf sensorctl.PixFormat, width, height uint32) error {
	if !m.Accepted[pf.Main] {
		return fmt.Errorf("imagedata: format %#x not accepted", pf.Main)
	}
	return nil
}

func (m *Mock) StartDMA(pf sensorctl.PixFormat, width, height uint32, ptr uintptr, length uint32) error {
	m.DMAActive = true
	m.StartCalls++
	m.LastFormat = pf
	m.LastWidth = width
	m.LastHeight = height
	m.LastPtr = ptr
	m.LastLength = length
	return nil
}

func (m *Mock) SetDMABuf(ptr uintptr, length uint32) error {
	m.LastPtr = ptr
	m.LastLength = length
	return nil
}

func (m *Mock) CancelDMA() error {
	m.DMAActive = false
	m.CancelCalls++
	return nil
}

// Package sensorctl declares the SensorCtl collaborator interface
// the dualstream core consults for format/control/scene capabilities,
// plus an in-memory reference implementation used by tests and the
// demo daemon. Real deployments implement SensorCtl against an
// actual image sensor driver; this package never touches hardware.
package sensorctl

import "errors"

// ErrIndexOutOfRange is the terminal sentinel a capability iterator
// returns once the caller's index has walked past the last entry.
var ErrIndexOutOfRange = errors.New("sensorctl: index out of range")

// PixFormat names a pixel format for the main image plane and, for
// sensors that expose a secondary (stereo/sub) image plane, the
// sub-image plane. Sensors without a sub-image leave Sub zero.
type PixFormat struct {
	Main uint32
	Sub  uint32
}

// FrameSizeType discriminates how a sensor advertises sizes for a
// given pixel format.
type FrameSizeType int

const (
	SizeDiscrete FrameSizeType = iota
	SizeStepwise
)

// Discrete is one concrete width/height pair.
type Discrete struct {
	Width  uint32
	Height uint32
}

// Stepwise is an inclusive range with a granularity step.
type Stepwise struct {
	MinWidth  uint32
	MaxWidth  uint32
	StepWidth uint32

	MinHeight  uint32
	MaxHeight  uint32
	StepHeight uint32
}

// FrameSizeRange is the sensor's or pipeline's size capability for a
// pixel format, covering both the main and (optionally) sub-image
// plane.
type FrameSizeRange struct {
	Type        FrameSizeType
	Discrete    Discrete
	Stepwise    Stepwise
	SubType     FrameSizeType
	SubDiscrete Discrete
	SubStepwise Stepwise
}

// FrameIntervalRange describes the sensor's supported frame interval
// capability for a format/size; the core treats it as an opaque
// pass-through payload.
type FrameIntervalRange struct {
	MinNumerator   uint32
	MinDenominator uint32
	MaxNumerator   uint32
	MaxDenominator uint32
	StepNumerator  uint32
	StepDenominator uint32
}

// FormatDesc is one entry of the sensor's advertised format table,
// indexed from zero.
type FormatDesc struct {
	Flags       uint32
	PixFormat   PixFormat
	Description string
}

// BufType distinguishes the video-capture and still-capture buffer
// types a sensor can be told to target, mirroring V4L2's buffer-type
// field.
type BufType int

const (
	BufTypeVideo BufType = iota
	BufTypeStill
)

// CtrlValueRange is the min/max/step/default for an integer control.
type CtrlValueRange struct {
	Minimum int32
	Maximum int32
	Step    int32
	Default int32
}

// SceneParamRange mirrors CtrlValueRange for scene-mode parameters.
type SceneParamRange = CtrlValueRange

// CtrlType names a control's wire representation. The legacy
// QUERYCTRL/G_CTRL/S_CTRL ioctls carry a 32-bit value and reject any
// control wider than that (spec §7).
type CtrlType int

const (
	CtrlTypeInteger CtrlType = iota
	CtrlTypeBoolean
	CtrlTypeMenu
	CtrlTypeInteger64
	CtrlTypeU8
	CtrlTypeU16
	CtrlTypeU32
)

// SensorCtl is the capability set the core uses to negotiate formats
// and pass through controls to the image sensor driver. Implementations
// must be safe for the single-goroutine-at-a-time access pattern the
// core already serializes with its own state locks; SensorCtl itself
// need not be internally synchronized beyond that.
type SensorCtl interface {
	Open() error
	Close() error

	// GetRangeOfFmt returns the index'th advertised format, or
	// ErrIndexOutOfRange once index exhausts the table.
	GetRangeOfFmt(index int) (FormatDesc, error)
	// GetRangeOfFrameSize returns the index'th frame-size capability
	// advertised for pf, or ErrIndexOutOfRange once index exhausts the
	// table. A sensor that advertises several discrete sizes for one
	// pixel format returns one at each index, mirroring how the
	// original driver walks its capability query by an incrementing
	// index rather than returning a single range per format.
	GetRangeOfFrameSize(pf PixFormat, index int) (FrameSizeRange, error)
	GetRangeOfFrameInterval(pf PixFormat, width, height uint32) (FrameIntervalRange, error)

	TryFormat(pf PixFormat, width, height uint32) error
	SetFormat(pf PixFormat, width, height uint32) error
	SetFrameInterval(numerator, denominator uint32) error
	SetBufType(t BufType) error
	GetBufType() (BufType, error)
	GetFormat() (PixFormat, uint32, uint32, error)

	DoHalfPush(enable bool) error

	GetCtrlType(id uint32) (CtrlType, error)
	GetRangeOfCtrlValue(id uint32) (CtrlValueRange, error)
	GetMenuOfCtrlValue(id uint32, index int) (int64, error)
	GetCtrlValue(id uint32) (int64, error)
	SetCtrlValue(id uint32, value int64) error

	GetRangeOfSceneParam(scene string, id uint32) (SceneParamRange, error)
	GetMenuOfSceneParam(scene string, id uint32, index int) (int64, error)
	GetSceneParam(scene string, id uint32) (int64, error)
	SetSceneParam(scene string, id uint32, value int64) error
}

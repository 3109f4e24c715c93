package dualstream

import (
	"errors"
	"fmt"

	"github.com/gocapture/dualstream/imagedata"
	"github.com/gocapture/dualstream/sensorctl"
)

// FormatDescriptor is one entry of a FormatCatalog, indexed by its
// position in the catalog (spec §4.2).
type FormatDescriptor struct {
	Index       int
	Flags       uint32
	PixFormat   sensorctl.PixFormat
	Description string
}

// FrameSizeDescriptor is one entry yielded by enumerating frame
// sizes for a given pixel format: either a concrete discrete pair or
// a single merged stepwise range, each optionally covering a
// sub-image plane.
type FrameSizeDescriptor struct {
	Discrete bool

	Width  uint32
	Height uint32

	MinWidth   uint32
	MaxWidth   uint32
	StepWidth  uint32
	MinHeight  uint32
	MaxHeight  uint32
	StepHeight uint32

	SubWidth  uint32
	SubHeight uint32

	SubMinWidth   uint32
	SubMaxWidth   uint32
	SubStepWidth  uint32
	SubMinHeight  uint32
	SubMaxHeight  uint32
	SubStepHeight uint32
}

// FormatCatalog is the intersection of a SensorCtl's advertised
// formats and an ImageData's accepted formats, computed once and
// held immutable thereafter (spec §4.2).
type FormatCatalog struct {
	descs []FormatDescriptor
}

// BuildFormatCatalog walks sensor's format table from index zero
// until ErrIndexOutOfRange, keeping only the formats pipeline also
// accepts.
func BuildFormatCatalog(sensor sensorctl.SensorCtl, pipeline imagedata.ImageData) (*FormatCatalog, error) {
	cat := &FormatCatalog{}
	for i := 0; ; i++ {
		fd, err := sensor.GetRangeOfFmt(i)
		if errors.Is(err, sensorctl.ErrIndexOutOfRange) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("dualstream: enumerate sensor formats: %w", err)
		}
		if !pipeline.ChkPixelFormat(fd.PixFormat.Main, fd.PixFormat.Sub) {
			continue
		}
		cat.descs = append(cat.descs, FormatDescriptor{
			Index:       len(cat.descs),
			Flags:       fd.Flags,
			PixFormat:   fd.PixFormat,
			Description: fd.Description,
		})
	}
	return cat, nil
}

// EnumFmt returns the index'th entry, per ENUM_FMT (spec §6).
func (c *FormatCatalog) EnumFmt(index int) (FormatDescriptor, error) {
	if index < 0 || index >= len(c.descs) {
		return FormatDescriptor{}, fmt.Errorf("%w: format index %d out of range", ErrInvalidArg, index)
	}
	return c.descs[index], nil
}

// Len reports the number of formats in the intersection.
func (c *FormatCatalog) Len() int {
	return len(c.descs)
}

// EnumFrameSizes intersects sensor and pipeline frame-size
// capabilities for pf (spec §4.2). The sensor is walked index by
// index, the same way BuildFormatCatalog walks GetRangeOfFmt, since a
// sensor may advertise several discrete sizes (or, less commonly,
// several stepwise ranges) for one pixel format. For each entry: a
// discrete pair is emitted iff pipeline.TryFormat accepts it; a
// stepwise range is merged against the pipeline's own stepwise range
// (step = lcm, min = max, max = min) and emitted iff the merge is
// non-empty. An intersection that is empty across every index is
// ErrInvalidArg.
func EnumFrameSizes(sensor sensorctl.SensorCtl, pipeline imagedata.ImageData, pf sensorctl.PixFormat) ([]FrameSizeDescriptor, error) {
	pipelineRange, err := pipeline.GetRangeOfFrameSize(pf)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotSupported, err)
	}

	var out []FrameSizeDescriptor
	for i := 0; ; i++ {
		sensorRange, err := sensor.GetRangeOfFrameSize(pf, i)
		if errors.Is(err, sensorctl.ErrIndexOutOfRange) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrNotSupported, err)
		}

		if sensorRange.Type == sensorctl.SizeDiscrete {
			if err := pipeline.TryFormat(pf, sensorRange.Discrete.Width, sensorRange.Discrete.Height); err != nil {
				continue
			}
			out = append(out, FrameSizeDescriptor{
				Discrete:  true,
				Width:     sensorRange.Discrete.Width,
				Height:    sensorRange.Discrete.Height,
				SubWidth:  sensorRange.SubDiscrete.Width,
				SubHeight: sensorRange.SubDiscrete.Height,
			})
			continue
		}

		d := FrameSizeDescriptor{
			StepWidth:  lcm(sensorRange.Stepwise.StepWidth, pipelineRange.Stepwise.StepWidth),
			StepHeight: lcm(sensorRange.Stepwise.StepHeight, pipelineRange.Stepwise.StepHeight),
			MinWidth:   max32(sensorRange.Stepwise.MinWidth, pipelineRange.Stepwise.MinWidth),
			MinHeight:  max32(sensorRange.Stepwise.MinHeight, pipelineRange.Stepwise.MinHeight),
			MaxWidth:   min32(sensorRange.Stepwise.MaxWidth, pipelineRange.Stepwise.MaxWidth),
			MaxHeight:  min32(sensorRange.Stepwise.MaxHeight, pipelineRange.Stepwise.MaxHeight),

			SubStepWidth:  lcm(sensorRange.SubStepwise.StepWidth, pipelineRange.SubStepwise.StepWidth),
			SubStepHeight: lcm(sensorRange.SubStepwise.StepHeight, pipelineRange.SubStepwise.StepHeight),
			SubMinWidth:   max32(sensorRange.SubStepwise.MinWidth, pipelineRange.SubStepwise.MinWidth),
			SubMinHeight:  max32(sensorRange.SubStepwise.MinHeight, pipelineRange.SubStepwise.MinHeight),
			SubMaxWidth:   min32(sensorRange.SubStepwise.MaxWidth, pipelineRange.SubStepwise.MaxWidth),
			SubMaxHeight:  min32(sensorRange.SubStepwise.MaxHeight, pipelineRange.SubStepwise.MaxHeight),
		}
		if d.MinWidth > d.MaxWidth || d.MinHeight > d.MaxHeight {
			continue
		}
		out = append(out, d)
	}

	if len(out) == 0 {
		return nil, fmt.Errorf("%w: empty frame-size intersection", ErrInvalidArg)
	}
	return out, nil
}

func gcd(a, b uint32) uint32 {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

func lcm(a, b uint32) uint32 {
	if a == 0 {
		return b
	}
	if b == 0 {
		return a
	}
	return a / gcd(a, b) * b
}

func max32(a, b uint32) uint32 {
	if a > b {
		return a
	}
	return b
}

func min32(a, b uint32) uint32 {
	if a < b {
		return a
	}
	return b
}

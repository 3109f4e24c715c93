package dualstream

import (
	"fmt"

	"github.com/gocapture/dualstream/sensorctl"
)

// EnumFmt is ENUM_FMT: the index'th entry of stream's immutable
// format catalog (spec §4.2, §6).
func (m *StreamManager) EnumFmt(stream Stream, index int) (FormatDescriptor, error) {
	if !stream.valid() {
		return FormatDescriptor{}, fmt.Errorf("%w: unknown stream", ErrInvalidArg)
	}
	return m.catalogFor(stream).EnumFmt(index)
}

// EnumFrameSizes is ENUM_FRAMESIZES: the sensor/pipeline intersection
// for pf (spec §4.2).
func (m *StreamManager) EnumFrameSizes(pf sensorctl.PixFormat) ([]FrameSizeDescriptor, error) {
	return EnumFrameSizes(m.sensor, m.pipeline, pf)
}

// EnumFrameIntervals is ENUM_FRAMEINTERVALS, a pass-through query:
// the core merges frame sizes (spec §4.2) but not intervals.
func (m *StreamManager) EnumFrameIntervals(pf sensorctl.PixFormat, width, height uint32) (sensorctl.FrameIntervalRange, error) {
	return m.sensor.GetRangeOfFrameInterval(pf, width, height)
}

// TryFormat is TRY_FMT: validates pf/width/height against both
// collaborators without committing it.
func (m *StreamManager) TryFormat(pf sensorctl.PixFormat, width, height uint32) error {
	if err := m.sensor.TryFormat(pf, width, height); err != nil {
		return fmt.Errorf("%w: sensor rejects format: %v", ErrInvalidArg, err)
	}
	if err := m.pipeline.TryFormat(pf, width, height); err != nil {
		return fmt.Errorf("%w: pipeline rejects format: %v", ErrInvalidArg, err)
	}
	return nil
}

// SetFormat is S_FMT. Rejected while stream owns DMA; format changes
// are undefined mid-capture (spec §4.5).
func (m *StreamManager) SetFormat(stream Stream, pf sensorctl.PixFormat, width, height uint32) error {
	if !stream.valid() {
		return fmt.Errorf("%w: unknown stream", ErrInvalidArg)
	}
	st, _, lock := m.stateAndQueue(stream)
	lock.Lock()
	defer lock.Unlock()

	if st.State == StreamDMA {
		return fmt.Errorf("%w: s_fmt while %s is DMA", ErrNotPermitted, stream)
	}
	if err := m.TryFormat(pf, width, height); err != nil {
		return err
	}
	return m.sensor.SetFormat(pf, width, height)
}

// SetParm is S_PARM: sets the capture frame interval.
func (m *StreamManager) SetParm(numerator, denominator uint32) error {
	return m.sensor.SetFrameInterval(numerator, denominator)
}

// DoHalfPush is DO_HALFPUSH, a still pre-roll trigger passed straight
// through to the sensor (spec §4.5, §6).
func (m *StreamManager) DoHalfPush(enable bool) error {
	return m.sensor.DoHalfPush(enable)
}

package sensorctl

import "fmt"

// Mock is an in-memory SensorCtl used by the dualstream test suite
// and by cmd/dualstreamd's demo mode. It exposes a fixed format
// table supplied at construction and keeps controls/scene params in
// plain maps.
type Mock struct {
	formats []FormatDesc
	sizes   map[uint32][]FrameSizeRange

	activeFormat PixFormat
	activeWidth  uint32
	activeHeight uint32
	bufType      BufType

	ctrlRanges map[uint32]CtrlValueRange
	ctrlTypes  map[uint32]CtrlType
	ctrlMenus  map[uint32][]int64
	ctrlValues map[uint32]int64

	sceneRanges map[string]map[uint32]SceneParamRange
	sceneValues map[string]map[uint32]int64
}

// NewMock builds a Mock advertising formats, keyed by their
// PixFormat.Main for size-range lookups. sizes may list more than
// one entry per format to exercise multi-size enumeration.
func NewMock(formats []FormatDesc, sizes map[uint32][]FrameSizeRange) *Mock {
	return &Mock{
		formats:     formats,
		sizes:       sizes,
		ctrlRanges:  map[uint32]CtrlValueRange{},
		ctrlTypes:   map[uint32]CtrlType{},
		ctrlMenus:   map[uint32][]int64{},
		ctrlValues:  map[uint32]int64{},
		sceneRanges: map[string]map[uint32]SceneParamRange{},
		sceneValues: map[string]map[uint32]int64{},
	}
}

func (m *Mock) Open() error  { return nil }
func (m *Mock) Close() error { return nil }

func (m *Mock) GetRangeOfFmt(index int) (FormatDesc, error) {
	if index < 0 || index >= len(m.formats) {
		return FormatDesc{}, ErrIndexOutOfRange
	}
	return m.formats[index], nil
}

func (m *Mock) GetRangeOfFrameSize(pf PixFormat, index int) (FrameSizeRange, error) {
	list, ok := m.sizes[pf.Main]
	if !ok || index < 0 || index >= len(list) {
		return FrameSizeRange{}, ErrIndexOutOfRange
	}
	return list[index], nil
}

func (m *Mock) GetRangeOfFrameInterval(pf PixFormat, width, height uint32) (FrameIntervalRange, error) {
	return FrameIntervalRange{MinNumerator: 1, MinDenominator: 30, MaxNumerator: 1, MaxDenominator: 5, StepNumerator: 1, StepDenominator: 1}, nil
}

func (m *Mock) TryFormat(pf PixFormat, width, height uint32) error {
	if len(m.sizes[pf.Main]) == 0 {
		return fmt.Errorf("sensorctl: no size range for format %#x", pf.Main)
	}
	return nil
}

func (m *Mock) SetFormat(pf PixFormat, width, height uint32) error {
	if err := m.TryFormat(pf, width, height); err != nil {
		return err
	}
	m.activeFormat = pf
	m.activeWidth = width
	m.activeHeight = height
	return nil
}

func (m *Mock) SetFrameInterval(numerator, denominator uint32) error { return nil }

func (m *Mock) SetBufType(t BufType) error {
	m.bufType = t
	return nil
}

func (m *Mock) GetBufType() (BufType, error) {
	return m.bufType, nil
}

func (m *Mock) GetFormat() (PixFormat, uint32, uint32, error) {
	return m.activeFormat, m.activeWidth, m.activeHeight, nil
}

func (m *Mock) DoHalfPush(enable bool) error { return nil }

func (m *Mock) GetCtrlType(id uint32) (CtrlType, error) {
	t, ok := m.ctrlTypes[id]
	if !ok {
		if _, known := m.ctrlRanges[id]; !known {
			return 0, fmt.Errorf("sensorctl: unknown control %#x", id)
		}
		return CtrlTypeInteger, nil
	}
	return t, nil
}

func (m *Mock) GetRangeOfCtrlValue(id uint32) (CtrlValueRange, error) {
	r, ok := m.ctrlRanges[id]
	if !ok {
		return CtrlValueRange{}, fmt.Errorf("sensorctl: unknown control %#x", id)
	}
	return r, nil
}

func (m *Mock) GetMenuOfCtrlValue(id uint32, index int) (int64, error) {
	menu, ok := m.ctrlMenus[id]
	if !ok || index < 0 || index >= len(menu) {
		return 0, ErrIndexOutOfRange
	}
	return menu[index], nil
}

func (m *Mock) GetCtrlValue(id uint32) (int64, error) {
	v, ok := m.ctrlValues[id]
	if !ok {
		return 0, fmt.Errorf("sensorctl: unknown control %#x", id)
	}
	return v, nil
}

func (m *Mock) SetCtrlValue(id uint32, value int64) error {
	r, ok := m.ctrlRanges[id]
	if ok && (int32(value) < r.Minimum || int32(value) > r.Maximum) {
		return fmt.Errorf("sensorctl: control %#x value %d out of range", id, value)
	}
	m.ctrlValues[id] = value
	return nil
}

func (m *Mock) GetRangeOfSceneParam(scene string, id uint32) (SceneParamRange, error) {
	r, ok := m.sceneRanges[scene][id]
	if !ok {
		return SceneParamRange{}, fmt.Errorf("sensorctl: unknown scene param %s/%#x", scene, id)
	}
	return r, nil
}

func (m *Mock) GetMenuOfSceneParam(scene string, id uint32, index int) (int64, error) {
	return 0, ErrIndexOutOfRange
}

func (m *Mock) GetSceneParam(scene string, id uint32) (int64, error) {
	v, ok := m.sceneValues[scene][id]
	if !ok {
		return 0, fmt.Errorf("sensorctl: unknown scene param %s/%#x", scene, id)
	}
	return v, nil
}

func (m *Mock) SetSceneParam(scene string, id uint32, value int64) error {
	if m.sceneValues[scene] == nil {
		m.sceneValues[scene] = map[uint32]int64{}
	}
	m.sceneValues[scene][id] = value
	return nil
}

// WithCtrl registers a settable control range for tests that need one.
func (m *Mock) WithCtrl(id uint32, r CtrlValueRange, initial int64) *Mock {
	m.ctrlRanges[id] = r
	m.ctrlValues[id] = initial
	return m
}

// WithCtrlType overrides the wire type of a control already
// registered via WithCtrl; controls default to CtrlTypeInteger.
func (m *Mock) WithCtrlType(id uint32, t CtrlType) *Mock {
	m.ctrlTypes[id] = t
	return m
}

// WithMenu registers a menu control's selectable entries.
func (m *Mock) WithMenu(id uint32, entries []int64) *Mock {
	m.ctrlMenus[id] = entries
	m.ctrlTypes[id] = CtrlTypeMenu
	return m
}

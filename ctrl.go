package dualstream

import (
	"fmt"

	"github.com/gocapture/dualstream/sensorctl"
)

// CtrlDescriptor is QUERYCTRL/QUERY_EXT_CTRL's result: a control's
// wire type plus its value range.
type CtrlDescriptor struct {
	ID    uint32
	Type  sensorctl.CtrlType
	Range sensorctl.CtrlValueRange
}

// QueryExtCtrl is QUERY_EXT_CTRL: the full-width descriptor, exposing
// every CtrlType including the 64-bit and byte-array variants.
func (m *StreamManager) QueryExtCtrl(id uint32) (CtrlDescriptor, error) {
	t, err := m.sensor.GetCtrlType(id)
	if err != nil {
		return CtrlDescriptor{}, fmt.Errorf("%w: %v", ErrInvalidArg, err)
	}
	r, err := m.sensor.GetRangeOfCtrlValue(id)
	if err != nil {
		return CtrlDescriptor{}, fmt.Errorf("%w: %v", ErrInvalidArg, err)
	}
	return CtrlDescriptor{ID: id, Type: t, Range: r}, nil
}

// QueryCtrl is the legacy QUERYCTRL. It rejects any control wider
// than the 32-bit legacy descriptor can carry (spec §7).
func (m *StreamManager) QueryCtrl(id uint32) (CtrlDescriptor, error) {
	d, err := m.QueryExtCtrl(id)
	if err != nil {
		return CtrlDescriptor{}, err
	}
	if err := rejectWideCtrlType(d.Type); err != nil {
		return CtrlDescriptor{}, err
	}
	return d, nil
}

// QueryMenu is QUERYMENU: the index'th entry of a menu control.
func (m *StreamManager) QueryMenu(id uint32, index int) (int64, error) {
	return m.sensor.GetMenuOfCtrlValue(id, index)
}

// GCtrl is the legacy G_CTRL, truncated to int32.
func (m *StreamManager) GCtrl(id uint32) (int32, error) {
	t, err := m.sensor.GetCtrlType(id)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidArg, err)
	}
	if err := rejectWideCtrlType(t); err != nil {
		return 0, err
	}
	v, err := m.sensor.GetCtrlValue(id)
	if err != nil {
		return 0, err
	}
	return int32(v), nil
}

// SCtrl is the legacy S_CTRL, taking an int32.
func (m *StreamManager) SCtrl(id uint32, value int32) error {
	t, err := m.sensor.GetCtrlType(id)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArg, err)
	}
	if err := rejectWideCtrlType(t); err != nil {
		return err
	}
	return m.sensor.SetCtrlValue(id, int64(value))
}

// GExtCtrls is G_EXT_CTRLS: a batch read of full-width control
// values, failing with *ExtCtrlError at the first unreadable id.
func (m *StreamManager) GExtCtrls(ids []uint32) ([]int64, error) {
	out := make([]int64, len(ids))
	for i, id := range ids {
		v, err := m.sensor.GetCtrlValue(id)
		if err != nil {
			return nil, &ExtCtrlError{ErrorIdx: i, Err: fmt.Errorf("%w: %v", ErrInvalidArg, err)}
		}
		out[i] = v
	}
	return out, nil
}

// SExtCtrls is S_EXT_CTRLS: applies values in order, stopping at the
// first failure and reporting its index via *ExtCtrlError so the
// caller knows how many controls were already applied (spec §7).
func (m *StreamManager) SExtCtrls(ids []uint32, values []int64) error {
	if len(ids) != len(values) {
		return fmt.Errorf("%w: ids/values length mismatch", ErrInvalidArg)
	}
	for i := range ids {
		if err := m.sensor.SetCtrlValue(ids[i], values[i]); err != nil {
			return &ExtCtrlError{ErrorIdx: i, Err: err}
		}
	}
	return nil
}

// QueryExtCtrlScene is QUERY_EXT_CTRL_SCENE: a scene-mode control's
// range, scoped by scene name.
func (m *StreamManager) QueryExtCtrlScene(scene string, id uint32) (sensorctl.SceneParamRange, error) {
	return m.sensor.GetRangeOfSceneParam(scene, id)
}

// QueryMenuScene is QUERYMENU_SCENE.
func (m *StreamManager) QueryMenuScene(scene string, id uint32, index int) (int64, error) {
	return m.sensor.GetMenuOfSceneParam(scene, id, index)
}

// GExtCtrlsScene is G_EXT_CTRLS_SCENE.
func (m *StreamManager) GExtCtrlsScene(scene string, ids []uint32) ([]int64, error) {
	out := make([]int64, len(ids))
	for i, id := range ids {
		v, err := m.sensor.GetSceneParam(scene, id)
		if err != nil {
			return nil, &ExtCtrlError{ErrorIdx: i, Err: fmt.Errorf("%w: %v", ErrInvalidArg, err)}
		}
		out[i] = v
	}
	return out, nil
}

// SExtCtrlsScene is S_EXT_CTRLS_SCENE, mirroring SExtCtrls's
// stop-at-first-failure semantics.
func (m *StreamManager) SExtCtrlsScene(scene string, ids []uint32, values []int64) error {
	if len(ids) != len(values) {
		return fmt.Errorf("%w: ids/values length mismatch", ErrInvalidArg)
	}
	for i := range ids {
		if err := m.sensor.SetSceneParam(scene, ids[i], values[i]); err != nil {
			return &ExtCtrlError{ErrorIdx: i, Err: err}
		}
	}
	return nil
}

func rejectWideCtrlType(t sensorctl.CtrlType) error {
	switch t {
	case sensorctl.CtrlTypeInteger64, sensorctl.CtrlTypeU8, sensorctl.CtrlTypeU16, sensorctl.CtrlTypeU32:
		return fmt.Errorf("%w: control type does not fit the legacy 32-bit ioctl", ErrNotSupported)
	}
	return nil
}

package dualstream

import (
	"errors"
	"testing"

	"github.com/gocapture/dualstream/imagedata"
	"github.com/gocapture/dualstream/sensorctl"
)

const (
	fmtYUYV uint32 = 0x56595559
	fmtMJPG uint32 = 0x47504a4d
)

func discreteSizes() map[uint32]sensorctl.FrameSizeRange {
	return map[uint32]sensorctl.FrameSizeRange{
		fmtYUYV: {Type: sensorctl.SizeDiscrete, Discrete: sensorctl.Discrete{Width: 640, Height: 480}},
	}
}

func discreteSensorSizes() map[uint32][]sensorctl.FrameSizeRange {
	return map[uint32][]sensorctl.FrameSizeRange{
		fmtYUYV: {{Type: sensorctl.SizeDiscrete, Discrete: sensorctl.Discrete{Width: 640, Height: 480}}},
	}
}

func TestBuildFormatCatalogFiltersUnacceptedFormats(t *testing.T) {
	formats := []sensorctl.FormatDesc{
		{PixFormat: sensorctl.PixFormat{Main: fmtYUYV}, Description: "YUYV"},
		{PixFormat: sensorctl.PixFormat{Main: fmtMJPG}, Description: "MJPEG"},
	}
	sensor := sensorctl.NewMock(formats, discreteSensorSizes())
	pipeline := imagedata.NewMock(map[uint32]bool{fmtYUYV: true}, discreteSizes())

	cat, err := BuildFormatCatalog(sensor, pipeline)
	if err != nil {
		t.Fatalf("BuildFormatCatalog: %v", err)
	}
	if cat.Len() != 1 {
		t.Fatalf("expected 1 format in the intersection, got %d", cat.Len())
	}
	d, err := cat.EnumFmt(0)
	if err != nil {
		t.Fatalf("EnumFmt(0): %v", err)
	}
	if d.PixFormat.Main != fmtYUYV {
		t.Fatalf("expected YUYV to survive the intersection, got %#x", d.PixFormat.Main)
	}
	if _, err := cat.EnumFmt(1); !errors.Is(err, ErrInvalidArg) {
		t.Fatalf("EnumFmt(1) out of range should be ErrInvalidArg, got %v", err)
	}
}

func TestEnumFrameSizesDiscretePassthrough(t *testing.T) {
	sensor := sensorctl.NewMock(nil, discreteSensorSizes())
	pipeline := imagedata.NewMock(map[uint32]bool{fmtYUYV: true}, discreteSizes())

	got, err := EnumFrameSizes(sensor, pipeline, sensorctl.PixFormat{Main: fmtYUYV})
	if err != nil {
		t.Fatalf("EnumFrameSizes: %v", err)
	}
	if len(got) != 1 || !got[0].Discrete || got[0].Width != 640 || got[0].Height != 480 {
		t.Fatalf("unexpected discrete result: %+v", got)
	}
}

// TestEnumFrameSizesMultipleDiscreteEntries covers a sensor
// advertising more than one discrete size for the same pixel format,
// each at its own index (spec §4.2).
func TestEnumFrameSizesMultipleDiscreteEntries(t *testing.T) {
	sensorSizes := map[uint32][]sensorctl.FrameSizeRange{
		fmtYUYV: {
			{Type: sensorctl.SizeDiscrete, Discrete: sensorctl.Discrete{Width: 640, Height: 480}},
			{Type: sensorctl.SizeDiscrete, Discrete: sensorctl.Discrete{Width: 1280, Height: 720}},
			{Type: sensorctl.SizeDiscrete, Discrete: sensorctl.Discrete{Width: 1920, Height: 1080}},
		},
	}
	sensor := sensorctl.NewMock(nil, sensorSizes)
	pipeline := imagedata.NewMock(map[uint32]bool{fmtYUYV: true}, discreteSizes())

	got, err := EnumFrameSizes(sensor, pipeline, sensorctl.PixFormat{Main: fmtYUYV})
	if err != nil {
		t.Fatalf("EnumFrameSizes: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected all 3 discrete sizes to be enumerated, got %d: %+v", len(got), got)
	}
	if got[0].Width != 640 || got[1].Width != 1280 || got[2].Width != 1920 {
		t.Fatalf("unexpected enumeration order: %+v", got)
	}
}

func TestEnumFrameSizesStepwiseMerge(t *testing.T) {
	sensorSizes := map[uint32][]sensorctl.FrameSizeRange{
		fmtYUYV: {{
			Type:     sensorctl.SizeStepwise,
			Stepwise: sensorctl.Stepwise{MinWidth: 160, MaxWidth: 1920, StepWidth: 16, MinHeight: 120, MaxHeight: 1080, StepHeight: 16},
		}},
	}
	pipelineSizes := map[uint32]sensorctl.FrameSizeRange{
		fmtYUYV: {
			Type:     sensorctl.SizeStepwise,
			Stepwise: sensorctl.Stepwise{MinWidth: 320, MaxWidth: 1280, StepWidth: 32, MinHeight: 240, MaxHeight: 720, StepHeight: 24},
		},
	}
	sensor := sensorctl.NewMock(nil, sensorSizes)
	pipeline := imagedata.NewMock(map[uint32]bool{fmtYUYV: true}, pipelineSizes)

	got, err := EnumFrameSizes(sensor, pipeline, sensorctl.PixFormat{Main: fmtYUYV})
	if err != nil {
		t.Fatalf("EnumFrameSizes: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected exactly one merged stepwise descriptor, got %d", len(got))
	}
	d := got[0]
	if d.Discrete {
		t.Fatal("expected a stepwise descriptor")
	}
	if d.MinWidth != 320 || d.MaxWidth != 1280 || d.StepWidth != 32 {
		t.Errorf("width merge wrong: min=%d max=%d step=%d", d.MinWidth, d.MaxWidth, d.StepWidth)
	}
	if d.MinHeight != 240 || d.MaxHeight != 720 || d.StepHeight != 48 {
		t.Errorf("height merge wrong: min=%d max=%d step=%d", d.MinHeight, d.MaxHeight, d.StepHeight)
	}
}

func TestEnumFrameSizesEmptyIntersectionIsInvalidArg(t *testing.T) {
	sensorSizes := map[uint32][]sensorctl.FrameSizeRange{
		fmtYUYV: {{Type: sensorctl.SizeStepwise, Stepwise: sensorctl.Stepwise{MinWidth: 1000, MaxWidth: 2000, MinHeight: 1000, MaxHeight: 2000}}},
	}
	pipelineSizes := map[uint32]sensorctl.FrameSizeRange{
		fmtYUYV: {Type: sensorctl.SizeStepwise, Stepwise: sensorctl.Stepwise{MinWidth: 100, MaxWidth: 200, MinHeight: 100, MaxHeight: 200}},
	}
	sensor := sensorctl.NewMock(nil, sensorSizes)
	pipeline := imagedata.NewMock(map[uint32]bool{fmtYUYV: true}, pipelineSizes)

	if _, err := EnumFrameSizes(sensor, pipeline, sensorctl.PixFormat{Main: fmtYUYV}); !errors.Is(err, ErrInvalidArg) {
		t.Fatalf("expected ErrInvalidArg for an empty intersection, got %v", err)
	}
}

package dualstream

import (
	"log/slog"

	"github.com/gocapture/dualstream/imagedata"
	"github.com/gocapture/dualstream/sensorctl"
)

// DMAController issues start/cancel/set-next-buffer against the
// image pipeline, consulted from both user-context StreamManager
// operations and the interrupt-context NotifyPath (spec §4.4).
type DMAController struct {
	sensor   sensorctl.SensorCtl
	pipeline imagedata.ImageData
	log      *slog.Logger
}

func NewDMAController(sensor sensorctl.SensorCtl, pipeline imagedata.ImageData, log *slog.Logger) *DMAController {
	return &DMAController{sensor: sensor, pipeline: pipeline, log: log}
}

func streamBufType(s Stream) sensorctl.BufType {
	if s == StreamStill {
		return sensorctl.BufTypeStill
	}
	return sensorctl.BufTypeVideo
}

// Apply drives a queue's DMA ownership from cur to next for stream.
// When transitioning into DMA it pops the head queued slot and
// starts DMA against it; if none is queued it reports the demoted
// state (STREAMON) instead so the caller updates its StreamState
// accordingly. When transitioning out of DMA it cancels and returns
// the in-flight slot to the head of the queued sub-list.
func (d *DMAController) Apply(q *FrameBufferQueue, stream Stream, cur, next State) (actual State, err error) {
	if cur != StreamDMA && next == StreamDMA {
		slot := q.PopForDMA()
		if slot == nil {
			return StreamOn, nil
		}
		if err := d.sensor.SetBufType(streamBufType(stream)); err != nil {
			d.log.Warn("set_buftype failed", "stream", stream, "error", err)
			return StreamOn, err
		}
		pf, w, h, err := d.sensor.GetFormat()
		if err != nil {
			d.log.Warn("get_format failed", "stream", stream, "error", err)
			return StreamOn, err
		}
		if err := d.pipeline.StartDMA(pf, w, h, slot.Ptr, slot.Length); err != nil {
			d.log.Warn("start_dma failed", "stream", stream, "error", err)
			return StreamOn, err
		}
		return StreamDMA, nil
	}

	if cur == StreamDMA && next != StreamDMA {
		// The cancelled slot goes back to the head of the queued
		// sub-list, so dma-current is empty while the stream is not DMA
		// and the same slot is the first one programmed when DMA resumes.
		if err := d.pipeline.CancelDMA(); err != nil {
			d.log.Warn("cancel_dma failed", "stream", stream, "error", err)
		}
		if slot := q.dmaCurrent; slot != nil {
			q.dmaCurrent = nil
			q.queued = append([]*Buffer{slot}, q.queued...)
		}
		return next, nil
	}

	return next, nil
}

// SetNextOrCancel chains the next queued buffer into the image
// pipeline before the current completion is reported (continuous
// mode), or cancels the stream if nothing is queued (spec §4.4).
func (d *DMAController) SetNextOrCancel(q *FrameBufferQueue, stream Stream) (started bool) {
	slot := q.PopForDMA()
	if slot == nil {
		if err := d.pipeline.CancelDMA(); err != nil {
			d.log.Warn("cancel_dma failed", "stream", stream, "error", err)
		}
		return false
	}
	if err := d.pipeline.SetDMABuf(slot.Ptr, slot.Length); err != nil {
		d.log.Warn("set_dmabuf failed", "stream", stream, "error", err)
	}
	return true
}

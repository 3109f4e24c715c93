package dualstream

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gocapture/dualstream/imagedata"
	"github.com/gocapture/dualstream/platform"
	"github.com/gocapture/dualstream/sensorctl"
)

// Observer receives best-effort notifications of manager/notify-path
// events. A nil Observer is valid; StreamManager checks before every
// call so metrics can never influence control flow (SPEC_FULL.md §4.7).
type Observer interface {
	DMACompletion(stream Stream, isErr bool)
	QueueDepth(stream Stream, free, queued, dma, done int)
	DequeueWaitSeconds(stream Stream, seconds float64)
	StillCapture(stream Stream)
}

// StreamManager is the public operation surface composing the rest
// of the core (spec §4.5). One StreamManager owns exactly one
// FrameBufferQueue and one StreamState per stream, a device-path
// string, an open-count, and two immutable FormatCatalogs.
type StreamManager struct {
	openMu     sync.Mutex
	openCount  int
	devicePath string

	video      *StreamState
	still      *StreamState
	videoQueue *FrameBufferQueue
	stillQueue *FrameBufferQueue

	videoCatalog *FormatCatalog
	stillCatalog *FormatCatalog

	videoLock sync.Mutex
	stillLock sync.Mutex

	sensor   sensorctl.SensorCtl
	pipeline imagedata.ImageData
	plat     platform.Platform
	dma      *DMAController

	log       *slog.Logger
	sessionID uuid.UUID
	obs       Observer
}

// NewStreamManager constructs a manager for devicePath, computing
// both FormatCatalogs once by intersecting sensor's advertised
// formats against pipeline's accepted formats (spec §3 lifecycle).
// obs may be nil.
func NewStreamManager(devicePath string, sensor sensorctl.SensorCtl, pipeline imagedata.ImageData, plat platform.Platform, log *slog.Logger, obs Observer) (*StreamManager, error) {
	if plat == nil {
		plat = platform.NewDefault()
	}
	if log == nil {
		log = slog.Default()
	}

	catalog, err := BuildFormatCatalog(sensor, pipeline)
	if err != nil {
		return nil, fmt.Errorf("dualstream: build format catalog: %w", err)
	}

	m := &StreamManager{
		devicePath: devicePath,
		video:      NewStreamState(StreamVideo, plat),
		still:      NewStreamState(StreamStill, plat),
		videoQueue: NewFrameBufferQueue(),
		stillQueue: NewFrameBufferQueue(),
		// Both stream types draw from the same sensor format table:
		// SensorCtl's external interface (spec §6) has no buftype-scoped
		// enumeration, so both fields point at the same immutable
		// catalog instance.
		videoCatalog: catalog,
		stillCatalog: catalog,
		sensor:       sensor,
		pipeline:     pipeline,
		plat:         plat,
		log:          log,
		sessionID:    uuid.New(),
		obs:          obs,
	}
	m.dma = NewDMAController(sensor, pipeline, m.logger())
	return m, nil
}

func (m *StreamManager) logger() *slog.Logger {
	return m.log.With("session", m.sessionID)
}

// Open increments the open-count, performing first-open
// initialization (spec §3 lifecycle).
func (m *StreamManager) Open() error {
	m.openMu.Lock()
	defer m.openMu.Unlock()

	if m.openCount == 0 {
		if err := m.sensor.Open(); err != nil {
			return fmt.Errorf("%w: sensor open: %v", ErrNotSupported, err)
		}
		if err := m.pipeline.Open(); err != nil {
			return fmt.Errorf("%w: pipeline open: %v", ErrNotSupported, err)
		}
		if err := m.plat.Register(m.devicePath); err != nil {
			return err
		}
		m.video.Reset()
		m.still.Reset()
	}
	m.openCount++
	m.logger().Info("device opened", "open_count", m.openCount)
	return nil
}

// Close decrements the open-count. On the last close, any pending
// DMA is cancelled and both StreamStates reset to STREAMOFF.
//
// The original driver this core is modeled on returns an error
// unconditionally here even on a clean close (spec §9, design note);
// that is treated as a bug and this implementation returns nil.
func (m *StreamManager) Close() error {
	m.openMu.Lock()
	defer m.openMu.Unlock()

	if m.openCount == 0 {
		return fmt.Errorf("%w: device not open", ErrNotPermitted)
	}
	m.openCount--
	if m.openCount == 0 {
		m.cancelAndResetLocked(StreamVideo)
		m.cancelAndResetLocked(StreamStill)
		if err := m.pipeline.Close(); err != nil {
			m.logger().Warn("pipeline close failed", "error", err)
		}
		if err := m.sensor.Close(); err != nil {
			m.logger().Warn("sensor close failed", "error", err)
		}
		if err := m.plat.Unregister(m.devicePath); err != nil {
			m.logger().Warn("unregister failed", "error", err)
		}
	}
	m.logger().Info("device closed", "open_count", m.openCount)
	return nil
}

func (m *StreamManager) cancelAndResetLocked(stream Stream) {
	st, q, lock := m.stateAndQueue(stream)
	lock.Lock()
	defer lock.Unlock()
	if st.State == StreamDMA {
		leave := m.plat.EnterCritical()
		_, _ = m.dma.Apply(q, stream, StreamDMA, StreamOff)
		leave()
	}
	st.Reset()
	q.Clear()
}

func (m *StreamManager) stateAndQueue(stream Stream) (*StreamState, *FrameBufferQueue, *sync.Mutex) {
	if stream == StreamVideo {
		return m.video, m.videoQueue, &m.videoLock
	}
	return m.still, m.stillQueue, &m.stillLock
}

func (m *StreamManager) catalogFor(stream Stream) *FormatCatalog {
	if stream == StreamVideo {
		return m.videoCatalog
	}
	return m.stillCatalog
}

func (m *StreamManager) reportDepth(stream Stream, q *FrameBufferQueue) {
	if m.obs == nil {
		return
	}
	free, queued, dma, done := q.Counts()
	m.obs.QueueDepth(stream, free, queued, dma, done)
}

// RequestBuffers resizes stream's queue to count slots in mode,
// failing ErrNotPermitted while the stream's DMA is active (spec
// §4.5). A zero count releases all descriptors.
func (m *StreamManager) RequestBuffers(stream Stream, count int, mode Mode) error {
	if !stream.valid() {
		return fmt.Errorf("%w: unknown stream", ErrInvalidArg)
	}
	if count < 0 {
		return fmt.Errorf("%w: negative buffer count", ErrInvalidArg)
	}
	st, q, lock := m.stateAndQueue(stream)
	lock.Lock()
	defer lock.Unlock()

	if st.State == StreamDMA {
		return fmt.Errorf("%w: request_buffers while %s is DMA", ErrNotPermitted, stream)
	}
	q.SetMode(mode)
	if err := q.Realloc(count); err != nil {
		return err
	}
	m.reportDepth(stream, q)
	return nil
}

// Queue validates and enqueues buf for stream. If the stream is
// STREAMON, this may start DMA immediately (spec §4.5). If the
// stream is DMA, the slot simply waits queued.
func (m *StreamManager) Queue(stream Stream, buf *Buffer) error {
	if !stream.valid() {
		return fmt.Errorf("%w: unknown stream", ErrInvalidArg)
	}
	if buf == nil || buf.Ptr == 0 || buf.Length == 0 {
		return fmt.Errorf("%w: buffer must carry a non-empty ptr/length", ErrInvalidArg)
	}
	if _, w, h, err := m.sensor.GetFormat(); err == nil && w > 0 && h > 0 {
		// A conservative single-byte-per-pixel floor: the collaborator
		// interfaces carry no bits-per-pixel table, so this only catches
		// a buffer too small for the negotiated frame under any pixel
		// format, not an exact stride/size_image computation.
		if minimum := uint64(w) * uint64(h); uint64(buf.Length) < minimum {
			return fmt.Errorf("%w: buffer length %d too small for negotiated %dx%d format", ErrInvalidArg, buf.Length, w, h)
		}
	}

	st, q, lock := m.stateAndQueue(stream)
	lock.Lock()
	defer lock.Unlock()

	slot, err := q.AcquireFree()
	if err != nil {
		return err
	}
	slot.Stream = stream
	slot.Ptr = buf.Ptr
	slot.Length = buf.Length
	q.Enqueue(slot)
	buf.Index = slot.Index
	m.reportDepth(stream, q)

	switch st.State {
	case StreamOn:
		if stream == StreamVideo {
			return m.transitionVideoLocked(CauseVideoStart)
		}
		m.startStillDMALocked()
	case StreamDMA:
		// slot simply waits; nothing to do.
	}
	return nil
}

// Dequeue blocks until a completed buffer is available for stream,
// copying it into out, or returns ErrCanceled if CancelDequeue fires
// first (spec §4.5).
func (m *StreamManager) Dequeue(ctx context.Context, stream Stream, out *Buffer) error {
	if !stream.valid() {
		return fmt.Errorf("%w: unknown stream", ErrInvalidArg)
	}
	st, q, lock := m.stateAndQueue(stream)
	start := time.Now()
	defer func() {
		if m.obs != nil {
			m.obs.DequeueWaitSeconds(stream, time.Since(start).Seconds())
		}
	}()

	for {
		lock.Lock()
		if slot := q.PopDone(); slot != nil {
			q.Release(slot)
			*out = *slot
			m.reportDepth(stream, q)
			lock.Unlock()
			return nil
		}

		if stream == StreamVideo {
			// Lazily start video DMA if queuing happened before a DMA
			// slot was consumed (spec §4.5).
			_ = m.transitionVideoLocked(CauseVideoDQBuf)
			if slot := q.PopDone(); slot != nil {
				q.Release(slot)
				*out = *slot
				m.reportDepth(stream, q)
				lock.Unlock()
				return nil
			}
		}

		st.wait.waiting = true
		st.wait.cause = CauseNone
		lock.Unlock()

		if err := st.wait.flag.Wait(ctx); err != nil {
			lock.Lock()
			st.wait.waiting = false
			lock.Unlock()
			return err
		}

		lock.Lock()
		cause := st.wait.cause
		st.wait.waiting = false

		switch cause {
		case WaitCauseStillStop:
			// Spurious wake inviting re-evaluation of the Arbiter; a
			// single-shot wake here would be a latent bug (spec §9).
			lock.Unlock()
			continue

		case CauseDQCancel:
			lock.Unlock()
			return ErrCanceled

		case CauseDMADone:
			slot := st.wait.doneSlot
			st.wait.doneSlot = nil
			lock.Unlock()
			if slot == nil {
				continue
			}
			q.Release(slot)
			*out = *slot
			return nil

		default:
			lock.Unlock()
			continue
		}
	}
}

// CancelDequeue wakes a blocked Dequeue with ErrCanceled. If DMA
// completes between the waiter check and the post, NotifyPath's
// later post overwrites the cause to CauseDMADone and the dequeue
// returns the buffer instead — the later completion wins (spec §9).
func (m *StreamManager) CancelDequeue(stream Stream) error {
	if !stream.valid() {
		return fmt.Errorf("%w: unknown stream", ErrInvalidArg)
	}
	st, _, lock := m.stateAndQueue(stream)
	lock.Lock()
	if !st.wait.waiting {
		lock.Unlock()
		return nil
	}
	st.wait.cause = CauseDQCancel
	lock.Unlock()
	st.wait.flag.Post()
	return nil
}

// StreamOn transitions video into STREAMON (still is controlled via
// TakePictureStart/Stop; spec §4.5).
func (m *StreamManager) StreamOn(stream Stream) error {
	if stream != StreamVideo {
		return fmt.Errorf("%w: streamon is video-only", ErrInvalidArg)
	}
	m.videoLock.Lock()
	defer m.videoLock.Unlock()
	if m.video.State != StreamOff {
		return fmt.Errorf("%w: video already streaming", ErrNotPermitted)
	}
	return m.transitionVideoLocked(CauseVideoStart)
}

// StreamOff transitions video to STREAMOFF, cancelling any in-flight
// DMA (spec §4.5).
func (m *StreamManager) StreamOff(stream Stream) error {
	if stream != StreamVideo {
		return fmt.Errorf("%w: streamoff is video-only", ErrInvalidArg)
	}
	m.videoLock.Lock()
	defer m.videoLock.Unlock()
	return m.transitionVideoLocked(CauseVideoStop)
}

// TakePictureStart begins a bounded (or infinite, if n<=0) still
// capture burst (spec §4.5).
func (m *StreamManager) TakePictureStart(n int32) error {
	m.stillLock.Lock()
	defer m.stillLock.Unlock()

	if m.still.State != StreamOff {
		return fmt.Errorf("%w: still capture already running", ErrNotPermitted)
	}

	if n <= 0 {
		m.still.Remaining = RemainingInfinity
	} else {
		m.still.Remaining = n
	}

	// May demote video from DMA to STREAMON, yielding the engine.
	m.transitionVideoFromStillLocked(CauseStillStart)
	m.startStillDMALocked()

	if m.obs != nil {
		m.obs.StillCapture(StreamStill)
	}
	return nil
}

// TakePictureStop ends a still capture burst, cancelling DMA if one
// is in flight and resuming video if it was yielding (spec §4.5).
func (m *StreamManager) TakePictureStop(halfpush bool) error {
	m.stillLock.Lock()
	defer m.stillLock.Unlock()

	if m.still.State == StreamOff && m.still.Remaining == RemainingInfinity {
		return fmt.Errorf("%w: still capture was never started", ErrNotPermitted)
	}

	if m.still.State == StreamDMA {
		leave := m.plat.EnterCritical()
		_, _ = m.dma.Apply(m.stillQueue, StreamStill, StreamDMA, StreamOff)
		leave()
	}
	m.still.Reset()

	m.transitionVideoFromStillLocked(CauseStillStop)
	return nil
}

// startStillDMALocked pops a queued still slot and starts DMA
// directly, or leaves still pending in STREAMON if none is queued
// (spec §4.5). Caller holds stillLock.
func (m *StreamManager) startStillDMALocked() {
	if m.still.State == StreamDMA {
		return
	}
	leave := m.plat.EnterCritical()
	slot := m.stillQueue.PopForDMA()
	leave()
	if slot == nil {
		m.still.State = StreamOn
		return
	}
	if err := m.sensor.SetBufType(sensorctl.BufTypeStill); err != nil {
		m.logger().Warn("set_buftype(still) failed", "error", err)
		m.still.State = StreamOn
		return
	}
	pf, w, h, err := m.sensor.GetFormat()
	if err != nil {
		m.logger().Warn("get_format(still) failed", "error", err)
		m.still.State = StreamOn
		return
	}
	if err := m.pipeline.StartDMA(pf, w, h, slot.Ptr, slot.Length); err != nil {
		m.logger().Warn("start_dma(still) failed", "error", err)
		m.still.State = StreamOn
		return
	}
	m.still.State = StreamDMA
}

// transitionVideoLocked consults the Arbiter for a video-caused
// transition and applies it. Caller holds videoLock; this acquires
// stillLock to read sibling state, per the lock-ordering rule in
// spec §5 (own lock first, sibling second, never reversed).
func (m *StreamManager) transitionVideoLocked(cause Cause) error {
	m.stillLock.Lock()
	curStill := m.still.State
	m.stillLock.Unlock()

	next := NextVideoState(m.video.State, curStill, cause)
	return m.applyVideoStateLocked(next)
}

// transitionVideoFromStillLocked is transitionVideoLocked's mirror
// for still-caused transitions (STILL_START/STILL_STOP): caller
// holds stillLock and this acquires videoLock second.
func (m *StreamManager) transitionVideoFromStillLocked(cause Cause) {
	m.videoLock.Lock()
	defer m.videoLock.Unlock()
	next := NextVideoState(m.video.State, m.still.State, cause)
	_ = m.applyVideoStateLocked(next)
}

func (m *StreamManager) applyVideoStateLocked(next State) error {
	cur := m.video.State
	if cur == next {
		return nil
	}
	leave := m.plat.EnterCritical()
	actual, err := m.dma.Apply(m.videoQueue, StreamVideo, cur, next)
	leave()
	if err != nil {
		return err
	}
	m.video.State = actual
	m.logger().Info("video state transition", "from", cur, "to", actual)
	m.reportDepth(StreamVideo, m.videoQueue)
	return nil
}

// VideoCatalog and StillCatalog expose the immutable per-stream
// format catalogs for ENUM_FMT/ENUM_FRAMESIZES.
func (m *StreamManager) VideoCatalog() *FormatCatalog { return m.videoCatalog }
func (m *StreamManager) StillCatalog() *FormatCatalog { return m.stillCatalog }

// Sensor and Pipeline expose the collaborators for pass-through
// ioctl handling in ioctl.go/ctrl.go.
func (m *StreamManager) Sensor() sensorctl.SensorCtl    { return m.sensor }
func (m *StreamManager) Pipeline() imagedata.ImageData  { return m.pipeline }

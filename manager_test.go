package dualstream

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gocapture/dualstream/imagedata"
	"github.com/gocapture/dualstream/sensorctl"
)

const testFmt uint32 = 0x56595559 // "YUYV"

func newTestManager(t *testing.T) (*StreamManager, *sensorctl.Mock, *imagedata.Mock) {
	t.Helper()
	sizeRange := sensorctl.FrameSizeRange{Type: sensorctl.SizeDiscrete, Discrete: sensorctl.Discrete{Width: 640, Height: 480}}
	sensor := sensorctl.NewMock([]sensorctl.FormatDesc{{PixFormat: sensorctl.PixFormat{Main: testFmt}}}, map[uint32][]sensorctl.FrameSizeRange{testFmt: {sizeRange}})
	pipeline := imagedata.NewMock(map[uint32]bool{testFmt: true}, map[uint32]sensorctl.FrameSizeRange{testFmt: sizeRange})

	mgr, err := NewStreamManager("/dev/video0-test", sensor, pipeline, nil, nil, nil)
	if err != nil {
		t.Fatalf("NewStreamManager: %v", err)
	}
	if err := mgr.Open(); err != nil {
		t.Fatalf("Open: %v", err)
	}
	// Negotiated small so the 4096-byte test buffers clear the
	// per-pixel size floor Queue validates against (manager.go).
	if err := mgr.SetFormat(StreamVideo, sensorctl.PixFormat{Main: testFmt}, 64, 48); err != nil {
		t.Fatalf("SetFormat(video): %v", err)
	}
	return mgr, sensor, pipeline
}

func TestOpenCloseRefcounting(t *testing.T) {
	mgr, _, _ := newTestManager(t)

	if err := mgr.Open(); err != nil {
		t.Fatalf("second Open: %v", err)
	}
	if err := mgr.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := mgr.Close(); err != nil {
		t.Fatalf("last Close should succeed cleanly (not the original's unconditional error): %v", err)
	}
	if err := mgr.Close(); !errors.Is(err, ErrNotPermitted) {
		t.Fatalf("Close on an already-closed device should be ErrNotPermitted, got %v", err)
	}
}

func TestQueueRejectsEmptyBuffer(t *testing.T) {
	mgr, _, _ := newTestManager(t)
	if err := mgr.RequestBuffers(StreamVideo, 1, ModeFifo); err != nil {
		t.Fatalf("RequestBuffers: %v", err)
	}
	if err := mgr.Queue(StreamVideo, &Buffer{}); !errors.Is(err, ErrInvalidArg) {
		t.Fatalf("expected ErrInvalidArg for an empty buffer, got %v", err)
	}
}

// TestQueueRejectsBufferTooSmallForFormat covers the buffer-size
// check against the active format (spec §4.5): a buffer with a
// non-zero but undersized length for the negotiated 64x48 frame must
// be rejected rather than silently accepted and later handed to the
// image pipeline.
func TestQueueRejectsBufferTooSmallForFormat(t *testing.T) {
	mgr, _, _ := newTestManager(t)
	if err := mgr.RequestBuffers(StreamVideo, 1, ModeFifo); err != nil {
		t.Fatalf("RequestBuffers: %v", err)
	}
	tiny := Buffer{Ptr: 0x9000, Length: 1}
	if err := mgr.Queue(StreamVideo, &tiny); !errors.Is(err, ErrInvalidArg) {
		t.Fatalf("expected ErrInvalidArg for a buffer smaller than the negotiated frame, got %v", err)
	}

	fits := Buffer{Ptr: 0x9000, Length: 64 * 48}
	if err := mgr.Queue(StreamVideo, &fits); err != nil {
		t.Fatalf("expected a buffer exactly matching the negotiated frame size to be accepted: %v", err)
	}
}

// TestVideoContinuousCaptureChainsNextBuffer covers the S1-style
// continuous-capture scenario: queuing buffers then streaming on
// starts DMA against the first, and a DMA-done notification chains
// straight into the second without idling.
func TestVideoContinuousCaptureChainsNextBuffer(t *testing.T) {
	mgr, _, pipeline := newTestManager(t)

	if err := mgr.RequestBuffers(StreamVideo, 2, ModeRing); err != nil {
		t.Fatalf("RequestBuffers: %v", err)
	}
	var b1, b2 Buffer
	b1 = Buffer{Ptr: 0x1000, Length: 4096}
	b2 = Buffer{Ptr: 0x2000, Length: 4096}
	if err := mgr.Queue(StreamVideo, &b1); err != nil {
		t.Fatalf("Queue(b1): %v", err)
	}
	if err := mgr.Queue(StreamVideo, &b2); err != nil {
		t.Fatalf("Queue(b2): %v", err)
	}

	if err := mgr.StreamOn(StreamVideo); err != nil {
		t.Fatalf("StreamOn: %v", err)
	}
	if !pipeline.DMAActive || pipeline.StartCalls != 1 {
		t.Fatalf("expected StreamOn to start DMA once, got active=%v starts=%d", pipeline.DMAActive, pipeline.StartCalls)
	}
	if pipeline.LastPtr != b1.Ptr {
		t.Fatalf("expected DMA to start against b1, got ptr=%#x", pipeline.LastPtr)
	}

	mgr.NotifyPath(StreamVideo, 2048, false)
	if mgr.video.State != StreamDMA || pipeline.LastPtr != b2.Ptr {
		t.Fatalf("expected the completion to chain DMA into b2, got state=%v ptr=%#x", mgr.video.State, pipeline.LastPtr)
	}

	var out Buffer
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := mgr.Dequeue(ctx, StreamVideo, &out); err != nil {
		t.Fatalf("Dequeue: %v", err)
	}
	if out.Ptr != b1.Ptr || out.BytesUsed != 2048 {
		t.Fatalf("unexpected dequeued buffer: %+v", out)
	}
}

// TestNotifyPathRingOverwriteS5 reconciles the ring-mode overwrite
// scenario with the manager's real end-to-end NotifyPath chaining:
// two buffers queued in ring mode, streamed on, and three completions
// land with no intervening Dequeue. Ring mode may only recycle a done
// slot once per drain: the second completion recycles the first slot,
// the third completion lands in it, and the stream then idles rather
// than evicting the second completion's data — the eventual Dequeue
// must surface the second completion, not the first or the third.
func TestNotifyPathRingOverwriteS5(t *testing.T) {
	mgr, _, pipeline := newTestManager(t)

	if err := mgr.RequestBuffers(StreamVideo, 2, ModeRing); err != nil {
		t.Fatalf("RequestBuffers: %v", err)
	}
	b1 := Buffer{Ptr: 0x1000, Length: 4096}
	b2 := Buffer{Ptr: 0x2000, Length: 4096}
	if err := mgr.Queue(StreamVideo, &b1); err != nil {
		t.Fatalf("Queue(b1): %v", err)
	}
	if err := mgr.Queue(StreamVideo, &b2); err != nil {
		t.Fatalf("Queue(b2): %v", err)
	}
	if err := mgr.StreamOn(StreamVideo); err != nil {
		t.Fatalf("StreamOn: %v", err)
	}
	if pipeline.LastPtr != b1.Ptr {
		t.Fatalf("expected DMA to start against b1, got ptr=%#x", pipeline.LastPtr)
	}

	mgr.NotifyPath(StreamVideo, 111, false)
	mgr.NotifyPath(StreamVideo, 222, false)
	mgr.NotifyPath(StreamVideo, 333, false)

	var out Buffer
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := mgr.Dequeue(ctx, StreamVideo, &out); err != nil {
		t.Fatalf("Dequeue: %v", err)
	}
	if out.BytesUsed != 222 {
		t.Fatalf("expected the second completion's slot to survive, got BytesUsed=%d", out.BytesUsed)
	}
}

// TestDequeueBlocksUntilNotifyPath exercises the rendezvous: Dequeue
// may run concurrently with NotifyPath in either order and must
// return the completed buffer regardless.
func TestDequeueBlocksUntilNotifyPath(t *testing.T) {
	mgr, _, _ := newTestManager(t)

	if err := mgr.RequestBuffers(StreamVideo, 1, ModeFifo); err != nil {
		t.Fatalf("RequestBuffers: %v", err)
	}
	buf := Buffer{Ptr: 0x3000, Length: 4096}
	if err := mgr.Queue(StreamVideo, &buf); err != nil {
		t.Fatalf("Queue: %v", err)
	}
	if err := mgr.StreamOn(StreamVideo); err != nil {
		t.Fatalf("StreamOn: %v", err)
	}

	var wg sync.WaitGroup
	var out Buffer
	var dequeueErr error
	wg.Add(1)
	go func() {
		defer wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		dequeueErr = mgr.Dequeue(ctx, StreamVideo, &out)
	}()

	mgr.NotifyPath(StreamVideo, 99, false)
	wg.Wait()

	if dequeueErr != nil {
		t.Fatalf("Dequeue: %v", dequeueErr)
	}
	if out.BytesUsed != 99 {
		t.Fatalf("expected BytesUsed=99, got %d", out.BytesUsed)
	}
}

func TestCancelDequeueWakesBlockedWaiter(t *testing.T) {
	mgr, _, _ := newTestManager(t)
	if err := mgr.RequestBuffers(StreamVideo, 1, ModeFifo); err != nil {
		t.Fatalf("RequestBuffers: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		var out Buffer
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		done <- mgr.Dequeue(ctx, StreamVideo, &out)
	}()

	// Give the goroutine a chance to reach its wait point; if it
	// hasn't yet, CancelDequeue is a no-op and the test would hang,
	// which is why the deadline above still bounds the failure.
	time.Sleep(20 * time.Millisecond)
	if err := mgr.CancelDequeue(StreamVideo); err != nil {
		t.Fatalf("CancelDequeue: %v", err)
	}

	select {
	case err := <-done:
		if !errors.Is(err, ErrCanceled) {
			t.Fatalf("expected ErrCanceled, got %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Dequeue did not return after CancelDequeue")
	}
}

// TestStillCaptureYieldsVideoDMAThenResumes covers the Arbiter
// interaction from §4.3: starting a still burst demotes an active
// video DMA to STREAMON, and the still burst's completion hands DMA
// back to video once a buffer is queued for each stream.
func TestStillCaptureYieldsVideoDMAThenResumes(t *testing.T) {
	mgr, _, pipeline := newTestManager(t)

	if err := mgr.RequestBuffers(StreamVideo, 2, ModeRing); err != nil {
		t.Fatalf("RequestBuffers(video): %v", err)
	}
	if err := mgr.RequestBuffers(StreamStill, 1, ModeFifo); err != nil {
		t.Fatalf("RequestBuffers(still): %v", err)
	}

	vb1 := Buffer{Ptr: 0x4000, Length: 4096}
	vb2 := Buffer{Ptr: 0x5000, Length: 4096}
	if err := mgr.Queue(StreamVideo, &vb1); err != nil {
		t.Fatalf("Queue(vb1): %v", err)
	}
	if err := mgr.Queue(StreamVideo, &vb2); err != nil {
		t.Fatalf("Queue(vb2): %v", err)
	}
	if err := mgr.StreamOn(StreamVideo); err != nil {
		t.Fatalf("StreamOn: %v", err)
	}
	if mgr.video.State != StreamDMA {
		t.Fatalf("expected video to own DMA before the still burst, got %v", mgr.video.State)
	}

	if err := mgr.TakePictureStart(1); err != nil {
		t.Fatalf("TakePictureStart: %v", err)
	}
	if mgr.video.State != StreamOn {
		t.Fatalf("expected TakePictureStart to demote video to STREAMON, got %v", mgr.video.State)
	}

	sb := Buffer{Ptr: 0x6000, Length: 4096}
	if err := mgr.Queue(StreamStill, &sb); err != nil {
		t.Fatalf("Queue(still): %v", err)
	}
	if mgr.still.State != StreamDMA {
		t.Fatalf("expected queuing a still buffer to start its DMA, got %v", mgr.still.State)
	}
	if pipeline.LastPtr != sb.Ptr {
		t.Fatalf("expected still DMA to target sb, got ptr=%#x", pipeline.LastPtr)
	}

	// The single-shot burst completes: still terminates and yields
	// DMA back to video. The demotion cancelled vb1's DMA and returned
	// vb1 to the head of video's queue, so the resumed DMA targets it.
	mgr.NotifyPath(StreamStill, 777, false)

	if mgr.still.State != StreamOff {
		t.Fatalf("expected still to return to STREAMOFF, got %v", mgr.still.State)
	}
	if mgr.video.State != StreamDMA {
		t.Fatalf("expected video to reclaim DMA once still stopped, got %v", mgr.video.State)
	}
	if pipeline.LastPtr != vb1.Ptr {
		t.Fatalf("expected video's reclaimed DMA to target vb1, got ptr=%#x", pipeline.LastPtr)
	}

	var stillOut Buffer
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := mgr.Dequeue(ctx, StreamStill, &stillOut); err != nil {
		t.Fatalf("Dequeue(still): %v", err)
	}
	if stillOut.BytesUsed != 777 {
		t.Fatalf("unexpected still completion: %+v", stillOut)
	}
}

func TestRequestBuffersRejectedWhileDMA(t *testing.T) {
	mgr, _, _ := newTestManager(t)
	if err := mgr.RequestBuffers(StreamVideo, 1, ModeFifo); err != nil {
		t.Fatalf("RequestBuffers: %v", err)
	}
	buf := Buffer{Ptr: 0x7000, Length: 4096}
	if err := mgr.Queue(StreamVideo, &buf); err != nil {
		t.Fatalf("Queue: %v", err)
	}
	if err := mgr.StreamOn(StreamVideo); err != nil {
		t.Fatalf("StreamOn: %v", err)
	}
	if err := mgr.RequestBuffers(StreamVideo, 2, ModeFifo); !errors.Is(err, ErrNotPermitted) {
		t.Fatalf("expected ErrNotPermitted while DMA is active, got %v", err)
	}
}

func TestLegacyCtrlRejectsWideType(t *testing.T) {
	mgr, sensor, _ := newTestManager(t)
	const wideID uint32 = 0x00980921
	sensor.WithCtrl(wideID, sensorctl.CtrlValueRange{Minimum: 0, Maximum: 100}, 0).WithCtrlType(wideID, sensorctl.CtrlTypeInteger64)

	if _, err := mgr.GCtrl(wideID); !errors.Is(err, ErrNotSupported) {
		t.Fatalf("expected ErrNotSupported for a 64-bit control via legacy G_CTRL, got %v", err)
	}
	if _, err := mgr.QueryExtCtrl(wideID); err != nil {
		t.Fatalf("QUERY_EXT_CTRL should still succeed for the same control: %v", err)
	}
}

func TestSExtCtrlsReportsErrorIdx(t *testing.T) {
	mgr, sensor, _ := newTestManager(t)
	const ok1, ok2, bad uint32 = 0x00980900, 0x00980901, 0x00980902
	sensor.WithCtrl(ok1, sensorctl.CtrlValueRange{Minimum: 0, Maximum: 10}, 0)
	sensor.WithCtrl(ok2, sensorctl.CtrlValueRange{Minimum: 0, Maximum: 10}, 0)
	sensor.WithCtrl(bad, sensorctl.CtrlValueRange{Minimum: 0, Maximum: 10}, 0)

	err := mgr.SExtCtrls([]uint32{ok1, ok2, bad}, []int64{5, 5, 999})
	var extErr *ExtCtrlError
	if !errors.As(err, &extErr) {
		t.Fatalf("expected *ExtCtrlError, got %v", err)
	}
	if extErr.ErrorIdx != 2 {
		t.Fatalf("expected failure at index 2, got %d", extErr.ErrorIdx)
	}
}

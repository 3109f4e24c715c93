package dualstream

import "testing"

func TestFrameBufferQueueRealloc(t *testing.T) {
	q := NewFrameBufferQueue()
	if err := q.Realloc(3); err != nil {
		t.Fatalf("Realloc(3): %v", err)
	}
	if free, queued, dma, done := q.Counts(); free != 3 || queued != 0 || dma != 0 || done != 0 {
		t.Fatalf("unexpected counts after realloc: %d/%d/%d/%d", free, queued, dma, done)
	}
}

func TestFrameBufferQueueReallocRejectsWhileDMA(t *testing.T) {
	q := NewFrameBufferQueue()
	_ = q.Realloc(2)
	b, err := q.AcquireFree()
	if err != nil {
		t.Fatalf("AcquireFree: %v", err)
	}
	q.Enqueue(b)
	if q.PopForDMA() == nil {
		t.Fatal("expected PopForDMA to return the queued slot")
	}
	if err := q.Realloc(4); err != ErrNotPermitted {
		t.Fatalf("expected ErrNotPermitted, got %v", err)
	}
}

func TestFrameBufferQueueAcquireFreeExhaustion(t *testing.T) {
	q := NewFrameBufferQueue()
	_ = q.Realloc(1)
	if _, err := q.AcquireFree(); err != nil {
		t.Fatalf("first AcquireFree: %v", err)
	}
	if _, err := q.AcquireFree(); err != ErrOutOfMemory {
		t.Fatalf("expected ErrOutOfMemory, got %v", err)
	}
}

// TestRingModeRecyclesOldestDone reproduces scenario S5: with two
// buffers in ring mode and three completions delivered with no
// intervening Dequeue, the third completion must overwrite the
// first's slot, so a subsequent Dequeue observes the second and
// third completions, never the first.
func TestRingModeRecyclesOldestDone(t *testing.T) {
	q := NewFrameBufferQueue()
	q.SetMode(ModeRing)
	_ = q.Realloc(2)

	b1, _ := q.AcquireFree()
	q.Enqueue(b1)
	b2, _ := q.AcquireFree()
	q.Enqueue(b2)

	// Completion 1: buffer b1.
	if q.PopForDMA() != b1 {
		t.Fatal("expected first DMA target to be b1")
	}
	first := q.DMADone(100, false)
	if first != b1 {
		t.Fatal("expected DMADone to report b1")
	}

	// Completion 2: buffer b2.
	if q.PopForDMA() != b2 {
		t.Fatal("expected second DMA target to be b2")
	}
	second := q.DMADone(200, false)
	if second != b2 {
		t.Fatal("expected DMADone to report b2")
	}

	// Nothing queued: ring mode recycles the oldest done slot (b1) as
	// the third DMA target instead of idling.
	third := q.PopForDMA()
	if third != b1 {
		t.Fatalf("expected ring mode to recycle b1 for the third DMA, got %v", third)
	}
	_ = q.DMADone(300, false)

	// Draining done now yields b2 first (the oldest surviving
	// completion), then b1's third completion — never b1's first.
	d1 := q.PopDone()
	if d1 != b2 {
		t.Fatalf("expected first drained completion to be b2, got %v", d1)
	}
	d2 := q.PopDone()
	if d2 != b1 || d2.BytesUsed != 300 {
		t.Fatalf("expected second drained completion to be b1's third capture, got %v", d2)
	}
}

func TestFrameBufferQueueFifoModeIdlesWithNothingQueued(t *testing.T) {
	q := NewFrameBufferQueue()
	q.SetMode(ModeFifo)
	_ = q.Realloc(1)
	b, _ := q.AcquireFree()
	q.Enqueue(b)
	q.PopForDMA()
	q.DMADone(50, false)

	if slot := q.PopForDMA(); slot != nil {
		t.Fatalf("fifo mode must not recycle done slots, got %v", slot)
	}
}

package dualstream

// Mode selects the FrameBufferQueue's done sub-list overflow policy.
type Mode int

const (
	// ModeRing overwrites the oldest done slot (by recycling it back
	// into DMA) once the queue has nothing else to program next.
	ModeRing Mode = iota
	// ModeFifo refuses to start a new DMA once no free/queued slot
	// remains; completed slots pile up until the consumer drains them.
	ModeFifo
)

// FrameBufferQueue is the per-stream ordered queue of buffer
// descriptors described in spec §4.1. A slot is, at any instant,
// in exactly one of free/queued/dma-current/done; AcquireFree moves a
// slot out of free into a transient "reserved" state until Enqueue
// resolves it, so that free+reserved+queued+dma+done
// always equals the configured capacity.
type FrameBufferQueue struct {
	mode      Mode
	capacity  int
	freeCount int
	reserved  int

	queued     []*Buffer
	dmaCurrent *Buffer
	done       []*Buffer

	// recycledSinceDrain caps ring mode to one speculative recycle of
	// an undrained done slot per drain: once PopForDMA has recycled a
	// done slot to keep capturing with nothing queued, it refuses to
	// recycle again until Release proves the consumer got a chance to
	// drain something (spec §4.1, §8 S5). Without this bound,
	// consecutive completions with no intervening Dequeue would
	// ring-recycle on every single completion and silently drop every
	// done slot but the very latest.
	recycledSinceDrain bool

	nextIndex uint32
}

// NewFrameBufferQueue returns an empty, zero-capacity queue in fifo
// mode; callers must Realloc before use.
func NewFrameBufferQueue() *FrameBufferQueue {
	return &FrameBufferQueue{mode: ModeFifo}
}

// SetMode sets ring vs fifo. It has no effect on slots already
// partitioned into a sub-list.
func (q *FrameBufferQueue) SetMode(m Mode) {
	q.mode = m
}

func (q *FrameBufferQueue) Capacity() int {
	return q.capacity
}

// Realloc resizes the queue to n container slots. It fails with
// ErrNotPermitted if a DMA is in flight. Queued or done slots beyond
// n are dropped: done slots first (newest first), then queued slots
// from the tail.
func (q *FrameBufferQueue) Realloc(n int) error {
	if q.dmaCurrent != nil {
		return ErrNotPermitted
	}

	for len(q.queued)+len(q.done) > n {
		switch {
		case len(q.done) > 0:
			q.done = q.done[:len(q.done)-1]
		default:
			q.queued = q.queued[:len(q.queued)-1]
		}
	}

	q.capacity = n
	q.reserved = 0
	q.recycledSinceDrain = false
	q.freeCount = n - len(q.queued) - len(q.done)
	if q.freeCount < 0 {
		q.freeCount = 0
	}
	return nil
}

// AcquireFree reserves a slot from the free sub-list, or reports
// ErrOutOfMemory when none remain. The returned Buffer is otherwise
// zero-valued; the caller fills in Stream/Ptr/Length before Enqueue.
func (q *FrameBufferQueue) AcquireFree() (*Buffer, error) {
	if q.freeCount <= 0 {
		return nil, ErrOutOfMemory
	}
	q.freeCount--
	q.reserved++
	b := &Buffer{Index: q.nextIndex}
	q.nextIndex++
	return b, nil
}

// Enqueue moves a slot previously returned by AcquireFree from
// reserved into the tail of the queued sub-list.
func (q *FrameBufferQueue) Enqueue(b *Buffer) {
	q.reserved--
	q.queued = append(q.queued, b)
}

// PopForDMA moves the head queued slot to dma-current and returns
// it, or nil if a DMA is already in flight. In ring mode, if no
// slot is queued, the oldest done slot is recycled as the next DMA
// target rather than leaving the stream idle — this is how ring
// mode keeps a small fixed pool of buffers capturing continuously
// without the consumer re-queuing every frame. That recycle is
// allowed at most once per drain: a second consecutive recycle with
// still no Dequeue in between would evict a done slot no consumer
// ever had a chance to see, so the stream idles instead until
// Release proves a drain happened.
func (q *FrameBufferQueue) PopForDMA() *Buffer {
	if q.dmaCurrent != nil {
		return nil
	}
	if len(q.queued) > 0 {
		b := q.queued[0]
		q.queued = q.queued[1:]
		q.dmaCurrent = b
		return b
	}
	if q.mode == ModeRing && len(q.done) > 0 && !q.recycledSinceDrain {
		b := q.done[0]
		q.done = q.done[1:]
		q.dmaCurrent = b
		q.recycledSinceDrain = true
		return b
	}
	return nil
}

// DMADone moves the dma-current slot to the tail of done, stamping
// bytesUsed and the error flag. It returns nil if no DMA was in
// flight.
func (q *FrameBufferQueue) DMADone(bytesUsed uint32, errFlag bool) *Buffer {
	b := q.dmaCurrent
	if b == nil {
		return nil
	}
	q.dmaCurrent = nil
	b.BytesUsed = bytesUsed
	if errFlag {
		b.Flags |= FlagError
	} else {
		b.Flags &^= FlagError
	}
	q.done = append(q.done, b)
	return b
}

// PopDone removes and returns the head done slot, or nil if none.
func (q *FrameBufferQueue) PopDone() *Buffer {
	if len(q.done) == 0 {
		return nil
	}
	b := q.done[0]
	q.done = q.done[1:]
	return b
}

// Release returns a slot to free. Callers must have already removed
// it from every sub-list (normally via PopDone). This is the
// consumer's drain signal: it resets the ring recycle budget so a
// stalled stream may recycle again to resume continuous capture.
func (q *FrameBufferQueue) Release(b *Buffer) {
	q.freeCount++
	q.recycledSinceDrain = false
}

// HasDMACurrent reports whether a slot is currently being written by
// the image pipeline.
func (q *FrameBufferQueue) HasDMACurrent() bool {
	return q.dmaCurrent != nil
}

// HasQueued reports whether at least one slot is waiting to be
// programmed as the next DMA target.
func (q *FrameBufferQueue) HasQueued() bool {
	return len(q.queued) > 0
}

// Clear wipes every sub-list and resets capacity to zero, mirroring
// the original driver's unconditional framebuff teardown on the last
// close: any slot still attributed to an in-flight (possibly
// cancelled-but-never-confirmed) DMA is simply abandoned rather than
// tracked across re-opens (spec §3 lifecycle, §4.4 cancel note).
func (q *FrameBufferQueue) Clear() {
	q.capacity = 0
	q.freeCount = 0
	q.reserved = 0
	q.queued = nil
	q.dmaCurrent = nil
	q.done = nil
	q.nextIndex = 0
	q.recycledSinceDrain = false
}

// Counts returns the current size of each sub-list, for diagnostics
// and metrics.
func (q *FrameBufferQueue) Counts() (free, queued, dma, done int) {
	dma = 0
	if q.dmaCurrent != nil {
		dma = 1
	}
	return q.freeCount, len(q.queued), dma, len(q.done)
}

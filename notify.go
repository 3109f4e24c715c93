package dualstream

import (
	"time"

	"golang.org/x/sys/unix"
)

// NotifyPath is the interrupt-context entry the image pipeline calls
// when a DMA transfer completes (spec §4.6). It never blocks and
// never returns an error: a pipeline that cannot attribute a
// completion to a stream simply drops it.
func (m *StreamManager) NotifyPath(stream Stream, bytesUsed uint32, errFlag bool) {
	if !stream.valid() {
		return
	}
	st, q, lock := m.stateAndQueue(stream)

	lock.Lock()
	slot := q.DMADone(bytesUsed, errFlag)
	if slot != nil {
		slot.Timestamp = timevalNow()
	}

	if st.Remaining > 0 {
		st.Remaining--
	}
	terminate := st.Remaining == 0

	var needsPost bool
	if st.wait.waiting {
		if woken := q.PopDone(); woken != nil {
			st.wait.doneSlot = woken
			st.wait.cause = CauseDMADone
			st.wait.waiting = false
			needsPost = true
		}
	}

	var demoted, chainNext bool
	if terminate {
		st.State = StreamOff
		st.Remaining = RemainingInfinity
		demoted = true
	} else {
		chainNext = true
	}
	lock.Unlock()

	if terminate {
		// Mirrors the original driver's unconditional cancel_dma() on
		// the remaining_capnum==0 path, even though this DMA already
		// completed; it is a no-op on most pipelines but guards against
		// one that queues look-ahead work internally.
		if err := m.pipeline.CancelDMA(); err != nil {
			m.logger().Warn("cancel_dma on capture-count exhaustion failed", "stream", stream, "error", err)
		}
	}

	if needsPost {
		st.wait.flag.Post()
	}
	if m.obs != nil {
		m.obs.DMACompletion(stream, errFlag)
	}

	if demoted {
		// A still burst just ran out: video, if it had yielded DMA to
		// the still stream, is woken to re-evaluate the Arbiter and
		// reclaim it (spec §4.3, §4.6). The rendezvous wake above
		// already released any blocked still Dequeue; this is the
		// separate cross-stream wake for a blocked video Dequeue.
		if stream == StreamStill {
			m.wakeVideoOnStillStop()
			lock.Lock()
			m.transitionVideoFromStillLocked(CauseStillStop)
			lock.Unlock()
		}
		return
	}

	if chainNext {
		lock.Lock()
		started := m.dma.SetNextOrCancel(q, stream)
		if !started {
			st.State = StreamOn
		}
		m.reportDepth(stream, q)
		lock.Unlock()
	}
}

// wakeVideoOnStillStop posts video's rendezvous with WaitCauseStillStop
// if a Dequeue(video) call is currently blocked, so it re-enters its
// wait loop and observes the Arbiter's new decision instead of
// waiting indefinitely for a DMA completion that may now be able to
// start (spec §4.6, §9).
func (m *StreamManager) wakeVideoOnStillStop() {
	m.videoLock.Lock()
	waiting := m.video.wait.waiting
	if waiting {
		m.video.wait.cause = WaitCauseStillStop
		m.video.wait.waiting = false
	}
	m.videoLock.Unlock()
	if waiting {
		m.video.wait.flag.Post()
	}
}

func timevalNow() unix.Timeval {
	return unix.NsecToTimeval(time.Now().UnixNano())
}

// Package platform declares the board-level capability the
// dualstream core leans on for critical sections and blocking
// rendezvous, plus a default implementation. Real embedded ports
// implement Platform over actual interrupt-disable primitives; the
// default here stands in with ordinary OS-thread synchronization,
// which is the idiomatic Go analogue described in SPEC_FULL.md §5.
package platform

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// Platform is the capability set the core consumes: critical-section
// enter/leave, a binary semaphore primitive, and driver registration
// under a device path. It has no heap-allocation operation; the core
// allocates its descriptors with ordinary Go allocation. The core
// never holds a critical section across a blocking call.
type Platform interface {
	EnterCritical() (leave func())
	NewBinarySemaphore() BinarySemaphore
	Register(devicePath string) error
	Unregister(devicePath string) error
}

// BinarySemaphore is a single-count wait/post rendezvous flag, the
// primitive backing StreamState's wait_dma in spec §3.
type BinarySemaphore interface {
	// Wait blocks until Post is called or ctx is canceled.
	Wait(ctx context.Context) error
	// Post wakes exactly one blocked Wait call.
	Post()
	// TryAcquire reports whether a pending Post is already posted,
	// without blocking; it consumes the post if present.
	TryAcquire() bool
}

// Default is the stock Platform implementation: a mutex stands in
// for interrupt-disable, and BinarySemaphore is backed by
// golang.org/x/sync/semaphore.Weighted with weight one.
type Default struct {
	mu        sync.Mutex
	registry  map[string]bool
}

func NewDefault() *Default {
	return &Default{registry: map[string]bool{}}
}

func (p *Default) EnterCritical() func() {
	p.mu.Lock()
	return p.mu.Unlock
}

func (p *Default) NewBinarySemaphore() BinarySemaphore {
	sem := semaphore.NewWeighted(1)
	// Pre-acquire the single slot so the flag starts unset: the first
	// Wait blocks until a Post releases it.
	sem.Acquire(context.Background(), 1)
	return &weightedBinarySemaphore{sem: sem}
}

func (p *Default) Register(devicePath string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.registry[devicePath] = true
	return nil
}

func (p *Default) Unregister(devicePath string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.registry, devicePath)
	return nil
}

// weightedBinarySemaphore wraps semaphore.Weighted(1) to behave like
// a binary post/wait flag: Release panics on over-release, so a
// small mutex-guarded "posted" flag makes Post idempotent against
// the double-post race spec §9 calls out between cancel_dequeue and
// NotifyPath.
type weightedBinarySemaphore struct {
	mu     sync.Mutex
	sem    *semaphore.Weighted
	posted bool
}

func (b *weightedBinarySemaphore) Wait(ctx context.Context) error {
	if err := b.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	b.mu.Lock()
	b.posted = false
	b.mu.Unlock()
	return nil
}

func (b *weightedBinarySemaphore) Post() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.posted {
		return
	}
	b.posted = true
	b.sem.Release(1)
}

func (b *weightedBinarySemaphore) TryAcquire() bool {
	if !b.sem.TryAcquire(1) {
		return false
	}
	b.mu.Lock()
	b.posted = false
	b.mu.Unlock()
	return true
}

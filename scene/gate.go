package scene

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// gateWeight bounds the number of concurrent readers.
const gateWeight = 1 << 20

// Gate is a readers/writer gate over the current point cloud. Reconstructions
// hold read intent; captures and filters hold write intent. Waiters are
// served in arrival order, so a waiting writer holds back readers that arrive
// after it.
type Gate struct {
	sem *semaphore.Weighted
}

// NewGate returns an unheld gate.
func NewGate() *Gate {
	return &Gate{sem: semaphore.NewWeighted(gateWeight)}
}

// RLock acquires read intent, blocking until no writer holds or awaits the
// gate ahead of the caller, or ctx is done.
func (g *Gate) RLock(ctx context.Context) error {
	return g.sem.Acquire(ctx, 1)
}

// RUnlock releases read intent.
func (g *Gate) RUnlock() {
	g.sem.Release(1)
}

// Lock acquires exclusive write intent.
func (g *Gate) Lock(ctx context.Context) error {
	return g.sem.Acquire(ctx, gateWeight)
}

// TryLock acquires write intent only if nobody holds or awaits the gate.
func (g *Gate) TryLock() bool {
	return g.sem.TryAcquire(gateWeight)
}

// Unlock releases write intent.
func (g *Gate) Unlock() {
	g.sem.Release(gateWeight)
}

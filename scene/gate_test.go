package scene

import (
	"context"
	"testing"
	"time"

	"go.viam.com/test"
	"go.viam.com/utils/testutils"
)

func shortContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	t.Cleanup(cancel)
	return ctx
}

func TestGateReaders(t *testing.T) {
	g := NewGate()
	test.That(t, g.RLock(context.Background()), test.ShouldBeNil)
	test.That(t, g.RLock(context.Background()), test.ShouldBeNil)
	test.That(t, g.TryLock(), test.ShouldBeFalse)
	g.RUnlock()
	test.That(t, g.TryLock(), test.ShouldBeFalse)
	g.RUnlock()
	test.That(t, g.TryLock(), test.ShouldBeTrue)
	g.Unlock()
}

func TestGateWriterExclusive(t *testing.T) {
	g := NewGate()
	test.That(t, g.Lock(context.Background()), test.ShouldBeNil)

	err := g.RLock(shortContext(t))
	test.That(t, err, test.ShouldBeError, context.DeadlineExceeded)
	err = g.Lock(shortContext(t))
	test.That(t, err, test.ShouldBeError, context.DeadlineExceeded)
	test.That(t, g.TryLock(), test.ShouldBeFalse)

	g.Unlock()
	test.That(t, g.RLock(context.Background()), test.ShouldBeNil)
	g.RUnlock()
}

func TestGateWriterPreference(t *testing.T) {
	g := NewGate()
	test.That(t, g.RLock(context.Background()), test.ShouldBeNil)

	acquired := make(chan struct{})
	go func() {
		if err := g.Lock(context.Background()); err == nil {
			close(acquired)
		}
	}()

	// a queued writer makes even a single unit unavailable
	testutils.WaitForAssertion(t, func(tb testing.TB) {
		tb.Helper()
		ok := g.sem.TryAcquire(1)
		if ok {
			g.sem.Release(1)
		}
		test.That(tb, ok, test.ShouldBeFalse)
	})

	err := g.RLock(shortContext(t))
	test.That(t, err, test.ShouldBeError, context.DeadlineExceeded)

	select {
	case <-acquired:
		t.Fatal("writer acquired while a reader held the gate")
	default:
	}

	g.RUnlock()
	select {
	case <-acquired:
	case <-time.After(5 * time.Second):
		t.Fatal("writer never acquired the gate")
	}
	g.Unlock()
}

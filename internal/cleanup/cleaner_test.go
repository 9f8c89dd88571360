package cleanup

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeEvictor struct {
	calls  atomic.Int32
	maxTTL atomic.Int64
}

func (f *fakeEvictor) EvictIdle(maxIdle time.Duration) int {
	f.calls.Add(1)
	f.maxTTL.Store(int64(maxIdle))
	return 1
}

func TestCleanerSweepsOnTick(t *testing.T) {
	ev := &fakeEvictor{}
	c := NewCleaner(ev, 10*time.Millisecond, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool { return ev.calls.Load() >= 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, int64(time.Hour), ev.maxTTL.Load())

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("cleaner did not stop")
	}
}

func TestNewCleanerDefaults(t *testing.T) {
	c := NewCleaner(&fakeEvictor{}, 0, 0)
	assert.Equal(t, time.Minute, c.interval)
	assert.Equal(t, 30*time.Minute, c.idleTTL)
}

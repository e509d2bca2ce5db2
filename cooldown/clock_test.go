package cooldown

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTicker struct {
	ch      chan time.Time
	stopped chan struct{}
	once    sync.Once
}

func (f *fakeTicker) C() <-chan time.Time { return f.ch }
func (f *fakeTicker) Stop()               { f.once.Do(func() { close(f.stopped) }) }

type tickerFactory struct {
	mu      sync.Mutex
	tickers []*fakeTicker
}

func (tf *tickerFactory) New(time.Duration) Ticker {
	tf.mu.Lock()
	defer tf.mu.Unlock()
	t := &fakeTicker{ch: make(chan time.Time), stopped: make(chan struct{})}
	tf.tickers = append(tf.tickers, t)
	return t
}

func (tf *tickerFactory) get(i int) *fakeTicker {
	tf.mu.Lock()
	defer tf.mu.Unlock()
	return tf.tickers[i]
}

func waitStopped(t *testing.T, ft *fakeTicker) {
	t.Helper()
	select {
	case <-ft.stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("ticker was not released")
	}
}

func TestClock_TickNTimesFiresOnce(t *testing.T) {
	for _, n := range []uint64{1, 5, 60} {
		var fired int32
		c := New(func() { atomic.AddInt32(&fired, 1) }, WithInterval(0))
		c.Start(n)

		for i := uint64(0); i < n; i++ {
			c.Tick()
		}
		assert.Equal(t, uint64(0), c.Remaining())
		assert.Equal(t, int32(1), atomic.LoadInt32(&fired))
		assert.False(t, c.Running())

		// extra ticks stay at zero and never fire again
		c.Tick()
		c.Tick()
		assert.Equal(t, uint64(0), c.Remaining())
		assert.Equal(t, int32(1), atomic.LoadInt32(&fired))
	}
}

func TestClock_StartZeroDoesNotFire(t *testing.T) {
	var fired int32
	c := New(func() { atomic.AddInt32(&fired, 1) }, WithInterval(0))
	c.Start(0)
	c.Tick()
	assert.Equal(t, int32(0), atomic.LoadInt32(&fired))
	assert.False(t, c.Running())
}

func TestClock_ReseedCancelsPriorTrigger(t *testing.T) {
	var fired int32
	c := New(func() { atomic.AddInt32(&fired, 1) }, WithInterval(0))
	c.Start(2)
	c.Tick()
	c.Start(3)
	assert.Equal(t, uint64(3), c.Remaining())

	c.Tick()
	c.Tick()
	assert.Equal(t, int32(0), atomic.LoadInt32(&fired), "first seeding must not fire")
	c.Tick()
	assert.Equal(t, int32(1), atomic.LoadInt32(&fired))
}

func TestClock_TickLoop(t *testing.T) {
	tf := &tickerFactory{}
	fired := make(chan struct{}, 4)
	c := New(func() { fired <- struct{}{} }, WithTicker(tf.New))

	c.Start(3)
	ft := tf.get(0)
	for i := 0; i < 3; i++ {
		ft.ch <- time.Now()
	}

	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("onReachZero did not fire")
	}
	waitStopped(t, ft)
	assert.Equal(t, uint64(0), c.Remaining())
	assert.Len(t, fired, 0)
}

func TestClock_ReseedReleasesPriorLoop(t *testing.T) {
	tf := &tickerFactory{}
	var fired int32
	c := New(func() { atomic.AddInt32(&fired, 1) }, WithTicker(tf.New))

	c.Start(10)
	first := tf.get(0)
	first.ch <- time.Now()

	c.Start(2)
	waitStopped(t, first)

	second := tf.get(1)
	second.ch <- time.Now()
	second.ch <- time.Now()
	waitStopped(t, second)

	assert.Equal(t, int32(1), atomic.LoadInt32(&fired))
	assert.Equal(t, uint64(0), c.Remaining())
}

func TestClock_StopReleasesTicker(t *testing.T) {
	tf := &tickerFactory{}
	var fired int32
	c := New(func() { atomic.AddInt32(&fired, 1) }, WithTicker(tf.New))

	c.Start(100)
	c.Stop()

	select {
	case <-tf.get(0).stopped:
	default:
		t.Fatal("Stop returned before the ticker was released")
	}
	assert.False(t, c.Running())

	c.Tick()
	assert.Equal(t, int32(0), atomic.LoadInt32(&fired))
}

func TestClock_ReseedFromCallback(t *testing.T) {
	tf := &tickerFactory{}
	var c *Clock
	var fired int32
	c = New(func() {
		if atomic.AddInt32(&fired, 1) == 1 {
			c.Start(1)
		}
	}, WithTicker(tf.New))

	c.Start(1)
	tf.get(0).ch <- time.Now()
	waitStopped(t, tf.get(0))

	require.Eventually(t, func() bool {
		tf.mu.Lock()
		defer tf.mu.Unlock()
		return len(tf.tickers) == 2
	}, 2*time.Second, 10*time.Millisecond)
	tf.get(1).ch <- time.Now()
	waitStopped(t, tf.get(1))

	assert.Equal(t, int32(2), atomic.LoadInt32(&fired))
	c.Stop()
}

func TestClock_OnTick(t *testing.T) {
	var seen []uint64
	fired := 0
	c := New(func() { fired++ }, WithInterval(0), WithOnTick(func(r uint64) { seen = append(seen, r) }))
	c.Start(3)
	c.Tick()
	c.Tick()
	c.Tick()
	c.Tick()
	assert.Equal(t, []uint64{2, 1, 0}, seen)
	assert.Equal(t, 1, fired)
}

func TestFormat(t *testing.T) {
	tests := []struct {
		seconds uint64
		want    string
	}{
		{0, "0s"},
		{45, "45s"},
		{61, "1m 1s"},
		{3600, "1h 0m"},
		{86399, "23h 59m"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Format(tt.seconds))
	}
}

package debounce

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wolfman30/sdr-ai-platform/pkg/logging"
)

type recorder struct {
	mu    sync.Mutex
	calls []string
	keys  []string
}

func (r *recorder) handle(_ context.Context, key, combined string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, combined)
	r.keys = append(r.keys, key)
	return nil
}

func (r *recorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

type countingObserver struct {
	flushes atomic.Int32
	errors  atomic.Int32
}

func (o *countingObserver) ObserveFlush(_ int, err error) {
	o.flushes.Add(1)
	if err != nil {
		o.errors.Add(1)
	}
}

func TestDebouncer_CoalescesBurstInArrivalOrder(t *testing.T) {
	d := New(40*time.Millisecond, logging.Default())
	rec := &recorder{}

	for _, text := range []string{"oi", "tudo bem?", "quero saber dos planos"} {
		require.NoError(t, d.Add("+5511999990000", text, rec.handle))
	}

	require.Eventually(t, func() bool { return len(rec.snapshot()) == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(120 * time.Millisecond)

	calls := rec.snapshot()
	require.Len(t, calls, 1)
	assert.Equal(t, "oi\ntudo bem?\nquero saber dos planos", calls[0])
	assert.Equal(t, 0, d.Pending("+5511999990000"))
}

func TestDebouncer_NewMessageRestartsQuietWindow(t *testing.T) {
	d := New(100*time.Millisecond, logging.Default())
	rec := &recorder{}

	require.NoError(t, d.Add("lead", "primeira", rec.handle))
	time.Sleep(60 * time.Millisecond)
	require.NoError(t, d.Add("lead", "segunda", rec.handle))
	time.Sleep(60 * time.Millisecond)

	// 120ms after the first message but only 60ms after the second.
	assert.Empty(t, rec.snapshot(), "superseded timer must not flush")
	assert.Equal(t, 2, d.Pending("lead"))

	require.Eventually(t, func() bool { return len(rec.snapshot()) == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(150 * time.Millisecond)
	calls := rec.snapshot()
	require.Len(t, calls, 1)
	assert.Equal(t, "primeira\nsegunda", calls[0])
}

func TestDebouncer_SendersAreIndependent(t *testing.T) {
	d := New(30*time.Millisecond, logging.Default())
	rec := &recorder{}

	require.NoError(t, d.Add("a", "a1", rec.handle))
	require.NoError(t, d.Add("b", "b1", rec.handle))
	require.NoError(t, d.Add("a", "a2", rec.handle))

	require.Eventually(t, func() bool { return len(rec.snapshot()) == 2 }, time.Second, 5*time.Millisecond)
	assert.ElementsMatch(t, []string{"a1\na2", "b1"}, rec.snapshot())
}

func TestDebouncer_HandlerErrorClearsBuffer(t *testing.T) {
	obs := &countingObserver{}
	d := New(20*time.Millisecond, logging.Default(), WithObserver(obs))

	var calls atomic.Int32
	var last atomic.Value
	handler := func(_ context.Context, _ string, combined string) error {
		n := calls.Add(1)
		last.Store(combined)
		if n == 1 {
			return errors.New("llm down")
		}
		return nil
	}

	require.NoError(t, d.Add("lead", "primeira", handler))
	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, d.Pending("lead"))

	require.NoError(t, d.Add("lead", "segunda", handler))
	require.Eventually(t, func() bool { return calls.Load() == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "segunda", last.Load())
	assert.Equal(t, int32(1), obs.errors.Load())
	require.Eventually(t, func() bool { return obs.flushes.Load() == 2 }, time.Second, 5*time.Millisecond)
}

func TestDebouncer_HandlerPanicIsRecovered(t *testing.T) {
	obs := &countingObserver{}
	d := New(10*time.Millisecond, logging.Default(), WithObserver(obs))

	require.NoError(t, d.Add("lead", "x", func(context.Context, string, string) error {
		panic("boom")
	}))
	require.Eventually(t, func() bool { return obs.errors.Load() == 1 }, time.Second, 5*time.Millisecond)

	rec := &recorder{}
	require.NoError(t, d.Add("lead", "y", rec.handle))
	require.Eventually(t, func() bool { return len(rec.snapshot()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "y", rec.snapshot()[0])
}

func TestDebouncer_SameSenderRunsSerially(t *testing.T) {
	d := New(10*time.Millisecond, logging.Default())

	var active, maxActive, calls atomic.Int32
	release := make(chan struct{})
	handler := func(context.Context, string, string) error {
		n := active.Add(1)
		for {
			m := maxActive.Load()
			if n <= m || maxActive.CompareAndSwap(m, n) {
				break
			}
		}
		if calls.Add(1) == 1 {
			<-release
		}
		active.Add(-1)
		return nil
	}

	require.NoError(t, d.Add("lead", "um", handler))
	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, 2*time.Millisecond)

	require.NoError(t, d.Add("lead", "dois", handler))
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), calls.Load(), "second flush must wait for the first handler")

	close(release)
	require.Eventually(t, func() bool { return calls.Load() == 2 }, time.Second, 2*time.Millisecond)
	assert.Equal(t, int32(1), maxActive.Load())
}

func TestDebouncer_ShutdownFlushesPending(t *testing.T) {
	d := New(time.Hour, logging.Default())
	rec := &recorder{}

	require.NoError(t, d.Add("lead", "pendente", rec.handle))
	require.NoError(t, d.Add("lead", "outra", rec.handle))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, d.Shutdown(ctx))

	assert.Equal(t, []string{"pendente\noutra"}, rec.snapshot())
	assert.ErrorIs(t, d.Add("lead", "tarde", rec.handle), ErrClosed)
}

func TestDebouncer_AddRequiresHandler(t *testing.T) {
	d := New(0, nil)
	assert.ErrorIs(t, d.Add("lead", "x", nil), ErrNilHandler)
	assert.Equal(t, DefaultDelay, d.delay)
}

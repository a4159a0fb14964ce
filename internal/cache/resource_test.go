package cache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/danmuck/dmapctl/internal/backend"
	"github.com/danmuck/dmapctl/internal/protocol"
	"github.com/danmuck/dmapctl/internal/record"
	"github.com/danmuck/dmapctl/internal/testutil/fakebackend"
	"github.com/danmuck/dmapctl/internal/testutil/testlog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedFetch struct {
	mu    sync.Mutex
	calls []chan result
}

type result struct {
	value string
	err   error
}

func (f *scriptedFetch) fetch(ctx context.Context, key string) (string, error) {
	ch := make(chan result, 1)
	f.mu.Lock()
	f.calls = append(f.calls, ch)
	f.mu.Unlock()
	r := <-ch
	return r.value, r.err
}

func (f *scriptedFetch) answer(t *testing.T, i int, value string, err error) {
	t.Helper()
	require.Eventually(t, func() bool {
		f.mu.Lock()
		defer f.mu.Unlock()
		return len(f.calls) > i
	}, 2*time.Second, 5*time.Millisecond)
	f.mu.Lock()
	ch := f.calls[i]
	f.mu.Unlock()
	ch <- result{value: value, err: err}
}

func (f *scriptedFetch) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func waitCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestConcurrentGetCoalescesIntoOneFetch(t *testing.T) {
	testlog.Start(t)
	fake := fakebackend.New(t)
	arrived, release := fake.Hold(fakebackend.RouteList)
	client, err := backend.NewClient(backend.Config{BaseURL: fake.URL(), RequestTimeout: 2 * time.Second})
	require.NoError(t, err)

	res := New(context.Background(), "records", func(ctx context.Context, key string) ([]record.NodeRecord, error) {
		return client.FetchCollection(ctx, protocol.Key(key))
	})
	trigger := Trigger{Key: "rapi"}

	var wg sync.WaitGroup
	states := make([]State[[]record.NodeRecord], 2)
	for i := range states {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			states[i] = res.Get(trigger)
		}()
	}
	wg.Wait()

	select {
	case <-arrived:
	case <-time.After(2 * time.Second):
		t.Fatal("list request never reached the backend")
	}
	for _, st := range states {
		assert.True(t, st.Pending())
	}

	release()
	st, err := res.Wait(waitCtx(t), trigger)
	require.NoError(t, err)
	require.True(t, st.Ready(), "state %s err %v", st.Status, st.Err)
	assert.Empty(t, st.Value)

	res.Drain()
	assert.Equal(t, 1, fake.Hits(fakebackend.RouteList))
	stats := res.Stats()
	assert.Equal(t, uint64(1), stats.Fetches)
	assert.GreaterOrEqual(t, stats.Coalesced, uint64(1))
}

func TestReadySlotIsServedWithoutRefetch(t *testing.T) {
	testlog.Start(t)
	f := &scriptedFetch{}
	res := New(context.Background(), "strings", f.fetch)
	trigger := Trigger{Key: "mbtcp"}

	res.Get(trigger)
	f.answer(t, 0, "one", nil)
	st, err := res.Wait(waitCtx(t), trigger)
	require.NoError(t, err)
	assert.Equal(t, "one", st.Value)

	again := res.Get(trigger)
	assert.True(t, again.Ready())
	assert.Equal(t, 1, f.count())
}

func TestFailureIsRecordedAndNotRetried(t *testing.T) {
	testlog.Start(t)
	boom := errors.New("connection refused")
	f := &scriptedFetch{}
	res := New(context.Background(), "strings", f.fetch)
	trigger := Trigger{Key: "mqtt"}

	res.Get(trigger)
	f.answer(t, 0, "", boom)
	st, err := res.Wait(waitCtx(t), trigger)
	require.NoError(t, err)
	require.True(t, st.Failed())
	assert.ErrorIs(t, st.Err, boom)

	assert.True(t, res.Get(trigger).Failed())
	assert.Equal(t, 1, f.count())

	res.Invalidate("mqtt")
	assert.True(t, res.Get(trigger).Pending())
	f.answer(t, 1, "recovered", nil)
	st, err = res.Wait(waitCtx(t), trigger)
	require.NoError(t, err)
	assert.Equal(t, "recovered", st.Value)
}

func TestInvalidateDiscardsLateResponse(t *testing.T) {
	testlog.Start(t)
	f := &scriptedFetch{}
	res := New(context.Background(), "strings", f.fetch)
	trigger := Trigger{Key: "rapi"}

	res.Get(trigger)
	require.Eventually(t, func() bool { return f.count() == 1 }, time.Second, 5*time.Millisecond)
	res.Invalidate("rapi")
	res.Get(trigger)

	f.answer(t, 1, "fresh", nil)
	st, err := res.Wait(waitCtx(t), trigger)
	require.NoError(t, err)
	assert.Equal(t, "fresh", st.Value)

	f.answer(t, 0, "stale", nil)
	res.Drain()
	assert.Equal(t, "fresh", res.Get(trigger).Value)
	assert.Equal(t, uint64(1), res.Stats().Discarded)
}

func TestNewerRevisionSupersedesPendingFetch(t *testing.T) {
	testlog.Start(t)
	f := &scriptedFetch{}
	res := New(context.Background(), "strings", f.fetch)

	res.Get(Trigger{Key: "rapi", Rev: 0})
	require.Eventually(t, func() bool { return f.count() == 1 }, time.Second, 5*time.Millisecond)
	first := res.Get(Trigger{Key: "rapi", Rev: 1})
	assert.True(t, first.Pending())
	assert.Equal(t, uint64(1), first.Trigger.Rev)

	f.answer(t, 0, "rev0", nil)
	f.answer(t, 1, "rev1", nil)
	st, err := res.Wait(waitCtx(t), Trigger{Key: "rapi", Rev: 1})
	require.NoError(t, err)
	assert.Equal(t, "rev1", st.Value)

	res.Drain()
	assert.Equal(t, "rev1", res.Get(Trigger{Key: "rapi", Rev: 1}).Value)

	older := res.Get(Trigger{Key: "rapi", Rev: 0})
	assert.Equal(t, uint64(1), older.Trigger.Rev)
	assert.Equal(t, 2, f.count())
}

func TestFetchPanicBecomesFailedState(t *testing.T) {
	testlog.Start(t)
	res := New(context.Background(), "strings", func(ctx context.Context, key string) (string, error) {
		panic("decoder exploded")
	})

	st, err := res.Wait(waitCtx(t), Trigger{Key: "mqtt"})
	require.NoError(t, err)
	require.True(t, st.Failed())
	assert.ErrorIs(t, st.Err, ErrFetchPanicked)
}

func TestEmptyKeyFailsWithoutFetch(t *testing.T) {
	testlog.Start(t)
	f := &scriptedFetch{}
	res := New(context.Background(), "strings", f.fetch)

	st := res.Get(Trigger{Key: "  "})
	assert.ErrorIs(t, st.Err, ErrInvalidKey)
	assert.Zero(t, f.count())
	assert.Empty(t, res.Keys())
}

func TestSubscribersSeeTransitions(t *testing.T) {
	testlog.Start(t)
	f := &scriptedFetch{}
	res := New(context.Background(), "strings", f.fetch)

	var mu sync.Mutex
	var seen []Status
	cancel := res.Subscribe(func(st State[string]) {
		mu.Lock()
		seen = append(seen, st.Status)
		mu.Unlock()
	})

	res.Get(Trigger{Key: "rapi"})
	f.answer(t, 0, "v", nil)
	_, err := res.Wait(waitCtx(t), Trigger{Key: "rapi"})
	require.NoError(t, err)
	res.Drain()

	cancel()
	res.Invalidate("rapi")

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []Status{StatusPending, StatusReady}, seen)
}

func TestWaitHonorsContext(t *testing.T) {
	testlog.Start(t)
	f := &scriptedFetch{}
	res := New(context.Background(), "strings", f.fetch)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	st, err := res.Wait(ctx, Trigger{Key: "rapi"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.True(t, st.Pending())

	f.answer(t, 0, "late", nil)
	res.Drain()
	assert.True(t, res.Get(Trigger{Key: "rapi"}).Ready())
}

func TestSlowSubscriberEndsOnSettledState(t *testing.T) {
	testlog.Start(t)

	for run := 0; run < 50; run++ {
		res := New(context.Background(), "strings", func(ctx context.Context, key string) (string, error) {
			return "v", nil
		})

		var mu sync.Mutex
		var last State[string]
		var seen []Status
		res.Subscribe(func(st State[string]) {
			if st.Pending() {
				time.Sleep(time.Millisecond)
			}
			mu.Lock()
			last = st
			seen = append(seen, st.Status)
			mu.Unlock()
		})

		res.Get(Trigger{Key: "rapi"})
		res.Drain()

		mu.Lock()
		require.True(t, last.Ready(), "run %d: last observed %s", run, last.Status)
		require.Equal(t, []Status{StatusPending, StatusReady}, seen, "run %d", run)
		mu.Unlock()
	}
}

package cache

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/danmuck/dmapctl/internal/notify"
	"github.com/danmuck/dmapctl/internal/observability"
	"github.com/rs/zerolog/log"
)

const (
	outcomeReady     = "ready"
	outcomeFailed    = "failed"
	outcomeDiscarded = "discarded"
)

// FetchFunc loads the value for one trigger key.
type FetchFunc[T any] func(ctx context.Context, key string) (T, error)

// Listener observes slot transitions in the order they happened. It runs
// outside the cache lock and must not call Wait on the same resource.
type Listener[T any] func(State[T])

type slot[T any] struct {
	gen   uint64
	state State[T]
	done  chan struct{}
}

// Resource is a keyed set of fetch slots sharing one FetchFunc.
type Resource[T any] struct {
	name  string
	base  context.Context
	fetch FetchFunc[T]

	mu     sync.Mutex
	slots  map[string]*slot[T]
	stats  Stats
	wg     sync.WaitGroup
	events notify.Queue[State[T]]
}

// New builds a resource whose fetches run under base.
// base is not cancelled by the cache; callers own its lifetime.
func New[T any](base context.Context, name string, fetch FetchFunc[T]) *Resource[T] {
	if base == nil {
		base = context.Background()
	}
	return &Resource[T]{
		name:  name,
		base:  base,
		fetch: fetch,
		slots: make(map[string]*slot[T]),
	}
}

// Get observes trigger. The first observation of a key, a newer revision, or
// an observation after Invalidate starts exactly one fetch; observers arriving
// while that fetch is outstanding coalesce onto it.
func (r *Resource[T]) Get(trigger Trigger) State[T] {
	trigger.Key = strings.TrimSpace(trigger.Key)
	if trigger.Key == "" {
		return State[T]{Trigger: trigger, Status: StatusFailed, Err: ErrInvalidKey}
	}

	r.mu.Lock()
	s := r.slots[trigger.Key]
	if s == nil {
		s = &slot[T]{}
		r.slots[trigger.Key] = s
	}

	switch {
	case s.state.Status == StatusAbsent, trigger.Rev > s.state.Trigger.Rev:
		snapshot := r.startLocked(s, trigger)
		r.events.Publish(snapshot, nil)
		r.mu.Unlock()
		r.events.Flush()
		return snapshot
	case s.state.Status == StatusPending:
		r.stats.Coalesced++
		snapshot := s.state
		r.mu.Unlock()
		observability.RecordCacheCoalesced(trigger.Key)
		return snapshot
	default:
		snapshot := s.state
		r.mu.Unlock()
		return snapshot
	}
}

// Wait observes trigger and blocks until its slot settles or ctx ends.
// Listeners have observed the settled state by the time Wait returns.
func (r *Resource[T]) Wait(ctx context.Context, trigger Trigger) (State[T], error) {
	for {
		state := r.Get(trigger)

		r.mu.Lock()
		s := r.slots[state.Trigger.Key]
		if s != nil && s.done == nil && s.state.Status == StatusAbsent {
			r.mu.Unlock()
			continue
		}
		if s == nil || s.done == nil {
			if s != nil {
				state = s.state
			}
			r.mu.Unlock()
			return state, nil
		}
		done := s.done
		r.mu.Unlock()

		select {
		case <-done:
		case <-ctx.Done():
			return state, ctx.Err()
		}
	}
}

// Invalidate drops the slot's value and discards any outstanding fetch.
// The next Get for key starts a new fetch.
func (r *Resource[T]) Invalidate(key string) {
	key = strings.TrimSpace(key)
	r.mu.Lock()
	s := r.slots[key]
	if s == nil {
		r.mu.Unlock()
		return
	}
	s.gen++
	if s.done != nil {
		close(s.done)
		s.done = nil
	}
	rev := s.state.Trigger.Rev
	s.state = State[T]{Trigger: Trigger{Key: key, Rev: rev}}
	r.events.Publish(s.state, nil)
	r.mu.Unlock()

	log.Debug().Str("resource", r.name).Str("key", key).Msg("cache.Resource.Invalidate")
	r.events.Flush()
}

// Subscribe registers fn for every slot transition and returns its cancel func.
func (r *Resource[T]) Subscribe(fn Listener[T]) func() {
	return r.events.Subscribe(notify.Listener[State[T]](fn))
}

// Keys lists known slot keys in sorted order.
func (r *Resource[T]) Keys() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.slots))
	for key := range r.slots {
		out = append(out, key)
	}
	sort.Strings(out)
	return out
}

// Stats returns a copy of the activity counters.
func (r *Resource[T]) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats
}

// Drain blocks until every started fetch goroutine has returned.
func (r *Resource[T]) Drain() {
	r.wg.Wait()
}

func (r *Resource[T]) startLocked(s *slot[T], trigger Trigger) State[T] {
	s.gen++
	if s.done != nil {
		close(s.done)
	}
	s.done = make(chan struct{})
	s.state = State[T]{Trigger: trigger, Status: StatusPending}
	r.stats.Fetches++

	gen := s.gen
	r.wg.Add(1)
	go r.run(trigger, gen)

	log.Debug().Str("resource", r.name).Str("trigger", trigger.String()).Msg("cache.Resource.fetch start")
	return s.state
}

func (r *Resource[T]) run(trigger Trigger, gen uint64) {
	defer r.wg.Done()

	value, err := r.safeFetch(trigger.Key)

	r.mu.Lock()
	s := r.slots[trigger.Key]
	if s == nil || s.gen != gen {
		r.stats.Discarded++
		r.mu.Unlock()
		observability.RecordCacheFetch(trigger.Key, outcomeDiscarded)
		log.Debug().Str("resource", r.name).Str("trigger", trigger.String()).Msg("cache.Resource.fetch discarded")
		return
	}

	outcome := outcomeReady
	if err != nil {
		outcome = outcomeFailed
		s.state = State[T]{Trigger: trigger, Status: StatusFailed, Err: err}
	} else {
		s.state = State[T]{Trigger: trigger, Status: StatusReady, Value: value}
	}
	done := s.done
	r.events.Publish(s.state, func() { r.settle(trigger.Key, done) })
	r.mu.Unlock()

	observability.RecordCacheFetch(trigger.Key, outcome)
	if err != nil {
		log.Warn().Str("resource", r.name).Str("trigger", trigger.String()).Err(err).Msg("cache.Resource.fetch failed")
	}
	r.events.Flush()
}

// settle releases waiters of one fetch unless a newer fetch or Invalidate
// already replaced its done channel.
func (r *Resource[T]) settle(key string, done chan struct{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s := r.slots[key]; s != nil && s.done == done {
		close(done)
		s.done = nil
	}
}

func (r *Resource[T]) safeFetch(key string) (value T, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("%w: %v", ErrFetchPanicked, rec)
		}
	}()
	return r.fetch(r.base, key)
}

package view

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/danmuck/dmapctl/internal/cache"
	"github.com/danmuck/dmapctl/internal/creation"
	"github.com/danmuck/dmapctl/internal/protocol"
	"github.com/danmuck/dmapctl/internal/record"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// Fetcher lists and decodes one protocol collection.
type Fetcher interface {
	FetchCollection(ctx context.Context, key protocol.Key) ([]record.NodeRecord, error)
}

// Backend is everything the dispatcher needs from the data concentrator.
type Backend interface {
	Fetcher
	creation.Backend
}

// Dispatcher resolves render plans over one backend and one record cache.
type Dispatcher struct {
	registry *protocol.Registry
	backend  Backend
	base     context.Context
	records  *cache.Resource[[]record.NodeRecord]

	mu   sync.Mutex
	revs map[protocol.Key]uint64
}

// NewDispatcher builds a dispatcher over the default protocol registry.
func NewDispatcher(base context.Context, backend Backend) *Dispatcher {
	if base == nil {
		base = context.Background()
	}
	d := &Dispatcher{
		registry: protocol.Default(),
		backend:  backend,
		base:     base,
		revs:     make(map[protocol.Key]uint64),
	}
	d.records = cache.New(base, "records", func(ctx context.Context, key string) ([]record.NodeRecord, error) {
		return backend.FetchCollection(ctx, protocol.Key(key))
	})
	return d
}

// Records exposes the list cache for stats and draining.
func (d *Dispatcher) Records() *cache.Resource[[]record.NodeRecord] {
	return d.records
}

// Navigation lists the known protocols with the selection placeholder.
func (d *Dispatcher) Navigation() RenderPlan {
	descs := d.registry.List()
	nav := make([]NavEntry, 0, len(descs))
	for _, desc := range descs {
		nav = append(nav, NavEntry{Key: desc.Key, Label: desc.NavLabel})
	}
	return finish(RenderPlan{Kind: PlanNavigation, Body: PlaceholderText, Nav: nav})
}

// Resolve returns the plan for key and segment. List plans observe the cache
// and may be pending; an empty key resolves to navigation.
func (d *Dispatcher) Resolve(key, segment string) RenderPlan {
	key = strings.TrimSpace(key)
	if key == "" {
		return d.Navigation()
	}
	seg, ok := ParseSegment(segment)
	if !ok {
		return finish(RenderPlan{Kind: PlanNotFound, Protocol: protocol.Key(key), Body: fmt.Sprintf("unknown view %q", segment)})
	}
	desc := d.registry.Resolve(key)
	if !desc.Supported() {
		return unsupportedPlan(desc, seg)
	}

	plan := RenderPlan{Protocol: desc.Key, Segment: seg, Title: desc.DisplayName, Tabs: defaultTabs()}
	switch seg {
	case SegmentInfo:
		plan.Kind = PlanInfo
		plan.Body = desc.Description
	case SegmentList:
		return listPlan(desc, d.records.Get(d.Trigger(desc.Key)))
	case SegmentCreate:
		plan.Kind = PlanCreate
		form, _ := FormFor(desc)
		plan.Form = &form
	}
	return finish(plan)
}

// ResolveWait is Resolve with list plans settled before returning.
func (d *Dispatcher) ResolveWait(ctx context.Context, key, segment string) (RenderPlan, error) {
	plan := d.Resolve(key, segment)
	if plan.Kind != PlanList {
		return plan, nil
	}
	desc := d.registry.Resolve(string(plan.Protocol))
	state, err := d.records.Wait(ctx, d.Trigger(desc.Key))
	plan.List = listView(desc, state)
	return plan, err
}

// Watch calls fn with a fresh list plan each time a protocol's list slot
// changes, in the order the changes happened. The returned func stops it.
func (d *Dispatcher) Watch(fn func(RenderPlan)) func() {
	return d.records.Subscribe(func(state cache.State[[]record.NodeRecord]) {
		desc := d.registry.Resolve(state.Trigger.Key)
		if !desc.Supported() {
			return
		}
		fn(listPlan(desc, state))
	})
}

// Trigger returns the current cache trigger for key.
func (d *Dispatcher) Trigger(key protocol.Key) cache.Trigger {
	d.mu.Lock()
	defer d.mu.Unlock()
	return cache.Trigger{Key: string(key), Rev: d.revs[key]}
}

// Refresh bumps the revision for key so the next list observation refetches.
func (d *Dispatcher) Refresh(key protocol.Key) cache.Trigger {
	d.mu.Lock()
	d.revs[key]++
	trigger := cache.Trigger{Key: string(key), Rev: d.revs[key]}
	d.mu.Unlock()
	log.Debug().Str("trigger", trigger.String()).Msg("view.Dispatcher.Refresh")
	return trigger
}

// Overview settles the list plan of every known protocol concurrently.
// A failed list is reported in its plan, not as an error.
func (d *Dispatcher) Overview(ctx context.Context) ([]RenderPlan, error) {
	descs := d.registry.List()
	plans := make([]RenderPlan, len(descs))
	g, gctx := errgroup.WithContext(ctx)
	for i, desc := range descs {
		i, desc := i, desc
		g.Go(func() error {
			plan, err := d.ResolveWait(gctx, string(desc.Key), string(SegmentList))
			if err != nil {
				return fmt.Errorf("view: overview %s: %w", desc.Key, err)
			}
			plans[i] = plan
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return plans, nil
}

// Mount is one mounted create view and its gate.
type Mount struct {
	Plan RenderPlan
	Gate *creation.Gate

	unsubscribe func()
}

// Close unmounts the view. Late gate responses are discarded.
func (m *Mount) Close() {
	if m.unsubscribe != nil {
		m.unsubscribe()
	}
	m.Gate.Close()
}

// Mount creates a create view for key with its own gate. A successful
// submission refreshes the protocol's list.
func (d *Dispatcher) Mount(key string) (*Mount, error) {
	plan := d.Resolve(key, string(SegmentCreate))
	if plan.Kind != PlanCreate {
		return nil, fmt.Errorf("%w: %s", creation.ErrUnsupported, strings.TrimSpace(key))
	}
	gate, err := creation.NewGate(d.base, plan.Protocol, d.backend)
	if err != nil {
		return nil, err
	}

	var mu sync.Mutex
	submitted := 0
	unsubscribe := gate.Subscribe(func(s creation.Snapshot) {
		mu.Lock()
		grew := s.Submitted > submitted
		submitted = s.Submitted
		mu.Unlock()
		if grew {
			d.Refresh(s.Protocol)
		}
	})
	log.Debug().Str("protocol", string(plan.Protocol)).Msg("view.Dispatcher.Mount")
	return &Mount{Plan: plan, Gate: gate, unsubscribe: unsubscribe}, nil
}

func listPlan(desc protocol.Descriptor, state cache.State[[]record.NodeRecord]) RenderPlan {
	return finish(RenderPlan{
		Kind:     PlanList,
		Protocol: desc.Key,
		Segment:  SegmentList,
		Title:    desc.DisplayName,
		Tabs:     defaultTabs(),
		List:     listView(desc, state),
	})
}

func unsupportedPlan(desc protocol.Descriptor, seg Segment) RenderPlan {
	plan := RenderPlan{Kind: PlanUnsupported, Protocol: desc.Key, Segment: seg, Tabs: defaultTabs()}
	switch seg {
	case SegmentInfo:
		plan.Title = desc.DisplayName
		plan.Body = desc.Description
	case SegmentList:
		plan.Body = NoMapText
	case SegmentCreate:
		plan.Body = NoNewNodesText
	}
	return finish(plan)
}

func finish(plan RenderPlan) RenderPlan {
	plan.KindName = plan.Kind.String()
	return plan
}

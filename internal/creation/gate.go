package creation

import (
	"context"
	"fmt"
	"sync"

	"github.com/danmuck/dmapctl/internal/notify"
	"github.com/danmuck/dmapctl/internal/observability"
	"github.com/danmuck/dmapctl/internal/protocol"
	"github.com/danmuck/dmapctl/internal/record"
	"github.com/rs/zerolog/log"
)

// Allocator issues fresh node identifiers.
type Allocator interface {
	AllocateUID(ctx context.Context) (string, error)
}

// Submitter posts one record to a protocol's create path.
type Submitter interface {
	Submit(ctx context.Context, key protocol.Key, rec record.NodeRecord) error
}

// Backend is what a gate needs from the data concentrator.
type Backend interface {
	Allocator
	Submitter
}

// Snapshot is a copy of gate state.
type Snapshot struct {
	Protocol protocol.Key
	Phase    Phase
	// ID is held in Allocated, Submitting, and Failed after a submit.
	ID string
	// FailedOp names the request that moved the gate to Failed.
	FailedOp string
	Err      error
	// Draft is the last record handed to Submit, stamped with ID.
	Draft     record.NodeRecord
	Submitted int
	Closed    bool
	// InFlight is set while a request is outstanding or its result is still
	// being delivered to listeners.
	InFlight bool
}

// CanGenerate reports whether Generate would be accepted.
func (s Snapshot) CanGenerate() bool {
	if s.Closed || s.InFlight {
		return false
	}
	return s.Phase == PhaseIdle || s.Phase == PhaseFailed
}

// CanSubmit reports whether Submit would be accepted.
func (s Snapshot) CanSubmit() bool {
	if s.Closed || s.InFlight {
		return false
	}
	return s.Phase == PhaseAllocated || (s.Phase == PhaseFailed && s.ID != "")
}

// Gate sequences allocation and submission for one create form.
type Gate struct {
	desc    protocol.Descriptor
	backend Backend
	base    context.Context

	mu        sync.Mutex
	phase     Phase
	id        string
	failedOp  string
	err       error
	draft     record.NodeRecord
	submitted int
	closed    bool
	epoch     uint64
	done      chan struct{}
	wg        sync.WaitGroup
	events    notify.Queue[Snapshot]
}

// NewGate binds a gate to key. Requests run under base.
func NewGate(base context.Context, key protocol.Key, backend Backend) (*Gate, error) {
	desc := protocol.Resolve(string(key))
	if !desc.Supported() {
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, key)
	}
	if base == nil {
		base = context.Background()
	}
	return &Gate{
		desc:    desc,
		backend: backend,
		base:    base,
	}, nil
}

// Protocol returns the bound protocol key.
func (g *Gate) Protocol() protocol.Key {
	return g.desc.Key
}

// Generate requests a new identifier. It returns once the request is started.
func (g *Gate) Generate() error {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return ErrClosed
	}
	if g.done != nil || (g.phase != PhaseIdle && g.phase != PhaseFailed) {
		phase := g.phase
		g.mu.Unlock()
		return fmt.Errorf("%w: generate while %s", ErrRejected, phase)
	}
	g.id = ""
	g.err = nil
	g.failedOp = ""
	epoch, done := g.epoch, make(chan struct{})
	g.done = done
	g.events.Publish(g.transitionLocked(PhaseAllocating), nil)
	g.wg.Add(1)
	g.mu.Unlock()

	g.events.Flush()
	go g.allocate(epoch, done)
	return nil
}

// Submit stamps rec with the held identifier and posts it.
func (g *Gate) Submit(rec record.NodeRecord) error {
	if rec == nil {
		return fmt.Errorf("%w: nil record", ErrInvalidDraft)
	}
	if rec.Kind() != g.desc.Kind {
		return fmt.Errorf("%w: %s record for %s form", ErrInvalidDraft, rec.Kind(), g.desc.Key)
	}

	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return ErrClosed
	}
	ready := g.phase == PhaseAllocated || (g.phase == PhaseFailed && g.id != "")
	if g.done != nil || !ready {
		phase := g.phase
		g.mu.Unlock()
		return fmt.Errorf("%w: submit while %s without identifier", ErrRejected, phase)
	}
	stamped := rec.WithAllocatedID(g.id)
	g.draft = stamped
	g.err = nil
	g.failedOp = ""
	epoch, done := g.epoch, make(chan struct{})
	g.done = done
	g.events.Publish(g.transitionLocked(PhaseSubmitting), nil)
	g.wg.Add(1)
	g.mu.Unlock()

	g.events.Flush()
	go g.submit(epoch, done, stamped)
	return nil
}

// Snapshot returns the current state.
func (g *Gate) Snapshot() Snapshot {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.snapshotLocked()
}

// Wait blocks until no request is outstanding or ctx ends. Listeners have
// observed the settled state by the time Wait returns.
func (g *Gate) Wait(ctx context.Context) (Snapshot, error) {
	for {
		g.mu.Lock()
		snap := g.snapshotLocked()
		done := g.done
		g.mu.Unlock()
		if done == nil || snap.Closed {
			return snap, nil
		}
		select {
		case <-done:
		case <-ctx.Done():
			return snap, ctx.Err()
		}
	}
}

// Close unmounts the gate. Outstanding responses are discarded when they land.
func (g *Gate) Close() {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return
	}
	g.closed = true
	g.epoch++
	if g.done != nil {
		close(g.done)
		g.done = nil
	}
	snap := g.snapshotLocked()
	g.events.Publish(snap, nil)
	g.mu.Unlock()

	log.Debug().Str("protocol", string(g.desc.Key)).Str("phase", snap.Phase.String()).Msg("creation.Gate.Close")
	g.events.Flush()
}

// Subscribe registers fn for every state change and returns its cancel func.
// Changes arrive in the order they happened. fn must not call Wait.
func (g *Gate) Subscribe(fn func(Snapshot)) func() {
	return g.events.Subscribe(fn)
}

// Drain blocks until every started request goroutine has returned.
func (g *Gate) Drain() {
	g.wg.Wait()
}

func (g *Gate) allocate(epoch uint64, done chan struct{}) {
	defer g.wg.Done()
	uid, err := g.backend.AllocateUID(g.base)

	g.mu.Lock()
	if g.epoch != epoch || g.closed {
		g.mu.Unlock()
		log.Debug().Str("protocol", string(g.desc.Key)).Msg("creation.Gate.allocate discarded")
		return
	}
	var snap Snapshot
	if err != nil {
		g.id = ""
		g.err = err
		g.failedOp = OpAllocate
		snap = g.transitionLocked(PhaseFailed)
	} else {
		g.id = uid
		snap = g.transitionLocked(PhaseAllocated)
	}
	g.publishSettledLocked(snap, done)
	g.mu.Unlock()

	if err != nil {
		log.Warn().Str("protocol", string(g.desc.Key)).Err(err).Msg("creation.Gate.allocate failed")
	} else {
		log.Debug().Str("protocol", string(g.desc.Key)).Str("uid", uid).Msg("creation.Gate.allocate")
	}
	g.events.Flush()
}

func (g *Gate) submit(epoch uint64, done chan struct{}, rec record.NodeRecord) {
	defer g.wg.Done()
	err := g.backend.Submit(g.base, g.desc.Key, rec)

	g.mu.Lock()
	if g.epoch != epoch || g.closed {
		g.mu.Unlock()
		log.Debug().Str("protocol", string(g.desc.Key)).Msg("creation.Gate.submit discarded")
		return
	}
	var snap Snapshot
	if err != nil {
		g.err = err
		g.failedOp = OpSubmit
		snap = g.transitionLocked(PhaseFailed)
	} else {
		g.id = ""
		g.draft = nil
		g.submitted++
		snap = g.transitionLocked(PhaseIdle)
	}
	g.publishSettledLocked(snap, done)
	g.mu.Unlock()

	if err != nil {
		log.Warn().Str("protocol", string(g.desc.Key)).Err(err).Msg("creation.Gate.submit failed")
	} else {
		log.Info().Str("protocol", string(g.desc.Key)).Str("uid", rec.Identity()).Msg("creation.Gate.submit")
	}
	g.events.Flush()
}

func (g *Gate) transitionLocked(next Phase) Snapshot {
	prev := g.phase
	g.phase = next
	observability.RecordGateTransition(string(g.desc.Key), prev.String(), next.String())
	return g.snapshotLocked()
}

// publishSettledLocked queues the result of one request. Waiters are released
// after listeners have seen it. Listeners get the state as it stands once
// settled, so InFlight is cleared.
func (g *Gate) publishSettledLocked(snap Snapshot, done chan struct{}) {
	snap.InFlight = false
	g.events.Publish(snap, func() { g.settle(done) })
}

// settle releases waiters of one request unless Close already did.
func (g *Gate) settle(done chan struct{}) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.done == done {
		g.done = nil
		close(done)
	}
}

func (g *Gate) snapshotLocked() Snapshot {
	return Snapshot{
		Protocol:  g.desc.Key,
		Phase:     g.phase,
		ID:        g.id,
		FailedOp:  g.failedOp,
		Err:       g.err,
		Draft:     g.draft,
		Submitted: g.submitted,
		Closed:    g.closed,
		InFlight:  g.done != nil,
	}
}

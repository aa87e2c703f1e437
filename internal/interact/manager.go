package interact

import (
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/officeverse/roomcore/internal/core/event"
	"github.com/officeverse/roomcore/internal/geom"
	"github.com/officeverse/roomcore/internal/world"
)

const (
	DefaultCooldown = 300 * time.Millisecond
	DefaultDebounce = 100 * time.Millisecond
)

// Options configures a Manager. Zero durations fall back to the defaults.
type Options struct {
	Cooldown time.Duration
	Debounce time.Duration
	// EmitLost enables "lost" events for objects that leave range.
	EmitLost bool
	// OnStateChange receives a copy of the state after every recomputation
	// and every successful trigger. Released by Cleanup.
	OnStateChange func(Snapshot)
	Logger        *zap.Logger
}

// DefaultOptions returns the stock engine settings.
func DefaultOptions() Options {
	return Options{
		Cooldown: DefaultCooldown,
		Debounce: DefaultDebounce,
		EmitLost: true,
	}
}

// Manager evaluates which interactables are within range of one moving
// agent and emits lifecycle events. One Manager per active room; the index
// it reads is never mutated, a map change means a new Manager.
//
// UpdateInteractions never blocks: it arms a trailing-edge debounce timer.
// Recomputations run one at a time under mu. Their events are queued in
// state order and delivered after mu is released, so handlers may call
// back into the Manager.
type Manager struct {
	index *world.Index
	opts  Options
	log   *zap.Logger
	bus   *event.Bus[Event]
	now   func() time.Time

	mu             sync.Mutex
	nearby         map[string]struct{}
	lastInteracted string
	cooldownUntil  time.Time
	lastPosition   *geom.Point
	pending        geom.Point
	timer          *time.Timer
	seq            uint64 // bumped by every Update and by Cleanup; stale timers compare it
	recomputes     int
	closed         bool
	onState        func(Snapshot)

	outMu    sync.Mutex // guards outbox and draining; taken after mu
	outbox   []func()
	draining bool
}

// New creates a Manager over index.
func New(index *world.Index, opts Options) *Manager {
	if opts.Cooldown <= 0 {
		opts.Cooldown = DefaultCooldown
	}
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{
		index:   index,
		opts:    opts,
		log:     log,
		bus:     event.NewBus[Event](log),
		now:     time.Now,
		nearby:  make(map[string]struct{}),
		onState: opts.OnStateChange,
	}
}

// Index returns the index the manager reads.
func (m *Manager) Index() *world.Index { return m.index }

// UpdateInteractions records the agent's latest tile position and schedules
// a recomputation after the debounce window. A burst of calls collapses into
// one recomputation at the last position.
func (m *Manager) UpdateInteractions(p geom.Point) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.pending = p
	m.seq++
	seq := m.seq
	if m.timer != nil {
		m.timer.Stop()
	}
	m.timer = time.AfterFunc(m.opts.Debounce, func() { m.fire(seq) })
}

// Flush runs a pending recomputation now instead of waiting for the timer.
func (m *Manager) Flush() {
	m.mu.Lock()
	if m.closed || m.timer == nil {
		m.mu.Unlock()
		return
	}
	m.timer.Stop()
	seq := m.seq
	m.mu.Unlock()
	m.fire(seq)
}

func (m *Manager) fire(seq uint64) {
	m.mu.Lock()
	if m.closed || seq != m.seq {
		m.mu.Unlock()
		return
	}
	m.timer = nil
	m.recomputeLocked(m.pending)
	m.mu.Unlock()
	m.drain()
}

// recomputeLocked swaps in the state for p and queues its events. The
// caller delivers them with drain after releasing mu.
func (m *Manager) recomputeLocked(p geom.Point) {
	if m.lastPosition != nil && *m.lastPosition == p {
		return
	}

	next := make(map[string]struct{})
	var appeared []*world.Object
	for _, o := range m.index.Nearby(p) {
		if !world.InRange(o, p) {
			continue
		}
		next[o.ID] = struct{}{}
		if _, was := m.nearby[o.ID]; !was {
			appeared = append(appeared, o)
		}
	}
	var lost []string
	for id := range m.nearby {
		if _, still := next[id]; !still {
			lost = append(lost, id)
		}
	}
	sort.Strings(lost)

	m.nearby = next
	pos := p
	m.lastPosition = &pos
	m.recomputes++
	snap := m.snapshotLocked()
	onState := m.onState
	emitLost := m.opts.EmitLost

	m.log.Debug("interactions recomputed",
		zap.Int("x", p.X), zap.Int("y", p.Y),
		zap.Int("nearby", len(next)),
		zap.Int("available", len(appeared)),
		zap.Int("lost", len(lost)))

	m.enqueue(func() {
		for _, o := range appeared {
			at := p
			m.bus.Publish(Event{Type: EventAvailable, ObjectID: o.ID, Object: o, Position: &at})
		}
		if emitLost {
			for _, id := range lost {
				at := p
				m.bus.Publish(Event{Type: EventLost, ObjectID: id, Object: m.index.Get(id), Position: &at})
			}
		}
		m.notify(onState, snap)
	})
}

// enqueue appends a delivery in state order. Called with mu held.
func (m *Manager) enqueue(fn func()) {
	m.outMu.Lock()
	m.outbox = append(m.outbox, fn)
	m.outMu.Unlock()
}

// drain delivers queued events with no lock held. Only one goroutine drains
// at a time; a handler that moves the agent or flushes from inside a
// callback queues its events behind the current ones and returns.
func (m *Manager) drain() {
	m.outMu.Lock()
	if m.draining {
		m.outMu.Unlock()
		return
	}
	m.draining = true
	for len(m.outbox) > 0 {
		fn := m.outbox[0]
		m.outbox = m.outbox[1:]
		m.outMu.Unlock()
		fn()
		m.outMu.Lock()
	}
	m.draining = false
	m.outMu.Unlock()
}

// GetAvailableInteractions returns the objects currently in range, ordered
// by id. Ids that no longer resolve are skipped.
func (m *Manager) GetAvailableInteractions() []*world.Object {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.availableLocked()
}

func (m *Manager) availableLocked() []*world.Object {
	ids := make([]string, 0, len(m.nearby))
	for id := range m.nearby {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]*world.Object, 0, len(ids))
	for _, id := range ids {
		if o := m.index.Get(id); o != nil {
			out = append(out, o)
		}
	}
	return out
}

// GetClosestInteraction returns the available object nearest to p, or nil.
// Ties go to the first object found.
func (m *Manager) GetClosestInteraction(p geom.Point) *world.Object {
	m.mu.Lock()
	available := m.availableLocked()
	m.mu.Unlock()

	var best *world.Object
	bestDist := -1
	for _, o := range available {
		d := world.Distance(o, p)
		if d < 0 {
			continue
		}
		if best == nil || d < bestDist {
			best, bestDist = o, d
		}
	}
	return best
}

// TriggerInteraction fires the object if the cooldown has elapsed, the
// object is currently in range and it resolves. Never panics; false means
// the trigger was refused.
func (m *Manager) TriggerInteraction(id string) bool {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return false
	}
	now := m.now()
	if now.Before(m.cooldownUntil) {
		m.mu.Unlock()
		return false
	}
	if _, ok := m.nearby[id]; !ok {
		m.mu.Unlock()
		return false
	}
	o := m.index.Get(id)
	if o == nil {
		m.mu.Unlock()
		return false
	}
	m.lastInteracted = id
	m.cooldownUntil = now.Add(m.opts.Cooldown)
	var at *geom.Point
	if m.lastPosition != nil {
		p := *m.lastPosition
		at = &p
	}
	snap := m.snapshotLocked()
	onState := m.onState
	m.enqueue(func() {
		m.bus.Publish(Event{Type: EventTriggered, ObjectID: id, Object: o, Position: at})
		m.notify(onState, snap)
	})
	m.mu.Unlock()

	m.log.Debug("interaction triggered", zap.String("object", id), zap.String("type", o.Type))
	m.drain()
	return true
}

// Subscribe registers an event handler and returns its unsubscribe function.
func (m *Manager) Subscribe(fn func(Event)) func() {
	m.mu.Lock()
	closed := m.closed
	m.mu.Unlock()
	if closed {
		return func() {}
	}
	return m.bus.Subscribe(fn)
}

// Snapshot returns a copy of the current state.
func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

func (m *Manager) snapshotLocked() Snapshot {
	s := Snapshot{
		Nearby:         make([]string, 0, len(m.nearby)),
		LastInteracted: m.lastInteracted,
		CooldownUntil:  m.cooldownUntil,
	}
	for id := range m.nearby {
		s.Nearby = append(s.Nearby, id)
	}
	sort.Strings(s.Nearby)
	if m.lastPosition != nil {
		p := *m.lastPosition
		s.LastPosition = &p
	}
	return s
}

// Recomputations returns how many recomputations actually ran.
func (m *Manager) Recomputations() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.recomputes
}

func (m *Manager) notify(fn func(Snapshot), s Snapshot) {
	if fn == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			m.log.Error("state callback panicked", zap.Any("panic", r))
		}
	}()
	fn(s)
}

// Cleanup cancels any pending recomputation, drops every subscriber and the
// state callback. Safe to call more than once.
func (m *Manager) Cleanup() {
	m.mu.Lock()
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	m.seq++
	m.closed = true
	m.onState = nil
	m.mu.Unlock()
	m.outMu.Lock()
	m.outbox = nil
	m.outMu.Unlock()
	m.bus.Clear()
}

// Package room owns the lifetime of one active room: its map, index,
// interaction engine and the side effects of a trigger. A Session is
// created on room entry and closed on exit; nothing about it is global.
package room

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/officeverse/roomcore/internal/config"
	"github.com/officeverse/roomcore/internal/core/event"
	"github.com/officeverse/roomcore/internal/data"
	"github.com/officeverse/roomcore/internal/geom"
	"github.com/officeverse/roomcore/internal/interact"
	"github.com/officeverse/roomcore/internal/loader"
	"github.com/officeverse/roomcore/internal/persist"
	"github.com/officeverse/roomcore/internal/scripting"
	"github.com/officeverse/roomcore/internal/tilemap"
	"github.com/officeverse/roomcore/internal/world"
)

// ErrClosed is returned by operations on a closed session.
var ErrClosed = errors.New("room session closed")

// Hooks decides what a trigger does. *scripting.Engine implements it.
type Hooks interface {
	OnInteract(ctx scripting.InteractContext) scripting.Action
}

// LogWriter persists interaction entries. *persist.InteractionLogRepo implements it.
type LogWriter interface {
	WriteBatch(ctx context.Context, entries []persist.InteractionEntry) error
}

type Config struct {
	Name         string
	MapPath      string
	ChunkSize    int
	DefaultRange int // used as given; 0 means objects must be touched
	Cooldown     time.Duration
	Debounce     time.Duration
	EmitLost     bool
	BufferSize   int
}

// ConfigFrom maps the file configuration onto a session configuration.
func ConfigFrom(cfg *config.Config) Config {
	return Config{
		Name:         cfg.Room.Name,
		MapPath:      cfg.Room.MapPath,
		ChunkSize:    cfg.Interaction.ChunkSize,
		DefaultRange: cfg.Interaction.DefaultRange,
		Cooldown:     cfg.Interaction.Cooldown,
		Debounce:     cfg.Interaction.Debounce,
		EmitLost:     cfg.Interaction.EmitLost,
		BufferSize:   cfg.Database.BufferSize,
	}
}

// Deps are the optional collaborators of a session. Nil fields disable
// the matching feature.
type Deps struct {
	Table  *data.InteractableTable
	Hooks  Hooks
	Log    LogWriter
	Logger *zap.Logger
}

// Session is one active room.
type Session struct {
	cfg    Config
	deps   Deps
	log    *zap.Logger
	loader *loader.Loader
	bus    *event.Bus[interact.Event]
	buffer *persist.LogBuffer
	now    func() time.Time

	mu        sync.RWMutex
	manager   *interact.Manager
	collision *world.CollisionMap
	lastPos   *geom.Point
	closed    bool

	reloadMu sync.Mutex
}

// Open reads the room's map, builds it off the calling goroutine and waits
// for it to be ready.
func Open(ctx context.Context, cfg Config, deps Deps) (*Session, error) {
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}
	log = log.With(zap.String("room", cfg.Name))

	defaultRange := cfg.DefaultRange
	s := &Session{
		cfg:  cfg,
		deps: deps,
		log:  log,
		loader: loader.New(loader.Options{
			ChunkSize:    cfg.ChunkSize,
			DefaultRange: &defaultRange,
			Table:        deps.Table,
			Logger:       log,
		}),
		bus: event.NewBus[interact.Event](log),
		now: time.Now,
	}
	if deps.Log != nil {
		s.buffer = persist.NewLogBuffer(cfg.BufferSize)
	}
	s.loader.OnChange(func(st loader.State) {
		if st.Loading && st.Stage != "" {
			log.Debug("map load progress",
				zap.Uint64("gen", st.Generation),
				zap.String("stage", st.Stage),
				zap.Int("done", st.Done),
				zap.Int("total", st.Total))
		}
	})

	if err := s.Reload(ctx); err != nil {
		s.loader.Close()
		return nil, err
	}
	return s, nil
}

// Reload re-reads the map file and swaps in a freshly built index and
// engine. The previous engine is torn down; session subscribers stay
// attached. On error the current room state is kept.
func (s *Session) Reload(ctx context.Context) error {
	s.reloadMu.Lock()
	defer s.reloadMu.Unlock()

	if s.isClosed() {
		return ErrClosed
	}
	m, err := tilemap.Load(s.cfg.MapPath)
	if err != nil {
		return err
	}
	return s.install(ctx, m)
}

// ReloadMap is Reload with an already decoded map.
func (s *Session) ReloadMap(ctx context.Context, m *tilemap.Map) error {
	s.reloadMu.Lock()
	defer s.reloadMu.Unlock()
	if s.isClosed() {
		return ErrClosed
	}
	return s.install(ctx, m)
}

func (s *Session) install(ctx context.Context, m *tilemap.Map) error {
	if _, err := s.loader.Load(m); err != nil {
		return err
	}
	res, err := s.loader.Wait(ctx)
	if err != nil {
		if ctx.Err() != nil {
			s.loader.Cancel()
		}
		return fmt.Errorf("build room %s: %w", s.cfg.Name, err)
	}

	mgr := interact.New(res.Index, interact.Options{
		Cooldown: s.cfg.Cooldown,
		Debounce: s.cfg.Debounce,
		EmitLost: s.cfg.EmitLost,
		Logger:   s.log,
	})
	mgr.Subscribe(s.bus.Publish)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		mgr.Cleanup()
		return ErrClosed
	}
	old := s.manager
	s.manager = mgr
	s.collision = res.Collision
	last := s.lastPos
	s.mu.Unlock()

	if old != nil {
		old.Cleanup()
	}
	if last != nil {
		mgr.UpdateInteractions(*last)
		mgr.Flush()
	}
	s.log.Info("room ready",
		zap.String("map", s.cfg.MapPath),
		zap.Int("interactables", res.Index.Len()),
		zap.Int("blocked", res.Collision.BlockedCount()),
		zap.Duration("elapsed", res.Elapsed))
	return nil
}

func (s *Session) isClosed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}

func (s *Session) current() *interact.Manager {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil
	}
	return s.manager
}

// Move reports the agent's new tile position. Evaluation is debounced.
func (s *Session) Move(p geom.Point) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	pos := p
	s.lastPos = &pos
	mgr := s.manager
	s.mu.Unlock()
	mgr.UpdateInteractions(p)
}

// Flush evaluates a pending move immediately.
func (s *Session) Flush() {
	if mgr := s.current(); mgr != nil {
		mgr.Flush()
	}
}

// Trigger fires the interactable id. On success it runs the interaction
// hook and queues a log entry; ok is false when the trigger was refused.
func (s *Session) Trigger(id string) (scripting.Action, bool) {
	mgr := s.current()
	if mgr == nil || !mgr.TriggerInteraction(id) {
		return scripting.Action{}, false
	}
	o := mgr.Index().Get(id)
	if o == nil {
		return scripting.Action{}, false
	}

	var pos geom.Point
	if lp := mgr.Snapshot().LastPosition; lp != nil {
		pos = *lp
	}
	act := scripting.DefaultAction(o.Type)
	if s.deps.Hooks != nil {
		props, _ := o.Metadata["properties"].(map[string]any)
		act = s.deps.Hooks.OnInteract(scripting.InteractContext{
			ObjectID:   o.ID,
			Type:       o.Type,
			Name:       o.Name(),
			X:          pos.X,
			Y:          pos.Y,
			Properties: props,
		})
	}
	if s.buffer != nil {
		s.buffer.Add(persist.InteractionEntry{
			Room:        s.cfg.Name,
			ObjectID:    o.ID,
			ObjectType:  o.Type,
			Action:      act.Kind,
			X:           pos.X,
			Y:           pos.Y,
			TriggeredAt: s.now(),
		})
	}
	s.log.Info("interaction",
		zap.String("object", o.ID),
		zap.String("action", act.Kind),
		zap.String("target", act.Target))
	return act, true
}

// TriggerClosest fires the closest available interactable to the agent.
func (s *Session) TriggerClosest() (*world.Object, scripting.Action, bool) {
	mgr := s.current()
	if mgr == nil {
		return nil, scripting.Action{}, false
	}
	lp := mgr.Snapshot().LastPosition
	if lp == nil {
		return nil, scripting.Action{}, false
	}
	o := mgr.GetClosestInteraction(*lp)
	if o == nil {
		return nil, scripting.Action{}, false
	}
	act, ok := s.Trigger(o.ID)
	return o, act, ok
}

// Available returns the interactables in range.
func (s *Session) Available() []*world.Object {
	if mgr := s.current(); mgr != nil {
		return mgr.GetAvailableInteractions()
	}
	return nil
}

// Closest returns the available interactable nearest to p, or nil.
func (s *Session) Closest(p geom.Point) *world.Object {
	if mgr := s.current(); mgr != nil {
		return mgr.GetClosestInteraction(p)
	}
	return nil
}

// Snapshot returns the interaction state of the current engine.
func (s *Session) Snapshot() interact.Snapshot {
	if mgr := s.current(); mgr != nil {
		return mgr.Snapshot()
	}
	return interact.Snapshot{}
}

// Index returns the current interactables index, or nil once closed.
func (s *Session) Index() *world.Index {
	if mgr := s.current(); mgr != nil {
		return mgr.Index()
	}
	return nil
}

// IsValidPosition reports whether the agent may stand on p.
func (s *Session) IsValidPosition(p geom.Point) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed || s.collision == nil {
		return false
	}
	return s.collision.IsValidPosition(p)
}

// Subscribe registers fn for interaction events of this room, across reloads.
func (s *Session) Subscribe(fn func(interact.Event)) func() {
	if s.isClosed() {
		return func() {}
	}
	return s.bus.Subscribe(fn)
}

// FlushLog writes queued interaction entries. Entries of a failed write are
// kept for the next flush.
func (s *Session) FlushLog(ctx context.Context) (int, error) {
	if s.buffer == nil {
		return 0, nil
	}
	batch := s.buffer.Drain()
	if len(batch) == 0 {
		return 0, nil
	}
	if err := s.deps.Log.WriteBatch(ctx, batch); err != nil {
		s.buffer.Requeue(batch)
		return 0, fmt.Errorf("flush interaction log: %w", err)
	}
	s.log.Debug("interaction log flushed", zap.Int("entries", len(batch)))
	return len(batch), nil
}

// PendingLog returns the number of queued, unwritten entries.
func (s *Session) PendingLog() int {
	if s.buffer == nil {
		return 0
	}
	return s.buffer.Len()
}

// Close tears the room down. Safe to call more than once.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	mgr := s.manager
	s.manager = nil
	s.mu.Unlock()

	if mgr != nil {
		mgr.Cleanup()
	}
	s.loader.Close()
	s.bus.Clear()
	s.log.Info("room closed")
}

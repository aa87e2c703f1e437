package loader

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/officeverse/roomcore/internal/core/event"
	"github.com/officeverse/roomcore/internal/data"
	"github.com/officeverse/roomcore/internal/ingest"
	"github.com/officeverse/roomcore/internal/tilemap"
	"github.com/officeverse/roomcore/internal/world"
)

var (
	// ErrCancelled is returned by Wait when the request was superseded,
	// cancelled or the loader closed before it finished.
	ErrCancelled = errors.New("map load cancelled")
	// ErrClosed is returned by Load after Close.
	ErrClosed = errors.New("loader closed")
	// ErrIdle is returned by Wait when no load was ever started.
	ErrIdle = errors.New("no map load started")
	// ErrNilMap is returned by Load when given no map.
	ErrNilMap = errors.New("no map to load")
)

// Result is a reconstituted, ready-to-use map.
type Result struct {
	Index     *world.Index
	Collision *world.CollisionMap
	Elapsed   time.Duration
}

// State is the observable state of the current request.
type State struct {
	Generation uint64
	Loading    bool
	Stage      string
	Done       int
	Total      int
	Err        error
	Result     *Result
}

// Options configures a Loader.
type Options struct {
	ChunkSize int
	// DefaultRange is the fallback interaction range; nil means the built-in default.
	DefaultRange *int
	Table        *data.InteractableTable
	Logger       *zap.Logger
}

// Loader runs map ingestion on a background goroutine and rebuilds the
// index on the caller's side. Only the latest request counts: every Load
// bumps a generation, and messages tagged with an older generation, or
// arriving after Cancel/Close, are dropped.
type Loader struct {
	opts      Options
	log       *zap.Logger
	listeners *event.Bus[State]
	extract   extractFunc

	mu        sync.Mutex
	gen       uint64
	cancel    context.CancelFunc
	done      chan struct{}
	doneOpen  bool
	startedAt time.Time
	state     State
	closed    bool
}

func New(opts Options) *Loader {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = world.DefaultChunkSize
	}
	if opts.Table == nil {
		opts.Table = data.DefaultInteractableTable()
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Loader{
		opts:      opts,
		log:       log,
		listeners: event.NewBus[State](log),
		extract:   ingest.Extract,
	}
}

// Load starts ingesting m in the background and returns the request's
// generation. A request still in flight is cancelled and its worker told to stop.
func (l *Loader) Load(m *tilemap.Map) (uint64, error) {
	if m == nil {
		return 0, ErrNilMap
	}
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return 0, ErrClosed
	}
	l.abortLocked()

	l.gen++
	gen := l.gen
	ctx, cancel := context.WithCancel(context.Background())
	l.cancel = cancel
	l.done = make(chan struct{})
	l.doneOpen = true
	l.startedAt = time.Now()
	l.state = State{Generation: gen, Loading: true}
	st := l.state
	l.mu.Unlock()

	l.log.Debug("map load started", zap.Uint64("gen", gen), zap.Int("layers", len(m.Layers)))
	l.listeners.Publish(st)

	req := request{
		gen:   gen,
		m:     m,
		table: l.opts.Table,
		opts: ingest.Options{
			DefaultRange: l.opts.DefaultRange,
			Logger:       l.log,
		},
		extract: l.extract,
	}
	go runWorker(ctx, req, l.receive)
	return gen, nil
}

// abortLocked terminates the in-flight request, if any. Waiters of that
// request observe ErrCancelled.
func (l *Loader) abortLocked() {
	if l.cancel != nil {
		l.cancel()
		l.cancel = nil
	}
	if l.doneOpen {
		close(l.done)
		l.doneOpen = false
	}
}

// current reports whether a message of generation gen may still be applied.
func (l *Loader) currentLocked(gen uint64) bool {
	return !l.closed && gen == l.gen && l.state.Loading
}

func (l *Loader) receive(msg message) {
	l.mu.Lock()
	if !l.currentLocked(msg.gen) {
		l.mu.Unlock()
		l.log.Debug("dropping stale loader message", zap.Uint64("gen", msg.gen))
		return
	}
	l.mu.Unlock()

	var (
		res *Result
		err = msg.err
	)
	if msg.kind == msgResult {
		res, err = l.reconstitute(msg.payload)
	}

	l.mu.Lock()
	if !l.currentLocked(msg.gen) {
		l.mu.Unlock()
		l.log.Debug("dropping stale loader message", zap.Uint64("gen", msg.gen))
		return
	}
	switch {
	case msg.kind == msgProgress:
		l.state.Stage = msg.stage
		l.state.Done = msg.done
		l.state.Total = msg.total
	case err != nil:
		l.state.Loading = false
		l.state.Err = err
		l.finishLocked()
	default:
		res.Elapsed = time.Since(l.startedAt)
		l.state.Loading = false
		l.state.Result = res
		l.finishLocked()
	}
	st := l.state
	l.mu.Unlock()

	if !st.Loading {
		if st.Err != nil {
			l.log.Warn("map load failed", zap.Uint64("gen", st.Generation), zap.Error(st.Err))
		} else {
			l.log.Info("map loaded",
				zap.Uint64("gen", st.Generation),
				zap.Int("objects", st.Result.Index.Len()),
				zap.Duration("elapsed", st.Result.Elapsed))
		}
	}
	l.listeners.Publish(st)
}

func (l *Loader) finishLocked() {
	if l.cancel != nil {
		l.cancel()
		l.cancel = nil
	}
	if l.doneOpen {
		close(l.done)
		l.doneOpen = false
	}
}

func (l *Loader) reconstitute(b []byte) (*Result, error) {
	collision, objects, err := decodePayload(b)
	if err != nil {
		return nil, err
	}
	return &Result{
		Index:     world.BuildIndex(objects, l.opts.ChunkSize),
		Collision: collision,
	}, nil
}

// State returns the state of the latest request.
func (l *Loader) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// OnChange registers fn for every state change and returns its unsubscribe function.
func (l *Loader) OnChange(fn func(State)) func() {
	return l.listeners.Subscribe(fn)
}

// Wait blocks until the latest request finishes and returns its outcome.
func (l *Loader) Wait(ctx context.Context) (*Result, error) {
	l.mu.Lock()
	done, gen := l.done, l.gen
	l.mu.Unlock()
	if done == nil {
		return nil, ErrIdle
	}
	select {
	case <-done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed || l.gen != gen || l.state.Loading {
		return nil, ErrCancelled
	}
	return l.state.Result, l.state.Err
}

// Cancel abandons the in-flight request. Its worker is told to stop and
// anything it still posts is ignored.
func (l *Loader) Cancel() {
	l.mu.Lock()
	if !l.state.Loading {
		l.mu.Unlock()
		return
	}
	l.abortLocked()
	l.gen++
	l.state = State{Generation: l.gen}
	l.mu.Unlock()
}

// Close cancels any request and drops all listeners. Safe to call more than once.
func (l *Loader) Close() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.closed = true
	l.abortLocked()
	l.mu.Unlock()
	l.listeners.Clear()
}

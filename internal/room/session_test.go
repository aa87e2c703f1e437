package room

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/officeverse/roomcore/internal/data"
	"github.com/officeverse/roomcore/internal/geom"
	"github.com/officeverse/roomcore/internal/interact"
	"github.com/officeverse/roomcore/internal/persist"
	"github.com/officeverse/roomcore/internal/scripting"
	"github.com/officeverse/roomcore/internal/tilemap"
)

type fakeHooks struct {
	mu    sync.Mutex
	calls []scripting.InteractContext
}

func (h *fakeHooks) OnInteract(ctx scripting.InteractContext) scripting.Action {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls = append(h.calls, ctx)
	return scripting.Action{Kind: "open", Target: "panel:" + ctx.Type}
}

type fakeWriter struct {
	mu      sync.Mutex
	fail    bool
	written []persist.InteractionEntry
}

func (w *fakeWriter) WriteBatch(_ context.Context, entries []persist.InteractionEntry) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.fail {
		return errors.New("db down")
	}
	w.written = append(w.written, entries...)
	return nil
}

// writeOffice writes a 12x12 map with one computer tile at desk.
func writeOffice(t *testing.T, path string, desk geom.Point) {
	t.Helper()
	const w, h = 12, 12
	computers := make([]uint32, w*h)
	computers[desk.Y*w+desk.X] = 1
	m := tilemap.Map{
		Width: w, Height: h, TileWidth: 32, TileHeight: 32,
		Layers: []tilemap.Layer{
			{Type: tilemap.LayerTile, Name: "Floor", Data: make([]uint32, w*h)},
			{Type: tilemap.LayerTile, Name: "Computers", Data: computers},
		},
		Tilesets: []tilemap.Tileset{{FirstGID: 1, Image: "office.png"}},
	}
	b, err := json.Marshal(m)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, b, 0o644))
}

func testConfig(path string) Config {
	return Config{
		Name:      "office",
		MapPath:   path,
		ChunkSize: 8,
		Cooldown:  300 * time.Millisecond,
		Debounce:  20 * time.Millisecond,
		EmitLost:  true,
	}
}

func openOffice(t *testing.T, deps Deps) (*Session, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "office.json")
	writeOffice(t, path, geom.Point{X: 5, Y: 5})
	s, err := Open(context.Background(), testConfig(path), deps)
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s, path
}

func moveTo(s *Session, p geom.Point) {
	s.Move(p)
	s.Flush()
}

func TestSessionTriggerRunsHookAndQueuesLog(t *testing.T) {
	hooks := &fakeHooks{}
	writer := &fakeWriter{}
	s, _ := openOffice(t, Deps{Hooks: hooks, Log: writer})

	require.Equal(t, 1, s.Index().Len())
	id := s.Index().All()[0].ID

	_, ok := s.Trigger(id)
	assert.False(t, ok, "not in range yet")

	moveTo(s, geom.Point{X: 5, Y: 4})
	require.Len(t, s.Available(), 1)

	act, ok := s.Trigger(id)
	require.True(t, ok)
	assert.Equal(t, scripting.Action{Kind: "open", Target: "panel:computer"}, act)
	require.Len(t, hooks.calls, 1)
	assert.Equal(t, 5, hooks.calls[0].X)
	assert.Equal(t, 4, hooks.calls[0].Y)
	assert.Equal(t, 1, s.PendingLog())

	n, err := s.FlushLog(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	require.Len(t, writer.written, 1)
	assert.Equal(t, "office", writer.written[0].Room)
	assert.Equal(t, id, writer.written[0].ObjectID)
	assert.Equal(t, "open", writer.written[0].Action)
	assert.Equal(t, 0, s.PendingLog())
}

func TestSessionFlushLogRequeuesOnFailure(t *testing.T) {
	writer := &fakeWriter{fail: true}
	s, _ := openOffice(t, Deps{Log: writer})
	moveTo(s, geom.Point{X: 4, Y: 5})

	_, _, ok := s.TriggerClosest()
	require.True(t, ok)

	_, err := s.FlushLog(context.Background())
	assert.Error(t, err)
	assert.Equal(t, 1, s.PendingLog())

	writer.fail = false
	n, err := s.FlushLog(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestSessionWithoutHooksUsesDefaultAction(t *testing.T) {
	s, _ := openOffice(t, Deps{})
	moveTo(s, geom.Point{X: 6, Y: 5})
	o, act, ok := s.TriggerClosest()
	require.True(t, ok)
	assert.Equal(t, "computer", o.Type)
	assert.Equal(t, scripting.DefaultAction("computer"), act)
	n, err := s.FlushLog(context.Background())
	assert.NoError(t, err)
	assert.Zero(t, n)
}

func TestSessionReloadKeepsSubscribers(t *testing.T) {
	s, path := openOffice(t, Deps{})

	var (
		mu     sync.Mutex
		events []interact.Event
	)
	s.Subscribe(func(ev interact.Event) {
		mu.Lock()
		events = append(events, ev)
		mu.Unlock()
	})

	moveTo(s, geom.Point{X: 8, Y: 7})
	assert.Empty(t, s.Available())

	writeOffice(t, path, geom.Point{X: 8, Y: 8})
	require.NoError(t, s.Reload(context.Background()))

	// the new engine is evaluated at the last known position
	require.Len(t, s.Available(), 1)
	assert.Equal(t, []geom.Point{{X: 8, Y: 8}}, s.Available()[0].Points)
	mu.Lock()
	require.Len(t, events, 1)
	assert.Equal(t, interact.EventAvailable, events[0].Type)
	mu.Unlock()
}

func TestSessionReloadFailureKeepsRoom(t *testing.T) {
	s, path := openOffice(t, Deps{})
	before := s.Index()

	require.NoError(t, os.WriteFile(path, []byte(`{"width":`), 0o644))
	assert.Error(t, s.Reload(context.Background()))
	assert.Same(t, before, s.Index())
}

func TestSessionIsValidPosition(t *testing.T) {
	s, _ := openOffice(t, Deps{})
	assert.True(t, s.IsValidPosition(geom.Point{X: 3, Y: 3}))
	assert.False(t, s.IsValidPosition(geom.Point{X: 0, Y: 3}), "border is blocked")
	assert.False(t, s.IsValidPosition(geom.Point{X: 20, Y: 3}), "outside the map")
}

func TestSessionClose(t *testing.T) {
	s, _ := openOffice(t, Deps{})
	id := s.Index().All()[0].ID
	moveTo(s, geom.Point{X: 5, Y: 4})

	s.Close()
	s.Close()

	_, ok := s.Trigger(id)
	assert.False(t, ok)
	assert.Nil(t, s.Available())
	assert.Nil(t, s.Index())
	assert.False(t, s.IsValidPosition(geom.Point{X: 3, Y: 3}))
	assert.ErrorIs(t, s.Reload(context.Background()), ErrClosed)
	assert.NotPanics(t, func() { s.Move(geom.Point{X: 1, Y: 1}) })
}

func TestOpenMissingMap(t *testing.T) {
	_, err := Open(context.Background(), testConfig(filepath.Join(t.TempDir(), "nope.json")), Deps{})
	assert.Error(t, err)
}

func TestSessionZeroDefaultRange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "office.json")
	writeOffice(t, path, geom.Point{X: 5, Y: 5})
	cfg := testConfig(path)
	cfg.DefaultRange = 0
	table, err := data.ParseInteractableTable([]byte("types:\n  - type: computer\n    aliases: [computers]\n"))
	require.NoError(t, err)

	s, err := Open(context.Background(), cfg, Deps{Table: table})
	require.NoError(t, err)
	t.Cleanup(s.Close)

	require.Equal(t, 1, s.Index().Len())
	assert.Equal(t, 0, s.Index().All()[0].InteractionRange)
	moveTo(s, geom.Point{X: 5, Y: 4})
	assert.Empty(t, s.Available(), "adjacent is out of range 0")
	moveTo(s, geom.Point{X: 5, Y: 5})
	assert.Len(t, s.Available(), 1)
}

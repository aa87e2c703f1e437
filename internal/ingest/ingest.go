package ingest

import (
	"context"
	"errors"
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/officeverse/roomcore/internal/data"
	"github.com/officeverse/roomcore/internal/geom"
	"github.com/officeverse/roomcore/internal/tilemap"
	"github.com/officeverse/roomcore/internal/world"
)

// ErrMalformedLayer is returned for a tile layer whose data does not cover the map.
var ErrMalformedLayer = errors.New("malformed layer")

// Progress stages reported through Options.Progress.
const (
	StageLayers = "layers"
	StageBorder = "border"
)

// Options tunes extraction.
type Options struct {
	// DefaultRange applies when neither the map nor the type table gives a
	// range. Nil means world.DefaultInteractionRange; 0 is a valid range.
	DefaultRange *int
	// Progress, if set, is called after each layer and after the border pass.
	Progress func(stage string, done, total int)
	Logger   *zap.Logger
}

// Result is the output of one ingestion pass.
type Result struct {
	Collision *world.CollisionMap
	Objects   []*world.Object
}

type extractor struct {
	m     *tilemap.Map
	table *data.InteractableTable
	opts  Options
	log   *zap.Logger
	res   *Result
	ids   map[string]int
	gids  map[uint32]bool // resolved gid → tile carries a collision property

	defaultRange int
}

// Extract derives the collision grid and the interactable objects of m.
// The same input always yields the same grid, the same objects and the same
// ids, in the same order. A gid that no tileset owns aborts extraction.
func Extract(ctx context.Context, m *tilemap.Map, table *data.InteractableTable, opts Options) (*Result, error) {
	if m == nil {
		return nil, errors.New("ingest: nil map")
	}
	if table == nil {
		table = data.DefaultInteractableTable()
	}
	defaultRange := world.DefaultInteractionRange
	if opts.DefaultRange != nil && *opts.DefaultRange >= 0 {
		defaultRange = *opts.DefaultRange
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	e := &extractor{
		m:     m,
		table: table,
		opts:  opts,
		log:   log,
		res:   &Result{Collision: world.NewCollisionMap(m.Width, m.Height)},
		ids:   make(map[string]int),
		gids:  make(map[uint32]bool),

		defaultRange: defaultRange,
	}

	total := len(m.Layers)
	for i := range m.Layers {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		layer := &m.Layers[i]
		switch layer.Type {
		case tilemap.LayerTile:
			if err := e.tileLayer(layer); err != nil {
				return nil, err
			}
		case tilemap.LayerObject:
			if err := e.objectLayer(layer); err != nil {
				return nil, err
			}
		default:
			log.Debug("skipping layer", zap.String("layer", layer.Name), zap.String("type", layer.Type))
		}
		e.progress(StageLayers, i+1, total)
	}

	blockBorder(e.res.Collision)
	e.progress(StageBorder, 1, 1)

	log.Debug("map ingested",
		zap.Int("objects", len(e.res.Objects)),
		zap.Int("blocked", e.res.Collision.BlockedCount()))
	return e.res, nil
}

func (e *extractor) progress(stage string, done, total int) {
	if e.opts.Progress != nil {
		e.opts.Progress(stage, done, total)
	}
}

func (e *extractor) collidable(name string, props tilemap.Properties) bool {
	return e.table.IsCollisionName(name) || props.AnyTrue(e.table.CollisionProperties()...)
}

func (e *extractor) tileLayer(layer *tilemap.Layer) error {
	w, h := e.m.Width, e.m.Height
	if len(layer.Data) != w*h {
		return fmt.Errorf("%w: layer %q has %d tiles, want %d", ErrMalformedLayer, layer.Name, len(layer.Data), w*h)
	}
	collidable := e.collidable(layer.Name, layer.Properties)
	for i, gid := range layer.Data {
		gid = tilemap.SanitizeGID(gid)
		if gid == 0 {
			continue
		}
		solid, err := e.tileCollides(gid)
		if err != nil {
			return fmt.Errorf("layer %q tile %d: %w", layer.Name, i, err)
		}
		if collidable || solid {
			e.res.Collision.SetBlocked(i%w, i/w)
		}
	}

	if it := e.table.Lookup(layer.Name); it != nil {
		e.groupTiles(layer, it)
	}
	return nil
}

func (e *extractor) tileCollides(gid uint32) (bool, error) {
	if v, ok := e.gids[gid]; ok {
		return v, nil
	}
	props, err := e.m.TileProperties(gid)
	if err != nil {
		return false, err
	}
	v := props.AnyTrue(e.table.CollisionProperties()...)
	e.gids[gid] = v
	return v, nil
}

func (e *extractor) objectLayer(layer *tilemap.Layer) error {
	collidable := e.collidable(layer.Name, layer.Properties)
	layerType := e.table.Lookup(layer.Name)
	for i := range layer.Objects {
		obj := &layer.Objects[i]
		if obj.GID != 0 {
			if _, err := e.m.FindTileset(obj.GID); err != nil {
				return fmt.Errorf("layer %q object %d: %w", layer.Name, obj.ID, err)
			}
		}
		r, ok := objectRect(obj, e.m)
		if !ok {
			e.log.Warn("object outside map", zap.String("layer", layer.Name), zap.Int("object", obj.ID))
			continue
		}
		if collidable || obj.Properties.AnyTrue(e.table.CollisionProperties()...) {
			r.Tiles(func(p geom.Point) { e.res.Collision.SetBlocked(p.X, p.Y) })
		}

		it := layerType
		if it == nil {
			it = e.table.Lookup(obj.Type)
		}
		if it == nil {
			it = e.table.Lookup(obj.Class)
		}
		if it == nil {
			continue
		}
		e.placeObject(layer, obj, r, it)
	}
	return nil
}

// objectRect converts an object's pixel bounds to the tile rectangle it
// occupies. Objects are anchored bottom-left as the map editor stores them.
// The rectangle is clamped to the map; ok is false if nothing remains.
func objectRect(obj *tilemap.Object, m *tilemap.Map) (geom.Rect, bool) {
	tw, th := float64(m.TileWidth), float64(m.TileHeight)
	left := floorDiv(obj.X, tw)
	top := floorDiv(obj.Y-obj.Height, th)
	right := floorDiv(obj.X+obj.Width-1, tw)
	bottom := floorDiv(obj.Y-1, th)
	if right < left {
		right = left
	}
	if bottom < top {
		bottom = top
	}
	left, top = max(left, 0), max(top, 0)
	right, bottom = min(right, m.Width-1), min(bottom, m.Height-1)
	if right < left || bottom < top {
		return geom.Rect{}, false
	}
	return geom.Rect{X: left, Y: top, Width: right - left + 1, Height: bottom - top + 1}, true
}

func floorDiv(v, size float64) int {
	return int(math.Floor(v / size))
}

func (e *extractor) rangeFor(props tilemap.Properties, it *data.InteractableType) int {
	if r, ok := props.Int("interactionRange"); ok && r >= 0 {
		return r
	}
	if r, ok := it.DefaultRange(); ok {
		return r
	}
	return e.defaultRange
}

func (e *extractor) placeObject(layer *tilemap.Layer, obj *tilemap.Object, r geom.Rect, it *data.InteractableType) {
	id := fmt.Sprintf("%s_%d_%d", it.Type, r.X, r.Y)
	if obj.ID != 0 {
		id = fmt.Sprintf("%s_%d", id, obj.ID)
	}
	var points []geom.Point
	r.Tiles(func(p geom.Point) { points = append(points, p) })

	name := obj.Name
	if name == "" {
		name = layer.Name
	}
	meta := map[string]any{
		"name":       name,
		"layer":      layer.Name,
		"source":     "object",
		"properties": copyProps(obj.Properties),
	}
	if obj.ID != 0 {
		meta["editor_id"] = obj.ID
	}
	e.add(world.NewObject(e.uniqueID(id), it.Type, points, e.rangeFor(obj.Properties, it), meta))
}

// uniqueID appends a counter to ids already handed out in this pass.
func (e *extractor) uniqueID(id string) string {
	n := e.ids[id]
	e.ids[id] = n + 1
	if n == 0 {
		return id
	}
	return fmt.Sprintf("%s_%d", id, n+1)
}

func (e *extractor) add(o *world.Object) {
	e.res.Objects = append(e.res.Objects, o)
}

func copyProps(p tilemap.Properties) map[string]any {
	out := make(map[string]any, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// blockBorder marks the outermost ring so agents cannot leave the map.
func blockBorder(c *world.CollisionMap) {
	for x := 0; x < c.Width; x++ {
		c.SetBlocked(x, 0)
		c.SetBlocked(x, c.Height-1)
	}
	for y := 0; y < c.Height; y++ {
		c.SetBlocked(0, y)
		c.SetBlocked(c.Width-1, y)
	}
}

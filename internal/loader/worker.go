package loader

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/officeverse/roomcore/internal/data"
	"github.com/officeverse/roomcore/internal/geom"
	"github.com/officeverse/roomcore/internal/ingest"
	"github.com/officeverse/roomcore/internal/tilemap"
	"github.com/officeverse/roomcore/internal/world"
)

type messageKind int

const (
	msgProgress messageKind = iota
	msgResult
	msgError
)

// message is what the worker posts back. Results travel as an encoded
// payload, never as shared pointers into the worker's memory.
type message struct {
	gen     uint64
	kind    messageKind
	stage   string
	done    int
	total   int
	payload []byte
	err     error
}

// payload is the flat, transport-safe form of an ingestion result: tile
// sets become key arrays and the collision grid a plain bool slice.
type payload struct {
	Collision world.CollisionMap `json:"collision"`
	Objects   []objectWire       `json:"objects"`
}

// editorIDKey is the metadata key of a placed object's editor id. It
// travels as a typed field: inside Metadata JSON would hand it back as a
// float64.
const editorIDKey = "editor_id"

type objectWire struct {
	ID       string         `json:"id"`
	Type     string         `json:"type"`
	Tiles    []string       `json:"tiles"`
	Bounds   geom.Rect      `json:"bounds"`
	Range    int            `json:"interactionRange"`
	EditorID *int           `json:"editorId,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

type extractFunc func(ctx context.Context, m *tilemap.Map, table *data.InteractableTable, opts ingest.Options) (*ingest.Result, error)

type request struct {
	gen     uint64
	m       *tilemap.Map
	table   *data.InteractableTable
	opts    ingest.Options
	extract extractFunc
}

// runWorker is the background side of a load: it ingests the map and posts
// zero or more progress messages followed by exactly one result or error.
func runWorker(ctx context.Context, req request, post func(message)) {
	defer func() {
		if r := recover(); r != nil {
			post(message{gen: req.gen, kind: msgError, err: fmt.Errorf("ingest panic: %v", r)})
		}
	}()

	opts := req.opts
	opts.Progress = func(stage string, done, total int) {
		if ctx.Err() != nil {
			return
		}
		post(message{gen: req.gen, kind: msgProgress, stage: stage, done: done, total: total})
	}

	res, err := req.extract(ctx, req.m, req.table, opts)
	if err != nil {
		post(message{gen: req.gen, kind: msgError, err: err})
		return
	}
	b, err := encodePayload(res)
	if err != nil {
		post(message{gen: req.gen, kind: msgError, err: err})
		return
	}
	post(message{gen: req.gen, kind: msgResult, payload: b})
}

func encodePayload(res *ingest.Result) ([]byte, error) {
	p := payload{
		Collision: *res.Collision,
		Objects:   make([]objectWire, 0, len(res.Objects)),
	}
	for _, o := range res.Objects {
		keys := make([]string, len(o.Points))
		for i, pt := range o.Points {
			keys[i] = geom.TileKey(pt.X, pt.Y)
		}
		ow := objectWire{
			ID:       o.ID,
			Type:     o.Type,
			Tiles:    keys,
			Bounds:   o.Bounds,
			Range:    o.InteractionRange,
			Metadata: o.Metadata,
		}
		if id, ok := o.Metadata[editorIDKey].(int); ok {
			ow.EditorID = &id
			ow.Metadata = make(map[string]any, len(o.Metadata)-1)
			for k, v := range o.Metadata {
				if k != editorIDKey {
					ow.Metadata[k] = v
				}
			}
		}
		p.Objects = append(p.Objects, ow)
	}
	b, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	return b, nil
}

// decodePayload rebuilds native objects and the collision grid.
func decodePayload(b []byte) (*world.CollisionMap, []*world.Object, error) {
	var p payload
	if err := json.Unmarshal(b, &p); err != nil {
		return nil, nil, fmt.Errorf("decode payload: %w", err)
	}
	if len(p.Collision.Tiles) != p.Collision.Width*p.Collision.Height {
		return nil, nil, fmt.Errorf("decode payload: collision grid has %d tiles, want %d",
			len(p.Collision.Tiles), p.Collision.Width*p.Collision.Height)
	}
	objects := make([]*world.Object, 0, len(p.Objects))
	for _, w := range p.Objects {
		points := make([]geom.Point, 0, len(w.Tiles))
		for _, k := range w.Tiles {
			pt, err := geom.ParseTileKey(k)
			if err != nil {
				return nil, nil, fmt.Errorf("decode payload: object %s: %w", w.ID, err)
			}
			points = append(points, pt)
		}
		if w.EditorID != nil {
			if w.Metadata == nil {
				w.Metadata = map[string]any{}
			}
			w.Metadata[editorIDKey] = *w.EditorID
		}
		objects = append(objects, world.NewObject(w.ID, w.Type, points, w.Range, w.Metadata))
	}
	return &p.Collision, objects, nil
}

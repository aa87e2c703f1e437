package world

import (
	"sort"

	"github.com/officeverse/roomcore/internal/geom"
)

// DefaultInteractionRange applies when map data gives no range.
const DefaultInteractionRange = 1

// Interactable types known to the built-in table. The set is open: any
// type string from the type table is valid.
const (
	TypeComputer       = "computer"
	TypeVendingMachine = "vendingmachine"
	TypeWhiteboard     = "whiteboard"
	TypeDoor           = "door"
)

// Object is one logical interactive feature of the map. Immutable once built.
type Object struct {
	ID               string
	Type             string
	Tiles            map[string]struct{} // tile keys "x,y"
	Points           []geom.Point        // same tiles, sorted row-major
	Bounds           geom.Rect
	Metadata         map[string]any
	InteractionRange int
}

// NewObject builds an object from its occupied tiles. Duplicate points are
// collapsed. A negative range is treated as the default.
func NewObject(id, typ string, points []geom.Point, interactionRange int, meta map[string]any) *Object {
	if interactionRange < 0 {
		interactionRange = DefaultInteractionRange
	}
	tiles := make(map[string]struct{}, len(points))
	uniq := make([]geom.Point, 0, len(points))
	for _, p := range points {
		k := geom.TileKey(p.X, p.Y)
		if _, dup := tiles[k]; dup {
			continue
		}
		tiles[k] = struct{}{}
		uniq = append(uniq, p)
	}
	sortPoints(uniq)
	if meta == nil {
		meta = map[string]any{}
	}
	return &Object{
		ID:               id,
		Type:             typ,
		Tiles:            tiles,
		Points:           uniq,
		Bounds:           geom.BoundsOf(uniq),
		Metadata:         meta,
		InteractionRange: interactionRange,
	}
}

// Occupies reports whether the object covers tile p.
func (o *Object) Occupies(p geom.Point) bool {
	_, ok := o.Tiles[geom.TileKey(p.X, p.Y)]
	return ok
}

// Name returns the "name" metadata entry, if any.
func (o *Object) Name() string {
	s, _ := o.Metadata["name"].(string)
	return s
}

// Distance is the minimum Manhattan distance from p to any occupied tile.
// Returns -1 for an object with no tiles.
func Distance(o *Object, p geom.Point) int {
	best := -1
	for _, t := range o.Points {
		d := geom.Manhattan(t, p)
		if best < 0 || d < best {
			best = d
			if d == 0 {
				break
			}
		}
	}
	return best
}

// InRange reports whether p is within the object's interaction range.
func InRange(o *Object, p geom.Point) bool {
	d := Distance(o, p)
	return d >= 0 && d <= o.InteractionRange
}

func sortPoints(ps []geom.Point) {
	sort.Slice(ps, func(i, j int) bool {
		if ps[i].Y != ps[j].Y {
			return ps[i].Y < ps[j].Y
		}
		return ps[i].X < ps[j].X
	})
}

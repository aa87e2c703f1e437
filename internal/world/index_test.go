package world

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/officeverse/roomcore/internal/geom"
)

func rectPoints(r geom.Rect) []geom.Point {
	var ps []geom.Point
	r.Tiles(func(p geom.Point) { ps = append(ps, p) })
	return ps
}

func TestNewObjectBounds(t *testing.T) {
	// L-shaped object
	o := NewObject("desk", TypeComputer, []geom.Point{{X: 3, Y: 3}, {X: 3, Y: 4}, {X: 4, Y: 4}, {X: 3, Y: 3}}, 1, nil)
	assert.Len(t, o.Tiles, 3)
	assert.Equal(t, geom.Rect{X: 3, Y: 3, Width: 2, Height: 2}, o.Bounds)
	assert.True(t, o.Occupies(geom.Point{X: 4, Y: 4}))
	assert.False(t, o.Occupies(geom.Point{X: 4, Y: 3}))
	assert.NotNil(t, o.Metadata)
}

func TestDistanceUsesOccupiedTiles(t *testing.T) {
	o := NewObject("l", TypeWhiteboard, []geom.Point{{X: 0, Y: 0}, {X: 0, Y: 1}, {X: 0, Y: 2}, {X: 1, Y: 2}, {X: 2, Y: 2}}, 1, nil)
	// (2,0) is inside the bounding box but 2 away from the nearest tile.
	assert.Equal(t, 2, Distance(o, geom.Point{X: 2, Y: 0}))
	assert.False(t, InRange(o, geom.Point{X: 2, Y: 0}))
	assert.Equal(t, 1, Distance(o, geom.Point{X: 2, Y: 1}))
	assert.Equal(t, 0, Distance(o, geom.Point{X: 1, Y: 2}))
}

func TestDistanceMonotonic(t *testing.T) {
	o := NewObject("box", TypeComputer, rectPoints(geom.Rect{X: 5, Y: 5, Width: 2, Height: 3}), 1, nil)
	// Walking straight away from the object never brings the agent closer.
	prev := Distance(o, geom.Point{X: 7, Y: 6})
	for x := 8; x < 20; x++ {
		d := Distance(o, geom.Point{X: x, Y: 6})
		assert.GreaterOrEqual(t, d, prev)
		prev = d
	}
}

func TestBuildIndexCompleteness(t *testing.T) {
	objs := []*Object{
		NewObject("a", TypeComputer, []geom.Point{{X: 1, Y: 1}}, 1, nil),
		// Spans chunks (0,0),(1,0),(0,1),(1,1) with chunk size 8.
		NewObject("b", TypeWhiteboard, rectPoints(geom.Rect{X: 6, Y: 6, Width: 4, Height: 4}), 1, nil),
		// L-shape: bounding box covers chunk (3,2) though no tile is there.
		NewObject("c", TypeDoor, []geom.Point{{X: 23, Y: 23}, {X: 23, Y: 24}, {X: 23, Y: 25}, {X: 24, Y: 25}, {X: 25, Y: 25}}, 1, nil),
	}
	idx := BuildIndex(objs, 8)
	require.Equal(t, 3, idx.Len())

	for _, o := range objs {
		for _, p := range o.Points {
			assert.Contains(t, idx.TileIDs(p), o.ID)
		}
		x0, y0 := geom.ChunkCoord(o.Bounds.X, 8), geom.ChunkCoord(o.Bounds.Y, 8)
		x1 := geom.ChunkCoord(o.Bounds.X+o.Bounds.Width-1, 8)
		y1 := geom.ChunkCoord(o.Bounds.Y+o.Bounds.Height-1, 8)
		for cy := y0; cy <= y1; cy++ {
			for cx := x0; cx <= x1; cx++ {
				assert.Contains(t, idx.ChunkIDs(cx, cy), o.ID, "object %s chunk %d,%d", o.ID, cx, cy)
			}
		}
	}
	assert.Equal(t, []string{"b"}, idx.ChunkIDs(1, 1))
	assert.Equal(t, []string{"c"}, idx.ChunkIDs(3, 2))
	assert.Empty(t, idx.TileIDs(geom.Point{X: 25, Y: 23}))
	assert.Contains(t, idx.ChunkKeys(), "3,2")
}

func TestBuildIndexDuplicateID(t *testing.T) {
	idx := BuildIndex([]*Object{
		NewObject("x", TypeComputer, []geom.Point{{X: 0, Y: 0}}, 1, nil),
		NewObject("x", TypeComputer, []geom.Point{{X: 20, Y: 20}}, 1, nil),
	}, 8)
	assert.Equal(t, 1, idx.Len())
	assert.Empty(t, idx.TileIDs(geom.Point{X: 0, Y: 0}))
	assert.Empty(t, idx.ChunkIDs(0, 0))
	assert.Equal(t, []string{"x"}, idx.TileIDs(geom.Point{X: 20, Y: 20}))
}

func TestNearby(t *testing.T) {
	idx := BuildIndex([]*Object{
		NewObject("near", TypeComputer, []geom.Point{{X: 9, Y: 9}}, 1, nil),
		NewObject("far", TypeComputer, []geom.Point{{X: 40, Y: 40}}, 1, nil),
	}, 8)
	got := idx.Nearby(geom.Point{X: 2, Y: 2})
	require.Len(t, got, 1)
	assert.Equal(t, "near", got[0].ID)
	assert.Empty(t, idx.Nearby(geom.Point{X: 25, Y: 2}))
}

func TestNearbyWidensForLongRange(t *testing.T) {
	idx := BuildIndex([]*Object{
		NewObject("beacon", TypeDoor, []geom.Point{{X: 0, Y: 0}}, 20, nil),
	}, 8)
	// Three chunks away, still within range 20.
	got := idx.Nearby(geom.Point{X: 19, Y: 0})
	require.Len(t, got, 1)
	assert.True(t, InRange(got[0], geom.Point{X: 19, Y: 0}))
}

func TestCollisionMap(t *testing.T) {
	c := NewCollisionMap(3, 2)
	c.SetBlocked(1, 1)
	c.SetBlocked(5, 5)
	assert.True(t, c.Blocked(1, 1))
	assert.False(t, c.Blocked(0, 0))
	assert.True(t, c.Blocked(-1, 0))
	assert.True(t, c.Blocked(3, 0))
	assert.False(t, c.IsValidPosition(geom.Point{X: 1, Y: 1}))
	assert.True(t, c.IsValidPosition(geom.Point{X: 2, Y: 0}))
	assert.Equal(t, 1, c.BlockedCount())
}

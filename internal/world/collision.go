package world

import "github.com/officeverse/roomcore/internal/geom"

// CollisionMap is the blocked-tile grid of a map. Tiles is row-major,
// tiles[y*Width+x], true meaning blocked. Read-only after ingestion, so
// movement validation may read it from any goroutine.
type CollisionMap struct {
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Tiles  []bool `json:"tiles"`
}

// NewCollisionMap returns an all-open grid.
func NewCollisionMap(width, height int) *CollisionMap {
	return &CollisionMap{
		Width:  width,
		Height: height,
		Tiles:  make([]bool, width*height),
	}
}

// InBounds reports whether (x, y) lies on the map.
func (c *CollisionMap) InBounds(x, y int) bool {
	return x >= 0 && x < c.Width && y >= 0 && y < c.Height
}

// Blocked reports whether (x, y) is blocked. Out of bounds is blocked.
func (c *CollisionMap) Blocked(x, y int) bool {
	if !c.InBounds(x, y) {
		return true
	}
	return c.Tiles[y*c.Width+x]
}

// SetBlocked marks (x, y) blocked. Ignored out of bounds. Only ingestion calls this.
func (c *CollisionMap) SetBlocked(x, y int) {
	if c.InBounds(x, y) {
		c.Tiles[y*c.Width+x] = true
	}
}

// IsValidPosition reports whether an agent may stand on p.
func (c *CollisionMap) IsValidPosition(p geom.Point) bool {
	return !c.Blocked(p.X, p.Y)
}

// BlockedCount returns the number of blocked tiles.
func (c *CollisionMap) BlockedCount() int {
	n := 0
	for _, b := range c.Tiles {
		if b {
			n++
		}
	}
	return n
}

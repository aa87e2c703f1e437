package geom

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Point is a tile coordinate.
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

func (p Point) String() string { return TileKey(p.X, p.Y) }

// Rect is an axis-aligned rectangle in tile units.
type Rect struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Contains reports whether p lies inside r. Right and bottom edges are exclusive.
func (r Rect) Contains(p Point) bool {
	return p.X >= r.X && p.X < r.X+r.Width &&
		p.Y >= r.Y && p.Y < r.Y+r.Height
}

// Tiles calls fn for every tile covered by r in row-major order.
func (r Rect) Tiles(fn func(Point)) {
	for y := r.Y; y < r.Y+r.Height; y++ {
		for x := r.X; x < r.X+r.Width; x++ {
			fn(Point{X: x, Y: y})
		}
	}
}

// BoundsOf returns the minimal rectangle containing every point.
// An empty slice yields the zero Rect.
func BoundsOf(points []Point) Rect {
	if len(points) == 0 {
		return Rect{}
	}
	minX, minY := points[0].X, points[0].Y
	maxX, maxY := minX, minY
	for _, p := range points[1:] {
		minX = min(minX, p.X)
		minY = min(minY, p.Y)
		maxX = max(maxX, p.X)
		maxY = max(maxY, p.Y)
	}
	return Rect{X: minX, Y: minY, Width: maxX - minX + 1, Height: maxY - minY + 1}
}

// TileToPixel converts a tile coordinate to the pixel coordinate of its top-left corner.
func TileToPixel(t, tileSize int) int {
	return t * tileSize
}

// PixelToTile converts a pixel coordinate to the tile containing it.
func PixelToTile(px float64, tileSize int) int {
	return int(math.Floor(px / float64(tileSize)))
}

// ChunkCoord floor-divides v by chunkSize; negative coordinates round toward -inf.
func ChunkCoord(v, chunkSize int) int {
	if v < 0 {
		return (v - chunkSize + 1) / chunkSize
	}
	return v / chunkSize
}

// ChunkOf returns the chunk coordinate containing p.
func ChunkOf(p Point, chunkSize int) Point {
	return Point{X: ChunkCoord(p.X, chunkSize), Y: ChunkCoord(p.Y, chunkSize)}
}

// TileKey encodes a tile coordinate as "x,y".
func TileKey(x, y int) string {
	return strconv.Itoa(x) + "," + strconv.Itoa(y)
}

// ChunkKey encodes a chunk coordinate. Same encoding as TileKey, different role.
func ChunkKey(cx, cy int) string {
	return TileKey(cx, cy)
}

// ParseTileKey decodes a key produced by TileKey.
func ParseTileKey(key string) (Point, error) {
	xs, ys, ok := strings.Cut(key, ",")
	if !ok {
		return Point{}, fmt.Errorf("tile key %q: missing separator", key)
	}
	x, err := strconv.Atoi(xs)
	if err != nil {
		return Point{}, fmt.Errorf("tile key %q: %w", key, err)
	}
	y, err := strconv.Atoi(ys)
	if err != nil {
		return Point{}, fmt.Errorf("tile key %q: %w", key, err)
	}
	return Point{X: x, Y: y}, nil
}

// Manhattan returns |a.x-b.x| + |a.y-b.y|.
func Manhattan(a, b Point) int {
	return abs(a.X-b.X) + abs(a.Y-b.Y)
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

package ingest

import (
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/crypto/blake2b"

	"github.com/officeverse/roomcore/internal/data"
	"github.com/officeverse/roomcore/internal/geom"
	"github.com/officeverse/roomcore/internal/tilemap"
	"github.com/officeverse/roomcore/internal/world"
)

// groupTiles emits one object per 4-connected component of non-empty tiles.
// Seeds are visited row-major so output order is stable.
func (e *extractor) groupTiles(layer *tilemap.Layer, it *data.InteractableType) {
	w, h := e.m.Width, e.m.Height
	visited := make([]bool, w*h)
	interactionRange := e.rangeFor(layer.Properties, it)

	for i, gid := range layer.Data {
		if visited[i] || tilemap.SanitizeGID(gid) == 0 {
			continue
		}
		points := floodFill(layer.Data, w, h, i, visited)
		bounds := geom.BoundsOf(points)
		id := fmt.Sprintf("%s_%d_%d_%s", it.Type, bounds.X, bounds.Y, tileSetHash(points))
		meta := map[string]any{
			"name":       layer.Name,
			"layer":      layer.Name,
			"source":     "tiles",
			"properties": copyProps(layer.Properties),
		}
		e.add(world.NewObject(e.uniqueID(id), it.Type, points, interactionRange, meta))
	}
}

// floodFill collects the component containing start with a BFS over the
// four orthogonal neighbours, stopping at empty tiles and the map edge.
func floodFill(gids []uint32, w, h, start int, visited []bool) []geom.Point {
	queue := []int{start}
	visited[start] = true
	var points []geom.Point
	for len(queue) > 0 {
		i := queue[0]
		queue = queue[1:]
		x, y := i%w, i/w
		points = append(points, geom.Point{X: x, Y: y})

		for _, d := range [4][2]int{{1, 0}, {-1, 0}, {0, 1}, {0, -1}} {
			nx, ny := x+d[0], y+d[1]
			if nx < 0 || nx >= w || ny < 0 || ny >= h {
				continue
			}
			n := ny*w + nx
			if visited[n] || tilemap.SanitizeGID(gids[n]) == 0 {
				continue
			}
			visited[n] = true
			queue = append(queue, n)
		}
	}
	return points
}

// tileSetHash is a short content hash of a tile set, independent of the
// order the tiles were collected in.
func tileSetHash(points []geom.Point) string {
	keys := make([]string, len(points))
	for i, p := range points {
		keys[i] = geom.TileKey(p.X, p.Y)
	}
	sort.Strings(keys)
	sum := blake2b.Sum256([]byte(strings.Join(keys, ";")))
	return hex.EncodeToString(sum[:4])
}

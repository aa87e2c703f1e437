package world

import (
	"sort"

	"github.com/officeverse/roomcore/internal/geom"
)

// DefaultChunkSize is the interaction grid granularity in tiles. It is
// unrelated to any render-cache chunk size.
const DefaultChunkSize = 8

type chunkKey struct {
	cx, cy int
}

// Index is the interactables map: objects by id plus a uniform chunk grid
// and a tile lookup. The grid and tile maps hold ids only; objects is the
// single owner. Built once, never mutated afterwards, so concurrent readers
// need no locks.
type Index struct {
	objects       map[string]*Object
	spatialGrid   map[chunkKey]map[string]struct{} // chunk → set of object ids
	tileToObjects map[geom.Point]map[string]struct{}
	chunkSize     int
	reach         int // chunk radius of Nearby; 1 unless a range exceeds chunkSize
}

// BuildIndex registers every object. An object is added to every chunk its
// bounding rectangle overlaps, not only the chunks of its exact tiles; the
// distance check at query time filters the extra candidates.
// If two objects share an id the later one replaces the earlier.
func BuildIndex(objects []*Object, chunkSize int) *Index {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	idx := &Index{
		objects:       make(map[string]*Object, len(objects)),
		spatialGrid:   make(map[chunkKey]map[string]struct{}),
		tileToObjects: make(map[geom.Point]map[string]struct{}),
		chunkSize:     chunkSize,
		reach:         1,
	}
	for _, o := range objects {
		if o == nil || len(o.Points) == 0 {
			continue
		}
		if prev, ok := idx.objects[o.ID]; ok {
			idx.unregister(prev)
		}
		idx.register(o)
	}
	for _, o := range idx.objects {
		if r := (o.InteractionRange + chunkSize - 1) / chunkSize; r > idx.reach {
			idx.reach = r
		}
	}
	return idx
}

func (idx *Index) register(o *Object) {
	idx.objects[o.ID] = o
	for _, p := range o.Points {
		set := idx.tileToObjects[p]
		if set == nil {
			set = make(map[string]struct{})
			idx.tileToObjects[p] = set
		}
		set[o.ID] = struct{}{}
	}
	for _, k := range idx.chunksOf(o.Bounds) {
		set := idx.spatialGrid[k]
		if set == nil {
			set = make(map[string]struct{})
			idx.spatialGrid[k] = set
		}
		set[o.ID] = struct{}{}
	}
}

func (idx *Index) unregister(o *Object) {
	delete(idx.objects, o.ID)
	for _, p := range o.Points {
		removeID(idx.tileToObjects, p, o.ID)
	}
	for _, k := range idx.chunksOf(o.Bounds) {
		removeID(idx.spatialGrid, k, o.ID)
	}
}

func removeID[K comparable](m map[K]map[string]struct{}, k K, id string) {
	set := m[k]
	if set == nil {
		return
	}
	delete(set, id)
	if len(set) == 0 {
		delete(m, k)
	}
}

// chunksOf returns every chunk overlapped by r, deduplicated.
func (idx *Index) chunksOf(r geom.Rect) []chunkKey {
	if r.Width <= 0 || r.Height <= 0 {
		return nil
	}
	x0 := geom.ChunkCoord(r.X, idx.chunkSize)
	y0 := geom.ChunkCoord(r.Y, idx.chunkSize)
	x1 := geom.ChunkCoord(r.X+r.Width-1, idx.chunkSize)
	y1 := geom.ChunkCoord(r.Y+r.Height-1, idx.chunkSize)
	keys := make([]chunkKey, 0, (x1-x0+1)*(y1-y0+1))
	for cy := y0; cy <= y1; cy++ {
		for cx := x0; cx <= x1; cx++ {
			keys = append(keys, chunkKey{cx: cx, cy: cy})
		}
	}
	return keys
}

// ChunkSize returns the grid granularity.
func (idx *Index) ChunkSize() int { return idx.chunkSize }

// Len returns the number of objects.
func (idx *Index) Len() int { return len(idx.objects) }

// Get returns the object with the given id, or nil.
func (idx *Index) Get(id string) *Object {
	return idx.objects[id]
}

// All returns every object ordered by id.
func (idx *Index) All() []*Object {
	out := make([]*Object, 0, len(idx.objects))
	for _, o := range idx.objects {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ChunkIDs returns the ids registered in chunk (cx, cy), sorted.
func (idx *Index) ChunkIDs(cx, cy int) []string {
	return sortedIDs(idx.spatialGrid[chunkKey{cx: cx, cy: cy}])
}

// TileIDs returns the ids of objects occupying tile p, sorted.
func (idx *Index) TileIDs(p geom.Point) []string {
	return sortedIDs(idx.tileToObjects[p])
}

// ChunkKeys returns the encoded keys of every non-empty chunk, sorted.
func (idx *Index) ChunkKeys() []string {
	out := make([]string, 0, len(idx.spatialGrid))
	for k := range idx.spatialGrid {
		out = append(out, geom.ChunkKey(k.cx, k.cy))
	}
	sort.Strings(out)
	return out
}

// Nearby returns the objects registered in the 3x3 block of chunks centred
// on p's chunk, deduplicated and ordered by id. The block widens only when
// some object's range is larger than a chunk. Callers do the exact
// distance filtering.
func (idx *Index) Nearby(p geom.Point) []*Object {
	c := geom.ChunkOf(p, idx.chunkSize)
	seen := make(map[string]struct{})
	var out []*Object
	for dy := -idx.reach; dy <= idx.reach; dy++ {
		for dx := -idx.reach; dx <= idx.reach; dx++ {
			for id := range idx.spatialGrid[chunkKey{cx: c.X + dx, cy: c.Y + dy}] {
				if _, dup := seen[id]; dup {
					continue
				}
				seen[id] = struct{}{}
				if o := idx.objects[id]; o != nil {
					out = append(out, o)
				}
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func sortedIDs(set map[string]struct{}) []string {
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

package tilemap

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
)

// Layer types understood by ingestion. Anything else is skipped.
const (
	LayerTile   = "tilelayer"
	LayerObject = "objectgroup"
)

// Flip flags the map editor stores in the high bits of a gid.
const (
	flipH uint32 = 0x80000000
	flipV uint32 = 0x40000000
	flipD uint32 = 0x20000000
)

// ErrTilesetNotFound is returned when no tileset owns a gid.
var ErrTilesetNotFound = errors.New("no tileset for gid")

// GIDError reports the offending gid of a failed tileset lookup.
type GIDError struct {
	GID uint32
}

func (e *GIDError) Error() string {
	return fmt.Sprintf("%s %d", ErrTilesetNotFound.Error(), e.GID)
}

func (e *GIDError) Unwrap() error { return ErrTilesetNotFound }

// Map is a tile-map description as exported by the map editor (JSON form).
type Map struct {
	Width      int        `json:"width" jsonschema:"minimum=1,description=Map width in tiles"`
	Height     int        `json:"height" jsonschema:"minimum=1,description=Map height in tiles"`
	TileWidth  int        `json:"tilewidth" jsonschema:"minimum=1,description=Tile width in pixels"`
	TileHeight int        `json:"tileheight" jsonschema:"minimum=1,description=Tile height in pixels"`
	Layers     []Layer    `json:"layers" jsonschema:"description=Ordered layers; tilelayer or objectgroup"`
	Tilesets   []Tileset  `json:"tilesets"`
	Properties Properties `json:"properties,omitempty"`
}

// Layer is either a tile layer (Data) or an object group (Objects).
type Layer struct {
	ID         int        `json:"id,omitempty"`
	Name       string     `json:"name"`
	Type       string     `json:"type" jsonschema:"enum=tilelayer,enum=objectgroup,enum=imagelayer,enum=group"`
	Width      int        `json:"width,omitempty"`
	Height     int        `json:"height,omitempty"`
	Data       []uint32   `json:"data,omitempty" jsonschema:"description=Row-major gids; 0 is empty"`
	Objects    []Object   `json:"objects,omitempty"`
	Properties Properties `json:"properties,omitempty"`
	Visible    bool       `json:"visible"`
}

// Object is a placed rectangle on an object group. Pixel units.
type Object struct {
	ID         int        `json:"id,omitempty"`
	Name       string     `json:"name,omitempty"`
	Type       string     `json:"type,omitempty"`
	Class      string     `json:"class,omitempty"`
	X          float64    `json:"x"`
	Y          float64    `json:"y"`
	Width      float64    `json:"width"`
	Height     float64    `json:"height"`
	GID        uint32     `json:"gid,omitempty"`
	Properties Properties `json:"properties,omitempty"`
}

// Tileset maps a gid range to a source image.
type Tileset struct {
	FirstGID   uint32    `json:"firstgid"`
	Name       string    `json:"name,omitempty"`
	Image      string    `json:"image,omitempty"`
	TileWidth  int       `json:"tilewidth,omitempty"`
	TileHeight int       `json:"tileheight,omitempty"`
	TileCount  int       `json:"tilecount,omitempty"`
	Columns    int       `json:"columns,omitempty"`
	Tiles      []TileDef `json:"tiles,omitempty"`
}

// TileDef carries per-tile annotations of a tileset.
type TileDef struct {
	ID         uint32     `json:"id"`
	Type       string     `json:"type,omitempty"`
	Properties Properties `json:"properties,omitempty"`
}

// Decode parses a JSON map description.
func Decode(r io.Reader) (*Map, error) {
	var m Map
	if err := json.NewDecoder(r).Decode(&m); err != nil {
		return nil, fmt.Errorf("decode map: %w", err)
	}
	if m.Width <= 0 || m.Height <= 0 {
		return nil, fmt.Errorf("decode map: invalid size %dx%d", m.Width, m.Height)
	}
	if m.TileWidth <= 0 || m.TileHeight <= 0 {
		return nil, fmt.Errorf("decode map: invalid tile size %dx%d", m.TileWidth, m.TileHeight)
	}
	return &m, nil
}

// Load reads and decodes a JSON map file.
func Load(path string) (*Map, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("read map %s: %w", path, err)
	}
	defer f.Close()
	m, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

// SanitizeGID strips the flip flags from a gid.
func SanitizeGID(gid uint32) uint32 {
	return gid &^ (flipH | flipV | flipD)
}

// FindTileset returns the tileset owning gid: the one with the highest
// firstgid that is <= gid. Input order of Tilesets does not matter.
func (m *Map) FindTileset(gid uint32) (*Tileset, error) {
	gid = SanitizeGID(gid)
	var best *Tileset
	for i := range m.Tilesets {
		ts := &m.Tilesets[i]
		if ts.FirstGID == 0 || ts.FirstGID > gid {
			continue
		}
		if best == nil || ts.FirstGID > best.FirstGID {
			best = ts
		}
	}
	if best == nil {
		return nil, &GIDError{GID: gid}
	}
	return best, nil
}

// TileProperties returns the per-tile properties for gid, or nil.
func (m *Map) TileProperties(gid uint32) (Properties, error) {
	ts, err := m.FindTileset(gid)
	if err != nil {
		return nil, err
	}
	local := SanitizeGID(gid) - ts.FirstGID
	for i := range ts.Tiles {
		if ts.Tiles[i].ID == local {
			return ts.Tiles[i].Properties, nil
		}
	}
	return nil, nil
}

package tilemap

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleMap = `{
  "width": 4, "height": 3, "tilewidth": 32, "tileheight": 32,
  "properties": {"theme": "office"},
  "layers": [
    {"type": "tilelayer", "name": "Floor", "data": [1,1,1,1, 1,2,2,1, 1,1,1,1], "visible": true},
    {"type": "objectgroup", "name": "Computers", "objects": [
      {"id": 7, "name": "desk", "x": 32, "y": 64, "width": 32, "height": 32,
       "properties": [{"name": "interactionRange", "type": "int", "value": 2}]}
    ]}
  ],
  "tilesets": [{"firstgid": 1, "image": "floor.png", "tilewidth": 32, "tileheight": 32, "columns": 8}]
}`

func TestDecode(t *testing.T) {
	m, err := Decode(strings.NewReader(sampleMap))
	require.NoError(t, err)
	assert.Equal(t, 4, m.Width)
	require.Len(t, m.Layers, 2)
	assert.Len(t, m.Layers[0].Data, 12)

	obj := m.Layers[1].Objects[0]
	r, ok := obj.Properties.Int("interactionrange")
	assert.True(t, ok)
	assert.Equal(t, 2, r)

	theme, ok := m.Properties.String("Theme")
	assert.True(t, ok)
	assert.Equal(t, "office", theme)
}

func TestDecodeRejectsBadSize(t *testing.T) {
	_, err := Decode(strings.NewReader(`{"width": 0, "height": 3, "tilewidth": 32, "tileheight": 32}`))
	assert.Error(t, err)
}

func TestFindTileset(t *testing.T) {
	m := &Map{Tilesets: []Tileset{
		{FirstGID: 65, Name: "walls"},
		{FirstGID: 1, Name: "floor"},
		{FirstGID: 129, Name: "furniture"},
	}}

	tests := []struct {
		gid  uint32
		want string
	}{
		{1, "floor"},
		{64, "floor"},
		{65, "walls"},
		{128, "walls"},
		{500, "furniture"},
		{65 | 0x80000000, "walls"},
	}
	for _, tt := range tests {
		ts, err := m.FindTileset(tt.gid)
		require.NoError(t, err)
		assert.Equal(t, tt.want, ts.Name, "gid %d", tt.gid)
	}
}

func TestFindTilesetMiss(t *testing.T) {
	m := &Map{Tilesets: []Tileset{{FirstGID: 10}}}
	_, err := m.FindTileset(3)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTilesetNotFound))

	var gidErr *GIDError
	require.True(t, errors.As(err, &gidErr))
	assert.Equal(t, uint32(3), gidErr.GID)
}

func TestTileProperties(t *testing.T) {
	m := &Map{Tilesets: []Tileset{{
		FirstGID: 10,
		Tiles:    []TileDef{{ID: 2, Properties: Properties{"collides": true}}},
	}}}
	props, err := m.TileProperties(12)
	require.NoError(t, err)
	assert.True(t, props.AnyTrue("collision", "collides"))

	props, err = m.TileProperties(11)
	require.NoError(t, err)
	assert.Nil(t, props)
}

func TestSanitizeGID(t *testing.T) {
	assert.Equal(t, uint32(42), SanitizeGID(42|0x80000000|0x40000000|0x20000000))
}

func TestPropertiesBool(t *testing.T) {
	p := Properties{"Collision": "true", "solid": false, "n": 1.0}
	b, ok := p.Bool("collision")
	assert.True(t, ok)
	assert.True(t, b)
	assert.False(t, p.AnyTrue("solid"))
	assert.True(t, p.AnyTrue("missing", "n"))
}

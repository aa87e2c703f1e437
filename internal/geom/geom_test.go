package geom

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunkCoord(t *testing.T) {
	tests := []struct {
		v, size, want int
	}{
		{0, 8, 0},
		{7, 8, 0},
		{8, 8, 1},
		{-1, 8, -1},
		{-8, 8, -1},
		{-9, 8, -2},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ChunkCoord(tt.v, tt.size), "ChunkCoord(%d, %d)", tt.v, tt.size)
	}
}

func TestTileKeyRoundTrip(t *testing.T) {
	p, err := ParseTileKey(TileKey(-3, 12))
	require.NoError(t, err)
	assert.Equal(t, Point{X: -3, Y: 12}, p)

	_, err = ParseTileKey("12")
	assert.Error(t, err)
	_, err = ParseTileKey("a,1")
	assert.Error(t, err)
}

func TestBoundsOf(t *testing.T) {
	r := BoundsOf([]Point{{2, 3}, {4, 2}, {3, 5}})
	assert.Equal(t, Rect{X: 2, Y: 2, Width: 3, Height: 4}, r)

	single := BoundsOf([]Point{{7, 7}})
	assert.Equal(t, Rect{X: 7, Y: 7, Width: 1, Height: 1}, single)
}

func TestRectContains(t *testing.T) {
	r := Rect{X: 1, Y: 1, Width: 2, Height: 2}
	assert.True(t, r.Contains(Point{1, 1}))
	assert.True(t, r.Contains(Point{2, 2}))
	assert.False(t, r.Contains(Point{3, 2}))
	assert.False(t, r.Contains(Point{0, 1}))

	var n int
	r.Tiles(func(Point) { n++ })
	assert.Equal(t, 4, n)
}

func TestPixelConversion(t *testing.T) {
	assert.Equal(t, 2, PixelToTile(64, 32))
	assert.Equal(t, 1, PixelToTile(63.9, 32))
	assert.Equal(t, -1, PixelToTile(-0.5, 32))
	assert.Equal(t, 96, TileToPixel(3, 32))
}

func TestManhattan(t *testing.T) {
	assert.Equal(t, 0, Manhattan(Point{1, 1}, Point{1, 1}))
	assert.Equal(t, 7, Manhattan(Point{-2, 1}, Point{1, 5}))
}

package main

import (
	"errors"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWgs84ToWebMercator(t *testing.T) {
	tests := []struct {
		name string
		in   orb.Point
		want orb.Point
		tol  float64
	}{
		{
			name: "origin",
			in:   orb.Point{0, 0},
			want: orb.Point{0, 0},
			tol:  1e-9,
		},
		{
			name: "antimeridian maps to max extent",
			in:   orb.Point{180, 0},
			want: orb.Point{maxExtent, 0},
			tol:  1e-6,
		},
		{
			name: "longitude beyond range is clamped",
			in:   orb.Point{190, 0},
			want: orb.Point{maxExtent, 0},
			tol:  0,
		},
		{
			name: "top of the mercator square",
			in:   orb.Point{0, 85.051128779806},
			want: orb.Point{0, maxExtent},
			tol:  1.0,
		},
		{
			name: "polar latitude is clamped",
			in:   orb.Point{0, 89},
			want: orb.Point{0, maxExtent},
			tol:  0,
		},
		{
			name: "south west corner",
			in:   orb.Point{-190, -89},
			want: orb.Point{-maxExtent, -maxExtent},
			tol:  0,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := wgs84ToWebMercator(tc.in)
			assert.InDelta(t, tc.want[0], got[0], tc.tol)
			assert.InDelta(t, tc.want[1], got[1], tc.tol)
		})
	}
}

func TestLonLatToTile(t *testing.T) {
	tests := []struct {
		lon, lat float64
		zoom     maptile.Zoom
		x, y     uint32
	}{
		{0, 0, 0, 0, 0},
		{0, 0, 1, 1, 1},
		{-180, 85.0511287798, 2, 0, 0},
		{179.9, -85.0511287798, 3, 7, 7},
		{-0.1, 0.1, 1, 0, 0},
	}
	for _, tc := range tests {
		x, y := lonLatToTile(tc.lon, tc.lat, tc.zoom)
		assert.Equal(t, tc.x, x, "x for lon=%v lat=%v z=%v", tc.lon, tc.lat, tc.zoom)
		assert.Equal(t, tc.y, y, "y for lon=%v lat=%v z=%v", tc.lon, tc.lat, tc.zoom)
	}
}

func TestBBoxAccumulation(t *testing.T) {
	b := NewBBox()
	assert.True(t, b.IsEmpty())

	// non line-strings never contribute
	b.Add(orb.Point{120, 80})
	assert.True(t, b.IsEmpty())

	b.Add(orb.LineString{{-10, 5}, {20, 30}})
	require.False(t, b.IsEmpty())
	assert.Equal(t, -10.0, b.MinLon)
	assert.Equal(t, 5.0, b.MinLat)
	assert.Equal(t, 20.0, b.MaxLon)
	assert.Equal(t, 30.0, b.MaxLat)

	b.Add(orb.LineString{{0, -40}})
	assert.Equal(t, -40.0, b.MinLat)
}

func TestBBoxToTilesNormalizesYOrder(t *testing.T) {
	// Projecting min/max latitude independently gives the southern edge
	// the larger tile y; the range must come back ordered.
	b := NewBBox()
	b.Add(orb.LineString{{-10, 10}, {10, 60}})

	x1, y1, x2, y2 := b.ToTiles(4)
	assert.LessOrEqual(t, x1, x2)
	assert.LessOrEqual(t, y1, y2)
	assert.Equal(t, uint32(7), x1)
	assert.Equal(t, uint32(8), x2)
	assert.Equal(t, uint32(4), y1)
	assert.Equal(t, uint32(7), y2)

	// zoom 0 is always the single world tile
	x1, y1, x2, y2 = b.ToTiles(0)
	assert.Equal(t, [4]uint32{0, 0, 0, 0}, [4]uint32{x1, y1, x2, y2})
}

func TestNewTile(t *testing.T) {
	_, err := NewTile(0, 0, 0)
	require.NoError(t, err)

	_, err = NewTile(3, 2, 2)
	require.NoError(t, err)

	_, err = NewTile(1, 1, 0)
	require.Error(t, err)
	var ite *invalidTileError
	require.True(t, errors.As(err, &ite))
	assert.Equal(t, uint32(1), ite.X)

	_, err = NewTile(0, 4, 2)
	assert.Error(t, err)
}

func TestTileWebMercatorBound(t *testing.T) {
	world := tileWebMercatorBound(maptile.Tile{X: 0, Y: 0, Z: 0})
	assert.InDelta(t, -maxExtent, world.Min[0], 1e-6)
	assert.InDelta(t, -maxExtent, world.Min[1], 1e-6)
	assert.InDelta(t, maxExtent, world.Max[0], 1e-6)
	assert.InDelta(t, maxExtent, world.Max[1], 1e-6)

	// tile (1,0) at zoom 1 is the north-east quadrant
	ne := tileWebMercatorBound(maptile.Tile{X: 1, Y: 0, Z: 1})
	assert.InDelta(t, 0, ne.Min[0], 1e-6)
	assert.InDelta(t, 0, ne.Min[1], 1e-6)
	assert.InDelta(t, maxExtent, ne.Max[0], 1e-6)
	assert.InDelta(t, maxExtent, ne.Max[1], 1e-6)
}

func TestTileTransform(t *testing.T) {
	tr := tileTransform(maptile.Tile{X: 0, Y: 0, Z: 0})

	center := tr(orb.Point{0, 0})
	assert.InDelta(t, 0.5, center[0], 1e-9)
	assert.InDelta(t, 0.5, center[1], 1e-9)

	// planar north-west corner is the tile-local origin
	nw := tr(orb.Point{-maxExtent, maxExtent})
	assert.InDelta(t, 0.0, nw[0], 1e-9)
	assert.InDelta(t, 0.0, nw[1], 1e-9)

	se := tr(orb.Point{maxExtent, -maxExtent})
	assert.InDelta(t, 1.0, se[0], 1e-9)
	assert.InDelta(t, 1.0, se[1], 1e-9)
}

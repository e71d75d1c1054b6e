package main

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
)

// Spherical web-Mercator constants.
const (
	earthRadius = 6378137.0
	maxExtent   = 20037508.342789244
	d2r         = math.Pi / 180.0
)

// TileExtent is the MVT coordinate space per tile side.
const TileExtent = 4096

// wgs84ToWebMercator projects a lon/lat point onto the spherical
// web-Mercator plane. Both axes are clamped to the projection extent.
func wgs84ToWebMercator(p orb.Point) orb.Point {
	x := earthRadius * p[0] * d2r
	y := earthRadius * math.Log(math.Tan(math.Pi*0.25+0.5*p[1]*d2r))
	return orb.Point{
		clamp(x, -maxExtent, maxExtent),
		clamp(y, -maxExtent, maxExtent),
	}
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(v, hi))
}

// BBox accumulates a geographic (pre-projection) bounding box. It starts
// inverted and must be checked with IsEmpty before use. Tile math needs
// the WGS84 box; the planar index envelope does not map back linearly.
type BBox struct {
	MinLon, MinLat float64
	MaxLon, MaxLat float64
}

func NewBBox() BBox {
	return BBox{
		MinLon: math.MaxFloat64,
		MinLat: math.MaxFloat64,
		MaxLon: -math.MaxFloat64,
		MaxLat: -math.MaxFloat64,
	}
}

func (b *BBox) Extend(p orb.Point) {
	b.MinLon = math.Min(b.MinLon, p[0])
	b.MinLat = math.Min(b.MinLat, p[1])
	b.MaxLon = math.Max(b.MaxLon, p[0])
	b.MaxLat = math.Max(b.MaxLat, p[1])
}

// Add grows the box by every vertex of a line-string geometry. Only
// line-strings count, matching what ends up in tiles.
func (b *BBox) Add(geom orb.Geometry) {
	ls, ok := geom.(orb.LineString)
	if !ok {
		return
	}
	for _, p := range ls {
		b.Extend(p)
	}
}

func (b *BBox) IsEmpty() bool {
	return b.MinLon > b.MaxLon || b.MinLat > b.MaxLat
}

// ToTiles returns the inclusive tile index range covering the box at a
// zoom. Projecting the two latitude extremes independently can swap the
// y order, so the range is normalized.
func (b *BBox) ToTiles(zoom maptile.Zoom) (x1, y1, x2, y2 uint32) {
	ax, ay := lonLatToTile(b.MinLon, b.MinLat, zoom)
	bx, by := lonLatToTile(b.MaxLon, b.MaxLat, zoom)
	if bx < ax {
		ax, bx = bx, ax
	}
	if by < ay {
		ay, by = by, ay
	}
	return ax, ay, bx, by
}

// lonLatToTile is the slippy-map tile formula with the asinh latitude
// mapping, clipped to [0, 2^z).
func lonLatToTile(lon, lat float64, zoom maptile.Zoom) (uint32, uint32) {
	x := (1.0 + lon*d2r/math.Pi) / 2.0
	y := (1.0 - math.Asinh(math.Tan(lat*d2r))/math.Pi) / 2.0

	n := float64(uint64(1) << zoom)
	tx := math.Floor(x * n)
	ty := math.Floor(y * n)
	return uint32(clamp(tx, 0, n-1)), uint32(clamp(ty, 0, n-1))
}

// NewTile validates the tile coordinate invariant 0 <= x,y < 2^z.
func NewTile(x, y uint32, z maptile.Zoom) (maptile.Tile, error) {
	if n := uint64(1) << z; uint64(x) >= n || uint64(y) >= n {
		return maptile.Tile{}, &invalidTileError{X: x, Y: y, Z: z}
	}
	return maptile.Tile{X: x, Y: y, Z: z}, nil
}

// tileWebMercatorBound returns the tile's bounding rectangle in planar
// space. Tile y counts from the north edge, planar y grows northward.
func tileWebMercatorBound(t maptile.Tile) orb.Bound {
	n := float64(uint64(1) << t.Z)
	span := 2 * maxExtent / n
	minX := -maxExtent + float64(t.X)*span
	maxY := maxExtent - float64(t.Y)*span
	return orb.Bound{
		Min: orb.Point{minX, maxY - span},
		Max: orb.Point{minX + span, maxY},
	}
}

// tileTransform returns the affine map from planar space into the tile's
// unit square, x rightward, y downward.
func tileTransform(t maptile.Tile) func(orb.Point) orb.Point {
	b := tileWebMercatorBound(t)
	spanX := b.Max[0] - b.Min[0]
	spanY := b.Max[1] - b.Min[1]
	return func(p orb.Point) orb.Point {
		return orb.Point{
			(p[0] - b.Min[0]) / spanX,
			(b.Max[1] - p[1]) / spanY,
		}
	}
}

package main

import (
	"fmt"
	"math"

	"github.com/dhconnelly/rtreego"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/project"
)

// treeFeature is one input feature after reprojection, wrapped for R-tree
// storage with its planar envelope computed once up front.
type treeFeature struct {
	geometry   orb.Geometry // web-Mercator coordinates
	properties geojson.Properties
	rect       rtreego.Rect
}

// Bounds implements rtreego.Spatial.
func (f *treeFeature) Bounds() rtreego.Rect { return f.rect }

// sortKey reads the priority attribute: round the number, saturate
// negatives to zero, anything missing or non-numeric is zero.
func (f *treeFeature) sortKey(key string) uint64 {
	v, ok := f.properties[key]
	if !ok {
		return 0
	}
	num, ok := v.(float64)
	if !ok {
		return 0
	}
	r := math.Round(num)
	if math.IsNaN(r) || r < 0 {
		return 0
	}
	return uint64(r)
}

// envelope computes the planar bounding rect, padding degenerate extents;
// the R-tree needs non-zero lengths on both axes.
func envelope(g orb.Geometry) rtreego.Rect {
	const epsilon = 1e-9
	b := g.Bound()
	lengths := []float64{b.Max[0] - b.Min[0], b.Max[1] - b.Min[1]}
	for i := range lengths {
		if lengths[i] < epsilon {
			lengths[i] = epsilon
		}
	}
	rect, _ := rtreego.NewRect(rtreego.Point{b.Min[0], b.Min[1]}, lengths)
	return rect
}

// loadFeatures parses a GeoJSON feature collection and produces the
// shared spatial index, the feature count, the geographic bounding box
// and the attribute field schema. The bounding box is accumulated from
// the raw coordinates before reprojection; the index is bulk-loaded once
// with every feature's cached planar envelope.
func loadFeatures(data []byte) (*rtreego.Rtree, int, BBox, map[string]string, error) {
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, 0, BBox{}, nil, fmt.Errorf("parse geojson: %w", err)
	}

	bbox := NewBBox()
	fields := make(map[string]string)
	spatials := make([]rtreego.Spatial, 0, len(fc.Features))
	for _, f := range fc.Features {
		if f.Geometry == nil {
			return nil, 0, BBox{}, nil, errMissingGeometry
		}
		bbox.Add(f.Geometry)

		// every attribute key seen anywhere lands in the schema once
		for key := range f.Properties {
			if _, ok := fields[key]; !ok {
				fields[key] = ""
			}
		}

		geom := project.Geometry(f.Geometry, wgs84ToWebMercator)
		spatials = append(spatials, &treeFeature{
			geometry:   geom,
			properties: f.Properties,
			rect:       envelope(geom),
		})
	}

	tree := rtreego.NewTree(2, 25, 50, spatials...)
	return tree, len(spatials), bbox, fields, nil
}

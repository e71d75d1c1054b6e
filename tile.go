package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/dhconnelly/rtreego"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/maptile"
)

// Options configures one tiling run.
type Options struct {
	LayerName      string
	SortByKey      string // descending-priority attribute, empty to disable
	ZoomLevels     []maptile.Zoom
	LimitSizeBytes int // soft per-tile geometry byte budget, 0 to disable
}

func (o *Options) validate() error {
	if o.LayerName == "" {
		return errors.New("layer name must not be empty")
	}
	if len(o.ZoomLevels) == 0 {
		return errors.New("at least one zoom level is required")
	}
	for i := 1; i < len(o.ZoomLevels); i++ {
		if o.ZoomLevels[i] <= o.ZoomLevels[i-1] {
			return fmt.Errorf("zoom levels must be strictly ascending, got %v", o.ZoomLevels)
		}
	}
	return nil
}

// tileData is one finished tile: the encoded layer plus bookkeeping for
// the log line.
type tileData struct {
	tile      maptile.Tile
	data      []byte
	features  int
	truncated bool
}

// orderByPriority sorts candidates descending by the rounded numeric
// value of key: a stable ascending sort followed by a full reverse, so
// equal keys come out in reverse of their incoming order.
func orderByPriority(features []*treeFeature, key string) {
	sort.SliceStable(features, func(i, j int) bool {
		return features[i].sortKey(key) < features[j].sortKey(key)
	})
	for i, j := 0, len(features)-1; i < j; i, j = i+1, j-1 {
		features[i], features[j] = features[j], features[i]
	}
}

// makeTile builds a single tile from the features whose envelopes
// intersect it. A nil result with nil error means the tile is empty and
// not materialized.
//
// Inclusion is a vertex-presence heuristic: a line whose segment crosses
// the tile without any vertex inside it is dropped, and retained lines
// keep all their vertices. Known limitation, no clipping is performed.
func makeTile(t maptile.Tile, index *rtreego.Rtree, opts *Options) (*tileData, error) {
	bound := tileWebMercatorBound(t)
	rect, err := rtreego.NewRect(
		rtreego.Point{bound.Min[0], bound.Min[1]},
		[]float64{bound.Max[0] - bound.Min[0], bound.Max[1] - bound.Min[1]},
	)
	if err != nil {
		return nil, &tileBuildError{Tile: t, Err: err}
	}

	candidates := index.SearchIntersect(rect)
	features := make([]*treeFeature, 0, len(candidates))
	for _, s := range candidates {
		features = append(features, s.(*treeFeature))
	}

	// The R-tree keeps no useful order between internal buckets, so any
	// priority semantics must be established here.
	if opts.SortByKey != "" {
		orderByPriority(features, opts.SortByKey)
	}

	transform := tileTransform(t)
	layer := newLayerBuilder(opts.LayerName)

	bytesSoFar := 0
	truncated := false
	for _, f := range features {
		ls, ok := f.geometry.(orb.LineString)
		if !ok {
			// only line-strings are encoded, everything else is skipped
			continue
		}

		any := false
		scaled := make(orb.LineString, len(ls))
		for i, p := range ls {
			unit := transform(p)
			if unit[0] >= 0.0 && unit[0] <= 1.0 && unit[1] >= 0.0 && unit[1] <= 1.0 {
				any = true
			}
			scaled[i] = orb.Point{unit[0] * TileExtent, unit[1] * TileExtent}
		}
		if !any {
			continue
		}

		encoded, err := encodeLineString(scaled)
		if err != nil {
			return nil, &tileBuildError{Tile: t, Err: err}
		}
		bytesSoFar += len(encoded)
		id := uint64(layer.count())

		// Soft ceiling, checked after the feature is in: the triggering
		// feature stays (without tags) and the tile may overshoot by one
		// feature's encoded size.
		if opts.LimitSizeBytes > 0 && bytesSoFar > opts.LimitSizeBytes {
			layer.addFeature(id, encoded, nil)
			truncated = true
			break
		}

		tags, err := encodeTags(f.properties)
		if err != nil {
			return nil, &tileBuildError{Tile: t, Err: err}
		}
		layer.addFeature(id, encoded, tags)
	}

	if layer.count() == 0 {
		// nothing fit in this tile, skip it
		return nil, nil
	}

	return &tileData{
		tile:      t,
		data:      layer.marshal(),
		features:  layer.count(),
		truncated: truncated,
	}, nil
}

// encodeTags translates raw attribute values into encoder tags: null is
// omitted, bool/number/string map natively (numbers as double), arrays
// and objects fall back to their JSON text, tippecanoe-style. Tags are
// emitted in key order.
func encodeTags(props geojson.Properties) ([]tag, error) {
	tags := make([]tag, 0, len(props))
	for key, value := range props {
		switch v := value.(type) {
		case nil:
		case bool, float64, string:
			tags = append(tags, tag{key: key, value: v})
		default:
			text, err := json.Marshal(v)
			if err != nil {
				return nil, fmt.Errorf("serialize tag %q: %w", key, err)
			}
			tags = append(tags, tag{key: key, value: string(text)})
		}
	}
	sort.Slice(tags, func(i, j int) bool { return tags[i].key < tags[j].key })
	return tags, nil
}

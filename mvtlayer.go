package main

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/paulmach/orb"
)

// MVT geometry command IDs.
const (
	cmdMoveTo = 1
	cmdLineTo = 2
)

const geomTypeLineString = 2

// Protobuf wire types.
const (
	wireVarint  = 0
	wireFixed64 = 1
	wireBytes   = 2
)

func appendKeyVarint(buf []byte, field int, v uint64) []byte {
	buf = binary.AppendUvarint(buf, uint64(field)<<3|wireVarint)
	return binary.AppendUvarint(buf, v)
}

func appendKeyBytes(buf []byte, field int, data []byte) []byte {
	buf = binary.AppendUvarint(buf, uint64(field)<<3|wireBytes)
	buf = binary.AppendUvarint(buf, uint64(len(data)))
	return append(buf, data...)
}

func appendKeyFixed64(buf []byte, field int, bits uint64) []byte {
	buf = binary.AppendUvarint(buf, uint64(field)<<3|wireFixed64)
	return binary.LittleEndian.AppendUint64(buf, bits)
}

func commandInteger(id, count uint32) uint64 {
	return uint64(id&0x7 | count<<3)
}

func zigzag(v int64) uint64 {
	return uint64((v << 1) ^ (v >> 63))
}

// encodeLineString produces the MVT geometry command stream for one
// line-string in extent coordinates. Its length is the byte measure
// behind the tile size budget.
func encodeLineString(ls orb.LineString) ([]byte, error) {
	if len(ls) < 2 {
		return nil, fmt.Errorf("line-string needs at least 2 points, got %d", len(ls))
	}
	buf := make([]byte, 0, 4+4*len(ls))
	var prevX, prevY int64
	for i, p := range ls {
		if math.IsNaN(p[0]) || math.IsNaN(p[1]) || math.IsInf(p[0], 0) || math.IsInf(p[1], 0) {
			return nil, fmt.Errorf("non-finite coordinate at vertex %d", i)
		}
		x := int64(math.Round(p[0]))
		y := int64(math.Round(p[1]))
		switch i {
		case 0:
			buf = binary.AppendUvarint(buf, commandInteger(cmdMoveTo, 1))
		case 1:
			buf = binary.AppendUvarint(buf, commandInteger(cmdLineTo, uint32(len(ls)-1)))
		}
		buf = binary.AppendUvarint(buf, zigzag(x-prevX))
		buf = binary.AppendUvarint(buf, zigzag(y-prevY))
		prevX, prevY = x, y
	}
	return buf, nil
}

// tag is one typed attribute on an encoded feature. Value is a string,
// float64 or bool by the time it gets here.
type tag struct {
	key   string
	value interface{}
}

// layerBuilder accumulates encoded features into a single MVT layer,
// interning tag keys and values the way the vector-tile schema expects.
// A feature is appended in one shot after its tags are computed; nothing
// is handed back and forth mid-feature.
type layerBuilder struct {
	name     string
	features [][]byte
	keys     []string
	keyIdx   map[string]uint32
	values   []interface{}
	valueIdx map[interface{}]uint32
}

func newLayerBuilder(name string) *layerBuilder {
	return &layerBuilder{
		name:     name,
		keyIdx:   make(map[string]uint32),
		valueIdx: make(map[interface{}]uint32),
	}
}

func (lb *layerBuilder) count() int { return len(lb.features) }

// addFeature appends one line-string feature from its numeric id, its
// geometry command stream and its tags.
func (lb *layerBuilder) addFeature(id uint64, geometry []byte, tags []tag) {
	var tagIdx []uint64
	for _, t := range tags {
		ki, ok := lb.keyIdx[t.key]
		if !ok {
			ki = uint32(len(lb.keys))
			lb.keyIdx[t.key] = ki
			lb.keys = append(lb.keys, t.key)
		}
		vi, ok := lb.valueIdx[t.value]
		if !ok {
			vi = uint32(len(lb.values))
			lb.valueIdx[t.value] = vi
			lb.values = append(lb.values, t.value)
		}
		tagIdx = append(tagIdx, uint64(ki), uint64(vi))
	}

	var buf []byte
	buf = appendKeyVarint(buf, 1, id)
	if len(tagIdx) > 0 {
		var packed []byte
		for _, v := range tagIdx {
			packed = binary.AppendUvarint(packed, v)
		}
		buf = appendKeyBytes(buf, 2, packed)
	}
	buf = appendKeyVarint(buf, 3, geomTypeLineString)
	buf = appendKeyBytes(buf, 4, geometry)
	lb.features = append(lb.features, buf)
}

// marshal emits the tile protobuf: one layer message wrapping the
// accumulated features and the interned key/value tables. Output is
// deterministic for a given feature sequence.
func (lb *layerBuilder) marshal() []byte {
	var layer []byte
	layer = appendKeyBytes(layer, 1, []byte(lb.name))
	for _, f := range lb.features {
		layer = appendKeyBytes(layer, 2, f)
	}
	for _, k := range lb.keys {
		layer = appendKeyBytes(layer, 3, []byte(k))
	}
	for _, v := range lb.values {
		layer = appendKeyBytes(layer, 4, encodeValue(v))
	}
	layer = appendKeyVarint(layer, 5, TileExtent)
	layer = appendKeyVarint(layer, 15, 2) // schema version

	var tile []byte
	tile = appendKeyBytes(tile, 3, layer)
	return tile
}

func encodeValue(v interface{}) []byte {
	var buf []byte
	switch t := v.(type) {
	case string:
		buf = appendKeyBytes(buf, 1, []byte(t))
	case float64:
		buf = appendKeyFixed64(buf, 3, math.Float64bits(t))
	case bool:
		var b uint64
		if t {
			b = 1
		}
		buf = appendKeyVarint(buf, 7, b)
	}
	return buf
}

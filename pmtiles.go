package main

import (
	"bytes"
	"compress/gzip"
	"encoding/binary"
	"fmt"
	"io"
	"sort"

	"github.com/paulmach/orb/maptile"
)

// PMTiles v3 constants.
const (
	headerLen   = 127
	specVersion = 3

	compressionNone = 1
	compressionGzip = 2

	tileTypeMvt = 1
)

var pmtilesMagic = []byte("PMTiles")

// PMTiles accumulates finished tiles and serializes a v3 archive: a
// fixed header, a gzip root directory, gzip metadata JSON, then the raw
// tile payloads concatenated in tile-ID order.
type PMTiles struct {
	BBox     BBox
	MinZoom  uint8
	MaxZoom  uint8
	Metadata []byte
	tiles    map[uint64][]byte
}

func NewPMTiles(bbox BBox, minZoom, maxZoom uint8) *PMTiles {
	return &PMTiles{
		BBox:    bbox,
		MinZoom: minZoom,
		MaxZoom: maxZoom,
		tiles:   make(map[uint64][]byte),
	}
}

// AddTile stores one tile payload under its derived tile ID.
func (p *PMTiles) AddTile(t maptile.Tile, data []byte) error {
	id := tileID(t)
	if _, ok := p.tiles[id]; ok {
		return fmt.Errorf("duplicate tile id %d for z=%d x=%d y=%d", id, t.Z, t.X, t.Y)
	}
	p.tiles[id] = data
	return nil
}

// tileID maps (z, x, y) onto the archive's single-integer address: the
// tile count of all pyramid levels above z, plus the Hilbert curve index
// of (x, y) within zoom z. Injective over valid coordinates.
func tileID(t maptile.Tile) uint64 {
	var acc uint64
	for i := maptile.Zoom(0); i < t.Z; i++ {
		acc += 1 << (2 * i)
	}
	n := uint64(1) << t.Z
	var d uint64
	tx, ty := uint64(t.X), uint64(t.Y)
	for s := n / 2; s > 0; s /= 2 {
		var rx, ry uint64
		if tx&s > 0 {
			rx = 1
		}
		if ty&s > 0 {
			ry = 1
		}
		d += s * s * ((3 * rx) ^ ry)
		if ry == 0 {
			if rx == 1 {
				tx = s - 1 - tx
				ty = s - 1 - ty
			}
			tx, ty = ty, tx
		}
	}
	return acc + d
}

type dirEntry struct {
	id        uint64
	offset    uint64
	length    uint64
	runLength uint64
}

// serializeEntries writes the directory in the PMTiles v3 column order:
// entry count, delta-encoded tile IDs, run lengths, lengths, then
// offsets with 0 standing for "contiguous with the previous entry".
func serializeEntries(entries []dirEntry) []byte {
	buf := make([]byte, 0, 1+12*len(entries))
	buf = binary.AppendUvarint(buf, uint64(len(entries)))
	var lastID uint64
	for _, e := range entries {
		buf = binary.AppendUvarint(buf, e.id-lastID)
		lastID = e.id
	}
	for _, e := range entries {
		buf = binary.AppendUvarint(buf, e.runLength)
	}
	for _, e := range entries {
		buf = binary.AppendUvarint(buf, e.length)
	}
	for i, e := range entries {
		if i > 0 && e.offset == entries[i-1].offset+entries[i-1].length {
			buf = binary.AppendUvarint(buf, 0)
		} else {
			buf = binary.AppendUvarint(buf, e.offset+1)
		}
	}
	return buf
}

// WriteTo serializes the whole archive. Payloads are written in
// ascending tile-ID order, so the archive is clustered. Every entry
// lands in the root directory; leaf directories are not emitted.
func (p *PMTiles) WriteTo(w io.Writer) error {
	ids := make([]uint64, 0, len(p.tiles))
	for id := range p.tiles {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	entries := make([]dirEntry, 0, len(ids))
	var tileData bytes.Buffer
	for _, id := range ids {
		data := p.tiles[id]
		entries = append(entries, dirEntry{
			id:        id,
			offset:    uint64(tileData.Len()),
			length:    uint64(len(data)),
			runLength: 1,
		})
		tileData.Write(data)
	}

	rootDir, err := gzipBytes(serializeEntries(entries))
	if err != nil {
		return err
	}
	metadata, err := gzipBytes(p.Metadata)
	if err != nil {
		return err
	}

	rootOffset := uint64(headerLen)
	metadataOffset := rootOffset + uint64(len(rootDir))
	tileDataOffset := metadataOffset + uint64(len(metadata))

	header := make([]byte, headerLen)
	copy(header, pmtilesMagic)
	header[7] = specVersion

	le := binary.LittleEndian
	le.PutUint64(header[8:], rootOffset)
	le.PutUint64(header[16:], uint64(len(rootDir)))
	le.PutUint64(header[24:], metadataOffset)
	le.PutUint64(header[32:], uint64(len(metadata)))
	le.PutUint64(header[40:], 0) // no leaf directories
	le.PutUint64(header[48:], 0)
	le.PutUint64(header[56:], tileDataOffset)
	le.PutUint64(header[64:], uint64(tileData.Len()))
	le.PutUint64(header[72:], uint64(len(ids))) // addressed tiles
	le.PutUint64(header[80:], uint64(len(ids))) // tile entries
	le.PutUint64(header[88:], uint64(len(ids))) // tile contents
	header[96] = 1                              // clustered
	header[97] = compressionGzip                // internal compression
	header[98] = compressionNone                // tile compression
	header[99] = tileTypeMvt
	header[100] = p.MinZoom
	header[101] = p.MaxZoom
	le.PutUint32(header[102:], uint32(int32(p.BBox.MinLon*1e7)))
	le.PutUint32(header[106:], uint32(int32(p.BBox.MinLat*1e7)))
	le.PutUint32(header[110:], uint32(int32(p.BBox.MaxLon*1e7)))
	le.PutUint32(header[114:], uint32(int32(p.BBox.MaxLat*1e7)))
	header[118] = p.MinZoom // center zoom
	le.PutUint32(header[119:], uint32(int32((p.BBox.MinLon+p.BBox.MaxLon)/2*1e7)))
	le.PutUint32(header[123:], uint32(int32((p.BBox.MinLat+p.BBox.MaxLat)/2*1e7)))

	for _, part := range [][]byte{header, rootDir, metadata, tileData.Bytes()} {
		if _, err := w.Write(part); err != nil {
			return fmt.Errorf("write archive: %w", err)
		}
	}
	return nil
}

func gzipBytes(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

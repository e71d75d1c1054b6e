package main

import (
	"errors"
	"fmt"

	"github.com/paulmach/orb/maptile"
)

// errMissingGeometry aborts the load when a feature carries no geometry.
var errMissingGeometry = errors.New("feature has no geometry")

// invalidTileError reports a tile coordinate outside [0, 2^z).
type invalidTileError struct {
	X, Y uint32
	Z    maptile.Zoom
}

func (e *invalidTileError) Error() string {
	return fmt.Sprintf("invalid tile coordinate x=%d y=%d z=%d (x and y must be within [0, 2^z))",
		e.X, e.Y, e.Z)
}

// tileBuildError wraps a failure while building a single tile.
type tileBuildError struct {
	Tile maptile.Tile
	Err  error
}

func (e *tileBuildError) Error() string {
	return fmt.Sprintf("tile z=%d x=%d y=%d: %v", e.Tile.Z, e.Tile.X, e.Tile.Y, e.Err)
}

func (e *tileBuildError) Unwrap() error { return e.Err }

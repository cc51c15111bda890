package geometry

import (
	"errors"
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

var (
	// ErrNotFound is matched by every load failure a caller should treat as
	// "no geometry for this key".
	ErrNotFound    = errors.New("geometry not found")
	ErrMissingFile = fmt.Errorf("%w: missing geometry file", ErrNotFound)
	ErrMalformed   = fmt.Errorf("%w: malformed geometry", ErrNotFound)
	ErrInvalidKey  = errors.New("invalid geometry key")
)

// Feature is one polygonal feature of a boundary file. Geometry is always an
// orb.Polygon or orb.MultiPolygon.
type Feature struct {
	ID         string
	Geometry   orb.Geometry
	Properties geojson.Properties
	Bound      orb.Bound
}

// Collection is a parsed boundary file. Features are sorted by ID and must be
// treated as read-only; collections are shared between goroutines.
type Collection struct {
	Key      string
	Features []Feature
	Bound    orb.Bound
}

func (c *Collection) Len() int {
	if c == nil {
		return 0
	}
	return len(c.Features)
}

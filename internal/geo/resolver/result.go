package resolver

import (
	"errors"
	"math"

	"github.com/EmpoweredVote/EV-Globe/internal/geo/geometry"
	"github.com/EmpoweredVote/EV-Globe/internal/geo/hierarchy"
	"github.com/EmpoweredVote/EV-Globe/internal/geo/locate"
)

type Method string

const (
	MethodPolygon  Method = "polygon"
	MethodCentroid Method = "centroid"
)

// Failure names the stage that kept a point off the polygon path.
type Failure string

const (
	FailureInvalidCoordinates   Failure = "invalid_coordinates"
	FailureNoCountry            Failure = "no_country"
	FailureMissingGeometry      Failure = "missing_geometry_file"
	FailureMalformedGeometry    Failure = "malformed_geometry"
	FailureNoEnclosingPolygon   Failure = "no_enclosing_polygon"
	FailureHierarchyMismatch    Failure = "hierarchy_mismatch"
	FailureHierarchyUnavailable Failure = "hierarchy_unavailable"
	FailureInternal             Failure = "internal_error"
)

// Result is what Resolve returns. The first five fields are the public
// contract; nil pointers encode as JSON null. For centroid results Reason
// records why the polygon path was abandoned.
type Result struct {
	Found           bool    `json:"found"`
	SubdivisionID   *uint   `json:"subdivisionId"`
	SubdivisionName *string `json:"subdivisionName"`
	Level           *int    `json:"level"`
	Method          *Method `json:"method"`

	HierarchicalID string         `json:"hierarchicalId,omitempty"`
	CountryCode    string         `json:"countryCode,omitempty"`
	IsLowestLevel  bool           `json:"isLowestLevel"`
	Reason         Failure        `json:"reason,omitempty"`
	Tier           hierarchy.Tier `json:"-"`
}

func resolved(row *hierarchy.Subdivision, method Method) Result {
	id, name, level, m := row.ID, row.Name, row.Level, method
	return Result{
		Found:           true,
		SubdivisionID:   &id,
		SubdivisionName: &name,
		Level:           &level,
		Method:          &m,
		HierarchicalID:  row.HierarchicalID,
		CountryCode:     row.CountryCode,
		IsLowestLevel:   row.IsLowestLevel,
	}
}

func unresolved(reason Failure) Result {
	return Result{Found: false, Reason: reason}
}

// Clone copies r so that its pointer fields share nothing with r.
func (r Result) Clone() Result {
	if r.SubdivisionID != nil {
		v := *r.SubdivisionID
		r.SubdivisionID = &v
	}
	if r.SubdivisionName != nil {
		v := *r.SubdivisionName
		r.SubdivisionName = &v
	}
	if r.Level != nil {
		v := *r.Level
		r.Level = &v
	}
	if r.Method != nil {
		v := *r.Method
		r.Method = &v
	}
	return r
}

// MethodString is "" for unresolved results.
func (r Result) MethodString() string {
	if r.Method == nil {
		return ""
	}
	return string(*r.Method)
}

// ValidCoordinates rejects NaN, infinities and out-of-range values.
func ValidCoordinates(lat, lon float64) bool {
	if math.IsNaN(lat) || math.IsNaN(lon) || math.IsInf(lat, 0) || math.IsInf(lon, 0) {
		return false
	}
	return lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180
}

func classify(err error) Failure {
	switch {
	case errors.Is(err, locate.ErrNoCountry):
		return FailureNoCountry
	case errors.Is(err, geometry.ErrMalformed):
		return FailureMalformedGeometry
	case errors.Is(err, locate.ErrNoEnclosingPolygon):
		return FailureNoEnclosingPolygon
	case errors.Is(err, geometry.ErrNotFound):
		return FailureMissingGeometry
	}
	return FailureInternal
}

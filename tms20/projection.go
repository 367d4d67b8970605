package tms20

import (
	"errors"
	"fmt"
	"strings"
)

var ErrUnsupportedProjection = errors.New("unsupported projection")

// Projection is the closed set of coordinate reference systems tile pyramids can be built for.
type Projection int

const (
	// EPSG4326 is geographic WGS84 in latitude, longitude order.
	EPSG4326 Projection = iota + 1
	// EPSG3857 is web mercator.
	EPSG3857
	// CRS84 is geographic WGS84 in longitude, latitude order.
	CRS84
)

func (p Projection) String() string {
	switch p {
	case EPSG4326:
		return "EPSG:4326"
	case EPSG3857:
		return "EPSG:3857"
	case CRS84:
		return "OGC:CRS84"
	default:
		return fmt.Sprintf("Projection(%d)", int(p))
	}
}

// CRSURI returns the OGC URI of the projection's CRS.
func (p Projection) CRSURI() string {
	switch p {
	case EPSG4326:
		return "http://www.opengis.net/def/crs/EPSG/0/4326"
	case EPSG3857:
		return "http://www.opengis.net/def/crs/EPSG/0/3857"
	case CRS84:
		return "http://www.opengis.net/def/crs/OGC/1.3/CRS84"
	default:
		return ""
	}
}

// OrderedAxes returns the axis abbreviations in CRS order.
func (p Projection) OrderedAxes() []string {
	switch p {
	case EPSG4326:
		return []string{"Lat", "Lon"}
	case EPSG3857:
		return []string{"E", "N"}
	case CRS84:
		return []string{"Lon", "Lat"}
	default:
		return nil
	}
}

// Geographic reports whether coordinates of the projection are degrees.
func (p Projection) Geographic() bool {
	return p == EPSG4326 || p == CRS84
}

// ProjectionOf maps a CRS to a supported projection.
func ProjectionOf(crs CRS) (Projection, error) {
	if crs == nil {
		return 0, fmt.Errorf("%w: no crs", ErrUnsupportedProjection)
	}
	p, ok := projectionFor(crs.AuthorityName(), crs.AuthorityCode())
	if !ok {
		return 0, fmt.Errorf("%w: %v:%v", ErrUnsupportedProjection, crs.AuthorityName(), crs.AuthorityCode())
	}
	return p, nil
}

// ParseProjection recognizes a CRS identifier like "EPSG:4326", "urn:ogc:def:crs:OGC:1.3:CRS84"
// or "http://www.opengis.net/def/crs/EPSG/0/3857".
func ParseProjection(s string) (Projection, error) {
	if crs, err := NewURICRS(s); err == nil {
		return ProjectionOf(crs)
	}
	parts := strings.Split(s, ":")
	if len(parts) >= 2 {
		if p, ok := projectionFor(parts[0], parts[len(parts)-1]); ok {
			return p, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnsupportedProjection, s)
}

func projectionFor(authority, code string) (Projection, bool) {
	authority = strings.ToUpper(authority)
	code = strings.ToUpper(code)
	switch {
	case authority == "EPSG" && code == "4326":
		return EPSG4326, true
	case authority == "EPSG" && (code == "3857" || code == "900913"):
		return EPSG3857, true
	case authority == "OGC" && code == "CRS84":
		return CRS84, true
	}
	return 0, false
}

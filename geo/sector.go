// Package geo contains the geographic and cartesian primitives the tile pyramid is
// computed with: sectors, vectors, planes, frusta and 4x4 matrices.
package geo

import (
	"fmt"

	"github.com/go-spatial/geom"
)

// Sector is a geographic bounding rectangle in degrees.
type Sector struct {
	MinLatitude  float64 `yaml:"minLatitude"`
	MaxLatitude  float64 `yaml:"maxLatitude"`
	MinLongitude float64 `yaml:"minLongitude"`
	MaxLongitude float64 `yaml:"maxLongitude"`
}

// FullSphere covers the whole globe.
var FullSphere = Sector{MinLatitude: -90, MaxLatitude: 90, MinLongitude: -180, MaxLongitude: 180}

func NewSector(minLat, maxLat, minLon, maxLon float64) Sector {
	return Sector{MinLatitude: minLat, MaxLatitude: maxLat, MinLongitude: minLon, MaxLongitude: maxLon}
}

// SectorFromExtent turns a lon/lat extent (minx, miny, maxx, maxy) into a Sector.
func SectorFromExtent(e geom.Extent) Sector {
	return Sector{MinLatitude: e.MinY(), MaxLatitude: e.MaxY(), MinLongitude: e.MinX(), MaxLongitude: e.MaxX()}
}

// Extent returns the sector as a lon/lat extent.
func (s Sector) Extent() geom.Extent {
	return geom.Extent{s.MinLongitude, s.MinLatitude, s.MaxLongitude, s.MaxLatitude}
}

func (s Sector) DeltaLatitude() float64 {
	return s.MaxLatitude - s.MinLatitude
}

func (s Sector) DeltaLongitude() float64 {
	return s.MaxLongitude - s.MinLongitude
}

func (s Sector) CentroidLatitude() float64 {
	return 0.5 * (s.MinLatitude + s.MaxLatitude)
}

func (s Sector) CentroidLongitude() float64 {
	return 0.5 * (s.MinLongitude + s.MaxLongitude)
}

// Intersects reports whether the sectors share any point, edges included.
func (s Sector) Intersects(other Sector) bool {
	return s.MinLongitude <= other.MaxLongitude &&
		s.MaxLongitude >= other.MinLongitude &&
		s.MinLatitude <= other.MaxLatitude &&
		s.MaxLatitude >= other.MinLatitude
}

// Overlaps reports whether the sectors share an area, so touching edges do not count.
func (s Sector) Overlaps(other Sector) bool {
	return s.MinLongitude < other.MaxLongitude &&
		s.MaxLongitude > other.MinLongitude &&
		s.MinLatitude < other.MaxLatitude &&
		s.MaxLatitude > other.MinLatitude
}

func (s Sector) ContainsLocation(lat, lon float64) bool {
	return s.MinLatitude <= lat && lat <= s.MaxLatitude &&
		s.MinLongitude <= lon && lon <= s.MaxLongitude
}

func (s Sector) String() string {
	return fmt.Sprintf("(%v, %v) - (%v, %v)", s.MinLatitude, s.MinLongitude, s.MaxLatitude, s.MaxLongitude)
}

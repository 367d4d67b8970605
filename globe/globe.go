// Package globe provides the model of the earth tiles are placed on.
package globe

import (
	"math"
	"time"

	"github.com/pdok/tilepyramid/geo"
)

const (
	WGS84EquatorialRadius = 6378137.0
	WGS84PolarRadius      = 6356752.3142
)

// Globe supplies elevations and cartesian positions to the tile pyramid.
type Globe interface {
	EquatorialRadius() float64
	// MinAndMaxElevationsForSector returns the elevation extremes (meters) within the sector.
	MinAndMaxElevationsForSector(sector geo.Sector) (float64, float64)
	// ComputePointFromPosition returns the model coordinates of a geographic position.
	ComputePointFromPosition(lat, lon, alt float64) geo.Vec3
	SurfaceNormalAtPoint(point geo.Vec3) geo.Vec3
	NorthTangentAtPoint(point geo.Vec3) geo.Vec3
	// ElevationTimestamp changes whenever elevation data becomes available or is replaced.
	ElevationTimestamp() time.Time
}

// ElevationModel supplies terrain heights.
type ElevationModel interface {
	MinAndMaxElevationsForSector(sector geo.Sector) (float64, float64)
	Timestamp() time.Time
}

// ZeroElevationModel is a smooth ellipsoid without terrain.
type ZeroElevationModel struct{}

func (ZeroElevationModel) MinAndMaxElevationsForSector(geo.Sector) (float64, float64) {
	return 0, 0
}

func (ZeroElevationModel) Timestamp() time.Time {
	return time.Time{}
}

// ConstantElevationModel reports the same extremes for every sector.
type ConstantElevationModel struct {
	Min, Max float64
	Updated  time.Time
}

func (m ConstantElevationModel) MinAndMaxElevationsForSector(geo.Sector) (float64, float64) {
	return m.Min, m.Max
}

func (m ConstantElevationModel) Timestamp() time.Time {
	return m.Updated
}

// Ellipsoid is an oblate spheroid globe in y-up model coordinates: the y axis points to the
// north pole, the z axis to (0, 0) and the x axis to (0, 90E).
type Ellipsoid struct {
	equatorialRadius float64
	polarRadius      float64
	eccentricitySq   float64
	elevations       ElevationModel
}

// NewWGS84 returns the WGS84 ellipsoid. A nil elevation model means no terrain.
func NewWGS84(elevations ElevationModel) *Ellipsoid {
	return NewEllipsoid(WGS84EquatorialRadius, WGS84PolarRadius, elevations)
}

func NewEllipsoid(equatorialRadius, polarRadius float64, elevations ElevationModel) *Ellipsoid {
	if elevations == nil {
		elevations = ZeroElevationModel{}
	}
	a2 := equatorialRadius * equatorialRadius
	b2 := polarRadius * polarRadius
	return &Ellipsoid{
		equatorialRadius: equatorialRadius,
		polarRadius:      polarRadius,
		eccentricitySq:   (a2 - b2) / a2,
		elevations:       elevations,
	}
}

func (e *Ellipsoid) EquatorialRadius() float64 {
	return e.equatorialRadius
}

func (e *Ellipsoid) PolarRadius() float64 {
	return e.polarRadius
}

func (e *Ellipsoid) MinAndMaxElevationsForSector(sector geo.Sector) (float64, float64) {
	return e.elevations.MinAndMaxElevationsForSector(sector)
}

func (e *Ellipsoid) ElevationTimestamp() time.Time {
	return e.elevations.Timestamp()
}

func (e *Ellipsoid) ComputePointFromPosition(lat, lon, alt float64) geo.Vec3 {
	cosLat := math.Cos(lat * geo.DegreesToRadians)
	sinLat := math.Sin(lat * geo.DegreesToRadians)
	cosLon := math.Cos(lon * geo.DegreesToRadians)
	sinLon := math.Sin(lon * geo.DegreesToRadians)

	rpm := e.equatorialRadius / math.Sqrt(1-e.eccentricitySq*sinLat*sinLat)
	return geo.Vec3{
		(rpm + alt) * cosLat * sinLon,
		(rpm*(1-e.eccentricitySq) + alt) * sinLat,
		(rpm + alt) * cosLat * cosLon,
	}
}

func (e *Ellipsoid) SurfaceNormalAtPoint(point geo.Vec3) geo.Vec3 {
	a2 := e.equatorialRadius * e.equatorialRadius
	b2 := e.polarRadius * e.polarRadius
	return geo.Vec3{point[0] / a2, point[1] / b2, point[2] / a2}.Normalize()
}

// NorthTangentAtPoint returns the unit vector tangent to the surface and pointing north.
func (e *Ellipsoid) NorthTangentAtPoint(point geo.Vec3) geo.Vec3 {
	n := e.SurfaceNormalAtPoint(point)
	up := geo.Vec3{0, 1, 0}
	return up.Subtract(n.Multiply(up.Dot(n))).Normalize()
}

// ComputePointsForGrid returns numLat*numLon points covering the sector, latitude major and
// starting at the south west corner. elevations holds one value per point, or is nil for
// points on the ellipsoid surface.
func ComputePointsForGrid(g Globe, sector geo.Sector, numLat, numLon int, elevations []float64) []geo.Vec3 {
	points := make([]geo.Vec3, 0, numLat*numLon)
	for i := 0; i < numLat; i++ {
		lat := sector.MinLatitude
		if numLat > 1 {
			lat += float64(i) * sector.DeltaLatitude() / float64(numLat-1)
		}
		for j := 0; j < numLon; j++ {
			lon := sector.MinLongitude
			if numLon > 1 {
				lon += float64(j) * sector.DeltaLongitude() / float64(numLon-1)
			}
			var alt float64
			if elevations != nil {
				alt = elevations[len(points)]
			}
			points = append(points, g.ComputePointFromPosition(lat, lon, alt))
		}
	}
	return points
}

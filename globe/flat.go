package globe

import (
	"time"

	"github.com/pdok/tilepyramid/geo"
)

// Flat is an equirectangular 2D globe: longitude maps to x, latitude to y and altitude to z.
// Angles are scaled by the radius, so a radius of 180/π maps one degree to one unit.
type Flat struct {
	radius     float64
	elevations ElevationModel
}

func NewFlat(radius float64, elevations ElevationModel) *Flat {
	if elevations == nil {
		elevations = ZeroElevationModel{}
	}
	return &Flat{radius: radius, elevations: elevations}
}

func (f *Flat) EquatorialRadius() float64 {
	return f.radius
}

func (f *Flat) MinAndMaxElevationsForSector(sector geo.Sector) (float64, float64) {
	return f.elevations.MinAndMaxElevationsForSector(sector)
}

func (f *Flat) ElevationTimestamp() time.Time {
	return f.elevations.Timestamp()
}

func (f *Flat) ComputePointFromPosition(lat, lon, alt float64) geo.Vec3 {
	return geo.Vec3{
		f.radius * lon * geo.DegreesToRadians,
		f.radius * lat * geo.DegreesToRadians,
		alt,
	}
}

func (f *Flat) SurfaceNormalAtPoint(geo.Vec3) geo.Vec3 {
	return geo.Vec3{0, 0, 1}
}

func (f *Flat) NorthTangentAtPoint(geo.Vec3) geo.Vec3 {
	return geo.Vec3{0, 1, 0}
}

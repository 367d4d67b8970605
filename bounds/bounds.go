// Package bounds implements the oriented bounding box used to cull tiles against the view frustum.
package bounds

import (
	"math"
	"sort"

	"github.com/pdok/tilepyramid/geo"
	"github.com/pdok/tilepyramid/globe"
)

// BoundingBox is an oriented box. R, S and T are its axes scaled to the box dimensions,
// R being the longest and T the shortest.
type BoundingBox struct {
	Center       geo.Vec3
	BottomCenter geo.Vec3
	TopCenter    geo.Vec3
	R, S, T      geo.Vec3
	Radius       float64
}

// cornerElevation selects which of the 3x3 sample points get the minimum elevation.
var cornerElevation = [9]bool{true, false, true, false, false, false, true, false, true}

// FromSector returns a box enclosing the terrain of sector between the two elevations (meters).
func FromSector(sector geo.Sector, g globe.Globe, minElevation, maxElevation float64) *BoundingBox {
	elevations := make([]float64, 9)
	for i, corner := range cornerElevation {
		if corner {
			elevations[i] = minElevation
		} else {
			elevations[i] = maxElevation
		}
	}
	points := globe.ComputePointsForGrid(g, sector, 3, 3, elevations)

	// a sector wider than a hemisphere bulges beyond its sample points
	if sector.DeltaLongitude() > 180 {
		lon := sector.CentroidLongitude()
		lat := sector.CentroidLatitude()
		points = append(points,
			g.ComputePointFromPosition(lat, lon+90, maxElevation),
			g.ComputePointFromPosition(lat, lon-90, maxElevation))
	}

	centroid := points[4]
	z := g.SurfaceNormalAtPoint(centroid)
	y := g.NorthTangentAtPoint(centroid)
	x := y.Cross(z).Normalize()
	y = z.Cross(x).Normalize()

	return fromPoints(points, [3]geo.Vec3{x, y, z})
}

type axisExtent struct {
	unit     geo.Vec3
	min, max float64
}

func (a axisExtent) length() float64 {
	return a.max - a.min
}

func fromPoints(points []geo.Vec3, axes [3]geo.Vec3) *BoundingBox {
	extents := make([]axisExtent, 3)
	for i, axis := range axes {
		e := axisExtent{unit: axis, min: math.Inf(1), max: math.Inf(-1)}
		for _, p := range points {
			d := p.Dot(axis)
			e.min = math.Min(e.min, d)
			e.max = math.Max(e.max, d)
		}
		extents[i] = e
	}
	sort.SliceStable(extents, func(i, j int) bool {
		return extents[i].length() > extents[j].length()
	})

	var center geo.Vec3
	for _, e := range extents {
		center = center.Add(e.unit.Multiply(0.5 * (e.min + e.max)))
	}
	r, s, t := extents[0], extents[1], extents[2]
	halfR := r.unit.Multiply(0.5 * r.length())

	return &BoundingBox{
		Center:       center,
		BottomCenter: center.Subtract(halfR),
		TopCenter:    center.Add(halfR),
		R:            r.unit.Multiply(r.length()),
		S:            s.unit.Multiply(s.length()),
		T:            t.unit.Multiply(t.length()),
		Radius:       0.5 * math.Sqrt(r.length()*r.length()+s.length()*s.length()+t.length()*t.length()),
	}
}

// EffectiveRadius is the radius of the box's projection on the plane normal, ignoring the R axis.
func (b *BoundingBox) EffectiveRadius(plane geo.Plane) float64 {
	return 0.5 * (math.Abs(b.S.Dot(plane.Normal)) + math.Abs(b.T.Dot(plane.Normal)))
}

// IntersectsFrustum reports whether the box may be inside the frustum. The test is conservative:
// a box outside but close to a frustum corner can be reported as intersecting.
func (b *BoundingBox) IntersectsFrustum(frustum geo.Frustum) bool {
	p1, p2 := b.BottomCenter, b.TopCenter
	for _, plane := range frustum.Planes {
		if !intersectsAt(plane, b.EffectiveRadius(plane), &p1, &p2) {
			return false
		}
	}
	return true
}

// intersectsAt clips the segment p1-p2 to the inner side of plane widened by effRadius.
// It returns false when the whole segment lies outside.
func intersectsAt(plane geo.Plane, effRadius float64, p1, p2 *geo.Vec3) bool {
	dq1 := plane.Dot(*p1)
	out1 := dq1 <= -effRadius
	dq2 := plane.Dot(*p2)
	out2 := dq2 <= -effRadius

	if out1 && out2 {
		return false
	}
	if out1 == out2 {
		return true
	}

	t := (effRadius + dq1) / plane.Normal.Dot(p1.Subtract(*p2))
	clipped := p1.Add(p2.Subtract(*p1).Multiply(t))
	if out1 {
		*p1 = clipped
	} else {
		*p2 = clipped
	}
	return true
}

// DistanceTo returns the distance from point to the box's bounding sphere, zero when inside.
func (b *BoundingBox) DistanceTo(point geo.Vec3) float64 {
	return math.Max(0, b.Center.DistanceTo(point)-b.Radius)
}

// Corners returns the eight corners of the box.
func (b *BoundingBox) Corners() [8]geo.Vec3 {
	var corners [8]geo.Vec3
	halfS := b.S.Multiply(0.5)
	halfT := b.T.Multiply(0.5)
	i := 0
	for _, end := range []geo.Vec3{b.BottomCenter, b.TopCenter} {
		for _, ds := range []float64{-1, 1} {
			for _, dt := range []float64{-1, 1} {
				corners[i] = end.Add(halfS.Multiply(ds)).Add(halfT.Multiply(dt))
				i++
			}
		}
	}
	return corners
}

package bounds

import (
	"math"
	"math/rand"
	"testing"

	"github.com/pdok/tilepyramid/geo"
	"github.com/pdok/tilepyramid/globe"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// degreeGlobe maps one degree to one unit
var degreeGlobe = globe.NewFlat(180/math.Pi, nil)

func assertVecInDelta(t *testing.T, expected, actual geo.Vec3, delta float64) {
	t.Helper()
	for i := range expected {
		assert.InDelta(t, expected[i], actual[i], delta, "component %d of %v", i, actual)
	}
}

// contains reports whether the point lies inside the box, within tolerance.
func contains(b *BoundingBox, p geo.Vec3, tolerance float64) bool {
	d := p.Subtract(b.Center)
	for _, axis := range []geo.Vec3{b.R, b.S, b.T} {
		length := axis.Magnitude()
		if length == 0 {
			if math.Abs(d.Dot(b.R.Cross(b.S).Normalize())) > tolerance {
				return false
			}
			continue
		}
		if math.Abs(d.Dot(axis.Normalize())) > length/2+tolerance {
			return false
		}
	}
	return true
}

func TestFromSector_Flat(t *testing.T) {
	b := FromSector(geo.NewSector(0, 10, 20, 40), degreeGlobe, 0, 0)

	assertVecInDelta(t, geo.Vec3{30, 5, 0}, b.Center, 1e-9)
	assertVecInDelta(t, geo.Vec3{20, 5, 0}, b.BottomCenter, 1e-9)
	assertVecInDelta(t, geo.Vec3{40, 5, 0}, b.TopCenter, 1e-9)
	assertVecInDelta(t, geo.Vec3{20, 0, 0}, b.R, 1e-9)
	assertVecInDelta(t, geo.Vec3{0, 10, 0}, b.S, 1e-9)
	assertVecInDelta(t, geo.Vec3{0, 0, 0}, b.T, 1e-9)
	assert.InDelta(t, 0.5*math.Sqrt(500), b.Radius, 1e-9)
}

func TestFromSector_AxesOrderedByLength(t *testing.T) {
	b := FromSector(geo.NewSector(0, 40, 0, 10), degreeGlobe, 0, 25)

	assert.InDelta(t, 40, b.R.Magnitude(), 1e-9)
	assert.InDelta(t, 25, b.S.Magnitude(), 1e-9)
	assert.InDelta(t, 10, b.T.Magnitude(), 1e-9)
	assertVecInDelta(t, geo.Vec3{5, 20, 12.5}, b.Center, 1e-9)
	assertVecInDelta(t, geo.Vec3{5, 0, 12.5}, b.BottomCenter, 1e-9)
	assertVecInDelta(t, geo.Vec3{5, 40, 12.5}, b.TopCenter, 1e-9)
}

func TestFromSector_EllipsoidEnclosesSurface(t *testing.T) {
	e := globe.NewWGS84(nil)
	sector := geo.NewSector(50, 54, 3, 8)
	b := FromSector(sector, e, 0, 0)

	rnd := rand.New(rand.NewSource(42))
	for i := 0; i < 200; i++ {
		lat := sector.MinLatitude + rnd.Float64()*sector.DeltaLatitude()
		lon := sector.MinLongitude + rnd.Float64()*sector.DeltaLongitude()
		p := e.ComputePointFromPosition(lat, lon, 0)
		assert.True(t, contains(b, p, 1), "(%v, %v) outside box", lat, lon)
	}
}

func TestFromSector_FullSphere(t *testing.T) {
	e := globe.NewWGS84(nil)
	b := FromSector(geo.FullSphere, e, 0, 0)

	assert.InDelta(t, 2*globe.WGS84EquatorialRadius, b.R.Magnitude(), 1)
	assert.InDelta(t, 2*globe.WGS84EquatorialRadius, b.S.Magnitude(), 1)
	assert.InDelta(t, 2*globe.WGS84PolarRadius, b.T.Magnitude(), 1)
	assertVecInDelta(t, geo.Zero, b.Center, 1)

	for _, p := range []geo.Vec3{
		e.ComputePointFromPosition(0, 90, 0),
		e.ComputePointFromPosition(0, -90, 0),
		e.ComputePointFromPosition(0, 180, 0),
		e.ComputePointFromPosition(90, 0, 0),
		e.ComputePointFromPosition(-45, 135, 0),
	} {
		assert.True(t, contains(b, p, 1), "%v outside box", p)
	}
}

func TestIntersectsFrustum_Planes(t *testing.T) {
	b := FromSector(geo.NewSector(0, 10, 20, 40), degreeGlobe, 0, 0)
	tests := []struct {
		name       string
		planes     []geo.Plane
		intersects bool
	}{
		{name: "no planes", planes: nil, intersects: true},
		{name: "x >= 50", planes: []geo.Plane{geo.NewPlane(1, 0, 0, -50)}, intersects: false},
		{name: "x <= 35", planes: []geo.Plane{geo.NewPlane(-1, 0, 0, 35)}, intersects: true},
		{name: "x <= 20", planes: []geo.Plane{geo.NewPlane(-1, 0, 0, 20)}, intersects: false},
		{name: "y >= 12", planes: []geo.Plane{geo.NewPlane(0, 1, 0, -12)}, intersects: false},
		{name: "y >= 9", planes: []geo.Plane{geo.NewPlane(0, 1, 0, -9)}, intersects: true},
		{
			name: "clipped by the first plane, rejected by the second",
			planes: []geo.Plane{
				geo.NewPlane(-1, 0, 0, 25), // x <= 25
				geo.NewPlane(1, 1, 0, -40), // x + y >= 40
			},
			intersects: false,
		},
		{
			name: "corner inside both",
			planes: []geo.Plane{
				geo.NewPlane(-1, 0, 0, 25),
				geo.NewPlane(1, 1, 0, -30),
			},
			intersects: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.intersects, b.IntersectsFrustum(geo.Frustum{Planes: tt.planes}))
		})
	}
}

// A box with any corner inside the frustum must never be culled.
func TestIntersectsFrustum_NoFalseNegatives(t *testing.T) {
	view := geo.LookAt(geo.Vec3{0, 0, 50}, geo.Zero, geo.Vec3{0, 1, 0})
	frustum := geo.FrustumFromMatrix(geo.Perspective(45, 1.5, 1, 200).Multiply(view))

	rnd := rand.New(rand.NewSource(7))
	visible := 0
	for i := 0; i < 500; i++ {
		minLat := rnd.Float64()*120 - 60
		minLon := rnd.Float64()*120 - 60
		sector := geo.NewSector(minLat, minLat+rnd.Float64()*30, minLon, minLon+rnd.Float64()*30)
		b := FromSector(sector, degreeGlobe, 0, rnd.Float64()*20)

		cornerInside := false
		for _, c := range b.Corners() {
			if frustum.ContainsPoint(c) {
				cornerInside = true
				break
			}
		}
		if cornerInside {
			visible++
			assert.True(t, b.IntersectsFrustum(frustum), "box for %v culled", sector)
		}
	}
	require.Greater(t, visible, 0)
}

func TestIntersectsFrustum_FarAwayCulled(t *testing.T) {
	view := geo.LookAt(geo.Vec3{0, 0, 50}, geo.Zero, geo.Vec3{0, 1, 0})
	frustum := geo.FrustumFromMatrix(geo.Perspective(45, 1, 1, 200).Multiply(view))

	assert.True(t, FromSector(geo.NewSector(-5, 5, -5, 5), degreeGlobe, 0, 1).IntersectsFrustum(frustum))
	assert.False(t, FromSector(geo.NewSector(60, 80, 60, 80), degreeGlobe, 0, 1).IntersectsFrustum(frustum))
	assert.False(t, FromSector(geo.NewSector(-5, 5, 100, 120), degreeGlobe, 0, 1).IntersectsFrustum(frustum))
}

func TestDistanceTo(t *testing.T) {
	b := FromSector(geo.NewSector(0, 10, 20, 40), degreeGlobe, 0, 0)
	assert.Zero(t, b.DistanceTo(b.Center))
	assert.InDelta(t, 100-b.Radius, b.DistanceTo(b.Center.Add(geo.Vec3{0, 0, 100})), 1e-9)
}

func TestCorners(t *testing.T) {
	b := FromSector(geo.NewSector(0, 10, 20, 40), degreeGlobe, 0, 4)
	corners := b.Corners()
	for _, c := range corners {
		assert.True(t, contains(b, c, 1e-9))
	}
	assertVecInDelta(t, geo.Vec3{20, 0, 0}, corners[0], 1e-9)
	assertVecInDelta(t, geo.Vec3{40, 10, 4}, corners[7], 1e-9)
}

package geo

import (
	"math"
	"testing"

	"github.com/go-spatial/geom"
	"github.com/stretchr/testify/assert"
)

func TestSector(t *testing.T) {
	s := NewSector(-10, 30, 20, 60)
	assert.Equal(t, 40.0, s.DeltaLatitude())
	assert.Equal(t, 40.0, s.DeltaLongitude())
	assert.Equal(t, 10.0, s.CentroidLatitude())
	assert.Equal(t, 40.0, s.CentroidLongitude())
	assert.Equal(t, geom.Extent{20, -10, 60, 30}, s.Extent())
	assert.Equal(t, s, SectorFromExtent(s.Extent()))
	assert.True(t, s.ContainsLocation(30, 20))
	assert.False(t, s.ContainsLocation(31, 20))
}

func TestSector_Intersects(t *testing.T) {
	s := NewSector(0, 10, 0, 10)
	tests := []struct {
		name       string
		other      Sector
		intersects bool
		overlaps   bool
	}{
		{name: "inside", other: NewSector(2, 3, 2, 3), intersects: true, overlaps: true},
		{name: "touching edge", other: NewSector(10, 20, 0, 10), intersects: true, overlaps: false},
		{name: "touching corner", other: NewSector(-5, 0, -5, 0), intersects: true, overlaps: false},
		{name: "disjoint", other: NewSector(11, 20, 0, 10), intersects: false, overlaps: false},
		{name: "covering", other: FullSphere, intersects: true, overlaps: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.intersects, s.Intersects(tt.other))
			assert.Equal(t, tt.intersects, tt.other.Intersects(s))
			assert.Equal(t, tt.overlaps, s.Overlaps(tt.other))
		})
	}
}

func TestVec3(t *testing.T) {
	x := Vec3{1, 0, 0}
	y := Vec3{0, 1, 0}
	assert.Equal(t, Vec3{0, 0, 1}, x.Cross(y))
	assert.Equal(t, 0.0, x.Dot(y))
	assert.Equal(t, Vec3{1, 1, 0}, x.Add(y))
	assert.Equal(t, Vec3{1, -1, 0}, x.Subtract(y))
	assert.Equal(t, 5.0, Vec3{3, 4, 0}.Magnitude())
	assert.InDelta(t, 1.0, Vec3{3, 4, 12}.Normalize().Magnitude(), 1e-12)
	assert.Equal(t, Zero, Zero.Normalize())
	assert.Equal(t, 5.0, Vec3{1, 1, 1}.DistanceTo(Vec3{4, 5, 1}))
}

func TestPlane(t *testing.T) {
	p := NewPlane(0, 2, 0, -4) // y = 2
	assert.Equal(t, Vec3{0, 1, 0}, p.Normal)
	assert.Equal(t, -2.0, p.Distance)
	assert.Equal(t, 1.0, p.Dot(Vec3{5, 3, 5}))
	assert.Equal(t, -2.0, p.Dot(Vec3{0, 0, 0}))
}

func TestMatrix_Multiply(t *testing.T) {
	m := Matrix{
		1, 2, 3, 4,
		5, 6, 7, 8,
		9, 10, 11, 12,
		13, 14, 15, 16,
	}
	assert.Equal(t, m, m.Multiply(Identity))
	assert.Equal(t, m, Identity.Multiply(m))
	assert.Equal(t, [4]float64{4, 8, 12, 16}, m.TransformPoint(Zero))
}

func TestFrustumFromMatrix(t *testing.T) {
	eye := Vec3{0, 0, 10}
	view := LookAt(eye, Zero, Vec3{0, 1, 0})
	proj := Perspective(90, 1, 1, 100)
	f := FrustumFromMatrix(proj.Multiply(view))

	assert.Len(t, f.Planes, 6)
	for _, p := range f.Planes {
		assert.InDelta(t, 1.0, p.Normal.Magnitude(), 1e-9)
	}
	assert.True(t, f.ContainsPoint(Zero))
	assert.True(t, f.ContainsPoint(Vec3{4, 4, 0}))
	assert.False(t, f.ContainsPoint(Vec3{11, 0, 0}), "outside the 90 degree cone")
	assert.False(t, f.ContainsPoint(Vec3{0, 0, 9.5}), "in front of the near plane")
	assert.False(t, f.ContainsPoint(Vec3{0, 0, -100}), "beyond the far plane")
	assert.False(t, f.ContainsPoint(Vec3{0, 0, 20}), "behind the eye")
}

func TestMercator(t *testing.T) {
	tests := []struct {
		lat, lon float64
	}{
		{0, 0},
		{52.1, 5.3},
		{-33.9, 151.2},
		{MaxMercatorLatitude, 180},
		{-MaxMercatorLatitude, -180},
	}
	for _, tt := range tests {
		x, y := GeographicToMercator(tt.lat, tt.lon)
		lat, lon := MercatorToGeographic(x, y)
		assert.InDelta(t, tt.lat, lat, 1e-9)
		assert.InDelta(t, tt.lon, lon, 1e-9)
	}

	x, y := GeographicToMercator(MaxMercatorLatitude, 180)
	assert.InDelta(t, 20037508.342789244, x, 1e-6)
	assert.InDelta(t, 20037508.342789244, y, 1e-3)

	_, y = GeographicToMercator(89.9, 0)
	assert.InDelta(t, 20037508.342789244, y, 1e-3, "clamped to the mercator square")

	assert.InDelta(t, 0, GudermannianInverse(0), 1e-12)
	assert.InDelta(t, 1, GudermannianInverse(MaxMercatorLatitude), 1e-9)
	assert.False(t, math.IsNaN(GudermannianInverse(-45)))
}

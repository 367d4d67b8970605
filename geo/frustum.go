package geo

// Plane is the set of points p for which Normal·p + Distance == 0.
// Points with a positive Dot lie on the inner side.
type Plane struct {
	Normal   Vec3
	Distance float64
}

// NewPlane returns the plane a*x + b*y + c*z + d = 0, normalized.
func NewPlane(a, b, c, d float64) Plane {
	n := Vec3{a, b, c}
	m := n.Magnitude()
	if m == 0 {
		return Plane{Normal: n, Distance: d}
	}
	return Plane{Normal: n.Multiply(1 / m), Distance: d / m}
}

// Dot returns the signed distance of point p to the plane.
func (p Plane) Dot(point Vec3) float64 {
	return p.Normal.Dot(point) + p.Distance
}

// Frustum is the ordered list of planes bounding the view volume. Their normals point inwards.
type Frustum struct {
	Planes []Plane
}

// FrustumFromMatrix extracts the left, right, bottom, top, near and far planes of a
// model-view-projection matrix.
func FrustumFromMatrix(m Matrix) Frustum {
	r0 := [4]float64{m[0], m[1], m[2], m[3]}
	r1 := [4]float64{m[4], m[5], m[6], m[7]}
	r2 := [4]float64{m[8], m[9], m[10], m[11]}
	r3 := [4]float64{m[12], m[13], m[14], m[15]}
	plane := func(a, b [4]float64, sign float64) Plane {
		return NewPlane(a[0]+sign*b[0], a[1]+sign*b[1], a[2]+sign*b[2], a[3]+sign*b[3])
	}
	return Frustum{Planes: []Plane{
		plane(r3, r0, 1),  // left
		plane(r3, r0, -1), // right
		plane(r3, r1, 1),  // bottom
		plane(r3, r1, -1), // top
		plane(r3, r2, 1),  // near
		plane(r3, r2, -1), // far
	}}
}

// ContainsPoint reports whether the point is on the inner side of every plane.
func (f Frustum) ContainsPoint(point Vec3) bool {
	for _, p := range f.Planes {
		if p.Dot(point) < 0 {
			return false
		}
	}
	return true
}

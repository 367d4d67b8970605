package geo

import "math"

// Matrix is a 4x4 matrix in row-major order, applied to column vectors.
type Matrix [16]float64

var Identity = Matrix{
	1, 0, 0, 0,
	0, 1, 0, 0,
	0, 0, 1, 0,
	0, 0, 0, 1,
}

// Multiply returns m * o.
func (m Matrix) Multiply(o Matrix) Matrix {
	var r Matrix
	for row := 0; row < 4; row++ {
		for col := 0; col < 4; col++ {
			var sum float64
			for k := 0; k < 4; k++ {
				sum += m[row*4+k] * o[k*4+col]
			}
			r[row*4+col] = sum
		}
	}
	return r
}

// TransformPoint applies m to the point (x, y, z, 1) and returns the homogeneous result.
func (m Matrix) TransformPoint(p Vec3) [4]float64 {
	var r [4]float64
	for row := 0; row < 4; row++ {
		r[row] = m[row*4]*p[0] + m[row*4+1]*p[1] + m[row*4+2]*p[2] + m[row*4+3]
	}
	return r
}

// LookAt returns a viewing matrix for an eye looking at center with the given up direction.
func LookAt(eye, center, up Vec3) Matrix {
	f := center.Subtract(eye).Normalize()
	s := f.Cross(up).Normalize()
	u := s.Cross(f)
	return Matrix{
		s[0], s[1], s[2], -s.Dot(eye),
		u[0], u[1], u[2], -u.Dot(eye),
		-f[0], -f[1], -f[2], f.Dot(eye),
		0, 0, 0, 1,
	}
}

// Perspective returns a projection matrix. fovy is the vertical field of view in degrees.
func Perspective(fovy, aspect, near, far float64) Matrix {
	f := 1 / math.Tan(fovy*DegreesToRadians/2)
	return Matrix{
		f / aspect, 0, 0, 0,
		0, f, 0, 0,
		0, 0, (far + near) / (near - far), 2 * far * near / (near - far),
		0, 0, -1, 0,
	}
}

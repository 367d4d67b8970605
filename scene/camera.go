// Package scene positions a camera above a globe and derives what a frame is drawn for.
package scene

import (
	"math"

	"github.com/pdok/tilepyramid/geo"
	"github.com/pdok/tilepyramid/globe"
	"github.com/pdok/tilepyramid/mathhelp"
)

const (
	DefaultFieldOfView = 45.0
	minAltitude        = 1.0
)

// Camera looks straight down at a geographic position from an altitude in meters.
type Camera struct {
	globe          globe.Globe
	stateKey       uint64
	latitude       float64
	longitude      float64
	altitude       float64
	fieldOfView    float64
	viewportWidth  int
	viewportHeight int
	exaggeration   float64
}

// NewCamera returns a camera with a 45 degree vertical field of view and no vertical exaggeration.
func NewCamera(g globe.Globe, viewportWidth, viewportHeight int) *Camera {
	return &Camera{
		globe:          g,
		stateKey:       1,
		altitude:       minAltitude,
		fieldOfView:    DefaultFieldOfView,
		viewportWidth:  max(viewportWidth, 1),
		viewportHeight: max(viewportHeight, 1),
		exaggeration:   1,
	}
}

// MoveTo places the camera above lat, lon at altitude meters.
func (c *Camera) MoveTo(lat, lon, altitude float64) {
	c.latitude = mathhelp.Clamp(lat, -90, 90)
	c.longitude = mathhelp.Clamp(lon, -180, 180)
	c.altitude = math.Max(altitude, minAltitude)
}

// SetFieldOfView sets the vertical field of view in degrees.
func (c *Camera) SetFieldOfView(degrees float64) {
	c.fieldOfView = mathhelp.Clamp(degrees, 1, 179)
}

func (c *Camera) SetVerticalExaggeration(ve float64) {
	c.exaggeration = ve
}

// SetGlobe replaces the globe, which changes the globe state key.
func (c *Camera) SetGlobe(g globe.Globe) {
	c.globe = g
	c.stateKey++
}

func (c *Camera) Position() (lat, lon, altitude float64) {
	return c.latitude, c.longitude, c.altitude
}

func (c *Camera) Globe() globe.Globe {
	return c.globe
}

func (c *Camera) GlobeStateKey() uint64 {
	return c.stateKey
}

func (c *Camera) VerticalExaggeration() float64 {
	return c.exaggeration
}

func (c *Camera) EyePoint() geo.Vec3 {
	return c.globe.ComputePointFromPosition(c.latitude, c.longitude, c.altitude)
}

// PixelSizeAtDistance returns the size in meters of a pixel at distance meters from the eye.
func (c *Camera) PixelSizeAtDistance(distance float64) float64 {
	return 2 * distance * math.Tan(c.fieldOfView*geo.DegreesToRadians/2) / float64(c.viewportHeight)
}

func (c *Camera) Modelview() geo.Matrix {
	center := c.globe.ComputePointFromPosition(c.latitude, c.longitude, 0)
	return geo.LookAt(c.EyePoint(), center, c.globe.NorthTangentAtPoint(center))
}

// Projection has its near plane close to the eye and its far plane beyond the horizon.
func (c *Camera) Projection() geo.Matrix {
	r := c.globe.EquatorialRadius()
	horizon := math.Sqrt(c.altitude * (2*r + c.altitude))
	near := math.Max(c.altitude*1e-3, minAltitude)
	far := 2 * math.Max(horizon, c.altitude)
	return geo.Perspective(c.fieldOfView, float64(c.viewportWidth)/float64(c.viewportHeight), near, far)
}

func (c *Camera) ModelviewProjection() geo.Matrix {
	return c.Projection().Multiply(c.Modelview())
}

func (c *Camera) Frustum() geo.Frustum {
	return geo.FrustumFromMatrix(c.ModelviewProjection())
}

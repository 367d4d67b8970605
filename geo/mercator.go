package geo

import (
	"math"

	"github.com/pdok/tilepyramid/mathhelp"
)

const (
	DegreesToRadians = math.Pi / 180
	RadiansToDegrees = 180 / math.Pi

	// WebMercatorRadius is the sphere radius of EPSG:3857, in meters.
	WebMercatorRadius = 6378137.0
	// MaxMercatorLatitude is the latitude at which the web mercator square ends.
	MaxMercatorLatitude = 85.0511287798066
)

// MercatorToGeographic converts EPSG:3857 easting/northing (meters) to latitude/longitude (degrees).
func MercatorToGeographic(easting, northing float64) (lat, lon float64) {
	latRadians := math.Pi/2 - 2*math.Atan(math.Exp(-northing/WebMercatorRadius))
	lonRadians := easting / WebMercatorRadius
	return mathhelp.Clamp(latRadians*RadiansToDegrees, -90, 90),
		mathhelp.Clamp(lonRadians*RadiansToDegrees, -180, 180)
}

// GeographicToMercator converts latitude/longitude (degrees) to EPSG:3857 easting/northing (meters).
// Latitudes are clamped to the mercator square.
func GeographicToMercator(lat, lon float64) (easting, northing float64) {
	lat = mathhelp.Clamp(lat, -MaxMercatorLatitude, MaxMercatorLatitude)
	easting = lon * DegreesToRadians * WebMercatorRadius
	northing = math.Log(math.Tan(math.Pi/4+lat*DegreesToRadians/2)) * WebMercatorRadius
	return easting, northing
}

// GudermannianInverse maps a latitude (degrees) to its normalized mercator ordinate.
func GudermannianInverse(lat float64) float64 {
	return math.Log(math.Tan(math.Pi/4+lat*DegreesToRadians/2)) / math.Pi
}

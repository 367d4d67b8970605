package tile

import (
	"math"
	"strconv"
	"time"

	"github.com/pdok/tilepyramid/bounds"
	"github.com/pdok/tilepyramid/geo"
	"github.com/pdok/tilepyramid/geomhelp"
	"github.com/pdok/tilepyramid/globe"
)

// Tile is one addressable image of the pyramid.
type Tile struct {
	Sector geo.Sector
	Level  *Level
	Row    int
	Column int
	// ImagePath keys the tile's texture and retrievals
	ImagePath string
	// TileKey is "level.row.column" and keys the tile's children
	TileKey string
	// TexelSize is the angular size of a texel in radians
	TexelSize float64

	// Extent encloses the terrain under the tile, it is set by Update
	Extent         *bounds.BoundingBox
	ReferencePoint geo.Vec3
	samplePoints   []geo.Vec3

	// FallbackTile is the ancestor displayed instead of this tile during the current frame
	FallbackTile *Tile

	updated                    bool
	updateTimestamp            time.Time
	updateVerticalExaggeration float64
	updateGlobeStateKey        uint64
}

// New returns a tile of level at row and column covering sector.
func New(sector geo.Sector, level *Level, row, column int, imagePath string) *Tile {
	return &Tile{
		Sector:    sector,
		Level:     level,
		Row:       row,
		Column:    column,
		ImagePath: imagePath,
		TileKey:   Key(level.Number, row, column),
		TexelSize: sector.DeltaLatitude() * geo.DegreesToRadians / float64(level.TileHeight),
	}
}

// Key identifies a tile within its level set.
func Key(level, row, column int) string {
	return strconv.Itoa(level) + "." + strconv.Itoa(row) + "." + strconv.Itoa(column)
}

func (t *Tile) String() string {
	return t.TileKey
}

// Update recomputes the extent and sample points when the elevations, the vertical exaggeration
// or the globe state changed since the previous update. It reports whether it did.
func (t *Tile) Update(g globe.Globe, verticalExaggeration float64, globeStateKey uint64) bool {
	timestamp := g.ElevationTimestamp()
	if t.updated &&
		t.updateTimestamp.Equal(timestamp) &&
		t.updateVerticalExaggeration == verticalExaggeration &&
		t.updateGlobeStateKey == globeStateKey {
		return false
	}

	minElevation, maxElevation := g.MinAndMaxElevationsForSector(t.Sector)
	minHeight := minElevation * verticalExaggeration
	maxHeight := maxElevation * verticalExaggeration
	if minHeight == maxHeight {
		maxHeight = minHeight + 10
	}

	t.Extent = bounds.FromSector(t.Sector, g, minHeight, maxHeight)

	midHeight := 0.5 * (minHeight + maxHeight)
	elevations := []float64{midHeight, midHeight, midHeight, midHeight, midHeight, midHeight, midHeight, midHeight, midHeight}
	t.samplePoints = globe.ComputePointsForGrid(g, t.Sector, 3, 3, elevations)
	t.ReferencePoint = g.ComputePointFromPosition(t.Sector.CentroidLatitude(), t.Sector.CentroidLongitude(), 0)

	t.updated = true
	t.updateTimestamp = timestamp
	t.updateVerticalExaggeration = verticalExaggeration
	t.updateGlobeStateKey = globeStateKey
	return true
}

// DistanceTo returns the smallest distance between point and the tile's sample points.
// It is infinite before the first Update.
func (t *Tile) DistanceTo(point geo.Vec3) float64 {
	distance := math.Inf(1)
	for _, p := range t.samplePoints {
		distance = math.Min(distance, p.DistanceTo(point))
	}
	return distance
}

// View is what the level of detail of a tile depends on.
type View interface {
	EyePoint() geo.Vec3
	// PixelSizeAtDistance returns the size in meters of a screen pixel at distance meters from the eye
	PixelSizeAtDistance(distance float64) float64
}

// MustSubdivide reports whether a texel of this tile appears larger than detailFactor pixels.
func (t *Tile) MustSubdivide(v View, equatorialRadius, detailFactor float64) bool {
	cellSize := equatorialRadius * t.TexelSize
	pixelSize := v.PixelSizeAtDistance(t.DistanceTo(v.EyePoint()))
	return cellSize > math.Max(detailFactor*pixelSize, 0.5)
}

// WKT returns the tile's sector as a polygon in lon/lat, truncated to maxLen characters unless maxLen is 0.
func (t *Tile) WKT(maxLen uint) string {
	return geomhelp.WktMustEncode(geomhelp.ExtentToPolygon(t.Sector.Extent()), maxLen)
}

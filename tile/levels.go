// Package tile models the levels of a tile pyramid and the tiles in them.
package tile

import (
	"errors"
	"fmt"

	"github.com/pdok/tilepyramid/geo"
	"github.com/pdok/tilepyramid/mathhelp"
	"github.com/pdok/tilepyramid/tms20"
)

var (
	ErrEmptyTileMatrixSet      = errors.New("empty tile matrix set")
	ErrIncompatibleSubdivision = errors.New("tile matrix set level division not compatible")
	ErrNonContiguousLevels     = errors.New("tile matrix set levels are not contiguous")
	ErrMissingBoundingBox      = errors.New("no bounding box in the layer or tile matrix set")
	ErrUnsupportedTileMatrix   = errors.New("unsupported tile matrix")
)

// Level is one resolution tier of the pyramid.
type Level struct {
	// Number is the position in the level set, 0 being the coarsest
	Number int
	// Zoom is the tile matrix number in the tile matrix set
	Zoom int
	// ID is the tile matrix identifier, used in image paths and requests
	ID               string
	MatrixWidth      int
	MatrixHeight     int
	TileWidth        int
	TileHeight       int
	TopLeftCorner    tms20.TwoDPoint
	ScaleDenominator float64
}

func (l *Level) String() string {
	return fmt.Sprintf("%d (%s, %dx%d)", l.Number, l.ID, l.MatrixWidth, l.MatrixHeight)
}

// LevelSet is a tile matrix set prepared for traversal: ordered levels where every level
// doubles the matrix dimensions of the previous one.
type LevelSet struct {
	ID         string
	Projection tms20.Projection
	// Sector covered by the layer
	Sector geo.Sector
	Levels []*Level
}

// NewLevelSet checks that tms can be traversed as a quad tree and resolves the sector it covers.
// A non-nil sector overrides the bounding box of tms.
func NewLevelSet(tms tms20.TileMatrixSet, sector *geo.Sector) (*LevelSet, error) {
	if len(tms.TileMatrices) == 0 {
		return nil, ErrEmptyTileMatrixSet
	}
	projection, err := tms.Projection()
	if err != nil {
		return nil, err
	}

	numbers := tms.LevelNumbers()
	levels := make([]*Level, 0, len(numbers))
	for i, tm := range tms.Levels() {
		if numbers[i] != numbers[0]+i {
			return nil, fmt.Errorf("%w: %v follows %v", ErrNonContiguousLevels, numbers[i], numbers[i-1])
		}
		if tm.CornerOfOrigin == tms20.BottomLeft || len(tm.VariableMatrixWidths) > 0 {
			return nil, fmt.Errorf("%w: %s has a bottom left origin or variable matrix widths", ErrUnsupportedTileMatrix, tm.ID)
		}
		levels = append(levels, &Level{
			Number:           i,
			Zoom:             numbers[i],
			ID:               tm.ID,
			MatrixWidth:      int(tm.MatrixWidth),
			MatrixHeight:     int(tm.MatrixHeight),
			TileWidth:        int(tm.TileWidth),
			TileHeight:       int(tm.TileHeight),
			TopLeftCorner:    tm.PointOfOrigin,
			ScaleDenominator: tm.ScaleDenominator,
		})
	}
	if err = checkSubdivision(levels); err != nil {
		return nil, err
	}

	ls := &LevelSet{ID: tms.ID, Projection: projection, Levels: levels}
	if sector != nil {
		ls.Sector = *sector
	} else if ls.Sector, err = boundingBoxSector(tms.BoundingBox, projection); err != nil {
		return nil, err
	} else if ls.Sector == (geo.Sector{}) {
		if projection != tms20.EPSG3857 {
			return nil, ErrMissingBoundingBox
		}
		ls.Sector = ls.mercatorMatrixSector(levels[0])
	}
	return ls, nil
}

// checkSubdivision verifies every level has exactly twice the rows and columns of the previous one.
func checkSubdivision(levels []*Level) error {
	for i := 1; i < len(levels); i++ {
		prev, cur := levels[i-1], levels[i]
		if cur.MatrixWidth != 2*prev.MatrixWidth || cur.MatrixHeight != 2*prev.MatrixHeight {
			return fmt.Errorf("%w: level %s is %dx%d, level %s is %dx%d", ErrIncompatibleSubdivision,
				prev.ID, prev.MatrixWidth, prev.MatrixHeight, cur.ID, cur.MatrixWidth, cur.MatrixHeight)
		}
	}
	return nil
}

// boundingBoxSector returns the zero sector when there is no bounding box.
func boundingBoxSector(bb *tms20.TwoDBoundingBox, projection tms20.Projection) (geo.Sector, error) {
	if bb == nil {
		return geo.Sector{}, nil
	}
	if bb.CRS != nil {
		p, err := tms20.ProjectionOf(bb.CRS)
		if err != nil {
			return geo.Sector{}, fmt.Errorf("bounding box: %w", err)
		}
		projection = p
	}
	ll, ur := bb.LowerLeft, bb.UpperRight
	switch projection {
	case tms20.EPSG4326:
		return geo.NewSector(ll[0], ur[0], ll[1], ur[1]), nil
	case tms20.EPSG3857:
		minLat, minLon := geo.MercatorToGeographic(ll[0], ll[1])
		maxLat, maxLon := geo.MercatorToGeographic(ur[0], ur[1])
		return geo.NewSector(minLat, maxLat, minLon, maxLon), nil
	default:
		return geo.SectorFromExtent(bb.Extent()), nil
	}
}

// mercatorMatrixSector is the geographic area covered by all tiles of a web mercator level.
func (ls *LevelSet) mercatorMatrixSector(level *Level) geo.Sector {
	return ls.mercatorSector(level, 0, 0, level.MatrixHeight, level.MatrixWidth)
}

func (ls *LevelSet) FirstLevel() *Level {
	return ls.Levels[0]
}

func (ls *LevelSet) LastLevel() *Level {
	return ls.Levels[len(ls.Levels)-1]
}

func (ls *LevelSet) IsLastLevel(level *Level) bool {
	return level.Number == len(ls.Levels)-1
}

// Level returns the level with the given number, or nil.
func (ls *LevelSet) Level(number int) *Level {
	if number < 0 || number >= len(ls.Levels) {
		return nil
	}
	return ls.Levels[number]
}

// SectorForTile computes the geographic area of a tile. The column must be within the matrix.
func (ls *LevelSet) SectorForTile(level *Level, row, column int) geo.Sector {
	switch ls.Projection {
	case tms20.EPSG3857:
		return ls.mercatorSector(level, row, column, 1, 1)
	case tms20.EPSG4326:
		return ls.geographicSector(level, row, column, level.TopLeftCorner[0], level.TopLeftCorner[1])
	default:
		return ls.geographicSector(level, row, column, level.TopLeftCorner[1], level.TopLeftCorner[0])
	}
}

// geographicSector divides the layer sector evenly over the matrix.
func (ls *LevelSet) geographicSector(level *Level, row, column int, topLat, leftLon float64) geo.Sector {
	deltaLat := ls.Sector.DeltaLatitude() / float64(level.MatrixHeight)
	deltaLon := ls.Sector.DeltaLongitude() / float64(level.MatrixWidth)
	maxLat := topLat - float64(row)*deltaLat
	minLon := leftLon + float64(column)*deltaLon
	return geo.NewSector(maxLat-deltaLat, maxLat, minLon, minLon+deltaLon)
}

// mercatorSector bounds a block of tiles in meters and converts the corners to degrees.
func (ls *LevelSet) mercatorSector(level *Level, row, column, numRows, numColumns int) geo.Sector {
	pixelSpan := level.ScaleDenominator * tms20.StandardizedRenderingPixelSize
	tileSpanX := float64(level.TileWidth) * pixelSpan
	tileSpanY := float64(level.TileHeight) * pixelSpan
	left, top := level.TopLeftCorner[0], level.TopLeftCorner[1]

	minCol := mathhelp.Clamp(column, 0, level.MatrixWidth)
	maxCol := mathhelp.Clamp(column+numColumns, 0, level.MatrixWidth)
	minRow := mathhelp.Clamp(row, 0, level.MatrixHeight)
	maxRow := mathhelp.Clamp(row+numRows, 0, level.MatrixHeight)

	swLat, swLon := geo.MercatorToGeographic(left+float64(minCol)*tileSpanX, top-float64(maxRow)*tileSpanY)
	neLat, neLon := geo.MercatorToGeographic(left+float64(maxCol)*tileSpanX, top-float64(minRow)*tileSpanY)
	return geo.NewSector(swLat, neLat, swLon, neLon)
}

package tms20

import (
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/go-spatial/geom"
)

var ErrInvalidParams = errors.New("invalid tile matrix set parameters")

// metersPerDegree at the equator of the WGS84 ellipsoid
const metersPerDegree = 6378137.0 * 2 * math.Pi / 360

// Params describes a tile matrix set with square tiles, one level per resolution.
type Params struct {
	ID         string     `validate:"required"`
	Projection Projection `validate:"required,min=1,max=3"`
	// Extent of the set as (minx, miny, maxx, maxy), in CRS axis order
	Extent geom.Extent
	// Resolutions in CRS units per pixel, coarsest first
	Resolutions []float64 `validate:"required,min=1,dive,gt=0"`
	// TileSize is the width and height of a tile in pixels
	TileSize uint `validate:"required,min=1"`
	// TopLeftCorner of every level, in CRS axis order
	TopLeftCorner TwoDPoint
	// Prefix tile matrix ids with the set id, like "EPSG:4326:0"
	Prefix bool
}

// NewTileMatrixSet builds a tile matrix set from a list of resolutions.
func NewTileMatrixSet(params Params) (TileMatrixSet, error) {
	var tms TileMatrixSet
	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.Struct(params); err != nil {
		return tms, fmt.Errorf("%w: %w", ErrInvalidParams, err)
	}
	extentWidth := params.Extent.MaxX() - params.Extent.MinX()
	extentHeight := params.Extent.MaxY() - params.Extent.MinY()
	if extentWidth <= 0 || extentHeight <= 0 {
		return tms, fmt.Errorf("%w: empty extent %v", ErrInvalidParams, params.Extent)
	}
	if params.Projection == EPSG4326 {
		// latitude first, matrix widths count longitude
		extentWidth, extentHeight = extentHeight, extentWidth
	}
	crs, err := NewURICRS(params.Projection.CRSURI())
	if err != nil {
		return tms, err
	}

	tms = TileMatrixSet{
		ID:          params.ID,
		OrderedAxes: params.Projection.OrderedAxes(),
		CRS:         crs,
		BoundingBox: &TwoDBoundingBox{
			LowerLeft:  TwoDPoint{params.Extent.MinX(), params.Extent.MinY()},
			UpperRight: TwoDPoint{params.Extent.MaxX(), params.Extent.MaxY()},
			CRS:        crs,
		},
		TileMatrices: make(map[int]TileMatrix, len(params.Resolutions)),
	}
	for i, resolution := range params.Resolutions {
		scale := resolution / StandardizedRenderingPixelSize
		if params.Projection.Geographic() {
			scale *= metersPerDegree
		}
		unit := float64(params.TileSize) * resolution
		id := strconv.Itoa(i)
		if params.Prefix {
			id = params.ID + ":" + id
		}
		tms.TileMatrices[i] = TileMatrix{
			ID:               id,
			ScaleDenominator: scale,
			CellSize:         resolution,
			CornerOfOrigin:   TopLeft,
			PointOfOrigin:    params.TopLeftCorner,
			TileWidth:        params.TileSize,
			TileHeight:       params.TileSize,
			MatrixWidth:      matrixSize(extentWidth, unit),
			MatrixHeight:     matrixSize(extentHeight, unit),
		}
	}
	return tms, nil
}

// matrixSize is the number of tiles covering span, tolerating a 1% overshoot of the last tile
func matrixSize(span, unit float64) uint {
	return uint(math.Max(1, math.Ceil((span-0.01*unit)/unit)))
}

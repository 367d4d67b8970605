package tile

import (
	"math"
	"strconv"
	"testing"
	"time"

	"github.com/go-spatial/geom"
	"github.com/pdok/tilepyramid/geo"
	"github.com/pdok/tilepyramid/globe"
	"github.com/pdok/tilepyramid/tms20"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustCRS(t *testing.T, uri string) tms20.CRS {
	t.Helper()
	crs, err := tms20.NewURICRS(uri)
	require.NoError(t, err)
	return crs
}

func matrix(id string, width, height uint, origin tms20.TwoDPoint) tms20.TileMatrix {
	return tms20.TileMatrix{
		ID: id, ScaleDenominator: 1, CellSize: 1, PointOfOrigin: origin,
		TileWidth: 256, TileHeight: 256, MatrixWidth: width, MatrixHeight: height,
	}
}

func mustLevelSet(t *testing.T, id string) *LevelSet {
	t.Helper()
	tms, err := tms20.LoadEmbeddedTileMatrixSet(id)
	require.NoError(t, err)
	ls, err := NewLevelSet(tms, nil)
	require.NoError(t, err)
	return ls
}

func assertSectorInDelta(t *testing.T, expected, actual geo.Sector, delta float64) {
	t.Helper()
	assert.InDelta(t, expected.MinLatitude, actual.MinLatitude, delta, "min latitude of %v", actual)
	assert.InDelta(t, expected.MaxLatitude, actual.MaxLatitude, delta, "max latitude of %v", actual)
	assert.InDelta(t, expected.MinLongitude, actual.MinLongitude, delta, "min longitude of %v", actual)
	assert.InDelta(t, expected.MaxLongitude, actual.MaxLongitude, delta, "max longitude of %v", actual)
}

func TestNewLevelSet_Errors(t *testing.T) {
	crs84 := mustCRS(t, "http://www.opengis.net/def/crs/OGC/1.3/CRS84")
	bbox := &tms20.TwoDBoundingBox{LowerLeft: tms20.TwoDPoint{-180, -90}, UpperRight: tms20.TwoDPoint{180, 90}}
	origin := tms20.TwoDPoint{-180, 90}

	tests := []struct {
		name    string
		tms     tms20.TileMatrixSet
		wantErr error
	}{
		{
			name:    "empty",
			tms:     tms20.TileMatrixSet{CRS: crs84, BoundingBox: bbox},
			wantErr: ErrEmptyTileMatrixSet,
		},
		{
			name: "ratio of three",
			tms: tms20.TileMatrixSet{CRS: crs84, BoundingBox: bbox, TileMatrices: map[int]tms20.TileMatrix{
				0: matrix("0", 1, 1, origin),
				1: matrix("1", 3, 3, origin),
			}},
			wantErr: ErrIncompatibleSubdivision,
		},
		{
			name: "only width doubles",
			tms: tms20.TileMatrixSet{CRS: crs84, BoundingBox: bbox, TileMatrices: map[int]tms20.TileMatrix{
				0: matrix("0", 2, 1, origin),
				1: matrix("1", 4, 1, origin),
			}},
			wantErr: ErrIncompatibleSubdivision,
		},
		{
			name: "gap",
			tms: tms20.TileMatrixSet{CRS: crs84, BoundingBox: bbox, TileMatrices: map[int]tms20.TileMatrix{
				0: matrix("0", 1, 1, origin),
				2: matrix("2", 4, 4, origin),
			}},
			wantErr: ErrNonContiguousLevels,
		},
		{
			name: "unsupported projection",
			tms: tms20.TileMatrixSet{CRS: mustCRS(t, "http://www.opengis.net/def/crs/EPSG/0/28992"), TileMatrices: map[int]tms20.TileMatrix{
				0: matrix("0", 1, 1, origin),
			}},
			wantErr: tms20.ErrUnsupportedProjection,
		},
		{
			name: "geographic without bounding box",
			tms: tms20.TileMatrixSet{CRS: crs84, TileMatrices: map[int]tms20.TileMatrix{
				0: matrix("0", 2, 1, origin),
			}},
			wantErr: ErrMissingBoundingBox,
		},
		{
			name: "bottom left origin",
			tms: tms20.TileMatrixSet{CRS: crs84, BoundingBox: bbox, TileMatrices: map[int]tms20.TileMatrix{
				0: func() tms20.TileMatrix {
					tm := matrix("0", 2, 1, tms20.TwoDPoint{-180, -90})
					tm.CornerOfOrigin = tms20.BottomLeft
					return tm
				}(),
			}},
			wantErr: ErrUnsupportedTileMatrix,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewLevelSet(tt.tms, nil)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestNewLevelSet_SubsetZoom(t *testing.T) {
	tms := tms20.TileMatrixSet{
		ID:          "Subset",
		CRS:         mustCRS(t, "http://www.opengis.net/def/crs/OGC/1.3/CRS84"),
		BoundingBox: &tms20.TwoDBoundingBox{LowerLeft: tms20.TwoDPoint{-180, -90}, UpperRight: tms20.TwoDPoint{180, 90}},
		TileMatrices: map[int]tms20.TileMatrix{
			5: matrix("5", 1, 1, tms20.TwoDPoint{-180, 90}),
			6: matrix("6", 2, 2, tms20.TwoDPoint{-180, 90}),
		},
	}
	ls, err := NewLevelSet(tms, nil)
	require.NoError(t, err)
	require.Len(t, ls.Levels, 2)
	for i, level := range ls.Levels {
		assert.Equal(t, i, level.Number)
		assert.Equal(t, 5+i, level.Zoom)
		assert.Equal(t, strconv.Itoa(5+i), level.ID)
	}
}

func TestNewLevelSet_Sector(t *testing.T) {
	t.Run("crs84 bounding box", func(t *testing.T) {
		ls := mustLevelSet(t, "WorldCRS84Quad")
		assert.Equal(t, geo.FullSphere, ls.Sector)
		assert.Equal(t, tms20.CRS84, ls.Projection)
		assert.Len(t, ls.Levels, 18)
		assert.True(t, ls.IsLastLevel(ls.LastLevel()))
		assert.False(t, ls.IsLastLevel(ls.FirstLevel()))
		assert.Nil(t, ls.Level(18))
		assert.Equal(t, 17, ls.Level(17).Number)
	})
	t.Run("epsg 4326 bounding box in lat lon order", func(t *testing.T) {
		assert.Equal(t, geo.FullSphere, mustLevelSet(t, "WGS1984Quad").Sector)
	})
	t.Run("web mercator bounding box", func(t *testing.T) {
		ls := mustLevelSet(t, "WebMercatorQuad")
		assertSectorInDelta(t, geo.NewSector(-geo.MaxMercatorLatitude, geo.MaxMercatorLatitude, -180, 180), ls.Sector, 1e-6)
	})
	t.Run("web mercator without bounding box", func(t *testing.T) {
		tms, err := tms20.LoadEmbeddedTileMatrixSet("WebMercatorQuad")
		require.NoError(t, err)
		tms.BoundingBox = nil
		ls, err := NewLevelSet(tms, nil)
		require.NoError(t, err)
		assertSectorInDelta(t, geo.NewSector(-geo.MaxMercatorLatitude, geo.MaxMercatorLatitude, -180, 180), ls.Sector, 1e-6)
	})
	t.Run("override", func(t *testing.T) {
		tms, err := tms20.LoadEmbeddedTileMatrixSet("WorldCRS84Quad")
		require.NoError(t, err)
		tms.BoundingBox = nil
		sector := geo.NewSector(50, 54, 3, 8)
		ls, err := NewLevelSet(tms, &sector)
		require.NoError(t, err)
		assert.Equal(t, sector, ls.Sector)
	})
}

func TestSectorForTile_Geographic(t *testing.T) {
	for _, id := range []string{"WorldCRS84Quad", "WGS1984Quad"} {
		t.Run(id, func(t *testing.T) {
			ls := mustLevelSet(t, id)
			tests := []struct {
				level, row, column int
				expected           geo.Sector
			}{
				{level: 0, row: 0, column: 0, expected: geo.NewSector(-90, 90, -180, 0)},
				{level: 0, row: 0, column: 1, expected: geo.NewSector(-90, 90, 0, 180)},
				{level: 1, row: 0, column: 0, expected: geo.NewSector(0, 90, -180, -90)},
				{level: 1, row: 1, column: 3, expected: geo.NewSector(-90, 0, 90, 180)},
				{level: 3, row: 2, column: 9, expected: geo.NewSector(22.5, 45, 22.5, 45)},
			}
			for _, tt := range tests {
				got := ls.SectorForTile(ls.Level(tt.level), tt.row, tt.column)
				assertSectorInDelta(t, tt.expected, got, 1e-9)
			}
		})
	}
}

func TestSectorForTile_WebMercator(t *testing.T) {
	ls := mustLevelSet(t, "WebMercatorQuad")
	maxLat := geo.MaxMercatorLatitude

	assertSectorInDelta(t, geo.NewSector(-maxLat, maxLat, -180, 180), ls.SectorForTile(ls.Level(0), 0, 0), 1e-6)
	assertSectorInDelta(t, geo.NewSector(0, maxLat, -180, 0), ls.SectorForTile(ls.Level(1), 0, 0), 1e-6)
	assertSectorInDelta(t, geo.NewSector(-maxLat, 0, 0, 180), ls.SectorForTile(ls.Level(1), 1, 1), 1e-6)

	// the corners of a tile project back onto the tile grid in meters
	level := ls.Level(5)
	span := 2 * 20037508.3427892 / float64(level.MatrixWidth)
	for _, rc := range [][2]int{{0, 0}, {7, 19}, {31, 31}, {16, 3}} {
		sector := ls.SectorForTile(level, rc[0], rc[1])
		minX, minY := geo.GeographicToMercator(sector.MinLatitude, sector.MinLongitude)
		maxX, maxY := geo.GeographicToMercator(sector.MaxLatitude, sector.MaxLongitude)
		assert.InDelta(t, -20037508.3427892+float64(rc[1])*span, minX, 1e-3)
		assert.InDelta(t, -20037508.3427892+float64(rc[1]+1)*span, maxX, 1e-3)
		assert.InDelta(t, 20037508.3427892-float64(rc[0])*span, maxY, 1e-3)
		assert.InDelta(t, 20037508.3427892-float64(rc[0]+1)*span, minY, 1e-3)
	}
}

func TestSubdivide_CoversParent(t *testing.T) {
	for _, id := range []string{"WorldCRS84Quad", "WGS1984Quad", "WebMercatorQuad"} {
		t.Run(id, func(t *testing.T) {
			ls := mustLevelSet(t, id)
			f := NewFactory(ls, "cache", "image/png")
			parent := f.CreateTile(ls.Level(2), 1, 3)
			children := f.Subdivide(parent, ls.Level(3))
			require.Len(t, children, 4)

			union := children[0].Sector
			for _, c := range children {
				assert.Equal(t, 3, c.Level.Number)
				union.MinLatitude = math.Min(union.MinLatitude, c.Sector.MinLatitude)
				union.MaxLatitude = math.Max(union.MaxLatitude, c.Sector.MaxLatitude)
				union.MinLongitude = math.Min(union.MinLongitude, c.Sector.MinLongitude)
				union.MaxLongitude = math.Max(union.MaxLongitude, c.Sector.MaxLongitude)
			}
			assertSectorInDelta(t, parent.Sector, union, 1e-9)
			assert.Equal(t, []string{"3.2.6", "3.2.7", "3.3.6", "3.3.7"},
				[]string{children[0].TileKey, children[1].TileKey, children[2].TileKey, children[3].TileKey})
		})
	}
}

func TestFactory(t *testing.T) {
	ls := mustLevelSet(t, "WorldCRS84Quad")
	cachePath := CachePath("https://example.com/wmts/", "ortho", "default", "WorldCRS84Quad", "")
	f := NewFactory(ls, cachePath, "image/jpeg")

	top := f.TopLevelTiles()
	require.Len(t, top, 2)
	assert.Equal(t, "0.0.1", top[1].TileKey)
	assert.Equal(t, "https://example.com/wmts/orthodefaultWorldCRS84Quad-layer/0/0/1.jpg", top[1].ImagePath)
	assert.InDelta(t, math.Pi/256, top[1].TexelSize, 1e-15)
	assert.Equal(t, "0.0.1", top[1].String())

	assert.Equal(t, "x2024-layer/4/3/2.png", NewFactory(ls, CachePath("x", "", "", "", "2024"), "image/png").ImagePath(ls.Level(4), 3, 2))
}

type mapCache struct {
	entries map[string][]*Tile
	puts    int
}

func (c *mapCache) EntryForKey(key string) ([]*Tile, bool) {
	children, ok := c.entries[key]
	return children, ok
}

func (c *mapCache) PutEntry(key string, children []*Tile, _ int) error {
	c.puts++
	c.entries[key] = children
	return nil
}

func TestSubdivideToCache(t *testing.T) {
	ls := mustLevelSet(t, "WorldCRS84Quad")
	f := NewFactory(ls, "cache", "image/png")
	cache := &mapCache{entries: make(map[string][]*Tile)}
	parent := f.TopLevelTiles()[0]

	first := f.SubdivideToCache(parent, ls.Level(1), cache)
	second := f.SubdivideToCache(parent, ls.Level(1), cache)
	require.Len(t, first, 4)
	assert.Same(t, first[0], second[0])
	assert.Equal(t, 1, cache.puts)
}

type fakeView struct {
	eye            geo.Vec3
	metersPerPixel float64
}

func (v fakeView) EyePoint() geo.Vec3 {
	return v.eye
}

func (v fakeView) PixelSizeAtDistance(distance float64) float64 {
	return distance * v.metersPerPixel
}

func TestTile_UpdateAndSubdivide(t *testing.T) {
	// one degree is a thousand meters
	flat := globe.NewFlat(1000*geo.RadiansToDegrees, nil)
	level := &Level{Number: 0, ID: "0", MatrixWidth: 1, MatrixHeight: 1, TileWidth: 256, TileHeight: 256}
	tl := New(geo.NewSector(0, 90, 0, 90), level, 0, 0, "p")

	assert.True(t, math.IsInf(tl.DistanceTo(geo.Zero), 1))
	require.True(t, tl.Update(flat, 1, 1))
	require.NotNil(t, tl.Extent)
	assert.False(t, tl.Update(flat, 1, 1))
	assert.True(t, tl.Update(flat, 2, 1), "vertical exaggeration changed")
	assert.True(t, tl.Update(flat, 2, 2), "globe state changed")

	// flat terrain gets a 10 meter thick box, sample points halfway
	assert.InDelta(t, 10, tl.Extent.T.Magnitude(), 1e-9)
	assert.InDelta(t, 5, tl.DistanceTo(geo.Vec3{45000, 45000, 0}), 1e-6)
	assert.InDelta(t, 0, tl.ReferencePoint.Z(), 1e-9)
	assert.InDelta(t, 45000, tl.ReferencePoint.X(), 1e-6)

	// a texel is 90000/256 meters
	near := fakeView{eye: geo.Vec3{45000, 45000, 100005}, metersPerPixel: 1e-3}
	far := fakeView{eye: geo.Vec3{45000, 45000, 1000005}, metersPerPixel: 1e-3}
	assert.True(t, tl.MustSubdivide(near, flat.EquatorialRadius(), 1.75))
	assert.False(t, tl.MustSubdivide(far, flat.EquatorialRadius(), 1.75))
	assert.False(t, tl.MustSubdivide(near, flat.EquatorialRadius(), 4))

	assert.Contains(t, tl.WKT(0), "POLYGON")
}

func TestTile_UpdateOnNewElevations(t *testing.T) {
	elevations := globe.ConstantElevationModel{Min: 0, Max: 100, Updated: time.Unix(1, 0)}
	flat := globe.NewFlat(1, elevations)
	level := &Level{Number: 0, ID: "0", MatrixWidth: 1, MatrixHeight: 1, TileWidth: 256, TileHeight: 256}
	tl := New(geo.NewSector(0, 90, 0, 90), level, 0, 0, "p")

	require.True(t, tl.Update(flat, 1, 0))
	assert.InDelta(t, 100, tl.Extent.R.Magnitude(), 1e-9, "elevation range is the longest axis")
	assert.False(t, tl.Update(flat, 1, 0))

	elevations.Updated = time.Unix(2, 0)
	assert.True(t, tl.Update(globe.NewFlat(1, elevations), 1, 0))
}

func TestSuffixForMimeType(t *testing.T) {
	tests := map[string]string{
		"image/png":                 "png",
		"image/jpeg":                "jpg",
		"IMAGE/JPEG":                "jpg",
		"image/png; mode=8bit":      "png",
		"image/tiff":                "tif",
		"image/webp":                "webp",
		"application/bil16":         "bil",
		"application/vnd.mapbox-vt": "vnd.mapbox-vt",
		"nonsense":                  "img",
	}
	for mimeType, suffix := range tests {
		assert.Equal(t, suffix, SuffixForMimeType(mimeType), mimeType)
	}
}

func TestLevelSectorExtent(t *testing.T) {
	ls := mustLevelSet(t, "WorldCRS84Quad")
	assert.Equal(t, geom.Extent{-180, -90, 180, 90}, ls.Sector.Extent())
}

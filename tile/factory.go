package tile

import (
	"strconv"
	"strings"
)

// Factory creates the tiles of one layer.
type Factory struct {
	LevelSet *LevelSet
	// CachePath prefixes the image path of every tile
	CachePath string
	// Suffix is the image file extension, without dot
	Suffix string
}

// NewFactory creates tiles for layer identified by cachePath, in the given image format.
func NewFactory(levelSet *LevelSet, cachePath, format string) *Factory {
	return &Factory{LevelSet: levelSet, CachePath: cachePath, Suffix: SuffixForMimeType(format)}
}

func (f *Factory) CreateTile(level *Level, row, column int) *Tile {
	return New(f.LevelSet.SectorForTile(level, row, column), level, row, column, f.ImagePath(level, row, column))
}

// TopLevelTiles returns the tiles of the coarsest level, row by row.
func (f *Factory) TopLevelTiles() []*Tile {
	level := f.LevelSet.FirstLevel()
	tiles := make([]*Tile, 0, level.MatrixWidth*level.MatrixHeight)
	for row := 0; row < level.MatrixHeight; row++ {
		for column := 0; column < level.MatrixWidth; column++ {
			tiles = append(tiles, f.CreateTile(level, row, column))
		}
	}
	return tiles
}

// ImagePath is <cache path>-layer/<matrix id>/<row>/<column>.<suffix>
func (f *Factory) ImagePath(level *Level, row, column int) string {
	var sb strings.Builder
	sb.WriteString(f.CachePath)
	sb.WriteString("-layer/")
	sb.WriteString(level.ID)
	sb.WriteByte('/')
	sb.WriteString(strconv.Itoa(row))
	sb.WriteByte('/')
	sb.WriteString(strconv.Itoa(column))
	sb.WriteByte('.')
	sb.WriteString(f.Suffix)
	return sb.String()
}

// Subdivide creates the tiles of next covering t. next must be the level after t's.
func (f *Factory) Subdivide(t *Tile, next *Level) []*Tile {
	factorLat := next.MatrixHeight / t.Level.MatrixHeight
	factorLon := next.MatrixWidth / t.Level.MatrixWidth
	children := make([]*Tile, 0, factorLat*factorLon)
	for i := 0; i < factorLat; i++ {
		for j := 0; j < factorLon; j++ {
			children = append(children, f.CreateTile(next, factorLat*t.Row+i, factorLon*t.Column+j))
		}
	}
	return children
}

// ChildCache keeps the children of subdivided tiles by parent tile key.
type ChildCache interface {
	EntryForKey(key string) ([]*Tile, bool)
	PutEntry(key string, children []*Tile, size int) error
}

// SubdivideToCache returns the cached children of t, subdividing and caching them on a miss.
func (f *Factory) SubdivideToCache(t *Tile, next *Level, cache ChildCache) []*Tile {
	if children, ok := cache.EntryForKey(t.TileKey); ok {
		return children
	}
	children := f.Subdivide(t, next)
	// refused entries are subdivided again next frame
	_ = cache.PutEntry(t.TileKey, children, len(children))
	return children
}

// CachePath identifies a layer's resources: the address of its source, the layer, style and tile matrix set
// identifiers and an optional time.
func CachePath(source, identifier, style, tileMatrixSetID, timeString string) string {
	return source + identifier + style + tileMatrixSetID + timeString
}

// SuffixForMimeType returns the file extension for an image format.
func SuffixForMimeType(mimeType string) string {
	mimeType = strings.ToLower(strings.TrimSpace(strings.SplitN(mimeType, ";", 2)[0]))
	switch mimeType {
	case "image/png":
		return "png"
	case "image/jpeg", "image/jpg":
		return "jpg"
	case "image/tiff":
		return "tif"
	case "application/bil16", "application/bil32":
		return "bil"
	}
	if i := strings.LastIndexByte(mimeType, '/'); i >= 0 && i < len(mimeType)-1 {
		return mimeType[i+1:]
	}
	return "img"
}

package retrieval

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-spatial/geom/encoding/gpkg"
)

// GeoPackage retrieves tile images from a tile pyramid table of a GeoPackage.
// The tile matrix number of a request is used as zoom level.
type GeoPackage struct {
	handle *gpkg.Handle
	query  string
}

// OpenGeoPackage opens file for reading the tiles of table.
func OpenGeoPackage(file, table string) (*GeoPackage, error) {
	handle, err := gpkg.Open(file)
	if err != nil {
		return nil, fmt.Errorf("error opening GeoPackage %s: %w", file, err)
	}
	return &GeoPackage{handle: handle, query: selectTileSQL(table)}, nil
}

// selectTileSQL builds the SELECT statement for one tile of table
func selectTileSQL(table string) string {
	return `SELECT tile_data FROM "` + table + `" WHERE zoom_level = ? AND tile_column = ? AND tile_row = ?;`
}

func (g *GeoPackage) Retrieve(ctx context.Context, req Request) ([]byte, error) {
	var data []byte
	row := g.handle.QueryRowContext(ctx, g.query, req.Zoom, req.Column, req.Row)
	if err := row.Scan(&data); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrTileNotFound, req)
		}
		return nil, err
	}
	return data, nil
}

func (g *GeoPackage) Close() error {
	return g.handle.Close()
}

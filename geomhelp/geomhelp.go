// Package geomhelp converts tile footprints to geometries and their WKT representation.
package geomhelp

import (
	"github.com/go-spatial/geom"
	"github.com/go-spatial/geom/encoding/wkt"
	"github.com/muesli/reflow/truncate"
)

// ExtentToPolygon returns the counterclockwise ring around e.
func ExtentToPolygon(e geom.Extent) geom.Polygon {
	return geom.Polygon{{
		{e.MinX(), e.MinY()},
		{e.MaxX(), e.MinY()},
		{e.MaxX(), e.MaxY()},
		{e.MinX(), e.MaxY()},
	}}
}

// ExtentsToMultiPolygon returns one polygon per extent.
func ExtentsToMultiPolygon(extents []geom.Extent) geom.MultiPolygon {
	mp := make(geom.MultiPolygon, 0, len(extents))
	for _, e := range extents {
		mp = append(mp, ExtentToPolygon(e))
	}
	return mp
}

// WktMustEncode encodes g, truncated to maxLen characters unless maxLen is 0.
func WktMustEncode(g geom.Geometry, maxLen uint) string {
	if maxLen == 0 {
		return wkt.MustEncode(g)
	}
	return truncate.StringWithTail(wkt.MustEncode(g), maxLen, "...")
}

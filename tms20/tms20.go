// Package tms20 implements the OGC Tile Matrix Set standard (v2.0) as far as tile pyramids need it.
// See https://www.ogc.org/standard/tms/
package tms20

import (
	"embed"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"sync"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/perimeterx/marshmallow"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

var (
	//go:embed tilematrixsets/*.json
	embeddedTileMatrixSetsJSONFS embed.FS
	embeddedTileMatrixSetsCache  = make(map[string]*TileMatrixSet)
	embeddedTileMatrixSetsMutex  sync.Mutex
)

// LoadJSONTileMatrixSet reads a tile matrix set from a JSON file.
func LoadJSONTileMatrixSet(path string) (TileMatrixSet, error) {
	var tms TileMatrixSet
	tmsJSON, err := os.ReadFile(path)
	if err != nil {
		return tms, err
	}
	err = json.Unmarshal(tmsJSON, &tms)
	return tms, err
}

// LoadEmbeddedTileMatrixSet returns one of the well-known tile matrix sets shipped with this package:
// WebMercatorQuad, WorldCRS84Quad or WGS1984Quad.
func LoadEmbeddedTileMatrixSet(id string) (TileMatrixSet, error) {
	embeddedTileMatrixSetsMutex.Lock()
	defer embeddedTileMatrixSetsMutex.Unlock()

	var tms TileMatrixSet
	cached, ok := embeddedTileMatrixSetsCache[id]
	if ok {
		return *cached, nil
	}
	tmsJSON, err := embeddedTileMatrixSetsJSONFS.ReadFile("tilematrixsets/" + id + ".json")
	if err != nil {
		return tms, err
	}
	err = json.Unmarshal(tmsJSON, &tms)
	if err != nil {
		return tms, err
	}
	embeddedTileMatrixSetsCache[id] = &tms
	return tms, nil
}

// LoadTileMatrixSet loads an embedded tile matrix set by id, or a JSON file when no embedded set matches.
func LoadTileMatrixSet(idOrPath string) (TileMatrixSet, error) {
	tms, err := LoadEmbeddedTileMatrixSet(idOrPath)
	if err == nil {
		return tms, nil
	}
	return LoadJSONTileMatrixSet(idOrPath)
}

// TileMatrixSet is a definition of a tile matrix set following the Tile Matrix Set standard.
type TileMatrixSet struct {
	// Tile matrix set identifier. Implementation of 'identifier'
	ID string `json:"id,omitempty"`
	// Title of this tile matrix set, normally used for display to a human
	Title string `json:"title,omitempty"`
	// Brief narrative description of this tile matrix set, normally available for display to a human
	Description string   `json:"description,omitempty"`
	Keywords    []string `json:"keywords,omitempty"`
	// Reference to an official source for this TileMatrixSet
	URI         string   `validate:"omitempty,uri" json:"uri,omitempty"`
	OrderedAxes []string `validate:"omitnil,min=1" json:"orderedAxes"`
	// Coordinate Reference System (CRS)
	CRS CRS `validate:"required" json:"-"`
	// Reference to a well-known scale set
	WellKnownScaleSet string `validate:"omitempty,uri" json:"wellKnownScaleSet,omitempty"`
	// Minimum bounding rectangle surrounding the tile matrix set, in the supported CRS
	BoundingBox *TwoDBoundingBox `json:"-"`
	// Describes scale levels and its tile matrices, keyed by the integer tile matrix id
	TileMatrices map[int]TileMatrix `validate:"required,min=1" json:"-"`
}

func (tms *TileMatrixSet) MarshalJSON() ([]byte, error) {
	tileMatrices := make([]*TileMatrix, 0, len(tms.TileMatrices))
	for _, tm := range tms.Levels() {
		tm := tm
		tileMatrices = append(tileMatrices, &tm)
	}
	return json.Marshal(struct {
		TileMatrixSet                        // not a pointer, because it would cause recursion to this function
		SpecialCRS          *CRS             `json:"crs"` // pointer, because crs' structs' MarshalJSON funcs are on pointer
		SpecialBoundingBox  *TwoDBoundingBox `json:"boundingBox,omitempty"`
		SpecialTileMatrices []*TileMatrix    `json:"tileMatrices"`
	}{
		TileMatrixSet:       *tms,
		SpecialCRS:          &tms.CRS,
		SpecialBoundingBox:  tms.BoundingBox,
		SpecialTileMatrices: tileMatrices,
	})
}

func (tms *TileMatrixSet) UnmarshalJSON(data []byte) error {
	err := defaults.Set(tms)
	if err != nil {
		return err
	}

	specials, err := marshmallow.Unmarshal(data, tms, marshmallow.WithExcludeKnownFieldsFromMap(true))
	if err != nil {
		return err
	}

	// CRS
	rawCrs, ok := specials["crs"]
	if !ok {
		return fmt.Errorf(`missing key "crs"`)
	}
	tms.CRS, err = unmarshalCRS(rawCrs)
	if err != nil {
		return err
	}

	// BoundingBox
	if rawBoundingBox, ok := specials["boundingBox"]; ok {
		var bb TwoDBoundingBox
		if err = bb.UnmarshalJSONFromMap(rawBoundingBox); err != nil {
			return fmt.Errorf(`invalid "boundingBox": %w`, err)
		}
		tms.BoundingBox = &bb
	}

	// TileMatrices
	rawTileMatrices, ok := specials["tileMatrices"]
	if !ok {
		return fmt.Errorf(`missing key "tileMatrices"`)
	}
	tms.TileMatrices, err = unmarshalTileMatrices(rawTileMatrices)
	if err != nil {
		return err
	}

	validate := validator.New(validator.WithRequiredStructEnabled())
	return validate.Struct(tms)
}

func unmarshalTileMatrices(rawTileMatrices interface{}) (map[int]TileMatrix, error) {
	rawTileMatricesList, ok := rawTileMatrices.([]interface{})
	if !ok {
		return nil, fmt.Errorf(`"tileMatrices" should be an array`)
	}
	tileMatrices := make(map[int]TileMatrix, len(rawTileMatricesList))
	for i, rawTileMatrix := range rawTileMatricesList {
		rawTileMatrixMap, ok := rawTileMatrix.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf(`"tileMatrices" should be objects`)
		}
		var tileMatrix TileMatrix
		err := tileMatrix.UnmarshalJSONFromMap(rawTileMatrixMap)
		if err != nil {
			return nil, err
		}
		// ids like "EPSG:4326:3" are numbered by position
		key := i
		if tileMatrixID, err := strconv.Atoi(tileMatrix.ID); err == nil {
			key = tileMatrixID
		}
		if _, exists := tileMatrices[key]; exists {
			return nil, fmt.Errorf("duplicate tile matrix %v", key)
		}
		tileMatrices[key] = tileMatrix
	}
	return tileMatrices, nil
}

// Levels returns the tile matrices ordered from coarsest to finest.
func (tms *TileMatrixSet) Levels() []TileMatrix {
	keys := maps.Keys(tms.TileMatrices)
	slices.Sort(keys)
	levels := make([]TileMatrix, 0, len(keys))
	for _, k := range keys {
		levels = append(levels, tms.TileMatrices[k])
	}
	return levels
}

// LevelNumbers returns the sorted keys of TileMatrices.
func (tms *TileMatrixSet) LevelNumbers() []int {
	keys := maps.Keys(tms.TileMatrices)
	slices.Sort(keys)
	return keys
}

// Projection returns the supported projection of this set's CRS.
func (tms *TileMatrixSet) Projection() (Projection, error) {
	return ProjectionOf(tms.CRS)
}

func (tms *TileMatrixSet) SRID() uint {
	code, err := strconv.ParseUint(tms.CRS.AuthorityCode(), 10, 64)
	if err != nil {
		panic(fmt.Errorf(`could not parse uri authority code "%w"`, err))
	}
	return uint(code)
}

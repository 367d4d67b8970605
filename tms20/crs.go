package tms20

import (
	"encoding/json"
	"fmt"
	"regexp"

	"github.com/go-playground/validator/v10"
	"github.com/perimeterx/marshmallow"
)

// CRS is one of the coordinate reference system encodings a tile matrix set may use.
type CRS interface {
	Description() string
	AuthorityName() string
	AuthorityCode() string
}

var (
	crsURIRegexURL = regexp.MustCompile("https?://.+/def/crs/(?P<authority>[^/]+)/[^/]+/(?P<code>[^/]+)$")
	crsURIRegexURN = regexp.MustCompile("^urn:ogc:def:crs:(?P<authority>[^:]+):[^:]*:(?P<code>[^:]+)$")
)

// unmarshalCRS tries the CRS encodings in order (oneOf)
func unmarshalCRS(rawCrs interface{}) (CRS, error) {
	var rawCrsMap map[string]interface{}
	rawCrsString, asString := rawCrs.(string)
	if asString {
		rawCrsMap = map[string]interface{}{"uri": rawCrsString}
	} else {
		var ok bool
		rawCrsMap, ok = rawCrs.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf(`wrong type key "crs": %T`, rawCrs)
		}
	}
	var errs []error

	var uriCrs URICRS
	err := uriCrs.UnmarshalJSONFromMap(rawCrsMap)
	if err == nil {
		uriCrs.asString = asString
		return &uriCrs, nil
	}
	errs = append(errs, err)

	var wktCrs WKTCRS
	err = wktCrs.UnmarshalJSONFromMap(rawCrsMap)
	if err == nil {
		return &wktCrs, nil
	}
	errs = append(errs, err)

	var referenceSystemCrs ReferenceSystemCRS
	err = referenceSystemCrs.UnmarshalJSONFromMap(rawCrsMap)
	if err == nil {
		return &referenceSystemCrs, nil
	}
	errs = append(errs, err)

	return nil, fmt.Errorf(`could not unmarshal crs into any CRS type. errors: %v`, errs)
}

func descriptionFromMap(dataMap map[string]interface{}) (string, error) {
	rawDescription, ok := dataMap["description"]
	if !ok {
		return "", nil
	}
	description, ok := rawDescription.(string)
	if !ok {
		return "", fmt.Errorf(`description property is not a string but a %T`, rawDescription)
	}
	return description, nil
}

// URICRS references a CRS by URI or URN, e.g. http://www.opengis.net/def/crs/EPSG/0/3857.
type URICRS struct {
	description string
	// Reference to one coordinate reference system (CRS)
	uri           string `validate:"required,uri"`
	authorityName string `validate:"required"`
	authorityCode string `validate:"required"`
	// Whether it should be marshalled as just a string
	asString bool
}

// NewURICRS parses a CRS URI into a CRS that marshals as a plain string.
func NewURICRS(uri string) (*URICRS, error) {
	var crs URICRS
	if err := crs.UnmarshalJSONFromMap(map[string]interface{}{"uri": uri}); err != nil {
		return nil, err
	}
	crs.asString = true
	return &crs, nil
}

func (crs *URICRS) MarshalJSON() ([]byte, error) {
	if crs.asString {
		return json.Marshal(crs.uri)
	}
	return json.Marshal(struct {
		Description string `json:"description,omitempty"`
		URI         string `json:"uri"`
	}{
		Description: crs.description,
		URI:         crs.uri,
	})
}

func (crs *URICRS) UnmarshalJSON(data []byte) error {
	return UnmarshalJSONMapUsingUnmarshalJSONFromMap(crs, data)
}

func (crs *URICRS) UnmarshalJSONFromMap(data interface{}) error {
	dataMap, ok := data.(map[string]interface{})
	if !ok {
		return fmt.Errorf(`data is not a map but a %T`, data)
	}
	var err error
	if crs.description, err = descriptionFromMap(dataMap); err != nil {
		return err
	}

	rawURI, ok := dataMap["uri"]
	if !ok {
		return fmt.Errorf(`uri property not found`)
	}
	crs.uri, ok = rawURI.(string)
	if !ok {
		return fmt.Errorf(`uri property is not a string but a %T`, rawURI)
	}

	uriParts := crsURIRegexURL.FindStringSubmatch(crs.uri)
	if uriParts == nil {
		uriParts = crsURIRegexURN.FindStringSubmatch(crs.uri)
	}
	if uriParts == nil {
		return fmt.Errorf(`could not parse crs uri "%v"`, crs.uri)
	}
	crs.authorityName = uriParts[1]
	crs.authorityCode = uriParts[2]

	validate := validator.New(validator.WithRequiredStructEnabled())
	return validate.Struct(crs)
}

func (crs *URICRS) URI() string {
	return crs.uri
}

func (crs *URICRS) Description() string {
	return crs.description
}

func (crs *URICRS) AuthorityName() string {
	return crs.authorityName
}

func (crs *URICRS) AuthorityCode() string {
	return crs.authorityCode
}

// WKTCRS defines a CRS with PROJJSON. Only its identifier is interpreted.
type WKTCRS struct {
	description string
	wkt         ProjJSON
	originalWKT map[string]interface{}
}

type ProjJSON struct {
	ID ProjJSONID `validate:"required" json:"id"`
}

type ProjJSONID struct {
	AuthorityName string `validate:"required" json:"authority"`
	AuthorityCode string `validate:"required" json:"code"`
}

func (crs *WKTCRS) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Description string                 `json:"description,omitempty"`
		WKT         map[string]interface{} `json:"wkt"`
	}{
		Description: crs.description,
		WKT:         crs.originalWKT,
	})
}

func (crs *WKTCRS) UnmarshalJSON(data []byte) error {
	return UnmarshalJSONMapUsingUnmarshalJSONFromMap(crs, data)
}

func (crs *WKTCRS) UnmarshalJSONFromMap(data interface{}) error {
	dataMap, ok := data.(map[string]interface{})
	if !ok {
		return fmt.Errorf(`data is not a map but a %T`, data)
	}
	var err error
	if crs.description, err = descriptionFromMap(dataMap); err != nil {
		return err
	}

	rawWKT, ok := dataMap["wkt"]
	if !ok {
		return fmt.Errorf(`wkt property not found`)
	}
	crs.originalWKT, ok = rawWKT.(map[string]interface{})
	if !ok {
		return fmt.Errorf(`wkt property is not an object but a %T`, rawWKT)
	}

	var wkt ProjJSON
	if _, err = marshmallow.UnmarshalFromJSONMap(crs.originalWKT, &wkt); err != nil {
		return fmt.Errorf(`could not parse wkt as ProjJSON "%v"`, crs.originalWKT)
	}
	crs.wkt = wkt

	validate := validator.New(validator.WithRequiredStructEnabled())
	return validate.Struct(crs)
}

func (crs *WKTCRS) Description() string {
	return crs.description
}

func (crs *WKTCRS) AuthorityName() string {
	return crs.wkt.ID.AuthorityName
}

func (crs *WKTCRS) AuthorityCode() string {
	return crs.wkt.ID.AuthorityCode
}

// ReferenceSystemCRS holds an ISO 19115 MD_ReferenceSystem. It carries no authority,
// so it never maps to a supported Projection.
type ReferenceSystemCRS struct {
	description     string
	referenceSystem map[string]interface{} `validate:"required"`
}

func (crs *ReferenceSystemCRS) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Description     string                 `json:"description,omitempty"`
		ReferenceSystem map[string]interface{} `json:"referenceSystem"`
	}{
		Description:     crs.description,
		ReferenceSystem: crs.referenceSystem,
	})
}

func (crs *ReferenceSystemCRS) UnmarshalJSON(data []byte) error {
	return UnmarshalJSONMapUsingUnmarshalJSONFromMap(crs, data)
}

func (crs *ReferenceSystemCRS) UnmarshalJSONFromMap(data interface{}) error {
	dataMap, ok := data.(map[string]interface{})
	if !ok {
		return fmt.Errorf(`data is not a map but a %T`, data)
	}
	var err error
	if crs.description, err = descriptionFromMap(dataMap); err != nil {
		return err
	}

	rawReferenceSystem, ok := dataMap["referenceSystem"]
	if !ok {
		return fmt.Errorf(`referenceSystem property not found`)
	}
	crs.referenceSystem, ok = rawReferenceSystem.(map[string]interface{})
	if !ok {
		return fmt.Errorf(`referenceSystem property is not an object but a %T`, rawReferenceSystem)
	}

	validate := validator.New(validator.WithRequiredStructEnabled())
	return validate.Struct(crs)
}

func (crs *ReferenceSystemCRS) Description() string {
	return crs.description
}

func (crs *ReferenceSystemCRS) AuthorityName() string {
	return ""
}

func (crs *ReferenceSystemCRS) AuthorityCode() string {
	return ""
}

func UnmarshalJSONMapUsingUnmarshalJSONFromMap(target marshmallow.UnmarshalerFromJSONMap, data []byte) error {
	var dataMap map[string]interface{}
	err := json.Unmarshal(data, &dataMap)
	if err != nil {
		return err
	}
	return target.UnmarshalJSONFromMap(dataMap)
}

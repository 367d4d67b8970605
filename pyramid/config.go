package pyramid

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/pdok/tilepyramid/geo"
	"gopkg.in/yaml.v3"
)

var ErrInvalidConfig = errors.New("invalid layer config")

// Config configures a layer.
type Config struct {
	// Identifier names the layer at its source
	Identifier string `yaml:"identifier" validate:"required"`
	Style      string `yaml:"style"`
	// Format is the MIME type of the tile images
	Format     string `yaml:"format" default:"image/png" validate:"required"`
	TimeString string `yaml:"timeString"`

	// DetailControl is the size in pixels a texel may grow to before a tile is subdivided
	DetailControl      float64 `yaml:"detailControl" default:"1.75" validate:"gt=0"`
	RetrievalQueueSize int     `yaml:"retrievalQueueSize" default:"16" validate:"min=1"`

	// TileCacheCapacity is the number of subdivided tiles kept
	TileCacheCapacity int `yaml:"tileCacheCapacity" default:"1000" validate:"min=1"`
	TileCacheLowWater int `yaml:"tileCacheLowWater" default:"850" validate:"min=0,ltfield=TileCacheCapacity"`
	// TextureCacheCapacity is the number of bytes of decoded images kept
	TextureCacheCapacity int `yaml:"textureCacheCapacity" default:"262144000" validate:"min=1"`
	TextureCacheLowWater int `yaml:"textureCacheLowWater" default:"209715200" validate:"min=0,ltfield=TextureCacheCapacity"`

	AbsentMaxTries         int           `yaml:"absentMaxTries" default:"3" validate:"min=1"`
	AbsentMinCheckInterval time.Duration `yaml:"absentMinCheckInterval" default:"50s"`
	AbsentTryAgainInterval time.Duration `yaml:"absentTryAgainInterval" default:"60s"`

	// Expiration makes textures created before it be retrieved again, once it has passed
	Expiration *time.Time `yaml:"expiration"`
	// BoundingBox is minLon, minLat, maxLon, maxLat and overrides the tile matrix set's bounding box.
	// Geographic levels are divided over it, so it must be the area the tile matrices cover.
	BoundingBox []float64 `yaml:"boundingBox" validate:"omitempty,len=4"`
}

// DefaultConfig returns the config for identifier with all defaults applied.
func DefaultConfig(identifier string) Config {
	cfg := Config{Identifier: identifier}
	if err := defaults.Set(&cfg); err != nil {
		panic(err)
	}
	return cfg
}

// LoadConfig reads a YAML layer config. Fields missing from the file get their defaults.
func LoadConfig(path string) (Config, error) {
	var cfg Config
	if err := defaults.Set(&cfg); err != nil {
		return cfg, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err = yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if c.AbsentMinCheckInterval < 0 || c.AbsentTryAgainInterval < 0 {
		return fmt.Errorf("%w: negative absent interval", ErrInvalidConfig)
	}
	if c.BoundingBox != nil {
		if s := c.sector(); s.MinLatitude >= s.MaxLatitude || s.MinLongitude >= s.MaxLongitude {
			return fmt.Errorf("%w: empty bounding box %v", ErrInvalidConfig, c.BoundingBox)
		}
	}
	return nil
}

// sector returns the bounding box override, or nil.
func (c Config) sector() *geo.Sector {
	if len(c.BoundingBox) != 4 {
		return nil
	}
	s := geo.NewSector(c.BoundingBox[1], c.BoundingBox[3], c.BoundingBox[0], c.BoundingBox[2])
	return &s
}

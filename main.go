package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/carlmjohnson/versioninfo"
	"github.com/go-spatial/geom"
	"github.com/iancoleman/strcase"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/pdok/tilepyramid/geomhelp"
	"github.com/pdok/tilepyramid/globe"
	"github.com/pdok/tilepyramid/logger"
	"github.com/pdok/tilepyramid/pyramid"
	"github.com/pdok/tilepyramid/retrieval"
	"github.com/pdok/tilepyramid/scene"
	"github.com/pdok/tilepyramid/tile"
	"github.com/pdok/tilepyramid/tms20"
)

const SOURCE string = `source`
const TABLE string = `table`
const CACHEFILE string = `cacheFile`
const TIMEOUT string = `timeout`
const TILEMATRIXSET string = `tilematrixset`
const CRS string = `crs`
const EXTENT string = `extent`
const RESOLUTIONS string = `resolutions`
const TILESIZE string = `tileSize`
const CONFIG string = `config`
const IDENTIFIER string = `identifier`
const LATITUDE string = `latitude`
const LONGITUDE string = `longitude`
const ALTITUDE string = `altitude`
const ZOOM string = `zoom`
const VIEWPORT string = `viewport`
const FRAMES string = `frames`
const INTERVAL string = `interval`
const WKTLENGTH string = `wktLength`
const DEBUG string = `debug`
const LOGFILE string = `logFile`

//nolint:funlen
func main() {
	app := cli.NewApp()
	app.Name = "tilepyramid"
	app.Usage = "Simulates the frames of a camera above a tiled image layer and prints the tiles it displays"
	app.Version = versioninfo.Short()

	app.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:     SOURCE,
			Aliases:  []string{"s"},
			Usage:    "Tile source: a GeoPackage file or the base URL of <matrix>/<row>/<column> tiles",
			Required: true,
			EnvVars:  []string{strcase.ToScreamingSnake(SOURCE)},
		},
		&cli.StringFlag{
			Name:    TABLE,
			Usage:   "Tile table of a GeoPackage source",
			Value:   "tiles",
			EnvVars: []string{strcase.ToScreamingSnake(TABLE)},
		},
		&cli.StringFlag{
			Name:    CACHEFILE,
			Usage:   "Keep retrieved images in this bbolt file and read them from it on later runs",
			EnvVars: []string{strcase.ToScreamingSnake(CACHEFILE)},
		},
		&cli.DurationFlag{
			Name:    TIMEOUT,
			Usage:   "Maximum duration of one HTTP tile retrieval",
			Value:   retrieval.DefaultTimeout,
			EnvVars: []string{strcase.ToScreamingSnake(TIMEOUT)},
		},
		&cli.StringFlag{
			Name:    TILEMATRIXSET,
			Aliases: []string{"tms"},
			Usage:   `ID of a (built-in) tile matrix set or path to a tile matrix set JSON file. E.g.: WebMercatorQuad`,
			EnvVars: []string{strcase.ToScreamingSnake(TILEMATRIXSET)},
		},
		&cli.StringFlag{
			Name:    CRS,
			Usage:   "CRS of a tile matrix set built from resolutions, instead of --" + TILEMATRIXSET,
			Value:   "OGC:CRS84",
			EnvVars: []string{strcase.ToScreamingSnake(CRS)},
		},
		&cli.Float64SliceFlag{
			Name:    EXTENT,
			Usage:   "Extent (minx, miny, maxx, maxy in CRS axis order) of a tile matrix set built from resolutions",
			Value:   cli.NewFloat64Slice(-180, -90, 180, 90),
			EnvVars: []string{strcase.ToScreamingSnake(EXTENT)},
		},
		&cli.Float64SliceFlag{
			Name:    RESOLUTIONS,
			Usage:   "Resolutions (CRS units per pixel, coarsest first) of a tile matrix set built from resolutions",
			EnvVars: []string{strcase.ToScreamingSnake(RESOLUTIONS)},
		},
		&cli.UintFlag{
			Name:    TILESIZE,
			Usage:   "Tile size in pixels of a tile matrix set built from resolutions",
			Value:   256,
			EnvVars: []string{strcase.ToScreamingSnake(TILESIZE)},
		},
		&cli.StringFlag{
			Name:    CONFIG,
			Aliases: []string{"c"},
			Usage:   "Layer config YAML file",
			EnvVars: []string{strcase.ToScreamingSnake(CONFIG)},
		},
		&cli.StringFlag{
			Name:    IDENTIFIER,
			Usage:   "Layer identifier, when no config file is given",
			Value:   "layer",
			EnvVars: []string{strcase.ToScreamingSnake(IDENTIFIER)},
		},
		&cli.Float64Flag{
			Name:    LATITUDE,
			Usage:   "Latitude of the camera (degrees)",
			Value:   52.1,
			EnvVars: []string{strcase.ToScreamingSnake(LATITUDE)},
		},
		&cli.Float64Flag{
			Name:    LONGITUDE,
			Usage:   "Longitude of the camera (degrees)",
			Value:   5.2,
			EnvVars: []string{strcase.ToScreamingSnake(LONGITUDE)},
		},
		&cli.Float64Flag{
			Name:    ALTITUDE,
			Usage:   "Altitude of the camera (meters)",
			Value:   1e6,
			EnvVars: []string{strcase.ToScreamingSnake(ALTITUDE)},
		},
		&cli.Float64Flag{
			Name:    ZOOM,
			Usage:   "Factor the altitude is multiplied with every frame",
			Value:   1,
			EnvVars: []string{strcase.ToScreamingSnake(ZOOM)},
		},
		&cli.IntSliceFlag{
			Name:    VIEWPORT,
			Usage:   "Viewport width and height in pixels",
			Value:   cli.NewIntSlice(1280, 800),
			EnvVars: []string{strcase.ToScreamingSnake(VIEWPORT)},
		},
		&cli.IntFlag{
			Name:    FRAMES,
			Aliases: []string{"n"},
			Usage:   "Maximum number of frames. Stops earlier when no more tiles are being retrieved",
			Value:   100,
			EnvVars: []string{strcase.ToScreamingSnake(FRAMES)},
		},
		&cli.DurationFlag{
			Name:    INTERVAL,
			Usage:   "Time between frames",
			Value:   100 * time.Millisecond,
			EnvVars: []string{strcase.ToScreamingSnake(INTERVAL)},
		},
		&cli.UintFlag{
			Name:    WKTLENGTH,
			Usage:   "Truncate the WKT of the printed tiles to this many characters, 0 for no truncation",
			Value:   80,
			EnvVars: []string{strcase.ToScreamingSnake(WKTLENGTH)},
		},
		&cli.BoolFlag{
			Name:    DEBUG,
			Usage:   "Log debug messages",
			EnvVars: []string{strcase.ToScreamingSnake(DEBUG)},
		},
		&cli.StringFlag{
			Name:    LOGFILE,
			Usage:   "Also log to this file, as JSON",
			EnvVars: []string{strcase.ToScreamingSnake(LOGFILE)},
		},
	}

	app.Action = func(c *cli.Context) error {
		logger.InitWithFile(c.Bool(DEBUG), c.String(LOGFILE))
		defer logger.Sync()
		l := logger.Get()

		cfg := pyramid.DefaultConfig(c.String(IDENTIFIER))
		if c.IsSet(CONFIG) {
			var err error
			if cfg, err = pyramid.LoadConfig(c.String(CONFIG)); err != nil {
				return err
			}
		}
		var tileMatrixSet tms20.TileMatrixSet
		var err error
		switch {
		case c.IsSet(TILEMATRIXSET):
			tileMatrixSet, err = tms20.LoadTileMatrixSet(c.String(TILEMATRIXSET))
		case c.IsSet(RESOLUTIONS):
			tileMatrixSet, err = buildTileMatrixSet(c.String(CRS), c.Float64Slice(EXTENT), c.Float64Slice(RESOLUTIONS), c.Uint(TILESIZE))
		default:
			err = fmt.Errorf("either --%s or --%s is required", TILEMATRIXSET, RESOLUTIONS)
		}
		if err != nil {
			return err
		}

		source := c.String(SOURCE)
		retriever, closeSource, opts, err := openSource(source, c.String(TABLE), cfg.Format, c.Duration(TIMEOUT))
		if err != nil {
			return err
		}
		defer closeSource()
		if c.IsSet(CACHEFILE) {
			cache, err := retrieval.OpenBoltCache(c.String(CACHEFILE), retriever)
			if err != nil {
				return err
			}
			defer cache.Close()
			retriever = cache
		}

		layer, err := pyramid.New(cfg, tileMatrixSet, source, retriever, append(opts, pyramid.WithLogger(l))...)
		if err != nil {
			return err
		}

		viewport := c.IntSlice(VIEWPORT)
		if len(viewport) != 2 {
			return fmt.Errorf("viewport needs a width and a height, got %v", viewport)
		}
		camera := scene.NewCamera(globe.NewWGS84(nil), viewport[0], viewport[1])
		camera.MoveTo(c.Float64(LATITUDE), c.Float64(LONGITUDE), c.Float64(ALTITUDE))

		ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
		defer stop()

		l.Info("=== start frames ===", zap.String("tileMatrixSet", tileMatrixSet.ID), zap.Stringer("sector", layer.LevelSet().Sector))
		tiles := make(chan []*tile.Tile)
		g, ctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			defer close(tiles)
			return runFrames(ctx, layer, camera, frameSettings{
				frames:   c.Int(FRAMES),
				interval: c.Duration(INTERVAL),
				zoom:     c.Float64(ZOOM),
			}, tiles, l)
		})
		g.Go(func() error {
			var last []*tile.Tile
			for t := range tiles {
				last = t
			}
			extents := make([]geom.Extent, 0, len(last))
			for _, t := range last {
				extents = append(extents, t.Sector.Extent())
			}
			l.Debug("displayed footprint", zap.String("wkt",
				geomhelp.WktMustEncode(geomhelp.ExtentsToMultiPolygon(extents), c.Uint(WKTLENGTH))))
			return printTiles(os.Stdout, last, c.Uint(WKTLENGTH))
		})
		if err = g.Wait(); err != nil {
			return err
		}
		l.Info("=== done frames ===")
		return nil
	}

	err := app.Run(os.Args)
	if err != nil {
		log.Fatal(err)
	}
}

// buildTileMatrixSet builds a tile matrix set with one level per resolution. The extent is in CRS axis order.
func buildTileMatrixSet(crs string, extent, resolutions []float64, tileSize uint) (tms20.TileMatrixSet, error) {
	projection, err := tms20.ParseProjection(crs)
	if err != nil {
		return tms20.TileMatrixSet{}, err
	}
	if len(extent) != 4 {
		return tms20.TileMatrixSet{}, fmt.Errorf("extent needs minx, miny, maxx and maxy, got %v", extent)
	}
	e := geom.Extent{extent[0], extent[1], extent[2], extent[3]}
	topLeft := tms20.TwoDPoint{e.MinX(), e.MaxY()}
	if projection == tms20.EPSG4326 {
		topLeft = tms20.TwoDPoint{e.MaxX(), e.MinY()}
	}
	return tms20.NewTileMatrixSet(tms20.Params{
		ID:            projection.String(),
		Projection:    projection,
		Extent:        e,
		Resolutions:   resolutions,
		TileSize:      tileSize,
		TopLeftCorner: topLeft,
	})
}

// openSource returns a GeoPackage retriever for files and an HTTP retriever for URLs.
func openSource(source, table, format string, timeout time.Duration) (retrieval.Retriever, func() error, []pyramid.Option, error) {
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		client := &http.Client{Timeout: timeout}
		return retrieval.NewHTTP(retrieval.PathURL(source, tile.SuffixForMimeType(format)), client), func() error { return nil }, nil, nil
	}
	if _, err := os.Stat(source); err != nil {
		return nil, nil, nil, fmt.Errorf("error opening source GeoPackage: %w", err)
	}
	gpkg, err := retrieval.OpenGeoPackage(source, table)
	if err != nil {
		return nil, nil, nil, err
	}
	// a tile missing from a local file will stay missing
	return gpkg, gpkg.Close, []pyramid.Option{pyramid.WithPermanentAbsence()}, nil
}

type frameSettings struct {
	frames   int
	interval time.Duration
	zoom     float64
}

// runFrames renders frames until the layer is complete for the view, the maximum number of frames
// is reached or ctx is done. The tiles of every frame are sent to tiles.
func runFrames(ctx context.Context, layer *pyramid.Layer, camera *scene.Camera, s frameSettings, tiles chan<- []*tile.Tile, l *zap.Logger) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	ctx, cancel := context.WithCancel(ctx)
	defer layer.Wait()
	// retrievals still in flight after the last frame are abandoned
	defer cancel()

	for frame := 0; frame < s.frames; frame++ {
		current := layer.Frame(ctx, camera)
		stats := layer.Stats()
		l.Info("frame",
			zap.Int("frame", frame),
			zap.Int("tiles", len(current)),
			zap.Int("updates", stats.TileUpdates),
			zap.Int("retrievals", stats.Retrievals),
			zap.Int("completions", stats.Completions),
			zap.Int("failures", stats.Failures),
			zap.Int("inFlight", len(layer.InFlight())))

		select {
		case tiles <- current:
		case <-ctx.Done():
			// interrupted, the tiles of the last frame are still printed
			return nil
		}
		if s.zoom == 1 && stats.Retrievals == 0 && stats.Completions == 0 && stats.Failures == 0 && len(layer.InFlight()) == 0 {
			return nil
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return nil
		}
		if s.zoom != 1 {
			lat, lon, alt := camera.Position()
			camera.MoveTo(lat, lon, alt*s.zoom)
		}
	}
	return nil
}

func printTiles(w io.Writer, tiles []*tile.Tile, wktLength uint) error {
	for _, t := range tiles {
		if _, err := fmt.Fprintf(w, "%s\t%s\t%s\n", t.TileKey, t.ImagePath, t.WKT(wktLength)); err != nil {
			return err
		}
	}
	return nil
}

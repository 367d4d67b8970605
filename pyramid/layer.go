// Package pyramid decides every frame which tiles of a layer to display and retrieves their images.
package pyramid

import (
	"context"
	"errors"
	"time"

	"github.com/pdok/tilepyramid/absent"
	"github.com/pdok/tilepyramid/geo"
	"github.com/pdok/tilepyramid/globe"
	"github.com/pdok/tilepyramid/mathhelp"
	"github.com/pdok/tilepyramid/memcache"
	"github.com/pdok/tilepyramid/retrieval"
	"github.com/pdok/tilepyramid/texture"
	"github.com/pdok/tilepyramid/tile"
	"github.com/pdok/tilepyramid/tms20"
	"go.uber.org/zap"
)

// polarDetailFactor relaxes the detail control of tiles beyond 75 degrees latitude
const polarDetailFactor = 1.2

// DrawContext is the view a frame is assembled for.
type DrawContext interface {
	tile.View
	ModelviewProjection() geo.Matrix
	// Frustum is the view volume in model coordinates
	Frustum() geo.Frustum
	Globe() globe.Globe
	// GlobeStateKey changes whenever the globe's shape or position changes
	GlobeStateKey() uint64
	VerticalExaggeration() float64
}

// Stats counts the work of the last frame.
type Stats struct {
	TileUpdates int
	ImageTiles  int
	Retrievals  int
	AbsentSkips int
	Completions int
	Failures    int
}

// Layer is a tiled image layer. Frame must be called from a single goroutine.
type Layer struct {
	config   Config
	levels   *tile.LevelSet
	factory  *tile.Factory
	log      *zap.Logger
	now      func() time.Time
	textures texture.Factory

	tileCache    *memcache.MemoryCache[[]*tile.Tile]
	textureCache *memcache.MemoryCache[*texture.Texture]
	absent       *absent.List
	queue        *retrieval.Queue
	fetcher      *retrieval.Fetcher

	permanentAbsence bool

	topLevelTiles     []*tile.Tile
	currentTiles      []*tile.Tile
	currentFallbacks  map[*tile.Tile]struct{}
	tilesInvalid      bool
	lastMVP           geo.Matrix
	lastGlobeStateKey uint64
	stats             Stats
}

type Option func(*Layer)

// WithLogger logs to l, named pyramid.
func WithLogger(l *zap.Logger) Option {
	return func(layer *Layer) {
		layer.log = l.Named("pyramid")
	}
}

// WithClock replaces time.Now for absence windows, cache ageing and texture creation times.
func WithClock(now func() time.Time) Option {
	return func(layer *Layer) {
		layer.now = now
	}
}

// WithTextureFactory replaces the image decoder.
func WithTextureFactory(f texture.Factory) Option {
	return func(layer *Layer) {
		layer.textures = f
	}
}

// WithPermanentAbsence stops requesting tiles the retriever reported as not found,
// for sources where retrying cannot help.
func WithPermanentAbsence() Option {
	return func(layer *Layer) {
		layer.permanentAbsence = true
	}
}

// New returns a layer showing the tiles of tms, retrieved by retriever. source identifies the
// tile source in image paths.
func New(cfg Config, tms tms20.TileMatrixSet, source string, retriever retrieval.Retriever, opts ...Option) (*Layer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	levels, err := tile.NewLevelSet(tms, cfg.sector())
	if err != nil {
		return nil, err
	}

	l := &Layer{
		config:       cfg,
		levels:       levels,
		factory:      tile.NewFactory(levels, tile.CachePath(source, cfg.Identifier, cfg.Style, tms.ID, cfg.TimeString), cfg.Format),
		log:          zap.NewNop(),
		now:          time.Now,
		queue:        retrieval.NewQueue(cfg.RetrievalQueueSize),
		fetcher:      retrieval.NewFetcher(retriever, cfg.RetrievalQueueSize),
		tilesInvalid: true,
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.textures == nil {
		l.textures = texture.ImageFactory{Mercator: levels.Projection == tms20.EPSG3857, Now: l.now}
	}
	l.absent = absent.New(cfg.AbsentMaxTries, cfg.AbsentMinCheckInterval, cfg.AbsentTryAgainInterval, l.now)

	if l.tileCache, err = memcache.NewMemoryCache[[]*tile.Tile](cfg.TileCacheCapacity, cfg.TileCacheLowWater,
		memcache.WithClock[[]*tile.Tile](l.now)); err != nil {
		return nil, err
	}
	if l.textureCache, err = memcache.NewMemoryCache[*texture.Texture](cfg.TextureCacheCapacity, cfg.TextureCacheLowWater,
		memcache.WithClock[*texture.Texture](l.now)); err != nil {
		return nil, err
	}
	l.textureCache.AddListener(func(imagePath string, _ *texture.Texture) {
		l.log.Debug("texture removed from cache", zap.String("imagePath", imagePath))
		l.tilesInvalid = true
	})
	return l, nil
}

func (l *Layer) LevelSet() *tile.LevelSet {
	return l.levels
}

// CurrentTiles returns the tiles displayed in the last frame.
func (l *Layer) CurrentTiles() []*tile.Tile {
	return l.currentTiles
}

func (l *Layer) Stats() Stats {
	return l.stats
}

// Texture returns the cached texture of t, if any.
func (l *Layer) Texture(t *tile.Tile) (*texture.Texture, bool) {
	return l.textureCache.EntryForKey(t.ImagePath)
}

// InFlight returns the retrievals in flight, oldest first.
func (l *Layer) InFlight() []retrieval.Request {
	return l.queue.InFlight()
}

// Frame handles completed retrievals and returns the tiles to display. The tiles are assembled
// again only when the view, the globe or the available textures changed since the previous frame.
func (l *Layer) Frame(ctx context.Context, dc DrawContext) []*tile.Tile {
	l.stats = Stats{}
	l.Drain()

	mvp := dc.ModelviewProjection()
	if l.tilesInvalid || mvp != l.lastMVP || dc.GlobeStateKey() != l.lastGlobeStateKey {
		l.tilesInvalid = false
		l.AssembleTiles(ctx, dc)
	}
	l.lastMVP = mvp
	l.lastGlobeStateKey = dc.GlobeStateKey()
	l.stats.ImageTiles = len(l.currentTiles)
	return l.currentTiles
}

// Wait blocks until the retrievals in flight have completed. Their results are handled by the next Drain.
func (l *Layer) Wait() {
	l.fetcher.Wait()
}

// Drain handles the retrievals completed since the previous call and returns how many there were.
func (l *Layer) Drain() int {
	results := l.fetcher.Drain()
	for _, r := range results {
		l.completeRetrieval(r)
	}
	return len(results)
}

func (l *Layer) completeRetrieval(r retrieval.Result) {
	imagePath := r.Request.ImagePath
	l.queue.EndRetrieval(imagePath)

	err := r.Err
	if err == nil {
		var tex *texture.Texture
		if tex, err = l.textures.CreateTexture(r.Data, r.Request.Sector); err == nil {
			err = l.textureCache.PutEntry(imagePath, tex, tex.Size)
		}
	}
	if err != nil {
		l.stats.Failures++
		if l.permanentAbsence && errors.Is(err, retrieval.ErrTileNotFound) {
			l.absent.MarkResourceAbsentPermanently(imagePath)
		} else {
			l.absent.MarkResourceAbsent(imagePath)
		}
		l.log.Warn("image retrieval failed", zap.Stringer("request", r.Request), zap.Error(err))
		return
	}

	l.stats.Completions++
	l.absent.UnmarkResourceAbsent(imagePath)
	l.tilesInvalid = true
	l.log.Debug("image retrieval succeeded", zap.String("imagePath", imagePath), zap.Int("bytes", len(r.Data)))
}

// AssembleTiles selects the tiles to display for the view of dc, starting retrievals of missing images.
func (l *Layer) AssembleTiles(ctx context.Context, dc DrawContext) {
	l.currentTiles = nil
	l.currentFallbacks = make(map[*tile.Tile]struct{})

	if len(l.topLevelTiles) == 0 {
		l.topLevelTiles = l.factory.TopLevelTiles()
	}
	for _, t := range l.topLevelTiles {
		l.updateTile(dc, t)
		if l.isTileVisible(dc, t) {
			l.addTileOrDescendants(ctx, dc, t, nil)
		}
	}
	l.log.Debug("assembled tiles", zap.Int("tiles", len(l.currentTiles)), zap.Int("updates", l.stats.TileUpdates))
}

func (l *Layer) updateTile(dc DrawContext, t *tile.Tile) {
	if t.Update(dc.Globe(), dc.VerticalExaggeration(), dc.GlobeStateKey()) {
		l.stats.TileUpdates++
	}
}

func (l *Layer) isTileVisible(dc DrawContext, t *tile.Tile) bool {
	return l.levels.Sector.Intersects(t.Sector) && t.Extent.IntersectsFrustum(dc.Frustum())
}

// addTileOrDescendants adds t when its resolution suffices for the view, or else its visible
// descendants. ancestor is the nearest coarser tile that may stand in for missing descendants.
func (l *Layer) addTileOrDescendants(ctx context.Context, dc DrawContext, t *tile.Tile, ancestor *tile.Tile) {
	t = l.wrapColumn(dc, t)

	if l.tileMeetsRenderingCriteria(dc, t) {
		l.addTile(ctx, t, ancestor)
		return
	}

	if l.textureCache.ContainsKey(t.ImagePath) || t.Level.Number == 0 {
		ancestor = t
	}
	next := l.levels.Level(t.Level.Number + 1)
	for _, child := range l.factory.SubdivideToCache(t, next, l.tileCache) {
		l.updateTile(dc, child)
		if l.isTileVisible(dc, child) {
			l.addTileOrDescendants(ctx, dc, child, ancestor)
		}
	}
}

// wrapColumn returns t, or a tile at the same place with the column wrapped into the matrix
// when it crossed the antimeridian.
func (l *Layer) wrapColumn(dc DrawContext, t *tile.Tile) *tile.Tile {
	column := mathhelp.EuclidianMod(t.Column, t.Level.MatrixWidth)
	if column == t.Column {
		return t
	}
	wrapped := l.factory.CreateTile(t.Level, t.Row, column)
	l.updateTile(dc, wrapped)
	return wrapped
}

func (l *Layer) tileMeetsRenderingCriteria(dc DrawContext, t *tile.Tile) bool {
	detail := l.config.DetailControl
	if t.Sector.MinLatitude >= 75 || t.Sector.MaxLatitude <= -75 {
		detail *= polarDetailFactor
	}
	return l.levels.IsLastLevel(t.Level) || !t.MustSubdivide(dc, dc.Globe().EquatorialRadius(), detail)
}

// addTile displays t if its texture is available, or else starts retrieving it and displays the
// ancestor in its place.
func (l *Layer) addTile(ctx context.Context, t *tile.Tile, ancestor *tile.Tile) {
	t.FallbackTile = nil

	if tex, ok := l.textureCache.EntryForKey(t.ImagePath); ok {
		l.currentTiles = append(l.currentTiles, t)
		// the expired texture is displayed until the new one arrives
		if l.isTextureExpired(tex) {
			l.retrieveTileImage(ctx, t)
		}
		return
	}

	l.retrieveTileImage(ctx, t)

	if ancestor != nil && l.textureCache.ContainsKey(ancestor.ImagePath) {
		t.FallbackTile = ancestor
		if _, ok := l.currentFallbacks[ancestor]; !ok {
			l.currentFallbacks[ancestor] = struct{}{}
			l.currentTiles = append(l.currentTiles, ancestor)
		}
	}
}

func (l *Layer) isTextureExpired(tex *texture.Texture) bool {
	exp := l.config.Expiration
	return exp != nil && !l.now().Before(*exp) && !tex.CreationTime.After(*exp)
}

func (l *Layer) retrieveTileImage(ctx context.Context, t *tile.Tile) {
	if l.absent.IsResourceAbsent(t.ImagePath) {
		l.stats.AbsentSkips++
		l.log.Debug("image absent, not retrieving", zap.String("imagePath", t.ImagePath))
		return
	}
	req := retrieval.Request{
		ImagePath: t.ImagePath,
		MatrixID:  t.Level.ID,
		Level:     t.Level.Number,
		Zoom:      t.Level.Zoom,
		Row:       t.Row,
		Column:    t.Column,
		Sector:    t.Sector,
	}
	if !l.queue.BeginRetrieval(req) {
		return
	}
	l.stats.Retrievals++
	l.fetcher.Fetch(ctx, req)
}

package app

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"

	"github.com/sho7650/content-rotation/internal/config"
	"github.com/sho7650/content-rotation/internal/content"
	"github.com/sho7650/content-rotation/internal/core"
	"github.com/sho7650/content-rotation/internal/logger"
	"github.com/sho7650/content-rotation/internal/rotation"
	"github.com/sho7650/content-rotation/internal/showcase"
	"github.com/sho7650/content-rotation/internal/storage"
)

const productsService = "products"

// App wires the store, the fetch service, one rotator per slot, the product
// grid and the HTTP server from a single configuration
type App struct {
	clock     clockwork.Clock
	log       logrus.FieldLogger
	store     storage.ContentStore
	ownsStore bool

	mu        sync.Mutex
	ctx       context.Context
	cfg       *config.Config
	content   *content.Service
	preloader rotation.Preloader
	server    *showcase.Server
	rotators  map[string]*rotation.Rotator
	products  *showcase.ProductImages
	monitor   *HealthMonitor
	running   bool

	healthInterval time.Duration
}

// Option configures an App
type Option func(*App)

// WithClock sets the clock shared by every component
func WithClock(clock clockwork.Clock) Option {
	return func(a *App) {
		a.clock = clock
	}
}

// WithStore uses an already initialized store instead of opening one from
// the configuration. The caller keeps ownership.
func WithStore(store storage.ContentStore) Option {
	return func(a *App) {
		a.store = store
	}
}

// WithPreloader replaces the HTTP preloader
func WithPreloader(preloader rotation.Preloader) Option {
	return func(a *App) {
		a.preloader = preloader
	}
}

// WithHealthInterval sets how often service health is polled
func WithHealthInterval(interval time.Duration) Option {
	return func(a *App) {
		a.healthInterval = interval
	}
}

// WithLogger sets the application logger
func WithLogger(log logrus.FieldLogger) Option {
	return func(a *App) {
		a.log = log
	}
}

// New creates a stopped application for cfg
func New(cfg *config.Config, opts ...Option) *App {
	a := &App{
		cfg:      cfg,
		clock:    clockwork.NewRealClock(),
		rotators: make(map[string]*rotation.Rotator),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.log == nil {
		a.log = logger.Get("app")
	}
	if a.preloader == nil {
		a.preloader = rotation.NewHTTPPreloader(cfg.Preload.TimeoutDuration(), cfg.Preload.VideoBytes)
	}
	return a
}

// OpenStore creates and initializes the store selected by cfg
func OpenStore(ctx context.Context, cfg config.StoreConfig) (storage.ContentStore, error) {
	var store storage.ContentStore
	switch cfg.Driver {
	case config.DriverSQLite:
		var opts []storage.SQLiteOption
		if cfg.SQLite.SchemaVersion > 0 {
			opts = append(opts, storage.WithSchemaVersion(cfg.SQLite.SchemaVersion))
		}
		store = storage.NewSQLiteStore(cfg.SQLite.Path, opts...)
	case config.DriverMongo:
		store = storage.NewMongoStore(cfg.Mongo.URI, cfg.Mongo.Database)
	case config.DriverMemory:
		store = storage.NewMemoryStorage()
	default:
		return nil, fmt.Errorf("unsupported store driver: %s", cfg.Driver)
	}

	if err := store.Initialize(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize %s store: %w", cfg.Driver, err)
	}
	return store, nil
}

// Start opens the store and starts every enabled component. ctx bounds the
// lifetime of the rotators; call Stop to shut down in order.
func (a *App) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.running {
		return fmt.Errorf("application already running")
	}

	if a.store == nil {
		store, err := OpenStore(ctx, a.cfg.Store)
		if err != nil {
			return err
		}
		a.store = store
		a.ownsStore = true
	}

	a.ctx = ctx
	a.content = content.NewService(a.store,
		content.WithClock(a.clock),
		content.WithScanLimit(a.cfg.Store.ScanLimit),
		content.WithLogger(logger.Get("content")),
	)

	read, write, idle := a.cfg.HTTP.Timeouts()
	a.server = showcase.NewServer(showcase.ServerOptions{
		Address:        a.cfg.HTTP.Address,
		AllowedOrigins: a.cfg.HTTP.AllowedOrigins,
		ReadTimeout:    read,
		WriteTimeout:   write,
		IdleTimeout:    idle,
	}, a.clock, logger.Get("http"))
	a.monitor = NewHealthMonitor(a.clock, a.healthInterval, logger.Get("health"))

	for _, name := range sortedNames(a.cfg.Rotators) {
		rc := a.cfg.Rotators[name]
		if !rc.IsEnabled() {
			continue
		}
		if err := a.startRotator(name, rc); err != nil {
			a.shutdown()
			return err
		}
	}

	if a.cfg.Products.Enabled {
		if err := a.startProducts(a.cfg.Products); err != nil {
			a.shutdown()
			return err
		}
	}

	if err := a.server.Start(ctx); err != nil {
		a.shutdown()
		return err
	}

	a.monitor.Start(ctx)
	a.running = true
	a.log.WithFields(logrus.Fields{
		"rotators": len(a.rotators),
		"products": a.products != nil,
		"season":   a.content.CurrentSeason(),
	}).Info("Content rotation started")
	return nil
}

// Reload applies cfg to the running application. Rotators and the product
// grid whose settings changed are restarted; store and HTTP changes need a
// restart of the process and are only reported.
func (a *App) Reload(cfg *config.Config) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.running {
		return fmt.Errorf("application is not running")
	}

	old := a.cfg
	if !reflect.DeepEqual(old.Store, cfg.Store) {
		a.log.Warn("Store settings changed; restart to apply")
	}
	if !reflect.DeepEqual(old.HTTP, cfg.HTTP) {
		a.log.Warn("HTTP settings changed; restart to apply")
	}
	if !reflect.DeepEqual(old.Log, cfg.Log) {
		if err := logger.Init(cfg.Log); err != nil {
			a.log.WithError(err).Warn("Failed to apply log settings")
		}
	}

	var errs []error
	for name, rotator := range a.rotators {
		next, ok := cfg.Rotators[name]
		if ok && next.IsEnabled() && reflect.DeepEqual(old.Rotators[name], next) {
			continue
		}
		a.closeRotator(name, rotator)
		a.log.WithField("slot", name).Info("Rotator stopped by reload")
	}
	for _, name := range sortedNames(cfg.Rotators) {
		rc := cfg.Rotators[name]
		if _, running := a.rotators[name]; running || !rc.IsEnabled() {
			continue
		}
		if err := a.startRotator(name, rc); err != nil {
			errs = append(errs, err)
			continue
		}
		a.log.WithField("slot", name).Info("Rotator started by reload")
	}

	if !reflect.DeepEqual(old.Products, cfg.Products) {
		a.closeProducts()
		if cfg.Products.Enabled {
			if err := a.startProducts(cfg.Products); err != nil {
				errs = append(errs, err)
			}
		}
	}

	a.cfg = cfg
	return errors.Join(errs...)
}

// Stop shuts down the HTTP server, the rotators and the store
func (a *App) Stop(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.running {
		return nil
	}
	a.running = false

	a.monitor.Stop()

	var errs []error
	if err := a.server.Stop(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := a.shutdown(); err != nil {
		errs = append(errs, err)
	}

	a.log.Info("Content rotation stopped")
	return errors.Join(errs...)
}

// Server returns the HTTP server
func (a *App) Server() *showcase.Server {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.server
}

// Monitor returns the health monitor
func (a *App) Monitor() *HealthMonitor {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.monitor
}

// Rotator returns the rotator behind slot name
func (a *App) Rotator(name string) (*rotation.Rotator, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	r, ok := a.rotators[name]
	return r, ok
}

// Products returns the product grid rotation, if enabled
func (a *App) Products() *showcase.ProductImages {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.products
}

func (a *App) startRotator(name string, rc config.RotatorConfig) error {
	opts, err := rc.Options()
	if err != nil {
		return fmt.Errorf("rotator '%s': %w", name, err)
	}

	r, err := rotation.Start(a.ctx, a.content, opts,
		rotation.WithName(name),
		rotation.WithClock(a.clock),
		rotation.WithPreloader(a.preloader),
		rotation.WithLogger(logger.Get("rotation")),
	)
	if err != nil {
		return fmt.Errorf("failed to start rotator '%s': %w", name, err)
	}

	a.rotators[name] = r
	a.server.SetSlot(showcase.NewSlot(name, r, fallbackURL(name, rc)))
	a.server.SetService(name, r)
	a.monitor.Register(name, r)
	return nil
}

func (a *App) closeRotator(name string, r *rotation.Rotator) {
	a.server.RemoveSlot(name)
	a.monitor.Unregister(name)
	if err := r.Close(); err != nil {
		a.log.WithError(err).WithField("slot", name).Warn("Failed to close rotator")
	}
	delete(a.rotators, name)
}

func (a *App) startProducts(pc config.ProductsConfig) error {
	opts := []showcase.ProductOption{
		showcase.WithProductClock(a.clock),
		showcase.WithProductInterval(pc.IntervalDuration()),
		showcase.WithProductLogger(logger.Get("showcase")),
	}
	if pc.PoolSize > 0 {
		opts = append(opts, showcase.WithProductPoolSize(pc.PoolSize))
	}
	if pc.Season != "" {
		opts = append(opts, showcase.WithProductSeason(core.Season(pc.Season)))
	}

	products := showcase.NewProductImages(a.content, opts...)
	if err := products.Start(a.ctx); err != nil {
		return fmt.Errorf("failed to start product images: %w", err)
	}

	a.products = products
	a.server.SetProducts(products)
	a.server.SetService(productsService, products)
	a.monitor.Register(productsService, products)
	return nil
}

func (a *App) closeProducts() {
	if a.products == nil {
		return
	}
	a.server.SetProducts(nil)
	a.server.RemoveSlot(productsService)
	a.monitor.Unregister(productsService)
	_ = a.products.Close()
	a.products = nil
}

// shutdown releases every component except the HTTP server
func (a *App) shutdown() error {
	for name, r := range a.rotators {
		a.closeRotator(name, r)
	}
	a.closeProducts()

	if a.ownsStore && a.store != nil {
		err := a.store.Close()
		a.store = nil
		a.ownsStore = false
		if err != nil {
			return fmt.Errorf("failed to close store: %w", err)
		}
	}
	return nil
}

func fallbackURL(name string, rc config.RotatorConfig) string {
	if rc.FallbackURL != "" {
		return rc.FallbackURL
	}
	switch {
	case name == "hero", rc.ContentType == string(core.ContentTypeVideo):
		return showcase.HeroFallbackURL
	default:
		return showcase.AboutFallbackURL
	}
}

func sortedNames(rotators map[string]config.RotatorConfig) []string {
	names := make([]string, 0, len(rotators))
	for name := range rotators {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

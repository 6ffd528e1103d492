package showcase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"

	"github.com/sho7650/content-rotation/internal/core"
	"github.com/sho7650/content-rotation/internal/logger"
	"github.com/sho7650/content-rotation/internal/rotation"
	"github.com/sho7650/content-rotation/pkg/core/interfaces"
)

const (
	DefaultProductPoolSize = 20
	DefaultProductInterval = 30 * time.Second
)

// ProductFallbackURLs are the stock images used while no photos are available
var ProductFallbackURLs = []string{
	"https://images.unsplash.com/photo-1559056199-641a0ac8b55e?w=800&q=80",
	"https://images.unsplash.com/photo-1514432324607-a09d9b4aefdd?w=800&q=80",
	"https://images.unsplash.com/photo-1447933601403-0c6688de566e?w=800&q=80",
	"https://images.unsplash.com/photo-1610889556528-9a770e32642f?w=800&q=80",
	"https://images.unsplash.com/photo-1442512595331-e89e73853f31?w=800&q=80",
	"https://images.unsplash.com/photo-1509042239860-f550ce710b93?w=800&q=80",
}

// ProductImages spreads one photo pool across the product grid and shifts
// every slot together on its own ticker
type ProductImages struct {
	fetcher  rotation.Fetcher
	clock    clockwork.Clock
	interval time.Duration
	poolSize int
	season   core.Season
	log      logrus.FieldLogger

	mu      sync.RWMutex
	pool    []*core.ContentItem
	index   int
	loading bool
	err     error
	started bool
	closed  bool

	cancel context.CancelFunc
	wg     sync.WaitGroup
	ticker clockwork.Ticker
}

// ProductOption configures ProductImages
type ProductOption func(*ProductImages)

// WithProductClock sets the clock driving the product ticker
func WithProductClock(clock clockwork.Clock) ProductOption {
	return func(p *ProductImages) {
		p.clock = clock
	}
}

// WithProductInterval overrides the 30 second shift interval
func WithProductInterval(interval time.Duration) ProductOption {
	return func(p *ProductImages) {
		p.interval = interval
	}
}

// WithProductPoolSize overrides the 20 photo pool
func WithProductPoolSize(size int) ProductOption {
	return func(p *ProductImages) {
		p.poolSize = size
	}
}

// WithProductSeason pins the season instead of detecting it
func WithProductSeason(season core.Season) ProductOption {
	return func(p *ProductImages) {
		p.season = season
	}
}

// WithProductLogger sets the logger
func WithProductLogger(log logrus.FieldLogger) ProductOption {
	return func(p *ProductImages) {
		p.log = log
	}
}

// NewProductImages creates a stopped product image rotation over fetcher
func NewProductImages(fetcher rotation.Fetcher, opts ...ProductOption) *ProductImages {
	p := &ProductImages{
		fetcher:  fetcher,
		clock:    clockwork.NewRealClock(),
		interval: DefaultProductInterval,
		poolSize: DefaultProductPoolSize,
		season:   core.SeasonAuto,
		loading:  true,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.log == nil {
		p.log = logger.Get("showcase")
	}
	return p
}

// Start loads the photo pool once and starts the shift ticker
func (p *ProductImages) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return core.ErrClosed
	}
	if p.started {
		p.mu.Unlock()
		return fmt.Errorf("product images already started")
	}
	if p.interval <= 0 || p.poolSize <= 0 {
		p.mu.Unlock()
		return fmt.Errorf("%w: interval and pool size must be positive", core.ErrInvalidOptions)
	}
	p.started = true

	ctx, p.cancel = context.WithCancel(ctx)
	p.ticker = p.clock.NewTicker(p.interval)
	p.mu.Unlock()

	p.wg.Add(1)
	go p.run(ctx)
	return nil
}

func (p *ProductImages) run(ctx context.Context) {
	defer p.wg.Done()

	go p.load(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.ticker.Chan():
			p.advance()
		}
	}
}

func (p *ProductImages) load(ctx context.Context) {
	items, err := p.fetcher.FetchActive(ctx, core.ContentTypePhoto, p.season, p.poolSize)

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}

	p.loading = false
	if err != nil {
		p.err = err
		p.log.WithError(err).Error("Failed to load product images")
		return
	}
	if len(items) > 0 {
		if len(items) > p.poolSize {
			items = items[:p.poolSize]
		}
		p.pool = append([]*core.ContentItem(nil), items...)
		p.index = 0
	}
	p.log.WithField("photo_count", len(p.pool)).Info("Product images loaded")
}

func (p *ProductImages) advance() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed || len(p.pool) == 0 {
		return
	}
	p.index = (p.index + 1) % len(p.pool)
}

// Images returns count image URLs; slot i shows pool[(index+i) mod len].
// With an empty pool the stock images are returned, cycled to count.
func (p *ProductImages) Images(count int) []string {
	if count <= 0 {
		return []string{}
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	images := make([]string, 0, count)
	if len(p.pool) == 0 {
		for i := 0; i < count; i++ {
			images = append(images, ProductFallbackURLs[i%len(ProductFallbackURLs)])
		}
		return images
	}

	for i := 0; i < count; i++ {
		images = append(images, p.pool[(p.index+i)%len(p.pool)].URL)
	}
	return images
}

// PhotoCount returns the number of photos in the pool
func (p *ProductImages) PhotoCount() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.pool)
}

// Loading reports whether the initial load is still running
func (p *ProductImages) Loading() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.loading
}

// Index returns the current shift offset
func (p *ProductImages) Index() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.index
}

// Close stops the ticker; a load that finishes later is ignored
func (p *ProductImages) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	started := p.started
	p.mu.Unlock()

	if !started {
		return nil
	}
	p.cancel()
	p.wg.Wait()
	p.ticker.Stop()
	return nil
}

// Stop implements interfaces.Service
func (p *ProductImages) Stop(ctx context.Context) error {
	return p.Close()
}

// Health implements interfaces.Service
func (p *ProductImages) Health() interfaces.ServiceHealth {
	p.mu.RLock()
	defer p.mu.RUnlock()

	health := interfaces.ServiceHealth{
		Status:    interfaces.StatusHealthy,
		Timestamp: p.clock.Now(),
		Details: map[string]interface{}{
			"photo_count": len(p.pool),
			"index":       p.index,
		},
	}
	switch {
	case p.closed || !p.started:
		health.Status = interfaces.StatusStopped
		health.Message = "Product images are not running"
	case p.err != nil:
		health.Status = interfaces.StatusWarning
		health.Message = fmt.Sprintf("Serving stock images: %v", p.err)
	case len(p.pool) == 0 && !p.loading:
		health.Status = interfaces.StatusWarning
		health.Message = "No photos available, serving stock images"
	default:
		health.Message = fmt.Sprintf("Rotating %d photos", len(p.pool))
	}
	return health
}

// Info implements interfaces.Service
func (p *ProductImages) Info() interfaces.ServiceInfo {
	return interfaces.ServiceInfo{
		Name:        "product-images",
		Version:     "1.0.0",
		Type:        "rotation",
		Description: "Product grid photo rotation",
	}
}

// Capabilities implements interfaces.Service
func (p *ProductImages) Capabilities() []interfaces.Capability {
	return []interfaces.Capability{
		{
			Type:      interfaces.CapabilityAutoRotate,
			Supported: true,
			Config:    map[string]interface{}{"interval": p.interval.String()},
		},
	}
}

var _ interfaces.Service = (*ProductImages)(nil)

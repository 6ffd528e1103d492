package rotation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"

	"github.com/sho7650/content-rotation/internal/core"
	"github.com/sho7650/content-rotation/internal/logger"
	"github.com/sho7650/content-rotation/pkg/core/interfaces"
)

// Fetcher loads a pool of active content
type Fetcher interface {
	FetchActive(ctx context.Context, contentType core.ContentType, season core.Season, maxResults int) ([]*core.ContentItem, error)
}

// FetcherFunc adapts a function to Fetcher
type FetcherFunc func(ctx context.Context, contentType core.ContentType, season core.Season, maxResults int) ([]*core.ContentItem, error)

func (f FetcherFunc) FetchActive(ctx context.Context, contentType core.ContentType, season core.Season, maxResults int) ([]*core.ContentItem, error) {
	return f(ctx, contentType, season, maxResults)
}

// State is a consistent view of a Rotator. Pool and Index always belong to
// the same pool load.
type State struct {
	Current     *core.ContentItem
	Next        *core.ContentItem
	Pool        []*core.ContentItem
	Index       int
	Loading     bool
	Err         error
	LastRefresh time.Time
}

type fetchResult struct {
	items []*core.ContentItem
	err   error
}

// Rotator owns a content pool, a rotation ticker and a refresh ticker.
// Close stops both tickers; no fetch or state change happens afterwards.
type Rotator struct {
	name      string
	opts      Options
	fetcher   Fetcher
	clock     clockwork.Clock
	preloader Preloader
	log       logrus.FieldLogger
	onChange  func(State)
	createdAt time.Time

	mu          sync.RWMutex
	pool        []*core.ContentItem
	index       int
	loading     bool
	err         error
	lastRefresh time.Time
	fetches     int
	rotations   int
	started     bool
	closed      bool

	ctx           context.Context
	cancel        context.CancelFunc
	wg            sync.WaitGroup
	requests      chan chan error
	results       chan fetchResult
	rotateTicker  clockwork.Ticker
	refreshTicker clockwork.Ticker
	cache         *preloadCache
}

// New validates opts and creates a stopped Rotator
func New(fetcher Fetcher, opts Options, options ...Option) (*Rotator, error) {
	if fetcher == nil {
		return nil, fmt.Errorf("%w: fetcher is required", core.ErrInvalidOptions)
	}
	if opts.Season == "" {
		opts.Season = core.SeasonAuto
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	r := &Rotator{
		name:     fmt.Sprintf("%s-rotator", opts.ContentType),
		opts:     opts,
		fetcher:  fetcher,
		clock:    clockwork.NewRealClock(),
		loading:  true,
		requests: make(chan chan error),
		results:  make(chan fetchResult),
	}
	for _, option := range options {
		option(r)
	}
	if r.log == nil {
		r.log = logger.Get("rotation")
	}
	r.log = r.log.WithField("rotator", r.name)
	r.cache = newPreloadCache(2 * opts.MaxPoolSize)
	r.createdAt = r.clock.Now()

	return r, nil
}

// Start creates a Rotator and starts it
func Start(ctx context.Context, fetcher Fetcher, opts Options, options ...Option) (*Rotator, error) {
	r, err := New(fetcher, opts, options...)
	if err != nil {
		return nil, err
	}
	if err := r.Start(ctx); err != nil {
		return nil, err
	}
	return r, nil
}

// Start creates the refresh ticker, then begins the initial fetch in the
// background. The rotation ticker is armed when the first pool is installed.
// Cancelling ctx closes the rotator, as Close does.
func (r *Rotator) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return core.ErrClosed
	}
	if r.started {
		return fmt.Errorf("rotator %s already started", r.name)
	}
	r.started = true

	r.ctx, r.cancel = context.WithCancel(ctx)
	if r.opts.RefreshInterval > 0 {
		r.refreshTicker = r.clock.NewTicker(r.opts.RefreshInterval)
	}

	r.wg.Add(1)
	go r.run(r.ctx)

	r.log.WithFields(logrus.Fields{
		"content_type":      r.opts.ContentType,
		"season":            r.opts.Season,
		"rotation_interval": r.opts.RotationInterval,
		"refresh_interval":  r.opts.RefreshInterval,
		"max_pool_size":     r.opts.MaxPoolSize,
	}).Info("Rotation started")
	return nil
}

// Close stops both tickers and the loop. In-flight fetch results are dropped.
// Close is idempotent.
func (r *Rotator) Close() error {
	r.mu.Lock()
	wasClosed := r.closed
	r.closed = true
	started := r.started
	r.mu.Unlock()

	if !started {
		return nil
	}

	r.cancel()
	r.wg.Wait()

	if !wasClosed {
		r.log.Info("Rotation closed")
	}
	return nil
}

// Stop implements interfaces.Service
func (r *Rotator) Stop(ctx context.Context) error {
	return r.Close()
}

// Snapshot returns the current state
func (r *Rotator) Snapshot() State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snapshotLocked()
}

// Current returns the item at the rotation pointer, or nil when the pool is empty
func (r *Rotator) Current() *core.ContentItem {
	return r.Snapshot().Current
}

// RotateNow advances the pointer by one, wrapping. It is a no-op for pools of
// fewer than two items and after Close.
func (r *Rotator) RotateNow() {
	r.advance()
}

// Refresh forces an immediate re-fetch and waits for it. A refresh requested
// while a fetch is in flight is served by a follow-up fetch.
func (r *Rotator) Refresh(ctx context.Context) error {
	r.mu.RLock()
	closed, started := r.closed, r.started
	r.mu.RUnlock()
	if closed {
		return core.ErrClosed
	}
	if !started {
		return fmt.Errorf("rotator %s not started", r.name)
	}

	done := make(chan error, 1)
	select {
	case r.requests <- done:
	case <-r.ctx.Done():
		return core.ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-done:
		return err
	case <-r.ctx.Done():
		return core.ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Rotator) run(ctx context.Context) {
	defer r.wg.Done()
	defer r.halt()

	var rotateC, refreshC <-chan time.Time
	if r.refreshTicker != nil {
		refreshC = r.refreshTicker.Chan()
	}

	var (
		inFlight bool
		waiting  []chan error // served by the fetch in flight
		queued   []chan error // need a fetch that starts after their request
	)

	startFetch := func() {
		if !r.beginFetch() {
			return
		}
		inFlight = true
		go r.fetch(ctx)
	}

	startFetch()

	for {
		select {
		case <-ctx.Done():
			return

		case <-rotateC:
			r.advance()

		case <-refreshC:
			if !inFlight {
				startFetch()
			}

		case done := <-r.requests:
			if inFlight {
				queued = append(queued, done)
				continue
			}
			waiting = append(waiting, done)
			startFetch()

		case result := <-r.results:
			inFlight = false
			err := r.apply(result)
			if rotateC == nil && r.rotateTicker != nil {
				rotateC = r.rotateTicker.Chan()
			}
			for _, done := range waiting {
				done <- err
			}
			waiting, queued = queued, nil
			if len(waiting) > 0 {
				startFetch()
			}
		}
	}
}

// halt marks the rotator closed and stops its tickers once the loop exits
func (r *Rotator) halt() {
	r.mu.Lock()
	cancelled := !r.closed
	r.closed = true
	r.mu.Unlock()

	if r.rotateTicker != nil {
		r.rotateTicker.Stop()
	}
	if r.refreshTicker != nil {
		r.refreshTicker.Stop()
	}

	if cancelled {
		r.log.Info("Rotation stopped: context cancelled")
	}
}

// beginFetch marks a fetch as started; it refuses once closed
func (r *Rotator) beginFetch() bool {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return false
	}
	r.fetches++
	r.loading = true
	state := r.snapshotLocked()
	r.mu.Unlock()

	r.notify(state)
	return true
}

func (r *Rotator) fetch(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	items, err := r.fetcher.FetchActive(ctx, r.opts.ContentType, r.opts.Season, r.opts.MaxPoolSize)

	select {
	case r.results <- fetchResult{items: items, err: err}:
	case <-ctx.Done():
	}
}

// apply installs a fetch result and returns the resulting error state. A
// successful non-empty result replaces the pool and resets the pointer in one
// transition. A failed or empty result keeps any existing pool and records the error.
func (r *Rotator) apply(result fetchResult) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return core.ErrClosed
	}

	r.loading = false
	r.lastRefresh = r.clock.Now()

	switch {
	case result.err != nil:
		r.err = result.err
	case len(result.items) == 0:
		r.err = &core.NoContentError{Type: r.opts.ContentType, Season: r.opts.Season.Resolve(r.lastRefresh)}
	default:
		pool := result.items
		if len(pool) > r.opts.MaxPoolSize {
			pool = pool[:r.opts.MaxPoolSize]
		}
		r.pool = append([]*core.ContentItem(nil), pool...)
		r.index = 0
		r.err = nil
		// the first interval counts from the first installed pool
		if r.rotateTicker == nil && r.opts.RotationInterval > 0 {
			r.rotateTicker = r.clock.NewTicker(r.opts.RotationInterval)
		}
	}

	state := r.snapshotLocked()
	r.mu.Unlock()

	entry := r.log.WithField("pool_size", len(state.Pool))
	switch {
	case result.err != nil:
		entry.WithError(result.err).Error("Content fetch failed")
	case len(result.items) == 0:
		entry.WithError(state.Err).Warn("Content fetch returned no items")
	default:
		entry.Debug("Content pool replaced")
		r.evictPreloads(state.Pool)
	}

	r.notify(state)
	r.preload(state)
	return state.Err
}

// advance moves the pointer by one, wrapping
func (r *Rotator) advance() {
	r.mu.Lock()
	if r.closed || len(r.pool) < 2 {
		r.mu.Unlock()
		return
	}
	r.index = (r.index + 1) % len(r.pool)
	r.rotations++
	state := r.snapshotLocked()
	r.mu.Unlock()

	r.notify(state)
	r.preload(state)
}

func (r *Rotator) snapshotLocked() State {
	state := State{
		Pool:        append([]*core.ContentItem(nil), r.pool...),
		Index:       r.index,
		Loading:     r.loading,
		Err:         r.err,
		LastRefresh: r.lastRefresh,
	}
	if len(r.pool) > 0 {
		state.Current = r.pool[r.index]
	}
	if r.opts.PreloadNext && len(r.pool) > 1 {
		state.Next = r.pool[(r.index+1)%len(r.pool)]
	}
	return state
}

func (r *Rotator) notify(state State) {
	if r.onChange != nil {
		r.onChange(state)
	}
}

// Health implements interfaces.Service
func (r *Rotator) Health() interfaces.ServiceHealth {
	r.mu.RLock()
	defer r.mu.RUnlock()

	health := interfaces.ServiceHealth{
		Timestamp: r.clock.Now(),
		Details: map[string]interface{}{
			"pool_size":    len(r.pool),
			"index":        r.index,
			"fetches":      r.fetches,
			"rotations":    r.rotations,
			"last_refresh": r.lastRefresh,
			"preloaded":    r.cache.Len(),
		},
	}

	switch {
	case r.closed || !r.started:
		health.Status = interfaces.StatusStopped
		health.Message = "Rotation is not running"
	case r.err != nil && len(r.pool) == 0:
		health.Status = interfaces.StatusError
		health.Message = r.err.Error()
	case r.err != nil:
		health.Status = interfaces.StatusWarning
		health.Message = fmt.Sprintf("Serving last good pool: %v", r.err)
	case r.loading && len(r.pool) == 0:
		health.Status = interfaces.StatusWarning
		health.Message = "Loading content pool"
	default:
		health.Status = interfaces.StatusHealthy
		health.Message = fmt.Sprintf("Rotating %d %s items", len(r.pool), r.opts.ContentType)
	}

	return health
}

// Info implements interfaces.Service
func (r *Rotator) Info() interfaces.ServiceInfo {
	return interfaces.ServiceInfo{
		Name:        r.name,
		Version:     "1.0.0",
		Type:        "rotation",
		Description: fmt.Sprintf("Seasonal %s rotation", r.opts.ContentType),
		CreatedAt:   r.createdAt,
	}
}

// Capabilities implements interfaces.Service
func (r *Rotator) Capabilities() []interfaces.Capability {
	return []interfaces.Capability{
		{
			Type:      interfaces.CapabilityAutoRotate,
			Supported: r.opts.RotationInterval > 0,
			Config:    map[string]interface{}{"interval": r.opts.RotationInterval.String()},
		},
		{
			Type:      interfaces.CapabilityPeriodicRefresh,
			Supported: r.opts.RefreshInterval > 0,
			Config:    map[string]interface{}{"interval": r.opts.RefreshInterval.String()},
		},
		{
			Type:      interfaces.CapabilityPreload,
			Supported: r.opts.PreloadNext && r.preloader != nil,
		},
	}
}

// Options returns the validated options
func (r *Rotator) Options() Options {
	return r.opts
}

// Name returns the rotator name
func (r *Rotator) Name() string {
	return r.name
}

var _ interfaces.Service = (*Rotator)(nil)

package rotation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/valyala/fasthttp"

	"github.com/sho7650/content-rotation/internal/core"
)

// DefaultVideoPreloadBytes is how much of a video is requested when warming it
const DefaultVideoPreloadBytes = 64 * 1024

// Preloader warms the media behind a content item
type Preloader interface {
	Preload(ctx context.Context, item *core.ContentItem) error
}

// PreloaderFunc adapts a function to Preloader
type PreloaderFunc func(ctx context.Context, item *core.ContentItem) error

func (f PreloaderFunc) Preload(ctx context.Context, item *core.ContentItem) error {
	return f(ctx, item)
}

// HTTPPreloader fetches media over HTTP. Photos are fetched in full; videos
// only have their leading bytes requested so the container metadata is warm.
type HTTPPreloader struct {
	client     *fasthttp.Client
	timeout    time.Duration
	videoBytes int
}

// NewHTTPPreloader creates a preloader whose requests give up after timeout
func NewHTTPPreloader(timeout time.Duration, videoBytes int) *HTTPPreloader {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if videoBytes <= 0 {
		videoBytes = DefaultVideoPreloadBytes
	}

	return &HTTPPreloader{
		client: &fasthttp.Client{
			Name:                "content-rotation-preloader",
			MaxConnsPerHost:     16,
			ReadTimeout:         timeout,
			WriteTimeout:        timeout,
			MaxIdleConnDuration: time.Minute,
		},
		timeout:    timeout,
		videoBytes: videoBytes,
	}
}

// Preload requests item.URL and discards the body
func (p *HTTPPreloader) Preload(ctx context.Context, item *core.ContentItem) error {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(item.URL)
	req.Header.SetMethod(fasthttp.MethodGet)
	if item.Type == core.ContentTypeVideo {
		req.Header.SetByteRange(0, p.videoBytes-1)
	}

	deadline := time.Now().Add(p.timeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}

	if err := p.client.DoDeadline(req, resp, deadline); err != nil {
		return fmt.Errorf("failed to preload %s %s: %w", item.Type, item.ID, err)
	}
	if status := resp.StatusCode(); status >= fasthttp.StatusBadRequest {
		return fmt.Errorf("failed to preload %s %s: unexpected status %d", item.Type, item.ID, status)
	}
	return nil
}

// preloadCache remembers which item IDs were already requested
type preloadCache struct {
	mu       sync.Mutex
	capacity int
	order    []string
	seen     map[string]struct{}
}

func newPreloadCache(capacity int) *preloadCache {
	return &preloadCache{
		capacity: capacity,
		seen:     make(map[string]struct{}),
	}
}

// Claim records id and reports whether it was new. The oldest entries are
// dropped once the cache is over capacity.
func (c *preloadCache) Claim(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.seen[id]; ok {
		return false
	}
	c.seen[id] = struct{}{}
	c.order = append(c.order, id)

	for c.capacity > 0 && len(c.order) > c.capacity {
		delete(c.seen, c.order[0])
		c.order = c.order[1:]
	}
	return true
}

// Retain drops every entry whose id is not in keep
func (c *preloadCache) Retain(keep map[string]struct{}) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	kept := c.order[:0]
	evicted := 0
	for _, id := range c.order {
		if _, ok := keep[id]; ok {
			kept = append(kept, id)
			continue
		}
		delete(c.seen, id)
		evicted++
	}
	c.order = kept
	return evicted
}

func (c *preloadCache) Has(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.seen[id]
	return ok
}

func (c *preloadCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.order)
}

// preload warms the current and next items that were not requested before
func (r *Rotator) preload(state State) {
	if !r.opts.PreloadNext || r.preloader == nil {
		return
	}

	for _, item := range []*core.ContentItem{state.Current, state.Next} {
		if item == nil || !r.cache.Claim(item.ID) {
			continue
		}
		go func(item *core.ContentItem) {
			if err := r.preloader.Preload(r.ctx, item); err != nil {
				r.log.WithError(err).WithField("item_id", item.ID).Debug("Preload failed")
			}
		}(item)
	}
}

// evictPreloads forgets items that left the pool
func (r *Rotator) evictPreloads(pool []*core.ContentItem) {
	keep := make(map[string]struct{}, len(pool))
	for _, item := range pool {
		keep[item.ID] = struct{}{}
	}
	if evicted := r.cache.Retain(keep); evicted > 0 {
		r.log.WithField("evicted", evicted).Debug("Preload cache trimmed after refresh")
	}
}

// Preloaded reports whether id is held by the preload cache
func (r *Rotator) Preloaded(id string) bool {
	return r.cache.Has(id)
}

package content

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"

	"github.com/sho7650/content-rotation/internal/core"
	"github.com/sho7650/content-rotation/internal/logger"
	"github.com/sho7650/content-rotation/internal/storage"
)

const (
	// DefaultMaxResults is used when a fetch asks for zero or fewer results
	DefaultMaxResults = 10
	// DefaultAllMaxResults is the FetchAll default across both content types
	DefaultAllMaxResults = 20
)

// ErrScanLimitExceeded is returned when a fallback scan reads more records than allowed
var ErrScanLimitExceeded = errors.New("fallback scan limit exceeded")

// Service translates content requests into store queries
type Service struct {
	store     storage.ContentStore
	clock     clockwork.Clock
	observer  func(FallbackEvent)
	scanLimit int
	log       logrus.FieldLogger
}

// Option configures a Service
type Option func(*Service)

// WithClock sets the clock used to detect the current season
func WithClock(clock clockwork.Clock) Option {
	return func(s *Service) {
		s.clock = clock
	}
}

// WithFallbackObserver registers a callback invoked after every fallback scan
func WithFallbackObserver(observer func(FallbackEvent)) Option {
	return func(s *Service) {
		s.observer = observer
	}
}

// WithScanLimit caps how many records a fallback scan may read. 0 means unbounded.
func WithScanLimit(limit int) Option {
	return func(s *Service) {
		s.scanLimit = limit
	}
}

// WithLogger sets the logger for fallback warnings
func WithLogger(log logrus.FieldLogger) Option {
	return func(s *Service) {
		s.log = log
	}
}

// NewService creates a fetch service over store
func NewService(store storage.ContentStore, opts ...Option) *Service {
	s := &Service{
		store: store,
		clock: clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = logger.Get("content")
	}
	return s
}

// CurrentSeason returns the season of the service clock's current date
func (s *Service) CurrentSeason() core.Season {
	return core.DetectSeason(s.clock.Now())
}

// FetchActive returns up to maxResults active items of contentType for season,
// newest first. An auto season is detected from the service clock. No match
// yields an empty slice and a nil error.
func (s *Service) FetchActive(ctx context.Context, contentType core.ContentType, season core.Season, maxResults int) ([]*core.ContentItem, error) {
	if maxResults <= 0 {
		maxResults = DefaultMaxResults
	}

	return s.fetch(ctx, storage.ContentQuery{
		Type:   contentType,
		Season: season.Resolve(s.clock.Now()),
		Status: core.StatusActive,
		Limit:  maxResults,
	})
}

// FetchHoliday returns up to maxResults active items tagged with holiday
func (s *Service) FetchHoliday(ctx context.Context, contentType core.ContentType, holiday string, maxResults int) ([]*core.ContentItem, error) {
	if holiday == "" {
		return nil, fmt.Errorf("holiday name is required")
	}
	if maxResults <= 0 {
		maxResults = DefaultMaxResults
	}

	return s.fetch(ctx, storage.ContentQuery{
		Type:    contentType,
		Holiday: holiday,
		Status:  core.StatusActive,
		Limit:   maxResults,
	})
}

// FetchAll fetches photos and videos concurrently and merges them newest first
func (s *Service) FetchAll(ctx context.Context, season core.Season, maxResults int) ([]*core.ContentItem, error) {
	if maxResults <= 0 {
		maxResults = DefaultAllMaxResults
	}
	season = season.Resolve(s.clock.Now())

	types := core.ContentTypes()
	results := make([][]*core.ContentItem, len(types))
	errs := make([]error, len(types))

	var wg sync.WaitGroup
	for i, contentType := range types {
		wg.Add(1)
		go func(i int, contentType core.ContentType) {
			defer wg.Done()
			results[i], errs[i] = s.FetchActive(ctx, contentType, season, maxResults)
		}(i, contentType)
	}
	wg.Wait()

	merged := make([]*core.ContentItem, 0, maxResults)
	for i := range types {
		if errs[i] != nil {
			return nil, errs[i]
		}
		merged = append(merged, results[i]...)
	}

	core.SortNewestFirst(merged)
	if len(merged) > maxResults {
		merged = merged[:maxResults]
	}
	return merged, nil
}

// fetch runs the compound query and recovers a missing index with a scan
func (s *Service) fetch(ctx context.Context, query storage.ContentQuery) ([]*core.ContentItem, error) {
	if err := query.Validate(); err != nil {
		return nil, fmt.Errorf("invalid content query: %w", err)
	}

	items, err := s.store.Query(ctx, query)
	if err == nil {
		if items == nil {
			items = []*core.ContentItem{}
		}
		return items, nil
	}
	if !errors.Is(err, core.ErrIndexUnavailable) {
		return nil, err
	}

	return s.fallback(ctx, query, err)
}

// fallback scans the whole collection and applies the query in process
func (s *Service) fallback(ctx context.Context, query storage.ContentQuery, cause error) ([]*core.ContentItem, error) {
	start := s.clock.Now()

	all, err := s.store.Scan(ctx, query.Type)
	if err != nil {
		return nil, err
	}

	event := FallbackEvent{
		Collection: storage.CollectionName(query.Type),
		Reason:     cause,
		Scanned:    len(all),
	}

	if s.scanLimit > 0 && len(all) > s.scanLimit {
		event.Elapsed = s.clock.Since(start)
		s.report(event)
		return nil, fmt.Errorf("%w: scanned %d records of %s, limit %d",
			ErrScanLimitExceeded, len(all), event.Collection, s.scanLimit)
	}

	unlimited := query
	unlimited.Limit = 0
	matched := unlimited.Apply(all)
	event.Matched = len(matched)

	if query.Limit > 0 && len(matched) > query.Limit {
		matched = matched[:query.Limit]
	}
	event.Returned = len(matched)
	event.Elapsed = s.clock.Since(start)
	s.report(event)

	return matched, nil
}

func (s *Service) report(event FallbackEvent) {
	s.log.WithFields(event.Fields()).Warn("Compound query index unavailable, served from a full collection scan")
	if s.observer != nil {
		s.observer(event)
	}
}

// FallbackEvent describes one index-missing fallback scan
type FallbackEvent struct {
	Collection string
	Reason     error
	Scanned    int
	Matched    int
	Returned   int
	Elapsed    time.Duration
}

// Fields returns the event as structured log fields
func (e FallbackEvent) Fields() logrus.Fields {
	return logrus.Fields{
		"collection": e.Collection,
		"reason":     e.Reason,
		"scanned":    e.Scanned,
		"matched":    e.Matched,
		"returned":   e.Returned,
		"elapsed":    e.Elapsed,
	}
}

package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/sho7650/content-rotation/internal/core"
)

// ErrNotReady is returned when a store is used before Initialize or after Close
var ErrNotReady = errors.New("storage not ready")

// ContentStore defines the read contract the rotation subsystem depends on
type ContentStore interface {
	// Lifecycle
	Initialize(ctx context.Context) error
	Close() error
	IsReady() bool

	// Query runs the compound filtered, ordered and limited query. It returns an
	// error wrapping core.ErrIndexUnavailable when the backing index is missing.
	Query(ctx context.Context, query ContentQuery) ([]*core.ContentItem, error)
	// Scan returns every record of the collection for contentType, unfiltered.
	Scan(ctx context.Context, contentType core.ContentType) ([]*core.ContentItem, error)
}

// ContentWriter is implemented by stores that accept operator writes.
// The rotation subsystem itself never writes.
type ContentWriter interface {
	PutContent(ctx context.Context, item *core.ContentItem) error
	SetStatus(ctx context.Context, contentType core.ContentType, id string, status core.ContentStatus) error
}

// ContentQuery defines search parameters for content items
type ContentQuery struct {
	Type    core.ContentType
	Season  core.Season
	Holiday string
	Status  core.ContentStatus
	Limit   int
}

// Validate checks if ContentQuery can be executed
func (q ContentQuery) Validate() error {
	if err := q.Type.Validate(); err != nil {
		return err
	}
	if q.Season != "" {
		if err := q.Season.Validate(); err != nil {
			return err
		}
	}
	if q.Limit < 0 {
		return fmt.Errorf("query limit cannot be negative, got: %d", q.Limit)
	}
	return nil
}

// Matches applies the query filter to a single item in process
func (q ContentQuery) Matches(item *core.ContentItem) bool {
	if q.Season != "" && item.Season != q.Season {
		return false
	}
	if q.Holiday != "" && item.Holiday != q.Holiday {
		return false
	}
	if q.Status != "" && item.Status != q.Status {
		return false
	}
	return true
}

// Apply filters, sorts and limits items the same way the store query does
func (q ContentQuery) Apply(items []*core.ContentItem) []*core.ContentItem {
	matched := make([]*core.ContentItem, 0, len(items))
	for _, item := range items {
		if q.Matches(item) {
			matched = append(matched, item)
		}
	}

	core.SortNewestFirst(matched)

	if q.Limit > 0 && len(matched) > q.Limit {
		matched = matched[:q.Limit]
	}
	return matched
}

// IndexKind names the compound index a query needs, or "" when none is needed
func (q ContentQuery) IndexKind() string {
	switch {
	case q.Season != "":
		return "season"
	case q.Holiday != "":
		return "holiday"
	default:
		return ""
	}
}

// CollectionName returns the document collection holding contentType items
func CollectionName(contentType core.ContentType) string {
	return fmt.Sprintf("content-%ss", contentType)
}

// Ensure the stores implement both contracts
var (
	_ ContentStore  = (*SQLiteStore)(nil)
	_ ContentWriter = (*SQLiteStore)(nil)
	_ ContentStore  = (*MongoStore)(nil)
	_ ContentWriter = (*MongoStore)(nil)
	_ ContentStore  = (*MemoryStore)(nil)
	_ ContentWriter = (*MemoryStore)(nil)
)

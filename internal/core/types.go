package core

import (
	"fmt"
	"sort"
	"time"
)

// ContentType identifies the media kind of a content item
type ContentType string

const (
	ContentTypePhoto ContentType = "photo"
	ContentTypeVideo ContentType = "video"
)

// ContentStatus controls whether an item is eligible for rotation
type ContentStatus string

const (
	StatusActive   ContentStatus = "active"
	StatusArchived ContentStatus = "archived"
)

// ContentTypes lists every supported content type
func ContentTypes() []ContentType {
	return []ContentType{ContentTypePhoto, ContentTypeVideo}
}

// Validate checks if ContentType is a known value
func (t ContentType) Validate() error {
	if t != ContentTypePhoto && t != ContentTypeVideo {
		return fmt.Errorf("content type must be 'photo' or 'video', got: %q", string(t))
	}
	return nil
}

// ParseContentType converts a user supplied string into a ContentType
func ParseContentType(s string) (ContentType, error) {
	t := ContentType(s)
	if err := t.Validate(); err != nil {
		return "", err
	}
	return t, nil
}

// Validate checks if ContentStatus is a known value
func (s ContentStatus) Validate() error {
	if s != StatusActive && s != StatusArchived {
		return fmt.Errorf("content status must be 'active' or 'archived', got: %q", string(s))
	}
	return nil
}

// Metadata describes the encoded media. It is informational only.
type Metadata struct {
	Width       int     `json:"width" yaml:"width" bson:"width"`
	Height      int     `json:"height" yaml:"height" bson:"height"`
	AspectRatio string  `json:"aspectRatio" yaml:"aspect_ratio" bson:"aspectRatio"`
	FileSize    int64   `json:"fileSize" yaml:"file_size" bson:"fileSize"`
	Format      string  `json:"format" yaml:"format" bson:"format"`
	Duration    float64 `json:"duration,omitempty" yaml:"duration,omitempty" bson:"duration,omitempty"`
}

// ContentItem is one generated media asset and its placement metadata
type ContentItem struct {
	ID          string        `json:"id" yaml:"id"`
	Type        ContentType   `json:"type" yaml:"type"`
	URL         string        `json:"url" yaml:"url"`
	StoragePath string        `json:"storagePath" yaml:"storage_path"`
	Season      Season        `json:"season" yaml:"season"`
	Holiday     string        `json:"holiday,omitempty" yaml:"holiday,omitempty"`
	Status      ContentStatus `json:"status" yaml:"status"`
	Prompt      string        `json:"prompt,omitempty" yaml:"prompt,omitempty"`
	GeneratedBy string        `json:"generatedBy,omitempty" yaml:"generated_by,omitempty"`
	Metadata    Metadata      `json:"metadata" yaml:"metadata"`
	Tags        []string      `json:"tags" yaml:"tags"`
	CreatedAt   time.Time     `json:"createdAt" yaml:"created_at"`
}

// Validate checks if ContentItem has required fields
func (c *ContentItem) Validate() error {
	if err := c.Type.Validate(); err != nil {
		return err
	}
	if c.URL == "" {
		return fmt.Errorf("content item URL cannot be empty")
	}
	if err := c.Season.Validate(); err != nil {
		return err
	}
	if err := c.Status.Validate(); err != nil {
		return err
	}
	if c.CreatedAt.IsZero() {
		return fmt.Errorf("content item CreatedAt cannot be zero")
	}
	return nil
}

// IsActive reports whether the item may be rotated
func (c *ContentItem) IsActive() bool {
	return c.Status == StatusActive
}

// SortNewestFirst orders items by CreatedAt descending, ties broken by ID.
// Store queries use the same ordering so both query paths agree.
func SortNewestFirst(items []*ContentItem) {
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID < b.ID
	})
}

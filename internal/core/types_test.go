package core

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func validItem() *ContentItem {
	return &ContentItem{
		ID:        "photo-1",
		Type:      ContentTypePhoto,
		URL:       "https://cdn.example.com/winter/photo-1.jpg",
		Season:    SeasonWinter,
		Status:    StatusActive,
		CreatedAt: time.Date(2025, time.January, 5, 10, 0, 0, 0, time.UTC),
	}
}

func TestContentItem_Validate(t *testing.T) {
	t.Run("Valid item", func(t *testing.T) {
		assert.NoError(t, validItem().Validate())
	})

	tests := []struct {
		name   string
		mutate func(*ContentItem)
		errMsg string
	}{
		{"Unknown type", func(c *ContentItem) { c.Type = "audio" }, "content type"},
		{"Empty URL", func(c *ContentItem) { c.URL = "" }, "URL cannot be empty"},
		{"Auto season", func(c *ContentItem) { c.Season = SeasonAuto }, "season must be one of"},
		{"Unknown status", func(c *ContentItem) { c.Status = "draft" }, "content status"},
		{"Zero CreatedAt", func(c *ContentItem) { c.CreatedAt = time.Time{} }, "CreatedAt"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			item := validItem()
			tt.mutate(item)
			err := item.Validate()
			assert.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestSortNewestFirst(t *testing.T) {
	base := time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)
	items := []*ContentItem{
		{ID: "old", CreatedAt: base},
		{ID: "b-tie", CreatedAt: base.Add(time.Hour)},
		{ID: "newest", CreatedAt: base.Add(2 * time.Hour)},
		{ID: "a-tie", CreatedAt: base.Add(time.Hour)},
	}

	SortNewestFirst(items)

	var ids []string
	for _, item := range items {
		ids = append(ids, item.ID)
	}
	assert.Equal(t, []string{"newest", "a-tie", "b-tie", "old"}, ids)
}

func TestNoContentError(t *testing.T) {
	err := fmt.Errorf("refresh failed: %w", &NoContentError{Type: ContentTypeVideo, Season: SeasonSummer})

	assert.True(t, IsNoContent(err))
	assert.Contains(t, err.Error(), "No video content found")
	assert.False(t, IsNoContent(errors.New("network down")))

	holiday := &NoContentError{Type: ContentTypePhoto, Holiday: "christmas"}
	assert.Equal(t, "No photo content found for holiday christmas", holiday.Error())
}

func TestParseContentType(t *testing.T) {
	ct, err := ParseContentType("video")
	assert.NoError(t, err)
	assert.Equal(t, ContentTypeVideo, ct)

	_, err = ParseContentType("gif")
	assert.Error(t, err)
}

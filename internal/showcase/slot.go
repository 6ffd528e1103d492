package showcase

import (
	"context"

	"github.com/sho7650/content-rotation/internal/core"
	"github.com/sho7650/content-rotation/internal/rotation"
)

// Fallback assets shown when a slot has no content
const (
	HeroFallbackURL  = "https://images.unsplash.com/photo-1447933601403-0c6688de566e?w=1600&q=80"
	AboutFallbackURL = "/images/coffee-cup-seasonal.png"
)

// Source is the part of a rotator a slot reads from
type Source interface {
	Snapshot() rotation.State
	RotateNow()
	Refresh(ctx context.Context) error
}

// Slot is a display position backed by one rotator
type Slot struct {
	name        string
	source      Source
	fallbackURL string
}

// View is what a slot renders
type View struct {
	Slot     string            `json:"slot"`
	URL      string            `json:"url"`
	Fallback bool              `json:"fallback"`
	Item     *core.ContentItem `json:"item,omitempty"`
	NextURL  string            `json:"next_url,omitempty"`
	Index    int               `json:"index"`
	PoolSize int               `json:"pool_size"`
	Loading  bool              `json:"loading"`
	Error    string            `json:"error,omitempty"`
}

// NewSlot creates a slot named name that shows fallbackURL whenever source has no current item
func NewSlot(name string, source Source, fallbackURL string) *Slot {
	return &Slot{
		name:        name,
		source:      source,
		fallbackURL: fallbackURL,
	}
}

// Name returns the slot name
func (s *Slot) Name() string {
	return s.name
}

// Resolve returns the current view. Both the loading and the error state
// render the fallback asset.
func (s *Slot) Resolve() View {
	state := s.source.Snapshot()

	view := View{
		Slot:     s.name,
		Index:    state.Index,
		PoolSize: len(state.Pool),
		Loading:  state.Loading,
	}
	if state.Err != nil {
		view.Error = state.Err.Error()
	}
	if state.Next != nil {
		view.NextURL = state.Next.URL
	}

	if state.Current == nil {
		view.URL = s.fallbackURL
		view.Fallback = true
		return view
	}

	view.URL = state.Current.URL
	view.Item = state.Current
	return view
}

// Rotate advances the slot by one item
func (s *Slot) Rotate() View {
	s.source.RotateNow()
	return s.Resolve()
}

// Refresh re-fetches the slot pool
func (s *Slot) Refresh(ctx context.Context) (View, error) {
	err := s.source.Refresh(ctx)
	return s.Resolve(), err
}

package rotation

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"

	"github.com/sho7650/content-rotation/internal/core"
)

// Defaults applied by DefaultOptions
const (
	DefaultRotationInterval = 30 * time.Second
	DefaultRefreshInterval  = time.Hour
	DefaultMaxPoolSize      = 10
)

// Options configures a Rotator. A zero interval disables the matching timer,
// so start from DefaultOptions rather than the zero value.
type Options struct {
	ContentType      core.ContentType `yaml:"content_type" validate:"required,oneof=photo video"`
	RotationInterval time.Duration    `yaml:"rotation_interval" validate:"gte=0"`
	Season           core.Season      `yaml:"season" validate:"omitempty,oneof=auto winter spring summer autumn"`
	MaxPoolSize      int              `yaml:"max_pool_size" validate:"gt=0"`
	PreloadNext      bool             `yaml:"preload_next"`
	RefreshInterval  time.Duration    `yaml:"refresh_interval" validate:"gte=0"`
}

// DefaultOptions returns photo rotation every 30s with an hourly refresh
func DefaultOptions() Options {
	return Options{
		ContentType:      core.ContentTypePhoto,
		RotationInterval: DefaultRotationInterval,
		Season:           core.SeasonAuto,
		MaxPoolSize:      DefaultMaxPoolSize,
		PreloadNext:      true,
		RefreshInterval:  DefaultRefreshInterval,
	}
}

var validate = validator.New()

// Validate checks the options once, at construction
func (o Options) Validate() error {
	if err := validate.Struct(o); err != nil {
		return fmt.Errorf("%w: %w", core.ErrInvalidOptions, err)
	}
	return nil
}

// Option configures the runtime collaborators of a Rotator
type Option func(*Rotator)

// WithClock sets the clock driving both tickers
func WithClock(clock clockwork.Clock) Option {
	return func(r *Rotator) {
		r.clock = clock
	}
}

// WithPreloader sets the media preloader used when PreloadNext is enabled
func WithPreloader(preloader Preloader) Option {
	return func(r *Rotator) {
		r.preloader = preloader
	}
}

// WithLogger sets the rotator logger
func WithLogger(log logrus.FieldLogger) Option {
	return func(r *Rotator) {
		r.log = log
	}
}

// WithName names the rotator in logs and service info
func WithName(name string) Option {
	return func(r *Rotator) {
		r.name = name
	}
}

// WithChangeHandler registers fn to receive every state change. fn runs on the
// goroutine that made the change and must not call back into the Rotator.
func WithChangeHandler(fn func(State)) Option {
	return func(r *Rotator) {
		r.onChange = fn
	}
}

package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/sho7650/content-rotation/internal/core"
	"github.com/sho7650/content-rotation/internal/logger"
	"github.com/sho7650/content-rotation/internal/rotation"
)

// Store drivers
const (
	DriverSQLite = "sqlite"
	DriverMongo  = "mongo"
	DriverMemory = "memory"
)

// Event types sent on a watch channel
const (
	EventConfigUpdated = "config_updated"
	EventConfigError   = "config_error"
)

// Config represents the complete application configuration
type Config struct {
	Store    StoreConfig              `yaml:"store"`
	HTTP     HTTPConfig               `yaml:"http"`
	Log      logger.Config            `yaml:"log"`
	Rotators map[string]RotatorConfig `yaml:"rotators"`
	Products ProductsConfig           `yaml:"products"`
	Preload  PreloadConfig            `yaml:"preload"`
}

// StoreConfig selects and configures the content store
type StoreConfig struct {
	Driver    string       `yaml:"driver" validate:"required,oneof=sqlite mongo memory"`
	SQLite    SQLiteConfig `yaml:"sqlite"`
	Mongo     MongoConfig  `yaml:"mongo"`
	ScanLimit int          `yaml:"scan_limit" validate:"gte=0"`
}

// SQLiteConfig represents SQLite configuration
type SQLiteConfig struct {
	Path string `yaml:"path"`
	// SchemaVersion pins the schema; 0 migrates to the latest version
	SchemaVersion int `yaml:"schema_version" validate:"gte=0"`
}

// MongoConfig represents MongoDB configuration
type MongoConfig struct {
	URI      string `yaml:"uri"`
	Database string `yaml:"database"`
}

// HTTPConfig configures the showcase API
type HTTPConfig struct {
	Address        string   `yaml:"address"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	ReadTimeout    string   `yaml:"read_timeout"`
	WriteTimeout   string   `yaml:"write_timeout"`
	IdleTimeout    string   `yaml:"idle_timeout"`
}

// RotatorConfig configures one display slot. Zero values fall back to the
// rotation defaults.
type RotatorConfig struct {
	Enabled          *bool  `yaml:"enabled"`
	ContentType      string `yaml:"content_type" validate:"required,oneof=photo video"`
	Season           string `yaml:"season" validate:"omitempty,oneof=auto winter spring summer autumn"`
	RotationInterval string `yaml:"rotation_interval"`
	RefreshInterval  string `yaml:"refresh_interval"`
	MaxPoolSize      int    `yaml:"max_pool_size" validate:"gte=0"`
	PreloadNext      *bool  `yaml:"preload_next"`
	FallbackURL      string `yaml:"fallback_url"`
}

// ProductsConfig configures the product grid rotation
type ProductsConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Interval string `yaml:"interval"`
	PoolSize int    `yaml:"pool_size" validate:"gte=0"`
	Season   string `yaml:"season" validate:"omitempty,oneof=auto winter spring summer autumn"`
}

// PreloadConfig configures the media preloader
type PreloadConfig struct {
	Timeout    string `yaml:"timeout"`
	VideoBytes int    `yaml:"video_bytes" validate:"gte=0"`
}

// ConfigChangeEvent represents a configuration change event
type ConfigChangeEvent struct {
	Type   string
	Path   string
	Error  string
	Config *Config
}

// Default returns the configuration used when a file omits a section
func Default() *Config {
	return &Config{
		Store: StoreConfig{
			Driver: DriverSQLite,
			SQLite: SQLiteConfig{Path: "./content.db"},
			Mongo:  MongoConfig{Database: "content"},
		},
		HTTP: HTTPConfig{
			Address:      ":8080",
			ReadTimeout:  "10s",
			WriteTimeout: "10s",
			IdleTimeout:  "60s",
		},
		Log: logger.DefaultConfig(),
		Rotators: map[string]RotatorConfig{
			"hero":  {ContentType: string(core.ContentTypeVideo), Season: string(core.SeasonAuto)},
			"about": {ContentType: string(core.ContentTypePhoto), Season: string(core.SeasonAuto)},
		},
		Products: ProductsConfig{
			Enabled:  true,
			Interval: "30s",
			PoolSize: 20,
			Season:   string(core.SeasonAuto),
		},
		Preload: PreloadConfig{
			Timeout:    "10s",
			VideoBytes: rotation.DefaultVideoPreloadBytes,
		},
	}
}

var validate = validator.New()

// Validate checks every section of the configuration
func (c *Config) Validate() error {
	if err := c.Store.Validate(); err != nil {
		return fmt.Errorf("store config validation failed: %w", err)
	}
	if err := c.HTTP.Validate(); err != nil {
		return fmt.Errorf("http config validation failed: %w", err)
	}
	if err := validate.Struct(c.Log); err != nil {
		return fmt.Errorf("log config validation failed: %w", err)
	}
	for name, rc := range c.Rotators {
		if _, err := rc.Options(); err != nil {
			return fmt.Errorf("rotator '%s' validation failed: %w", name, err)
		}
	}
	if err := c.Products.Validate(); err != nil {
		return fmt.Errorf("products config validation failed: %w", err)
	}
	if err := c.Preload.Validate(); err != nil {
		return fmt.Errorf("preload config validation failed: %w", err)
	}
	return nil
}

// Validate checks if StoreConfig is valid
func (s *StoreConfig) Validate() error {
	if err := validate.Struct(s); err != nil {
		return err
	}

	switch s.Driver {
	case DriverSQLite:
		if s.SQLite.Path == "" {
			return fmt.Errorf("sqlite path cannot be empty")
		}
	case DriverMongo:
		if s.Mongo.URI == "" {
			return fmt.Errorf("mongo uri cannot be empty")
		}
		if s.Mongo.Database == "" {
			return fmt.Errorf("mongo database cannot be empty")
		}
	}
	return nil
}

// Validate checks if HTTPConfig is valid
func (h *HTTPConfig) Validate() error {
	if h.Address == "" {
		return fmt.Errorf("http address cannot be empty")
	}
	for field, value := range map[string]string{
		"read_timeout":  h.ReadTimeout,
		"write_timeout": h.WriteTimeout,
		"idle_timeout":  h.IdleTimeout,
	} {
		if _, err := parseDuration(value); err != nil {
			return fmt.Errorf("invalid %s: %w", field, err)
		}
	}
	return nil
}

// Timeouts returns the parsed read, write and idle timeouts
func (h *HTTPConfig) Timeouts() (read, write, idle time.Duration) {
	read, _ = parseDuration(h.ReadTimeout)
	write, _ = parseDuration(h.WriteTimeout)
	idle, _ = parseDuration(h.IdleTimeout)
	return read, write, idle
}

// IsEnabled reports whether the rotator should run; rotators are enabled unless disabled explicitly
func (r RotatorConfig) IsEnabled() bool {
	return r.Enabled == nil || *r.Enabled
}

// Options converts the slot configuration into validated rotation options
func (r RotatorConfig) Options() (rotation.Options, error) {
	if err := validate.Struct(r); err != nil {
		return rotation.Options{}, err
	}

	opts := rotation.DefaultOptions()
	opts.ContentType = core.ContentType(r.ContentType)
	if r.Season != "" {
		opts.Season = core.Season(r.Season)
	}
	if r.MaxPoolSize > 0 {
		opts.MaxPoolSize = r.MaxPoolSize
	}
	if r.PreloadNext != nil {
		opts.PreloadNext = *r.PreloadNext
	}
	if r.RotationInterval != "" {
		d, err := parseDuration(r.RotationInterval)
		if err != nil {
			return rotation.Options{}, fmt.Errorf("invalid rotation_interval: %w", err)
		}
		opts.RotationInterval = d
	}
	if r.RefreshInterval != "" {
		d, err := parseDuration(r.RefreshInterval)
		if err != nil {
			return rotation.Options{}, fmt.Errorf("invalid refresh_interval: %w", err)
		}
		opts.RefreshInterval = d
	}

	if err := opts.Validate(); err != nil {
		return rotation.Options{}, err
	}
	return opts, nil
}

// Validate checks if ProductsConfig is valid
func (p *ProductsConfig) Validate() error {
	if err := validate.Struct(p); err != nil {
		return err
	}
	d, err := parseDuration(p.Interval)
	if err != nil {
		return fmt.Errorf("invalid interval: %w", err)
	}
	if p.Enabled && d <= 0 {
		return fmt.Errorf("interval must be greater than 0, got: %s", p.Interval)
	}
	return nil
}

// IntervalDuration returns the parsed shift interval
func (p *ProductsConfig) IntervalDuration() time.Duration {
	d, _ := parseDuration(p.Interval)
	return d
}

// Validate checks if PreloadConfig is valid
func (p *PreloadConfig) Validate() error {
	if err := validate.Struct(p); err != nil {
		return err
	}
	if _, err := parseDuration(p.Timeout); err != nil {
		return fmt.Errorf("invalid timeout format: %w", err)
	}
	return nil
}

// TimeoutDuration returns the parsed preload timeout
func (p *PreloadConfig) TimeoutDuration() time.Duration {
	d, _ := parseDuration(p.Timeout)
	return d
}

func parseDuration(value string) (time.Duration, error) {
	if value == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("duration cannot be negative: %s", value)
	}
	return d, nil
}

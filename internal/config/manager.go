package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/caarlos0/env"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/sho7650/content-rotation/internal/logger"
)

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// envOverrides are applied on top of the YAML file
type envOverrides struct {
	StoreDriver   string `env:"CONTENT_STORE_DRIVER"`
	SQLitePath    string `env:"CONTENT_SQLITE_PATH"`
	MongoURI      string `env:"CONTENT_MONGO_URI"`
	MongoDatabase string `env:"CONTENT_MONGO_DB"`
	HTTPAddress   string `env:"HTTP_ADDRESS"`
	LogLevel      string `env:"LOG_LEVEL"`
	LogFormat     string `env:"LOG_FORMAT"`
	LogOutput     string `env:"LOG_OUTPUT"`
	LogPath       string `env:"LOG_PATH"`
}

// ConfigManager handles configuration loading, validation, and hot reload
type ConfigManager struct {
	currentConfig *Config
	mutex         sync.RWMutex
	watchers      map[string]*Watcher
	debounceDelay time.Duration
	log           logrus.FieldLogger
}

// NewConfigManager creates a new configuration manager
func NewConfigManager() *ConfigManager {
	return &ConfigManager{
		watchers:      make(map[string]*Watcher),
		debounceDelay: DefaultDebounceDelay,
		log:           logger.Get("config"),
	}
}

// SetDebounceDelay changes the delay used by watchers started afterwards
func (cm *ConfigManager) SetDebounceDelay(delay time.Duration) {
	cm.mutex.Lock()
	defer cm.mutex.Unlock()
	cm.debounceDelay = delay
}

// LoadDotEnv loads each existing .env file into the process environment.
// Variables that are already set are not overwritten; missing files are skipped.
func LoadDotEnv(paths ...string) error {
	for _, path := range paths {
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("failed to load env file %s: %w", path, err)
		}
	}
	return nil
}

// LoadFromFile loads configuration from a YAML file. Sections the file omits
// keep their defaults and environment overrides are applied last.
func (cm *ConfigManager) LoadFromFile(ctx context.Context, filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config, err := cm.Parse(ctx, data)
	if err != nil {
		return nil, err
	}

	cm.mutex.Lock()
	cm.currentConfig = config
	cm.mutex.Unlock()

	return config, nil
}

// Parse builds a validated configuration from YAML content
func (cm *ConfigManager) Parse(ctx context.Context, data []byte) (*Config, error) {
	content := cm.substituteEnvVars(string(data))

	config := Default()
	if err := yaml.Unmarshal([]byte(content), config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := applyEnvOverrides(config); err != nil {
		return nil, err
	}

	if err := cm.ValidateConfig(ctx, config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}

// ValidateConfig validates the entire configuration
func (cm *ConfigManager) ValidateConfig(ctx context.Context, config *Config) error {
	return config.Validate()
}

// GetCurrentConfig returns the currently loaded configuration
func (cm *ConfigManager) GetCurrentConfig() *Config {
	cm.mutex.RLock()
	defer cm.mutex.RUnlock()
	return cm.currentConfig
}

// WatchForChanges reloads filePath whenever it changes and reports each
// attempt on changeChan. A failed reload keeps the previous configuration.
func (cm *ConfigManager) WatchForChanges(ctx context.Context, filePath string, changeChan chan ConfigChangeEvent) error {
	cm.mutex.Lock()
	if _, exists := cm.watchers[filePath]; exists {
		cm.mutex.Unlock()
		return fmt.Errorf("already watching %s", filePath)
	}
	watcher := NewWatcher(filePath, cm.debounceDelay, func() {
		cm.handleConfigChange(ctx, filePath, changeChan)
	})
	cm.watchers[filePath] = watcher
	cm.mutex.Unlock()

	if err := watcher.Start(ctx); err != nil {
		cm.mutex.Lock()
		delete(cm.watchers, filePath)
		cm.mutex.Unlock()
		return err
	}

	return nil
}

// Close stops every watcher
func (cm *ConfigManager) Close() error {
	cm.mutex.Lock()
	watchers := cm.watchers
	cm.watchers = make(map[string]*Watcher)
	cm.mutex.Unlock()

	var errs []error
	for _, w := range watchers {
		if err := w.Stop(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// handleConfigChange processes configuration file changes
func (cm *ConfigManager) handleConfigChange(ctx context.Context, filePath string, changeChan chan ConfigChangeEvent) {
	newConfig, err := cm.LoadFromFile(ctx, filePath)
	if err != nil {
		cm.log.WithError(err).WithField("path", filePath).Warn("Configuration reload failed, keeping previous configuration")
		select {
		case changeChan <- ConfigChangeEvent{
			Type:  EventConfigError,
			Path:  filePath,
			Error: err.Error(),
		}:
		default:
		}
		return
	}

	cm.log.WithField("path", filePath).Info("Configuration reloaded")
	select {
	case changeChan <- ConfigChangeEvent{
		Type:   EventConfigUpdated,
		Path:   filePath,
		Config: newConfig,
	}:
	default:
	}
}

// substituteEnvVars replaces ${VAR} patterns with environment variables
func (cm *ConfigManager) substituteEnvVars(content string) string {
	return envVarPattern.ReplaceAllStringFunc(content, func(match string) string {
		varName := match[2 : len(match)-1]

		if value := os.Getenv(varName); value != "" {
			return value
		}

		// Unset variables are left as written
		return match
	})
}

func applyEnvOverrides(config *Config) error {
	var overrides envOverrides
	if err := env.Parse(&overrides); err != nil {
		return fmt.Errorf("failed to parse environment overrides: %w", err)
	}

	set := func(dst *string, value string) {
		if value = strings.TrimSpace(value); value != "" {
			*dst = value
		}
	}
	set(&config.Store.Driver, overrides.StoreDriver)
	set(&config.Store.SQLite.Path, overrides.SQLitePath)
	set(&config.Store.Mongo.URI, overrides.MongoURI)
	set(&config.Store.Mongo.Database, overrides.MongoDatabase)
	set(&config.HTTP.Address, overrides.HTTPAddress)
	set(&config.Log.Level, overrides.LogLevel)
	set(&config.Log.Format, overrides.LogFormat)
	set(&config.Log.Output, overrides.LogOutput)
	set(&config.Log.Path, overrides.LogPath)
	return nil
}

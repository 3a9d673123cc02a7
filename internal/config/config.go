// Package config provides configuration management for the inference service
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// Config represents the service configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Runtime   RuntimeConfig   `yaml:"runtime"`
	Models    ModelsConfig    `yaml:"models"`
	Detection DetectionConfig `yaml:"detection"`
	Database  DatabaseConfig  `yaml:"database"`
	Bus       BusConfig       `yaml:"bus"`
	Logging   LoggingConfig   `yaml:"logging"`

	// Internal fields
	mu       sync.RWMutex    `yaml:"-"`
	path     string          `yaml:"-"`
	watchers []func(*Config) `yaml:"-"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// RuntimeConfig holds inference runtime settings
type RuntimeConfig struct {
	Address        string `yaml:"address"`
	Device         string `yaml:"device"` // cpu, cuda, mps
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// ModelsConfig holds the model resource locations.
// A missing file disables only that detector slot.
type ModelsConfig struct {
	Weapons   string `yaml:"weapons"`
	Plate     string `yaml:"plate"`
	Behaviour string `yaml:"behaviour"`
	OCR       bool   `yaml:"ocr"`
	OCRLangs  string `yaml:"ocr_langs"`
}

// DetectionConfig holds per-category confidence thresholds
type DetectionConfig struct {
	WeaponThreshold    float64 `yaml:"weapon_threshold"`
	PlateThreshold     float64 `yaml:"plate_threshold"`
	BehaviourThreshold float64 `yaml:"behaviour_threshold"`
}

// DatabaseConfig holds incident store settings
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// BusConfig holds embedded event bus settings
type BusConfig struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load loads configuration from a YAML file, then applies environment
// overrides and defaults. A missing file is not an error: the service
// starts on defaults.
func Load(path string) (*Config, error) {
	cfg := &Config{path: path}

	data, err := os.ReadFile(path)
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg.applyEnv()
	cfg.setDefaults()

	return cfg, nil
}

// setDefaults sets default values for unset fields
func (c *Config) setDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 3005
	}
	if c.Runtime.Address == "" {
		c.Runtime.Address = "localhost:50051"
	}
	if c.Runtime.Device == "" {
		c.Runtime.Device = "cpu"
	}
	if c.Runtime.TimeoutSeconds == 0 {
		c.Runtime.TimeoutSeconds = 30
	}
	if c.Models.Weapons == "" {
		c.Models.Weapons = "models/weapons_best.pt"
	}
	if c.Models.Plate == "" {
		c.Models.Plate = "models/license_plate_best.pt"
	}
	if c.Models.Behaviour == "" {
		c.Models.Behaviour = "models/violence_non_violence.pt"
	}
	if c.Models.OCRLangs == "" {
		c.Models.OCRLangs = "en"
	}
	if c.Detection.WeaponThreshold == 0 {
		c.Detection.WeaponThreshold = 0.90
	}
	if c.Detection.PlateThreshold == 0 {
		c.Detection.PlateThreshold = 0.70
	}
	if c.Detection.BehaviourThreshold == 0 {
		c.Detection.BehaviourThreshold = 0.80
	}
	if c.Database.Path == "" {
		c.Database.Path = "data/incidents.db"
	}
	if c.Bus.Host == "" {
		c.Bus.Host = "127.0.0.1"
	}
	if c.Bus.Port == 0 {
		c.Bus.Port = 12001
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

// applyEnv applies environment variable overrides
func (c *Config) applyEnv() {
	if v := os.Getenv("AEGIS_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.Port = port
		}
	}
	if v := os.Getenv("AEGIS_RUNTIME_ADDR"); v != "" {
		c.Runtime.Address = v
	}
	if v := os.Getenv("AEGIS_DEVICE"); v != "" {
		c.Runtime.Device = v
	}
	if v := os.Getenv("AEGIS_WEAPONS_MODEL"); v != "" {
		c.Models.Weapons = v
	}
	if v := os.Getenv("AEGIS_PLATE_MODEL"); v != "" {
		c.Models.Plate = v
	}
	if v := os.Getenv("AEGIS_BEHAVIOUR_MODEL"); v != "" {
		c.Models.Behaviour = v
	}
	if v := os.Getenv("AEGIS_OCR"); v != "" {
		c.Models.OCR = v == "1" || v == "true"
	}
	if v := os.Getenv("AEGIS_DB_PATH"); v != "" {
		c.Database.Path = v
	}
	if v := os.Getenv("AEGIS_WEAPON_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Detection.WeaponThreshold = f
		}
	}
	if v := os.Getenv("AEGIS_PLATE_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Detection.PlateThreshold = f
		}
	}
	if v := os.Getenv("AEGIS_BEHAVIOUR_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Detection.BehaviourThreshold = f
		}
	}
}

// Thresholds returns the current per-category confidence thresholds.
// Safe to call concurrently with a config reload.
func (c *Config) Thresholds() (weapon, plate, behaviour float64) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Detection.WeaponThreshold, c.Detection.PlateThreshold, c.Detection.BehaviourThreshold
}

// Watch starts watching the configuration file for changes
func (c *Config) Watch() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	go func() {
		defer watcher.Close()

		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&fsnotify.Write == fsnotify.Write {
					time.Sleep(100 * time.Millisecond) // Debounce
					c.reload()
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				slog.Error("Config watch error", "error", err)
			}
		}
	}()

	return watcher.Add(c.path)
}

// OnChange registers a callback for config changes
func (c *Config) OnChange(fn func(*Config)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.watchers = append(c.watchers, fn)
}

// reload reloads the configuration from disk
func (c *Config) reload() {
	newCfg, err := Load(c.path)
	if err != nil {
		slog.Error("Failed to reload config", "error", err)
		return
	}

	c.mu.Lock()
	// Only runtime-tunable sections are swapped; model paths, database
	// and bus settings are fixed for the process lifetime.
	c.Detection = newCfg.Detection
	c.Logging = newCfg.Logging
	watchers := c.watchers
	c.mu.Unlock()

	slog.Info("Configuration reloaded")

	for _, fn := range watchers {
		fn(c)
	}
}

package config

import (
	"fmt"

	"go-hangar/internal/models"

	"github.com/BurntSushi/toml"
	log "github.com/sirupsen/logrus"
)

// LoadConfig reads the configuration from the specified path (defaulting to
// "hangar.toml") and populates a models.Config, applying defaults for
// unset scheduler knobs.
func LoadConfig(configFilePath string) (models.Config, error) {
	if configFilePath == "" {
		configFilePath = "hangar.toml"
	}
	var cfg models.Config
	_, err := toml.DecodeFile(configFilePath, &cfg)
	if err != nil {
		return models.Config{}, fmt.Errorf("error loading config file %s: %w", configFilePath, err)
	}

	if cfg.LibraryPath == "" {
		log.Warnf("Warning: LibraryPath is not set in %s", configFilePath)
	}
	if cfg.DatabasePath == "" {
		log.Warnf("Warning: DatabasePath is not set in %s", configFilePath)
	}

	if cfg.TickIntervalMs <= 0 {
		cfg.TickIntervalMs = 1000
	}
	if cfg.UpdateCheckIntervalMin <= 0 {
		cfg.UpdateCheckIntervalMin = 60
	}
	if cfg.ApiDelayMs < 0 {
		cfg.ApiDelayMs = 200
	}
	if cfg.ApiClientTimeoutSec <= 0 {
		cfg.ApiClientTimeoutSec = 60
	}

	log.Infof("Configuration loaded from %s", configFilePath)
	return cfg, nil
}

package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateGemini(); err != nil {
		return err
	}
	if err := c.validateStorage(); err != nil {
		return err
	}
	if err := c.validateGeneration(); err != nil {
		return err
	}
	if err := c.validateNotifications(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateGemini() error {
	if c.Gemini.APIKey == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = "~/.config/tottales/config.toml"
		}
		return fmt.Errorf("gemini.api_key is required. Set GEMINI_API_KEY env var or edit %s (create with 'tottales config init')", defaultPath)
	}
	if c.Gemini.TimeoutSeconds <= 0 {
		return errors.New("gemini.timeout_seconds must be positive")
	}
	return nil
}

func (c *Config) validateStorage() error {
	switch c.Storage.Backend {
	case StorageBackendMinio:
		if c.Storage.Endpoint == "" {
			return errors.New("storage.endpoint must be set when storage.backend is \"minio\"")
		}
		if c.Storage.AccessKey == "" || c.Storage.SecretKey == "" {
			return errors.New("storage.access_key and storage.secret_key must be set when storage.backend is \"minio\"")
		}
	case StorageBackendLocal:
		if strings.TrimSpace(c.Storage.LocalDir) == "" {
			return errors.New("storage.local_dir must be set when storage.backend is \"local\"")
		}
	default:
		return fmt.Errorf("storage.backend: unsupported value %q", c.Storage.Backend)
	}
	return nil
}

func (c *Config) validateGeneration() error {
	if err := ensurePositiveMap(map[string]int{
		"generation.default_page_count":           c.Generation.DefaultPageCount,
		"generation.max_page_count":               c.Generation.MaxPageCount,
		"generation.max_regenerations":            c.Generation.MaxRegenerations,
		"generation.illustration_attempts":        c.Generation.IllustrationAttempts,
		"generation.illustration_backoff_seconds": c.Generation.IllustrationBackoffSeconds,
		"generation.illustration_timeout_seconds": c.Generation.IllustrationTimeoutSeconds,
	}); err != nil {
		return err
	}
	if c.Generation.PageIntervalSeconds < 0 {
		return errors.New("generation.page_interval_seconds must be >= 0")
	}
	if c.Generation.DefaultPageCount > c.Generation.MaxPageCount {
		return errors.New("generation.default_page_count must not exceed generation.max_page_count")
	}
	return nil
}

func (c *Config) validateNotifications() error {
	if c.Notifications.RequestTimeout <= 0 {
		return errors.New("notifications.request_timeout must be positive")
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}

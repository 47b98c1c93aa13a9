// Package config loads the storage map from YAML or JSON files and
// environment variables.
package config

import (
	"log/slog"
	"time"

	"github.com/polystore/polystore"
)

// File is the on-disk configuration: a map of named storages plus client
// behavior settings.
type File struct {
	Storages map[string]Definition `koanf:"storages"`
	Client   ClientConfig          `koanf:"client"`
}

// Definition declares one storage in the map.
type Definition struct {
	Type        string            `koanf:"type"`
	Description string            `koanf:"description"`
	Options     map[string]string `koanf:"options"`
}

// ClientConfig holds behavior settings shared by all storages.
type ClientConfig struct {
	// Concurrency bounds parallel transfers within a directory operation.
	Concurrency int `koanf:"concurrency"`

	// Checksum enables content-hash fingerprint comparison.
	Checksum bool `koanf:"checksum"`

	// SkipUnchanged makes pushes skip uploads whose remote copy already
	// matches the local fingerprint.
	SkipUnchanged bool `koanf:"skip_unchanged"`

	// Retries is the number of times a failed transfer is retried with
	// backoff. Zero disables retries.
	Retries int `koanf:"retries"`

	// RetryDelay is the initial backoff delay.
	RetryDelay time.Duration `koanf:"retry_delay"`

	// LogLevel selects the minimum level for structured logging:
	// "debug", "info", "warn" or "error".
	LogLevel string `koanf:"log_level"`
}

// DefaultFile returns the configuration used when a setting is absent
// from every source.
func DefaultFile() File {
	return File{
		Client: ClientConfig{
			Concurrency: 4,
			RetryDelay:  time.Second,
			LogLevel:    "info",
		},
	}
}

// StorageMap converts the file's storage definitions into the client's
// configuration form.
func (f File) StorageMap() map[string]polystore.StorageConfig {
	m := make(map[string]polystore.StorageConfig, len(f.Storages))
	for id, def := range f.Storages {
		m[id] = polystore.StorageConfig{
			Type:        def.Type,
			Description: def.Description,
			Options:     def.Options,
		}
	}
	return m
}

// ClientOptions converts the file's client settings into client options.
func (f File) ClientOptions(logger *slog.Logger) polystore.Options {
	opts := polystore.Options{
		Logger:        logger,
		Concurrency:   f.Client.Concurrency,
		Checksum:      f.Client.Checksum,
		SkipUnchanged: f.Client.SkipUnchanged,
	}
	if f.Client.Retries > 0 {
		retry := polystore.DefaultRetryConfig()
		retry.MaxRetries = f.Client.Retries
		if f.Client.RetryDelay > 0 {
			retry.InitialDelay = f.Client.RetryDelay
		}
		opts.Retry = &retry
	}
	return opts
}

// LogLevel parses the configured level, defaulting to info.
func (f File) LogLevel() slog.Level {
	switch f.Client.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

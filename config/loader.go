package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// envPrefix namespaces the environment variables that override file
// settings, e.g. POLYSTORE_CLIENT_CONCURRENCY=8.
const envPrefix = "POLYSTORE_"

// ErrNoStorageMap is returned when no storage map file can be located.
var ErrNoStorageMap = errors.New("config: no storage map")

// Load reads configuration with increasing priority: defaults, then the
// given file, then environment variables. An empty path falls back to
// the first of polystore.yaml, polystore.yml or polystore.json that
// exists; no storage map file at all is an error.
func Load(path string) (File, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(DefaultFile(), "koanf"), nil); err != nil {
		return File{}, fmt.Errorf("loading defaults: %w", err)
	}

	if path == "" {
		for _, candidate := range []string{"polystore.yaml", "polystore.yml", "polystore.json"} {
			if _, err := os.Stat(candidate); err == nil {
				path = candidate
				break
			}
		}
		if path == "" {
			return File{}, fmt.Errorf("%w: no storage map file found", ErrNoStorageMap)
		}
	} else if _, err := os.Stat(path); err != nil {
		return File{}, fmt.Errorf("storage map file %s: %w", path, err)
	}

	if err := k.Load(file.Provider(path), parserFor(path)); err != nil {
		return File{}, fmt.Errorf("loading %s: %w", path, err)
	}

	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, envPrefix)), "_", ".")
	}), nil); err != nil {
		return File{}, fmt.Errorf("loading environment variables: %w", err)
	}

	var cfg File
	if err := k.Unmarshal("", &cfg); err != nil {
		return File{}, fmt.Errorf("unmarshaling configuration: %w", err)
	}

	if err := validate(cfg); err != nil {
		return File{}, err
	}
	return cfg, nil
}

func parserFor(path string) koanf.Parser {
	if strings.HasSuffix(path, ".json") {
		return json.Parser()
	}
	return yaml.Parser()
}

func validate(cfg File) error {
	for id, def := range cfg.Storages {
		if def.Type == "" {
			return fmt.Errorf("storage %q has no type", id)
		}
	}
	return nil
}

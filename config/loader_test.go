package config

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

const yamlConfig = `
storages:
  corpus:
    type: s3
    description: language corpora
    options:
      bucket_name: corpora
      region_name: eu-west-1
  scratch:
    type: local
    options:
      basedir: /tmp/scratch
client:
  concurrency: 8
  checksum: true
  retries: 3
  retry_delay: 2s
  log_level: debug
`

func TestLoadYAML(t *testing.T) {
	path := writeConfig(t, "polystore.yaml", yamlConfig)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if len(cfg.Storages) != 2 {
		t.Fatalf("storages = %v", cfg.Storages)
	}
	corpus := cfg.Storages["corpus"]
	if corpus.Type != "s3" || corpus.Description != "language corpora" {
		t.Errorf("corpus = %+v", corpus)
	}
	if corpus.Options["bucket_name"] != "corpora" {
		t.Errorf("options = %v", corpus.Options)
	}

	if cfg.Client.Concurrency != 8 || !cfg.Client.Checksum {
		t.Errorf("client = %+v", cfg.Client)
	}
	if cfg.Client.Retries != 3 || cfg.Client.RetryDelay != 2*time.Second {
		t.Errorf("retry settings = %+v", cfg.Client)
	}
	if cfg.LogLevel() != slog.LevelDebug {
		t.Errorf("log level = %v", cfg.LogLevel())
	}
}

func TestLoadJSON(t *testing.T) {
	path := writeConfig(t, "polystore.json", `{
		"storages": {
			"web": {
				"type": "http",
				"options": {"get_pattern": "https://cdn.example.org/%s"}
			}
		}
	}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Storages["web"].Type != "http" {
		t.Errorf("web = %+v", cfg.Storages["web"])
	}
	// unset client settings keep their defaults
	if cfg.Client.Concurrency != 4 || cfg.Client.RetryDelay != time.Second {
		t.Errorf("defaults = %+v", cfg.Client)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	path := writeConfig(t, "polystore.yaml", yamlConfig)
	t.Setenv("POLYSTORE_CLIENT_CONCURRENCY", "16")

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Client.Concurrency != 16 {
		t.Errorf("concurrency = %d, want 16 from environment", cfg.Client.Concurrency)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err == nil {
		t.Fatal("expected an error for a missing file")
	}
}

func TestLoadNoCandidate(t *testing.T) {
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(t.TempDir()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Chdir(wd) })

	_, err = Load("")
	if !errors.Is(err, ErrNoStorageMap) {
		t.Errorf("error = %v, want ErrNoStorageMap", err)
	}
}

func TestLoadRejectsTypelessStorage(t *testing.T) {
	path := writeConfig(t, "polystore.yaml", `
storages:
  broken:
    description: no type given
`)
	if _, err := Load(path); err == nil {
		t.Error("expected an error for a storage without a type")
	}
}

func TestStorageMap(t *testing.T) {
	cfg := File{
		Storages: map[string]Definition{
			"a": {Type: "memory", Description: "d", Options: map[string]string{"k": "v"}},
		},
	}
	m := cfg.StorageMap()
	if len(m) != 1 {
		t.Fatalf("map = %v", m)
	}
	if m["a"].Type != "memory" || m["a"].Options["k"] != "v" {
		t.Errorf("a = %+v", m["a"])
	}
}

func TestClientOptions(t *testing.T) {
	cfg := DefaultFile()
	opts := cfg.ClientOptions(nil)
	if opts.Retry != nil {
		t.Error("retry configured without retries")
	}
	if opts.Concurrency != 4 {
		t.Errorf("concurrency = %d", opts.Concurrency)
	}

	cfg.Client.Retries = 5
	cfg.Client.RetryDelay = 250 * time.Millisecond
	opts = cfg.ClientOptions(nil)
	if opts.Retry == nil || opts.Retry.MaxRetries != 5 || opts.Retry.InitialDelay != 250*time.Millisecond {
		t.Errorf("retry = %+v", opts.Retry)
	}
}

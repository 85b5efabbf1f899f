package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
server:
  port: 9090
auth:
  enabled: true
  api_key: secret
logging:
  development: false
  level: warn
batch:
  size: 25
scrape:
  fetcher: headless
  delay: 3s
  headless:
    max_parallel: 2
dispatch:
  backend: pubsub
  pubsub:
    project_id: kgr-prod
    topic: batches
storage:
  backend: gcs
  prefix: out
  gcs:
    bucket: kgr-results
tracker:
  poll_interval: 15s
  backoff_ceiling: 2m
  max_store_failures: 3
score:
  opportunity_kgr_weight: 2.5
progress:
  store: true
database:
  dsn: postgres://localhost/kgr
`
	if err := os.WriteFile(path, []byte(configYAML), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Fatalf("expected port 9090, got %d", cfg.Server.Port)
	}
	if !cfg.Auth.Enabled || cfg.Auth.APIKey != "secret" {
		t.Fatalf("expected auth enabled with secret key")
	}
	if cfg.Logging.Development || cfg.Logging.Level != "warn" {
		t.Fatalf("expected logging overrides: %+v", cfg.Logging)
	}
	if cfg.Batch.Size != 25 {
		t.Fatalf("expected batch size 25, got %d", cfg.Batch.Size)
	}
	if cfg.Scrape.Fetcher != FetcherHeadless || cfg.Scrape.Delay != 3*time.Second || cfg.Scrape.Headless.MaxParallel != 2 {
		t.Fatalf("expected scrape overrides: %+v", cfg.Scrape)
	}
	if cfg.Scrape.RetryDelay != 5*time.Second {
		t.Fatalf("expected default retry delay, got %v", cfg.Scrape.RetryDelay)
	}
	if cfg.Dispatch.Backend != DispatchPubSub || cfg.Dispatch.PubSub.Topic != "batches" {
		t.Fatalf("expected pubsub dispatch: %+v", cfg.Dispatch)
	}
	if cfg.Storage.Backend != StorageGCS || cfg.Storage.GCS.Bucket != "kgr-results" || cfg.Storage.Prefix != "out" {
		t.Fatalf("expected gcs storage: %+v", cfg.Storage)
	}
	policy := cfg.Tracker.Policy()
	if policy.Interval != 15*time.Second || policy.BackoffCeiling != 2*time.Minute || policy.MaxStoreFailures != 3 {
		t.Fatalf("unexpected poll policy: %+v", policy)
	}
	if cfg.Score.OpportunityKGRWeight != 2.5 || cfg.Score.DifficultyAllintitleWeight != 0.7 {
		t.Fatalf("expected merged score coefficients: %+v", cfg.Score)
	}
	if !cfg.Progress.Store || cfg.Database.DSN == "" {
		t.Fatalf("expected progress store with dsn")
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Batch.Size != 30 {
		t.Fatalf("expected default batch size 30, got %d", cfg.Batch.Size)
	}
	if cfg.Dispatch.Backend != DispatchQueue || cfg.Storage.Backend != StorageMemory {
		t.Fatalf("expected in-process defaults, got %s/%s", cfg.Dispatch.Backend, cfg.Storage.Backend)
	}
	if cfg.Tracker.PollInterval != 10*time.Second || cfg.Tracker.BackoffCeiling != time.Minute {
		t.Fatalf("unexpected tracker defaults: %+v", cfg.Tracker)
	}
	if cfg.Scrape.Selector != "#result-stats" {
		t.Fatalf("unexpected selector %q", cfg.Scrape.Selector)
	}
}

// TestLoadEnvOverride cannot run in parallel because it mutates the environment.
func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("KGR_BATCH_SIZE", "10")
	t.Setenv("KGR_TRACKER_POLL_INTERVAL", "2s")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Batch.Size != 10 {
		t.Fatalf("expected env batch size 10, got %d", cfg.Batch.Size)
	}
	if cfg.Tracker.PollInterval != 2*time.Second {
		t.Fatalf("expected env poll interval 2s, got %v", cfg.Tracker.PollInterval)
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func validConfig(t *testing.T) Config {
	t.Helper()
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	return cfg
}

func TestConfigValidateErrors(t *testing.T) {
	t.Parallel()

	base := validConfig(t)

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{name: "invalid port", mutate: func(c *Config) { c.Server.Port = 0 }, want: "server.port"},
		{name: "auth missing api key", mutate: func(c *Config) { c.Auth.Enabled = true }, want: "auth.api_key"},
		{name: "batch size", mutate: func(c *Config) { c.Batch.Size = 0 }, want: "batch.size"},
		{name: "unknown fetcher", mutate: func(c *Config) { c.Scrape.Fetcher = "curl" }, want: "scrape.fetcher"},
		{
			name: "headless missing max parallel",
			mutate: func(c *Config) {
				c.Scrape.Fetcher = FetcherHeadless
				c.Scrape.Headless.MaxParallel = 0
			},
			want: "scrape.headless.max_parallel",
		},
		{name: "unknown dispatch", mutate: func(c *Config) { c.Dispatch.Backend = "sqs" }, want: "dispatch.backend"},
		{
			name:   "github missing credentials",
			mutate: func(c *Config) { c.Dispatch.Backend = DispatchGitHub },
			want:   "dispatch.github.api",
		},
		{
			name: "remote workers with memory store",
			mutate: func(c *Config) {
				c.Dispatch.Backend = DispatchPubSub
				c.Dispatch.PubSub.ProjectID = "p"
			},
			want: "storage.backend memory",
		},
		{name: "unknown storage", mutate: func(c *Config) { c.Storage.Backend = "s3" }, want: "storage.backend"},
		{
			name: "gcs missing bucket",
			mutate: func(c *Config) { c.Storage.Backend = StorageGCS },
			want: "storage.gcs.bucket",
		},
		{name: "poll interval", mutate: func(c *Config) { c.Tracker.PollInterval = 0 }, want: "tracker"},
		{name: "negative weight", mutate: func(c *Config) { c.Score.OpportunityKGRWeight = -1 }, want: "non-negative"},
		{name: "store sink without dsn", mutate: func(c *Config) { c.Progress.Store = true }, want: "database.dsn"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := base
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

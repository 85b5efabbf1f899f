// Package config loads and validates service configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	ghapi "github.com/JakeFAU/kgr-crawler/internal/github"
	"github.com/JakeFAU/kgr-crawler/internal/logging"
	"github.com/JakeFAU/kgr-crawler/internal/score"
	gcsstore "github.com/JakeFAU/kgr-crawler/internal/storage/gcs"
	githubstore "github.com/JakeFAU/kgr-crawler/internal/storage/github"
	localstore "github.com/JakeFAU/kgr-crawler/internal/storage/local"
	redisstore "github.com/JakeFAU/kgr-crawler/internal/storage/redis"
	"github.com/JakeFAU/kgr-crawler/internal/telemetry"
	"github.com/JakeFAU/kgr-crawler/internal/tracker"
)

// Dispatch backends.
const (
	DispatchQueue  = "queue"
	DispatchGitHub = "github"
	DispatchPubSub = "pubsub"
)

// Storage backends.
const (
	StorageMemory = "memory"
	StorageLocal  = "local"
	StorageGCS    = "gcs"
	StorageRedis  = "redis"
	StorageGitHub = "github"
)

// Fetchers.
const (
	FetcherColly    = "colly"
	FetcherHeadless = "headless"
	FetcherHybrid   = "hybrid"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig       `mapstructure:"server"`
	Auth      AuthConfig         `mapstructure:"auth"`
	Logging   logging.Config     `mapstructure:"logging"`
	Batch     BatchConfig        `mapstructure:"batch"`
	Scrape    ScrapeConfig       `mapstructure:"scrape"`
	Dispatch  DispatchConfig     `mapstructure:"dispatch"`
	Storage   StorageConfig      `mapstructure:"storage"`
	Tracker   TrackerConfig      `mapstructure:"tracker"`
	Score     score.Coefficients `mapstructure:"score"`
	Progress  ProgressConfig     `mapstructure:"progress"`
	Database  DatabaseConfig     `mapstructure:"database"`
	Telemetry telemetry.Config   `mapstructure:"telemetry"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	MaxUploadBytes  int64         `mapstructure:"max_upload_bytes"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// BatchConfig sizes job partitions.
type BatchConfig struct {
	Size int `mapstructure:"size"`
}

// ScrapeConfig governs the worker-side search queries.
type ScrapeConfig struct {
	Fetcher        string         `mapstructure:"fetcher"`
	BaseURL        string         `mapstructure:"base_url"`
	Selector       string         `mapstructure:"selector"`
	Delay          time.Duration  `mapstructure:"delay"`
	RetryDelay     time.Duration  `mapstructure:"retry_delay"`
	QueryTimeout   time.Duration  `mapstructure:"query_timeout"`
	RetryTimeout   time.Duration  `mapstructure:"retry_timeout"`
	UserAgent      string         `mapstructure:"user_agent"`
	AcceptLanguage string         `mapstructure:"accept_language"`
	Headless       HeadlessConfig `mapstructure:"headless"`
}

// HeadlessConfig configures the chromedp fetcher.
type HeadlessConfig struct {
	MaxParallel       int           `mapstructure:"max_parallel"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout"`
	ExecPath          string        `mapstructure:"exec_path"`
}

// DispatchConfig selects how batches leave the server.
type DispatchConfig struct {
	Backend string       `mapstructure:"backend"`
	Ref     string       `mapstructure:"ref"`
	GitHub  GitHubConfig `mapstructure:"github"`
	PubSub  PubSubConfig `mapstructure:"pubsub"`
	Queue   QueueConfig  `mapstructure:"queue"`
}

// GitHubConfig holds API credentials and the workflow to trigger.
type GitHubConfig struct {
	API      ghapi.Config `mapstructure:"api"`
	Workflow string       `mapstructure:"workflow"`
}

// PubSubConfig names the batch topic and worker subscription.
type PubSubConfig struct {
	ProjectID    string `mapstructure:"project_id"`
	Topic        string `mapstructure:"topic"`
	Subscription string `mapstructure:"subscription"`
}

// QueueConfig sizes the in-process worker pool.
type QueueConfig struct {
	Depth   int `mapstructure:"depth"`
	Workers int `mapstructure:"workers"`
}

// StorageConfig selects the artifact store.
type StorageConfig struct {
	Backend   string             `mapstructure:"backend"`
	Prefix    string             `mapstructure:"prefix"`
	ReadRPS   float64            `mapstructure:"read_rps"`
	ReadBurst int                `mapstructure:"read_burst"`
	Local     localstore.Config  `mapstructure:"local"`
	GCS       gcsstore.Config    `mapstructure:"gcs"`
	Redis     redisstore.Config  `mapstructure:"redis"`
	GitHub    githubstore.Config `mapstructure:"github"`
}

// TrackerConfig tunes result polling.
type TrackerConfig struct {
	PollInterval     time.Duration `mapstructure:"poll_interval"`
	BackoffCeiling   time.Duration `mapstructure:"backoff_ceiling"`
	MaxStoreFailures int           `mapstructure:"max_store_failures"`
	Retention        time.Duration `mapstructure:"retention"`
}

// Policy converts the section into a tracker poll policy.
func (t TrackerConfig) Policy() tracker.PollPolicy {
	return tracker.PollPolicy{
		Interval:         t.PollInterval,
		BackoffCeiling:   t.BackoffCeiling,
		MaxStoreFailures: t.MaxStoreFailures,
	}
}

// ProgressConfig enables progress sinks.
type ProgressConfig struct {
	Log        bool `mapstructure:"log"`
	Prometheus bool `mapstructure:"prometheus"`
	Store      bool `mapstructure:"store"`
	BufferSize int  `mapstructure:"buffer_size"`
}

// DatabaseConfig controls access to the job-run database.
type DatabaseConfig struct {
	DSN     string `mapstructure:"dsn"`
	Migrate bool   `mapstructure:"migrate"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("KGR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.request_timeout", 30*time.Second)
	v.SetDefault("server.shutdown_timeout", 15*time.Second)
	v.SetDefault("server.max_upload_bytes", 10<<20)
	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.api_key", "")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "")
	v.SetDefault("batch.size", 30)

	v.SetDefault("scrape.fetcher", FetcherColly)
	v.SetDefault("scrape.base_url", "https://www.google.com")
	v.SetDefault("scrape.selector", "#result-stats")
	v.SetDefault("scrape.delay", 2*time.Second)
	v.SetDefault("scrape.retry_delay", 5*time.Second)
	v.SetDefault("scrape.query_timeout", 20*time.Second)
	v.SetDefault("scrape.retry_timeout", 30*time.Second)
	v.SetDefault("scrape.user_agent", "Mozilla/5.0 (X11; Linux x86_64) kgr-crawler/0.1")
	v.SetDefault("scrape.accept_language", "en-US,en;q=0.9")
	v.SetDefault("scrape.headless.max_parallel", 1)
	v.SetDefault("scrape.headless.navigation_timeout", 45*time.Second)
	v.SetDefault("scrape.headless.exec_path", "")

	v.SetDefault("dispatch.backend", DispatchQueue)
	v.SetDefault("dispatch.ref", "main")
	v.SetDefault("dispatch.github.api.base_url", ghapi.DefaultBaseURL)
	v.SetDefault("dispatch.github.api.repository", "")
	v.SetDefault("dispatch.github.api.token", "")
	v.SetDefault("dispatch.github.api.timeout", 30*time.Second)
	v.SetDefault("dispatch.github.workflow", "scrape.yml")
	v.SetDefault("dispatch.pubsub.project_id", "")
	v.SetDefault("dispatch.pubsub.topic", "kgr-batches")
	v.SetDefault("dispatch.pubsub.subscription", "kgr-batches-worker")
	v.SetDefault("dispatch.queue.depth", 64)
	v.SetDefault("dispatch.queue.workers", 2)

	v.SetDefault("storage.backend", StorageMemory)
	v.SetDefault("storage.prefix", "results")
	v.SetDefault("storage.read_rps", 5.0)
	v.SetDefault("storage.read_burst", 5)
	v.SetDefault("storage.local.base_dir", "./data")
	v.SetDefault("storage.gcs.bucket", "")
	v.SetDefault("storage.gcs.url_base", "")
	v.SetDefault("storage.redis.addr", "localhost:6379")
	v.SetDefault("storage.redis.password", "")
	v.SetDefault("storage.redis.db", 0)
	v.SetDefault("storage.redis.key_prefix", "kgr:")
	v.SetDefault("storage.redis.ttl", 7*24*time.Hour)
	v.SetDefault("storage.github.branch", "main")
	v.SetDefault("storage.github.commit_message", "Add batch results")

	v.SetDefault("tracker.poll_interval", tracker.DefaultPollInterval)
	v.SetDefault("tracker.backoff_ceiling", tracker.DefaultBackoffCeiling)
	v.SetDefault("tracker.max_store_failures", tracker.DefaultMaxStoreFailures)
	v.SetDefault("tracker.retention", time.Hour)

	coef := score.DefaultCoefficients()
	v.SetDefault("score.difficulty_allintitle_weight", coef.DifficultyAllintitleWeight)
	v.SetDefault("score.difficulty_intitle_weight", coef.DifficultyIntitleWeight)
	v.SetDefault("score.opportunity_volume_weight", coef.OpportunityVolumeWeight)
	v.SetDefault("score.opportunity_kgr_weight", coef.OpportunityKGRWeight)

	v.SetDefault("progress.log", true)
	v.SetDefault("progress.prometheus", true)
	v.SetDefault("progress.store", false)
	v.SetDefault("progress.buffer_size", 1024)

	v.SetDefault("database.dsn", "")
	v.SetDefault("database.migrate", true)

	v.SetDefault("telemetry.service_name", "kgr-crawler")
	v.SetDefault("telemetry.sample_ratio", 0.0)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return errors.New("server.port must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return errors.New("auth.api_key must be set when auth is enabled")
	}
	if c.Batch.Size <= 0 {
		return errors.New("batch.size must be > 0")
	}
	switch c.Scrape.Fetcher {
	case FetcherColly:
	case FetcherHeadless, FetcherHybrid:
		if c.Scrape.Headless.MaxParallel <= 0 {
			return errors.New("scrape.headless.max_parallel must be > 0")
		}
	default:
		return fmt.Errorf("scrape.fetcher %q is not supported", c.Scrape.Fetcher)
	}
	if err := c.validateDispatch(); err != nil {
		return err
	}
	if err := c.validateStorage(); err != nil {
		return err
	}
	if err := c.Tracker.Policy().Validate(); err != nil {
		return fmt.Errorf("tracker: %w", err)
	}
	if c.Tracker.Retention < 0 {
		return errors.New("tracker.retention must be >= 0")
	}
	if err := c.Score.Validate(); err != nil {
		return err
	}
	if c.Progress.Store && c.Database.DSN == "" {
		return errors.New("database.dsn must be set when progress.store is enabled")
	}
	if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1 {
		return errors.New("telemetry.sample_ratio must be within [0,1]")
	}
	return nil
}

func (c Config) validateDispatch() error {
	switch c.Dispatch.Backend {
	case DispatchQueue:
		if c.Dispatch.Queue.Workers <= 0 {
			return errors.New("dispatch.queue.workers must be > 0")
		}
		if c.Storage.Backend == StorageMemory {
			return nil
		}
	case DispatchGitHub:
		if c.Dispatch.GitHub.API.Repository == "" || c.Dispatch.GitHub.API.Token == "" {
			return errors.New("dispatch.github.api.repository and token are required")
		}
		if c.Dispatch.GitHub.Workflow == "" {
			return errors.New("dispatch.github.workflow is required")
		}
	case DispatchPubSub:
		if c.Dispatch.PubSub.ProjectID == "" || c.Dispatch.PubSub.Topic == "" {
			return errors.New("dispatch.pubsub.project_id and topic are required")
		}
	default:
		return fmt.Errorf("dispatch.backend %q is not supported", c.Dispatch.Backend)
	}
	if c.Storage.Backend == StorageMemory {
		return fmt.Errorf("storage.backend memory cannot be shared with %s workers", c.Dispatch.Backend)
	}
	return nil
}

func (c Config) validateStorage() error {
	switch c.Storage.Backend {
	case StorageMemory:
	case StorageLocal:
		if c.Storage.Local.BaseDir == "" {
			return errors.New("storage.local.base_dir is required")
		}
	case StorageGCS:
		if c.Storage.GCS.Bucket == "" {
			return errors.New("storage.gcs.bucket is required")
		}
	case StorageRedis:
		if c.Storage.Redis.Addr == "" {
			return errors.New("storage.redis.addr is required")
		}
	case StorageGitHub:
		if c.Dispatch.GitHub.API.Repository == "" || c.Dispatch.GitHub.API.Token == "" {
			return errors.New("storage.github requires dispatch.github.api credentials")
		}
	default:
		return fmt.Errorf("storage.backend %q is not supported", c.Storage.Backend)
	}
	if c.Storage.ReadRPS < 0 {
		return errors.New("storage.read_rps must be >= 0")
	}
	return nil
}

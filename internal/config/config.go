package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"

	"gopkg.in/yaml.v2"
)

// =============================================================================
// nooterra/substrate - Configuration with Environment Overrides
// =============================================================================

// Config is loaded once from a YAML file (config.yaml by default) and then
// overridden field-by-field from environment variables.
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Ledger       LedgerConfig       `yaml:"ledger"`
	X402         X402Config         `yaml:"x402"`
	Holdback     HoldbackConfig     `yaml:"holdback"`
	EventChain   EventChainConfig   `yaml:"event_chain"`
	Signing      SigningConfig      `yaml:"signing"`
	Postgres     PostgresConfig     `yaml:"postgres"`
	Redis        RedisConfig        `yaml:"redis"`
	BundleArchive BundleArchiveConfig `yaml:"bundle_archive"`
	Reputation   ReputationConfig   `yaml:"reputation"`
	PubSub       PubSubConfig       `yaml:"pubsub"`
	CloudTasks   CloudTasksConfig   `yaml:"cloud_tasks"`
}

type ServerConfig struct {
	Port            string   `yaml:"port"`
	Env             string   `yaml:"env"`
	Interface       string   `yaml:"interface"`
	ReadTimeoutSec  int      `yaml:"read_timeout_sec"`
	WriteTimeoutSec int      `yaml:"write_timeout_sec"`
	IdleTimeoutSec  int      `yaml:"idle_timeout_sec"`
	ShutdownTimeout int      `yaml:"shutdown_timeout_sec"`
	CORSAllowOrigins []string `yaml:"cors_allow_origins"`
}

// LedgerConfig controls which Store binding backs internal/ledger.
type LedgerConfig struct {
	Backend         string   `yaml:"backend"` // "memory" | "postgres"
	DefaultCurrency string   `yaml:"default_currency"`
}

// X402Config carries the gate defaults a request may omit.
type X402Config struct {
	DefaultHoldbackBps       int   `yaml:"default_holdback_bps"`
	DefaultChallengeWindowMs int64 `yaml:"default_challenge_window_ms"`
}

// HoldbackConfig tunes the maintenance sweep.
type HoldbackConfig struct {
	SweepIntervalSec  int   `yaml:"sweep_interval_sec"`
	MaintenanceTTLMs  int64 `yaml:"maintenance_lock_ttl_ms"`
}

// EventChainConfig names the governance tenant the server's own signer key
// is issued under.
type EventChainConfig struct {
	GovernanceTenantID string `yaml:"governance_tenant_id"`
}

// SigningConfig locates the server's Ed25519 signing key material.
type SigningConfig struct {
	PrivateKeySeedHex string `yaml:"private_key_seed_hex"`
}

// PostgresConfig configures internal/store/pgstore (lib/pq).
type PostgresConfig struct {
	DSN             string `yaml:"dsn"`
	MaxOpenConns    int    `yaml:"max_open_conns"`
	MaxIdleConns    int    `yaml:"max_idle_conns"`
}

// RedisConfig configures the Redis-backed internal/lock.AdvisoryLock used
// outside the in-memory store deployment.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// BundleArchiveConfig configures internal/store/bundlearchive's off-box
// copy of exported proof bundles (supabase-community/supabase-go).
type BundleArchiveConfig struct {
	URL        string `yaml:"url"`
	ServiceKey string `yaml:"service_key"`
	Bucket     string `yaml:"bucket"`
}

// ReputationConfig selects the reputation-facts backend: the in-memory
// default, or the Cloud Spanner store in internal/reputation.
type ReputationConfig struct {
	Backend string        `yaml:"backend"` // "memory" | "spanner"
	Spanner SpannerConfig `yaml:"spanner"`
}

type SpannerConfig struct {
	ProjectID  string `yaml:"project_id"`
	InstanceID string `yaml:"instance_id"`
	DatabaseID string `yaml:"database_id"`
}

// PubSubConfig configures the optional external event fan-out
// (internal/eventsbus), off by default.
type PubSubConfig struct {
	ProjectID string `yaml:"project_id"`
	TopicID   string `yaml:"topic_id"`
	Enabled   bool   `yaml:"enabled"`
}

// CloudTasksConfig schedules the deferred per-hold challenge-window sweep.
type CloudTasksConfig struct {
	ProjectID  string `yaml:"project_id"`
	LocationID string `yaml:"location_id"`
	QueueID    string `yaml:"queue_id"`
	Enabled    bool   `yaml:"enabled"`
}

// =============================================================================
// Singleton Pattern with Environment Overrides
// =============================================================================

var (
	instance *Config
	once     sync.Once
)

// Get returns the singleton config instance.
func Get() *Config {
	once.Do(func() {
		cfg, err := LoadConfig(getEnv("CONFIG_PATH", "config.yaml"))
		if err != nil {
			slog.Warn("config: failed to load config file (using defaults)", "error", err)
		}
		if cfg == nil {
			cfg = &Config{}
		}
		cfg.applyEnvOverrides()
		instance = cfg
	})
	return instance
}

// LoadConfig loads config from a YAML file.
func LoadConfig(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	c.Server.Port = getEnv("PORT", c.Server.Port)
	c.Server.Env = getEnv("SUBSTRATE_ENV", c.Server.Env)
	c.Server.Interface = getEnv("SUBSTRATE_INTERFACE", c.Server.Interface)

	c.Ledger.Backend = getEnv("LEDGER_BACKEND", c.Ledger.Backend)
	c.Ledger.DefaultCurrency = getEnv("LEDGER_DEFAULT_CURRENCY", c.Ledger.DefaultCurrency)

	if v := getEnvInt("X402_DEFAULT_HOLDBACK_BPS", 0); v > 0 {
		c.X402.DefaultHoldbackBps = v
	}
	if v := getEnvInt("X402_DEFAULT_CHALLENGE_WINDOW_MS", 0); v > 0 {
		c.X402.DefaultChallengeWindowMs = int64(v)
	}

	if v := getEnvInt("HOLDBACK_SWEEP_INTERVAL_SEC", 0); v > 0 {
		c.Holdback.SweepIntervalSec = v
	}
	if v := getEnvInt("HOLDBACK_MAINTENANCE_LOCK_TTL_MS", 0); v > 0 {
		c.Holdback.MaintenanceTTLMs = int64(v)
	}

	c.EventChain.GovernanceTenantID = getEnv("EVENT_CHAIN_GOVERNANCE_TENANT_ID", c.EventChain.GovernanceTenantID)
	c.Signing.PrivateKeySeedHex = getEnv("SIGNING_PRIVATE_KEY_SEED_HEX", c.Signing.PrivateKeySeedHex)

	c.Postgres.DSN = getEnv("POSTGRES_DSN", c.Postgres.DSN)
	if v := getEnvInt("POSTGRES_MAX_OPEN_CONNS", 0); v > 0 {
		c.Postgres.MaxOpenConns = v
	}
	if v := getEnvInt("POSTGRES_MAX_IDLE_CONNS", 0); v > 0 {
		c.Postgres.MaxIdleConns = v
	}

	c.Redis.Addr = getEnv("REDIS_ADDR", c.Redis.Addr)
	c.Redis.Password = getEnv("REDIS_PASSWORD", c.Redis.Password)
	if v := getEnvInt("REDIS_DB", 0); v > 0 {
		c.Redis.DB = v
	}

	c.BundleArchive.URL = getEnv("BUNDLE_ARCHIVE_SUPABASE_URL", c.BundleArchive.URL)
	c.BundleArchive.ServiceKey = getEnv("BUNDLE_ARCHIVE_SUPABASE_SERVICE_KEY", c.BundleArchive.ServiceKey)
	c.BundleArchive.Bucket = getEnv("BUNDLE_ARCHIVE_BUCKET", c.BundleArchive.Bucket)

	c.Reputation.Backend = getEnv("REPUTATION_BACKEND", c.Reputation.Backend)
	c.Reputation.Spanner.ProjectID = getEnv("SPANNER_PROJECT_ID", c.Reputation.Spanner.ProjectID)
	c.Reputation.Spanner.InstanceID = getEnv("SPANNER_INSTANCE_ID", c.Reputation.Spanner.InstanceID)
	c.Reputation.Spanner.DatabaseID = getEnv("SPANNER_DATABASE_ID", c.Reputation.Spanner.DatabaseID)

	if projectID := getEnv("GCP_PROJECT_ID", ""); projectID != "" {
		c.PubSub.ProjectID = projectID
		c.CloudTasks.ProjectID = projectID
	}
	c.PubSub.TopicID = getEnv("PUBSUB_TOPIC_ID", c.PubSub.TopicID)
	c.PubSub.Enabled = getEnvBool("PUBSUB_ENABLED", c.PubSub.Enabled)

	c.CloudTasks.LocationID = getEnv("CLOUD_TASKS_LOCATION", c.CloudTasks.LocationID)
	c.CloudTasks.QueueID = getEnv("CLOUD_TASKS_QUEUE", c.CloudTasks.QueueID)
	c.CloudTasks.Enabled = getEnvBool("CLOUD_TASKS_ENABLED", c.CloudTasks.Enabled)

	if origins := getEnv("CORS_ALLOW_ORIGINS", ""); origins != "" {
		c.Server.CORSAllowOrigins = splitCSV(origins)
	}

	c.applyDefaults()
}

// applyDefaults sets sensible defaults for zero-valued config fields.
func (c *Config) applyDefaults() {
	if c.Server.Port == "" {
		c.Server.Port = "8080"
	}
	if c.Server.ReadTimeoutSec == 0 {
		c.Server.ReadTimeoutSec = 15
	}
	if c.Server.WriteTimeoutSec == 0 {
		c.Server.WriteTimeoutSec = 15
	}
	if c.Server.IdleTimeoutSec == 0 {
		c.Server.IdleTimeoutSec = 60
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 30
	}
	if len(c.Server.CORSAllowOrigins) == 0 {
		c.Server.CORSAllowOrigins = []string{"*"}
	}
	if c.Ledger.Backend == "" {
		c.Ledger.Backend = "memory"
	}
	if c.Ledger.DefaultCurrency == "" {
		c.Ledger.DefaultCurrency = "USD"
	}
	if c.X402.DefaultChallengeWindowMs == 0 {
		c.X402.DefaultChallengeWindowMs = 24 * 60 * 60 * 1000
	}
	if c.Holdback.SweepIntervalSec == 0 {
		c.Holdback.SweepIntervalSec = 60
	}
	if c.Holdback.MaintenanceTTLMs == 0 {
		c.Holdback.MaintenanceTTLMs = 30_000
	}
	if c.EventChain.GovernanceTenantID == "" {
		c.EventChain.GovernanceTenantID = "_governance"
	}
	if c.Reputation.Backend == "" {
		c.Reputation.Backend = "memory"
	}
	if c.PubSub.TopicID == "" {
		c.PubSub.TopicID = "substrate-events"
	}
	if c.CloudTasks.LocationID == "" {
		c.CloudTasks.LocationID = "us-central1"
	}
	if c.CloudTasks.QueueID == "" {
		c.CloudTasks.QueueID = "substrate-holdback-sweep"
	}
}

// =============================================================================
// Helper Functions
// =============================================================================

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		return val == "true" || val == "1"
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func splitCSV(s string) []string {
	parts := make([]string, 0)
	for _, p := range strings.Split(s, ",") {
		trimmed := strings.TrimSpace(p)
		if trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	return parts
}

// =============================================================================
// Convenience Methods
// =============================================================================

func (c *Config) IsProduction() bool  { return c.Server.Env == "production" }
func (c *Config) IsDevelopment() bool { return c.Server.Env == "development" }

func (c *Config) GetPort() string {
	if c.Server.Port == "" {
		return "8080"
	}
	return c.Server.Port
}

// Package config loads and validates pipeline configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/JakeFAU/lakeingest/internal/pipeline"
	"github.com/JakeFAU/lakeingest/internal/storage/local"
)

func init() {
	// Validation errors name the config key rather than the Go field.
	validation.ErrorTag = "mapstructure"
}

// Storage providers.
const (
	ProviderMemory = "memory"
	ProviderLocal  = "local"
	ProviderGCS    = "gcs"
	ProviderS3     = "s3"
	ProviderMinio  = "minio"
)

// Checkpoint modes and watermark stores.
const (
	CheckpointRelative  = "relative"
	CheckpointPersisted = "persisted"

	WatermarkObject   = "object"
	WatermarkPostgres = "postgres"
	WatermarkMemory   = "memory"
)

// Run history backends.
const (
	HistoryNone     = "none"
	HistoryMemory   = "memory"
	HistoryPostgres = "postgres"
)

// Config captures all pipeline configuration knobs loaded via Viper.
type Config struct {
	Sources    []pipeline.Source `mapstructure:"sources"`
	Storage    StorageConfig     `mapstructure:"storage"`
	HTTP       HTTPConfig        `mapstructure:"http"`
	Checkpoint CheckpointConfig  `mapstructure:"checkpoint"`
	Transform  TransformConfig   `mapstructure:"transform"`
	Columnar   ColumnarConfig    `mapstructure:"columnar"`
	Run        RunConfig         `mapstructure:"run"`
	PubSub     PubSubConfig      `mapstructure:"pubsub"`
	Logging    LoggingConfig     `mapstructure:"logging"`
	Metrics    MetricsConfig     `mapstructure:"metrics"`
	History    HistoryConfig     `mapstructure:"history"`
}

// StorageConfig selects the object-store backend and key prefixes.
type StorageConfig struct {
	Provider      string       `mapstructure:"provider"`
	Bucket        string       `mapstructure:"bucket"`
	RawPrefix     string       `mapstructure:"raw_prefix"`
	CuratedPrefix string       `mapstructure:"curated_prefix"`
	ListPageSize  int          `mapstructure:"list_page_size"`
	Local         local.Config `mapstructure:"local"`
	S3            S3Config     `mapstructure:"s3"`
	Minio         MinioConfig  `mapstructure:"minio"`
}

// S3Config holds S3 client settings.
type S3Config struct {
	Region          string `mapstructure:"region"`
	Endpoint        string `mapstructure:"endpoint"`
	ForcePathStyle  bool   `mapstructure:"force_path_style"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
}

// MinioConfig holds MinIO connection settings.
type MinioConfig struct {
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl"`
}

// HTTPConfig configures the API client and its retry behavior.
type HTTPConfig struct {
	Timeout     time.Duration `mapstructure:"timeout"`
	MaxAttempts int           `mapstructure:"max_attempts"`
	BackoffUnit time.Duration `mapstructure:"backoff_unit"`
	RetryPolicy string        `mapstructure:"retry_policy"`
	UserAgent   string        `mapstructure:"user_agent"`

	// RequestsPerSecond caps requests per API host; zero disables throttling.
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

// CheckpointConfig controls how fetch watermarks are derived.
type CheckpointConfig struct {
	Mode                 string         `mapstructure:"mode"`
	Store                string         `mapstructure:"store"`
	Prefix               string         `mapstructure:"prefix"`
	DefaultLookbackHours int            `mapstructure:"default_lookback_hours"`
	Postgres             PostgresConfig `mapstructure:"postgres"`
}

// PostgresConfig points the watermark store at a database.
type PostgresConfig struct {
	DSN   string `mapstructure:"dsn"`
	Table string `mapstructure:"table"`
}

// TransformConfig scopes a transform run.
type TransformConfig struct {
	ProcessDate string   `mapstructure:"process_date"`
	Sources     []string `mapstructure:"sources"`
}

// ColumnarConfig tunes Parquet output.
type ColumnarConfig struct {
	Compression string `mapstructure:"compression"`
}

// RunConfig governs scheduling of sources within one run.
type RunConfig struct {
	FailurePolicy string `mapstructure:"failure_policy"`
	Parallelism   int    `mapstructure:"parallelism"`
}

// PubSubConfig holds metadata for partition-written notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// LoggingConfig toggles zap development features and the minimum level.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// HistoryConfig controls where run lifecycle events are recorded.
type HistoryConfig struct {
	Store         string                `mapstructure:"store"`
	LogEvents     bool                  `mapstructure:"log_events"`
	BatchSize     int                   `mapstructure:"batch_size"`
	FlushInterval time.Duration         `mapstructure:"flush_interval"`
	Postgres      HistoryPostgresConfig `mapstructure:"postgres"`
}

// Enabled reports whether any run event sink is configured.
func (h HistoryConfig) Enabled() bool {
	return h.LogEvents || (h.Store != "" && h.Store != HistoryNone)
}

// HistoryPostgresConfig locates the run history tables.
type HistoryPostgresConfig struct {
	DSN          string `mapstructure:"dsn"`
	RunsTable    string `mapstructure:"runs_table"`
	SourcesTable string `mapstructure:"sources_table"`
}

// MetricsConfig controls the health and metrics listener.
type MetricsConfig struct {
	ListenAddr string `mapstructure:"listen_addr"`
}

// Load builds a Config from a .env file, disk and the environment.
func Load(path string) (Config, error) {
	// A missing .env file is normal outside local development.
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("LAKE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	if err := bindLegacyEnv(v); err != nil {
		return Config{}, err
	}

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

	if err := applySourceEnv(cfg.Sources, os.LookupEnv); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("sources", []map[string]any{
		{"name": "crm", "path": "/v1/customers"},
		{"name": "billing", "path": "/v1/invoices"},
	})
	v.SetDefault("storage.provider", ProviderLocal)
	v.SetDefault("storage.raw_prefix", "raw")
	v.SetDefault("storage.curated_prefix", "curated")
	v.SetDefault("storage.list_page_size", 1000)
	v.SetDefault("storage.local.base_dir", "data/lake")
	v.SetDefault("http.timeout", 30*time.Second)
	v.SetDefault("http.max_attempts", 5)
	v.SetDefault("http.backoff_unit", time.Second)
	v.SetDefault("http.retry_policy", "uniform")
	v.SetDefault("http.user_agent", "lakeingest/1.0")
	v.SetDefault("http.requests_per_second", 0)
	v.SetDefault("http.burst", 1)
	v.SetDefault("checkpoint.mode", CheckpointRelative)
	v.SetDefault("checkpoint.store", WatermarkObject)
	v.SetDefault("checkpoint.prefix", "checkpoints")
	v.SetDefault("checkpoint.default_lookback_hours", 24)
	v.SetDefault("checkpoint.postgres.table", "source_watermarks")
	v.SetDefault("transform.process_date", "manual")
	v.SetDefault("columnar.compression", "snappy")
	v.SetDefault("run.failure_policy", string(pipeline.FailAbort))
	v.SetDefault("run.parallelism", 1)
	v.SetDefault("logging.development", false)
	v.SetDefault("logging.level", "info")
	v.SetDefault("history.store", HistoryNone)
	v.SetDefault("history.log_events", false)
	v.SetDefault("history.batch_size", 100)
	v.SetDefault("history.flush_interval", 500*time.Millisecond)
	v.SetDefault("history.postgres.runs_table", "pipeline_runs")
	v.SetDefault("history.postgres.sources_table", "pipeline_source_runs")
}

// bindLegacyEnv keeps the unprefixed variable names older deployments set.
func bindLegacyEnv(v *viper.Viper) error {
	bindings := map[string][]string{
		"storage.bucket":         {"LAKE_STORAGE_BUCKET", "S3_BUCKET"},
		"storage.raw_prefix":     {"LAKE_STORAGE_RAW_PREFIX", "S3_PREFIX_RAW"},
		"storage.curated_prefix": {"LAKE_STORAGE_CURATED_PREFIX", "S3_PREFIX_CURATED"},
		"transform.process_date": {"LAKE_TRANSFORM_PROCESS_DATE", "PROCESS_DATE"},
	}
	for key, envs := range bindings {
		if err := v.BindEnv(append([]string{key}, envs...)...); err != nil {
			return fmt.Errorf("bind env %s: %w", key, err)
		}
	}
	return nil
}

// applySourceEnv overlays {NAME}_API_URL, {NAME}_API_TOKEN and
// {NAME}_SINCE_HOURS onto each configured source.
func applySourceEnv(sources []pipeline.Source, lookup func(string) (string, bool)) error {
	for i := range sources {
		prefix := strings.ToUpper(sources[i].Name)
		if val, ok := lookup(prefix + "_API_URL"); ok {
			sources[i].BaseURL = val
		}
		if val, ok := lookup(prefix + "_API_TOKEN"); ok {
			sources[i].AuthToken = val
		}
		if val, ok := lookup(prefix + "_SINCE_HOURS"); ok {
			hours, err := strconv.Atoi(strings.TrimSpace(val))
			if err != nil {
				return fmt.Errorf("%s_SINCE_HOURS: %w", prefix, err)
			}
			sources[i].LookbackHours = hours
		}
	}
	return nil
}

var processDatePattern = regexp.MustCompile(`^[^/\s]+$`)

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if len(c.Sources) == 0 {
		return fmt.Errorf("sources: at least one source is required")
	}
	seen := make(map[string]struct{}, len(c.Sources))
	for i := range c.Sources {
		s := c.Sources[i]
		if err := validation.ValidateStruct(&s,
			validation.Field(&s.Name, validation.Required, validation.Match(regexp.MustCompile(`^[a-z0-9_-]+$`))),
			validation.Field(&s.BaseURL, is.URL),
			validation.Field(&s.LookbackHours, validation.Min(0)),
		); err != nil {
			return prefixed(fmt.Sprintf("sources[%d]", i), err)
		}
		if _, dup := seen[s.Name]; dup {
			return fmt.Errorf("sources: %q declared twice", s.Name)
		}
		seen[s.Name] = struct{}{}
	}

	remote := c.Storage.Provider == ProviderGCS || c.Storage.Provider == ProviderS3 || c.Storage.Provider == ProviderMinio
	st := c.Storage
	if err := validation.ValidateStruct(&st,
		validation.Field(&st.Provider, validation.Required,
			validation.In(ProviderMemory, ProviderLocal, ProviderGCS, ProviderS3, ProviderMinio)),
		validation.Field(&st.Bucket, validation.When(remote, validation.Required)),
		validation.Field(&st.RawPrefix, validation.Required),
		validation.Field(&st.CuratedPrefix, validation.Required),
		validation.Field(&st.ListPageSize, validation.Required, validation.Min(1)),
	); err != nil {
		return prefixed("storage", err)
	}
	if st.Provider == ProviderLocal && strings.TrimSpace(st.Local.BaseDir) == "" {
		return fmt.Errorf("storage.local.base_dir must be set when provider is local")
	}
	if st.Provider == ProviderMinio && st.Minio.Endpoint == "" {
		return fmt.Errorf("storage.minio.endpoint must be set when provider is minio")
	}

	h := c.HTTP
	if err := validation.ValidateStruct(&h,
		validation.Field(&h.Timeout, validation.Required, validation.Min(time.Millisecond)),
		validation.Field(&h.MaxAttempts, validation.Required, validation.Min(1)),
		validation.Field(&h.BackoffUnit, validation.Min(time.Duration(0))),
		validation.Field(&h.RetryPolicy, validation.In("uniform", "classified")),
		validation.Field(&h.RequestsPerSecond, validation.Min(0.0)),
		validation.Field(&h.Burst, validation.Min(0)),
	); err != nil {
		return prefixed("http", err)
	}

	cp := c.Checkpoint
	persisted := cp.Mode == CheckpointPersisted
	if err := validation.ValidateStruct(&cp,
		validation.Field(&cp.Mode, validation.Required, validation.In(CheckpointRelative, CheckpointPersisted)),
		validation.Field(&cp.Store, validation.When(persisted, validation.Required),
			validation.In(WatermarkObject, WatermarkPostgres, WatermarkMemory)),
		validation.Field(&cp.DefaultLookbackHours, validation.Min(0)),
	); err != nil {
		return prefixed("checkpoint", err)
	}
	if persisted && cp.Store == WatermarkPostgres && cp.Postgres.DSN == "" {
		return fmt.Errorf("checkpoint.postgres.dsn must be set when the watermark store is postgres")
	}

	tr := c.Transform
	if err := validation.ValidateStruct(&tr,
		validation.Field(&tr.ProcessDate, validation.Required, validation.Match(processDatePattern)),
	); err != nil {
		return prefixed("transform", err)
	}
	for _, name := range tr.Sources {
		if _, ok := seen[name]; !ok {
			return fmt.Errorf("transform.sources: %q is not a configured source", name)
		}
	}

	col := c.Columnar
	if err := validation.ValidateStruct(&col,
		validation.Field(&col.Compression, validation.In("snappy", "gzip", "zstd", "uncompressed", "none")),
	); err != nil {
		return prefixed("columnar", err)
	}

	run := c.Run
	if err := validation.ValidateStruct(&run,
		validation.Field(&run.FailurePolicy, validation.In(string(pipeline.FailAbort), string(pipeline.FailContinue))),
		validation.Field(&run.Parallelism, validation.Required, validation.Min(1)),
	); err != nil {
		return prefixed("run", err)
	}

	lg := c.Logging
	if err := validation.ValidateStruct(&lg,
		validation.Field(&lg.Level, validation.In("debug", "info", "warn", "error")),
	); err != nil {
		return prefixed("logging", err)
	}

	hist := c.History
	if err := validation.ValidateStruct(&hist,
		validation.Field(&hist.Store, validation.In(HistoryNone, HistoryMemory, HistoryPostgres)),
		validation.Field(&hist.BatchSize, validation.Min(0)),
		validation.Field(&hist.FlushInterval, validation.Min(time.Duration(0))),
	); err != nil {
		return prefixed("history", err)
	}
	if hist.Store == HistoryPostgres && hist.Postgres.DSN == "" {
		return fmt.Errorf("history.postgres.dsn must be set when the history store is postgres")
	}

	if c.PubSub.Topic != "" && c.PubSub.ProjectID == "" {
		return fmt.Errorf("pubsub.project_id must be set when pubsub.topic is set")
	}
	return nil
}

// RequireEndpoints checks that every source can actually be fetched. Only
// ingestion needs it; transform runs work from staged objects alone.
func (c Config) RequireEndpoints() error {
	for _, s := range c.Sources {
		if s.BaseURL == "" {
			return fmt.Errorf("source %s: base_url is required (set %s_API_URL)", s.Name, strings.ToUpper(s.Name))
		}
	}
	return nil
}

// ValidateProcessDate checks a process-date label supplied outside the
// config file, such as a command-line flag.
func ValidateProcessDate(label string) error {
	if err := validation.Validate(label, validation.Required, validation.Match(processDatePattern)); err != nil {
		return fmt.Errorf("process date %q: %w", label, err)
	}
	return nil
}

// SelectSources narrows the configured sources to names, preserving the
// configured order. An empty filter returns every source.
func (c Config) SelectSources(names []string) ([]pipeline.Source, error) {
	if len(names) == 0 {
		return c.Sources, nil
	}
	want := make(map[string]bool, len(names))
	for _, n := range names {
		want[n] = true
	}
	var out []pipeline.Source
	for _, s := range c.Sources {
		if want[s.Name] {
			out = append(out, s)
			delete(want, s.Name)
		}
	}
	for n := range want {
		return nil, fmt.Errorf("unknown source %q", n)
	}
	return out, nil
}

// prefixed rewrites ozzo field errors so they carry the full config key.
func prefixed(section string, err error) error {
	var errs validation.Errors
	if !errors.As(err, &errs) {
		return fmt.Errorf("%s: %w", section, err)
	}
	out := make(validation.Errors, len(errs))
	for field, fieldErr := range errs {
		out[section+"."+field] = fieldErr
	}
	return out
}

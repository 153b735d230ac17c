package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/rightsizer/rightsizer/pkg/recommend"
)

// Config is the top-level configuration for the rightsizer engine.
type Config struct {
	CloudProvider string `yaml:"cloudProvider"` // "aws", "gcp", "azure"
	Region        string `yaml:"region"`
	Customer      string `yaml:"customer"`
	Tenant        string `yaml:"tenant"`
	Source        string `yaml:"source"` // report "source" label

	Scan      ScanConfig              `yaml:"scan"`
	Series    SeriesConfig            `yaml:"series"`
	Segmenter SegmenterConfig         `yaml:"segmenter"`
	Clusterer ClustererConfig         `yaml:"clusterer"`
	Trend     TrendConfig             `yaml:"trend"`
	Resize    ResizeConfig            `yaml:"resize"`
	Schedule  ScheduleConfig          `yaml:"schedule"`
	Savings   SavingsConfig           `yaml:"savings"`
	Groups    []recommend.GroupPolicy `yaml:"groups"`

	Catalog   CatalogConfig   `yaml:"catalog"`
	Database  DatabaseConfig  `yaml:"database"`
	APIServer APIServerConfig `yaml:"apiServer"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// ScanConfig drives the batch scan loop.
type ScanConfig struct {
	Schedule     string `yaml:"schedule"`   // cron expression; empty = run once
	MetricsDir   string `yaml:"metricsDir"` // root of per-resource metric day files
	ReportsDir   string `yaml:"reportsDir"` // jsonl output directory
	ResourceType string `yaml:"resourceType"`
}

// SeriesConfig controls loading and windowing of metric series.
type SeriesConfig struct {
	StepMinutes    int    `yaml:"stepMinutes"`    // nominal sample interval
	MinAllowedDays int    `yaml:"minAllowedDays"` // below this, insufficient data
	MaxDays        int    `yaml:"maxDays"`        // analysis window cap
	Timezone       string `yaml:"timezone"`       // local timezone for calendar-day grouping
}

// SegmenterConfig controls calendar-day segmentation.
type SegmenterConfig struct {
	StepMinutes            int `yaml:"stepMinutes"`
	OptimizedThresholdDays int `yaml:"optimizedThresholdDays"` // spans beyond this use the coarse step for the first day
	OptimizedStepMinutes   int `yaml:"optimizedStepMinutes"`
	MinDaysForTrimming     int `yaml:"minDaysForTrimming"` // fewer day groups than this skips edge trimming
}

// ClustererConfig controls the per-day clustering pass.
type ClustererConfig struct {
	MaxClusters   int `yaml:"maxClusters"`
	MaxIterations int `yaml:"maxIterations"`
}

// TrendConfig controls utilization banding and trend aggregation.
type TrendConfig struct {
	// CPU-load thresholds splitting clusters into shutdown/low/medium/high.
	Thresholds [3]float64 `yaml:"thresholds"`
	// Minimum share of total samples for a band to qualify for multi-trend
	// ("non-straight") analysis.
	MinPeriodShare float64 `yaml:"minPeriodShare"`
	// Minimum period length, in samples, for a period frame to survive.
	MinPeriodSamples int `yaml:"minPeriodSamples"`
	// AllowSplit permits workload-split recommendations.
	AllowSplit bool `yaml:"allowSplit"`
}

// ResizeConfig controls the shape-matching search.
type ResizeConfig struct {
	MaxResults       int                         `yaml:"maxResults"`
	Compatibility    recommend.CompatibilityRule `yaml:"compatibility"`
	AllowCrossSeries bool                        `yaml:"allowCrossSeries"`
	AllowCrossFamily bool                        `yaml:"allowCrossFamily"`
	// Target utilization band: candidate capacity should keep the observed
	// load between these two percentages.
	TargetMinPct float64 `yaml:"targetMinPct"`
	TargetMaxPct float64 `yaml:"targetMaxPct"`
	SortByPrice  bool    `yaml:"sortByPrice"`
	// PreferredSeries narrows candidates to these series prefixes when set
	// (customer shape-preference rule).
	PreferredSeries []string `yaml:"preferredSeries"`
}

// ScheduleConfig controls run-time schedule synthesis.
type ScheduleConfig struct {
	Allowed               bool `yaml:"allowed"`
	ShutdownAllowed       bool `yaml:"shutdownAllowed"`
	RecordStepMinutes     int  `yaml:"recordStepMinutes"`
	MinAllowedDays        int  `yaml:"minAllowedDays"`
	MaxAllowedDays        int  `yaml:"maxAllowedDays"`
	MinDayDurationMinutes int  `yaml:"minDayDurationMinutes"`
	// MinFrequency is the per-bucket shutdown frequency (relative to
	// processed days) below which a bucket is not considered reliably idle.
	MinFrequency          float64 `yaml:"minFrequency"`
	MergeToleranceMinutes int     `yaml:"mergeToleranceMinutes"`
	MaxWindows            int     `yaml:"maxWindows"`
}

// SavingsConfig controls savings computation.
type SavingsConfig struct {
	Ignore bool   `yaml:"ignore"`
	OS     string `yaml:"os"`
}

// CatalogConfig selects the shape catalog source.
type CatalogConfig struct {
	// File is a YAML shape catalog; empty means the built-in table or, when
	// UseCloudAPI is set, the live cloud catalog.
	File         string        `yaml:"file"`
	UseCloudAPI  bool          `yaml:"useCloudApi"`
	RefreshEvery time.Duration `yaml:"refreshEvery"`
}

// DatabaseConfig holds SQLite settings for the history store.
type DatabaseConfig struct {
	Path          string `yaml:"path"`
	RetentionDays int    `yaml:"retentionDays"`
}

// APIServerConfig holds REST API settings.
type APIServerConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// MetricsConfig holds Prometheus exposition settings.
type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// DefaultConfig returns a config with production defaults.
func DefaultConfig() *Config {
	return &Config{
		CloudProvider: "aws",
		Source:        "RIGHTSIZER",
		Scan: ScanConfig{
			MetricsDir:   "/var/lib/rightsizer/metrics",
			ReportsDir:   "/var/lib/rightsizer/reports",
			ResourceType: "INSTANCE",
		},
		Series: SeriesConfig{
			StepMinutes:    5,
			MinAllowedDays: 7,
			MaxDays:        90,
			Timezone:       "UTC",
		},
		Segmenter: SegmenterConfig{
			StepMinutes:            5,
			OptimizedThresholdDays: 30,
			OptimizedStepMinutes:   60,
			MinDaysForTrimming:     14,
		},
		Clusterer: ClustererConfig{
			MaxClusters:   4,
			MaxIterations: 50,
		},
		Trend: TrendConfig{
			Thresholds:       [3]float64{10, 30, 70},
			MinPeriodShare:   0.05,
			MinPeriodSamples: 4,
			AllowSplit:       true,
		},
		Resize: ResizeConfig{
			MaxResults:       5,
			Compatibility:    recommend.CompatibilityNone,
			AllowCrossSeries: true,
			AllowCrossFamily: false,
			TargetMinPct:     30,
			TargetMaxPct:     70,
		},
		Schedule: ScheduleConfig{
			Allowed:               true,
			ShutdownAllowed:       true,
			RecordStepMinutes:     30,
			MinAllowedDays:        7,
			MaxAllowedDays:        90,
			MinDayDurationMinutes: 120,
			MinFrequency:          0.5,
			MergeToleranceMinutes: 60,
			MaxWindows:            5,
		},
		Savings: SavingsConfig{
			OS: "Linux",
		},
		Catalog: CatalogConfig{
			RefreshEvery: 24 * time.Hour,
		},
		Database: DatabaseConfig{
			Path:          "/var/lib/rightsizer/rightsizer.db",
			RetentionDays: 90,
		},
		APIServer: APIServerConfig{
			Enabled: true,
			Addr:    ":8080",
		},
		Metrics: MetricsConfig{
			Addr: ":9090",
		},
	}
}

// LoadFromFile loads config from a YAML file on top of defaults.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}
	cfg.applyEnvOverrides()
	return cfg, nil
}

// applyEnvOverrides lets deployment environments override the file.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("RIGHTSIZER_REGION"); v != "" {
		c.Region = v
	}
	if v := os.Getenv("RIGHTSIZER_CLOUD"); v != "" {
		c.CloudProvider = v
	}
	if v := os.Getenv("RIGHTSIZER_DB_PATH"); v != "" {
		c.Database.Path = v
	}
	if v := os.Getenv("RIGHTSIZER_METRICS_DIR"); v != "" {
		c.Scan.MetricsDir = v
	}
	if v := os.Getenv("RIGHTSIZER_REPORTS_DIR"); v != "" {
		c.Scan.ReportsDir = v
	}
}

// Location resolves the configured timezone, defaulting to UTC.
func (c *Config) Location() *time.Location {
	if c.Series.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(c.Series.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

package config

import (
	"fmt"
	"strings"

	"github.com/robfig/cron/v3"

	"github.com/rightsizer/rightsizer/pkg/recommend"
)

// ValidationError collects multiple validation errors.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed: %s", strings.Join(e.Errors, "; "))
}

func (e *ValidationError) Add(msg string) {
	e.Errors = append(e.Errors, msg)
}

func (e *ValidationError) HasErrors() bool {
	return len(e.Errors) > 0
}

// Validate performs comprehensive config validation.
func (c *Config) Validate() error {
	ve := &ValidationError{}

	switch c.CloudProvider {
	case "aws", "gcp", "azure", "":
	default:
		ve.Add(fmt.Sprintf("invalid cloud provider %q", c.CloudProvider))
	}

	if c.Scan.Schedule != "" {
		if _, err := cron.ParseStandard(c.Scan.Schedule); err != nil {
			ve.Add(fmt.Sprintf("invalid scan.schedule %q: %v", c.Scan.Schedule, err))
		}
	}
	if c.Scan.MetricsDir == "" {
		ve.Add("scan.metricsDir must be set")
	}

	if c.Series.StepMinutes <= 0 {
		ve.Add("series.stepMinutes must be positive")
	}
	if c.Series.MinAllowedDays < 1 {
		ve.Add("series.minAllowedDays must be >= 1")
	}
	if c.Series.MaxDays < c.Series.MinAllowedDays {
		ve.Add("series.maxDays must be >= series.minAllowedDays")
	}

	if c.Segmenter.StepMinutes <= 0 {
		ve.Add("segmenter.stepMinutes must be positive")
	}
	if c.Segmenter.OptimizedStepMinutes < c.Segmenter.StepMinutes {
		ve.Add("segmenter.optimizedStepMinutes must be >= segmenter.stepMinutes")
	}

	if c.Clusterer.MaxClusters < 1 {
		ve.Add("clusterer.maxClusters must be >= 1")
	}

	t := c.Trend.Thresholds
	if !(t[0] < t[1] && t[1] < t[2]) {
		ve.Add(fmt.Sprintf("trend.thresholds must be strictly increasing, got %v", t))
	}
	if t[0] < 0 || t[2] > 100 {
		ve.Add("trend.thresholds must lie within [0, 100]")
	}
	if c.Trend.MinPeriodShare < 0 || c.Trend.MinPeriodShare > 1 {
		ve.Add("trend.minPeriodShare must be within [0, 1]")
	}

	if c.Resize.MaxResults < 1 {
		ve.Add("resize.maxResults must be >= 1")
	}
	switch c.Resize.Compatibility {
	case recommend.CompatibilityNone, recommend.CompatibilitySame, recommend.CompatibilityCompatible:
	default:
		ve.Add(fmt.Sprintf("invalid resize.compatibility %q", c.Resize.Compatibility))
	}
	if c.Resize.TargetMinPct <= 0 || c.Resize.TargetMaxPct > 100 || c.Resize.TargetMinPct >= c.Resize.TargetMaxPct {
		ve.Add("resize target band must satisfy 0 < targetMinPct < targetMaxPct <= 100")
	}

	if c.Schedule.RecordStepMinutes <= 0 || 1440%c.Schedule.RecordStepMinutes != 0 {
		ve.Add("schedule.recordStepMinutes must evenly divide a day")
	}
	if c.Schedule.MinFrequency < 0 || c.Schedule.MinFrequency > 1 {
		ve.Add("schedule.minFrequency must be within [0, 1]")
	}
	if c.Schedule.MaxAllowedDays < c.Schedule.MinAllowedDays {
		ve.Add("schedule.maxAllowedDays must be >= schedule.minAllowedDays")
	}

	for i, g := range c.Groups {
		if g.ID == "" {
			ve.Add(fmt.Sprintf("groups[%d].id must be set", i))
		}
		if g.ScaleStep < 1 && g.ScaleStep != recommend.AutoDetectStep {
			ve.Add(fmt.Sprintf("groups[%d].scaleStep must be >= 1 or %d (auto)", i, recommend.AutoDetectStep))
		}
		th := g.Thresholds
		if !(th.Min <= th.Desired && th.Desired <= th.Max) {
			ve.Add(fmt.Sprintf("groups[%d].thresholds must satisfy min <= desired <= max", i))
		}
	}

	if ve.HasErrors() {
		return ve
	}
	return nil
}

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rightsizer/rightsizer/pkg/recommend"
)

func TestDefaultConfigValidates(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("DefaultConfig().Validate(): %v", err)
	}
}

func TestValidate_Rejections(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantMsg string
	}{
		{
			"unknown cloud provider",
			func(c *Config) { c.CloudProvider = "ibm" },
			"invalid cloud provider",
		},
		{
			"bad cron expression",
			func(c *Config) { c.Scan.Schedule = "not a cron" },
			"invalid scan.schedule",
		},
		{
			"non-increasing thresholds",
			func(c *Config) { c.Trend.Thresholds = [3]float64{30, 30, 70} },
			"strictly increasing",
		},
		{
			"inverted target band",
			func(c *Config) { c.Resize.TargetMinPct, c.Resize.TargetMaxPct = 70, 30 },
			"target band",
		},
		{
			"record step not dividing a day",
			func(c *Config) { c.Schedule.RecordStepMinutes = 7 },
			"evenly divide",
		},
		{
			"group without id",
			func(c *Config) { c.Groups = []recommend.GroupPolicy{{ScaleStep: 1}} },
			"groups[0].id",
		},
		{
			"group with zero scale step",
			func(c *Config) {
				c.Groups = []recommend.GroupPolicy{{ID: "g", ScaleStep: 0}}
			},
			"scaleStep",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("Validate() accepted an invalid config")
			}
			if !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("error %q does not mention %q", err, tt.wantMsg)
			}
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	doc := `
region: eu-west-1
scan:
  schedule: "0 3 * * *"
resize:
  maxResults: 3
schedule:
  shutdownAllowed: false
`
	if err := os.WriteFile(path, []byte(doc), 0644); err != nil {
		t.Fatalf("writing config: %v", err)
	}

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile(): %v", err)
	}
	if cfg.Region != "eu-west-1" {
		t.Errorf("region = %q, want eu-west-1", cfg.Region)
	}
	if cfg.Resize.MaxResults != 3 {
		t.Errorf("maxResults = %d, want the file override 3", cfg.Resize.MaxResults)
	}
	if cfg.Schedule.ShutdownAllowed {
		t.Error("shutdownAllowed override not applied")
	}
	// Untouched keys keep their defaults.
	if cfg.Trend.Thresholds != [3]float64{10, 30, 70} {
		t.Errorf("thresholds = %v, want defaults", cfg.Trend.Thresholds)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("loaded config failed validation: %v", err)
	}
}

func TestLoadFromFile_Missing(t *testing.T) {
	if _, err := LoadFromFile(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("LoadFromFile() on a missing path did not fail")
	}
}

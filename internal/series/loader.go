package series

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
)

// ErrInsufficientData signals coverage below the configured minimum days.
// Not an error condition for the batch: the caller downgrades the resource to
// a documented "insufficient" report.
var ErrInsufficientData = errors.New("insufficient metric data")

// LoaderConfig controls series loading and windowing.
type LoaderConfig struct {
	Step           time.Duration
	MinAllowedDays int
	MaxDays        int
	Location       *time.Location
}

// Loader reads per-resource metric day files from local storage. Layout:
// <root>/<instanceID>/<YYYY-MM-DD>.csv with columns
// timestamp,instance_id,instance_type,cpu_load,memory_load,net_output_load,avg_disk_iops,max_disk_iops.
type Loader struct {
	root string
	cfg  LoaderConfig
}

// NewLoader creates a loader rooted at dir.
func NewLoader(dir string, cfg LoaderConfig) *Loader {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Step <= 0 {
		cfg.Step = 5 * time.Minute
	}
	return &Loader{root: dir, cfg: cfg}
}

// ListResources returns the instance ids that have metric directories.
func (l *Loader) ListResources() ([]string, error) {
	entries, err := os.ReadDir(l.root)
	if err != nil {
		return nil, fmt.Errorf("reading metrics dir %s: %w", l.root, err)
	}
	var ids []string
	for _, e := range entries {
		if e.IsDir() {
			ids = append(ids, e.Name())
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// Load merges the resource's day files into one gap-filled, windowed series.
// after, when non-zero, trims samples at or before the most recent applied
// recommendation's capture date so already-acted-on telemetry is not
// re-analyzed.
func (l *Loader) Load(instanceID string, after time.Time) (*Series, error) {
	dir := filepath.Join(l.root, instanceID)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading resource dir %s: %w", dir, err)
	}

	s := &Series{InstanceID: instanceID, Step: l.cfg.Step}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".csv") {
			continue
		}
		if err := l.appendFile(s, filepath.Join(dir, e.Name())); err != nil {
			return nil, err
		}
	}

	s.Normalize()
	if !after.IsZero() {
		s.TrimBefore(after.Add(time.Nanosecond))
	}
	s.TruncateDays(l.cfg.MaxDays)
	s.GapFill()

	if covered := s.CoveredDays(l.cfg.Location); covered < l.cfg.MinAllowedDays {
		return nil, fmt.Errorf("%w: %d covered days, need %d", ErrInsufficientData, covered, l.cfg.MinAllowedDays)
	}
	return s, nil
}

func (l *Loader) appendFile(s *Series, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening metric file: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = 8

	header, err := r.Read()
	if err != nil {
		return fmt.Errorf("reading header of %s: %w", path, err)
	}
	if len(header) == 0 || header[0] != "timestamp" {
		return fmt.Errorf("malformed metric file %s: unexpected header", path)
	}

	line := 1
	for {
		rec, err := r.Read()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("reading %s: %w", path, err)
		}
		line++

		ts, err := parseTimestamp(rec[0], l.cfg.Location)
		if err != nil {
			return fmt.Errorf("malformed metric file %s line %d: %w", path, line, err)
		}
		if s.InstanceType == "" {
			s.InstanceType = rec[2]
		}

		smp := Sample{Timestamp: ts}
		for i, field := range []struct {
			dst *float64
			col int
		}{
			{&smp.CPULoad, 3},
			{&smp.MemoryLoad, 4},
			{&smp.NetOutputLoad, 5},
			{&smp.AvgDiskIOPS, 6},
			{&smp.MaxDiskIOPS, 7},
		} {
			v, err := strconv.ParseFloat(strings.TrimSpace(rec[field.col]), 64)
			if err != nil {
				slog.Warn("series: unparseable metric value, treating as absent",
					"file", filepath.Base(path), "line", line, "column", i+3)
				v = NoSignal
			}
			*field.dst = v
		}
		s.Samples = append(s.Samples, smp)
	}
}

func parseTimestamp(raw string, loc *time.Location) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if secs, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return time.Unix(secs, 0).In(loc), nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05"} {
		if ts, err := time.ParseInLocation(layout, raw, loc); err == nil {
			return ts.In(loc), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", raw)
}

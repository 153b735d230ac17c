// Package scanner drives the batch loop: list resources, run the engine per
// resource with errors contained, write reports, then handle autoscaling
// groups.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/rightsizer/rightsizer/internal/config"
	"github.com/rightsizer/rightsizer/internal/engine"
	"github.com/rightsizer/rightsizer/internal/metrics"
	"github.com/rightsizer/rightsizer/internal/report"
	"github.com/rightsizer/rightsizer/internal/series"
	"github.com/rightsizer/rightsizer/internal/store"
	"github.com/rightsizer/rightsizer/pkg/recommend"
)

// Inventory supplies per-resource metadata (tags, autoscaling-group
// membership) from the cloud provider. Optional: offline runs work without
// one.
type Inventory interface {
	ResourceMeta(ctx context.Context, resourceID string) (map[string]string, error)
}

// Scanner runs one full batch over all resources under the metrics
// directory. Sequential per resource: a failure is recorded and the loop
// continues.
type Scanner struct {
	cfg       *config.Config
	loader    *series.Loader
	assembler *engine.Assembler
	group     *engine.GroupAssembler
	history   *store.HistoryStore
	archive   *store.ReportArchive
	reports   *report.Writer
	inventory Inventory
}

// New wires a scanner. inventory may be nil.
func New(cfg *config.Config, loader *series.Loader, assembler *engine.Assembler,
	group *engine.GroupAssembler, history *store.HistoryStore,
	archive *store.ReportArchive, reports *report.Writer, inventory Inventory) *Scanner {
	return &Scanner{
		cfg:       cfg,
		loader:    loader,
		assembler: assembler,
		group:     group,
		history:   history,
		archive:   archive,
		reports:   reports,
		inventory: inventory,
	}
}

// Scan processes every resource once, then evaluates group policies. Only
// infrastructure failures (listing resources) abort the batch; anything
// per-resource is contained.
func (s *Scanner) Scan(ctx context.Context) error {
	start := time.Now()
	metrics.ScansTotal.Inc()
	defer func() {
		metrics.ScanDuration.Observe(time.Since(start).Seconds())
	}()

	ids, err := s.loader.ListResources()
	if err != nil {
		return fmt.Errorf("listing resources: %w", err)
	}
	slog.Info("scan started", "resources", len(ids), "tenant", s.cfg.Tenant)

	totalSavings := 0.0
	var scanned []engine.Resource
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return err
		}
		rep, res := s.scanResource(ctx, id)
		metrics.ResourcesScanned.Inc()
		for _, action := range rep.GeneralActions {
			metrics.RecommendationsTotal.WithLabelValues(string(action)).Inc()
		}
		if rep.Recommendation.Savings != nil {
			totalSavings += rep.Recommendation.Savings.SavedMonthlyUSD
		}
		s.emit(rep)
		if res != nil {
			scanned = append(scanned, *res)
		}
	}
	metrics.EstimatedSavingsUSD.Set(totalSavings)

	s.scanGroups(scanned)

	slog.Info("scan finished", "resources", len(ids),
		"duration", time.Since(start).Round(time.Second),
		"estimatedSavingsUSD", totalSavings)
	return nil
}

// scanResource runs the pipeline for one resource, mapping the error
// taxonomy onto report status. Never returns an error: every failure becomes
// a report.
func (s *Scanner) scanResource(ctx context.Context, id string) (recommend.Report, *engine.Resource) {
	rep := recommend.Report{
		ResourceID:     id,
		ResourceType:   s.cfg.Scan.ResourceType,
		Source:         s.cfg.Source,
		GeneralActions: []recommend.Action{recommend.ActionEmpty},
		Stats:          recommend.Stats{Status: recommend.StatusOK},
	}

	// Telemetry predating an applied recommendation describes the old shape.
	var after time.Time
	if applied, ok, err := s.history.LatestApplied(id, s.cfg.Scan.ResourceType); err != nil {
		slog.Warn("scanner: loading applied history", "resource", id, "error", err)
	} else if ok {
		after = applied.LastMetricCapture
	}

	ser, err := s.loader.Load(id, after)
	if err != nil {
		if errors.Is(err, series.ErrInsufficientData) {
			metrics.ResourceErrors.WithLabelValues("insufficient_data").Inc()
			rep.Stats.Message = err.Error()
			slog.Info("scanner: insufficient data", "resource", id)
			return rep, nil
		}
		metrics.ResourceErrors.WithLabelValues("executor").Inc()
		rep.Stats.Status = recommend.StatusError
		rep.Stats.Message = err.Error()
		rep.GeneralActions = []recommend.Action{recommend.ActionError}
		slog.Error("scanner: loading series", "resource", id, "error", err)
		return rep, nil
	}

	meta := map[string]string{}
	if s.inventory != nil {
		if m, err := s.inventory.ResourceMeta(ctx, id); err != nil {
			slog.Warn("scanner: fetching resource meta", "resource", id, "error", err)
		} else {
			meta = m
		}
	}

	res := engine.Resource{ID: id, Type: s.cfg.Scan.ResourceType, Series: ser, Meta: meta}
	got, err := s.assembler.Recommend(ctx, res)
	if err != nil {
		return s.failureReport(rep, id, err), &res
	}
	return got, &res
}

// failureReport applies the taxonomy: postponed resources come back EMPTY,
// executor errors keep their message verbatim, anything else gets a generic
// wrapper. The batch always continues.
func (s *Scanner) failureReport(rep recommend.Report, id string, err error) recommend.Report {
	var execErr *engine.ExecutorError
	switch {
	case errors.Is(err, engine.ErrPostponed):
		metrics.ResourceErrors.WithLabelValues("postponed").Inc()
		rep.Stats.Status = recommend.StatusPostponed
		rep.GeneralActions = []recommend.Action{recommend.ActionEmpty}
		slog.Info("scanner: resource postponed", "resource", id)
	case errors.As(err, &execErr):
		metrics.ResourceErrors.WithLabelValues("executor").Inc()
		rep.Stats.Status = recommend.StatusError
		rep.Stats.Message = execErr.Msg
		rep.GeneralActions = []recommend.Action{recommend.ActionError}
		slog.Error("scanner: executor error", "resource", id, "error", err)
	default:
		metrics.ResourceErrors.WithLabelValues("unexpected").Inc()
		rep.Stats.Status = recommend.StatusError
		rep.Stats.Message = "unexpected processing failure"
		rep.GeneralActions = []recommend.Action{recommend.ActionError}
		slog.Error("scanner: unexpected failure", "resource", id, "error", err)
	}
	return rep
}

// emit writes the report to the jsonl output and the queryable archive.
// Output failures are logged, never fatal.
func (s *Scanner) emit(rep recommend.Report) {
	key := report.Key{
		Customer: s.cfg.Customer,
		Cloud:    s.cfg.CloudProvider,
		Tenant:   s.cfg.Tenant,
		Region:   s.cfg.Region,
	}
	if err := s.reports.Append(key, rep); err != nil {
		slog.Error("scanner: writing report", "resource", rep.ResourceID, "error", err)
	}
	if err := s.archive.Save(rep); err != nil {
		slog.Error("scanner: archiving report", "resource", rep.ResourceID, "error", err)
	}
}

// scanGroups evaluates each autoscaling-group policy over the members tagged
// for it during this scan.
func (s *Scanner) scanGroups(scanned []engine.Resource) {
	if s.group == nil {
		return
	}
	for _, policy := range s.cfg.Groups {
		var members []engine.Resource
		for _, res := range scanned {
			if res.Meta["asg"] == policy.Tag {
				members = append(members, res)
			}
		}
		if len(members) == 0 {
			continue
		}
		got, err := s.group.Recommend(policy, members)
		if err != nil {
			slog.Error("scanner: group recommendation", "policy", policy.ID, "error", err)
			continue
		}
		metrics.GroupRecommendationsTotal.WithLabelValues(string(got.Action)).Inc()
		slog.Info("scanner: group evaluated", "policy", policy.ID,
			"action", got.Action, "step", got.ScaleStep, "cached", got.ReusedCached)
	}
}

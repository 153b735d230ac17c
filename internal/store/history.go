package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/rightsizer/rightsizer/internal/engine"
	"github.com/rightsizer/rightsizer/pkg/recommend"
)

// History is one persisted recommendation row, keyed by (resource, type,
// recommendation type). At most one unresolved row exists per key per rolling
// ISO week.
type History struct {
	ID                 int64                    `json:"id"`
	ResourceID         string                   `json:"resourceId"`
	ResourceType       string                   `json:"resourceType"`
	RecommendationType recommend.Action         `json:"recommendationType"`
	Shapes             []recommend.ShapeProposal `json:"shapes,omitempty"`
	Schedule           []recommend.ScheduleWindow `json:"schedule,omitempty"`
	Feedback           recommend.FeedbackStatus `json:"feedback"`
	LastMetricCapture  time.Time                `json:"lastMetricCapture"`
	Savings            float64                  `json:"savings"`
	AddedAt            time.Time                `json:"addedAt"`
}

// Unresolved reports whether the row carries no operator feedback yet.
func (h History) Unresolved() bool { return h.Feedback == recommend.FeedbackNone }

// historyPayload is the opaque recommendation column: a shape list or a
// schedule list depending on the recommendation type.
type historyPayload struct {
	Shapes   []recommend.ShapeProposal  `json:"shapes,omitempty"`
	Schedule []recommend.ScheduleWindow `json:"schedule,omitempty"`
}

// HistoryStore is the feedback-aware accessor over recommendation history.
type HistoryStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewHistoryStore creates a history accessor. now is injectable for tests;
// nil means time.Now.
func NewHistoryStore(db *sql.DB, now func() time.Time) *HistoryStore {
	if now == nil {
		now = time.Now
	}
	return &HistoryStore{db: db, now: now}
}

// weekStart returns Monday 00:00 UTC of the current ISO week: the "recent"
// window used for merge-or-insert decisions.
func (s *HistoryStore) weekStart() time.Time {
	now := s.now().UTC()
	offset := (int(now.Weekday()) + 6) % 7
	day := now.AddDate(0, 0, -offset)
	return time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
}

// GetRecent returns this ISO week's rows for the resource. recType empty
// matches all recommendation types; unresolvedOnly filters rows that already
// carry feedback.
func (s *HistoryStore) GetRecent(resourceID, resourceType string, recType recommend.Action, unresolvedOnly bool) ([]History, error) {
	q := `SELECT id, resource_id, resource_type, recommendation_type, recommendation,
		feedback_status, last_metric_capture, savings, added_at
		FROM recommendation_history
		WHERE resource_id = ? AND resource_type = ? AND added_at >= ?`
	args := []any{resourceID, resourceType, s.weekStart().Unix()}
	if recType != "" {
		q += " AND recommendation_type = ?"
		args = append(args, string(recType))
	}
	if unresolvedOnly {
		q += " AND feedback_status = ''"
	}
	q += " ORDER BY added_at DESC"
	return s.query(q, args...)
}

// CreateOrUpdate persists a recommendation, merging into this week's
// unresolved row for the same key instead of inserting a duplicate. Finding
// more than one unresolved row is self-healed by deleting all but the newest
// before updating it.
func (s *HistoryStore) CreateOrUpdate(h History) (History, error) {
	existing, err := s.GetRecent(h.ResourceID, h.ResourceType, h.RecommendationType, true)
	if err != nil {
		return History{}, err
	}

	if len(existing) > 1 {
		slog.Warn("history: duplicate unresolved rows, keeping newest",
			"resource", h.ResourceID, "type", h.RecommendationType, "count", len(existing))
		for _, stale := range existing[1:] {
			if _, err := s.db.Exec("DELETE FROM recommendation_history WHERE id = ?", stale.ID); err != nil {
				return History{}, fmt.Errorf("deleting duplicate history row: %w", err)
			}
		}
		existing = existing[:1]
	}

	payload, err := json.Marshal(historyPayload{Shapes: h.Shapes, Schedule: h.Schedule})
	if err != nil {
		return History{}, fmt.Errorf("encoding history payload: %w", err)
	}
	h.AddedAt = s.now().UTC()

	if len(existing) == 1 {
		h.ID = existing[0].ID
		_, err := s.db.Exec(
			`UPDATE recommendation_history
			SET recommendation = ?, last_metric_capture = ?, savings = ?, added_at = ?
			WHERE id = ?`,
			string(payload), h.LastMetricCapture.Unix(), h.Savings, h.AddedAt.Unix(), h.ID,
		)
		if err != nil {
			return History{}, fmt.Errorf("updating history row: %w", err)
		}
		return h, nil
	}

	res, err := s.db.Exec(
		`INSERT INTO recommendation_history
		(resource_id, resource_type, recommendation_type, recommendation,
		 feedback_status, last_metric_capture, savings, added_at)
		VALUES (?, ?, ?, ?, '', ?, ?, ?)`,
		h.ResourceID, h.ResourceType, string(h.RecommendationType), string(payload),
		h.LastMetricCapture.Unix(), h.Savings, h.AddedAt.Unix(),
	)
	if err != nil {
		return History{}, fmt.Errorf("inserting history row: %w", err)
	}
	h.ID, _ = res.LastInsertId()
	return h, nil
}

// Record persists one emitted general action, merging into this week's
// unresolved row. This is the engine-facing write path.
func (s *HistoryStore) Record(resourceID, resourceType string, action recommend.Action,
	proposals []recommend.ShapeProposal, schedule []recommend.ScheduleWindow,
	capture time.Time, savings float64) error {
	_, err := s.CreateOrUpdate(History{
		ResourceID:         resourceID,
		ResourceType:       resourceType,
		RecommendationType: action,
		Shapes:             proposals,
		Schedule:           schedule,
		LastMetricCapture:  capture,
		Savings:            savings,
	})
	return err
}

// SetFeedback attaches operator feedback to a history row.
func (s *HistoryStore) SetFeedback(id int64, status recommend.FeedbackStatus) error {
	res, err := s.db.Exec(
		"UPDATE recommendation_history SET feedback_status = ? WHERE id = ?",
		string(status), id,
	)
	if err != nil {
		return fmt.Errorf("setting feedback: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("history row %d not found", id)
	}
	return nil
}

// Get returns one row by id.
func (s *HistoryStore) Get(id int64) (History, error) {
	rows, err := s.query(
		`SELECT id, resource_id, resource_type, recommendation_type, recommendation,
		feedback_status, last_metric_capture, savings, added_at
		FROM recommendation_history WHERE id = ?`, id)
	if err != nil {
		return History{}, err
	}
	if len(rows) == 0 {
		return History{}, fmt.Errorf("history row %d not found", id)
	}
	return rows[0], nil
}

// List returns the most recent rows across all resources, for the API.
func (s *HistoryStore) List(limit int) ([]History, error) {
	if limit <= 0 {
		limit = 100
	}
	return s.query(
		`SELECT id, resource_id, resource_type, recommendation_type, recommendation,
		feedback_status, last_metric_capture, savings, added_at
		FROM recommendation_history ORDER BY added_at DESC LIMIT ?`, limit)
}

// LatestApplied returns the newest APPLIED row for the resource, used to
// trim telemetry that predates an already-acted-on recommendation.
func (s *HistoryStore) LatestApplied(resourceID, resourceType string) (History, bool, error) {
	rows, err := s.query(
		`SELECT id, resource_id, resource_type, recommendation_type, recommendation,
		feedback_status, last_metric_capture, savings, added_at
		FROM recommendation_history
		WHERE resource_id = ? AND resource_type = ? AND feedback_status = ?
		ORDER BY added_at DESC LIMIT 1`,
		resourceID, resourceType, string(recommend.FeedbackApplied))
	if err != nil {
		return History{}, false, err
	}
	if len(rows) == 0 {
		return History{}, false, nil
	}
	return rows[0], true, nil
}

// IsShutdownForbidden reports whether any past SHUTDOWN recommendation for
// the resource was rejected as DONT_RECOMMEND or WRONG.
func (s *HistoryStore) IsShutdownForbidden(resourceID, resourceType string) (bool, error) {
	return s.hasFeedback(resourceID, resourceType,
		[]recommend.Action{recommend.ActionShutdown},
		[]recommend.FeedbackStatus{recommend.FeedbackDontRecommend, recommend.FeedbackWrong})
}

// IsScheduleForbidden reports whether SCHEDULE recommendations were rejected
// with DONT_RECOMMEND.
func (s *HistoryStore) IsScheduleForbidden(resourceID, resourceType string) (bool, error) {
	return s.hasFeedback(resourceID, resourceType,
		[]recommend.Action{recommend.ActionSchedule},
		[]recommend.FeedbackStatus{recommend.FeedbackDontRecommend})
}

var resizeActions = []recommend.Action{
	recommend.ActionScaleUp, recommend.ActionScaleDown,
	recommend.ActionChangeShape, recommend.ActionSplit,
}

// IsResizeForbidden reports whether resize recommendations were rejected
// with DONT_RECOMMEND.
func (s *HistoryStore) IsResizeForbidden(resourceID, resourceType string) (bool, error) {
	return s.hasFeedback(resourceID, resourceType, resizeActions,
		[]recommend.FeedbackStatus{recommend.FeedbackDontRecommend})
}

// ResizeAdjustment derives the candidate-pool adjustment from past
// TOO_SMALL/TOO_LARGE/WRONG feedback on resize recommendations. Floors and
// ceilings come from the last 3 recommended shapes carrying the respective
// feedback.
func (s *HistoryStore) ResizeAdjustment(resourceID, resourceType string) (engine.FeedbackAdjustment, error) {
	var adj engine.FeedbackAdjustment

	rows, err := s.feedbackRows(resourceID, resourceType, resizeActions)
	if err != nil {
		return adj, err
	}

	lastShapes := func(status recommend.FeedbackStatus) []recommend.ShapeProposal {
		var out []recommend.ShapeProposal
		for _, h := range rows {
			if h.Feedback != status {
				continue
			}
			for _, sh := range h.Shapes {
				out = append(out, sh)
				if len(out) == 3 {
					return out
				}
			}
		}
		return out
	}

	if small := lastShapes(recommend.FeedbackTooSmall); len(small) > 0 {
		adj.HasFloor = true
		for _, sh := range small {
			if sh.CPU > adj.FloorCPU {
				adj.FloorCPU = sh.CPU
			}
			if sh.MemoryGB > adj.FloorMemory {
				adj.FloorMemory = sh.MemoryGB
			}
		}
	}
	if large := lastShapes(recommend.FeedbackTooLarge); len(large) > 0 {
		adj.HasCeil = true
		adj.CeilCPU, adj.CeilMemory = large[0].CPU, large[0].MemoryGB
		for _, sh := range large[1:] {
			if sh.CPU < adj.CeilCPU {
				adj.CeilCPU = sh.CPU
			}
			if sh.MemoryGB < adj.CeilMemory {
				adj.CeilMemory = sh.MemoryGB
			}
		}
	}
	if wrong := lastShapes(recommend.FeedbackWrong); len(wrong) > 0 {
		adj.ExcludedNames = make(map[string]struct{}, len(wrong))
		for _, sh := range wrong {
			adj.ExcludedNames[sh.Name] = struct{}{}
		}
	}
	return adj, nil
}

func (s *HistoryStore) hasFeedback(resourceID, resourceType string, types []recommend.Action, statuses []recommend.FeedbackStatus) (bool, error) {
	rows, err := s.feedbackRows(resourceID, resourceType, types)
	if err != nil {
		return false, err
	}
	for _, h := range rows {
		for _, st := range statuses {
			if h.Feedback == st {
				return true, nil
			}
		}
	}
	return false, nil
}

// feedbackRows returns all rows with feedback for the given recommendation
// types, newest first.
func (s *HistoryStore) feedbackRows(resourceID, resourceType string, types []recommend.Action) ([]History, error) {
	q := `SELECT id, resource_id, resource_type, recommendation_type, recommendation,
		feedback_status, last_metric_capture, savings, added_at
		FROM recommendation_history
		WHERE resource_id = ? AND resource_type = ? AND feedback_status != ''
		AND recommendation_type IN (`
	args := []any{resourceID, resourceType}
	for i, t := range types {
		if i > 0 {
			q += ","
		}
		q += "?"
		args = append(args, string(t))
	}
	q += ") ORDER BY added_at DESC"
	return s.query(q, args...)
}

func (s *HistoryStore) query(q string, args ...any) ([]History, error) {
	rows, err := s.db.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("querying history: %w", err)
	}
	defer rows.Close()

	var out []History
	for rows.Next() {
		var h History
		var recType, payloadRaw, feedback string
		var capture, added int64
		if err := rows.Scan(&h.ID, &h.ResourceID, &h.ResourceType, &recType,
			&payloadRaw, &feedback, &capture, &h.Savings, &added); err != nil {
			return nil, fmt.Errorf("scanning history row: %w", err)
		}
		h.RecommendationType = recommend.Action(recType)
		h.Feedback = recommend.FeedbackStatus(feedback)
		h.LastMetricCapture = time.Unix(capture, 0).UTC()
		h.AddedAt = time.Unix(added, 0).UTC()

		var payload historyPayload
		if err := json.Unmarshal([]byte(payloadRaw), &payload); err != nil {
			slog.Warn("history: undecodable payload, skipping content", "id", h.ID, "error", err)
		}
		h.Shapes = payload.Shapes
		h.Schedule = payload.Schedule
		out = append(out, h)
	}
	return out, rows.Err()
}

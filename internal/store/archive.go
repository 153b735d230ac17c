package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/rightsizer/rightsizer/pkg/recommend"
)

// ReportArchive keeps produced reports queryable for the API beside the
// jsonl files. Writes go through the async writer so archiving never blocks
// the scan loop.
type ReportArchive struct {
	db     *sql.DB
	writer *Writer
}

// NewReportArchive creates an archive. writer may be nil, in which case
// writes happen synchronously.
func NewReportArchive(db *sql.DB, writer *Writer) *ReportArchive {
	return &ReportArchive{db: db, writer: writer}
}

// Save archives one report.
func (a *ReportArchive) Save(r recommend.Report) error {
	payload, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encoding report: %w", err)
	}
	ts := time.Now().Unix()

	write := func(db *sql.DB) {
		if _, err := db.Exec(
			"INSERT INTO report_archive (resource_id, resource_type, produced_at, payload) VALUES (?, ?, ?, ?)",
			r.ResourceID, r.ResourceType, ts, string(payload),
		); err != nil {
			slog.Error("archive: insert report", "resource", r.ResourceID, "error", err)
		}
	}

	if a.writer != nil {
		a.writer.Enqueue(write)
		return nil
	}
	write(a.db)
	return nil
}

// List returns the most recent reports, optionally filtered by resource id.
func (a *ReportArchive) List(resourceID string, limit int) ([]recommend.Report, error) {
	if limit <= 0 {
		limit = 100
	}
	q := "SELECT payload FROM report_archive"
	args := []any{}
	if resourceID != "" {
		q += " WHERE resource_id = ?"
		args = append(args, resourceID)
	}
	q += " ORDER BY produced_at DESC LIMIT ?"
	args = append(args, limit)

	rows, err := a.db.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("querying report archive: %w", err)
	}
	defer rows.Close()

	var out []recommend.Report
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scanning report row: %w", err)
		}
		var r recommend.Report
		if err := json.Unmarshal([]byte(payload), &r); err != nil {
			slog.Warn("archive: undecodable report payload, skipping", "error", err)
			continue
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// SaveGroup upserts the latest group-level recommendation for a policy,
// used by the cooldown check on the next scan.
func (a *ReportArchive) SaveGroup(r recommend.GroupReport) error {
	payload, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encoding group report: %w", err)
	}
	_, err = a.db.Exec(
		`INSERT INTO group_recommendations (policy_id, payload, produced_at) VALUES (?, ?, ?)
		ON CONFLICT(policy_id) DO UPDATE SET payload = excluded.payload, produced_at = excluded.produced_at`,
		r.PolicyID, string(payload), r.ProducedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("saving group recommendation: %w", err)
	}
	return nil
}

// LatestGroup returns the last stored group recommendation for a policy.
func (a *ReportArchive) LatestGroup(policyID string) (recommend.GroupReport, bool, error) {
	var payload string
	err := a.db.QueryRow(
		"SELECT payload FROM group_recommendations WHERE policy_id = ?", policyID,
	).Scan(&payload)
	if err == sql.ErrNoRows {
		return recommend.GroupReport{}, false, nil
	}
	if err != nil {
		return recommend.GroupReport{}, false, fmt.Errorf("querying group recommendation: %w", err)
	}
	var r recommend.GroupReport
	if err := json.Unmarshal([]byte(payload), &r); err != nil {
		return recommend.GroupReport{}, false, fmt.Errorf("decoding group recommendation: %w", err)
	}
	return r, true, nil
}

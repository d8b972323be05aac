package data

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/ferZyx/ip-cam-monitor/internal/alarm"
)

var ErrRecordNotFound = errors.New("record not found")

// DBTX is a common interface for *sql.DB and *sql.Tx
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// ResolutionReport is per-event diagnostic detail: which strategies ran,
// what the camera returned, how long it took.
type ResolutionReport struct {
	ID            string
	EventID       string
	EventTime     time.Time
	Code          string
	Realtime      bool
	Resolution    string
	Strategy      string
	PayloadClass  string
	MarkerPath    string
	ClipPath      string
	DownloadCount int
	FrameIndex    int
	Score         float64
	ErrorDetail   string
	DurationMs    int64
	CreatedAt     time.Time
}

type ReportModel struct {
	DB DBTX
}

// RecordReport implements alarm.ReportSink.
func (m ReportModel) RecordReport(ctx context.Context, ev *alarm.Event) error {
	r := ResolutionReport{
		ID:            uuid.New().String(),
		EventID:       ev.ID.String(),
		EventTime:     ev.Timestamp,
		Code:          ev.Code,
		Realtime:      ev.Realtime,
		Resolution:    string(ev.Resolution),
		Strategy:      ev.Report.Strategy,
		PayloadClass:  ev.Report.PayloadClass,
		MarkerPath:    ev.Report.MarkerPath,
		ClipPath:      ev.Report.ClipPath,
		DownloadCount: ev.Report.DownloadCount,
		FrameIndex:    ev.Report.FrameIndex,
		Score:         ev.Report.Score,
		ErrorDetail:   ev.Report.Error,
		DurationMs:    ev.Report.DurationMs,
	}
	return m.Insert(ctx, &r)
}

func (m ReportModel) Insert(ctx context.Context, r *ResolutionReport) error {
	query := `
		INSERT INTO resolution_reports
			(id, event_id, event_time, code, realtime, resolution, strategy, payload_class,
			 marker_path, clip_path, download_count, frame_index, score, error_detail, duration_ms)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`
	_, err := m.DB.ExecContext(ctx, query,
		r.ID, r.EventID, r.EventTime, r.Code, r.Realtime, r.Resolution, r.Strategy, r.PayloadClass,
		r.MarkerPath, r.ClipPath, r.DownloadCount, r.FrameIndex, r.Score, r.ErrorDetail, r.DurationMs,
	)
	return err
}

func (m ReportModel) Get(ctx context.Context, eventID string) (*ResolutionReport, error) {
	query := `
		SELECT id, event_id, event_time, code, realtime, resolution, strategy, payload_class,
		       marker_path, clip_path, download_count, frame_index, score, error_detail, duration_ms, created_at
		FROM resolution_reports
		WHERE event_id = $1
		ORDER BY created_at DESC
		LIMIT 1
	`
	var r ResolutionReport
	var markerPath, clipPath, errDetail sql.NullString

	err := m.DB.QueryRowContext(ctx, query, eventID).Scan(
		&r.ID, &r.EventID, &r.EventTime, &r.Code, &r.Realtime, &r.Resolution, &r.Strategy, &r.PayloadClass,
		&markerPath, &clipPath, &r.DownloadCount, &r.FrameIndex, &r.Score, &errDetail, &r.DurationMs, &r.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	if markerPath.Valid {
		r.MarkerPath = markerPath.String
	}
	if clipPath.Valid {
		r.ClipPath = clipPath.String
	}
	if errDetail.Valid {
		r.ErrorDetail = errDetail.String
	}
	return &r, nil
}

func (m ReportModel) ListRecent(ctx context.Context, limit, offset int) ([]*ResolutionReport, error) {
	query := `
		SELECT id, event_id, event_time, code, realtime, resolution, strategy, payload_class,
		       marker_path, clip_path, download_count, frame_index, score, error_detail, duration_ms, created_at
		FROM resolution_reports
		ORDER BY event_time DESC
		LIMIT $1 OFFSET $2
	`
	rows, err := m.DB.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reports []*ResolutionReport
	for rows.Next() {
		var r ResolutionReport
		var markerPath, clipPath, errDetail sql.NullString
		if err := rows.Scan(
			&r.ID, &r.EventID, &r.EventTime, &r.Code, &r.Realtime, &r.Resolution, &r.Strategy, &r.PayloadClass,
			&markerPath, &clipPath, &r.DownloadCount, &r.FrameIndex, &r.Score, &errDetail, &r.DurationMs, &r.CreatedAt,
		); err != nil {
			return nil, err
		}
		if markerPath.Valid {
			r.MarkerPath = markerPath.String
		}
		if clipPath.Valid {
			r.ClipPath = clipPath.String
		}
		if errDetail.Valid {
			r.ErrorDetail = errDetail.String
		}
		reports = append(reports, &r)
	}
	return reports, rows.Err()
}

// Prune deletes reports older than the retention window.
func (m ReportModel) Prune(ctx context.Context, retention time.Duration) (int64, error) {
	query := `DELETE FROM resolution_reports WHERE event_time < $1`
	res, err := m.DB.ExecContext(ctx, query, time.Now().Add(-retention))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// StrategyCounts aggregates resolutions per strategy over the window.
func (m ReportModel) StrategyCounts(ctx context.Context, since time.Time) (map[string]int, error) {
	query := `
		SELECT strategy, COUNT(*)
		FROM resolution_reports
		WHERE event_time >= $1
		GROUP BY strategy
	`
	rows, err := m.DB.QueryContext(ctx, query, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var strategy string
		var n int
		if err := rows.Scan(&strategy, &n); err != nil {
			return nil, err
		}
		counts[strategy] = n
	}
	return counts, rows.Err()
}

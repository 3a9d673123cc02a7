package incident

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/aegis-vision/aegis/internal/bus"
	"github.com/aegis-vision/aegis/internal/database"
)

// Publisher broadcasts recorded incidents; nil disables broadcasting
type Publisher interface {
	Publish(subject string, data interface{}) error
}

// Service manages the incident log
type Service struct {
	db        *database.DB
	publisher Publisher
	logger    *slog.Logger
}

// NewService creates a new incident service. publisher may be nil.
func NewService(db *database.DB, publisher Publisher) *Service {
	return &Service{
		db:        db,
		publisher: publisher,
		logger:    slog.Default().With("component", "incident_service"),
	}
}

// Record appends one incident row. Each call is a single atomic insert;
// concurrent appends are serialized by the database.
func (s *Service) Record(ctx context.Context, inc *Incident) error {
	if inc.ID == "" {
		inc.ID = uuid.New().String()
	}
	if inc.Timestamp.IsZero() {
		inc.Timestamp = time.Now()
	}
	if inc.CreatedAt.IsZero() {
		inc.CreatedAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO incidents (
			id, timestamp, category, label, confidence, x1, y1, x2, y2, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		inc.ID, inc.Timestamp.UnixMilli(), inc.Category, inc.Label, inc.Confidence,
		inc.Box[0], inc.Box[1], inc.Box[2], inc.Box[3], inc.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to record incident: %w", err)
	}

	if s.publisher != nil {
		if err := s.publisher.Publish(bus.SubjectIncidentCreated, inc); err != nil {
			s.logger.Warn("Failed to publish incident", "id", inc.ID, "error", err)
		}
	}

	s.logger.Info("Incident recorded",
		"id", inc.ID, "category", inc.Category, "label", inc.Label, "confidence", inc.Confidence)
	return nil
}

// List retrieves incidents with filters, newest first
func (s *Service) List(ctx context.Context, opts ListOptions) ([]*Incident, int, error) {
	query := `SELECT id, timestamp, category, label, confidence, x1, y1, x2, y2, created_at
	          FROM incidents WHERE 1=1`
	countQuery := `SELECT COUNT(*) FROM incidents WHERE 1=1`
	args := []interface{}{}

	if opts.Category != "" {
		query += " AND category = ?"
		countQuery += " AND category = ?"
		args = append(args, opts.Category)
	}

	if !opts.StartTime.IsZero() {
		query += " AND timestamp >= ?"
		countQuery += " AND timestamp >= ?"
		args = append(args, opts.StartTime.UnixMilli())
	}

	if !opts.EndTime.IsZero() {
		query += " AND timestamp <= ?"
		countQuery += " AND timestamp <= ?"
		args = append(args, opts.EndTime.UnixMilli())
	}

	countArgs := make([]interface{}, len(args))
	copy(countArgs, args)
	var totalCount int
	if err := s.db.QueryRowContext(ctx, countQuery, countArgs...).Scan(&totalCount); err != nil {
		return nil, 0, err
	}

	query += " ORDER BY timestamp DESC"

	limit := 50
	if opts.Limit > 0 && opts.Limit <= 1000 {
		limit = opts.Limit
	}
	query += " LIMIT ?"
	args = append(args, limit)

	if opts.Offset > 0 {
		query += " OFFSET ?"
		args = append(args, opts.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	incidents := []*Incident{}
	for rows.Next() {
		inc := &Incident{}
		var timestamp, createdAt int64

		if err := rows.Scan(
			&inc.ID, &timestamp, &inc.Category, &inc.Label, &inc.Confidence,
			&inc.Box[0], &inc.Box[1], &inc.Box[2], &inc.Box[3], &createdAt,
		); err != nil {
			return nil, 0, err
		}

		inc.Timestamp = time.UnixMilli(timestamp)
		inc.CreatedAt = time.Unix(createdAt, 0)
		incidents = append(incidents, inc)
	}

	return incidents, totalCount, rows.Err()
}

// GetStats returns incident counts
func (s *Service) GetStats(ctx context.Context) (*Stats, error) {
	stats := &Stats{ByCategory: make(map[Category]int)}

	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM incidents").Scan(&stats.Total); err != nil {
		return nil, err
	}

	now := time.Now()
	todayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	if err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM incidents WHERE timestamp >= ?", todayStart.UnixMilli(),
	).Scan(&stats.Today); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, "SELECT category, COUNT(*) FROM incidents GROUP BY category")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var category Category
		var count int
		if err := rows.Scan(&category, &count); err != nil {
			return nil, err
		}
		stats.ByCategory[category] = count
	}

	return stats, rows.Err()
}

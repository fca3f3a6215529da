package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"math"

	"github.com/google/uuid"

	audit "consent-ledger/pkg/platform/audit"
)

// Store implements audit.Store using PostgreSQL.
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

const eventColumns = `id, category, timestamp, actor, subject, action,
	study_id, consent_id, decision, reason, detail, request_id`

// Append inserts an audit event. Events carrying an ID already stored are
// ignored so redelivered messages stay idempotent.
func (s *Store) Append(ctx context.Context, event audit.Event) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	eventID, err := uuid.Parse(event.ID)
	if err != nil {
		return fmt.Errorf("parse audit event id: %w", err)
	}

	query := `INSERT INTO audit_events (` + eventColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO NOTHING`

	_, err = s.db.ExecContext(ctx, query,
		eventID,
		string(event.Category),
		event.Timestamp,
		event.Actor,
		event.Subject,
		event.Action,
		nullableID(event.StudyID),
		nullableID(event.ConsentID),
		event.Decision,
		event.Reason,
		event.Detail,
		event.RequestID,
	)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

// ListBySubject returns events about one address, newest first.
func (s *Store) ListBySubject(ctx context.Context, subject string) ([]audit.Event, error) {
	query := `SELECT ` + eventColumns + `
		FROM audit_events
		WHERE subject = $1
		ORDER BY timestamp DESC`

	rows, err := s.db.QueryContext(ctx, query, subject)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

// ListRecent returns the N most recent events.
func (s *Store) ListRecent(ctx context.Context, limit int) ([]audit.Event, error) {
	query := `SELECT ` + eventColumns + `
		FROM audit_events
		ORDER BY timestamp DESC
		LIMIT $1`

	rows, err := s.db.QueryContext(ctx, query, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

func clampLimit(limit int) int32 {
	switch {
	case limit <= 0:
		return 0
	case limit > math.MaxInt32:
		return math.MaxInt32
	default:
		return int32(limit) //nolint:gosec // bounded above
	}
}

func nullableID(v uint64) *int64 {
	if v == 0 || v > math.MaxInt64 {
		return nil
	}
	n := int64(v)
	return &n
}

func scanEvents(rows *sql.Rows) ([]audit.Event, error) {
	var events []audit.Event

	for rows.Next() {
		var (
			event     audit.Event
			eventID   uuid.UUID
			category  string
			studyID   sql.NullInt64
			consentID sql.NullInt64
		)
		err := rows.Scan(
			&eventID,
			&category,
			&event.Timestamp,
			&event.Actor,
			&event.Subject,
			&event.Action,
			&studyID,
			&consentID,
			&event.Decision,
			&event.Reason,
			&event.Detail,
			&event.RequestID,
		)
		if err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}

		event.ID = eventID.String()
		event.Category = audit.Category(category)
		if studyID.Valid {
			event.StudyID = uint64(studyID.Int64) //nolint:gosec // ids are positive
		}
		if consentID.Valid {
			event.ConsentID = uint64(consentID.Int64) //nolint:gosec // ids are positive
		}
		events = append(events, event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit events: %w", err)
	}
	return events, nil
}

package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/openclaw/link-broker-go/internal/model"
)

type LinkEventRepository interface {
	Create(ctx context.Context, params model.CreateLinkEventParams) error
	ListBySession(ctx context.Context, sessionID string, limit int) ([]model.LinkEvent, error)
	LatestBySession(ctx context.Context, sessionID string) (*model.LinkEvent, error)
	DeleteOlderThan(ctx context.Context, before time.Time) (int64, error)
}

type linkEventRepo struct {
	db *sqlx.DB
}

func NewLinkEventRepository(db *sqlx.DB) LinkEventRepository {
	return &linkEventRepo{db: db}
}

func (r *linkEventRepo) Create(ctx context.Context, params model.CreateLinkEventParams) error {
	var details *json.RawMessage
	if len(params.Details) > 0 {
		data, err := json.Marshal(params.Details)
		if err != nil {
			return fmt.Errorf("marshal details: %w", err)
		}
		raw := json.RawMessage(data)
		details = &raw
	}

	var connID *string
	if params.ConnID != "" {
		connID = &params.ConnID
	}

	createdAt := params.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO link_events (session_id, event_type, conn_id, details, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, params.SessionID, params.Type, connID, details, createdAt)
	return err
}

func (r *linkEventRepo) ListBySession(ctx context.Context, sessionID string, limit int) ([]model.LinkEvent, error) {
	if limit <= 0 {
		limit = 50
	}

	var events []model.LinkEvent
	err := r.db.SelectContext(ctx, &events, `
		SELECT * FROM link_events
		WHERE session_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, sessionID, limit)
	if err != nil {
		return nil, err
	}
	return events, nil
}

func (r *linkEventRepo) LatestBySession(ctx context.Context, sessionID string) (*model.LinkEvent, error) {
	var event model.LinkEvent
	err := r.db.GetContext(ctx, &event, `
		SELECT * FROM link_events
		WHERE session_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`, sessionID)
	return HandleNotFound(&event, err)
}

func (r *linkEventRepo) DeleteOlderThan(ctx context.Context, before time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		DELETE FROM link_events WHERE created_at < $1
	`, before)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

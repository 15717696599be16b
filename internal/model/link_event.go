package model

import (
	"encoding/json"
	"time"
)

type LinkEvent struct {
	ID        int64            `db:"id" json:"id"`
	SessionID string           `db:"session_id" json:"sessionId"`
	Type      LinkEventType    `db:"event_type" json:"type"`
	ConnID    *string          `db:"conn_id" json:"connId,omitempty"`
	Details   *json.RawMessage `db:"details" json:"details,omitempty"`
	CreatedAt time.Time        `db:"created_at" json:"createdAt"`
}

type CreateLinkEventParams struct {
	SessionID string
	Type      LinkEventType
	ConnID    string
	Details   map[string]any
	CreatedAt time.Time
}

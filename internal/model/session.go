package model

import "time"

// Session is one device-linking attempt held by the broker.
type Session struct {
	ID        string
	CreatedAt time.Time
	// Owner is the connection ID that receives events for this session;
	// empty when detached or restored at startup.
	Owner  string
	Linked bool
	Flow   LinkFlow
	// Handle identifies the in-flight backend attempt; empty until the
	// backend reports the attempt started.
	Handle string
	// Attempt tags backend events so that events from a released or
	// replaced attempt can be told apart.
	Attempt uint64
}

type CreateSessionParams struct {
	ID     string
	Owner  string
	Flow   LinkFlow
	Linked bool
}

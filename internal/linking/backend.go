// Package linking defines the capability the broker needs from an
// account-linking backend and ships a development implementation of it.
package linking

import (
	"context"
	"errors"
	"time"
)

// Handle identifies one in-flight or resumed linking attempt.
type Handle string

type EventKind int

const (
	// EventScanPayload carries a fresh payload to render as a scannable code.
	EventScanPayload EventKind = iota + 1
	// EventLinked reports that the identity is linked.
	EventLinked
	// EventUnlinked reports that the attempt ended or the link dropped.
	EventUnlinked
)

func (k EventKind) String() string {
	switch k {
	case EventScanPayload:
		return "scan_payload"
	case EventLinked:
		return "linked"
	case EventUnlinked:
		return "unlinked"
	default:
		return "unknown"
	}
}

type Event struct {
	Kind        EventKind
	ScanPayload string
	Reason      string
}

// Sink receives events for a single attempt, in the order the backend emits
// them. It may be called from any goroutine.
type Sink func(Event)

// Bundle describes a credential bundle the backend persisted for an identity.
type Bundle struct {
	Identity  string    `json:"identity"`
	Linked    bool      `json:"linked"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Backend is the external account-linking capability.
type Backend interface {
	// StartLinking begins or resumes linking for identity. Events for the
	// attempt are delivered to sink until the attempt is released or
	// reports EventUnlinked.
	StartLinking(ctx context.Context, identity string, sink Sink) (Handle, error)
	// Release stops an attempt. Releasing an unknown handle is not an error.
	Release(ctx context.Context, handle Handle) error
	// Persisted lists the credential bundles available for resumption.
	Persisted(ctx context.Context) ([]Bundle, error)
}

var ErrUnknownIdentity = errors.New("unknown identity")

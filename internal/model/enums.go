package model

// LinkFlow records how a session came into existence.
type LinkFlow string

const (
	LinkFlowQRCode   LinkFlow = "qrcode"
	LinkFlowPairing  LinkFlow = "pairing"
	LinkFlowRestored LinkFlow = "restored"
)

// LinkEventType names an entry in the audit trail.
type LinkEventType string

const (
	LinkEventCreated   LinkEventType = "session_created"
	LinkEventRestored  LinkEventType = "session_restored"
	LinkEventReplaced  LinkEventType = "session_replaced"
	LinkEventLinked    LinkEventType = "session_linked"
	LinkEventUnlinked  LinkEventType = "session_unlinked"
	LinkEventCancelled LinkEventType = "session_cancelled"
	LinkEventExpired   LinkEventType = "session_expired"
	LinkEventDetached  LinkEventType = "session_detached"
	LinkEventFailed    LinkEventType = "session_failed"
	LinkEventCodeIssue LinkEventType = "code_issued"
	LinkEventCodeUse   LinkEventType = "code_consumed"
)

package model

import "encoding/json"

// Inbound message types.
const (
	InboundRequest         = "request"
	InboundValidateSession = "validate_session"
	InboundCancel          = "cancel"
	InboundCompletePairing = "complete_pairing"
	InboundResume          = "resume"
)

// Request contents for InboundRequest.
const (
	RequestQRCode  = "qrcode"
	RequestPairing = "pairing"
)

// Outbound message types.
const (
	OutboundInfo              = "info"
	OutboundError             = "error"
	OutboundQRCode            = "qrcode"
	OutboundSession           = "session"
	OutboundPairing           = "pairing"
	OutboundSessionValidation = "session_validation"
	OutboundConnected         = "connected"
	OutboundDisconnected      = "disconnected"
)

type InboundMessage struct {
	Type        string          `json:"type"`
	Content     string          `json:"content,omitempty"`
	Data        json.RawMessage `json:"data,omitempty"`
	SessionID   string          `json:"sessionId,omitempty"`
	PairingCode string          `json:"pairingCode,omitempty"`
}

type PairingRequestData struct {
	PhoneNumber   string `json:"phoneNumber,omitempty"`
	CustomSession string `json:"customSession,omitempty"`
}

type OutboundMessage struct {
	Type    string `json:"type"`
	Message string `json:"message,omitempty"`
	Code    string `json:"code,omitempty"`
	Data    string `json:"data,omitempty"`
	Session string `json:"session,omitempty"`
	Valid   *bool  `json:"valid,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

func InfoMessage(message string) OutboundMessage {
	return OutboundMessage{Type: OutboundInfo, Message: message}
}

func ErrorMessage(code, message string) OutboundMessage {
	return OutboundMessage{Type: OutboundError, Code: code, Message: message}
}

func QRCodeMessage(session, image string) OutboundMessage {
	return OutboundMessage{Type: OutboundQRCode, Session: session, Data: image}
}

func SessionMessage(session string) OutboundMessage {
	return OutboundMessage{Type: OutboundSession, Session: session}
}

func PairingMessage(session, code string) OutboundMessage {
	return OutboundMessage{Type: OutboundPairing, Session: session, Data: code}
}

func SessionValidationMessage(session string, valid bool, reason string) OutboundMessage {
	return OutboundMessage{Type: OutboundSessionValidation, Session: session, Valid: &valid, Reason: reason}
}

func ConnectedMessage(session string) OutboundMessage {
	return OutboundMessage{Type: OutboundConnected, Session: session}
}

func DisconnectedMessage(session, reason string) OutboundMessage {
	return OutboundMessage{Type: OutboundDisconnected, Session: session, Reason: reason}
}

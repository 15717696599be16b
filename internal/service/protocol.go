package service

import (
	"encoding/json"
	"strings"

	"github.com/rs/zerolog/log"

	apperrors "github.com/openclaw/link-broker-go/internal/errors"
	"github.com/openclaw/link-broker-go/internal/metrics"
	"github.com/openclaw/link-broker-go/internal/model"
	"github.com/openclaw/link-broker-go/internal/util"
)

func (b *Broker) handleMessage(connID string, data []byte) {
	if _, ok := b.conns[connID]; !ok {
		log.Debug().Str("connId", connID).Msg("ignoring message from detached connection")
		return
	}

	var msg model.InboundMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		b.metrics.InboundMessages.WithLabelValues("malformed").Inc()
		b.reply(connID, apperrors.MalformedRequest("invalid JSON"))
		return
	}

	switch msg.Type {
	case model.InboundRequest, model.InboundValidateSession, model.InboundCancel,
		model.InboundCompletePairing, model.InboundResume:
		b.metrics.InboundMessages.WithLabelValues(msg.Type).Inc()
	default:
		b.metrics.InboundMessages.WithLabelValues("unknown").Inc()
	}

	var err error
	switch msg.Type {
	case model.InboundRequest:
		err = b.handleRequest(connID, msg)
	case model.InboundValidateSession:
		err = b.handleValidateSession(connID, msg)
	case model.InboundCancel:
		b.handleCancel(connID)
	case model.InboundCompletePairing:
		err = b.handleCompletePairing(connID, msg)
	case model.InboundResume:
		err = b.handleResume(connID, msg)
	case "":
		err = apperrors.MalformedRequest("missing type")
	default:
		err = apperrors.UnknownRequestType(msg.Type)
	}

	if err != nil {
		b.reply(connID, err)
	}
}

// reply reports a failed request to the connection that sent it.
func (b *Broker) reply(connID string, err error) {
	appErr, ok := apperrors.AsAppError(err)
	if !ok {
		log.Error().Err(err).Str("connId", connID).Msg("unexpected error handling message")
		appErr = apperrors.Internal("An unexpected error occurred")
	}
	b.send(connID, model.ErrorMessage(string(appErr.Code), appErr.Message))
}

func (b *Broker) handleRequest(connID string, msg model.InboundMessage) error {
	switch msg.Content {
	case model.RequestQRCode:
		return b.startQRCode(connID)
	case model.RequestPairing:
		return b.startPairing(connID, msg.Data)
	case "":
		return apperrors.MalformedRequest("missing content")
	default:
		return apperrors.UnknownRequestType(model.InboundRequest + ":" + msg.Content)
	}
}

func (b *Broker) startQRCode(connID string) error {
	session, replaced := b.sessions.Create(model.CreateSessionParams{
		Owner: connID,
		Flow:  model.LinkFlowQRCode,
	})
	b.afterCreate(session, replaced, "", model.LinkEventCreated)

	b.send(connID, model.SessionMessage(session.ID))
	b.startLinking(session.ID)

	log.Info().Str("sessionId", session.ID).Str("connId", connID).Msg("qr linking started")
	return nil
}

// startPairing allocates the code before touching the session store so that
// an allocation failure leaves no trace.
func (b *Broker) startPairing(connID string, raw json.RawMessage) error {
	var req model.PairingRequestData
	if len(raw) > 0 && string(raw) != "null" {
		if err := json.Unmarshal(raw, &req); err != nil {
			return apperrors.MalformedRequest("invalid pairing data")
		}
	}

	sessionID := strings.TrimSpace(req.CustomSession)
	if sessionID != "" && !util.IsValidSessionID(sessionID) {
		return apperrors.MalformedRequest("invalid customSession")
	}
	if sessionID == "" {
		sessionID = util.NewSessionID()
		for b.sessions.Exists(sessionID) {
			sessionID = util.NewSessionID()
		}
	}

	pairing, err := b.pairings.Issue(sessionID, util.NormalizePhone(req.PhoneNumber))
	if err != nil {
		log.Warn().Err(err).Str("connId", connID).Msg("pairing code allocation failed")
		return err
	}

	session, replaced := b.sessions.Create(model.CreateSessionParams{
		ID:    sessionID,
		Owner: connID,
		Flow:  model.LinkFlowPairing,
	})
	b.afterCreate(session, replaced, pairing.Code, model.LinkEventCreated)

	b.send(connID, model.PairingMessage(session.ID, pairing.Code))
	b.send(connID, model.SessionMessage(session.ID))
	b.record(session.ID, model.LinkEventCodeIssue, connID, map[string]any{"code": util.MaskCode(pairing.Code)})
	b.startLinking(session.ID)

	log.Info().
		Str("sessionId", session.ID).
		Str("connId", connID).
		Str("code", util.MaskCode(pairing.Code)).
		Bool("replaced", replaced != nil).
		Msg("pairing code issued")
	return nil
}

func (b *Broker) handleCompletePairing(connID string, msg model.InboundMessage) error {
	code := util.NormalizeCode(msg.PairingCode)
	if code == "" {
		return apperrors.MalformedRequest("missing pairingCode")
	}

	pairing := b.pairings.Consume(code)
	if pairing == nil {
		return apperrors.InvalidOrExpiredCode()
	}
	b.refreshGauges()

	session := b.sessions.Get(pairing.SessionID)
	if session == nil {
		log.Info().Str("sessionId", pairing.SessionID).Str("code", util.MaskCode(code)).Msg("pairing code resolved to a vanished session")
		return apperrors.SessionNotFound(pairing.SessionID)
	}

	b.record(session.ID, model.LinkEventCodeUse, connID, map[string]any{"code": util.MaskCode(code)})
	if b.sessions.MarkLinked(session.ID) {
		b.metrics.LinksCompleted.WithLabelValues(metrics.SourcePairing).Inc()
		b.record(session.ID, model.LinkEventLinked, session.Owner, map[string]any{"source": metrics.SourcePairing})
	}

	if session.Owner != "" {
		b.send(session.Owner, model.ConnectedMessage(session.ID))
	}
	if session.Owner != connID {
		reply := model.InfoMessage("Pairing completed")
		reply.Session = session.ID
		b.send(connID, reply)
	}

	log.Info().Str("sessionId", session.ID).Str("connId", connID).Msg("pairing completed")
	return nil
}

func (b *Broker) handleValidateSession(connID string, msg model.InboundMessage) error {
	if msg.SessionID == "" {
		return apperrors.MalformedRequest("missing sessionId")
	}

	if b.sessions.Exists(msg.SessionID) {
		b.send(connID, model.SessionValidationMessage(msg.SessionID, true, ""))
	} else {
		b.send(connID, model.SessionValidationMessage(msg.SessionID, false, "not_found"))
	}
	return nil
}

// handleCancel drops every session the connection owns. Cancel always
// removes, whatever the disconnect policy.
func (b *Broker) handleCancel(connID string) {
	removed := b.sessions.RemoveAllOwnedBy(connID)
	for _, session := range removed {
		b.pairings.RemoveBySession(session.ID)
		b.release(session.ID, session.Handle)
		b.record(session.ID, model.LinkEventCancelled, connID, nil)
	}
	b.refreshGauges()

	if len(removed) == 0 {
		b.send(connID, model.InfoMessage("Nothing to cancel"))
		return
	}

	b.send(connID, model.InfoMessage("Linking cancelled"))
	log.Info().Str("connId", connID).Int("sessions", len(removed)).Msg("linking cancelled")
}

// handleResume hands a detached or restored session to this connection,
// which is how a reloaded tab picks it up again. A session that another
// live connection owns cannot be taken over.
func (b *Broker) handleResume(connID string, msg model.InboundMessage) error {
	if msg.SessionID == "" {
		return apperrors.MalformedRequest("missing sessionId")
	}

	session := b.sessions.Get(msg.SessionID)
	if session == nil {
		return apperrors.SessionNotFound(msg.SessionID)
	}

	if session.Owner != "" && session.Owner != connID {
		log.Info().Str("sessionId", session.ID).Str("connId", connID).Msg("resume refused, session is owned")
		return apperrors.SessionInUse(session.ID)
	}
	b.sessions.SetOwner(session.ID, connID)

	b.send(connID, model.SessionMessage(session.ID))
	if session.Linked {
		b.send(connID, model.ConnectedMessage(session.ID))
	}

	log.Info().Str("sessionId", session.ID).Str("connId", connID).Msg("session resumed")
	return nil
}

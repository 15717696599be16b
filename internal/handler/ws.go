package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/openclaw/link-broker-go/internal/audit"
	"github.com/openclaw/link-broker-go/internal/config"
	apperrors "github.com/openclaw/link-broker-go/internal/errors"
	"github.com/openclaw/link-broker-go/internal/model"
	"github.com/openclaw/link-broker-go/internal/service"
	"github.com/openclaw/link-broker-go/internal/util"
)

var (
	errClientClosed   = errors.New("client closed")
	errSendBufferFull = errors.New("send buffer full")
)

// MessageBroker is the part of the broker the WebSocket transport drives.
type MessageBroker interface {
	Attach(ctx context.Context, conn service.Conn) error
	Detach(ctx context.Context, connID string) error
	HandleMessage(ctx context.Context, connID string, data []byte) error
}

type WSHandler struct {
	broker       MessageBroker
	limiter      service.Limiter
	pairingLimit int
	upgrader     websocket.Upgrader
}

// NewWSHandler creates the handler. limiter may be nil to disable the
// per-IP limit on complete_pairing.
func NewWSHandler(broker MessageBroker, limiter service.Limiter, pairingLimit int) *WSHandler {
	return &WSHandler{
		broker:       broker,
		limiter:      limiter,
		pairingLimit: pairingLimit,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// The UI is served from the same origin; pairing codes are the
			// only capability and they travel in the message body.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

func (h *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		log.Warn().Err(err).Str("ip", audit.ClientIP(r)).Msg("websocket upgrade failed")
		return
	}

	client := &wsClient{
		id:     util.NewConnID(),
		ip:     audit.ClientIP(r),
		remote: audit.RemoteIP(r),
		conn:   conn,
		send:   make(chan model.OutboundMessage, config.WSSendBuffer),
		done:   make(chan struct{}),
	}

	ctx := context.Background()
	if err := h.broker.Attach(ctx, client); err != nil {
		log.Error().Err(err).Str("connId", client.id).Msg("failed to attach connection")
		conn.Close()
		return
	}

	log.Info().Str("connId", client.id).Str("ip", client.ip).Msg("websocket connected")

	go client.writePump()
	h.readPump(ctx, client)
}

// readPump forwards client messages to the broker until the socket closes,
// then detaches the connection.
func (h *WSHandler) readPump(ctx context.Context, c *wsClient) {
	defer func() {
		if err := h.broker.Detach(ctx, c.id); err != nil {
			log.Warn().Err(err).Str("connId", c.id).Msg("failed to detach connection")
		}
		c.closeSend()
		log.Info().Str("connId", c.id).Msg("websocket disconnected")
	}()

	c.conn.SetReadLimit(config.WSMaxMessageBytes)
	c.conn.SetReadDeadline(time.Now().Add(config.WSPongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(config.WSPongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseNormalClosure,
				websocket.CloseAbnormalClosure) {
				log.Warn().Err(err).Str("connId", c.id).Msg("websocket read error")
			}
			return
		}

		if h.pairingLimited(ctx, c, data) {
			continue
		}

		if err := h.broker.HandleMessage(ctx, c.id, data); err != nil {
			log.Warn().Err(err).Str("connId", c.id).Msg("broker rejected message")
			return
		}
	}
}

// pairingLimited applies the per-IP limit to complete_pairing attempts and
// answers the client itself when the limit is hit.
func (h *WSHandler) pairingLimited(ctx context.Context, c *wsClient, data []byte) bool {
	if h.limiter == nil || h.pairingLimit <= 0 {
		return false
	}

	var peek struct {
		Type string `json:"type"`
	}
	if json.Unmarshal(data, &peek) != nil || peek.Type != model.InboundCompletePairing {
		return false
	}

	allowed, resetAt := h.limiter.CheckLimit(ctx, "pairing:"+c.remote, h.pairingLimit, time.Minute)
	if allowed {
		return false
	}

	log.Warn().Str("connId", c.id).Str("ip", c.remote).Time("resetAt", resetAt).Msg("pairing attempts rate limited")
	appErr := apperrors.RateLimitExceeded()
	_ = c.Send(model.ErrorMessage(string(appErr.Code), appErr.Message))
	return true
}

type wsClient struct {
	id     string
	ip     string // reported address, logs only
	remote string // keys rate limits
	conn   *websocket.Conn

	send     chan model.OutboundMessage
	done     chan struct{}
	sendOnce sync.Once
}

func (c *wsClient) ID() string {
	return c.id
}

// Send queues a message without blocking. A client that cannot keep up
// loses messages rather than stalling the broker.
func (c *wsClient) Send(msg model.OutboundMessage) error {
	select {
	case <-c.done:
		return errClientClosed
	default:
	}

	select {
	case c.send <- msg:
		return nil
	case <-c.done:
		return errClientClosed
	default:
		return errSendBufferFull
	}
}

// closeSend signals writePump to shut down exactly once.
func (c *wsClient) closeSend() {
	c.sendOnce.Do(func() {
		close(c.done)
	})
}

func (c *wsClient) writePump() {
	ticker := time.NewTicker(config.WSPingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(config.WSWriteWait))
			c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return

		case msg := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(config.WSWriteWait))
			if err := c.conn.WriteJSON(msg); err != nil {
				log.Debug().Err(err).Str("connId", c.id).Msg("websocket write failed")
				c.closeSend()
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(config.WSWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.closeSend()
				return
			}
		}
	}
}

package service

import (
	"context"
	"errors"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"

	"github.com/openclaw/link-broker-go/internal/config"
	apperrors "github.com/openclaw/link-broker-go/internal/errors"
	"github.com/openclaw/link-broker-go/internal/linking"
	"github.com/openclaw/link-broker-go/internal/metrics"
	"github.com/openclaw/link-broker-go/internal/model"
	"github.com/openclaw/link-broker-go/internal/repository"
	"github.com/openclaw/link-broker-go/internal/util"
)

var ErrBrokerStopped = errors.New("broker stopped")

// Conn is a client connection as seen by the broker. Send must not block.
type Conn interface {
	ID() string
	Send(msg model.OutboundMessage) error
}

// Auditor receives link lifecycle events.
type Auditor interface {
	Record(event model.CreateLinkEventParams)
}

type BrokerConfig struct {
	SessionTTL       time.Duration
	PairingTTL       time.Duration
	DisconnectPolicy config.DisconnectPolicy
	QueueSize        int
}

type BrokerDeps struct {
	Sessions *repository.SessionStore
	Pairings *repository.PairingStore
	Backend  linking.Backend
	// Renderer turns a scan payload into something the client can display.
	Renderer func(payload string) (string, error)
	Clock    clockwork.Clock
	Metrics  *metrics.Metrics
	Audit    Auditor
}

type SweepResult struct {
	Sessions int
	Pairings int
}

type Stats struct {
	Sessions    int `json:"sessions"`
	Pairings    int `json:"pairings"`
	Connections int `json:"connections"`
}

// Broker owns the session and pairing stores and the connection table. All
// of that state is touched only from the goroutine running Run; every other
// goroutine (client readers, backend callbacks, the sweeper) hands work to
// it through the action queue. Work that waits on the backend runs outside
// the loop and re-enters it with the result, so handlers re-fetch records by
// ID instead of trusting anything read before the wait.
type Broker struct {
	cfg      BrokerConfig
	sessions *repository.SessionStore
	pairings *repository.PairingStore
	backend  linking.Backend
	render   func(string) (string, error)
	clock    clockwork.Clock
	metrics  *metrics.Metrics
	audit    Auditor

	conns       map[string]Conn
	nextAttempt uint64
	runCtx      context.Context

	actions chan func()
	done    chan struct{}
}

func NewBroker(cfg BrokerConfig, deps BrokerDeps) *Broker {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = config.BrokerQueueSize
	}
	if cfg.DisconnectPolicy == "" {
		cfg.DisconnectPolicy = config.PolicyDetach
	}
	if deps.Clock == nil {
		deps.Clock = clockwork.NewRealClock()
	}
	if deps.Renderer == nil {
		deps.Renderer = linking.RenderQRCode
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.New(prometheus.NewRegistry())
	}
	if deps.Sessions == nil {
		deps.Sessions = repository.NewSessionStore(deps.Clock)
	}
	if deps.Pairings == nil {
		deps.Pairings = repository.NewPairingStore(deps.Clock, nil)
	}

	return &Broker{
		cfg:      cfg,
		sessions: deps.Sessions,
		pairings: deps.Pairings,
		backend:  deps.Backend,
		render:   deps.Renderer,
		clock:    deps.Clock,
		metrics:  deps.Metrics,
		audit:    deps.Audit,
		conns:    make(map[string]Conn),
		runCtx:   context.Background(),
		actions:  make(chan func(), cfg.QueueSize),
		done:     make(chan struct{}),
	}
}

// Run processes queued work until ctx is cancelled.
func (b *Broker) Run(ctx context.Context) {
	b.runCtx = ctx
	defer close(b.done)

	log.Info().
		Str("disconnectPolicy", string(b.cfg.DisconnectPolicy)).
		Dur("sessionTTL", b.cfg.SessionTTL).
		Dur("pairingTTL", b.cfg.PairingTTL).
		Msg("broker started")

	for {
		select {
		case <-ctx.Done():
			log.Info().
				Int("sessions", b.sessions.Len()).
				Int("connections", len(b.conns)).
				Msg("broker stopped")
			return
		case fn := <-b.actions:
			fn()
		}
	}
}

// Done is closed once Run has returned.
func (b *Broker) Done() <-chan struct{} {
	return b.done
}

func (b *Broker) post(ctx context.Context, fn func()) error {
	select {
	case b.actions <- fn:
		return nil
	case <-b.done:
		return ErrBrokerStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// call runs fn on the loop and waits for it to finish.
func (b *Broker) call(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	if err := b.post(ctx, func() {
		fn()
		close(finished)
	}); err != nil {
		return err
	}

	select {
	case <-finished:
		return nil
	case <-b.done:
		return ErrBrokerStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Attach registers a connection so it can own sessions and receive events.
func (b *Broker) Attach(ctx context.Context, conn Conn) error {
	return b.post(ctx, func() {
		b.conns[conn.ID()] = conn
		b.metrics.ConnectionsActive.Set(float64(len(b.conns)))
		log.Debug().Str("connId", conn.ID()).Int("connections", len(b.conns)).Msg("connection attached")
	})
}

// Detach forgets a closed connection and applies the disconnect policy to
// the sessions it owned.
func (b *Broker) Detach(ctx context.Context, connID string) error {
	return b.post(ctx, func() {
		b.onDisconnect(connID)
	})
}

// HandleMessage queues one raw client message. Messages from one connection
// are processed in the order they are queued.
func (b *Broker) HandleMessage(ctx context.Context, connID string, data []byte) error {
	return b.post(ctx, func() {
		b.handleMessage(connID, data)
	})
}

// Sweep removes expired sessions and pairing codes.
func (b *Broker) Sweep(ctx context.Context) (SweepResult, error) {
	var result SweepResult
	err := b.call(ctx, func() {
		result = b.sweep()
	})
	return result, err
}

func (b *Broker) Stats(ctx context.Context) (Stats, error) {
	var stats Stats
	err := b.call(ctx, func() {
		stats = Stats{
			Sessions:    b.sessions.Len(),
			Pairings:    b.pairings.Len(),
			Connections: len(b.conns),
		}
	})
	return stats, err
}

// Restore recreates a session for every credential bundle the backend has
// persisted and asks the backend to resume each of them. Resumed sessions
// keep the bundle identity as their ID and start without an owner.
func (b *Broker) Restore(ctx context.Context) (int, error) {
	bundles, err := b.backend.Persisted(ctx)
	if err != nil {
		return 0, err
	}

	restored := 0
	err = b.call(ctx, func() {
		for _, bundle := range bundles {
			if !util.IsValidSessionID(bundle.Identity) {
				log.Error().Str("identity", bundle.Identity).Msg("skipping bundle with unusable identity")
				continue
			}

			session, replaced := b.sessions.Create(model.CreateSessionParams{
				ID:     bundle.Identity,
				Flow:   model.LinkFlowRestored,
				Linked: bundle.Linked,
			})
			b.afterCreate(session, replaced, "", model.LinkEventRestored)
			b.startLinking(session.ID)
			restored++
		}
	})
	return restored, err
}

func (b *Broker) afterCreate(session, replaced *model.Session, keepCode string, event model.LinkEventType) {
	if replaced != nil {
		b.release(replaced.ID, replaced.Handle)
		b.pairings.RemoveStale(replaced.ID, keepCode)
		if replaced.Owner != "" && replaced.Owner != session.Owner {
			b.send(replaced.Owner, model.DisconnectedMessage(replaced.ID, "replaced"))
		}
		b.record(replaced.ID, model.LinkEventReplaced, replaced.Owner, nil)
	}

	b.record(session.ID, event, session.Owner, map[string]any{"flow": string(session.Flow)})
	b.refreshGauges()
}

// startLinking asks the backend for a new attempt without blocking the loop.
func (b *Broker) startLinking(sessionID string) {
	b.nextAttempt++
	attempt := b.nextAttempt
	b.sessions.SetAttempt(sessionID, attempt)

	sink := func(ev linking.Event) {
		_ = b.post(context.Background(), func() {
			b.onBackendEvent(sessionID, attempt, ev)
		})
	}

	ctx := b.runCtx
	go func() {
		handle, err := b.backend.StartLinking(ctx, sessionID, sink)
		_ = b.post(context.Background(), func() {
			b.onLinkStarted(sessionID, attempt, handle, err)
		})
	}()
}

func (b *Broker) onLinkStarted(sessionID string, attempt uint64, handle linking.Handle, err error) {
	session := b.sessions.Get(sessionID)
	current := session != nil && session.Attempt == attempt

	if err != nil {
		b.metrics.BackendFailures.Inc()
		log.Error().Err(err).Str("sessionId", sessionID).Uint64("attempt", attempt).Msg("linking attempt failed to start")
		if !current {
			return
		}

		b.sessions.Remove(sessionID)
		b.pairings.RemoveBySession(sessionID)
		if session.Owner != "" {
			appErr := apperrors.Backend(err)
			b.send(session.Owner, model.ErrorMessage(string(appErr.Code), appErr.Message))
		}
		b.record(sessionID, model.LinkEventFailed, session.Owner, map[string]any{"error": err.Error()})
		b.refreshGauges()
		return
	}

	if !current {
		log.Debug().Str("sessionId", sessionID).Uint64("attempt", attempt).Msg("releasing attempt for vanished session")
		b.release(sessionID, string(handle))
		return
	}

	b.sessions.SetHandle(sessionID, attempt, string(handle))
	log.Debug().Str("sessionId", sessionID).Str("handle", string(handle)).Msg("linking attempt started")
}

func (b *Broker) onBackendEvent(sessionID string, attempt uint64, ev linking.Event) {
	session := b.sessions.Get(sessionID)
	if session == nil || session.Attempt != attempt {
		log.Debug().
			Str("sessionId", sessionID).
			Uint64("attempt", attempt).
			Str("event", ev.Kind.String()).
			Msg("dropping event for stale attempt")
		return
	}

	switch ev.Kind {
	case linking.EventScanPayload:
		if session.Flow == model.LinkFlowPairing || session.Owner == "" {
			return
		}
		image, err := b.render(ev.ScanPayload)
		if err != nil {
			log.Warn().Err(err).Str("sessionId", sessionID).Msg("failed to render scan payload")
			return
		}
		b.send(session.Owner, model.QRCodeMessage(sessionID, image))

	case linking.EventLinked:
		if !b.sessions.MarkLinked(sessionID) {
			return
		}
		b.metrics.LinksCompleted.WithLabelValues(metrics.SourceBackend).Inc()
		b.record(sessionID, model.LinkEventLinked, session.Owner, map[string]any{"source": metrics.SourceBackend})
		if session.Owner != "" {
			b.send(session.Owner, model.ConnectedMessage(sessionID))
		}

	case linking.EventUnlinked:
		b.sessions.Remove(sessionID)
		b.pairings.RemoveBySession(sessionID)
		b.release(sessionID, session.Handle)
		b.record(sessionID, model.LinkEventUnlinked, session.Owner, map[string]any{"reason": ev.Reason})
		if session.Owner != "" {
			b.send(session.Owner, model.DisconnectedMessage(sessionID, ev.Reason))
		}
		b.refreshGauges()
	}
}

func (b *Broker) onDisconnect(connID string) {
	if _, ok := b.conns[connID]; !ok {
		return
	}
	delete(b.conns, connID)
	b.metrics.ConnectionsActive.Set(float64(len(b.conns)))

	switch b.cfg.DisconnectPolicy {
	case config.PolicyRemove:
		for _, session := range b.sessions.RemoveAllOwnedBy(connID) {
			b.pairings.RemoveBySession(session.ID)
			b.release(session.ID, session.Handle)
			b.record(session.ID, model.LinkEventCancelled, connID, map[string]any{"reason": "disconnect"})
		}
		b.refreshGauges()
	default:
		for _, id := range b.sessions.OwnedBy(connID) {
			b.sessions.SetOwner(id, "")
			b.record(id, model.LinkEventDetached, connID, nil)
		}
	}

	log.Debug().Str("connId", connID).Int("connections", len(b.conns)).Msg("connection detached")
}

func (b *Broker) sweep() SweepResult {
	now := b.clock.Now()

	sessions := b.sessions.SweepExpired(now, b.cfg.SessionTTL)
	for _, session := range sessions {
		b.release(session.ID, session.Handle)
		b.record(session.ID, model.LinkEventExpired, session.Owner, nil)
	}

	codes := b.pairings.SweepExpired(now, b.cfg.PairingTTL)

	b.metrics.SweptRecords.WithLabelValues(metrics.KindSession).Add(float64(len(sessions)))
	b.metrics.SweptRecords.WithLabelValues(metrics.KindPairing).Add(float64(len(codes)))
	b.refreshGauges()

	return SweepResult{Sessions: len(sessions), Pairings: len(codes)}
}

// release asks the backend to drop an attempt. Failures are logged only;
// the broker's own bookkeeping is already gone by the time this runs.
func (b *Broker) release(sessionID, handle string) {
	if handle == "" || b.backend == nil {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), config.BackendReleaseTimeout)
		defer cancel()

		if err := b.backend.Release(ctx, linking.Handle(handle)); err != nil {
			b.metrics.BackendFailures.Inc()
			log.Warn().Err(err).Str("sessionId", sessionID).Str("handle", handle).Msg("failed to release linking attempt")
		}
	}()
}

// send delivers to a connection if it is still attached.
func (b *Broker) send(connID string, msg model.OutboundMessage) {
	conn, ok := b.conns[connID]
	if !ok {
		log.Debug().Str("connId", connID).Str("type", msg.Type).Msg("dropping message for closed connection")
		return
	}
	if err := conn.Send(msg); err != nil {
		log.Warn().Err(err).Str("connId", connID).Str("type", msg.Type).Msg("failed to send message")
	}
}

func (b *Broker) record(sessionID string, event model.LinkEventType, connID string, details map[string]any) {
	if b.audit == nil {
		return
	}
	b.audit.Record(model.CreateLinkEventParams{
		SessionID: sessionID,
		Type:      event,
		ConnID:    connID,
		Details:   details,
		CreatedAt: b.clock.Now(),
	})
}

func (b *Broker) refreshGauges() {
	b.metrics.SessionsActive.Set(float64(b.sessions.Len()))
	b.metrics.PairingsActive.Set(float64(b.pairings.Len()))
}

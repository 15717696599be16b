package audit

import (
	"context"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/openclaw/link-broker-go/internal/model"
)

const writeTimeout = 5 * time.Second

// Writer persists audit rows. repository.LinkEventRepository satisfies it.
type Writer interface {
	Create(ctx context.Context, params model.CreateLinkEventParams) error
}

// Logger records link lifecycle events to the structured log and, when a
// Writer is configured, to durable storage through a buffered background
// writer. Record never blocks.
type Logger struct {
	writer Writer
	events chan model.CreateLinkEventParams
	done   chan struct{}
	wg     sync.WaitGroup
	once   sync.Once
}

func NewLogger(writer Writer, buffer int) *Logger {
	if buffer <= 0 {
		buffer = 1
	}
	return &Logger{
		writer: writer,
		events: make(chan model.CreateLinkEventParams, buffer),
		done:   make(chan struct{}),
	}
}

func (l *Logger) Start() {
	if l.writer == nil {
		return
	}
	l.wg.Add(1)
	go l.run()
	log.Info().Msg("audit writer started")
}

// Stop drains buffered events and waits for the writer to exit.
func (l *Logger) Stop() {
	l.once.Do(func() {
		close(l.done)
		l.wg.Wait()
		if l.writer != nil {
			log.Info().Msg("audit writer stopped")
		}
	})
}

func (l *Logger) Record(event model.CreateLinkEventParams) {
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	logger := log.With().
		Str("audit", "link").
		Str("event_type", string(event.Type)).
		Str("session_id", event.SessionID).
		Time("timestamp", event.CreatedAt).
		Logger()

	if event.ConnID != "" {
		logger = logger.With().Str("conn_id", event.ConnID).Logger()
	}

	logEvent := logger.Info()
	for k, v := range event.Details {
		logEvent = addField(logEvent, k, v)
	}
	logEvent.Msg("link audit event")

	if l.writer == nil {
		return
	}

	select {
	case l.events <- event:
	default:
		log.Warn().
			Str("event_type", string(event.Type)).
			Str("session_id", event.SessionID).
			Msg("audit buffer full, dropping event")
	}
}

func (l *Logger) run() {
	defer l.wg.Done()

	for {
		select {
		case event := <-l.events:
			l.write(event)
		case <-l.done:
			for {
				select {
				case event := <-l.events:
					l.write(event)
				default:
					return
				}
			}
		}
	}
}

func (l *Logger) write(event model.CreateLinkEventParams) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	if err := l.writer.Create(ctx, event); err != nil {
		log.Error().Err(err).
			Str("event_type", string(event.Type)).
			Str("session_id", event.SessionID).
			Msg("failed to persist audit event")
	}
}

func addField(e *zerolog.Event, key string, value any) *zerolog.Event {
	switch v := value.(type) {
	case string:
		return e.Str(key, v)
	case int:
		return e.Int(key, v)
	case int64:
		return e.Int64(key, v)
	case bool:
		return e.Bool(key, v)
	default:
		return e.Interface(key, v)
	}
}

// ClientIP returns the first forwarded address when present, otherwise the
// host part of the remote address. The headers are client controlled, so
// use it for logging only; rate limits key on RemoteIP.
func ClientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		return strings.TrimSpace(first)
	}
	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return realIP
	}
	return RemoteIP(r)
}

// RemoteIP is the host part of r.RemoteAddr. Behind a trusted proxy the
// RealIP middleware has already rewritten RemoteAddr.
func RemoteIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

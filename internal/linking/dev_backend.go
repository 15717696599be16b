package linking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/openclaw/link-broker-go/internal/util"
)

const (
	bundleExt            = ".bundle"
	defaultRefreshPeriod = 20 * time.Second
	attemptEventBuffer   = 16
)

type DevBackendConfig struct {
	// Dir holds one credential bundle file per identity.
	Dir string
	// RefreshInterval is how often an unlinked attempt rotates its payload.
	RefreshInterval time.Duration
	Clock           clockwork.Clock
	// Cipher, when set, encrypts bundles at rest.
	Cipher *util.Cipher
}

// DevBackend is an in-process stand-in for a real linking backend. It
// rotates scan payloads until told that the identity linked, and keeps
// credential bundles on disk so that links survive restarts.
type DevBackend struct {
	dir     string
	refresh time.Duration
	clock   clockwork.Clock
	cipher  *util.Cipher

	mu         sync.Mutex
	attempts   map[Handle]*devAttempt
	byIdentity map[string]Handle
}

type devAttempt struct {
	handle   Handle
	identity string
	token    string
	sink     Sink
	events   chan Event
	stop     chan struct{}
	stopOnce sync.Once
}

func (a *devAttempt) halt() {
	a.stopOnce.Do(func() { close(a.stop) })
}

func (a *devAttempt) deliver(ev Event) {
	select {
	case a.events <- ev:
	case <-a.stop:
	}
}

func NewDevBackend(cfg DevBackendConfig) (*DevBackend, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("credentials dir is required")
	}
	if err := os.MkdirAll(cfg.Dir, 0o700); err != nil {
		return nil, fmt.Errorf("create credentials dir: %w", err)
	}
	if cfg.RefreshInterval <= 0 {
		cfg.RefreshInterval = defaultRefreshPeriod
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}

	return &DevBackend{
		dir:        cfg.Dir,
		refresh:    cfg.RefreshInterval,
		clock:      cfg.Clock,
		cipher:     cfg.Cipher,
		attempts:   make(map[Handle]*devAttempt),
		byIdentity: make(map[string]Handle),
	}, nil
}

func (b *DevBackend) StartLinking(ctx context.Context, identity string, sink Sink) (Handle, error) {
	if !util.IsValidSessionID(identity) {
		return "", fmt.Errorf("invalid identity %q", identity)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	bundle, err := b.load(identity)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("load bundle: %w", err)
	}
	linked := bundle != nil && bundle.Linked

	token, err := util.GenerateToken()
	if err != nil {
		return "", fmt.Errorf("generate attempt token: %w", err)
	}

	a := &devAttempt{
		handle:   Handle("dev-" + token),
		identity: identity,
		token:    token,
		sink:     sink,
		events:   make(chan Event, attemptEventBuffer),
		stop:     make(chan struct{}),
	}

	b.mu.Lock()
	if prev, ok := b.attempts[b.byIdentity[identity]]; ok {
		delete(b.attempts, prev.handle)
		prev.halt()
	}
	b.attempts[a.handle] = a
	b.byIdentity[identity] = a.handle
	b.mu.Unlock()

	go b.run(a, linked)

	log.Debug().
		Str("identity", identity).
		Str("handle", string(a.handle)).
		Bool("resumed", linked).
		Msg("dev backend attempt started")

	return a.handle, nil
}

func (b *DevBackend) run(a *devAttempt, linked bool) {
	ticker := b.clock.NewTicker(b.refresh)
	defer ticker.Stop()

	if linked {
		a.sink(Event{Kind: EventLinked})
	} else {
		a.sink(Event{Kind: EventScanPayload, ScanPayload: b.payload(a)})
	}

	for {
		select {
		case <-a.stop:
			return
		case ev := <-a.events:
			a.sink(ev)
			switch ev.Kind {
			case EventLinked:
				linked = true
			case EventUnlinked:
				b.forget(a.handle)
				return
			}
		case <-ticker.Chan():
			if !linked {
				a.sink(Event{Kind: EventScanPayload, ScanPayload: b.payload(a)})
			}
		}
	}
}

func (b *DevBackend) payload(a *devAttempt) string {
	return fmt.Sprintf("devlink:%s:%s:%d", a.identity, a.token, b.clock.Now().Unix())
}

func (b *DevBackend) Release(ctx context.Context, handle Handle) error {
	a := b.forget(handle)
	if a != nil {
		a.halt()
		log.Debug().Str("handle", string(handle)).Msg("dev backend attempt released")
	}
	return nil
}

func (b *DevBackend) forget(handle Handle) *devAttempt {
	b.mu.Lock()
	defer b.mu.Unlock()

	a, ok := b.attempts[handle]
	if !ok {
		return nil
	}
	delete(b.attempts, handle)
	if b.byIdentity[a.identity] == handle {
		delete(b.byIdentity, a.identity)
	}
	return a
}

func (b *DevBackend) active(identity string) *devAttempt {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.attempts[b.byIdentity[identity]]
}

// Confirm simulates the user approving the link on their device: the bundle
// is persisted and the running attempt reports EventLinked.
func (b *DevBackend) Confirm(ctx context.Context, identity string) error {
	a := b.active(identity)
	if a == nil {
		return ErrUnknownIdentity
	}

	if err := b.save(Bundle{Identity: identity, Linked: true, UpdatedAt: b.clock.Now()}); err != nil {
		return err
	}

	a.deliver(Event{Kind: EventLinked})
	return nil
}

// Unlink simulates the device logging out: the bundle is deleted and the
// running attempt, if any, reports EventUnlinked.
func (b *DevBackend) Unlink(ctx context.Context, identity, reason string) error {
	if !util.IsValidSessionID(identity) {
		return ErrUnknownIdentity
	}

	err := os.Remove(b.path(identity))
	removed := err == nil
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove bundle: %w", err)
	}

	a := b.active(identity)
	if a == nil {
		if !removed {
			return ErrUnknownIdentity
		}
		return nil
	}

	if reason == "" {
		reason = "logged_out"
	}
	a.deliver(Event{Kind: EventUnlinked, Reason: reason})
	return nil
}

func (b *DevBackend) Persisted(ctx context.Context) ([]Bundle, error) {
	entries, err := os.ReadDir(b.dir)
	if err != nil {
		return nil, fmt.Errorf("read credentials dir: %w", err)
	}

	var bundles []Bundle
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), bundleExt) {
			continue
		}
		identity := strings.TrimSuffix(entry.Name(), bundleExt)

		bundle, err := b.load(identity)
		if err != nil {
			log.Error().Err(err).Str("identity", identity).Msg("failed to load credential bundle, skipping")
			continue
		}
		bundles = append(bundles, *bundle)
	}
	return bundles, nil
}

func (b *DevBackend) path(identity string) string {
	return filepath.Join(b.dir, identity+bundleExt)
}

func (b *DevBackend) load(identity string) (*Bundle, error) {
	data, err := os.ReadFile(b.path(identity))
	if err != nil {
		return nil, err
	}

	if b.cipher != nil {
		if data, err = b.cipher.Open(data); err != nil {
			return nil, fmt.Errorf("open bundle: %w", err)
		}
	}

	var bundle Bundle
	if err := json.Unmarshal(data, &bundle); err != nil {
		return nil, fmt.Errorf("decode bundle: %w", err)
	}
	if bundle.Identity != identity {
		return nil, fmt.Errorf("bundle identity %q does not match file name", bundle.Identity)
	}
	return &bundle, nil
}

func (b *DevBackend) save(bundle Bundle) error {
	data, err := json.Marshal(bundle)
	if err != nil {
		return fmt.Errorf("encode bundle: %w", err)
	}

	if b.cipher != nil {
		if data, err = b.cipher.Seal(data); err != nil {
			return fmt.Errorf("seal bundle: %w", err)
		}
	}

	tmp, err := os.CreateTemp(b.dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp bundle: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write bundle: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close bundle: %w", err)
	}

	if err := os.Rename(tmp.Name(), b.path(bundle.Identity)); err != nil {
		return fmt.Errorf("rename bundle: %w", err)
	}
	return nil
}

var _ Backend = (*DevBackend)(nil)

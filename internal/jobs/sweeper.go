package jobs

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/openclaw/link-broker-go/internal/service"
)

const sweepTimeout = 30 * time.Second

// Sweeper removes expired in-memory records.
type Sweeper interface {
	Sweep(ctx context.Context) (service.SweepResult, error)
}

// EventPruner deletes audit rows older than a cutoff.
type EventPruner interface {
	DeleteOlderThan(ctx context.Context, before time.Time) (int64, error)
}

// SweepJob drives the expiry sweep on a fixed interval. It never touches
// connections, only the records the sweeper owns.
type SweepJob struct {
	sweeper   Sweeper
	pruner    EventPruner
	retention time.Duration
	interval  time.Duration
	clock     clockwork.Clock
	done      chan struct{}
	stopped   chan struct{}
}

// NewSweepJob creates the job. pruner may be nil when no audit database is
// configured.
func NewSweepJob(
	sweeper Sweeper,
	pruner EventPruner,
	retention time.Duration,
	interval time.Duration,
	clock clockwork.Clock,
) *SweepJob {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &SweepJob{
		sweeper:   sweeper,
		pruner:    pruner,
		retention: retention,
		interval:  interval,
		clock:     clock,
		done:      make(chan struct{}),
		stopped:   make(chan struct{}),
	}
}

func (j *SweepJob) Start() {
	go j.run()
	log.Info().Dur("interval", j.interval).Msg("sweep job started")
}

// Stop ends the loop and waits for an in-flight sweep to finish.
func (j *SweepJob) Stop() {
	close(j.done)
	<-j.stopped
	log.Info().Msg("sweep job stopped")
}

func (j *SweepJob) run() {
	defer close(j.stopped)

	ticker := j.clock.NewTicker(j.interval)
	defer ticker.Stop()

	j.sweep()

	for {
		select {
		case <-j.done:
			return
		case <-ticker.Chan():
			j.sweep()
		}
	}
}

func (j *SweepJob) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
	defer cancel()

	result, err := j.sweeper.Sweep(ctx)
	if err != nil {
		log.Error().Err(err).Msg("failed to sweep expired records")
	} else if result.Sessions > 0 || result.Pairings > 0 {
		log.Info().
			Int("sessions", result.Sessions).
			Int("pairings", result.Pairings).
			Msg("swept expired records")
	}

	if j.pruner != nil && j.retention > 0 {
		cutoff := j.clock.Now().Add(-j.retention)
		j.runCleanup(ctx, "link events", func(ctx context.Context) (int64, error) {
			return j.pruner.DeleteOlderThan(ctx, cutoff)
		})
	}
}

func (j *SweepJob) runCleanup(ctx context.Context, name string, fn func(context.Context) (int64, error)) {
	count, err := fn(ctx)
	if err != nil {
		log.Error().Err(err).Msgf("failed to cleanup %s", name)
	} else if count > 0 {
		log.Info().Int64("count", count).Msgf("cleaned up %s", name)
	}
}

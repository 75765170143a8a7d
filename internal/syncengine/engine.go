// Package syncengine drains the pending-operation log against the remote
// API. A drain takes an ordered snapshot of the log and replays each
// operation through the repository registered for its entity type. Within
// one entity id's causal chain operations replay strictly in append order;
// a failure blocks only the rest of that chain, independent chains keep
// draining, so one broken operation does not stall unrelated entities.
//
// Retries are bounded. Past the bound — or immediately on a non-retryable
// rejection — the operation is flagged permanently failed and left in the
// log for manual resolution; it is never silently dropped, and it keeps
// blocking its chain across drains until retried or discarded. The engine
// never lets an error escape its boundary: every drain ends in a Summary.
package syncengine

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/lmarques/go-backoffice-sync/internal/connectivity"
	"github.com/lmarques/go-backoffice-sync/internal/domain"
	"github.com/lmarques/go-backoffice-sync/internal/remote"
	"github.com/lmarques/go-backoffice-sync/internal/store"
)

// DefaultMaxRetries is the retry bound applied when Options leaves it zero.
const DefaultMaxRetries = 5

// Replayer applies one pending operation remotely. Implemented by
// repository.Repository for each registered entity type.
type Replayer interface {
	// Resource returns the entity collection the replayer serves.
	Resource() string
	// Replay applies op against the remote API and reconciles the local
	// cache. The engine owns retry accounting and log removal.
	Replay(ctx context.Context, op domain.PendingOperation) error
}

// Summary is the observable outcome of one drain pass.
type Summary struct {
	// Replayed is the number of operations confirmed by the server and
	// removed from the log.
	Replayed int `json:"replayed"`
	// Retried is the number of retryable failures whose counter was bumped.
	Retried int `json:"retried"`
	// Failed is the number of operations flagged permanently failed in
	// this pass (non-retryable rejection or retry bound exceeded).
	Failed int `json:"failed"`
	// Skipped is the number of operations not attempted because an earlier
	// operation in the same causal chain failed.
	Skipped int `json:"skipped"`
	// Remaining is the replayable backlog left after the pass.
	Remaining int64 `json:"remaining"`
	// Duration is the wall time of the pass.
	Duration time.Duration `json:"duration"`
}

// Options tunes the engine.
type Options struct {
	// MaxRetries bounds replay attempts per operation; 0 means
	// DefaultMaxRetries.
	MaxRetries int
	// ReplayRPS paces replay calls against the remote API; 0 disables
	// pacing.
	ReplayRPS float64
	// ReplayBurst is the pacing burst size; only used with ReplayRPS.
	ReplayBurst int
}

// Engine owns the drain loop.
type Engine struct {
	oplog      *store.OpLog
	oracle     connectivity.Oracle
	replayers  map[string]Replayer
	maxRetries int
	limiter    *rate.Limiter
	logger     zerolog.Logger

	// drainMu serializes drain passes: edge-triggered, periodic, and
	// manual triggers may race, but only one pass runs at a time.
	drainMu sync.Mutex
}

// New builds an engine over the given log and oracle. Register must be
// called for every entity type that appends to the log.
func New(oplog *store.OpLog, oracle connectivity.Oracle, opts Options) *Engine {
	maxRetries := opts.MaxRetries
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	var limiter *rate.Limiter
	if opts.ReplayRPS > 0 {
		burst := opts.ReplayBurst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.ReplayRPS), burst)
	}
	return &Engine{
		oplog:      oplog,
		oracle:     oracle,
		replayers:  make(map[string]Replayer),
		maxRetries: maxRetries,
		limiter:    limiter,
		logger:     log.With().Str("component", "syncengine").Logger(),
	}
}

// Register adds the replayer for one entity type.
func (e *Engine) Register(rep Replayer) {
	e.replayers[rep.Resource()] = rep
}

// Run drains on every offline→online edge, and additionally on a periodic
// interval while a backlog exists, until ctx is canceled. edges may be nil
// when only periodic/manual draining is wanted.
func (e *Engine) Run(ctx context.Context, edges <-chan struct{}, interval time.Duration) {
	var tick <-chan time.Time
	if interval > 0 {
		t := time.NewTicker(interval)
		defer t.Stop()
		tick = t.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-edges:
			e.Drain(ctx)
		case <-tick:
			if n, err := e.oplog.CountPending(ctx); err == nil && n > 0 {
				e.Drain(ctx)
			}
		}
	}
}

// Drain replays the pending-operation log once and reports what happened.
// Safe to call from any goroutine; concurrent calls serialize.
func (e *Engine) Drain(ctx context.Context) (sum Summary) {
	e.drainMu.Lock()
	defer e.drainMu.Unlock()

	start := time.Now()
	defer func() {
		sum.Duration = time.Since(start)
		drainDuration.Observe(sum.Duration.Seconds())
		e.updateGauges(ctx, &sum)
		e.logger.Info().
			Int("replayed", sum.Replayed).
			Int("retried", sum.Retried).
			Int("failed", sum.Failed).
			Int("skipped", sum.Skipped).
			Int64("remaining", sum.Remaining).
			Dur("duration", sum.Duration).
			Msg("drain finished")
	}()

	if !e.oracle.IsOnline() {
		e.logger.Debug().Msg("drain requested while offline, nothing to do")
		return sum
	}

	snapshot, err := e.oplog.All(ctx)
	if err != nil {
		e.logger.Error().Err(err).Msg("reading pending-operation log failed")
		return sum
	}

	// Chains blocked by a failure: either one that happened in this pass,
	// or a permanently failed entry carried over from an earlier one. Key
	// is entity/entityId, read fresh so reconciliation renames are honored.
	blocked := make(map[string]bool)

	for _, stale := range snapshot {
		// Re-read: a CREATE reconciliation earlier in this pass may have
		// rewritten this operation's entity id and payload.
		op, err := e.oplog.Get(ctx, stale.ID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				continue
			}
			e.logger.Error().Err(err).Uint("op", stale.ID).Msg("reloading pending operation failed")
			continue
		}

		chain := op.Entity + "/" + op.EntityID
		if op.Failed {
			// A permanently failed entry blocks everything queued behind
			// it: replaying a dependent op out of order (e.g. an UPDATE
			// whose CREATE never reconciled) would fail or corrupt state.
			blocked[chain] = true
			continue
		}
		if blocked[chain] {
			sum.Skipped++
			continue
		}

		if e.limiter != nil {
			if err := e.limiter.Wait(ctx); err != nil {
				return sum
			}
		}

		rep, ok := e.replayers[op.Entity]
		if !ok {
			// Wiring bug: an entity appended to the log without a
			// registered replayer. Park the operation for inspection.
			e.logger.Error().Str("entity", op.Entity).Uint("op", op.ID).Msg("no replayer registered")
			e.failOp(ctx, op, "no replayer registered for entity", &sum)
			blocked[chain] = true
			continue
		}

		err = rep.Replay(ctx, op)
		switch {
		case err == nil:
			if err := e.oplog.Remove(ctx, op.ID); err != nil {
				e.logger.Error().Err(err).Uint("op", op.ID).Msg("removing replayed operation failed")
			}
			sum.Replayed++
			replayTotal.WithLabelValues(op.Entity, string(op.Type), "replayed").Inc()

		case nonRetryable(err):
			// Validation and replay-conflict rejections retry forever into
			// the same wall; flag immediately, without touching the retry
			// counter, and surface for manual resolution.
			e.logger.Warn().Err(err).Uint("op", op.ID).Str("entity", op.Entity).
				Str("entity_id", op.EntityID).Msg("replay rejected, flagging for manual resolution")
			e.failOp(ctx, op, err.Error(), &sum)
			blocked[chain] = true

		default:
			retries, rerr := e.oplog.IncrementRetries(ctx, op.ID, err.Error())
			if rerr != nil {
				e.logger.Error().Err(rerr).Uint("op", op.ID).Msg("recording retry failed")
			}
			if retries >= e.maxRetries {
				e.logger.Warn().Err(err).Uint("op", op.ID).Int("retries", retries).
					Msg("retry bound exceeded, flagging for manual resolution")
				e.failOp(ctx, op, err.Error(), &sum)
			} else {
				sum.Retried++
				replayTotal.WithLabelValues(op.Entity, string(op.Type), "retried").Inc()
			}
			blocked[chain] = true

			// A transport failure with the oracle back to offline means
			// the link dropped mid-drain; every further attempt would burn
			// a retry for nothing.
			if errors.Is(err, remote.ErrUnavailable) && !e.oracle.IsOnline() {
				e.logger.Info().Msg("connectivity lost mid-drain, stopping pass")
				return sum
			}
		}
	}

	return sum
}

func (e *Engine) failOp(ctx context.Context, op domain.PendingOperation, reason string, sum *Summary) {
	if err := e.oplog.MarkFailed(ctx, op.ID, reason); err != nil {
		e.logger.Error().Err(err).Uint("op", op.ID).Msg("flagging failed operation failed")
	}
	sum.Failed++
	replayTotal.WithLabelValues(op.Entity, string(op.Type), "failed").Inc()
}

func (e *Engine) updateGauges(ctx context.Context, sum *Summary) {
	if n, err := e.oplog.CountPending(ctx); err == nil {
		sum.Remaining = n
		pendingOps.Set(float64(n))
	}
	if n, err := e.oplog.CountFailed(ctx); err == nil {
		failedOps.Set(float64(n))
	}
}

// nonRetryable classifies replay failures. Validation rejections (4xx) and
// replay conflicts (entity changed or vanished server-side; tolerable
// conflicts were already converted to success by the replayer) will fail
// identically on every retry.
func nonRetryable(err error) bool {
	var validation *remote.ValidationError
	if errors.As(err, &validation) {
		return true
	}
	var conflict *remote.ConflictError
	if errors.As(err, &conflict) {
		return true
	}
	return errors.Is(err, remote.ErrNotFound)
}

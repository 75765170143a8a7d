// Package repository implements the entity repository façade: the one
// surface UI-facing callers use per entity type. Every operation attempts
// the remote API first when the connectivity oracle reports online, and
// falls back to the durable local cache plus the pending-operation log
// when offline or when the remote call fails.
//
// The contract is "never block the user on connectivity": connectivity
// failures are absorbed into the offline path, only data-integrity
// failures (ErrNotFound, remote validation rejections on direct calls)
// propagate. Responses have the same shape whether they were served online
// or from the cache.
package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/lmarques/go-backoffice-sync/internal/connectivity"
	"github.com/lmarques/go-backoffice-sync/internal/domain"
	"github.com/lmarques/go-backoffice-sync/internal/remote"
	"github.com/lmarques/go-backoffice-sync/internal/store"
)

// DefaultPageSize is the page size used when listing, matching the remote
// API's default.
const DefaultPageSize = 10

// RemoteAPI is the remote collaborator contract the repository calls. It is
// satisfied by *remote.Resource[T]; tests substitute fakes.
type RemoteAPI[T domain.Entity[T]] interface {
	List(ctx context.Context, page, limit int, term string, isActive *bool) (domain.Page[T], error)
	Get(ctx context.Context, id string) (T, error)
	Create(ctx context.Context, payload map[string]any, idemKey string) (T, error)
	Update(ctx context.Context, id string, payload map[string]any) (T, error)
	Delete(ctx context.Context, id string) error
	BulkDelete(ctx context.Context, ids []string) error
}

// Repository is the generic per-entity-type façade over the remote API,
// the local cache, and the pending-operation log.
type Repository[T domain.Entity[T]] struct {
	resource string
	remote   RemoteAPI[T]
	cache    *store.Entities[T]
	oplog    *store.OpLog
	oracle   connectivity.Oracle
	locks    *keyedMutex
	now      func() time.Time
	pageSize int
	logger   zerolog.Logger
}

// New wires a repository for entity type T.
func New[T domain.Entity[T]](api RemoteAPI[T], cache *store.Entities[T], oplog *store.OpLog, oracle connectivity.Oracle) *Repository[T] {
	var zero T
	resource := zero.Resource()
	return &Repository[T]{
		resource: resource,
		remote:   api,
		cache:    cache,
		oplog:    oplog,
		oracle:   oracle,
		locks:    newKeyedMutex(),
		now:      time.Now,
		pageSize: DefaultPageSize,
		logger:   log.With().Str("component", "repository").Str("entity", resource).Logger(),
	}
}

// Resource returns the entity collection name this repository serves.
func (r *Repository[T]) Resource() string { return r.resource }

// List returns one page of entities. Online, the server response is
// returned verbatim after warming the cache; on any remote failure (or
// when offline) the page is computed from the cache with the same filter,
// sort, and envelope, so callers cannot tell the paths apart.
func (r *Repository[T]) List(ctx context.Context, page int, term string, isActive *bool) (domain.Page[T], error) {
	if page < 1 {
		page = 1
	}

	if r.oracle.IsOnline() {
		resp, err := r.remote.List(ctx, page, r.pageSize, term, isActive)
		if err == nil {
			if err := r.cache.BulkUpsert(ctx, resp.Data); err != nil {
				r.logger.Warn().Err(err).Msg("cache warm failed")
			}
			return resp, nil
		}
		r.logger.Debug().Err(err).Msg("online list failed, serving cache")
	}

	items, total, err := r.cache.Scan(ctx, term, isActive, page, r.pageSize)
	if err != nil {
		return domain.Page[T]{}, err
	}
	return domain.Page[T]{
		Data:       items,
		Total:      total,
		Page:       page,
		Limit:      r.pageSize,
		TotalPages: totalPages(total, r.pageSize),
	}, nil
}

// Get returns one entity by id. Online hits refresh the cache; any online
// failure falls through to the cached copy. ErrNotFound when the id was
// never cached and the server could not confirm it either.
func (r *Repository[T]) Get(ctx context.Context, id string) (T, error) {
	if r.oracle.IsOnline() && !domain.IsTempID(id) {
		rec, err := r.remote.Get(ctx, id)
		if err == nil {
			if err := r.cache.Upsert(ctx, rec); err != nil {
				r.logger.Warn().Err(err).Str("id", id).Msg("cache refresh failed")
			}
			return rec, nil
		}
		r.logger.Debug().Err(err).Str("id", id).Msg("online get failed, serving cache")
	}

	rec, err := r.cache.Get(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		var zero T
		return zero, fmt.Errorf("%w: %s %q", ErrNotFound, r.resource, id)
	}
	return rec, err
}

// Create persists a new entity. Online, the authoritative server record is
// cached and returned. Offline (or when the online attempt fails on
// connectivity), a full local record is synthesized under a temporary id,
// a CREATE operation carrying the original payload is queued, and the
// synthesized record is returned so the caller proceeds optimistically.
//
// Validation rejections on the direct online call are data-integrity
// failures and propagate instead of being queued: replaying a payload the
// server already rejected would fail forever.
func (r *Repository[T]) Create(ctx context.Context, payload map[string]any) (T, error) {
	var zero T

	if r.oracle.IsOnline() {
		rec, err := r.remote.Create(ctx, payload, "")
		if err == nil {
			if err := r.cache.Upsert(ctx, rec); err != nil {
				r.logger.Warn().Err(err).Msg("cache write failed after create")
			}
			return rec, nil
		}
		if !isConnectivity(err) {
			return zero, err
		}
		r.logger.Debug().Err(err).Msg("online create failed, queuing offline")
	}

	tempID := domain.NewTempID()
	unlock := r.locks.lock(tempID)
	defer unlock()

	rec, err := domain.FromPayload[T](payload)
	if err != nil {
		return zero, err
	}
	rec = rec.WithID(tempID).Stamped(r.now())

	if err := r.cache.Upsert(ctx, rec); err != nil {
		return zero, err
	}
	if err := r.appendOp(ctx, domain.OpCreate, tempID, payload); err != nil {
		return zero, err
	}
	return rec, nil
}

// Update merges a partial payload into an existing entity. Offline, the
// target id must already exist in the cache: you cannot update what was
// never cached or created. Entities still under a temporary id skip the
// online attempt — the server does not know the id yet.
func (r *Repository[T]) Update(ctx context.Context, id string, payload map[string]any) (T, error) {
	var zero T

	unlock := r.locks.lock(id)
	defer unlock()

	if r.oracle.IsOnline() && !domain.IsTempID(id) {
		rec, err := r.remote.Update(ctx, id, payload)
		if err == nil {
			if err := r.cache.Upsert(ctx, rec); err != nil {
				r.logger.Warn().Err(err).Str("id", id).Msg("cache write failed after update")
			}
			return rec, nil
		}
		if errors.Is(err, remote.ErrNotFound) {
			return zero, fmt.Errorf("%w: %s %q", ErrNotFound, r.resource, id)
		}
		if !isConnectivity(err) {
			return zero, err
		}
		r.logger.Debug().Err(err).Str("id", id).Msg("online update failed, queuing offline")
	}

	existing, err := r.cache.Get(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return zero, fmt.Errorf("%w: %s %q", ErrNotFound, r.resource, id)
	}
	if err != nil {
		return zero, err
	}

	merged, err := domain.ApplyPayload(existing, payload)
	if err != nil {
		return zero, err
	}
	merged = merged.Stamped(r.now())

	if err := r.cache.Upsert(ctx, merged); err != nil {
		return zero, err
	}
	if err := r.appendOp(ctx, domain.OpUpdate, id, payload); err != nil {
		return zero, err
	}
	return merged, nil
}

// Delete removes an entity. The local row is removed immediately
// (optimistic); offline, a DELETE operation is queued for replay. A server
// answer of "already gone" counts as success.
func (r *Repository[T]) Delete(ctx context.Context, id string) error {
	unlock := r.locks.lock(id)
	defer unlock()
	return r.deleteLocked(ctx, id)
}

// BulkDelete removes several entities, preferring the server's bulk
// endpoint online and degrading to one queued DELETE per id offline.
func (r *Repository[T]) BulkDelete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	temps := false
	for _, id := range ids {
		if domain.IsTempID(id) {
			temps = true
			break
		}
	}

	if r.oracle.IsOnline() && !temps {
		err := r.remote.BulkDelete(ctx, ids)
		if err == nil {
			for _, id := range ids {
				if err := r.cache.Delete(ctx, id); err != nil {
					r.logger.Warn().Err(err).Str("id", id).Msg("cache delete failed after bulk delete")
				}
			}
			return nil
		}
		if !isConnectivity(err) {
			return err
		}
		r.logger.Debug().Err(err).Msg("online bulk delete failed, queuing offline")
	}

	for _, id := range ids {
		unlock := r.locks.lock(id)
		err := r.deleteLocked(ctx, id)
		unlock()
		if err != nil {
			return err
		}
	}
	return nil
}

// deleteLocked is the single-id delete body; the caller holds the id lock.
func (r *Repository[T]) deleteLocked(ctx context.Context, id string) error {
	if r.oracle.IsOnline() && !domain.IsTempID(id) {
		err := r.remote.Delete(ctx, id)
		if err == nil || errors.Is(err, remote.ErrNotFound) {
			return r.cache.Delete(ctx, id)
		}
		if !isConnectivity(err) {
			return err
		}
		r.logger.Debug().Err(err).Str("id", id).Msg("online delete failed, queuing offline")
	}

	if err := r.cache.Delete(ctx, id); err != nil {
		return err
	}
	return r.appendOp(ctx, domain.OpDelete, id, nil)
}

// Replay applies one pending operation against the remote API. Called by
// the sync engine, in causal-chain order, while online. The caller owns
// retry accounting and log removal; Replay owns cache reconciliation.
func (r *Repository[T]) Replay(ctx context.Context, op domain.PendingOperation) error {
	unlock := r.locks.lock(op.EntityID)
	defer unlock()

	switch op.Type {
	case domain.OpCreate:
		return r.replayCreate(ctx, op)
	case domain.OpUpdate:
		return r.replayUpdate(ctx, op)
	case domain.OpDelete:
		return r.replayDelete(ctx, op)
	default:
		return fmt.Errorf("unknown operation type %q", op.Type)
	}
}

// replayCreate sends the original payload with a stable idempotency key.
// On success the temp id is reconciled to the server id: local row key
// migration and log rewrite happen in one transaction. A conflict carrying
// the existing record means a previous timed-out attempt actually landed;
// it is treated as success-with-reconciliation.
func (r *Repository[T]) replayCreate(ctx context.Context, op domain.PendingOperation) error {
	payload, err := op.Payload()
	if err != nil {
		return err
	}

	serverRec, err := r.remote.Create(ctx, payload, replayIdempotencyKey(op))
	if err != nil {
		var conflict *remote.ConflictError
		if errors.As(err, &conflict) && len(conflict.Record) > 0 {
			var existing T
			if jsonErr := json.Unmarshal(conflict.Record, &existing); jsonErr == nil && existing.GetID() != "" {
				r.logger.Info().Str("temp_id", op.EntityID).Str("server_id", existing.GetID()).
					Msg("create already applied server-side, reconciling")
				serverRec = existing
				err = nil
			}
		}
		if err != nil {
			return err
		}
	}

	return r.cache.Reconcile(ctx, op.EntityID, serverRec)
}

// replayUpdate re-sends the partial payload against the current entity id
// (already rewritten if a CREATE in the same drain pass reconciled it).
func (r *Repository[T]) replayUpdate(ctx context.Context, op domain.PendingOperation) error {
	payload, err := op.Payload()
	if err != nil {
		return err
	}
	rec, err := r.remote.Update(ctx, op.EntityID, payload)
	if err != nil {
		return err
	}
	if err := r.cache.Upsert(ctx, rec); err != nil {
		r.logger.Warn().Err(err).Str("id", op.EntityID).Msg("cache write failed after replayed update")
	}
	return nil
}

// replayDelete re-sends the delete. "Already deleted server-side" — a 404
// or a conflict — counts as success: the row is gone either way. On any
// success the local row is removed too; an earlier replayed UPDATE (or a
// CREATE reconciliation) in the same chain may have re-inserted it, and a
// record the server deleted must not linger in the cache.
func (r *Repository[T]) replayDelete(ctx context.Context, op domain.PendingOperation) error {
	err := r.remote.Delete(ctx, op.EntityID)
	var conflict *remote.ConflictError
	if err == nil || errors.Is(err, remote.ErrNotFound) || errors.As(err, &conflict) {
		return r.cache.Delete(ctx, op.EntityID)
	}
	return err
}

func (r *Repository[T]) appendOp(ctx context.Context, t domain.OperationType, entityID string, payload map[string]any) error {
	op, err := domain.NewPendingOperation(t, r.resource, entityID, payload)
	if err != nil {
		return err
	}
	return r.oplog.Append(ctx, &op)
}

// replayIdempotencyKey derives a key that is stable across retries of the
// same pending operation but unique across operations.
func replayIdempotencyKey(op domain.PendingOperation) string {
	seed := fmt.Sprintf("%s/%s/%d", op.Entity, op.EntityID, op.Timestamp)
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(seed)).String()
}

// isConnectivity reports whether err is a transport-level failure that the
// offline path recovers from, as opposed to a data-integrity rejection.
func isConnectivity(err error) bool {
	return errors.Is(err, remote.ErrUnavailable)
}

func totalPages(total int64, pageSize int) int {
	if total == 0 {
		return 0
	}
	return int((total + int64(pageSize) - 1) / int64(pageSize))
}

// Package store – the pending-operation log.
//
// OpLog is the durable append-only queue of mutations awaiting remote
// replay. Entries are totally ordered by creation timestamp (ID breaks
// ties), which also orders every per-entity causal chain. Entries leave
// the log only on confirmed successful replay or by explicit manual
// resolution; a permanently failed entry is flagged, never dropped.
package store

import (
	"context"
	"strings"

	"gorm.io/gorm"

	"github.com/lmarques/go-backoffice-sync/internal/domain"
)

// OpLog provides access to the pending_operations table.
type OpLog struct {
	db *gorm.DB
}

// NewOpLog returns the pending-operation log accessor.
func NewOpLog(db *gorm.DB) *OpLog {
	return &OpLog{db: db}
}

// Append durably records a mutation for later replay. It is a local-only
// write and never rejects a well-formed operation.
func (l *OpLog) Append(ctx context.Context, op *domain.PendingOperation) error {
	return l.db.WithContext(ctx).Create(op).Error
}

// All returns every entry in the log, pending and permanently failed
// alike, in append order. The drain iterates this: failed entries are not
// replayed but must still block the rest of their causal chain. Also used
// by the manual-resolution surface.
func (l *OpLog) All(ctx context.Context) ([]domain.PendingOperation, error) {
	var ops []domain.PendingOperation
	err := l.db.WithContext(ctx).
		Order("timestamp asc, id asc").
		Find(&ops).Error
	return ops, err
}

// Get fetches one entry by id, or ErrNotFound.
func (l *OpLog) Get(ctx context.Context, id uint) (domain.PendingOperation, error) {
	var op domain.PendingOperation
	err := l.db.WithContext(ctx).First(&op, "id = ?", id).Error
	return op, err
}

// Remove deletes an entry from the log. Called only after confirmed
// successful remote replay, or on explicit manual discard.
func (l *OpLog) Remove(ctx context.Context, id uint) error {
	return l.db.WithContext(ctx).Delete(&domain.PendingOperation{}, "id = ?", id).Error
}

// IncrementRetries bumps the retry counter after a failed replay attempt
// and records the failure reason. It returns the new counter value; bump
// and read-back run in one transaction.
func (l *OpLog) IncrementRetries(ctx context.Context, id uint, lastErr string) (int, error) {
	var retries int
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Model(&domain.PendingOperation{}).
			Where("id = ?", id).
			Updates(map[string]any{
				"retries":    gorm.Expr("retries + 1"),
				"last_error": truncateErr(lastErr),
			}).Error
		if err != nil {
			return err
		}
		var op domain.PendingOperation
		if err := tx.First(&op, "id = ?", id).Error; err != nil {
			return err
		}
		retries = op.Retries
		return nil
	})
	return retries, err
}

// MarkFailed flags an entry as permanently failed. It stays in the log,
// visible for manual inspection, and is skipped by subsequent drains.
func (l *OpLog) MarkFailed(ctx context.Context, id uint, reason string) error {
	return l.db.WithContext(ctx).
		Model(&domain.PendingOperation{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"failed":     true,
			"last_error": truncateErr(reason),
		}).Error
}

// ResetFailed clears the permanently-failed flag and retry counter so the
// next drain attempts the operation again. Manual-resolution "retry".
func (l *OpLog) ResetFailed(ctx context.Context, id uint) error {
	res := l.db.WithContext(ctx).
		Model(&domain.PendingOperation{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"failed":     false,
			"retries":    0,
			"last_error": "",
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// RewriteEntityID rewrites every log entry for the given entity type that
// references oldID — as its entity id or embedded in its payload — to
// newID. Exposed for callers outside a reconciliation transaction; the
// sync path goes through Entities.Reconcile, which runs the same rewrite
// inside the key-migration transaction.
func (l *OpLog) RewriteEntityID(ctx context.Context, entity, oldID, newID string) error {
	return rewriteEntityID(l.db.WithContext(ctx), entity, oldID, newID)
}

// CountPending returns the number of replayable (not failed) entries.
func (l *OpLog) CountPending(ctx context.Context) (int64, error) {
	var n int64
	err := l.db.WithContext(ctx).
		Model(&domain.PendingOperation{}).
		Where("failed = ?", false).
		Count(&n).Error
	return n, err
}

// CountFailed returns the number of permanently failed entries awaiting
// manual resolution.
func (l *OpLog) CountFailed(ctx context.Context) (int64, error) {
	var n int64
	err := l.db.WithContext(ctx).
		Model(&domain.PendingOperation{}).
		Where("failed = ?", true).
		Count(&n).Error
	return n, err
}

// rewriteEntityID performs the temp→server id rewrite on whatever handle it
// is given, so it can run standalone or inside a reconciliation transaction.
// Payload references are rewritten textually: temp ids are long random-free
// tokens that cannot collide with legitimate payload content.
func rewriteEntityID(tx *gorm.DB, entity, oldID, newID string) error {
	var ops []domain.PendingOperation
	err := tx.
		Where("entity = ? AND (entity_id = ? OR data LIKE ?)", entity, oldID, "%"+oldID+"%").
		Find(&ops).Error
	if err != nil {
		return err
	}
	for _, op := range ops {
		updates := map[string]any{}
		if op.EntityID == oldID {
			updates["entity_id"] = newID
		}
		if strings.Contains(op.Data, oldID) {
			updates["data"] = strings.ReplaceAll(op.Data, oldID, newID)
		}
		if len(updates) == 0 {
			continue
		}
		if err := tx.Model(&domain.PendingOperation{}).Where("id = ?", op.ID).Updates(updates).Error; err != nil {
			return err
		}
	}
	return nil
}

// truncateErr caps stored failure reasons; errors from HTTP bodies can be
// arbitrarily large.
func truncateErr(s string) string {
	const max = 2048
	if len(s) <= max {
		return s
	}
	return s[:max]
}

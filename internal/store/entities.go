// Package store – generic entity tables.
//
// Entities[T] provides the per-entity-type table of the local cache:
// get-by-id, idempotent upsert (last write wins per id), hard delete, and
// a full-table scan that reproduces the server's filter and sort so the
// offline list is behaviorally consistent with the online one.
//
// Error semantics:
//   - When a record is not found, Get returns gorm.ErrRecordNotFound
//     (also exported here as ErrNotFound for convenience).
//   - On DB errors the raw gorm error is propagated.
package store

import (
	"context"
	"sort"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/lmarques/go-backoffice-sync/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist locally.
// It aliases gorm.ErrRecordNotFound for consistency across layers.
var ErrNotFound = gorm.ErrRecordNotFound

// Entities is the local cache table for one entity type. All methods are
// context-aware and safe for concurrent use; per-id serialization is the
// caller's concern (see repository locking).
type Entities[T domain.Entity[T]] struct {
	db *gorm.DB
}

// NewEntities returns the cache table accessor for entity type T.
func NewEntities[T domain.Entity[T]](db *gorm.DB) *Entities[T] {
	return &Entities[T]{db: db}
}

// Get fetches a single record by id, or ErrNotFound if it was never cached.
func (e *Entities[T]) Get(ctx context.Context, id string) (T, error) {
	var rec T
	err := e.db.WithContext(ctx).First(&rec, "id = ?", id).Error
	if err != nil {
		var zero T
		return zero, err
	}
	return rec, nil
}

// Upsert inserts or fully replaces the record with the same id. The write
// is idempotent: upserting the same record twice leaves the table unchanged.
func (e *Entities[T]) Upsert(ctx context.Context, rec T) error {
	return e.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&rec).Error
}

// BulkUpsert upserts a batch of records in one atomic statement. Used for
// cache warming after a successful online list.
func (e *Entities[T]) BulkUpsert(ctx context.Context, recs []T) error {
	if len(recs) == 0 {
		return nil
	}
	return e.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&recs).Error
}

// Delete hard-deletes the record from the local cache. Deleting an absent
// id is not an error. Note the divergence from the server's soft delete:
// local rows are removed outright, deleted_at is only ever mirrored from
// server responses.
func (e *Entities[T]) Delete(ctx context.Context, id string) error {
	var rec T
	return e.db.WithContext(ctx).Where("id = ?", id).Delete(&rec).Error
}

// Scan lists cached records with the same filter fields the server applies
// (code/name/email/phone substring match, active-status equality) and the
// same sort (most-recent-created first). Filtering happens client-side over
// a full-table read; the cache is a working set, not a warehouse.
//
// page is 1-based; the return values are the page slice and the total
// number of records matching the filter.
func (e *Entities[T]) Scan(ctx context.Context, term string, isActive *bool, page, pageSize int) ([]T, int64, error) {
	var all []T
	if err := e.db.WithContext(ctx).Find(&all).Error; err != nil {
		return nil, 0, err
	}

	folded := Fold(strings.TrimSpace(term))
	matched := make([]T, 0, len(all))
	for _, rec := range all {
		if isActive != nil && rec.Active() != *isActive {
			continue
		}
		if folded != "" && !strings.Contains(Fold(rec.SearchText()), folded) {
			continue
		}
		matched = append(matched, rec)
	}

	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].CreatedTime().After(matched[j].CreatedTime())
	})

	total := int64(len(matched))
	start := (page - 1) * pageSize
	if start >= len(matched) {
		return []T{}, total, nil
	}
	end := start + pageSize
	if end > len(matched) {
		end = len(matched)
	}
	return matched[start:end], total, nil
}

// Reconcile migrates a record created offline from its temporary id to the
// server-assigned one: the authoritative server record is inserted, the
// temp row removed, and every still-pending log entry referencing the temp
// id rewritten — all inside one transaction, so there is no window where
// entity references are inconsistent.
func (e *Entities[T]) Reconcile(ctx context.Context, tempID string, serverRec T) error {
	return e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var old T
		if err := tx.Where("id = ?", tempID).Delete(&old).Error; err != nil {
			return err
		}
		if err := tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&serverRec).Error; err != nil {
			return err
		}
		return rewriteEntityID(tx, serverRec.Resource(), tempID, serverRec.GetID())
	})
}

// Package domain – pending-operation rows.
//
// A PendingOperation records one mutation performed while the application
// was offline (or while the remote call failed) so that it can be replayed
// against the remote API exactly once when connectivity returns. Rows are
// append-only until successfully replayed or permanently failed.
package domain

import (
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"
)

// OperationType enumerates the replayable mutation kinds.
type OperationType string

const (
	// OpCreate is a create performed against a temporary id.
	OpCreate OperationType = "create"
	// OpUpdate is a partial update of an existing (possibly temp) id.
	OpUpdate OperationType = "update"
	// OpDelete is a delete of an existing (possibly temp) id.
	OpDelete OperationType = "delete"
)

// PendingOperation is one queued mutation awaiting remote replay.
//
// Invariants:
//   - Ordering between operations on the same EntityID is append order
//     (Timestamp is strictly increasing; ID is the tiebreaker).
//   - For a create performed offline, EntityID is a temporary id; every
//     later operation on the same logical entity references that temp id
//     until reconciliation rewrites it to the server id.
//   - Failed marks an operation as permanently failed; it stays in the
//     log for manual resolution and is skipped by subsequent drains.
type PendingOperation struct {
	ID        uint          `json:"id"         gorm:"primaryKey;autoIncrement"`
	Type      OperationType `json:"type"       gorm:"type:varchar(16);not null"`
	Entity    string        `json:"entity"     gorm:"type:varchar(64);not null;index:idx_pending_chain,priority:1"`
	EntityID  string        `json:"entity_id"  gorm:"type:varchar(64);not null;index:idx_pending_chain,priority:2"`
	Data      string        `json:"data"       gorm:"type:text"`
	Timestamp int64         `json:"timestamp"  gorm:"not null;index"`
	Retries   int           `json:"retries"    gorm:"not null;default:0"`
	Failed    bool          `json:"failed"     gorm:"not null;default:false"`
	LastError string        `json:"last_error,omitempty" gorm:"type:text"`
}

// TableName returns the database table name for PendingOperation.
func (PendingOperation) TableName() string { return "pending_operations" }

// Payload decodes the operation's JSON data into a partial entity payload.
// Delete operations carry no payload and decode to an empty map.
func (op PendingOperation) Payload() (map[string]any, error) {
	if op.Data == "" {
		return map[string]any{}, nil
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(op.Data), &m); err != nil {
		return nil, fmt.Errorf("decode pending operation %d: %w", op.ID, err)
	}
	return m, nil
}

// NewPendingOperation builds an unsaved log entry for the given mutation.
// The payload is the original user-submitted data (not the synthesized
// local record): replay must send exactly what the user submitted.
func NewPendingOperation(t OperationType, entity, entityID string, payload map[string]any) (PendingOperation, error) {
	op := PendingOperation{
		Type:      t,
		Entity:    entity,
		EntityID:  entityID,
		Timestamp: monotonicNow(),
	}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return op, fmt.Errorf("encode pending operation payload: %w", err)
		}
		op.Data = string(raw)
	}
	return op, nil
}

// lastStamp backs the monotonic clock shared by operation timestamps and
// temporary ids. Wall-clock nanos can repeat under coarse timers; the CAS
// loop guarantees strictly increasing values within the process.
var lastStamp atomic.Int64

func monotonicNow() int64 {
	for {
		now := time.Now().UnixNano()
		last := lastStamp.Load()
		if now <= last {
			now = last + 1
		}
		if lastStamp.CompareAndSwap(last, now) {
			return now
		}
	}
}

// NewTempID generates a temporary identifier for an entity created while
// offline. Temp ids are strictly increasing within the process and are
// never reused; reconciliation rewrites them to server ids on replay.
func NewTempID() string {
	return fmt.Sprintf("temp_%d", monotonicNow())
}

// IsTempID reports whether id is a locally generated temporary identifier.
func IsTempID(id string) bool {
	return len(id) > 5 && id[:5] == "temp_"
}

package store

import (
	"context"
	"errors"
	"testing"

	"gorm.io/gorm"

	"github.com/lmarques/go-backoffice-sync/internal/domain"
)

func appendOp(t *testing.T, l *OpLog, typ domain.OperationType, entity, entityID string, payload map[string]any) domain.PendingOperation {
	t.Helper()
	op, err := domain.NewPendingOperation(typ, entity, entityID, payload)
	if err != nil {
		t.Fatalf("NewPendingOperation: %v", err)
	}
	if err := l.Append(context.Background(), &op); err != nil {
		t.Fatalf("Append: %v", err)
	}
	return op
}

func TestOpLogAllAppendOrder(t *testing.T) {
	ctx := context.Background()
	oplog := NewOpLog(testDB(t))

	first := appendOp(t, oplog, domain.OpCreate, "clients", "temp_1", map[string]any{"name": "Ana"})
	second := appendOp(t, oplog, domain.OpUpdate, "clients", "temp_1", map[string]any{"email": "a@b.c"})
	third := appendOp(t, oplog, domain.OpDelete, "providers", "p-1", nil)

	ops, err := oplog.All(ctx)
	if err != nil {
		t.Fatalf("All: %v", err)
	}
	if len(ops) != 3 {
		t.Fatalf("got %d operations, want 3", len(ops))
	}
	for i, want := range []uint{first.ID, second.ID, third.ID} {
		if ops[i].ID != want {
			t.Fatalf("position %d: got op %d, want %d", i, ops[i].ID, want)
		}
	}
}

func TestOpLogFailedFlagAndCounts(t *testing.T) {
	ctx := context.Background()
	oplog := NewOpLog(testDB(t))

	bad := appendOp(t, oplog, domain.OpCreate, "clients", "temp_1", nil)
	appendOp(t, oplog, domain.OpCreate, "clients", "temp_2", nil)

	if err := oplog.MarkFailed(ctx, bad.ID, "validation rejected"); err != nil {
		t.Fatalf("MarkFailed: %v", err)
	}

	all, err := oplog.All(ctx)
	if err != nil {
		t.Fatalf("All: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("All should include failed entries, got %d", len(all))
	}
	if !all[0].Failed || all[0].LastError != "validation rejected" {
		t.Fatalf("failed flag/reason not persisted: %+v", all[0])
	}

	pending, err := oplog.CountPending(ctx)
	if err != nil {
		t.Fatalf("CountPending: %v", err)
	}
	failed, err := oplog.CountFailed(ctx)
	if err != nil {
		t.Fatalf("CountFailed: %v", err)
	}
	if pending != 1 || failed != 1 {
		t.Fatalf("counts mismatch: pending=%d failed=%d", pending, failed)
	}
}

func TestOpLogIncrementRetries(t *testing.T) {
	ctx := context.Background()
	oplog := NewOpLog(testDB(t))

	op := appendOp(t, oplog, domain.OpUpdate, "clients", "c-1", map[string]any{"name": "x"})

	n, err := oplog.IncrementRetries(ctx, op.ID, "timeout")
	if err != nil {
		t.Fatalf("IncrementRetries: %v", err)
	}
	if n != 1 {
		t.Fatalf("first increment = %d, want 1", n)
	}
	n, err = oplog.IncrementRetries(ctx, op.ID, "timeout again")
	if err != nil {
		t.Fatalf("IncrementRetries: %v", err)
	}
	if n != 2 {
		t.Fatalf("second increment = %d, want 2", n)
	}

	got, err := oplog.Get(ctx, op.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.LastError != "timeout again" {
		t.Fatalf("last error not updated: %q", got.LastError)
	}
}

func TestOpLogResetFailed(t *testing.T) {
	ctx := context.Background()
	oplog := NewOpLog(testDB(t))

	op := appendOp(t, oplog, domain.OpCreate, "clients", "temp_1", nil)
	if _, err := oplog.IncrementRetries(ctx, op.ID, "boom"); err != nil {
		t.Fatalf("IncrementRetries: %v", err)
	}
	if err := oplog.MarkFailed(ctx, op.ID, "gave up"); err != nil {
		t.Fatalf("MarkFailed: %v", err)
	}

	if err := oplog.ResetFailed(ctx, op.ID); err != nil {
		t.Fatalf("ResetFailed: %v", err)
	}
	got, err := oplog.Get(ctx, op.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Failed || got.Retries != 0 || got.LastError != "" {
		t.Fatalf("reset did not clear state: %+v", got)
	}

	if err := oplog.ResetFailed(ctx, 9999); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Fatalf("ResetFailed(missing) = %v, want ErrRecordNotFound", err)
	}
}

func TestOpLogRemove(t *testing.T) {
	ctx := context.Background()
	oplog := NewOpLog(testDB(t))

	op := appendOp(t, oplog, domain.OpDelete, "clients", "c-1", nil)
	if err := oplog.Remove(ctx, op.ID); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, err := oplog.Get(ctx, op.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("removed operation still readable: %v", err)
	}
}

func TestOpLogRewriteEntityID(t *testing.T) {
	ctx := context.Background()
	oplog := NewOpLog(testDB(t))

	tempID := domain.NewTempID()
	direct := appendOp(t, oplog, domain.OpUpdate, "clients", tempID, map[string]any{"email": "a@b.c"})
	embedded := appendOp(t, oplog, domain.OpUpdate, "clients", "c-2", map[string]any{"parent_id": tempID})
	foreign := appendOp(t, oplog, domain.OpUpdate, "providers", tempID, nil)

	if err := oplog.RewriteEntityID(ctx, "clients", tempID, "c-900"); err != nil {
		t.Fatalf("RewriteEntityID: %v", err)
	}

	got, _ := oplog.Get(ctx, direct.ID)
	if got.EntityID != "c-900" {
		t.Fatalf("entity id not rewritten: %q", got.EntityID)
	}

	got, _ = oplog.Get(ctx, embedded.ID)
	payload, err := got.Payload()
	if err != nil {
		t.Fatalf("Payload: %v", err)
	}
	if payload["parent_id"] != "c-900" {
		t.Fatalf("payload reference not rewritten: %+v", payload)
	}

	got, _ = oplog.Get(ctx, foreign.ID)
	if got.EntityID != tempID {
		t.Fatalf("other entity type was rewritten: %q", got.EntityID)
	}
}

func TestTruncateErr(t *testing.T) {
	long := make([]byte, 5000)
	for i := range long {
		long[i] = 'x'
	}
	if got := truncateErr(string(long)); len(got) != 2048 {
		t.Fatalf("truncateErr length = %d, want 2048", len(got))
	}
	if got := truncateErr("short"); got != "short" {
		t.Fatalf("short reason mangled: %q", got)
	}
}

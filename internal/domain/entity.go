// Package domain – generic entity contract and payload helpers.
//
// Entity is the self-referential generic constraint every mirrored entity
// type (Client, Provider, ...) satisfies. The store, remote client, and
// repository layers are parameterized over it, so wiring a new entity type
// into the offline data layer means implementing this interface and
// registering the repository — nothing in the sync machinery changes.
package domain

import (
	"encoding/json"
	"time"
)

// Entity is the contract between a mirrored entity type and the generic
// data layer. Methods are value receivers returning copies, so records can
// be treated as immutable snapshots by the repository.
type Entity[T any] interface {
	// Resource returns the REST collection name, e.g. "clients".
	Resource() string
	// GetID returns the record id (server-assigned or temporary).
	GetID() string
	// WithID returns a copy with the given id.
	WithID(id string) T
	// CreatedTime returns the creation timestamp.
	CreatedTime() time.Time
	// Stamped returns a copy with refreshed audit timestamps.
	Stamped(now time.Time) T
	// SearchText returns the text the offline search filter matches.
	SearchText() string
	// Active reports the is_active status flag.
	Active() bool
}

// Page is the paginated list envelope returned by List whether the data
// came from the remote API or from the local cache. The shape is identical
// in both cases so callers cannot distinguish the two paths structurally.
type Page[T any] struct {
	Data       []T   `json:"data"`
	Total      int64 `json:"total"`
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	TotalPages int   `json:"totalPages"`
}

// reservedPayloadKeys are stripped from incoming payloads before merging:
// identifiers and audit timestamps are owned by the data layer, never by
// user-submitted payloads.
var reservedPayloadKeys = []string{"id", "created_at", "updated_at", "deleted_at"}

// FromPayload builds a new record of type T from a partial entity payload.
// Unknown keys are ignored; reserved keys (id, timestamps) are dropped.
// Records default to active unless the payload says otherwise, matching the
// server-side default for newly created entities.
func FromPayload[T Entity[T]](payload map[string]any) (T, error) {
	if _, ok := payload["is_active"]; !ok {
		withDefault := make(map[string]any, len(payload)+1)
		for k, v := range payload {
			withDefault[k] = v
		}
		withDefault["is_active"] = true
		payload = withDefault
	}
	var zero T
	return ApplyPayload(zero, payload)
}

// ApplyPayload merges a partial entity payload into an existing record and
// returns the merged copy. Merging goes through JSON so the payload keys
// line up with the wire names the remote API uses.
func ApplyPayload[T Entity[T]](rec T, payload map[string]any) (T, error) {
	var zero T

	base, err := json.Marshal(rec)
	if err != nil {
		return zero, err
	}
	merged := map[string]any{}
	if err := json.Unmarshal(base, &merged); err != nil {
		return zero, err
	}
	for k, v := range payload {
		merged[k] = v
	}
	for _, k := range reservedPayloadKeys {
		delete(merged, k)
	}

	raw, err := json.Marshal(merged)
	if err != nil {
		return zero, err
	}
	out := rec
	if err := json.Unmarshal(raw, &out); err != nil {
		return zero, err
	}
	// The id is not part of the payload; keep the record's own.
	return out.WithID(rec.GetID()), nil
}

// Package remote implements the REST client for the back-office API, one
// generic resource client per entity type. It is a thin transport: request
// framing, auth header, and error mapping — no caching and no fallback
// logic, which belong to the repository layer.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/lmarques/go-backoffice-sync/internal/domain"
)

// HeaderIdempotencyKey is sent on replayed creates so a timed-out write
// that actually landed server-side resolves as a conflict carrying the
// existing record instead of a duplicate.
const HeaderIdempotencyKey = "Idempotency-Key"

// Config holds the settings shared by all resource clients.
type Config struct {
	// BaseURL is the API root, e.g. "https://erp.example.com/api".
	BaseURL string
	// Token, when set, is sent as a bearer Authorization header.
	Token string
	// Timeout bounds each request; zero means 15s.
	Timeout time.Duration
	// HTTPClient overrides the transport, mainly for tests.
	HTTPClient *http.Client
}

// Resource is the REST client for one entity collection, e.g. /clients.
type Resource[T domain.Entity[T]] struct {
	base     string
	resource string
	token    string
	hc       *http.Client
}

// NewResource returns the client for entity type T, deriving the collection
// path from the entity's Resource name.
func NewResource[T domain.Entity[T]](cfg Config) *Resource[T] {
	hc := cfg.HTTPClient
	if hc == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = 15 * time.Second
		}
		hc = &http.Client{Timeout: timeout}
	}
	var zero T
	return &Resource[T]{
		base:     trimSlash(cfg.BaseURL),
		resource: zero.Resource(),
		token:    cfg.Token,
		hc:       hc,
	}
}

// listEnvelope is the wire shape of the server's paginated list response.
type listEnvelope[T any] struct {
	Data []T `json:"data"`
	Meta struct {
		Total      int64 `json:"total"`
		Page       int   `json:"page"`
		Limit      int   `json:"limit"`
		TotalPages int   `json:"totalPages"`
	} `json:"meta"`
}

// List fetches one page of the collection with server-side search and
// status filtering.
func (r *Resource[T]) List(ctx context.Context, page, limit int, term string, isActive *bool) (domain.Page[T], error) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("limit", strconv.Itoa(limit))
	if term != "" {
		q.Set("term", term)
	}
	if isActive != nil {
		q.Set("is_active", strconv.FormatBool(*isActive))
	}

	var env listEnvelope[T]
	err := r.do(ctx, http.MethodGet, r.collectionURL()+"?"+q.Encode(), nil, "", &env)
	if err != nil {
		return domain.Page[T]{}, err
	}
	if env.Data == nil {
		env.Data = []T{}
	}
	return domain.Page[T]{
		Data:       env.Data,
		Total:      env.Meta.Total,
		Page:       env.Meta.Page,
		Limit:      env.Meta.Limit,
		TotalPages: env.Meta.TotalPages,
	}, nil
}

// Get fetches a single record by server id.
func (r *Resource[T]) Get(ctx context.Context, id string) (T, error) {
	var rec T
	err := r.do(ctx, http.MethodGet, r.itemURL(id), nil, "", &rec)
	return rec, err
}

// Create submits a new record and returns the authoritative server copy
// (server-assigned id and timestamps). idemKey, when non-empty, is sent as
// the Idempotency-Key header; the sync engine derives it from the pending
// operation so replays of the same create are deduplicated server-side.
func (r *Resource[T]) Create(ctx context.Context, payload map[string]any, idemKey string) (T, error) {
	var rec T
	err := r.do(ctx, http.MethodPost, r.collectionURL(), payload, idemKey, &rec)
	return rec, err
}

// Update submits a partial update and returns the updated server record.
func (r *Resource[T]) Update(ctx context.Context, id string, payload map[string]any) (T, error) {
	var rec T
	err := r.do(ctx, http.MethodPut, r.itemURL(id), payload, "", &rec)
	return rec, err
}

// Delete removes a record server-side (the server soft-deletes).
func (r *Resource[T]) Delete(ctx context.Context, id string) error {
	return r.do(ctx, http.MethodDelete, r.itemURL(id), nil, "", nil)
}

// BulkDelete removes several records in one call.
func (r *Resource[T]) BulkDelete(ctx context.Context, ids []string) error {
	return r.do(ctx, http.MethodPost, r.collectionURL()+"/bulk-delete", map[string]any{"ids": ids}, "", nil)
}

func (r *Resource[T]) collectionURL() string {
	return r.base + "/" + r.resource
}

func (r *Resource[T]) itemURL(id string) string {
	return r.collectionURL() + "/" + url.PathEscape(id)
}

// do executes one request and maps the response onto the package error
// taxonomy. out, when non-nil, receives the decoded 2xx body.
func (r *Resource[T]) do(ctx context.Context, method, rawURL string, payload map[string]any, idemKey string, out any) error {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode %s %s: %w", method, rawURL, err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return fmt.Errorf("build %s %s: %w", method, rawURL, err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if r.token != "" {
		req.Header.Set("Authorization", "Bearer "+r.token)
	}
	if idemKey != "" {
		req.Header.Set(HeaderIdempotencyKey, idemKey)
	}

	resp, err := r.hc.Do(req)
	if err != nil {
		// Transport failures and timeouts are indistinguishable from a
		// write that landed but whose response was lost; both map to
		// ErrUnavailable and the replay design tolerates the duplicate.
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		if out == nil || len(raw) == 0 {
			return nil
		}
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("decode %s %s: %w", method, rawURL, err)
		}
		return nil
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s %s", ErrNotFound, method, rawURL)
	case resp.StatusCode == http.StatusConflict:
		ce := &ConflictError{Message: errorMessage(raw)}
		if json.Valid(raw) {
			ce.Record = json.RawMessage(raw)
		}
		return ce
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return &ValidationError{Status: resp.StatusCode, Message: errorMessage(raw)}
	default:
		return fmt.Errorf("%w: %s %s returned %d", ErrUnavailable, method, rawURL, resp.StatusCode)
	}
}

// errorMessage extracts a human-readable message from an error body,
// falling back to the raw text.
func errorMessage(raw []byte) string {
	var envelope struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(raw, &envelope); err == nil {
		if envelope.Message != "" {
			return envelope.Message
		}
		if envelope.Error != "" {
			return envelope.Error
		}
	}
	return string(raw)
}

func trimSlash(s string) string {
	for len(s) > 0 && s[len(s)-1] == '/' {
		s = s[:len(s)-1]
	}
	return s
}

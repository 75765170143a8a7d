package remote

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/lmarques/go-backoffice-sync/internal/domain"
)

func newTestResource(t *testing.T, handler http.HandlerFunc) *Resource[domain.Client] {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewResource[domain.Client](Config{
		BaseURL:    srv.URL,
		Token:      "secret-token",
		HTTPClient: srv.Client(),
	})
}

func TestResourceListDecodesEnvelope(t *testing.T) {
	rc := newTestResource(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/clients" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("page") != "2" || q.Get("limit") != "10" || q.Get("term") != "ana" || q.Get("is_active") != "true" {
			t.Errorf("unexpected query: %s", r.URL.RawQuery)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer secret-token" {
			t.Errorf("missing bearer token, got %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"data": [{"id":"c-1","name":"Ana Costa","is_active":true}],
			"meta": {"total": 11, "page": 2, "limit": 10, "totalPages": 2}
		}`))
	})

	active := true
	page, err := rc.List(context.Background(), 2, 10, "ana", &active)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(page.Data) != 1 || page.Data[0].ID != "c-1" {
		t.Fatalf("unexpected data: %+v", page.Data)
	}
	if page.Total != 11 || page.Page != 2 || page.Limit != 10 || page.TotalPages != 2 {
		t.Fatalf("unexpected meta: %+v", page)
	}
}

func TestResourceListEmptyDataIsNonNil(t *testing.T) {
	rc := newTestResource(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data": null, "meta": {"total":0,"page":1,"limit":10,"totalPages":0}}`))
	})
	page, err := rc.List(context.Background(), 1, 10, "", nil)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if page.Data == nil {
		t.Fatalf("Data should never be nil")
	}
}

func TestResourceCreateSendsIdempotencyKey(t *testing.T) {
	rc := newTestResource(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get(HeaderIdempotencyKey); got != "key-123" {
			t.Errorf("idempotency key = %q, want key-123", got)
		}
		var payload map[string]any
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("decoding payload: %v", err)
		}
		if payload["name"] != "Ana Costa" {
			t.Errorf("unexpected payload: %+v", payload)
		}
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"c-1","name":"Ana Costa"}`))
	})

	rec, err := rc.Create(context.Background(), map[string]any{"name": "Ana Costa"}, "key-123")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if rec.ID != "c-1" {
		t.Fatalf("unexpected record: %+v", rec)
	}
}

func TestResourceCreateOmitsEmptyIdempotencyKey(t *testing.T) {
	rc := newTestResource(t, func(w http.ResponseWriter, r *http.Request) {
		if _, ok := r.Header[HeaderIdempotencyKey]; ok {
			t.Errorf("idempotency key sent on a direct create")
		}
		_, _ = w.Write([]byte(`{"id":"c-1"}`))
	})
	if _, err := rc.Create(context.Background(), map[string]any{"name": "x"}, ""); err != nil {
		t.Fatalf("Create: %v", err)
	}
}

func TestResourceErrorMapping(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		check  func(t *testing.T, err error)
	}{
		{
			name:   "not found",
			status: http.StatusNotFound,
			body:   `{"message":"no such client"}`,
			check: func(t *testing.T, err error) {
				if !errors.Is(err, ErrNotFound) {
					t.Fatalf("got %v, want ErrNotFound", err)
				}
			},
		},
		{
			name:   "conflict with record",
			status: http.StatusConflict,
			body:   `{"id":"c-9","name":"Ana Costa"}`,
			check: func(t *testing.T, err error) {
				var conflict *ConflictError
				if !errors.As(err, &conflict) {
					t.Fatalf("got %v, want ConflictError", err)
				}
				if len(conflict.Record) == 0 {
					t.Fatalf("conflict body not captured")
				}
			},
		},
		{
			name:   "validation",
			status: http.StatusUnprocessableEntity,
			body:   `{"message":"name is required"}`,
			check: func(t *testing.T, err error) {
				var validation *ValidationError
				if !errors.As(err, &validation) {
					t.Fatalf("got %v, want ValidationError", err)
				}
				if validation.Status != http.StatusUnprocessableEntity || validation.Message != "name is required" {
					t.Fatalf("unexpected validation error: %+v", validation)
				}
			},
		},
		{
			name:   "server error",
			status: http.StatusBadGateway,
			body:   "upstream down",
			check: func(t *testing.T, err error) {
				if !errors.Is(err, ErrUnavailable) {
					t.Fatalf("got %v, want ErrUnavailable", err)
				}
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rc := newTestResource(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			})
			_, err := rc.Get(context.Background(), "c-1")
			if err == nil {
				t.Fatalf("expected an error")
			}
			tc.check(t, err)
		})
	}
}

func TestResourceTransportFailureIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	rc := NewResource[domain.Client](Config{BaseURL: srv.URL, HTTPClient: srv.Client()})
	srv.Close()

	_, err := rc.Get(context.Background(), "c-1")
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("got %v, want ErrUnavailable", err)
	}
}

func TestResourceDeleteNoBody(t *testing.T) {
	rc := newTestResource(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete || r.URL.Path != "/clients/c-1" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		w.WriteHeader(http.StatusNoContent)
	})
	if err := rc.Delete(context.Background(), "c-1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
}

func TestResourceBulkDelete(t *testing.T) {
	rc := newTestResource(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/clients/bulk-delete" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		var body struct {
			IDs []string `json:"ids"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || len(body.IDs) != 2 {
			t.Errorf("unexpected body: %+v err=%v", body, err)
		}
		w.WriteHeader(http.StatusNoContent)
	})
	if err := rc.BulkDelete(context.Background(), []string{"c-1", "c-2"}); err != nil {
		t.Fatalf("BulkDelete: %v", err)
	}
}

package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/lmarques/go-backoffice-sync/internal/config"
	"github.com/lmarques/go-backoffice-sync/internal/connectivity"
	"github.com/lmarques/go-backoffice-sync/internal/domain"
	"github.com/lmarques/go-backoffice-sync/internal/remote"
	"github.com/lmarques/go-backoffice-sync/internal/repository"
	"github.com/lmarques/go-backoffice-sync/internal/store"
	"github.com/lmarques/go-backoffice-sync/internal/syncengine"
)

// newTestRouter wires the full application surface against a fresh SQLite
// cache, a dead remote, and a forced-offline oracle: requests are served
// entirely by the offline path.
func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()

	db, err := store.OpenSQLite(filepath.Join(t.TempDir(), "cache.db"))
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	if err := store.AutoMigrate(db); err != nil {
		t.Fatalf("migrating test db: %v", err)
	}

	remoteCfg := remote.Config{
		BaseURL: "http://127.0.0.1:0",
		Timeout: 100 * time.Millisecond,
	}
	oplog := store.NewOpLog(db)
	oracle := connectivity.NewStatic(false)

	clients := repository.New[domain.Client](
		remote.NewResource[domain.Client](remoteCfg),
		store.NewEntities[domain.Client](db), oplog, oracle)
	providers := repository.New[domain.Provider](
		remote.NewResource[domain.Provider](remoteCfg),
		store.NewEntities[domain.Provider](db), oplog, oracle)

	engine := syncengine.New(oplog, oracle, syncengine.Options{})
	engine.Register(clients)
	engine.Register(providers)

	cfg := config.Config{
		APIBasePath: "/api/v1",
		OTEL:        config.OTELConfig{ServiceName: "test"},
	}

	gin.SetMode(gin.TestMode)
	r := gin.New()
	RegisterRoutes(r, Deps{
		Clients:   clients,
		Providers: providers,
		OpLog:     oplog,
		Oracle:    oracle,
		Engine:    engine,
	}, cfg)
	return r
}

func TestRouterHealth(t *testing.T) {
	r := newTestRouter(t)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if w.Header().Get("X-Request-ID") == "" {
		t.Fatalf("X-Request-ID header missing")
	}
}

func TestRouterUnknownRoute(t *testing.T) {
	r := newTestRouter(t)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/nope", nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d", w.Code)
	}
	var resp struct {
		Code string `json:"code"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil || resp.Code != "not_found" {
		t.Fatalf("unexpected body: %s", w.Body.String())
	}
}

func TestRouterMethodNotAllowed(t *testing.T) {
	r := newTestRouter(t)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPatch, "/api/v1/clients", nil))
	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestRouterOfflineCreateAndList(t *testing.T) {
	r := newTestRouter(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/clients", strings.NewReader(`{"name":"Ana Costa"}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body = %s", w.Code, w.Body.String())
	}
	var rec domain.Client
	if err := json.Unmarshal(w.Body.Bytes(), &rec); err != nil {
		t.Fatalf("decoding created record: %v", err)
	}
	if !domain.IsTempID(rec.ID) {
		t.Fatalf("offline create should assign a temp id, got %q", rec.ID)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/clients", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("list status = %d, body = %s", w.Code, w.Body.String())
	}
	var page domain.Page[domain.Client]
	if err := json.Unmarshal(w.Body.Bytes(), &page); err != nil {
		t.Fatalf("decoding page: %v", err)
	}
	if page.Total != 1 || len(page.Data) != 1 || page.Data[0].ID != rec.ID {
		t.Fatalf("offline list mismatch: %+v", page)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/sync/status", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("sync status = %d", w.Code)
	}
	var status struct {
		Online  bool  `json:"online"`
		Pending int64 `json:"pending"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &status); err != nil {
		t.Fatalf("decoding status: %v", err)
	}
	if status.Online || status.Pending != 1 {
		t.Fatalf("unexpected sync status: %+v", status)
	}
}

func TestRouterMetricsEndpoint(t *testing.T) {
	r := newTestRouter(t)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
}

package connectivity

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestStaticOracle(t *testing.T) {
	s := NewStatic(false)
	if s.IsOnline() {
		t.Fatalf("should start offline")
	}
	s.SetOnline(true)
	if !s.IsOnline() {
		t.Fatalf("should be online after SetOnline(true)")
	}
}

func TestProbeStartsOffline(t *testing.T) {
	p := NewProbe("http://127.0.0.1:0/health", time.Minute, nil)
	if p.IsOnline() {
		t.Fatalf("probe must start pessimistic")
	}
}

func TestProbeDetectsHealthyEndpoint(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodHead {
			t.Errorf("probe should use HEAD, got %s", r.Method)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	p := NewProbe(srv.URL, time.Minute, srv.Client())
	p.checkOnce(context.Background())
	if !p.IsOnline() {
		t.Fatalf("probe did not observe a healthy endpoint")
	}
}

func TestProbeServerErrorMeansOffline(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	p := NewProbe(srv.URL, time.Minute, srv.Client())
	p.checkOnce(context.Background())
	if p.IsOnline() {
		t.Fatalf("5xx should count as offline")
	}
}

func TestProbeSignalsOfflineToOnlineEdge(t *testing.T) {
	var healthy atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if healthy.Load() {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	p := NewProbe(srv.URL, time.Minute, srv.Client())
	edges := p.Subscribe()
	ctx := context.Background()

	p.checkOnce(ctx)
	select {
	case <-edges:
		t.Fatalf("edge signaled while still offline")
	default:
	}

	healthy.Store(true)
	p.checkOnce(ctx)
	select {
	case <-edges:
	default:
		t.Fatalf("offline→online edge not signaled")
	}

	// Staying online must not re-signal.
	p.checkOnce(ctx)
	select {
	case <-edges:
		t.Fatalf("edge signaled without a transition")
	default:
	}

	// Going down and back up signals again.
	healthy.Store(false)
	p.checkOnce(ctx)
	healthy.Store(true)
	p.checkOnce(ctx)
	select {
	case <-edges:
	default:
		t.Fatalf("second offline→online edge not signaled")
	}
}

func TestProbeSlowSubscriberDoesNotBlock(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	p := NewProbe(srv.URL, time.Minute, srv.Client())
	_ = p.Subscribe() // never read

	done := make(chan struct{})
	go func() {
		// Two edges against a full buffered channel must coalesce, not block.
		p.notify()
		p.notify()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("notify blocked on a slow subscriber")
	}
}

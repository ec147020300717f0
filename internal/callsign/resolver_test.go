package callsign

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestResolveLooksUpAndCaches(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if got := r.URL.Query().Get("id"); got != "2145007" {
			t.Errorf("unexpected id param %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"count":1,"results":[{"callsign":"ea5gvk"}]}`))
	}))
	defer srv.Close()

	r := NewResolver(Config{APIURL: srv.URL}, discardLogger())

	if got := r.Resolve("2145007"); got != "EA5GVK" {
		t.Fatalf("Resolve = %q, want EA5GVK", got)
	}
	if got := r.Resolve("2145007"); got != "EA5GVK" {
		t.Fatalf("cached Resolve = %q, want EA5GVK", got)
	}
	if hits.Load() != 1 {
		t.Fatalf("expected 1 upstream hit, got %d", hits.Load())
	}
}

func TestResolveSkipsReservedRange(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Error("reserved-range id must not reach the network")
	}))
	defer srv.Close()

	r := NewResolver(Config{APIURL: srv.URL, MinID: 1000}, discardLogger())

	for _, ssi := range []string{"91", "999", "abc", ""} {
		if got := r.Resolve(ssi); got != "" {
			t.Fatalf("Resolve(%q) = %q, want empty", ssi, got)
		}
	}
}

func TestResolveFailureIsNegativeCached(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	r := NewResolver(Config{APIURL: srv.URL}, discardLogger())

	if got := r.Resolve("3020760"); got != "" {
		t.Fatalf("Resolve = %q, want empty", got)
	}
	if got := r.Resolve("3020760"); got != "" {
		t.Fatalf("Resolve after failure = %q, want empty", got)
	}
	if hits.Load() != 1 {
		t.Fatalf("failed lookup retried: %d hits", hits.Load())
	}
}

func TestResolveTimeoutIsBounded(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	r := NewResolver(Config{APIURL: srv.URL, Timeout: 50 * time.Millisecond}, discardLogger())

	start := time.Now()
	if got := r.Resolve("3020760"); got != "" {
		t.Fatalf("Resolve = %q, want empty", got)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("lookup took %v, timeout not applied", elapsed)
	}
}

func TestSeedBypassesNetwork(t *testing.T) {
	r := NewResolver(Config{APIURL: "http://127.0.0.1:0"}, discardLogger())
	r.Seed("2145007", "ea5gvk")

	if got := r.Resolve("2145007"); got != "EA5GVK" {
		t.Fatalf("Resolve = %q, want EA5GVK", got)
	}
}

func TestResolveFlatResponseShape(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"callsign":"vo1tr"}`))
	}))
	defer srv.Close()

	r := NewResolver(Config{APIURL: srv.URL}, discardLogger())
	if got := r.Resolve("3020760"); got != "VO1TR" {
		t.Fatalf("Resolve = %q, want VO1TR", got)
	}
}

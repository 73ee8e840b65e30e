package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/sdr-ai-platform/internal/debounce"
	"github.com/wolfman30/sdr-ai-platform/internal/notify"
	"github.com/wolfman30/sdr-ai-platform/internal/observability/metrics"
	"github.com/wolfman30/sdr-ai-platform/pkg/logging"
)

func TestSetupMetricsExposesConversationMetrics(t *testing.T) {
	registry, handler := setupMetrics()
	if registry == nil || handler == nil {
		t.Fatalf("expected non-nil registry and handler")
	}

	m := metrics.NewConversationMetrics(registry)
	m.ObserveInbound("queued")

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	body := rr.Body.String()
	if !strings.Contains(body, "sdr_") {
		t.Fatalf("expected sdr metrics to be exported")
	}
	if !strings.Contains(body, "go_goroutines") {
		t.Fatalf("expected runtime collectors to be registered")
	}
}

func TestHealthChecksOnlyIncludeConfiguredDependencies(t *testing.T) {
	if checks := healthChecks(nil, nil); len(checks) != 0 {
		t.Fatalf("expected no checks, got %d", len(checks))
	}

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	checks := healthChecks(nil, client)
	probe, ok := checks["redis"]
	if !ok {
		t.Fatalf("expected redis check")
	}
	if err := probe(context.Background()); err != nil {
		t.Fatalf("redis probe: %v", err)
	}
	mr.Close()
	if err := probe(context.Background()); err == nil {
		t.Fatalf("expected probe to fail after redis stops")
	}
}

func TestShutdownFlushesPendingMessages(t *testing.T) {
	logger := logging.New("error")
	deb := debounce.New(time.Hour, logger)
	notifier := notify.NewService(notify.NewMemoryTimeline(), logger)

	flushed := make(chan string, 1)
	if err := deb.Add("+5511999990000", "oi", func(_ context.Context, _ string, text string) error {
		flushed <- text
		return nil
	}); err != nil {
		t.Fatalf("add: %v", err)
	}

	srv := &http.Server{Addr: "127.0.0.1:0"}
	if err := shutdown(srv, deb, notifier, logger); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	select {
	case text := <-flushed:
		if text != "oi" {
			t.Fatalf("unexpected flushed text %q", text)
		}
	default:
		t.Fatalf("expected buffered message to flush on shutdown")
	}
}

func TestPruneProcessedMessagesDisabledWithoutTTL(t *testing.T) {
	done := make(chan struct{})
	go func() {
		pruneProcessedMessages(context.Background(), nil, 0, logging.New("error"))
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("expected prune loop to return immediately without a ttl")
	}
}

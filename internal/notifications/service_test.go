package notifications_test

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"prodsum/internal/config"
	"prodsum/internal/notifications"
	"prodsum/internal/services"
)

type capture struct {
	mu       sync.Mutex
	requests []capturedRequest
}

type capturedRequest struct {
	title    string
	tags     string
	priority string
	body     string
}

func (c *capture) handler(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	c.mu.Lock()
	c.requests = append(c.requests, capturedRequest{
		title:    r.Header.Get("Title"),
		tags:     r.Header.Get("Tags"),
		priority: r.Header.Get("Priority"),
		body:     string(body),
	})
	c.mu.Unlock()
	w.WriteHeader(http.StatusOK)
}

func newTopic(t *testing.T, notifySuccess bool) (*capture, notifications.Service) {
	t.Helper()
	c := &capture{}
	srv := httptest.NewServer(http.HandlerFunc(c.handler))
	t.Cleanup(srv.Close)

	cfg := config.Default()
	cfg.Notifications.NtfyTopic = srv.URL + "/prodsum"
	cfg.Notifications.NotifySuccess = notifySuccess
	return c, notifications.NewService(&cfg)
}

func TestNewServiceReturnsNoopWhenTopicMissing(t *testing.T) {
	cfg := config.Default()
	svc := notifications.NewService(&cfg)
	if err := svc.NotifyRunFinished(context.Background(), notifications.RunSummary{Err: fmt.Errorf("boom")}); err != nil {
		t.Fatalf("expected noop notifier to return nil, got %v", err)
	}
}

func TestRunFailureIsAlwaysSent(t *testing.T) {
	c, svc := newTopic(t, false)

	failure := services.Wrap(services.ErrIntegrity, "convert", "verify", "metadata lists a missing file", nil)
	err := svc.NotifyRunFinished(context.Background(), notifications.RunSummary{
		RunID:    "run-1",
		Years:    []int{2021, 2022},
		Duration: 90 * time.Second,
		Stages:   []notifications.StageSummary{{Stage: "fetch", Added: 1}},
		Err:      failure,
	})
	if err != nil {
		t.Fatalf("NotifyRunFinished: %v", err)
	}
	if len(c.requests) != 1 {
		t.Fatalf("expected one request, got %d", len(c.requests))
	}
	req := c.requests[0]
	if req.title != "prodsum - Run Failed" || req.priority != "high" {
		t.Fatalf("unexpected headers: %+v", req)
	}
	for _, want := range []string{"Run run-1 failed after 1m30s (integrity)", "Years: 2021, 2022", "fetch: +1 -0"} {
		if !strings.Contains(req.body, want) {
			t.Fatalf("expected body to contain %q, got %q", want, req.body)
		}
	}
}

func TestRunSuccessHonoursNotifySuccess(t *testing.T) {
	quiet, svc := newTopic(t, false)
	summary := notifications.RunSummary{
		RunID:  "run-2",
		Stages: []notifications.StageSummary{{Stage: "aggregate", Skipped: true}},
	}
	if err := svc.NotifyRunFinished(context.Background(), summary); err != nil {
		t.Fatalf("NotifyRunFinished: %v", err)
	}
	if len(quiet.requests) != 0 {
		t.Fatalf("expected success to be suppressed, got %d requests", len(quiet.requests))
	}

	loud, svc := newTopic(t, true)
	if err := svc.NotifyRunFinished(context.Background(), summary); err != nil {
		t.Fatalf("NotifyRunFinished: %v", err)
	}
	if len(loud.requests) != 1 {
		t.Fatalf("expected one request, got %d", len(loud.requests))
	}
	if got := loud.requests[0]; got.title != "prodsum - Run Complete" || !strings.Contains(got.body, "aggregate: unchanged") {
		t.Fatalf("unexpected success notification: %+v", got)
	}
}

func TestSendReportsServerErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "topic reserved", http.StatusForbidden)
	}))
	t.Cleanup(srv.Close)

	cfg := config.Default()
	cfg.Notifications.NtfyTopic = srv.URL
	err := notifications.NewService(&cfg).TestNotification(context.Background())
	if err == nil || !strings.Contains(err.Error(), "403") {
		t.Fatalf("expected 403 error, got %v", err)
	}
}

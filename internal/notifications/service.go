package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"prodsum/internal/config"
	"prodsum/internal/services"
)

const userAgent = "prodsum-notify/1"

// RunSummary describes a finished run for the notification body.
type RunSummary struct {
	RunID    string
	Years    []int
	Duration time.Duration
	Stages   []StageSummary
	Err      error
}

// StageSummary is the per-stage line of a run notification.
type StageSummary struct {
	Stage   string
	Skipped bool
	Added   int
	Removed int
}

// Service defines the notification surface used by the run driver.
type Service interface {
	NotifyRunFinished(ctx context.Context, summary RunSummary) error
	TestNotification(ctx context.Context) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &ntfyService{
		endpoint:      topic,
		client:        &http.Client{Timeout: timeout},
		notifySuccess: cfg.Notifications.NotifySuccess,
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint      string
	client        *http.Client
	notifySuccess bool
}

func (n *ntfyService) NotifyRunFinished(ctx context.Context, summary RunSummary) error {
	if summary.Err == nil && !n.notifySuccess {
		return nil
	}
	return n.send(ctx, runPayload(summary))
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	return n.send(ctx, payload{
		title:    "prodsum - Test",
		message:  "Notification system test",
		tags:     []string{"prodsum", "test"},
		priority: "low",
	})
}

func runPayload(summary RunSummary) payload {
	duration := summary.Duration.Round(time.Second)
	if duration < 0 {
		duration = 0
	}

	var b strings.Builder
	if summary.Err != nil {
		fmt.Fprintf(&b, "Run %s failed after %s", summary.RunID, duration)
		if kind := services.FailureKind(summary.Err); kind != "" {
			fmt.Fprintf(&b, " (%s)", kind)
		}
		fmt.Fprintf(&b, ": %s", strings.TrimSpace(summary.Err.Error()))
	} else {
		fmt.Fprintf(&b, "Run %s finished in %s", summary.RunID, duration)
	}
	if len(summary.Years) > 0 {
		years := make([]string, len(summary.Years))
		for i, year := range summary.Years {
			years[i] = fmt.Sprint(year)
		}
		fmt.Fprintf(&b, "\nYears: %s", strings.Join(years, ", "))
	}
	for _, stage := range summary.Stages {
		if stage.Skipped {
			fmt.Fprintf(&b, "\n%s: unchanged", stage.Stage)
			continue
		}
		fmt.Fprintf(&b, "\n%s: +%d -%d", stage.Stage, stage.Added, stage.Removed)
	}

	if summary.Err != nil {
		return payload{
			title:    "prodsum - Run Failed",
			message:  b.String(),
			tags:     []string{"prodsum", "error", "alert"},
			priority: "high",
		}
	}
	return payload{
		title:   "prodsum - Run Complete",
		message: b.String(),
		tags:    []string{"prodsum", "run", "completed"},
	}
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) NotifyRunFinished(context.Context, RunSummary) error { return nil }
func (noopService) TestNotification(context.Context) error              { return nil }

package notifications

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"relay/internal/config"
)

const userAgent = "relay/0.1.0"

// Service defines the notification surface exposed to the processor and CLI.
type Service interface {
	NotifyError(ctx context.Context, err error, contextLabel string) error
	NotifyCycleCompleted(ctx context.Context, stage string, processed, failed int, duration time.Duration) error
	TestNotification(ctx context.Context) error
}

// NewService builds the configured notifiers. When system error reporting is
// disabled, or no transport is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	if cfg == nil || !cfg.Notifications.SystemError {
		return noopService{}
	}
	n := cfg.Notifications
	project := strings.TrimSpace(n.ProjectName)
	if project == "" {
		project = "relay"
	}

	var services []Service
	if topic := strings.TrimSpace(n.NtfyTopic); topic != "" {
		timeout := time.Duration(n.RequestTimeout) * time.Second
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		services = append(services, &ntfyService{
			endpoint: topic,
			project:  project,
			client:   &http.Client{Timeout: timeout},
		})
	}
	if send := strings.TrimSpace(n.MailSendCommand); send != "" && len(n.MailTo) > 0 {
		services = append(services, &mailService{
			sendCommand: send,
			from:        n.MailFrom,
			to:          append([]string(nil), n.MailTo...),
			project:     project,
			now:         time.Now,
		})
	}

	switch len(services) {
	case 0:
		return noopService{}
	case 1:
		return services[0]
	default:
		return multiService(services)
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	project  string
	client   *http.Client
}

func (n *ntfyService) NotifyError(ctx context.Context, err error, contextLabel string) error {
	var builder strings.Builder
	builder.WriteString("❌ Error")
	if contextLabel = strings.TrimSpace(contextLabel); contextLabel != "" {
		builder.WriteString(" in ")
		builder.WriteString(contextLabel)
	}
	builder.WriteString(": ")
	if err != nil {
		builder.WriteString(strings.TrimSpace(err.Error()))
	} else {
		builder.WriteString("unknown")
	}

	data := payload{
		title:    n.project + " - Error",
		message:  builder.String(),
		tags:     []string{"relay", "error", "alert"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyCycleCompleted(ctx context.Context, stage string, processed, failed int, duration time.Duration) error {
	data := payload{
		title:   fmt.Sprintf("%s - %s Cycle Complete", n.project, stage),
		message: cycleSummary(stage, processed, failed, duration),
		tags:    []string{"relay", "cycle", "completed"},
	}
	if failed > 0 {
		data.title += " (with errors)"
		data.priority = "high"
	}
	return n.send(ctx, data)
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	data := payload{
		title:    n.project + " - Test",
		message:  "🧪 Notification system test",
		tags:     []string{"relay", "test"},
		priority: "low",
	}
	return n.send(ctx, data)
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

func cycleSummary(stage string, processed, failed int, duration time.Duration) string {
	duration = duration.Round(time.Second)
	if duration < 0 {
		duration = 0
	}
	if failed == 0 {
		return fmt.Sprintf("Stage %s processed %d items in %s", stage, processed, duration)
	}
	return fmt.Sprintf("Stage %s processed %d items, %d quarantined, in %s", stage, processed, failed, duration)
}

// multiService fans every notification out to each transport.
type multiService []Service

func (m multiService) NotifyError(ctx context.Context, err error, contextLabel string) error {
	var errs []error
	for _, svc := range m {
		errs = append(errs, svc.NotifyError(ctx, err, contextLabel))
	}
	return errors.Join(errs...)
}

func (m multiService) NotifyCycleCompleted(ctx context.Context, stage string, processed, failed int, duration time.Duration) error {
	var errs []error
	for _, svc := range m {
		errs = append(errs, svc.NotifyCycleCompleted(ctx, stage, processed, failed, duration))
	}
	return errors.Join(errs...)
}

func (m multiService) TestNotification(ctx context.Context) error {
	var errs []error
	for _, svc := range m {
		errs = append(errs, svc.TestNotification(ctx))
	}
	return errors.Join(errs...)
}

type noopService struct{}

func (noopService) NotifyError(context.Context, error, string) error { return nil }
func (noopService) NotifyCycleCompleted(context.Context, string, int, int, time.Duration) error {
	return nil
}
func (noopService) TestNotification(context.Context) error { return nil }

// NewNoop returns a Service that discards every notification.
func NewNoop() Service {
	return noopService{}
}

package notifications

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"mime"
	"strings"
	"time"

	"relay/internal/command"
)

// mailService pipes a plain-text message to an external sendmail-style
// command once per recipient: `<send command> <from> <to>`.
type mailService struct {
	sendCommand string
	from        string
	to          []string
	project     string
	now         func() time.Time
}

func (m *mailService) NotifyError(ctx context.Context, err error, contextLabel string) error {
	subject := fmt.Sprintf("[%s] System error notification", m.project)
	return m.send(ctx, subject, errorBody(err, contextLabel))
}

func (m *mailService) NotifyCycleCompleted(ctx context.Context, stage string, processed, failed int, duration time.Duration) error {
	if failed == 0 {
		return nil
	}
	subject := fmt.Sprintf("[%s] %s cycle completed with errors", m.project, stage)
	return m.send(ctx, subject, cycleSummary(stage, processed, failed, duration)+"\n")
}

func (m *mailService) TestNotification(ctx context.Context) error {
	subject := fmt.Sprintf("[%s] Notification test", m.project)
	return m.send(ctx, subject, "Notification system test.\n")
}

func (m *mailService) send(ctx context.Context, subject, body string) error {
	var errs []error
	for _, to := range m.to {
		msg := m.compose(to, subject, body)
		if _, err := command.Run(ctx, m.sendCommand, []string{m.from, to}, bytes.NewReader(msg)); err != nil {
			errs = append(errs, fmt.Errorf("send mail to %s: %w", to, err))
		}
	}
	return errors.Join(errs...)
}

func (m *mailService) compose(to, subject, body string) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "From: %s\r\n", m.from)
	fmt.Fprintf(&buf, "To: %s\r\n", to)
	fmt.Fprintf(&buf, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", subject))
	fmt.Fprintf(&buf, "Date: %s\r\n", m.now().Format(time.RFC1123Z))
	buf.WriteString("MIME-Version: 1.0\r\n")
	buf.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	buf.WriteString("Content-Transfer-Encoding: 8bit\r\n")
	buf.WriteString("\r\n")
	buf.WriteString(strings.ReplaceAll(body, "\n", "\r\n"))
	return buf.Bytes()
}

func errorBody(err error, contextLabel string) string {
	var b strings.Builder
	b.WriteString("This message is sent automatically when relay encounters a system error.\n")
	b.WriteString("Do not reply to this message.\n\n")
	if contextLabel = strings.TrimSpace(contextLabel); contextLabel != "" {
		fmt.Fprintf(&b, "Context: %s\n\n", contextLabel)
	}
	b.WriteString("Original:\n")
	if err == nil {
		b.WriteString("unknown\n")
		return b.String()
	}
	b.WriteString(err.Error())
	b.WriteString("\n\nRoot Cause:\n")
	b.WriteString(rootCause(err).Error())
	b.WriteString("\n")
	return b.String()
}

// rootCause follows the single-error Unwrap chain to its end.
func rootCause(err error) error {
	for {
		next := errors.Unwrap(err)
		if next == nil {
			return err
		}
		err = next
	}
}

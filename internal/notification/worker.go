package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// EmailQueue is the queue the service publishes email tasks to and the
// worker consumes from.
const EmailQueue = "email.notifications"

// EmailTask is one email delivery request. ID matches the originating
// notification and doubles as the idempotency key.
type EmailTask struct {
	ID         string            `json:"id"`
	To         string            `json:"to"`
	Subject    string            `json:"subject"`
	TemplateID string            `json:"template_id"`
	Data       map[string]string `json:"data"`
}

// Mailer sends a rendered email.
type Mailer interface {
	SendEmail(ctx context.Context, to, subject, body string) error
}

// EmailWorker turns queued tasks into outbound email. Queue redelivery
// means a task can arrive more than once; a Redis marker keyed on the
// task ID suppresses repeats when a cache is configured.
type EmailWorker struct {
	mailer Mailer
	cache  *redis.Client // optional
	logger *slog.Logger
}

func NewEmailWorker(mailer Mailer, cache *redis.Client, logger *slog.Logger) *EmailWorker {
	return &EmailWorker{mailer: mailer, cache: cache, logger: logger}
}

// Process handles one queued task. A non-nil return sends the delivery to
// the dead-letter queue.
func (w *EmailWorker) Process(ctx context.Context, body []byte) error {
	var task EmailTask
	if err := json.Unmarshal(body, &task); err != nil {
		EmailTasks.WithLabelValues("malformed").Inc()
		return fmt.Errorf("malformed email task: %w", err)
	}

	if w.alreadySent(ctx, task.ID) {
		EmailTasks.WithLabelValues("duplicate").Inc()
		return nil
	}

	rendered, err := RenderTemplate(task.TemplateID, task.Data)
	if err != nil {
		EmailTasks.WithLabelValues("render_error").Inc()
		return err
	}

	if err := w.mailer.SendEmail(ctx, task.To, task.Subject, rendered); err != nil {
		EmailTasks.WithLabelValues("send_error").Inc()
		return fmt.Errorf("failed to send email for task %s: %w", task.ID, err)
	}

	w.markSent(ctx, task.ID)
	EmailTasks.WithLabelValues("sent").Inc()
	w.logger.Info("email sent", "task_id", task.ID, "template", task.TemplateID)
	return nil
}

func (w *EmailWorker) alreadySent(ctx context.Context, id string) bool {
	if w.cache == nil || id == "" {
		return false
	}
	exists, err := w.cache.Exists(ctx, emailSentKey(id)).Result()
	return err == nil && exists > 0
}

func (w *EmailWorker) markSent(ctx context.Context, id string) {
	if w.cache == nil || id == "" {
		return
	}
	if err := w.cache.Set(ctx, emailSentKey(id), 1, 24*time.Hour).Err(); err != nil {
		w.logger.Warn("failed to record email idempotency key", "task_id", id, "error", err)
	}
}

func emailSentKey(id string) string {
	return "email:sent:" + id
}

package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/labworks/labsched-api/internal/models"
	"github.com/labworks/labsched-api/pkg/config"
	"github.com/labworks/labsched-api/pkg/jobs"
)

// Sender delivers a request status event to its recipient. Delivery and retry
// mechanics (email/SMS) live entirely behind this interface.
type Sender interface {
	Send(ctx context.Context, event models.RequestStatusEvent) error
}

// SenderFunc allows using plain functions as senders.
type SenderFunc func(ctx context.Context, event models.RequestStatusEvent) error

// Send implements Sender.
func (f SenderFunc) Send(ctx context.Context, event models.RequestStatusEvent) error {
	return f(ctx, event)
}

// LogSender records events in the application log. It stands in for a real
// email/SMS gateway in development.
type LogSender struct {
	logger *zap.Logger
}

// NewLogSender constructs a LogSender.
func NewLogSender(logger *zap.Logger) *LogSender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSender{logger: logger}
}

// Send implements Sender.
func (s *LogSender) Send(_ context.Context, event models.RequestStatusEvent) error {
	s.logger.Info("request status notification",
		zap.String("request_id", event.RequestID),
		zap.String("from", string(event.FromStatus)),
		zap.String("to", string(event.ToStatus)),
		zap.String("recipient", event.Recipient),
	)
	return nil
}

// Notifier dispatches request status events to a Sender through a background
// worker queue. Dispatch is fire-and-forget: an enqueue or delivery failure is
// logged and never rolls back the transition that produced the event.
type Notifier struct {
	queue  *jobs.Queue
	logger *zap.Logger
}

// NewNotifier builds a notifier backed by an in-memory queue.
func NewNotifier(sender Sender, cfg config.NotificationsConfig, logger *zap.Logger) *Notifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	handler := func(ctx context.Context, job jobs.Job) error {
		event, ok := job.Payload.(models.RequestStatusEvent)
		if !ok {
			logger.Warn("notifier received unexpected payload", zap.String("job_id", job.ID))
			return nil
		}
		return sender.Send(ctx, event)
	}
	queue := jobs.NewQueue("notifications", handler, jobs.QueueConfig{
		Workers:    cfg.Workers,
		BufferSize: cfg.BufferSize,
		MaxRetries: cfg.MaxRetries,
		RetryDelay: cfg.RetryDelay,
		Logger:     logger,
	})
	return &Notifier{queue: queue, logger: logger}
}

// Start launches the worker pool.
func (n *Notifier) Start(ctx context.Context) {
	n.queue.Start(ctx)
}

// Stop drains the worker pool.
func (n *Notifier) Stop() {
	n.queue.Stop()
}

// Dispatch enqueues one event.
func (n *Notifier) Dispatch(event models.RequestStatusEvent) {
	if n == nil {
		return
	}
	job := jobs.Job{
		ID:      event.RequestID + ":" + string(event.ToStatus),
		Type:    "request_status",
		Payload: event,
	}
	if err := n.queue.Enqueue(job); err != nil {
		n.logger.Warn("failed to enqueue notification", zap.String("request_id", event.RequestID), zap.Error(err))
	}
}

package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/noah-isme/research-portal-api/internal/models"
	"github.com/noah-isme/research-portal-api/pkg/config"
	"github.com/noah-isme/research-portal-api/pkg/jobs"
	"github.com/noah-isme/research-portal-api/pkg/mailer"
)

const accessCodeJob = "access_code_notice"

type mailSender interface {
	Send(ctx context.Context, msg mailer.Message) error
}

// AccessCodeNotice is queued after an identity is issued.
type AccessCodeNotice struct {
	Email string
	Name  string
	Code  string
	Role  models.UserRole
}

// NotificationService delivers access codes asynchronously. Failures never
// reach the registering client; they are logged and counted.
type NotificationService struct {
	queue   *jobs.Queue
	sender  mailSender
	metrics *MetricsService
	logger  *zap.Logger
	enabled bool
}

// NewNotificationService wires the delivery queue around sender.
func NewNotificationService(sender mailSender, metrics *MetricsService, logger *zap.Logger, cfg config.NotificationConfig) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &NotificationService{sender: sender, metrics: metrics, logger: logger, enabled: cfg.Enabled && sender != nil}
	svc.queue = jobs.NewQueue("notifications", svc.deliver, jobs.QueueConfig{
		Workers:    cfg.Workers,
		MaxRetries: cfg.MaxRetries,
		RetryDelay: cfg.RetryDelay,
		Logger:     logger,
		OnDrop: func(job jobs.Job, err error) {
			metrics.RecordNotification("dropped")
		},
	})
	return svc
}

// Start launches the delivery workers.
func (s *NotificationService) Start(ctx context.Context) {
	if s.enabled {
		s.queue.Start(ctx)
	}
}

// Stop drains the workers.
func (s *NotificationService) Stop() {
	s.queue.Stop()
}

// NotifyAccessCode queues the notice. It never blocks and never fails the caller.
func (s *NotificationService) NotifyAccessCode(ctx context.Context, notice AccessCodeNotice) {
	if !s.enabled {
		s.logger.Debug("notifications disabled, access code not sent", zap.String("email", notice.Email))
		return
	}
	if err := s.queue.Enqueue(jobs.Job{Type: accessCodeJob, Payload: notice}); err != nil {
		s.metrics.RecordNotification("dropped")
		s.logger.Warn("failed to enqueue access code notice", zap.String("email", notice.Email), zap.Error(err))
	}
}

func (s *NotificationService) deliver(ctx context.Context, job jobs.Job) error {
	notice, ok := job.Payload.(AccessCodeNotice)
	if !ok {
		return fmt.Errorf("unexpected payload %T", job.Payload)
	}
	msg, err := mailer.RenderAccessCode(notice.Email, mailer.AccessCodeData{Name: notice.Name, Code: notice.Code, Role: string(notice.Role)})
	if err != nil {
		return err
	}
	if err := s.sender.Send(ctx, msg); err != nil {
		s.metrics.RecordNotification("failed")
		return err
	}
	s.metrics.RecordNotification("sent")
	s.logger.Info("access code delivered", zap.String("email", notice.Email), zap.String("job_id", job.ID))
	return nil
}

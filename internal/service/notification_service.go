package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cptrack/cptrack-api/internal/models"
	"github.com/cptrack/cptrack-api/pkg/jobs"
)

// NotificationType enumerates outbound notification categories.
type NotificationType string

const (
	NotificationStageAssigned NotificationType = "STAGE_ASSIGNED"
	NotificationStageOverdue  NotificationType = "STAGE_OVERDUE"
	NotificationPaperOverdue  NotificationType = "PAPER_OVERDUE"
	NotificationPaperDone     NotificationType = "PAPER_COMPLETED"
	NotificationStageReturned NotificationType = "STAGE_RETURNED"
	NotificationStageRejected NotificationType = "STAGE_REJECTED"
)

// OutboundMessage is a rendered notification ready for delivery.
type OutboundMessage struct {
	Type       NotificationType
	Recipients []string
	Subject    string
	Body       string
}

// Mailer delivers rendered messages. Deployment decides the transport.
type Mailer interface {
	Send(ctx context.Context, msg OutboundMessage) error
}

// LogMailer is the default Mailer: it logs instead of sending, which keeps
// development environments quiet.
type LogMailer struct {
	Logger *zap.Logger
}

// Send implements Mailer.
func (m *LogMailer) Send(_ context.Context, msg OutboundMessage) error {
	logger := m.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Info("notification",
		zap.String("type", string(msg.Type)),
		zap.Strings("recipients", msg.Recipients),
		zap.String("subject", msg.Subject),
	)
	return nil
}

type recipientDirectory interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
	ListActiveByRole(ctx context.Context, role models.UserRole) ([]models.User, error)
}

type notificationPayload struct {
	Type    NotificationType
	Stage   *models.WorkflowStage
	Paper   *models.ConceptPaper
	Remarks string
}

// NotificationService resolves recipients (role fan-out through the user
// directory) and dispatches messages asynchronously through a worker
// queue. Enqueueing is the only synchronous part a caller ever sees.
type NotificationService struct {
	users   recipientDirectory
	mailer  Mailer
	queue   *jobs.Queue
	metrics *MetricsService
	logger  *zap.Logger
	enabled bool
}

// NotificationQueueConfig tunes the dispatch worker pool.
type NotificationQueueConfig struct {
	Workers    int
	Retries    int
	BufferSize int
}

// NewNotificationService constructs the service and its dispatch queue.
func NewNotificationService(users recipientDirectory, mailer Mailer, metrics *MetricsService, logger *zap.Logger, enabled bool, cfg NotificationQueueConfig) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if mailer == nil {
		mailer = &LogMailer{Logger: logger}
	}
	svc := &NotificationService{
		users:   users,
		mailer:  mailer,
		metrics: metrics,
		logger:  logger,
		enabled: enabled,
	}
	svc.queue = jobs.NewQueue("notifications", svc.handle, jobs.QueueConfig{
		Workers:    cfg.Workers,
		BufferSize: cfg.BufferSize,
		MaxRetries: cfg.Retries,
		Logger:     logger,
	})
	return svc
}

// Start boots the dispatch workers.
func (s *NotificationService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop drains the dispatch workers.
func (s *NotificationService) Stop() {
	s.queue.Stop()
}

// SendStageAssigned notifies the stage's assignee and role holders that a
// stage is waiting on them.
func (s *NotificationService) SendStageAssigned(ctx context.Context, stage models.WorkflowStage) error {
	return s.enqueue(NotificationStageAssigned, notificationPayload{Type: NotificationStageAssigned, Stage: &stage})
}

// SendOverdue notifies that a stage has passed its deadline.
func (s *NotificationService) SendOverdue(ctx context.Context, stage models.WorkflowStage) error {
	return s.enqueue(NotificationStageOverdue, notificationPayload{Type: NotificationStageOverdue, Stage: &stage})
}

// SendPaperOverdue notifies that a paper has reached its own deadline.
func (s *NotificationService) SendPaperOverdue(ctx context.Context, paper models.ConceptPaper) error {
	return s.enqueue(NotificationPaperOverdue, notificationPayload{Type: NotificationPaperOverdue, Paper: &paper})
}

// SendCompleted notifies the requisitioner that the paper cleared every
// stage.
func (s *NotificationService) SendCompleted(ctx context.Context, paper models.ConceptPaper) error {
	return s.enqueue(NotificationPaperDone, notificationPayload{Type: NotificationPaperDone, Paper: &paper})
}

// SendReturned notifies the reopened stage's owner about the return and
// its remarks.
func (s *NotificationService) SendReturned(ctx context.Context, stage models.WorkflowStage, remarks string) error {
	return s.enqueue(NotificationStageReturned, notificationPayload{Type: NotificationStageReturned, Stage: &stage, Remarks: remarks})
}

// SendRejected notifies that the paper was terminally rejected.
func (s *NotificationService) SendRejected(ctx context.Context, stage models.WorkflowStage, reason string) error {
	return s.enqueue(NotificationStageRejected, notificationPayload{Type: NotificationStageRejected, Stage: &stage, Remarks: reason})
}

func (s *NotificationService) enqueue(t NotificationType, payload notificationPayload) error {
	if !s.enabled {
		return nil
	}
	return s.queue.Enqueue(jobs.Job{
		ID:      uuid.NewString(),
		Type:    string(t),
		Payload: payload,
	})
}

func (s *NotificationService) handle(ctx context.Context, job jobs.Job) error {
	payload, ok := job.Payload.(notificationPayload)
	if !ok {
		s.logger.Error("notification job carried unexpected payload", zap.String("job_id", job.ID))
		return nil
	}

	msg, err := s.render(ctx, payload)
	if err != nil {
		s.recordDispatch(payload.Type, false)
		return err
	}
	if len(msg.Recipients) == 0 {
		s.logger.Warn("notification has no recipients", zap.String("type", string(payload.Type)))
		s.recordDispatch(payload.Type, false)
		return nil
	}

	if err := s.mailer.Send(ctx, msg); err != nil {
		s.recordDispatch(payload.Type, false)
		return fmt.Errorf("dispatch %s notification: %w", payload.Type, err)
	}
	s.recordDispatch(payload.Type, true)
	return nil
}

// render resolves recipients and builds the message body. Role fan-out is
// an explicit directory call so the engine never embeds user queries.
func (s *NotificationService) render(ctx context.Context, payload notificationPayload) (OutboundMessage, error) {
	msg := OutboundMessage{Type: payload.Type}

	switch payload.Type {
	case NotificationStageAssigned, NotificationStageOverdue, NotificationStageReturned:
		stage := payload.Stage
		recipients, err := s.stageRecipients(ctx, stage)
		if err != nil {
			return msg, err
		}
		msg.Recipients = recipients
		switch payload.Type {
		case NotificationStageAssigned:
			msg.Subject = fmt.Sprintf("Stage %q is awaiting your review", stage.StageName)
			msg.Body = fmt.Sprintf("Concept paper %s has reached stage %q.", stage.ConceptPaperID, stage.StageName)
		case NotificationStageOverdue:
			msg.Subject = fmt.Sprintf("Stage %q is overdue", stage.StageName)
			msg.Body = fmt.Sprintf("Stage %q of concept paper %s has passed its deadline.", stage.StageName, stage.ConceptPaperID)
		case NotificationStageReturned:
			msg.Subject = fmt.Sprintf("Stage %q was returned", stage.StageName)
			msg.Body = fmt.Sprintf("Stage %q of concept paper %s was returned with remarks: %s", stage.StageName, stage.ConceptPaperID, payload.Remarks)
		}
	case NotificationStageRejected:
		stage := payload.Stage
		recipients, err := s.stageRecipients(ctx, stage)
		if err != nil {
			return msg, err
		}
		msg.Recipients = recipients
		msg.Subject = fmt.Sprintf("Concept paper rejected at stage %q", stage.StageName)
		msg.Body = fmt.Sprintf("Concept paper %s was rejected at stage %q: %s", stage.ConceptPaperID, stage.StageName, payload.Remarks)
	case NotificationPaperDone, NotificationPaperOverdue:
		paper := payload.Paper
		requisitioner, err := s.users.GetByID(ctx, paper.RequisitionerID)
		if err != nil {
			return msg, fmt.Errorf("resolve requisitioner %s: %w", paper.RequisitionerID, err)
		}
		msg.Recipients = []string{requisitioner.Email}
		if payload.Type == NotificationPaperDone {
			msg.Subject = "Concept paper approved"
			msg.Body = fmt.Sprintf("Concept paper %s completed every review stage.", paper.ID)
		} else {
			msg.Subject = "Concept paper deadline reached"
			msg.Body = fmt.Sprintf("Concept paper %s reached its deadline before completing review.", paper.ID)
		}
	default:
		return msg, fmt.Errorf("unknown notification type %q", payload.Type)
	}

	return msg, nil
}

// stageRecipients is the assigned user plus every active holder of the
// stage's role, de-duplicated.
func (s *NotificationService) stageRecipients(ctx context.Context, stage *models.WorkflowStage) ([]string, error) {
	seen := make(map[string]struct{})
	recipients := make([]string, 0, 4)

	if stage.AssignedUserID != nil {
		user, err := s.users.GetByID(ctx, *stage.AssignedUserID)
		if err == nil && user.Active {
			seen[user.Email] = struct{}{}
			recipients = append(recipients, user.Email)
		}
	}

	holders, err := s.users.ListActiveByRole(ctx, stage.AssignedRole)
	if err != nil {
		return nil, fmt.Errorf("fan out to role %s: %w", stage.AssignedRole, err)
	}
	for _, holder := range holders {
		if _, ok := seen[holder.Email]; ok {
			continue
		}
		seen[holder.Email] = struct{}{}
		recipients = append(recipients, holder.Email)
	}
	return recipients, nil
}

func (s *NotificationService) recordDispatch(t NotificationType, ok bool) {
	if s.metrics != nil {
		s.metrics.RecordNotification(string(t), ok)
	}
}

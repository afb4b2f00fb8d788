package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/twistedwarden/attendance-api/internal/models"
	"github.com/twistedwarden/attendance-api/internal/repository"
	appErrors "github.com/twistedwarden/attendance-api/pkg/errors"
	"github.com/twistedwarden/attendance-api/pkg/mail"
)

type notificationRepository interface {
	Create(ctx context.Context, n *models.Notification) error
	ListByRecipient(ctx context.Context, userID string, unreadOnly bool, page, size int) ([]models.Notification, int, error)
	MarkRead(ctx context.Context, id, userID string) error
}

type recipientDirectory interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
	ListIDsByRole(ctx context.Context, role models.UserRole) ([]string, error)
}

// NotificationService fans a scan out to the student's parent and to
// every active admin. Delivery is best effort end to end: a scan is
// never failed because a notification could not be stored or mailed.
type NotificationService struct {
	repo   notificationRepository
	users  recipientDirectory
	mailer mail.Mailer
	logger *zap.Logger
}

// NewNotificationService instantiates NotificationService.
func NewNotificationService(repo notificationRepository, users recipientDirectory, mailer mail.Mailer, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{repo: repo, users: users, mailer: mailer, logger: logger}
}

// NotifyScan records and mails a scan notice for every recipient. Each
// recipient is handled independently so one failure never blocks the
// rest.
func (s *NotificationService) NotifyScan(ctx context.Context, student *models.Student, action models.ScanAction, at time.Time) {
	verb := "timed in"
	if action == models.ScanActionTimeOut {
		verb = "timed out"
	}
	message := fmt.Sprintf("%s %s at %s on %s.", student.FullName, verb, at.Format("15:04"), at.Format("January 2, 2006"))
	subject := fmt.Sprintf("%s %s", student.FullName, verb)

	for _, userID := range s.recipients(ctx, student) {
		s.deliver(ctx, userID, subject, message)
	}
}

func (s *NotificationService) recipients(ctx context.Context, student *models.Student) []string {
	var ids []string
	if student.ParentUserID != nil && *student.ParentUserID != "" {
		ids = append(ids, *student.ParentUserID)
	}

	adminIDs, err := s.users.ListIDsByRole(ctx, models.RoleAdmin)
	if err != nil {
		s.logger.Error("failed to list admin recipients", zap.Error(err))
		return ids
	}
	return append(ids, adminIDs...)
}

func (s *NotificationService) deliver(ctx context.Context, userID, subject, message string) {
	n := &models.Notification{
		RecipientUserID: userID,
		Message:         message,
	}
	if err := s.repo.Create(ctx, n); err != nil {
		s.logger.Error("failed to store notification",
			zap.String("user_id", userID),
			zap.Error(err),
		)
	}

	if s.mailer == nil {
		return
	}
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		s.logger.Warn("failed to resolve notification recipient",
			zap.String("user_id", userID),
			zap.Error(err),
		)
		return
	}
	msg := mail.Message{
		ToName:    user.FullName,
		ToAddress: user.Email,
		Subject:   subject,
		Body:      message,
	}
	if err := s.mailer.Send(msg); err != nil {
		s.logger.Warn("failed to send notification email",
			zap.String("user_id", userID),
			zap.Error(err),
		)
	}
}

// ListForUser pages through a user's notifications.
func (s *NotificationService) ListForUser(ctx context.Context, userID string, unreadOnly bool, page, pageSize int) ([]models.Notification, *models.Pagination, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	items, total, err := s.repo.ListByRecipient(ctx, userID, unreadOnly, page, pageSize)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrTransientStore.Code, appErrors.ErrTransientStore.Status, "failed to list notifications")
	}
	return items, &models.Pagination{Page: page, PageSize: pageSize, TotalCount: total}, nil
}

// MarkRead flips one notification to read, scoped to its recipient.
func (s *NotificationService) MarkRead(ctx context.Context, id, userID string) error {
	if err := s.repo.MarkRead(ctx, id, userID); err != nil {
		if errors.Is(err, repository.ErrNoRowsAffected) {
			return appErrors.Clone(appErrors.ErrNotFound, "notification not found")
		}
		return appErrors.Wrap(err, appErrors.ErrTransientStore.Code, appErrors.ErrTransientStore.Status, "failed to mark notification read")
	}
	return nil
}

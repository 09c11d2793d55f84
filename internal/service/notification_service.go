package service

import (
	"context"
	"errors"
	"fmt"
	"mylms_backend/internal/model"
	"mylms_backend/internal/repository"
	"mylms_backend/internal/util"
	"mylms_backend/pkg/events"
	"mylms_backend/pkg/monitoring"
	"strings"
	"time"

	"go.uber.org/zap"
)

// NotificationRequest 通知请求
type NotificationRequest struct {
	UserID  uint
	Title   string
	Message string
	Type    model.NotificationType
}

// Notifier 通知出口。调用方把失败视为尽力而为的副作用
type Notifier interface {
	Notify(ctx context.Context, req NotificationRequest) (*model.Notification, error)
	Dispatch(ctx context.Context, n *model.Notification)
}

// SideEffectResult 记录一次尽力而为副作用的结果，失败不会中断主流程
type SideEffectResult struct {
	Name  string `json:"name"`
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

func sideEffect(name string, err error) SideEffectResult {
	if err != nil {
		return SideEffectResult{Name: name, Error: err.Error()}
	}
	return SideEffectResult{Name: name, OK: true}
}

// notifyBestEffort 发送通知，失败只记录日志并以 SideEffectResult 返回，不影响主流程
func notifyBestEffort(ctx context.Context, notifier Notifier, log *zap.Logger, name string, req NotificationRequest) SideEffectResult {
	_, err := notifier.Notify(ctx, req)
	if err != nil {
		log.Warn("Side effect failed",
			zap.String("side_effect", name),
			zap.Uint("user_id", req.UserID),
			zap.Error(err))
	}
	return sideEffect(name, err)
}

type NotificationService struct {
	Repo           *repository.NotificationRepository
	UserRepo       *repository.UserRepository
	EnrollmentRepo *repository.EnrollmentRepository
	CourseRepo     *repository.CourseRepository
	Publisher      events.Publisher
	MaxAttempts int
	Backoff     time.Duration
	Log         *zap.Logger
}

func NewNotificationService(
	repo *repository.NotificationRepository,
	userRepo *repository.UserRepository,
	enrollmentRepo *repository.EnrollmentRepository,
	courseRepo *repository.CourseRepository,
	publisher events.Publisher,
	maxAttempts int,
	backoff time.Duration,
	log *zap.Logger,
) *NotificationService {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &NotificationService{
		Repo:           repo,
		UserRepo:       userRepo,
		EnrollmentRepo: enrollmentRepo,
		CourseRepo:     courseRepo,
		Publisher:      publisher,
		MaxAttempts:    maxAttempts,
		Backoff:        backoff,
		Log:            log,
	}
}

// retry 按固定间隔重试，ctx 取消时提前返回
func (s *NotificationService) retry(ctx context.Context, op func() error) error {
	var err error
	for attempt := 1; attempt <= s.MaxAttempts; attempt++ {
		if err = op(); err == nil {
			return nil
		}
		if attempt == s.MaxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return errors.Join(err, ctx.Err())
		case <-time.After(s.Backoff * time.Duration(attempt)):
		}
	}
	return err
}

// Notify 持久化通知并投递到消息总线
func (s *NotificationService) Notify(ctx context.Context, req NotificationRequest) (*model.Notification, error) {
	n := &model.Notification{
		UserID:  req.UserID,
		Title:   req.Title,
		Message: req.Message,
		Type:    req.Type,
	}
	if n.Type == "" {
		n.Type = model.NotificationGeneral
	}

	err := s.retry(ctx, func() error {
		n.ID = 0
		return s.Repo.Create(ctx, n)
	})
	if err != nil {
		monitoring.SideEffectFailures.WithLabelValues("notification_store").Inc()
		s.Log.Error("Failed to store notification",
			zap.Uint("user_id", req.UserID),
			zap.String("type", string(req.Type)),
			zap.Error(err))
		return nil, fmt.Errorf("store notification: %w", err)
	}

	s.Dispatch(ctx, n)
	return n, nil
}

// Dispatch 投递已持久化的通知，失败只记录日志
func (s *NotificationService) Dispatch(ctx context.Context, n *model.Notification) {
	err := s.retry(ctx, func() error {
		return s.Publisher.Publish(ctx, events.Event{
			Type:       events.EventNotificationCreated,
			UserID:     n.UserID,
			OccurredAt: n.CreatedAt,
			Payload:    n,
		})
	})
	if err != nil {
		monitoring.SideEffectFailures.WithLabelValues("notification_publish").Inc()
		s.Log.Warn("Failed to publish notification",
			zap.Uint("notification_id", n.ID),
			zap.Uint("user_id", n.UserID),
			zap.Error(err))
	}
}

// PublishEvent 发布领域事件，失败只记录日志
func (s *NotificationService) PublishEvent(ctx context.Context, event events.Event) error {
	err := s.retry(ctx, func() error {
		return s.Publisher.Publish(ctx, event)
	})
	if err != nil {
		monitoring.SideEffectFailures.WithLabelValues("event_publish").Inc()
		s.Log.Warn("Failed to publish event",
			zap.String("type", string(event.Type)),
			zap.Uint("user_id", event.UserID),
			zap.Error(err))
	}
	return err
}

// 广播接收人范围
const (
	RecipientsAll      = "all"
	RecipientsStudents = "students"
	RecipientsTeachers = "teachers"
	RecipientsCourse   = "course"
)

type BroadcastReq struct {
	Title         string                 `json:"title" binding:"required"`
	Message       string                 `json:"message" binding:"required"`
	Type          model.NotificationType `json:"type"`
	RecipientType string                 `json:"recipientType" binding:"required"`
	CourseID      uint                   `json:"courseId"`
}

type BroadcastResult struct {
	RecipientType string `json:"recipientType"`
	CourseID      uint   `json:"courseId,omitempty"`
	Sent          int    `json:"sent"`
}

// Broadcast 管理员群发通知。所有通知在一个事务中落库，之后逐条尽力投递
func (s *NotificationService) Broadcast(ctx context.Context, actor util.Actor, req BroadcastReq) (*BroadcastResult, error) {
	if !actor.IsAdmin() {
		return nil, util.ErrPermissionDenied
	}
	req.Title = strings.TrimSpace(req.Title)
	req.Message = strings.TrimSpace(req.Message)
	if req.Title == "" || req.Message == "" {
		return nil, fmt.Errorf("%w: title and message are required", util.ErrValidation)
	}
	if req.Type == "" {
		req.Type = model.NotificationGeneral
	}
	if !req.Type.Valid() {
		return nil, fmt.Errorf("%w: unknown notification type %q", util.ErrValidation, req.Type)
	}

	recipients, err := s.recipients(ctx, req)
	if err != nil {
		return nil, err
	}

	list := make([]*model.Notification, 0, len(recipients))
	for _, uid := range recipients {
		list = append(list, &model.Notification{UserID: uid, Title: req.Title, Message: req.Message, Type: req.Type})
	}
	if err := s.Repo.CreateAll(ctx, list); err != nil {
		return nil, fmt.Errorf("store broadcast: %w", err)
	}
	for _, n := range list {
		s.Dispatch(ctx, n)
	}

	s.Log.Info("Broadcast notification sent",
		zap.Uint("admin_id", actor.UserID),
		zap.String("title", req.Title),
		zap.String("recipient_type", req.RecipientType),
		zap.Int("recipients", len(list)))

	result := &BroadcastResult{RecipientType: req.RecipientType, Sent: len(list)}
	if req.RecipientType == RecipientsCourse {
		result.CourseID = req.CourseID
	}
	return result, nil
}

func (s *NotificationService) recipients(ctx context.Context, req BroadcastReq) ([]uint, error) {
	switch req.RecipientType {
	case RecipientsAll:
		return s.UserRepo.ListIDs(ctx, "")
	case RecipientsStudents:
		return s.UserRepo.ListIDs(ctx, model.Student)
	case RecipientsTeachers:
		return s.UserRepo.ListIDs(ctx, model.Teacher)
	case RecipientsCourse:
		if req.CourseID == 0 {
			return nil, fmt.Errorf("%w: courseId is required for course notifications", util.ErrValidation)
		}
		if _, err := s.CourseRepo.FindByID(ctx, req.CourseID); err != nil {
			return nil, mapNotFound(err, util.ErrCourseNotFound)
		}
		// 只发给在读学生，已退课和已结课的不再打扰
		return s.EnrollmentRepo.ActiveStudentIDs(ctx, req.CourseID)
	default:
		return nil, fmt.Errorf("%w: invalid recipient type %q", util.ErrValidation, req.RecipientType)
	}
}

func (s *NotificationService) List(ctx context.Context, userID uint, unreadOnly bool, page, limit int) ([]model.Notification, int64, error) {
	return s.Repo.ListByUser(ctx, userID, unreadOnly, page, limit)
}

func (s *NotificationService) MarkRead(ctx context.Context, userID, id uint) error {
	ok, err := s.Repo.MarkRead(ctx, id, userID)
	if err != nil {
		return err
	}
	if !ok {
		return util.ErrNotificationNotFound
	}
	return nil
}

func (s *NotificationService) MarkAllRead(ctx context.Context, userID uint) (int64, error) {
	return s.Repo.MarkAllRead(ctx, userID)
}

func (s *NotificationService) UnreadCount(ctx context.Context, userID uint) (int64, error) {
	return s.Repo.UnreadCount(ctx, userID)
}

package service

import (
	"context"
	"fmt"
	"mylms_backend/internal/model"
	"mylms_backend/internal/repository"
	"mylms_backend/internal/util"
	"mylms_backend/pkg/cache"
	"mylms_backend/pkg/events"
	"mylms_backend/pkg/monitoring"
	"mylms_backend/pkg/tracing"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	IssuePathAuto   = "auto"
	IssuePathManual = "manual"
)

type CertificateService struct {
	DB               *gorm.DB
	CertRepo         *repository.CertificateRepository
	EnrollmentRepo   *repository.EnrollmentRepository
	CourseRepo       *repository.CourseRepository
	ProgressRepo     *repository.ProgressRepository
	UserRepo         *repository.UserRepository
	NotificationRepo *repository.NotificationRepository
	Notifications    *NotificationService
	Storage          *StorageService
	Cache            *cache.CertificateCache
	Log              *zap.Logger
}

func NewCertificateService(
	db *gorm.DB,
	certRepo *repository.CertificateRepository,
	enrollmentRepo *repository.EnrollmentRepository,
	courseRepo *repository.CourseRepository,
	progressRepo *repository.ProgressRepository,
	userRepo *repository.UserRepository,
	notificationRepo *repository.NotificationRepository,
	notifications *NotificationService,
	storage *StorageService,
	certCache *cache.CertificateCache,
	log *zap.Logger,
) *CertificateService {
	return &CertificateService{
		DB:               db,
		CertRepo:         certRepo,
		EnrollmentRepo:   enrollmentRepo,
		CourseRepo:       courseRepo,
		ProgressRepo:     progressRepo,
		UserRepo:         userRepo,
		NotificationRepo: notificationRepo,
		Notifications:    notifications,
		Storage:          storage,
		Cache:            certCache,
		Log:              log,
	}
}

// CompletionOutcome 一次结课处理的结果
type CompletionOutcome struct {
	Certificate *model.Certificate
	// Issued 为 true 表示本次调用创建了证书，重复调用为 false
	Issued      bool
	SideEffects []SideEffectResult
}

// completeCourse 在同一事务中创建证书、将选课状态置为 completed 并写入通知。
// 证书唯一索引保证并发调用只有一方真正签发，只有签发方会迁移状态和通知学生
func (s *CertificateService) completeCourse(ctx context.Context, enrollment *model.Enrollment, course *model.Course, path string) (*CompletionOutcome, error) {
	ctx, span := tracing.StartSpan(ctx, "CertificateService.completeCourse",
		attribute.Int("user_id", int(enrollment.UserID)),
		attribute.Int("course_id", int(course.ID)),
		attribute.String("path", path))
	defer span.End()

	cert := &model.Certificate{
		UserID:   enrollment.UserID,
		CourseID: course.ID,
		Code:     model.NewCertificateCode(enrollment.UserID, course.ID),
		IssuedAt: time.Now(),
	}
	var notification *model.Notification
	issued := false

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		created, err := s.CertRepo.WithTx(tx).CreateIfAbsent(ctx, cert)
		if err != nil {
			return fmt.Errorf("create certificate: %w", err)
		}

		enrollments := s.EnrollmentRepo.WithTx(tx)
		if !created {
			// 已有证书：只保证“有证书即已完成”，不重复通知
			if _, err := enrollments.TransitionStatus(ctx, enrollment.ID, model.EnrollmentEnrolled, model.EnrollmentCompleted); err != nil {
				return fmt.Errorf("update enrollment: %w", err)
			}
			existing, err := s.CertRepo.WithTx(tx).Find(ctx, enrollment.UserID, course.ID)
			if err != nil {
				return fmt.Errorf("load certificate: %w", err)
			}
			cert = existing
			return nil
		}

		if err := enrollments.UpdateStatus(ctx, enrollment.ID, model.EnrollmentCompleted); err != nil {
			return fmt.Errorf("update enrollment: %w", err)
		}
		notification = &model.Notification{
			UserID:  enrollment.UserID,
			Title:   fmt.Sprintf("Certificate Issued: %s", course.Title),
			Message: fmt.Sprintf("Congratulations! You have been issued a certificate for completing %s.", course.Title),
			Type:    model.NotificationCertificateIssued,
		}
		if err := s.NotificationRepo.WithTx(tx).Create(ctx, notification); err != nil {
			return fmt.Errorf("create notification: %w", err)
		}
		issued = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	enrollment.Status = model.EnrollmentCompleted
	outcome := &CompletionOutcome{Certificate: cert, Issued: issued}
	if !issued {
		return outcome, nil
	}

	monitoring.CertificatesIssued.WithLabelValues(path).Inc()
	s.Log.Info("Certificate issued",
		zap.Uint("user_id", cert.UserID),
		zap.Uint("course_id", cert.CourseID),
		zap.String("code", cert.Code),
		zap.String("path", path))

	s.Notifications.Dispatch(ctx, notification)
	outcome.SideEffects = append(outcome.SideEffects,
		sideEffect("store_document", s.storeDocument(ctx, cert, course)),
		sideEffect("publish_certificate_issued", s.Notifications.PublishEvent(ctx, events.Event{
			Type:    events.EventCertificateIssued,
			UserID:  cert.UserID,
			Payload: cert,
		})),
		sideEffect("publish_course_completed", s.Notifications.PublishEvent(ctx, events.Event{
			Type:    events.EventCourseCompleted,
			UserID:  cert.UserID,
			Payload: map[string]interface{}{"courseId": course.ID, "path": path},
		})),
	)
	return outcome, nil
}

// storeDocument 渲染证书文本并上传，失败不影响已签发的证书
func (s *CertificateService) storeDocument(ctx context.Context, cert *model.Certificate, course *model.Course) error {
	if s.Storage == nil {
		return nil
	}
	name := fmt.Sprintf("user #%d", cert.UserID)
	if user, err := s.UserRepo.FindByID(ctx, cert.UserID); err == nil {
		name = user.FullName()
	}

	doc := RenderCertificate(cert, name, course.Title)
	url, err := s.Storage.Upload(ctx, CertificateObjectName(cert.Code), strings.NewReader(doc), int64(len(doc)), util.MimeText)
	if err == nil {
		err = s.CertRepo.UpdateDocumentURL(ctx, cert.ID, url)
	}
	if err != nil {
		monitoring.SideEffectFailures.WithLabelValues("certificate_document").Inc()
		s.Log.Warn("Failed to store certificate document",
			zap.Uint("user_id", cert.UserID),
			zap.Uint("course_id", cert.CourseID),
			zap.Error(err))
		return err
	}
	cert.DocumentURL = url
	return nil
}

// RenderCertificate 纯文本证书
func RenderCertificate(cert *model.Certificate, studentName, courseTitle string) string {
	var b strings.Builder
	b.WriteString("CERTIFICATE OF COMPLETION\n\n")
	fmt.Fprintf(&b, "This certifies that %s\n", studentName)
	fmt.Fprintf(&b, "has successfully completed the course \"%s\".\n\n", courseTitle)
	fmt.Fprintf(&b, "Certificate code: %s\n", cert.Code)
	fmt.Fprintf(&b, "Issued on: %s\n", cert.IssuedAt.Format(util.DateFormat))
	fmt.Fprintf(&b, "Verify at: /api/public/certificates/verify/%s\n", cert.Code)
	return b.String()
}

// LessonsComplete 课程所有课时均为 completed。没有课时的课程视为满足
func (s *CertificateService) LessonsComplete(ctx context.Context, userID, courseID uint) (bool, error) {
	lessons, err := s.CourseRepo.ListLessons(ctx, courseID)
	if err != nil {
		return false, err
	}
	statuses, err := s.ProgressRepo.StatusesForCourse(ctx, userID, courseID)
	if err != nil {
		return false, err
	}
	for _, l := range lessons {
		if p, ok := statuses[l.ID]; !ok || p.Status != model.ProgressCompleted {
			return false, nil
		}
	}
	return true, nil
}

type IssueCertificateReq struct {
	CourseID  uint `json:"courseId" binding:"required"`
	StudentID uint `json:"studentId" binding:"required"`
}

// IssueCertificate 讲师或管理员手动签发证书
func (s *CertificateService) IssueCertificate(ctx context.Context, actor util.Actor, courseID, studentID uint) (*model.Certificate, error) {
	if !actor.IsTeacher() && !actor.IsAdmin() {
		return nil, util.ErrPermissionDenied
	}

	course, err := s.CourseRepo.FindByID(ctx, courseID)
	if err != nil {
		return nil, mapNotFound(err, util.ErrCourseNotFound)
	}
	if !canManageCourse(actor, course) {
		return nil, util.ErrPermissionDenied
	}

	student, err := s.UserRepo.FindByID(ctx, studentID)
	if err != nil {
		return nil, mapNotFound(err, util.ErrStudentNotFound)
	}
	if !student.IsStudent() {
		return nil, util.ErrStudentNotFound
	}

	enrollment, err := s.EnrollmentRepo.Find(ctx, studentID, courseID)
	if err != nil {
		return nil, mapNotFound(err, util.ErrEnrollmentNotFound)
	}

	exists, err := s.CertRepo.Exists(ctx, studentID, courseID)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, util.ErrCertificateExists
	}

	if !actor.IsAdmin() {
		done, err := s.LessonsComplete(ctx, studentID, courseID)
		if err != nil {
			return nil, err
		}
		if !done {
			return nil, util.ErrCourseIncomplete
		}
	}

	outcome, err := s.completeCourse(ctx, enrollment, course, IssuePathManual)
	if err != nil {
		return nil, err
	}
	if !outcome.Issued {
		// 与自动签发并发时由对方完成
		return nil, util.ErrCertificateExists
	}
	return outcome.Certificate, nil
}

// VerifyCertificate 公开校验证书编号
func (s *CertificateService) VerifyCertificate(ctx context.Context, code string) (*model.Certificate, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, util.ErrCertificateNotFound
	}
	if cert, ok := s.Cache.Get(ctx, code); ok {
		return cert, nil
	}

	cert, err := s.CertRepo.FindByCode(ctx, code)
	if err != nil {
		return nil, mapNotFound(err, util.ErrCertificateNotFound)
	}
	if err := s.Cache.Set(ctx, cert); err != nil {
		s.Log.Warn("Failed to cache certificate", zap.String("code", code), zap.Error(err))
	}
	return cert, nil
}

// List 管理员看全部，讲师看自己课程，学生看自己的证书
func (s *CertificateService) List(ctx context.Context, actor util.Actor) ([]model.Certificate, error) {
	switch {
	case actor.IsAdmin():
		return s.CertRepo.ListAll(ctx)
	case actor.IsTeacher():
		return s.CertRepo.ListByInstructor(ctx, actor.UserID)
	default:
		return s.CertRepo.ListByUser(ctx, actor.UserID)
	}
}

func (s *CertificateService) Get(ctx context.Context, actor util.Actor, id uint) (*model.Certificate, error) {
	cert, err := s.CertRepo.FindByID(ctx, id)
	if err != nil {
		return nil, mapNotFound(err, util.ErrCertificateNotFound)
	}
	if actor.IsAdmin() || cert.UserID == actor.UserID {
		return cert, nil
	}
	if cert.Course != nil && canManageCourse(actor, cert.Course) {
		return cert, nil
	}
	// 不暴露他人证书是否存在
	return nil, util.ErrCertificateNotFound
}

package service

import (
	"context"
	"fmt"
	"mylms_backend/internal/model"
	"mylms_backend/internal/repository"
	"mylms_backend/internal/util"

	"go.uber.org/zap"
)

type EnrollmentService struct {
	EnrollmentRepo *repository.EnrollmentRepository
	CourseRepo     *repository.CourseRepository
	CertRepo       *repository.CertificateRepository
	Notifier       Notifier
	Log            *zap.Logger
}

func NewEnrollmentService(enrollmentRepo *repository.EnrollmentRepository, courseRepo *repository.CourseRepository, certRepo *repository.CertificateRepository, notifier Notifier, log *zap.Logger) *EnrollmentService {
	return &EnrollmentService{
		EnrollmentRepo: enrollmentRepo,
		CourseRepo:     courseRepo,
		CertRepo:       certRepo,
		Notifier:       notifier,
		Log:            log,
	}
}

type EnrollReq struct {
	CourseID uint `json:"courseId" binding:"required"`
}

type SetEnrollmentStatusReq struct {
	Status model.EnrollmentStatus `json:"status" binding:"required"`
}

// Enroll 学生选课。已退课的学生可以重新选课
func (s *EnrollmentService) Enroll(ctx context.Context, actor util.Actor, courseID uint) (*model.Enrollment, error) {
	if !actor.IsStudent() {
		return nil, util.ErrPermissionDenied
	}
	course, err := s.CourseRepo.FindByID(ctx, courseID)
	if err != nil {
		return nil, mapNotFound(err, util.ErrCourseNotFound)
	}

	enrollment := &model.Enrollment{UserID: actor.UserID, CourseID: courseID, Status: model.EnrollmentEnrolled}
	created, err := s.EnrollmentRepo.CreateIfAbsent(ctx, enrollment)
	if err != nil {
		return nil, err
	}
	if !created {
		existing, err := s.EnrollmentRepo.Find(ctx, actor.UserID, courseID)
		if err != nil {
			return nil, err
		}
		if existing.Status != model.EnrollmentDropped {
			return nil, util.ErrAlreadyEnrolled
		}
		ok, err := s.EnrollmentRepo.TransitionStatus(ctx, existing.ID, model.EnrollmentDropped, model.EnrollmentEnrolled)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, util.ErrAlreadyEnrolled
		}
		existing.Status = model.EnrollmentEnrolled
		enrollment = existing
	}

	notifyBestEffort(ctx, s.Notifier, s.Log, "notify_enrollment", NotificationRequest{
		UserID:  actor.UserID,
		Title:   fmt.Sprintf("Enrolled: %s", course.Title),
		Message: fmt.Sprintf("You have successfully enrolled in %s.", course.Title),
		Type:    model.NotificationEnrollment,
	})
	return enrollment, nil
}

func (s *EnrollmentService) findEnrollment(ctx context.Context, id uint) (*model.Enrollment, error) {
	e, err := s.EnrollmentRepo.FindByID(ctx, id)
	if err != nil {
		return nil, mapNotFound(err, util.ErrEnrollmentNotFound)
	}
	return e, nil
}

// Drop 学生本人或管理员退课，已完成的课程不能退
func (s *EnrollmentService) Drop(ctx context.Context, actor util.Actor, id uint) (*model.Enrollment, error) {
	e, err := s.findEnrollment(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin() && e.UserID != actor.UserID {
		return nil, util.ErrPermissionDenied
	}

	ok, err := s.EnrollmentRepo.TransitionStatus(ctx, e.ID, model.EnrollmentEnrolled, model.EnrollmentDropped)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: cannot drop an enrollment in status %q", util.ErrInvalidStatus, e.Status)
	}
	e.Status = model.EnrollmentDropped
	return e, nil
}

// SetStatus 讲师或管理员直接修改选课状态
func (s *EnrollmentService) SetStatus(ctx context.Context, actor util.Actor, id uint, status model.EnrollmentStatus) (*model.Enrollment, error) {
	if !status.Valid() {
		return nil, util.ErrInvalidStatus
	}
	e, err := s.findEnrollment(ctx, id)
	if err != nil {
		return nil, err
	}
	course, err := s.CourseRepo.FindByID(ctx, e.CourseID)
	if err != nil {
		return nil, mapNotFound(err, util.ErrCourseNotFound)
	}
	if !canManageCourse(actor, course) {
		return nil, util.ErrPermissionDenied
	}
	if e.Status == status {
		return e, nil
	}

	// 已有证书的选课必须保持 completed
	if e.Status == model.EnrollmentCompleted {
		exists, err := s.CertRepo.Exists(ctx, e.UserID, e.CourseID)
		if err != nil {
			return nil, err
		}
		if exists {
			return nil, fmt.Errorf("%w: a certificate has been issued for this enrollment", util.ErrInvalidStatus)
		}
	}

	if err := s.EnrollmentRepo.UpdateStatus(ctx, e.ID, status); err != nil {
		return nil, err
	}
	e.Status = status

	if status == model.EnrollmentCompleted {
		notifyBestEffort(ctx, s.Notifier, s.Log, "notify_course_completed", NotificationRequest{
			UserID:  e.UserID,
			Title:   fmt.Sprintf("Course Completed: %s", course.Title),
			Message: fmt.Sprintf("Your enrollment in %s has been marked as completed.", course.Title),
			Type:    model.NotificationCourseCompleted,
		})
	}
	return e, nil
}

func (s *EnrollmentService) ListMine(ctx context.Context, actor util.Actor) ([]model.Enrollment, error) {
	return s.EnrollmentRepo.ListByUser(ctx, actor.UserID)
}

func (s *EnrollmentService) ListForCourse(ctx context.Context, actor util.Actor, courseID uint) ([]model.Enrollment, error) {
	course, err := s.CourseRepo.FindByID(ctx, courseID)
	if err != nil {
		return nil, mapNotFound(err, util.ErrCourseNotFound)
	}
	if !canManageCourse(actor, course) {
		return nil, util.ErrPermissionDenied
	}
	return s.EnrollmentRepo.ListByCourse(ctx, courseID)
}

package service

import (
	"context"
	"fmt"
	"mylms_backend/internal/model"
	"mylms_backend/internal/repository"
	"mylms_backend/internal/util"
	"mylms_backend/pkg/cache"
	"strings"
	"time"

	"go.uber.org/zap"
)

type CourseService struct {
	CourseRepo     *repository.CourseRepository
	EnrollmentRepo *repository.EnrollmentRepository
	Notifier       Notifier
	CertCache      *cache.CertificateCache
	Log            *zap.Logger
}

func NewCourseService(courseRepo *repository.CourseRepository, enrollmentRepo *repository.EnrollmentRepository, notifier Notifier, certCache *cache.CertificateCache, log *zap.Logger) *CourseService {
	return &CourseService{
		CourseRepo:     courseRepo,
		EnrollmentRepo: enrollmentRepo,
		Notifier:       notifier,
		CertCache:      certCache,
		Log:            log,
	}
}

type CourseReq struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	StartDate   *string `json:"startDate"`
	EndDate     *string `json:"endDate"`
}

type LessonReq struct {
	Title    *string `json:"title"`
	Content  *string `json:"content"`
	VideoURL *string `json:"videoUrl"`
	Order    *int    `json:"order"`
}

func parseDate(s string) (time.Time, error) {
	t, err := time.Parse(util.DateFormat, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: invalid date %q", util.ErrValidation, s)
	}
	return t, nil
}

func applyCourseReq(course *model.Course, req CourseReq) error {
	if req.Title != nil {
		course.Title = strings.TrimSpace(*req.Title)
	}
	if req.Description != nil {
		course.Description = *req.Description
	}
	if req.StartDate != nil {
		t, err := parseDate(*req.StartDate)
		if err != nil {
			return err
		}
		course.StartDate = t
	}
	if req.EndDate != nil {
		t, err := parseDate(*req.EndDate)
		if err != nil {
			return err
		}
		course.EndDate = t
	}
	if course.Title == "" {
		return fmt.Errorf("%w: title is required", util.ErrValidation)
	}
	if !course.StartDate.IsZero() && !course.EndDate.IsZero() && course.EndDate.Before(course.StartDate) {
		return fmt.Errorf("%w: end date is before start date", util.ErrValidation)
	}
	return nil
}

func (s *CourseService) CreateCourse(ctx context.Context, actor util.Actor, req CourseReq) (*model.Course, error) {
	if !actor.IsTeacher() && !actor.IsAdmin() {
		return nil, util.ErrPermissionDenied
	}
	course := &model.Course{InstructorID: actor.UserID}
	if err := applyCourseReq(course, req); err != nil {
		return nil, err
	}
	if err := s.CourseRepo.Create(ctx, course); err != nil {
		return nil, err
	}
	return course, nil
}

func (s *CourseService) findCourse(ctx context.Context, id uint) (*model.Course, error) {
	course, err := s.CourseRepo.FindByID(ctx, id)
	if err != nil {
		return nil, mapNotFound(err, util.ErrCourseNotFound)
	}
	return course, nil
}

// managedCourse 加载课程并校验操作者是否有管理权限
func (s *CourseService) managedCourse(ctx context.Context, actor util.Actor, id uint) (*model.Course, error) {
	course, err := s.findCourse(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canManageCourse(actor, course) {
		return nil, util.ErrPermissionDenied
	}
	return course, nil
}

// GetCourse 课程基本信息对所有登录用户可见，便于选课
func (s *CourseService) GetCourse(ctx context.Context, id uint) (*model.Course, error) {
	return s.findCourse(ctx, id)
}

func (s *CourseService) ListCourses(ctx context.Context, actor util.Actor) ([]model.Course, error) {
	switch {
	case actor.IsAdmin():
		return s.CourseRepo.ListAll(ctx)
	case actor.IsTeacher():
		return s.CourseRepo.ListByInstructor(ctx, actor.UserID)
	default:
		return s.CourseRepo.ListByStudent(ctx, actor.UserID)
	}
}

// ListCatalog 全部课程，供学生选课浏览
func (s *CourseService) ListCatalog(ctx context.Context) ([]model.Course, error) {
	return s.CourseRepo.ListAll(ctx)
}

func (s *CourseService) UpdateCourse(ctx context.Context, actor util.Actor, id uint, req CourseReq) (*model.Course, error) {
	course, err := s.managedCourse(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if err := applyCourseReq(course, req); err != nil {
		return nil, err
	}
	if err := s.CourseRepo.Update(ctx, course); err != nil {
		return nil, err
	}
	return course, nil
}

func (s *CourseService) DeleteCourse(ctx context.Context, actor util.Actor, id uint) error {
	if _, err := s.managedCourse(ctx, actor, id); err != nil {
		return err
	}
	codes, err := s.CourseRepo.DeleteCascade(ctx, id)
	if err != nil {
		return err
	}
	if err := s.CertCache.Invalidate(ctx, codes...); err != nil {
		s.Log.Warn("Failed to invalidate certificate cache", zap.Uint("course_id", id), zap.Error(err))
	}
	return nil
}

func (s *CourseService) CreateLesson(ctx context.Context, actor util.Actor, courseID uint, req LessonReq) (*model.Lesson, error) {
	course, err := s.managedCourse(ctx, actor, courseID)
	if err != nil {
		return nil, err
	}

	lesson := &model.Lesson{CourseID: courseID}
	applyLessonReq(lesson, req)
	if lesson.Title == "" {
		return nil, fmt.Errorf("%w: title is required", util.ErrValidation)
	}
	if err := s.CourseRepo.CreateLesson(ctx, lesson); err != nil {
		return nil, err
	}

	s.notifyLessonAdded(ctx, course, lesson)
	return lesson, nil
}

func (s *CourseService) notifyLessonAdded(ctx context.Context, course *model.Course, lesson *model.Lesson) {
	studentIDs, err := s.EnrollmentRepo.ActiveStudentIDs(ctx, course.ID)
	if err != nil {
		s.Log.Warn("Failed to load enrolled students", zap.Uint("course_id", course.ID), zap.Error(err))
		return
	}
	for _, uid := range studentIDs {
		notifyBestEffort(ctx, s.Notifier, s.Log, "notify_lesson_added", NotificationRequest{
			UserID:  uid,
			Title:   fmt.Sprintf("New Lesson: %s", lesson.Title),
			Message: fmt.Sprintf("A new lesson \"%s\" has been added to %s.", lesson.Title, course.Title),
			Type:    model.NotificationLessonAdded,
		})
	}
}

func applyLessonReq(lesson *model.Lesson, req LessonReq) {
	if req.Title != nil {
		lesson.Title = strings.TrimSpace(*req.Title)
	}
	if req.Content != nil {
		lesson.Content = *req.Content
	}
	if req.VideoURL != nil {
		lesson.VideoURL = strings.TrimSpace(*req.VideoURL)
	}
	if req.Order != nil {
		lesson.Order = *req.Order
	}
}

func (s *CourseService) findLesson(ctx context.Context, id uint) (*model.Lesson, *model.Course, error) {
	lesson, err := s.CourseRepo.FindLessonByID(ctx, id)
	if err != nil {
		return nil, nil, mapNotFound(err, util.ErrLessonNotFound)
	}
	course, err := s.findCourse(ctx, lesson.CourseID)
	if err != nil {
		return nil, nil, err
	}
	return lesson, course, nil
}

func (s *CourseService) GetLesson(ctx context.Context, actor util.Actor, id uint) (*model.Lesson, error) {
	lesson, course, err := s.findLesson(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := ensureCanView(ctx, s.EnrollmentRepo, actor, course); err != nil {
		return nil, err
	}
	return lesson, nil
}

func (s *CourseService) ListLessons(ctx context.Context, actor util.Actor, courseID uint) ([]model.Lesson, error) {
	course, err := s.findCourse(ctx, courseID)
	if err != nil {
		return nil, err
	}
	if err := ensureCanView(ctx, s.EnrollmentRepo, actor, course); err != nil {
		return nil, err
	}
	return s.CourseRepo.ListLessons(ctx, courseID)
}

func (s *CourseService) UpdateLesson(ctx context.Context, actor util.Actor, id uint, req LessonReq) (*model.Lesson, error) {
	lesson, course, err := s.findLesson(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canManageCourse(actor, course) {
		return nil, util.ErrPermissionDenied
	}
	applyLessonReq(lesson, req)
	if lesson.Title == "" {
		return nil, fmt.Errorf("%w: title is required", util.ErrValidation)
	}
	if err := s.CourseRepo.UpdateLesson(ctx, lesson); err != nil {
		return nil, err
	}
	return lesson, nil
}

func (s *CourseService) DeleteLesson(ctx context.Context, actor util.Actor, id uint) error {
	_, course, err := s.findLesson(ctx, id)
	if err != nil {
		return err
	}
	if !canManageCourse(actor, course) {
		return util.ErrPermissionDenied
	}
	return s.CourseRepo.DeleteLesson(ctx, id)
}

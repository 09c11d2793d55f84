package service

import (
	"context"
	"errors"
	"math"
	"mylms_backend/internal/model"
	"mylms_backend/internal/repository"
	"mylms_backend/internal/util"
	"mylms_backend/pkg/monitoring"
	"mylms_backend/pkg/tracing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type LessonProgressItem struct {
	LessonID     uint                 `json:"lessonId"`
	Title        string               `json:"title"`
	Order        int                  `json:"order"`
	Status       model.ProgressStatus `json:"status"`
	LastAccessed *time.Time           `json:"lastAccessed,omitempty"`
}

type QuizProgressItem struct {
	QuizID        uint    `json:"quizId"`
	Title         string  `json:"title"`
	TotalMarks    int     `json:"totalMarks"`
	QuestionCount int64   `json:"questionCount"`
	Answered      int64   `json:"answered"`
	Status        string  `json:"status"`
	Score         float64 `json:"score"`
	Percentage    float64 `json:"percentage"`
}

const (
	QuizNotStarted = "not_started"
	QuizInProgress = "in_progress"
	QuizCompleted  = "completed"
)

// CompletionReport 学生在一门课程中的完成情况
type CompletionReport struct {
	CourseID                   uint                   `json:"courseId"`
	CourseTitle                string                 `json:"courseTitle"`
	UserID                     uint                   `json:"userId"`
	EnrollmentStatus           model.EnrollmentStatus `json:"enrollmentStatus,omitempty"`
	TotalLessons               int                    `json:"totalLessons"`
	CompletedLessons           int                    `json:"completedLessons"`
	InProgressLessons          int                    `json:"inProgressLessons"`
	NotStartedLessons          int                    `json:"notStartedLessons"`
	LessonCompletionPercentage float64                `json:"lessonCompletionPercentage"`
	TotalQuizzes               int                    `json:"totalQuizzes"`
	CompletedQuizzes           int                    `json:"completedQuizzes"`
	OverallPercentage          float64                `json:"overallPercentage"`
	IsComplete                 bool                   `json:"isComplete"`
	Lessons                    []LessonProgressItem   `json:"lessons"`
	Quizzes                    []QuizProgressItem     `json:"quizzes"`
	Certificate                *model.Certificate     `json:"certificate,omitempty"`
	SideEffects                []SideEffectResult     `json:"sideEffects,omitempty"`
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// percentage 分母为 0 时报告 0；结课判定按计数比较，不依赖该指标
func percentage(part, total int) float64 {
	if total == 0 {
		return 0
	}
	return round2(float64(part) / float64(total) * 100)
}

// ProgressService 负责课时进度与课程完成判定
type ProgressService struct {
	CourseRepo     *repository.CourseRepository
	QuizRepo       *repository.QuizRepository
	ProgressRepo   *repository.ProgressRepository
	EnrollmentRepo *repository.EnrollmentRepository
	CertRepo       *repository.CertificateRepository
	Certificates   *CertificateService
	Log            *zap.Logger
}

func NewProgressService(
	courseRepo *repository.CourseRepository,
	quizRepo *repository.QuizRepository,
	progressRepo *repository.ProgressRepository,
	enrollmentRepo *repository.EnrollmentRepository,
	certRepo *repository.CertificateRepository,
	certificates *CertificateService,
	log *zap.Logger,
) *ProgressService {
	return &ProgressService{
		CourseRepo:     courseRepo,
		QuizRepo:       quizRepo,
		ProgressRepo:   progressRepo,
		EnrollmentRepo: enrollmentRepo,
		CertRepo:       certRepo,
		Certificates:   certificates,
		Log:            log,
	}
}

// BuildReport 只读计算完成情况，没有副作用
func (s *ProgressService) BuildReport(ctx context.Context, userID uint, course *model.Course) (*CompletionReport, error) {
	report := &CompletionReport{
		CourseID:    course.ID,
		CourseTitle: course.Title,
		UserID:      userID,
		Lessons:     []LessonProgressItem{},
		Quizzes:     []QuizProgressItem{},
	}

	lessons, err := s.CourseRepo.ListLessons(ctx, course.ID)
	if err != nil {
		return nil, err
	}
	statuses, err := s.ProgressRepo.StatusesForCourse(ctx, userID, course.ID)
	if err != nil {
		return nil, err
	}

	report.TotalLessons = len(lessons)
	for _, l := range lessons {
		item := LessonProgressItem{LessonID: l.ID, Title: l.Title, Order: l.Order, Status: model.ProgressNotStarted}
		if p, ok := statuses[l.ID]; ok {
			item.Status = p.Status
			accessed := p.LastAccessed
			item.LastAccessed = &accessed
		}
		switch item.Status {
		case model.ProgressCompleted:
			report.CompletedLessons++
		case model.ProgressInProgress:
			report.InProgressLessons++
		default:
			report.NotStartedLessons++
		}
		report.Lessons = append(report.Lessons, item)
	}
	report.LessonCompletionPercentage = percentage(report.CompletedLessons, report.TotalLessons)

	quizzes, err := s.QuizRepo.ListByCourse(ctx, course.ID)
	if err != nil {
		return nil, err
	}
	report.TotalQuizzes = len(quizzes)
	for _, q := range quizzes {
		item, err := s.quizProgress(ctx, userID, &q)
		if err != nil {
			return nil, err
		}
		if item.Status == QuizCompleted {
			report.CompletedQuizzes++
		}
		report.Quizzes = append(report.Quizzes, *item)
	}

	report.OverallPercentage = percentage(report.CompletedLessons+report.CompletedQuizzes, report.TotalLessons+report.TotalQuizzes)
	// 没有课时的课程，课时条件视为已满足
	report.IsComplete = report.CompletedLessons == report.TotalLessons && report.CompletedQuizzes == report.TotalQuizzes
	return report, nil
}

func (s *ProgressService) quizProgress(ctx context.Context, userID uint, quiz *model.Quiz) (*QuizProgressItem, error) {
	count, err := s.QuizRepo.CountQuestions(ctx, quiz.ID)
	if err != nil {
		return nil, err
	}
	answered, err := s.QuizRepo.CountAnswered(ctx, quiz.ID, userID)
	if err != nil {
		return nil, err
	}
	score, err := s.QuizRepo.SumMarks(ctx, quiz.ID, userID)
	if err != nil {
		return nil, err
	}

	item := &QuizProgressItem{
		QuizID:        quiz.ID,
		Title:         quiz.Title,
		TotalMarks:    quiz.TotalMarks,
		QuestionCount: count,
		Answered:      answered,
		Score:         round2(score),
	}
	switch {
	case answered >= count:
		// 没有题目的测验不阻塞结课
		item.Status = QuizCompleted
	case answered > 0:
		item.Status = QuizInProgress
	default:
		item.Status = QuizNotStarted
	}
	if quiz.TotalMarks > 0 {
		item.Percentage = round2(score / float64(quiz.TotalMarks) * 100)
	}
	return item, nil
}

// EvaluateCourseCompletion 重新计算完成情况，首次达到完成时签发证书。
// 签发失败记录在 SideEffects 中，不向调用方返回错误，下次评估会重试
func (s *ProgressService) EvaluateCourseCompletion(ctx context.Context, userID, courseID uint) (*CompletionReport, error) {
	ctx, span := tracing.StartSpan(ctx, "ProgressService.EvaluateCourseCompletion",
		attribute.Int("user_id", int(userID)),
		attribute.Int("course_id", int(courseID)))
	defer span.End()

	course, err := s.CourseRepo.FindByID(ctx, courseID)
	if err != nil {
		return nil, mapNotFound(err, util.ErrCourseNotFound)
	}
	report, err := s.BuildReport(ctx, userID, course)
	if err != nil {
		return nil, err
	}

	enrollment, err := s.EnrollmentRepo.Find(ctx, userID, courseID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return report, nil
		}
		return nil, err
	}
	report.EnrollmentStatus = enrollment.Status

	// 只有 enrolled -> completed 由这里驱动，completed 再次评估是空操作
	if report.IsComplete && enrollment.Status == model.EnrollmentEnrolled {
		outcome, err := s.Certificates.completeCourse(ctx, enrollment, course, IssuePathAuto)
		if err != nil {
			monitoring.SideEffectFailures.WithLabelValues("course_completion").Inc()
			s.Log.Error("Failed to complete course",
				zap.Uint("user_id", userID),
				zap.Uint("course_id", courseID),
				zap.Error(err))
			report.SideEffects = append(report.SideEffects, sideEffect("complete_course", err))
		} else {
			report.EnrollmentStatus = enrollment.Status
			report.Certificate = outcome.Certificate
			report.SideEffects = append(report.SideEffects, outcome.SideEffects...)
		}
	}

	if report.Certificate == nil && enrollment.Status == model.EnrollmentCompleted {
		if cert, err := s.CertRepo.Find(ctx, userID, courseID); err == nil {
			report.Certificate = cert
		}
	}
	return report, nil
}

// requireParticipant 学生必须已选课且未退课
func (s *ProgressService) requireParticipant(ctx context.Context, userID, courseID uint) (*model.Enrollment, error) {
	enrollment, err := s.EnrollmentRepo.Find(ctx, userID, courseID)
	if err != nil {
		return nil, mapNotFound(err, util.ErrNotEnrolled)
	}
	if enrollment.Status == model.EnrollmentDropped {
		return nil, util.ErrNotEnrolled
	}
	return enrollment, nil
}

// GetCourseProgress 学生查看自己的课程进度，会触发完成评估
func (s *ProgressService) GetCourseProgress(ctx context.Context, actor util.Actor, courseID uint) (*CompletionReport, error) {
	if _, err := s.CourseRepo.FindByID(ctx, courseID); err != nil {
		return nil, mapNotFound(err, util.ErrCourseNotFound)
	}
	if _, err := s.requireParticipant(ctx, actor.UserID, courseID); err != nil {
		return nil, err
	}
	return s.EvaluateCourseCompletion(ctx, actor.UserID, courseID)
}

// GetStudentProgress 讲师或管理员查看某个学生的进度，只读
func (s *ProgressService) GetStudentProgress(ctx context.Context, actor util.Actor, courseID, studentID uint) (*CompletionReport, error) {
	course, err := s.CourseRepo.FindByID(ctx, courseID)
	if err != nil {
		return nil, mapNotFound(err, util.ErrCourseNotFound)
	}
	if !canManageCourse(actor, course) {
		return nil, util.ErrPermissionDenied
	}
	enrollment, err := s.EnrollmentRepo.Find(ctx, studentID, courseID)
	if err != nil {
		return nil, mapNotFound(err, util.ErrEnrollmentNotFound)
	}

	report, err := s.BuildReport(ctx, studentID, course)
	if err != nil {
		return nil, err
	}
	report.EnrollmentStatus = enrollment.Status
	if cert, err := s.CertRepo.Find(ctx, studentID, courseID); err == nil {
		report.Certificate = cert
	}
	return report, nil
}

type UpdateProgressReq struct {
	Status model.ProgressStatus `json:"status" binding:"required"`
}

// LessonProgressResult 更新课时进度后的结果
type LessonProgressResult struct {
	Progress *model.Progress  `json:"progress"`
	Report   *CompletionReport `json:"report,omitempty"`
}

// UpdateLessonProgress 写入课时状态并重新评估课程完成情况
func (s *ProgressService) UpdateLessonProgress(ctx context.Context, actor util.Actor, lessonID uint, status model.ProgressStatus) (*LessonProgressResult, error) {
	if !status.Valid() {
		return nil, util.ErrInvalidStatus
	}
	lesson, err := s.CourseRepo.FindLessonByID(ctx, lessonID)
	if err != nil {
		return nil, mapNotFound(err, util.ErrLessonNotFound)
	}
	if _, err := s.requireParticipant(ctx, actor.UserID, lesson.CourseID); err != nil {
		return nil, err
	}

	p := &model.Progress{UserID: actor.UserID, LessonID: lessonID, Status: status}
	if err := s.ProgressRepo.Upsert(ctx, p); err != nil {
		return nil, err
	}
	stored, err := s.ProgressRepo.Find(ctx, actor.UserID, lessonID)
	if err != nil {
		return nil, err
	}

	result := &LessonProgressResult{Progress: stored}
	report, err := s.EvaluateCourseCompletion(ctx, actor.UserID, lesson.CourseID)
	if err != nil {
		// 进度已保存，评估失败不回滚
		s.Log.Warn("Failed to evaluate course completion",
			zap.Uint("user_id", actor.UserID),
			zap.Uint("course_id", lesson.CourseID),
			zap.Error(err))
		return result, nil
	}
	result.Report = report
	return result, nil
}

// RecordLessonView 首次查看课时创建 in_progress 记录，之后只刷新访问时间
func (s *ProgressService) RecordLessonView(ctx context.Context, userID uint, lesson *model.Lesson) error {
	return s.ProgressRepo.CreateIfAbsent(ctx, &model.Progress{
		UserID:   userID,
		LessonID: lesson.ID,
		Status:   model.ProgressInProgress,
	})
}

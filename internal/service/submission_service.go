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
	"mylms_backend/pkg/tracing"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// SubmittedAnswer 提交中的单题答案
type SubmittedAnswer struct {
	QuestionID uint   `json:"question" binding:"required"`
	AnswerText string `json:"answer_text"`
}

type SubmitQuizReq struct {
	Answers []SubmittedAnswer `json:"answers" binding:"required,min=1,dive"`
}

// AnswerOutcome 单题处理结果，成功时带评分，失败时只带错误
type AnswerOutcome struct {
	QuestionID    uint     `json:"questionId"`
	IsCorrect     *bool    `json:"isCorrect,omitempty"`
	MarksObtained *float64 `json:"marksObtained,omitempty"`
	Error         string   `json:"error,omitempty"`
}

func (o AnswerOutcome) OK() bool {
	return o.Error == ""
}

type SubmissionResult struct {
	QuizID        uint               `json:"quizId"`
	Outcomes      []AnswerOutcome    `json:"outcomes"`
	QuestionCount int64              `json:"questionCount"`
	Answered      int64              `json:"answered"`
	QuizCompleted bool               `json:"quizCompleted"`
	TotalScore    *float64           `json:"totalScore,omitempty"`
	TotalMarks    int                `json:"totalMarks"`
	Report        *CompletionReport  `json:"report,omitempty"`
	SideEffects   []SideEffectResult `json:"sideEffects,omitempty"`
}

// SubmissionService 批量评分并保存答案
type SubmissionService struct {
	DB             *gorm.DB
	QuizRepo       *repository.QuizRepository
	EnrollmentRepo *repository.EnrollmentRepository
	Grader         *Grader
	Notifications  *NotificationService
	Progress       *ProgressService
	Log            *zap.Logger
}

func NewSubmissionService(
	db *gorm.DB,
	quizRepo *repository.QuizRepository,
	enrollmentRepo *repository.EnrollmentRepository,
	grader *Grader,
	notifications *NotificationService,
	progress *ProgressService,
	log *zap.Logger,
) *SubmissionService {
	return &SubmissionService{
		DB:             db,
		QuizRepo:       quizRepo,
		EnrollmentRepo: enrollmentRepo,
		Grader:         grader,
		Notifications:  notifications,
		Progress:       progress,
		Log:            log,
	}
}

func gradeOutcome(g GradeResult) string {
	switch {
	case g.IsCorrect:
		return "correct"
	case g.Marks > 0:
		return "partial"
	default:
		return "incorrect"
	}
}

// Submit 对一批答案逐题评分并覆盖写入。不属于该测验的题目只影响自己那一项
func (s *SubmissionService) Submit(ctx context.Context, actor util.Actor, quizID uint, answers []SubmittedAnswer) (*SubmissionResult, error) {
	ctx, span := tracing.StartSpan(ctx, "SubmissionService.Submit",
		attribute.Int("user_id", int(actor.UserID)),
		attribute.Int("quiz_id", int(quizID)),
		attribute.Int("answers", len(answers)))
	defer span.End()

	quiz, err := s.QuizRepo.FindByID(ctx, quizID)
	if err != nil {
		return nil, mapNotFound(err, util.ErrQuizNotFound)
	}
	if quiz.Closed {
		return nil, util.ErrQuizClosed
	}

	enrollment, err := s.EnrollmentRepo.Find(ctx, actor.UserID, quiz.CourseID)
	if err != nil {
		return nil, mapNotFound(err, util.ErrNotEnrolled)
	}
	if enrollment.Status != model.EnrollmentEnrolled {
		return nil, util.ErrNotEnrolled
	}

	result := &SubmissionResult{
		QuizID:     quiz.ID,
		Outcomes:   make([]AnswerOutcome, 0, len(answers)),
		TotalMarks: quiz.TotalMarks,
	}
	graded := make(map[model.QuestionType][]GradeResult)
	now := time.Now()

	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		quizzes := s.QuizRepo.WithTx(tx)

		count, err := quizzes.CountQuestions(ctx, quiz.ID)
		if err != nil {
			return err
		}
		// 每次评分时按当前题目数重新计算分值
		weight, err := QuestionWeight(quiz.TotalMarks, count)
		if err != nil {
			return err
		}
		result.QuestionCount = count

		for _, a := range answers {
			question, err := quizzes.FindQuestionByID(ctx, a.QuestionID)
			if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}
			if err != nil || question.QuizID != quiz.ID {
				result.Outcomes = append(result.Outcomes, AnswerOutcome{
					QuestionID: a.QuestionID,
					Error:      util.ErrQuestionNotFound.Error(),
				})
				continue
			}

			g := s.Grader.Grade(question, weight, a.AnswerText)
			if err := quizzes.UpsertAnswer(ctx, &model.Answer{
				QuestionID:    question.ID,
				UserID:        actor.UserID,
				Text:          a.AnswerText,
				IsCorrect:     g.IsCorrect,
				MarksObtained: g.Marks,
				SubmittedAt:   now,
			}); err != nil {
				return fmt.Errorf("save answer for question %d: %w", question.ID, err)
			}

			isCorrect, marks := g.IsCorrect, g.Marks
			result.Outcomes = append(result.Outcomes, AnswerOutcome{
				QuestionID:    question.ID,
				IsCorrect:     &isCorrect,
				MarksObtained: &marks,
			})
			graded[question.Type] = append(graded[question.Type], g)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for qt, list := range graded {
		for _, g := range list {
			monitoring.AnswersGraded.WithLabelValues(string(qt), gradeOutcome(g)).Inc()
		}
	}

	result.Answered, err = s.QuizRepo.CountAnswered(ctx, quiz.ID, actor.UserID)
	if err != nil {
		return nil, err
	}
	if result.QuestionCount > 0 && result.Answered >= result.QuestionCount {
		s.onQuizCompleted(ctx, actor.UserID, quiz, result)
	}

	report, err := s.Progress.EvaluateCourseCompletion(ctx, actor.UserID, quiz.CourseID)
	if err != nil {
		s.Log.Warn("Failed to evaluate course completion",
			zap.Uint("user_id", actor.UserID),
			zap.Uint("course_id", quiz.CourseID),
			zap.Error(err))
		result.SideEffects = append(result.SideEffects, sideEffect("evaluate_completion", err))
	} else {
		result.Report = report
	}
	return result, nil
}

// onQuizCompleted 所有题目均已作答：汇总总分并通知学生
func (s *SubmissionService) onQuizCompleted(ctx context.Context, userID uint, quiz *model.Quiz, result *SubmissionResult) {
	score, err := s.QuizRepo.SumMarks(ctx, quiz.ID, userID)
	if err != nil {
		s.Log.Warn("Failed to sum quiz score", zap.Uint("user_id", userID), zap.Uint("quiz_id", quiz.ID), zap.Error(err))
		result.SideEffects = append(result.SideEffects, sideEffect("quiz_score", err))
		return
	}
	score = round2(score)
	result.QuizCompleted = true
	result.TotalScore = &score
	monitoring.QuizzesCompleted.Inc()

	_, err = s.Notifications.Notify(ctx, NotificationRequest{
		UserID:  userID,
		Title:   fmt.Sprintf("Quiz Graded: %s", quiz.Title),
		Message: fmt.Sprintf("You scored %s out of %d on %s.", strconv.FormatFloat(score, 'f', -1, 64), quiz.TotalMarks, quiz.Title),
		Type:    model.NotificationQuizGraded,
	})
	result.SideEffects = append(result.SideEffects, sideEffect("notify_quiz_graded", err))

	err = s.Notifications.PublishEvent(ctx, events.Event{
		Type:   events.EventQuizCompleted,
		UserID: userID,
		Payload: map[string]interface{}{
			"quizId":     quiz.ID,
			"courseId":   quiz.CourseID,
			"score":      score,
			"totalMarks": quiz.TotalMarks,
		},
	})
	result.SideEffects = append(result.SideEffects, sideEffect("publish_quiz_completed", err))
}

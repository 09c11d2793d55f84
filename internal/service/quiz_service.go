package service

import (
	"context"
	"fmt"
	"mylms_backend/internal/model"
	"mylms_backend/internal/repository"
	"mylms_backend/internal/util"
	"strings"
	"time"

	"go.uber.org/zap"
)

type QuizService struct {
	QuizRepo       *repository.QuizRepository
	CourseRepo     *repository.CourseRepository
	EnrollmentRepo *repository.EnrollmentRepository
	Log            *zap.Logger
}

func NewQuizService(quizRepo *repository.QuizRepository, courseRepo *repository.CourseRepository, enrollmentRepo *repository.EnrollmentRepository, log *zap.Logger) *QuizService {
	return &QuizService{
		QuizRepo:       quizRepo,
		CourseRepo:     courseRepo,
		EnrollmentRepo: enrollmentRepo,
		Log:            log,
	}
}

type QuizReq struct {
	Title      *string `json:"title"`
	TotalMarks *int    `json:"totalMarks"`
	Closed     *bool   `json:"closed"`
}

// QuizDetail 测验及其题目。学生看到的题目不含正确答案
type QuizDetail struct {
	model.Quiz
	Questions []model.Question `json:"questions"`
}

func (s *QuizService) courseOf(ctx context.Context, courseID uint) (*model.Course, error) {
	course, err := s.CourseRepo.FindByID(ctx, courseID)
	if err != nil {
		return nil, mapNotFound(err, util.ErrCourseNotFound)
	}
	return course, nil
}

// loadQuiz 返回测验和所属课程
func (s *QuizService) loadQuiz(ctx context.Context, id uint) (*model.Quiz, *model.Course, error) {
	quiz, err := s.QuizRepo.FindByID(ctx, id)
	if err != nil {
		return nil, nil, mapNotFound(err, util.ErrQuizNotFound)
	}
	course, err := s.courseOf(ctx, quiz.CourseID)
	if err != nil {
		return nil, nil, err
	}
	return quiz, course, nil
}

func (s *QuizService) managedQuiz(ctx context.Context, actor util.Actor, id uint) (*model.Quiz, error) {
	quiz, course, err := s.loadQuiz(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canManageCourse(actor, course) {
		return nil, util.ErrPermissionDenied
	}
	return quiz, nil
}

func applyQuizReq(quiz *model.Quiz, req QuizReq) error {
	if req.Title != nil {
		quiz.Title = strings.TrimSpace(*req.Title)
	}
	if req.TotalMarks != nil {
		quiz.TotalMarks = *req.TotalMarks
	}
	if req.Closed != nil && *req.Closed != quiz.Closed {
		quiz.Closed = *req.Closed
		if quiz.Closed {
			now := time.Now()
			quiz.ClosedAt = &now
		} else {
			quiz.ClosedAt = nil
		}
	}
	if quiz.Title == "" {
		return fmt.Errorf("%w: title is required", util.ErrValidation)
	}
	if quiz.TotalMarks <= 0 {
		return util.ErrInvalidTotalMarks
	}
	return nil
}

func (s *QuizService) CreateQuiz(ctx context.Context, actor util.Actor, courseID uint, req QuizReq) (*model.Quiz, error) {
	course, err := s.courseOf(ctx, courseID)
	if err != nil {
		return nil, err
	}
	if !canManageCourse(actor, course) {
		return nil, util.ErrPermissionDenied
	}

	quiz := &model.Quiz{CourseID: courseID, TotalMarks: model.DefaultTotalMarks}
	if err := applyQuizReq(quiz, req); err != nil {
		return nil, err
	}
	if err := s.QuizRepo.Create(ctx, quiz); err != nil {
		return nil, err
	}
	return quiz, nil
}

func (s *QuizService) UpdateQuiz(ctx context.Context, actor util.Actor, id uint, req QuizReq) (*model.Quiz, error) {
	quiz, err := s.managedQuiz(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if err := applyQuizReq(quiz, req); err != nil {
		return nil, err
	}
	if err := s.QuizRepo.Update(ctx, quiz); err != nil {
		return nil, err
	}
	return quiz, nil
}

func (s *QuizService) DeleteQuiz(ctx context.Context, actor util.Actor, id uint) error {
	if _, err := s.managedQuiz(ctx, actor, id); err != nil {
		return err
	}
	return s.QuizRepo.Delete(ctx, id)
}

func (s *QuizService) ListQuizzes(ctx context.Context, actor util.Actor, courseID uint) ([]model.Quiz, error) {
	course, err := s.courseOf(ctx, courseID)
	if err != nil {
		return nil, err
	}
	if err := ensureCanView(ctx, s.EnrollmentRepo, actor, course); err != nil {
		return nil, err
	}
	return s.QuizRepo.ListByCourse(ctx, courseID)
}

func (s *QuizService) GetQuiz(ctx context.Context, actor util.Actor, id uint) (*QuizDetail, error) {
	quiz, course, err := s.loadQuiz(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := ensureCanView(ctx, s.EnrollmentRepo, actor, course); err != nil {
		return nil, err
	}

	questions, err := s.QuizRepo.ListQuestions(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canManageCourse(actor, course) {
		for i := range questions {
			questions[i].CorrectAnswer = ""
		}
	}
	return &QuizDetail{Quiz: *quiz, Questions: questions}, nil
}

func (s *QuizService) AddQuestion(ctx context.Context, actor util.Actor, quizID uint, in QuestionInput) (*model.Question, error) {
	if _, err := s.managedQuiz(ctx, actor, quizID); err != nil {
		return nil, err
	}
	normalized, err := NormalizeQuestion(in)
	if err != nil {
		return nil, err
	}

	q := &model.Question{
		QuizID:        quizID,
		Text:          normalized.Text,
		Type:          normalized.Type,
		CorrectAnswer: normalized.CorrectAnswer,
		Options:       model.OptionList(normalized.Options),
		Order:         normalized.Order,
	}
	if err := s.QuizRepo.CreateQuestion(ctx, q); err != nil {
		return nil, err
	}
	return q, nil
}

// UpdateQuestion 修改题目不会重新评分已有答案
func (s *QuizService) UpdateQuestion(ctx context.Context, actor util.Actor, questionID uint, in QuestionInput) (*model.Question, error) {
	q, err := s.QuizRepo.FindQuestionByID(ctx, questionID)
	if err != nil {
		return nil, mapNotFound(err, util.ErrQuestionNotFound)
	}
	if _, err := s.managedQuiz(ctx, actor, q.QuizID); err != nil {
		return nil, err
	}
	normalized, err := NormalizeQuestion(in)
	if err != nil {
		return nil, err
	}

	q.Text = normalized.Text
	q.Type = normalized.Type
	q.CorrectAnswer = normalized.CorrectAnswer
	q.Options = model.OptionList(normalized.Options)
	q.Order = normalized.Order
	if err := s.QuizRepo.UpdateQuestion(ctx, q); err != nil {
		return nil, err
	}
	return q, nil
}

func (s *QuizService) DeleteQuestion(ctx context.Context, actor util.Actor, questionID uint) error {
	q, err := s.QuizRepo.FindQuestionByID(ctx, questionID)
	if err != nil {
		return mapNotFound(err, util.ErrQuestionNotFound)
	}
	if _, err := s.managedQuiz(ctx, actor, q.QuizID); err != nil {
		return err
	}
	return s.QuizRepo.DeleteQuestion(ctx, questionID)
}

// MyAnswers 学生查看自己在测验中的答题记录
func (s *QuizService) MyAnswers(ctx context.Context, actor util.Actor, quizID uint) ([]model.Answer, error) {
	_, course, err := s.loadQuiz(ctx, quizID)
	if err != nil {
		return nil, err
	}
	if err := ensureCanView(ctx, s.EnrollmentRepo, actor, course); err != nil {
		return nil, err
	}
	return s.QuizRepo.ListAnswers(ctx, quizID, actor.UserID)
}

type QuestionStatItem struct {
	QuestionID   uint               `json:"questionId"`
	Text         string             `json:"text"`
	Type         model.QuestionType `json:"type"`
	Attempts     int64              `json:"attempts"`
	CorrectCount int64              `json:"correctCount"`
	CorrectRate  float64            `json:"correctRate"`
	AverageMarks float64            `json:"averageMarks"`
}

// QuizStatistics 讲师查看的测验统计
type QuizStatistics struct {
	QuizID         uint                  `json:"quizId"`
	Title          string                `json:"title"`
	TotalMarks     int                   `json:"totalMarks"`
	QuestionCount  int                   `json:"questionCount"`
	Participants   int                   `json:"participants"`
	CompletedCount int                   `json:"completedCount"`
	AverageScore   float64               `json:"averageScore"`
	Questions      []QuestionStatItem    `json:"questions"`
	Students       []repository.ScoreRow `json:"students"`
}

func (s *QuizService) Statistics(ctx context.Context, actor util.Actor, quizID uint) (*QuizStatistics, error) {
	quiz, err := s.managedQuiz(ctx, actor, quizID)
	if err != nil {
		return nil, err
	}

	questions, err := s.QuizRepo.ListQuestions(ctx, quizID)
	if err != nil {
		return nil, err
	}
	stats, err := s.QuizRepo.QuestionStats(ctx, quizID)
	if err != nil {
		return nil, err
	}
	scores, err := s.QuizRepo.StudentScores(ctx, quizID)
	if err != nil {
		return nil, err
	}

	byQuestion := make(map[uint]repository.QuestionStat, len(stats))
	for _, st := range stats {
		byQuestion[st.QuestionID] = st
	}

	result := &QuizStatistics{
		QuizID:        quiz.ID,
		Title:         quiz.Title,
		TotalMarks:    quiz.TotalMarks,
		QuestionCount: len(questions),
		Participants:  len(scores),
		Questions:     make([]QuestionStatItem, 0, len(questions)),
		Students:      scores,
	}
	for _, q := range questions {
		st := byQuestion[q.ID]
		item := QuestionStatItem{
			QuestionID:   q.ID,
			Text:         q.Text,
			Type:         q.Type,
			Attempts:     st.Attempts,
			CorrectCount: st.CorrectCount,
			AverageMarks: round2(st.AverageMarks),
		}
		if st.Attempts > 0 {
			item.CorrectRate = round2(float64(st.CorrectCount) / float64(st.Attempts) * 100)
		}
		result.Questions = append(result.Questions, item)
	}

	var total float64
	for _, row := range scores {
		total += row.Score
		if int(row.Answered) >= len(questions) && len(questions) > 0 {
			result.CompletedCount++
		}
	}
	if len(scores) > 0 {
		result.AverageScore = round2(total / float64(len(scores)))
	}
	if result.Students == nil {
		result.Students = []repository.ScoreRow{}
	}
	return result, nil
}

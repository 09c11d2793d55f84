package repository

import (
	"context"
	"mylms_backend/internal/model"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type QuizRepository struct {
	DB *gorm.DB
}

func NewQuizRepository(db *gorm.DB) *QuizRepository {
	return &QuizRepository{DB: db}
}

func (r *QuizRepository) WithTx(tx *gorm.DB) *QuizRepository {
	return &QuizRepository{DB: tx}
}

func (r *QuizRepository) Create(ctx context.Context, quiz *model.Quiz) error {
	return r.DB.WithContext(ctx).Create(quiz).Error
}

func (r *QuizRepository) FindByID(ctx context.Context, id uint) (*model.Quiz, error) {
	var quiz model.Quiz
	err := r.DB.WithContext(ctx).First(&quiz, id).Error
	return &quiz, err
}

func (r *QuizRepository) Update(ctx context.Context, quiz *model.Quiz) error {
	return r.DB.WithContext(ctx).Save(quiz).Error
}

func (r *QuizRepository) Delete(ctx context.Context, quizID uint) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var questionIDs []uint
		if err := tx.Model(&model.Question{}).Where("quiz_id = ?", quizID).Pluck("id", &questionIDs).Error; err != nil {
			return err
		}
		if len(questionIDs) > 0 {
			if err := tx.Where("question_id IN ?", questionIDs).Delete(&model.Answer{}).Error; err != nil {
				return err
			}
			if err := tx.Where("id IN ?", questionIDs).Delete(&model.Question{}).Error; err != nil {
				return err
			}
		}
		return tx.Delete(&model.Quiz{}, quizID).Error
	})
}

func (r *QuizRepository) ListByCourse(ctx context.Context, courseID uint) ([]model.Quiz, error) {
	var quizzes []model.Quiz
	err := r.DB.WithContext(ctx).Where("course_id = ?", courseID).Order("id asc").Find(&quizzes).Error
	return quizzes, err
}

func (r *QuizRepository) CreateQuestion(ctx context.Context, q *model.Question) error {
	return r.DB.WithContext(ctx).Create(q).Error
}

func (r *QuizRepository) FindQuestionByID(ctx context.Context, id uint) (*model.Question, error) {
	var q model.Question
	err := r.DB.WithContext(ctx).First(&q, id).Error
	return &q, err
}

func (r *QuizRepository) UpdateQuestion(ctx context.Context, q *model.Question) error {
	return r.DB.WithContext(ctx).Save(q).Error
}

// DeleteQuestion 删除题目及其全部答案
func (r *QuizRepository) DeleteQuestion(ctx context.Context, id uint) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("question_id = ?", id).Delete(&model.Answer{}).Error; err != nil {
			return err
		}
		return tx.Delete(&model.Question{}, id).Error
	})
}

func (r *QuizRepository) ListQuestions(ctx context.Context, quizID uint) ([]model.Question, error) {
	var qs []model.Question
	err := r.DB.WithContext(ctx).Where("quiz_id = ?", quizID).
		Order(clause.OrderByColumn{Column: clause.Column{Name: "order"}}).
		Order("id asc").
		Find(&qs).Error
	return qs, err
}

func (r *QuizRepository) CountQuestions(ctx context.Context, quizID uint) (int64, error) {
	var count int64
	err := r.DB.WithContext(ctx).Model(&model.Question{}).Where("quiz_id = ?", quizID).Count(&count).Error
	return count, err
}

// UpsertAnswer 依赖 (question_id, user_id) 唯一索引，重复提交覆盖原答案
func (r *QuizRepository) UpsertAnswer(ctx context.Context, answer *model.Answer) error {
	if answer.SubmittedAt.IsZero() {
		answer.SubmittedAt = time.Now()
	}
	return r.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "question_id"}, {Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"text", "is_correct", "marks_obtained", "submitted_at", "updated_at"}),
	}).Create(answer).Error
}

func (r *QuizRepository) FindAnswer(ctx context.Context, questionID, userID uint) (*model.Answer, error) {
	var answer model.Answer
	err := r.DB.WithContext(ctx).Where("question_id = ? AND user_id = ?", questionID, userID).First(&answer).Error
	return &answer, err
}

func (r *QuizRepository) answersOfQuiz(ctx context.Context, quizID, userID uint) *gorm.DB {
	return r.DB.WithContext(ctx).Model(&model.Answer{}).
		Joins("JOIN questions ON questions.id = answers.question_id").
		Where("questions.quiz_id = ? AND questions.deleted_at IS NULL AND answers.user_id = ?", quizID, userID)
}

// CountAnswered 用户在该测验中已作答的题目数
func (r *QuizRepository) CountAnswered(ctx context.Context, quizID, userID uint) (int64, error) {
	var count int64
	err := r.answersOfQuiz(ctx, quizID, userID).Count(&count).Error
	return count, err
}

// SumMarks 用户在该测验中的总得分
func (r *QuizRepository) SumMarks(ctx context.Context, quizID, userID uint) (float64, error) {
	var total float64
	err := r.answersOfQuiz(ctx, quizID, userID).
		Select("COALESCE(SUM(answers.marks_obtained), 0)").
		Scan(&total).Error
	return total, err
}

func (r *QuizRepository) ListAnswers(ctx context.Context, quizID, userID uint) ([]model.Answer, error) {
	var answers []model.Answer
	err := r.answersOfQuiz(ctx, quizID, userID).Order("answers.question_id asc").Find(&answers).Error
	return answers, err
}

// QuestionStat 单题作答统计
type QuestionStat struct {
	QuestionID   uint    `json:"questionId"`
	Attempts     int64   `json:"attempts"`
	CorrectCount int64   `json:"correctCount"`
	AverageMarks float64 `json:"averageMarks"`
}

func (r *QuizRepository) QuestionStats(ctx context.Context, quizID uint) ([]QuestionStat, error) {
	var stats []QuestionStat
	err := r.DB.WithContext(ctx).Model(&model.Answer{}).
		Select("answers.question_id AS question_id, COUNT(*) AS attempts, "+
			"SUM(CASE WHEN answers.is_correct THEN 1 ELSE 0 END) AS correct_count, "+
			"COALESCE(AVG(answers.marks_obtained), 0) AS average_marks").
		Joins("JOIN questions ON questions.id = answers.question_id").
		Where("questions.quiz_id = ? AND questions.deleted_at IS NULL", quizID).
		Group("answers.question_id").
		Order("answers.question_id asc").
		Scan(&stats).Error
	return stats, err
}

// ScoreRow 学生测验总分
type ScoreRow struct {
	UserID   uint    `json:"userId"`
	Answered int64   `json:"answered"`
	Score    float64 `json:"score"`
}

func (r *QuizRepository) StudentScores(ctx context.Context, quizID uint) ([]ScoreRow, error) {
	var rows []ScoreRow
	err := r.DB.WithContext(ctx).Model(&model.Answer{}).
		Select("answers.user_id AS user_id, COUNT(*) AS answered, COALESCE(SUM(answers.marks_obtained), 0) AS score").
		Joins("JOIN questions ON questions.id = answers.question_id").
		Where("questions.quiz_id = ? AND questions.deleted_at IS NULL", quizID).
		Group("answers.user_id").
		Order("answers.user_id asc").
		Scan(&rows).Error
	return rows, err
}

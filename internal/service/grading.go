package service

import (
	"fmt"
	"mylms_backend/internal/model"
	"mylms_backend/internal/util"
	"strings"
)

// DefaultPartialRatio 简答题部分匹配的得分比例
const DefaultPartialRatio = 0.5

// GradeResult 单题评分结果
type GradeResult struct {
	IsCorrect bool    `json:"isCorrect"`
	Marks     float64 `json:"marks"`
}

// Grader 自动评分，纯计算，无副作用
type Grader struct {
	PartialRatio float64
}

func NewGrader(partialRatio float64) *Grader {
	if partialRatio < 0 || partialRatio > 1 {
		partialRatio = DefaultPartialRatio
	}
	return &Grader{PartialRatio: partialRatio}
}

// QuestionWeight 每题分值 = 测验总分 / 当前题目数，每次评分时重新计算
func QuestionWeight(totalMarks int, questionCount int64) (float64, error) {
	if questionCount <= 0 {
		return 0, util.ErrEmptyQuiz
	}
	return float64(totalMarks) / float64(questionCount), nil
}

func normalizeAnswer(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Grade 按题型评分。选择题和判断题忽略大小写和首尾空白精确匹配；
// 简答题精确匹配得满分，双向包含得部分分且不算正确
func (g *Grader) Grade(q *model.Question, weight float64, submitted string) GradeResult {
	answer := normalizeAnswer(submitted)
	correct := normalizeAnswer(q.CorrectAnswer)

	switch q.Type {
	case model.MultipleChoice, model.TrueFalse:
		if answer == correct {
			return GradeResult{IsCorrect: true, Marks: weight}
		}
		return GradeResult{}

	case model.ShortAnswer:
		if answer == correct {
			return GradeResult{IsCorrect: true, Marks: weight}
		}
		// 空答案不参与包含匹配，否则任何空提交都会拿到部分分
		if answer != "" && (strings.Contains(answer, correct) || strings.Contains(correct, answer)) {
			return GradeResult{IsCorrect: false, Marks: weight * g.PartialRatio}
		}
		return GradeResult{}
	}

	return GradeResult{}
}

// QuestionInput 创建或修改题目的输入
type QuestionInput struct {
	Text          string             `json:"text" binding:"required"`
	Type          model.QuestionType `json:"type" binding:"required"`
	CorrectAnswer string             `json:"correctAnswer" binding:"required"`
	Options       []string           `json:"options"`
	Order         int                `json:"order"`
}

// NormalizeQuestion 校验题目并返回规范化后的字段，校验失败的题目不会入库
func NormalizeQuestion(in QuestionInput) (QuestionInput, error) {
	out := QuestionInput{
		Text:          strings.TrimSpace(in.Text),
		Type:          in.Type,
		CorrectAnswer: strings.TrimSpace(in.CorrectAnswer),
		Order:         in.Order,
	}

	if out.Text == "" {
		return out, fmt.Errorf("%w: question text is required", util.ErrValidation)
	}
	if !out.Type.Valid() {
		return out, fmt.Errorf("%w: %q", util.ErrInvalidQuestionType, in.Type)
	}
	if out.CorrectAnswer == "" {
		return out, fmt.Errorf("%w: correct answer is required", util.ErrValidation)
	}

	switch out.Type {
	case model.MultipleChoice:
		if len(in.Options) == 0 {
			return out, util.ErrOptionsRequired
		}
		options := make([]string, 0, len(in.Options))
		for _, opt := range in.Options {
			if opt = strings.TrimSpace(opt); opt != "" {
				options = append(options, opt)
			}
		}
		if len(options) < 2 {
			return out, util.ErrTooFewOptions
		}
		if !model.OptionList(options).Contains(out.CorrectAnswer) {
			return out, util.ErrAnswerNotInOptions
		}
		out.Options = options

	case model.TrueFalse:
		v := strings.ToLower(out.CorrectAnswer)
		if v != "true" && v != "false" {
			return out, util.ErrInvalidTrueFalse
		}
		out.CorrectAnswer = v
	}

	return out, nil
}

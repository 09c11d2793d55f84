package model

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

type QuestionType string

const (
	MultipleChoice QuestionType = "multiple_choice"
	TrueFalse      QuestionType = "true_false"
	ShortAnswer    QuestionType = "short_answer"
)

func (t QuestionType) Valid() bool {
	switch t {
	case MultipleChoice, TrueFalse, ShortAnswer:
		return true
	}
	return false
}

const DefaultTotalMarks = 100

// swagger:model Quiz
type Quiz struct {
	BaseModel
	CourseID   uint       `gorm:"index;not null" json:"courseId"`
	Title      string     `gorm:"size:255;not null" json:"title"`
	TotalMarks int        `gorm:"not null;default:100" json:"totalMarks"`
	Closed     bool       `gorm:"default:false" json:"closed"`
	ClosedAt   *time.Time `json:"closedAt,omitempty"`
}

func (Quiz) TableName() string {
	return "quizzes"
}

// OptionList 选择题选项，数据库中以 JSON 数组存储
type OptionList []string

func (o OptionList) Value() (driver.Value, error) {
	if o == nil {
		return nil, nil
	}
	b, err := json.Marshal([]string(o))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (o *OptionList) Scan(value interface{}) error {
	if value == nil {
		*o = nil
		return nil
	}
	var raw []byte
	switch v := value.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return errors.New("unsupported type for OptionList")
	}
	if len(raw) == 0 {
		*o = nil
		return nil
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err != nil {
		return err
	}
	*o = list
	return nil
}

// Contains 精确匹配（区分大小写），与题目创建时的校验一致
func (o OptionList) Contains(s string) bool {
	for _, opt := range o {
		if opt == s {
			return true
		}
	}
	return false
}

// swagger:model Question
type Question struct {
	BaseModel
	QuizID        uint         `gorm:"index;not null" json:"quizId"`
	Text          string       `gorm:"type:text;not null" json:"text"`
	Type          QuestionType `gorm:"size:20;not null" json:"type"`
	CorrectAnswer string       `gorm:"type:text;not null" json:"correctAnswer,omitempty"`
	Options       OptionList   `gorm:"type:text" json:"options,omitempty"`
	Order         int          `gorm:"column:order;default:0" json:"order"`
}

func (Question) TableName() string {
	return "questions"
}

// swagger:model Answer
type Answer struct {
	Record
	QuestionID    uint      `gorm:"uniqueIndex:uk_answer_question_user;not null" json:"questionId"`
	UserID        uint      `gorm:"uniqueIndex:uk_answer_question_user;index;not null" json:"userId"`
	Text          string    `gorm:"type:text" json:"text"`
	IsCorrect     bool      `gorm:"default:false" json:"isCorrect"`
	MarksObtained float64   `gorm:"default:0" json:"marksObtained"`
	SubmittedAt   time.Time `json:"submittedAt"`
}

func (Answer) TableName() string {
	return "answers"
}

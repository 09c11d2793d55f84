package model

import "time"

type ProgressStatus string

const (
	ProgressNotStarted ProgressStatus = "not_started"
	ProgressInProgress ProgressStatus = "in_progress"
	ProgressCompleted  ProgressStatus = "completed"
)

func (s ProgressStatus) Valid() bool {
	switch s {
	case ProgressNotStarted, ProgressInProgress, ProgressCompleted:
		return true
	}
	return false
}

// swagger:model Progress
type Progress struct {
	Record
	UserID       uint           `gorm:"uniqueIndex:uk_progress_user_lesson;not null" json:"userId"`
	LessonID     uint           `gorm:"uniqueIndex:uk_progress_user_lesson;index;not null" json:"lessonId"`
	Status       ProgressStatus `gorm:"size:20;default:'not_started'" json:"status"`
	LastAccessed time.Time      `json:"lastAccessed"`
}

func (Progress) TableName() string {
	return "progress"
}

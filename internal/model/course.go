package model

import "time"

// swagger:model Course
type Course struct {
	BaseModel
	Title        string    `gorm:"size:255;not null" json:"title"`
	Description  string    `gorm:"type:text" json:"description"`
	InstructorID uint      `gorm:"index;not null" json:"instructorId"`
	Instructor   *User     `gorm:"foreignKey:InstructorID" json:"instructor,omitempty"`
	StartDate    time.Time `json:"startDate"`
	EndDate      time.Time `json:"endDate"`
}

func (Course) TableName() string {
	return "courses"
}

// IsActive 当前日期是否处于课程开放期
func (c *Course) IsActive(now time.Time) bool {
	if c.StartDate.IsZero() || c.EndDate.IsZero() {
		return true
	}
	return !now.Before(c.StartDate) && !now.After(c.EndDate)
}

// swagger:model Lesson
type Lesson struct {
	BaseModel
	CourseID uint   `gorm:"index;not null" json:"courseId"`
	Title    string `gorm:"size:255;not null" json:"title"`
	Content  string `gorm:"type:text" json:"content"`
	VideoURL string `gorm:"size:512" json:"videoUrl"`
	Order    int    `gorm:"column:order;default:0" json:"order"`
}

func (Lesson) TableName() string {
	return "lessons"
}

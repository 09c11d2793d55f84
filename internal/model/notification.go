package model

type NotificationType string

const (
	NotificationLessonAdded       NotificationType = "lesson_added"
	NotificationEnrollment        NotificationType = "enrollment"
	NotificationCourseCompleted   NotificationType = "course_completed"
	NotificationQuizGraded        NotificationType = "quiz_graded"
	NotificationCertificateIssued NotificationType = "certificate_issued"
	NotificationGeneral           NotificationType = "general"
)

func (t NotificationType) Valid() bool {
	switch t {
	case NotificationLessonAdded, NotificationEnrollment, NotificationCourseCompleted,
		NotificationQuizGraded, NotificationCertificateIssued, NotificationGeneral:
		return true
	}
	return false
}

// swagger:model Notification
type Notification struct {
	BaseModel
	UserID  uint             `gorm:"index;not null" json:"userId"`
	Title   string           `gorm:"size:255;not null" json:"title"`
	Message string           `gorm:"type:text" json:"message"`
	Type    NotificationType `gorm:"size:30;index" json:"type"`
	IsRead  bool             `gorm:"default:false;index" json:"isRead"`
}

func (Notification) TableName() string {
	return "notifications"
}

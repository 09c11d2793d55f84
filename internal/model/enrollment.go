package model

type EnrollmentStatus string

const (
	EnrollmentEnrolled  EnrollmentStatus = "enrolled"
	EnrollmentCompleted EnrollmentStatus = "completed"
	EnrollmentDropped   EnrollmentStatus = "dropped"
)

func (s EnrollmentStatus) Valid() bool {
	switch s {
	case EnrollmentEnrolled, EnrollmentCompleted, EnrollmentDropped:
		return true
	}
	return false
}

// swagger:model Enrollment
type Enrollment struct {
	Record
	UserID   uint             `gorm:"uniqueIndex:uk_enrollment_user_course;not null" json:"userId"`
	CourseID uint             `gorm:"uniqueIndex:uk_enrollment_user_course;index;not null" json:"courseId"`
	Status   EnrollmentStatus `gorm:"size:20;default:'enrolled'" json:"status"`
}

func (Enrollment) TableName() string {
	return "enrollments"
}

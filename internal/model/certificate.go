package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// swagger:model Certificate
type Certificate struct {
	Record
	UserID      uint      `gorm:"uniqueIndex:uk_certificate_user_course;not null" json:"userId"`
	CourseID    uint      `gorm:"uniqueIndex:uk_certificate_user_course;index;not null" json:"courseId"`
	Code        string    `gorm:"size:50;uniqueIndex;not null" json:"code"`
	IssuedAt    time.Time `json:"issuedAt"`
	DocumentURL string    `gorm:"size:512" json:"documentUrl,omitempty"`
	User        *User     `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Course      *Course   `gorm:"foreignKey:CourseID" json:"course,omitempty"`
}

func (Certificate) TableName() string {
	return "certificates"
}

// NewCertificateCode 生成证书编号: 用户ID-课程ID-8位随机大写十六进制
func NewCertificateCode(userID, courseID uint) string {
	suffix := strings.ReplaceAll(uuid.New().String(), "-", "")[:8]
	return fmt.Sprintf("%d-%d-%s", userID, courseID, strings.ToUpper(suffix))
}

package service

import (
	"context"
	"errors"
	"mylms_backend/internal/model"
	"mylms_backend/internal/repository"
	"mylms_backend/internal/util"

	"gorm.io/gorm"
)

// canManageCourse 管理员或课程讲师
func canManageCourse(actor util.Actor, course *model.Course) bool {
	return actor.IsAdmin() || (actor.IsTeacher() && course.InstructorID == actor.UserID)
}

// ensureCanView 管理者或已选课（未退课）的学生可以查看课程内容
func ensureCanView(ctx context.Context, enrollments *repository.EnrollmentRepository, actor util.Actor, course *model.Course) error {
	if canManageCourse(actor, course) {
		return nil
	}
	e, err := enrollments.Find(ctx, actor.UserID, course.ID)
	if err != nil {
		return mapNotFound(err, util.ErrNotEnrolled)
	}
	if e.Status == model.EnrollmentDropped {
		return util.ErrNotEnrolled
	}
	return nil
}

// mapNotFound 将 gorm 的未找到错误替换为领域错误
func mapNotFound(err error, notFound error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return notFound
	}
	return err
}

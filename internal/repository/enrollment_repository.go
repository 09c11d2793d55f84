package repository

import (
	"context"
	"mylms_backend/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type EnrollmentRepository struct {
	DB *gorm.DB
}

func NewEnrollmentRepository(db *gorm.DB) *EnrollmentRepository {
	return &EnrollmentRepository{DB: db}
}

func (r *EnrollmentRepository) WithTx(tx *gorm.DB) *EnrollmentRepository {
	return &EnrollmentRepository{DB: tx}
}

// CreateIfAbsent 返回 false 表示 (user, course) 已存在选课记录
func (r *EnrollmentRepository) CreateIfAbsent(ctx context.Context, e *model.Enrollment) (bool, error) {
	res := r.DB.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(e)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *EnrollmentRepository) FindByID(ctx context.Context, id uint) (*model.Enrollment, error) {
	var e model.Enrollment
	err := r.DB.WithContext(ctx).First(&e, id).Error
	return &e, err
}

func (r *EnrollmentRepository) Find(ctx context.Context, userID, courseID uint) (*model.Enrollment, error) {
	var e model.Enrollment
	err := r.DB.WithContext(ctx).Where("user_id = ? AND course_id = ?", userID, courseID).First(&e).Error
	return &e, err
}

func (r *EnrollmentRepository) UpdateStatus(ctx context.Context, id uint, status model.EnrollmentStatus) error {
	return r.DB.WithContext(ctx).Model(&model.Enrollment{}).Where("id = ?", id).Update("status", status).Error
}

// TransitionStatus 仅当当前状态为 from 时更新，返回是否发生了迁移
func (r *EnrollmentRepository) TransitionStatus(ctx context.Context, id uint, from, to model.EnrollmentStatus) (bool, error) {
	res := r.DB.WithContext(ctx).Model(&model.Enrollment{}).
		Where("id = ? AND status = ?", id, from).
		Update("status", to)
	return res.RowsAffected > 0, res.Error
}

func (r *EnrollmentRepository) ListByUser(ctx context.Context, userID uint) ([]model.Enrollment, error) {
	var list []model.Enrollment
	err := r.DB.WithContext(ctx).Where("user_id = ?", userID).Order("id desc").Find(&list).Error
	return list, err
}

func (r *EnrollmentRepository) ListByCourse(ctx context.Context, courseID uint) ([]model.Enrollment, error) {
	var list []model.Enrollment
	err := r.DB.WithContext(ctx).Where("course_id = ?", courseID).Order("id asc").Find(&list).Error
	return list, err
}

// ActiveStudentIDs 课程中状态为 enrolled 的学生
func (r *EnrollmentRepository) ActiveStudentIDs(ctx context.Context, courseID uint) ([]uint, error) {
	var ids []uint
	err := r.DB.WithContext(ctx).Model(&model.Enrollment{}).
		Where("course_id = ? AND status = ?", courseID, model.EnrollmentEnrolled).
		Pluck("user_id", &ids).Error
	return ids, err
}

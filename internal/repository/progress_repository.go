package repository

import (
	"context"
	"mylms_backend/internal/model"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ProgressRepository struct {
	DB *gorm.DB
}

func NewProgressRepository(db *gorm.DB) *ProgressRepository {
	return &ProgressRepository{DB: db}
}

// Upsert 依赖 (user_id, lesson_id) 唯一索引写入最新状态
func (r *ProgressRepository) Upsert(ctx context.Context, p *model.Progress) error {
	p.LastAccessed = time.Now()
	return r.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "lesson_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"status", "last_accessed", "updated_at"}),
	}).Create(p).Error
}

// CreateIfAbsent 首次访问课时时懒创建记录，已存在则只刷新访问时间
func (r *ProgressRepository) CreateIfAbsent(ctx context.Context, p *model.Progress) error {
	p.LastAccessed = time.Now()
	return r.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "lesson_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"last_accessed"}),
	}).Create(p).Error
}

func (r *ProgressRepository) Find(ctx context.Context, userID, lessonID uint) (*model.Progress, error) {
	var p model.Progress
	err := r.DB.WithContext(ctx).Where("user_id = ? AND lesson_id = ?", userID, lessonID).First(&p).Error
	return &p, err
}

// StatusesForCourse 返回 lessonID -> 进度记录，未出现的课时视为未开始
func (r *ProgressRepository) StatusesForCourse(ctx context.Context, userID, courseID uint) (map[uint]model.Progress, error) {
	var rows []model.Progress
	err := r.DB.WithContext(ctx).
		Joins("JOIN lessons ON lessons.id = progress.lesson_id").
		Where("progress.user_id = ? AND lessons.course_id = ? AND lessons.deleted_at IS NULL", userID, courseID).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	result := make(map[uint]model.Progress, len(rows))
	for _, p := range rows {
		result[p.LessonID] = p
	}
	return result, nil
}

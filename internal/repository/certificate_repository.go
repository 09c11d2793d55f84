package repository

import (
	"context"
	"mylms_backend/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type CertificateRepository struct {
	DB *gorm.DB
}

func NewCertificateRepository(db *gorm.DB) *CertificateRepository {
	return &CertificateRepository{DB: db}
}

func (r *CertificateRepository) WithTx(tx *gorm.DB) *CertificateRepository {
	return &CertificateRepository{DB: tx}
}

// CreateIfAbsent 依赖 (user_id, course_id) 唯一索引，并发签发时只有一方返回 true
func (r *CertificateRepository) CreateIfAbsent(ctx context.Context, cert *model.Certificate) (bool, error) {
	res := r.DB.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(cert)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *CertificateRepository) FindByID(ctx context.Context, id uint) (*model.Certificate, error) {
	var cert model.Certificate
	err := r.DB.WithContext(ctx).Preload("User").Preload("Course").First(&cert, id).Error
	return &cert, err
}

func (r *CertificateRepository) Find(ctx context.Context, userID, courseID uint) (*model.Certificate, error) {
	var cert model.Certificate
	err := r.DB.WithContext(ctx).Where("user_id = ? AND course_id = ?", userID, courseID).First(&cert).Error
	return &cert, err
}

func (r *CertificateRepository) Exists(ctx context.Context, userID, courseID uint) (bool, error) {
	var count int64
	err := r.DB.WithContext(ctx).Model(&model.Certificate{}).
		Where("user_id = ? AND course_id = ?", userID, courseID).Count(&count).Error
	return count > 0, err
}

func (r *CertificateRepository) FindByCode(ctx context.Context, code string) (*model.Certificate, error) {
	var cert model.Certificate
	err := r.DB.WithContext(ctx).Preload("User").Preload("Course").Where("code = ?", code).First(&cert).Error
	return &cert, err
}

func (r *CertificateRepository) UpdateDocumentURL(ctx context.Context, id uint, url string) error {
	return r.DB.WithContext(ctx).Model(&model.Certificate{}).Where("id = ?", id).Update("document_url", url).Error
}

func (r *CertificateRepository) ListAll(ctx context.Context) ([]model.Certificate, error) {
	var list []model.Certificate
	err := r.DB.WithContext(ctx).Preload("User").Preload("Course").Order("issued_at desc").Find(&list).Error
	return list, err
}

func (r *CertificateRepository) ListByUser(ctx context.Context, userID uint) ([]model.Certificate, error) {
	var list []model.Certificate
	err := r.DB.WithContext(ctx).Preload("Course").Where("user_id = ?", userID).Order("issued_at desc").Find(&list).Error
	return list, err
}

func (r *CertificateRepository) ListByInstructor(ctx context.Context, instructorID uint) ([]model.Certificate, error) {
	var list []model.Certificate
	err := r.DB.WithContext(ctx).Preload("User").Preload("Course").
		Joins("JOIN courses ON courses.id = certificates.course_id").
		Where("courses.instructor_id = ?", instructorID).
		Order("certificates.issued_at desc").
		Find(&list).Error
	return list, err
}

func (r *CertificateRepository) CountByCourse(ctx context.Context, courseID uint) (int64, error) {
	var count int64
	err := r.DB.WithContext(ctx).Model(&model.Certificate{}).Where("course_id = ?", courseID).Count(&count).Error
	return count, err
}

package repository

import (
	"context"
	"mylms_backend/internal/model"
	"time"

	"gorm.io/gorm"
)

// StatsRepository 管理后台的全站统计查询
type StatsRepository struct {
	DB *gorm.DB
}

func NewStatsRepository(db *gorm.DB) *StatsRepository {
	return &StatsRepository{DB: db}
}

type groupCount struct {
	Name  string
	Count int64
}

func (r *StatsRepository) countBy(ctx context.Context, m interface{}, column string) (map[string]int64, error) {
	var rows []groupCount
	err := r.DB.WithContext(ctx).Model(m).
		Select(column + " AS name, COUNT(*) AS count").
		Group(column).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(rows))
	for _, row := range rows {
		out[row.Name] = row.Count
	}
	return out, nil
}

// UsersByRole 按角色统计用户数
func (r *StatsRepository) UsersByRole(ctx context.Context) (map[string]int64, error) {
	return r.countBy(ctx, &model.User{}, "role")
}

// EnrollmentsByStatus 按状态统计选课数
func (r *StatsRepository) EnrollmentsByStatus(ctx context.Context) (map[string]int64, error) {
	return r.countBy(ctx, &model.Enrollment{}, "status")
}

// CourseDates 返回全部课程的起止日期，由调用方按当前日期分类
func (r *StatsRepository) CourseDates(ctx context.Context) ([]model.Course, error) {
	var courses []model.Course
	err := r.DB.WithContext(ctx).Model(&model.Course{}).
		Select("id", "start_date", "end_date").
		Find(&courses).Error
	return courses, err
}

// CertificatesSince since 为零值时统计全部证书
func (r *StatsRepository) CertificatesSince(ctx context.Context, since time.Time) (int64, error) {
	query := r.DB.WithContext(ctx).Model(&model.Certificate{})
	if !since.IsZero() {
		query = query.Where("issued_at >= ?", since)
	}
	var count int64
	err := query.Count(&count).Error
	return count, err
}

// UsersJoinedBetween 统计 [from, to) 内注册的用户，to 为零值表示不设上限
func (r *StatsRepository) UsersJoinedBetween(ctx context.Context, from, to time.Time) (int64, error) {
	query := r.DB.WithContext(ctx).Model(&model.User{}).Where("created_at >= ?", from)
	if !to.IsZero() {
		query = query.Where("created_at < ?", to)
	}
	var count int64
	err := query.Count(&count).Error
	return count, err
}

type CourseEnrollmentCount struct {
	CourseID        uint   `json:"courseId"`
	Title           string `json:"title"`
	EnrollmentCount int64  `json:"enrollmentCount"`
}

// PopularCourses 按选课人数倒序
func (r *StatsRepository) PopularCourses(ctx context.Context, limit int) ([]CourseEnrollmentCount, error) {
	var rows []CourseEnrollmentCount
	err := r.DB.WithContext(ctx).Model(&model.Course{}).
		Select("courses.id AS course_id, courses.title AS title, COUNT(enrollments.id) AS enrollment_count").
		Joins("LEFT JOIN enrollments ON enrollments.course_id = courses.id").
		Group("courses.id, courses.title").
		Order("enrollment_count DESC, courses.id ASC").
		Limit(limit).
		Scan(&rows).Error
	return rows, err
}

type TeacherCourseCount struct {
	UserID      uint   `json:"userId"`
	Username    string `json:"username"`
	CourseCount int64  `json:"courseCount"`
}

// ActiveTeachers 至少讲授一门课程的教师，按课程数倒序
func (r *StatsRepository) ActiveTeachers(ctx context.Context, limit int) ([]TeacherCourseCount, error) {
	var rows []TeacherCourseCount
	err := r.DB.WithContext(ctx).Model(&model.User{}).
		Select("users.id AS user_id, users.username AS username, COUNT(courses.id) AS course_count").
		Joins("JOIN courses ON courses.instructor_id = users.id AND courses.deleted_at IS NULL").
		Where("users.role = ?", model.Teacher).
		Group("users.id, users.username").
		Order("course_count DESC, users.id ASC").
		Limit(limit).
		Scan(&rows).Error
	return rows, err
}

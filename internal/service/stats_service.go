package service

import (
	"context"
	"mylms_backend/internal/model"
	"mylms_backend/internal/repository"
	"mylms_backend/internal/util"
	"time"

	"go.uber.org/zap"
)

const (
	statsTopN          = 5
	registrationBucket = 30 * 24 * time.Hour
	registrationWindow = 6
)

type UserStats struct {
	Total    int64 `json:"total"`
	Students int64 `json:"students"`
	Teachers int64 `json:"teachers"`
	Admins   int64 `json:"admins"`
}

type CourseStats struct {
	Total     int64 `json:"total"`
	Active    int64 `json:"active"`
	Upcoming  int64 `json:"upcoming"`
	Completed int64 `json:"completed"`
}

type EnrollmentStats struct {
	Total     int64 `json:"total"`
	Active    int64 `json:"active"`
	Completed int64 `json:"completed"`
	Dropped   int64 `json:"dropped"`
}

type CertificateStats struct {
	Total      int64 `json:"total"`
	Last30Days int64 `json:"last30Days"`
}

type RegistrationPoint struct {
	Month string `json:"month"`
	Count int64  `json:"count"`
}

// SystemStats 管理后台总览
type SystemStats struct {
	Users                UserStats                          `json:"users"`
	Courses              CourseStats                        `json:"courses"`
	Enrollments          EnrollmentStats                    `json:"enrollments"`
	Certificates         CertificateStats                   `json:"certificates"`
	MonthlyRegistrations []RegistrationPoint                `json:"monthlyRegistrations"`
	PopularCourses       []repository.CourseEnrollmentCount `json:"popularCourses"`
	ActiveTeachers       []repository.TeacherCourseCount    `json:"activeTeachers"`
	GeneratedAt          time.Time                          `json:"generatedAt"`
}

type StatsService struct {
	Repo *repository.StatsRepository
	Log  *zap.Logger
	now  func() time.Time
}

func NewStatsService(repo *repository.StatsRepository, log *zap.Logger) *StatsService {
	return &StatsService{Repo: repo, Log: log, now: time.Now}
}

// SystemStats 仅管理员可见
func (s *StatsService) SystemStats(ctx context.Context, actor util.Actor) (*SystemStats, error) {
	if !actor.IsAdmin() {
		return nil, util.ErrPermissionDenied
	}
	now := s.now()
	stats := &SystemStats{GeneratedAt: now}

	roles, err := s.Repo.UsersByRole(ctx)
	if err != nil {
		return nil, err
	}
	stats.Users = UserStats{
		Students: roles[string(model.Student)],
		Teachers: roles[string(model.Teacher)],
		Admins:   roles[string(model.Admin)],
	}
	for _, n := range roles {
		stats.Users.Total += n
	}

	courses, err := s.Repo.CourseDates(ctx)
	if err != nil {
		return nil, err
	}
	stats.Courses = classifyCourses(courses, now)

	statuses, err := s.Repo.EnrollmentsByStatus(ctx)
	if err != nil {
		return nil, err
	}
	stats.Enrollments = EnrollmentStats{
		Active:    statuses[string(model.EnrollmentEnrolled)],
		Completed: statuses[string(model.EnrollmentCompleted)],
		Dropped:   statuses[string(model.EnrollmentDropped)],
	}
	for _, n := range statuses {
		stats.Enrollments.Total += n
	}

	if stats.Certificates.Total, err = s.Repo.CertificatesSince(ctx, time.Time{}); err != nil {
		return nil, err
	}
	if stats.Certificates.Last30Days, err = s.Repo.CertificatesSince(ctx, now.AddDate(0, 0, -30)); err != nil {
		return nil, err
	}

	if stats.MonthlyRegistrations, err = s.registrations(ctx, now); err != nil {
		return nil, err
	}
	if stats.PopularCourses, err = s.Repo.PopularCourses(ctx, statsTopN); err != nil {
		return nil, err
	}
	if stats.ActiveTeachers, err = s.Repo.ActiveTeachers(ctx, statsTopN); err != nil {
		return nil, err
	}

	s.Log.Debug("System stats computed", zap.Uint("admin_id", actor.UserID))
	return stats, nil
}

// registrations 最近 180 天按 30 天分段的注册人数，最后一段不设上限
func (s *StatsService) registrations(ctx context.Context, now time.Time) ([]RegistrationPoint, error) {
	start := now.Add(-registrationWindow * registrationBucket)
	points := make([]RegistrationPoint, 0, registrationWindow)
	for i := 0; i < registrationWindow; i++ {
		from := start.Add(time.Duration(i) * registrationBucket)
		var to time.Time
		if i < registrationWindow-1 {
			to = from.Add(registrationBucket)
		}
		n, err := s.Repo.UsersJoinedBetween(ctx, from, to)
		if err != nil {
			return nil, err
		}
		points = append(points, RegistrationPoint{Month: from.Format("Jan 2006"), Count: n})
	}
	return points, nil
}

// classifyCourses 与 Course.IsActive 一致，起止日期缺一即视为开放中
func classifyCourses(courses []model.Course, now time.Time) CourseStats {
	stats := CourseStats{Total: int64(len(courses))}
	for i := range courses {
		c := &courses[i]
		switch {
		case c.IsActive(now):
			stats.Active++
		case now.Before(c.StartDate):
			stats.Upcoming++
		default:
			stats.Completed++
		}
	}
	return stats
}

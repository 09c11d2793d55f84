package service

import (
	"context"
	"mylms_backend/internal/model"
	"mylms_backend/internal/testutil"
	"mylms_backend/internal/util"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSystemStats(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	now := time.Now()

	admin := testutil.CreateUser(t, env.db, model.Admin, "admin")
	busy := testutil.CreateUser(t, env.db, model.Teacher, "busy")
	idle := testutil.CreateUser(t, env.db, model.Teacher, "idle")
	testutil.CreateUser(t, env.db, model.Teacher, "newbie")
	s1 := testutil.CreateUser(t, env.db, model.Student, "s1")
	s2 := testutil.CreateUser(t, env.db, model.Student, "s2")
	s3 := testutil.CreateUser(t, env.db, model.Student, "s3")

	open := testutil.CreateCourse(t, env.db, busy.ID, "Open")
	upcoming := testutil.CreateCourse(t, env.db, busy.ID, "Upcoming")
	finished := testutil.CreateCourse(t, env.db, idle.ID, "Finished")
	require.NoError(t, env.db.Model(upcoming).Updates(map[string]interface{}{
		"start_date": now.AddDate(0, 0, 10),
		"end_date":   now.AddDate(0, 0, 40),
	}).Error)
	require.NoError(t, env.db.Model(finished).Updates(map[string]interface{}{
		"start_date": now.AddDate(0, 0, -40),
		"end_date":   now.AddDate(0, 0, -10),
	}).Error)

	testutil.Enroll(t, env.db, s1.ID, open.ID, model.EnrollmentEnrolled)
	testutil.Enroll(t, env.db, s2.ID, open.ID, model.EnrollmentCompleted)
	testutil.Enroll(t, env.db, s3.ID, open.ID, model.EnrollmentDropped)
	testutil.Enroll(t, env.db, s1.ID, finished.ID, model.EnrollmentCompleted)

	require.NoError(t, env.db.Create(&model.Certificate{
		UserID: s2.ID, CourseID: open.ID, Code: model.NewCertificateCode(s2.ID, open.ID), IssuedAt: now,
	}).Error)
	require.NoError(t, env.db.Create(&model.Certificate{
		UserID: s1.ID, CourseID: finished.ID, Code: model.NewCertificateCode(s1.ID, finished.ID), IssuedAt: now.AddDate(0, 0, -60),
	}).Error)

	stats, err := env.stats.SystemStats(ctx, actorOf(admin))
	require.NoError(t, err)

	assert.Equal(t, UserStats{Total: 7, Students: 3, Teachers: 3, Admins: 1}, stats.Users)
	assert.Equal(t, CourseStats{Total: 3, Active: 1, Upcoming: 1, Completed: 1}, stats.Courses)
	assert.Equal(t, EnrollmentStats{Total: 4, Active: 1, Completed: 2, Dropped: 1}, stats.Enrollments)
	assert.Equal(t, CertificateStats{Total: 2, Last30Days: 1}, stats.Certificates)

	require.Len(t, stats.MonthlyRegistrations, 6)
	// 所有用户刚刚注册，落在最后一段
	assert.Equal(t, int64(7), stats.MonthlyRegistrations[5].Count)
	for _, p := range stats.MonthlyRegistrations[:5] {
		assert.Zero(t, p.Count)
	}

	require.Len(t, stats.PopularCourses, 3)
	assert.Equal(t, open.ID, stats.PopularCourses[0].CourseID)
	assert.Equal(t, int64(3), stats.PopularCourses[0].EnrollmentCount)
	assert.Equal(t, finished.ID, stats.PopularCourses[1].CourseID)
	assert.Equal(t, int64(0), stats.PopularCourses[2].EnrollmentCount)

	// 没有课程的教师不出现
	require.Len(t, stats.ActiveTeachers, 2)
	assert.Equal(t, busy.ID, stats.ActiveTeachers[0].UserID)
	assert.Equal(t, int64(2), stats.ActiveTeachers[0].CourseCount)
	assert.Equal(t, "idle", stats.ActiveTeachers[1].Username)
}

func TestSystemStatsRequiresAdmin(t *testing.T) {
	env := newTestEnv(t)
	teacher := testutil.CreateUser(t, env.db, model.Teacher, "teacher")

	_, err := env.stats.SystemStats(context.Background(), actorOf(teacher))
	assert.ErrorIs(t, err, util.ErrPermissionDenied)
}

func TestClassifyCourses(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	day := 24 * time.Hour
	courses := []model.Course{
		{},
		{StartDate: now.Add(day)},
		{StartDate: now.Add(day), EndDate: now.Add(2 * day)},
		{StartDate: now.Add(-2 * day), EndDate: now.Add(-day)},
		{StartDate: now.Add(-day), EndDate: now.Add(day)},
	}
	assert.Equal(t, CourseStats{Total: 5, Active: 3, Upcoming: 1, Completed: 1}, classifyCourses(courses, now))
}

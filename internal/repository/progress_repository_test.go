package repository

import (
	"context"
	"mylms_backend/internal/model"
	"mylms_backend/internal/testutil"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProgressUpsertAndLazyCreate(t *testing.T) {
	db := testutil.NewDB(t)
	ctx := context.Background()
	repo := NewProgressRepository(db)

	teacher := testutil.CreateUser(t, db, model.Teacher, "teacher")
	student := testutil.CreateUser(t, db, model.Student, "student")
	course := testutil.CreateCourse(t, db, teacher.ID, "Go")
	lesson := testutil.CreateLesson(t, db, course.ID, "Intro", 1)

	require.NoError(t, repo.CreateIfAbsent(ctx, &model.Progress{UserID: student.ID, LessonID: lesson.ID, Status: model.ProgressInProgress}))
	require.NoError(t, repo.Upsert(ctx, &model.Progress{UserID: student.ID, LessonID: lesson.ID, Status: model.ProgressCompleted}))
	// 再次查看不会降级已完成的课时
	require.NoError(t, repo.CreateIfAbsent(ctx, &model.Progress{UserID: student.ID, LessonID: lesson.ID, Status: model.ProgressInProgress}))

	p, err := repo.Find(ctx, student.ID, lesson.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ProgressCompleted, p.Status)

	var count int64
	require.NoError(t, db.Model(&model.Progress{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestStatusesForCourseScopedToCourse(t *testing.T) {
	db := testutil.NewDB(t)
	ctx := context.Background()
	repo := NewProgressRepository(db)

	teacher := testutil.CreateUser(t, db, model.Teacher, "teacher")
	student := testutil.CreateUser(t, db, model.Student, "student")
	goCourse := testutil.CreateCourse(t, db, teacher.ID, "Go")
	rust := testutil.CreateCourse(t, db, teacher.ID, "Rust")
	l1 := testutil.CreateLesson(t, db, goCourse.ID, "Intro", 1)
	l2 := testutil.CreateLesson(t, db, rust.ID, "Intro", 1)
	testutil.CompleteLesson(t, db, student.ID, l1.ID)
	testutil.CompleteLesson(t, db, student.ID, l2.ID)

	statuses, err := repo.StatusesForCourse(ctx, student.ID, goCourse.ID)
	require.NoError(t, err)
	require.Len(t, statuses, 1)
	assert.Equal(t, model.ProgressCompleted, statuses[l1.ID].Status)
}

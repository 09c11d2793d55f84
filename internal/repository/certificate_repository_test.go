package repository

import (
	"context"
	"mylms_backend/internal/model"
	"mylms_backend/internal/testutil"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCertificateCreateIfAbsent(t *testing.T) {
	db := testutil.NewDB(t)
	ctx := context.Background()
	repo := NewCertificateRepository(db)

	teacher := testutil.CreateUser(t, db, model.Teacher, "teacher")
	student := testutil.CreateUser(t, db, model.Student, "student")
	course := testutil.CreateCourse(t, db, teacher.ID, "Go")

	first := &model.Certificate{UserID: student.ID, CourseID: course.ID, Code: model.NewCertificateCode(student.ID, course.ID), IssuedAt: time.Now()}
	created, err := repo.CreateIfAbsent(ctx, first)
	require.NoError(t, err)
	assert.True(t, created)

	second := &model.Certificate{UserID: student.ID, CourseID: course.ID, Code: model.NewCertificateCode(student.ID, course.ID), IssuedAt: time.Now()}
	created, err = repo.CreateIfAbsent(ctx, second)
	require.NoError(t, err)
	assert.False(t, created)

	exists, err := repo.Exists(ctx, student.ID, course.ID)
	require.NoError(t, err)
	assert.True(t, exists)

	found, err := repo.FindByCode(ctx, first.Code)
	require.NoError(t, err)
	assert.Equal(t, first.ID, found.ID)
	require.NotNil(t, found.Course)
	assert.Equal(t, "Go", found.Course.Title)

	n, err := repo.CountByCourse(ctx, course.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestCertificateListByInstructor(t *testing.T) {
	db := testutil.NewDB(t)
	ctx := context.Background()
	repo := NewCertificateRepository(db)

	mine := testutil.CreateUser(t, db, model.Teacher, "mine")
	other := testutil.CreateUser(t, db, model.Teacher, "other")
	student := testutil.CreateUser(t, db, model.Student, "student")
	c1 := testutil.CreateCourse(t, db, mine.ID, "Go")
	c2 := testutil.CreateCourse(t, db, other.ID, "Rust")

	for _, c := range []*model.Course{c1, c2} {
		_, err := repo.CreateIfAbsent(ctx, &model.Certificate{UserID: student.ID, CourseID: c.ID, Code: model.NewCertificateCode(student.ID, c.ID), IssuedAt: time.Now()})
		require.NoError(t, err)
	}

	list, err := repo.ListByInstructor(ctx, mine.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, c1.ID, list[0].CourseID)

	all, err := repo.ListByUser(ctx, student.ID)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

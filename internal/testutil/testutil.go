// Package testutil 测试用的内存数据库与数据构造函数
package testutil

import (
	"fmt"
	"mylms_backend/internal/model"
	"mylms_backend/pkg/database"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Password 测试用户的明文密码
const Password = "secret123"

// NewDB 每个测试独立的内存 SQLite，单连接以避免共享缓存下的锁竞争
func NewDB(t testing.TB) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, database.Migrate(db))
	return db
}

func CreateUser(t testing.TB, db *gorm.DB, role model.UserRole, username string) *model.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(Password), bcrypt.MinCost)
	require.NoError(t, err)
	user := &model.User{
		Username:  username,
		Email:     username + "@example.com",
		Password:  string(hash),
		FirstName: username,
		Role:      role,
	}
	require.NoError(t, db.Create(user).Error)
	return user
}

func CreateCourse(t testing.TB, db *gorm.DB, instructorID uint, title string) *model.Course {
	t.Helper()
	course := &model.Course{Title: title, InstructorID: instructorID}
	require.NoError(t, db.Create(course).Error)
	return course
}

func CreateLesson(t testing.TB, db *gorm.DB, courseID uint, title string, order int) *model.Lesson {
	t.Helper()
	lesson := &model.Lesson{CourseID: courseID, Title: title, Order: order}
	require.NoError(t, db.Create(lesson).Error)
	return lesson
}

func CreateQuiz(t testing.TB, db *gorm.DB, courseID uint, title string, totalMarks int) *model.Quiz {
	t.Helper()
	quiz := &model.Quiz{CourseID: courseID, Title: title, TotalMarks: totalMarks}
	require.NoError(t, db.Create(quiz).Error)
	return quiz
}

func CreateQuestion(t testing.TB, db *gorm.DB, quizID uint, qt model.QuestionType, correct string, options ...string) *model.Question {
	t.Helper()
	q := &model.Question{
		QuizID:        quizID,
		Text:          "question " + correct,
		Type:          qt,
		CorrectAnswer: correct,
	}
	if len(options) > 0 {
		q.Options = model.OptionList(options)
	}
	require.NoError(t, db.Create(q).Error)
	return q
}

func Enroll(t testing.TB, db *gorm.DB, userID, courseID uint, status model.EnrollmentStatus) *model.Enrollment {
	t.Helper()
	e := &model.Enrollment{UserID: userID, CourseID: courseID, Status: status}
	require.NoError(t, db.Create(e).Error)
	return e
}

func CompleteLesson(t testing.TB, db *gorm.DB, userID, lessonID uint) {
	t.Helper()
	require.NoError(t, db.Create(&model.Progress{
		UserID:   userID,
		LessonID: lessonID,
		Status:   model.ProgressCompleted,
	}).Error)
}

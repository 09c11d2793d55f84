package service

import (
	"context"
	"mylms_backend/internal/model"
	"mylms_backend/internal/testutil"
	"mylms_backend/internal/util"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }
func intPtr(i int) *int       { return &i }
func boolPtr(b bool) *bool    { return &b }

func TestQuizAuthoring(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	teacher := testutil.CreateUser(t, env.db, model.Teacher, "teacher")
	other := testutil.CreateUser(t, env.db, model.Teacher, "other")
	course := testutil.CreateCourse(t, env.db, teacher.ID, "Go")

	_, err := env.quizzes.CreateQuiz(ctx, actorOf(other), course.ID, QuizReq{Title: strPtr("Basics")})
	assert.ErrorIs(t, err, util.ErrPermissionDenied)

	_, err = env.quizzes.CreateQuiz(ctx, actorOf(teacher), course.ID, QuizReq{Title: strPtr("Basics"), TotalMarks: intPtr(0)})
	assert.ErrorIs(t, err, util.ErrInvalidTotalMarks)

	quiz, err := env.quizzes.CreateQuiz(ctx, actorOf(teacher), course.ID, QuizReq{Title: strPtr(" Basics ")})
	require.NoError(t, err)
	assert.Equal(t, "Basics", quiz.Title)
	assert.Equal(t, model.DefaultTotalMarks, quiz.TotalMarks)

	_, err = env.quizzes.AddQuestion(ctx, actorOf(teacher), quiz.ID, QuestionInput{
		Text: "Pick one", Type: model.MultipleChoice, CorrectAnswer: "c", Options: []string{"a", "b"},
	})
	assert.ErrorIs(t, err, util.ErrAnswerNotInOptions)
	count, err := env.quizRepo.CountQuestions(ctx, quiz.ID)
	require.NoError(t, err)
	assert.Zero(t, count)

	q, err := env.quizzes.AddQuestion(ctx, actorOf(teacher), quiz.ID, QuestionInput{
		Text: "Pick one", Type: model.MultipleChoice, CorrectAnswer: "b", Options: []string{"a", "b"},
	})
	require.NoError(t, err)
	assert.Equal(t, model.OptionList{"a", "b"}, q.Options)

	closed, err := env.quizzes.UpdateQuiz(ctx, actorOf(teacher), quiz.ID, QuizReq{Closed: boolPtr(true)})
	require.NoError(t, err)
	assert.True(t, closed.Closed)
	assert.NotNil(t, closed.ClosedAt)

	reopened, err := env.quizzes.UpdateQuiz(ctx, actorOf(teacher), quiz.ID, QuizReq{Closed: boolPtr(false)})
	require.NoError(t, err)
	assert.False(t, reopened.Closed)
	assert.Nil(t, reopened.ClosedAt)
}

func TestGetQuizHidesAnswersFromStudents(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	teacher := testutil.CreateUser(t, env.db, model.Teacher, "teacher")
	student := testutil.CreateUser(t, env.db, model.Student, "student")
	outsider := testutil.CreateUser(t, env.db, model.Student, "outsider")
	course := testutil.CreateCourse(t, env.db, teacher.ID, "Go")
	quiz := testutil.CreateQuiz(t, env.db, course.ID, "Basics", 100)
	testutil.CreateQuestion(t, env.db, quiz.ID, model.MultipleChoice, "b", "a", "b")
	testutil.Enroll(t, env.db, student.ID, course.ID, model.EnrollmentEnrolled)

	detail, err := env.quizzes.GetQuiz(ctx, actorOf(student), quiz.ID)
	require.NoError(t, err)
	require.Len(t, detail.Questions, 1)
	assert.Empty(t, detail.Questions[0].CorrectAnswer)
	assert.Equal(t, model.OptionList{"a", "b"}, detail.Questions[0].Options)

	detail, err = env.quizzes.GetQuiz(ctx, actorOf(teacher), quiz.ID)
	require.NoError(t, err)
	assert.Equal(t, "b", detail.Questions[0].CorrectAnswer)

	_, err = env.quizzes.GetQuiz(ctx, actorOf(outsider), quiz.ID)
	assert.ErrorIs(t, err, util.ErrNotEnrolled)

	_, err = env.quizzes.GetQuiz(ctx, actorOf(student), 9999)
	assert.ErrorIs(t, err, util.ErrQuizNotFound)
}

func TestQuizStatistics(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	teacher := testutil.CreateUser(t, env.db, model.Teacher, "teacher")
	alice := testutil.CreateUser(t, env.db, model.Student, "alice")
	bob := testutil.CreateUser(t, env.db, model.Student, "bob")
	course := testutil.CreateCourse(t, env.db, teacher.ID, "Go")
	quiz := testutil.CreateQuiz(t, env.db, course.ID, "Basics", 100)
	q1 := testutil.CreateQuestion(t, env.db, quiz.ID, model.TrueFalse, "true")
	q2 := testutil.CreateQuestion(t, env.db, quiz.ID, model.TrueFalse, "false")
	testutil.Enroll(t, env.db, alice.ID, course.ID, model.EnrollmentEnrolled)
	testutil.Enroll(t, env.db, bob.ID, course.ID, model.EnrollmentEnrolled)

	_, err := env.submissions.Submit(ctx, actorOf(alice), quiz.ID, []SubmittedAnswer{answer(q1, "true"), answer(q2, "false")})
	require.NoError(t, err)
	_, err = env.submissions.Submit(ctx, actorOf(bob), quiz.ID, []SubmittedAnswer{answer(q1, "false")})
	require.NoError(t, err)

	_, err = env.quizzes.Statistics(ctx, actorOf(alice), quiz.ID)
	assert.ErrorIs(t, err, util.ErrPermissionDenied)

	stats, err := env.quizzes.Statistics(ctx, actorOf(teacher), quiz.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.QuestionCount)
	assert.Equal(t, 2, stats.Participants)
	assert.Equal(t, 1, stats.CompletedCount)
	assert.Equal(t, 50.0, stats.AverageScore)
	require.Len(t, stats.Questions, 2)
	assert.Equal(t, int64(2), stats.Questions[0].Attempts)
	assert.Equal(t, 50.0, stats.Questions[0].CorrectRate)
	assert.Equal(t, 100.0, stats.Questions[1].CorrectRate)

	answers, err := env.quizzes.MyAnswers(ctx, actorOf(bob), quiz.ID)
	require.NoError(t, err)
	require.Len(t, answers, 1)
	assert.Equal(t, q1.ID, answers[0].QuestionID)
}

func TestCourseLessonsAndCascadeDelete(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	teacher := testutil.CreateUser(t, env.db, model.Teacher, "teacher")
	student := testutil.CreateUser(t, env.db, model.Student, "student")

	_, err := env.courses.CreateCourse(ctx, actorOf(student), CourseReq{Title: strPtr("Nope")})
	assert.ErrorIs(t, err, util.ErrPermissionDenied)

	_, err = env.courses.CreateCourse(ctx, actorOf(teacher), CourseReq{
		Title: strPtr("Go"), StartDate: strPtr("2024-06-01"), EndDate: strPtr("2024-05-01"),
	})
	assert.ErrorIs(t, err, util.ErrValidation)

	course, err := env.courses.CreateCourse(ctx, actorOf(teacher), CourseReq{Title: strPtr("Go"), StartDate: strPtr("2024-01-01")})
	require.NoError(t, err)
	assert.Equal(t, teacher.ID, course.InstructorID)

	testutil.Enroll(t, env.db, student.ID, course.ID, model.EnrollmentEnrolled)
	lesson, err := env.courses.CreateLesson(ctx, actorOf(teacher), course.ID, LessonReq{Title: strPtr("Intro"), Order: intPtr(1)})
	require.NoError(t, err)
	assert.Equal(t, int64(1), env.notificationCount(t, student.ID, model.NotificationLessonAdded))

	got, err := env.courses.GetLesson(ctx, actorOf(student), lesson.ID)
	require.NoError(t, err)
	assert.Equal(t, "Intro", got.Title)

	mine, err := env.courses.ListCourses(ctx, actorOf(student))
	require.NoError(t, err)
	assert.Len(t, mine, 1)

	require.NoError(t, env.courses.DeleteCourse(ctx, actorOf(teacher), course.ID))
	_, err = env.courses.GetCourse(ctx, course.ID)
	assert.ErrorIs(t, err, util.ErrCourseNotFound)
	_, err = env.enrollRepo.Find(ctx, student.ID, course.ID)
	assert.Error(t, err)
}

package service

import (
	"context"
	"mylms_backend/internal/model"
	"mylms_backend/internal/testutil"
	"mylms_backend/internal/util"
	"mylms_backend/pkg/events"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var certificateCodePattern = regexp.MustCompile(`^\d+-\d+-[0-9A-F]{8}$`)

func TestCourseCompletionEndToEnd(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	teacher := testutil.CreateUser(t, env.db, model.Teacher, "teacher")
	student := testutil.CreateUser(t, env.db, model.Student, "student")
	course := testutil.CreateCourse(t, env.db, teacher.ID, "Go")
	l1 := testutil.CreateLesson(t, env.db, course.ID, "Intro", 1)
	l2 := testutil.CreateLesson(t, env.db, course.ID, "Types", 2)
	quiz := testutil.CreateQuiz(t, env.db, course.ID, "Final", 100)
	q1 := testutil.CreateQuestion(t, env.db, quiz.ID, model.TrueFalse, "true")
	q2 := testutil.CreateQuestion(t, env.db, quiz.ID, model.MultipleChoice, "chan", "chan", "mutex")

	_, err := env.enrollments.Enroll(ctx, actorOf(student), course.ID)
	require.NoError(t, err)

	res, err := env.progress.UpdateLessonProgress(ctx, actorOf(student), l1.ID, model.ProgressCompleted)
	require.NoError(t, err)
	assert.Equal(t, 50.0, res.Report.LessonCompletionPercentage)
	assert.False(t, res.Report.IsComplete)

	res, err = env.progress.UpdateLessonProgress(ctx, actorOf(student), l2.ID, model.ProgressCompleted)
	require.NoError(t, err)
	assert.Equal(t, 100.0, res.Report.LessonCompletionPercentage)
	// 测验未完成
	assert.False(t, res.Report.IsComplete)
	assert.Nil(t, res.Report.Certificate)
	assert.Equal(t, model.EnrollmentEnrolled, env.enrollmentStatus(t, student.ID, course.ID))

	sub, err := env.submissions.Submit(ctx, actorOf(student), quiz.ID, []SubmittedAnswer{
		answer(q1, "true"),
		answer(q2, "chan"),
	})
	require.NoError(t, err)
	require.NotNil(t, sub.TotalScore)
	assert.Equal(t, 100.0, *sub.TotalScore)

	require.NotNil(t, sub.Report)
	assert.True(t, sub.Report.IsComplete)
	assert.Equal(t, 100.0, sub.Report.OverallPercentage)
	assert.Equal(t, model.EnrollmentCompleted, sub.Report.EnrollmentStatus)
	require.NotNil(t, sub.Report.Certificate)
	assert.Regexp(t, certificateCodePattern, sub.Report.Certificate.Code)

	assert.Equal(t, model.EnrollmentCompleted, env.enrollmentStatus(t, student.ID, course.ID))
	assert.Equal(t, int64(1), env.certificateCount(t, student.ID, course.ID))
	assert.Equal(t, int64(1), env.notificationCount(t, student.ID, model.NotificationCertificateIssued))
	assert.Equal(t, 1, env.publisher.count(events.EventCertificateIssued))
	assert.Equal(t, 1, env.publisher.count(events.EventCourseCompleted))
}

func TestEvaluateCourseCompletionIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	teacher := testutil.CreateUser(t, env.db, model.Teacher, "teacher")
	student := testutil.CreateUser(t, env.db, model.Student, "student")
	course := testutil.CreateCourse(t, env.db, teacher.ID, "Go")
	lesson := testutil.CreateLesson(t, env.db, course.ID, "Intro", 1)
	testutil.Enroll(t, env.db, student.ID, course.ID, model.EnrollmentEnrolled)
	testutil.CompleteLesson(t, env.db, student.ID, lesson.ID)

	first, err := env.progress.EvaluateCourseCompletion(ctx, student.ID, course.ID)
	require.NoError(t, err)
	require.NotNil(t, first.Certificate)

	second, err := env.progress.EvaluateCourseCompletion(ctx, student.ID, course.ID)
	require.NoError(t, err)
	require.NotNil(t, second.Certificate)
	assert.Equal(t, first.Certificate.Code, second.Certificate.Code)
	assert.Empty(t, second.SideEffects)

	assert.Equal(t, int64(1), env.certificateCount(t, student.ID, course.ID))
	assert.Equal(t, int64(1), env.notificationCount(t, student.ID, model.NotificationCertificateIssued))
}

func TestCompleteCourseExactlyOnce(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	teacher := testutil.CreateUser(t, env.db, model.Teacher, "teacher")
	student := testutil.CreateUser(t, env.db, model.Student, "student")
	course := testutil.CreateCourse(t, env.db, teacher.ID, "Go")
	enrollment := testutil.Enroll(t, env.db, student.ID, course.ID, model.EnrollmentEnrolled)

	first, err := env.certificates.completeCourse(ctx, enrollment, course, IssuePathAuto)
	require.NoError(t, err)
	assert.True(t, first.Issued)

	// 模拟并发的另一方：仍持有 enrolled 状态的旧快照
	stale := *enrollment
	stale.Status = model.EnrollmentEnrolled
	second, err := env.certificates.completeCourse(ctx, &stale, course, IssuePathManual)
	require.NoError(t, err)
	assert.False(t, second.Issued)
	assert.Equal(t, first.Certificate.Code, second.Certificate.Code)

	assert.Equal(t, int64(1), env.certificateCount(t, student.ID, course.ID))
	assert.Equal(t, int64(1), env.notificationCount(t, student.ID, model.NotificationCertificateIssued))
}

func TestCourseWithoutLessonsOrQuizzesIsComplete(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	teacher := testutil.CreateUser(t, env.db, model.Teacher, "teacher")
	student := testutil.CreateUser(t, env.db, model.Student, "student")
	course := testutil.CreateCourse(t, env.db, teacher.ID, "Empty")
	testutil.Enroll(t, env.db, student.ID, course.ID, model.EnrollmentEnrolled)

	report, err := env.progress.GetCourseProgress(ctx, actorOf(student), course.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, report.TotalLessons)
	assert.Zero(t, report.LessonCompletionPercentage)
	assert.Zero(t, report.OverallPercentage)
	assert.True(t, report.IsComplete)
	assert.NotNil(t, report.Certificate)
	assert.Equal(t, model.EnrollmentCompleted, report.EnrollmentStatus)
}

func TestLessonlessCourseCompletesOnQuizzes(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	teacher := testutil.CreateUser(t, env.db, model.Teacher, "teacher")
	student := testutil.CreateUser(t, env.db, model.Student, "student")
	course := testutil.CreateCourse(t, env.db, teacher.ID, "Quiz only")
	quiz := testutil.CreateQuiz(t, env.db, course.ID, "Final", 100)
	q := testutil.CreateQuestion(t, env.db, quiz.ID, model.TrueFalse, "true")
	testutil.Enroll(t, env.db, student.ID, course.ID, model.EnrollmentEnrolled)

	report, err := env.progress.GetCourseProgress(ctx, actorOf(student), course.ID)
	require.NoError(t, err)
	assert.Zero(t, report.LessonCompletionPercentage)
	assert.Zero(t, report.OverallPercentage)
	assert.False(t, report.IsComplete)

	_, err = env.submissions.Submit(ctx, actorOf(student), quiz.ID, []SubmittedAnswer{answer(q, "false")})
	require.NoError(t, err)

	report, err = env.progress.GetCourseProgress(ctx, actorOf(student), course.ID)
	require.NoError(t, err)
	assert.Zero(t, report.LessonCompletionPercentage)
	assert.Equal(t, 100.0, report.OverallPercentage)
	assert.True(t, report.IsComplete)
	assert.Equal(t, model.EnrollmentCompleted, report.EnrollmentStatus)
}

func TestBuildReportCounts(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	teacher := testutil.CreateUser(t, env.db, model.Teacher, "teacher")
	student := testutil.CreateUser(t, env.db, model.Student, "student")
	course := testutil.CreateCourse(t, env.db, teacher.ID, "Go")
	l1 := testutil.CreateLesson(t, env.db, course.ID, "a", 1)
	l2 := testutil.CreateLesson(t, env.db, course.ID, "b", 2)
	testutil.CreateLesson(t, env.db, course.ID, "c", 3)
	quiz := testutil.CreateQuiz(t, env.db, course.ID, "Quiz", 100)
	testutil.CreateQuestion(t, env.db, quiz.ID, model.TrueFalse, "true")
	testutil.CreateQuiz(t, env.db, course.ID, "Empty quiz", 100)

	testutil.CompleteLesson(t, env.db, student.ID, l1.ID)
	require.NoError(t, env.progress.RecordLessonView(ctx, student.ID, l2))

	report, err := env.progress.BuildReport(ctx, student.ID, course)
	require.NoError(t, err)
	assert.Equal(t, 3, report.TotalLessons)
	assert.Equal(t, 1, report.CompletedLessons)
	assert.Equal(t, 1, report.InProgressLessons)
	assert.Equal(t, 1, report.NotStartedLessons)
	assert.Equal(t, 33.33, report.LessonCompletionPercentage)

	assert.Equal(t, 2, report.TotalQuizzes)
	// 没有题目的测验视为完成
	assert.Equal(t, 1, report.CompletedQuizzes)
	assert.Equal(t, QuizNotStarted, report.Quizzes[0].Status)
	assert.Equal(t, QuizCompleted, report.Quizzes[1].Status)
	assert.Equal(t, 40.0, report.OverallPercentage)
	assert.False(t, report.IsComplete)
}

func TestProgressAccessRules(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	teacher := testutil.CreateUser(t, env.db, model.Teacher, "teacher")
	other := testutil.CreateUser(t, env.db, model.Teacher, "other")
	student := testutil.CreateUser(t, env.db, model.Student, "student")
	outsider := testutil.CreateUser(t, env.db, model.Student, "outsider")
	course := testutil.CreateCourse(t, env.db, teacher.ID, "Go")
	lesson := testutil.CreateLesson(t, env.db, course.ID, "Intro", 1)
	testutil.Enroll(t, env.db, student.ID, course.ID, model.EnrollmentEnrolled)

	_, err := env.progress.GetCourseProgress(ctx, actorOf(outsider), course.ID)
	assert.ErrorIs(t, err, util.ErrNotEnrolled)

	_, err = env.progress.GetCourseProgress(ctx, actorOf(student), 9999)
	assert.ErrorIs(t, err, util.ErrCourseNotFound)

	_, err = env.progress.UpdateLessonProgress(ctx, actorOf(outsider), lesson.ID, model.ProgressCompleted)
	assert.ErrorIs(t, err, util.ErrNotEnrolled)

	_, err = env.progress.UpdateLessonProgress(ctx, actorOf(student), lesson.ID, "done")
	assert.ErrorIs(t, err, util.ErrInvalidStatus)

	_, err = env.progress.GetStudentProgress(ctx, actorOf(other), course.ID, student.ID)
	assert.ErrorIs(t, err, util.ErrPermissionDenied)

	// 讲师查看是只读的，不会触发签发
	testutil.CompleteLesson(t, env.db, student.ID, lesson.ID)
	report, err := env.progress.GetStudentProgress(ctx, actorOf(teacher), course.ID, student.ID)
	require.NoError(t, err)
	assert.True(t, report.IsComplete)
	assert.Nil(t, report.Certificate)
	assert.Zero(t, env.certificateCount(t, student.ID, course.ID))
	assert.Equal(t, model.EnrollmentEnrolled, env.enrollmentStatus(t, student.ID, course.ID))
}

func TestFailedCompletionIsRetriedOnNextEvaluation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	teacher := testutil.CreateUser(t, env.db, model.Teacher, "teacher")
	student := testutil.CreateUser(t, env.db, model.Student, "student")
	course := testutil.CreateCourse(t, env.db, teacher.ID, "Go")
	testutil.Enroll(t, env.db, student.ID, course.ID, model.EnrollmentEnrolled)

	require.NoError(t, env.db.Migrator().DropTable(&model.Notification{}))
	report, err := env.progress.EvaluateCourseCompletion(ctx, student.ID, course.ID)
	require.NoError(t, err)
	require.Len(t, report.SideEffects, 1)
	assert.Equal(t, "complete_course", report.SideEffects[0].Name)
	assert.False(t, report.SideEffects[0].OK)
	// 事务回滚：没有证书，状态仍是 enrolled
	assert.Zero(t, env.certificateCount(t, student.ID, course.ID))
	assert.Equal(t, model.EnrollmentEnrolled, env.enrollmentStatus(t, student.ID, course.ID))

	require.NoError(t, env.db.AutoMigrate(&model.Notification{}))
	report, err = env.progress.EvaluateCourseCompletion(ctx, student.ID, course.ID)
	require.NoError(t, err)
	require.NotNil(t, report.Certificate)
	assert.Equal(t, int64(1), env.certificateCount(t, student.ID, course.ID))
	assert.Equal(t, model.EnrollmentCompleted, env.enrollmentStatus(t, student.ID, course.ID))
}

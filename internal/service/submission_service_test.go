package service

import (
	"context"
	"mylms_backend/internal/model"
	"mylms_backend/internal/testutil"
	"mylms_backend/internal/util"
	"mylms_backend/pkg/events"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type quizFixture struct {
	teacher *model.User
	student *model.User
	course  *model.Course
	quiz    *model.Quiz
}

func newQuizFixture(t *testing.T, env *testEnv, totalMarks int) *quizFixture {
	t.Helper()
	f := &quizFixture{
		teacher: testutil.CreateUser(t, env.db, model.Teacher, "teacher"),
		student: testutil.CreateUser(t, env.db, model.Student, "student"),
	}
	f.course = testutil.CreateCourse(t, env.db, f.teacher.ID, "Go")
	f.quiz = testutil.CreateQuiz(t, env.db, f.course.ID, "Basics", totalMarks)
	testutil.Enroll(t, env.db, f.student.ID, f.course.ID, model.EnrollmentEnrolled)
	return f
}

func TestSubmitResubmissionReplacesAnswer(t *testing.T) {
	env := newTestEnv(t)
	f := newQuizFixture(t, env, 100)
	q1 := testutil.CreateQuestion(t, env.db, f.quiz.ID, model.TrueFalse, "true")
	testutil.CreateQuestion(t, env.db, f.quiz.ID, model.TrueFalse, "false")
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		res, err := env.submissions.Submit(ctx, actorOf(f.student), f.quiz.ID, []SubmittedAnswer{answer(q1, "True")})
		require.NoError(t, err)
		require.Len(t, res.Outcomes, 1)
		assert.True(t, res.Outcomes[0].OK())
		assert.Equal(t, 50.0, *res.Outcomes[0].MarksObtained)
	}

	var count int64
	require.NoError(t, env.db.Model(&model.Answer{}).Where("question_id = ? AND user_id = ?", q1.ID, f.student.ID).Count(&count).Error)
	assert.Equal(t, int64(1), count)

	// 改答案后覆盖原有评分
	_, err := env.submissions.Submit(ctx, actorOf(f.student), f.quiz.ID, []SubmittedAnswer{answer(q1, "false")})
	require.NoError(t, err)
	stored, err := env.quizRepo.FindAnswer(ctx, q1.ID, f.student.ID)
	require.NoError(t, err)
	assert.False(t, stored.IsCorrect)
	assert.Equal(t, 0.0, stored.MarksObtained)
	assert.Equal(t, "false", stored.Text)
}

func TestSubmitWeightFollowsCurrentQuestionCount(t *testing.T) {
	env := newTestEnv(t)
	f := newQuizFixture(t, env, 100)
	var questions []*model.Question
	for i := 0; i < 4; i++ {
		questions = append(questions, testutil.CreateQuestion(t, env.db, f.quiz.ID, model.TrueFalse, "true"))
	}
	ctx := context.Background()

	res, err := env.submissions.Submit(ctx, actorOf(f.student), f.quiz.ID, []SubmittedAnswer{answer(questions[0], "true")})
	require.NoError(t, err)
	assert.Equal(t, 25.0, *res.Outcomes[0].MarksObtained)

	fifth := testutil.CreateQuestion(t, env.db, f.quiz.ID, model.TrueFalse, "true")
	res, err = env.submissions.Submit(ctx, actorOf(f.student), f.quiz.ID, []SubmittedAnswer{answer(fifth, "true")})
	require.NoError(t, err)
	assert.Equal(t, 20.0, *res.Outcomes[0].MarksObtained)
	assert.Equal(t, int64(5), res.QuestionCount)
}

func TestSubmitBatchWithForeignQuestion(t *testing.T) {
	env := newTestEnv(t)
	f := newQuizFixture(t, env, 90)
	other := testutil.CreateQuiz(t, env.db, f.course.ID, "Other", 100)
	foreign := testutil.CreateQuestion(t, env.db, other.ID, model.TrueFalse, "true")

	q1 := testutil.CreateQuestion(t, env.db, f.quiz.ID, model.TrueFalse, "true")
	q2 := testutil.CreateQuestion(t, env.db, f.quiz.ID, model.MultipleChoice, "b", "a", "b")
	q3 := testutil.CreateQuestion(t, env.db, f.quiz.ID, model.ShortAnswer, "Python")

	res, err := env.submissions.Submit(context.Background(), actorOf(f.student), f.quiz.ID, []SubmittedAnswer{
		answer(q1, "true"),
		answer(foreign, "true"),
		answer(q2, "B"),
		answer(q3, "I love Python"),
	})
	require.NoError(t, err)
	require.Len(t, res.Outcomes, 4)

	var ok, failed int
	for _, o := range res.Outcomes {
		if o.OK() {
			ok++
		} else {
			failed++
			assert.Equal(t, foreign.ID, o.QuestionID)
			assert.Equal(t, util.ErrQuestionNotFound.Error(), o.Error)
			assert.Nil(t, o.MarksObtained)
		}
	}
	assert.Equal(t, 3, ok)
	assert.Equal(t, 1, failed)

	assert.Equal(t, 30.0, *res.Outcomes[0].MarksObtained)
	assert.Equal(t, 30.0, *res.Outcomes[2].MarksObtained)
	assert.Equal(t, 15.0, *res.Outcomes[3].MarksObtained)
	assert.False(t, *res.Outcomes[3].IsCorrect)

	var stored int64
	require.NoError(t, env.db.Model(&model.Answer{}).Where("user_id = ?", f.student.ID).Count(&stored).Error)
	assert.Equal(t, int64(3), stored)

	require.True(t, res.QuizCompleted)
	assert.Equal(t, 75.0, *res.TotalScore)
}

func TestSubmitCompletedQuizNotifiesPerGradedSubmission(t *testing.T) {
	env := newTestEnv(t)
	f := newQuizFixture(t, env, 100)
	// 未完成的课时让课程保持 enrolled，学生可以继续提交
	testutil.CreateLesson(t, env.db, f.course.ID, "Intro", 1)
	q1 := testutil.CreateQuestion(t, env.db, f.quiz.ID, model.TrueFalse, "true")
	q2 := testutil.CreateQuestion(t, env.db, f.quiz.ID, model.TrueFalse, "false")
	ctx := context.Background()

	res, err := env.submissions.Submit(ctx, actorOf(f.student), f.quiz.ID, []SubmittedAnswer{answer(q1, "true")})
	require.NoError(t, err)
	assert.False(t, res.QuizCompleted)
	assert.Nil(t, res.TotalScore)
	assert.Zero(t, env.notificationCount(t, f.student.ID, model.NotificationQuizGraded))

	res, err = env.submissions.Submit(ctx, actorOf(f.student), f.quiz.ID, []SubmittedAnswer{answer(q2, "false")})
	require.NoError(t, err)
	require.True(t, res.QuizCompleted)
	assert.Equal(t, 100.0, *res.TotalScore)
	assert.Equal(t, int64(1), env.notificationCount(t, f.student.ID, model.NotificationQuizGraded))
	assert.Equal(t, 1, env.publisher.count(events.EventQuizCompleted))

	list, _, err := env.notifRepo.ListByUser(ctx, f.student.ID, false, 1, 10)
	require.NoError(t, err)
	var found bool
	for _, n := range list {
		if n.Type == model.NotificationQuizGraded {
			found = true
			assert.Equal(t, "You scored 100 out of 100 on Basics.", n.Message)
		}
	}
	assert.True(t, found)

	// 完成后再次提交会重新评分，并按新总分再通知一次
	res, err = env.submissions.Submit(ctx, actorOf(f.student), f.quiz.ID, []SubmittedAnswer{answer(q2, "true")})
	require.NoError(t, err)
	require.True(t, res.QuizCompleted)
	assert.Equal(t, 50.0, *res.TotalScore)
	assert.Equal(t, int64(2), env.notificationCount(t, f.student.ID, model.NotificationQuizGraded))
	assert.Equal(t, 2, env.publisher.count(events.EventQuizCompleted))
	assert.Equal(t, model.EnrollmentEnrolled, env.enrollmentStatus(t, f.student.ID, f.course.ID))
}

func TestSubmitPreconditions(t *testing.T) {
	env := newTestEnv(t)
	f := newQuizFixture(t, env, 100)
	ctx := context.Background()

	// 没有题目的测验不能评分
	_, err := env.submissions.Submit(ctx, actorOf(f.student), f.quiz.ID, []SubmittedAnswer{{QuestionID: 1, AnswerText: "x"}})
	assert.ErrorIs(t, err, util.ErrEmptyQuiz)

	q := testutil.CreateQuestion(t, env.db, f.quiz.ID, model.TrueFalse, "true")

	_, err = env.submissions.Submit(ctx, actorOf(f.student), 9999, []SubmittedAnswer{answer(q, "true")})
	assert.ErrorIs(t, err, util.ErrQuizNotFound)

	outsider := testutil.CreateUser(t, env.db, model.Student, "outsider")
	_, err = env.submissions.Submit(ctx, actorOf(outsider), f.quiz.ID, []SubmittedAnswer{answer(q, "true")})
	assert.ErrorIs(t, err, util.ErrNotEnrolled)

	dropped := testutil.CreateUser(t, env.db, model.Student, "dropped")
	testutil.Enroll(t, env.db, dropped.ID, f.course.ID, model.EnrollmentDropped)
	_, err = env.submissions.Submit(ctx, actorOf(dropped), f.quiz.ID, []SubmittedAnswer{answer(q, "true")})
	assert.ErrorIs(t, err, util.ErrNotEnrolled)

	require.NoError(t, env.db.Model(f.quiz).Update("closed", true).Error)
	_, err = env.submissions.Submit(ctx, actorOf(f.student), f.quiz.ID, []SubmittedAnswer{answer(q, "true")})
	assert.ErrorIs(t, err, util.ErrQuizClosed)

	var count int64
	require.NoError(t, env.db.Model(&model.Answer{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestSubmitSurvivesBrokerFailure(t *testing.T) {
	env := newTestEnv(t)
	env.publisher.fail(errBrokerDown)
	f := newQuizFixture(t, env, 100)
	q := testutil.CreateQuestion(t, env.db, f.quiz.ID, model.TrueFalse, "true")

	res, err := env.submissions.Submit(context.Background(), actorOf(f.student), f.quiz.ID, []SubmittedAnswer{answer(q, "true")})
	require.NoError(t, err)
	require.True(t, res.QuizCompleted)

	var publishFailed bool
	for _, se := range res.SideEffects {
		if se.Name == "publish_quiz_completed" {
			publishFailed = !se.OK
		}
	}
	assert.True(t, publishFailed)
	// 通知已入库，投递失败不影响
	assert.Equal(t, int64(1), env.notificationCount(t, f.student.ID, model.NotificationQuizGraded))
}

package app

import (
	"bytes"
	"encoding/json"
	"fmt"
	"mylms_backend/internal/config"
	"mylms_backend/internal/model"
	"mylms_backend/internal/testutil"
	"mylms_backend/internal/util"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const testSecret = "test-secret-for-router-tests"

type apiResponse struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type testServer struct {
	t   *testing.T
	app *App
	db  *gorm.DB
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	db := testutil.NewDB(t)
	cfg := &config.Config{
		Server:       config.ServerConfig{Port: "0", Mode: gin.TestMode},
		JWT:          config.JWTConfig{Secret: testSecret, ExpireTime: time.Hour},
		Storage:      config.StorageConfig{Type: "local", LocalPath: t.TempDir()},
		RateLimit:    config.RateLimitConfig{MaxRequests: 10000, WindowMinutes: 1},
		Grading:      config.GradingConfig{ShortAnswerPartialRatio: 0.5},
		Notification: config.NotificationConfig{MaxAttempts: 1},
		Cache:        config.CacheConfig{VerifyTTLSeconds: 60},
	}
	a := New(cfg, db, nil, nil)
	t.Cleanup(a.rateLimiter.Stop)
	return &testServer{t: t, app: a, db: db}
}

func (s *testServer) token(u *model.User) string {
	s.t.Helper()
	tok, err := util.GenerateJWT(u, testSecret, time.Hour)
	require.NoError(s.t, err)
	return tok
}

func (s *testServer) do(method, path, token string, body interface{}) (int, apiResponse) {
	s.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(s.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.app.Router.ServeHTTP(w, req)

	var resp apiResponse
	if w.Body.Len() > 0 {
		_ = json.Unmarshal(w.Body.Bytes(), &resp)
	}
	return w.Code, resp
}

func decode(t *testing.T, raw json.RawMessage, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(raw, v))
}

func TestHealthAndAuthRequired(t *testing.T) {
	s := newTestServer(t)

	code, resp := s.do(http.MethodGet, "/api/health", "", nil)
	require.Equal(t, http.StatusOK, code)
	var health struct {
		Status     string            `json:"status"`
		Components map[string]string `json:"components"`
	}
	decode(t, resp.Data, &health)
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, "disabled", health.Components["cache"])

	code, _ = s.do(http.MethodGet, "/api/courses", "", nil)
	assert.Equal(t, http.StatusUnauthorized, code)

	code, _ = s.do(http.MethodGet, "/api/courses", "not-a-token", nil)
	assert.Equal(t, http.StatusUnauthorized, code)
}

func TestRegisterLoginProfile(t *testing.T) {
	s := newTestServer(t)

	code, resp := s.do(http.MethodPost, "/api/register", "", map[string]string{
		"username": "ada", "email": "ada@example.com", "password": "secret123",
	})
	require.Equal(t, http.StatusCreated, code, resp.Message)

	code, _ = s.do(http.MethodPost, "/api/register", "", map[string]string{
		"username": "ada", "email": "other@example.com", "password": "secret123",
	})
	assert.Equal(t, http.StatusConflict, code)

	code, _ = s.do(http.MethodPost, "/api/login", "", map[string]string{"login": "ada", "password": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, code)

	code, resp = s.do(http.MethodPost, "/api/login", "", map[string]string{"login": "ada", "password": "secret123"})
	require.Equal(t, http.StatusOK, code)
	var login struct {
		Token string `json:"token"`
	}
	decode(t, resp.Data, &login)
	require.NotEmpty(t, login.Token)

	code, resp = s.do(http.MethodGet, "/api/profile", login.Token, nil)
	require.Equal(t, http.StatusOK, code)
	var me model.User
	decode(t, resp.Data, &me)
	assert.Equal(t, "ada", me.Username)
	assert.Equal(t, model.Student, me.Role)
}

func TestRoleGuards(t *testing.T) {
	s := newTestServer(t)
	teacher := testutil.CreateUser(t, s.db, model.Teacher, "teacher")
	student := testutil.CreateUser(t, s.db, model.Student, "student")
	course := testutil.CreateCourse(t, s.db, teacher.ID, "Go")

	code, _ := s.do(http.MethodPost, "/api/courses", s.token(student), map[string]string{"title": "Nope"})
	assert.Equal(t, http.StatusForbidden, code)

	code, _ = s.do(http.MethodGet, "/api/admin/users", s.token(teacher), nil)
	assert.Equal(t, http.StatusForbidden, code)

	code, _ = s.do(http.MethodPost, "/api/certificates/issue", s.token(student),
		map[string]uint{"courseId": course.ID, "studentId": student.ID})
	assert.Equal(t, http.StatusForbidden, code)

	var certs int64
	require.NoError(t, s.db.Model(&model.Certificate{}).Count(&certs).Error)
	assert.Zero(t, certs)
}

func TestCourseFlowOverHTTP(t *testing.T) {
	s := newTestServer(t)
	teacher := testutil.CreateUser(t, s.db, model.Teacher, "teacher")
	student := testutil.CreateUser(t, s.db, model.Student, "student")
	teacherTok, studentTok := s.token(teacher), s.token(student)

	code, resp := s.do(http.MethodPost, "/api/courses", teacherTok, map[string]string{"title": "Go"})
	require.Equal(t, http.StatusCreated, code, resp.Message)
	var course model.Course
	decode(t, resp.Data, &course)

	code, resp = s.do(http.MethodPost, fmt.Sprintf("/api/courses/%d/lessons", course.ID), teacherTok, map[string]interface{}{"title": "Intro", "order": 1})
	require.Equal(t, http.StatusCreated, code, resp.Message)
	var lesson model.Lesson
	decode(t, resp.Data, &lesson)

	code, resp = s.do(http.MethodPost, fmt.Sprintf("/api/courses/%d/quizzes", course.ID), teacherTok, map[string]interface{}{"title": "Final", "totalMarks": 100})
	require.Equal(t, http.StatusCreated, code, resp.Message)
	var quiz model.Quiz
	decode(t, resp.Data, &quiz)

	code, _ = s.do(http.MethodPost, fmt.Sprintf("/api/quizzes/%d/questions", quiz.ID), teacherTok, map[string]interface{}{
		"text": "Pick", "type": "multiple_choice", "correctAnswer": "z", "options": []string{"x", "y"},
	})
	assert.Equal(t, http.StatusBadRequest, code)

	code, resp = s.do(http.MethodPost, fmt.Sprintf("/api/quizzes/%d/questions", quiz.ID), teacherTok, map[string]interface{}{
		"text": "Go has goroutines", "type": "true_false", "correctAnswer": "True",
	})
	require.Equal(t, http.StatusCreated, code, resp.Message)
	var question model.Question
	decode(t, resp.Data, &question)

	// 未选课
	code, _ = s.do(http.MethodPost, fmt.Sprintf("/api/quizzes/%d/submit", quiz.ID), studentTok, map[string]interface{}{
		"answers": []map[string]interface{}{{"question": question.ID, "answer_text": "true"}},
	})
	assert.Equal(t, http.StatusForbidden, code)
	code, _ = s.do(http.MethodGet, fmt.Sprintf("/api/courses/%d/progress", course.ID), studentTok, nil)
	assert.Equal(t, http.StatusForbidden, code)

	code, resp = s.do(http.MethodPost, "/api/enrollments", studentTok, map[string]uint{"courseId": course.ID})
	require.Equal(t, http.StatusCreated, code, resp.Message)

	code, _ = s.do(http.MethodPost, fmt.Sprintf("/api/quizzes/%d/submit", quiz.ID), studentTok, map[string]interface{}{"answers": []interface{}{}})
	assert.Equal(t, http.StatusBadRequest, code)

	code, resp = s.do(http.MethodPost, fmt.Sprintf("/api/quizzes/%d/submit", quiz.ID), studentTok, map[string]interface{}{
		"answers": []map[string]interface{}{
			{"question": question.ID, "answer_text": " TRUE "},
			{"question": 9999, "answer_text": "true"},
		},
	})
	require.Equal(t, http.StatusOK, code, resp.Message)
	var sub struct {
		Outcomes []struct {
			QuestionID    uint     `json:"questionId"`
			IsCorrect     *bool    `json:"isCorrect"`
			MarksObtained *float64 `json:"marksObtained"`
			Error         string   `json:"error"`
		} `json:"outcomes"`
		QuizCompleted bool     `json:"quizCompleted"`
		TotalScore    *float64 `json:"totalScore"`
	}
	decode(t, resp.Data, &sub)
	require.Len(t, sub.Outcomes, 2)
	assert.True(t, *sub.Outcomes[0].IsCorrect)
	assert.Equal(t, 100.0, *sub.Outcomes[0].MarksObtained)
	assert.NotEmpty(t, sub.Outcomes[1].Error)
	assert.True(t, sub.QuizCompleted)
	assert.Equal(t, 100.0, *sub.TotalScore)

	code, resp = s.do(http.MethodPut, fmt.Sprintf("/api/lessons/%d/progress", lesson.ID), studentTok, map[string]string{"status": "completed"})
	require.Equal(t, http.StatusOK, code, resp.Message)

	code, resp = s.do(http.MethodGet, fmt.Sprintf("/api/courses/%d/progress", course.ID), studentTok, nil)
	require.Equal(t, http.StatusOK, code, resp.Message)
	var report struct {
		IsComplete       bool   `json:"isComplete"`
		EnrollmentStatus string `json:"enrollmentStatus"`
		Certificate      *struct {
			Code string `json:"code"`
		} `json:"certificate"`
	}
	decode(t, resp.Data, &report)
	assert.True(t, report.IsComplete)
	assert.Equal(t, "completed", report.EnrollmentStatus)
	require.NotNil(t, report.Certificate)

	// 公开校验接口无需登录
	code, resp = s.do(http.MethodGet, "/api/public/certificates/verify/"+report.Certificate.Code, "", nil)
	require.Equal(t, http.StatusOK, code, resp.Message)
	code, _ = s.do(http.MethodGet, "/api/public/certificates/verify/0-0-NOPE", "", nil)
	assert.Equal(t, http.StatusNotFound, code)

	// 讲师再次签发为冲突
	code, _ = s.do(http.MethodPost, "/api/certificates/issue", teacherTok, map[string]uint{"courseId": course.ID, "studentId": student.ID})
	assert.Equal(t, http.StatusConflict, code)

	code, resp = s.do(http.MethodGet, "/api/notifications/unread-count", studentTok, nil)
	require.Equal(t, http.StatusOK, code)
	var unread struct {
		Count int64 `json:"count"`
	}
	decode(t, resp.Data, &unread)
	// 选课、测验完成、证书签发
	assert.GreaterOrEqual(t, unread.Count, int64(3))
}

func TestClosedQuizRejectsSubmissions(t *testing.T) {
	s := newTestServer(t)
	teacher := testutil.CreateUser(t, s.db, model.Teacher, "teacher")
	student := testutil.CreateUser(t, s.db, model.Student, "student")
	course := testutil.CreateCourse(t, s.db, teacher.ID, "Go")
	quiz := testutil.CreateQuiz(t, s.db, course.ID, "Final", 100)
	q := testutil.CreateQuestion(t, s.db, quiz.ID, model.TrueFalse, "true")
	testutil.Enroll(t, s.db, student.ID, course.ID, model.EnrollmentEnrolled)

	code, resp := s.do(http.MethodPut, fmt.Sprintf("/api/quizzes/%d", quiz.ID), s.token(teacher), map[string]bool{"closed": true})
	require.Equal(t, http.StatusOK, code, resp.Message)

	code, _ = s.do(http.MethodPost, fmt.Sprintf("/api/quizzes/%d/submit", quiz.ID), s.token(student), map[string]interface{}{
		"answers": []map[string]interface{}{{"question": q.ID, "answer_text": "true"}},
	})
	assert.Equal(t, http.StatusConflict, code)
}

func TestAdminStatsAndBroadcast(t *testing.T) {
	s := newTestServer(t)
	admin := testutil.CreateUser(t, s.db, model.Admin, "admin")
	teacher := testutil.CreateUser(t, s.db, model.Teacher, "teacher")
	student := testutil.CreateUser(t, s.db, model.Student, "student")
	course := testutil.CreateCourse(t, s.db, teacher.ID, "Go")
	testutil.Enroll(t, s.db, student.ID, course.ID, model.EnrollmentEnrolled)

	code, _ := s.do(http.MethodGet, "/api/admin/stats", s.token(teacher), nil)
	assert.Equal(t, http.StatusForbidden, code)

	code, resp := s.do(http.MethodGet, "/api/admin/stats", s.token(admin), nil)
	require.Equal(t, http.StatusOK, code, resp.Message)
	var stats struct {
		Users struct {
			Total    int64 `json:"total"`
			Students int64 `json:"students"`
		} `json:"users"`
		Enrollments struct {
			Active int64 `json:"active"`
		} `json:"enrollments"`
		PopularCourses []struct {
			CourseID uint `json:"courseId"`
		} `json:"popularCourses"`
	}
	decode(t, resp.Data, &stats)
	assert.Equal(t, int64(3), stats.Users.Total)
	assert.Equal(t, int64(1), stats.Users.Students)
	assert.Equal(t, int64(1), stats.Enrollments.Active)
	require.Len(t, stats.PopularCourses, 1)
	assert.Equal(t, course.ID, stats.PopularCourses[0].CourseID)

	code, _ = s.do(http.MethodPost, "/api/admin/notifications", s.token(admin), map[string]interface{}{
		"title": "Hi", "message": "hello", "recipientType": "course",
	})
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = s.do(http.MethodPost, "/api/admin/notifications", s.token(admin), map[string]interface{}{
		"title": "Hi", "message": "hello", "recipientType": "course", "courseId": 9999,
	})
	assert.Equal(t, http.StatusNotFound, code)

	code, resp = s.do(http.MethodPost, "/api/admin/notifications", s.token(admin), map[string]interface{}{
		"title": "Welcome", "message": "Term starts Monday", "recipientType": "course", "courseId": course.ID,
	})
	require.Equal(t, http.StatusCreated, code, resp.Message)
	var sent struct {
		Sent int `json:"sent"`
	}
	decode(t, resp.Data, &sent)
	assert.Equal(t, 1, sent.Sent)

	code, resp = s.do(http.MethodGet, "/api/notifications", s.token(student), nil)
	require.Equal(t, http.StatusOK, code)
	var page struct {
		Total int64 `json:"total"`
	}
	decode(t, resp.Data, &page)
	assert.Equal(t, int64(1), page.Total)
}

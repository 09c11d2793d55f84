package service

import (
	"context"
	"errors"
	"mylms_backend/internal/config"
	"mylms_backend/internal/model"
	"mylms_backend/internal/repository"
	"mylms_backend/internal/testutil"
	"mylms_backend/internal/util"
	"mylms_backend/pkg/cache"
	"mylms_backend/pkg/events"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// recordingPublisher 记录发布的事件，err 非空时所有发布失败
type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, e events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) count(t events.EventType) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, e := range p.events {
		if e.Type == t {
			n++
		}
	}
	return n
}

func (p *recordingPublisher) fail(err error) {
	p.mu.Lock()
	p.err = err
	p.mu.Unlock()
}

var errBrokerDown = errors.New("broker down")

type testEnv struct {
	db        *gorm.DB
	publisher *recordingPublisher
	storage   string

	users         *repository.UserRepository
	courseRepo    *repository.CourseRepository
	quizRepo      *repository.QuizRepository
	enrollRepo    *repository.EnrollmentRepository
	progressRepo  *repository.ProgressRepository
	certRepo      *repository.CertificateRepository
	notifRepo     *repository.NotificationRepository
	notifications *NotificationService
	certificates  *CertificateService
	progress      *ProgressService
	submissions   *SubmissionService
	enrollments   *EnrollmentService
	courses       *CourseService
	quizzes       *QuizService
	stats         *StatsService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db := testutil.NewDB(t)
	log := zap.NewNop()
	ctx := context.Background()

	env := &testEnv{
		db:           db,
		publisher:    &recordingPublisher{},
		storage:      t.TempDir(),
		users:        repository.NewUserRepository(db),
		courseRepo:   repository.NewCourseRepository(db),
		quizRepo:     repository.NewQuizRepository(db),
		enrollRepo:   repository.NewEnrollmentRepository(db),
		progressRepo: repository.NewProgressRepository(db),
		certRepo:     repository.NewCertificateRepository(db),
		notifRepo:    repository.NewNotificationRepository(db),
	}

	storage := NewStorageService(ctx, &config.StorageConfig{Type: "local", LocalPath: env.storage}, log)
	certCache := cache.NewCertificateCache(nil, time.Hour)

	env.notifications = NewNotificationService(env.notifRepo, env.users, env.enrollRepo, env.courseRepo, env.publisher, 2, time.Millisecond, log)
	env.certificates = NewCertificateService(db, env.certRepo, env.enrollRepo, env.courseRepo, env.progressRepo,
		env.users, env.notifRepo, env.notifications, storage, certCache, log)
	env.progress = NewProgressService(env.courseRepo, env.quizRepo, env.progressRepo, env.enrollRepo,
		env.certRepo, env.certificates, log)
	env.submissions = NewSubmissionService(db, env.quizRepo, env.enrollRepo, NewGrader(DefaultPartialRatio),
		env.notifications, env.progress, log)
	env.enrollments = NewEnrollmentService(env.enrollRepo, env.courseRepo, env.certRepo, env.notifications, log)
	env.courses = NewCourseService(env.courseRepo, env.enrollRepo, env.notifications, certCache, log)
	env.quizzes = NewQuizService(env.quizRepo, env.courseRepo, env.enrollRepo, log)
	env.stats = NewStatsService(repository.NewStatsRepository(db), log)
	return env
}

func actorOf(u *model.User) util.Actor {
	return util.Actor{UserID: u.ID, Role: u.Role}
}

func (e *testEnv) notificationCount(t *testing.T, userID uint, nt model.NotificationType) int64 {
	t.Helper()
	n, err := e.notifRepo.CountByUserAndType(context.Background(), userID, nt)
	require.NoError(t, err)
	return n
}

func (e *testEnv) certificateCount(t *testing.T, userID, courseID uint) int64 {
	t.Helper()
	var n int64
	require.NoError(t, e.db.Model(&model.Certificate{}).
		Where("user_id = ? AND course_id = ?", userID, courseID).Count(&n).Error)
	return n
}

func (e *testEnv) enrollmentStatus(t *testing.T, userID, courseID uint) model.EnrollmentStatus {
	t.Helper()
	en, err := e.enrollRepo.Find(context.Background(), userID, courseID)
	require.NoError(t, err)
	return en.Status
}

func answer(q *model.Question, text string) SubmittedAnswer {
	return SubmittedAnswer{QuestionID: q.ID, AnswerText: text}
}

package app

import (
	"context"
	"mylms_backend/internal/config"
	"mylms_backend/internal/controller"
	"mylms_backend/internal/middleware"
	"mylms_backend/internal/repository"
	"mylms_backend/internal/service"
	"mylms_backend/pkg/cache"
	"mylms_backend/pkg/configwatcher"
	"mylms_backend/pkg/database"
	"mylms_backend/pkg/events"
	"mylms_backend/pkg/logger"
	"mylms_backend/pkg/monitoring"
	"mylms_backend/pkg/security"
	"mylms_backend/pkg/tracing"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type App struct {
	Config     *config.Config
	ConfigPath string
	Router     *gin.Engine
	DB         *gorm.DB
	Redis      *redis.Client
	Publisher  events.Publisher

	rateLimiter     *security.RateLimiter
	originPolicy    *security.OriginPolicy
	tracer          *sdktrace.TracerProvider
	configCallbacks []func(*config.Config)
}

type repositories struct {
	user         *repository.UserRepository
	course       *repository.CourseRepository
	quiz         *repository.QuizRepository
	enrollment   *repository.EnrollmentRepository
	progress     *repository.ProgressRepository
	certificate  *repository.CertificateRepository
	notification *repository.NotificationRepository
	stats        *repository.StatsRepository
}

type services struct {
	auth         *service.AuthService
	user         *service.UserService
	storage      *service.StorageService
	notification *service.NotificationService
	course       *service.CourseService
	quiz         *service.QuizService
	enrollment   *service.EnrollmentService
	certificate  *service.CertificateService
	progress     *service.ProgressService
	submission   *service.SubmissionService
	stats        *service.StatsService
}

type controllers struct {
	auth         *controller.AuthController
	user         *controller.UserController
	course       *controller.CourseController
	quiz         *controller.QuizController
	progress     *controller.ProgressController
	enrollment   *controller.EnrollmentController
	certificate  *controller.CertificateController
	notification *controller.NotificationController
	admin        *controller.AdminController
	health       *controller.HealthController
}

func (a *App) RegisterConfigCallback(callback func(*config.Config)) {
	a.configCallbacks = append(a.configCallbacks, callback)
}

func (a *App) applyConfig(cfg *config.Config) {
	for _, cb := range a.configCallbacks {
		cb(cfg)
	}
}

func (a *App) initRepositories(db *gorm.DB) *repositories {
	return &repositories{
		user:         repository.NewUserRepository(db),
		course:       repository.NewCourseRepository(db),
		quiz:         repository.NewQuizRepository(db),
		enrollment:   repository.NewEnrollmentRepository(db),
		progress:     repository.NewProgressRepository(db),
		certificate:  repository.NewCertificateRepository(db),
		notification: repository.NewNotificationRepository(db),
		stats:        repository.NewStatsRepository(db),
	}
}

func (a *App) initServices(repos *repositories, cfg *config.Config, db *gorm.DB, rdb *redis.Client) *services {
	s := &services{}

	certCache := cache.NewCertificateCache(rdb, time.Duration(cfg.Cache.VerifyTTLSeconds)*time.Second)

	s.storage = service.NewStorageService(context.Background(), &cfg.Storage, logger.Named("storage"))
	s.auth = service.NewAuthService(repos.user, cfg, logger.Named("auth"))
	s.user = service.NewUserService(repos.user)
	s.notification = service.NewNotificationService(
		repos.notification,
		repos.user,
		repos.enrollment,
		repos.course,
		a.Publisher,
		cfg.Notification.MaxAttempts,
		time.Duration(cfg.Notification.RetryBackoffMS)*time.Millisecond,
		logger.Named("notification"),
	)
	s.course = service.NewCourseService(repos.course, repos.enrollment, s.notification, certCache, logger.Named("course"))
	s.quiz = service.NewQuizService(repos.quiz, repos.course, repos.enrollment, logger.Named("quiz"))
	s.enrollment = service.NewEnrollmentService(repos.enrollment, repos.course, repos.certificate, s.notification, logger.Named("enrollment"))
	s.certificate = service.NewCertificateService(
		db,
		repos.certificate,
		repos.enrollment,
		repos.course,
		repos.progress,
		repos.user,
		repos.notification,
		s.notification,
		s.storage,
		certCache,
		logger.Named("certificate"),
	)
	s.progress = service.NewProgressService(
		repos.course,
		repos.quiz,
		repos.progress,
		repos.enrollment,
		repos.certificate,
		s.certificate,
		logger.Named("progress"),
	)
	s.submission = service.NewSubmissionService(
		db,
		repos.quiz,
		repos.enrollment,
		service.NewGrader(cfg.Grading.ShortAnswerPartialRatio),
		s.notification,
		s.progress,
		logger.Named("submission"),
	)
	s.stats = service.NewStatsService(repos.stats, logger.Named("stats"))

	return s
}

func (a *App) initControllers(s *services, db *gorm.DB) *controllers {
	return &controllers{
		auth:         controller.NewAuthController(s.auth, s.user),
		user:         controller.NewUserController(s.user),
		course:       controller.NewCourseController(s.course, s.progress, logger.Named("course_controller")),
		quiz:         controller.NewQuizController(s.quiz, s.submission),
		progress:     controller.NewProgressController(s.progress),
		enrollment:   controller.NewEnrollmentController(s.enrollment),
		certificate:  controller.NewCertificateController(s.certificate),
		notification: controller.NewNotificationController(s.notification),
		admin:        controller.NewAdminController(s.stats, s.notification),
		health:       controller.NewHealthController(db, a.Redis),
	}
}

func (a *App) setupMiddlewares(router *gin.Engine, cfg *config.Config) {
	a.originPolicy = security.NewOriginPolicy(cfg.CORS.AllowedOrigins)
	a.rateLimiter = security.NewRateLimiter(cfg.RateLimit.MaxRequests, time.Duration(cfg.RateLimit.WindowMinutes)*time.Minute)

	// 热更新：限流和跨域白名单
	a.RegisterConfigCallback(func(newCfg *config.Config) {
		a.originPolicy.Update(newCfg.CORS.AllowedOrigins)
		a.rateLimiter.SetLimit(newCfg.RateLimit.MaxRequests, time.Duration(newCfg.RateLimit.WindowMinutes)*time.Minute)
	})

	router.Use(middleware.RequestLogger(logger.Named("http")))
	router.Use(security.CORS(a.originPolicy))
	router.Use(security.Secure())
	router.Use(a.rateLimiter.Middleware())

	// 分布式追踪中间件
	if cfg.Tracing.Enabled {
		router.Use(tracing.GinMiddleware())
	}

	router.Use(monitoring.MetricsMiddleware())
}

// New 使用已建立的连接组装应用，不做任何外部初始化
func New(cfg *config.Config, db *gorm.DB, rdb *redis.Client, publisher events.Publisher) *App {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	app := &App{
		Config:    cfg,
		DB:        db,
		Redis:     rdb,
		Publisher: publisher,
	}

	repos := app.initRepositories(db)
	services := app.initServices(repos, cfg, db, rdb)
	controllers := app.initControllers(services, db)

	monitoring.Init()

	if cfg.Server.Mode == gin.ReleaseMode {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	app.Router = router

	app.setupMiddlewares(router, cfg)
	app.registerRoutes(router, controllers, cfg)

	if cfg.Storage.Type == "local" {
		router.Static("/uploads", cfg.Storage.LocalPath)
	}

	return app
}

func NewApp(cfg *config.Config, configPath string) *App {
	logger.InitLogger(cfg)
	logger.Log.Info("Logger initialized successfully")

	db, err := database.InitDB(&cfg.Database, cfg.Server.Mode)
	if err != nil {
		logger.Log.Fatal("Failed to initialize database", zap.Error(err))
	}

	// release 模式下默认不迁移，需显式指定 -migrate
	if cfg.Server.Mode != gin.ReleaseMode || cfg.ForceMigrate {
		if err := database.Migrate(db); err != nil {
			logger.Log.Fatal("Failed to migrate database", zap.Error(err))
		}
	}

	rdb, err := database.InitRedis(&cfg.Redis, logger.Named("redis"))
	if err != nil {
		logger.Log.Fatal("Failed to initialize redis", zap.Error(err))
	}

	publisher, err := events.NewRabbitPublisher(cfg.RabbitMQ.URL, cfg.RabbitMQ.Exchange, logger.Named("events"))
	if err != nil {
		logger.Log.Fatal("Failed to initialize event publisher", zap.Error(err))
	}

	app := New(cfg, db, rdb, publisher)
	app.ConfigPath = configPath

	if cfg.Tracing.Enabled {
		tp, err := tracing.InitTracer("mylms-backend", cfg.Tracing.CollectorEndpoint)
		if err != nil {
			logger.Log.Fatal("Failed to initialize tracing", zap.Error(err))
		}
		app.tracer = tp
	}

	return app
}

func (a *App) Run() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if a.ConfigPath != "" {
		go func() {
			if err := configwatcher.WatchConfig(ctx, a.ConfigPath, logger.Named("config"), a.applyConfig); err != nil {
				logger.Log.Error("Config watcher stopped", zap.Error(err))
			}
		}()
	}

	srv := &http.Server{
		Addr:    ":" + a.Config.Server.Port,
		Handler: a.Router,
	}

	// 启动服务器
	go func() {
		logger.Log.Info("Server running", zap.String("port", a.Config.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.Fatal("listen", zap.Error(err))
		}
	}()

	// 等待中断信号优雅地关闭服务器（设置5秒的超时时间）
	<-ctx.Done()
	logger.Log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Log.Error("Server forced to shutdown", zap.Error(err))
	}

	a.Close(shutdownCtx)
	logger.Log.Info("Server exiting")
	_ = logger.Log.Sync()
}

// Close 释放后台资源
func (a *App) Close(ctx context.Context) {
	if a.rateLimiter != nil {
		a.rateLimiter.Stop()
	}
	if a.Publisher != nil {
		if err := a.Publisher.Close(); err != nil {
			logger.Log.Warn("Failed to close event publisher", zap.Error(err))
		}
	}
	if a.tracer != nil {
		if err := a.tracer.Shutdown(ctx); err != nil {
			logger.Log.Error("Failed to shutdown tracer provider", zap.Error(err))
		}
	}
	if a.Redis != nil {
		_ = a.Redis.Close()
	}
	if sqlDB, err := a.DB.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
